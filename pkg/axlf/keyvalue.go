package axlf

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	json "github.com/goccy/go-json"
)

// kvEntry is one user key/value pair carried in the key-value metadata
// section.
type kvEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type kvMetadata struct {
	KeyValues []kvEntry `json:"key_values"`
}

// modeNames maps the accepted mode tokens, matched case-sensitively, to
// header mode values.
var modeNames = map[string]Mode{
	"flat":      ModeFlat,
	"hw_pr":     ModePR,
	"tandem":    ModeTandemStage2,
	"tandem_pr": ModeTandemStage2WithPR,
	"hw_emu":    ModeHWEmu,
	"sw_emu":    ModeSWEmu,
	"hw_emu_pr": ModeHWEmuPR,
}

// SetKeyValue applies one `[domain]:key:value` assignment. The SYS domain
// writes header fields directly; the USER domain upserts into the
// key-value metadata section, creating it on first use.
func (c *Container) SetKeyValue(encoded string) error {
	domain, key, value, err := ParseKeyValue(encoded)
	if err != nil {
		return err
	}
	switch domain {
	case "SYS":
		return c.setSysKey(key, value)
	case "USER":
		return c.setUserKey(key, value)
	default:
		return fmt.Errorf("%w: unknown key-value domain %q, expected SYS or USER", ErrBadDescriptor, domain)
	}
}

func (c *Container) setSysKey(key, value string) error {
	switch key {
	case "mode":
		mode, ok := modeNames[value]
		if !ok {
			return fmt.Errorf("%w: unknown mode %q for the SYS key %q", ErrBadDescriptor, value, key)
		}
		c.Header.Mode = uint16(mode)
	case "action_mask":
		var mask uint32
		for _, name := range strings.Split(value, "|") {
			switch strings.TrimSpace(name) {
			case "LOAD_AIE":
				mask |= ActionMaskLoadAIE
			default:
				return fmt.Errorf("%w: unknown action mask flag %q for the SYS key %q", ErrBadDescriptor, name, key)
			}
		}
		c.Header.ActionMask = mask
	case "FeatureRomTimestamp":
		v, err := parseUint64String(value, false)
		if err != nil {
			return fmt.Errorf("%w: SYS key %q: %v", ErrBadDescriptor, key, err)
		}
		c.Header.FeatureRomTimeStamp = v
	case "FeatureRomUUID":
		if err := hexStringToFixed(c.Header.ROMUUID[:], value); err != nil {
			return fmt.Errorf("%w: SYS key %q: %v", ErrBadDescriptor, key, err)
		}
	case "PlatformVBNV":
		setFixed(c.Header.PlatformVBNV[:], value)
	case "XclbinUUID":
		// Overriding the image identity defeats uniqueness tracking, so
		// the write is honored but called out.
		c.log.Warn("overriding the image UUID", "uuid", value)
		if err := hexStringToFixed(c.Header.ImageUUID[:], value); err != nil {
			return fmt.Errorf("%w: SYS key %q: %v", ErrBadDescriptor, key, err)
		}
	default:
		return fmt.Errorf("%w: unknown SYS key %q", ErrBadDescriptor, key)
	}
	c.log.Info("system key set", "key", key, "value", value)
	return nil
}

func (c *Container) setUserKey(key, value string) error {
	sec := c.FindSection(KindKeyValueMetadata, "")
	if sec == nil {
		var err error
		if sec, err = NewSection(KindKeyValueMetadata, ""); err != nil {
			return err
		}
		c.appendSection(sec)
	}
	meta, err := loadKeyValues(sec)
	if err != nil {
		return err
	}
	updated := false
	for i := range meta.KeyValues {
		if meta.KeyValues[i].Key == key {
			meta.KeyValues[i].Value = value
			updated = true
			break
		}
	}
	if !updated {
		meta.KeyValues = append(meta.KeyValues, kvEntry{Key: key, Value: value})
	}
	if err := storeKeyValues(sec, meta); err != nil {
		return err
	}
	c.log.Info("user key set", "key", key, "value", value)
	return nil
}

// RemoveKey removes one USER key from the key-value metadata section.
func (c *Container) RemoveKey(key string) error {
	sec := c.FindSection(KindKeyValueMetadata, "")
	if sec == nil {
		return fmt.Errorf("%w: %q (the archive has no key-value metadata)", ErrMissingKey, key)
	}
	meta, err := loadKeyValues(sec)
	if err != nil {
		return err
	}
	for i := range meta.KeyValues {
		if meta.KeyValues[i].Key == key {
			meta.KeyValues = append(meta.KeyValues[:i], meta.KeyValues[i+1:]...)
			if err := storeKeyValues(sec, meta); err != nil {
				return err
			}
			c.log.Info("user key removed", "key", key)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrMissingKey, key)
}

func loadKeyValues(sec Section) (kvMetadata, error) {
	var meta kvMetadata
	payload, err := sec.GetPayload()
	if err != nil {
		return meta, err
	}
	if payload == nil {
		return meta, nil
	}
	node, err := extractNode(payload, KindKeyValueMetadata.JSONKey())
	if err != nil {
		return meta, err
	}
	if isEmptyNode(node) {
		return meta, nil
	}
	if err := json.Unmarshal(node, &meta); err != nil {
		return meta, fmt.Errorf("axlf: section %s payload: %w", sec.Kind(), err)
	}
	return meta, nil
}

func storeKeyValues(sec Section, meta kvMetadata) error {
	node, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	image, err := wrapNode(KindKeyValueMetadata.JSONKey(), node)
	if err != nil {
		return err
	}
	return sec.ReadJSONImage(image)
}

// AddPSKernel loads a PS kernel shared library as an indexed soft-kernel
// section pair (object plus synthesized metadata). The index name is the
// kernel's symbolic name, which must be unique within the archive.
func (c *Container) AddPSKernel(encoded string) error {
	symbol, instances, library, err := ParsePSKernel(encoded)
	if err != nil {
		return err
	}
	if _, err := os.Stat(library); err != nil {
		return fmt.Errorf("axlf: the PS kernel library %q does not exist: %w", library, err)
	}
	if c.FindSection(KindSoftKernel, symbol) != nil {
		return fmt.Errorf("%w: a PS kernel with the symbolic name %q is already present", ErrSectionExists, symbol)
	}
	sec, err := NewSection(KindSoftKernel, symbol)
	if err != nil {
		return err
	}
	sec.SetName(baseStem(library))

	f, err := os.Open(library)
	if err != nil {
		return fmt.Errorf("axlf: unable to open %q for reading: %w", library, err)
	}
	defer func() { _ = f.Close() }()
	if err := sec.ReadSubPayload(f, SubSectionObj, FTRaw); err != nil {
		return err
	}

	meta := SoftKernelMetadata{
		Name:         symbol,
		Version:      "0.0.0",
		MD5:          strings.Repeat("0", 32),
		SymbolName:   symbol,
		NumInstances: instances,
	}
	node, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	image, err := wrapNode(softKernelMetadataKey, node)
	if err != nil {
		return err
	}
	if err := sec.ReadSubPayload(bytes.NewReader(image), SubSectionMetadata, FTJSON); err != nil {
		return err
	}

	c.appendSection(sec)
	c.log.Info("PS kernel added", "symbol", symbol, "instances", instances, "library", library)
	return nil
}
