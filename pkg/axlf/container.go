package axlf

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Container owns the fixed header and the ordered section collection and
// drives every read, mutation, and write of the full image. It is
// single-threaded: the caller holds exclusive ownership for the duration
// of a command, and every operation runs to completion before returning.
type Container struct {
	Header   Header
	sections []Section

	schema SchemaVersion
	log    Logger
}

// New creates an empty container with an initialized header. A nil logger
// disables logging.
func New(log Logger) *Container {
	if log == nil {
		log = nopLogger{}
	}
	c := &Container{
		schema: SchemaVersion{Major: 1, Minor: 0, Patch: 0},
		log:    log,
	}
	c.initHeader()
	return c
}

func (c *Container) initHeader() {
	var h Header
	setFixed(h.Magic[:], Magic)
	h.SignatureLength = -1
	for i := range h.Reserved {
		h.Reserved[i] = 0xFF
	}
	for i := range h.KeyBlock {
		h.KeyBlock[i] = 0xFF
	}
	now := uint64(time.Now().Unix())
	h.UniqueID = now
	h.TimeStamp = now
	if major, minor, patch, err := ParseVersion(ToolVersion); err == nil {
		h.VersionMajor = major
		h.VersionMinor = minor
		h.VersionPatch = patch
	}
	c.Header = h
}

// Sections returns the ordered section list. The returned slice is owned
// by the container and must not be mutated.
func (c *Container) Sections() []Section { return c.sections }

// FindSection returns the section of the given kind and index name, or nil.
func (c *Container) FindSection(k SectionKind, indexName string) Section {
	for _, s := range c.sections {
		if s.Kind() == k && s.IndexName() == indexName {
			return s
		}
	}
	return nil
}

func (c *Container) appendSection(s Section) {
	c.sections = append(c.sections, s)
	c.Header.NumSections = uint32(len(c.sections))
}

// ReadFromFile loads a binary image. In migrate mode the container is
// reconstructed from the embedded mirror metadata instead of the fixed
// header, allowing older archives to be rebuilt by the current tool.
func (c *Container) ReadFromFile(path string, migrate bool) error {
	if path == "" {
		return fmt.Errorf("axlf: missing file name to read from")
	}
	c.log.Debug("reading image", "file", path, "migrate", migrate)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("axlf: unable to open %q for reading: %w", path, err)
	}
	if migrate {
		return c.readMirrorImage(data)
	}
	return c.readBinaryImage(data)
}

// WriteToFile serializes the container. Unless skipUUID is set, a fresh
// image UUID is generated first (tests opt out for reproducible fixtures).
func (c *Container) WriteToFile(path string, skipUUID bool) error {
	if path == "" {
		return fmt.Errorf("axlf: missing file name to write to")
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("axlf: unable to open %q for writing: %w", path, err)
	}
	werr := c.writeImage(f, skipUUID)
	cerr := f.Close()
	if werr == nil && cerr != nil {
		werr = fmt.Errorf("axlf: closing %q: %w", path, cerr)
	}
	if werr != nil {
		// A half-written image must not be mistaken for a valid one.
		_ = os.Remove(path)
		return werr
	}
	c.log.Info("wrote image", "bytes", c.Header.Length, "file", path)
	return nil
}

// AddSection creates a new section from an external file. Adding a section
// of a kind (and index) that already exists is an error; an empty payload
// is a logged no-op unless the kind explicitly allows empty payloads.
func (c *Container) AddSection(d Descriptor) error {
	if d.SubSection != "" {
		return c.addSubSection(d)
	}
	kind, err := KindFromString(d.Section)
	if err != nil {
		return err
	}
	if c.FindSection(kind, d.IndexName) != nil {
		return fmt.Errorf("%w: %s", ErrSectionExists, d.Section)
	}
	if !supportsAddFormat(kind, d.Format) {
		return fmt.Errorf("%w: the %s section does not support reading the %s file type", ErrFormatUnsupported, kind, d.Format)
	}
	sec, err := NewSection(kind, d.IndexName)
	if err != nil {
		return err
	}
	f, err := os.Open(d.File)
	if err != nil {
		return fmt.Errorf("axlf: unable to open %q for reading: %w", d.File, err)
	}
	defer func() { _ = f.Close() }()

	if err := sec.ReadPayload(f, d.Format); err != nil {
		return err
	}
	sec.SetName(baseStem(d.File))

	if sec.Size() == 0 && !allowsEmptyPayload(kind, d.Format) {
		c.log.Info("section was empty, no action taken", "section", kind.String(), "file", d.File)
		return nil
	}
	// Header propagation must succeed before the section is recorded.
	if err := c.updateHeaderFromSection(sec); err != nil {
		return err
	}
	c.appendSection(sec)
	c.log.Info("section added", "section", kind.String(), "size", sec.Size(), "format", d.Format.String(), "file", d.File)
	return nil
}

// addSubSection adds one sub-section keyed by (kind, index, name), creating
// the parent section on first use.
func (c *Container) addSubSection(d Descriptor) error {
	kind, err := KindFromString(d.Section)
	if err != nil {
		return err
	}
	if !SupportsSubSections(kind) {
		return fmt.Errorf("%w: section %s does not support sub-sections", ErrFormatUnsupported, kind)
	}

	sec := c.FindSection(kind, d.IndexName)
	isNew := sec == nil
	if isNew {
		if sec, err = NewSection(kind, d.IndexName); err != nil {
			return err
		}
		sec.SetName(baseStem(d.File))
	}
	if !sec.SupportsSubSection(d.SubSection) {
		return fmt.Errorf("%w: section %s does not support the sub-section %q", ErrFormatUnsupported, kind, d.SubSection)
	}
	if sec.SubSectionExists(d.SubSection) {
		return fmt.Errorf("%w: section %s sub-section %q", ErrSectionExists, kind, d.SubSection)
	}

	f, err := os.Open(d.File)
	if err != nil {
		return fmt.Errorf("axlf: unable to open %q for reading: %w", d.File, err)
	}
	defer func() { _ = f.Close() }()

	if err := sec.ReadSubPayload(f, d.SubSection, d.Format); err != nil {
		return err
	}
	if isNew {
		c.appendSection(sec)
	}
	c.log.Info("sub-section added", "section", kind.String(), "index", d.IndexName, "subsection", d.SubSection, "size", sec.Size())
	return nil
}

// AddSections performs a wildcard JSON add: every top-level key of the file
// (except schema_version) names a section to create.
func (c *Container) AddSections(d Descriptor) error {
	if d.Section != "" {
		return fmt.Errorf("%w: section given for a wildcard JSON add is not empty", ErrBadDescriptor)
	}
	if d.Format != FTJSON {
		return fmt.Errorf("%w: expecting JSON format type, got %s", ErrFormatUnsupported, d.Format)
	}
	entries, err := readOrderedJSONFile(d.File)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Key == "schema_version" {
			continue
		}
		kind, ok := KindFromJSONKey(e.Key)
		if !ok {
			return fmt.Errorf("%w: unknown JSON section %q in file %s", ErrUnknownKind, e.Key, d.File)
		}
		if c.FindSection(kind, "") != nil {
			return fmt.Errorf("%w: %s", ErrSectionExists, kind)
		}
		sec, err := NewSection(kind, "")
		if err != nil {
			return err
		}
		image, err := wrapNode(e.Key, e.Value)
		if err != nil {
			return fmt.Errorf("axlf: section %s: %w", kind, err)
		}
		if err := sec.ReadJSONImage(image); err != nil {
			return err
		}
		if sec.Size() == 0 {
			c.log.Info("section was empty, no action taken", "section", kind.String(), "file", d.File)
			continue
		}
		if err := c.updateHeaderFromSection(sec); err != nil {
			return err
		}
		c.appendSection(sec)
		c.log.Info("section added", "section", kind.String(), "format", d.Format.String(), "file", d.File)
	}
	return nil
}

// ReplaceSection purges an existing section's payload and reloads it from
// an external file. The section must already exist.
func (c *Container) ReplaceSection(d Descriptor) error {
	kind, err := KindFromString(d.Section)
	if err != nil {
		return err
	}
	sec := c.FindSection(kind, d.IndexName)
	if sec == nil {
		return fmt.Errorf("%w: %s does not exist", ErrMissingSection, d.Section)
	}
	if !supportsAddFormat(kind, d.Format) {
		return fmt.Errorf("%w: the %s section does not support reading the %s file type", ErrFormatUnsupported, kind, d.Format)
	}
	f, err := os.Open(d.File)
	if err != nil {
		return fmt.Errorf("axlf: unable to open %q for reading: %w", d.File, err)
	}
	defer func() { _ = f.Close() }()

	sec.Purge()
	if err := sec.ReadPayload(f, d.Format); err != nil {
		return err
	}
	if err := c.updateHeaderFromSection(sec); err != nil {
		return err
	}
	sec.SetName(baseStem(d.File))
	c.log.Info("section replaced", "section", kind.String(), "size", sec.Size(), "file", d.File)
	return nil
}

// RemoveSection removes a section named by `<kind>[<index>]`. Kinds that
// support indexes require one; kinds that do not reject one.
func (c *Container) RemoveSection(target string) error {
	name, index, sub, err := parseSectionTarget(target)
	if err != nil {
		return err
	}
	if sub != "" {
		return fmt.Errorf("%w: sub-sections cannot be removed individually: %q", ErrBadDescriptor, target)
	}
	kind, err := KindFromString(name)
	if err != nil {
		return err
	}
	if SupportsIndex(kind) && index == "" {
		return fmt.Errorf("%w: section %q can only be removed with an index", ErrIndexRequired, name)
	}
	if !SupportsIndex(kind) && index != "" {
		return fmt.Errorf("%w: section %q cannot be removed with an index value", ErrIndexForbidden, name)
	}
	for i, s := range c.sections {
		if s.Kind() == kind && s.IndexName() == index {
			c.sections = append(c.sections[:i], c.sections[i+1:]...)
			c.Header.NumSections = uint32(len(c.sections))
			c.log.Info("section removed", "section", target)
			return nil
		}
	}
	return fmt.Errorf("%w: %q is not part of the archive", ErrMissingSection, target)
}

// MergeSection merges an external JSON file into an existing section, or
// creates the section fresh when it does not exist yet.
func (c *Container) MergeSection(d Descriptor) error {
	kind, err := KindFromString(d.Section)
	if err != nil {
		return err
	}
	if d.Format != FTJSON {
		return fmt.Errorf("%w: merging of sections is only supported with the JSON format", ErrFormatUnsupported)
	}
	sec := c.FindSection(kind, d.IndexName)
	if sec == nil {
		return c.AddSection(d)
	}
	doc, err := os.ReadFile(d.File)
	if err != nil {
		return fmt.Errorf("axlf: unable to open %q for reading: %w", d.File, err)
	}
	node, err := extractNode(doc, kind.JSONKey())
	if err != nil {
		return fmt.Errorf("axlf: parsing %q: %w", d.File, err)
	}
	if isEmptyNode(node) {
		return fmt.Errorf("axlf: nothing to merge for section %q: the JSON node %q is missing or empty in %s",
			d.Section, kind.JSONKey(), d.File)
	}
	if err := sec.AppendImage(node); err != nil {
		return err
	}
	c.log.Info("section merged", "section", kind.String(), "file", d.File)
	return nil
}

// AppendSections appends JSON metadata to existing sections. A missing
// target section is only synthesized for kinds on the documented
// allow-list; anything else is an error rather than an implicit add.
func (c *Container) AppendSections(d Descriptor) error {
	if d.Section != "" {
		return fmt.Errorf("%w: section given for a wildcard JSON append is not empty", ErrBadDescriptor)
	}
	if d.Format != FTJSON {
		return fmt.Errorf("%w: expecting JSON format type, got %s", ErrFormatUnsupported, d.Format)
	}
	entries, err := readOrderedJSONFile(d.File)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Key == "schema_version" {
			continue
		}
		kind, ok := KindFromJSONKey(e.Key)
		if !ok {
			return fmt.Errorf("%w: unknown JSON section %q in file %s", ErrUnknownKind, e.Key, d.File)
		}
		sec := c.FindSection(kind, "")
		isNew := sec == nil
		if isNew {
			if !appendMayCreate(kind) {
				return fmt.Errorf("%w: section %s does not exist for JSON key %q; append requires an existing section",
					ErrMissingSection, kind, e.Key)
			}
			if sec, err = NewSection(kind, ""); err != nil {
				return err
			}
		}
		if err := sec.AppendImage(e.Value); err != nil {
			return err
		}
		if isNew {
			c.appendSection(sec)
		}
		c.log.Info("section appended to", "section", kind.String(), "file", d.File)
	}
	return nil
}

// DumpSection writes one section (or sub-section) payload to a file in the
// requested format.
func (c *Container) DumpSection(d Descriptor) error {
	if d.SubSection != "" {
		return c.dumpSubSection(d)
	}
	kind, err := KindFromString(d.Section)
	if err != nil {
		return err
	}
	sec := c.FindSection(kind, d.IndexName)
	if sec == nil {
		return fmt.Errorf("%w: %s does not exist", ErrMissingSection, d.Section)
	}
	if d.Format == FTUnknown {
		return fmt.Errorf("%w: unknown format type in the dump option %q", ErrFormatUnsupported, d.Original())
	}
	if d.Format == FTUndefined {
		return fmt.Errorf("%w: the format type is missing from the dump option %q; expected <SECTION>:<FORMAT>:<OUTPUT_FILE>",
			ErrBadDescriptor, d.Original())
	}
	if !supportsDumpFormat(kind, d.Format) {
		return fmt.Errorf("%w: the %s section does not support writing to a %s file type", ErrFormatUnsupported, kind, d.Format)
	}
	f, err := os.Create(d.File)
	if err != nil {
		return fmt.Errorf("axlf: unable to open %q for writing: %w", d.File, err)
	}
	defer func() { _ = f.Close() }()
	if err := sec.Dump(f, d.Format); err != nil {
		return err
	}
	c.log.Info("section dumped", "section", kind.String(), "format", d.Format.String(), "file", d.File)
	return nil
}

func (c *Container) dumpSubSection(d Descriptor) error {
	kind, err := KindFromString(d.Section)
	if err != nil {
		return err
	}
	if !SupportsSubSections(kind) {
		return fmt.Errorf("%w: section %s does not support sub-sections", ErrFormatUnsupported, kind)
	}
	sec := c.FindSection(kind, d.IndexName)
	if sec == nil {
		return fmt.Errorf("%w: %s[%s] does not exist", ErrMissingSection, d.Section, d.IndexName)
	}
	if !sec.SupportsSubSection(d.SubSection) {
		return fmt.Errorf("%w: section %s does not support the sub-section %q", ErrFormatUnsupported, kind, d.SubSection)
	}
	if !sec.SubSectionExists(d.SubSection) {
		return fmt.Errorf("%w: section %s sub-section %q", ErrMissingSection, kind, d.SubSection)
	}
	f, err := os.Create(d.File)
	if err != nil {
		return fmt.Errorf("axlf: unable to open %q for writing: %w", d.File, err)
	}
	defer func() { _ = f.Close() }()
	if err := sec.DumpSubSection(f, d.SubSection, d.Format); err != nil {
		return err
	}
	c.log.Info("sub-section dumped", "section", kind.String(), "subsection", d.SubSection, "file", d.File)
	return nil
}

// DumpSections writes every JSON-capable section payload into one document.
func (c *Container) DumpSections(d Descriptor) error {
	if d.Section != "" {
		return fmt.Errorf("%w: section given for a wildcard JSON dump is not empty", ErrBadDescriptor)
	}
	if d.Format != FTJSON {
		return fmt.Errorf("%w: expecting JSON format type, got %s", ErrFormatUnsupported, d.Format)
	}
	var entries []jsonEntry
	for _, sec := range c.sections {
		payload, err := sec.GetPayload()
		if err != nil {
			return err
		}
		if payload == nil {
			continue
		}
		node, err := extractNode(payload, sec.Kind().JSONKey())
		if err != nil {
			return err
		}
		entries = append(entries, jsonEntry{Key: sec.Kind().JSONKey(), Value: node})
	}
	doc, err := marshalOrdered(entries)
	if err != nil {
		return err
	}
	f, err := os.Create(d.File)
	if err != nil {
		return fmt.Errorf("axlf: unable to open %q for writing: %w", d.File, err)
	}
	defer func() { _ = f.Close() }()
	if err := prettyJSON(f, doc); err != nil {
		return err
	}
	c.log.Info("sections dumped", "format", d.Format.String(), "file", d.File)
	return nil
}

// updateHeaderFromSection propagates build metadata into the header when
// the canonical build-metadata kind is (re)loaded.
func (c *Container) updateHeaderFromSection(sec Section) error {
	if sec.Kind() != KindBuildMetadata {
		return nil
	}
	payload, err := sec.GetPayload()
	if err != nil {
		return err
	}
	if payload == nil {
		return nil
	}
	node, err := extractNode(payload, KindBuildMetadata.JSONKey())
	if err != nil {
		return err
	}
	var meta struct {
		DSA struct {
			FeatureRoms []featureRom `json:"feature_roms"`
		} `json:"dsa"`
	}
	if err := json.Unmarshal(node, &meta); err != nil {
		return fmt.Errorf("axlf: section %s payload: %w", sec.Kind(), err)
	}
	var rom featureRom
	if len(meta.DSA.FeatureRoms) > 0 {
		rom = meta.DSA.FeatureRoms[0]
	}

	// Every field is parsed before any header mutation.
	ts := rom.TimeSinceEpoch
	if ts == "" {
		// Pre-rename metadata emitted by older build flows.
		ts = rom.TimeEpoch
	}
	var epoch uint64
	if ts != "" {
		v, err := parseUint64String(ts, false)
		if err != nil {
			return fmt.Errorf("axlf: build metadata timestamp: %w", err)
		}
		epoch = v
	}

	romUUID := rom.UUID
	if romUUID == "" {
		romUUID = strings.Repeat("0", 32)
	}
	var uuid [UUIDBytes]byte
	if err := hexStringToFixed(uuid[:], romUUID); err != nil {
		return fmt.Errorf("axlf: build metadata ROM UUID: %w", err)
	}

	if ts != "" {
		c.Header.FeatureRomTimeStamp = epoch
	}
	c.Header.ROMUUID = uuid
	vbnv := rom.VBNVName
	if vbnv == "" {
		vbnv = rom.VBNVNameOld
	}
	if vbnv != "" {
		setFixed(c.Header.PlatformVBNV[:], vbnv)
	}
	return nil
}

type featureRom struct {
	TimeSinceEpoch string `json:"timeSinceEpoch"`
	TimeEpoch      string `json:"time_epoch"`
	UUID           string `json:"uuid"`
	VBNVName       string `json:"vbnvName"`
	VBNVNameOld    string `json:"vbnv_name"`
}

func baseStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// jsonEntry is one ordered top-level key of a JSON object document.
type jsonEntry struct {
	Key   string
	Value json.RawMessage
}

// readOrderedJSONFile decodes the top-level object of a JSON file while
// preserving key order, which map-based decoding would lose.
func readOrderedJSONFile(path string) ([]jsonEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("axlf: unable to open %q for reading: %w", path, err)
	}
	entries, err := readOrderedJSON(data)
	if err != nil {
		return nil, fmt.Errorf("axlf: parsing %q: %w", path, err)
	}
	return entries, nil
}

func readOrderedJSON(data []byte) ([]jsonEntry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("invalid JSON: expected a top-level object")
	}
	var entries []jsonEntry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("invalid JSON: non-string object key")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("invalid JSON value for key %q: %w", key, err)
		}
		entries = append(entries, jsonEntry{Key: key, Value: raw})
	}
	return entries, nil
}

// marshalOrdered builds a compact JSON object preserving entry order.
func marshalOrdered(entries []jsonEntry) (json.RawMessage, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyEnc, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyEnc)
		buf.WriteByte(':')
		// Compact must target an empty buffer; concatenation happens after.
		var compacted bytes.Buffer
		if err := json.Compact(&compacted, e.Value); err != nil {
			return nil, err
		}
		buf.Write(compacted.Bytes())
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
