package axlf

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	json "github.com/goccy/go-json"
)

// The mirror is a JSON rendition of the header and section table appended
// after the last payload. It lets the archive be reconstructed without
// trusting the fixed header, which is how migration of images written by
// older tools works.
const (
	mirrorDataStart = "XCLBIN_MIRROR_DATA_START"
	mirrorDataEnd   = "XCLBIN_MIRROR_DATA_END"
)

// SchemaVersion identifies the mirror metadata layout.
type SchemaVersion struct {
	Major uint32
	Minor uint32
	Patch uint32
}

// All mirror fields are strings. Numeric values larger than 2^53 do not
// survive a double-typed JSON number, so everything is string-encoded on
// the way out and parsed back on the way in.
type mirrorSchemaVersion struct {
	Major string `json:"major"`
	Minor string `json:"minor"`
	Patch string `json:"patch"`
}

type mirrorHeader struct {
	Magic               string `json:"Magic"`
	SignatureLength     string `json:"SignatureLength,omitempty"`
	KeyBlock            string `json:"KeyBlock"`
	UniqueID            string `json:"UniqueID"`
	TimeStamp           string `json:"TimeStamp"`
	FeatureRomTimeStamp string `json:"FeatureRomTimeStamp"`
	Version             string `json:"Version"`
	Mode                string `json:"Mode"`
	FeatureRomUUID      string `json:"FeatureRomUUID"`
	PlatformVBNV        string `json:"PlatformVBNV"`
	XclBinUUID          string `json:"XclBinUUID"`
	DebugBin            string `json:"DebugBin"`
	ActionMask          string `json:"ActionMask"`
}

type mirrorSectionHeader struct {
	Kind      string          `json:"Kind"`
	Name      string          `json:"Name"`
	IndexName string          `json:"IndexName,omitempty"`
	Offset    string          `json:"Offset"`
	Size      string          `json:"Size"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type mirrorDocument struct {
	SchemaVersion  mirrorSchemaVersion   `json:"schema_version"`
	Header         mirrorHeader          `json:"header"`
	SectionHeaders []mirrorSectionHeader `json:"section_headers"`
}

// writeMirror appends the sentinel-bracketed mirror metadata and returns
// the number of bytes written.
func (c *Container) writeMirror(w io.Writer, records []SectionHeader) (uint64, error) {
	doc := c.buildMirror(records)
	compact, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("axlf: encoding mirror metadata: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(mirrorDataStart)
	if err := prettyJSON(&buf, compact); err != nil {
		return 0, err
	}
	buf.WriteString(mirrorDataEnd)
	if err := writeFull(w, buf.Bytes()); err != nil {
		return 0, fmt.Errorf("axlf: writing mirror metadata: %w", err)
	}
	c.log.Debug("wrote mirror metadata", "bytes", buf.Len())
	return uint64(buf.Len()), nil
}

func (c *Container) buildMirror(records []SectionHeader) mirrorDocument {
	h := c.Header
	doc := mirrorDocument{
		SchemaVersion: mirrorSchemaVersion{
			Major: strconv.FormatUint(uint64(c.schema.Major), 10),
			Minor: strconv.FormatUint(uint64(c.schema.Minor), 10),
			Patch: strconv.FormatUint(uint64(c.schema.Patch), 10),
		},
		Header: mirrorHeader{
			Magic:               h.MagicString(),
			KeyBlock:            fixedToHex(h.KeyBlock[:]),
			UniqueID:            fmt.Sprintf("0x%x", h.UniqueID),
			TimeStamp:           strconv.FormatUint(h.TimeStamp, 10),
			FeatureRomTimeStamp: strconv.FormatUint(h.FeatureRomTimeStamp, 10),
			Version:             h.VersionString(),
			Mode:                strconv.FormatUint(uint64(h.Mode), 10),
			FeatureRomUUID:      fixedToHex(h.ROMUUID[:]),
			PlatformVBNV:        h.PlatformName(),
			XclBinUUID:          fixedToHex(h.ImageUUID[:]),
			DebugBin:            h.DebugBinName(),
			ActionMask:          fmt.Sprintf("0x%x", h.ActionMask),
		},
	}
	if h.SignatureLength != -1 {
		doc.Header.SignatureLength = strconv.FormatInt(int64(h.SignatureLength), 10)
	}
	for i, rec := range records {
		sec := c.sections[i]
		msh := mirrorSectionHeader{
			Kind:      strconv.FormatUint(uint64(rec.Kind), 10),
			Name:      sec.Name(),
			IndexName: sec.IndexName(),
			Offset:    fmt.Sprintf("0x%x", rec.Offset),
			Size:      fmt.Sprintf("0x%x", rec.Size),
		}
		if supportsJSONMirror(sec.Kind()) {
			if payload, err := sec.GetPayload(); err == nil && payload != nil {
				msh.Payload = payload
			}
		}
		doc.SectionHeaders = append(doc.SectionHeaders, msh)
	}
	return doc
}

// readMirrorImage rebuilds the container from the mirror metadata instead
// of the fixed header. Section payloads are still read from the binary
// image at the offsets the mirror records.
func (c *Container) readMirrorImage(data []byte) error {
	start := bytes.Index(data, []byte(mirrorDataStart))
	if start < 0 {
		return fmt.Errorf("%w: no %q marker found", ErrMissingMirror, mirrorDataStart)
	}
	body := data[start+len(mirrorDataStart):]
	end := bytes.Index(body, []byte(mirrorDataEnd))
	if end < 0 {
		return fmt.Errorf("%w: no %q marker after the start marker", ErrMalformedMirror, mirrorDataEnd)
	}

	var doc mirrorDocument
	if err := json.Unmarshal(body[:end], &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMirror, err)
	}

	hdr, err := headerFromMirror(doc.Header)
	if err != nil {
		return err
	}
	schema, err := schemaFromMirror(doc.SchemaVersion)
	if err != nil {
		return err
	}
	c.Header = hdr
	c.schema = schema
	c.sections = nil

	for i, msh := range doc.SectionHeaders {
		sh, err := sectionHeaderFromMirror(msh)
		if err != nil {
			return fmt.Errorf("%w: section header %d: %v", ErrMalformedMirror, i, err)
		}
		sec, err := NewSection(SectionKind(sh.Kind), msh.IndexName)
		if err != nil {
			return fmt.Errorf("section header %d: %w", i, err)
		}
		if err := sec.ReadData(data, sh); err != nil {
			return err
		}
		c.sections = append(c.sections, sec)
	}
	c.Header.NumSections = uint32(len(c.sections))
	c.log.Info("image migrated from mirror metadata", "sections", len(c.sections))
	return nil
}

func headerFromMirror(m mirrorHeader) (Header, error) {
	var h Header
	if m.Magic != Magic {
		return h, fmt.Errorf("%w: mirror header start key is %q", ErrInvalidMagic, m.Magic)
	}
	setFixed(h.Magic[:], m.Magic)

	h.SignatureLength = -1
	if m.SignatureLength != "" {
		v, err := strconv.ParseInt(m.SignatureLength, 10, 32)
		if err != nil {
			return h, fmt.Errorf("%w: SignatureLength: %v", ErrMalformedMirror, err)
		}
		h.SignatureLength = int32(v)
	}
	for i := range h.Reserved {
		h.Reserved[i] = 0xFF
	}
	if err := hexStringToFixed(h.KeyBlock[:], m.KeyBlock); err != nil {
		return h, fmt.Errorf("%w: KeyBlock: %v", ErrMalformedMirror, err)
	}

	var err error
	if h.UniqueID, err = parseUint64String(m.UniqueID, true); err != nil {
		return h, fmt.Errorf("%w: UniqueID: %v", ErrMalformedMirror, err)
	}
	if h.TimeStamp, err = parseUint64String(m.TimeStamp, false); err != nil {
		return h, fmt.Errorf("%w: TimeStamp: %v", ErrMalformedMirror, err)
	}
	if h.FeatureRomTimeStamp, err = parseUint64String(m.FeatureRomTimeStamp, false); err != nil {
		return h, fmt.Errorf("%w: FeatureRomTimeStamp: %v", ErrMalformedMirror, err)
	}

	if h.VersionMajor, h.VersionMinor, h.VersionPatch, err = ParseVersion(m.Version); err != nil {
		return h, fmt.Errorf("%w: Version: %v", ErrMalformedMirror, err)
	}

	mode, err := strconv.ParseUint(m.Mode, 10, 16)
	if err != nil {
		return h, fmt.Errorf("%w: Mode: %v", ErrMalformedMirror, err)
	}
	h.Mode = uint16(mode)

	if err := hexStringToFixed(h.ROMUUID[:], m.FeatureRomUUID); err != nil {
		return h, fmt.Errorf("%w: FeatureRomUUID: %v", ErrMalformedMirror, err)
	}
	if err := hexStringToFixed(h.ImageUUID[:], m.XclBinUUID); err != nil {
		return h, fmt.Errorf("%w: XclBinUUID: %v", ErrMalformedMirror, err)
	}
	setFixed(h.PlatformVBNV[:], m.PlatformVBNV)
	setFixed(h.DebugBin[:], m.DebugBin)

	if m.ActionMask != "" {
		mask, err := parseUint64String(m.ActionMask, false)
		if err != nil {
			return h, fmt.Errorf("%w: ActionMask: %v", ErrMalformedMirror, err)
		}
		h.ActionMask = uint32(mask)
	}
	return h, nil
}

func schemaFromMirror(m mirrorSchemaVersion) (SchemaVersion, error) {
	var s SchemaVersion
	for _, f := range []struct {
		name string
		in   string
		out  *uint32
	}{
		{"major", m.Major, &s.Major},
		{"minor", m.Minor, &s.Minor},
		{"patch", m.Patch, &s.Patch},
	} {
		v, err := strconv.ParseUint(f.in, 10, 32)
		if err != nil {
			return s, fmt.Errorf("%w: schema_version %s: %v", ErrMalformedMirror, f.name, err)
		}
		*f.out = uint32(v)
	}
	return s, nil
}

func sectionHeaderFromMirror(m mirrorSectionHeader) (SectionHeader, error) {
	var sh SectionHeader
	kind, err := strconv.ParseUint(m.Kind, 10, 32)
	if err != nil {
		return sh, fmt.Errorf("Kind: %v", err)
	}
	sh.Kind = uint32(kind)
	setFixed(sh.Name[:], m.Name)
	setFixed(sh.IndexName[:], m.IndexName)
	if sh.Offset, err = parseUint64String(m.Offset, false); err != nil {
		return sh, fmt.Errorf("Offset: %v", err)
	}
	if sh.Size, err = parseUint64String(m.Size, false); err != nil {
		return sh, fmt.Errorf("Size: %v", err)
	}
	return sh, nil
}
