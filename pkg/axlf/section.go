package axlf

import (
	"fmt"
	"io"

	json "github.com/goccy/go-json"
)

// Section is one named, kinded, sized region of the container. Concrete
// variants differ in how they translate between the raw payload buffer and
// structured (JSON) or textual representations. Sections are exclusively
// owned by their container.
type Section interface {
	Kind() SectionKind
	Name() string
	SetName(name string)
	IndexName() string
	Size() uint64

	// ReadData consumes exactly hdr.Size bytes at hdr.Offset from the
	// full image and takes the name fields from the header record.
	ReadData(image []byte, hdr SectionHeader) error

	// WriteBuffer emits the raw payload buffer as-is. Alignment is the
	// container's responsibility, not the section's.
	WriteBuffer(w io.Writer) error

	// ReadPayload parses an external file in the given format into the
	// in-memory payload. An unsupported format is a contract violation.
	ReadPayload(r io.Reader, ft FormatType) error

	// GetPayload returns the section's JSON image {"<jsonKey>": ...}.
	// It returns nil for kinds without JSON support.
	GetPayload() (json.RawMessage, error)

	// ReadJSONImage is the inverse of GetPayload: it accepts an object
	// containing the section's JSON node and rebuilds the payload buffer.
	ReadJSONImage(image json.RawMessage) error

	// AppendImage merges an external JSON subtree (the content under the
	// section's JSON key) into the current payload.
	AppendImage(subtree json.RawMessage) error

	Dump(w io.Writer, ft FormatType) error

	ReadSubPayload(r io.Reader, subSection string, ft FormatType) error
	DumpSubSection(w io.Writer, subSection string, ft FormatType) error
	SupportsSubSection(subSection string) bool
	SubSectionExists(subSection string) bool

	// Purge drops all payload buffers ahead of a reload.
	Purge()
}

// baseSection carries the state and behavior shared by every variant.
// Concrete sections embed it and override the format-specific methods.
type baseSection struct {
	kind      SectionKind
	name      string
	indexName string
	buf       []byte
}

func (s *baseSection) Kind() SectionKind { return s.kind }
func (s *baseSection) Name() string      { return s.name }
func (s *baseSection) SetName(n string)  { s.name = n }
func (s *baseSection) IndexName() string { return s.indexName }
func (s *baseSection) Size() uint64      { return uint64(len(s.buf)) }
func (s *baseSection) Purge()            { s.buf = nil }

func (s *baseSection) ReadData(image []byte, hdr SectionHeader) error {
	end := hdr.Offset + hdr.Size
	if end < hdr.Offset || end > uint64(len(image)) {
		return fmt.Errorf("%w: section %s payload [0x%x..0x%x) exceeds image size 0x%x",
			ErrCorruptImage, SectionKind(hdr.Kind), hdr.Offset, end, len(image))
	}
	s.buf = append([]byte(nil), image[hdr.Offset:end]...)
	s.name = trimFixed(hdr.Name[:])
	s.indexName = trimFixed(hdr.IndexName[:])
	return nil
}

func (s *baseSection) WriteBuffer(w io.Writer) error {
	return writeFull(w, s.buf)
}

func (s *baseSection) ReadPayload(_ io.Reader, ft FormatType) error {
	return fmt.Errorf("%w: %s cannot read %s payloads", ErrFormatUnsupported, s.kind, ft)
}

func (s *baseSection) GetPayload() (json.RawMessage, error) {
	return nil, nil
}

func (s *baseSection) ReadJSONImage(json.RawMessage) error {
	return fmt.Errorf("%w: %s has no JSON image", ErrFormatUnsupported, s.kind)
}

func (s *baseSection) AppendImage(json.RawMessage) error {
	return fmt.Errorf("%w: %s does not support appending", ErrFormatUnsupported, s.kind)
}

func (s *baseSection) Dump(_ io.Writer, ft FormatType) error {
	return fmt.Errorf("%w: %s cannot dump as %s", ErrFormatUnsupported, s.kind, ft)
}

func (s *baseSection) ReadSubPayload(_ io.Reader, sub string, _ FormatType) error {
	return fmt.Errorf("%w: %s has no sub-section %q", ErrFormatUnsupported, s.kind, sub)
}

func (s *baseSection) DumpSubSection(_ io.Writer, sub string, _ FormatType) error {
	return fmt.Errorf("%w: %s has no sub-section %q", ErrFormatUnsupported, s.kind, sub)
}

func (s *baseSection) SupportsSubSection(string) bool { return false }
func (s *baseSection) SubSectionExists(string) bool   { return false }

// headerRecord builds the on-disk section header record, minus the offset
// which the container assigns during serialization.
func headerRecord(s Section) SectionHeader {
	var sh SectionHeader
	sh.Kind = uint32(s.Kind())
	setFixed(sh.Name[:], s.Name())
	setFixed(sh.IndexName[:], s.IndexName())
	sh.Size = s.Size()
	return sh
}
