package axlf

import (
	"fmt"
	"io"
)

// rawSection is the variant for kinds whose payload is an opaque byte blob:
// bitstreams, embedded metadata text, debug data, and freeform user
// metadata. It has no JSON image.
type rawSection struct {
	baseSection
}

func newRawSection(kind SectionKind, indexName string) Section {
	return &rawSection{baseSection{kind: kind, indexName: indexName}}
}

func (s *rawSection) ReadPayload(r io.Reader, ft FormatType) error {
	if !supportsAddFormat(s.kind, ft) {
		return fmt.Errorf("%w: %s cannot read %s payloads", ErrFormatUnsupported, s.kind, ft)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("axlf: reading %s payload: %w", s.kind, err)
	}
	s.buf = data
	return nil
}

func (s *rawSection) Dump(w io.Writer, ft FormatType) error {
	if !supportsDumpFormat(s.kind, ft) {
		return fmt.Errorf("%w: %s cannot dump as %s", ErrFormatUnsupported, s.kind, ft)
	}
	// TXT and HTML dumps of text-bearing kinds emit the stored bytes
	// unchanged; the payload already is its own textual representation.
	return writeFull(w, s.buf)
}
