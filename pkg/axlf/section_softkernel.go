package axlf

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	json "github.com/goccy/go-json"
)

// Sub-section names of SOFT_KERNEL.
const (
	SubSectionObj      = "OBJ"
	SubSectionMetadata = "METADATA"
)

const softKernelMetadataKey = "soft_kernel_metadata"

// softKernelSection pairs a loadable shared object with its JSON descriptor
// in one logical section. Multiple instances are distinguished by the
// section index name (the kernel's symbolic name). Binary layout:
//
//	[0] uint32 objSize
//	[4] uint32 metadataSize
//	[8] obj bytes, then metadata bytes
type softKernelSection struct {
	baseSection
	obj      []byte
	metadata []byte
}

func newSoftKernelSection(kind SectionKind, indexName string) Section {
	return &softKernelSection{baseSection: baseSection{kind: kind, indexName: indexName}}
}

func (s *softKernelSection) rebuild() {
	if len(s.obj) == 0 && len(s.metadata) == 0 {
		s.buf = nil
		return
	}
	buf := make([]byte, 8+len(s.obj)+len(s.metadata))
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(s.obj)))
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(s.metadata)))
	copy(buf[8:], s.obj)
	copy(buf[8+len(s.obj):], s.metadata)
	s.buf = buf
}

func (s *softKernelSection) ReadData(image []byte, hdr SectionHeader) error {
	if err := s.baseSection.ReadData(image, hdr); err != nil {
		return err
	}
	if len(s.buf) == 0 {
		return nil
	}
	if len(s.buf) < 8 {
		return fmt.Errorf("%w: %s payload shorter than its size fields", ErrCorruptImage, s.kind)
	}
	objSize := binary.LittleEndian.Uint32(s.buf[0:])
	mdSize := binary.LittleEndian.Uint32(s.buf[4:])
	if uint64(8)+uint64(objSize)+uint64(mdSize) != uint64(len(s.buf)) {
		return fmt.Errorf("%w: %s sub-payload sizes (%d + %d) do not match payload size %d",
			ErrCorruptImage, s.kind, objSize, mdSize, len(s.buf))
	}
	s.obj = s.buf[8 : 8+objSize]
	s.metadata = s.buf[8+objSize:]
	return nil
}

func (s *softKernelSection) Purge() {
	s.buf = nil
	s.obj = nil
	s.metadata = nil
}

func (s *softKernelSection) SupportsSubSection(sub string) bool {
	switch strings.ToUpper(sub) {
	case SubSectionObj, SubSectionMetadata:
		return true
	}
	return false
}

func (s *softKernelSection) SubSectionExists(sub string) bool {
	switch strings.ToUpper(sub) {
	case SubSectionObj:
		return len(s.obj) > 0
	case SubSectionMetadata:
		return len(s.metadata) > 0
	}
	return false
}

func (s *softKernelSection) ReadSubPayload(r io.Reader, sub string, ft FormatType) error {
	switch strings.ToUpper(sub) {
	case SubSectionObj:
		if ft != FTRaw {
			return fmt.Errorf("%w: %s sub-section %s only reads RAW payloads", ErrFormatUnsupported, s.kind, SubSectionObj)
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("axlf: reading %s %s payload: %w", s.kind, SubSectionObj, err)
		}
		s.obj = data
	case SubSectionMetadata:
		if ft != FTJSON {
			return fmt.Errorf("%w: %s sub-section %s only reads JSON payloads", ErrFormatUnsupported, s.kind, SubSectionMetadata)
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("axlf: reading %s %s payload: %w", s.kind, SubSectionMetadata, err)
		}
		node, err := extractNode(data, softKernelMetadataKey)
		if err != nil {
			return fmt.Errorf("axlf: section %s: %w", s.kind, err)
		}
		if isEmptyNode(node) {
			return fmt.Errorf("axlf: section %s: metadata is missing the %q node", s.kind, softKernelMetadataKey)
		}
		wrapped, err := wrapNode(softKernelMetadataKey, node)
		if err != nil {
			return fmt.Errorf("axlf: section %s: %w", s.kind, err)
		}
		s.metadata = wrapped
	default:
		return fmt.Errorf("%w: %s has no sub-section %q", ErrFormatUnsupported, s.kind, sub)
	}
	s.rebuild()
	return nil
}

func (s *softKernelSection) DumpSubSection(w io.Writer, sub string, ft FormatType) error {
	switch strings.ToUpper(sub) {
	case SubSectionObj:
		if ft != FTRaw {
			return fmt.Errorf("%w: %s sub-section %s only dumps RAW", ErrFormatUnsupported, s.kind, SubSectionObj)
		}
		return writeFull(w, s.obj)
	case SubSectionMetadata:
		if ft != FTJSON {
			return fmt.Errorf("%w: %s sub-section %s only dumps JSON", ErrFormatUnsupported, s.kind, SubSectionMetadata)
		}
		return prettyJSON(w, json.RawMessage(s.metadata))
	default:
		return fmt.Errorf("%w: %s has no sub-section %q", ErrFormatUnsupported, s.kind, sub)
	}
}

// SoftKernelMetadata is the descriptor stored in the METADATA sub-section.
type SoftKernelMetadata struct {
	Name         string `json:"mpo_name"`
	Version      string `json:"mpo_version"`
	MD5          string `json:"mpo_md5_value"`
	SymbolName   string `json:"mpo_symbol_name"`
	NumInstances uint32 `json:"m_num_instances"`
}
