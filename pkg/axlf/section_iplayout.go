package axlf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
)

// IP_LAYOUT: a counted array of IP records. Binary layout, little-endian:
//
//	[0] int32 count, 4 bytes padding
//	[8] count * ipDataRaw (80 bytes each)
//
// The JSON image encodes the type as an enum string and addresses as hex
// strings; a base address of all-ones means "not_used".
type ipLayoutSection struct {
	baseSection
}

func newIPLayoutSection(kind SectionKind, indexName string) Section {
	return &ipLayoutSection{baseSection{kind: kind, indexName: indexName}}
}

type ipDataRaw struct {
	Type        uint32
	Properties  uint32
	BaseAddress uint64
	Name        [64]byte
}

const ipDataRawSize = 80

const ipBaseAddressUnused = ^uint64(0)

var ipTypeNames = map[uint32]string{
	1: "IP_KERNEL",
	2: "IP_DNASC",
	3: "IP_DDR4_CONTROLLER",
	4: "IP_MEM_DDR4",
	5: "IP_MEM_HBM",
}

var ipTypeValues = invertEnum(ipTypeNames)

type ipDataJSON struct {
	Type        string `json:"m_type"`
	Properties  string `json:"properties"`
	BaseAddress string `json:"m_base_address"`
	Name        string `json:"m_name"`
}

type ipLayoutJSON struct {
	IPData []ipDataJSON `json:"m_ip_data"`
}

func (s *ipLayoutSection) ReadPayload(r io.Reader, ft FormatType) error {
	if ft != FTJSON {
		return fmt.Errorf("%w: %s cannot read %s payloads", ErrFormatUnsupported, s.kind, ft)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("axlf: reading %s payload: %w", s.kind, err)
	}
	return s.ReadJSONImage(data)
}

func (s *ipLayoutSection) ReadJSONImage(image json.RawMessage) error {
	node, err := extractNode(image, s.kind.JSONKey())
	if err != nil {
		return fmt.Errorf("axlf: section %s: %w", s.kind, err)
	}
	if isEmptyNode(node) {
		s.buf = nil
		return nil
	}
	var layout ipLayoutJSON
	if err := json.Unmarshal(node, &layout); err != nil {
		return fmt.Errorf("axlf: section %s: %w", s.kind, err)
	}
	return s.encode(layout)
}

func (s *ipLayoutSection) encode(layout ipLayoutJSON) error {
	var out bytes.Buffer
	if err := binary.Write(&out, binary.LittleEndian, int32(len(layout.IPData))); err != nil {
		return err
	}
	out.Write(make([]byte, 4))
	for i, ip := range layout.IPData {
		var raw ipDataRaw
		typ, ok := ipTypeValues[ip.Type]
		if !ok {
			return fmt.Errorf("axlf: %s entry %d: unknown IP type %q", s.kind, i, ip.Type)
		}
		raw.Type = typ
		if ip.Properties != "" {
			props, err := parseUint64String(ip.Properties, false)
			if err != nil {
				return fmt.Errorf("axlf: %s entry %d: %w", s.kind, i, err)
			}
			raw.Properties = uint32(props)
		}
		if ip.BaseAddress == "" || ip.BaseAddress == "not_used" {
			raw.BaseAddress = ipBaseAddressUnused
		} else {
			addr, err := parseUint64String(ip.BaseAddress, false)
			if err != nil {
				return fmt.Errorf("axlf: %s entry %d: %w", s.kind, i, err)
			}
			raw.BaseAddress = addr
		}
		setFixed(raw.Name[:], ip.Name)
		if err := binary.Write(&out, binary.LittleEndian, &raw); err != nil {
			return err
		}
	}
	s.buf = out.Bytes()
	return nil
}

func (s *ipLayoutSection) decode() (ipLayoutJSON, error) {
	var layout ipLayoutJSON
	if len(s.buf) == 0 {
		return layout, nil
	}
	if len(s.buf) < 8 {
		return layout, fmt.Errorf("%w: %s payload shorter than its count field", ErrCorruptImage, s.kind)
	}
	count := int32(binary.LittleEndian.Uint32(s.buf))
	if count < 0 || len(s.buf) != 8+int(count)*ipDataRawSize {
		return layout, fmt.Errorf("%w: %s count %d does not match payload size %d", ErrCorruptImage, s.kind, count, len(s.buf))
	}
	for i := 0; i < int(count); i++ {
		var raw ipDataRaw
		if _, err := binary.Decode(s.buf[8+i*ipDataRawSize:], binary.LittleEndian, &raw); err != nil {
			return layout, fmt.Errorf("%w: %s entry %d: %v", ErrCorruptImage, s.kind, i, err)
		}
		name, ok := ipTypeNames[raw.Type]
		if !ok {
			return layout, fmt.Errorf("%w: %s entry %d: unknown IP type %d", ErrCorruptImage, s.kind, i, raw.Type)
		}
		ip := ipDataJSON{
			Type:       name,
			Properties: fmt.Sprintf("0x%x", raw.Properties),
			Name:       trimFixed(raw.Name[:]),
		}
		if raw.BaseAddress == ipBaseAddressUnused {
			ip.BaseAddress = "not_used"
		} else {
			ip.BaseAddress = fmt.Sprintf("0x%x", raw.BaseAddress)
		}
		layout.IPData = append(layout.IPData, ip)
	}
	return layout, nil
}

func (s *ipLayoutSection) GetPayload() (json.RawMessage, error) {
	if len(s.buf) == 0 {
		return nil, nil
	}
	layout, err := s.decode()
	if err != nil {
		return nil, err
	}
	node, err := json.Marshal(layout)
	if err != nil {
		return nil, err
	}
	return wrapNode(s.kind.JSONKey(), node)
}

func (s *ipLayoutSection) AppendImage(subtree json.RawMessage) error {
	layout, err := s.decode()
	if err != nil {
		return err
	}
	var incoming ipLayoutJSON
	if err := json.Unmarshal(subtree, &incoming); err != nil {
		return fmt.Errorf("axlf: section %s: %w", s.kind, err)
	}
	layout.IPData = append(layout.IPData, incoming.IPData...)
	return s.encode(layout)
}

func (s *ipLayoutSection) Dump(w io.Writer, ft FormatType) error {
	switch ft {
	case FTRaw:
		return writeFull(w, s.buf)
	case FTJSON:
		payload, err := s.GetPayload()
		if err != nil {
			return err
		}
		return prettyJSON(w, payload)
	default:
		return fmt.Errorf("%w: %s cannot dump as %s", ErrFormatUnsupported, s.kind, ft)
	}
}

func invertEnum(names map[uint32]string) map[string]uint32 {
	out := make(map[string]uint32, len(names))
	for v, n := range names {
		out[n] = v
	}
	return out
}
