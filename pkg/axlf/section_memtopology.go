package axlf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
)

// MEM_TOPOLOGY: a counted array of memory bank records. Binary layout,
// little-endian:
//
//	[0] int32 count, 4 bytes padding
//	[8] count * memDataRaw (40 bytes each)
type memTopologySection struct {
	baseSection
}

func newMemTopologySection(kind SectionKind, indexName string) Section {
	return &memTopologySection{baseSection{kind: kind, indexName: indexName}}
}

type memDataRaw struct {
	Type        uint8
	Used        uint8
	_           [6]byte
	Size        uint64
	BaseAddress uint64
	Tag         [16]byte
}

const memDataRawSize = 40

var memTypeNames = map[uint8]string{
	0:  "MEM_DDR3",
	1:  "MEM_DDR4",
	2:  "MEM_DRAM",
	3:  "MEM_STREAMING",
	6:  "MEM_HBM",
	7:  "MEM_BRAM",
	8:  "MEM_URAM",
	10: "MEM_HOST",
}

var memTypeValues = func() map[string]uint8 {
	out := make(map[string]uint8, len(memTypeNames))
	for v, n := range memTypeNames {
		out[n] = v
	}
	return out
}()

type memDataJSON struct {
	Type        string `json:"m_type"`
	Used        string `json:"m_used"`
	SizeKB      string `json:"m_sizeKB"`
	BaseAddress string `json:"m_base_address"`
	Tag         string `json:"m_tag"`
}

type memTopologyJSON struct {
	MemData []memDataJSON `json:"m_mem_data"`
}

func (s *memTopologySection) ReadPayload(r io.Reader, ft FormatType) error {
	if ft != FTJSON {
		return fmt.Errorf("%w: %s cannot read %s payloads", ErrFormatUnsupported, s.kind, ft)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("axlf: reading %s payload: %w", s.kind, err)
	}
	return s.ReadJSONImage(data)
}

func (s *memTopologySection) ReadJSONImage(image json.RawMessage) error {
	node, err := extractNode(image, s.kind.JSONKey())
	if err != nil {
		return fmt.Errorf("axlf: section %s: %w", s.kind, err)
	}
	if isEmptyNode(node) {
		s.buf = nil
		return nil
	}
	var topo memTopologyJSON
	if err := json.Unmarshal(node, &topo); err != nil {
		return fmt.Errorf("axlf: section %s: %w", s.kind, err)
	}
	return s.encode(topo)
}

func (s *memTopologySection) encode(topo memTopologyJSON) error {
	var out bytes.Buffer
	if err := binary.Write(&out, binary.LittleEndian, int32(len(topo.MemData))); err != nil {
		return err
	}
	out.Write(make([]byte, 4))
	for i, m := range topo.MemData {
		var raw memDataRaw
		typ, ok := memTypeValues[m.Type]
		if !ok {
			return fmt.Errorf("axlf: %s entry %d: unknown memory type %q", s.kind, i, m.Type)
		}
		raw.Type = typ
		switch m.Used {
		case "1", "true":
			raw.Used = 1
		case "", "0", "false":
			raw.Used = 0
		default:
			return fmt.Errorf("axlf: %s entry %d: invalid m_used %q", s.kind, i, m.Used)
		}
		if m.SizeKB != "" {
			size, err := parseUint64String(m.SizeKB, false)
			if err != nil {
				return fmt.Errorf("axlf: %s entry %d: %w", s.kind, i, err)
			}
			raw.Size = size
		}
		if m.BaseAddress != "" {
			addr, err := parseUint64String(m.BaseAddress, false)
			if err != nil {
				return fmt.Errorf("axlf: %s entry %d: %w", s.kind, i, err)
			}
			raw.BaseAddress = addr
		}
		setFixed(raw.Tag[:], m.Tag)
		if err := binary.Write(&out, binary.LittleEndian, &raw); err != nil {
			return err
		}
	}
	s.buf = out.Bytes()
	return nil
}

func (s *memTopologySection) decode() (memTopologyJSON, error) {
	var topo memTopologyJSON
	if len(s.buf) == 0 {
		return topo, nil
	}
	if len(s.buf) < 8 {
		return topo, fmt.Errorf("%w: %s payload shorter than its count field", ErrCorruptImage, s.kind)
	}
	count := int32(binary.LittleEndian.Uint32(s.buf))
	if count < 0 || len(s.buf) != 8+int(count)*memDataRawSize {
		return topo, fmt.Errorf("%w: %s count %d does not match payload size %d", ErrCorruptImage, s.kind, count, len(s.buf))
	}
	for i := 0; i < int(count); i++ {
		var raw memDataRaw
		if _, err := binary.Decode(s.buf[8+i*memDataRawSize:], binary.LittleEndian, &raw); err != nil {
			return topo, fmt.Errorf("%w: %s entry %d: %v", ErrCorruptImage, s.kind, i, err)
		}
		name, ok := memTypeNames[raw.Type]
		if !ok {
			return topo, fmt.Errorf("%w: %s entry %d: unknown memory type %d", ErrCorruptImage, s.kind, i, raw.Type)
		}
		topo.MemData = append(topo.MemData, memDataJSON{
			Type:        name,
			Used:        fmt.Sprintf("%d", raw.Used),
			SizeKB:      fmt.Sprintf("0x%x", raw.Size),
			BaseAddress: fmt.Sprintf("0x%x", raw.BaseAddress),
			Tag:         trimFixed(raw.Tag[:]),
		})
	}
	return topo, nil
}

func (s *memTopologySection) GetPayload() (json.RawMessage, error) {
	if len(s.buf) == 0 {
		return nil, nil
	}
	topo, err := s.decode()
	if err != nil {
		return nil, err
	}
	node, err := json.Marshal(topo)
	if err != nil {
		return nil, err
	}
	return wrapNode(s.kind.JSONKey(), node)
}

func (s *memTopologySection) AppendImage(subtree json.RawMessage) error {
	topo, err := s.decode()
	if err != nil {
		return err
	}
	var incoming memTopologyJSON
	if err := json.Unmarshal(subtree, &incoming); err != nil {
		return fmt.Errorf("axlf: section %s: %w", s.kind, err)
	}
	topo.MemData = append(topo.MemData, incoming.MemData...)
	return s.encode(topo)
}

func (s *memTopologySection) Dump(w io.Writer, ft FormatType) error {
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
