package axlf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"

	json "github.com/goccy/go-json"
)

// CLOCK_FREQ_TOPOLOGY: a counted array of clock descriptors. Binary layout,
// little-endian:
//
//	[0] int32 count, 4 bytes padding
//	[8] count * clockFreqRaw (136 bytes each)
type clockFreqSection struct {
	baseSection
}

func newClockFreqSection(kind SectionKind, indexName string) Section {
	return &clockFreqSection{baseSection{kind: kind, indexName: indexName}}
}

type clockFreqRaw struct {
	FreqMHz uint16
	Type    uint8
	_       [5]byte
	Name    [128]byte
}

const clockFreqRawSize = 136

var clockTypeNames = map[uint8]string{
	0: "UNUSED",
	1: "DATA",
	2: "KERNEL",
	3: "SYSTEM",
}

var clockTypeValues = func() map[string]uint8 {
	out := make(map[string]uint8, len(clockTypeNames))
	for v, n := range clockTypeNames {
		out[n] = v
	}
	return out
}()

type clockFreqJSON struct {
	FreqMHz string `json:"m_freq_Mhz"`
	Type    string `json:"m_type"`
	Name    string `json:"m_name"`
}

type clockFreqTopologyJSON struct {
	Clocks []clockFreqJSON `json:"m_clock_freq"`
}

func (s *clockFreqSection) ReadPayload(r io.Reader, ft FormatType) error {
	if ft != FTJSON {
		return fmt.Errorf("%w: %s cannot read %s payloads", ErrFormatUnsupported, s.kind, ft)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("axlf: reading %s payload: %w", s.kind, err)
	}
	return s.ReadJSONImage(data)
}

func (s *clockFreqSection) ReadJSONImage(image json.RawMessage) error {
	node, err := extractNode(image, s.kind.JSONKey())
	if err != nil {
		return fmt.Errorf("axlf: section %s: %w", s.kind, err)
	}
	if isEmptyNode(node) {
		s.buf = nil
		return nil
	}
	var topo clockFreqTopologyJSON
	if err := json.Unmarshal(node, &topo); err != nil {
		return fmt.Errorf("axlf: section %s: %w", s.kind, err)
	}
	return s.encode(topo)
}

func (s *clockFreqSection) encode(topo clockFreqTopologyJSON) error {
	var out bytes.Buffer
	if err := binary.Write(&out, binary.LittleEndian, int32(len(topo.Clocks))); err != nil {
		return err
	}
	out.Write(make([]byte, 4))
	for i, c := range topo.Clocks {
		var raw clockFreqRaw
		typ, ok := clockTypeValues[c.Type]
		if !ok {
			return fmt.Errorf("axlf: %s entry %d: unknown clock type %q", s.kind, i, c.Type)
		}
		raw.Type = typ
		if c.FreqMHz != "" {
			freq, err := strconv.ParseUint(c.FreqMHz, 10, 16)
			if err != nil {
				return fmt.Errorf("axlf: %s entry %d: invalid frequency %q: %w", s.kind, i, c.FreqMHz, err)
			}
			raw.FreqMHz = uint16(freq)
		}
		setFixed(raw.Name[:], c.Name)
		if err := binary.Write(&out, binary.LittleEndian, &raw); err != nil {
			return err
		}
	}
	s.buf = out.Bytes()
	return nil
}

func (s *clockFreqSection) decode() (clockFreqTopologyJSON, error) {
	var topo clockFreqTopologyJSON
	if len(s.buf) == 0 {
		return topo, nil
	}
	if len(s.buf) < 8 {
		return topo, fmt.Errorf("%w: %s payload shorter than its count field", ErrCorruptImage, s.kind)
	}
	count := int32(binary.LittleEndian.Uint32(s.buf))
	if count < 0 || len(s.buf) != 8+int(count)*clockFreqRawSize {
		return topo, fmt.Errorf("%w: %s count %d does not match payload size %d", ErrCorruptImage, s.kind, count, len(s.buf))
	}
	for i := 0; i < int(count); i++ {
		var raw clockFreqRaw
		if _, err := binary.Decode(s.buf[8+i*clockFreqRawSize:], binary.LittleEndian, &raw); err != nil {
			return topo, fmt.Errorf("%w: %s entry %d: %v", ErrCorruptImage, s.kind, i, err)
		}
		name, ok := clockTypeNames[raw.Type]
		if !ok {
			return topo, fmt.Errorf("%w: %s entry %d: unknown clock type %d", ErrCorruptImage, s.kind, i, raw.Type)
		}
		topo.Clocks = append(topo.Clocks, clockFreqJSON{
			FreqMHz: strconv.Itoa(int(raw.FreqMHz)),
			Type:    name,
			Name:    trimFixed(raw.Name[:]),
		})
	}
	return topo, nil
}

func (s *clockFreqSection) GetPayload() (json.RawMessage, error) {
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

func (s *clockFreqSection) AppendImage(subtree json.RawMessage) error {
	topo, err := s.decode()
	if err != nil {
		return err
	}
	var incoming clockFreqTopologyJSON
	if err := json.Unmarshal(subtree, &incoming); err != nil {
		return fmt.Errorf("axlf: section %s: %w", s.kind, err)
	}
	topo.Clocks = append(topo.Clocks, incoming.Clocks...)
	return s.encode(topo)
}

func (s *clockFreqSection) Dump(w io.Writer, ft FormatType) error {
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
