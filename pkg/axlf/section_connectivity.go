package axlf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"

	json "github.com/goccy/go-json"
)

// CONNECTIVITY: a counted array of argument-to-memory wiring triples.
// Binary layout, little-endian:
//
//	[0] int32 count
//	[4] count * connectionRaw (12 bytes each)
type connectivitySection struct {
	baseSection
}

func newConnectivitySection(kind SectionKind, indexName string) Section {
	return &connectivitySection{baseSection{kind: kind, indexName: indexName}}
}

type connectionRaw struct {
	ArgIndex      int32
	IPLayoutIndex int32
	MemDataIndex  int32
}

const connectionRawSize = 12

type connectionJSON struct {
	ArgIndex      string `json:"arg_index"`
	IPLayoutIndex string `json:"m_ip_layout_index"`
	MemDataIndex  string `json:"mem_data_index"`
}

type connectivityJSON struct {
	Connections []connectionJSON `json:"m_connection"`
}

func (s *connectivitySection) ReadPayload(r io.Reader, ft FormatType) error {
	if ft != FTJSON {
		return fmt.Errorf("%w: %s cannot read %s payloads", ErrFormatUnsupported, s.kind, ft)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("axlf: reading %s payload: %w", s.kind, err)
	}
	return s.ReadJSONImage(data)
}

func (s *connectivitySection) ReadJSONImage(image json.RawMessage) error {
	node, err := extractNode(image, s.kind.JSONKey())
	if err != nil {
		return fmt.Errorf("axlf: section %s: %w", s.kind, err)
	}
	if isEmptyNode(node) {
		s.buf = nil
		return nil
	}
	var conn connectivityJSON
	if err := json.Unmarshal(node, &conn); err != nil {
		return fmt.Errorf("axlf: section %s: %w", s.kind, err)
	}
	return s.encode(conn)
}

func (s *connectivitySection) encode(conn connectivityJSON) error {
	var out bytes.Buffer
	if err := binary.Write(&out, binary.LittleEndian, int32(len(conn.Connections))); err != nil {
		return err
	}
	for i, c := range conn.Connections {
		var raw connectionRaw
		var err error
		if raw.ArgIndex, err = parseInt32Field(c.ArgIndex); err != nil {
			return fmt.Errorf("axlf: %s entry %d arg_index: %w", s.kind, i, err)
		}
		if raw.IPLayoutIndex, err = parseInt32Field(c.IPLayoutIndex); err != nil {
			return fmt.Errorf("axlf: %s entry %d m_ip_layout_index: %w", s.kind, i, err)
		}
		if raw.MemDataIndex, err = parseInt32Field(c.MemDataIndex); err != nil {
			return fmt.Errorf("axlf: %s entry %d mem_data_index: %w", s.kind, i, err)
		}
		if err := binary.Write(&out, binary.LittleEndian, &raw); err != nil {
			return err
		}
	}
	s.buf = out.Bytes()
	return nil
}

func (s *connectivitySection) decode() (connectivityJSON, error) {
	var conn connectivityJSON
	if len(s.buf) == 0 {
		return conn, nil
	}
	if len(s.buf) < 4 {
		return conn, fmt.Errorf("%w: %s payload shorter than its count field", ErrCorruptImage, s.kind)
	}
	count := int32(binary.LittleEndian.Uint32(s.buf))
	if count < 0 || len(s.buf) != 4+int(count)*connectionRawSize {
		return conn, fmt.Errorf("%w: %s count %d does not match payload size %d", ErrCorruptImage, s.kind, count, len(s.buf))
	}
	for i := 0; i < int(count); i++ {
		var raw connectionRaw
		if _, err := binary.Decode(s.buf[4+i*connectionRawSize:], binary.LittleEndian, &raw); err != nil {
			return conn, fmt.Errorf("%w: %s entry %d: %v", ErrCorruptImage, s.kind, i, err)
		}
		conn.Connections = append(conn.Connections, connectionJSON{
			ArgIndex:      strconv.Itoa(int(raw.ArgIndex)),
			IPLayoutIndex: strconv.Itoa(int(raw.IPLayoutIndex)),
			MemDataIndex:  strconv.Itoa(int(raw.MemDataIndex)),
		})
	}
	return conn, nil
}

func (s *connectivitySection) GetPayload() (json.RawMessage, error) {
	if len(s.buf) == 0 {
		return nil, nil
	}
	conn, err := s.decode()
	if err != nil {
		return nil, err
	}
	node, err := json.Marshal(conn)
	if err != nil {
		return nil, err
	}
	return wrapNode(s.kind.JSONKey(), node)
}

func (s *connectivitySection) AppendImage(subtree json.RawMessage) error {
	conn, err := s.decode()
	if err != nil {
		return err
	}
	var incoming connectivityJSON
	if err := json.Unmarshal(subtree, &incoming); err != nil {
		return fmt.Errorf("axlf: section %s: %w", s.kind, err)
	}
	conn.Connections = append(conn.Connections, incoming.Connections...)
	return s.encode(conn)
}

func (s *connectivitySection) Dump(w io.Writer, ft FormatType) error {
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

func parseInt32Field(s string) (int32, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q: %w", s, err)
	}
	return int32(v), nil
}
