package axlf

import (
	"bytes"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
)

// opaqueJSONSection stores a JSON document as its payload without imposing
// a schema: build metadata, key-value metadata, and partition metadata all
// evolve independently of this tool, so their trees are carried verbatim.
// The payload buffer is the compact encoding of {"<jsonKey>": <subtree>}.
type opaqueJSONSection struct {
	baseSection
}

func newOpaqueJSONSection(kind SectionKind, indexName string) Section {
	return &opaqueJSONSection{baseSection{kind: kind, indexName: indexName}}
}

func (s *opaqueJSONSection) ReadPayload(r io.Reader, ft FormatType) error {
	if ft != FTJSON {
		return fmt.Errorf("%w: %s cannot read %s payloads", ErrFormatUnsupported, s.kind, ft)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("axlf: reading %s payload: %w", s.kind, err)
	}
	return s.ReadJSONImage(data)
}

func (s *opaqueJSONSection) ReadJSONImage(image json.RawMessage) error {
	node, err := extractNode(image, s.kind.JSONKey())
	if err != nil {
		return fmt.Errorf("axlf: section %s: %w", s.kind, err)
	}
	if isEmptyNode(node) {
		s.buf = nil
		return nil
	}
	wrapped, err := wrapNode(s.kind.JSONKey(), node)
	if err != nil {
		return fmt.Errorf("axlf: section %s: %w", s.kind, err)
	}
	s.buf = wrapped
	return nil
}

func (s *opaqueJSONSection) GetPayload() (json.RawMessage, error) {
	if len(s.buf) == 0 {
		return nil, nil
	}
	if !json.Valid(s.buf) {
		return nil, fmt.Errorf("%w: section %s payload is not valid JSON", ErrCorruptImage, s.kind)
	}
	return json.RawMessage(s.buf), nil
}

func (s *opaqueJSONSection) AppendImage(subtree json.RawMessage) error {
	current := map[string]json.RawMessage{}
	if len(s.buf) > 0 {
		node, err := extractNode(s.buf, s.kind.JSONKey())
		if err != nil {
			return fmt.Errorf("axlf: section %s: %w", s.kind, err)
		}
		if !isEmptyNode(node) {
			if err := json.Unmarshal(node, &current); err != nil {
				return fmt.Errorf("axlf: section %s payload: %w", s.kind, err)
			}
		}
	}
	incoming := map[string]json.RawMessage{}
	if err := json.Unmarshal(subtree, &incoming); err != nil {
		return fmt.Errorf("axlf: section %s: appended image is not a JSON object: %w", s.kind, err)
	}
	for k, v := range incoming {
		current[k] = v
	}
	merged, err := json.Marshal(current)
	if err != nil {
		return err
	}
	wrapped, err := wrapNode(s.kind.JSONKey(), merged)
	if err != nil {
		return err
	}
	s.buf = wrapped
	return nil
}

func (s *opaqueJSONSection) Dump(w io.Writer, ft FormatType) error {
	if ft != FTJSON {
		return fmt.Errorf("%w: %s cannot dump as %s", ErrFormatUnsupported, s.kind, ft)
	}
	return prettyJSON(w, json.RawMessage(s.buf))
}

// extractNode returns the subtree stored under key in a JSON object image.
// A missing key yields nil, not an error; callers decide whether an absent
// node is a no-op or a failure.
func extractNode(image json.RawMessage, key string) (json.RawMessage, error) {
	if len(image) == 0 {
		return nil, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(image, &m); err != nil {
		return nil, fmt.Errorf("invalid JSON image: %w", err)
	}
	return m[key], nil
}

func isEmptyNode(node json.RawMessage) bool {
	trimmed := bytes.TrimSpace(node)
	switch string(trimmed) {
	case "", "null", "{}", "[]":
		return true
	}
	return false
}

func wrapNode(key string, node json.RawMessage) ([]byte, error) {
	keyEnc, err := json.Marshal(key)
	if err != nil {
		return nil, err
	}
	// Compact must target an empty buffer; concatenation happens after.
	var compacted bytes.Buffer
	if err := json.Compact(&compacted, node); err != nil {
		return nil, fmt.Errorf("invalid JSON subtree: %w", err)
	}
	out := make([]byte, 0, len(keyEnc)+compacted.Len()+3)
	out = append(out, '{')
	out = append(out, keyEnc...)
	out = append(out, ':')
	out = append(out, compacted.Bytes()...)
	out = append(out, '}')
	return out, nil
}

func prettyJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(v)
}
