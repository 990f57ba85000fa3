package codec

import (
	"bytes"
	"encoding/json"
)

// JSON is the canonical text codec.
type JSON struct{}

// Name implements part of the Codec interface.
func (JSON) Name() string { return "json" }

// Binary implements part of the Codec interface. JSON is a text encoding.
func (JSON) Binary() bool { return false }

// Marshal implements part of the Codec interface. HTML escaping is disabled
// so that encoded strings match what other peers produce byte-for-byte.
func (JSON) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Encoder.Encode appends a newline; the wire carries none.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Unmarshal implements part of the Codec interface. Numbers decode to
// json.Number to avoid silently flattening integers into float64.
func (JSON) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
