package codec

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack is the MessagePack binary codec.
type Msgpack struct{}

// Name implements part of the Codec interface.
func (Msgpack) Name() string { return "msgpack" }

// Binary implements part of the Codec interface.
func (Msgpack) Binary() bool { return true }

// Marshal implements part of the Codec interface. Maps are encoded with
// sorted keys so equal values produce equal bytes.
func (Msgpack) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal implements part of the Codec interface. Untyped maps decode to
// map[string]any, matching the shape the JSON codec produces.
func (Msgpack) Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	return dec.Decode(v)
}
