package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// CBOR is the Concise Binary Object Representation codec. Encoding follows
// the RFC 8949 core deterministic requirements so equal values produce equal
// bytes.
type CBOR struct{}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	cborDec, err = cbor.DecOptions{
		// Untyped maps decode to map[string]any, the shape the JSON codec
		// produces, so validators see the same values under every codec.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Name implements part of the Codec interface.
func (CBOR) Name() string { return "cbor" }

// Binary implements part of the Codec interface.
func (CBOR) Binary() bool { return true }

// Marshal implements part of the Codec interface.
func (CBOR) Marshal(v any) ([]byte, error) { return cborEnc.Marshal(v) }

// Unmarshal implements part of the Codec interface.
func (CBOR) Unmarshal(data []byte, v any) error { return cborDec.Unmarshal(data, v) }
