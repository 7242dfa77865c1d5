package transport

import (
	"github.com/fxamacker/cbor/v2"
)

const ContentTypeCBOR = "application/cbor"

// cborEncMode produces deterministic encodings, identical values always give identical bytes.
var cborEncMode cbor.EncMode

// CBORSerializer provides a Serializer that uses core deterministic cbor encoding.
type CBORSerializer struct{}

// Marshal encodes v using core deterministic cbor encoding.
func (self CBORSerializer) Marshal(v any) ([]byte, error) {
	return cborEncMode.Marshal(v)
}

// Unmarshal wraps cbor.Unmarshal
func (self CBORSerializer) Unmarshal(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}

// ContentType returns the CBOR media type.
func (self CBORSerializer) ContentType() string {
	return ContentTypeCBOR
}

var _ Serializer = CBORSerializer{}

func init() {
	var err error
	cborEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if nil != err {
		panic(err)
	}
}
