// Package encoding holds the marshaler used to turn items into the bytes kept in a backend.
package encoding

import (
	"bytes"
	"encoding/json"
)

// Marshaler interface specifies encoding to byte array and back to the object.
type Marshaler interface {
	// Encodes any object to byte array.
	Marshal(v any) ([]byte, error)
	// Decodes byte array back to its Object type.
	Unmarshal(data []byte, v any) error
}

// DefaultMarshaler is used by the built-in item codec. You can replace it with your desired
// Marshaler implementation if needed. Defaults to use JSON Marshal.
var DefaultMarshaler = NewMarshaler()

type defaultMarshaler struct{}

// NewMarshaler returns the default marshaler which uses the golang's json package.
// JSON keeps stored values readable with the key-value service's own tools, e.g. "consul kv get".
func NewMarshaler() Marshaler {
	return &defaultMarshaler{}
}

// Marshal encodes v. Raw JSON is passed through after compacting.
func (m defaultMarshaler) Marshal(v any) ([]byte, error) {
	if raw, ok := v.(json.RawMessage); ok {
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return json.Marshal(v)
}

// Unmarshal decodes data into v.
func (m defaultMarshaler) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
