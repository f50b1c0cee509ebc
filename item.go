package flagstore

import (
	"encoding/json"
	"fmt"

	"github.com/sharedcode/flagstore/encoding"
)

// Item is a single versioned entity owned by the store, e.g. one feature flag.
type Item struct {
	// Key is unique within the item's kind.
	Key string `json:"key"`
	// Version is assigned by the writer that produced the item. Higher versions win.
	Version int `json:"version"`
	// Deleted marks a tombstone: the item was deleted at Version.
	Deleted bool `json:"deleted,omitempty"`
	// Data is the kind specific payload.
	Data json.RawMessage `json:"data,omitempty"`
}

// Dataset is a complete point-in-time snapshot of all kinds, as given to Init.
type Dataset map[DataKind]map[string]Item

// Count returns the total number of items of all kinds.
func (d Dataset) Count() int {
	n := 0
	for _, items := range d {
		n += len(items)
	}
	return n
}

// ItemCodec encodes items of a kind to the bytes kept in the backend and back.
type ItemCodec interface {
	Encode(item Item) ([]byte, error)
	Decode(data []byte) (Item, error)
}

// JSONCodec encodes items as JSON documents using encoding.DefaultMarshaler.
type JSONCodec struct{}

// Encode marshals item.
func (JSONCodec) Encode(item Item) ([]byte, error) {
	return encoding.DefaultMarshaler.Marshal(item)
}

// Decode unmarshals data into an Item.
func (JSONCodec) Decode(data []byte) (Item, error) {
	var item Item
	if err := encoding.DefaultMarshaler.Unmarshal(data, &item); err != nil {
		return Item{}, err
	}
	return item, nil
}

// EncodeItem encodes item with the codec bound to kind.
func EncodeItem(kind DataKind, item Item) ([]byte, error) {
	codec := kind.Codec()
	if codec == nil {
		return nil, Error{Code: UnknownDataKind, Err: fmt.Errorf("can't encode item %q", item.Key), UserData: kind}
	}
	return codec.Encode(item)
}

// DecodeItem decodes data with the codec bound to kind. Failures are reported as DecodeFailure.
func DecodeItem(kind DataKind, data []byte) (Item, error) {
	codec := kind.Codec()
	if codec == nil {
		return Item{}, Error{Code: UnknownDataKind, Err: fmt.Errorf("can't decode %v item", kind), UserData: kind}
	}
	item, err := codec.Decode(data)
	if err != nil {
		return Item{}, Error{Code: DecodeFailure, Err: err, UserData: kind}
	}
	return item, nil
}
