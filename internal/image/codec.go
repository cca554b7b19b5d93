// Package image stores a module as a binary metadata image. Only the type
// table is decoded when an image is read; signatures, members, attributes and
// nested types stay encoded until their providers run.
package image

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec encodes the records of an image.
type Codec interface {
	Name() string
	ID() byte
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string                       { return "msgpack" }
func (msgpackCodec) ID() byte                           { return 'm' }
func (msgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

// cborCodec writes canonical CBOR so equal modules give equal images.
type cborCodec struct{ enc cbor.EncMode }

func (cborCodec) Name() string                       { return "cbor" }
func (cborCodec) ID() byte                           { return 'c' }
func (c cborCodec) Marshal(v any) ([]byte, error)    { return c.enc.Marshal(v) }
func (cborCodec) Unmarshal(data []byte, v any) error { return cbor.Unmarshal(data, v) }

var (
	Msgpack Codec = msgpackCodec{}
	CBOR    Codec
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	CBOR = cborCodec{enc: em}
}

// CodecByName returns the codec called name ("msgpack" or "cbor").
func CodecByName(name string) (Codec, error) {
	for _, c := range allCodecs() {
		if c.Name() == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("image: unknown codec %q (expected msgpack|cbor)", name)
}

func codecByID(id byte) (Codec, error) {
	for _, c := range allCodecs() {
		if c.ID() == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown codec id %#x", ErrSchema, id)
}

func allCodecs() []Codec { return []Codec{Msgpack, CBOR} }

// CodecNames lists the codecs Write accepts, in preference order.
func CodecNames() []string {
	var names []string
	for _, c := range allCodecs() {
		names = append(names, c.Name())
	}
	return names
}
