package protocol

import (
	"fmt"

	cbor "github.com/fxamacker/cbor/v2"
)

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a deterministic CBOR codec using integer map keys for record fields.
// Text fields are opaque: strings that are not valid UTF-8 decode unchanged.
func CBOR() (Codec, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{UTF8: cbor.UTF8DecodeInvalid}.DecMode()
	if err != nil {
		return nil, err
	}
	return cborCodec{enc: em, dec: dm}, nil
}

func (c cborCodec) Name() string { return "cbor" }

func (c cborCodec) Encode(f Frame) ([]byte, error) {
	r, err := toRecord(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	data, err := c.enc.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return data, nil
}

func (c cborCodec) Decode(data []byte) (Frame, error) {
	var r record
	if err := c.dec.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if r.Kind > maxKind {
		return nil, fmt.Errorf("%w: unknown frame kind %d", ErrDecode, r.Kind)
	}
	return fromRecord(r)
}
