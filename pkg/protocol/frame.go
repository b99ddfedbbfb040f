package protocol

import (
	"bytes"
	"encoding/base64"
	"fmt"
)

// Terminator ends every frame on the wire.
const Terminator byte = '\n'

// The encoded payload is armoured with the unpadded standard base64 alphabet,
// which never contains the terminator byte.
var armor = base64.RawStdEncoding

// Marshal encodes f with c and returns one terminated wire frame.
func Marshal(c Codec, f Frame) ([]byte, error) {
	payload, err := c.Encode(f)
	if err != nil {
		return nil, err
	}
	n := armor.EncodedLen(len(payload))
	out := make([]byte, n+1)
	armor.Encode(out, payload)
	out[n] = Terminator
	return out, nil
}

// Unmarshal decodes one wire frame. The trailing terminator is optional.
func Unmarshal(c Codec, frame []byte) (Frame, error) {
	frame = bytes.TrimSuffix(frame, []byte{Terminator})
	payload := make([]byte, armor.DecodedLen(len(frame)))
	n, err := armor.Decode(payload, frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return c.Decode(payload[:n])
}
