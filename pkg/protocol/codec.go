package protocol

import (
	"errors"
	"fmt"
	"math"
	"net/netip"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrDecode is returned for any payload that does not decode to a valid frame.
var ErrDecode = errors.New("protocol: malformed frame")

// Codec is the binary encoding used for frames on both transports.
// Client and server must use the same codec.
type Codec interface {
	Name() string
	Encode(f Frame) ([]byte, error)
	Decode(data []byte) (Frame, error)
}

// CodecByName returns the codec registered under name. An empty name selects protobuf.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "proto", "protobuf":
		return Proto(), nil
	case "cbor":
		return CBOR()
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

type kind uint8

const (
	kindUnknown kind = iota
	kindSignIn
	kindSignOut
	kindSend
	kindSendAll
	kindOK
	kindMessage
	kindError
	maxKind = kindError
)

// record is the flat wire shape shared by every frame variant.
// Field numbers are the protobuf field numbers and the CBOR integer keys.
type record struct {
	Kind      kind      `cbor:"1,keyasint"`
	Name      string    `cbor:"2,keyasint,omitempty"`
	Addr      string    `cbor:"3,keyasint,omitempty"`
	Receiver  string    `cbor:"4,keyasint,omitempty"`
	Text      string    `cbor:"5,keyasint,omitempty"`
	Transport Transport `cbor:"6,keyasint,omitempty"`
	Sender    string    `cbor:"7,keyasint,omitempty"`
	Code      ErrorCode `cbor:"8,keyasint,omitempty"`
}

const (
	fieldKind      protowire.Number = 1
	fieldName      protowire.Number = 2
	fieldAddr      protowire.Number = 3
	fieldReceiver  protowire.Number = 4
	fieldText      protowire.Number = 5
	fieldTransport protowire.Number = 6
	fieldSender    protowire.Number = 7
	fieldCode      protowire.Number = 8
)

// toRecord flattens a frame into its wire record.
func toRecord(f Frame) (record, error) {
	switch f := f.(type) {
	case SignIn:
		return record{Kind: kindSignIn, Name: f.Name, Addr: formatAddr(f.DatagramAddr)}, nil
	case SignOut:
		return record{Kind: kindSignOut}, nil
	case Send:
		return record{Kind: kindSend, Receiver: f.Receiver, Text: f.Text, Transport: f.Transport}, nil
	case SendAll:
		return record{Kind: kindSendAll, Text: f.Text, Transport: f.Transport}, nil
	case OK:
		return record{Kind: kindOK, Addr: formatAddr(f.DatagramAddr)}, nil
	case Message:
		return record{Kind: kindMessage, Text: f.Text, Sender: f.Sender, Receiver: f.Receiver, Transport: f.Transport}, nil
	case Error:
		return record{Kind: kindError, Code: f.Code}, nil
	default:
		return record{}, fmt.Errorf("unsupported frame type %T", f)
	}
}

// fromRecord rebuilds the frame a record describes. Unknown kinds, unknown transports
// and unparsable addresses are decode errors.
func fromRecord(r record) (Frame, error) {
	switch r.Kind {
	case kindSend, kindSendAll, kindMessage:
		if !r.Transport.valid() {
			return nil, fmt.Errorf("%w: unknown transport %d", ErrDecode, r.Transport)
		}
	}

	switch r.Kind {
	case kindSignIn:
		addr, err := parseAddr(r.Addr)
		if err != nil {
			return nil, err
		}
		return SignIn{Name: r.Name, DatagramAddr: addr}, nil
	case kindSignOut:
		return SignOut{}, nil
	case kindSend:
		return Send{Receiver: r.Receiver, Text: r.Text, Transport: r.Transport}, nil
	case kindSendAll:
		return SendAll{Text: r.Text, Transport: r.Transport}, nil
	case kindOK:
		addr, err := parseAddr(r.Addr)
		if err != nil {
			return nil, err
		}
		return OK{DatagramAddr: addr}, nil
	case kindMessage:
		return Message{Text: r.Text, Sender: r.Sender, Receiver: r.Receiver, Transport: r.Transport}, nil
	case kindError:
		return Error{Code: r.Code}, nil
	default:
		return nil, fmt.Errorf("%w: unknown frame kind %d", ErrDecode, r.Kind)
	}
}

func formatAddr(addr netip.AddrPort) string {
	if !addr.IsValid() {
		return ""
	}
	return addr.String()
}

func parseAddr(s string) (netip.AddrPort, error) {
	if s == "" {
		return netip.AddrPort{}, nil
	}
	addr, err := netip.ParseAddrPort(s)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return addr, nil
}

type protoCodec struct{}

// Proto returns the protobuf wire codec. Frames are encoded field by field with
// protowire, so no generated message types are involved.
func Proto() Codec { return protoCodec{} }

func (protoCodec) Name() string { return "proto" }

func (protoCodec) Encode(f Frame) ([]byte, error) {
	r, err := toRecord(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	b := protowire.AppendTag(nil, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Kind))
	b = appendString(b, fieldName, r.Name)
	b = appendString(b, fieldAddr, r.Addr)
	b = appendString(b, fieldReceiver, r.Receiver)
	b = appendString(b, fieldText, r.Text)
	b = appendVarint(b, fieldTransport, uint64(r.Transport))
	b = appendString(b, fieldSender, r.Sender)
	b = appendVarint(b, fieldCode, uint64(r.Code))
	return b, nil
}

func (protoCodec) Decode(data []byte) (Frame, error) {
	var r record
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: %w", ErrDecode, protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldKind, fieldTransport, fieldCode:
			if typ != protowire.VarintType {
				return nil, fmt.Errorf("%w: field %d has wire type %d", ErrDecode, num, typ)
			}
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: %w", ErrDecode, protowire.ParseError(n))
			}
			if v > math.MaxInt32 {
				return nil, fmt.Errorf("%w: field %d out of range", ErrDecode, num)
			}
			switch num {
			case fieldKind:
				if v > uint64(maxKind) {
					return nil, fmt.Errorf("%w: unknown frame kind %d", ErrDecode, v)
				}
				r.Kind = kind(v)
			case fieldTransport:
				r.Transport = Transport(v)
			case fieldCode:
				r.Code = ErrorCode(v)
			}
			data = data[n:]
		case fieldName, fieldAddr, fieldReceiver, fieldText, fieldSender:
			if typ != protowire.BytesType {
				return nil, fmt.Errorf("%w: field %d has wire type %d", ErrDecode, num, typ)
			}
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: %w", ErrDecode, protowire.ParseError(n))
			}
			switch num {
			case fieldName:
				r.Name = v
			case fieldAddr:
				r.Addr = v
			case fieldReceiver:
				r.Receiver = v
			case fieldText:
				r.Text = v
			case fieldSender:
				r.Sender = v
			}
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("%w: %w", ErrDecode, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return fromRecord(r)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}
