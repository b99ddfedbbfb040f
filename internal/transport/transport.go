// Package transport carries protocol frames over the relay's two transports:
// a reliable stream (raw TCP or WebSocket) and a connected datagram socket.
package transport

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/omochice/relay-chat/pkg/protocol"
)

// ErrInvalidData wraps every decode failure surfaced by Receive, so callers can
// tell a malformed frame from a broken connection.
var ErrInvalidData = errors.New("transport: invalid data")

// ErrFrameTooLarge is returned by stream readers for a frame longer than
// MaxFrameSize. The stream cannot be resynchronised afterwards.
var ErrFrameTooLarge = errors.New("transport: frame too large")

// MaxFrameSize bounds one stream frame, terminator included.
const MaxFrameSize = 1 << 20

// FrameReader yields one wire frame per call.
type FrameReader interface {
	ReadFrame() ([]byte, error)
}

// FrameWriter writes one wire frame per call.
type FrameWriter interface {
	WriteFrame(frame []byte) error
}

// Stream is an ordered, reliable, connection-oriented frame carrier.
// Exactly one goroutine reads and one goroutine writes.
type Stream interface {
	FrameReader
	FrameWriter
	Close() error
	LocalAddr() netip.AddrPort
	RemoteAddr() netip.AddrPort
}

// Datagram is a best-effort frame carrier restricted to a single peer.
type Datagram interface {
	FrameReader
	FrameWriter
	Close() error
}

// Send encodes v with c and writes it as one frame.
func Send[T protocol.Frame](w FrameWriter, c protocol.Codec, v T) error {
	frame, err := protocol.Marshal(c, v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	return w.WriteFrame(frame)
}

// Receive reads one frame and decodes it as T. A frame that decodes to another
// type is reported as ErrInvalidData.
func Receive[T protocol.Frame](r FrameReader, c protocol.Codec) (T, error) {
	var zero T
	frame, err := r.ReadFrame()
	if err != nil {
		return zero, err
	}
	f, err := protocol.Unmarshal(c, frame)
	if err != nil {
		return zero, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	v, ok := f.(T)
	if !ok {
		return zero, fmt.Errorf("%w: unexpected %T frame", ErrInvalidData, f)
	}
	return v, nil
}

// AddrPort converts a socket address to its netip form with IPv4-mapped IPv6
// addresses unmapped, so addresses compare equal regardless of socket family.
func AddrPort(addr net.Addr) netip.AddrPort {
	var ap netip.AddrPort
	switch a := addr.(type) {
	case *net.TCPAddr:
		ap = a.AddrPort()
	case *net.UDPAddr:
		ap = a.AddrPort()
	case nil:
		return netip.AddrPort{}
	default:
		ap, _ = netip.ParseAddrPort(addr.String())
	}
	return Unmap(ap)
}

// Unmap strips an IPv4-mapped prefix from ap.
func Unmap(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// Resolve completes an advertised datagram address. A wildcard or missing IP is
// replaced by observed, the IP the stream connection sees for the same endpoint.
func Resolve(advertised netip.AddrPort, observed netip.Addr) netip.AddrPort {
	ip := advertised.Addr()
	if !ip.IsValid() || ip.IsUnspecified() {
		ip = observed
	}
	return netip.AddrPortFrom(ip.Unmap(), advertised.Port())
}
