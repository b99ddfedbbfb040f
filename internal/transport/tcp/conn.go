// Package tcp carries newline-terminated frames over a raw TCP connection.
package tcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"

	"github.com/omochice/relay-chat/internal/transport"
	"github.com/omochice/relay-chat/pkg/protocol"
)

// Conn adapts net.Conn to transport.Stream.
type Conn struct {
	conn   net.Conn
	reader *bufio.Reader
}

var _ transport.Stream = (*Conn)(nil)

// NewConn wraps a net.Conn.
func NewConn(conn net.Conn) *Conn {
	return NewConnWithReader(conn, bufio.NewReader(conn))
}

// NewConnWithReader wraps a net.Conn whose first bytes were already buffered
// into reader, e.g. after protocol detection.
func NewConnWithReader(conn net.Conn, reader *bufio.Reader) *Conn {
	return &Conn{conn: conn, reader: reader}
}

// Dial opens a TCP connection to addr.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return NewConn(conn), nil
}

// ReadFrame returns the next frame including its terminator. A connection
// closed in the middle of a frame yields io.ErrUnexpectedEOF; a frame longer
// than transport.MaxFrameSize yields transport.ErrFrameTooLarge.
func (c *Conn) ReadFrame() ([]byte, error) {
	var frame []byte
	for {
		chunk, err := c.reader.ReadSlice(protocol.Terminator)
		if len(frame)+len(chunk) > transport.MaxFrameSize {
			return nil, transport.ErrFrameTooLarge
		}
		frame = append(frame, chunk...)

		switch {
		case err == nil:
			return frame, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(frame) > 0:
			return nil, io.ErrUnexpectedEOF
		default:
			return nil, err
		}
	}
}

// WriteFrame writes frame in full.
func (c *Conn) WriteFrame(frame []byte) error {
	_, err := c.conn.Write(frame)
	return err
}

// Close implements transport.Stream.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// LocalAddr implements transport.Stream.
func (c *Conn) LocalAddr() netip.AddrPort {
	return transport.AddrPort(c.conn.LocalAddr())
}

// RemoteAddr implements transport.Stream.
func (c *Conn) RemoteAddr() netip.AddrPort {
	return transport.AddrPort(c.conn.RemoteAddr())
}
