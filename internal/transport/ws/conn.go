// Package ws carries frames as WebSocket binary messages, one frame per message.
package ws

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/omochice/relay-chat/internal/transport"
)

// Path is the request path clients dial.
const Path = "/chat"

// Conn adapts a WebSocket connection to transport.Stream.
type Conn struct {
	conn  net.Conn
	r     io.Reader
	state ws.State

	// mu guards writes to conn; control replies issued while reading share it.
	mu sync.Mutex
}

var _ transport.Stream = (*Conn)(nil)

func newConn(conn net.Conn, r io.Reader, state ws.State) *Conn {
	if r == nil {
		r = conn
	}
	return &Conn{conn: conn, r: r, state: state}
}

// Upgrade completes the server side of the handshake on conn. reader holds any
// bytes already consumed from conn during protocol detection.
func Upgrade(conn net.Conn, reader *bufio.Reader) (*Conn, error) {
	var r io.Reader = conn
	if reader != nil {
		r = reader
	}
	rw := struct {
		io.Reader
		io.Writer
	}{r, conn}
	if _, err := ws.Upgrade(rw); err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}
	return newConn(conn, r, ws.StateServerSide), nil
}

// Dial opens a WebSocket connection to the relay listening on addr.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	conn, br, _, err := ws.Dial(ctx, "ws://"+addr+Path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	var r io.Reader
	if br != nil {
		r = br
	}
	return newConn(conn, r, ws.StateClientSide), nil
}

// ReadFrame returns the payload of the next data message, answering control
// messages on the way. A close message from the peer is reported as io.EOF and
// a message longer than transport.MaxFrameSize as transport.ErrFrameTooLarge.
func (c *Conn) ReadFrame() ([]byte, error) {
	var replies bytes.Buffer
	control := wsutil.ControlFrameHandler(&replies, c.state)
	rd := &wsutil.Reader{
		Source:         c.r,
		State:          c.state,
		MaxFrameSize:   transport.MaxFrameSize,
		OnIntermediate: control,
	}

	for {
		hdr, err := rd.NextFrame()
		if errors.Is(err, wsutil.ErrFrameTooLarge) {
			return nil, transport.ErrFrameTooLarge
		}
		if err != nil {
			return nil, err
		}

		if hdr.OpCode.IsControl() {
			err := control(hdr, rd)
			if ferr := c.flush(&replies); ferr != nil && err == nil {
				err = ferr
			}
			if err != nil {
				var closed wsutil.ClosedError
				if errors.As(err, &closed) {
					return nil, io.EOF
				}
				return nil, err
			}
			continue
		}

		if hdr.OpCode&(ws.OpBinary|ws.OpText) == 0 {
			if err := rd.Discard(); err != nil {
				return nil, err
			}
			continue
		}

		// Fragmented messages span frames, so the total is capped as well.
		frame, err := io.ReadAll(io.LimitReader(rd, transport.MaxFrameSize+1))
		if errors.Is(err, wsutil.ErrFrameTooLarge) || len(frame) > transport.MaxFrameSize {
			return nil, transport.ErrFrameTooLarge
		}
		return frame, err
	}
}

func (c *Conn) flush(buf *bytes.Buffer) error {
	if buf.Len() == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := buf.WriteTo(c.conn)
	return err
}

// WriteFrame sends frame as one binary message.
func (c *Conn) WriteFrame(frame []byte) error {
	return c.write(ws.NewBinaryFrame(frame))
}

func (c *Conn) write(f ws.Frame) error {
	if c.state.ClientSide() {
		f.Payload = bytes.Clone(f.Payload)
		f = ws.MaskFrameInPlace(f)
	}
	data, err := ws.CompileFrame(f)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.conn.Write(data)
	return err
}

// Close sends a close message and closes the underlying connection.
func (c *Conn) Close() error {
	_ = c.write(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))
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
