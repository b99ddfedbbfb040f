// Package udp provides the datagram transport: a socket bound to a local port
// and then restricted to a single peer once that peer is known.
package udp

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/omochice/relay-chat/internal/transport"
)

// maxDatagram bounds a single received datagram.
const maxDatagram = 64 << 10

// ErrNotConnected is returned by WriteFrame before Connect.
var ErrNotConnected = errors.New("udp: socket not connected")

// Conn is a UDP socket that can be bound before its peer is known. After
// Connect it sends only to the peer and drops datagrams from any other source.
type Conn struct {
	conn *net.UDPConn

	mu   sync.RWMutex
	peer netip.AddrPort

	buf []byte
}

var _ transport.Datagram = (*Conn)(nil)

// Listen binds a datagram socket to addr. Port 0 picks an ephemeral port.
func Listen(addr string) (*Conn, error) {
	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve datagram address: %w", err)
	}
	conn, err := net.ListenUDP("udp", ua)
	if err != nil {
		return nil, fmt.Errorf("failed to bind datagram socket: %w", err)
	}
	return &Conn{conn: conn, buf: make([]byte, maxDatagram)}, nil
}

// Connect restricts the socket to peer.
func (c *Conn) Connect(peer netip.AddrPort) error {
	if !peer.IsValid() || peer.Port() == 0 {
		return fmt.Errorf("failed to connect datagram socket: invalid peer %s", peer)
	}
	c.mu.Lock()
	c.peer = transport.Unmap(peer)
	c.mu.Unlock()
	return nil
}

// Peer returns the connected peer, or the zero value before Connect.
func (c *Conn) Peer() netip.AddrPort {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peer
}

// LocalAddr returns the bound address.
func (c *Conn) LocalAddr() netip.AddrPort {
	return transport.AddrPort(c.conn.LocalAddr())
}

// ReadFrame returns the next datagram from the connected peer. Datagrams that
// arrive before Connect or from other sources are dropped.
func (c *Conn) ReadFrame() ([]byte, error) {
	for {
		n, from, err := c.conn.ReadFromUDPAddrPort(c.buf)
		if err != nil {
			return nil, err
		}
		peer := c.Peer()
		if !peer.IsValid() || transport.Unmap(from) != peer {
			continue
		}
		frame := make([]byte, n)
		copy(frame, c.buf[:n])
		return frame, nil
	}
}

// WriteFrame sends frame as one datagram to the connected peer.
func (c *Conn) WriteFrame(frame []byte) error {
	peer := c.Peer()
	if !peer.IsValid() {
		return ErrNotConnected
	}
	_, err := c.conn.WriteToUDPAddrPort(frame, peer)
	return err
}

// Close releases the socket and unblocks a pending ReadFrame.
func (c *Conn) Close() error {
	return c.conn.Close()
}
