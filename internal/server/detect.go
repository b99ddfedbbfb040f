package server

import (
	"bufio"
	"bytes"
	"net"
)

type streamKind int

const (
	streamRaw streamKind = iota
	streamWebSocket
)

func (k streamKind) String() string {
	if k == streamWebSocket {
		return "ws"
	}
	return "tcp"
}

// upgradePrefix opens every WebSocket handshake. Raw frames are base64 text,
// which never contains a space.
var upgradePrefix = []byte("GET ")

// detectStream peeks at the first bytes of conn. The returned reader holds the
// peeked bytes and must replace conn for all further reads.
func detectStream(conn net.Conn) (streamKind, *bufio.Reader, error) {
	reader := bufio.NewReader(conn)

	peek, err := reader.Peek(4)
	if err != nil {
		return streamRaw, reader, err
	}

	if bytes.Equal(peek, upgradePrefix) {
		return streamWebSocket, reader, nil
	}
	return streamRaw, reader, nil
}
