// Package protocol defines the frames exchanged between relay clients and the server.
package protocol

import (
	"fmt"
	"net/netip"
)

const (
	// BroadcastName is the reserved receiver that selects delivery to every peer.
	BroadcastName = "all"

	// ServerName is the sender of server-authored announcements.
	ServerName = "server"
)

// Transport selects which socket carries an outbound item.
type Transport int

const (
	// TransportStream sends over the session's TCP or WebSocket stream.
	TransportStream Transport = iota
	// TransportDatagram sends over the session's connected UDP socket.
	TransportDatagram
)

// String returns the string representation of Transport
func (t Transport) String() string {
	switch t {
	case TransportStream:
		return "stream"
	case TransportDatagram:
		return "datagram"
	default:
		return "unknown"
	}
}

func (t Transport) valid() bool {
	return t == TransportStream || t == TransportDatagram
}

// ErrorCode is the reason carried by an Error response.
type ErrorCode int

const (
	// CodeUnknown is the zero value; it never leaves a well-behaved server.
	CodeUnknown ErrorCode = iota
	// CodeInvalidName rejects a malformed handshake or an empty or reserved name.
	CodeInvalidName
	// CodeInvalidServerResponse reports an unexpected first response to the client.
	CodeInvalidServerResponse
	// CodeNameTaken rejects a name another peer holds.
	CodeNameTaken
)

// String returns the human-readable reason.
func (c ErrorCode) String() string {
	switch c {
	case CodeInvalidName:
		return "invalid name"
	case CodeInvalidServerResponse:
		return "invalid server response"
	case CodeNameTaken:
		return "name already taken"
	default:
		return "unknown error"
	}
}

// Frame is any value that can travel on the wire: every Request and every Response.
type Frame interface {
	frame()
}

// Request is a frame sent by a client. The set of variants is closed:
// SignIn, SignOut, Send and SendAll.
type Request interface {
	Frame
	request()
}

// SignIn is the handshake request. DatagramAddr is the client's datagram socket.
type SignIn struct {
	Name         string
	DatagramAddr netip.AddrPort
}

// SignOut ends the session.
type SignOut struct{}

// Send is a direct message to Receiver.
type Send struct {
	Receiver  string
	Text      string
	Transport Transport
}

// SendAll is a message to every connected peer.
type SendAll struct {
	Text      string
	Transport Transport
}

func (SignIn) frame() {}
func (SignOut) frame() {}
func (Send) frame() {}
func (SendAll) frame() {}
func (SignIn) request() {}
func (SignOut) request() {}
func (Send) request() {}
func (SendAll) request() {}

// Response is a frame sent by the server. The set of variants is closed:
// OK, Message and Error.
type Response interface {
	Frame
	response()
}

// OK acknowledges a SignIn and carries the server's datagram address for the session.
type OK struct {
	DatagramAddr netip.AddrPort
}

// Error reports a server-side failure to the client.
type Error struct {
	Code ErrorCode
}

// Message is a routed chat message. A Receiver equal to BroadcastName marks a broadcast.
type Message struct {
	Text      string
	Sender    string
	Receiver  string
	Transport Transport
}

func (OK) frame() {}
func (Error) frame() {}
func (Message) frame() {}
func (OK) response() {}
func (Error) response() {}
func (Message) response() {}

// IsBroadcast reports whether the message addresses every peer.
func (m Message) IsBroadcast() bool {
	return m.Receiver == BroadcastName
}

// String renders the message as the console shows it.
func (m Message) String() string {
	if m.IsBroadcast() {
		return fmt.Sprintf("(all) [%s]: %s", m.Sender, m.Text)
	}
	return fmt.Sprintf("[%s]: %s", m.Sender, m.Text)
}

// String renders the sign-in acknowledgement.
func (r OK) String() string {
	return fmt.Sprintf("[server] Logged in; server udp: %s", r.DatagramAddr)
}

// String renders the error as a server line.
func (r Error) String() string {
	return fmt.Sprintf("[server] Error: %s", r.Code)
}

// ToMessage converts a send request into the message routed on behalf of sender.
// SignIn and SignOut have no message form and report false.
func ToMessage(r Request, sender string) (Message, bool) {
	switch r := r.(type) {
	case Send:
		return Message{Text: r.Text, Sender: sender, Receiver: r.Receiver, Transport: r.Transport}, true
	case SendAll:
		return Message{Text: r.Text, Sender: sender, Receiver: BroadcastName, Transport: r.Transport}, true
	default:
		return Message{}, false
	}
}

// TransportOf returns the transport a response should be delivered on.
// Only messages carry a transport tag.
func TransportOf(r Response) (Transport, bool) {
	if m, ok := r.(Message); ok {
		return m.Transport, true
	}
	return TransportStream, false
}
