package protocol_test

import (
	"net/netip"
	"testing"

	"github.com/omochice/relay-chat/pkg/protocol"
)

func TestToMessage(t *testing.T) {
	tests := []struct {
		name   string
		req    protocol.Request
		want   protocol.Message
		wantOK bool
	}{
		{
			name:   "direct send keeps receiver",
			req:    protocol.Send{Receiver: "bob", Text: "hi", Transport: protocol.TransportStream},
			want:   protocol.Message{Text: "hi", Sender: "alice", Receiver: "bob", Transport: protocol.TransportStream},
			wantOK: true,
		},
		{
			name:   "send all targets broadcast name",
			req:    protocol.SendAll{Text: "hey", Transport: protocol.TransportDatagram},
			want:   protocol.Message{Text: "hey", Sender: "alice", Receiver: protocol.BroadcastName, Transport: protocol.TransportDatagram},
			wantOK: true,
		},
		{
			name:   "sign out has no message form",
			req:    protocol.SignOut{},
			wantOK: false,
		},
		{
			name:   "sign in has no message form",
			req:    protocol.SignIn{Name: "alice", DatagramAddr: netip.MustParseAddrPort("127.0.0.1:9000")},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := protocol.ToMessage(tt.req, "alice")
			if ok != tt.wantOK {
				t.Fatalf("ToMessage() ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ToMessage() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMessage_IsBroadcast(t *testing.T) {
	if !(protocol.Message{Receiver: "all"}).IsBroadcast() {
		t.Error("receiver \"all\" should be a broadcast")
	}
	if (protocol.Message{Receiver: "bob"}).IsBroadcast() {
		t.Error("receiver \"bob\" should not be a broadcast")
	}
}

func TestResponse_String(t *testing.T) {
	tests := []struct {
		name string
		resp protocol.Response
		want string
	}{
		{
			name: "direct message",
			resp: protocol.Message{Text: "hi", Sender: "alice", Receiver: "bob"},
			want: "[alice]: hi",
		},
		{
			name: "broadcast message",
			resp: protocol.Message{Text: "hey", Sender: "alice", Receiver: "all"},
			want: "(all) [alice]: hey",
		},
		{
			name: "sign-in acknowledgement",
			resp: protocol.OK{DatagramAddr: netip.MustParseAddrPort("127.0.0.1:4000")},
			want: "[server] Logged in; server udp: 127.0.0.1:4000",
		},
		{
			name: "error",
			resp: protocol.Error{Code: protocol.CodeNameTaken},
			want: "[server] Error: name already taken",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := tt.resp.(interface{ String() string })
			if !ok {
				t.Fatalf("%T does not implement String()", tt.resp)
			}
			if got := s.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTransportOf(t *testing.T) {
	tr, ok := protocol.TransportOf(protocol.Message{Transport: protocol.TransportDatagram})
	if !ok || tr != protocol.TransportDatagram {
		t.Errorf("TransportOf(message) = %v, %v, want datagram, true", tr, ok)
	}

	if _, ok := protocol.TransportOf(protocol.Error{Code: protocol.CodeInvalidName}); ok {
		t.Error("TransportOf(error) should report false")
	}
}

func TestTransport_String(t *testing.T) {
	tests := []struct {
		tr   protocol.Transport
		want string
	}{
		{protocol.TransportStream, "stream"},
		{protocol.TransportDatagram, "datagram"},
		{protocol.Transport(7), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.tr.String(); got != tt.want {
			t.Errorf("Transport(%d).String() = %q, want %q", int(tt.tr), got, tt.want)
		}
	}
}
