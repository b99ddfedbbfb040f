package transport_test

import (
	"errors"
	"io"
	"net"
	"net/netip"
	"sync"
	"testing"

	"github.com/omochice/relay-chat/internal/transport"
	"github.com/omochice/relay-chat/pkg/protocol"
)

// pipe is an in-memory frame carrier.
type pipe struct {
	frames [][]byte
}

func (p *pipe) WriteFrame(frame []byte) error {
	p.frames = append(p.frames, frame)
	return nil
}

func (p *pipe) ReadFrame() ([]byte, error) {
	if len(p.frames) == 0 {
		return nil, io.EOF
	}
	f := p.frames[0]
	p.frames = p.frames[1:]
	return f, nil
}

func TestSendReceive(t *testing.T) {
	c := protocol.Proto()
	p := &pipe{}

	want := protocol.Send{Receiver: "bob", Text: "hi", Transport: protocol.TransportStream}
	if err := transport.Send[protocol.Request](p, c, want); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got, err := transport.Receive[protocol.Request](p, c)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if got != want {
		t.Errorf("Receive() = %#v, want %#v", got, want)
	}

	if _, err := transport.Receive[protocol.Request](p, c); !errors.Is(err, io.EOF) {
		t.Errorf("Receive() on empty pipe error = %v, want io.EOF", err)
	}
}

func TestReceive_InvalidData(t *testing.T) {
	c := protocol.Proto()

	tests := []struct {
		name  string
		frame func(t *testing.T) []byte
	}{
		{
			name:  "garbage",
			frame: func(t *testing.T) []byte { return []byte("!!!\n") },
		},
		{
			name: "response where request expected",
			frame: func(t *testing.T) []byte {
				data, err := protocol.Marshal(c, protocol.Error{Code: protocol.CodeNameTaken})
				if err != nil {
					t.Fatalf("Marshal() error = %v", err)
				}
				return data
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &pipe{frames: [][]byte{tt.frame(t)}}
			_, err := transport.Receive[protocol.Request](p, c)
			if !errors.Is(err, transport.ErrInvalidData) {
				t.Errorf("Receive() error = %v, want ErrInvalidData", err)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	observed := netip.MustParseAddr("192.0.2.7")

	tests := []struct {
		name       string
		advertised netip.AddrPort
		want       netip.AddrPort
	}{
		{
			name:       "concrete address kept",
			advertised: netip.MustParseAddrPort("198.51.100.1:4000"),
			want:       netip.MustParseAddrPort("198.51.100.1:4000"),
		},
		{
			name:       "ipv4 wildcard replaced",
			advertised: netip.MustParseAddrPort("0.0.0.0:4000"),
			want:       netip.MustParseAddrPort("192.0.2.7:4000"),
		},
		{
			name:       "ipv6 wildcard replaced",
			advertised: netip.MustParseAddrPort("[::]:4000"),
			want:       netip.MustParseAddrPort("192.0.2.7:4000"),
		},
		{
			name:       "mapped address unmapped",
			advertised: netip.MustParseAddrPort("[::ffff:198.51.100.1]:4000"),
			want:       netip.MustParseAddrPort("198.51.100.1:4000"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := transport.Resolve(tt.advertised, observed); got != tt.want {
				t.Errorf("Resolve() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAddrPort(t *testing.T) {
	tests := []struct {
		name string
		addr net.Addr
		want netip.AddrPort
	}{
		{
			name: "tcp",
			addr: &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 80},
			want: netip.MustParseAddrPort("127.0.0.1:80"),
		},
		{
			name: "udp mapped",
			addr: &net.UDPAddr{IP: net.ParseIP("::ffff:10.0.0.1"), Port: 53},
			want: netip.MustParseAddrPort("10.0.0.1:53"),
		},
		{
			name: "nil",
			addr: nil,
			want: netip.AddrPort{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := transport.AddrPort(tt.addr); got != tt.want {
				t.Errorf("AddrPort() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPump(t *testing.T) {
	c := protocol.Proto()
	good, err := protocol.Marshal(c, protocol.SignOut{})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	tests := []struct {
		name        string
		skipInvalid bool
		wantErrs    int
		wantFrames  int
	}{
		{"stops at invalid data", false, 1, 0},
		{"skips invalid data", true, 2, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &pipe{frames: [][]byte{[]byte("!!!\n"), good}}
			done := make(chan struct{})
			defer close(done)

			var wg sync.WaitGroup
			frames, errs := 0, 0
			for in := range transport.Pump[protocol.Request](p, c, done, &wg, tt.skipInvalid) {
				if in.Err != nil {
					errs++
					continue
				}
				frames++
			}
			wg.Wait()

			if errs != tt.wantErrs || frames != tt.wantFrames {
				t.Errorf("got %d errors and %d frames, want %d and %d", errs, frames, tt.wantErrs, tt.wantFrames)
			}
		})
	}
}

func TestPump_Done(t *testing.T) {
	c := protocol.Proto()
	good, err := protocol.Marshal(c, protocol.SignOut{})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	p := &pipe{frames: [][]byte{good, good, good}}

	done := make(chan struct{})
	var wg sync.WaitGroup
	ch := transport.Pump[protocol.Request](p, c, done, &wg, false)

	<-ch
	close(done)
	wg.Wait()
}
