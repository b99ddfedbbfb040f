// Package client bridges a user-facing request/response pair to the relay's
// stream and datagram transports.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/rs/zerolog"

	"github.com/omochice/relay-chat/internal/queue"
	"github.com/omochice/relay-chat/internal/transport"
	"github.com/omochice/relay-chat/internal/transport/tcp"
	"github.com/omochice/relay-chat/internal/transport/udp"
	"github.com/omochice/relay-chat/internal/transport/ws"
	"github.com/omochice/relay-chat/pkg/protocol"
)

var (
	// ErrEmptyName is returned before connecting when no name is set.
	ErrEmptyName = errors.New("name must not be empty")
	// ErrHandshake wraps every sign-in failure.
	ErrHandshake = errors.New("handshake failed")
	// ErrBrokenPipe is returned when the response sink no longer accepts responses.
	ErrBrokenPipe = errors.New("response sink closed")
	// ErrServerClosed is returned when the server ends the stream before sign-out.
	ErrServerClosed = errors.New("server closed the connection")
)

// Stream transports the driver can dial.
const (
	StreamTCP       = "tcp"
	StreamWebSocket = "ws"
)

// Options configures a Driver.
type Options struct {
	Addr  string
	Name  string
	Codec protocol.Codec
	// Stream selects the stream transport: "tcp" (default) or "ws".
	Stream string
	Logger zerolog.Logger
}

// Driver runs one client session.
type Driver struct {
	addr   string
	name   string
	codec  protocol.Codec
	stream string
	logger zerolog.Logger
}

// NewDriver creates a Driver.
func NewDriver(opts Options) *Driver {
	if opts.Codec == nil {
		opts.Codec = protocol.Proto()
	}
	if opts.Stream == "" {
		opts.Stream = StreamTCP
	}
	return &Driver{
		addr:   opts.Addr,
		name:   opts.Name,
		codec:  opts.Codec,
		stream: opts.Stream,
		logger: opts.Logger,
	}
}

// Run signs in and then relays requests popped from source to the server and
// responses from the server into sink. It returns nil once source is closed
// and drained. The sign-in acknowledgement is the first response in sink.
func (d *Driver) Run(ctx context.Context, source *queue.Queue[protocol.Request], sink *queue.Queue[protocol.Response]) error {
	if d.name == "" {
		return ErrEmptyName
	}

	stream, err := d.dial(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	// The datagram socket shares the stream's local IP so the advertised
	// address is reachable from the server.
	dgram, err := udp.Listen(net.JoinHostPort(stream.LocalAddr().Addr().String(), "0"))
	if err != nil {
		return err
	}
	defer dgram.Close()

	release := context.AfterFunc(ctx, func() {
		stream.Close()
		dgram.Close()
	})
	defer release()

	ok, err := d.login(stream, dgram)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	d.logger.Info().
		Str("name", d.name).
		Stringer("server_datagram", ok.DatagramAddr).
		Msg("signed in")

	if err := sink.Push(ok); err != nil {
		return ErrBrokenPipe
	}

	err = d.loop(ctx, stream, dgram, source, sink)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (d *Driver) dial(ctx context.Context) (transport.Stream, error) {
	switch d.stream {
	case StreamTCP:
		return tcp.Dial(ctx, d.addr)
	case StreamWebSocket:
		return ws.Dial(ctx, d.addr)
	default:
		return nil, fmt.Errorf("unknown stream transport %q", d.stream)
	}
}

// login sends the sign-in and waits for exactly one response.
func (d *Driver) login(stream transport.Stream, dgram *udp.Conn) (protocol.OK, error) {
	signIn := protocol.SignIn{Name: d.name, DatagramAddr: dgram.LocalAddr()}
	if err := transport.Send[protocol.Request](stream, d.codec, signIn); err != nil {
		return protocol.OK{}, fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	resp, err := transport.Receive[protocol.Response](stream, d.codec)
	if err != nil {
		return protocol.OK{}, fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	switch r := resp.(type) {
	case protocol.OK:
		r.DatagramAddr = transport.Resolve(r.DatagramAddr, stream.RemoteAddr().Addr())
		if err := dgram.Connect(r.DatagramAddr); err != nil {
			return protocol.OK{}, fmt.Errorf("%w: %w", ErrHandshake, err)
		}
		return r, nil
	case protocol.Error:
		return protocol.OK{}, fmt.Errorf("%w: %s", ErrHandshake, r.Code)
	default:
		return protocol.OK{}, fmt.Errorf("%w: %s", ErrHandshake, protocol.CodeInvalidServerResponse)
	}
}

// loop races outbound requests against inbound stream and datagram responses.
func (d *Driver) loop(ctx context.Context, stream transport.Stream, dgram *udp.Conn, source *queue.Queue[protocol.Request], sink *queue.Queue[protocol.Response]) error {
	done := make(chan struct{})
	defer close(done)

	streamIn := transport.Pump[protocol.Response](stream, d.codec, done, nil, true)
	dgramIn := transport.Pump[protocol.Response](dgram, d.codec, done, nil, true)

	signedOut := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-source.Ready():
			req, ok := source.TryPop()
			if !ok {
				if source.Closed() {
					return nil
				}
				continue
			}
			if err := d.send(stream, dgram, req); err != nil {
				return fmt.Errorf("failed to send request: %w", err)
			}
			if _, ok := req.(protocol.SignOut); ok {
				signedOut = true
			}

		case in, ok := <-dgramIn:
			if !ok {
				dgramIn = nil
				continue
			}
			if in.Err != nil {
				d.logger.Debug().Err(in.Err).Msg("dropping datagram")
				continue
			}
			if err := sink.Push(in.Frame); err != nil {
				return ErrBrokenPipe
			}

		case in, ok := <-streamIn:
			if !ok {
				streamIn = nil
				continue
			}
			if in.Err != nil {
				if errors.Is(in.Err, transport.ErrInvalidData) {
					d.logger.Debug().Err(in.Err).Msg("dropping frame")
					continue
				}
				if signedOut {
					return nil
				}
				if errors.Is(in.Err, io.EOF) || errors.Is(in.Err, io.ErrUnexpectedEOF) {
					return ErrServerClosed
				}
				return fmt.Errorf("%w: %w", ErrServerClosed, in.Err)
			}
			if err := sink.Push(in.Frame); err != nil {
				return ErrBrokenPipe
			}
		}
	}
}

// send picks the socket by the request's transport tag. Only direct and
// broadcast sends can travel as datagrams.
func (d *Driver) send(stream transport.Stream, dgram *udp.Conn, req protocol.Request) error {
	var w transport.FrameWriter = stream
	switch r := req.(type) {
	case protocol.Send:
		if r.Transport == protocol.TransportDatagram {
			w = dgram
		}
	case protocol.SendAll:
		if r.Transport == protocol.TransportDatagram {
			w = dgram
		}
	}
	return transport.Send(w, d.codec, req)
}
