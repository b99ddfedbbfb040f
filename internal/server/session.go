package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/omochice/relay-chat/internal/chat"
	"github.com/omochice/relay-chat/internal/observability"
	"github.com/omochice/relay-chat/internal/transport"
	"github.com/omochice/relay-chat/internal/transport/udp"
	"github.com/omochice/relay-chat/pkg/protocol"
)

type state int

const (
	stateHandshaking state = iota
	stateActive
	stateClosing
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateHandshaking:
		return "handshaking"
	case stateActive:
		return "active"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var errUnexpectedRequest = errors.New("first request is not a sign-in")

// session serves one client connection. It owns the stream and the datagram
// socket exclusively and reaches other clients only through the registry.
type session struct {
	registry *chat.Registry
	codec    protocol.Codec
	stream   transport.Stream
	dgram    *udp.Conn
	deadline interface{ SetReadDeadline(time.Time) error }
	logger   zerolog.Logger

	state state
	peer  *chat.Peer
	pumps sync.WaitGroup
}

func (s *session) run(ctx context.Context) {
	defer s.close()

	if err := s.handshake(); err != nil {
		observability.RecordHandshake("failed")
		s.logger.Info().Err(err).Msg("handshake failed")
		return
	}
	observability.RecordHandshake("ok")
	_ = s.deadline.SetReadDeadline(time.Time{})

	s.setState(stateActive)
	observability.SessionOpened()
	defer observability.SessionClosed()

	s.logger.Info().Stringer("datagram_peer", s.dgram.Peer()).Msg("user joined")
	s.announce(s.peer.Name + " has joined the chat")

	s.serve(ctx)

	s.setState(stateClosing)
	s.announce(s.peer.Name + " has left the chat")
	s.registry.Remove(s.peer.Name, s.peer.Addr)
	s.peer.Inbox.Close()
	s.logger.Info().Msg("user left")
}

// handshake reads the sign-in, connects the datagram socket to the client and
// registers the peer before acknowledging. On failure nothing stays registered.
func (s *session) handshake() error {
	req, err := transport.Receive[protocol.Request](s.stream, s.codec)
	if err != nil {
		if errors.Is(err, transport.ErrInvalidData) {
			s.reject(protocol.CodeInvalidName)
		}
		return fmt.Errorf("failed to read sign-in: %w", err)
	}

	signIn, ok := req.(protocol.SignIn)
	if !ok {
		s.reject(protocol.CodeInvalidName)
		return fmt.Errorf("%w: got %T", errUnexpectedRequest, req)
	}
	s.logger = s.logger.With().Str("name", signIn.Name).Logger()

	remote := s.stream.RemoteAddr()
	if err := s.dgram.Connect(transport.Resolve(signIn.DatagramAddr, remote.Addr())); err != nil {
		s.reject(protocol.CodeInvalidName)
		return err
	}

	peer, err := s.registry.Add(signIn.Name, remote, s.stream, s.dgram)
	if err != nil {
		code := protocol.CodeInvalidName
		if errors.Is(err, chat.ErrNameTaken) {
			code = protocol.CodeNameTaken
		}
		s.reject(code)
		return fmt.Errorf("failed to register %q: %w", signIn.Name, err)
	}

	local := transport.Resolve(s.dgram.LocalAddr(), s.stream.LocalAddr().Addr())
	if err := transport.Send[protocol.Response](s.stream, s.codec, protocol.OK{DatagramAddr: local}); err != nil {
		s.registry.Remove(peer.Name, peer.Addr)
		peer.Inbox.Close()
		return fmt.Errorf("failed to acknowledge sign-in: %w", err)
	}

	s.peer = peer
	return nil
}

func (s *session) reject(code protocol.ErrorCode) {
	if err := transport.Send[protocol.Response](s.stream, s.codec, protocol.Error{Code: code}); err != nil {
		s.logger.Debug().Err(err).Msg("failed to send rejection")
	}
}

// serve races the inbox, the datagram socket and the stream until the client
// signs out, the stream fails, or ctx is done.
func (s *session) serve(ctx context.Context) {
	done := make(chan struct{})
	defer close(done)

	streamIn := transport.Pump[protocol.Request](s.stream, s.codec, done, &s.pumps, false)
	dgramIn := transport.Pump[protocol.Request](s.dgram, s.codec, done, &s.pumps, true)

	for {
		select {
		case <-ctx.Done():
			return

		case <-s.peer.Inbox.Ready():
			if resp, ok := s.peer.Inbox.TryPop(); ok {
				s.deliver(resp)
			}

		case in, ok := <-dgramIn:
			if !ok {
				dgramIn = nil
				continue
			}
			if in.Err != nil {
				s.logger.Debug().Err(in.Err).Msg("dropping datagram")
				continue
			}
			s.dispatch(in.Frame, protocol.TransportDatagram)

		case in, ok := <-streamIn:
			if !ok {
				return
			}
			if in.Err != nil {
				if errors.Is(in.Err, io.EOF) || errors.Is(in.Err, net.ErrClosed) {
					s.logger.Debug().Msg("stream closed")
				} else {
					s.logger.Info().Err(in.Err).Msg("stream failed")
				}
				return
			}
			if _, ok := in.Frame.(protocol.SignOut); ok {
				return
			}
			s.dispatch(in.Frame, protocol.TransportStream)
		}
	}
}

// dispatch turns a request into a message from this peer and hands it to the
// registry. Failures are not reported back to the sender.
func (s *session) dispatch(req protocol.Request, via protocol.Transport) {
	msg, ok := protocol.ToMessage(req, s.peer.Name)
	if !ok {
		s.logger.Debug().Str("request", fmt.Sprintf("%T", req)).Stringer("via", via).Msg("ignoring request")
		return
	}

	if msg.IsBroadcast() {
		n := s.registry.Broadcast(msg)
		observability.RecordRouted("broadcast", msg.Transport.String())
		s.logger.Debug().Int("delivered", n).Stringer("transport", msg.Transport).Msg("broadcast")
		return
	}

	if err := s.registry.Route(msg); err != nil {
		observability.RecordRoutingFailure(failureReason(err))
		s.logger.Debug().Err(err).Str("receiver", msg.Receiver).Msg("routing failed")
		return
	}
	observability.RecordRouted("direct", msg.Transport.String())
}

// deliver writes a queued response on the transport it is tagged with.
func (s *session) deliver(resp protocol.Response) {
	tr, _ := protocol.TransportOf(resp)

	var w transport.FrameWriter = s.stream
	if tr == protocol.TransportDatagram {
		w = s.dgram
	}
	if err := transport.Send(w, s.codec, resp); err != nil {
		observability.RecordDeliveryFailure(tr.String())
		s.logger.Debug().Err(err).Stringer("transport", tr).Msg("delivery failed")
	}
}

func (s *session) announce(text string) {
	s.registry.Broadcast(protocol.Message{
		Text:      text,
		Sender:    protocol.ServerName,
		Receiver:  protocol.BroadcastName,
		Transport: protocol.TransportStream,
	})
}

func (s *session) close() {
	s.stream.Close()
	s.dgram.Close()
	s.pumps.Wait()
	s.setState(stateClosed)
}

func (s *session) setState(st state) {
	s.state = st
	s.logger.Debug().Stringer("state", st).Msg("session state")
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, chat.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, chat.ErrChannelClosed):
		return "channel_closed"
	default:
		return "unknown"
	}
}
