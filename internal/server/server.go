// Package server accepts relay connections and runs one session per client.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/omochice/relay-chat/internal/chat"
	"github.com/omochice/relay-chat/internal/transport"
	"github.com/omochice/relay-chat/internal/transport/tcp"
	"github.com/omochice/relay-chat/internal/transport/udp"
	"github.com/omochice/relay-chat/internal/transport/ws"
	"github.com/omochice/relay-chat/pkg/protocol"
)

// ErrServerStopped is returned by Serve after Stop.
var ErrServerStopped = errors.New("server stopped")

// DefaultHandshakeTimeout bounds protocol detection and the sign-in exchange.
const DefaultHandshakeTimeout = 10 * time.Second

// Options configures a Server.
type Options struct {
	// Addr is the stream listen address; datagram sockets bind to its host.
	Addr  string
	Codec protocol.Codec
	// Registry is shared by every session. Nil creates a fresh one.
	Registry         *chat.Registry
	HandshakeTimeout time.Duration
	Logger           zerolog.Logger
}

// Server is the relay's connection acceptor.
type Server struct {
	address          string
	codec            protocol.Codec
	registry         *chat.Registry
	handshakeTimeout time.Duration
	logger           zerolog.Logger

	mu       sync.Mutex
	listener net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Server. Nothing is bound until Listen or Start.
func New(opts Options) *Server {
	if opts.Codec == nil {
		opts.Codec = protocol.Proto()
	}
	if opts.Registry == nil {
		opts.Registry = chat.NewRegistry()
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		address:          opts.Addr,
		codec:            opts.Codec,
		registry:         opts.Registry,
		handshakeTimeout: opts.HandshakeTimeout,
		logger:           opts.Logger,
		ctx:              ctx,
		cancel:           cancel,
	}
}

// Listen binds the stream listener.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info().
		Str("addr", listener.Addr().String()).
		Str("codec", s.codec.Name()).
		Msg("server started")
	return nil
}

// Start binds and serves until Stop or an acceptance failure.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Serve runs the accept loop on a bound listener. Every iteration binds a
// fresh datagram socket and then accepts one stream connection. A bind or
// accept failure stops the loop; a session failure never does.
func (s *Server) Serve() error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return errors.New("server is not listening")
	}

	host, _, err := net.SplitHostPort(s.address)
	if err != nil {
		return fmt.Errorf("failed to parse listen address: %w", err)
	}

	for {
		dgram, err := udp.Listen(net.JoinHostPort(host, "0"))
		if err != nil {
			if s.stopped() {
				return ErrServerStopped
			}
			return err
		}

		conn, err := listener.Accept()
		if err != nil {
			dgram.Close()
			if s.stopped() {
				return ErrServerStopped
			}
			return fmt.Errorf("failed to accept connection: %w", err)
		}

		s.wg.Add(1)
		go s.handleConnection(conn, dgram)
	}
}

// Stop closes the listener, tears down every live session and waits for them.
func (s *Server) Stop() {
	s.cancel()

	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("server stopped")
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Registry returns the registry shared by the server's sessions.
func (s *Server) Registry() *chat.Registry {
	return s.registry
}

func (s *Server) stopped() bool {
	return s.ctx.Err() != nil
}

func (s *Server) handleConnection(conn net.Conn, dgram *udp.Conn) {
	defer s.wg.Done()

	logger := s.logger.With().
		Str("session", uuid.NewString()).
		Str("remote", conn.RemoteAddr().String()).
		Logger()

	// Stop unblocks every read of this connection by closing its sockets.
	release := context.AfterFunc(s.ctx, func() {
		conn.Close()
		dgram.Close()
	})
	defer release()

	_ = conn.SetReadDeadline(time.Now().Add(s.handshakeTimeout))

	stream, kind, err := s.openStream(conn)
	if err != nil {
		logger.Debug().Err(err).Msg("stream setup failed")
		conn.Close()
		dgram.Close()
		return
	}

	logger = logger.With().Stringer("stream", kind).Logger()

	sess := &session{
		registry: s.registry,
		codec:    s.codec,
		stream:   stream,
		dgram:    dgram,
		deadline: conn,
		logger:   logger,
	}
	sess.run(s.ctx)
}

func (s *Server) openStream(conn net.Conn) (transport.Stream, streamKind, error) {
	kind, reader, err := detectStream(conn)
	if err != nil {
		return nil, kind, fmt.Errorf("failed to detect protocol: %w", err)
	}
	if kind == streamWebSocket {
		stream, err := ws.Upgrade(conn, reader)
		if err != nil {
			return nil, kind, err
		}
		return stream, kind, nil
	}
	return tcp.NewConnWithReader(conn, reader), kind, nil
}
