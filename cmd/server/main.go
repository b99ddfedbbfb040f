package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/omochice/relay-chat/internal/admin"
	"github.com/omochice/relay-chat/internal/config"
	"github.com/omochice/relay-chat/internal/logging"
	"github.com/omochice/relay-chat/internal/server"
	"github.com/omochice/relay-chat/pkg/protocol"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: chatrelay.yaml)")
	addr := flag.String("addr", "", "Address to listen on for TCP and WebSocket clients (e.g., 127.0.0.1:8080)")
	codec := flag.String("codec", "", "Payload codec: proto or cbor")
	adminAddr := flag.String("admin", "", "Address for the HTTP admin endpoints; empty disables them")
	flag.Parse()

	if err := run(*configPath, *addr, *codec, *adminAddr); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, addr, codec, adminAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.Mode = config.ModeServer
	if addr != "" {
		cfg.Addr = addr
	}
	if codec != "" {
		cfg.Codec = codec
	}
	if adminAddr != "" {
		cfg.Admin.Addr = adminAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	c, err := protocol.CodecByName(cfg.Codec)
	if err != nil {
		return err
	}

	srv := server.New(server.Options{
		Addr:   cfg.Addr,
		Codec:  c,
		Logger: logger,
	})
	if err := srv.Listen(); err != nil {
		return err
	}
	logger.Info().
		Str("addr", srv.Addr()).
		Str("codec", c.Name()).
		Msg("accepting TCP and WebSocket connections")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := srv.Serve()
		if errors.Is(err, server.ErrServerStopped) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		srv.Stop()
		return nil
	})
	if cfg.Admin.Addr != "" {
		g.Go(func() error {
			return admin.Serve(gctx, cfg.Admin.Addr, admin.NewRouter(srv.Registry(), logger), logger)
		})
	}

	return g.Wait()
}
