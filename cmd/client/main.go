package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/omochice/relay-chat/internal/client"
	"github.com/omochice/relay-chat/internal/config"
	"github.com/omochice/relay-chat/internal/logging"
	"github.com/omochice/relay-chat/pkg/protocol"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: chatrelay.yaml)")
	serverAddr := flag.String("server", "", "Server address (e.g., localhost:8080)")
	username := flag.String("username", "", "Username for chat")
	stream := flag.String("stream", "", "Stream transport: tcp or ws")
	codec := flag.String("codec", "", "Payload codec: proto or cbor")
	flag.Parse()

	if err := run(*configPath, *serverAddr, *username, *stream, *codec); err != nil {
		fmt.Fprintf(os.Stderr, "client: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, serverAddr, username, stream, codec string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.Mode = config.ModeClient
	if serverAddr != "" {
		cfg.Addr = serverAddr
	}
	if username != "" {
		cfg.Name = username
	}
	if stream != "" {
		cfg.Stream = stream
	}
	if codec != "" {
		cfg.Codec = codec
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w (use -username)", err)
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Debug().Str("server", cfg.Addr).Str("name", cfg.Name).Str("stream", cfg.Stream).Msg("connecting")
	err = client.Run(ctx, client.Options{
		Addr:   cfg.Addr,
		Name:   cfg.Name,
		Codec:  c,
		Stream: cfg.Stream,
		Logger: logger,
	}, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
