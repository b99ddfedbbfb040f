// Package logging builds the process logger from configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/omochice/relay-chat/internal/config"
)

// New builds a zerolog.Logger writing to every configured output. The returned
// function closes file outputs and should be deferred by the caller.
func New(c config.LogConfig) (zerolog.Logger, func(), error) {
	level, err := ParseLevel(c.Level)
	if err != nil {
		return zerolog.Nop(), func() {}, err
	}

	outputs := c.Outputs
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	var (
		writers []io.Writer
		closers []io.Closer
	)
	closeAll := func() {
		for _, cl := range closers {
			_ = cl.Close()
		}
	}

	for _, out := range outputs {
		var w io.Writer
		switch strings.ToLower(out) {
		case "stdout":
			w = os.Stdout
		case "stderr":
			w = os.Stderr
		default:
			fw, err := openFile(out, c.Rotation)
			if err != nil {
				closeAll()
				return zerolog.Nop(), func() {}, err
			}
			closers = append(closers, fw)
			w = fw
		}
		writers = append(writers, format(w, c))
	}

	var w io.Writer = writers[0]
	if len(writers) > 1 {
		w = zerolog.MultiLevelWriter(writers...)
	}

	ctx := zerolog.New(w).Level(level).With().Timestamp()
	if c.Development {
		ctx = ctx.Caller()
	}
	return ctx.Logger(), closeAll, nil
}

// ParseLevel maps a configured level name to a zerolog level. Empty means info.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zerolog.InfoLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "disabled":
		return zerolog.Disabled, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("invalid log level: %q", s)
	}
}

func format(w io.Writer, c config.LogConfig) io.Writer {
	if strings.ToLower(c.Format) == "json" {
		return w
	}
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    !c.Development,
	}
}

type fileWriter interface {
	io.Writer
	io.Closer
}

func openFile(path string, r config.RotationConfig) (fileWriter, error) {
	if r.Enable {
		name := path
		if strings.TrimSpace(r.Filename) != "" {
			name = r.Filename
		}
		return &lumberjack.Logger{
			Filename:   name,
			MaxSize:    max(r.MaxSizeMB, 10),
			MaxBackups: max(r.MaxBackups, 1),
			MaxAge:     max(r.MaxAgeDays, 7),
			Compress:   r.Compress,
		}, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}
