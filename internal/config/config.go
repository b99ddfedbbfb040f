// Package config loads the relay configuration from file, environment and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/omochice/relay-chat/internal/chat"
	"github.com/omochice/relay-chat/pkg/protocol"
)

// EnvPrefix prefixes every environment override, e.g. CHATRELAY_LOG_LEVEL=debug.
const EnvPrefix = "CHATRELAY"

// Mode selects which side of the relay a process runs.
type Mode string

const (
	ModeServer Mode = "server"
	ModeClient Mode = "client"
)

// Stream transports a client can dial.
const (
	StreamTCP       = "tcp"
	StreamWebSocket = "ws"
)

// Config is the root configuration.
type Config struct {
	Mode Mode `mapstructure:"mode"`
	// Addr is the stream address the server listens on or the client dials.
	Addr string `mapstructure:"addr"`
	// Name is the client's display name.
	Name string `mapstructure:"name"`
	// Codec names the payload encoding; both ends must agree.
	Codec string `mapstructure:"codec"`
	// Stream is the client's stream transport: tcp or ws.
	Stream string      `mapstructure:"stream"`
	Log    LogConfig   `mapstructure:"log"`
	Admin  AdminConfig `mapstructure:"admin"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error, disabled
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs     []string       `mapstructure:"outputs"`
	Rotation    RotationConfig `mapstructure:"rotation"`
	Development bool           `mapstructure:"development"`
}

// RotationConfig controls rotation of file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// AdminConfig configures the server's HTTP admin surface. An empty Addr disables it.
type AdminConfig struct {
	Addr string `mapstructure:"addr"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Mode:   ModeServer,
		Addr:   "127.0.0.1:8080",
		Codec:  "proto",
		Stream: StreamTCP,
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				Filename:   "logs/chatrelay.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
	}
}

// Load reads configuration from path if non-empty, else from $CHATRELAY_CONFIG,
// else from chatrelay.yaml in . or ./configs. A missing file is not an error.
// Environment variables override file values. The result is not validated so
// callers can apply flag overrides first.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", string(cfg.Mode))
	v.SetDefault("addr", cfg.Addr)
	v.SetDefault("name", cfg.Name)
	v.SetDefault("codec", cfg.Codec)
	v.SetDefault("stream", cfg.Stream)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("admin.addr", cfg.Admin.Addr)

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("chatrelay")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration and fills empty optional fields.
func (c *Config) Validate() error {
	c.Mode = Mode(strings.ToLower(strings.TrimSpace(string(c.Mode))))
	switch c.Mode {
	case ModeServer, ModeClient:
	default:
		return fmt.Errorf("invalid mode: %q", c.Mode)
	}

	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("invalid addr: empty")
	}

	if c.Mode == ModeClient && !chat.ValidName(c.Name) {
		return fmt.Errorf("invalid name: %q", c.Name)
	}

	if _, err := protocol.CodecByName(c.Codec); err != nil {
		return fmt.Errorf("invalid codec: %w", err)
	}

	c.Stream = strings.ToLower(strings.TrimSpace(c.Stream))
	switch c.Stream {
	case "":
		c.Stream = StreamTCP
	case StreamTCP, StreamWebSocket:
	default:
		return fmt.Errorf("invalid stream: %q", c.Stream)
	}

	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error", "disabled":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}
	return nil
}
