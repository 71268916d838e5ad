// Package logging builds the zap logger used across remedyd.
//
// Logs always go to stderr: stdout belongs to CLI command output and to
// the host session that invoked the hook.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls logger construction.
type Config struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `koanf:"level"`

	// Format is "json" or "console". Defaults to console.
	Format string `koanf:"format"`
}

// Validate checks that level and format are recognized.
func (c *Config) Validate() error {
	if c.Level != "" {
		if _, err := zapcore.ParseLevel(c.Level); err != nil {
			return fmt.Errorf("invalid log level %q: %w", c.Level, err)
		}
	}
	switch c.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid log format %q (want json or console)", c.Format)
	}
	return nil
}

// New creates a logger from config. A nil config yields console/info.
func New(cfg *Config) (*zap.Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := zapcore.InfoLevel
	if cfg.Level != "" {
		level, _ = zapcore.ParseLevel(cfg.Level)
	}

	core := zapcore.NewCore(
		newEncoder(cfg.Format),
		zapcore.Lock(os.Stderr),
		level,
	)
	return zap.New(core), nil
}

// newEncoder creates a JSON or console encoder with ISO8601 timestamps.
func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == "json" {
		return zapcore.NewJSONEncoder(encoderCfg)
	}
	return zapcore.NewConsoleEncoder(encoderCfg)
}
