// Package config provides global settings loading and per-project
// manifest resolution for remedyd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// Load reads global settings.
//
// Precedence (highest to lowest):
//  1. Environment variables (REMEDYD_STATE_DIR, REMEDYD_LOGGING_LEVEL, ...)
//  2. YAML config file (~/.config/remedyd/config.yaml by default)
//  3. Built-in defaults
//
// A missing config file is fine; a present but unreadable one is an
// error, since the operator clearly intended it to apply.
func Load(configPath string) (*Settings, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "remedyd", "config.yaml")
	}

	if info, err := os.Stat(configPath); err == nil {
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Environment overrides: REMEDYD_LOGGING_LEVEL -> logging.level,
	// REMEDYD_STATE_DIR -> state_dir. The first underscore separates the
	// section from the field; single-word top-level fields stay flat.
	if err := k.Load(env.Provider("REMEDYD_", ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, "REMEDYD_"))
		for _, section := range []string{"logging"} {
			if strings.HasPrefix(lower, section+"_") {
				return section + "." + strings.TrimPrefix(lower, section+"_")
			}
		}
		return lower
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	settings := DefaultSettings()
	if err := k.Unmarshal("", settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applySettingsDefaults(settings)

	if err := settings.Logging.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return settings, nil
}

// applySettingsDefaults restores defaults for fields zeroed by an
// explicit empty value in the file.
func applySettingsDefaults(s *Settings) {
	def := DefaultSettings()
	if s.StateDir == "" {
		s.StateDir = def.StateDir
	}
	if s.DetectionWindow == 0 {
		s.DetectionWindow = def.DetectionWindow
	}
	if len(s.TrackedExtensions) == 0 {
		s.TrackedExtensions = def.TrackedExtensions
	}
	if len(s.IgnoreDirs) == 0 {
		s.IgnoreDirs = def.IgnoreDirs
	}
	if s.ToolTimeout == 0 {
		s.ToolTimeout = def.ToolTimeout
	}
	if s.DebounceGrace == 0 {
		s.DebounceGrace = def.DebounceGrace
	}
	if s.LockWait == 0 {
		s.LockWait = def.LockWait
	}
	if s.LockStale == 0 {
		s.LockStale = def.LockStale
	}
}
