package config

import (
	"os"
	"path/filepath"
	"time"
)

// CanonicalToolOrder is the fixed execution order. Mutating tools run
// first, each assuming its predecessor's normalized output; the
// observational tools follow in report-only mode.
var CanonicalToolOrder = []string{
	"formatter",
	"import-sorter",
	"autofix-linter",
	"type-checker",
	"security-scanner",
	"complexity-analyzer",
	"docstring-checker",
}

// DefaultSettings returns built-in global defaults.
func DefaultSettings() *Settings {
	return &Settings{
		StateDir:          defaultStateDir(),
		DetectionWindow:   15 * time.Minute,
		TrackedExtensions: []string{".py", ".go", ".json", ".yaml", ".yml", ".toml"},
		IgnoreDirs: []string{
			".git", ".hg", ".svn",
			"node_modules", "vendor", "__pycache__",
			".venv", "venv", ".tox", ".mypy_cache", ".ruff_cache",
		},
		ToolTimeout:   2 * time.Minute,
		DebounceGrace: 30 * time.Second,
		LockWait:      2 * time.Second,
		LockStale:     10 * time.Minute,
	}
}

// DefaultSnapshot returns the built-in project configuration used when
// no manifest is found or a manifest field is unusable.
func DefaultSnapshot() *Snapshot {
	return &Snapshot{
		LineLength:          100,
		ComplexityCeiling:   10,
		UIComplexityCeiling: 15,
		UIPathPatterns:      []string{"ui/*", "views/*", "components/*"},
		EnabledTools:        append([]string(nil), CanonicalToolOrder...),
		DocstringStyle:      "google",
	}
}

func defaultStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "remedyd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "remedyd")
	}
	return filepath.Join(home, ".local", "state", "remedyd")
}
