package config

import (
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyrsmithlabs/remedyd/internal/logging"
)

// ManifestName is the well-known project manifest discovered at or above
// a working directory.
const ManifestName = ".remedy.toml"

// Settings is remedyd's global configuration, loaded from
// ~/.config/remedyd/config.yaml with environment overrides. It is
// host-level plumbing; per-project behavior lives in the Snapshot.
type Settings struct {
	// StateDir holds records, locks, and high-water-marks.
	// Defaults to ~/.local/state/remedyd.
	StateDir string `koanf:"state_dir"`

	Logging logging.Config `koanf:"logging"`

	// DetectionWindow is the fallback trailing window used when no
	// high-water-mark exists for a directory yet.
	DetectionWindow time.Duration `koanf:"detection_window"`

	// TrackedExtensions limits change detection to these suffixes.
	TrackedExtensions []string `koanf:"tracked_extensions"`

	// IgnoreDirs are directory names skipped during change detection.
	IgnoreDirs []string `koanf:"ignore_dirs"`

	// ToolTimeout bounds each tool subprocess.
	ToolTimeout time.Duration `koanf:"tool_timeout"`

	// DebounceGrace is the window after a processed trigger during which
	// a SessionEnd covering the same files is dropped.
	DebounceGrace time.Duration `koanf:"debounce_grace"`

	// LockWait bounds how long lock acquisition may block before the
	// event is dropped.
	LockWait time.Duration `koanf:"lock_wait"`

	// LockStale is the age past which a leftover lock from a dead
	// invocation may be taken over.
	LockStale time.Duration `koanf:"lock_stale"`
}

// Snapshot is the per-invocation resolved project configuration. It is
// immutable once resolved and embedded verbatim in the remediation
// record.
type Snapshot struct {
	LineLength int `json:"line_length" toml:"line_length"`

	// ComplexityCeiling applies to ordinary code; UIComplexityCeiling to
	// paths matched by UIPathPatterns. Presentation code is allowed to be
	// branchier than core logic.
	ComplexityCeiling   int      `json:"complexity_ceiling"`
	UIComplexityCeiling int      `json:"ui_complexity_ceiling"`
	UIPathPatterns      []string `json:"ui_path_patterns"`

	// EnabledTools is the ordered list of tools that will run. Order is
	// fixed by the adapter registry; the manifest only toggles membership.
	EnabledTools []string `json:"enabled_tools"`

	DocstringStyle string `json:"docstring_style"`

	// ToolCommands overrides the default argv per tool name.
	ToolCommands map[string][]string `json:"tool_commands,omitempty"`

	// SyntaxCheckers maps file extensions to external parse-check
	// commands used by the verification gate.
	SyntaxCheckers map[string][]string `json:"syntax_checkers,omitempty"`

	// Warning is set when the manifest was missing fields remedyd could
	// not use (malformed file, type-invalid values). Defaults were
	// substituted; the run proceeds.
	Warning bool `json:"warning"`

	// ManifestPath is the manifest that was merged, empty when none was
	// found.
	ManifestPath string `json:"manifest_path,omitempty"`
}

// ToolEnabled reports whether name is in the enabled set.
func (s *Snapshot) ToolEnabled(name string) bool {
	for _, t := range s.EnabledTools {
		if t == name {
			return true
		}
	}
	return false
}

// CeilingFor returns the complexity ceiling applying to file, using the
// UI tier when the path matches any UI pattern. Patterns match against
// the slash-separated relative path, either as a glob or as a directory
// prefix.
func (s *Snapshot) CeilingFor(file string) int {
	rel := filepath.ToSlash(file)
	for _, pat := range s.UIPathPatterns {
		if ok, err := path.Match(pat, rel); err == nil && ok {
			return s.UIComplexityCeiling
		}
		if strings.HasPrefix(rel, strings.TrimSuffix(pat, "/")+"/") {
			return s.UIComplexityCeiling
		}
	}
	return s.ComplexityCeiling
}
