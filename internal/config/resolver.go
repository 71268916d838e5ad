package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
)

// Resolver produces the per-invocation configuration snapshot by merging
// a project manifest over built-in defaults, field by field.
//
// Resolution is deliberately infallible: a missing or malformed manifest
// degrades to defaults with the snapshot's Warning flag set. A project's
// broken manifest must never block its own cleanup.
type Resolver struct {
	logger *zap.Logger
}

// NewResolver creates a Resolver.
func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logger: logger}
}

// Resolve discovers the manifest at or above workdir and merges its
// declared fields over defaults. The manifest wins per field; a field
// with an unusable value keeps the default and sets Warning.
func (r *Resolver) Resolve(workdir string) *Snapshot {
	snap := DefaultSnapshot()

	manifestPath := r.findManifest(workdir)
	if manifestPath == "" {
		return snap
	}
	snap.ManifestPath = manifestPath

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		r.logger.Warn("manifest unreadable, using defaults",
			zap.String("path", manifestPath),
			zap.Error(err),
		)
		snap.Warning = true
		return snap
	}

	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		r.logger.Warn("manifest malformed, using defaults",
			zap.String("path", manifestPath),
			zap.Error(err),
		)
		snap.Warning = true
		return snap
	}

	r.merge(snap, raw)
	return snap
}

// findManifest walks from workdir up to the filesystem root looking for
// the well-known manifest file.
func (r *Resolver) findManifest(workdir string) string {
	dir, err := filepath.Abs(workdir)
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ManifestName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// merge applies declared manifest fields onto snap. Unknown keys are
// ignored for forward compatibility; type-invalid values keep the
// default and set Warning.
func (r *Resolver) merge(snap *Snapshot, raw map[string]any) {
	if v, ok := raw["line_length"]; ok {
		if n, ok := asInt(v); ok {
			snap.LineLength = n
		} else {
			r.fieldWarning(snap, "line_length", v)
		}
	}

	if v, ok := raw["docstring_style"]; ok {
		if s, ok := v.(string); ok {
			snap.DocstringStyle = s
		} else {
			r.fieldWarning(snap, "docstring_style", v)
		}
	}

	if v, ok := raw["complexity"]; ok {
		if table, ok := v.(map[string]any); ok {
			r.mergeComplexity(snap, table)
		} else {
			r.fieldWarning(snap, "complexity", v)
		}
	}

	if v, ok := raw["tools"]; ok {
		if table, ok := v.(map[string]any); ok {
			r.mergeTools(snap, table)
		} else {
			r.fieldWarning(snap, "tools", v)
		}
	}

	if v, ok := raw["verify"]; ok {
		if table, ok := v.(map[string]any); ok {
			r.mergeCheckers(snap, table)
		} else {
			r.fieldWarning(snap, "verify", v)
		}
	}
}

func (r *Resolver) mergeComplexity(snap *Snapshot, table map[string]any) {
	if v, ok := table["default"]; ok {
		if n, ok := asInt(v); ok {
			snap.ComplexityCeiling = n
		} else {
			r.fieldWarning(snap, "complexity.default", v)
		}
	}
	if v, ok := table["ui"]; ok {
		if n, ok := asInt(v); ok {
			snap.UIComplexityCeiling = n
		} else {
			r.fieldWarning(snap, "complexity.ui", v)
		}
	}
	if v, ok := table["ui_paths"]; ok {
		if pats, ok := asStringSlice(v); ok {
			snap.UIPathPatterns = pats
		} else {
			r.fieldWarning(snap, "complexity.ui_paths", v)
		}
	}
}

// mergeTools applies per-tool enablement and command overrides. The
// enabled list keeps canonical order regardless of manifest key order.
func (r *Resolver) mergeTools(snap *Snapshot, table map[string]any) {
	disabled := map[string]bool{}
	for name, v := range table {
		if name == "commands" {
			continue
		}
		if !knownTool(name) {
			continue
		}
		if enabled, ok := v.(bool); ok {
			disabled[name] = !enabled
		} else {
			r.fieldWarning(snap, "tools."+name, v)
		}
	}
	if len(disabled) > 0 {
		kept := make([]string, 0, len(CanonicalToolOrder))
		for _, name := range CanonicalToolOrder {
			if !disabled[name] {
				kept = append(kept, name)
			}
		}
		snap.EnabledTools = kept
	}

	if v, ok := table["commands"]; ok {
		cmds, ok := v.(map[string]any)
		if !ok {
			r.fieldWarning(snap, "tools.commands", v)
			return
		}
		for name, cv := range cmds {
			if !knownTool(name) {
				continue
			}
			argv, ok := asStringSlice(cv)
			if !ok || len(argv) == 0 {
				r.fieldWarning(snap, "tools.commands."+name, cv)
				continue
			}
			if snap.ToolCommands == nil {
				snap.ToolCommands = map[string][]string{}
			}
			snap.ToolCommands[name] = argv
		}
	}
}

func (r *Resolver) mergeCheckers(snap *Snapshot, table map[string]any) {
	for ext, v := range table {
		argv, ok := asStringSlice(v)
		if !ok || len(argv) == 0 {
			r.fieldWarning(snap, "verify."+ext, v)
			continue
		}
		if snap.SyntaxCheckers == nil {
			snap.SyntaxCheckers = map[string][]string{}
		}
		snap.SyntaxCheckers["."+ext] = argv
	}
}

func (r *Resolver) fieldWarning(snap *Snapshot, field string, got any) {
	r.logger.Warn("manifest field unusable, keeping default",
		zap.String("field", field),
		zap.Any("value", got),
	)
	snap.Warning = true
}

func knownTool(name string) bool {
	for _, t := range CanonicalToolOrder {
		if t == name {
			return true
		}
	}
	return false
}

func asInt(v any) (int, bool) {
	// TOML integers decode as int64.
	if n, ok := v.(int64); ok {
		return int(n), true
	}
	return 0, false
}

func asStringSlice(v any) ([]string, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
