// Package tools adapts external quality tools behind a uniform
// descriptor capability. Adapters differ only in command construction
// and output handling; process execution, timeout, and capture are
// shared. New tools are added by registering a descriptor, never by
// branching orchestrator control flow.
package tools

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/config"
	"github.com/fyrsmithlabs/remedyd/internal/procrunner"
	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// Category classifies what an adapter is permitted to do to the tree.
type Category string

const (
	// Mutating tools may rewrite file contents. They run first, in a
	// fixed order, and must be idempotent on their own output.
	Mutating Category = "Mutating"

	// Observational tools only report findings.
	Observational Category = "Observational"
)

// Env carries the shared execution context for one orchestrator run.
type Env struct {
	Workdir string
	Runner  *procrunner.Runner
	Timeout time.Duration
	Logger  *zap.Logger
}

// RunFunc invokes one tool over the changeset. The boolean is false when
// the changeset contains nothing the tool applies to, in which case no
// result is recorded.
type RunFunc func(ctx context.Context, env *Env, snap *config.Snapshot, cs *record.ChangeSet) (record.ToolResult, bool)

// Descriptor is the uniform adapter capability consumed by the
// orchestrator.
type Descriptor struct {
	Name     string
	Category Category
	Run      RunFunc
}

// runOnce executes argv through the shared runner and converts the
// capture into a ToolResult. Tool failures, including timeouts with
// their sentinel exit codes, become data, never errors: the
// verification gate is the authority on whether the tree is usable.
func runOnce(ctx context.Context, env *Env, name string, argv []string) record.ToolResult {
	res := env.Runner.Run(ctx, env.Workdir, argv, env.Timeout)
	if res.ExitCode != 0 {
		env.Logger.Warn("tool exited non-zero",
			zap.String("tool", name),
			zap.Int("exit_code", res.ExitCode),
			zap.Bool("timed_out", res.TimedOut),
		)
	}
	return record.ToolResult{
		ToolName:   name,
		ExitCode:   res.ExitCode,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		DurationMS: res.Duration.Milliseconds(),
	}
}

// command returns the manifest override for a tool when present, or the
// built-in default argv.
func command(snap *config.Snapshot, name string, def []string) []string {
	if argv, ok := snap.ToolCommands[name]; ok {
		return append([]string(nil), argv...)
	}
	return def
}
