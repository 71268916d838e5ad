package tools

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/remedyd/internal/config"
	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// The default commands mirror a conventional Python quality chain. All
// of them are overridable per project via the manifest's tools.commands
// table, so the adapters themselves stay language-agnostic.

func formatterDescriptor() Descriptor {
	return Descriptor{
		Name:     "formatter",
		Category: Mutating,
		Run: func(ctx context.Context, env *Env, snap *config.Snapshot, cs *record.ChangeSet) (record.ToolResult, bool) {
			files := sourceFiles(cs.Files)
			if len(files) == 0 {
				return record.ToolResult{}, false
			}
			argv := command(snap, "formatter", []string{
				"black", "--quiet", "--line-length", strconv.Itoa(snap.LineLength),
			})
			return runMutating(ctx, env, "formatter", append(argv, files...), cs.Files), true
		},
	}
}

func importSorterDescriptor() Descriptor {
	return Descriptor{
		Name:     "import-sorter",
		Category: Mutating,
		Run: func(ctx context.Context, env *Env, snap *config.Snapshot, cs *record.ChangeSet) (record.ToolResult, bool) {
			files := sourceFiles(cs.Files)
			if len(files) == 0 {
				return record.ToolResult{}, false
			}
			argv := command(snap, "import-sorter", []string{
				"isort", "--quiet", "--line-length", strconv.Itoa(snap.LineLength),
			})
			return runMutating(ctx, env, "import-sorter", append(argv, files...), cs.Files), true
		},
	}
}

func autofixLinterDescriptor() Descriptor {
	return Descriptor{
		Name:     "autofix-linter",
		Category: Mutating,
		Run: func(ctx context.Context, env *Env, snap *config.Snapshot, cs *record.ChangeSet) (record.ToolResult, bool) {
			files := sourceFiles(cs.Files)
			if len(files) == 0 {
				return record.ToolResult{}, false
			}
			argv := command(snap, "autofix-linter", []string{
				"ruff", "check", "--fix", "--quiet", "--line-length", strconv.Itoa(snap.LineLength),
			})
			return runMutating(ctx, env, "autofix-linter", append(argv, files...), cs.Files), true
		},
	}
}

func typeCheckerDescriptor() Descriptor {
	return Descriptor{
		Name:     "type-checker",
		Category: Observational,
		Run: func(ctx context.Context, env *Env, snap *config.Snapshot, cs *record.ChangeSet) (record.ToolResult, bool) {
			files := sourceFiles(cs.Files)
			if len(files) == 0 {
				return record.ToolResult{}, false
			}
			argv := command(snap, "type-checker", []string{"mypy", "--no-error-summary"})
			return runOnce(ctx, env, "type-checker", append(argv, files...)), true
		},
	}
}

func securityScannerDescriptor() Descriptor {
	return Descriptor{
		Name:     "security-scanner",
		Category: Observational,
		Run: func(ctx context.Context, env *Env, snap *config.Snapshot, cs *record.ChangeSet) (record.ToolResult, bool) {
			files := sourceFiles(cs.Files)
			if len(files) == 0 {
				return record.ToolResult{}, false
			}
			argv := command(snap, "security-scanner", []string{"bandit", "-q"})
			return runOnce(ctx, env, "security-scanner", append(argv, files...)), true
		},
	}
}

// complexityAnalyzerDescriptor enforces the two-tier ceiling by running
// one analysis per tier and folding the captures into a single result.
// The merged exit code is the worst of the tiers.
func complexityAnalyzerDescriptor() Descriptor {
	return Descriptor{
		Name:     "complexity-analyzer",
		Category: Observational,
		Run: func(ctx context.Context, env *Env, snap *config.Snapshot, cs *record.ChangeSet) (record.ToolResult, bool) {
			tiers := map[int][]string{}
			for _, f := range sourceFiles(cs.Files) {
				ceiling := snap.CeilingFor(f)
				tiers[ceiling] = append(tiers[ceiling], f)
			}
			if len(tiers) == 0 {
				return record.ToolResult{}, false
			}

			ceilings := make([]int, 0, len(tiers))
			for c := range tiers {
				ceilings = append(ceilings, c)
			}
			sort.Ints(ceilings)

			merged := record.ToolResult{ToolName: "complexity-analyzer"}
			for _, ceiling := range ceilings {
				// An override still needs the per-tier ceiling, so it is
				// appended as the first argument after the command.
				var argv []string
				if over, ok := snap.ToolCommands["complexity-analyzer"]; ok {
					argv = append(append([]string(nil), over...), strconv.Itoa(ceiling))
				} else {
					argv = []string{"lizard", "--CCN", strconv.Itoa(ceiling), "--warnings_only"}
				}
				res := runOnce(ctx, env, "complexity-analyzer", append(argv, tiers[ceiling]...))
				merged.Stdout += res.Stdout
				merged.Stderr += res.Stderr
				merged.DurationMS += res.DurationMS
				if res.ExitCode != 0 {
					merged.ExitCode = res.ExitCode
				}
			}
			return merged, true
		},
	}
}

func docstringCheckerDescriptor() Descriptor {
	return Descriptor{
		Name:     "docstring-checker",
		Category: Observational,
		Run: func(ctx context.Context, env *Env, snap *config.Snapshot, cs *record.ChangeSet) (record.ToolResult, bool) {
			files := sourceFiles(cs.Files)
			if len(files) == 0 {
				return record.ToolResult{}, false
			}
			argv := command(snap, "docstring-checker", []string{
				"pydocstyle", "--convention=" + snap.DocstringStyle,
			})
			return runOnce(ctx, env, "docstring-checker", append(argv, files...)), true
		},
	}
}

// runMutating wraps a mutating invocation with a content-hash snapshot
// of the full changeset so the result reports exactly which files the
// tool rewrote.
func runMutating(ctx context.Context, env *Env, name string, argv, changesetFiles []string) record.ToolResult {
	before := fileDigests(env.Workdir, changesetFiles)
	res := runOnce(ctx, env, name, argv)
	after := fileDigests(env.Workdir, changesetFiles)
	res.FilesModified = modifiedFiles(before, after)
	return res
}

// sourceFiles filters the changeset to source code the default chain
// operates on, excluding data formats handled only by the verification
// gate.
func sourceFiles(files []string) []string {
	var out []string
	for _, f := range files {
		switch {
		case strings.HasSuffix(f, ".py"):
			out = append(out, f)
		}
	}
	return out
}
