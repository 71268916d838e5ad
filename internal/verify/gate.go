// Package verify implements the binding post-mutation parse check.
//
// Tool adapter outcomes are advisory; this gate alone decides whether a
// mutated tree is trusted. Every file in the post-mutation changeset is
// re-parsed by a checker appropriate to its type, and a single failure
// fails the whole run.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/remedyd/internal/config"
	"github.com/fyrsmithlabs/remedyd/internal/procrunner"
	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// Gate re-parses changed files after mutation.
type Gate struct {
	runner  *procrunner.Runner
	timeout time.Duration
	logger  *zap.Logger
}

// NewGate creates a Gate. The runner executes external syntax checkers
// for file types without a native parser.
func NewGate(runner *procrunner.Runner, timeout time.Duration, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{runner: runner, timeout: timeout, logger: logger}
}

// Check parses every changeset file and returns the binary outcome plus
// one diagnostic per failing file. All failures are collected before
// returning so the record shows the full damage, but any single failure
// yields Fail.
func (g *Gate) Check(ctx context.Context, workdir string, snap *config.Snapshot, cs *record.ChangeSet) (record.VerificationOutcome, []string) {
	var failures []string
	for _, f := range cs.Files {
		if err := g.checkFile(ctx, workdir, snap, f); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", f, err))
		}
	}
	if len(failures) > 0 {
		g.logger.Warn("verification failed",
			zap.String("workdir", workdir),
			zap.Int("failing_files", len(failures)),
		)
		return record.VerificationFail, failures
	}
	return record.VerificationPass, nil
}

// checkFile picks a checker by extension. Native parsers cover Go and
// the data formats; anything else falls back to the configured external
// checker for its extension, and files with no checker at all are
// skipped rather than failed.
func (g *Gate) checkFile(ctx context.Context, workdir string, snap *config.Snapshot, file string) error {
	path := filepath.Join(workdir, filepath.FromSlash(file))
	ext := strings.ToLower(filepath.Ext(file))

	switch ext {
	case ".go":
		fset := token.NewFileSet()
		_, err := parser.ParseFile(fset, path, nil, parser.AllErrors)
		return err
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if !json.Valid(data) {
			return fmt.Errorf("invalid JSON")
		}
		return nil
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var v any
		return yaml.Unmarshal(data, &v)
	case ".toml":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var v any
		return toml.Unmarshal(data, &v)
	}

	if argv := g.checkerFor(snap, ext); len(argv) > 0 {
		res := g.runner.Run(ctx, workdir, append(argv, file), g.timeout)
		if res.ExitCode != 0 {
			detail := strings.TrimSpace(res.Stderr)
			if detail == "" {
				detail = strings.TrimSpace(res.Stdout)
			}
			return fmt.Errorf("syntax check exited %d: %s", res.ExitCode, detail)
		}
		return nil
	}

	g.logger.Debug("no checker for extension, skipping",
		zap.String("file", file),
		zap.String("ext", ext),
	)
	return nil
}

func (g *Gate) checkerFor(snap *config.Snapshot, ext string) []string {
	if argv, ok := snap.SyntaxCheckers[ext]; ok {
		return argv
	}
	if ext == ".py" {
		return []string{"python3", "-m", "py_compile"}
	}
	return nil
}
