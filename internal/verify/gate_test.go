package verify

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/config"
	"github.com/fyrsmithlabs/remedyd/internal/procrunner"
	"github.com/fyrsmithlabs/remedyd/internal/record"
)

func newGate(t *testing.T) *Gate {
	t.Helper()
	return NewGate(procrunner.New(zap.NewNop()), 10*time.Second, zap.NewNop())
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestCheck_AllClean(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package main\n\nfunc main() {}\n")
	writeFile(t, dir, "data.json", `{"ok": true}`)
	writeFile(t, dir, "conf.yaml", "key: value\n")
	writeFile(t, dir, "conf.toml", "key = \"value\"\n")

	outcome, diags := newGate(t).Check(context.Background(), dir, config.DefaultSnapshot(),
		&record.ChangeSet{Files: []string{"main.go", "data.json", "conf.yaml", "conf.toml"}})

	assert.Equal(t, record.VerificationPass, outcome)
	assert.Empty(t, diags)
}

func TestCheck_SingleFailureFailsRun(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.go", "package main\n")
	writeFile(t, dir, "bad.go", "package main\n\nfunc broken( {\n")
	writeFile(t, dir, "bad.json", `{"trailing":`)

	outcome, diags := newGate(t).Check(context.Background(), dir, config.DefaultSnapshot(),
		&record.ChangeSet{Files: []string{"good.go", "bad.go", "bad.json"}})

	assert.Equal(t, record.VerificationFail, outcome)
	// All failures collected, not just the first.
	require.Len(t, diags, 2)
	assert.Contains(t, diags[0], "bad.go")
	assert.Contains(t, diags[1], "bad.json")
}

func TestCheck_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "conf.yaml", "key: [unclosed\n")

	outcome, diags := newGate(t).Check(context.Background(), dir, config.DefaultSnapshot(),
		&record.ChangeSet{Files: []string{"conf.yaml"}})

	assert.Equal(t, record.VerificationFail, outcome)
	assert.Len(t, diags, 1)
}

func TestCheck_ExternalCheckerVerdictBinds(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "script.xyz", "anything\n")

	snap := config.DefaultSnapshot()
	snap.SyntaxCheckers = map[string][]string{".xyz": {"false"}}

	outcome, diags := newGate(t).Check(context.Background(), dir, snap,
		&record.ChangeSet{Files: []string{"script.xyz"}})

	assert.Equal(t, record.VerificationFail, outcome)
	require.Len(t, diags, 1)

	snap.SyntaxCheckers[".xyz"] = []string{"true"}
	outcome, _ = newGate(t).Check(context.Background(), dir, snap,
		&record.ChangeSet{Files: []string{"script.xyz"}})
	assert.Equal(t, record.VerificationPass, outcome)
}

func TestCheck_UnknownExtensionSkipped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "README.md", "# fine\n")

	outcome, diags := newGate(t).Check(context.Background(), dir, config.DefaultSnapshot(),
		&record.ChangeSet{Files: []string{"README.md"}})

	assert.Equal(t, record.VerificationPass, outcome)
	assert.Empty(t, diags)
}

func TestCheck_MissingFileFails(t *testing.T) {
	outcome, diags := newGate(t).Check(context.Background(), t.TempDir(), config.DefaultSnapshot(),
		&record.ChangeSet{Files: []string{"vanished.json"}})

	assert.Equal(t, record.VerificationFail, outcome)
	assert.Len(t, diags, 1)
}
