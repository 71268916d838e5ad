package checkpoint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/record"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	return dir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func readFile(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(data)
}

func TestCreateProtection_CommitsDirtyTree(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "a.py", "x = 1\n")

	m := NewManager(zap.NewNop())
	cp, err := m.CreateProtection(dir)
	require.NoError(t, err)

	assert.Equal(t, record.CheckpointProtection, cp.Kind)
	assert.NotEmpty(t, cp.RevisionID)
	assert.True(t, strings.HasPrefix(cp.Message, ProtectionPrefix))

	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)
	assert.Equal(t, cp.RevisionID, head.Hash().String())
}

func TestCreateProtection_CleanTreeNoOpsOntoHEAD(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "a.py", "x = 1\n")

	m := NewManager(zap.NewNop())
	first, err := m.CreateProtection(dir)
	require.NoError(t, err)

	// Nothing changed since: no new commit, same revision.
	second, err := m.CreateProtection(dir)
	require.NoError(t, err)
	assert.Equal(t, first.RevisionID, second.RevisionID)
}

func TestCreateCompletion_ReferencesRecord(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "a.py", "x = 1\n")

	m := NewManager(zap.NewNop())
	_, err := m.CreateProtection(dir)
	require.NoError(t, err)

	writeFile(t, dir, "a.py", "x = 2\n")
	cp, err := m.CreateCompletion(dir, "run_123")
	require.NoError(t, err)

	assert.Equal(t, record.CheckpointCompletion, cp.Kind)
	assert.True(t, strings.HasPrefix(cp.Message, CompletionPrefix))
	assert.Contains(t, cp.Message, "run_123")
}

func TestRevertTo_RestoresExactTree(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "a.py", "original\n")

	m := NewManager(zap.NewNop())
	cp, err := m.CreateProtection(dir)
	require.NoError(t, err)

	// Mutate tracked content and create an untracked straggler.
	writeFile(t, dir, "a.py", "mangled\n")
	writeFile(t, dir, "junk.py", "left behind\n")

	require.NoError(t, m.RevertTo(dir, cp))

	assert.Equal(t, "original\n", readFile(t, dir, "a.py"))
	_, err = os.Stat(filepath.Join(dir, "junk.py"))
	assert.True(t, os.IsNotExist(err))
}

func TestRevertTo_Idempotent(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "a.py", "original\n")

	m := NewManager(zap.NewNop())
	cp, err := m.CreateProtection(dir)
	require.NoError(t, err)

	require.NoError(t, m.RevertTo(dir, cp))
	require.NoError(t, m.RevertTo(dir, cp))
	assert.Equal(t, "original\n", readFile(t, dir, "a.py"))
}

func TestCreateProtection_NotARepository(t *testing.T) {
	m := NewManager(zap.NewNop())
	_, err := m.CreateProtection(t.TempDir())
	require.Error(t, err)
}
