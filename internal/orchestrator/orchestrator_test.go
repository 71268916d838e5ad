package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/checkpoint"
	"github.com/fyrsmithlabs/remedyd/internal/config"
	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// stripManifest disables everything but the formatter and stubs out the
// external commands so tests rely only on a POSIX shell toolchain.
const stripManifest = `
[tools]
import-sorter = false
autofix-linter = false
type-checker = false
security-scanner = false
complexity-analyzer = false
docstring-checker = false

[tools.commands]
formatter = ["sed", "-i", "s/[ \t]*$//"]

[verify]
py = ["true"]
`

func testSetup(t *testing.T) (*Orchestrator, *record.Store, string) {
	t.Helper()
	settings := config.DefaultSettings()
	settings.StateDir = t.TempDir()

	repo := t.TempDir()
	_, err := git.PlainInit(repo, false)
	require.NoError(t, err)

	store := record.NewStore(settings.StateDir, zap.NewNop())
	return New(settings, store, zap.NewNop()), store, repo
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

func event(dir string) *record.TriggerEvent {
	return &record.TriggerEvent{
		EventID:          "evt-1",
		EventKind:        record.EventPostTurn,
		OccurredAt:       time.Now(),
		WorkingDirectory: dir,
	}
}

func TestRun_EmptyChangeSet(t *testing.T) {
	o, store, repo := testSetup(t)

	rec, err := o.Run(context.Background(), event(repo))
	require.NoError(t, err)

	assert.Equal(t, record.StatusNoActionNeeded, rec.FinalStatus)
	assert.Nil(t, rec.ProtectionCheckpoint)
	assert.Nil(t, rec.CompletionCheckpoint)
	assert.Empty(t, rec.ToolResults)
	assert.Equal(t, record.VerificationSkipped, rec.Verification)

	records, err := store.List()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRun_TrailingWhitespaceCommitted(t *testing.T) {
	o, _, repo := testSetup(t)
	writeFile(t, repo, ".remedy.toml", stripManifest)
	writeFile(t, repo, "a.py", "x = 1   \n")

	rec, err := o.Run(context.Background(), event(repo))
	require.NoError(t, err)

	assert.Equal(t, record.StatusCommitted, rec.FinalStatus)
	assert.Equal(t, record.VerificationPass, rec.Verification)
	require.NotNil(t, rec.ProtectionCheckpoint)
	require.NotNil(t, rec.CompletionCheckpoint)

	require.Len(t, rec.ToolResults, 1)
	assert.Equal(t, "formatter", rec.ToolResults[0].ToolName)
	assert.Equal(t, []string{"a.py"}, rec.ToolResults[0].FilesModified)

	assert.Equal(t, "x = 1\n", readFile(t, repo, "a.py"))

	// The completion checkpoint is the repository HEAD.
	g, err := git.PlainOpen(repo)
	require.NoError(t, err)
	head, err := g.Head()
	require.NoError(t, err)
	assert.Equal(t, rec.CompletionCheckpoint.RevisionID, head.Hash().String())
}

func TestRun_VerificationFailureRollsBack(t *testing.T) {
	o, _, repo := testSetup(t)
	manifest := `
[tools]
import-sorter = false
autofix-linter = false
type-checker = false
security-scanner = false
complexity-analyzer = false
docstring-checker = false

[tools.commands]
formatter = ["sed", "-i", "s/[ \t]*$//"]

[verify]
py = ["false"]
`
	writeFile(t, repo, ".remedy.toml", manifest)
	broken := "def broken(:\n"
	writeFile(t, repo, "b.py", broken)

	rec, err := o.Run(context.Background(), event(repo))
	require.NoError(t, err)

	assert.Equal(t, record.StatusRolledBack, rec.FinalStatus)
	assert.Equal(t, record.VerificationFail, rec.Verification)
	assert.NotEmpty(t, rec.VerificationErrors)
	require.NotNil(t, rec.ProtectionCheckpoint)
	assert.Nil(t, rec.CompletionCheckpoint)

	// The exact pre-run content is restored, invalid syntax and all.
	assert.Equal(t, broken, readFile(t, repo, "b.py"))
}

func TestRun_NotARepositoryFails(t *testing.T) {
	settings := config.DefaultSettings()
	settings.StateDir = t.TempDir()
	store := record.NewStore(settings.StateDir, zap.NewNop())
	o := New(settings, store, zap.NewNop())

	dir := t.TempDir()
	writeFile(t, dir, "a.py", "x = 1\n")

	rec, err := o.Run(context.Background(), event(dir))
	require.NoError(t, err)

	assert.Equal(t, record.StatusFailed, rec.FinalStatus)
	assert.NotEmpty(t, rec.Error)
	assert.Nil(t, rec.ProtectionCheckpoint)
}

func TestRun_SecondRunNoActionNeeded(t *testing.T) {
	o, _, repo := testSetup(t)
	writeFile(t, repo, ".remedy.toml", stripManifest)
	writeFile(t, repo, "a.py", "x = 1   \n")

	first, err := o.Run(context.Background(), event(repo))
	require.NoError(t, err)
	require.Equal(t, record.StatusCommitted, first.FinalStatus)

	// Nothing touched since: the high-water-mark short-circuits.
	time.Sleep(20 * time.Millisecond)
	e := event(repo)
	e.EventID = "evt-2"
	e.OccurredAt = time.Now()
	second, err := o.Run(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, record.StatusNoActionNeeded, second.FinalStatus)
}

func TestRun_DeterministicToolOrder(t *testing.T) {
	o, _, repo := testSetup(t)
	manifest := `
[tools.commands]
formatter = ["true"]
import-sorter = ["true"]
autofix-linter = ["true"]
type-checker = ["true"]
security-scanner = ["true"]
complexity-analyzer = ["true"]
docstring-checker = ["true"]

[verify]
py = ["true"]
`
	writeFile(t, repo, ".remedy.toml", manifest)
	writeFile(t, repo, "a.py", "x = 1\n")

	runNames := func(eventID string) []string {
		e := event(repo)
		e.EventID = eventID
		e.OccurredAt = time.Now()
		rec, err := o.Run(context.Background(), e)
		require.NoError(t, err)
		var names []string
		for _, res := range rec.ToolResults {
			names = append(names, res.ToolName)
		}
		return names
	}

	first := runNames("evt-1")
	require.Equal(t, config.CanonicalToolOrder, first)

	// Touch the same file again: identical changeset, identical order.
	time.Sleep(20 * time.Millisecond)
	writeFile(t, repo, "a.py", "x = 2\n")
	second := runNames("evt-2")
	assert.Equal(t, first, second)
}

func TestRun_RecoversInterruptedRun(t *testing.T) {
	o, _, repo := testSetup(t)
	writeFile(t, repo, ".remedy.toml", stripManifest)
	writeFile(t, repo, "a.py", "good = 1\n")

	// Simulate an invocation killed after its protection checkpoint:
	// the commit exists, the marker exists, the mutation was never
	// resolved.
	cm := checkpoint.NewManager(zap.NewNop())
	protection, err := cm.CreateProtection(repo)
	require.NoError(t, err)
	require.NoError(t, o.pending.save(&pendingRun{
		RecordID:   "run_interrupted",
		Directory:  repo,
		Protection: *protection,
		CreatedAt:  time.Now().UTC(),
	}))
	writeFile(t, repo, "a.py", "half mutated garbage\n")

	rec, err := o.Run(context.Background(), event(repo))
	require.NoError(t, err)

	// The stale mutation was reverted before the new run; the new run
	// then proceeds normally over the restored tree.
	assert.Equal(t, "good = 1\n", readFile(t, repo, "a.py"))
	assert.NotEqual(t, record.StatusFailed, rec.FinalStatus)

	marker, err := o.pending.load(repo)
	require.NoError(t, err)
	assert.Nil(t, marker)
}

func TestCommit_ClearsPendingMarkerImmediately(t *testing.T) {
	o, _, repo := testSetup(t)
	writeFile(t, repo, "a.py", "x = 1\n")

	r := &run{
		event: event(repo),
		rec: &record.RemediationRecord{
			RecordID:     "run_commit",
			Verification: record.VerificationPass,
		},
	}
	var err error
	r.protection, err = o.checkpoints.CreateProtection(repo)
	require.NoError(t, err)
	require.NoError(t, o.pending.save(&pendingRun{
		RecordID:   r.rec.RecordID,
		Directory:  repo,
		Protection: *r.protection,
		CreatedAt:  time.Now().UTC(),
	}))

	in := o.execute(context.Background(), StateCommitting, r)
	require.False(t, in.errored)
	require.NotNil(t, r.rec.CompletionCheckpoint)

	// The marker is gone the moment the completion commit lands, so a
	// crash before finalize cannot revert a committed result.
	marker, err := o.pending.load(repo)
	require.NoError(t, err)
	assert.Nil(t, marker)
}

func TestNextState(t *testing.T) {
	tests := []struct {
		name string
		from State
		in   stepInput
		want State
	}{
		{"idle starts detecting", StateIdle, stepInput{}, StateDetecting},
		{"empty changeset terminates", StateDetecting, stepInput{emptyChangeSet: true}, StateNoActionNeeded},
		{"changes move to configuring", StateDetecting, stepInput{}, StateConfiguring},
		{"configuring always protects", StateConfiguring, stepInput{}, StateProtecting},
		{"protecting moves to mutating", StateProtecting, stepInput{}, StateMutating},
		{"mutating moves to verifying", StateMutating, stepInput{}, StateVerifying},
		{"pass commits", StateVerifying, stepInput{verification: record.VerificationPass}, StateCommitting},
		{"fail rolls back", StateVerifying, stepInput{verification: record.VerificationFail}, StateRollingBack},
		{"committing terminates", StateCommitting, stepInput{}, StateCommitted},
		{"rolling back terminates", StateRollingBack, stepInput{}, StateRolledBack},
		{"error from detecting", StateDetecting, stepInput{errored: true}, StateFailed},
		{"error from committing", StateCommitting, stepInput{errored: true}, StateFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextState(tt.from, tt.in))
		})
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []State{StateNoActionNeeded, StateCommitted, StateRolledBack, StateFailed} {
		assert.True(t, s.Terminal(), s)
	}
	for _, s := range []State{StateIdle, StateDetecting, StateConfiguring, StateProtecting, StateMutating, StateVerifying, StateCommitting, StateRollingBack} {
		assert.False(t, s.Terminal(), s)
	}
}
