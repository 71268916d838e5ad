// Package checkpoint snapshots and restores working trees as git
// commits. Protection commits are taken before any tool may mutate
// files; completion commits seal a verified result. The two message
// prefixes make the automation history searchable with plain git log.
package checkpoint

import (
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// Commit message prefixes. Fixed so audits can pattern-match the
// automation history.
const (
	ProtectionPrefix = "remedy-protect:"
	CompletionPrefix = "remedy-complete:"
)

const (
	committerName  = "remedyd"
	committerEmail = "remedyd@localhost"
)

// Manager creates and restores checkpoints for a working directory.
// Every operation either fully succeeds or leaves the repository in its
// prior state; a failure here is fatal to the invocation.
type Manager struct {
	logger *zap.Logger
}

// NewManager creates a Manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{logger: logger}
}

// CreateProtection commits the current tree under the protection prefix.
// When the tree is already clean it no-ops onto the current HEAD commit
// instead of creating an empty one.
func (m *Manager) CreateProtection(dir string) (*record.Checkpoint, error) {
	repo, wt, err := m.open(dir)
	if err != nil {
		return nil, err
	}

	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("checkpoint status: %w", err)
	}

	if status.IsClean() {
		head, err := repo.Head()
		if err == nil {
			cp := &record.Checkpoint{
				Kind:       record.CheckpointProtection,
				RevisionID: head.Hash().String(),
				CreatedAt:  time.Now().UTC(),
				Message:    fmt.Sprintf("%s clean tree at HEAD", ProtectionPrefix),
			}
			m.logger.Debug("tree clean, protection checkpoint is current HEAD",
				zap.String("revision", cp.RevisionID))
			return cp, nil
		}
		// No HEAD yet (unborn branch): fall through and create the
		// first commit.
	}

	message := fmt.Sprintf("%s pre-remediation snapshot of %s", ProtectionPrefix, dir)
	hash, err := m.commitAll(wt, message)
	if err != nil {
		return nil, fmt.Errorf("protection checkpoint: %w", err)
	}

	cp := &record.Checkpoint{
		Kind:       record.CheckpointProtection,
		RevisionID: hash.String(),
		CreatedAt:  time.Now().UTC(),
		Message:    message,
	}
	m.logger.Info("protection checkpoint created",
		zap.String("dir", dir),
		zap.String("revision", cp.RevisionID),
	)
	return cp, nil
}

// CreateCompletion commits the post-remediation tree under the
// completion prefix, referencing the record that produced it. A clean
// tree (tools changed nothing) resolves to the current HEAD.
func (m *Manager) CreateCompletion(dir, recordID string) (*record.Checkpoint, error) {
	repo, wt, err := m.open(dir)
	if err != nil {
		return nil, err
	}

	message := fmt.Sprintf("%s verified remediation result (record %s)", CompletionPrefix, recordID)

	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("checkpoint status: %w", err)
	}
	if status.IsClean() {
		head, err := repo.Head()
		if err != nil {
			return nil, fmt.Errorf("completion checkpoint resolve HEAD: %w", err)
		}
		return &record.Checkpoint{
			Kind:       record.CheckpointCompletion,
			RevisionID: head.Hash().String(),
			CreatedAt:  time.Now().UTC(),
			Message:    message,
		}, nil
	}

	hash, err := m.commitAll(wt, message)
	if err != nil {
		return nil, fmt.Errorf("completion checkpoint: %w", err)
	}

	cp := &record.Checkpoint{
		Kind:       record.CheckpointCompletion,
		RevisionID: hash.String(),
		CreatedAt:  time.Now().UTC(),
		Message:    message,
	}
	m.logger.Info("completion checkpoint created",
		zap.String("dir", dir),
		zap.String("record_id", recordID),
		zap.String("revision", cp.RevisionID),
	)
	return cp, nil
}

// RevertTo hard-resets the working tree to the checkpoint's revision and
// removes files created since. Safe and idempotent: reverting a tree
// already at the revision is a no-op.
func (m *Manager) RevertTo(dir string, cp *record.Checkpoint) error {
	_, wt, err := m.open(dir)
	if err != nil {
		return err
	}

	hash := plumbing.NewHash(cp.RevisionID)
	if err := wt.Reset(&git.ResetOptions{Commit: hash, Mode: git.HardReset}); err != nil {
		return fmt.Errorf("revert to %s: %w", cp.RevisionID, err)
	}
	// Hard reset leaves untracked files behind; a revert must restore
	// the exact checkpoint tree.
	if err := wt.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return fmt.Errorf("revert clean untracked: %w", err)
	}

	m.logger.Info("working tree reverted",
		zap.String("dir", dir),
		zap.String("revision", cp.RevisionID),
	)
	return nil
}

func (m *Manager) open(dir string) (*git.Repository, *git.Worktree, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, nil, fmt.Errorf("open repository at %s: %w", dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, nil, fmt.Errorf("open worktree: %w", err)
	}
	return repo, wt, nil
}

func (m *Manager) commitAll(wt *git.Worktree, message string) (plumbing.Hash, error) {
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("stage tree: %w", err)
	}
	now := time.Now()
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author:    &object.Signature{Name: committerName, Email: committerEmail, When: now},
		Committer: &object.Signature{Name: committerName, Email: committerEmail, When: now},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit: %w", err)
	}
	return hash, nil
}
