package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/remedyd/internal/fsutil"
	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// pendingRun marks an invocation that created a protection checkpoint
// but has not reached a terminal state. A marker surviving into the
// next invocation means the previous one was killed mid-run; the tree
// is reverted to the protection checkpoint before new work starts.
type pendingRun struct {
	RecordID   string            `json:"record_id"`
	Directory  string            `json:"directory"`
	Protection record.Checkpoint `json:"protection_checkpoint"`
	CreatedAt  time.Time         `json:"created_at"`
}

type pendingStore struct {
	dir string
}

func newPendingStore(stateDir string) *pendingStore {
	return &pendingStore{dir: filepath.Join(stateDir, "pending")}
}

func (p *pendingStore) load(workdir string) (*pendingRun, error) {
	var pr pendingRun
	err := fsutil.ReadJSON(p.path(workdir), &pr)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read pending marker: %w", err)
	}
	return &pr, nil
}

func (p *pendingStore) save(pr *pendingRun) error {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("create pending dir: %w", err)
	}
	if err := fsutil.WriteJSON(p.path(pr.Directory), pr, 0o644); err != nil {
		return fmt.Errorf("write pending marker: %w", err)
	}
	return nil
}

func (p *pendingStore) clear(workdir string) error {
	if err := os.Remove(p.path(workdir)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear pending marker: %w", err)
	}
	return nil
}

func (p *pendingStore) path(workdir string) string {
	sum := sha256.Sum256([]byte(workdir))
	return filepath.Join(p.dir, hex.EncodeToString(sum[:8])+".json")
}
