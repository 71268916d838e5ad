package dispatch

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/fsutil"
)

// ErrLocked indicates another invocation holds the directory's run lock
// and it could not be acquired within the wait bound.
var ErrLocked = errors.New("working directory is locked by another remediation run")

// lockRecord is the holder metadata written into a lock file. It exists
// for diagnostics and stale-lock takeover, not for enforcement; the
// O_EXCL create is what enforces exclusion.
type lockRecord struct {
	Directory   string    `json:"directory"`
	HolderNonce string    `json:"holder_nonce"`
	PID         int       `json:"pid"`
	AcquiredAt  time.Time `json:"acquired_at"`
}

// Locker serializes orchestrator runs per working directory with
// advisory filesystem locks. Each trigger may be a fresh process, so an
// in-memory mutex cannot work; the lock must live on disk.
type Locker struct {
	dir    string
	wait   time.Duration
	stale  time.Duration
	logger *zap.Logger
}

// NewLocker creates a Locker storing lock files under
// <stateDir>/locks.
func NewLocker(stateDir string, wait, stale time.Duration, logger *zap.Logger) *Locker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locker{
		dir:    filepath.Join(stateDir, "locks"),
		wait:   wait,
		stale:  stale,
		logger: logger,
	}
}

// Acquire takes the lock for workdir, retrying briefly within the wait
// bound. A lock older than the staleness threshold is assumed to belong
// to a dead invocation and is taken over. Returns a release func.
func (l *Locker) Acquire(workdir string) (func(), error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	path := l.path(workdir)
	nonce := uuid.New().String()
	deadline := time.Now().Add(l.wait)

	for {
		acquired, err := l.tryAcquire(path, workdir, nonce)
		if err != nil {
			return nil, err
		}
		if acquired {
			return func() { l.release(path, nonce) }, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLocked
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (l *Locker) tryAcquire(path, workdir, nonce string) (bool, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if !os.IsExist(err) {
			return false, fmt.Errorf("create lock: %w", err)
		}
		l.takeoverIfStale(path)
		return false, nil
	}
	defer file.Close()

	rec := lockRecord{
		Directory:   workdir,
		HolderNonce: nonce,
		PID:         os.Getpid(),
		AcquiredAt:  time.Now().UTC(),
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		os.Remove(path)
		return false, fmt.Errorf("marshal lock: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		os.Remove(path)
		return false, fmt.Errorf("write lock: %w", err)
	}
	if err := file.Sync(); err != nil {
		os.Remove(path)
		return false, fmt.Errorf("sync lock: %w", err)
	}
	return true, nil
}

// takeoverIfStale removes a lock whose holder is long gone so the next
// retry can acquire it. A crashed invocation must not wedge its
// directory forever.
func (l *Locker) takeoverIfStale(path string) {
	var rec lockRecord
	if err := fsutil.ReadJSON(path, &rec); err != nil {
		// Unreadable or vanished between stat and read; let the retry
		// loop sort it out.
		return
	}
	if time.Since(rec.AcquiredAt) < l.stale {
		return
	}
	l.logger.Warn("removing stale run lock",
		zap.String("directory", rec.Directory),
		zap.Int("holder_pid", rec.PID),
		zap.Time("acquired_at", rec.AcquiredAt),
	)
	os.Remove(path)
}

// release removes the lock only if we still hold it.
func (l *Locker) release(path, nonce string) {
	var rec lockRecord
	if err := fsutil.ReadJSON(path, &rec); err != nil {
		return
	}
	if rec.HolderNonce != nonce {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		l.logger.Warn("failed to release run lock", zap.Error(err))
	}
}

func (l *Locker) path(workdir string) string {
	sum := sha256.Sum256([]byte(workdir))
	return filepath.Join(l.dir, hex.EncodeToString(sum[:8])+".lock")
}
