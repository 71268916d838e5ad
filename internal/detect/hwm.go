package detect

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/remedyd/internal/fsutil"
)

// waterMark is the persisted last-successful-run timestamp for one
// working directory. It replaces a pure wall-clock window: each trigger
// may be a fresh process, so the mark must survive process exit.
type waterMark struct {
	Directory string    `json:"directory"`
	Timestamp time.Time `json:"timestamp"`
}

// markStore reads and advances per-directory high-water-marks under
// <stateDir>/hwm.
type markStore struct {
	dir string
}

func newMarkStore(stateDir string) *markStore {
	return &markStore{dir: filepath.Join(stateDir, "hwm")}
}

// load returns the mark for workdir, or the zero time when none exists.
func (m *markStore) load(workdir string) (time.Time, error) {
	var mark waterMark
	err := fsutil.ReadJSON(m.path(workdir), &mark)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("read high-water-mark: %w", err)
	}
	return mark.Timestamp, nil
}

// advance persists t as the new mark for workdir. Never moves backwards.
func (m *markStore) advance(workdir string, t time.Time) error {
	current, err := m.load(workdir)
	if err == nil && !current.Before(t) {
		return nil
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("create hwm dir: %w", err)
	}
	mark := waterMark{Directory: workdir, Timestamp: t.UTC()}
	if err := fsutil.WriteJSON(m.path(workdir), &mark, 0o644); err != nil {
		return fmt.Errorf("write high-water-mark: %w", err)
	}
	return nil
}

// path keys the mark file by a digest of the absolute directory path so
// arbitrary paths map to flat file names.
func (m *markStore) path(workdir string) string {
	sum := sha256.Sum256([]byte(workdir))
	return filepath.Join(m.dir, hex.EncodeToString(sum[:8])+".json")
}
