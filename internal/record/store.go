package record

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/fsutil"
)

// Store persists remediation records as one JSON artifact per
// invocation under <stateDir>/records, named by timestamp and event id
// so the directory sorts chronologically.
type Store struct {
	dir    string
	logger *zap.Logger
}

// NewStore creates a Store rooted at stateDir.
func NewStore(stateDir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		dir:    filepath.Join(stateDir, "records"),
		logger: logger,
	}
}

// Write finalizes rec, stamps WrittenAt, and persists it atomically.
// Returns the artifact path.
func (s *Store) Write(rec *RemediationRecord) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create records dir: %w", err)
	}
	if rec.WrittenAt.IsZero() {
		rec.WrittenAt = time.Now().UTC()
	}

	name := fmt.Sprintf("%s-%s.json",
		rec.WrittenAt.UTC().Format("20060102T150405.000000000Z"),
		sanitizeID(rec.TriggerEventID),
	)
	path := filepath.Join(s.dir, name)

	if err := fsutil.WriteJSON(path, rec, 0o644); err != nil {
		return "", fmt.Errorf("persist record: %w", err)
	}

	s.logger.Info("remediation record written",
		zap.String("record_id", rec.RecordID),
		zap.String("final_status", string(rec.FinalStatus)),
		zap.String("path", path),
	)
	return path, nil
}

// List returns all records ordered oldest first. A missing records
// directory yields an empty slice.
func (s *Store) List() ([]*RemediationRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read records dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	records := make([]*RemediationRecord, 0, len(names))
	for _, name := range names {
		var rec RemediationRecord
		if err := fsutil.ReadJSON(filepath.Join(s.dir, name), &rec); err != nil {
			s.logger.Warn("skipping unreadable record",
				zap.String("file", name),
				zap.Error(err),
			)
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}

// Latest returns the most recent record for workdir, or nil when none
// exists.
func (s *Store) Latest(workdir string) (*RemediationRecord, error) {
	records, err := s.List()
	if err != nil {
		return nil, err
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].WorkingDirectory == workdir {
			return records[i], nil
		}
	}
	return nil, nil
}

// Get returns the record with the given id.
func (s *Store) Get(recordID string) (*RemediationRecord, error) {
	records, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.RecordID == recordID {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("record not found: %s", recordID)
}

// sanitizeID strips path-hostile characters from an event id used in a
// file name.
func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
