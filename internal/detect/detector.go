// Package detect lists recently changed files for a working directory.
//
// The detection boundary is the later of a persisted per-directory
// high-water-mark (advanced after every completed run) and a fallback
// trailing window for directories remedyd has never seen. An empty
// result is the common case and short-circuits the whole pipeline.
package detect

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/config"
	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// Detector finds files touched since the last completed run.
type Detector struct {
	settings *config.Settings
	marks    *markStore
	logger   *zap.Logger
}

// New creates a Detector backed by the state directory's
// high-water-marks.
func New(settings *config.Settings, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		settings: settings,
		marks:    newMarkStore(settings.StateDir),
		logger:   logger,
	}
}

// Detect walks workdir and returns the files modified after the
// detection boundary, filtered by tracked extensions and ignore rules.
// File paths are slash-separated and relative to workdir so two runs
// over the same tree compare equal.
func (d *Detector) Detect(workdir string, now time.Time) (*record.ChangeSet, error) {
	mark, err := d.marks.load(workdir)
	if err != nil {
		return nil, err
	}

	windowStart := now.Add(-d.settings.DetectionWindow)
	if mark.After(windowStart) {
		windowStart = mark
	}

	var files []string
	err = filepath.WalkDir(workdir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == workdir {
				return err
			}
			// Unreadable subtree: skip it rather than fail the walk.
			d.logger.Debug("skipping unreadable path", zap.String("path", path), zap.Error(err))
			if entry != nil && entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			if path != workdir && d.ignoredDir(entry.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.tracked(entry.Name()) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		if !info.ModTime().After(windowStart) {
			return nil
		}
		rel, err := filepath.Rel(workdir, path)
		if err != nil {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("change detection in %s: %w", workdir, err)
	}

	sort.Strings(files)
	d.logger.Debug("change detection complete",
		zap.String("workdir", workdir),
		zap.Time("window_start", windowStart),
		zap.Int("file_count", len(files)),
	)
	return &record.ChangeSet{
		Files:       files,
		WindowStart: windowStart,
		WindowEnd:   now,
	}, nil
}

// Advance moves the high-water-mark for workdir forward to t. Called
// once per completed run so the next invocation starts where this one
// ended.
func (d *Detector) Advance(workdir string, t time.Time) error {
	return d.marks.advance(workdir, t)
}

func (d *Detector) ignoredDir(name string) bool {
	for _, ignored := range d.settings.IgnoreDirs {
		if name == ignored {
			return true
		}
	}
	return strings.HasPrefix(name, ".")
}

func (d *Detector) tracked(name string) bool {
	ext := filepath.Ext(name)
	for _, tracked := range d.settings.TrackedExtensions {
		if ext == tracked {
			return true
		}
	}
	return false
}
