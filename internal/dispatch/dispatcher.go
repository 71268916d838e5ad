// Package dispatch receives trigger events from the host session and
// decides whether an orchestrator run happens: it decodes the payload,
// holds the per-directory run lock, and debounces redundant SessionEnd
// triggers. Staleness of quality checks is acceptable; blocking the
// host session is not, so contention drops the event instead of
// queueing it.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/config"
	"github.com/fyrsmithlabs/remedyd/internal/detect"
	"github.com/fyrsmithlabs/remedyd/internal/orchestrator"
	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// ParseTrigger decodes one trigger event payload. Unknown fields are
// tolerated for forward compatibility; missing required fields are
// rejected, which is the only malformed-input case that may surface as
// a non-zero process exit.
func ParseTrigger(r io.Reader) (*record.TriggerEvent, error) {
	var event record.TriggerEvent
	if err := json.NewDecoder(r).Decode(&event); err != nil {
		return nil, fmt.Errorf("decode trigger payload: %w", err)
	}
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trigger payload: %w", err)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	return &event, nil
}

// Dispatcher guards orchestrator invocations.
type Dispatcher struct {
	settings *config.Settings
	store    *record.Store
	detector *detect.Detector
	orch     *orchestrator.Orchestrator
	locker   *Locker
	logger   *zap.Logger
}

// New wires a Dispatcher over shared components.
func New(settings *config.Settings, store *record.Store, orch *orchestrator.Orchestrator, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		settings: settings,
		store:    store,
		detector: detect.New(settings, logger),
		orch:     orch,
		locker:   NewLocker(settings.StateDir, settings.LockWait, settings.LockStale, logger),
		logger:   logger,
	}
}

// Dispatch processes one trigger event. The returned record is nil when
// the event was dropped (lock contention or debounce), which is a
// normal outcome, not an error.
func (d *Dispatcher) Dispatch(ctx context.Context, event *record.TriggerEvent) (*record.RemediationRecord, error) {
	release, err := d.locker.Acquire(event.WorkingDirectory)
	if err != nil {
		if errors.Is(err, ErrLocked) {
			d.logger.Info("dropping trigger, directory busy",
				zap.String("event_id", event.EventID),
				zap.String("directory", event.WorkingDirectory),
			)
			return nil, nil
		}
		return nil, err
	}
	defer release()

	debounced, err := d.shouldDebounce(event)
	if err != nil {
		d.logger.Warn("debounce check failed, running anyway", zap.Error(err))
	} else if debounced {
		d.logger.Info("debounced session-end trigger",
			zap.String("event_id", event.EventID),
			zap.String("directory", event.WorkingDirectory),
		)
		return nil, nil
	}

	return d.orch.Run(ctx, event)
}

// shouldDebounce drops a SessionEnd that arrives within the grace
// period of an already-processed PostTurn/PostSubtask whose changeset
// covers everything the new event would touch. The host fires both at
// turn boundaries near session close; running twice buys nothing.
func (d *Dispatcher) shouldDebounce(event *record.TriggerEvent) (bool, error) {
	if event.EventKind != record.EventSessionEnd {
		return false, nil
	}

	last, err := d.store.Latest(event.WorkingDirectory)
	if err != nil {
		return false, err
	}
	if last == nil {
		return false, nil
	}
	if last.TriggerKind != record.EventPostTurn && last.TriggerKind != record.EventPostSubtask {
		return false, nil
	}
	if event.OccurredAt.Sub(last.WrittenAt) > d.settings.DebounceGrace {
		return false, nil
	}

	incoming, err := d.detector.Detect(event.WorkingDirectory, event.OccurredAt)
	if err != nil {
		return false, err
	}
	return last.ChangeSet.Covers(incoming), nil
}
