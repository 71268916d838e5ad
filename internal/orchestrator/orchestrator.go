// Package orchestrator sequences one remediation invocation: detect
// changes, resolve configuration, protect the tree, run the tool chain,
// verify, then commit or revert. The flow is an explicit state machine;
// every invocation ends in exactly one terminal state and persists
// exactly one record.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/checkpoint"
	"github.com/fyrsmithlabs/remedyd/internal/config"
	"github.com/fyrsmithlabs/remedyd/internal/detect"
	"github.com/fyrsmithlabs/remedyd/internal/procrunner"
	"github.com/fyrsmithlabs/remedyd/internal/record"
	"github.com/fyrsmithlabs/remedyd/internal/tools"
	"github.com/fyrsmithlabs/remedyd/internal/verify"
)

// Orchestrator runs the remediation pipeline for trigger events.
type Orchestrator struct {
	settings    *config.Settings
	detector    *detect.Detector
	resolver    *config.Resolver
	checkpoints *checkpoint.Manager
	runner      *procrunner.Runner
	gate        *verify.Gate
	store       *record.Store
	pending     *pendingStore
	logger      *zap.Logger
}

// New wires an Orchestrator from shared components.
func New(settings *config.Settings, store *record.Store, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	runner := procrunner.New(logger)
	return &Orchestrator{
		settings:    settings,
		detector:    detect.New(settings, logger),
		resolver:    config.NewResolver(logger),
		checkpoints: checkpoint.NewManager(logger),
		runner:      runner,
		gate:        verify.NewGate(runner, settings.ToolTimeout, logger),
		store:       store,
		pending:     newPendingStore(settings.StateDir),
		logger:      logger,
	}
}

// run carries the mutable context of one invocation through the states.
type run struct {
	event      *record.TriggerEvent
	rec        *record.RemediationRecord
	snapshot   *config.Snapshot
	changes    *record.ChangeSet
	protection *record.Checkpoint
	err        error
}

// Run executes one invocation for the event and persists its record.
// The returned error reports only record-persistence problems; every
// pipeline outcome, including Failed, is data in the record.
func (o *Orchestrator) Run(ctx context.Context, event *record.TriggerEvent) (*record.RemediationRecord, error) {
	r := &run{
		event: event,
		rec: &record.RemediationRecord{
			RecordID:         "run_" + uuid.New().String(),
			TriggerEventID:   event.EventID,
			TriggerKind:      event.EventKind,
			WorkingDirectory: event.WorkingDirectory,
			Verification:     record.VerificationSkipped,
		},
	}

	o.recoverStaleRun(event.WorkingDirectory)

	state := StateIdle
	in := stepInput{}
	for !state.Terminal() {
		state = nextState(state, in)
		in = o.execute(ctx, state, r)
	}

	o.finalize(state, r)

	if _, err := o.store.Write(r.rec); err != nil {
		return r.rec, fmt.Errorf("write remediation record: %w", err)
	}
	return r.rec, nil
}

// execute performs the side effects of entering a state and reports the
// inputs the next transition depends on.
func (o *Orchestrator) execute(ctx context.Context, state State, r *run) (in stepInput) {
	defer func() {
		if p := recover(); p != nil {
			r.err = fmt.Errorf("panic in state %s: %v", state, p)
			o.logger.Error("unhandled panic", zap.String("state", string(state)), zap.Any("panic", p))
			in = stepInput{
				emptyChangeSet: r.changes.Empty(),
				verification:   r.rec.Verification,
				errored:        true,
			}
		}
	}()

	switch state {
	case StateDetecting:
		r.changes, r.err = o.detector.Detect(r.event.WorkingDirectory, r.event.OccurredAt)
		if r.err == nil {
			r.rec.ChangeSet = *r.changes
		}

	case StateConfiguring:
		// Never fails: an unusable manifest degrades to defaults with
		// the snapshot's warning flag set.
		r.snapshot = o.resolver.Resolve(r.event.WorkingDirectory)
		r.rec.Configuration = r.snapshot

	case StateProtecting:
		r.protection, r.err = o.checkpoints.CreateProtection(r.event.WorkingDirectory)
		if r.err == nil {
			r.rec.ProtectionCheckpoint = r.protection
			r.err = o.pending.save(&pendingRun{
				RecordID:   r.rec.RecordID,
				Directory:  r.event.WorkingDirectory,
				Protection: *r.protection,
				CreatedAt:  time.Now().UTC(),
			})
		}

	case StateMutating:
		o.runToolChain(ctx, r)

	case StateVerifying:
		outcome, diags := o.gate.Check(ctx, r.event.WorkingDirectory, r.snapshot, r.changes)
		r.rec.Verification = outcome
		r.rec.VerificationErrors = diags

	case StateCommitting:
		var completion *record.Checkpoint
		completion, r.err = o.checkpoints.CreateCompletion(r.event.WorkingDirectory, r.rec.RecordID)
		if r.err == nil {
			r.rec.CompletionCheckpoint = completion
			// The result is committed. Clear the marker here, not just
			// in finalize: a crash between the commit and finalize must
			// not make the next invocation revert a verified result.
			if err := o.pending.clear(r.event.WorkingDirectory); err != nil {
				o.logger.Warn("failed to clear pending marker", zap.Error(err))
			}
		}

	case StateRollingBack:
		r.err = o.checkpoints.RevertTo(r.event.WorkingDirectory, r.protection)
	}

	if r.err != nil {
		o.logger.Error("state failed",
			zap.String("state", string(state)),
			zap.String("record_id", r.rec.RecordID),
			zap.Error(r.err),
		)
	}
	return stepInput{
		emptyChangeSet: r.changes.Empty(),
		verification:   r.rec.Verification,
		errored:        r.err != nil,
	}
}

// runToolChain runs every enabled adapter in registry order: Mutating
// first, then Observational. Individual tool failures are recorded and
// the chain continues; the verification gate decides what they mean.
func (o *Orchestrator) runToolChain(ctx context.Context, r *run) {
	env := &tools.Env{
		Workdir: r.event.WorkingDirectory,
		Runner:  o.runner,
		Timeout: o.settings.ToolTimeout,
		Logger:  o.logger,
	}
	enabled := tools.Enabled(r.snapshot)
	for _, category := range []tools.Category{tools.Mutating, tools.Observational} {
		for _, desc := range enabled {
			if desc.Category != category {
				continue
			}
			res, ran := desc.Run(ctx, env, r.snapshot, r.changes)
			if !ran {
				continue
			}
			r.rec.ToolResults = append(r.rec.ToolResults, res)
		}
	}
}

// finalize seals the record for the terminal state, performs the
// best-effort revert on failure, clears the pending marker, and
// advances the high-water-mark.
func (o *Orchestrator) finalize(state State, r *run) {
	r.rec.FinalStatus = state.FinalStatus()
	if r.err != nil {
		r.rec.Error = r.err.Error()
	}

	if state == StateFailed && r.protection != nil {
		if err := o.checkpoints.RevertTo(r.event.WorkingDirectory, r.protection); err != nil {
			// Leave the pending marker in place: the next invocation
			// will retry the revert before doing anything else.
			o.logger.Error("best-effort revert failed, leaving pending marker",
				zap.String("record_id", r.rec.RecordID),
				zap.Error(err),
			)
			return
		}
	}

	if err := o.pending.clear(r.event.WorkingDirectory); err != nil {
		o.logger.Warn("failed to clear pending marker", zap.Error(err))
	}

	switch state {
	case StateNoActionNeeded, StateCommitted, StateRolledBack:
		if err := o.detector.Advance(r.event.WorkingDirectory, time.Now()); err != nil {
			o.logger.Warn("failed to advance high-water-mark", zap.Error(err))
		}
	}
}

// recoverStaleRun self-heals after a killed invocation: a pending
// marker without a completed record means a protection checkpoint was
// taken but never resolved, so the tree is reverted before new work.
func (o *Orchestrator) recoverStaleRun(workdir string) {
	pr, err := o.pending.load(workdir)
	if err != nil {
		o.logger.Warn("cannot read pending marker", zap.Error(err))
		return
	}
	if pr == nil {
		return
	}

	o.logger.Warn("recovering from interrupted run",
		zap.String("stale_record_id", pr.RecordID),
		zap.String("revision", pr.Protection.RevisionID),
	)
	if err := o.checkpoints.RevertTo(workdir, &pr.Protection); err != nil {
		o.logger.Error("stale run revert failed", zap.Error(err))
		return
	}
	if err := o.pending.clear(workdir); err != nil {
		o.logger.Warn("failed to clear stale pending marker", zap.Error(err))
	}
}
