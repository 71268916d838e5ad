// Package record defines the remediation data model and the persisted
// result artifact store.
package record

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/remedyd/internal/config"
)

// EventKind identifies the host trigger that started an invocation.
type EventKind string

const (
	EventPostTurn    EventKind = "PostTurn"
	EventPostSubtask EventKind = "PostSubtask"
	EventSessionEnd  EventKind = "SessionEnd"
)

// TriggerEvent is the inbound payload from the host session. It is
// consumed exactly once and never mutated.
type TriggerEvent struct {
	EventID          string    `json:"event_id"`
	EventKind        EventKind `json:"event_kind"`
	OccurredAt       time.Time `json:"occurred_at"`
	WorkingDirectory string    `json:"working_directory"`
}

// Validate rejects payloads the pipeline cannot act on. This is the only
// condition under which the process exits non-zero.
func (e *TriggerEvent) Validate() error {
	if e.EventID == "" {
		return errors.New("event_id is required")
	}
	switch e.EventKind {
	case EventPostTurn, EventPostSubtask, EventSessionEnd:
	default:
		return fmt.Errorf("unknown event_kind %q", e.EventKind)
	}
	if e.WorkingDirectory == "" {
		return errors.New("working_directory is required")
	}
	return nil
}

// ChangeSet is the set of files in scope for one invocation, with the
// detection window that produced it.
type ChangeSet struct {
	Files       []string  `json:"files"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// Empty reports whether no files are in scope.
func (c *ChangeSet) Empty() bool {
	return c == nil || len(c.Files) == 0
}

// Covers reports whether every file of other is already in c. Used for
// SessionEnd debouncing against the previous record.
func (c *ChangeSet) Covers(other *ChangeSet) bool {
	if other.Empty() {
		return true
	}
	if c.Empty() {
		return false
	}
	have := make(map[string]bool, len(c.Files))
	for _, f := range c.Files {
		have[f] = true
	}
	for _, f := range other.Files {
		if !have[f] {
			return false
		}
	}
	return true
}

// ToolResult captures one adapter invocation.
type ToolResult struct {
	ToolName      string   `json:"tool_name"`
	ExitCode      int      `json:"exit_code"`
	Stdout        string   `json:"stdout,omitempty"`
	Stderr        string   `json:"stderr,omitempty"`
	FilesModified []string `json:"files_modified,omitempty"`
	DurationMS    int64    `json:"duration_ms"`
}

// CheckpointKind distinguishes the two commit tags.
type CheckpointKind string

const (
	CheckpointProtection CheckpointKind = "Protection"
	CheckpointCompletion CheckpointKind = "Completion"
)

// Checkpoint names a version-control commit snapshotting the working
// tree. Immutable once created.
type Checkpoint struct {
	Kind       CheckpointKind `json:"kind"`
	RevisionID string         `json:"revision_id"`
	CreatedAt  time.Time      `json:"created_at"`
	Message    string         `json:"message"`
}

// VerificationOutcome is the gate's binary verdict; Skipped means the
// run never reached verification.
type VerificationOutcome string

const (
	VerificationPass    VerificationOutcome = "Pass"
	VerificationFail    VerificationOutcome = "Fail"
	VerificationSkipped VerificationOutcome = "Skipped"
)

// FinalStatus is the terminal state of one invocation.
type FinalStatus string

const (
	StatusNoActionNeeded FinalStatus = "NoActionNeeded"
	StatusCommitted      FinalStatus = "Committed"
	StatusRolledBack     FinalStatus = "RolledBack"
	StatusFailed         FinalStatus = "Failed"
)

// RemediationRecord is the single persisted result of one invocation.
// It is created at invocation start, finalized exactly once at the
// terminal state, and never mutated after persistence.
type RemediationRecord struct {
	RecordID             string              `json:"record_id"`
	TriggerEventID       string              `json:"trigger_event_id"`
	TriggerKind          EventKind           `json:"trigger_kind"`
	WorkingDirectory     string              `json:"working_directory"`
	ChangeSet            ChangeSet           `json:"change_set"`
	Configuration        *config.Snapshot    `json:"configuration_snapshot,omitempty"`
	ProtectionCheckpoint *Checkpoint         `json:"protection_checkpoint,omitempty"`
	ToolResults          []ToolResult        `json:"tool_results,omitempty"`
	Verification         VerificationOutcome `json:"verification_outcome"`
	VerificationErrors   []string            `json:"verification_errors,omitempty"`
	CompletionCheckpoint *Checkpoint         `json:"completion_checkpoint,omitempty"`
	FinalStatus          FinalStatus         `json:"final_status"`
	Error                string              `json:"error,omitempty"`
	WrittenAt            time.Time           `json:"written_at"`
}
