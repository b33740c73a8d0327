// ABOUTME: Contracts between the driver and the pluggable stage implementations.
// ABOUTME: Stages return Outcomes and Patches; the driver owns all record mutation.
package workflow

import (
	"context"
	"time"
)

// OutcomeStatus classifies what a stage run means for the pipeline.
type OutcomeStatus string

const (
	// StatusOK means the stage produced its output and the pipeline advances.
	StatusOK OutcomeStatus = "ok"
	// StatusRetry means the stage rejected its input recoverably; the retry
	// controller decides whether another attempt is allowed.
	StatusRetry OutcomeStatus = "retry"
	// StatusCheckpoint means the stage wants a human decision before
	// continuing.
	StatusCheckpoint OutcomeStatus = "checkpoint"
	// StatusFail means the stage hit an unrecoverable condition.
	StatusFail OutcomeStatus = "fail"
)

// Outcome is the structured result of one stage run.
type Outcome struct {
	Status OutcomeStatus
	// Patch carries the record updates the stage wants applied.
	Patch Patch
	// Note is a human-readable line appended to the message log.
	Note string
	// FailureReason explains StatusRetry and StatusFail outcomes.
	FailureReason string
}

// Patch is the set of record fields a stage is allowed to update. Nil or
// zero-valued fields are left untouched.
type Patch struct {
	Source    *SourceRef
	Artifacts map[string]string
}

func (p Patch) applyTo(rec *Record) {
	if p.Source != nil {
		rec.Source = *p.Source
	}
	for key, val := range p.Artifacts {
		rec.Artifacts.Set(key, val)
	}
}

// RecordView is the read-only snapshot handed to stage implementations.
type RecordView struct {
	ID           string
	Goal         string
	Stage        Stage
	Source       SourceRef
	Artifacts    map[string]string
	Exclusions   []string
	ExecutionLog string
	Attempts     Counters
	CreatedAt    time.Time
}

func viewOf(rec *Record) RecordView {
	return RecordView{
		ID:           rec.ID.String(),
		Goal:         rec.Goal,
		Stage:        rec.Stage,
		Source:       rec.Source,
		Artifacts:    rec.Artifacts.Snapshot(),
		Exclusions:   cloneStrings(rec.Exclusions),
		ExecutionLog: rec.ExecutionLog,
		Attempts:     rec.Attempts,
		CreatedAt:    rec.CreatedAt,
	}
}

// Stages is the set of model-backed operations the driver orchestrates.
// Implementations live outside this package; tests script them.
type Stages interface {
	// Discover proposes a data source for the goal, avoiding excluded
	// locators.
	Discover(ctx context.Context, view RecordView) Outcome
	// Validate checks the proposed source for reachability and fitness.
	Validate(ctx context.Context, view RecordView) Outcome
	// GenerateAnalysis produces the exploratory analysis artifact.
	GenerateAnalysis(ctx context.Context, view RecordView) Outcome
	// GenerateTraining produces the model training artifact from the
	// captured schema.
	GenerateTraining(ctx context.Context, view RecordView) Outcome
	// Correct rewrites failing combined code given the captured logs.
	Correct(ctx context.Context, view RecordView, failureLog string) Outcome
}
