// ABOUTME: Stage transition machine encoding the pipeline's directed graph.
// ABOUTME: Every stage mutation goes through a trigger fire; anything else is rejected.
package workflow

import (
	"context"
	"fmt"

	"github.com/qmuntal/stateless"
)

// Trigger names a permitted transition in the pipeline graph.
type Trigger string

const (
	// TriggerAdvance moves a stage to its single forward successor.
	TriggerAdvance Trigger = "advance"
	// TriggerRetry sends validation back to discovery on a recoverable rejection.
	TriggerRetry Trigger = "retry"
	// TriggerApprove resumes a checkpoint toward the next forward stage.
	TriggerApprove Trigger = "approve"
	// TriggerReject sends the dataset checkpoint back to discovery.
	TriggerReject Trigger = "reject"
	// TriggerRepair enters the self-heal stage after a detected execution failure.
	TriggerRepair Trigger = "repair"
	// TriggerRerun re-enters execution with corrected code.
	TriggerRerun Trigger = "rerun"
	// TriggerRegenerate restarts generation after unsatisfied final feedback.
	TriggerRegenerate Trigger = "regenerate"
	// TriggerComplete finishes the workflow from the final feedback checkpoint.
	TriggerComplete Trigger = "complete"
	// TriggerFail moves any non-terminal stage to failed.
	TriggerFail Trigger = "fail"
	// TriggerAbort moves any non-terminal stage to aborted.
	TriggerAbort Trigger = "abort"
)

// forwardTransitions is the pipeline graph minus the fail/abort edges that
// every non-terminal stage carries.
var forwardTransitions = map[Stage]map[Trigger]Stage{
	StageDiscovery: {
		TriggerAdvance: StageValidation,
	},
	StageValidation: {
		TriggerAdvance: StageAwaitingDataset,
		TriggerRetry:   StageDiscovery,
	},
	StageAwaitingDataset: {
		TriggerApprove: StageGenerateAnalysis,
		TriggerReject:  StageDiscovery,
	},
	StageGenerateAnalysis: {
		TriggerAdvance: StageSchemaCapture,
	},
	StageSchemaCapture: {
		TriggerAdvance: StageAwaitingSchema,
	},
	StageAwaitingSchema: {
		TriggerApprove: StageGenerateTraining,
	},
	StageGenerateTraining: {
		TriggerAdvance: StageCombine,
	},
	StageCombine: {
		TriggerAdvance: StageExecution,
	},
	StageExecution: {
		TriggerAdvance: StageAwaitingFeedback,
		TriggerRepair:  StageSelfHeal,
	},
	StageSelfHeal: {
		TriggerRerun: StageExecution,
	},
	StageAwaitingFeedback: {
		TriggerComplete:   StageCompleted,
		TriggerRegenerate: StageGenerateAnalysis,
	},
}

// stageMachine binds the transition graph to a record's Stage field via
// external state storage, so firing a trigger mutates the record directly.
func stageMachine(rec *Record) *stateless.StateMachine {
	sm := stateless.NewStateMachineWithExternalStorage(
		func(_ context.Context) (stateless.State, error) {
			return rec.Stage, nil
		},
		func(_ context.Context, state stateless.State) error {
			rec.Stage = state.(Stage)
			return nil
		},
		stateless.FiringImmediate,
	)

	for stage, edges := range forwardTransitions {
		cfg := sm.Configure(stage)
		for trigger, dest := range edges {
			cfg.Permit(trigger, dest)
		}
		cfg.Permit(TriggerFail, StageFailed)
		cfg.Permit(TriggerAbort, StageAborted)
	}

	return sm
}

// fire applies a trigger to the record's stage. An unpermitted trigger leaves
// the record unchanged and returns ErrInvalidTransition.
func fire(rec *Record, trigger Trigger) error {
	if err := stageMachine(rec).Fire(trigger); err != nil {
		return fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, trigger, rec.Stage)
	}
	return nil
}

// CanFire reports whether the trigger is permitted at the record's stage.
func CanFire(rec *Record, trigger Trigger) bool {
	if rec.Stage.Terminal() {
		return false
	}
	if trigger == TriggerFail || trigger == TriggerAbort {
		return true
	}
	_, ok := forwardTransitions[rec.Stage][trigger]
	return ok
}
