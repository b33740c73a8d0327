// ABOUTME: Checkpoint gate operations: the external decisions that resume a parked workflow.
// ABOUTME: Decisions outside the matching checkpoint return ErrInvalidTransition, never mutate.
package workflow

import (
	"fmt"
	"log"
)

// mutate runs fn on the record under the workflow's handle lock and persists
// the result when fn succeeds. resume is requested by fn returning true.
func (d *Driver) mutate(id string, fn func(rec *Record) (resume bool, err error)) error {
	h := d.handleFor(id)
	h.mu.Lock()
	rec, err := d.store.Get(id)
	if err != nil {
		h.mu.Unlock()
		return err
	}

	resume, err := fn(rec)
	if err != nil {
		h.mu.Unlock()
		return err
	}
	if err := d.store.Replace(id, rec); err != nil {
		h.mu.Unlock()
		return err
	}
	h.mu.Unlock()

	if resume {
		d.resume(id)
	}
	return nil
}

func requireStage(rec *Record, want Stage, op string) error {
	if rec.Stage != want {
		return fmt.Errorf("%w: %s requires stage %s, workflow is at %s", ErrInvalidTransition, op, want, rec.Stage)
	}
	return nil
}

// ApproveDataset approves the dataset checkpoint and resumes the pipeline
// into the first generation stage.
func (d *Driver) ApproveDataset(id string) error {
	return d.mutate(id, func(rec *Record) (bool, error) {
		if err := requireStage(rec, StageAwaitingDataset, "dataset approval"); err != nil {
			return false, err
		}
		rec.Approval = ApprovalApproved
		rec.AppendMessage(RoleUser, "dataset approved")
		if err := fire(rec, TriggerApprove); err != nil {
			return false, err
		}
		log.Printf("component=driver action=approve_dataset workflow=%s", id)
		return true, nil
	})
}

// RejectDataset rejects the proposed dataset: the locator joins the exclusion
// set, the source reference is cleared, and discovery re-runs with a fresh
// attempt budget.
func (d *Driver) RejectDataset(id string) error {
	return d.mutate(id, func(rec *Record) (bool, error) {
		if err := requireStage(rec, StageAwaitingDataset, "dataset rejection"); err != nil {
			return false, err
		}
		rec.Approval = ApprovalRejected
		rec.Exclude(rec.Source.Locator)
		rec.AppendMessage(RoleUser, "dataset rejected: "+rec.Source.Locator)
		rec.Source = SourceRef{}
		if err := fire(rec, TriggerReject); err != nil {
			return false, err
		}
		rec.Approval = ApprovalPending
		rec.Attempts.Discovery = 0 // each human rejection earns a fresh research pass
		log.Printf("component=driver action=reject_dataset workflow=%s", id)
		return true, nil
	})
}

// ApproveSchema approves the captured schema and resumes the pipeline into
// the training generation stage.
func (d *Driver) ApproveSchema(id string) error {
	return d.mutate(id, func(rec *Record) (bool, error) {
		if err := requireStage(rec, StageAwaitingSchema, "schema approval"); err != nil {
			return false, err
		}
		rec.Approval = ApprovalApproved
		rec.AppendMessage(RoleUser, "schema approved")
		if err := fire(rec, TriggerApprove); err != nil {
			return false, err
		}
		log.Printf("component=driver action=approve_schema workflow=%s", id)
		return true, nil
	})
}

// RejectSchema aborts the workflow; the schema checkpoint has no retry path.
func (d *Driver) RejectSchema(id string) error {
	return d.mutate(id, func(rec *Record) (bool, error) {
		if err := requireStage(rec, StageAwaitingSchema, "schema rejection"); err != nil {
			return false, err
		}
		rec.Approval = ApprovalRejected
		rec.AppendMessage(RoleUser, "schema rejected; workflow aborted")
		if err := fire(rec, TriggerAbort); err != nil {
			return false, err
		}
		log.Printf("component=driver action=reject_schema workflow=%s", id)
		return false, nil
	})
}

// Abort moves the workflow to the aborted stage from any non-terminal stage.
// An active drive loop notices the terminal stage on its next step.
func (d *Driver) Abort(id string) error {
	return d.mutate(id, func(rec *Record) (bool, error) {
		if rec.Stage.Terminal() {
			return false, fmt.Errorf("%w: workflow already %s", ErrInvalidTransition, rec.Stage)
		}
		rec.AppendMessage(RoleUser, "workflow aborted")
		if err := fire(rec, TriggerAbort); err != nil {
			return false, err
		}
		log.Printf("component=driver action=abort workflow=%s", id)
		return false, nil
	})
}

// Feedback resolves the final checkpoint. Satisfied completes the workflow;
// unsatisfied records the note and regenerates everything from the first
// generation stage, keeping the approved source.
func (d *Driver) Feedback(id string, satisfied bool, note string) error {
	return d.mutate(id, func(rec *Record) (bool, error) {
		if err := requireStage(rec, StageAwaitingFeedback, "feedback"); err != nil {
			return false, err
		}
		if satisfied {
			rec.Approval = ApprovalApproved
			rec.AppendMessage(RoleUser, "results accepted")
			if err := fire(rec, TriggerComplete); err != nil {
				return false, err
			}
			log.Printf("component=driver action=feedback workflow=%s satisfied=true", id)
			return false, nil
		}

		rec.Approval = ApprovalRejected
		if note != "" {
			rec.AppendMessage(RoleUser, note)
		}
		if err := fire(rec, TriggerRegenerate); err != nil {
			return false, err
		}
		rec.Approval = ApprovalPending
		rec.Attempts.SelfHeal = 0
		log.Printf("component=driver action=feedback workflow=%s satisfied=false", id)
		return true, nil
	})
}

// SchemaCallback is channel (b) of the schema race: an out-of-band report
// delivered while schema capture may still be running. First non-empty value
// wins; placeholders never overwrite a captured schema.
func (d *Driver) SchemaCallback(id string, columns []string) error {
	return d.mutate(id, func(rec *Record) (bool, error) {
		if schemaPlaceholder(columns) {
			log.Printf("component=driver action=schema_callback workflow=%s result=placeholder_ignored", id)
			return false, nil
		}
		if !schemaPlaceholder(rec.Source.CapturedSchema) {
			log.Printf("component=driver action=schema_callback workflow=%s result=already_captured", id)
			return false, nil
		}
		rec.Source.CapturedSchema = append([]string(nil), columns...)
		rec.AppendMessage(RoleSystem, "schema reported via callback")
		log.Printf("component=driver action=schema_callback workflow=%s columns=%d", id, len(columns))
		return false, nil
	})
}
