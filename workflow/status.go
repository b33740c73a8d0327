// ABOUTME: Derived workflow status reported by the API, computed from stage and approval.
package workflow

// External status values. These are coarser than stages: clients polling for
// "do you need me" only care about which kind of wait the workflow is in.
const (
	StatusRunning              = "running"
	StatusWaitingApproval      = "waiting_approval"
	StatusWaitingFinalApproval = "waiting_final_approval"
	StatusCompleted            = "completed"
	StatusFailed               = "failed"
	StatusAborted              = "aborted"
)

// DerivedStatus maps the record's stage to the external status value.
func (r *Record) DerivedStatus() string {
	switch {
	case r.Stage == StageCompleted:
		return StatusCompleted
	case r.Stage == StageFailed:
		return StatusFailed
	case r.Stage == StageAborted:
		return StatusAborted
	case r.Stage == StageAwaitingFeedback:
		return StatusWaitingFinalApproval
	case r.Stage.Checkpoint():
		return StatusWaitingApproval
	default:
		return StatusRunning
	}
}
