// ABOUTME: Workflow record type: the single persistent entity tracking one analysis pipeline run.
// ABOUTME: Defines pipeline stages, approval states, the ordered artifact set, and deep-copy semantics.
package workflow

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Stage identifies the workflow's current position in the pipeline.
type Stage string

const (
	StageDiscovery        Stage = "discovery"
	StageValidation       Stage = "validation"
	StageAwaitingDataset  Stage = "awaiting_dataset_approval"
	StageGenerateAnalysis Stage = "generation_stage_1"
	StageSchemaCapture    Stage = "schema_capture"
	StageAwaitingSchema   Stage = "awaiting_schema_approval"
	StageGenerateTraining Stage = "generation_stage_2"
	StageCombine          Stage = "combine"
	StageExecution        Stage = "execution"
	StageSelfHeal         Stage = "self_heal"
	StageAwaitingFeedback Stage = "awaiting_final_feedback"
	StageCompleted        Stage = "completed"
	StageFailed           Stage = "failed"
	StageAborted          Stage = "aborted"
)

// Terminal reports whether the stage is a terminal pipeline state.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed || s == StageAborted
}

// Checkpoint reports whether the stage suspends the pipeline awaiting an
// external decision.
func (s Stage) Checkpoint() bool {
	return s == StageAwaitingDataset || s == StageAwaitingSchema || s == StageAwaitingFeedback
}

// Approval is the human decision state at the current checkpoint.
type Approval string

const (
	ApprovalPending  Approval = "pending"
	ApprovalApproved Approval = "approved"
	ApprovalRejected Approval = "rejected"
)

// Well-known artifact keys produced by the pipeline.
const (
	ArtifactAnalysisCode = "analysis_code"
	ArtifactTrainingCode = "training_code"
	ArtifactCombinedCode = "combined_code"
)

// Message roles for the record's narration log.
const (
	RoleAssistant = "assistant"
	RoleUser      = "user"
	RoleSystem    = "system"
)

// Message is one human-readable narration entry in a workflow's log.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// SourceRef describes the dataset the workflow operates on.
// CapturedSchema starts empty and is write-once: the first non-empty value
// reported by any channel wins and is never replaced.
type SourceRef struct {
	Locator        string            `json:"locator"`
	LocatorKind    string            `json:"locator_kind"`
	Auxiliary      map[string]string `json:"auxiliary,omitempty"`
	CapturedSchema []string          `json:"captured_schema,omitempty"`
}

// Locator kinds for SourceRef.
const (
	LocatorDirect = "direct"
	LocatorKaggle = "kaggle"
)

// Counters tracks per-loop attempt counts. Counters are assigned when a loop
// runs and never decremented.
type Counters struct {
	Discovery int `json:"discovery"`
	SelfHeal  int `json:"self_heal"`
}

// Record is the persistent state of one workflow. It is the only entity the
// store holds; callers read-modify-write whole records.
type Record struct {
	ID        ulid.ULID    `json:"id"`
	Goal      string       `json:"goal"`
	Stage     Stage        `json:"stage"`
	Approval  Approval     `json:"approval"`
	Artifacts *ArtifactSet `json:"artifact_set"`
	Source    SourceRef    `json:"source_ref"`
	// Exclusions holds previously rejected locators. Append-only; consulted
	// by every discovery attempt.
	Exclusions   []string  `json:"exclusion_set"`
	ExecutionLog string    `json:"execution_log"`
	Messages     []Message `json:"message_log"`
	Attempts     Counters  `json:"attempt_counters"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewRecord creates a fresh record at the discovery stage. A non-empty
// locator seeds the source reference so discovery can honor user input.
func NewRecord(goal, locator string) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:        NewULID(),
		Goal:      goal,
		Stage:     StageDiscovery,
		Approval:  ApprovalPending,
		Artifacts: NewArtifactSet(),
		Source:    SourceRef{Locator: locator},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy with independent artifacts, slices, and maps.
func (r *Record) Clone() *Record {
	c := *r
	c.Artifacts = r.Artifacts.Clone()
	c.Source.Auxiliary = cloneStringMap(r.Source.Auxiliary)
	c.Source.CapturedSchema = cloneStrings(r.Source.CapturedSchema)
	c.Exclusions = cloneStrings(r.Exclusions)
	c.Messages = make([]Message, len(r.Messages))
	copy(c.Messages, r.Messages)
	return &c
}

// AppendMessage adds a narration entry and bumps UpdatedAt.
func (r *Record) AppendMessage(role, content string) {
	r.Messages = append(r.Messages, Message{Role: role, Content: content, At: time.Now().UTC()})
	r.UpdatedAt = time.Now().UTC()
}

// Excluded reports whether the locator was previously rejected.
func (r *Record) Excluded(locator string) bool {
	for _, e := range r.Exclusions {
		if e == locator {
			return true
		}
	}
	return false
}

// Exclude appends the locator to the exclusion set if not already present.
func (r *Record) Exclude(locator string) {
	if locator == "" || r.Excluded(locator) {
		return
	}
	r.Exclusions = append(r.Exclusions, locator)
}

// NewULID generates a ULID using crypto/rand entropy so all workflow ids come
// from the same source.
func NewULID() ulid.ULID {
	return ulid.MustNew(ulid.Now(), rand.Reader)
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
