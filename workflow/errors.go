// ABOUTME: Sentinel errors for workflow store lookups and stage transition validation.
// ABOUTME: The API layer maps these onto HTTP 404 and 409 responses.
package workflow

import "errors"

var (
	// ErrNotFound indicates the workflow id is unknown to the store.
	ErrNotFound = errors.New("workflow not found")

	// ErrInvalidTransition indicates a decision operation was issued while the
	// workflow is not at the matching checkpoint, or a stage transition was
	// attempted that the pipeline graph does not permit. The record is left
	// unchanged.
	ErrInvalidTransition = errors.New("invalid workflow transition")

	// ErrMissingArtifact indicates a pipeline step required an artifact that
	// no earlier stage produced. This is a structural failure, not retried.
	ErrMissingArtifact = errors.New("required artifact missing")
)
