// ABOUTME: Model-backed stage implementations: discovery, validation, generation, correction.
// ABOUTME: Each stage is a pure function of its record view; all store I/O stays in the driver.
package stages

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/autosci/orchestrator/workflow"
)

const defaultModel = "gpt-4o"

// AuxPreview is the source_ref auxiliary key holding a raw data preview
// captured during validation.
const AuxPreview = "preview"

// previewBytes bounds how much of the source file validation keeps.
const previewBytes = 2048

// Set implements workflow.Stages on the OpenAI Chat Completions API.
type Set struct {
	client openai.Client
	model  string
	probe  *http.Client
}

// Option configures a Set.
type Option func(*Set)

// WithModel overrides the completion model.
func WithModel(model string) Option {
	return func(s *Set) { s.model = model }
}

// WithBaseURL points the client at an OpenAI-compatible provider.
func WithBaseURL(baseURL string) Option {
	return func(s *Set) {
		s.client = openai.NewClient(option.WithBaseURL(baseURL))
	}
}

// WithProbeClient replaces the HTTP client used for source validation.
func WithProbeClient(hc *http.Client) Option {
	return func(s *Set) { s.probe = hc }
}

// New creates the stage set. An empty apiKey falls back to the OPENAI_API_KEY
// environment variable, which the SDK reads itself.
func New(apiKey string, opts ...Option) *Set {
	var reqOpts []option.RequestOption
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	s := &Set{
		client: openai.NewClient(reqOpts...),
		model:  defaultModel,
		probe:  &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// complete sends one system+user exchange and returns the text of the first
// choice. Temperature is pinned to zero; stages need reproducible output far
// more than creative output.
func (s *Set) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       s.model,
		Temperature: openai.Float(0),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Discover proposes a public dataset for the goal, avoiding every excluded
// locator.
func (s *Set) Discover(ctx context.Context, view workflow.RecordView) workflow.Outcome {
	// A user-supplied locator skips the model entirely.
	if view.Source.Locator != "" && !excluded(view.Source.Locator, view.Exclusions) {
		src := view.Source
		if src.LocatorKind == "" {
			src.LocatorKind = kindOf(src.Locator)
		}
		return workflow.Outcome{
			Status: workflow.StatusOK,
			Patch:  workflow.Patch{Source: &src},
			Note:   "using provided data source: " + src.Locator,
		}
	}

	text, err := s.complete(ctx, discoverSystemPrompt, discoverUserPrompt(view.Goal, view.Exclusions))
	if err != nil {
		return workflow.Outcome{Status: workflow.StatusRetry, FailureReason: err.Error()}
	}

	prop, err := parseProposal(text)
	if err != nil {
		log.Printf("component=stages action=discover error=%v", err)
		return workflow.Outcome{Status: workflow.StatusRetry, FailureReason: "unparseable proposal: " + err.Error()}
	}

	src := workflow.SourceRef{
		Locator:     prop.Locator,
		LocatorKind: prop.Kind,
	}
	if src.LocatorKind == "" {
		src.LocatorKind = kindOf(src.Locator)
	}
	return workflow.Outcome{
		Status: workflow.StatusOK,
		Patch:  workflow.Patch{Source: &src},
		Note:   "proposed data source: " + prop.Locator + " (" + prop.Reason + ")",
	}
}

// Validate probes the proposed source. Direct URLs must answer a GET with a
// success status; kaggle refs only get a page probe since the download needs
// credentials the orchestrator does not hold.
func (s *Set) Validate(ctx context.Context, view workflow.RecordView) workflow.Outcome {
	locator := view.Source.Locator
	if locator == "" {
		return workflow.Outcome{Status: workflow.StatusRetry, FailureReason: "no locator to validate"}
	}

	url := locator
	if view.Source.LocatorKind == workflow.LocatorKaggle {
		url = "https://www.kaggle.com/datasets/" + strings.TrimPrefix(locator, "kaggle:")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return workflow.Outcome{Status: workflow.StatusRetry, FailureReason: "invalid locator " + locator}
	}
	resp, err := s.probe.Do(req)
	if err != nil {
		return workflow.Outcome{Status: workflow.StatusRetry, FailureReason: "source unreachable: " + err.Error()}
	}
	preview, _ := io.ReadAll(io.LimitReader(resp.Body, previewBytes))
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return workflow.Outcome{
			Status:        workflow.StatusRetry,
			FailureReason: fmt.Sprintf("source %s answered %d", locator, resp.StatusCode),
		}
	}

	src := view.Source
	// A preview of the raw file travels with the record so generation can see
	// real column headers and value shapes. Kaggle probes return page HTML,
	// which is useless as a preview.
	if src.LocatorKind == workflow.LocatorDirect && len(preview) > 0 {
		if src.Auxiliary == nil {
			src.Auxiliary = make(map[string]string)
		}
		src.Auxiliary[AuxPreview] = string(preview)
	}
	return workflow.Outcome{
		Status: workflow.StatusCheckpoint,
		Patch:  workflow.Patch{Source: &src},
		Note:   "source validated: " + locator,
	}
}

// GenerateAnalysis writes the exploratory analysis artifact for the approved
// source.
func (s *Set) GenerateAnalysis(ctx context.Context, view workflow.RecordView) workflow.Outcome {
	text, err := s.complete(ctx, analysisSystemPrompt, analysisUserPrompt(view.Goal, view.Source))
	if err != nil {
		return workflow.Outcome{Status: workflow.StatusFail, FailureReason: err.Error()}
	}
	code := StripFences(text)
	if code == "" {
		return workflow.Outcome{Status: workflow.StatusFail, FailureReason: "model produced no analysis code"}
	}
	return workflow.Outcome{
		Status: workflow.StatusOK,
		Patch:  workflow.Patch{Artifacts: map[string]string{workflow.ArtifactAnalysisCode: code}},
		Note:   "exploratory analysis code generated",
	}
}

// GenerateTraining writes the model training artifact against the captured
// schema.
func (s *Set) GenerateTraining(ctx context.Context, view workflow.RecordView) workflow.Outcome {
	text, err := s.complete(ctx, trainingSystemPrompt, trainingUserPrompt(view.Goal, view.Source))
	if err != nil {
		return workflow.Outcome{Status: workflow.StatusFail, FailureReason: err.Error()}
	}
	code := StripFences(text)
	if code == "" {
		return workflow.Outcome{Status: workflow.StatusFail, FailureReason: "model produced no training code"}
	}
	return workflow.Outcome{
		Status: workflow.StatusOK,
		Patch:  workflow.Patch{Artifacts: map[string]string{workflow.ArtifactTrainingCode: code}},
		Note:   "model training code generated",
	}
}

// Correct rewrites the combined artifact given the logs of its failed run.
func (s *Set) Correct(ctx context.Context, view workflow.RecordView, failureLog string) workflow.Outcome {
	code := view.Artifacts[workflow.ArtifactCombinedCode]
	if code == "" {
		return workflow.Outcome{Status: workflow.StatusFail, FailureReason: "nothing to correct"}
	}

	text, err := s.complete(ctx, correctSystemPrompt, correctUserPrompt(code, failureLog))
	if err != nil {
		return workflow.Outcome{Status: workflow.StatusFail, FailureReason: err.Error()}
	}
	fixed := StripFences(text)
	if fixed == "" {
		return workflow.Outcome{Status: workflow.StatusFail, FailureReason: "model produced no corrected code"}
	}
	return workflow.Outcome{
		Status: workflow.StatusOK,
		Patch:  workflow.Patch{Artifacts: map[string]string{workflow.ArtifactCombinedCode: fixed}},
		Note:   "corrected code after failed run",
	}
}

func excluded(locator string, exclusions []string) bool {
	for _, e := range exclusions {
		if e == locator {
			return true
		}
	}
	return false
}

// kindOf classifies a locator by shape.
func kindOf(locator string) string {
	if strings.HasPrefix(locator, "kaggle:") || strings.Contains(locator, "kaggle.com/") {
		return workflow.LocatorKaggle
	}
	return workflow.LocatorDirect
}
