// ABOUTME: Forward pipeline steps: generation, schema capture, and artifact combination.
// ABOUTME: Each step fires exactly one transition; the driver loop persists between steps.
package workflow

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/autosci/orchestrator/executor"
)

// stepGenerate runs the generation stage that produces the named artifact.
func (d *Driver) stepGenerate(ctx context.Context, rec *Record, artifact string) bool {
	log.Printf("component=driver action=generate workflow=%s artifact=%s", rec.ID, artifact)

	var out Outcome
	switch artifact {
	case ArtifactAnalysisCode:
		out = d.stages.GenerateAnalysis(ctx, viewOf(rec))
	case ArtifactTrainingCode:
		out = d.stages.GenerateTraining(ctx, viewOf(rec))
	default:
		return d.fail(rec, "unknown generation artifact "+artifact)
	}

	if out.Status != StatusOK {
		return d.fail(rec, fmt.Sprintf("generation of %s: %s", artifact, out.FailureReason))
	}
	out.Patch.applyTo(rec)
	if _, ok := rec.Artifacts.Get(artifact); !ok {
		return d.fail(rec, fmt.Sprintf("generation finished without producing %s: %v", artifact, ErrMissingArtifact))
	}
	if out.Note != "" {
		rec.AppendMessage(RoleAssistant, out.Note)
	}
	if err := fire(rec, TriggerAdvance); err != nil {
		return d.fail(rec, err.Error())
	}
	return false
}

// stepSchemaCapture executes the analysis artifact with the schema probe
// appended and resolves the schema from the racing channels. The workflow
// proceeds to the schema checkpoint even when no channel answers; the
// reviewer decides what an empty schema means.
func (d *Driver) stepSchemaCapture(ctx context.Context, rec *Record) bool {
	code, ok := rec.Artifacts.Get(ArtifactAnalysisCode)
	if !ok {
		return d.fail(rec, ArtifactAnalysisCode+" missing before schema capture: "+ErrMissingArtifact.Error())
	}

	log.Printf("component=driver action=schema_capture workflow=%s", rec.ID)
	res, err := d.exec.Submit(ctx, WithSchemaSniffer(code))
	if err != nil {
		if executor.IsConnectError(err) {
			return d.fail(rec, err.Error())
		}
		rec.AppendMessage(RoleSystem, "schema capture run failed: "+err.Error())
	}
	if res.Logs != "" {
		rec.ExecutionLog = res.Logs
	}

	cols := ResolveSchema(ctx, rec, res.Logs, d.cfg.Relay, d.cfg.RelayWait)
	if len(cols) > 0 {
		log.Printf("component=driver action=schema_capture workflow=%s columns=%d", rec.ID, len(cols))
		return d.park(rec, TriggerAdvance, "captured schema: "+strings.Join(cols, ", "))
	}
	log.Printf("component=driver action=schema_capture workflow=%s columns=0", rec.ID)
	return d.park(rec, TriggerAdvance, "no schema captured; review before continuing")
}

// stepCombine concatenates the analysis and training artifacts into the
// combined artifact the execution loop runs.
func (d *Driver) stepCombine(rec *Record) bool {
	analysis, ok := rec.Artifacts.Get(ArtifactAnalysisCode)
	if !ok {
		return d.fail(rec, ArtifactAnalysisCode+" missing before combine: "+ErrMissingArtifact.Error())
	}
	training, ok := rec.Artifacts.Get(ArtifactTrainingCode)
	if !ok {
		return d.fail(rec, ArtifactTrainingCode+" missing before combine: "+ErrMissingArtifact.Error())
	}

	combined := strings.Join([]string{
		"# === exploratory analysis ===",
		strings.TrimSpace(analysis),
		"",
		"# === model training ===",
		strings.TrimSpace(training),
		"",
	}, "\n")
	rec.Artifacts.Set(ArtifactCombinedCode, combined)
	log.Printf("component=driver action=combine workflow=%s bytes=%d", rec.ID, len(combined))

	if err := fire(rec, TriggerAdvance); err != nil {
		return d.fail(rec, err.Error())
	}
	return false
}
