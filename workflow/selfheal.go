// ABOUTME: Failure signature scanning for the self-healing execution loop.
// ABOUTME: Signature presence in execution logs is what distinguishes a broken run from a clean one.
package workflow

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/autosci/orchestrator/executor"
)

// failureSignatures are the literal substrings that mark an execution run as
// failed. The execution service exits zero even when the submitted code
// crashes, so the logs are the only failure channel.
var failureSignatures = []string{
	"Traceback",
	"Error:",
	"Exception:",
	"KeyError",
	"SyntaxError",
}

// HasFailureSignature reports whether the logs contain any known failure
// marker, and returns the first one found.
func HasFailureSignature(logs string) (string, bool) {
	for _, sig := range failureSignatures {
		if strings.Contains(logs, sig) {
			return sig, true
		}
	}
	return "", false
}

// stepExecution submits the combined artifact and scans its logs. Each
// submission consumes one self-heal attempt. Executor unreachability fails
// the workflow immediately; it is not a code defect healing can fix.
func (d *Driver) stepExecution(ctx context.Context, rec *Record) bool {
	code, ok := rec.Artifacts.Get(ArtifactCombinedCode)
	if !ok {
		return d.fail(rec, ArtifactCombinedCode+" missing before execution: "+ErrMissingArtifact.Error())
	}

	rec.Attempts.SelfHeal++
	log.Printf("component=driver action=execute workflow=%s attempt=%d", rec.ID, rec.Attempts.SelfHeal)

	res, err := d.exec.Submit(ctx, code)
	if err != nil {
		if executor.IsConnectError(err) {
			return d.fail(rec, err.Error())
		}
		// A remote rejection counts as a failed run so healing gets a shot.
		res.Logs = "Error: " + err.Error()
	}
	rec.ExecutionLog = res.Logs

	sig, found := HasFailureSignature(res.Logs)
	if !found {
		return d.park(rec, TriggerAdvance, "execution succeeded; review the results")
	}

	log.Printf("component=driver action=execute workflow=%s signature=%q attempt=%d", rec.ID, sig, rec.Attempts.SelfHeal)
	if rec.Attempts.SelfHeal >= d.cfg.MaxHealAttempts {
		return d.fail(rec, fmt.Sprintf("execution failed with %q after %d attempts", sig, rec.Attempts.SelfHeal))
	}
	rec.AppendMessage(RoleSystem, fmt.Sprintf("execution attempt %d failed with %q; attempting repair", rec.Attempts.SelfHeal, sig))
	if err := fire(rec, TriggerRepair); err != nil {
		return d.fail(rec, err.Error())
	}
	return false
}

// stepSelfHeal asks the correction stage for a rewrite, swaps the combined
// artifact, and cools down before the re-run.
func (d *Driver) stepSelfHeal(ctx context.Context, rec *Record) bool {
	out := d.stages.Correct(ctx, viewOf(rec), rec.ExecutionLog)
	if out.Status != StatusOK {
		return d.fail(rec, "correction: "+out.FailureReason)
	}
	out.Patch.applyTo(rec)
	if _, ok := rec.Artifacts.Get(ArtifactCombinedCode); !ok {
		return d.fail(rec, "correction produced no "+ArtifactCombinedCode)
	}
	if out.Note != "" {
		rec.AppendMessage(RoleAssistant, out.Note)
	}
	if err := fire(rec, TriggerRerun); err != nil {
		return d.fail(rec, err.Error())
	}

	log.Printf("component=driver action=self_heal workflow=%s cooldown=%s", rec.ID, d.cfg.HealCooldown)
	sleepWithContext(ctx, d.cfg.HealCooldown)
	return false
}
