// ABOUTME: Retry controller for the discovery+validation stage pair.
// ABOUTME: Bounds attempts, rejects excluded locators, and decides retry vs fail.
package workflow

import (
	"context"
	"fmt"
	"log"
)

// stepDiscovery runs one discovery attempt. Proposing an excluded locator
// consumes the attempt and re-enters discovery, same as any other recoverable
// rejection.
func (d *Driver) stepDiscovery(ctx context.Context, rec *Record) bool {
	if rec.Attempts.Discovery >= d.cfg.MaxDiscoveryAttempts {
		return d.fail(rec, fmt.Sprintf("discovery exhausted after %d attempts", rec.Attempts.Discovery))
	}
	rec.Attempts.Discovery++
	log.Printf("component=driver action=discover workflow=%s attempt=%d", rec.ID, rec.Attempts.Discovery)

	out := d.stages.Discover(ctx, viewOf(rec))
	switch out.Status {
	case StatusOK:
		if out.Patch.Source != nil && rec.Excluded(out.Patch.Source.Locator) {
			rec.AppendMessage(RoleSystem, "discovery proposed excluded source "+out.Patch.Source.Locator)
			log.Printf("component=driver action=discover workflow=%s result=excluded locator=%q", rec.ID, out.Patch.Source.Locator)
			return false // stay in discovery, attempt consumed
		}
		out.Patch.applyTo(rec)
		if out.Note != "" {
			rec.AppendMessage(RoleAssistant, out.Note)
		}
		if err := fire(rec, TriggerAdvance); err != nil {
			return d.fail(rec, err.Error())
		}
		return false
	case StatusRetry:
		rec.AppendMessage(RoleSystem, "discovery rejected: "+out.FailureReason)
		return false
	default:
		return d.fail(rec, "discovery: "+out.FailureReason)
	}
}

// stepValidation checks the proposed source. A recoverable rejection re-enters
// discovery while attempts remain; otherwise the workflow fails.
func (d *Driver) stepValidation(ctx context.Context, rec *Record) bool {
	log.Printf("component=driver action=validate workflow=%s locator=%q", rec.ID, rec.Source.Locator)

	out := d.stages.Validate(ctx, viewOf(rec))
	switch out.Status {
	case StatusOK, StatusCheckpoint:
		out.Patch.applyTo(rec)
		return d.park(rec, TriggerAdvance, out.Note)
	case StatusRetry:
		// A rejected locator is dead for good; discovery must not re-propose it.
		rec.Exclude(rec.Source.Locator)
		if rec.Attempts.Discovery >= d.cfg.MaxDiscoveryAttempts {
			return d.fail(rec, fmt.Sprintf("validation rejected %q with no attempts remaining: %s", rec.Source.Locator, out.FailureReason))
		}
		rec.AppendMessage(RoleSystem, "validation rejected "+rec.Source.Locator+": "+out.FailureReason)
		if err := fire(rec, TriggerRetry); err != nil {
			return d.fail(rec, err.Error())
		}
		return false
	default:
		return d.fail(rec, "validation: "+out.FailureReason)
	}
}
