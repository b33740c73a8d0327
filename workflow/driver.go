// ABOUTME: Driver: schedules and advances workflows, one single-writer loop per workflow id.
// ABOUTME: All record mutation for an id is serialized through its handle mutex.
package workflow

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/autosci/orchestrator/executor"
)

// Executor submits generated code for remote execution. The HTTP client in
// the executor package implements it; tests use fakes.
type Executor interface {
	Submit(ctx context.Context, code string) (executor.Result, error)
}

// DriverConfig bounds the driver's retry and healing loops.
type DriverConfig struct {
	// MaxDiscoveryAttempts bounds discovery+validation pairs per workflow.
	MaxDiscoveryAttempts int
	// MaxHealAttempts bounds execution attempts in the self-healing loop.
	MaxHealAttempts int
	// HealCooldown is the pause between a correction and its re-run.
	HealCooldown time.Duration
	// RelayWait bounds the fallback relay poll during schema capture.
	RelayWait time.Duration
	// Relay is the optional out-of-band schema channel.
	Relay Relay
}

// DefaultDriverConfig returns the production bounds.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		MaxDiscoveryAttempts: 3,
		MaxHealAttempts:      3,
		HealCooldown:         5 * time.Second,
		RelayWait:            30 * time.Second,
	}
}

// Driver owns all workflow progression. Decision operations (approve, reject,
// feedback, abort) live in gates.go and go through the same per-id handle.
type Driver struct {
	store  Store
	stages Stages
	exec   Executor
	cfg    DriverConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	handles map[string]*handle
}

// handle serializes record mutation for one workflow id. driving and wake
// implement the at-most-one-loop guarantee: a decision landing while the loop
// is winding down sets wake so the loop runs one more pass instead of
// stranding the workflow.
type handle struct {
	mu      sync.Mutex
	driving bool
	wake    bool
}

// NewDriver wires the driver. Zero-valued config fields take defaults.
func NewDriver(store Store, stages Stages, exec Executor, cfg DriverConfig) *Driver {
	def := DefaultDriverConfig()
	if cfg.MaxDiscoveryAttempts <= 0 {
		cfg.MaxDiscoveryAttempts = def.MaxDiscoveryAttempts
	}
	if cfg.MaxHealAttempts <= 0 {
		cfg.MaxHealAttempts = def.MaxHealAttempts
	}
	if cfg.HealCooldown <= 0 {
		cfg.HealCooldown = def.HealCooldown
	}
	if cfg.RelayWait <= 0 {
		cfg.RelayWait = def.RelayWait
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Driver{
		store:   store,
		stages:  stages,
		exec:    exec,
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		handles: make(map[string]*handle),
	}
}

// Close stops scheduling and waits for in-flight drive loops to park.
func (d *Driver) Close() {
	d.cancel()
	d.wg.Wait()
}

// Start creates a workflow at the discovery stage and schedules its first
// drive loop.
func (d *Driver) Start(goal, locator string) (*Record, error) {
	rec, err := d.store.Create(goal, locator)
	if err != nil {
		return nil, err
	}
	log.Printf("component=driver action=start workflow=%s goal=%q", rec.ID, rec.Goal)
	d.resume(rec.ID.String())
	return rec, nil
}

// Get returns a copy of the workflow record.
func (d *Driver) Get(id string) (*Record, error) {
	return d.store.Get(id)
}

// List returns copies of all workflow records.
func (d *Driver) List() ([]*Record, error) {
	return d.store.List()
}

// Delete removes the workflow. A running drive loop notices the missing
// record on its next step and parks.
func (d *Driver) Delete(id string) error {
	if err := d.store.Delete(id); err != nil {
		return err
	}
	log.Printf("component=driver action=delete workflow=%s", id)
	return nil
}

// Clear removes all workflows.
func (d *Driver) Clear() error {
	if err := d.store.Clear(); err != nil {
		return err
	}
	log.Printf("component=driver action=clear")
	return nil
}

func (d *Driver) handleFor(id string) *handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.handles[id]
	if !ok {
		h = &handle{}
		d.handles[id] = h
	}
	return h
}

// resume schedules a drive loop for the workflow unless one is already
// running, in which case that loop is asked to make another pass.
func (d *Driver) resume(id string) {
	h := d.handleFor(id)
	h.mu.Lock()
	if h.driving {
		h.wake = true
		h.mu.Unlock()
		return
	}
	h.driving = true
	h.mu.Unlock()

	d.wg.Add(1)
	go d.run(h, id)
}

func (d *Driver) run(h *handle, id string) {
	defer d.wg.Done()
	for {
		d.drive(d.ctx, h, id)

		h.mu.Lock()
		if h.wake {
			h.wake = false
			h.mu.Unlock()
			continue
		}
		h.driving = false
		h.mu.Unlock()
		return
	}
}

// drive advances the workflow one stage at a time until it parks at a
// checkpoint, reaches a terminal stage, or disappears from the store. Each
// step is a load-mutate-persist cycle under the handle lock.
func (d *Driver) drive(ctx context.Context, h *handle, id string) {
	for {
		if ctx.Err() != nil {
			return
		}

		h.mu.Lock()
		rec, err := d.store.Get(id)
		if err != nil {
			h.mu.Unlock()
			return
		}
		if rec.Stage.Terminal() || rec.Stage.Checkpoint() {
			h.mu.Unlock()
			return
		}

		parked := d.step(ctx, rec)
		rec.UpdatedAt = time.Now().UTC()
		if err := d.store.Replace(id, rec); err != nil {
			log.Printf("component=driver action=persist workflow=%s error=%v", id, err)
			h.mu.Unlock()
			return
		}
		h.mu.Unlock()

		if parked {
			return
		}
	}
}

// step runs the work for the record's current stage and fires the resulting
// transition. It returns true when the workflow is parked.
func (d *Driver) step(ctx context.Context, rec *Record) bool {
	switch rec.Stage {
	case StageDiscovery:
		return d.stepDiscovery(ctx, rec)
	case StageValidation:
		return d.stepValidation(ctx, rec)
	case StageGenerateAnalysis:
		return d.stepGenerate(ctx, rec, ArtifactAnalysisCode)
	case StageSchemaCapture:
		return d.stepSchemaCapture(ctx, rec)
	case StageGenerateTraining:
		return d.stepGenerate(ctx, rec, ArtifactTrainingCode)
	case StageCombine:
		return d.stepCombine(rec)
	case StageExecution:
		return d.stepExecution(ctx, rec)
	case StageSelfHeal:
		return d.stepSelfHeal(ctx, rec)
	default:
		// Checkpoints and terminals are filtered by the caller.
		return true
	}
}

// fail moves the record to the failed stage with a reason. The fail trigger
// is permitted from every non-terminal stage.
func (d *Driver) fail(rec *Record, reason string) bool {
	if err := fire(rec, TriggerFail); err != nil {
		log.Printf("component=driver action=fail workflow=%s error=%v", rec.ID, err)
		return true
	}
	rec.AppendMessage(RoleSystem, "workflow failed: "+reason)
	log.Printf("component=driver action=fail workflow=%s reason=%q", rec.ID, reason)
	return true
}

// park transitions the record into a checkpoint stage with a fresh pending
// approval.
func (d *Driver) park(rec *Record, trigger Trigger, note string) bool {
	if err := fire(rec, trigger); err != nil {
		return d.fail(rec, err.Error())
	}
	rec.Approval = ApprovalPending
	if note != "" {
		rec.AppendMessage(RoleAssistant, note)
	}
	log.Printf("component=driver action=park workflow=%s stage=%s", rec.ID, rec.Stage)
	return true
}

// sleepWithContext pauses for d unless the context ends first.
func sleepWithContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
