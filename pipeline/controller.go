// ABOUTME: Pipeline controller owning the run lifecycle: exclusivity, stage sequencing, and cooperative stop.
// ABOUTME: Runs stages on a single background worker and publishes every transition through the Broadcaster.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is the controller's run lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StateStopping  State = "stopping"
	StateStopped   State = "stopped"
	StateCompleted State = "completed"
	StateError     State = "error"
)

// RunConfig describes one pipeline run.
type RunConfig struct {
	DryRun bool   `json:"dry_run"`
	AIMode bool   `json:"ai_mode"`
	Seed   *int64 `json:"seed,omitempty"`
	Count  int    `json:"count"`

	// StageTimeout bounds each stage via context cancellation. Zero means
	// no timeout, matching the original behavior.
	StageTimeout time.Duration `json:"-"`
}

// Mode returns "dry" or "live" for run records.
func (c RunConfig) Mode() string {
	if c.DryRun {
		return "dry"
	}
	return "live"
}

// RecordSkip identifies a record a stage deliberately left untouched.
type RecordSkip struct {
	LeadID string `json:"lead_id"`
	Reason string `json:"reason"`
}

// StageResult is what a stage function reports back to the controller.
type StageResult struct {
	Count int
	Extra map[string]any
	Skips []RecordSkip
}

// StageFunc performs one stage's work. It must commit its own writes before
// returning; an error escaping it is fatal to the whole run.
type StageFunc func(ctx context.Context, cfg RunConfig) (StageResult, error)

// Stage pairs a stage name with its function.
type Stage struct {
	Name string
	Run  StageFunc
}

// Recorder persists run metadata and serves store-wide status tallies. The
// controller never touches record statuses directly.
type Recorder interface {
	StartRun(mode string, aiMode bool, seed *int64, total int) (string, error)
	FinishRun(runID string, succeeded, failed int) error
	LogEvent(runID, leadID, stage, level, message string) error
	CountStatuses() (map[string]int, error)
}

// Controller sequences the pipeline stages for one run at a time.
//
// Cancellation is cooperative and coarse-grained: Stop sets a flag that the
// worker consults only at stage boundaries, so the worst-case stop latency
// is the duration of the stage in progress.
type Controller struct {
	broadcaster *Broadcaster
	recorder    Recorder
	stages      []Stage
	logger      *slog.Logger

	mu         sync.Mutex
	state      State
	running    bool
	shouldStop bool
	snapshot   *Snapshot
}

// NewController wires a controller from its collaborators. stages run in the
// order given.
func NewController(recorder Recorder, broadcaster *Broadcaster, stages []Stage, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		broadcaster: broadcaster,
		recorder:    recorder,
		stages:      stages,
		logger:      logger,
		state:       StateIdle,
		snapshot:    newSnapshot(),
	}
}

// State returns the current lifecycle state. Terminal states (completed,
// stopped, error) persist after a run ends so status readers see the last
// outcome; readiness for the next run is carried by the running flag alone,
// and the next Start resets the state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a copy of the live progress snapshot.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.Clone()
}

// Status returns the snapshot plus current store-wide status counts. Safe to
// call concurrently with an active run; the snapshot read may trail the
// worker by a moment.
func (c *Controller) Status() (Snapshot, map[string]int, error) {
	snap := c.Snapshot()
	counts, err := c.recorder.CountStatuses()
	if err != nil {
		return snap, nil, fmt.Errorf("count statuses: %w", err)
	}
	return snap, counts, nil
}

// Start begins a new run in the background and returns immediately. Returns
// ErrBusy, without mutating any state, when a run is already active.
func (c *Controller) Start(cfg RunConfig) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrBusy
	}

	c.running = true
	c.shouldStop = false
	c.state = StateStarting
	c.snapshot = newSnapshot()
	c.snapshot.Running = true
	c.snapshot.CurrentStage = "starting"
	c.mu.Unlock()

	runsStarted.Inc()
	c.publish(EventPipelineStarted, map[string]any{"config": cfg})
	c.logger.Info("pipeline starting", "mode", cfg.Mode(), "ai_mode", cfg.AIMode, "count", cfg.Count)

	go c.worker(cfg)
	return nil
}

// RunStage executes a single named stage synchronously, outside a full run.
// It holds the same exclusivity as Start: ErrBusy while a run or another
// single-stage invocation is active. Stage events and a metrics update are
// published so observers see ad hoc invocations the same way they see runs.
// No run record is created; the stage's audit entries carry an empty run id.
func (c *Controller) RunStage(ctx context.Context, name string, cfg RunConfig) (StageResult, error) {
	var stage *Stage
	for i := range c.stages {
		if c.stages[i].Name == name {
			stage = &c.stages[i]
			break
		}
	}
	if stage == nil {
		return StageResult{}, fmt.Errorf("unknown stage %q", name)
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return StageResult{}, ErrBusy
	}
	c.running = true
	c.state = StateRunning
	c.snapshot.Running = true
	c.snapshot.CurrentStage = name
	p := c.snapshot.Progress[name]
	p.Status = "running"
	c.snapshot.Progress[name] = p
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.state = StateIdle
		c.snapshot.Running = false
		c.mu.Unlock()
	}()

	c.publish(EventStageStarted, map[string]any{"stage": name})
	c.logger.Info("stage invoked", "stage", name, "mode", cfg.Mode())

	if cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.StageTimeout)
		defer cancel()
	}

	result, err := stage.Run(ctx, cfg)
	if err != nil {
		c.mu.Lock()
		p := c.snapshot.Progress[name]
		p.Status = "error"
		c.snapshot.Progress[name] = p
		c.mu.Unlock()
		c.logger.Error("stage invocation failed", "stage", name, "error", err)
		return result, fmt.Errorf("stage %s: %w", name, err)
	}

	c.completeStage(name, result)

	data := map[string]any{"stage": name, "count": result.Count}
	for k, v := range result.Extra {
		data[k] = v
	}
	if len(result.Skips) > 0 {
		data["skipped"] = len(result.Skips)
	}
	c.publish(EventStageCompleted, data)
	c.publishMetrics()

	return result, nil
}

// Stop requests cancellation of the active run. The in-flight stage runs to
// completion; the flag is only consulted between stages. Returns
// ErrNotRunning when idle.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.shouldStop = true
	c.state = StateStopping
	c.snapshot.ShouldStop = true
	c.mu.Unlock()

	c.publish(EventPipelineStopping, map[string]any{"message": "stop requested"})
	c.logger.Info("pipeline stop requested")
	return nil
}

// worker executes the stages of one run in order. Every exit path clears the
// running and stop flags so a subsequent Start can proceed.
func (c *Controller) worker(cfg RunConfig) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.shouldStop = false
		c.snapshot.Running = false
		c.snapshot.ShouldStop = false
		c.mu.Unlock()
	}()

	runID, err := c.recorder.StartRun(cfg.Mode(), cfg.AIMode, cfg.Seed, cfg.Count)
	if err != nil {
		c.fail(runID, fmt.Errorf("start run record: %w", err))
		return
	}

	c.mu.Lock()
	c.snapshot.RunID = runID
	c.mu.Unlock()

	for _, stage := range c.stages {
		if c.stopRequested() {
			c.stopped(runID)
			return
		}

		c.enterStage(stage.Name)
		c.publish(EventStageStarted, map[string]any{"stage": stage.Name})

		result, err := c.runStage(stage, cfg, runID)
		if err != nil {
			c.fail(runID, fmt.Errorf("stage %s: %w", stage.Name, err))
			return
		}

		c.completeStage(stage.Name, result)

		data := map[string]any{"stage": stage.Name, "count": result.Count}
		for k, v := range result.Extra {
			data[k] = v
		}
		if len(result.Skips) > 0 {
			data["skipped"] = len(result.Skips)
		}
		c.publish(EventStageCompleted, data)

		// Fresh store-wide tallies after the stages that change the
		// status distribution most visibly.
		if stage.Name == "enrich" || stage.Name == "deliver" {
			c.publishMetrics()
		}
	}

	c.complete(runID, cfg)
}

// runStage invokes one stage function, applying the per-stage timeout when
// configured.
func (c *Controller) runStage(stage Stage, cfg RunConfig, runID string) (StageResult, error) {
	ctx := WithRunID(context.Background(), runID)
	if cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.StageTimeout)
		defer cancel()
	}
	return stage.Run(ctx, cfg)
}

func (c *Controller) stopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shouldStop
}

func (c *Controller) enterStage(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateRunning
	c.snapshot.CurrentStage = name
	p := c.snapshot.Progress[name]
	p.Status = "running"
	c.snapshot.Progress[name] = p
}

func (c *Controller) completeStage(name string, result StageResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.snapshot.Progress[name]
	p.Status = "completed"
	p.Count = result.Count
	if len(result.Extra) > 0 || len(result.Skips) > 0 {
		p.Extra = map[string]any{}
		for k, v := range result.Extra {
			p.Extra[k] = v
		}
		if len(result.Skips) > 0 {
			p.Extra["skips"] = result.Skips
		}
	}
	c.snapshot.Progress[name] = p
}

// complete finalizes a successful run: tallies from the store, run record
// closed, terminal event published.
func (c *Controller) complete(runID string, cfg RunConfig) {
	succeeded, failed := 0, 0
	counts, err := c.recorder.CountStatuses()
	if err != nil {
		c.logger.Error("final status tally failed", "error", err)
	} else {
		succeeded = counts["DELIVERED"]
		failed = counts["FAILED"]
	}

	if err := c.recorder.FinishRun(runID, succeeded, failed); err != nil {
		c.logger.Error("finish run record failed", "run_id", runID, "error", err)
	}

	c.mu.Lock()
	c.state = StateCompleted
	c.snapshot.CurrentStage = "completed"
	c.mu.Unlock()

	runsFinished.WithLabelValues("completed").Inc()
	c.publish(EventPipelineCompleted, map[string]any{
		"run_id": runID,
		"total":  cfg.Count,
		"sent":   succeeded,
		"failed": failed,
	})
	c.logger.Info("pipeline completed", "run_id", runID, "sent", succeeded, "failed", failed)
}

// stopped finalizes a run aborted at a stage boundary after Stop.
func (c *Controller) stopped(runID string) {
	c.finalizeRun(runID)

	c.mu.Lock()
	c.state = StateStopped
	c.snapshot.CurrentStage = "stopped"
	c.mu.Unlock()

	runsFinished.WithLabelValues("stopped").Inc()
	c.publish(EventPipelineStopped, map[string]any{"message": errStopRequested.Error()})
	c.logger.Info("pipeline stopped", "run_id", runID)
}

// fail finalizes a run aborted by an error escaping a stage. The hosting
// process keeps running; a new run may start immediately.
func (c *Controller) fail(runID string, err error) {
	if runID != "" {
		c.finalizeRun(runID)
		_ = c.recorder.LogEvent(runID, "", "run", "ERROR", err.Error())
	}

	c.mu.Lock()
	c.state = StateError
	c.snapshot.CurrentStage = "error"
	c.mu.Unlock()

	runsFinished.WithLabelValues("error").Inc()
	c.publish(EventPipelineError, map[string]any{"error": err.Error()})
	c.logger.Error("pipeline failed", "run_id", runID, "error", err)
}

// finalizeRun closes the run record with whatever tallies exist at abort.
func (c *Controller) finalizeRun(runID string) {
	succeeded, failed := 0, 0
	if counts, err := c.recorder.CountStatuses(); err == nil {
		succeeded = counts["DELIVERED"]
		failed = counts["FAILED"]
	}
	if err := c.recorder.FinishRun(runID, succeeded, failed); err != nil {
		c.logger.Error("finish run record failed", "run_id", runID, "error", err)
	}
}

func (c *Controller) publishMetrics() {
	counts, err := c.recorder.CountStatuses()
	if err != nil {
		c.logger.Error("status tally failed", "error", err)
		return
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	c.publish(EventMetricsUpdate, map[string]any{
		"total":         total,
		"status_counts": counts,
	})
}

func (c *Controller) publish(t EventType, data map[string]any) {
	c.broadcaster.Publish(NewEvent(t, data))
}
