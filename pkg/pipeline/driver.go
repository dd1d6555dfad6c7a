// Package pipeline drives a build run end to end: session initialization,
// backlog generation, dependency-ordered execution, post-execution
// verification with bounded fix cycles, and graceful signal shutdown. The
// flow is a state machine; states.go is its single source of truth.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"foreman/pkg/agent"
	"foreman/pkg/backlog"
	"foreman/pkg/cache"
	"foreman/pkg/config"
	"foreman/pkg/logx"
	"foreman/pkg/metrics"
	"foreman/pkg/persistence"
	"foreman/pkg/retry"
	"foreman/pkg/scheduler"
	"foreman/pkg/session"
)

// progressInterval is how many processed subtasks pass between progress
// log lines.
const progressInterval = 5

// Driver owns one pipeline run. It is not reusable: construct a fresh Driver
// per Run call.
type Driver struct {
	cfg      *config.Config
	collab   agent.Collaborators
	recorder metrics.Recorder
	history  *persistence.History
	logger   *logx.Logger

	store *session.Store
	sched *scheduler.Scheduler

	runID        string
	currentState State
	startTime    time.Time
	iterations   int
	processed    int
	fixRounds    int
	openDefects  []agent.Defect

	mu                sync.Mutex
	shutdownRequested bool
	shutdownReason    string
	shutdownCh        chan struct{}

	sigCh   chan os.Signal
	sigDone chan struct{}
}

// New creates a pipeline driver. The executor and generator collaborators are
// required; verifier, fix cycle, and summarizer are optional.
func New(cfg *config.Config, collab agent.Collaborators, recorder metrics.Recorder) *Driver {
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}
	return &Driver{
		cfg:          cfg,
		collab:       collab,
		recorder:     recorder,
		logger:       logx.NewLogger("pipeline"),
		currentState: StateInit,
		shutdownCh:   make(chan struct{}),
	}
}

// SetHistory attaches an optional run-history database; runs and task
// failures are recorded there during cleanup.
func (d *Driver) SetHistory(h *persistence.History) {
	d.history = h
}

// State returns the driver's current pipeline state.
func (d *Driver) State() State {
	return d.currentState
}

// RequestShutdown asks the run to stop gracefully: the in-flight subtask
// finishes, then the pipeline moves to shutdown_interrupted. The first
// request wins; duplicates are logged and ignored.
func (d *Driver) RequestShutdown(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.shutdownRequested {
		d.logger.Info("shutdown already in progress, ignoring duplicate request (%s)", reason)
		return
	}
	d.shutdownRequested = true
	d.shutdownReason = reason
	close(d.shutdownCh)
	d.logger.Info("shutdown requested: %s", reason)
}

func (d *Driver) isShutdownRequested() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdownRequested
}

// Run executes the pipeline for the given source requirements document and
// returns a Result describing the outcome. The returned error is non-nil only
// for fatal failures; individual task failures are reported in the Result.
func (d *Driver) Run(ctx context.Context, sourceDocPath string) (*Result, error) {
	if d.collab.Executor == nil || d.collab.Generator == nil {
		return nil, fmt.Errorf("pipeline requires executor and generator collaborators")
	}

	d.runID = uuid.New().String()
	d.startTime = time.Now()
	d.listenForSignals()

	var fatal error
	for !d.currentState.IsTerminal() {
		select {
		case <-ctx.Done():
			fatal = fmt.Errorf("pipeline context cancelled: %w", ctx.Err())
		default:
		}
		if fatal != nil {
			d.transitionTo(StateError)
			break
		}

		nextState, err := d.processCurrentState(ctx, sourceDocPath)
		if err != nil {
			fatal = fmt.Errorf("state processing error in %s: %w", d.currentState, err)
			d.logger.Error("%v", fatal)
			d.transitionTo(StateError)
			break
		}
		if err := d.transitionTo(nextState); err != nil {
			fatal = err
			d.transitionTo(StateError)
			break
		}
	}

	d.cleanup()
	result := d.buildResult(fatal)
	d.recordRun(result)
	return result, fatal
}

func (d *Driver) processCurrentState(ctx context.Context, sourceDocPath string) (State, error) {
	switch d.currentState {
	case StateInit:
		return d.handleInit(ctx, sourceDocPath)
	case StateSessionInitialized:
		return d.handleSessionInitialized(ctx)
	case StateBacklogGenerated:
		return d.handleBacklogGenerated()
	case StateExecuting:
		return d.handleExecuting(ctx)
	case StateBacklogComplete:
		return d.handleBacklogComplete()
	case StateShutdownInterrupted:
		return StateShutdownComplete, nil
	case StateQARunning:
		return d.handleQARunning(ctx)
	case StateQAComplete:
		return StateShutdownComplete, nil
	default:
		return StateError, fmt.Errorf("unknown state: %s", d.currentState)
	}
}

// transitionTo moves the driver to a new state after checking the transition
// table. Self-transitions are rejected like any other invalid edge.
func (d *Driver) transitionTo(next State) error {
	if next == StateError {
		d.recorder.ObserveStateTransition(d.currentState.String(), next.String())
		d.currentState = next
		return nil
	}
	if !IsValidTransition(d.currentState, next) {
		return fmt.Errorf("invalid transition %s -> %s", d.currentState, next)
	}
	d.logger.Debug("transition %s -> %s", d.currentState, next)
	d.recorder.ObserveStateTransition(d.currentState.String(), next.String())
	d.currentState = next
	return nil
}

func (d *Driver) handleInit(ctx context.Context, sourceDocPath string) (State, error) {
	d.store = session.NewStore(d.cfg.SessionRoot)
	sess, err := d.store.Initialize(ctx, sourceDocPath)
	if err != nil {
		return StateError, err
	}
	if sess.Resumed {
		d.logger.Info("resumed session %s", sess.ID)
	} else {
		d.logger.Info("created session %s", sess.ID)
	}
	if d.history != nil {
		if err := d.history.StartRun(d.runID, sess.ID, d.startTime); err != nil {
			d.logger.Warn("failed to record run start: %v", err)
		}
	}
	return StateSessionInitialized, nil
}

func (d *Driver) handleSessionInitialized(ctx context.Context) (State, error) {
	if err := d.regenerateDeltaSummary(ctx); err != nil {
		return StateError, err
	}

	if d.store.HasBacklog() {
		if _, err := d.store.LoadBacklog(); err != nil {
			return StateError, err
		}
		d.logger.Info("loaded existing backlog (%d subtasks)", d.store.Backlog().TotalSubtasks())
		return StateBacklogGenerated, nil
	}

	source, err := os.ReadFile(d.store.Session().SnapshotPath())
	if err != nil {
		return StateError, fmt.Errorf("failed to read requirements snapshot: %w", err)
	}

	b, err := retry.DoValue(ctx, d.policy("backlog-generator"), func(ctx context.Context) (*backlog.Backlog, error) {
		return d.collab.Generator.GenerateBacklog(ctx, string(source))
	})
	if err != nil {
		return StateError, fmt.Errorf("backlog generation failed: %w", err)
	}
	if err := d.store.SaveBacklog(b); err != nil {
		return StateError, fmt.Errorf("generated backlog rejected: %w", err)
	}
	d.logger.Info("generated backlog with %d subtasks", b.TotalSubtasks())
	return StateBacklogGenerated, nil
}

// regenerateDeltaSummary rebuilds the change-summary artifact when the active
// session is a delta session resumed without one.
func (d *Driver) regenerateDeltaSummary(ctx context.Context) error {
	sess := d.store.Session()
	if !sess.IsDelta() || d.store.DeltaComplete() {
		return nil
	}
	if d.collab.Summarizer == nil {
		d.logger.Warn("delta session %s incomplete but no summarizer wired", sess.ID)
		return nil
	}
	d.logger.Info("delta session %s missing change summary, regenerating", sess.ID)

	parentSource := ""
	if data, err := d.store.ParentSnapshot(); err == nil {
		parentSource = string(data)
	} else {
		d.logger.Warn("parent snapshot unavailable: %v", err)
	}
	current, err := os.ReadFile(sess.SnapshotPath())
	if err != nil {
		return fmt.Errorf("failed to read requirements snapshot: %w", err)
	}

	summary, err := retry.DoValue(ctx, d.policy("change-summarizer"), func(ctx context.Context) (string, error) {
		return d.collab.Summarizer.SummarizeChanges(ctx, parentSource, string(current))
	})
	if err != nil {
		return fmt.Errorf("change summary regeneration failed: %w", err)
	}
	return d.store.WriteChangeSummary(summary)
}

func (d *Driver) handleBacklogGenerated() (State, error) {
	execPolicy := d.policy("executor")
	d.sched = scheduler.New(d.store, d.collab.Executor, execPolicy, d.recorder)
	d.sched.SetCache(cache.New(d.store.Session().CacheDir(), d.cfg.CacheTTL()))
	return StateExecuting, nil
}

func (d *Driver) handleExecuting(ctx context.Context) (State, error) {
	if d.cfg.Parallelism > 1 {
		return d.drainParallel(ctx)
	}

	total := d.store.Backlog().TotalSubtasks()
	for {
		if d.isShutdownRequested() {
			return StateShutdownInterrupted, nil
		}
		select {
		case <-ctx.Done():
			return StateError, fmt.Errorf("execution cancelled: %w", ctx.Err())
		default:
		}

		d.iterations++
		if d.iterations > d.cfg.MaxIterations {
			return StateError, fmt.Errorf("iteration ceiling %d exceeded, aborting run", d.cfg.MaxIterations)
		}

		ok, err := d.sched.ProcessNextItem(ctx)
		if err != nil {
			return StateError, err
		}
		if !ok {
			return StateBacklogComplete, nil
		}
		d.processed++
		if d.processed%progressInterval == 0 {
			d.logger.Info("progress: %d/%d subtasks processed", d.processed, total)
		}
	}
}

// drainParallel runs the scheduler's worker pool, cancelling it when a
// shutdown is requested so workers stop claiming new items.
func (d *Driver) drainParallel(ctx context.Context) (State, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-d.shutdownCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	n, err := d.sched.Drain(runCtx, d.cfg.Parallelism)
	d.processed += n
	d.iterations += n
	if d.isShutdownRequested() {
		return StateShutdownInterrupted, nil
	}
	if err != nil {
		return StateError, err
	}
	if d.iterations > d.cfg.MaxIterations {
		return StateError, fmt.Errorf("iteration ceiling %d exceeded, aborting run", d.cfg.MaxIterations)
	}
	return StateBacklogComplete, nil
}

func (d *Driver) handleBacklogComplete() (State, error) {
	if d.collab.Verifier == nil {
		return StateShutdownComplete, nil
	}
	return StateQARunning, nil
}

func (d *Driver) handleQARunning(ctx context.Context) (State, error) {
	source, err := os.ReadFile(d.store.Session().SnapshotPath())
	if err != nil {
		return StateError, fmt.Errorf("failed to read requirements snapshot: %w", err)
	}
	completed := d.completedSubtaskIDs()

	result, err := retry.DoValue(ctx, d.policy("verifier"), func(ctx context.Context) (*agent.VerificationResult, error) {
		return d.collab.Verifier.RunVerification(ctx, string(source), completed)
	})
	if err != nil {
		return StateError, fmt.Errorf("verification failed: %w", err)
	}

	d.openDefects = result.Defects
	if !result.HasDefects {
		d.logger.Info("verification passed")
		return StateQAComplete, nil
	}

	majors := majorDefects(result.Defects)
	if len(majors) == 0 {
		d.logger.Info("verification found %d minor defects, accepting", len(result.Defects))
		return StateQAComplete, nil
	}
	if d.collab.FixCycle == nil {
		d.logger.Warn("verification found %d major defects but no fix cycle wired", len(majors))
		return StateQAComplete, nil
	}
	if d.fixRounds >= d.cfg.FixCycleBudget {
		d.logger.Warn("fix cycle budget %d exhausted with %d major defects remaining", d.cfg.FixCycleBudget, len(majors))
		return StateQAComplete, nil
	}

	d.fixRounds++
	d.logger.Info("fix cycle round %d: planning fixes for %d defects", d.fixRounds, len(majors))
	subs, err := retry.DoValue(ctx, d.policy("fix-cycle"), func(ctx context.Context) ([]*backlog.Subtask, error) {
		return d.collab.FixCycle.PlanFixes(ctx, majors, d.store.Backlog())
	})
	if err != nil {
		return StateError, fmt.Errorf("fix planning failed: %w", err)
	}
	if len(subs) == 0 {
		d.logger.Warn("fix cycle produced no subtasks for %d defects", len(majors))
		return StateQAComplete, nil
	}

	b := d.store.Backlog()
	for _, sub := range subs {
		if err := appendSubtask(b, sub); err != nil {
			return StateError, fmt.Errorf("failed to place fix subtask %s: %w", sub.ID, err)
		}
	}
	if err := d.store.SaveBacklog(b); err != nil {
		return StateError, fmt.Errorf("fix subtasks rejected: %w", err)
	}
	return StateExecuting, nil
}

func (d *Driver) completedSubtaskIDs() []string {
	var ids []string
	for _, sub := range d.store.Backlog().Subtasks() {
		if sub.Status == backlog.StatusComplete {
			ids = append(ids, sub.ID)
		}
	}
	return ids
}

func majorDefects(defects []agent.Defect) []agent.Defect {
	var majors []agent.Defect
	for _, def := range defects {
		if !def.IsMinor() {
			majors = append(majors, def)
		}
	}
	return majors
}

// appendSubtask places a fix subtask on the task named by its ID prefix. The
// planner is responsible for choosing a task that already exists.
func appendSubtask(b *backlog.Backlog, sub *backlog.Subtask) error {
	idx := strings.LastIndex(sub.ID, ".")
	if idx < 0 {
		return fmt.Errorf("subtask ID %q has no task prefix", sub.ID)
	}
	taskID := sub.ID[:idx]
	for _, p := range b.Phases {
		for _, m := range p.Milestones {
			for _, t := range m.Tasks {
				if t.ID == taskID {
					if sub.Status == "" {
						sub.Status = backlog.StatusPlanned
					}
					t.Subtasks = append(t.Subtasks, sub)
					return nil
				}
			}
		}
	}
	return fmt.Errorf("no task %q in backlog", taskID)
}

// policy builds a retry policy from config with an OnRetry hook that feeds
// the metrics recorder.
func (d *Driver) policy(operation string) *retry.Policy {
	p := retry.NewPolicy(retry.Config{
		MaxAttempts:   d.cfg.Retry.MaxAttempts,
		BaseDelay:     d.cfg.Retry.BaseDelay,
		MaxDelay:      d.cfg.Retry.MaxDelay,
		BackoffFactor: d.cfg.Retry.BackoffFactor,
		Jitter:        d.cfg.Retry.Jitter,
	}, nil)
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		d.recorder.ObserveRetry(operation)
		d.logger.Warn("%s attempt %d failed: %v (retrying in %v)", operation, attempt, err, delay)
	}
	return p
}

// listenForSignals registers the driver-owned SIGINT/SIGTERM handler. The
// handler lives exactly as long as the run; cleanup removes it on every exit
// path.
func (d *Driver) listenForSignals() {
	d.sigCh = make(chan os.Signal, 2)
	d.sigDone = make(chan struct{})
	signal.Notify(d.sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for {
			select {
			case sig := <-d.sigCh:
				d.RequestShutdown(fmt.Sprintf("received %s", sig))
			case <-d.sigDone:
				return
			}
		}
	}()
}

// cleanup flushes pending status updates, saves the backlog, and removes the
// signal listener, in that order.
func (d *Driver) cleanup() {
	if d.store != nil && d.store.Backlog() != nil {
		if err := d.store.FlushUpdates(); err != nil {
			d.logger.Error("failed to flush pending updates: %v", err)
		}
		if err := d.store.SaveBacklog(d.store.Backlog()); err != nil {
			d.logger.Error("failed to save backlog: %v", err)
		}
	}
	signal.Stop(d.sigCh)
	close(d.sigDone)
}

func (d *Driver) buildResult(fatal error) *Result {
	d.mu.Lock()
	interrupted := d.shutdownRequested
	reason := d.shutdownReason
	d.mu.Unlock()

	result := &Result{
		RunID:               d.runID,
		Duration:            time.Since(d.startTime),
		ShutdownInterrupted: interrupted,
		ShutdownReason:      reason,
		FinalState:          d.currentState,
		DefectsFound:        d.openDefects,
		Err:                 fatal,
	}
	if d.store != nil && d.store.Session() != nil {
		result.SessionID = d.store.Session().ID
	}
	if d.store != nil && d.store.Backlog() != nil {
		b := d.store.Backlog()
		result.Backlog = b
		result.TotalTasks = b.TotalSubtasks()
		result.CompletedTasks = b.CountByStatus(backlog.StatusComplete)
		result.FailedTasks = b.CountByStatus(backlog.StatusFailed)
		result.PhaseSummaries = b.PhaseSummaries()
	}
	if d.sched != nil {
		result.Failures = d.sched.Failures()
	}
	result.Success = fatal == nil && !interrupted && len(majorDefects(d.openDefects)) == 0
	return result
}

func (d *Driver) recordRun(result *Result) {
	if d.history == nil {
		return
	}
	for _, f := range result.Failures {
		if err := d.history.RecordTaskEvent(d.runID, f.TaskID, string(backlog.StatusFailed), f.ErrorCode+": "+f.Error); err != nil {
			d.logger.Warn("failed to record task event: %v", err)
		}
	}
	err := d.history.FinishRun(d.runID, result.FinalState.String(), result.Success,
		result.TotalTasks, result.CompletedTasks, result.FailedTasks,
		result.ShutdownInterrupted, result.ShutdownReason)
	if err != nil {
		d.logger.Warn("failed to record run finish: %v", err)
	}
}
