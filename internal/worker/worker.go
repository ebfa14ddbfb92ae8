// Package worker implements the task dispatcher: it claims queued
// records oldest first, walks each through the queued -> running ->
// done|failed lifecycle, executes the routed handler as a child
// process, and persists outcome, state, and usage telemetry.
//
// One task's failure never aborts the batch; only store communication
// errors are fatal for the run. There is no cross-invocation lock:
// overlapping runs started by the external timer can double-claim a
// record. That gap is inherited deliberately and mitigated by interval
// spacing, not by a lease.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/phrazzld/drudge/internal/domain"
	"github.com/phrazzld/drudge/internal/notify"
	"github.com/phrazzld/drudge/internal/platform/logger"
	"github.com/phrazzld/drudge/internal/state"
	"github.com/phrazzld/drudge/internal/store"
	"github.com/phrazzld/drudge/internal/usage"
)

// depthProbeLimit caps the queue-depth query. Depth readings saturate
// at this many queued records.
const depthProbeLimit = 100

// Config holds the dispatcher's per-run settings.
type Config struct {
	// MaxTasks caps how many queued tasks one run claims.
	MaxTasks int

	// HandlersDir is the working directory handler processes run in.
	HandlersDir string
}

// Worker dispatches queued tasks to their handler programs.
type Worker struct {
	store     store.TaskStore
	notifier  notify.Notifier
	ledger    *usage.Ledger
	stateFile *state.File
	runner    CommandRunner
	cfg       Config
}

// New builds a Worker. A nil runner defaults to real child processes;
// a nil notifier defaults to the no-op channel.
func New(taskStore store.TaskStore, notifier notify.Notifier, ledger *usage.Ledger, stateFile *state.File, cfg Config, runner CommandRunner) *Worker {
	if runner == nil {
		runner = ProcessRunner{}
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if cfg.MaxTasks <= 0 {
		cfg.MaxTasks = 1
	}
	return &Worker{
		store:     taskStore,
		notifier:  notifier,
		ledger:    ledger,
		stateFile: stateFile,
		runner:    runner,
		cfg:       cfg,
	}
}

// RunSummary reports what one dispatcher run did.
type RunSummary struct {
	Claimed          int
	Succeeded        int
	Failed           int
	QueueDepth       int
	QueueDepthByType map[string]int
}

// Run claims up to MaxTasks queued records in creation order and
// processes them sequentially. Returns a non-nil error only for fatal
// (run-scoped) failures; task-scoped failures are reflected in the
// summary and the records themselves.
func (w *Worker) Run(ctx context.Context) (RunSummary, error) {
	log := logger.FromContext(ctx)
	sum := RunSummary{QueueDepthByType: map[string]int{}}

	queued, err := w.store.FindTasks(ctx, store.TaskFilter{
		Status: domain.TaskStatusQueued,
		Limit:  depthProbeLimit,
	})
	if err != nil {
		return sum, fmt.Errorf("failed to query queued tasks: %w", err)
	}

	sum.QueueDepth = len(queued)
	for _, rec := range queued {
		sum.QueueDepthByType[string(rec.Type)]++
	}

	claimed := queued
	if len(claimed) > w.cfg.MaxTasks {
		claimed = claimed[:w.cfg.MaxTasks]
	}
	sum.Claimed = len(claimed)

	if len(claimed) == 0 {
		log.Info("no queued tasks", "queue_depth", 0)
		w.writeRunState(ctx, sum, "no_tasks")
		return sum, nil
	}

	for _, rec := range claimed {
		outcome, err := w.attempt(ctx, rec)
		if err != nil {
			// Store communication failure: abort the run, leave the
			// record as-is for manual recovery or the next window.
			w.writeRunState(ctx, sum, "store_error")
			return sum, err
		}
		if outcome.failed {
			sum.Failed++
		} else {
			sum.Succeeded++
		}
		if w.ledger != nil {
			if lerr := w.ledger.Add(time.Now(), usage.Record{
				TaskType: string(rec.Type),
				Failed:   outcome.failed,
				Duration: outcome.duration,
			}); lerr != nil {
				log.Error("failed to update usage ledger", "error", lerr)
			}
		}
	}

	w.writeRunState(ctx, sum, "processed")
	return sum, nil
}

// attemptOutcome is the explicit per-attempt result: either a success
// with a result summary or a task-scoped failure with its truncated
// diagnostic. Fatal store errors travel on attempt's error return
// instead, never through panics.
type attemptOutcome struct {
	failed   bool
	detail   string
	duration time.Duration
}

// attempt walks one record through a single dispatch attempt.
func (w *Worker) attempt(ctx context.Context, rec *domain.TaskRecord) (attemptOutcome, error) {
	log := logger.FromContext(ctx).With(
		"task_id", rec.ID,
		"task_type", rec.Type,
		"project", rec.Project,
	)

	// Mark running before the handler starts: a crash mid-handler
	// leaves a visibly stuck running record rather than a silently
	// requeued one.
	now := time.Now().UTC()
	runCount := rec.RunCount + 1
	if err := w.store.PatchTask(ctx, rec.ID, store.TaskPatch{
		Status:    store.Ptr(domain.TaskStatusRunning),
		StartedAt: &now,
		RunCount:  &runCount,
		LastError: store.Ptr(""),
	}); err != nil {
		return attemptOutcome{}, fmt.Errorf("failed to mark task running: %w", err)
	}
	log.Info("running task", "run_count", runCount)

	argv, err := routeTask(rec)
	if err != nil {
		return w.failTask(ctx, rec, err.Error(), 0)
	}

	res, execErr := w.runner.Run(ctx, w.cfg.HandlersDir, argv)
	if execErr != nil {
		return w.failTask(ctx, rec, execErr.Error(), res.Duration)
	}
	if res.ExitCode != 0 {
		diag := res.Stderr
		if diag == "" {
			diag = res.Stdout
		}
		if diag == "" {
			diag = fmt.Sprintf("handler exited with code %d", res.ExitCode)
		}
		return w.failTask(ctx, rec, diag, res.Duration)
	}

	resultText := extractResult(res.Stdout)
	finished := time.Now().UTC()
	if err := w.store.PatchTask(ctx, rec.ID, store.TaskPatch{
		Status:     store.Ptr(domain.TaskStatusDone),
		FinishedAt: &finished,
		Result:     store.Ptr(domain.TruncateText(resultText, domain.MaxPropertyTextLen)),
	}); err != nil {
		return attemptOutcome{}, fmt.Errorf("failed to mark task done: %w", err)
	}
	if chunks := chunkLines(resultText, domain.MaxBodyChunkLen); len(chunks) > 0 {
		if err := w.store.AppendResultBody(ctx, rec.ID, chunks); err != nil {
			return attemptOutcome{}, fmt.Errorf("failed to append result body: %w", err)
		}
	}

	log.Info("task done", "duration_ms", res.Duration.Milliseconds())
	return attemptOutcome{detail: resultText, duration: res.Duration}, nil
}

// failTask records a task-scoped failure on the record, alerts the
// outbound channel, and reports the outcome. Only a store error makes
// it fatal.
func (w *Worker) failTask(ctx context.Context, rec *domain.TaskRecord, diagnostic string, duration time.Duration) (attemptOutcome, error) {
	log := logger.FromContext(ctx).With("task_id", rec.ID, "task_type", rec.Type)
	log.Error("task failed", "error", diagnostic)

	finished := time.Now().UTC()
	if err := w.store.PatchTask(ctx, rec.ID, store.TaskPatch{
		Status:     store.Ptr(domain.TaskStatusFailed),
		FinishedAt: &finished,
		LastError:  store.Ptr(domain.TruncateText(diagnostic, domain.MaxPropertyTextLen)),
	}); err != nil {
		return attemptOutcome{}, fmt.Errorf("failed to mark task failed: %w", err)
	}

	alert := fmt.Sprintf("[worker] Task failed: type=%s project=%s\n%s",
		rec.Type, rec.Project, diagnostic)
	if err := w.notifier.Send(ctx, alert); err != nil {
		log.Error("failed to send task failure alert", "error", err)
	}

	return attemptOutcome{failed: true, detail: diagnostic, duration: duration}, nil
}

// writeRunState records the run's queue observations in the worker's
// state document. Best effort.
func (w *Worker) writeRunState(ctx context.Context, sum RunSummary, result string) {
	if w.stateFile == nil {
		return
	}
	patch := state.Doc{
		"last_tasks_seen":     sum.Claimed,
		"last_result":         result,
		"queue_depth":         sum.QueueDepth,
		"queue_depth_by_type": sum.QueueDepthByType,
		"last_processed":      sum.Succeeded,
		"last_failed":         sum.Failed,
	}
	if err := w.stateFile.Update(patch); err != nil {
		logger.FromContext(ctx).Error("failed to write worker state", "error", err)
	}
}
