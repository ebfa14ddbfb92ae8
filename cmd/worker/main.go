// Command worker is the task dispatcher: invoked on a timer by cron, it
// claims queued tasks oldest first and runs each one's handler program.
// Individual task failures leave the exit code at 0; only fatal errors
// (configuration, store communication) exit non-zero.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/drudge/internal/app"
	"github.com/phrazzld/drudge/internal/domain"
	"github.com/phrazzld/drudge/internal/platform/logger"
	"github.com/phrazzld/drudge/internal/state"
	"github.com/phrazzld/drudge/internal/usage"
	"github.com/phrazzld/drudge/internal/worker"
)

const identity = "worker"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	a, err := app.Init()
	if err != nil {
		return err
	}
	defer a.Close()

	runID := uuid.New().String()
	log := a.Log.With("run_id", runID, "component", identity)
	ctx := logger.WithLogger(context.Background(), log)

	stateFile := state.NewFile(a.Cfg.State.Dir, identity)
	if err := stateFile.Update(state.Doc{
		"last_check_at": state.Timestamp(time.Now()),
		"last_status":   "running",
	}); err != nil {
		log.Error("failed to write worker state", "error", err)
	}

	w := worker.New(a.Store, a.Notifier, a.Ledger, stateFile, worker.Config{
		MaxTasks:    a.Cfg.Worker.MaxTasks,
		HandlersDir: a.Cfg.Worker.HandlersDir,
	}, nil)

	started := time.Now()
	sum, runErr := w.Run(ctx)
	finished := time.Now()

	if lerr := a.Ledger.Add(finished, usage.Record{
		Agent:    identity,
		Failed:   runErr != nil,
		Duration: finished.Sub(started),
		Items:    sum.Claimed,
	}); lerr != nil {
		log.Error("failed to update usage ledger", "error", lerr)
	}

	if runErr != nil {
		log.Error("worker run failed", "error", runErr)
		alert := fmt.Sprintf("[worker] Fatal error: %v", runErr)
		if nerr := a.Notifier.Send(ctx, alert); nerr != nil {
			log.Error("failed to send alert", "error", nerr)
		}
		if serr := stateFile.Update(state.Doc{
			"last_finished_at": state.Timestamp(finished),
			"last_error_at":    state.Timestamp(finished),
			"last_error":       domain.TruncateText(runErr.Error(), domain.MaxPropertyTextLen),
			"last_status":      "failed",
		}); serr != nil {
			log.Error("failed to write worker state", "error", serr)
		}
		return runErr
	}

	log.Info("worker run complete",
		"claimed", sum.Claimed,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"queue_depth", sum.QueueDepth)
	if err := state.AppendLog(a.Cfg.State.LogDir,
		fmt.Sprintf("worker: claimed=%d succeeded=%d failed=%d depth=%d",
			sum.Claimed, sum.Succeeded, sum.Failed, sum.QueueDepth)); err != nil {
		log.Error("failed to append runner log", "error", err)
	}
	if err := stateFile.Update(state.Doc{
		"last_finished_at": state.Timestamp(finished),
		"last_success_at":  state.Timestamp(finished),
		"last_status":      "ok",
	}); err != nil {
		log.Error("failed to write worker state", "error", err)
	}
	return nil
}
