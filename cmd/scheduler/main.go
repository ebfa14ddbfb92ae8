// Command scheduler is the recurrence scheduler: invoked on a timer by
// cron (or a launchd-equivalent), it creates one queued task per
// (type, project, window) that does not already have one. Exit code is
// 0 on a clean run and non-zero on a fatal (run-scoped) error.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/drudge/internal/app"
	"github.com/phrazzld/drudge/internal/domain"
	"github.com/phrazzld/drudge/internal/platform/logger"
	"github.com/phrazzld/drudge/internal/scheduler"
	"github.com/phrazzld/drudge/internal/state"
	"github.com/phrazzld/drudge/internal/usage"
)

const identity = "scheduler"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "scheduler: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	a, err := app.Init()
	if err != nil {
		return err
	}
	defer a.Close()

	if len(a.Cfg.Scheduler.Projects) == 0 || len(a.Cfg.Scheduler.Rules) == 0 {
		return errors.New("scheduler.projects and scheduler.rules must be configured")
	}

	runID := uuid.New().String()
	log := a.Log.With("run_id", runID, "component", identity)
	ctx := logger.WithLogger(context.Background(), log)

	stateFile := state.NewFile(a.Cfg.State.Dir, identity)
	if err := stateFile.Update(state.Doc{
		"last_check_at": state.Timestamp(time.Now()),
		"last_status":   "running",
	}); err != nil {
		log.Error("failed to write scheduler state", "error", err)
	}

	started := time.Now()
	sum, runErr := scheduler.New(a.Store, a.Cfg.Scheduler.Projects, a.Cfg.Scheduler.Rules).
		Run(ctx, started)
	finished := time.Now()

	if lerr := a.Ledger.Add(finished, usage.Record{
		Agent:    identity,
		Failed:   runErr != nil,
		Duration: finished.Sub(started),
		Items:    sum.Created,
	}); lerr != nil {
		log.Error("failed to update usage ledger", "error", lerr)
	}

	if runErr != nil {
		log.Error("scheduler run failed", "error", runErr)
		alert := fmt.Sprintf("[scheduler] Fatal error: %v", runErr)
		if nerr := a.Notifier.Send(ctx, alert); nerr != nil {
			log.Error("failed to send alert", "error", nerr)
		}
		if serr := stateFile.Update(state.Doc{
			"last_finished_at": state.Timestamp(finished),
			"last_error_at":    state.Timestamp(finished),
			"last_error":       domain.TruncateText(runErr.Error(), domain.MaxPropertyTextLen),
			"last_status":      "failed",
		}); serr != nil {
			log.Error("failed to write scheduler state", "error", serr)
		}
		return runErr
	}

	log.Info("scheduler run complete", "created", sum.Created, "skipped", sum.Skipped)
	if err := state.AppendLog(a.Cfg.State.LogDir,
		fmt.Sprintf("scheduler: created=%d skipped=%d", sum.Created, sum.Skipped)); err != nil {
		log.Error("failed to append runner log", "error", err)
	}
	if err := stateFile.Update(state.Doc{
		"last_finished_at": state.Timestamp(finished),
		"last_success_at":  state.Timestamp(finished),
		"last_status":      "ok",
		"last_created":     sum.Created,
		"last_skipped":     sum.Skipped,
	}); err != nil {
		log.Error("failed to write scheduler state", "error", err)
	}
	return nil
}
