// Package scheduler implements the recurrence scheduler: for each
// configured project and rule it computes the rule's current UTC window
// and creates a queued task unless one was already created inside that
// window. The scheduler is the sole retry mechanism, operating at
// window granularity: a task that failed earlier in the window is not
// recreated until the next window opens.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/phrazzld/drudge/internal/domain"
	"github.com/phrazzld/drudge/internal/platform/logger"
	"github.com/phrazzld/drudge/internal/store"
)

// Scheduler creates recurring tasks in the record store.
type Scheduler struct {
	store    store.TaskStore
	projects []string
	rules    []domain.RecurrenceRule
}

// New builds a Scheduler over the given store, projects, and rules.
func New(taskStore store.TaskStore, projects []string, rules []domain.RecurrenceRule) *Scheduler {
	return &Scheduler{
		store:    taskStore,
		projects: projects,
		rules:    rules,
	}
}

// Summary reports what one scheduler run did.
type Summary struct {
	Created int
	Skipped int
}

// Run evaluates every project × rule pair against now. A store error
// aborts the run and is returned; tasks created before the failure
// remain created, there is no rollback. Rules with an unknown frequency
// or an invalid type are skipped with a warning rather than failing the
// run, matching the config-not-code status of rules.
func (s *Scheduler) Run(ctx context.Context, now time.Time) (Summary, error) {
	log := logger.FromContext(ctx)
	var sum Summary

	for _, project := range s.projects {
		for _, rule := range s.rules {
			if !domain.IsValidTaskType(rule.Type) {
				log.Warn("skipping rule with unknown task type", "type", rule.Type)
				continue
			}
			window, err := domain.WindowFor(rule.Frequency, now)
			if err != nil {
				log.Warn("skipping rule with unknown frequency",
					"type", rule.Type, "frequency", rule.Frequency)
				continue
			}

			created, err := s.ensureTask(ctx, rule.Type, project, window)
			if err != nil {
				return sum, err
			}
			if created {
				log.Info("created recurring task",
					"type", rule.Type, "project", project,
					"frequency", rule.Frequency,
					"window_start", window.Start, "window_end", window.End)
				sum.Created++
			} else {
				log.Info("recurring task already present in window",
					"type", rule.Type, "project", project,
					"frequency", rule.Frequency)
				sum.Skipped++
			}
		}
	}
	return sum, nil
}

// ensureTask performs the window-dedup check and creates the task when
// the window is empty. Dedup is existence by creation time, irrespective
// of the earlier record's current status.
func (s *Scheduler) ensureTask(ctx context.Context, taskType domain.TaskType, project string, window domain.Window) (bool, error) {
	existing, err := s.store.FindTasks(ctx, store.TaskFilter{
		Type:          taskType,
		Project:       project,
		RequestedBy:   domain.RequesterSystem,
		CreatedAfter:  window.Start,
		CreatedBefore: window.End,
		Limit:         1,
	})
	if err != nil {
		return false, fmt.Errorf("window dedup query failed for %s/%s: %w", taskType, project, err)
	}
	if len(existing) > 0 {
		return false, nil
	}

	rec, err := domain.NewQueuedTask(taskType, project)
	if err != nil {
		return false, fmt.Errorf("failed to build task %s/%s: %w", taskType, project, err)
	}
	if err := s.store.CreateTask(ctx, rec); err != nil {
		return false, fmt.Errorf("failed to create task %s/%s: %w", taskType, project, err)
	}
	return true, nil
}
