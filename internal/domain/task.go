package domain

import (
	"errors"
	"time"
	"unicode/utf8"
)

// TaskStatus represents the lifecycle state of a task record.
type TaskStatus string

// Possible task status values. Transitions are forward-only:
// queued -> running -> done|failed. A record never re-enters queued
// automatically; the scheduler creates a fresh record in the next
// window instead.
const (
	TaskStatusQueued  TaskStatus = "queued"
	TaskStatusRunning TaskStatus = "running"
	TaskStatusDone    TaskStatus = "done"
	TaskStatusFailed  TaskStatus = "failed"
)

// TaskType identifies which handler program a task is dispatched to.
// The set is closed: routing switches over these constants exhaustively
// and anything else is ErrUnknownTaskType.
type TaskType string

const (
	TaskTypePostsCreate      TaskType = "posts_create"
	TaskTypeEmailCheck       TaskType = "email_check"
	TaskTypeEmailTasksCreate TaskType = "email_tasks_create"
	TaskTypeContentRefresh   TaskType = "content_refresh"
	TaskTypeLessonSend       TaskType = "lesson_send"
	TaskTypeLessonCorrect    TaskType = "lesson_correct"
	TaskTypeAgendaRemind     TaskType = "agenda_remind"
)

// RequesterSystem marks tasks originated by the recurrence scheduler.
// Any other RequestedBy value is a human or agent actor.
const RequesterSystem = "system"

// Text property and body block size limits imposed by the record store.
// Properties cap at roughly 2000 characters, hence the margins.
const (
	MaxPropertyTextLen = 1500
	MaxBodyChunkLen    = 1800
)

// Common validation errors for TaskRecord.
var (
	ErrUnknownTaskType   = errors.New("unknown task type")
	ErrInvalidTaskStatus = errors.New("invalid task status")
	ErrEmptyTaskType     = errors.New("task type cannot be empty")
	ErrEmptyTaskProject  = errors.New("task project cannot be empty")
)

// TaskRecord is one queued unit of work as persisted in the external
// record store. The store assigns ID and CreatedAt on creation; the
// dispatcher owns every other mutable field until the record reaches a
// terminal status, after which this subsystem never touches it again.
type TaskRecord struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Type         TaskType   `json:"type"`
	Project      string     `json:"project"`
	Status       TaskStatus `json:"status"`
	RequestedBy  string     `json:"requested_by"`
	Payload      string     `json:"payload,omitempty"`
	RunCount     int        `json:"run_count"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	Result       string     `json:"result,omitempty"`
	ParentTaskID string     `json:"parent_task_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// NewQueuedTask builds the minimal record the scheduler creates for a
// recurring task: name, type, project, queued status, system requester.
func NewQueuedTask(taskType TaskType, project string) (*TaskRecord, error) {
	rec := &TaskRecord{
		Name:        string(taskType) + " " + project,
		Type:        taskType,
		Project:     project,
		Status:      TaskStatusQueued,
		RequestedBy: RequesterSystem,
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Validate checks the record's own invariants. It does not verify
// store-assigned fields (ID, CreatedAt), which are empty before creation.
func (t *TaskRecord) Validate() error {
	if t.Type == "" {
		return ErrEmptyTaskType
	}
	if !IsValidTaskType(t.Type) {
		return ErrUnknownTaskType
	}
	if t.Project == "" {
		return ErrEmptyTaskProject
	}
	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}
	return nil
}

// IsValidTaskType reports whether t is one of the closed set of task types.
func IsValidTaskType(t TaskType) bool {
	switch t {
	case TaskTypePostsCreate, TaskTypeEmailCheck, TaskTypeEmailTasksCreate,
		TaskTypeContentRefresh, TaskTypeLessonSend, TaskTypeLessonCorrect,
		TaskTypeAgendaRemind:
		return true
	default:
		return false
	}
}

func isValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskStatusQueued, TaskStatusRunning, TaskStatusDone, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status is done or failed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusDone || s == TaskStatusFailed
}

// CanTransition reports whether moving from s to next preserves the
// forward-only lifecycle. Terminal states admit no further transitions.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case TaskStatusQueued:
		return next == TaskStatusRunning
	case TaskStatusRunning:
		return next == TaskStatusDone || next == TaskStatusFailed
	default:
		return false
	}
}

// TruncateText clips s to at most max characters, never splitting a
// rune. Used for the 1500-char property fields; never applied to body
// chunks, which are split instead.
func TruncateText(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
