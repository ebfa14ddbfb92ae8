package store

import (
	"context"
	"time"

	"github.com/phrazzld/drudge/internal/domain"
)

// TaskFilter narrows a FindTasks query. Zero-valued fields are ignored.
// CreatedAfter/CreatedBefore form a half-open interval
// [CreatedAfter, CreatedBefore) over the store-assigned creation time.
type TaskFilter struct {
	Type          domain.TaskType
	Project       string
	Status        domain.TaskStatus
	RequestedBy   string
	CreatedAfter  time.Time
	CreatedBefore time.Time

	// Limit caps the number of returned records; 0 means store default.
	Limit int
}

// TaskPatch is a property-level update applied to an existing record.
// Nil fields are left untouched. Note that a non-nil empty LastError
// clears the property, which the dispatcher relies on at the start of
// each attempt.
type TaskPatch struct {
	Status     *domain.TaskStatus
	StartedAt  *time.Time
	FinishedAt *time.Time
	RunCount   *int
	LastError  *string
	Result     *string
}

// TaskStore defines the record-store operations this subsystem consumes.
// Implementations must return results from FindTasks sorted by creation
// time ascending, which the dispatcher depends on for FIFO claiming.
// Version: 1.0
type TaskStore interface {
	// FindTasks retrieves records matching the filter, oldest first.
	// Returns an empty slice when nothing matches.
	FindTasks(ctx context.Context, filter TaskFilter) ([]*domain.TaskRecord, error)

	// CreateTask persists a new record. The store assigns ID and
	// CreatedAt and writes them back into rec.
	CreateTask(ctx context.Context, rec *domain.TaskRecord) error

	// PatchTask applies a property-level patch to the record with the
	// given ID. Returns ErrTaskNotFound if no such record exists.
	PatchTask(ctx context.Context, id string, patch TaskPatch) error

	// AppendResultBody appends paragraph-sized text chunks to the
	// record's long-form body. Each chunk must respect the store's
	// block size limit (domain.MaxBodyChunkLen).
	AppendResultBody(ctx context.Context, id string, chunks []string) error
}

// Ptr returns a pointer to v. Convenience for building TaskPatch values.
func Ptr[T any](v T) *T {
	return &v
}
