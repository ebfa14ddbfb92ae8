// Package pgstore implements store.TaskStore on PostgreSQL for
// self-hosted deployments that keep the task database next to the
// runner instead of in the hosted record API.
package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/drudge/internal/domain"
	"github.com/phrazzld/drudge/internal/store"
)

// DBTX abstracts the database access layer. Both *sql.DB and *sql.Tx
// satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TaskStore is the PostgreSQL-backed record store.
type TaskStore struct {
	db DBTX
}

// Compile-time interface check.
var _ store.TaskStore = (*TaskStore)(nil)

// New creates a TaskStore over the given connection.
func New(db DBTX) *TaskStore {
	return &TaskStore{db: db}
}

const taskColumns = `id, name, type, project, status, requested_by, payload,
	run_count, started_at, finished_at, last_error, result, parent_task_id, created_at`

// FindTasks retrieves records matching the filter, oldest first.
func (s *TaskStore) FindTasks(ctx context.Context, filter store.TaskFilter) ([]*domain.TaskRecord, error) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Type != "" {
		add("type = $%d", string(filter.Type))
	}
	if filter.Project != "" {
		add("project = $%d", filter.Project)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.RequestedBy != "" {
		add("requested_by = $%d", filter.RequestedBy)
	}
	if !filter.CreatedAfter.IsZero() {
		add("created_at >= $%d", filter.CreatedAfter.UTC())
	}
	if !filter.CreatedBefore.IsZero() {
		add("created_at < $%d", filter.CreatedBefore.UTC())
	}

	query := "SELECT " + taskColumns + " FROM tasks"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &store.StoreError{Operation: "find", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var records []*domain.TaskRecord
	for rows.Next() {
		rec, err := scanTask(rows)
		if err != nil {
			return nil, &store.StoreError{Operation: "find", Err: err}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.StoreError{Operation: "find", Err: err}
	}
	return records, nil
}

// CreateTask persists a new record, assigning its ID and creation time.
func (s *TaskStore) CreateTask(ctx context.Context, rec *domain.TaskRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidRecord, err)
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	query := `
		INSERT INTO tasks (id, name, type, project, status, requested_by,
			payload, run_count, parent_task_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		id, rec.Name, string(rec.Type), rec.Project, string(rec.Status),
		rec.RequestedBy, rec.Payload, rec.RunCount, rec.ParentTaskID, now,
	)
	if err != nil {
		return &store.StoreError{Operation: "create", Err: err}
	}
	rec.ID = id
	rec.CreatedAt = now
	return nil
}

// PatchTask applies a property-level patch to the record.
func (s *TaskStore) PatchTask(ctx context.Context, id string, patch store.TaskPatch) error {
	var sets []string
	var args []any
	set := func(col string, arg any) {
		args = append(args, arg)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	if patch.StartedAt != nil {
		set("started_at", patch.StartedAt.UTC())
	}
	if patch.FinishedAt != nil {
		set("finished_at", patch.FinishedAt.UTC())
	}
	if patch.RunCount != nil {
		set("run_count", *patch.RunCount)
	}
	if patch.LastError != nil {
		set("last_error", *patch.LastError)
	}
	if patch.Result != nil {
		set("result", *patch.Result)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = $%d",
		strings.Join(sets, ", "), len(args))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return &store.StoreError{Operation: "patch", RecordID: id, Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return &store.StoreError{Operation: "patch", RecordID: id, Err: err}
	}
	if affected == 0 {
		return store.ErrTaskNotFound
	}
	return nil
}

const appendChunkQuery = `
	INSERT INTO task_result_chunks (task_id, seq, content, created_at)
	SELECT $1::uuid, COALESCE(MAX(seq), -1) + 1, $2::text, $3::timestamptz
	FROM task_result_chunks WHERE task_id = $1`

// AppendResultBody stores each chunk as one ordered row in
// task_result_chunks, continuing after any existing chunks. Each insert
// assigns its own seq in the statement, without a separate read.
// Overlapping runs appending to the same task can still collide on the
// (task_id, seq) unique constraint; like task claiming, appends rely on
// invoker spacing rather than a lock.
func (s *TaskStore) AppendResultBody(ctx context.Context, id string, chunks []string) error {
	for _, chunk := range chunks {
		_, err := s.db.ExecContext(ctx, appendChunkQuery, id, chunk, time.Now().UTC())
		if err != nil {
			return &store.StoreError{Operation: "append", RecordID: id, Err: err}
		}
	}
	return nil
}

func scanTask(rows *sql.Rows) (*domain.TaskRecord, error) {
	var (
		rec        domain.TaskRecord
		payload    sql.NullString
		startedAt  sql.NullTime
		finishedAt sql.NullTime
		lastError  sql.NullString
		result     sql.NullString
		parentID   sql.NullString
	)
	err := rows.Scan(&rec.ID, &rec.Name, &rec.Type, &rec.Project, &rec.Status,
		&rec.RequestedBy, &payload, &rec.RunCount, &startedAt, &finishedAt,
		&lastError, &result, &parentID, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.Payload = payload.String
	rec.LastError = lastError.String
	rec.Result = result.String
	rec.ParentTaskID = parentID.String
	if startedAt.Valid {
		t := startedAt.Time
		rec.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		rec.FinishedAt = &t
	}
	return &rec, nil
}
