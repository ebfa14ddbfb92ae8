package worker

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/drudge/internal/domain"
	"github.com/phrazzld/drudge/internal/platform/logger"
	"github.com/phrazzld/drudge/internal/state"
	"github.com/phrazzld/drudge/internal/store"
	"github.com/phrazzld/drudge/internal/usage"
)

// memStore is an in-memory TaskStore recording every status transition
// and appended body chunk.
type memStore struct {
	records     []*domain.TaskRecord
	transitions map[string][]domain.TaskStatus
	chunks      map[string][]string
	findErr     error
	patchErr    error
}

func newMemStore(records ...*domain.TaskRecord) *memStore {
	return &memStore{
		records:     records,
		transitions: map[string][]domain.TaskStatus{},
		chunks:      map[string][]string{},
	}
}

func (m *memStore) FindTasks(_ context.Context, filter store.TaskFilter) ([]*domain.TaskRecord, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []*domain.TaskRecord
	for _, rec := range m.records {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memStore) CreateTask(_ context.Context, rec *domain.TaskRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func (m *memStore) PatchTask(_ context.Context, id string, patch store.TaskPatch) error {
	if m.patchErr != nil {
		return m.patchErr
	}
	for _, rec := range m.records {
		if rec.ID != id {
			continue
		}
		if patch.Status != nil {
			m.transitions[id] = append(m.transitions[id], *patch.Status)
			rec.Status = *patch.Status
		}
		if patch.StartedAt != nil {
			rec.StartedAt = patch.StartedAt
		}
		if patch.FinishedAt != nil {
			rec.FinishedAt = patch.FinishedAt
		}
		if patch.RunCount != nil {
			rec.RunCount = *patch.RunCount
		}
		if patch.LastError != nil {
			rec.LastError = *patch.LastError
		}
		if patch.Result != nil {
			rec.Result = *patch.Result
		}
		return nil
	}
	return store.ErrTaskNotFound
}

func (m *memStore) AppendResultBody(_ context.Context, id string, chunks []string) error {
	m.chunks[id] = append(m.chunks[id], chunks...)
	return nil
}

// scriptRunner fakes handler execution with per-script outcomes keyed by
// the handler path (argv[1]).
type scriptRunner struct {
	results map[string]ExecResult
	errs    map[string]error
	calls   [][]string
}

func (r *scriptRunner) Run(_ context.Context, _ string, argv []string) (ExecResult, error) {
	r.calls = append(r.calls, argv)
	script := argv[1]
	if err, ok := r.errs[script]; ok {
		return ExecResult{}, err
	}
	if res, ok := r.results[script]; ok {
		return res, nil
	}
	return ExecResult{Stdout: "RESULT: ok"}, nil
}

type recordingNotifier struct {
	messages []string
}

func (n *recordingNotifier) Send(_ context.Context, text string) error {
	n.messages = append(n.messages, text)
	return nil
}

func queuedTask(id string, taskType domain.TaskType, createdAt time.Time) *domain.TaskRecord {
	return &domain.TaskRecord{
		ID:          id,
		Name:        string(taskType) + " acme",
		Type:        taskType,
		Project:     "acme",
		Status:      domain.TaskStatusQueued,
		RequestedBy: domain.RequesterSystem,
		CreatedAt:   createdAt,
	}
}

var baseTime = time.Date(2024, time.March, 12, 9, 0, 0, 0, time.UTC)

func TestRunClaimsOldestFirst(t *testing.T) {
	t.Parallel()
	ms := newMemStore(
		queuedTask("t-3", domain.TaskTypeContentRefresh, baseTime.Add(2*time.Minute)),
		queuedTask("t-1", domain.TaskTypeEmailCheck, baseTime),
		queuedTask("t-2", domain.TaskTypePostsCreate, baseTime.Add(time.Minute)),
	)
	runner := &scriptRunner{}
	w := New(ms, nil, nil, nil, Config{MaxTasks: 2}, runner)

	sum, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Claimed)
	assert.Equal(t, 2, sum.Succeeded)
	assert.Equal(t, 3, sum.QueueDepth)
	assert.Equal(t, 1, sum.QueueDepthByType["email_check"])
	assert.Equal(t, 1, sum.QueueDepthByType["posts_create"])
	assert.Equal(t, 1, sum.QueueDepthByType["content_refresh"])

	// Oldest two dispatched, in creation order.
	require.Len(t, runner.calls, 2)
	assert.Contains(t, runner.calls[0][1], "email-triage")
	assert.Contains(t, runner.calls[1][1], "social-posts")

	// The third record is untouched for the next run.
	assert.Empty(t, ms.transitions["t-3"])
}

func TestRunWalksLifecycleToDone(t *testing.T) {
	t.Parallel()
	ms := newMemStore(queuedTask("t-1", domain.TaskTypeEmailCheck, baseTime))
	runner := &scriptRunner{results: map[string]ExecResult{
		"agents/email-triage/scripts/agent.py": {Stdout: "triaged 4 messages\nRESULT: 4 triaged"},
	}}
	w := New(ms, nil, nil, nil, Config{MaxTasks: 1}, runner)

	sum, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Succeeded)

	rec := ms.records[0]
	assert.Equal(t,
		[]domain.TaskStatus{domain.TaskStatusRunning, domain.TaskStatusDone},
		ms.transitions["t-1"])
	assert.Equal(t, 1, rec.RunCount)
	assert.Equal(t, "4 triaged", rec.Result)
	require.NotNil(t, rec.StartedAt)
	require.NotNil(t, rec.FinishedAt)
	require.Len(t, ms.chunks["t-1"], 1)
	assert.Equal(t, "4 triaged", ms.chunks["t-1"][0])
}

func TestRunFailureDoesNotAbortBatch(t *testing.T) {
	t.Parallel()
	ms := newMemStore(
		queuedTask("t-1", domain.TaskTypeEmailCheck, baseTime),
		queuedTask("t-2", domain.TaskTypePostsCreate, baseTime.Add(time.Minute)),
	)
	runner := &scriptRunner{results: map[string]ExecResult{
		"agents/email-triage/scripts/agent.py": {Stderr: "auth expired", ExitCode: 1},
	}}
	alerts := &recordingNotifier{}
	w := New(ms, alerts, nil, nil, Config{MaxTasks: 2}, runner)

	sum, err := w.Run(context.Background())
	require.NoError(t, err, "task-scoped failures are not run errors")
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Succeeded)

	assert.Equal(t,
		[]domain.TaskStatus{domain.TaskStatusRunning, domain.TaskStatusFailed},
		ms.transitions["t-1"])
	assert.Equal(t, "auth expired", ms.records[0].LastError)
	assert.Equal(t,
		[]domain.TaskStatus{domain.TaskStatusRunning, domain.TaskStatusDone},
		ms.transitions["t-2"])

	require.Len(t, alerts.messages, 1)
	assert.Contains(t, alerts.messages[0], "type=email_check")
	assert.Contains(t, alerts.messages[0], "project=acme")
	assert.Contains(t, alerts.messages[0], "auth expired")
}

func TestRunFallsBackToStdoutDiagnostic(t *testing.T) {
	t.Parallel()
	ms := newMemStore(queuedTask("t-1", domain.TaskTypeEmailCheck, baseTime))
	runner := &scriptRunner{results: map[string]ExecResult{
		"agents/email-triage/scripts/agent.py": {Stdout: "rate limited", ExitCode: 3},
	}}
	w := New(ms, nil, nil, nil, Config{MaxTasks: 1}, runner)

	_, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rate limited", ms.records[0].LastError)
}

func TestRunSilentNonZeroExitDiagnostic(t *testing.T) {
	t.Parallel()
	ms := newMemStore(queuedTask("t-1", domain.TaskTypeEmailCheck, baseTime))
	runner := &scriptRunner{results: map[string]ExecResult{
		"agents/email-triage/scripts/agent.py": {ExitCode: 7},
	}}
	w := New(ms, nil, nil, nil, Config{MaxTasks: 1}, runner)

	_, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "handler exited with code 7", ms.records[0].LastError)
}

func TestRunUnknownTypeIsTaskScopedFailure(t *testing.T) {
	t.Parallel()
	// A record carrying a type the routing table does not know fails
	// that record and nothing else.
	ms := newMemStore(
		queuedTask("t-1", domain.TaskType("mystery"), baseTime),
		queuedTask("t-2", domain.TaskTypeEmailCheck, baseTime.Add(time.Minute)),
	)
	runner := &scriptRunner{}
	w := New(ms, nil, nil, nil, Config{MaxTasks: 2}, runner)

	sum, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Contains(t, ms.records[0].LastError, "unknown task type")
	// Only the routable task reached the runner.
	require.Len(t, runner.calls, 1)
}

func TestRunStoreErrorIsFatal(t *testing.T) {
	t.Parallel()
	ms := newMemStore(queuedTask("t-1", domain.TaskTypeEmailCheck, baseTime))
	ms.patchErr = store.ErrStoreUnavailable
	w := New(ms, nil, nil, nil, Config{MaxTasks: 1}, &scriptRunner{})

	_, err := w.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrStoreUnavailable))
}

func TestRunIdleWritesState(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	sf := state.NewFile(dir, "worker")
	w := New(newMemStore(), nil, nil, sf, Config{MaxTasks: 1}, &scriptRunner{})

	sum, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Claimed)

	doc := sf.Load()
	assert.Equal(t, "no_tasks", doc["last_result"])
	assert.EqualValues(t, 0, doc["queue_depth"])
	assert.NotEmpty(t, doc["updated_at"])
}

func TestRunTruncatesResultAndChunksFullText(t *testing.T) {
	t.Parallel()
	// 50 lines of 100 chars: 5049 chars with joining newlines. The
	// result property holds the first 1500; the body chunks carry the
	// whole text in <=1800-char pieces.
	line := strings.Repeat("x", 100)
	lines := make([]string, 50)
	for i := range lines {
		lines[i] = line
	}
	full := strings.Join(lines, "\n")

	ms := newMemStore(queuedTask("t-1", domain.TaskTypeEmailCheck, baseTime))
	runner := &scriptRunner{results: map[string]ExecResult{
		"agents/email-triage/scripts/agent.py": {Stdout: full},
	}}
	w := New(ms, nil, nil, nil, Config{MaxTasks: 1}, runner)

	_, err := w.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, ms.records[0].Result, domain.MaxPropertyTextLen)

	chunks := ms.chunks["t-1"]
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), domain.MaxBodyChunkLen)
	}
	assert.Equal(t, full, strings.Join(chunks, "\n"))
}

func TestRunStateWriteFailureLogsWithRunScope(t *testing.T) {
	t.Parallel()
	// Point the state file inside a path blocked by a regular file so
	// the write fails, and attach a run-scoped logger to the context.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "state")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	sf := state.NewFile(filepath.Join(blocker, "nested"), "worker")

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil)).With("run_id", "r-1", "component", "worker")
	ctx := logger.WithLogger(context.Background(), log)

	w := New(newMemStore(), nil, nil, sf, Config{MaxTasks: 1}, &scriptRunner{})
	_, err := w.Run(ctx)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "failed to write worker state")
	assert.Contains(t, out, `"run_id":"r-1"`, "state write errors must carry the run-scoped attributes")
}

func TestRunRecordsUsage(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ledger := usage.NewLedger(dir + "/usage.json")

	ms := newMemStore(
		queuedTask("t-1", domain.TaskTypeEmailCheck, baseTime),
		queuedTask("t-2", domain.TaskTypeEmailCheck, baseTime.Add(time.Minute)),
	)
	runner := &scriptRunner{errs: map[string]error{}}
	w := New(ms, nil, ledger, nil, Config{MaxTasks: 2}, runner)

	_, err := w.Run(context.Background())
	require.NoError(t, err)

	doc, err := ledger.Snapshot()
	require.NoError(t, err)
	entry := doc.TaskTypes["email_check"]
	require.NotNil(t, entry)
	assert.Equal(t, 2, entry.Lifetime.Runs)
	assert.Equal(t, 0, entry.Lifetime.Failures)
}
