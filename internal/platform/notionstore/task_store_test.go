package notionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/drudge/internal/domain"
	"github.com/phrazzld/drudge/internal/store"
)

// capture records one request the fake API saw.
type capture struct {
	method string
	path   string
	body   map[string]any
}

// fakeAPI is a minimal record-API stand-in: it captures requests and
// replays canned responses in order.
type fakeAPI struct {
	t         *testing.T
	captures  []capture
	responses []string
	status    int
}

func (f *fakeAPI) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		f.captures = append(f.captures, capture{method: r.Method, path: r.URL.Path, body: body})

		assert.Equal(f.t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(f.t, apiVersion, r.Header.Get("Notion-Version"))

		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}
		resp := "{}"
		if len(f.responses) > 0 {
			resp = f.responses[0]
			f.responses = f.responses[1:]
		}
		_, _ = w.Write([]byte(resp))
	}
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	return New("test-key", "db-1", WithBaseURL(srv.URL))
}

func pageJSON(id, name string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"created_time": "2024-03-12T09:00:00.000Z",
		"properties": {
			"Name": {"title": [{"plain_text": %q}]},
			"Type": {"select": {"name": "email_check"}},
			"Project": {"select": {"name": "acme"}},
			"Status": {"select": {"name": "queued"}},
			"RequestedBy": {"select": {"name": "system"}},
			"RunCount": {"number": 2},
			"LastError": {"rich_text": []}
		}
	}`, id, name)
}

func TestFindTasksBuildsCompoundFilter(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{t: t, responses: []string{
		fmt.Sprintf(`{"results": [%s], "has_more": false}`, pageJSON("p-1", "email_check acme")),
	}}
	c := newTestClient(t, api)

	after := time.Date(2024, time.March, 12, 0, 0, 0, 0, time.UTC)
	records, err := c.FindTasks(context.Background(), store.TaskFilter{
		Type:          domain.TaskTypeEmailCheck,
		Project:       "acme",
		RequestedBy:   domain.RequesterSystem,
		CreatedAfter:  after,
		CreatedBefore: after.AddDate(0, 0, 1),
		Limit:         1,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "p-1", rec.ID)
	assert.Equal(t, domain.TaskTypeEmailCheck, rec.Type)
	assert.Equal(t, domain.TaskStatusQueued, rec.Status)
	assert.Equal(t, 2, rec.RunCount)

	require.Len(t, api.captures, 1)
	cap := api.captures[0]
	assert.Equal(t, http.MethodPost, cap.method)
	assert.Equal(t, "/databases/db-1/query", cap.path)
	assert.EqualValues(t, 1, cap.body["page_size"])

	filter, ok := cap.body["filter"].(map[string]any)
	require.True(t, ok, "expected compound filter")
	and, ok := filter["and"].([]any)
	require.True(t, ok)
	assert.Len(t, and, 5)

	sorts := cap.body["sorts"].([]any)
	first := sorts[0].(map[string]any)
	assert.Equal(t, "created_time", first["timestamp"])
	assert.Equal(t, "ascending", first["direction"])
}

func TestFindTasksSingleConditionIsNotWrapped(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{t: t, responses: []string{`{"results": [], "has_more": false}`}}
	c := newTestClient(t, api)

	_, err := c.FindTasks(context.Background(), store.TaskFilter{Status: domain.TaskStatusQueued})
	require.NoError(t, err)

	filter := api.captures[0].body["filter"].(map[string]any)
	_, wrapped := filter["and"]
	assert.False(t, wrapped, "single condition must not be wrapped in and")
	assert.Equal(t, "Status", filter["property"])
}

func TestFindTasksFollowsPagination(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{t: t, responses: []string{
		fmt.Sprintf(`{"results": [%s], "has_more": true, "next_cursor": "cur-2"}`, pageJSON("p-1", "a")),
		fmt.Sprintf(`{"results": [%s], "has_more": false}`, pageJSON("p-2", "b")),
	}}
	c := newTestClient(t, api)

	records, err := c.FindTasks(context.Background(), store.TaskFilter{Status: domain.TaskStatusQueued})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "p-1", records[0].ID)
	assert.Equal(t, "p-2", records[1].ID)

	require.Len(t, api.captures, 2)
	_, hasCursor := api.captures[0].body["start_cursor"]
	assert.False(t, hasCursor)
	assert.Equal(t, "cur-2", api.captures[1].body["start_cursor"])
}

func TestFindTasksStopsAtLimitMidPage(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{t: t, responses: []string{
		fmt.Sprintf(`{"results": [%s, %s], "has_more": true, "next_cursor": "cur-2"}`,
			pageJSON("p-1", "a"), pageJSON("p-2", "b")),
	}}
	c := newTestClient(t, api)

	records, err := c.FindTasks(context.Background(), store.TaskFilter{
		Status: domain.TaskStatusQueued,
		Limit:  2,
	})
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Len(t, api.captures, 1, "limit reached, no second page fetch")
}

func TestCreateTaskWritesBackIDAndCreationTime(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{t: t, responses: []string{
		`{"id": "p-9", "created_time": "2024-03-12T09:00:00.000Z"}`,
	}}
	c := newTestClient(t, api)

	rec, err := domain.NewQueuedTask(domain.TaskTypeEmailCheck, "acme")
	require.NoError(t, err)
	require.NoError(t, c.CreateTask(context.Background(), rec))

	assert.Equal(t, "p-9", rec.ID)
	assert.Equal(t, time.Date(2024, time.March, 12, 9, 0, 0, 0, time.UTC), rec.CreatedAt)

	cap := api.captures[0]
	assert.Equal(t, "/pages", cap.path)
	parent := cap.body["parent"].(map[string]any)
	assert.Equal(t, "db-1", parent["database_id"])

	properties := cap.body["properties"].(map[string]any)
	typeProp := properties["Type"].(map[string]any)["select"].(map[string]any)
	assert.Equal(t, "email_check", typeProp["name"])
	_, hasPayload := properties["Payload"]
	assert.False(t, hasPayload, "empty payload omitted")
}

func TestCreateTaskRejectsInvalidRecord(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{t: t}
	c := newTestClient(t, api)

	err := c.CreateTask(context.Background(), &domain.TaskRecord{Type: "mystery", Project: "acme"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrInvalidRecord))
	assert.Empty(t, api.captures, "invalid record never reaches the API")
}

func TestPatchTaskSendsOnlySetProperties(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{t: t}
	c := newTestClient(t, api)

	started := time.Date(2024, time.March, 12, 9, 5, 0, 0, time.UTC)
	err := c.PatchTask(context.Background(), "p-1", store.TaskPatch{
		Status:    store.Ptr(domain.TaskStatusRunning),
		StartedAt: &started,
		RunCount:  store.Ptr(3),
		LastError: store.Ptr(""),
	})
	require.NoError(t, err)

	cap := api.captures[0]
	assert.Equal(t, http.MethodPatch, cap.method)
	assert.Equal(t, "/pages/p-1", cap.path)

	properties := cap.body["properties"].(map[string]any)
	assert.Len(t, properties, 4)
	status := properties["Status"].(map[string]any)["select"].(map[string]any)
	assert.Equal(t, "running", status["name"])
	date := properties["StartedAt"].(map[string]any)["date"].(map[string]any)
	assert.Equal(t, "2024-03-12T09:05:00Z", date["start"])
	assert.EqualValues(t, 3, properties["RunCount"].(map[string]any)["number"])
	cleared := properties["LastError"].(map[string]any)["rich_text"].([]any)
	assert.Empty(t, cleared, "empty text clears the property")
}

func TestPatchTaskEmptyPatchIsNoop(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{t: t}
	c := newTestClient(t, api)

	require.NoError(t, c.PatchTask(context.Background(), "p-1", store.TaskPatch{}))
	assert.Empty(t, api.captures)
}

func TestAppendResultBodyBuildsParagraphBlocks(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{t: t}
	c := newTestClient(t, api)

	require.NoError(t, c.AppendResultBody(context.Background(), "p-1", []string{"first", "second"}))

	cap := api.captures[0]
	assert.Equal(t, "/blocks/p-1/children", cap.path)
	children := cap.body["children"].([]any)
	require.Len(t, children, 2)

	block := children[0].(map[string]any)
	assert.Equal(t, "paragraph", block["type"])
	rich := block["paragraph"].(map[string]any)["rich_text"].([]any)
	text := rich[0].(map[string]any)["text"].(map[string]any)
	assert.Equal(t, "first", text["content"])
}

func TestRequestMapsNotFound(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{t: t, status: http.StatusNotFound}
	c := newTestClient(t, api)

	err := c.PatchTask(context.Background(), "gone", store.TaskPatch{
		Status: store.Ptr(domain.TaskStatusDone),
	})
	assert.True(t, errors.Is(err, store.ErrTaskNotFound))
}

func TestRequestMapsAPIError(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{t: t, status: http.StatusTooManyRequests}
	c := newTestClient(t, api)

	_, err := c.FindTasks(context.Background(), store.TaskFilter{Status: domain.TaskStatusQueued})
	require.Error(t, err)
	var storeErr *store.StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Contains(t, storeErr.Error(), "HTTP 429")
}

func TestRequestMapsTransportError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()
	c := New("test-key", "db-1", WithBaseURL(srv.URL))

	_, err := c.FindTasks(context.Background(), store.TaskFilter{Status: domain.TaskStatusQueued})
	assert.True(t, errors.Is(err, store.ErrStoreUnavailable))
}
