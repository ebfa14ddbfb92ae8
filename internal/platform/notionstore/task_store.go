package notionstore

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/phrazzld/drudge/internal/domain"
	"github.com/phrazzld/drudge/internal/store"
)

// FindTasks queries the database with a compound and-filter, sorted by
// created_time ascending, following pagination cursors until the limit
// or the end of results.
func (c *Client) FindTasks(ctx context.Context, filter store.TaskFilter) ([]*domain.TaskRecord, error) {
	conditions := buildFilter(filter)

	limit := filter.Limit
	pageSize := maxPageSize
	if limit > 0 && limit < pageSize {
		pageSize = limit
	}

	var records []*domain.TaskRecord
	cursor := ""
	for {
		payload := map[string]any{
			"page_size": pageSize,
			"sorts": []any{
				map[string]any{"timestamp": "created_time", "direction": "ascending"},
			},
		}
		if len(conditions) == 1 {
			payload["filter"] = conditions[0]
		} else if len(conditions) > 1 {
			payload["filter"] = map[string]any{"and": conditions}
		}
		if cursor != "" {
			payload["start_cursor"] = cursor
		}

		var resp struct {
			Results    []page `json:"results"`
			HasMore    bool   `json:"has_more"`
			NextCursor string `json:"next_cursor"`
		}
		path := fmt.Sprintf("/databases/%s/query", c.databaseID)
		if err := c.request(ctx, http.MethodPost, path, payload, &resp); err != nil {
			return nil, err
		}

		for _, pg := range resp.Results {
			records = append(records, pg.toRecord())
			if limit > 0 && len(records) >= limit {
				return records, nil
			}
		}
		if !resp.HasMore || resp.NextCursor == "" {
			return records, nil
		}
		cursor = resp.NextCursor
	}
}

func buildFilter(filter store.TaskFilter) []any {
	var conditions []any
	if filter.Type != "" {
		conditions = append(conditions, map[string]any{
			"property": propType, "select": map[string]any{"equals": string(filter.Type)},
		})
	}
	if filter.Project != "" {
		conditions = append(conditions, map[string]any{
			"property": propProject, "select": map[string]any{"equals": filter.Project},
		})
	}
	if filter.Status != "" {
		conditions = append(conditions, map[string]any{
			"property": propStatus, "select": map[string]any{"equals": string(filter.Status)},
		})
	}
	if filter.RequestedBy != "" {
		conditions = append(conditions, map[string]any{
			"property": propRequestedBy, "select": map[string]any{"equals": filter.RequestedBy},
		})
	}
	if !filter.CreatedAfter.IsZero() {
		conditions = append(conditions, map[string]any{
			"timestamp": "created_time",
			"created_time": map[string]any{
				"on_or_after": filter.CreatedAfter.UTC().Format(time.RFC3339),
			},
		})
	}
	if !filter.CreatedBefore.IsZero() {
		conditions = append(conditions, map[string]any{
			"timestamp": "created_time",
			"created_time": map[string]any{
				"before": filter.CreatedBefore.UTC().Format(time.RFC3339),
			},
		})
	}
	return conditions
}

// CreateTask creates the record as a new database page and writes the
// store-assigned ID and creation time back into rec.
func (c *Client) CreateTask(ctx context.Context, rec *domain.TaskRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidRecord, err)
	}

	properties := props{
		propName:        titleProp(rec.Name),
		propType:        selectProp(string(rec.Type)),
		propProject:     selectProp(rec.Project),
		propStatus:      selectProp(string(rec.Status)),
		propRequestedBy: selectProp(rec.RequestedBy),
	}
	if rec.Payload != "" {
		properties[propPayload] = textProp(rec.Payload)
	}
	if rec.ParentTaskID != "" {
		properties[propParentTask] = textProp(rec.ParentTaskID)
	}

	payload := map[string]any{
		"parent":     map[string]any{"database_id": c.databaseID},
		"properties": properties,
	}

	var resp page
	if err := c.request(ctx, http.MethodPost, "/pages", payload, &resp); err != nil {
		return err
	}
	rec.ID = resp.ID
	rec.CreatedAt = resp.CreatedTime
	return nil
}

// PatchTask applies a property-level patch to the page.
func (c *Client) PatchTask(ctx context.Context, id string, patch store.TaskPatch) error {
	properties := props{}
	if patch.Status != nil {
		properties[propStatus] = selectProp(string(*patch.Status))
	}
	if patch.StartedAt != nil {
		properties[propStartedAt] = dateProp(*patch.StartedAt)
	}
	if patch.FinishedAt != nil {
		properties[propFinishedAt] = dateProp(*patch.FinishedAt)
	}
	if patch.RunCount != nil {
		properties[propRunCount] = numberProp(*patch.RunCount)
	}
	if patch.LastError != nil {
		properties[propLastError] = textProp(*patch.LastError)
	}
	if patch.Result != nil {
		properties[propResult] = textProp(*patch.Result)
	}
	if len(properties) == 0 {
		return nil
	}

	payload := map[string]any{"properties": properties}
	return c.request(ctx, http.MethodPatch, "/pages/"+id, payload, nil)
}

// AppendResultBody appends each chunk as one paragraph block to the
// page body.
func (c *Client) AppendResultBody(ctx context.Context, id string, chunks []string) error {
	if len(chunks) == 0 {
		return nil
	}
	children := make([]any, 0, len(chunks))
	for _, chunk := range chunks {
		children = append(children, map[string]any{
			"object": "block",
			"type":   "paragraph",
			"paragraph": map[string]any{
				"rich_text": []any{
					map[string]any{"text": map[string]any{"content": chunk}},
				},
			},
		})
	}
	payload := map[string]any{"children": children}
	return c.request(ctx, http.MethodPatch, "/blocks/"+id+"/children", payload, nil)
}
