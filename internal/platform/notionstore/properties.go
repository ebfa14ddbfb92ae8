package notionstore

import (
	"time"

	"github.com/phrazzld/drudge/internal/domain"
)

// Property names in the task database.
const (
	propName        = "Name"
	propType        = "Type"
	propProject     = "Project"
	propStatus      = "Status"
	propRequestedBy = "RequestedBy"
	propPayload     = "Payload"
	propRunCount    = "RunCount"
	propStartedAt   = "StartedAt"
	propFinishedAt  = "FinishedAt"
	propLastError   = "LastError"
	propResult      = "Result"
	propParentTask  = "ParentTask"
)

type props map[string]any

func titleProp(value string) any {
	return map[string]any{"title": []any{
		map[string]any{"text": map[string]any{"content": value}},
	}}
}

func selectProp(name string) any {
	return map[string]any{"select": map[string]any{"name": name}}
}

func textProp(value string) any {
	if value == "" {
		return map[string]any{"rich_text": []any{}}
	}
	return map[string]any{"rich_text": []any{
		map[string]any{"text": map[string]any{"content": value}},
	}}
}

func numberProp(value int) any {
	return map[string]any{"number": value}
}

func dateProp(t time.Time) any {
	return map[string]any{"date": map[string]any{
		"start": t.UTC().Format(time.RFC3339),
	}}
}

// page is the wire shape of one task record.
type page struct {
	ID          string                    `json:"id"`
	CreatedTime time.Time                 `json:"created_time"`
	Properties  map[string]pagePropValues `json:"properties"`
}

type pagePropValues struct {
	Title    []richText `json:"title"`
	RichText []richText `json:"rich_text"`
	Select   *selected  `json:"select"`
	Number   *float64   `json:"number"`
	Date     *dateValue `json:"date"`
}

type richText struct {
	PlainText string `json:"plain_text"`
	Text      *struct {
		Content string `json:"content"`
	} `json:"text"`
}

type selected struct {
	Name string `json:"name"`
}

type dateValue struct {
	Start string `json:"start"`
}

func (p page) selectValue(key string) string {
	if v, ok := p.Properties[key]; ok && v.Select != nil {
		return v.Select.Name
	}
	return ""
}

func (p page) textValue(key string) string {
	v, ok := p.Properties[key]
	if !ok {
		return ""
	}
	parts := v.RichText
	if len(parts) == 0 {
		parts = v.Title
	}
	var out string
	for _, part := range parts {
		if part.PlainText != "" {
			out += part.PlainText
		} else if part.Text != nil {
			out += part.Text.Content
		}
	}
	return out
}

func (p page) numberValue(key string) int {
	if v, ok := p.Properties[key]; ok && v.Number != nil {
		return int(*v.Number)
	}
	return 0
}

func (p page) dateValue(key string) *time.Time {
	v, ok := p.Properties[key]
	if !ok || v.Date == nil || v.Date.Start == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v.Date.Start)
	if err != nil {
		return nil
	}
	return &t
}

// toRecord converts a page into the domain record.
func (p page) toRecord() *domain.TaskRecord {
	return &domain.TaskRecord{
		ID:           p.ID,
		Name:         p.textValue(propName),
		Type:         domain.TaskType(p.selectValue(propType)),
		Project:      p.selectValue(propProject),
		Status:       domain.TaskStatus(p.selectValue(propStatus)),
		RequestedBy:  p.selectValue(propRequestedBy),
		Payload:      p.textValue(propPayload),
		RunCount:     p.numberValue(propRunCount),
		StartedAt:    p.dateValue(propStartedAt),
		FinishedAt:   p.dateValue(propFinishedAt),
		LastError:    p.textValue(propLastError),
		Result:       p.textValue(propResult),
		ParentTaskID: p.textValue(propParentTask),
		CreatedAt:    p.CreatedTime,
	}
}
