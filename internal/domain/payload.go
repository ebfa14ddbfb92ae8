package domain

import "encoding/json"

// Payload is the optional free-text extra-arguments blob attached to a
// task. It is modeled as an explicit variant: absent (empty Raw),
// raw-only text, or structured with named fields when Raw decodes as a
// flat JSON object. A failed decode is never an error; the payload
// simply carries no structured fields.
type Payload struct {
	Raw    string
	fields map[string]string
}

// ParsePayload interprets the raw payload text. Scalar JSON object
// values (strings, numbers, bools) become fields; nested values and
// malformed JSON are ignored.
func ParsePayload(raw string) Payload {
	p := Payload{Raw: raw}
	if raw == "" {
		return p
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return p
	}
	fields := make(map[string]string, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case float64:
			b, _ := json.Marshal(val)
			fields[k] = string(b)
		case bool:
			if val {
				fields[k] = "true"
			} else {
				fields[k] = "false"
			}
		}
	}
	if len(fields) > 0 {
		p.fields = fields
	}
	return p
}

// IsAbsent reports whether the payload carries no text at all.
func (p Payload) IsAbsent() bool {
	return p.Raw == ""
}

// Field returns the named structured field, or "" when the payload is
// absent, raw-only, or lacks that field.
func (p Payload) Field(name string) string {
	return p.fields[name]
}
