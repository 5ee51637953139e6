package api

import (
	"encoding/json"
	"fmt"
)

// Error is a non-2xx answer from the identity backend. Validation failures
// (4xx with structured field errors) keep their per-field messages in Fields
// so the caller can render them; the raw body is preserved unmodified.
type Error struct {
	Status int
	Body   json.RawMessage
	Detail string
	Fields map[string][]string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("api error %d", e.Status)
}

// newAPIError decodes the backend's error body. It tolerates any shape:
// a "detail"/"message"/"error" string becomes Detail, and field->message(s)
// entries become Fields.
func newAPIError(status int, body []byte) *Error {
	e := &Error{Status: status, Body: append(json.RawMessage(nil), body...)}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return e
	}

	for _, k := range []string{"detail", "message", "error"} {
		if s, ok := payload[k].(string); ok {
			e.Detail = s
			delete(payload, k)
			break
		}
	}

	for field, v := range payload {
		switch value := v.(type) {
		case string:
			e.addField(field, value)
		case []any:
			for _, item := range value {
				if s, ok := item.(string); ok {
					e.addField(field, s)
				}
			}
		}
	}

	return e
}

func (e *Error) addField(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}
