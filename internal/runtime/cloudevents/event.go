// Package cloudevents wraps error reports in CloudEvents v1.0 envelopes so
// broker transports carry a self-describing payload.
package cloudevents

import (
	"encoding/json"
	"fmt"
	"time"

	idspkg "github.com/drblury/faultline/internal/runtime/ids"
	"github.com/drblury/faultline/internal/runtime/jsoncodec"
)

// SpecVersion is the CloudEvents specification version implemented.
const SpecVersion = "1.0"

// ReportType is the event type of a published error report.
const ReportType = "io.faultline.report"

// Event is a CloudEvents v1.0 event. Extension attributes are flattened into
// the top-level JSON object.
type Event struct {
	SpecVersion     string
	Type            string
	Source          string
	ID              string
	Time            time.Time
	DataContentType string
	Subject         string
	Data            any
	Extensions      map[string]any
}

// New creates an event with a ULID id and the current time.
func New(eventType, source string, data any) Event {
	return Event{
		SpecVersion: SpecVersion,
		Type:        eventType,
		Source:      source,
		ID:          idspkg.CreateULID(),
		Time:        time.Now().UTC(),
		Data:        data,
		Extensions:  make(map[string]any),
	}
}

// NewWithID creates an event with a specific id.
func NewWithID(id, eventType, source string, data any) Event {
	evt := New(eventType, source, data)
	evt.ID = id
	return evt
}

// WithExtension sets an extension attribute and returns the event.
func (e Event) WithExtension(key string, value any) Event {
	if e.Extensions == nil {
		e.Extensions = make(map[string]any)
	}
	e.Extensions[key] = value
	return e
}

// GetExtensionString returns an extension as a string, or "" when unset.
func (e Event) GetExtensionString(key string) string {
	v, ok := e.Extensions[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Validate checks that the event has all required attributes.
func (e Event) Validate() error {
	switch {
	case e.SpecVersion != SpecVersion:
		return fmt.Errorf("specversion must be %q, got %q", SpecVersion, e.SpecVersion)
	case e.Type == "":
		return fmt.Errorf("type is required")
	case e.Source == "":
		return fmt.Errorf("source is required")
	case e.ID == "":
		return fmt.Errorf("id is required")
	}
	return nil
}

var knownAttrs = map[string]bool{
	"specversion":     true,
	"type":            true,
	"source":          true,
	"id":              true,
	"time":            true,
	"datacontenttype": true,
	"subject":         true,
	"data":            true,
}

// MarshalJSON implements json.Marshaler for the structured content mode.
func (e Event) MarshalJSON() ([]byte, error) {
	return jsoncodec.Marshal(e.attributes())
}

func (e Event) attributes() map[string]any {
	m := make(map[string]any, len(knownAttrs)+len(e.Extensions))
	for k, v := range e.Extensions {
		m[k] = v
	}
	m["specversion"] = e.SpecVersion
	m["type"] = e.Type
	m["source"] = e.Source
	m["id"] = e.ID
	if !e.Time.IsZero() {
		m["time"] = e.Time.Format(time.RFC3339Nano)
	}
	if e.DataContentType != "" {
		m["datacontenttype"] = e.DataContentType
	}
	if e.Subject != "" {
		m["subject"] = e.Subject
	}
	if e.Data != nil {
		m["data"] = e.Data
	}
	return m
}

// UnmarshalJSON implements json.Unmarshaler. Data is kept as raw JSON so the
// caller can decode it into a concrete type.
func (e *Event) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := jsoncodec.Unmarshal(data, &m); err != nil {
		return err
	}

	str := func(key string) (string, error) {
		raw, ok := m[key]
		if !ok {
			return "", nil
		}
		var v string
		if err := jsoncodec.Unmarshal(raw, &v); err != nil {
			return "", fmt.Errorf("invalid %s: %w", key, err)
		}
		return v, nil
	}

	var err error
	if e.SpecVersion, err = str("specversion"); err != nil {
		return err
	}
	if e.Type, err = str("type"); err != nil {
		return err
	}
	if e.Source, err = str("source"); err != nil {
		return err
	}
	if e.ID, err = str("id"); err != nil {
		return err
	}
	if e.DataContentType, err = str("datacontenttype"); err != nil {
		return err
	}
	if e.Subject, err = str("subject"); err != nil {
		return err
	}
	rawTime, err := str("time")
	if err != nil {
		return err
	}
	if rawTime != "" {
		t, err := time.Parse(time.RFC3339Nano, rawTime)
		if err != nil {
			return fmt.Errorf("invalid time format: %w", err)
		}
		e.Time = t
	}
	if raw, ok := m["data"]; ok {
		e.Data = raw
	}

	e.Extensions = make(map[string]any)
	for k, raw := range m {
		if knownAttrs[k] {
			continue
		}
		var v any
		if err := jsoncodec.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("invalid extension %s: %w", k, err)
		}
		e.Extensions[k] = v
	}
	return nil
}
