// Package metadata builds the message headers that accompany a published
// report so brokers can route on them without decoding the payload.
package metadata

import (
	"fmt"
	"time"

	"github.com/drblury/faultline/internal/runtime/cloudevents"
)

// Metadata represents the headers carried alongside a report message.
type Metadata map[string]string

// Header keys follow the CloudEvents binary content mode naming.
const (
	KeyPrefix      = "ce_"
	KeySpecVersion = KeyPrefix + "specversion"
	KeyType        = KeyPrefix + "type"
	KeyID          = KeyPrefix + "id"
	KeySource      = KeyPrefix + "source"
	KeyTime        = KeyPrefix + "time"
	KeyContentType = "content-type"
)

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	cloned := make(Metadata, len(m))
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// With returns a cloned metadata map containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.Clone()
	cloned[key] = value
	return cloned
}

// New constructs a Metadata map from alternating key/value pairs.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}

// ForEvent returns the routing headers of evt. Extensions are prefixed with
// KeyPrefix.
func ForEvent(evt cloudevents.Event) Metadata {
	md := New(
		KeySpecVersion, evt.SpecVersion,
		KeyType, evt.Type,
		KeyID, evt.ID,
		KeySource, evt.Source,
	)
	if !evt.Time.IsZero() {
		md[KeyTime] = evt.Time.UTC().Format(time.RFC3339Nano)
	}
	if evt.DataContentType != "" {
		md[KeyContentType] = evt.DataContentType
	}
	for k, v := range evt.Extensions {
		if v == nil {
			continue
		}
		md[KeyPrefix+k] = fmt.Sprint(v)
	}
	return md
}
