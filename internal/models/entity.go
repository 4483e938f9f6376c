// Package models defines the notebook, source, note and chat entities exchanged with
// the remote store, and the validation that admits payloads into the cache.
package models

import (
	"strings"
	"time"
)

// Kind tags the closed set of entity variants the cache may hold.
type Kind string

const (
	KindNotebook    Kind = "notebook"
	KindSource      Kind = "source"
	KindNote        Kind = "note"
	KindChatSession Kind = "chat_session"
	KindChatMessage Kind = "chat_message"
)

// Entity is implemented only by the types in this package.
type Entity interface {
	EntityKind() Kind
	EntityID() string
	sealed()
}

// timestampLayouts are tried in order; servers emit zone-less ISO timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Timestamp is a time.Time that tolerates the timestamp formats seen on the wire.
type Timestamp struct {
	time.Time
}

// Now returns the current time as a Timestamp in UTC.
func Now() Timestamp {
	return Timestamp{Time: time.Now().UTC()}
}

// ParseTimestamp parses s using the accepted layouts. Zone-less values are UTC.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return Timestamp{Time: t.UTC()}, nil
		}
		lastErr = err
	}
	return Timestamp{}, lastErr
}

// MarshalJSON writes RFC 3339 with nanoseconds, or null for the zero time.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.UTC().Format(time.RFC3339Nano) + `"`), nil
}

// UnmarshalJSON accepts null, "" and any of the accepted layouts.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		*t = Timestamp{}
		return nil
	}
	parsed, err := ParseTimestamp(strings.Trim(s, `"`))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
