package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout renders trace timestamps as ISO-8601 local time with
// microsecond precision and no zone offset.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// Meta is caller-supplied metadata attached to a trace.
type Meta map[string]any

// Trace is a stored trace as read back from the store. Metadata holds the
// stored textual rendering and is never decoded by the store.
type Trace struct {
	TraceID   string `json:"trace_id"`
	Prompt    string `json:"prompt"`
	Response  string `json:"response"`
	Metadata  string `json:"metadata"`
	Timestamp string `json:"timestamp"`
}

// Time parses the trace timestamp in the local time zone.
func (t Trace) Time() (time.Time, error) {
	return ParseTimestamp(t.Timestamp)
}

// StoredTrace is the result of storing a trace. Unlike Trace it carries the
// metadata value the caller passed in rather than its stored text.
type StoredTrace struct {
	TraceID   string `json:"trace_id"`
	Prompt    string `json:"prompt"`
	Response  string `json:"response"`
	Metadata  Meta   `json:"metadata"`
	Timestamp string `json:"timestamp"`
}

// Time parses the trace timestamp in the local time zone.
func (t StoredTrace) Time() (time.Time, error) {
	return ParseTimestamp(t.Timestamp)
}

// FormatTimestamp renders ts in local time using TimestampLayout.
func FormatTimestamp(ts time.Time) string {
	return ts.Local().Format(TimestampLayout)
}

// ParseTimestamp parses a timestamp written by FormatTimestamp.
func ParseTimestamp(s string) (time.Time, error) {
	ts, err := time.ParseInLocation(TimestampLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing trace timestamp %q: %w", s, err)
	}
	return ts, nil
}

// OrEmpty returns m, or an empty Meta when m is nil.
func (m Meta) OrEmpty() Meta {
	if m == nil {
		return Meta{}
	}
	return m
}

// Render returns the textual form of m that is persisted with a trace.
// A nil Meta renders as "{}".
func (m Meta) Render() (string, error) {
	data, err := json.Marshal(m.OrEmpty())
	if err != nil {
		return "", fmt.Errorf("rendering metadata: %w", err)
	}
	return string(data), nil
}

// ExportColumns is the header row written by the CSV export.
var ExportColumns = []string{"trace_id", "prompt", "response", "metadata", "timestamp"}

// Record returns the trace as a row in ExportColumns order.
func (t Trace) Record() []string {
	return []string{t.TraceID, t.Prompt, t.Response, t.Metadata, t.Timestamp}
}
