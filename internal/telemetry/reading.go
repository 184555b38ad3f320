package telemetry

import (
	"fmt"
	"time"
)

// Reading is one immutable telemetry fact pulled from the cloud device API.
// Readings are persisted append-only; several readings share a timestamp
// when the upstream reports multiple metrics for the same sample instant.
type Reading struct {
	Metric    string
	Value     interface{}
	Timestamp time.Time
}

// Point is the per-metric payload element pushed to stream subscribers and
// returned inside "new-data" events.
type Point struct {
	Value     interface{} `json:"value"`
	Timestamp string      `json:"timestamp"`
}

// timestampLayouts are tried in order when the upstream timestamp is not
// strict RFC 3339. Layouts without a zone are interpreted as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses an upstream ISO-8601 timestamp into a UTC instant.
// A trailing 'Z' or explicit offset is honored; a naive timestamp is
// assumed to be UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for i, layout := range timestampLayouts {
		var (
			ts  time.Time
			err error
		)
		if i == 0 {
			ts, err = time.Parse(layout, s)
		} else {
			ts, err = time.ParseInLocation(layout, s, time.UTC)
		}
		if err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// ISO returns the reading's timestamp normalized to UTC in RFC 3339 form,
// the format used for stream payloads and snapshot columns.
func (r Reading) ISO() string {
	return FormatTimestamp(r.Timestamp)
}

// FormatTimestamp renders an instant as the canonical UTC ISO-8601 string.
// Two instants that are equal after UTC normalization render identically.
func FormatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}
