// Package series implements the columnar reshaping of telemetry readings
// consumed by the chart dashboard: one shared timestamp axis plus one
// value column per metric, aligned by index.
package series

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/skyking-delivery/skytrack/internal/telemetry"
)

// Snapshot is the columnar read model for a set of readings. Timestamps is
// the ascending, deduplicated axis of UTC ISO-8601 instants; Columns holds
// one value slice per metric, index-aligned with Timestamps, with nil for
// instants where the metric has no reading.
type Snapshot struct {
	Timestamps []string
	Columns    map[string][]interface{}
}

// Reshape turns a flat reading list into a Snapshot. The input need not be
// sorted; the output is deterministic regardless of input order except for
// duplicate (metric, timestamp) pairs, where the last reading in input
// order wins. Timestamps equal after UTC normalization coalesce into one
// axis entry.
func Reshape(readings []telemetry.Reading) *Snapshot {
	byTimestamp := make(map[string]map[string]interface{})
	instants := make(map[string]time.Time)
	metrics := make(map[string]bool)

	for _, r := range readings {
		iso := r.ISO()
		metrics[r.Metric] = true
		col, ok := byTimestamp[iso]
		if !ok {
			col = make(map[string]interface{})
			byTimestamp[iso] = col
			instants[iso] = r.Timestamp.UTC()
		}
		col[r.Metric] = CoerceValue(r.Value)
	}

	timestamps := make([]string, 0, len(byTimestamp))
	for iso := range byTimestamp {
		timestamps = append(timestamps, iso)
	}
	// Sort by instant rather than lexically: RFC 3339 trims trailing zeros
	// in fractional seconds, which breaks lexical ordering.
	sort.Slice(timestamps, func(i, j int) bool {
		ti, tj := instants[timestamps[i]], instants[timestamps[j]]
		if ti.Equal(tj) {
			return timestamps[i] < timestamps[j]
		}
		return ti.Before(tj)
	})

	columns := make(map[string][]interface{}, len(metrics))
	for name := range metrics {
		columns[name] = make([]interface{}, len(timestamps))
	}
	for i, iso := range timestamps {
		for name, value := range byTimestamp[iso] {
			columns[name][i] = value
		}
	}

	return &Snapshot{Timestamps: timestamps, Columns: columns}
}

// CoerceValue converts a reading value to a number when lexically possible,
// otherwise returns it unchanged. Stored values round-trip through a text
// column, so numeric telemetry often arrives here as a string.
func CoerceValue(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// MarshalJSON renders the snapshot in the wire shape the dashboard expects:
// {"timestamps": [...], "<metric>": [...], ...}. A metric literally named
// "timestamps" cannot be represented in this shape and is omitted.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(s.Columns)+1)
	out["timestamps"] = s.Timestamps
	for name, col := range s.Columns {
		if name == "timestamps" {
			continue
		}
		out[name] = col
	}
	return json.Marshal(out)
}
