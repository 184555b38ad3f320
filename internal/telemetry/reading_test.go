package telemetry

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "utc zulu",
			input: "2026-08-23T10:00:00Z",
			want:  "2026-08-23T10:00:00Z",
		},
		{
			name:  "fractional seconds",
			input: "2026-08-23T10:00:00.123456Z",
			want:  "2026-08-23T10:00:00.123456Z",
		},
		{
			name:  "explicit offset normalized to utc",
			input: "2026-08-23T12:00:00+02:00",
			want:  "2026-08-23T10:00:00Z",
		},
		{
			name:  "naive assumed utc",
			input: "2026-08-23T10:00:00",
			want:  "2026-08-23T10:00:00Z",
		},
		{
			name:  "naive with space separator",
			input: "2026-08-23 10:00:00.5",
			want:  "2026-08-23T10:00:00.5Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, err := ParseTimestamp(tt.input)
			if err != nil {
				t.Fatalf("ParseTimestamp(%q) failed: %v", tt.input, err)
			}
			if got := FormatTimestamp(ts); got != tt.want {
				t.Errorf("ParseTimestamp(%q) = %s, want %s", tt.input, got, tt.want)
			}
			if ts.Location() != time.UTC {
				t.Errorf("ParseTimestamp(%q) location = %v, want UTC", tt.input, ts.Location())
			}
		})
	}
}

func TestParseTimestampInvalid(t *testing.T) {
	for _, input := range []string{"", "not-a-timestamp", "23/08/2026 10:00"} {
		if _, err := ParseTimestamp(input); err == nil {
			t.Errorf("ParseTimestamp(%q) succeeded, want error", input)
		}
	}
}

func TestFormatTimestampNormalizes(t *testing.T) {
	loc := time.FixedZone("CEST", 2*3600)
	a := time.Date(2026, 8, 23, 12, 0, 0, 0, loc)
	b := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)

	if FormatTimestamp(a) != FormatTimestamp(b) {
		t.Errorf("equal instants render differently: %s vs %s",
			FormatTimestamp(a), FormatTimestamp(b))
	}
}

func TestReadingISO(t *testing.T) {
	r := Reading{
		Metric:    "AlturaDron",
		Value:     120.5,
		Timestamp: time.Date(2026, 8, 23, 10, 0, 0, 500000000, time.UTC),
	}
	if got := r.ISO(); got != "2026-08-23T10:00:00.5Z" {
		t.Errorf("ISO() = %s, want 2026-08-23T10:00:00.5Z", got)
	}
}
