package scheduler

import (
	"testing"
	"time"
)

func TestNextReconTime(t *testing.T) {
	cases := []struct {
		name     string
		now      time.Time
		hour     int
		expected time.Time
	}{
		{
			"before the hour runs today",
			time.Date(2026, 8, 27, 0, 30, 0, 0, time.UTC),
			1,
			time.Date(2026, 8, 27, 1, 0, 0, 0, time.UTC),
		},
		{
			"after the hour runs tomorrow",
			time.Date(2026, 8, 27, 2, 0, 0, 0, time.UTC),
			1,
			time.Date(2026, 8, 28, 1, 0, 0, 0, time.UTC),
		},
		{
			"exactly on the hour runs tomorrow",
			time.Date(2026, 8, 27, 1, 0, 0, 0, time.UTC),
			1,
			time.Date(2026, 8, 28, 1, 0, 0, 0, time.UTC),
		},
		{
			"midnight hour",
			time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC),
			0,
			time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tc := range cases {
		if got := nextReconTime(tc.now, tc.hour); !got.Equal(tc.expected) {
			t.Fatalf("%s: nextReconTime(%v, %d) = %v, want %v", tc.name, tc.now, tc.hour, got, tc.expected)
		}
	}
}
