package utils

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"2026-08-27T10:00:00Z", "2026-08-27T10:00:00Z"},
		{"2026-08-27T10:00:00.123456789Z", "2026-08-27T10:00:00Z"},
		{"2026-08-27T10:00:00+05:30", "2026-08-27T04:30:00Z"},
		{"2026-08-27T10:00:00.123456", "2026-08-27T10:00:00Z"},
		{"2026-08-27T10:00:00", "2026-08-27T10:00:00Z"},
		{"2026-08-27 10:00:00", "2026-08-27T10:00:00Z"},
		{"2026-08-27", "2026-08-27T00:00:00Z"},
	}
	for _, tc := range cases {
		got := ParseTimestamp(tc.in)
		if got == nil {
			t.Fatalf("ParseTimestamp(%q) returned nil", tc.in)
		}
		if got.Truncate(time.Second).Format(time.RFC3339) != tc.expected {
			t.Fatalf("ParseTimestamp(%q) = %v, want %s", tc.in, got, tc.expected)
		}
		if got.Location() != time.UTC {
			t.Fatalf("ParseTimestamp(%q) must return UTC, got %v", tc.in, got.Location())
		}
	}
}

func TestParseTimestamp_Invalid(t *testing.T) {
	for _, in := range []string{"", "not a date", "27/08/2026", "1693123200"} {
		if got := ParseTimestamp(in); got != nil {
			t.Fatalf("ParseTimestamp(%q) = %v, want nil", in, got)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Fatalf("short strings pass through, got %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello" {
		t.Fatalf("expected hard cut at 5, got %q", got)
	}
	if got := Truncate("", 5); got != "" {
		t.Fatalf("empty string stays empty, got %q", got)
	}
}
