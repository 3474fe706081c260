package timeutil

import (
	"testing"
	"time"
)

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{15 * time.Second, "15s"},
		{90 * time.Second, "1m 30s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h 2m 3s"},
		{72*time.Hour + 30*time.Minute + 15*time.Second, "3d 0h 30m 15s"},
		{-5 * time.Second, "0s"},
	}

	for _, tt := range tests {
		if got := FormatUptime(tt.d); got != tt.want {
			t.Errorf("FormatUptime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatTime(t *testing.T) {
	// Invalid input passes through untouched.
	if got := FormatTime("not-a-time"); got != "not-a-time" {
		t.Errorf("FormatTime passthrough = %q", got)
	}

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Format(time.RFC3339)
	got := FormatTime(ts)
	if got == ts {
		t.Errorf("FormatTime(%q) was not reformatted", ts)
	}
}
