package scheduler

import (
	"testing"
	"time"
)

func TestIntervalSeconds(t *testing.T) {
	tests := []struct {
		interval time.Duration
		want     int
	}{
		{30 * time.Second, 30},
		{90 * time.Second, 90},
		{15 * time.Minute, 900},
		{0, 900},
		{-time.Minute, 900},
		{500 * time.Millisecond, 900},
	}
	for _, tc := range tests {
		if got := intervalSeconds(tc.interval); got != tc.want {
			t.Errorf("intervalSeconds(%v) = %d, want %d", tc.interval, got, tc.want)
		}
	}
}
