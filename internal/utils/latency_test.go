package utils

import (
	"testing"
	"time"
)

func TestLatencyTrackerEmpty(t *testing.T) {
	tracker := NewLatencyTracker(8)
	if got := tracker.Percentile(95); got != 0 {
		t.Fatalf("expected zero percentile on empty tracker, got %v", got)
	}
	if tracker.Count() != 0 {
		t.Fatalf("expected zero count, got %d", tracker.Count())
	}
}

func TestLatencyTrackerPercentiles(t *testing.T) {
	tracker := NewLatencyTracker(16)
	for i := 1; i <= 10; i++ {
		tracker.Observe(time.Duration(i) * time.Millisecond)
	}

	if got := tracker.Percentile(0); got != time.Millisecond {
		t.Fatalf("p0 = %v, want 1ms", got)
	}
	if got := tracker.Percentile(100); got != 10*time.Millisecond {
		t.Fatalf("p100 = %v, want 10ms", got)
	}
	if got := tracker.Percentile(50); got < 4*time.Millisecond || got > 6*time.Millisecond {
		t.Fatalf("p50 = %v, want near median", got)
	}
}

func TestLatencyTrackerEviction(t *testing.T) {
	tracker := NewLatencyTracker(4)
	for i := 1; i <= 9; i++ {
		tracker.Observe(time.Duration(i) * time.Second)
	}
	if tracker.Count() != 4 {
		t.Fatalf("expected ring to cap at 4 samples, got %d", tracker.Count())
	}
	// Oldest samples have been overwritten; minimum must be recent.
	if got := tracker.Percentile(0); got < 6*time.Second {
		t.Fatalf("expected oldest retained sample >= 6s, got %v", got)
	}
}

func TestHoursBetweenSwapsArguments(t *testing.T) {
	a := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	b := a.Add(36 * time.Hour)
	if got := HoursBetween(b, a); got != 36 {
		t.Fatalf("HoursBetween = %v, want 36", got)
	}
}

func TestDaysBetweenFloor(t *testing.T) {
	a := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if got := DaysBetween(a, a.Add(2*time.Hour)); got != 1 {
		t.Fatalf("DaysBetween short window = %d, want 1", got)
	}
	if got := DaysBetween(a, a.Add(49*time.Hour)); got != 2 {
		t.Fatalf("DaysBetween = %d, want 2", got)
	}
}
