package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/maintstack/maint-opt/internal/models"
	"github.com/maintstack/maint-opt/internal/repo"
)

func newTestAnalyzer(store *repo.Memory, now time.Time) *Analyzer {
	a := NewAnalyzer(store, nil)
	a.now = func() time.Time { return now }
	return a
}

func seedFailureCycle(store *repo.Memory, componentID int64, repairAt time.Time, hoursToFailure float64) time.Time {
	store.AddEvent(models.MaintenanceEvent{ComponentID: componentID, Timestamp: repairAt, Category: models.CategoryRepair})
	failedAt := repairAt.Add(time.Duration(hoursToFailure * float64(time.Hour)))
	store.AddEvent(models.MaintenanceEvent{ComponentID: componentID, Timestamp: failedAt, Category: models.CategoryRepair, Deviation: true})
	store.AddFailure(models.FailureRecord{ComponentID: componentID, Timestamp: failedAt, Severity: "major"})
	return failedAt
}

func TestAnalyzeWeibullRequiresThreeFailures(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	store := repo.NewMemory()
	store.AddComponent(models.Component{ID: 1, OperatingHours: 5000})
	seedFailureCycle(store, 1, now.AddDate(0, 0, -60), 200)

	result, err := newTestAnalyzer(store, now).Analyze(context.Background(), 1, 180, models.MethodWeibull)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Outcome != models.OutcomeInsufficientData {
		t.Fatalf("outcome = %v, want insufficient_data", result.Outcome)
	}
	if result.Reason == "" {
		t.Error("expected a reason on the insufficient-data result")
	}
	if result.Weibull != nil {
		t.Error("no model should be fitted")
	}
}

func TestAnalyzeWeibullWearOut(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	store := repo.NewMemory()
	store.AddComponent(models.Component{ID: 1, OperatingHours: 5000})

	// Three repair→failure cycles with times to failure of 120, 340 and 600h.
	at := now.AddDate(0, 0, -100)
	for _, ttf := range []float64{120, 340, 600} {
		failedAt := seedFailureCycle(store, 1, at, ttf)
		at = failedAt.Add(24 * time.Hour)
	}

	result, err := newTestAnalyzer(store, now).Analyze(context.Background(), 1, 180, models.MethodWeibull)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !result.OK() || result.Weibull == nil {
		t.Fatalf("outcome = %v (%s), want a fitted model", result.Outcome, result.Reason)
	}

	w := result.Weibull
	if w.Shape <= 1 {
		t.Errorf("shape = %v, want > 1", w.Shape)
	}
	wantTimes := []float64{120, 340, 600}
	if len(w.FailureTimes) != len(wantTimes) {
		t.Fatalf("failure times = %v, want %v", w.FailureTimes, wantTimes)
	}
	for i, want := range wantTimes {
		if math.Abs(w.FailureTimes[i]-want) > 1e-6 {
			t.Errorf("failure time %d = %v, want %v", i, w.FailureTimes[i], want)
		}
	}
	if _, ok := w.ReliabilityIntervals.At(0.90); !ok {
		t.Error("reliability table missing the 90% target")
	}

	cache, ok := store.Cache(1)
	if !ok || cache.WeibullShape == nil || *cache.WeibullShape != w.Shape {
		t.Errorf("fitted parameters not cached: %+v", cache)
	}
}

func TestAnalyzeWeibullSyntheticFallback(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	store := repo.NewMemory()
	store.AddComponent(models.Component{ID: 1, OperatingHours: 4000})

	// Failures logged exactly at the window boundary with no event history
	// yield no usable intervals, so the analyzer falls back to evenly spaced
	// synthetic times over the operating hours.
	boundary := now.AddDate(0, 0, -180)
	for i := 0; i < 3; i++ {
		store.AddFailure(models.FailureRecord{ID: int64(i + 1), ComponentID: 1, Timestamp: boundary, Severity: "minor"})
	}

	result, err := newTestAnalyzer(store, now).Analyze(context.Background(), 1, 180, models.MethodWeibull)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !result.OK() || result.Weibull == nil {
		t.Fatalf("outcome = %v (%s), want a fitted model", result.Outcome, result.Reason)
	}
	want := []float64{1000, 2000, 3000}
	if len(result.Weibull.FailureTimes) != len(want) {
		t.Fatalf("failure times = %v, want %v", result.Weibull.FailureTimes, want)
	}
	for i, ft := range result.Weibull.FailureTimes {
		if math.Abs(ft-want[i]) > 1e-6 {
			t.Errorf("synthetic time %d = %v, want %v", i, ft, want[i])
		}
	}
}

func TestAnalyzeKaplanMeier(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	store := repo.NewMemory()
	store.AddComponent(models.Component{ID: 1, OperatingHours: 5000})

	// Failures after 100, 200, 300 and 400h on the clock, each repaired an
	// hour later. The window tail is censored.
	start := now.AddDate(0, 0, -60)
	offsets := []float64{100, 301, 602, 1003}
	for _, offset := range offsets {
		failedAt := start.Add(time.Duration(offset * float64(time.Hour)))
		store.AddEvent(models.MaintenanceEvent{ComponentID: 1, Timestamp: failedAt, Category: models.CategoryRepair, Deviation: true})
		store.AddEvent(models.MaintenanceEvent{ComponentID: 1, Timestamp: failedAt.Add(time.Hour), Category: models.CategoryRepair})
		store.AddFailure(models.FailureRecord{ComponentID: 1, Timestamp: failedAt, Severity: "major"})
	}

	result, err := newTestAnalyzer(store, now).Analyze(context.Background(), 1, 60, models.MethodKaplanMeier)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !result.OK() || result.KaplanMeier == nil {
		t.Fatalf("outcome = %v (%s), want an estimate", result.Outcome, result.Reason)
	}

	km := result.KaplanMeier
	if km.Failures != 4 {
		t.Errorf("failures = %d, want 4", km.Failures)
	}
	if km.Events != 5 {
		t.Errorf("events = %d, want 5 (four failures plus censored tail)", km.Events)
	}
	// S: 0.8 at 100h, 0.6 at 200h, 0.4 at 300h. The 0.5 crossing interpolates
	// to 250h.
	if km.MedianSurvival == nil || math.Abs(*km.MedianSurvival-250) > 1e-6 {
		t.Errorf("median survival = %v, want 250", km.MedianSurvival)
	}

	cache, ok := store.Cache(1)
	if !ok || cache.MedianSurvival == nil || len(cache.SurvivalCurve) == 0 {
		t.Errorf("estimate not cached: %+v", cache)
	}

	// Identical inputs must reproduce the identical curve.
	again, err := newTestAnalyzer(store, now).Analyze(context.Background(), 1, 60, models.MethodKaplanMeier)
	if err != nil {
		t.Fatalf("Analyze (second run): %v", err)
	}
	if len(again.KaplanMeier.Curve) != len(km.Curve) {
		t.Fatalf("curve length changed between runs: %d vs %d", len(again.KaplanMeier.Curve), len(km.Curve))
	}
	for i, p := range km.Curve {
		if again.KaplanMeier.Curve[i] != p {
			t.Errorf("curve point %d = %+v, want %+v", i, again.KaplanMeier.Curve[i], p)
		}
	}
	if *again.KaplanMeier.MedianSurvival != *km.MedianSurvival {
		t.Errorf("median changed between runs: %v vs %v", *again.KaplanMeier.MedianSurvival, *km.MedianSurvival)
	}
}

func TestAnalyzeKaplanMeierRequiresThreeFailures(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	store := repo.NewMemory()
	store.AddComponent(models.Component{ID: 1, OperatingHours: 2000})

	// Routine inspections without failure records must not produce a
	// degenerate one-point estimate.
	start := now.AddDate(0, 0, -40)
	for i := 0; i < 4; i++ {
		store.AddEvent(models.MaintenanceEvent{ComponentID: 1, Timestamp: start.AddDate(0, 0, 7*i), Category: models.CategoryInspection})
	}

	result, err := newTestAnalyzer(store, now).Analyze(context.Background(), 1, 60, models.MethodKaplanMeier)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Outcome != models.OutcomeInsufficientData {
		t.Fatalf("outcome = %v, want insufficient_data", result.Outcome)
	}
	if result.KaplanMeier != nil {
		t.Error("no estimate should be produced")
	}
	if _, ok := store.Cache(1); ok {
		t.Error("insufficient data must not update the analysis cache")
	}
}

func TestAnalyzeKaplanMeierNoEvents(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	store := repo.NewMemory()
	store.AddComponent(models.Component{ID: 1})

	result, err := newTestAnalyzer(store, now).Analyze(context.Background(), 1, 60, models.MethodKaplanMeier)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Outcome != models.OutcomeInsufficientData {
		t.Fatalf("outcome = %v, want insufficient_data", result.Outcome)
	}
}
