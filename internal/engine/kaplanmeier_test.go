package engine

import (
	"math"
	"testing"
	"time"

	"github.com/maintstack/maint-opt/internal/models"
)

func TestKaplanMeierAllFailures(t *testing.T) {
	observations := []observation{
		{duration: 100, failure: true},
		{duration: 200, failure: true},
		{duration: 300, failure: true},
		{duration: 400, failure: true},
	}

	curve := kaplanMeier(observations)
	want := []models.SurvivalPoint{{T: 0, S: 1}, {T: 100, S: 0.75}, {T: 200, S: 0.5}, {T: 300, S: 0.25}, {T: 400, S: 0}}
	if len(curve) != len(want) {
		t.Fatalf("curve has %d points, want %d: %+v", len(curve), len(want), curve)
	}
	for i := range want {
		if curve[i].T != want[i].T || math.Abs(curve[i].S-want[i].S) > 1e-9 {
			t.Errorf("point %d = %+v, want %+v", i, curve[i], want[i])
		}
	}
}

func TestKaplanMeierCensoringShrinksRiskSet(t *testing.T) {
	observations := []observation{
		{duration: 100, failure: true},
		{duration: 150, failure: false},
		{duration: 200, failure: true},
	}

	curve := kaplanMeier(observations)
	// At t=100 three are at risk; the censored subject leaves before t=200,
	// where only one remains.
	if len(curve) != 3 {
		t.Fatalf("curve has %d points, want 3: %+v", len(curve), curve)
	}
	if math.Abs(curve[1].S-2.0/3.0) > 1e-9 {
		t.Errorf("S(100) = %v, want 2/3", curve[1].S)
	}
	if curve[2].S != 0 {
		t.Errorf("S(200) = %v, want 0", curve[2].S)
	}
}

func TestSurvivalCrossing(t *testing.T) {
	curve := []models.SurvivalPoint{{T: 0, S: 1}, {T: 100, S: 0.8}, {T: 200, S: 0.5}, {T: 300, S: 0.2}}

	t.Run("exact hit", func(t *testing.T) {
		got := survivalCrossing(curve, 0.5)
		if got == nil || *got != 200 {
			t.Fatalf("crossing at 0.5 = %v, want 200", got)
		}
	})
	t.Run("interpolated", func(t *testing.T) {
		got := survivalCrossing(curve, 0.65)
		if got == nil || math.Abs(*got-150) > 1e-9 {
			t.Fatalf("crossing at 0.65 = %v, want 150", got)
		}
	})
	t.Run("never reached", func(t *testing.T) {
		if got := survivalCrossing(curve, 0.1); got != nil {
			t.Fatalf("crossing at 0.1 = %v, want nil", *got)
		}
	})
	t.Run("flat curve", func(t *testing.T) {
		if got := survivalCrossing([]models.SurvivalPoint{{T: 0, S: 1}}, 0.5); got != nil {
			t.Fatalf("crossing on flat curve = %v, want nil", *got)
		}
	})
}

func TestBuildObservations(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	window := models.TimeRange{Start: start, End: start.Add(480 * time.Hour)}

	events := []models.MaintenanceEvent{
		{Timestamp: start.Add(96 * time.Hour), Category: models.CategoryRepair},
		{Timestamp: start.Add(216 * time.Hour), Category: models.CategoryRepair, Deviation: true},
		{Timestamp: start.Add(264 * time.Hour), Category: models.CategoryReplacement},
	}

	got := buildObservations(events, window)
	want := []observation{
		{duration: 96, failure: false},  // routine repair, censored
		{duration: 120, failure: true},  // failure measured from the repair
		{duration: 216, failure: false}, // window tail after the replacement
	}
	if len(got) != len(want) {
		t.Fatalf("got %d observations, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if math.Abs(got[i].duration-want[i].duration) > 1e-9 || got[i].failure != want[i].failure {
			t.Errorf("observation %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestBuildObservationsAssumesRepairAfterUnresolvedFailure(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	window := models.TimeRange{Start: start, End: start.Add(480 * time.Hour)}

	events := []models.MaintenanceEvent{
		{Timestamp: start.Add(216 * time.Hour), Category: models.CategoryInspection, Deviation: true},
	}

	got := buildObservations(events, window)
	if len(got) != 2 {
		t.Fatalf("got %d observations, want 2: %+v", len(got), got)
	}
	if got[0].duration != 216 || !got[0].failure {
		t.Errorf("failure observation = %+v, want 216h failure", got[0])
	}
	// The clock restarts 24h after the failure when no repair is logged.
	if math.Abs(got[1].duration-240) > 1e-9 || got[1].failure {
		t.Errorf("tail observation = %+v, want 240h censored", got[1])
	}
}
