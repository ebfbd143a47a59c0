package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/maintstack/maint-opt/internal/config"
	"github.com/maintstack/maint-opt/internal/models"
)

type countingRunner struct {
	batches     int
	validations int
}

func (r *countingRunner) RunScheduledOptimizations(context.Context, models.AnalysisMethod) (models.BatchReport, error) {
	r.batches++
	return models.BatchReport{RunID: "run"}, nil
}

func (r *countingRunner) ValidateEffectiveness(context.Context, int) (models.ValidationReport, error) {
	r.validations++
	return models.ValidationReport{}, nil
}

type countingGenerator struct {
	runs int
}

func (g *countingGenerator) Regenerate(context.Context) (models.RegenerationReport, error) {
	g.runs++
	return models.RegenerationReport{}, nil
}

func testConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		Enabled:           true,
		PollInterval:      time.Hour,
		OptimizationHour:  1,
		WorkOrderHour:     2,
		ValidationWeekday: 1,
		ValidationHour:    3,
		Method:            "weibull",
		ValidationDays:    90,
	}
}

func TestDue(t *testing.T) {
	monday := time.Date(2026, 7, 20, 4, 0, 0, 0, time.UTC) // a Monday
	earlier := monday.Add(-2 * time.Hour)
	afterSlot := monday.Add(-30 * time.Minute)

	cases := []struct {
		name    string
		lastRun *time.Time
		now     time.Time
		hour    int
		weekday int
		want    bool
	}{
		{"never ran, slot passed", nil, monday, 3, -1, true},
		{"before slot", nil, monday, 5, -1, false},
		{"ran before today's slot", &earlier, monday, 3, -1, true},
		{"ran after today's slot", &afterSlot, monday, 3, -1, false},
		{"wrong weekday", nil, monday, 3, 2, false},
		{"matching weekday", nil, monday, 3, 1, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := due(tc.lastRun, tc.now, tc.hour, tc.weekday); got != tc.want {
				t.Errorf("due(%v, %v, %d, %d) = %v, want %v", tc.lastRun, tc.now, tc.hour, tc.weekday, got, tc.want)
			}
		})
	}
}

func TestTickDispatchesDueTasksOnce(t *testing.T) {
	runner := &countingRunner{}
	generator := &countingGenerator{}
	s := New(testConfig(), runner, generator, nil)

	// Monday 03:30: all three slots (01:00, 02:00, Monday 03:00) have passed.
	now := time.Date(2026, 7, 20, 3, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.tick(context.Background())
	if runner.batches != 1 || generator.runs != 1 || runner.validations != 1 {
		t.Fatalf("dispatch counts = %d/%d/%d, want 1/1/1", runner.batches, generator.runs, runner.validations)
	}

	// A second tick in the same slot must not re-run anything.
	now = now.Add(time.Minute)
	s.tick(context.Background())
	if runner.batches != 1 || generator.runs != 1 || runner.validations != 1 {
		t.Fatalf("tasks re-ran within the same slot: %d/%d/%d", runner.batches, generator.runs, runner.validations)
	}

	// The next day's slots trigger the daily tasks but not the weekly one.
	now = now.AddDate(0, 0, 1)
	s.tick(context.Background())
	if runner.batches != 2 || generator.runs != 2 {
		t.Fatalf("daily tasks did not re-run next day: %d/%d", runner.batches, generator.runs)
	}
	if runner.validations != 1 {
		t.Fatalf("weekly validation ran on a Tuesday: %d", runner.validations)
	}

	status := s.Status()
	if status.LastBatch == nil || status.LastValidation == nil {
		t.Errorf("status missing task timestamps: %+v", status)
	}
}

func TestTickSkipsTasksBeforeTheirSlot(t *testing.T) {
	runner := &countingRunner{}
	generator := &countingGenerator{}
	s := New(testConfig(), runner, generator, nil)

	// Tuesday 01:30: only the optimization slot has passed.
	now := time.Date(2026, 7, 21, 1, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.tick(context.Background())
	if runner.batches != 1 || generator.runs != 0 || runner.validations != 0 {
		t.Fatalf("dispatch counts = %d/%d/%d, want 1/0/0", runner.batches, generator.runs, runner.validations)
	}
}

func TestStartStopStateMachine(t *testing.T) {
	s := New(testConfig(), &countingRunner{}, &countingGenerator{}, nil)

	if got := s.Status().State; got != StateStopped {
		t.Fatalf("initial state = %v, want stopped", got)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := s.Status().State; got != StateRunning {
		t.Fatalf("state after start = %v, want running", got)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("second start must fail")
	}

	s.Stop()
	if got := s.Status().State; got != StateStopped {
		t.Fatalf("state after stop = %v, want stopped", got)
	}
	// Stopping again is a no-op.
	s.Stop()

	// A stopped scheduler can be restarted.
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	s.Stop()
}
