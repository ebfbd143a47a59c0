package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maintstack/maint-opt/internal/config"
	"github.com/maintstack/maint-opt/internal/models"
)

// State is the scheduler lifecycle state.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

// BatchRunner is the automation dependency of the scheduler.
type BatchRunner interface {
	RunScheduledOptimizations(ctx context.Context, method models.AnalysisMethod) (models.BatchReport, error)
	ValidateEffectiveness(ctx context.Context, days int) (models.ValidationReport, error)
}

// OrderRegenerator creates work orders for recently adjusted actions.
type OrderRegenerator interface {
	Regenerate(ctx context.Context) (models.RegenerationReport, error)
}

// Status is the externally visible scheduler state.
type Status struct {
	State          State      `json:"state"`
	PollInterval   string     `json:"poll_interval"`
	LastTick       *time.Time `json:"last_tick,omitempty"`
	LastBatch      *time.Time `json:"last_optimization_run,omitempty"`
	LastWorkOrder  *time.Time `json:"last_work_order_run,omitempty"`
	LastValidation *time.Time `json:"last_validation_run,omitempty"`
}

// Scheduler drives the recurring maintenance-optimization tasks: a daily
// batch run, daily work-order regeneration and a weekly effectiveness
// validation. Tasks run strictly sequentially on the polling goroutine.
type Scheduler struct {
	cfg        config.SchedulerConfig
	automation BatchRunner
	generator  OrderRegenerator
	logger     *slog.Logger
	now        func() time.Time

	mu             sync.Mutex
	state          State
	cancel         context.CancelFunc
	done           chan struct{}
	lastTick       *time.Time
	lastBatch      *time.Time
	lastWorkOrder  *time.Time
	lastValidation *time.Time
}

func New(cfg config.SchedulerConfig, automation BatchRunner, generator OrderRegenerator, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:        cfg,
		automation: automation,
		generator:  generator,
		logger:     logger,
		now:        time.Now,
		state:      StateStopped,
	}
}

// Start launches the polling loop. Starting a running scheduler is an error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		return fmt.Errorf("scheduler already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = StateRunning
	go s.loop(loopCtx, s.done)

	s.logger.Info("scheduler started",
		slog.Duration("poll_interval", s.cfg.PollInterval),
		slog.Int("optimization_hour", s.cfg.OptimizationHour),
		slog.Int("work_order_hour", s.cfg.WorkOrderHour))
	return nil
}

// Stop halts the polling loop and waits for an in-flight task to finish.
// Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
	s.logger.Info("scheduler stopped")
}

// Status reports the current state and last task timestamps.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:          s.state,
		PollInterval:   s.cfg.PollInterval.String(),
		LastTick:       s.lastTick,
		LastBatch:      s.lastBatch,
		LastWorkOrder:  s.lastWorkOrder,
		LastValidation: s.lastValidation,
	}
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick dispatches every task whose schedule slot has been crossed since the
// task last ran. Slots are hour-of-day marks, so a poll interval at or below
// one hour cannot skip a slot.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	s.lastTick = &now
	runBatch := due(s.lastBatch, now, s.cfg.OptimizationHour, -1)
	runOrders := due(s.lastWorkOrder, now, s.cfg.WorkOrderHour, -1)
	runValidation := due(s.lastValidation, now, s.cfg.ValidationHour, s.cfg.ValidationWeekday)
	s.mu.Unlock()

	if runBatch {
		s.runBatch(ctx, now)
	}
	if runOrders {
		s.runWorkOrders(ctx, now)
	}
	if runValidation {
		s.runValidation(ctx, now)
	}
}

// due reports whether the slot at the given hour (optionally restricted to a
// weekday) has passed today without the task having run since.
func due(lastRun *time.Time, now time.Time, hour, weekday int) bool {
	if weekday >= 0 && int(now.Weekday()) != weekday {
		return false
	}
	slot := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if now.Before(slot) {
		return false
	}
	return lastRun == nil || lastRun.Before(slot)
}

func (s *Scheduler) runBatch(ctx context.Context, now time.Time) {
	report, err := s.automation.RunScheduledOptimizations(ctx, models.ParseMethod(s.cfg.Method))
	if err != nil {
		s.logger.Error("scheduled optimization run failed", slog.Any("error", err))
		return
	}
	s.mu.Lock()
	s.lastBatch = &now
	s.mu.Unlock()
	s.logger.Info("scheduled optimization run finished",
		slog.String("run_id", report.RunID),
		slog.Int("analyzed", report.ComponentsAnalyzed),
		slog.Int("applied", report.AdjustmentsApplied))
}

func (s *Scheduler) runWorkOrders(ctx context.Context, now time.Time) {
	report, err := s.generator.Regenerate(ctx)
	if err != nil {
		s.logger.Error("work order regeneration failed", slog.Any("error", err))
		return
	}
	s.mu.Lock()
	s.lastWorkOrder = &now
	s.mu.Unlock()
	s.logger.Info("work order regeneration finished", slog.Int("created", report.Created))
}

func (s *Scheduler) runValidation(ctx context.Context, now time.Time) {
	report, err := s.automation.ValidateEffectiveness(ctx, s.cfg.ValidationDays)
	if err != nil {
		s.logger.Error("effectiveness validation failed", slog.Any("error", err))
		return
	}
	s.mu.Lock()
	s.lastValidation = &now
	s.mu.Unlock()
	s.logger.Info("effectiveness validation finished",
		slog.Int("evaluated", report.Evaluated),
		slog.Int("effective", report.Effective))
}
