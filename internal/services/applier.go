package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/maintstack/maint-opt/internal/bus"
	"github.com/maintstack/maint-opt/internal/metrics"
	"github.com/maintstack/maint-opt/internal/models"
)

// ApplierStore defines the storage operations the adjustment applier needs.
type ApplierStore interface {
	GetOptimizationResult(ctx context.Context, id int64) (models.OptimizationResult, error)
	ApplyRecommendation(ctx context.Context, analysisID int64, changes []models.IntervalChange, userID *int64, at time.Time) ([]models.IntervalAdjustment, error)
	AdjustActionInterval(ctx context.Context, actionID int64, hours float64, days int, reason string, userID *int64, at time.Time) (models.IntervalAdjustment, error)
	GetActionContext(ctx context.Context, actionID int64) (models.MaintenanceAction, models.Component, error)
	FetchOpenWorkOrders(ctx context.Context, actionID int64) ([]models.WorkOrder, error)
	UpdateWorkOrder(ctx context.Context, wo models.WorkOrder) error
}

// Applier commits recommended interval changes: one transaction for the
// interval updates and audit rows, then best-effort work-order due-date
// recomputation and event publication.
type Applier struct {
	store     ApplierStore
	publisher bus.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewApplier(store ApplierStore, publisher bus.Publisher, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = bus.Noop{}
	}
	return &Applier{store: store, publisher: publisher, logger: logger, now: time.Now}
}

// ApplyResult loads a persisted recommendation by its analysis ID and applies
// it. A nil actedBy marks the application as automated.
func (a *Applier) ApplyResult(ctx context.Context, analysisID int64, actedBy *int64) (models.ApplicationReport, error) {
	result, err := a.store.GetOptimizationResult(ctx, analysisID)
	if err != nil {
		return models.ApplicationReport{}, err
	}

	var rec models.Recommendation
	if len(result.Recommendation) > 0 {
		if err := json.Unmarshal(result.Recommendation, &rec); err != nil {
			return models.ApplicationReport{}, fmt.Errorf("decode stored recommendation %d: %w", analysisID, err)
		}
	}
	rec.AnalysisID = result.ID
	return a.Apply(ctx, rec, actedBy)
}

// Apply commits every flagged change of the recommendation. The store rejects
// a second apply of the same analysis before anything is mutated.
func (a *Applier) Apply(ctx context.Context, rec models.Recommendation, actedBy *int64) (models.ApplicationReport, error) {
	report := models.ApplicationReport{
		AnalysisID:    rec.AnalysisID,
		ComponentID:   rec.ComponentID,
		ComponentName: rec.ComponentName,
	}

	flagged := rec.FlaggedChanges()
	if !rec.NeedsAdjustment || len(flagged) == 0 {
		report.Message = "no adjustments required"
		return report, nil
	}

	at := a.now()
	adjustments, err := a.store.ApplyRecommendation(ctx, rec.AnalysisID, flagged, actedBy, at)
	if err != nil {
		return models.ApplicationReport{}, err
	}
	metrics.CountAdjustment(actedBy == nil)

	for i, change := range flagged {
		applied := models.AppliedChange{
			ActionID:     change.ActionID,
			ActionTitle:  change.ActionTitle,
			Kind:         change.Kind,
			OldInterval:  change.Current,
			NewInterval:  change.Recommended,
			Reason:       change.Reason,
			AdjustmentID: adjustments[i].ID,
		}
		if change.Kind == models.IntervalKindDays {
			applied.WorkOrders = a.refreshWorkOrders(ctx, change.ActionID, adjustments[i].NewIntervalDays, at)
		}
		report.Changes = append(report.Changes, applied)
	}

	report.Applied = true
	report.Message = fmt.Sprintf("%d maintenance intervals updated", len(flagged))

	a.publish(bus.AdjustmentApplied{
		AnalysisID:  rec.AnalysisID,
		ComponentID: rec.ComponentID,
		Automated:   actedBy == nil,
		Adjustments: adjustments,
		AppliedAt:   at,
	})
	a.logger.Info("recommendation applied",
		slog.Int64("analysis_id", rec.AnalysisID),
		slog.Int64("component_id", rec.ComponentID),
		slog.Int("changes", len(flagged)),
		slog.Bool("automated", actedBy == nil))
	return report, nil
}

// AdjustInterval changes a single maintenance action's interval directly,
// outside any analysis. Exactly one of hours/days must be positive.
func (a *Applier) AdjustInterval(ctx context.Context, actionID int64, hours float64, days int, reason string, actedBy *int64) (models.IntervalAdjustment, error) {
	if (hours > 0) == (days > 0) {
		return models.IntervalAdjustment{}, fmt.Errorf("exactly one of interval hours or days must be set")
	}
	if hours < 0 || days < 0 || math.IsNaN(hours) || math.IsInf(hours, 0) {
		return models.IntervalAdjustment{}, fmt.Errorf("interval must be positive")
	}

	_, component, err := a.store.GetActionContext(ctx, actionID)
	if err != nil {
		return models.IntervalAdjustment{}, err
	}
	if reason == "" {
		reason = "manual interval override"
	}

	at := a.now()
	adjustment, err := a.store.AdjustActionInterval(ctx, actionID, hours, days, reason, actedBy, at)
	if err != nil {
		return models.IntervalAdjustment{}, err
	}
	metrics.CountAdjustment(actedBy == nil)

	if days > 0 {
		a.refreshWorkOrders(ctx, actionID, days, at)
	}

	a.publish(bus.AdjustmentApplied{
		ComponentID: component.ID,
		Automated:   actedBy == nil,
		Adjustments: []models.IntervalAdjustment{adjustment},
		AppliedAt:   at,
	})
	return adjustment, nil
}

// refreshWorkOrders recomputes due dates of the action's open generated work
// orders after a day-interval change. Failures here never roll back the
// committed adjustment; they are logged and skipped.
func (a *Applier) refreshWorkOrders(ctx context.Context, actionID int64, intervalDays int, at time.Time) []models.WorkOrderUpdate {
	if intervalDays <= 0 {
		return nil
	}
	orders, err := a.store.FetchOpenWorkOrders(ctx, actionID)
	if err != nil {
		a.logger.Warn("open work order fetch failed", slog.Int64("action_id", actionID), slog.Any("error", err))
		return nil
	}

	var updates []models.WorkOrderUpdate
	for _, wo := range orders {
		wo.DueDate = wo.CreatedAt.AddDate(0, 0, intervalDays)
		wo.Reason += fmt.Sprintf(" (Interval updated: %s)", at.Format("2006-01-02"))
		if err := a.store.UpdateWorkOrder(ctx, wo); err != nil {
			a.logger.Warn("work order update failed", slog.Int64("work_order_id", wo.ID), slog.Any("error", err))
			continue
		}
		updates = append(updates, models.WorkOrderUpdate{WorkOrderID: wo.ID, Title: wo.Title, NewDueDate: wo.DueDate})
	}
	return updates
}

func (a *Applier) publish(event bus.AdjustmentApplied) {
	if err := a.publisher.PublishAdjustment(event); err != nil {
		a.logger.Warn("adjustment event publish failed", slog.Int64("analysis_id", event.AnalysisID), slog.Any("error", err))
	}
}
