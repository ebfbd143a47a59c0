package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/maintstack/maint-opt/internal/models"
)

// recentAdjustmentWindow bounds which interval changes trigger work-order
// regeneration.
const recentAdjustmentWindow = 7 * 24 * time.Hour

// defaultDailyUsageHours converts hour-based intervals to calendar days when
// the machine has no usage profile.
const defaultDailyUsageHours = 8.0

// WorkOrderStore defines the storage operations of the generator.
type WorkOrderStore interface {
	ListRecentAdjustments(ctx context.Context, since time.Time) ([]models.IntervalAdjustment, error)
	GetActionContext(ctx context.Context, actionID int64) (models.MaintenanceAction, models.Component, error)
	FetchOpenWorkOrders(ctx context.Context, actionID int64) ([]models.WorkOrder, error)
	InsertWorkOrder(ctx context.Context, wo *models.WorkOrder) error
}

// WorkOrderGenerator creates preventive work orders for maintenance actions
// whose intervals changed recently and that have no open generated order.
type WorkOrderGenerator struct {
	store  WorkOrderStore
	logger *slog.Logger
	now    func() time.Time
}

func NewWorkOrderGenerator(store WorkOrderStore, logger *slog.Logger) *WorkOrderGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkOrderGenerator{store: store, logger: logger, now: time.Now}
}

// Regenerate scans the trailing adjustment history and creates one work order
// per adjusted action that lacks an open one. Per-action failures are logged
// and skipped.
func (g *WorkOrderGenerator) Regenerate(ctx context.Context) (models.RegenerationReport, error) {
	now := g.now()
	report := models.RegenerationReport{GeneratedAt: now}

	adjustments, err := g.store.ListRecentAdjustments(ctx, now.Add(-recentAdjustmentWindow))
	if err != nil {
		return report, err
	}

	seen := make(map[int64]bool, len(adjustments))
	for _, adjustment := range adjustments {
		if seen[adjustment.ActionID] {
			continue
		}
		seen[adjustment.ActionID] = true

		wo, err := g.generateOne(ctx, adjustment.ActionID, now)
		if err != nil {
			g.logger.Warn("work order generation failed", slog.Int64("action_id", adjustment.ActionID), slog.Any("error", err))
			continue
		}
		if wo != nil {
			report.Created++
			report.WorkOrderIDs = append(report.WorkOrderIDs, wo.ID)
		}
	}

	g.logger.Info("work order regeneration complete",
		slog.Int("recent_adjustments", len(adjustments)),
		slog.Int("created", report.Created))
	return report, nil
}

func (g *WorkOrderGenerator) generateOne(ctx context.Context, actionID int64, now time.Time) (*models.WorkOrder, error) {
	action, component, err := g.store.GetActionContext(ctx, actionID)
	if err != nil {
		return nil, err
	}

	open, err := g.store.FetchOpenWorkOrders(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if len(open) > 0 {
		return nil, nil
	}

	wo := &models.WorkOrder{
		Title:       fmt.Sprintf("%s - %s", action.Title, component.Name),
		Description: action.Description,
		MachineID:   component.MachineID,
		ComponentID: component.ID,
		CreatedAt:   now,
		DueDate:     now.AddDate(0, 0, dueInDays(action, component)),
		Status:      models.WorkOrderStatusOpen,
		Priority:    models.WorkOrderPriorityNormal,
		Type:        models.WorkOrderTypePreventive,
		Category:    models.WorkOrderCategoryRCM,
		Reason:      fmt.Sprintf("Generated from RCM maintenance action. Maintenance ID: %d", action.ID),
		Source:      models.WorkOrderSourceRCM,
	}
	if err := g.store.InsertWorkOrder(ctx, wo); err != nil {
		return nil, err
	}
	return wo, nil
}

// dueInDays converts the action's interval to calendar days. Hour intervals
// are divided by the machine's daily usage.
func dueInDays(action models.MaintenanceAction, component models.Component) int {
	switch action.IntervalKind() {
	case models.IntervalKindDays:
		return action.IntervalDays
	case models.IntervalKindHours:
		usage := component.DailyUsageHours
		if usage <= 0 {
			usage = defaultDailyUsageHours
		}
		days := int(math.Ceil(action.IntervalHours / usage))
		if days < 1 {
			days = 1
		}
		return days
	}
	return 30
}
