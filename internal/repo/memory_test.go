package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maintstack/maint-opt/internal/models"
)

func seedApplyFixture(t *testing.T) (*Memory, int64) {
	t.Helper()
	store := NewMemory()
	store.AddComponent(models.Component{ID: 1, Name: "hydraulic pump", MachineID: 10})
	store.AddAction(1, models.MaintenanceAction{ID: 100, Title: "Replace seals", IntervalHours: 500})
	store.AddAction(1, models.MaintenanceAction{ID: 101, Title: "Inspect housing", IntervalDays: 30})

	result := &models.OptimizationResult{ComponentID: 1, Method: models.MethodWeibull, AnalyzedAt: time.Now(), NeedsAdjustment: true}
	if err := store.InsertOptimizationResult(context.Background(), result); err != nil {
		t.Fatalf("InsertOptimizationResult: %v", err)
	}
	return store, result.ID
}

func TestApplyRecommendationUpdatesActionsAndAudit(t *testing.T) {
	store, analysisID := seedApplyFixture(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	userID := int64(7)

	changes := []models.IntervalChange{
		{ActionID: 100, Kind: models.IntervalKindHours, Current: 500, Recommended: 420, Reason: "wear-out pattern"},
		{ActionID: 101, Kind: models.IntervalKindDays, Current: 30, Recommended: 24.6, Reason: "wear-out pattern"},
	}

	adjustments, err := store.ApplyRecommendation(context.Background(), analysisID, changes, &userID, at)
	if err != nil {
		t.Fatalf("ApplyRecommendation: %v", err)
	}
	if len(adjustments) != 2 {
		t.Fatalf("expected 2 adjustments, got %d", len(adjustments))
	}

	action, _ := store.Action(100)
	if action.IntervalHours != 420 {
		t.Errorf("action 100 interval_hours = %v, want 420", action.IntervalHours)
	}
	action, _ = store.Action(101)
	if action.IntervalDays != 25 {
		t.Errorf("action 101 interval_days = %d, want 25 (rounded)", action.IntervalDays)
	}

	first := adjustments[0]
	if first.OldIntervalHours != 500 || first.NewIntervalHours != 420 {
		t.Errorf("audit hours = %v -> %v, want 500 -> 420", first.OldIntervalHours, first.NewIntervalHours)
	}
	if first.UserID == nil || *first.UserID != userID || first.Automated {
		t.Errorf("user-driven adjustment recorded as automated: %+v", first)
	}

	result, err := store.GetOptimizationResult(context.Background(), analysisID)
	if err != nil {
		t.Fatalf("GetOptimizationResult: %v", err)
	}
	if !result.Applied || result.AppliedAt == nil || !result.AppliedAt.Equal(at) {
		t.Errorf("result not marked applied at %v: %+v", at, result)
	}

	recent, err := store.ListRecentAdjustments(context.Background(), at.Add(-time.Hour))
	if err != nil {
		t.Fatalf("ListRecentAdjustments: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("expected 2 recent adjustments, got %d", len(recent))
	}
}

func TestApplyRecommendationRejectsSecondApply(t *testing.T) {
	store, analysisID := seedApplyFixture(t)
	changes := []models.IntervalChange{{ActionID: 100, Kind: models.IntervalKindHours, Recommended: 400}}

	if _, err := store.ApplyRecommendation(context.Background(), analysisID, changes, nil, time.Now()); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	_, err := store.ApplyRecommendation(context.Background(), analysisID, changes, nil, time.Now())
	if !errors.Is(err, ErrAlreadyApplied) {
		t.Fatalf("second apply error = %v, want ErrAlreadyApplied", err)
	}
}

func TestApplyRecommendationUnknownActionLeavesStoreUntouched(t *testing.T) {
	store, analysisID := seedApplyFixture(t)
	changes := []models.IntervalChange{
		{ActionID: 100, Kind: models.IntervalKindHours, Recommended: 400},
		{ActionID: 999, Kind: models.IntervalKindHours, Recommended: 400},
	}

	_, err := store.ApplyRecommendation(context.Background(), analysisID, changes, nil, time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}

	action, _ := store.Action(100)
	if action.IntervalHours != 500 {
		t.Errorf("action 100 mutated despite failed batch: %v", action.IntervalHours)
	}
	result, _ := store.GetOptimizationResult(context.Background(), analysisID)
	if result.Applied {
		t.Error("result marked applied despite failed batch")
	}
}

func TestFetchOpenWorkOrdersMatchesMarker(t *testing.T) {
	store := NewMemory()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	match := store.AddWorkOrder(models.WorkOrder{
		Title: "Replace seals - hydraulic pump", MachineID: 10, CreatedAt: base, DueDate: base.AddDate(0, 0, 30),
		Status: models.WorkOrderStatusOpen, Source: models.WorkOrderSourceRCM,
		Reason: "Generated from RCM maintenance action. Maintenance ID: 100",
	})
	store.AddWorkOrder(models.WorkOrder{
		Title: "Other action", Status: models.WorkOrderStatusOpen, Source: models.WorkOrderSourceRCM,
		Reason: "Generated from RCM maintenance action. Maintenance ID: 101",
	})
	store.AddWorkOrder(models.WorkOrder{
		Title: "Closed one", Status: "completed", Source: models.WorkOrderSourceRCM,
		Reason: "Generated from RCM maintenance action. Maintenance ID: 100",
	})
	store.AddWorkOrder(models.WorkOrder{
		Title: "Manual one", Status: models.WorkOrderStatusOpen, Source: "manual",
		Reason: "Maintenance ID: 100",
	})

	orders, err := store.FetchOpenWorkOrders(context.Background(), 100)
	if err != nil {
		t.Fatalf("FetchOpenWorkOrders: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != match.ID {
		t.Fatalf("expected only work order %d, got %+v", match.ID, orders)
	}
}

func TestCountMaintenanceEventsDeviationFilter(t *testing.T) {
	store := NewMemory()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.AddComponent(models.Component{ID: 1})
	store.AddEvent(models.MaintenanceEvent{ID: 1, ComponentID: 1, Timestamp: base.AddDate(0, 0, 1), Category: models.CategoryInspection})
	store.AddEvent(models.MaintenanceEvent{ID: 2, ComponentID: 1, Timestamp: base.AddDate(0, 0, 2), Category: models.CategoryRepair, Deviation: true})
	store.AddEvent(models.MaintenanceEvent{ID: 3, ComponentID: 1, Timestamp: base.AddDate(0, 0, 3), Category: models.CategoryRepair})

	end := base.AddDate(0, 1, 0)
	withDeviations, err := store.CountMaintenanceEvents(context.Background(), 1, base, end, true)
	if err != nil {
		t.Fatalf("CountMaintenanceEvents: %v", err)
	}
	withoutDeviations, err := store.CountMaintenanceEvents(context.Background(), 1, base, end, false)
	if err != nil {
		t.Fatalf("CountMaintenanceEvents: %v", err)
	}
	if withDeviations != 3 || withoutDeviations != 2 {
		t.Errorf("counts = %d/%d, want 3/2", withDeviations, withoutDeviations)
	}
}

func TestListComponentsWithoutRecentResult(t *testing.T) {
	store := NewMemory()
	store.AddComponent(models.Component{ID: 1})
	store.AddComponent(models.Component{ID: 2})

	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	fresh := &models.OptimizationResult{ComponentID: 1, AnalyzedAt: cutoff.AddDate(0, 0, 5)}
	stale := &models.OptimizationResult{ComponentID: 2, AnalyzedAt: cutoff.AddDate(0, 0, -5)}
	for _, r := range []*models.OptimizationResult{fresh, stale} {
		if err := store.InsertOptimizationResult(context.Background(), r); err != nil {
			t.Fatalf("InsertOptimizationResult: %v", err)
		}
	}

	ids, err := store.ListComponentsWithoutRecentResult(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ListComponentsWithoutRecentResult: %v", err)
	}
	if len(ids) != 1 || ids[0] != 2 {
		t.Fatalf("ids = %v, want [2]", ids)
	}
}
