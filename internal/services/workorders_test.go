package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/maintstack/maint-opt/internal/models"
	"github.com/maintstack/maint-opt/internal/repo"
)

var generatorNow = time.Date(2026, 7, 20, 2, 0, 0, 0, time.UTC)

func newGeneratorFixture(t *testing.T) (*WorkOrderGenerator, *repo.Memory) {
	t.Helper()
	store := repo.NewMemory()
	store.AddComponent(models.Component{ID: 1, Name: "gearbox", MachineID: 10, DailyUsageHours: 8})
	gen := NewWorkOrderGenerator(store, nil)
	gen.now = func() time.Time { return generatorNow }
	return gen, store
}

func adjustAction(t *testing.T, store *repo.Memory, actionID int64, at time.Time) {
	t.Helper()
	if _, err := store.AdjustActionInterval(context.Background(), actionID, 0, 0, "test adjustment", nil, at); err != nil {
		t.Fatalf("AdjustActionInterval: %v", err)
	}
}

func TestRegenerateCreatesWorkOrderForDayInterval(t *testing.T) {
	gen, store := newGeneratorFixture(t)
	store.AddAction(1, models.MaintenanceAction{ID: 100, Title: "Oil change", Description: "Drain and refill", IntervalDays: 30})
	adjustAction(t, store, 100, generatorNow.AddDate(0, 0, -2))

	report, err := gen.Regenerate(context.Background())
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if report.Created != 1 || len(report.WorkOrderIDs) != 1 {
		t.Fatalf("report = %+v, want one created work order", report)
	}

	wo, ok := store.WorkOrder(report.WorkOrderIDs[0])
	if !ok {
		t.Fatal("created work order not stored")
	}
	if wo.Title != "Oil change - gearbox" {
		t.Errorf("title = %q", wo.Title)
	}
	if !strings.Contains(wo.Reason, "Maintenance ID: 100") {
		t.Errorf("reason missing marker: %q", wo.Reason)
	}
	if wantDue := generatorNow.AddDate(0, 0, 30); !wo.DueDate.Equal(wantDue) {
		t.Errorf("due = %v, want %v", wo.DueDate, wantDue)
	}
	if wo.Status != models.WorkOrderStatusOpen || wo.Source != models.WorkOrderSourceRCM || wo.Type != models.WorkOrderTypePreventive {
		t.Errorf("work order = %+v", wo)
	}
}

func TestRegenerateConvertsHourIntervalByDailyUsage(t *testing.T) {
	gen, store := newGeneratorFixture(t)
	store.AddAction(1, models.MaintenanceAction{ID: 100, Title: "Bearing check", IntervalHours: 400})
	adjustAction(t, store, 100, generatorNow.AddDate(0, 0, -1))

	report, err := gen.Regenerate(context.Background())
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if report.Created != 1 {
		t.Fatalf("report = %+v, want one created work order", report)
	}

	// 400 hours at 8 hours of use per day is 50 calendar days.
	wo, _ := store.WorkOrder(report.WorkOrderIDs[0])
	if wantDue := generatorNow.AddDate(0, 0, 50); !wo.DueDate.Equal(wantDue) {
		t.Errorf("due = %v, want %v", wo.DueDate, wantDue)
	}
}

func TestRegenerateSkipsActionsWithOpenOrders(t *testing.T) {
	gen, store := newGeneratorFixture(t)
	store.AddAction(1, models.MaintenanceAction{ID: 100, Title: "Oil change", IntervalDays: 30})
	adjustAction(t, store, 100, generatorNow.AddDate(0, 0, -2))
	store.AddWorkOrder(models.WorkOrder{
		Title: "Oil change - gearbox", Status: models.WorkOrderStatusOpen, Source: models.WorkOrderSourceRCM,
		Reason: "Generated from RCM maintenance action. Maintenance ID: 100",
	})

	report, err := gen.Regenerate(context.Background())
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if report.Created != 0 {
		t.Fatalf("report = %+v, want nothing created", report)
	}
}

func TestRegenerateIgnoresOldAdjustments(t *testing.T) {
	gen, store := newGeneratorFixture(t)
	store.AddAction(1, models.MaintenanceAction{ID: 100, Title: "Oil change", IntervalDays: 30})
	adjustAction(t, store, 100, generatorNow.AddDate(0, 0, -10))

	report, err := gen.Regenerate(context.Background())
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if report.Created != 0 {
		t.Fatalf("report = %+v, want nothing created for a stale adjustment", report)
	}
}

func TestRegenerateDeduplicatesActions(t *testing.T) {
	gen, store := newGeneratorFixture(t)
	store.AddAction(1, models.MaintenanceAction{ID: 100, Title: "Oil change", IntervalDays: 30})
	adjustAction(t, store, 100, generatorNow.AddDate(0, 0, -3))
	adjustAction(t, store, 100, generatorNow.AddDate(0, 0, -1))

	report, err := gen.Regenerate(context.Background())
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if report.Created != 1 {
		t.Fatalf("report = %+v, want a single work order for repeated adjustments", report)
	}
}
