package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/maintstack/maint-opt/internal/metrics"
	"github.com/maintstack/maint-opt/internal/models"
	"github.com/maintstack/maint-opt/internal/utils"
)

// staleResultAge re-enrolls components whose last analysis is older than
// this, even when automatic adjustment is off.
const staleResultAge = 30 * 24 * time.Hour

// AutomationStore defines the storage operations of the automation
// controller.
type AutomationStore interface {
	GetComponent(ctx context.Context, id int64) (models.Component, error)
	FetchSettings(ctx context.Context, componentID int64) (*models.OptimizationSettings, error)
	ListAutoAdjustComponents(ctx context.Context) ([]int64, error)
	ListComponentsWithoutRecentResult(ctx context.Context, cutoff time.Time) ([]int64, error)
	ListAppliedResults(ctx context.Context, since time.Time) ([]models.OptimizationResult, error)
	CountFailures(ctx context.Context, componentID int64, start, end time.Time) (int, error)
	CountMaintenanceEvents(ctx context.Context, componentID int64, start, end time.Time, includeDeviations bool) (int, error)
}

// RecommendationEngine is the optimizer dependency of the controller.
type RecommendationEngine interface {
	Optimize(ctx context.Context, componentID int64, lookBackDays int, method models.AnalysisMethod) (models.Recommendation, error)
}

// RecommendationApplier commits a recommendation's changes.
type RecommendationApplier interface {
	Apply(ctx context.Context, rec models.Recommendation, actedBy *int64) (models.ApplicationReport, error)
}

// Automation runs fleet-wide optimization batches and retrospective
// effectiveness validation.
type Automation struct {
	store        AutomationStore
	optimizer    RecommendationEngine
	applier      RecommendationApplier
	logger       *slog.Logger
	lookBackDays int
	latencies    *utils.LatencyTracker
	now          func() time.Time
}

func NewAutomation(store AutomationStore, optimizer RecommendationEngine, applier RecommendationApplier, lookBackDays int, logger *slog.Logger) *Automation {
	if logger == nil {
		logger = slog.Default()
	}
	return &Automation{
		store:        store,
		optimizer:    optimizer,
		applier:      applier,
		logger:       logger,
		lookBackDays: lookBackDays,
		latencies:    utils.NewLatencyTracker(1024),
		now:          time.Now,
	}
}

// RunScheduledOptimizations analyzes every candidate component and applies
// recommendations where the component's policy allows it unattended. One
// failing component never aborts the batch.
func (c *Automation) RunScheduledOptimizations(ctx context.Context, method models.AnalysisMethod) (models.BatchReport, error) {
	started := c.now()
	report := models.BatchReport{
		RunID:     uuid.NewString(),
		StartedAt: started,
		Method:    method,
	}

	candidates, err := c.candidates(ctx, started)
	if err != nil {
		return report, err
	}

	for _, componentID := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		entry := c.runOne(ctx, componentID, method)
		if entry.Error != "" {
			report.Errors++
		} else {
			report.ComponentsAnalyzed++
			if entry.Recommendation != nil && entry.Recommendation.NeedsAdjustment {
				report.AdjustmentsNeeded++
			}
			if entry.Applied {
				report.AdjustmentsApplied++
			}
		}
		report.Entries = append(report.Entries, entry)
	}

	duration := c.now().Sub(started)
	metrics.ObserveBatch(duration, len(candidates))
	c.logger.Info("scheduled optimization run complete",
		slog.String("run_id", report.RunID),
		slog.Int("candidates", len(candidates)),
		slog.Int("analyzed", report.ComponentsAnalyzed),
		slog.Int("applied", report.AdjustmentsApplied),
		slog.Int("errors", report.Errors),
		slog.Duration("duration", duration))
	return report, nil
}

// candidates is the union of auto-adjust components and components with no
// recent analysis, deduplicated and ordered.
func (c *Automation) candidates(ctx context.Context, now time.Time) ([]int64, error) {
	auto, err := c.store.ListAutoAdjustComponents(ctx)
	if err != nil {
		return nil, err
	}
	stale, err := c.store.ListComponentsWithoutRecentResult(ctx, now.Add(-staleResultAge))
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(auto)+len(stale))
	var ids []int64
	for _, id := range append(auto, stale...) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// runOne optimizes a single component, containing both errors and panics in
// the returned entry.
func (c *Automation) runOne(ctx context.Context, componentID int64, method models.AnalysisMethod) (entry models.BatchEntry) {
	entry.ComponentID = componentID
	defer func() {
		if r := recover(); r != nil {
			entry.Error = fmt.Sprintf("panic: %v", r)
			c.logger.Error("component optimization panicked", slog.Int64("component_id", componentID), slog.Any("panic", r))
		}
	}()

	componentStart := c.now()
	rec, err := c.optimizer.Optimize(ctx, componentID, c.lookBackDays, method)
	if err != nil {
		entry.Error = err.Error()
		c.logger.Error("component optimization failed", slog.Int64("component_id", componentID), slog.Any("error", err))
		return entry
	}
	c.latencies.Observe(c.now().Sub(componentStart))
	if count := c.latencies.Count(); count >= 20 && count%20 == 0 {
		c.logger.Info("optimization latency", slog.Duration("p95", c.latencies.Percentile(95)), slog.Int("samples", count))
	}

	entry.ComponentName = rec.ComponentName
	entry.Recommendation = &rec
	if !rec.NeedsAdjustment {
		return entry
	}

	settings := models.DefaultSettings(componentID)
	if stored, err := c.store.FetchSettings(ctx, componentID); err != nil {
		entry.Error = err.Error()
		return entry
	} else if stored != nil {
		settings = *stored
	}

	switch {
	case !settings.AutoAdjustEnabled:
		entry.PendingReason = "automatic adjustment disabled"
	case settings.RequireApproval && rec.Confidence < settings.MinConfidence:
		entry.PendingReason = fmt.Sprintf("confidence %.2f below approval threshold %.2f", rec.Confidence, settings.MinConfidence)
	default:
		if _, err := c.applier.Apply(ctx, rec, nil); err != nil {
			entry.Error = fmt.Sprintf("apply failed: %v", err)
			return entry
		}
		entry.Applied = true
		entry.Automatic = true
	}
	return entry
}

// ValidateEffectiveness compares failure and maintenance rates before and
// after each adjustment applied in the trailing window, over windows of equal
// length.
func (c *Automation) ValidateEffectiveness(ctx context.Context, days int) (models.ValidationReport, error) {
	now := c.now()
	report := models.ValidationReport{
		RunID:       uuid.NewString(),
		GeneratedAt: now,
		WindowDays:  days,
	}

	results, err := c.store.ListAppliedResults(ctx, now.AddDate(0, 0, -days))
	if err != nil {
		return report, err
	}

	for _, result := range results {
		if result.AppliedAt == nil {
			continue
		}
		entry := c.validateOne(ctx, result, now)
		if entry.Error == "" {
			report.Evaluated++
			if entry.Effective {
				report.Effective++
			}
		}
		report.Entries = append(report.Entries, entry)
	}
	if report.Evaluated > 0 {
		report.EffectivenessRate = float64(report.Effective) / float64(report.Evaluated)
	}

	c.logger.Info("effectiveness validation complete",
		slog.String("run_id", report.RunID),
		slog.Int("evaluated", report.Evaluated),
		slog.Int("effective", report.Effective))
	return report, nil
}

func (c *Automation) validateOne(ctx context.Context, result models.OptimizationResult, now time.Time) models.ValidationEntry {
	appliedAt := *result.AppliedAt
	entry := models.ValidationEntry{
		OptimizationID: result.ID,
		ComponentID:    result.ComponentID,
		AppliedAt:      appliedAt,
	}

	if component, err := c.store.GetComponent(ctx, result.ComponentID); err == nil {
		entry.ComponentName = component.Name
	}

	var rec models.Recommendation
	if len(result.Recommendation) > 0 {
		if err := json.Unmarshal(result.Recommendation, &rec); err == nil {
			entry.Direction = rec.Direction()
		}
	}

	// The observation period after the change dictates an equally long period
	// before it, so the rates are comparable.
	after := utils.DaysBetween(appliedAt, now)
	before := appliedAt.AddDate(0, 0, -after)
	entry.DaysBefore, entry.DaysAfter = after, after

	var err error
	if entry.FailuresBefore, err = c.store.CountFailures(ctx, result.ComponentID, before, appliedAt); err != nil {
		entry.Error = err.Error()
		return entry
	}
	if entry.FailuresAfter, err = c.store.CountFailures(ctx, result.ComponentID, appliedAt, now); err != nil {
		entry.Error = err.Error()
		return entry
	}
	if entry.MaintenanceBefore, err = c.store.CountMaintenanceEvents(ctx, result.ComponentID, before, appliedAt, false); err != nil {
		entry.Error = err.Error()
		return entry
	}
	if entry.MaintenanceAfter, err = c.store.CountMaintenanceEvents(ctx, result.ComponentID, appliedAt, now, false); err != nil {
		entry.Error = err.Error()
		return entry
	}

	span := float64(after)
	entry.FailureRateBefore = float64(entry.FailuresBefore) / span
	entry.FailureRateAfter = float64(entry.FailuresAfter) / span
	entry.MaintenanceRateBefore = float64(entry.MaintenanceBefore) / span
	entry.MaintenanceRateAfter = float64(entry.MaintenanceAfter) / span
	entry.FailureReduction = reduction(entry.FailureRateBefore, entry.FailureRateAfter)
	entry.MaintenanceReduction = reduction(entry.MaintenanceRateBefore, entry.MaintenanceRateAfter)

	switch entry.Direction {
	case "increase":
		// A longer interval is effective when maintenance load drops without
		// failures climbing more than 20%.
		entry.Effective = entry.MaintenanceReduction > 0.10 &&
			entry.FailureRateAfter <= entry.FailureRateBefore*1.2
	case "decrease":
		entry.Effective = entry.FailureReduction > 0.20
	}
	return entry
}

func reduction(before, after float64) float64 {
	if before <= 0 {
		return 0
	}
	return (before - after) / before
}

// FailureRate summarises a component's failure rate over the window,
// normalised per 1000 operating hours.
func (c *Automation) FailureRate(ctx context.Context, componentID int64, days int) (models.FailureRateSummary, error) {
	now := c.now()
	component, err := c.store.GetComponent(ctx, componentID)
	if err != nil {
		return models.FailureRateSummary{}, err
	}
	count, err := c.store.CountFailures(ctx, componentID, now.AddDate(0, 0, -days), now)
	if err != nil {
		return models.FailureRateSummary{}, err
	}

	summary := models.FailureRateSummary{
		ComponentID:    componentID,
		ComponentName:  component.Name,
		WindowDays:     days,
		FailureCount:   count,
		OperatingHours: component.OperatingHours,
	}
	if component.OperatingHours > 0 {
		summary.RatePer1000h = float64(count) / component.OperatingHours * 1000
	}
	return summary, nil
}
