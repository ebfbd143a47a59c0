package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/maintstack/maint-opt/internal/models"
)

// Default absolute bounds applied when a component's settings carry none.
const (
	defaultMinIntervalHours = 8.0
	defaultMaxIntervalHours = 10000.0
	defaultMinIntervalDays  = 1
	defaultMaxIntervalDays  = 365
)

// OptimizerStore is the slice of the store the optimizer needs.
type OptimizerStore interface {
	GetComponent(ctx context.Context, id int64) (models.Component, error)
	FetchMaintenanceActions(ctx context.Context, componentID int64) ([]models.MaintenanceAction, error)
	FetchSettings(ctx context.Context, componentID int64) (*models.OptimizationSettings, error)
	CountMaintenanceEvents(ctx context.Context, componentID int64, start, end time.Time, includeDeviations bool) (int, error)
	InsertOptimizationResult(ctx context.Context, result *models.OptimizationResult) error
}

// SurvivalAnalyzer is the analysis dependency of the optimizer.
type SurvivalAnalyzer interface {
	Analyze(ctx context.Context, componentID int64, lookBackDays int, method models.AnalysisMethod) (models.AnalysisResult, error)
}

// Optimizer turns survival analysis into interval recommendations and
// persists one immutable snapshot per run.
type Optimizer struct {
	store    OptimizerStore
	analyzer SurvivalAnalyzer
	logger   *slog.Logger
	now      func() time.Time
}

func NewOptimizer(store OptimizerStore, analyzer SurvivalAnalyzer, logger *slog.Logger) *Optimizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Optimizer{store: store, analyzer: analyzer, logger: logger, now: time.Now}
}

// Optimize analyzes the component and recommends an interval per maintenance
// action. Components without maintenance actions return a neutral
// recommendation before any analysis runs. Every analyzed run persists an
// OptimizationResult snapshot, including runs with insufficient data; the
// snapshot's ID is stamped on the returned recommendation.
func (o *Optimizer) Optimize(ctx context.Context, componentID int64, lookBackDays int, method models.AnalysisMethod) (models.Recommendation, error) {
	component, err := o.store.GetComponent(ctx, componentID)
	if err != nil {
		return models.Recommendation{}, err
	}

	actions, err := o.store.FetchMaintenanceActions(ctx, componentID)
	if err != nil {
		return models.Recommendation{}, err
	}
	if len(actions) == 0 {
		o.logger.Info("nothing to optimize", slog.Int64("component_id", componentID))
		return models.Recommendation{
			ComponentID:   componentID,
			ComponentName: component.Name,
			MachineID:     component.MachineID,
			MachineName:   component.MachineName,
			Reason:        "no maintenance actions to optimize",
			GeneratedAt:   o.now(),
		}, nil
	}

	settings := models.DefaultSettings(componentID)
	if stored, err := o.store.FetchSettings(ctx, componentID); err != nil {
		return models.Recommendation{}, err
	} else if stored != nil {
		settings = *stored
	}
	if method == "" {
		method = settings.Method
	}

	analysis, err := o.analyzer.Analyze(ctx, componentID, lookBackDays, method)
	if err != nil {
		return models.Recommendation{}, err
	}

	maintenanceCount, err := o.store.CountMaintenanceEvents(ctx, componentID, analysis.Window.Start, analysis.Window.End, true)
	if err != nil {
		return models.Recommendation{}, err
	}

	rec := models.Recommendation{
		ComponentID:   componentID,
		ComponentName: component.Name,
		MachineID:     component.MachineID,
		MachineName:   component.MachineName,
		Analysis:      summarize(analysis, maintenanceCount),
		GeneratedAt:   o.now(),
	}

	if !analysis.OK() {
		rec.Reason = analysis.Reason
	} else {
		rec.Confidence = confidence(analysis)
		criticality := component.CriticalityOrDefault()
		for _, action := range actions {
			if action.IntervalKind() == models.IntervalKindNone {
				continue
			}
			change := o.recommendChange(action, analysis, settings, criticality)
			change.Confidence = rec.Confidence
			rec.Changes = append(rec.Changes, change)
		}
		flagged := len(rec.FlaggedChanges())
		rec.NeedsAdjustment = flagged > 0
		switch {
		case rec.NeedsAdjustment:
			rec.Reason = fmt.Sprintf("%d of %d maintenance intervals flagged for adjustment", flagged, len(rec.Changes))
		case len(rec.Changes) == 0:
			rec.Reason = "no maintenance actions with intervals to optimize"
		default:
			rec.Reason = "all maintenance intervals within tolerance"
		}
	}

	result := snapshotResult(componentID, analysis, maintenanceCount, rec)
	if err := o.store.InsertOptimizationResult(ctx, result); err != nil {
		return models.Recommendation{}, err
	}
	rec.AnalysisID = result.ID

	o.logger.Info("optimization complete",
		slog.Int64("component_id", componentID),
		slog.Int64("analysis_id", rec.AnalysisID),
		slog.Bool("needs_adjustment", rec.NeedsAdjustment),
		slog.Float64("confidence", rec.Confidence))
	return rec, nil
}

// recommendChange produces the verdict for one action. All arithmetic runs in
// the hour domain; day-based intervals are converted back and clamped in
// their native unit.
func (o *Optimizer) recommendChange(action models.MaintenanceAction, analysis models.AnalysisResult, settings models.OptimizationSettings, criticality int) models.IntervalChange {
	kind := action.IntervalKind()
	currentHours := action.IntervalHours
	if kind == models.IntervalKindDays {
		currentHours = float64(action.IntervalDays) * 24
	}

	optimalHours, reason := proposeHours(currentHours, analysis, settings, criticality)

	change := models.IntervalChange{
		ActionID:    action.ID,
		ActionTitle: action.Title,
		Kind:        kind,
		Reason:      reason,
	}

	// Significance is judged on the raw proposal. The clamps below only bound
	// how far a significant change may move.
	ratio := 1.0
	if currentHours > 0 {
		ratio = optimalHours / currentHours
	}
	change.NeedsAdjustment = ratio < 0.9 || ratio > 1.1

	recommendedHours := clampChange(optimalHours, currentHours, settings)
	if kind == models.IntervalKindDays {
		minDays, maxDays := dayBounds(settings)
		days := clampInt(int(math.Round(recommendedHours/24)), minDays, maxDays)
		change.Current = float64(action.IntervalDays)
		change.Recommended = float64(days)
	} else {
		minHours, maxHours := hourBounds(settings)
		change.Current = action.IntervalHours
		change.Recommended = math.Round(clampFloat(recommendedHours, minHours, maxHours))
	}

	if !change.NeedsAdjustment {
		change.Reason = fmt.Sprintf("proposed interval within tolerance of the current one (ratio %.2f)", ratio)
	}
	return change
}

// proposeHours picks the raw recommendation before any clamping.
func proposeHours(currentHours float64, analysis models.AnalysisResult, settings models.OptimizationSettings, criticality int) (float64, string) {
	if analysis.Weibull != nil {
		w := analysis.Weibull
		switch {
		case w.Shape < 0.9:
			return currentHours * 0.7, fmt.Sprintf("early-failure pattern (shape %.2f), shortening interval", w.Shape)
		case w.Shape <= 1.1:
			if criticality > 7 {
				return currentHours * 0.9, "random failure pattern on high-criticality equipment, tightening interval"
			}
			return currentHours, "random failure pattern, time-based interval has no effect on failure probability"
		default:
			target := weibullReliabilityInterval(w.Shape, w.Scale, settings.ReliabilityTarget)
			adjusted := target * (1 - float64(criticality)/20)
			return adjusted, fmt.Sprintf("wear-out pattern (shape %.2f), aligned to %.0f%% reliability target", w.Shape, settings.ReliabilityTarget*100)
		}
	}

	km := analysis.KaplanMeier
	if t, ok := km.ReliabilityIntervals.At(settings.ReliabilityTarget); ok {
		return t, fmt.Sprintf("survival curve crosses %.0f%% reliability target", settings.ReliabilityTarget*100)
	}
	if km.MedianSurvival != nil {
		factor := 0.75
		if criticality > 7 {
			factor = 0.8
		}
		return *km.MedianSurvival * factor, "interval derived from median survival time"
	}
	return currentHours, "survival curve never reaches the reliability target"
}

// clampChange bounds a single recommendation's relative movement.
func clampChange(recommended, current float64, settings models.OptimizationSettings) float64 {
	if current <= 0 {
		return recommended
	}
	if maxUp := current * (1 + settings.MaxIncrease); recommended > maxUp {
		return maxUp
	}
	if maxDown := current * (1 - settings.MaxDecrease); recommended < maxDown {
		return maxDown
	}
	return recommended
}

func hourBounds(settings models.OptimizationSettings) (float64, float64) {
	minHours, maxHours := defaultMinIntervalHours, defaultMaxIntervalHours
	if settings.MinIntervalHours > 0 {
		minHours = settings.MinIntervalHours
	}
	if settings.MaxIntervalHours > 0 {
		maxHours = settings.MaxIntervalHours
	}
	return minHours, maxHours
}

func dayBounds(settings models.OptimizationSettings) (int, int) {
	minDays, maxDays := defaultMinIntervalDays, defaultMaxIntervalDays
	if settings.MinIntervalDays > 0 {
		minDays = settings.MinIntervalDays
	}
	if settings.MaxIntervalDays > 0 {
		maxDays = settings.MaxIntervalDays
	}
	return minDays, maxDays
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// confidence scores a fitted analysis by fit quality and sample size.
func confidence(analysis models.AnalysisResult) float64 {
	if w := analysis.Weibull; w != nil {
		switch {
		case w.RSquared > 0.9 && analysis.FailureCount >= 5:
			return 0.90
		case w.RSquared > 0.7 && analysis.FailureCount >= 3:
			return 0.75
		default:
			return 0.60
		}
	}
	km := analysis.KaplanMeier
	switch {
	case km.Failures >= 5 && km.Events >= 10:
		return 0.85
	case km.Failures >= 3 && km.Events >= 5:
		return 0.70
	default:
		return 0.50
	}
}

func summarize(analysis models.AnalysisResult, maintenanceCount int) models.AnalysisSummary {
	summary := models.AnalysisSummary{
		Method:               analysis.Method,
		FailureCount:         analysis.FailureCount,
		MaintenanceCount:     maintenanceCount,
		OperatingHours:       analysis.OperatingHours,
		ReliabilityIntervals: analysis.ReliabilityIntervals(),
	}
	if w := analysis.Weibull; w != nil {
		shape, scale, r2, mtbf := w.Shape, w.Scale, w.RSquared, w.MTBF
		summary.WeibullShape = &shape
		summary.WeibullScale = &scale
		summary.RSquared = &r2
		summary.MTBF = &mtbf
	}
	if km := analysis.KaplanMeier; km != nil {
		summary.MedianSurvival = km.MedianSurvival
		summary.Events = km.Events
	}
	return summary
}

func snapshotResult(componentID int64, analysis models.AnalysisResult, maintenanceCount int, rec models.Recommendation) *models.OptimizationResult {
	result := &models.OptimizationResult{
		ComponentID:      componentID,
		Method:           analysis.Method,
		AnalyzedAt:       rec.GeneratedAt,
		WindowStart:      analysis.Window.Start,
		WindowEnd:        analysis.Window.End,
		FailureCount:     analysis.FailureCount,
		MaintenanceCount: maintenanceCount,
		OperatingHours:   analysis.OperatingHours,
		NeedsAdjustment:  rec.NeedsAdjustment,
		Confidence:       rec.Confidence,
	}
	if w := analysis.Weibull; w != nil {
		shape, scale, r2, mtbf := w.Shape, w.Scale, w.RSquared, w.MTBF
		result.WeibullShape = &shape
		result.WeibullScale = &scale
		result.WeibullRSquared = &r2
		result.MTBF = &mtbf
	}
	if km := analysis.KaplanMeier; km != nil {
		result.MedianSurvival = km.MedianSurvival
	}
	if payload, err := json.Marshal(rec); err == nil {
		result.Recommendation = payload
	}
	return result
}
