package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maintstack/maint-opt/internal/metrics"
	"github.com/maintstack/maint-opt/internal/models"
	"github.com/maintstack/maint-opt/internal/utils"
)

// minFailures gates both survival fits. Below this the estimate is noise.
const minFailures = 3

// AnalyzerStore is the slice of the store the survival analyzer needs.
type AnalyzerStore interface {
	GetComponent(ctx context.Context, id int64) (models.Component, error)
	FetchFailures(ctx context.Context, componentID int64, start, end time.Time) ([]models.FailureRecord, error)
	FetchMaintenanceEvents(ctx context.Context, componentID int64, start, end time.Time) ([]models.MaintenanceEvent, error)
	SaveAnalysisCache(ctx context.Context, componentID int64, cache models.AnalysisCache) error
}

// Analyzer fits survival models to a component's maintenance history.
type Analyzer struct {
	store  AnalyzerStore
	logger *slog.Logger
	now    func() time.Time
}

func NewAnalyzer(store AnalyzerStore, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{store: store, logger: logger, now: time.Now}
}

// Analyze fits the requested survival model over the look-back window.
// Insufficient data and failed fits are reported in the result's Outcome, not
// as errors; errors are reserved for store failures.
func (a *Analyzer) Analyze(ctx context.Context, componentID int64, lookBackDays int, method models.AnalysisMethod) (models.AnalysisResult, error) {
	started := a.now()
	window := models.TimeRange{Start: started.AddDate(0, 0, -lookBackDays), End: started}

	component, err := a.store.GetComponent(ctx, componentID)
	if err != nil {
		return models.AnalysisResult{}, err
	}
	failures, err := a.store.FetchFailures(ctx, componentID, window.Start, window.End)
	if err != nil {
		return models.AnalysisResult{}, err
	}
	events, err := a.store.FetchMaintenanceEvents(ctx, componentID, window.Start, window.End)
	if err != nil {
		return models.AnalysisResult{}, err
	}

	if method != models.MethodKaplanMeier {
		method = models.MethodWeibull
	}
	result := models.AnalysisResult{
		Method:         method,
		Outcome:        models.OutcomeOK,
		Window:         window,
		FailureCount:   len(failures),
		OperatingHours: component.OperatingHours,
	}

	switch {
	case len(failures) < minFailures:
		result.Outcome = models.OutcomeInsufficientData
		result.Reason = fmt.Sprintf("at least %d failures required for survival analysis, found %d", minFailures, len(failures))
	case method == models.MethodKaplanMeier:
		a.analyzeKaplanMeier(&result, events)
	default:
		a.analyzeWeibull(&result, component, failures, events)
	}

	metrics.ObserveAnalysis(string(result.Method), a.now().Sub(started), metricsOutcome(result.Outcome))

	if result.OK() {
		if err := a.saveCache(ctx, componentID, result); err != nil {
			a.logger.Warn("analysis cache write failed", slog.Int64("component_id", componentID), slog.Any("error", err))
		}
	}
	a.logger.Info("analysis complete",
		slog.Int64("component_id", componentID),
		slog.String("method", string(result.Method)),
		slog.String("outcome", string(result.Outcome)),
		slog.Int("failures", result.FailureCount))
	return result, nil
}

func metricsOutcome(outcome models.AnalysisOutcome) string {
	switch outcome {
	case models.OutcomeInsufficientData:
		return metrics.OutcomeNoData
	case models.OutcomeFitFailure:
		return metrics.OutcomeError
	}
	return metrics.OutcomeSuccess
}

func (a *Analyzer) analyzeWeibull(result *models.AnalysisResult, component models.Component, failures []models.FailureRecord, events []models.MaintenanceEvent) {
	times := failureTimes(component, failures, events, result.Window)
	if len(times) < 2 {
		times = syntheticFailureTimes(component, len(failures), result.Window)
	}

	shape, scale, err := fitWeibull(times)
	if err != nil {
		result.Outcome = models.OutcomeFitFailure
		result.Reason = "maximum likelihood estimation did not converge"
		return
	}

	result.Weibull = &models.WeibullData{
		Shape:                shape,
		Scale:                scale,
		RSquared:             weibullRSquared(times, shape, scale),
		MTBF:                 weibullMTBF(shape, scale),
		FailureTimes:         times,
		ReliabilityIntervals: weibullReliabilityTable(shape, scale),
	}
}

func (a *Analyzer) analyzeKaplanMeier(result *models.AnalysisResult, events []models.MaintenanceEvent) {
	if len(events) == 0 {
		result.Outcome = models.OutcomeInsufficientData
		result.Reason = "no maintenance events in the analysis window"
		return
	}

	observations := buildObservations(events, result.Window)
	if len(observations) == 0 {
		result.Outcome = models.OutcomeInsufficientData
		result.Reason = "no usable survival observations in the analysis window"
		return
	}

	curve := kaplanMeier(observations)
	nFailures := 0
	for _, o := range observations {
		if o.failure {
			nFailures++
		}
	}

	result.KaplanMeier = &models.KaplanMeierData{
		Curve:                curve,
		MedianSurvival:       survivalCrossing(curve, 0.5),
		Events:               len(observations),
		Failures:             nFailures,
		ReliabilityIntervals: kaplanMeierReliabilityTable(curve),
	}
}

// failureTimes derives one time-to-failure per failure: the hours from the
// most recent restorative action before it. Failures with no prior
// restoration fall back through installation date, then the earliest logged
// event, then the window start.
func failureTimes(component models.Component, failures []models.FailureRecord, events []models.MaintenanceEvent, window models.TimeRange) []float64 {
	var times []float64
	for _, failure := range failures {
		reference := failureReference(component, failure, events, window)
		if failure.Timestamp.After(reference) {
			times = append(times, utils.HoursBetween(reference, failure.Timestamp))
		}
	}
	return times
}

func failureReference(component models.Component, failure models.FailureRecord, events []models.MaintenanceEvent, window models.TimeRange) time.Time {
	reference := time.Time{}
	for _, e := range events {
		if !e.Timestamp.Before(failure.Timestamp) {
			break
		}
		if e.IsClockReset() {
			reference = e.Timestamp
		}
	}
	if !reference.IsZero() {
		return reference
	}
	if component.InstallationDate != nil && component.InstallationDate.Before(failure.Timestamp) {
		return *component.InstallationDate
	}
	if len(events) > 0 && events[0].Timestamp.Before(failure.Timestamp) {
		return events[0].Timestamp
	}
	return window.Start
}

// syntheticFailureTimes spreads n failures evenly across the component's
// operating hours when the log yields too few usable intervals to fit.
func syntheticFailureTimes(component models.Component, n int, window models.TimeRange) []float64 {
	total := component.OperatingHours
	if total <= 0 {
		total = utils.HoursBetween(window.Start, window.End)
	}
	times := make([]float64, n)
	for i := 0; i < n; i++ {
		times[i] = total / float64(n+1) * float64(i+1)
	}
	return times
}

func (a *Analyzer) saveCache(ctx context.Context, componentID int64, result models.AnalysisResult) error {
	cache := models.AnalysisCache{UpdatedAt: a.now()}
	switch {
	case result.Weibull != nil:
		shape, scale := result.Weibull.Shape, result.Weibull.Scale
		cache.WeibullShape = &shape
		cache.WeibullScale = &scale
	case result.KaplanMeier != nil:
		cache.MedianSurvival = result.KaplanMeier.MedianSurvival
		cache.SurvivalCurve = result.KaplanMeier.Curve
	}
	return a.store.SaveAnalysisCache(ctx, componentID, cache)
}
