package models

import "time"

// AnalysisMethod selects the survival model fitted to a component's history.
type AnalysisMethod string

const (
	MethodWeibull     AnalysisMethod = "weibull"
	MethodKaplanMeier AnalysisMethod = "kaplan_meier"
)

// ParseMethod normalises a method string, defaulting to Weibull.
func ParseMethod(s string) AnalysisMethod {
	if AnalysisMethod(s) == MethodKaplanMeier {
		return MethodKaplanMeier
	}
	return MethodWeibull
}

// AnalysisOutcome classifies an analysis run. Insufficient data and fit
// failures are expected results, not errors.
type AnalysisOutcome string

const (
	OutcomeOK               AnalysisOutcome = "ok"
	OutcomeInsufficientData AnalysisOutcome = "insufficient_data"
	OutcomeFitFailure       AnalysisOutcome = "fit_failure"
)

// TimeRange bounds the look-back window of an analysis.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ReliabilityTargets are the survival probabilities for which every analysis
// derives an interval, keyed in the table by whole percent.
var ReliabilityTargets = []float64{0.99, 0.95, 0.90, 0.85, 0.80}

// ReliabilityTable maps a reliability target (as whole percent, e.g. 90) to
// the interval in hours at which survival probability crosses that target.
type ReliabilityTable map[int]float64

// At looks up the interval for a fractional target such as 0.90.
func (t ReliabilityTable) At(target float64) (float64, bool) {
	v, ok := t[int(target*100+0.5)]
	return v, ok
}

// SurvivalPoint is one (time, survival probability) sample of a Kaplan-Meier
// curve.
type SurvivalPoint struct {
	T float64 `json:"t"`
	S float64 `json:"s"`
}

// WeibullData carries the parametric fit of a Weibull analysis.
type WeibullData struct {
	Shape                float64          `json:"shape"`
	Scale                float64          `json:"scale"`
	RSquared             float64          `json:"r_squared"`
	MTBF                 float64          `json:"mtbf"`
	FailureTimes         []float64        `json:"failure_times"`
	ReliabilityIntervals ReliabilityTable `json:"reliability_intervals"`
}

// KaplanMeierData carries the non-parametric estimate of a Kaplan-Meier
// analysis. MedianSurvival is nil when the curve never drops to 0.5.
type KaplanMeierData struct {
	Curve                []SurvivalPoint  `json:"survival_curve"`
	MedianSurvival       *float64         `json:"median_survival,omitempty"`
	Events               int              `json:"n_events"`
	Failures             int              `json:"n_failures"`
	ReliabilityIntervals ReliabilityTable `json:"reliability_intervals"`
}

// AnalysisResult is the sum-typed output of the survival analyzer: exactly one
// of Weibull/KaplanMeier is set when Outcome is OK.
type AnalysisResult struct {
	Method         AnalysisMethod   `json:"method"`
	Outcome        AnalysisOutcome  `json:"outcome"`
	Reason         string           `json:"reason,omitempty"`
	Window         TimeRange        `json:"window"`
	FailureCount   int              `json:"failure_count"`
	OperatingHours float64          `json:"operating_hours"`
	Weibull        *WeibullData     `json:"weibull,omitempty"`
	KaplanMeier    *KaplanMeierData `json:"kaplan_meier,omitempty"`
}

// OK reports whether a model was fitted.
func (r AnalysisResult) OK() bool { return r.Outcome == OutcomeOK }

// ReliabilityIntervals returns whichever table the fitted variant produced.
func (r AnalysisResult) ReliabilityIntervals() ReliabilityTable {
	switch {
	case r.Weibull != nil:
		return r.Weibull.ReliabilityIntervals
	case r.KaplanMeier != nil:
		return r.KaplanMeier.ReliabilityIntervals
	}
	return nil
}
