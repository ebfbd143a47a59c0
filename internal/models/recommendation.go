package models

import "time"

// IntervalChange is the optimizer's verdict for a single maintenance action.
// Current and Recommended are expressed in the action's native unit (Kind).
type IntervalChange struct {
	ActionID        int64        `json:"action_id"`
	ActionTitle     string       `json:"action_title"`
	Kind            IntervalKind `json:"interval_type"`
	Current         float64      `json:"current_interval"`
	Recommended     float64      `json:"recommended_interval"`
	NeedsAdjustment bool         `json:"needs_adjustment"`
	Reason          string       `json:"reason"`
	Confidence      float64      `json:"confidence"`
}

// AnalysisSummary is the slice of analyzer output embedded in a
// recommendation for audit and display purposes.
type AnalysisSummary struct {
	Method               AnalysisMethod   `json:"analysis_method"`
	FailureCount         int              `json:"failure_count"`
	MaintenanceCount     int              `json:"maintenance_count"`
	OperatingHours       float64          `json:"operating_hours"`
	WeibullShape         *float64         `json:"weibull_shape,omitempty"`
	WeibullScale         *float64         `json:"weibull_scale,omitempty"`
	RSquared             *float64         `json:"weibull_r_squared,omitempty"`
	MTBF                 *float64         `json:"mtbf,omitempty"`
	MedianSurvival       *float64         `json:"median_survival,omitempty"`
	Events               int              `json:"n_events,omitempty"`
	ReliabilityIntervals ReliabilityTable `json:"reliability_intervals,omitempty"`
}

// Recommendation is one complete optimizer verdict for a component.
// NeedsAdjustment is true iff at least one change is flagged. AnalysisID
// references the persisted OptimizationResult snapshot.
type Recommendation struct {
	ComponentID     int64            `json:"component_id"`
	ComponentName   string           `json:"component_name"`
	MachineID       int64            `json:"machine_id"`
	MachineName     string           `json:"machine_name"`
	AnalysisID      int64            `json:"analysis_id"`
	NeedsAdjustment bool             `json:"needs_adjustment"`
	Confidence      float64          `json:"confidence"`
	Reason          string           `json:"reason,omitempty"`
	Analysis        AnalysisSummary  `json:"analysis_data"`
	Changes         []IntervalChange `json:"recommended_intervals"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// FlaggedChanges returns only the changes that require an adjustment.
func (r Recommendation) FlaggedChanges() []IntervalChange {
	flagged := make([]IntervalChange, 0, len(r.Changes))
	for _, c := range r.Changes {
		if c.NeedsAdjustment {
			flagged = append(flagged, c)
		}
	}
	return flagged
}

// Direction classifies a recommendation for the effectiveness validation
// pass: "increase" when any flagged change lengthens an interval, "decrease"
// when any shortens one, empty otherwise.
func (r Recommendation) Direction() string {
	for _, c := range r.FlaggedChanges() {
		if c.Recommended > c.Current {
			return "increase"
		}
	}
	for _, c := range r.FlaggedChanges() {
		if c.Recommended < c.Current {
			return "decrease"
		}
	}
	return ""
}
