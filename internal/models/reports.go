package models

import "time"

// WorkOrderUpdate records one open work order whose due date was recomputed
// after an interval change.
type WorkOrderUpdate struct {
	WorkOrderID int64     `json:"work_order_id"`
	Title       string    `json:"work_order_title"`
	NewDueDate  time.Time `json:"new_due_date"`
}

// AppliedChange is the audit view of one interval mutation performed by the
// applier.
type AppliedChange struct {
	ActionID     int64             `json:"action_id"`
	ActionTitle  string            `json:"action_title"`
	Kind         IntervalKind      `json:"interval_type"`
	OldInterval  float64           `json:"old_interval"`
	NewInterval  float64           `json:"new_interval"`
	Reason       string            `json:"reason"`
	AdjustmentID int64             `json:"adjustment_id"`
	WorkOrders   []WorkOrderUpdate `json:"updated_work_orders,omitempty"`
}

// ApplicationReport summarises one apply call.
type ApplicationReport struct {
	AnalysisID    int64           `json:"analysis_id"`
	ComponentID   int64           `json:"component_id"`
	ComponentName string          `json:"component_name"`
	Applied       bool            `json:"applied"`
	Message       string          `json:"message,omitempty"`
	Changes       []AppliedChange `json:"changes"`
}

// BatchEntry is the per-component record inside a batch run. Exactly one of
// Recommendation/Error is meaningful; a failed component never aborts the
// batch.
type BatchEntry struct {
	ComponentID    int64           `json:"component_id"`
	ComponentName  string          `json:"component_name,omitempty"`
	Recommendation *Recommendation `json:"recommendation,omitempty"`
	Applied        bool            `json:"applied"`
	Automatic      bool            `json:"automatic"`
	PendingReason  string          `json:"pending_reason,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// BatchReport is the complete result of one scheduled optimization run.
type BatchReport struct {
	RunID              string         `json:"run_id"`
	StartedAt          time.Time      `json:"started_at"`
	Method             AnalysisMethod `json:"method"`
	ComponentsAnalyzed int            `json:"components_analyzed"`
	AdjustmentsNeeded  int            `json:"optimizations_needed"`
	AdjustmentsApplied int            `json:"optimizations_applied"`
	Errors             int            `json:"errors"`
	Entries            []BatchEntry   `json:"results"`
}

// ValidationEntry is the retrospective verdict for one applied optimization.
type ValidationEntry struct {
	OptimizationID        int64     `json:"optimization_id"`
	ComponentID           int64     `json:"component_id"`
	ComponentName         string    `json:"component_name,omitempty"`
	AppliedAt             time.Time `json:"applied_at"`
	Direction             string    `json:"direction,omitempty"`
	DaysBefore            int       `json:"days_before"`
	DaysAfter             int       `json:"days_after"`
	FailuresBefore        int       `json:"failures_before"`
	FailuresAfter         int       `json:"failures_after"`
	MaintenanceBefore     int       `json:"maintenance_before"`
	MaintenanceAfter      int       `json:"maintenance_after"`
	FailureRateBefore     float64   `json:"failures_per_day_before"`
	FailureRateAfter      float64   `json:"failures_per_day_after"`
	MaintenanceRateBefore float64   `json:"maintenance_per_day_before"`
	MaintenanceRateAfter  float64   `json:"maintenance_per_day_after"`
	FailureReduction      float64   `json:"failure_reduction"`
	MaintenanceReduction  float64   `json:"maintenance_reduction"`
	Effective             bool      `json:"was_effective"`
	Error                 string    `json:"error,omitempty"`
}

// ValidationReport aggregates effectiveness verdicts over a trailing window.
type ValidationReport struct {
	RunID             string            `json:"run_id"`
	GeneratedAt       time.Time         `json:"generated_at"`
	WindowDays        int               `json:"window_days"`
	Evaluated         int               `json:"optimizations_evaluated"`
	Effective         int               `json:"effective_optimizations"`
	EffectivenessRate float64           `json:"effectiveness_rate"`
	Entries           []ValidationEntry `json:"results"`
}

// RegenerationReport lists work orders created from recently adjusted
// maintenance actions.
type RegenerationReport struct {
	GeneratedAt  time.Time `json:"generated_at"`
	Created      int       `json:"work_orders_generated"`
	WorkOrderIDs []int64   `json:"work_order_ids"`
}

// FailureRateSummary is the per-component failure rate over a window,
// normalised per 1000 operating hours.
type FailureRateSummary struct {
	ComponentID    int64   `json:"component_id"`
	ComponentName  string  `json:"component_name"`
	WindowDays     int     `json:"window_days"`
	FailureCount   int     `json:"failure_count"`
	OperatingHours float64 `json:"operating_hours"`
	RatePer1000h   float64 `json:"failure_rate_per_1000h"`
}
