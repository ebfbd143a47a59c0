package models

import "time"

// FailureRecord is one observed failure (deviation) logged against a component.
// Immutable once created apart from an optional resolution note.
type FailureRecord struct {
	ID               int64     `json:"id"`
	ComponentID      int64     `json:"component_id"`
	MaintenanceLogID int64     `json:"maintenance_log_id"`
	Timestamp        time.Time `json:"timestamp"`
	Severity         string    `json:"severity"`
	Description      string    `json:"description"`
	Resolution       string    `json:"resolution,omitempty"`
}

// MaintenanceEvent is one maintenance action performed on a component. The
// chronological sequence of events is the raw substrate for survival analysis.
type MaintenanceEvent struct {
	ID          int64     `json:"id"`
	ComponentID int64     `json:"component_id"`
	Timestamp   time.Time `json:"timestamp"`
	Category    string    `json:"category"`
	Deviation   bool      `json:"deviation"`
	HourCounter float64   `json:"hour_counter"`
	Description string    `json:"description,omitempty"`
}

// Maintenance event categories that reset the time-to-failure clock when they
// are routine (non-deviation) actions.
const (
	CategoryInspection  = "inspection"
	CategoryRepair      = "repair"
	CategoryReplacement = "replacement"
	CategoryOverhaul    = "overhaul"
	CategoryRebuild     = "rebuild"
	CategoryLubrication = "lubrication"
	CategoryCleaning    = "cleaning"
)

// IsClockReset reports whether the event restores the component to an
// as-good-as-new baseline for failure-time purposes.
func (e MaintenanceEvent) IsClockReset() bool {
	if e.Deviation {
		return false
	}
	switch e.Category {
	case CategoryRepair, CategoryReplacement, CategoryOverhaul, CategoryRebuild:
		return true
	}
	return false
}

// IntervalKind tags which unit a maintenance interval is expressed in.
type IntervalKind string

const (
	IntervalKindHours IntervalKind = "hours"
	IntervalKindDays  IntervalKind = "days"
	IntervalKindNone  IntervalKind = "none"
)

// MaintenanceAction is a prescribed recurring task tied to a failure mode.
// Exactly one of IntervalHours/IntervalDays is canonical; zero means unset.
type MaintenanceAction struct {
	ID              int64     `json:"id"`
	FailureModeID   int64     `json:"failure_mode_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	MaintenanceType string    `json:"maintenance_type,omitempty"`
	Strategy        string    `json:"strategy,omitempty"`
	IntervalHours   float64   `json:"interval_hours,omitempty"`
	IntervalDays    int       `json:"interval_days,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// IntervalKind resolves the canonical interval unit: hours wins when both are
// set, and actions with neither are not optimizable.
func (a MaintenanceAction) IntervalKind() IntervalKind {
	if a.IntervalHours > 0 {
		return IntervalKindHours
	}
	if a.IntervalDays > 0 {
		return IntervalKindDays
	}
	return IntervalKindNone
}

// Component is the unit of analysis. Machine attributes needed by the
// optimizer (criticality, running hours) are denormalised onto the fetch.
type Component struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	MachineID        int64      `json:"machine_id"`
	MachineName      string     `json:"machine_name"`
	InstallationDate *time.Time `json:"installation_date,omitempty"`
	OperatingHours   float64    `json:"operating_hours"`
	Criticality      int        `json:"criticality"`
	DailyUsageHours  float64    `json:"daily_usage_hours"`
}

// NeutralCriticality is assumed when a component record carries no usable
// criticality factor.
const NeutralCriticality = 5

// CriticalityOrDefault returns the component's criticality, substituting the
// neutral default for unset or nonsense values.
func (c Component) CriticalityOrDefault() int {
	if c.Criticality <= 0 || c.Criticality > 10 {
		return NeutralCriticality
	}
	return c.Criticality
}

// OptimizationSettings is the per-component policy consulted by the optimizer
// and the automation controller.
type OptimizationSettings struct {
	ComponentID       int64          `json:"component_id"`
	Method            AnalysisMethod `json:"method"`
	ReliabilityTarget float64        `json:"reliability_target"`
	MaxIncrease       float64        `json:"max_increase"`
	MaxDecrease       float64        `json:"max_decrease"`
	MinIntervalHours  float64        `json:"min_interval_hours,omitempty"`
	MaxIntervalHours  float64        `json:"max_interval_hours,omitempty"`
	MinIntervalDays   int            `json:"min_interval_days,omitempty"`
	MaxIntervalDays   int            `json:"max_interval_days,omitempty"`
	AutoAdjustEnabled bool           `json:"auto_adjust_enabled"`
	RequireApproval   bool           `json:"require_approval"`
	MinConfidence     float64        `json:"min_confidence"`
}

// DefaultSettings returns the documented policy for components with no stored
// settings row.
func DefaultSettings(componentID int64) OptimizationSettings {
	return OptimizationSettings{
		ComponentID:       componentID,
		Method:            MethodWeibull,
		ReliabilityTarget: 0.90,
		MaxIncrease:       0.25,
		MaxDecrease:       0.30,
		AutoAdjustEnabled: false,
		RequireApproval:   true,
		MinConfidence:     0.7,
	}
}

// OptimizationResult is an immutable analysis snapshot. Applied flips
// false→true exactly once when a recommendation is accepted.
type OptimizationResult struct {
	ID               int64          `json:"id"`
	ComponentID      int64          `json:"component_id"`
	Method           AnalysisMethod `json:"method"`
	AnalyzedAt       time.Time      `json:"analyzed_at"`
	WindowStart      time.Time      `json:"window_start"`
	WindowEnd        time.Time      `json:"window_end"`
	FailureCount     int            `json:"failure_count"`
	MaintenanceCount int            `json:"maintenance_count"`
	OperatingHours   float64        `json:"operating_hours"`
	WeibullShape     *float64       `json:"weibull_shape,omitempty"`
	WeibullScale     *float64       `json:"weibull_scale,omitempty"`
	WeibullRSquared  *float64       `json:"weibull_r_squared,omitempty"`
	MTBF             *float64       `json:"mtbf,omitempty"`
	MedianSurvival   *float64       `json:"median_survival,omitempty"`
	NeedsAdjustment  bool           `json:"needs_adjustment"`
	Confidence       float64        `json:"confidence"`
	Recommendation   []byte         `json:"-"`
	Applied          bool           `json:"applied"`
	AppliedAt        *time.Time     `json:"applied_at,omitempty"`
	AppliedBy        *int64         `json:"applied_by,omitempty"`
}

// IntervalAdjustment is one append-only audit record of an interval change.
// A nil UserID marks the change as automated.
type IntervalAdjustment struct {
	ID               int64     `json:"id"`
	ActionID         int64     `json:"action_id"`
	OldIntervalHours float64   `json:"old_interval_hours"`
	OldIntervalDays  int       `json:"old_interval_days"`
	NewIntervalHours float64   `json:"new_interval_hours"`
	NewIntervalDays  int       `json:"new_interval_days"`
	Reason           string    `json:"reason"`
	Timestamp        time.Time `json:"timestamp"`
	UserID           *int64    `json:"user_id,omitempty"`
	Automated        bool      `json:"automated"`
}

// WorkOrder is the slice of the CMMS work-order record the applier touches.
type WorkOrder struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	MachineID   int64     `json:"machine_id"`
	ComponentID int64     `json:"component_id"`
	CreatedAt   time.Time `json:"created_at"`
	DueDate     time.Time `json:"due_date"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority"`
	Type        string    `json:"type"`
	Category    string    `json:"category,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Source      string    `json:"source,omitempty"`
}

// Work order lifecycle states used by the applier and generator.
const (
	WorkOrderStatusOpen      = "open"
	WorkOrderSourceRCM       = "rcm"
	WorkOrderCategoryRCM     = "rcm_maintenance"
	WorkOrderPriorityNormal  = "normal"
	WorkOrderTypePreventive  = "preventive"
)

// AnalysisCache holds the fitted parameters written back onto the component
// record after each successful analysis.
type AnalysisCache struct {
	WeibullShape   *float64        `json:"weibull_shape,omitempty"`
	WeibullScale   *float64        `json:"weibull_scale,omitempty"`
	MedianSurvival *float64        `json:"median_survival,omitempty"`
	SurvivalCurve  []SurvivalPoint `json:"survival_curve,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
