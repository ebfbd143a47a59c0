package repo

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/maintstack/maint-opt/internal/models"
)

// Memory is a mutex-guarded in-memory store with the same contract as
// Postgres. The composition root falls back to it when no DSN is configured,
// and tests seed it directly.
type Memory struct {
	mu sync.Mutex

	components       map[int64]models.Component
	failures         map[int64][]models.FailureRecord
	events           map[int64][]models.MaintenanceEvent
	actions          map[int64][]models.MaintenanceAction
	actionComponents map[int64]int64
	settings         map[int64]models.OptimizationSettings
	caches           map[int64]models.AnalysisCache
	results          map[int64]*models.OptimizationResult
	adjustments      []models.IntervalAdjustment
	workOrders       map[int64]*models.WorkOrder

	nextResultID     int64
	nextAdjustmentID int64
	nextWorkOrderID  int64
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		components:       make(map[int64]models.Component),
		failures:         make(map[int64][]models.FailureRecord),
		events:           make(map[int64][]models.MaintenanceEvent),
		actions:          make(map[int64][]models.MaintenanceAction),
		actionComponents: make(map[int64]int64),
		settings:         make(map[int64]models.OptimizationSettings),
		caches:           make(map[int64]models.AnalysisCache),
		results:          make(map[int64]*models.OptimizationResult),
		workOrders:       make(map[int64]*models.WorkOrder),
	}
}

// AddComponent seeds a component record.
func (m *Memory) AddComponent(c models.Component) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[c.ID] = c
}

// AddFailure seeds a failure record.
func (m *Memory) AddFailure(f models.FailureRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[f.ComponentID] = append(m.failures[f.ComponentID], f)
}

// AddEvent seeds a maintenance log entry.
func (m *Memory) AddEvent(e models.MaintenanceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ComponentID] = append(m.events[e.ComponentID], e)
}

// AddAction seeds a maintenance action owned by the given component.
func (m *Memory) AddAction(componentID int64, a models.MaintenanceAction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions[componentID] = append(m.actions[componentID], a)
	m.actionComponents[a.ID] = componentID
}

// PutSettings seeds an optimization policy for a component.
func (m *Memory) PutSettings(s models.OptimizationSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[s.ComponentID] = s
}

// AddWorkOrder seeds a work order, assigning an ID when none is set.
func (m *Memory) AddWorkOrder(wo models.WorkOrder) models.WorkOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wo.ID == 0 {
		m.nextWorkOrderID++
		wo.ID = m.nextWorkOrderID
	} else if wo.ID > m.nextWorkOrderID {
		m.nextWorkOrderID = wo.ID
	}
	clone := wo
	m.workOrders[wo.ID] = &clone
	return wo
}

// Cache returns the last saved analysis cache for tests.
func (m *Memory) Cache(componentID int64) (models.AnalysisCache, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cache, ok := m.caches[componentID]
	return cache, ok
}

// Action returns the current state of a seeded maintenance action.
func (m *Memory) Action(actionID int64) (models.MaintenanceAction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	componentID, ok := m.actionComponents[actionID]
	if !ok {
		return models.MaintenanceAction{}, false
	}
	for _, a := range m.actions[componentID] {
		if a.ID == actionID {
			return a, true
		}
	}
	return models.MaintenanceAction{}, false
}

// WorkOrder returns the current state of a stored work order.
func (m *Memory) WorkOrder(id int64) (models.WorkOrder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wo, ok := m.workOrders[id]
	if !ok {
		return models.WorkOrder{}, false
	}
	return *wo, true
}

func (m *Memory) GetComponent(_ context.Context, id int64) (models.Component, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.components[id]
	if !ok {
		return models.Component{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) FetchFailures(_ context.Context, componentID int64, start, end time.Time) ([]models.FailureRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.FailureRecord
	for _, f := range m.failures[componentID] {
		if !f.Timestamp.Before(start) && !f.Timestamp.After(end) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) FetchMaintenanceEvents(_ context.Context, componentID int64, start, end time.Time) ([]models.MaintenanceEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.MaintenanceEvent
	for _, e := range m.events[componentID] {
		if !e.Timestamp.Before(start) && !e.Timestamp.After(end) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) FetchMaintenanceActions(_ context.Context, componentID int64) ([]models.MaintenanceAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.MaintenanceAction, len(m.actions[componentID]))
	copy(out, m.actions[componentID])
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) FetchSettings(_ context.Context, componentID int64) (*models.OptimizationSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[componentID]
	if !ok {
		return nil, nil
	}
	clone := s
	return &clone, nil
}

func (m *Memory) SaveAnalysisCache(_ context.Context, componentID int64, cache models.AnalysisCache) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.components[componentID]; !ok {
		return ErrNotFound
	}
	m.caches[componentID] = cache
	return nil
}

func (m *Memory) InsertOptimizationResult(_ context.Context, result *models.OptimizationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextResultID++
	result.ID = m.nextResultID
	clone := *result
	m.results[result.ID] = &clone
	return nil
}

func (m *Memory) GetOptimizationResult(_ context.Context, id int64) (models.OptimizationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[id]
	if !ok {
		return models.OptimizationResult{}, ErrNotFound
	}
	return *r, nil
}

func (m *Memory) ListAppliedResults(_ context.Context, since time.Time) ([]models.OptimizationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OptimizationResult
	for _, r := range m.results {
		if r.Applied && r.AppliedAt != nil && !r.AppliedAt.Before(since) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppliedAt.Before(*out[j].AppliedAt) })
	return out, nil
}

func (m *Memory) ListAutoAdjustComponents(_ context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id, s := range m.settings {
		if s.AutoAdjustEnabled {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *Memory) ListComponentsWithoutRecentResult(_ context.Context, cutoff time.Time) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recent := make(map[int64]bool)
	for _, r := range m.results {
		if !r.AnalyzedAt.Before(cutoff) {
			recent[r.ComponentID] = true
		}
	}
	var ids []int64
	for id := range m.components {
		if !recent[id] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *Memory) ApplyRecommendation(_ context.Context, analysisID int64, changes []models.IntervalChange, userID *int64, at time.Time) ([]models.IntervalAdjustment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result, ok := m.results[analysisID]
	if !ok {
		return nil, ErrNotFound
	}
	if result.Applied {
		return nil, ErrAlreadyApplied
	}

	// Validate every change before mutating, so a bad batch leaves the store
	// untouched like the transactional path does.
	type target struct {
		componentID int64
		index       int
	}
	targets := make([]target, len(changes))
	for i, change := range changes {
		componentID, ok := m.actionComponents[change.ActionID]
		if !ok {
			return nil, fmt.Errorf("maintenance action %d: %w", change.ActionID, ErrNotFound)
		}
		index := -1
		for j, a := range m.actions[componentID] {
			if a.ID == change.ActionID {
				index = j
				break
			}
		}
		if index < 0 {
			return nil, fmt.Errorf("maintenance action %d: %w", change.ActionID, ErrNotFound)
		}
		if change.Kind != models.IntervalKindHours && change.Kind != models.IntervalKindDays {
			return nil, fmt.Errorf("maintenance action %d: interval kind %q not adjustable", change.ActionID, change.Kind)
		}
		targets[i] = target{componentID: componentID, index: index}
	}

	adjustments := make([]models.IntervalAdjustment, 0, len(changes))
	for i, change := range changes {
		action := &m.actions[targets[i].componentID][targets[i].index]
		adjustment := models.IntervalAdjustment{
			ActionID:         change.ActionID,
			OldIntervalHours: action.IntervalHours,
			OldIntervalDays:  action.IntervalDays,
			Reason:           change.Reason,
			Timestamp:        at,
			UserID:           userID,
			Automated:        userID == nil,
		}
		switch change.Kind {
		case models.IntervalKindHours:
			action.IntervalHours = change.Recommended
		case models.IntervalKindDays:
			action.IntervalDays = int(math.Round(change.Recommended))
		}
		adjustment.NewIntervalHours = action.IntervalHours
		adjustment.NewIntervalDays = action.IntervalDays

		m.nextAdjustmentID++
		adjustment.ID = m.nextAdjustmentID
		m.adjustments = append(m.adjustments, adjustment)
		adjustments = append(adjustments, adjustment)
	}

	appliedAt := at
	result.Applied = true
	result.AppliedAt = &appliedAt
	result.AppliedBy = userID
	return adjustments, nil
}

func (m *Memory) AdjustActionInterval(_ context.Context, actionID int64, hours float64, days int, reason string, userID *int64, at time.Time) (models.IntervalAdjustment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	componentID, ok := m.actionComponents[actionID]
	if !ok {
		return models.IntervalAdjustment{}, ErrNotFound
	}
	var action *models.MaintenanceAction
	for i := range m.actions[componentID] {
		if m.actions[componentID][i].ID == actionID {
			action = &m.actions[componentID][i]
			break
		}
	}
	if action == nil {
		return models.IntervalAdjustment{}, ErrNotFound
	}

	adjustment := models.IntervalAdjustment{
		ActionID:         actionID,
		OldIntervalHours: action.IntervalHours,
		OldIntervalDays:  action.IntervalDays,
		Reason:           reason,
		Timestamp:        at,
		UserID:           userID,
		Automated:        userID == nil,
	}
	if hours > 0 {
		action.IntervalHours = hours
	}
	if days > 0 {
		action.IntervalDays = days
	}
	adjustment.NewIntervalHours = action.IntervalHours
	adjustment.NewIntervalDays = action.IntervalDays

	m.nextAdjustmentID++
	adjustment.ID = m.nextAdjustmentID
	m.adjustments = append(m.adjustments, adjustment)
	return adjustment, nil
}

func (m *Memory) FetchOpenWorkOrders(_ context.Context, actionID int64) ([]models.WorkOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	marker := workOrderMarker(actionID)
	var out []models.WorkOrder
	for _, wo := range m.workOrders {
		if wo.Status == models.WorkOrderStatusOpen && wo.Source == models.WorkOrderSourceRCM && strings.Contains(wo.Reason, marker) {
			out = append(out, *wo)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateWorkOrder(_ context.Context, wo models.WorkOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.workOrders[wo.ID]
	if !ok {
		return ErrNotFound
	}
	stored.DueDate = wo.DueDate
	stored.Reason = wo.Reason
	return nil
}

func (m *Memory) InsertWorkOrder(_ context.Context, wo *models.WorkOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextWorkOrderID++
	wo.ID = m.nextWorkOrderID
	clone := *wo
	m.workOrders[wo.ID] = &clone
	return nil
}

func (m *Memory) ListRecentAdjustments(_ context.Context, since time.Time) ([]models.IntervalAdjustment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.IntervalAdjustment
	for _, a := range m.adjustments {
		if !a.Timestamp.Before(since) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) GetActionContext(_ context.Context, actionID int64) (models.MaintenanceAction, models.Component, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	componentID, ok := m.actionComponents[actionID]
	if !ok {
		return models.MaintenanceAction{}, models.Component{}, ErrNotFound
	}
	component, ok := m.components[componentID]
	if !ok {
		return models.MaintenanceAction{}, models.Component{}, ErrNotFound
	}
	for _, a := range m.actions[componentID] {
		if a.ID == actionID {
			return a, component, nil
		}
	}
	return models.MaintenanceAction{}, models.Component{}, ErrNotFound
}

func (m *Memory) CountFailures(_ context.Context, componentID int64, start, end time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, f := range m.failures[componentID] {
		if !f.Timestamp.Before(start) && f.Timestamp.Before(end) {
			count++
		}
	}
	return count, nil
}

func (m *Memory) CountMaintenanceEvents(_ context.Context, componentID int64, start, end time.Time, includeDeviations bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, e := range m.events[componentID] {
		if e.Timestamp.Before(start) || !e.Timestamp.Before(end) {
			continue
		}
		if e.Deviation && !includeDeviations {
			continue
		}
		count++
	}
	return count, nil
}
