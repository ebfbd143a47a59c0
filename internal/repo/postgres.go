package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maintstack/maint-opt/internal/models"
	"github.com/maintstack/maint-opt/internal/utils"
)

// Postgres implements the engine's store contracts against the CMMS schema.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres opens a pgx pool and verifies connectivity with exponential
// backoff, bounded by maxWait.
func NewPostgres(ctx context.Context, dsn string, connectTimeout, maxWait time.Duration, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, utils.NewStoreError("postgres.connect", "parse dsn", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = maxWait

	err = backoff.RetryNotify(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		return pool.Ping(pingCtx)
	}, bo, func(err error, next time.Duration) {
		logger.Warn("database not reachable, retrying", slog.Any("error", err), slog.Duration("next_attempt_in", next))
	})
	if err != nil {
		pool.Close()
		return nil, utils.NewStoreError("postgres.connect", "ping", err)
	}

	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// GetComponent loads a component with its machine attributes denormalised.
func (p *Postgres) GetComponent(ctx context.Context, id int64) (models.Component, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT c.id, c.name, c.machine_id, m.name,
		       c.installation_date,
		       COALESCE(m.hour_counter, 0),
		       COALESCE(m.criticality_factor, 0),
		       COALESCE(m.expected_annual_usage / 365.0, 8)
		FROM components c
		JOIN machines m ON m.id = c.machine_id
		WHERE c.id = $1`, id)

	var c models.Component
	if err := row.Scan(&c.ID, &c.Name, &c.MachineID, &c.MachineName, &c.InstallationDate, &c.OperatingHours, &c.Criticality, &c.DailyUsageHours); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Component{}, ErrNotFound
		}
		return models.Component{}, utils.NewStoreError("postgres.GetComponent", "query", err)
	}
	return c, nil
}

// FetchFailures returns failures logged against the component inside the
// window, chronological.
func (p *Postgres) FetchFailures(ctx context.Context, componentID int64, start, end time.Time) ([]models.FailureRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT f.id, l.component_id, f.maintenance_log_id, l.timestamp, f.severity, f.description, COALESCE(f.resolution, '')
		FROM failures f
		JOIN maintenance_logs l ON l.id = f.maintenance_log_id
		WHERE l.component_id = $1 AND l.timestamp >= $2 AND l.timestamp <= $3
		ORDER BY l.timestamp ASC`, componentID, start, end)
	if err != nil {
		return nil, utils.NewStoreError("postgres.FetchFailures", "query", err)
	}
	defer rows.Close()

	var failures []models.FailureRecord
	for rows.Next() {
		var f models.FailureRecord
		if err := rows.Scan(&f.ID, &f.ComponentID, &f.MaintenanceLogID, &f.Timestamp, &f.Severity, &f.Description, &f.Resolution); err != nil {
			return nil, utils.NewStoreError("postgres.FetchFailures", "scan", err)
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// FetchMaintenanceEvents returns all maintenance log entries for the
// component inside the window, chronological.
func (p *Postgres) FetchMaintenanceEvents(ctx context.Context, componentID int64, start, end time.Time) ([]models.MaintenanceEvent, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, component_id, timestamp, COALESCE(maintenance_category, ''), has_deviation, COALESCE(hour_counter, 0), COALESCE(description, '')
		FROM maintenance_logs
		WHERE component_id = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp ASC`, componentID, start, end)
	if err != nil {
		return nil, utils.NewStoreError("postgres.FetchMaintenanceEvents", "query", err)
	}
	defer rows.Close()

	var events []models.MaintenanceEvent
	for rows.Next() {
		var e models.MaintenanceEvent
		if err := rows.Scan(&e.ID, &e.ComponentID, &e.Timestamp, &e.Category, &e.Deviation, &e.HourCounter, &e.Description); err != nil {
			return nil, utils.NewStoreError("postgres.FetchMaintenanceEvents", "scan", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// FetchMaintenanceActions resolves the component's RCM maintenance actions in
// a single batched join across the function → functional-failure →
// failure-mode chain.
func (p *Postgres) FetchMaintenanceActions(ctx context.Context, componentID int64) ([]models.MaintenanceAction, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT a.id, a.failure_mode_id, a.title, COALESCE(a.description, ''), COALESCE(a.maintenance_type, ''),
		       COALESCE(a.maintenance_strategy, ''), COALESCE(a.interval_hours, 0), COALESCE(a.interval_days, 0), a.created_at
		FROM rcm_maintenance a
		JOIN rcm_failure_modes fm ON fm.id = a.failure_mode_id
		JOIN rcm_functional_failures ff ON ff.id = fm.functional_failure_id
		JOIN rcm_functions fn ON fn.id = ff.function_id
		WHERE fn.component_id = $1
		ORDER BY a.id ASC`, componentID)
	if err != nil {
		return nil, utils.NewStoreError("postgres.FetchMaintenanceActions", "query", err)
	}
	defer rows.Close()

	var actions []models.MaintenanceAction
	for rows.Next() {
		var a models.MaintenanceAction
		if err := rows.Scan(&a.ID, &a.FailureModeID, &a.Title, &a.Description, &a.MaintenanceType, &a.Strategy, &a.IntervalHours, &a.IntervalDays, &a.CreatedAt); err != nil {
			return nil, utils.NewStoreError("postgres.FetchMaintenanceActions", "scan", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// FetchSettings loads the component's optimization policy, returning nil when
// no row exists so callers fall back to documented defaults.
func (p *Postgres) FetchSettings(ctx context.Context, componentID int64) (*models.OptimizationSettings, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT component_id, COALESCE(analysis_method, 'weibull'), reliability_target,
		       max_increase_percent, max_decrease_percent,
		       COALESCE(min_interval_hours, 0), COALESCE(max_interval_hours, 0),
		       COALESCE(min_interval_days, 0), COALESCE(max_interval_days, 0),
		       auto_adjust_enabled, require_approval, min_confidence
		FROM maintenance_settings
		WHERE component_id = $1`, componentID)

	var s models.OptimizationSettings
	var method string
	var incPct, decPct float64
	err := row.Scan(&s.ComponentID, &method, &s.ReliabilityTarget, &incPct, &decPct,
		&s.MinIntervalHours, &s.MaxIntervalHours, &s.MinIntervalDays, &s.MaxIntervalDays,
		&s.AutoAdjustEnabled, &s.RequireApproval, &s.MinConfidence)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, utils.NewStoreError("postgres.FetchSettings", "query", err)
	}
	s.Method = models.ParseMethod(method)
	s.MaxIncrease = incPct / 100
	s.MaxDecrease = decPct / 100
	return &s, nil
}

// SaveAnalysisCache writes fitted parameters back onto the component record.
func (p *Postgres) SaveAnalysisCache(ctx context.Context, componentID int64, cache models.AnalysisCache) error {
	var curve []byte
	if len(cache.SurvivalCurve) > 0 {
		var err error
		curve, err = json.Marshal(cache.SurvivalCurve)
		if err != nil {
			return utils.NewStoreError("postgres.SaveAnalysisCache", "encode curve", err)
		}
	}
	_, err := p.pool.Exec(ctx, `
		UPDATE components
		SET weibull_shape = $1, weibull_scale = $2, median_survival = $3, survival_curve = $4, analysis_updated_at = $5
		WHERE id = $6`,
		cache.WeibullShape, cache.WeibullScale, cache.MedianSurvival, curve, cache.UpdatedAt, componentID)
	if err != nil {
		return utils.NewStoreError("postgres.SaveAnalysisCache", "update", err)
	}
	return nil
}

// InsertOptimizationResult persists an analysis snapshot and fills in its ID.
func (p *Postgres) InsertOptimizationResult(ctx context.Context, result *models.OptimizationResult) error {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO optimization_results
			(component_id, analysis_method, analyzed_at, window_start, window_end,
			 failure_count, maintenance_count, operating_hours,
			 weibull_shape, weibull_scale, weibull_r_squared, mtbf, median_survival,
			 needs_adjustment, confidence, recommendation_details, applied)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,false)
		RETURNING id`,
		result.ComponentID, string(result.Method), result.AnalyzedAt, result.WindowStart, result.WindowEnd,
		result.FailureCount, result.MaintenanceCount, result.OperatingHours,
		result.WeibullShape, result.WeibullScale, result.WeibullRSquared, result.MTBF, result.MedianSurvival,
		result.NeedsAdjustment, result.Confidence, result.Recommendation)
	if err := row.Scan(&result.ID); err != nil {
		return utils.NewStoreError("postgres.InsertOptimizationResult", "insert", err)
	}
	return nil
}

// GetOptimizationResult loads one analysis snapshot by ID.
func (p *Postgres) GetOptimizationResult(ctx context.Context, id int64) (models.OptimizationResult, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, component_id, analysis_method, analyzed_at, window_start, window_end,
		       failure_count, maintenance_count, operating_hours,
		       weibull_shape, weibull_scale, weibull_r_squared, mtbf, median_survival,
		       needs_adjustment, confidence, recommendation_details, applied, applied_at, applied_by
		FROM optimization_results WHERE id = $1`, id)
	result, err := scanOptimizationResult(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.OptimizationResult{}, ErrNotFound
		}
		return models.OptimizationResult{}, utils.NewStoreError("postgres.GetOptimizationResult", "query", err)
	}
	return result, nil
}

// ListAppliedResults returns optimization results applied at or after the
// cutoff, oldest first.
func (p *Postgres) ListAppliedResults(ctx context.Context, since time.Time) ([]models.OptimizationResult, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, component_id, analysis_method, analyzed_at, window_start, window_end,
		       failure_count, maintenance_count, operating_hours,
		       weibull_shape, weibull_scale, weibull_r_squared, mtbf, median_survival,
		       needs_adjustment, confidence, recommendation_details, applied, applied_at, applied_by
		FROM optimization_results
		WHERE applied = true AND applied_at >= $1
		ORDER BY applied_at ASC`, since)
	if err != nil {
		return nil, utils.NewStoreError("postgres.ListAppliedResults", "query", err)
	}
	defer rows.Close()

	var results []models.OptimizationResult
	for rows.Next() {
		result, err := scanOptimizationResult(rows)
		if err != nil {
			return nil, utils.NewStoreError("postgres.ListAppliedResults", "scan", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// ListAutoAdjustComponents returns components with automatic adjustment
// enabled in their settings.
func (p *Postgres) ListAutoAdjustComponents(ctx context.Context) ([]int64, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT component_id FROM maintenance_settings
		WHERE auto_adjust_enabled = true AND component_id IS NOT NULL
		ORDER BY component_id ASC`)
	if err != nil {
		return nil, utils.NewStoreError("postgres.ListAutoAdjustComponents", "query", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// ListComponentsWithoutRecentResult returns components lacking any
// optimization result newer than the cutoff, so every component is
// periodically reconsidered.
func (p *Postgres) ListComponentsWithoutRecentResult(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT c.id FROM components c
		WHERE NOT EXISTS (
			SELECT 1 FROM optimization_results r
			WHERE r.component_id = c.id AND r.analyzed_at >= $1
		)
		ORDER BY c.id ASC`, cutoff)
	if err != nil {
		return nil, utils.NewStoreError("postgres.ListComponentsWithoutRecentResult", "query", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// ApplyRecommendation performs the transactional unit of an apply: the
// applied-flag guard, every action's interval update, and one audit history
// row per update, committed together or not at all.
func (p *Postgres) ApplyRecommendation(ctx context.Context, analysisID int64, changes []models.IntervalChange, userID *int64, at time.Time) ([]models.IntervalAdjustment, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, utils.NewStoreError("postgres.ApplyRecommendation", "begin", err)
	}
	defer tx.Rollback(ctx)

	var applied bool
	if err := tx.QueryRow(ctx, `SELECT applied FROM optimization_results WHERE id = $1 FOR UPDATE`, analysisID).Scan(&applied); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, utils.NewStoreError("postgres.ApplyRecommendation", "lock result", err)
	}
	if applied {
		return nil, ErrAlreadyApplied
	}

	adjustments := make([]models.IntervalAdjustment, 0, len(changes))
	for _, change := range changes {
		var oldHours float64
		var oldDays int
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(interval_hours, 0), COALESCE(interval_days, 0)
			FROM rcm_maintenance WHERE id = $1 FOR UPDATE`, change.ActionID).Scan(&oldHours, &oldDays); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("maintenance action %d: %w", change.ActionID, ErrNotFound)
			}
			return nil, utils.NewStoreError("postgres.ApplyRecommendation", "lock action", err)
		}

		newHours, newDays := oldHours, oldDays
		switch change.Kind {
		case models.IntervalKindHours:
			newHours = change.Recommended
		case models.IntervalKindDays:
			newDays = int(math.Round(change.Recommended))
		default:
			return nil, fmt.Errorf("maintenance action %d: interval kind %q not adjustable", change.ActionID, change.Kind)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE rcm_maintenance SET interval_hours = NULLIF($1, 0), interval_days = NULLIF($2, 0)
			WHERE id = $3`, newHours, newDays, change.ActionID); err != nil {
			return nil, utils.NewStoreError("postgres.ApplyRecommendation", "update action", err)
		}

		adjustment := models.IntervalAdjustment{
			ActionID:         change.ActionID,
			OldIntervalHours: oldHours,
			OldIntervalDays:  oldDays,
			NewIntervalHours: newHours,
			NewIntervalDays:  newDays,
			Reason:           change.Reason,
			Timestamp:        at,
			UserID:           userID,
			Automated:        userID == nil,
		}
		if err := tx.QueryRow(ctx, `
			INSERT INTO interval_adjustment_history
				(maintenance_id, old_interval_hours, old_interval_days, new_interval_hours, new_interval_days,
				 reason, timestamp, user_id, automated)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			RETURNING id`,
			adjustment.ActionID, adjustment.OldIntervalHours, adjustment.OldIntervalDays,
			adjustment.NewIntervalHours, adjustment.NewIntervalDays,
			adjustment.Reason, adjustment.Timestamp, adjustment.UserID, adjustment.Automated).Scan(&adjustment.ID); err != nil {
			return nil, utils.NewStoreError("postgres.ApplyRecommendation", "insert history", err)
		}
		adjustments = append(adjustments, adjustment)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE optimization_results SET applied = true, applied_at = $1, applied_by = $2
		WHERE id = $3`, at, userID, analysisID); err != nil {
		return nil, utils.NewStoreError("postgres.ApplyRecommendation", "mark applied", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, utils.NewStoreError("postgres.ApplyRecommendation", "commit", err)
	}
	return adjustments, nil
}

// AdjustActionInterval mutates one maintenance action's interval directly,
// outside any optimization result, writing the same audit history row.
func (p *Postgres) AdjustActionInterval(ctx context.Context, actionID int64, hours float64, days int, reason string, userID *int64, at time.Time) (models.IntervalAdjustment, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return models.IntervalAdjustment{}, utils.NewStoreError("postgres.AdjustActionInterval", "begin", err)
	}
	defer tx.Rollback(ctx)

	var oldHours float64
	var oldDays int
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(interval_hours, 0), COALESCE(interval_days, 0)
		FROM rcm_maintenance WHERE id = $1 FOR UPDATE`, actionID).Scan(&oldHours, &oldDays); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.IntervalAdjustment{}, ErrNotFound
		}
		return models.IntervalAdjustment{}, utils.NewStoreError("postgres.AdjustActionInterval", "lock action", err)
	}

	newHours, newDays := oldHours, oldDays
	if hours > 0 {
		newHours = hours
	}
	if days > 0 {
		newDays = days
	}
	if _, err := tx.Exec(ctx, `
		UPDATE rcm_maintenance SET interval_hours = NULLIF($1, 0), interval_days = NULLIF($2, 0)
		WHERE id = $3`, newHours, newDays, actionID); err != nil {
		return models.IntervalAdjustment{}, utils.NewStoreError("postgres.AdjustActionInterval", "update action", err)
	}

	adjustment := models.IntervalAdjustment{
		ActionID:         actionID,
		OldIntervalHours: oldHours,
		OldIntervalDays:  oldDays,
		NewIntervalHours: newHours,
		NewIntervalDays:  newDays,
		Reason:           reason,
		Timestamp:        at,
		UserID:           userID,
		Automated:        userID == nil,
	}
	if err := tx.QueryRow(ctx, `
		INSERT INTO interval_adjustment_history
			(maintenance_id, old_interval_hours, old_interval_days, new_interval_hours, new_interval_days,
			 reason, timestamp, user_id, automated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id`,
		adjustment.ActionID, adjustment.OldIntervalHours, adjustment.OldIntervalDays,
		adjustment.NewIntervalHours, adjustment.NewIntervalDays,
		adjustment.Reason, adjustment.Timestamp, adjustment.UserID, adjustment.Automated).Scan(&adjustment.ID); err != nil {
		return models.IntervalAdjustment{}, utils.NewStoreError("postgres.AdjustActionInterval", "insert history", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.IntervalAdjustment{}, utils.NewStoreError("postgres.AdjustActionInterval", "commit", err)
	}
	return adjustment, nil
}

// FetchOpenWorkOrders returns open RCM-generated work orders carrying the
// maintenance-id marker for the action.
func (p *Postgres) FetchOpenWorkOrders(ctx context.Context, actionID int64) ([]models.WorkOrder, error) {
	marker := workOrderMarker(actionID)
	rows, err := p.pool.Query(ctx, `
		SELECT id, title, COALESCE(description, ''), machine_id, COALESCE(component_id, 0), created_at, due_date,
		       status, priority, type, COALESCE(category, ''), COALESCE(reason, ''), COALESCE(generation_source, '')
		FROM work_orders
		WHERE status = 'open' AND generation_source = 'rcm' AND reason LIKE '%' || $1 || '%'
		ORDER BY id ASC`, marker)
	if err != nil {
		return nil, utils.NewStoreError("postgres.FetchOpenWorkOrders", "query", err)
	}
	defer rows.Close()

	var orders []models.WorkOrder
	for rows.Next() {
		var wo models.WorkOrder
		if err := rows.Scan(&wo.ID, &wo.Title, &wo.Description, &wo.MachineID, &wo.ComponentID, &wo.CreatedAt, &wo.DueDate,
			&wo.Status, &wo.Priority, &wo.Type, &wo.Category, &wo.Reason, &wo.Source); err != nil {
			return nil, utils.NewStoreError("postgres.FetchOpenWorkOrders", "scan", err)
		}
		orders = append(orders, wo)
	}
	return orders, rows.Err()
}

// UpdateWorkOrder persists the mutable fields the applier touches.
func (p *Postgres) UpdateWorkOrder(ctx context.Context, wo models.WorkOrder) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE work_orders SET due_date = $1, reason = $2 WHERE id = $3`,
		wo.DueDate, wo.Reason, wo.ID)
	if err != nil {
		return utils.NewStoreError("postgres.UpdateWorkOrder", "update", err)
	}
	return nil
}

// InsertWorkOrder creates a work order and fills in its ID.
func (p *Postgres) InsertWorkOrder(ctx context.Context, wo *models.WorkOrder) error {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO work_orders
			(title, description, machine_id, component_id, created_at, due_date, status, priority, type, category, reason, generation_source)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id`,
		wo.Title, wo.Description, wo.MachineID, wo.ComponentID, wo.CreatedAt, wo.DueDate,
		wo.Status, wo.Priority, wo.Type, wo.Category, wo.Reason, wo.Source)
	if err := row.Scan(&wo.ID); err != nil {
		return utils.NewStoreError("postgres.InsertWorkOrder", "insert", err)
	}
	return nil
}

// ListRecentAdjustments returns audit rows with timestamps at or after the
// cutoff.
func (p *Postgres) ListRecentAdjustments(ctx context.Context, since time.Time) ([]models.IntervalAdjustment, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, maintenance_id, old_interval_hours, old_interval_days, new_interval_hours, new_interval_days,
		       COALESCE(reason, ''), timestamp, user_id, automated
		FROM interval_adjustment_history
		WHERE timestamp >= $1
		ORDER BY timestamp ASC`, since)
	if err != nil {
		return nil, utils.NewStoreError("postgres.ListRecentAdjustments", "query", err)
	}
	defer rows.Close()

	var adjustments []models.IntervalAdjustment
	for rows.Next() {
		var a models.IntervalAdjustment
		if err := rows.Scan(&a.ID, &a.ActionID, &a.OldIntervalHours, &a.OldIntervalDays, &a.NewIntervalHours, &a.NewIntervalDays,
			&a.Reason, &a.Timestamp, &a.UserID, &a.Automated); err != nil {
			return nil, utils.NewStoreError("postgres.ListRecentAdjustments", "scan", err)
		}
		adjustments = append(adjustments, a)
	}
	return adjustments, rows.Err()
}

// GetActionContext resolves a maintenance action together with its owning
// component in one joined query.
func (p *Postgres) GetActionContext(ctx context.Context, actionID int64) (models.MaintenanceAction, models.Component, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT a.id, a.failure_mode_id, a.title, COALESCE(a.description, ''), COALESCE(a.maintenance_type, ''),
		       COALESCE(a.maintenance_strategy, ''), COALESCE(a.interval_hours, 0), COALESCE(a.interval_days, 0), a.created_at,
		       c.id, c.name, c.machine_id, m.name, c.installation_date,
		       COALESCE(m.hour_counter, 0), COALESCE(m.criticality_factor, 0), COALESCE(m.expected_annual_usage / 365.0, 8)
		FROM rcm_maintenance a
		JOIN rcm_failure_modes fm ON fm.id = a.failure_mode_id
		JOIN rcm_functional_failures ff ON ff.id = fm.functional_failure_id
		JOIN rcm_functions fn ON fn.id = ff.function_id
		JOIN components c ON c.id = fn.component_id
		JOIN machines m ON m.id = c.machine_id
		WHERE a.id = $1`, actionID)

	var a models.MaintenanceAction
	var c models.Component
	err := row.Scan(&a.ID, &a.FailureModeID, &a.Title, &a.Description, &a.MaintenanceType, &a.Strategy,
		&a.IntervalHours, &a.IntervalDays, &a.CreatedAt,
		&c.ID, &c.Name, &c.MachineID, &c.MachineName, &c.InstallationDate,
		&c.OperatingHours, &c.Criticality, &c.DailyUsageHours)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.MaintenanceAction{}, models.Component{}, ErrNotFound
		}
		return models.MaintenanceAction{}, models.Component{}, utils.NewStoreError("postgres.GetActionContext", "query", err)
	}
	return a, c, nil
}

// CountFailures counts failures for the component inside the window.
func (p *Postgres) CountFailures(ctx context.Context, componentID int64, start, end time.Time) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM failures f
		JOIN maintenance_logs l ON l.id = f.maintenance_log_id
		WHERE l.component_id = $1 AND l.timestamp >= $2 AND l.timestamp < $3`, componentID, start, end).Scan(&count)
	if err != nil {
		return 0, utils.NewStoreError("postgres.CountFailures", "query", err)
	}
	return count, nil
}

// CountMaintenanceEvents counts maintenance log entries for the component
// inside the window; deviations are excluded unless requested.
func (p *Postgres) CountMaintenanceEvents(ctx context.Context, componentID int64, start, end time.Time, includeDeviations bool) (int, error) {
	query := `
		SELECT COUNT(*) FROM maintenance_logs
		WHERE component_id = $1 AND timestamp >= $2 AND timestamp < $3`
	if !includeDeviations {
		query += ` AND has_deviation = false`
	}
	var count int
	if err := p.pool.QueryRow(ctx, query, componentID, start, end).Scan(&count); err != nil {
		return 0, utils.NewStoreError("postgres.CountMaintenanceEvents", "query", err)
	}
	return count, nil
}

func workOrderMarker(actionID int64) string {
	return fmt.Sprintf("Maintenance ID: %d", actionID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOptimizationResult(row rowScanner) (models.OptimizationResult, error) {
	var r models.OptimizationResult
	var method string
	err := row.Scan(&r.ID, &r.ComponentID, &method, &r.AnalyzedAt, &r.WindowStart, &r.WindowEnd,
		&r.FailureCount, &r.MaintenanceCount, &r.OperatingHours,
		&r.WeibullShape, &r.WeibullScale, &r.WeibullRSquared, &r.MTBF, &r.MedianSurvival,
		&r.NeedsAdjustment, &r.Confidence, &r.Recommendation, &r.Applied, &r.AppliedAt, &r.AppliedBy)
	if err != nil {
		return models.OptimizationResult{}, err
	}
	r.Method = models.ParseMethod(method)
	return r, nil
}

func scanIDs(rows pgx.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
