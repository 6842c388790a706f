package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"certsentry/internal/types"
)

// AlertModelRepository provides read access to the alert_models table.
type AlertModelRepository struct {
	db DBTX
}

// NewAlertModelRepository creates an AlertModelRepository backed by the
// given database connection (pool or transaction).
func NewAlertModelRepository(db DBTX) *AlertModelRepository {
	return &AlertModelRepository{db: db}
}

var _ types.AlertModelRepository = (*AlertModelRepository)(nil)

const alertModelColumns = `m.id, m.name, m.offset_days_before, m.offset_days_after,
	m.repeat_every_days, m.template_subject, m.template_body,
	m.schedule_type, m.schedule_time, m.enabled, m.created_at, m.updated_at`

// scanAlertModel scans one alert model row in alertModelColumns order.
func scanAlertModel(row pgx.Row) (*types.AlertModel, error) {
	var model types.AlertModel
	var scheduleTime *string

	err := row.Scan(
		&model.ID,
		&model.Name,
		&model.OffsetDaysBefore,
		&model.OffsetDaysAfter,
		&model.RepeatEveryDays,
		&model.TemplateSubject,
		&model.TemplateBody,
		&model.ScheduleType,
		&scheduleTime,
		&model.Enabled,
		&model.CreatedAt,
		&model.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	// NULL schedule_time is the stored form of "hourly, no time".
	if scheduleTime != nil {
		model.ScheduleTime = *scheduleTime
	}
	return &model, nil
}

// ListAlertModels returns every alert model, enabled or not; the scheduler
// checks the enabled flag itself so disabled models still resolve.
func (r *AlertModelRepository) ListAlertModels(ctx context.Context) ([]types.AlertModel, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+alertModelColumns+`
		 FROM alert_models m
		 ORDER BY m.name, m.id`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list alert models", err)
	}
	defer rows.Close()

	var models []types.AlertModel
	for rows.Next() {
		model, err := scanAlertModel(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan alert model", err)
		}
		models = append(models, *model)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate alert models", err)
	}
	return models, nil
}

// GetAlertModel retrieves one alert model by ID. A missing model is not an
// error from the core's perspective: it returns (nil, nil) and the caller
// decides whether that is a skip or a configuration problem.
func (r *AlertModelRepository) GetAlertModel(ctx context.Context, id string) (*types.AlertModel, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+alertModelColumns+`
		 FROM alert_models m
		 WHERE m.id = $1`,
		id,
	)

	model, err := scanAlertModel(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve alert model", err)
	}
	return model, nil
}
