// Package scheduler implements the alert scheduling engine: the schedule
// evaluator that decides whether a tick is a firing instant for an alert
// model, the dispatch tracker that suppresses duplicate sends within one
// schedule period, the days-left and notification-due computations, and the
// top-level job that walks all certificates once per external trigger.
package scheduler

import (
	"time"

	"certsentry/internal/types"
)

// scheduleTimeLayout is the HH:mm layout daily models use.
const scheduleTimeLayout = "15:04"

// TruncateTick truncates "now" to whole-minute granularity. Every
// scheduling decision within one job run is computed against the same
// truncated tick so evaluation stays stable regardless of where in the
// minute the trigger landed.
func TruncateTick(now time.Time) time.Time {
	return now.Truncate(time.Minute)
}

// Evaluator decides whether a tick is a valid firing instant for an alert
// model's cadence.
type Evaluator struct {
	logger types.Logger
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(logger types.Logger) *Evaluator {
	return &Evaluator{logger: logger}
}

// IsScheduleDue reports whether tick matches the model's cadence. Hourly
// models fire at the top of every hour. Daily models fire when the tick
// equals the tick's date combined with the model's HH:mm, at minute
// granularity. A daily model with an absent or malformed scheduleTime is
// never due; that is a configuration problem, logged and skipped, never
// fatal to the run.
func (e *Evaluator) IsScheduleDue(model *types.AlertModel, tick time.Time) bool {
	switch model.ScheduleType {
	case types.ScheduleHourly:
		return tick.Minute() == 0

	case types.ScheduleDaily:
		moment, ok := ResolvedMoment(model, tick)
		if !ok {
			e.logger.Warn("alert model has malformed schedule_time, never due",
				"alert_model_id", model.ID, "schedule_time", model.ScheduleTime)
			return false
		}
		return moment.Equal(tick.Truncate(time.Minute))

	default:
		e.logger.Warn("alert model has unknown schedule_type, never due",
			"alert_model_id", model.ID, "schedule_type", string(model.ScheduleType))
		return false
	}
}

// ResolvedMoment combines the tick's calendar date with a daily model's
// HH:mm in the tick's zone. Returns false for hourly models and for absent
// or malformed scheduleTime values.
func ResolvedMoment(model *types.AlertModel, tick time.Time) (time.Time, bool) {
	if model.ScheduleType != types.ScheduleDaily {
		return time.Time{}, false
	}
	parsed, err := time.Parse(scheduleTimeLayout, model.ScheduleTime)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(tick.Year(), tick.Month(), tick.Day(),
		parsed.Hour(), parsed.Minute(), 0, 0, tick.Location()), true
}
