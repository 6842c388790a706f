package scheduler

import (
	"time"

	"certsentry/internal/types"
)

// dispatchRecord is the tracker's memory of the last successful dispatch for
// one certificate. DispatchedAt is kept as an RFC 3339 string rather than a
// time.Time so corrupt state degrades to a parse failure instead of a
// silent zero value, and the fail-open path below stays honest.
type dispatchRecord struct {
	DispatchedAt string
	ScheduleType types.ScheduleType

	// ScheduleTime is the daily HH:mm the dispatch matched. Empty for hourly.
	ScheduleTime string
}

// DispatchTracker remembers the last successful dispatch per certificate so
// the job can suppress duplicate sends when the external trigger fires more
// often than the schedule's period, or when ticks are re-delivered.
//
// The tracker is process-local, in-memory state owned by one job instance
// and mutated only from the job's goroutine. It resets on restart, which is
// an accepted trade: the worst case is one extra notification after a
// redeploy, never a lost one.
type DispatchTracker struct {
	entries map[string]dispatchRecord
}

// NewDispatchTracker creates an empty tracker.
func NewDispatchTracker() *DispatchTracker {
	return &DispatchTracker{entries: make(map[string]dispatchRecord)}
}

// AlreadyDispatched reports whether a send for this certificate should be
// suppressed at tick under the model's current schedule.
//
// Suppression requires the stored entry to match the model's schedule
// signature, not just the timestamp: hourly entries suppress within the
// same clock hour, daily entries suppress within the same calendar day and
// only for the same scheduleTime string. Editing a model's schedule type or
// time therefore allows an immediate re-fire.
//
// An unparseable stored timestamp fails open: the stale entry is discarded
// and the answer is "no prior dispatch". A re-send beats permanent
// suppression.
func (t *DispatchTracker) AlreadyDispatched(certificateID string, model *types.AlertModel, tick time.Time) bool {
	entry, ok := t.entries[certificateID]
	if !ok {
		return false
	}

	last, err := time.Parse(time.RFC3339, entry.DispatchedAt)
	if err != nil {
		delete(t.entries, certificateID)
		return false
	}
	last = last.In(tick.Location())

	if entry.ScheduleType != model.ScheduleType {
		return false
	}

	switch model.ScheduleType {
	case types.ScheduleHourly:
		return sameDay(last, tick) && last.Hour() == tick.Hour()

	case types.ScheduleDaily:
		return entry.ScheduleTime == model.ScheduleTime && sameDay(last, tick)
	}

	return false
}

// MarkDispatched records a successful dispatch for the certificate at tick
// under the model's current schedule signature. Callers invoke this only
// after the orchestrator reported success; a total dispatch failure leaves
// the tracker untouched so the next matching tick retries.
func (t *DispatchTracker) MarkDispatched(certificateID string, model *types.AlertModel, tick time.Time) {
	t.entries[certificateID] = dispatchRecord{
		DispatchedAt: tick.Format(time.RFC3339),
		ScheduleType: model.ScheduleType,
		ScheduleTime: model.ScheduleTime,
	}
}

// Forget drops the tracker entry for a certificate. Used when a certificate
// is removed mid-run and by tests.
func (t *DispatchTracker) Forget(certificateID string) {
	delete(t.entries, certificateID)
}

// Len returns the number of tracked certificates.
func (t *DispatchTracker) Len() int {
	return len(t.entries)
}

// sameDay reports whether a and b fall on the same calendar day. Both must
// already be in the same location.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
