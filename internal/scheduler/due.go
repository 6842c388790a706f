package scheduler

import (
	"fmt"
	"time"

	"certsentry/internal/types"
)

// expiryDateLayout is the date-only layout certificate expiry dates use.
const expiryDateLayout = "2006-01-02"

// DaysLeft computes the whole days (floor) between the tick's calendar day
// and the certificate's expiry day. Negative once the certificate has
// expired; zero on the expiry day itself.
//
// Both days are reconstructed at UTC midnight from their year/month/day in
// the tick's zone before dividing, so the result is an exact whole-day
// count even when a DST transition sits between the two dates.
func DaysLeft(expiresAt string, tick time.Time) (int, error) {
	expiry, err := parseExpiry(expiresAt, tick.Location())
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeValidationExpiry,
			fmt.Sprintf("unparseable expiry date %q", expiresAt), err)
	}

	expiryDay := dayAtUTC(expiry)
	tickDay := dayAtUTC(tick)
	return int(expiryDay.Sub(tickDay) / (24 * time.Hour)), nil
}

// parseExpiry accepts a bare ISO date or a full RFC 3339 timestamp. A
// timestamp is shifted into the scheduler's zone before its calendar day is
// read, so both forms agree on which day the certificate expires.
func parseExpiry(raw string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(expiryDateLayout, raw, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(loc), nil
}

// dayAtUTC pins a time's calendar day to UTC midnight.
func dayAtUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ShouldSendNotification decides whether a notification is substantively
// due for the day, given the certificate's days-left and the model's
// offset/repeat configuration. Pure function, no I/O; schedule timing is
// the Evaluator's concern, not this one's.
//
// The rules, in order:
//   - the one-time reminder at daysLeft == offsetDaysBefore,
//   - the one-time post-expiry reminder at daysLeft == -offsetDaysAfter,
//   - with repeatEveryDays > 0, repeating reminders during the countdown
//     (0 <= daysLeft < offsetDaysBefore, on the cadence counted down from
//     the offset-before boundary) and after expiry (cadence divides the
//     days overdue).
//
// The expiry day itself (daysLeft == 0) fires only via the offset rules,
// never via the post-expiry repeat branch.
func ShouldSendNotification(daysLeft int, model *types.AlertModel) bool {
	if model.OffsetDaysBefore >= 0 && daysLeft == model.OffsetDaysBefore {
		return true
	}

	if model.OffsetDaysAfter != nil && *model.OffsetDaysAfter >= 0 && daysLeft == -*model.OffsetDaysAfter {
		return true
	}

	if r := model.RepeatEveryDays; r > 0 {
		if daysLeft >= 0 && daysLeft < model.OffsetDaysBefore && (model.OffsetDaysBefore-daysLeft)%r == 0 {
			return true
		}
		if daysLeft < 0 && (-daysLeft)%r == 0 {
			return true
		}
	}

	return false
}
