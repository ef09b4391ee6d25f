// Package recurrence turns period rules into occurrence instants.
//
// Occurrence k of a rule without weekday filter is PeriodStart advanced
// by k*Multiplier periods, always computed from PeriodStart so month-end
// clamping never drifts (Jan 31 -> Feb 29 -> Mar 31). With a weekday
// filter, weekly rules fire on the listed weekdays of every
// Multiplier-th week counted from PeriodStart, and monthly rules on the
// listed weekdays of every Multiplier-th month. Occurrences keep the
// time of day of PeriodStart and never precede it.
package recurrence

import (
	"fmt"
	"strings"
	"time"

	"cashbook/internal/models"
)

var weekdayCodes = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

// ParseByDay reads "MO,WE,FR" into a weekday set.
func ParseByDay(s string) (map[time.Weekday]bool, error) {
	set := map[time.Weekday]bool{}
	for _, part := range strings.Split(s, ",") {
		code := strings.ToUpper(strings.TrimSpace(part))
		if code == "" {
			continue
		}
		wd, ok := weekdayCodes[code]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", part)
		}
		set[wd] = true
	}
	return set, nil
}

func invalid(format string, args ...any) error {
	return &models.InvalidRecurrenceError{Reason: fmt.Sprintf(format, args...)}
}

// Validate rejects malformed rules with InvalidRecurrenceError.
func Validate(r *models.Recurrence) error {
	if r == nil {
		return invalid("missing recurrence")
	}
	switch r.PeriodType {
	case models.PeriodHour, models.PeriodDay, models.PeriodWeek, models.PeriodMonth, models.PeriodYear:
	default:
		return invalid("unknown period type %q", r.PeriodType)
	}
	if r.Multiplier < 1 {
		return invalid("multiplier must be at least 1, got %d", r.Multiplier)
	}
	if r.PeriodStart.IsZero() {
		return invalid("period start is required")
	}
	if r.PeriodEnd != nil && r.PeriodEnd.Before(r.PeriodStart) {
		return invalid("period end %s is before start %s", r.PeriodEnd.Format(time.RFC3339), r.PeriodStart.Format(time.RFC3339))
	}
	if strings.TrimSpace(r.ByDay) != "" {
		if r.PeriodType != models.PeriodWeek && r.PeriodType != models.PeriodMonth {
			return invalid("by_day only applies to weekly and monthly rules")
		}
		set, err := ParseByDay(r.ByDay)
		if err != nil {
			return invalid("%v", err)
		}
		if len(set) == 0 {
			return invalid("by_day lists no weekdays")
		}
	}
	return nil
}

// NextOccurrence returns the first occurrence strictly after after, and
// false when the rule has none left (past PeriodEnd) or is invalid.
func NextOccurrence(r *models.Recurrence, after time.Time) (time.Time, bool) {
	if Validate(r) != nil {
		return time.Time{}, false
	}
	var next time.Time
	if strings.TrimSpace(r.ByDay) == "" {
		next = nextPlain(r, after)
	} else {
		days, _ := ParseByDay(r.ByDay)
		if r.PeriodType == models.PeriodWeek {
			next = nextWeekly(r, days, after)
		} else {
			next = nextMonthly(r, days, after)
		}
	}
	if r.PeriodEnd != nil && next.After(*r.PeriodEnd) {
		return time.Time{}, false
	}
	return next, true
}

// Occurrences lists occurrences in (after, until], at most limit of them.
func Occurrences(r *models.Recurrence, after, until time.Time, limit int) []time.Time {
	var out []time.Time
	for cur := after; limit <= 0 || len(out) < limit; {
		next, ok := NextOccurrence(r, cur)
		if !ok || next.After(until) {
			break
		}
		out = append(out, next)
		cur = next
	}
	return out
}

// Nth returns the k-th plain occurrence (k >= 0), ignoring any weekday
// filter and PeriodEnd. Budget periods are bounded by Nth(k) and Nth(k+1).
func Nth(r *models.Recurrence, k int) time.Time {
	start := r.PeriodStart
	n := k * r.Multiplier
	switch r.PeriodType {
	case models.PeriodHour:
		return start.Add(time.Duration(n) * time.Hour)
	case models.PeriodDay:
		return start.AddDate(0, 0, n)
	case models.PeriodWeek:
		return start.AddDate(0, 0, 7*n)
	case models.PeriodMonth:
		return addMonthsClamped(start, n)
	case models.PeriodYear:
		return addMonthsClamped(start, 12*n)
	}
	return start
}

// PeriodBounds returns [start, end) of period k.
func PeriodBounds(r *models.Recurrence, k int) (time.Time, time.Time, error) {
	if err := Validate(r); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if k < 0 {
		return time.Time{}, time.Time{}, invalid("period %d is negative", k)
	}
	return Nth(r, k), Nth(r, k+1), nil
}

// addMonthsClamped moves t by n months, clamping the day to the end of
// the target month instead of overflowing into the next one.
func addMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// estimate returns a period index at or before the first occurrence
// after after, so callers only step forward a few times.
func estimate(r *models.Recurrence, after time.Time) int {
	start := r.PeriodStart
	if !after.After(start) {
		return 0
	}
	var k int
	switch r.PeriodType {
	case models.PeriodHour:
		k = int(after.Sub(start) / time.Hour)
	case models.PeriodDay:
		k = int(after.Sub(start).Hours() / 24)
	case models.PeriodWeek:
		k = int(after.Sub(start).Hours() / (24 * 7))
	case models.PeriodMonth:
		k = monthsBetween(start, after)
	case models.PeriodYear:
		k = monthsBetween(start, after) / 12
	}
	k = k/r.Multiplier - 1
	if k < 0 {
		k = 0
	}
	return k
}

func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

func nextPlain(r *models.Recurrence, after time.Time) time.Time {
	k := estimate(r, after)
	for k > 0 && Nth(r, k).After(after) {
		k--
	}
	for {
		if t := Nth(r, k); t.After(after) {
			return t
		}
		k++
	}
}

func atTimeOf(ref time.Time, y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, ref.Hour(), ref.Minute(), ref.Second(), ref.Nanosecond(), ref.Location())
}

func nextWeekly(r *models.Recurrence, days map[time.Weekday]bool, after time.Time) time.Time {
	start := r.PeriodStart
	k := estimate(r, after)
	for {
		blockStart := start.AddDate(0, 0, 7*r.Multiplier*k)
		y, m, d := blockStart.Date()
		for i := 0; i < 7; i++ {
			t := atTimeOf(start, y, m, d+i)
			if days[t.Weekday()] && t.After(after) && !t.Before(start) {
				return t
			}
		}
		k++
	}
}

func nextMonthly(r *models.Recurrence, days map[time.Weekday]bool, after time.Time) time.Time {
	start := r.PeriodStart
	k := estimate(r, after)
	for {
		first := addMonthsClamped(time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location()), r.Multiplier*k)
		y, m := first.Year(), first.Month()
		for d := 1; d <= daysIn(y, m); d++ {
			t := atTimeOf(start, y, m, d)
			if days[t.Weekday()] && t.After(after) && !t.Before(start) {
				return t
			}
		}
		k++
	}
}
