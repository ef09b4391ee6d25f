// Package scheduler runs scheduled actions: it materializes template
// transactions, emits notifications and triggers backups when their
// recurrences come due.
package scheduler

import (
	"time"

	"cashbook/internal/models"
	"cashbook/internal/recurrence"
)

// State of a scheduled action at a given instant.
type State string

const (
	StateDisabled  State = "disabled"
	StatePending   State = "pending"
	StateDue       State = "due"
	StateExhausted State = "exhausted"
)

// NextRun returns the first occurrence after the action's last run, or
// after its start when it never ran. False when no occurrence is left
// before the end time or the recurrence's end.
func NextRun(a *models.ScheduledAction) (time.Time, bool) {
	if a.Recurrence == nil {
		return time.Time{}, false
	}
	after := a.StartTime.Add(-time.Nanosecond)
	if a.LastRun != nil && a.LastRun.After(after) {
		after = *a.LastRun
	}
	next, ok := recurrence.NextOccurrence(a.Recurrence, after)
	if !ok {
		return time.Time{}, false
	}
	if a.EndTime != nil && next.After(*a.EndTime) {
		return time.Time{}, false
	}
	return next, true
}

// Lead is how far ahead of an occurrence the action acts. Notify-only
// actions use the notification lead, everything else the creation lead.
func Lead(a *models.ScheduledAction) time.Duration {
	days := a.AdvanceCreation
	if a.Type == models.ActionTransaction && a.AutoNotify && !a.AutoCreate {
		days = a.AdvanceNotify
	}
	return time.Duration(days) * 24 * time.Hour
}

// StateOf evaluates the action's state machine at now. Once now is past
// the end time the action is exhausted, even with occurrences left
// before the end that never ran.
func StateOf(a *models.ScheduledAction, now time.Time) State {
	if !a.Enabled {
		return StateDisabled
	}
	if a.TotalFrequency > 0 && a.ExecutionCount >= a.TotalFrequency {
		return StateExhausted
	}
	if a.EndTime != nil && now.After(*a.EndTime) {
		return StateExhausted
	}
	next, ok := NextRun(a)
	if !ok {
		return StateExhausted
	}
	if !next.After(now.Add(Lead(a))) {
		return StateDue
	}
	return StatePending
}
