package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cashbook/internal/ledger"
	"cashbook/internal/models"

	"github.com/sirupsen/logrus"
)

// DefaultMaxRunsPerTick bounds catch-up work for a single action in one
// tick; the rest is picked up by the next tick.
const DefaultMaxRunsPerTick = 1000

// NotificationKind tells an upcoming occurrence from a created one.
type NotificationKind string

const (
	NotifyUpcoming NotificationKind = "upcoming"
	NotifyCreated  NotificationKind = "created"
)

// Notification is delivered to the Notifier for auto-notify actions.
type Notification struct {
	Kind           NotificationKind `json:"kind"`
	ActionUID      string           `json:"action_uid"`
	Occurrence     time.Time        `json:"occurrence"`
	TransactionUID string           `json:"transaction_uid,omitempty"`
	Description    string           `json:"description,omitempty"`
}

// Notifier receives notification events. Notify runs inside the write
// unit of the occurrence; an error rolls the occurrence back.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// BackupRunner is the collaborator behind backup actions. It returns a
// reference to the backup it wrote.
type BackupRunner interface {
	RunScheduledBackup(ctx context.Context, actionUID string) (string, error)
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	Log *logrus.Logger
}

func (n LogNotifier) Notify(_ context.Context, note Notification) error {
	n.Log.WithFields(logrus.Fields{
		"module":          "scheduler",
		"kind":            note.Kind,
		"action_uid":      note.ActionUID,
		"occurrence":      note.Occurrence.Format(time.RFC3339),
		"transaction_uid": note.TransactionUID,
	}).Info(note.Description)
	return nil
}

// Failure is an occurrence that could not be processed. It is retried on
// the next tick.
type Failure struct {
	ActionUID  string    `json:"action_uid"`
	Occurrence time.Time `json:"occurrence"`
	Error      string    `json:"error"`
}

// BackupRun is one backup triggered by a backup action. Occurrences
// counts the schedule occurrences it covered.
type BackupRun struct {
	ActionUID   string `json:"action_uid"`
	Backup      string `json:"backup"`
	Occurrences int    `json:"occurrences"`
}

// TickReport summarizes one tick.
type TickReport struct {
	Now           time.Time      `json:"now"`
	Created       []string       `json:"created"`
	Notifications []Notification `json:"notifications"`
	Backups       []BackupRun    `json:"backups"`
	Failures      []Failure      `json:"failures"`
}

// Engine is the recurrence engine. It holds no state of its own; the
// progress of every action lives in the ledger.
type Engine struct {
	store    *ledger.Store
	log      *logrus.Logger
	notifier Notifier
	backups  BackupRunner
	now      func() time.Time

	MaxRunsPerTick int
}

// NewEngine wires the engine. A nil notifier logs notifications; with a
// nil backup runner backup actions fail and are retried.
func NewEngine(store *ledger.Store, log *logrus.Logger, notifier Notifier, backups BackupRunner) *Engine {
	if notifier == nil {
		notifier = LogNotifier{Log: log}
	}
	return &Engine{
		store:          store,
		log:            log,
		notifier:       notifier,
		backups:        backups,
		now:            func() time.Time { return time.Now().UTC() },
		MaxRunsPerTick: DefaultMaxRunsPerTick,
	}
}

func (e *Engine) logger() *logrus.Entry {
	return e.log.WithField("module", "scheduler")
}

// Tick processes every enabled action against now. A single tick
// catches up on all occurrences missed since the last one. Failures are
// reported per action and never advance that action.
func (e *Engine) Tick(ctx context.Context, now time.Time) (*TickReport, error) {
	now = now.UTC()
	actions, err := e.store.ListScheduledActions(ctx, true)
	if err != nil {
		return nil, err
	}
	report := &TickReport{Now: now}
	for i := range actions {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		a := &actions[i]
		if a.Type == models.ActionBackup {
			e.runBackup(ctx, a, now, report)
		} else {
			e.runTransactions(ctx, a.UID, now, report)
		}
	}
	e.logger().WithFields(logrus.Fields{
		"now":           now.Format(time.RFC3339),
		"actions":       len(actions),
		"created":       len(report.Created),
		"notifications": len(report.Notifications),
		"backups":       len(report.Backups),
		"failures":      len(report.Failures),
	}).Info("tick finished")
	return report, nil
}

// runTransactions handles one occurrence per write unit: the action is
// re-read, the template cloned and saved, and last_run advanced, all or
// nothing. Re-reading inside the unit means a concurrent tick sees the
// advanced last_run and never materializes the same occurrence twice.
func (e *Engine) runTransactions(ctx context.Context, uid string, now time.Time, report *TickReport) {
	for runs := 0; runs < e.MaxRunsPerTick; runs++ {
		if ctx.Err() != nil {
			return
		}
		var (
			occurrence time.Time
			created    *models.Transaction
			note       *Notification
			done       bool
		)
		err := e.store.Update(ctx, func(tx *ledger.Tx) error {
			a, err := tx.GetScheduledAction(uid)
			if err != nil {
				return err
			}
			if StateOf(a, now) != StateDue || (!a.AutoCreate && !a.AutoNotify) {
				done = true
				return nil
			}
			occurrence, _ = NextRun(a)

			if a.AutoCreate {
				tmpl, err := tx.GetTransaction(a.ActionUID)
				if err != nil {
					return fmt.Errorf("load template: %w", err)
				}
				created = CloneTemplate(tmpl, a.UID, occurrence)
				if err := tx.SaveTransaction(created); err != nil {
					return fmt.Errorf("save occurrence: %w", err)
				}
				if a.AutoNotify {
					note = &Notification{Kind: NotifyCreated, ActionUID: a.UID, Occurrence: occurrence,
						TransactionUID: created.UID, Description: created.Description}
				}
			} else {
				desc := ""
				if tmpl, err := tx.GetTransaction(a.ActionUID); err == nil {
					desc = tmpl.Description
				}
				note = &Notification{Kind: NotifyUpcoming, ActionUID: a.UID, Occurrence: occurrence, Description: desc}
			}
			if note != nil {
				if err := e.notifier.Notify(ctx, *note); err != nil {
					return fmt.Errorf("notify: %w", err)
				}
			}
			return tx.AdvanceScheduledAction(a.UID, a.LastRun, occurrence, 1)
		})
		if err != nil {
			e.fail(report, uid, occurrence, err)
			return
		}
		if done {
			return
		}
		if created != nil {
			report.Created = append(report.Created, created.UID)
		}
		if note != nil {
			report.Notifications = append(report.Notifications, *note)
		}
	}
	e.logger().WithField("action_uid", uid).Warn("catch-up limit reached, continuing next tick")
}

// runBackup collapses every due occurrence into a single backup, then
// advances the action past all of them.
func (e *Engine) runBackup(ctx context.Context, a *models.ScheduledAction, now time.Time, report *TickReport) {
	if StateOf(a, now) != StateDue {
		return
	}
	limit := e.MaxRunsPerTick
	if a.TotalFrequency > 0 {
		limit = min(limit, a.TotalFrequency-a.ExecutionCount)
	}
	horizon := now.Add(Lead(a))
	probe := *a
	var last time.Time
	count := 0
	for count < limit {
		next, ok := NextRun(&probe)
		if !ok || next.After(horizon) {
			break
		}
		last = next
		probe.LastRun = &last
		count++
	}
	if count == 0 {
		return
	}
	if e.backups == nil {
		e.fail(report, a.UID, last, errors.New("no backup collaborator configured"))
		return
	}
	ref, err := e.backups.RunScheduledBackup(ctx, a.UID)
	if err != nil {
		e.fail(report, a.UID, last, fmt.Errorf("backup: %w", err))
		return
	}
	err = e.store.Update(ctx, func(tx *ledger.Tx) error {
		return tx.AdvanceScheduledAction(a.UID, a.LastRun, last, count)
	})
	if errors.Is(err, ledger.ErrScheduleConflict) {
		e.logger().WithField("action_uid", a.UID).Info("backup action advanced concurrently")
		return
	}
	if err != nil {
		e.fail(report, a.UID, last, err)
		return
	}
	report.Backups = append(report.Backups, BackupRun{ActionUID: a.UID, Backup: ref, Occurrences: count})
}

func (e *Engine) fail(report *TickReport, uid string, occurrence time.Time, err error) {
	e.logger().WithFields(logrus.Fields{
		"action_uid": uid,
		"occurrence": occurrence.Format(time.RFC3339),
	}).WithError(err).Error("scheduled occurrence failed, will retry")
	report.Failures = append(report.Failures, Failure{ActionUID: uid, Occurrence: occurrence, Error: err.Error()})
}

// CloneTemplate copies a template transaction into a postable one dated
// at the occurrence. Splits get fresh uids and a new reconcile state.
func CloneTemplate(tmpl *models.Transaction, actionUID string, at time.Time) *models.Transaction {
	out := &models.Transaction{
		UID:                models.NewUID(),
		Description:        tmpl.Description,
		Notes:              tmpl.Notes,
		Timestamp:          at,
		CurrencyUID:        tmpl.CurrencyUID,
		ScheduledActionUID: &actionUID,
		Splits:             make([]models.Split, len(tmpl.Splits)),
	}
	for i, s := range tmpl.Splits {
		out.Splits[i] = models.Split{
			UID:            models.NewUID(),
			AccountUID:     s.AccountUID,
			Memo:           s.Memo,
			Type:           s.Type,
			Value:          s.Value,
			Quantity:       s.Quantity,
			ReconcileState: models.ReconcileNew,
		}
	}
	return out
}

// Run ticks immediately and then every interval until ctx is done.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := e.Tick(ctx, e.now()); err != nil && ctx.Err() == nil {
			e.logger().WithError(err).Error("tick failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
