package ledger

import (
	"context"
	"errors"
	"time"

	"cashbook/internal/database"
	"cashbook/internal/models"
	"cashbook/internal/recurrence"

	"gorm.io/gorm"
)

// ErrScheduleConflict means the scheduled action was advanced by someone
// else since it was read.
var ErrScheduleConflict = errors.New("ledger: scheduled action changed concurrently")

// saveRecurrence writes r, creating it when its uid is new.
func (tx *Tx) saveRecurrence(r *models.Recurrence) error {
	assignUID(&r.UID)
	if err := recurrence.Validate(r); err != nil {
		return err
	}
	var cur models.Recurrence
	found, err := tx.findByUID(&cur, r.UID)
	if err != nil {
		return err
	}
	if !found {
		r.ID = 0
		return database.Classify("insert recurrence", tx.db.Create(r).Error)
	}
	r.ID = cur.ID
	r.CreatedAt = cur.CreatedAt
	return database.Classify("update recurrence", tx.db.Save(r).Error)
}

func (tx *Tx) getRecurrence(uid string) (*models.Recurrence, error) {
	var r models.Recurrence
	found, err := tx.findByUID(&r, uid)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &models.NotFoundError{Entity: "recurrence", UID: uid}
	}
	return &r, nil
}

// SaveScheduledAction writes a together with the Recurrence it owns. The
// rule is validated here so a malformed schedule never reaches tick.
func (tx *Tx) SaveScheduledAction(a *models.ScheduledAction) error {
	return tx.saveScheduledAction(a, modeUpsert)
}

func (tx *Tx) saveScheduledAction(a *models.ScheduledAction, mode Mode) error {
	if err := tx.requireWrite(); err != nil {
		return err
	}
	if mode != ModeUpdate {
		assignUID(&a.UID)
	}
	if a.Recurrence == nil {
		return &models.InvalidRecurrenceError{Reason: "scheduled action " + a.UID + " has no recurrence"}
	}
	if err := recurrence.Validate(a.Recurrence); err != nil {
		return err
	}
	if err := tx.check("scheduled action", a.UID, a); err != nil {
		return err
	}
	if a.EndTime != nil && a.EndTime.Before(a.StartTime) {
		return &models.InvalidRecordError{Entity: "scheduled action", UID: a.UID, Reason: "end time is before start time"}
	}
	if a.TotalFrequency > 0 && a.ExecutionCount > a.TotalFrequency {
		return &models.InvalidRecordError{Entity: "scheduled action", UID: a.UID, Reason: "execution count exceeds total frequency"}
	}
	if a.Type == models.ActionTransaction {
		var tmpl models.Transaction
		found, err := tx.findByUID(&tmpl, a.ActionUID)
		if err != nil {
			return err
		}
		if !found || !tmpl.IsTemplate {
			return &models.InvalidRecordError{Entity: "scheduled action", UID: a.UID,
				Reason: "action_uid must reference a template transaction"}
		}
	}

	var cur models.ScheduledAction
	found, err := tx.findByUID(&cur, a.UID)
	if err != nil {
		return err
	}
	if err := admit(mode, "scheduled action", a.UID, found); err != nil {
		return err
	}
	if found && a.Recurrence.UID == "" {
		a.Recurrence.UID = cur.RecurrenceUID
	}
	if err := tx.saveRecurrence(a.Recurrence); err != nil {
		return err
	}
	a.RecurrenceUID = a.Recurrence.UID

	if !found {
		a.ID = 0
		return database.Classify("insert scheduled action", tx.db.Create(a).Error)
	}
	a.ID = cur.ID
	a.CreatedAt = cur.CreatedAt
	if err := tx.db.Save(a).Error; err != nil {
		return database.Classify("update scheduled action", err)
	}
	if cur.RecurrenceUID != a.RecurrenceUID {
		return database.Classify("delete old recurrence", tx.db.Where("uid = ?", cur.RecurrenceUID).Delete(&models.Recurrence{}).Error)
	}
	return nil
}

// GetScheduledAction loads an action with its recurrence.
func (tx *Tx) GetScheduledAction(uid string) (*models.ScheduledAction, error) {
	var a models.ScheduledAction
	found, err := tx.findByUID(&a, uid)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &models.NotFoundError{Entity: "scheduled action", UID: uid}
	}
	if a.Recurrence, err = tx.getRecurrence(a.RecurrenceUID); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListScheduledActions returns actions with their recurrences.
func (tx *Tx) ListScheduledActions(enabledOnly bool) ([]models.ScheduledAction, error) {
	q := tx.db.Model(&models.ScheduledAction{})
	if enabledOnly {
		q = q.Where("enabled = ?", true)
	}
	var list []models.ScheduledAction
	if err := q.Order("id").Find(&list).Error; err != nil {
		return nil, database.Classify("list scheduled actions", err)
	}
	var err error
	for i := range list {
		if list[i].Recurrence, err = tx.getRecurrence(list[i].RecurrenceUID); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// DeleteScheduledAction removes the action, its recurrence and, for
// transaction actions, its template. Transactions it already created
// stay and lose the back reference.
func (tx *Tx) DeleteScheduledAction(uid string) error {
	if err := tx.requireWrite(); err != nil {
		return err
	}
	a, err := tx.GetScheduledAction(uid)
	if err != nil {
		return err
	}
	err = tx.db.Model(&models.Transaction{}).Where("scheduled_action_uid = ?", uid).
		Update("scheduled_action_uid", nil).Error
	if err != nil {
		return database.Classify("detach transactions", err)
	}
	if err := tx.db.Where("uid = ?", uid).Delete(&models.ScheduledAction{}).Error; err != nil {
		return database.Classify("delete scheduled action", err)
	}
	if err := tx.db.Where("uid = ?", a.RecurrenceUID).Delete(&models.Recurrence{}).Error; err != nil {
		return database.Classify("delete recurrence", err)
	}
	if a.Type == models.ActionTransaction {
		var tmpl models.Transaction
		found, err := tx.findByUID(&tmpl, a.ActionUID)
		if err != nil {
			return err
		}
		if found && tmpl.IsTemplate {
			if _, err := tx.deleteTransaction(tmpl.UID); err != nil {
				return err
			}
		}
	}
	return nil
}

// AdvanceScheduledAction moves last_run from prev to next and adds runs
// to execution_count, but only if last_run still equals prev.
func (tx *Tx) AdvanceScheduledAction(uid string, prev *time.Time, next time.Time, runs int) error {
	if err := tx.requireWrite(); err != nil {
		return err
	}
	q := tx.db.Model(&models.ScheduledAction{}).Where("uid = ?", uid)
	if prev == nil {
		q = q.Where("last_run IS NULL")
	} else {
		q = q.Where("last_run = ?", models.UTC(*prev))
	}
	res := q.Updates(map[string]any{
		"last_run":        models.UTC(next),
		"execution_count": gorm.Expr("execution_count + ?", runs),
		"modified_at":     tx.now(),
	})
	if res.Error != nil {
		return database.Classify("advance scheduled action", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrScheduleConflict
	}
	return nil
}

// SetScheduledActionEnabled switches an action on or off.
func (tx *Tx) SetScheduledActionEnabled(uid string, enabled bool) error {
	if err := tx.requireWrite(); err != nil {
		return err
	}
	res := tx.db.Model(&models.ScheduledAction{}).Where("uid = ?", uid).
		Updates(map[string]any{"enabled": enabled, "modified_at": tx.now()})
	if res.Error != nil {
		return database.Classify("toggle scheduled action", res.Error)
	}
	if res.RowsAffected == 0 {
		return &models.NotFoundError{Entity: "scheduled action", UID: uid}
	}
	return nil
}

// SaveScheduledAction is the single-operation form of Tx.SaveScheduledAction.
func (s *Store) SaveScheduledAction(ctx context.Context, a *models.ScheduledAction) error {
	return s.Update(ctx, func(tx *Tx) error { return tx.SaveScheduledAction(a) })
}

// GetScheduledAction is the single-operation form of Tx.GetScheduledAction.
func (s *Store) GetScheduledAction(ctx context.Context, uid string) (a *models.ScheduledAction, err error) {
	err = s.View(ctx, func(tx *Tx) error {
		a, err = tx.GetScheduledAction(uid)
		return err
	})
	return a, err
}

// ListScheduledActions is the single-operation form of Tx.ListScheduledActions.
func (s *Store) ListScheduledActions(ctx context.Context, enabledOnly bool) (list []models.ScheduledAction, err error) {
	err = s.View(ctx, func(tx *Tx) error {
		list, err = tx.ListScheduledActions(enabledOnly)
		return err
	})
	return list, err
}

// DeleteScheduledAction is the single-operation form of Tx.DeleteScheduledAction.
func (s *Store) DeleteScheduledAction(ctx context.Context, uid string) error {
	return s.Update(ctx, func(tx *Tx) error { return tx.DeleteScheduledAction(uid) })
}
