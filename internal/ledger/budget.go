package ledger

import (
	"context"

	"cashbook/internal/database"
	"cashbook/internal/models"
	"cashbook/internal/recurrence"
)

// SaveBudget writes b, its recurrence and the full set of its amounts.
// Existing amounts not present in b.Amounts are removed.
func (tx *Tx) SaveBudget(b *models.Budget) error {
	return tx.saveBudget(b, modeUpsert)
}

func (tx *Tx) saveBudget(b *models.Budget, mode Mode) error {
	if err := tx.requireWrite(); err != nil {
		return err
	}
	if mode != ModeUpdate {
		assignUID(&b.UID)
	}
	if err := recurrence.Validate(b.Recurrence); err != nil {
		return err
	}
	if err := tx.check("budget", b.UID, b); err != nil {
		return err
	}

	seen := map[string]bool{}
	for i := range b.Amounts {
		ba := &b.Amounts[i]
		assignUID(&ba.UID)
		if seen[ba.UID] {
			return &models.InvalidRecordError{Entity: "budget amount", UID: ba.UID, Reason: "duplicate uid within budget"}
		}
		seen[ba.UID] = true
		ba.BudgetUID = b.UID
		acct, err := tx.account(ba.AccountUID)
		if err != nil {
			return err
		}
		comm, err := tx.commodity(acct.CommodityUID)
		if err != nil {
			return err
		}
		if !ba.Amount.RepresentableIn(comm.SmallestFraction) {
			return &models.InvalidRecordError{Entity: "budget amount", UID: ba.UID,
				Reason: "amount " + ba.Amount.String() + " is finer than " + comm.Mnemonic + " allows"}
		}
		if err := storable("budget amount", ba.UID, "amount", ba.Amount); err != nil {
			return err
		}
		if b.NumPeriods > 0 && ba.PeriodNum >= b.NumPeriods {
			return &models.InvalidRecordError{Entity: "budget amount", UID: ba.UID, Reason: "period is beyond the budget"}
		}
	}

	var cur models.Budget
	found, err := tx.findByUID(&cur, b.UID)
	if err != nil {
		return err
	}
	if err := admit(mode, "budget", b.UID, found); err != nil {
		return err
	}
	if found && b.Recurrence.UID == "" {
		b.Recurrence.UID = cur.RecurrenceUID
	}
	if err := tx.saveRecurrence(b.Recurrence); err != nil {
		return err
	}
	b.RecurrenceUID = b.Recurrence.UID

	if found {
		b.ID = cur.ID
		b.CreatedAt = cur.CreatedAt
		if err := tx.db.Save(b).Error; err != nil {
			return database.Classify("update budget", err)
		}
		if err := tx.db.Where("budget_uid = ?", b.UID).Delete(&models.BudgetAmount{}).Error; err != nil {
			return database.Classify("replace budget amounts", err)
		}
		if cur.RecurrenceUID != b.RecurrenceUID {
			if err := tx.db.Where("uid = ?", cur.RecurrenceUID).Delete(&models.Recurrence{}).Error; err != nil {
				return database.Classify("delete old recurrence", err)
			}
		}
	} else {
		b.ID = 0
		if err := tx.db.Create(b).Error; err != nil {
			return database.Classify("insert budget", err)
		}
	}

	if len(b.Amounts) == 0 {
		return nil
	}
	for i := range b.Amounts {
		b.Amounts[i].ID = 0
	}
	return database.Classify("insert budget amounts", tx.db.Create(&b.Amounts).Error)
}

// GetBudget loads a budget with its recurrence and amounts.
func (tx *Tx) GetBudget(uid string) (*models.Budget, error) {
	var b models.Budget
	found, err := tx.findByUID(&b, uid)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &models.NotFoundError{Entity: "budget", UID: uid}
	}
	if err := tx.loadBudget(&b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (tx *Tx) loadBudget(b *models.Budget) error {
	var err error
	if b.Recurrence, err = tx.getRecurrence(b.RecurrenceUID); err != nil {
		return err
	}
	if err := tx.db.Where("budget_uid = ?", b.UID).Order("id").Find(&b.Amounts).Error; err != nil {
		return database.Classify("load budget amounts", err)
	}
	return nil
}

// ListBudgets returns every budget, fully loaded.
func (tx *Tx) ListBudgets() ([]models.Budget, error) {
	var list []models.Budget
	if err := tx.db.Order("name, id").Find(&list).Error; err != nil {
		return nil, database.Classify("list budgets", err)
	}
	for i := range list {
		if err := tx.loadBudget(&list[i]); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// DeleteBudget removes a budget, its amounts and its recurrence.
func (tx *Tx) DeleteBudget(uid string) error {
	if err := tx.requireWrite(); err != nil {
		return err
	}
	var b models.Budget
	found, err := tx.findByUID(&b, uid)
	if err != nil {
		return err
	}
	if !found {
		return &models.NotFoundError{Entity: "budget", UID: uid}
	}
	if err := tx.db.Where("budget_uid = ?", uid).Delete(&models.BudgetAmount{}).Error; err != nil {
		return database.Classify("delete budget amounts", err)
	}
	if err := tx.db.Where("uid = ?", uid).Delete(&models.Budget{}).Error; err != nil {
		return database.Classify("delete budget", err)
	}
	return database.Classify("delete recurrence", tx.db.Where("uid = ?", b.RecurrenceUID).Delete(&models.Recurrence{}).Error)
}

// SaveBudget is the single-operation form of Tx.SaveBudget.
func (s *Store) SaveBudget(ctx context.Context, b *models.Budget) error {
	return s.Update(ctx, func(tx *Tx) error { return tx.SaveBudget(b) })
}

// GetBudget is the single-operation form of Tx.GetBudget.
func (s *Store) GetBudget(ctx context.Context, uid string) (b *models.Budget, err error) {
	err = s.View(ctx, func(tx *Tx) error {
		b, err = tx.GetBudget(uid)
		return err
	})
	return b, err
}

// ListBudgets is the single-operation form of Tx.ListBudgets.
func (s *Store) ListBudgets(ctx context.Context) (list []models.Budget, err error) {
	err = s.View(ctx, func(tx *Tx) error {
		list, err = tx.ListBudgets()
		return err
	})
	return list, err
}

// DeleteBudget is the single-operation form of Tx.DeleteBudget.
func (s *Store) DeleteBudget(ctx context.Context, uid string) error {
	return s.Update(ctx, func(tx *Tx) error { return tx.DeleteBudget(uid) })
}
