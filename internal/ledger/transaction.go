package ledger

import (
	"context"
	"time"

	"cashbook/internal/database"
	"cashbook/internal/models"
)

// SaveTransaction creates or updates t. It validates t and its
// splits, then writes the transaction and replaces all of its splits.
// Nothing is written when any check fails.
func (tx *Tx) SaveTransaction(t *models.Transaction) error {
	return tx.saveTransaction(t, modeUpsert)
}

func (tx *Tx) saveTransaction(t *models.Transaction, mode Mode) error {
	if err := tx.requireWrite(); err != nil {
		return err
	}
	if mode != ModeUpdate {
		assignUID(&t.UID)
	}
	if err := tx.check("transaction", t.UID, t); err != nil {
		return err
	}
	if err := tx.prepareSplits(t); err != nil {
		return err
	}

	var cur models.Transaction
	found, err := tx.findByUID(&cur, t.UID)
	if err != nil {
		return err
	}
	if err := admit(mode, "transaction", t.UID, found); err != nil {
		return err
	}

	if found {
		t.ID = cur.ID
		t.CreatedAt = cur.CreatedAt
		if err := tx.db.Save(t).Error; err != nil {
			return database.Classify("update transaction", err)
		}
		if err := tx.db.Where("transaction_uid = ?", t.UID).Delete(&models.Split{}).Error; err != nil {
			return database.Classify("replace splits", err)
		}
	} else {
		t.ID = 0
		if err := tx.db.Create(t).Error; err != nil {
			return database.Classify("insert transaction", err)
		}
	}

	for i := range t.Splits {
		t.Splits[i].ID = 0
	}
	return database.Classify("insert splits", tx.db.Create(&t.Splits).Error)
}

// prepareSplits normalizes the splits of t and runs every check that
// must hold before anything is written: references resolve, amounts fit
// their commodity's smallest fraction, quantities agree with values for
// same-commodity splits, and the values balance.
func (tx *Tx) prepareSplits(t *models.Transaction) error {
	currency, err := tx.commodity(t.CurrencyUID)
	if err != nil {
		return err
	}
	if t.ScheduledActionUID != nil {
		if *t.ScheduledActionUID == "" {
			t.ScheduledActionUID = nil
		} else if ok, err := tx.exists(&models.ScheduledAction{}, *t.ScheduledActionUID); err != nil {
			return err
		} else if !ok {
			return &models.InvalidRecordError{Entity: "transaction", UID: t.UID, Reason: "unknown scheduled action " + *t.ScheduledActionUID}
		}
	}

	accounts := map[string]*models.Account{}
	commodities := map[string]*models.Commodity{currency.UID: currency}
	seen := map[string]bool{}

	for i := range t.Splits {
		s := &t.Splits[i]
		assignUID(&s.UID)
		if err := s.Normalize(); err != nil {
			return err
		}
		if seen[s.UID] {
			return &models.InvalidRecordError{Entity: "split", UID: s.UID, Reason: "duplicate uid within transaction"}
		}
		seen[s.UID] = true
		s.TransactionUID = t.UID
		if s.ReconcileDate.IsZero() {
			s.ReconcileDate = tx.now()
		}

		acct, ok := accounts[s.AccountUID]
		if !ok {
			if acct, err = tx.account(s.AccountUID); err != nil {
				return err
			}
			accounts[s.AccountUID] = acct
		}
		comm, ok := commodities[acct.CommodityUID]
		if !ok {
			if comm, err = tx.commodity(acct.CommodityUID); err != nil {
				return err
			}
			commodities[acct.CommodityUID] = comm
		}

		if !s.Value.RepresentableIn(currency.SmallestFraction) {
			return &models.InvalidRecordError{Entity: "split", UID: s.UID,
				Reason: "value " + s.Value.String() + " is finer than " + currency.Mnemonic + " allows"}
		}
		if comm.UID == currency.UID {
			// one commodity on both sides: the quantity is the value
			s.Quantity = s.Value
		} else if s.Quantity.IsZero() && !s.Value.IsZero() {
			return &models.InvalidRecordError{Entity: "split", UID: s.UID,
				Reason: "quantity in " + comm.Mnemonic + " is required for a " + currency.Mnemonic + " transaction"}
		}
		if !s.Quantity.RepresentableIn(comm.SmallestFraction) {
			return &models.InvalidRecordError{Entity: "split", UID: s.UID,
				Reason: "quantity " + s.Quantity.String() + " is finer than " + comm.Mnemonic + " allows"}
		}
		if err := storable("split", s.UID, "value", s.Value); err != nil {
			return err
		}
		if err := storable("split", s.UID, "quantity", s.Quantity); err != nil {
			return err
		}
	}

	if imbalance := t.Imbalance(); !imbalance.IsZero() {
		return &models.UnbalancedTransactionError{TransactionUID: t.UID, Imbalance: imbalance}
	}
	return nil
}

// GetTransaction loads a transaction with its splits in order.
func (tx *Tx) GetTransaction(uid string) (*models.Transaction, error) {
	var t models.Transaction
	found, err := tx.findByUID(&t, uid)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &models.NotFoundError{Entity: "transaction", UID: uid}
	}
	if t.Splits, err = tx.splitsOf(uid); err != nil {
		return nil, err
	}
	return &t, nil
}

func (tx *Tx) splitsOf(txUID string) ([]models.Split, error) {
	var splits []models.Split
	if err := tx.db.Where("transaction_uid = ?", txUID).Order("id").Find(&splits).Error; err != nil {
		return nil, database.Classify("load splits", err)
	}
	return splits, nil
}

// TransactionFilter narrows ListTransactions. Bounds are inclusive.
type TransactionFilter struct {
	AccountUID string
	From       *time.Time
	To         *time.Time
	Template   *bool
	Limit      int
	Offset     int
}

// ListTransactions returns matching transactions, oldest first, each
// with its splits.
func (tx *Tx) ListTransactions(f TransactionFilter) ([]models.Transaction, error) {
	q := tx.db.Model(&models.Transaction{})
	if f.AccountUID != "" {
		q = q.Where("uid IN (?)", tx.db.Model(&models.Split{}).Select("transaction_uid").Where("account_uid = ?", f.AccountUID))
	}
	if f.From != nil {
		q = q.Where("timestamp >= ?", models.UTC(*f.From))
	}
	if f.To != nil {
		q = q.Where("timestamp <= ?", models.UTC(*f.To))
	}
	if f.Template != nil {
		q = q.Where("is_template = ?", *f.Template)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var list []models.Transaction
	if err := q.Order("timestamp, id").Find(&list).Error; err != nil {
		return nil, database.Classify("list transactions", err)
	}
	if err := tx.attachSplits(list); err != nil {
		return nil, err
	}
	return list, nil
}

func (tx *Tx) attachSplits(list []models.Transaction) error {
	if len(list) == 0 {
		return nil
	}
	index := make(map[string]int, len(list))
	uids := make([]string, len(list))
	for i := range list {
		index[list[i].UID] = i
		uids[i] = list[i].UID
	}
	// stay well below sqlite's bound-parameter limit
	const chunk = 500
	for start := 0; start < len(uids); start += chunk {
		end := min(start+chunk, len(uids))
		var splits []models.Split
		err := tx.db.Where("transaction_uid IN ?", uids[start:end]).Order("id").Find(&splits).Error
		if err != nil {
			return database.Classify("load splits", err)
		}
		for _, s := range splits {
			i := index[s.TransactionUID]
			list[i].Splits = append(list[i].Splits, s)
		}
	}
	return nil
}

// SplitFilter narrows ListSplits. Bounds on the transaction timestamp are
// inclusive; template transactions are skipped unless asked for.
type SplitFilter struct {
	AccountUIDs      []string
	From             *time.Time
	To               *time.Time
	IncludeTemplates bool
}

// ListSplits returns splits joined with their transaction's filters.
func (tx *Tx) ListSplits(f SplitFilter) ([]models.Split, error) {
	q := tx.db.Model(&models.Split{}).Select("splits.*").
		Joins("JOIN transactions ON transactions.uid = splits.transaction_uid")
	if len(f.AccountUIDs) > 0 {
		q = q.Where("splits.account_uid IN ?", f.AccountUIDs)
	}
	if !f.IncludeTemplates {
		q = q.Where("transactions.is_template = ?", false)
	}
	if f.From != nil {
		q = q.Where("transactions.timestamp >= ?", models.UTC(*f.From))
	}
	if f.To != nil {
		q = q.Where("transactions.timestamp <= ?", models.UTC(*f.To))
	}
	var splits []models.Split
	if err := q.Order("transactions.timestamp, splits.id").Find(&splits).Error; err != nil {
		return nil, database.Classify("list splits", err)
	}
	return splits, nil
}

// DeleteTransaction removes a transaction and its splits.
func (tx *Tx) DeleteTransaction(uid string) error {
	if err := tx.requireWrite(); err != nil {
		return err
	}
	if _, err := tx.GetTransaction(uid); err != nil {
		return err
	}
	_, err := tx.deleteTransaction(uid)
	return err
}

// deleteTransaction removes the row and its splits, disabling any
// scheduled action that used it as template. It returns the uids of
// the disabled actions.
func (tx *Tx) deleteTransaction(uid string) ([]string, error) {
	if err := tx.db.Where("transaction_uid = ?", uid).Delete(&models.Split{}).Error; err != nil {
		return nil, database.Classify("delete splits", err)
	}
	if err := tx.db.Where("uid = ?", uid).Delete(&models.Transaction{}).Error; err != nil {
		return nil, database.Classify("delete transaction", err)
	}
	var actions []string
	err := tx.db.Model(&models.ScheduledAction{}).
		Where("action_uid = ? AND type = ? AND enabled = ?", uid, models.ActionTransaction, true).
		Pluck("uid", &actions).Error
	if err != nil {
		return nil, database.Classify("find scheduled actions", err)
	}
	if len(actions) > 0 {
		err = tx.db.Model(&models.ScheduledAction{}).Where("uid IN ?", actions).
			Updates(map[string]any{"enabled": false, "modified_at": tx.now()}).Error
		if err != nil {
			return nil, database.Classify("disable scheduled actions", err)
		}
	}
	return actions, nil
}

// DeleteAllNonTemplateTransactions removes every posted transaction and
// its splits. Template transactions are kept.
func (tx *Tx) DeleteAllNonTemplateTransactions() (int64, error) {
	if err := tx.requireWrite(); err != nil {
		return 0, err
	}
	posted := tx.db.Model(&models.Transaction{}).Select("uid").Where("is_template = ?", false)
	if err := tx.db.Where("transaction_uid IN (?)", posted).Delete(&models.Split{}).Error; err != nil {
		return 0, database.Classify("delete splits", err)
	}
	res := tx.db.Where("is_template = ?", false).Delete(&models.Transaction{})
	if res.Error != nil {
		return 0, database.Classify("delete transactions", res.Error)
	}
	tx.logger().WithField("deleted", res.RowsAffected).Info("posted transactions purged")
	return res.RowsAffected, nil
}

// MarkExported flags the named posted transactions as exported.
func (tx *Tx) MarkExported(uids []string) (int64, error) {
	if err := tx.requireWrite(); err != nil {
		return 0, err
	}
	if len(uids) == 0 {
		return 0, nil
	}
	res := tx.db.Model(&models.Transaction{}).
		Where("uid IN ? AND is_template = ? AND exported = ?", uids, false, false).
		Updates(map[string]any{"exported": true, "modified_at": tx.now()})
	return res.RowsAffected, database.Classify("mark exported", res.Error)
}

// SaveTransaction is createOrUpdateTransaction as one atomic unit.
func (s *Store) SaveTransaction(ctx context.Context, t *models.Transaction) error {
	return s.Update(ctx, func(tx *Tx) error { return tx.SaveTransaction(t) })
}

// GetTransaction is the single-operation form of Tx.GetTransaction.
func (s *Store) GetTransaction(ctx context.Context, uid string) (t *models.Transaction, err error) {
	err = s.View(ctx, func(tx *Tx) error {
		t, err = tx.GetTransaction(uid)
		return err
	})
	return t, err
}

// ListTransactions is the single-operation form of Tx.ListTransactions.
func (s *Store) ListTransactions(ctx context.Context, f TransactionFilter) (list []models.Transaction, err error) {
	err = s.View(ctx, func(tx *Tx) error {
		list, err = tx.ListTransactions(f)
		return err
	})
	return list, err
}

// ListSplits is the single-operation form of Tx.ListSplits.
func (s *Store) ListSplits(ctx context.Context, f SplitFilter) (list []models.Split, err error) {
	err = s.View(ctx, func(tx *Tx) error {
		list, err = tx.ListSplits(f)
		return err
	})
	return list, err
}

// DeleteTransaction is the single-operation form of Tx.DeleteTransaction.
func (s *Store) DeleteTransaction(ctx context.Context, uid string) error {
	return s.Update(ctx, func(tx *Tx) error { return tx.DeleteTransaction(uid) })
}

// DeleteAllNonTemplateTransactions purges posted transactions atomically.
func (s *Store) DeleteAllNonTemplateTransactions(ctx context.Context) (n int64, err error) {
	err = s.Update(ctx, func(tx *Tx) error {
		n, err = tx.DeleteAllNonTemplateTransactions()
		return err
	})
	return n, err
}
