package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cashbook/internal/database"
	"cashbook/internal/models"

	"github.com/sirupsen/logrus"
)

// BulkAdd writes records in order through the same checks as the single
// record operations. Supported records are commodities, accounts,
// transactions, prices, scheduled actions and budgets, by value or by
// pointer. It stops at the first failure and returns how many records
// were written before it.
func (tx *Tx) BulkAdd(ctx context.Context, records []any, mode Mode) (int, error) {
	if err := tx.requireWrite(); err != nil {
		return 0, err
	}
	if !mode.valid() {
		return 0, fmt.Errorf("ledger: unknown bulk mode %q", mode)
	}
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := tx.addRecord(rec, mode); err != nil {
			return i, err
		}
	}
	return len(records), nil
}

func (tx *Tx) addRecord(rec any, mode Mode) error {
	switch r := rec.(type) {
	case *models.Commodity:
		return tx.saveCommodity(r, mode)
	case models.Commodity:
		return tx.saveCommodity(&r, mode)
	case *models.Account:
		return tx.saveAccount(r, mode)
	case models.Account:
		return tx.saveAccount(&r, mode)
	case *models.Transaction:
		return tx.saveTransaction(r, mode)
	case models.Transaction:
		return tx.saveTransaction(&r, mode)
	case *models.Price:
		return tx.savePrice(r, mode)
	case models.Price:
		return tx.savePrice(&r, mode)
	case *models.ScheduledAction:
		return tx.saveScheduledAction(r, mode)
	case models.ScheduledAction:
		return tx.saveScheduledAction(&r, mode)
	case *models.Budget:
		return tx.saveBudget(r, mode)
	case models.Budget:
		return tx.saveBudget(&r, mode)
	case transferLink:
		return tx.linkDefaultTransfer(r)
	case nil:
		return &models.InvalidRecordError{Entity: "record", Reason: "nil record"}
	}
	return &models.InvalidRecordError{Entity: "record", Reason: fmt.Sprintf("unsupported record type %T", rec)}
}

// SaveRecord writes one record with an explicit mode: ModeInsert fails
// on an existing uid, ModeUpdate on a missing one.
func (s *Store) SaveRecord(ctx context.Context, rec any, mode Mode) error {
	return s.Update(ctx, func(tx *Tx) error { return tx.addRecord(rec, mode) })
}

// transferLink sets an account's default transfer account once both
// accounts exist.
type transferLink struct {
	AccountUID string
	TargetUID  string
}

func (tx *Tx) linkDefaultTransfer(l transferLink) error {
	if l.AccountUID == l.TargetUID {
		return &models.InvalidRecordError{Entity: "account", UID: l.AccountUID, Reason: "default transfer account cannot be itself"}
	}
	if _, err := tx.account(l.TargetUID); err != nil {
		return err
	}
	res := tx.db.Model(&models.Account{}).Where("uid = ?", l.AccountUID).
		Updates(map[string]any{"default_transfer_account_uid": l.TargetUID, "modified_at": tx.now()})
	if res.Error != nil {
		return database.Classify("link default transfer", res.Error)
	}
	if res.RowsAffected == 0 {
		return &models.UnknownAccountError{AccountUID: l.AccountUID}
	}
	return nil
}

// BulkAddRecords writes the whole list as one unit.
// A record that fails its checks rolls everything back. Cancelling ctx
// stops between records; the records already written are committed and
// the count is returned together with ctx's error.
func (s *Store) BulkAddRecords(ctx context.Context, records []any, mode Mode) (int, error) {
	var n int
	var stopped error
	err := s.Update(ctx, func(tx *Tx) error {
		var err error
		n, err = tx.BulkAdd(ctx, records, mode)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			stopped = err
			return nil
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	s.log.WithFields(logrus.Fields{
		"module":      "ledger",
		"mode":        string(mode),
		"written":     n,
		"requested":   len(records),
		"interrupted": stopped != nil,
	}).Info("bulk add finished")
	return n, stopped
}

// Snapshot is a consistent copy of the whole ledger. Accounts are listed
// parents first so the snapshot can be written back in order.
type Snapshot struct {
	TakenAt          time.Time                `json:"taken_at" yaml:"taken_at"`
	Commodities      []models.Commodity       `json:"commodities" yaml:"commodities"`
	Accounts         []models.Account         `json:"accounts" yaml:"accounts"`
	Prices           []models.Price           `json:"prices" yaml:"prices"`
	Transactions     []models.Transaction     `json:"transactions" yaml:"transactions"`
	ScheduledActions []models.ScheduledAction `json:"scheduled_actions" yaml:"scheduled_actions"`
	Budgets          []models.Budget          `json:"budgets" yaml:"budgets"`
}

// Posted returns the non-template transactions.
func (s *Snapshot) Posted() []models.Transaction {
	var out []models.Transaction
	for _, t := range s.Transactions {
		if !t.IsTemplate {
			out = append(out, t)
		}
	}
	return out
}

// Records orders the snapshot for BulkAdd: every record comes after
// the records it references.
func (s *Snapshot) Records() []any {
	var out []any
	for i := range s.Commodities {
		out = append(out, &s.Commodities[i])
	}
	// default transfer accounts may point forward; link them afterwards
	var links []any
	for _, a := range sortAccountsParentsFirst(s.Accounts) {
		if a.DefaultTransferAccountUID != nil && *a.DefaultTransferAccountUID != "" {
			links = append(links, transferLink{AccountUID: a.UID, TargetUID: *a.DefaultTransferAccountUID})
			c := *a
			c.DefaultTransferAccountUID = nil
			a = &c
		}
		out = append(out, a)
	}
	out = append(out, links...)
	for i := range s.Transactions {
		if s.Transactions[i].IsTemplate {
			out = append(out, &s.Transactions[i])
		}
	}
	for i := range s.ScheduledActions {
		out = append(out, &s.ScheduledActions[i])
	}
	for i := range s.Transactions {
		if !s.Transactions[i].IsTemplate {
			out = append(out, &s.Transactions[i])
		}
	}
	for i := range s.Prices {
		out = append(out, &s.Prices[i])
	}
	for i := range s.Budgets {
		out = append(out, &s.Budgets[i])
	}
	return out
}

// sortAccountsParentsFirst returns pointers into list so that every
// account follows its parent. Accounts whose parent is not in list keep
// their relative order at the front.
func sortAccountsParentsFirst(list []models.Account) []*models.Account {
	byUID := make(map[string]bool, len(list))
	children := map[string][]*models.Account{}
	for i := range list {
		byUID[list[i].UID] = true
	}
	var out []*models.Account
	for i := range list {
		a := &list[i]
		if a.ParentUID == nil || !byUID[*a.ParentUID] {
			out = append(out, a)
			continue
		}
		children[*a.ParentUID] = append(children[*a.ParentUID], a)
	}
	for i := 0; i < len(out); i++ {
		out = append(out, children[out[i].UID]...)
		delete(children, out[i].UID)
	}
	// cycles never reach the roots; append them so validation reports them
	var rest []string
	for uid := range children {
		rest = append(rest, uid)
	}
	sort.Strings(rest)
	for _, uid := range rest {
		out = append(out, children[uid]...)
	}
	return out
}

// Snapshot reads the whole ledger in one consistent view.
func (tx *Tx) Snapshot() (*Snapshot, error) {
	snap := &Snapshot{TakenAt: tx.now()}
	var err error
	if snap.Commodities, err = tx.ListCommodities(); err != nil {
		return nil, err
	}
	accounts, err := tx.ListAccounts(AccountFilter{IncludeHidden: true})
	if err != nil {
		return nil, err
	}
	for _, a := range sortAccountsParentsFirst(accounts) {
		snap.Accounts = append(snap.Accounts, *a)
	}
	if snap.Prices, err = tx.ListPrices(); err != nil {
		return nil, err
	}
	if snap.Transactions, err = tx.ListTransactions(TransactionFilter{}); err != nil {
		return nil, err
	}
	if snap.ScheduledActions, err = tx.ListScheduledActions(false); err != nil {
		return nil, err
	}
	if snap.Budgets, err = tx.ListBudgets(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Snapshot is the read-only export path.
func (s *Store) Snapshot(ctx context.Context) (snap *Snapshot, err error) {
	err = s.View(ctx, func(tx *Tx) error {
		snap, err = tx.Snapshot()
		return err
	})
	return snap, err
}

// Import ingests a whole graph through BulkAddRecords.
func (s *Store) Import(ctx context.Context, snap *Snapshot, mode Mode) (int, error) {
	return s.BulkAddRecords(ctx, snap.Records(), mode)
}

// purge empties every ledger table. Backups stay registered.
func (tx *Tx) purge() error {
	// children before parents so foreign keys hold at every step
	steps := []struct {
		name  string
		model any
	}{
		{"budget amounts", &models.BudgetAmount{}},
		{"budgets", &models.Budget{}},
		{"splits", &models.Split{}},
		{"transactions", &models.Transaction{}},
		{"scheduled actions", &models.ScheduledAction{}},
		{"recurrences", &models.Recurrence{}},
		{"prices", &models.Price{}},
	}
	for _, st := range steps {
		if err := tx.db.Where("1 = 1").Delete(st.model).Error; err != nil {
			return database.Classify("purge "+st.name, err)
		}
	}
	// accounts reference each other; clear the links first
	err := tx.db.Model(&models.Account{}).Where("1 = 1").
		Updates(map[string]any{"parent_uid": nil, "default_transfer_account_uid": nil}).Error
	if err != nil {
		return database.Classify("purge account links", err)
	}
	if err := tx.db.Where("1 = 1").Delete(&models.Account{}).Error; err != nil {
		return database.Classify("purge accounts", err)
	}
	return database.Classify("purge commodities", tx.db.Where("1 = 1").Delete(&models.Commodity{}).Error)
}

// Replace swaps the whole ledger content for snap in one write unit.
// It is not interruptible.
func (s *Store) Replace(ctx context.Context, snap *Snapshot) error {
	ctx = context.WithoutCancel(ctx)
	return s.Update(ctx, func(tx *Tx) error {
		if err := tx.purge(); err != nil {
			return err
		}
		n, err := tx.BulkAdd(ctx, snap.Records(), ModeInsert)
		if err != nil {
			return fmt.Errorf("restore record %d: %w", n, err)
		}
		tx.logger().WithField("records", n).Info("ledger content replaced")
		return nil
	})
}
