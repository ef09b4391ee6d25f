package ledger

import (
	"context"
	"sort"

	"cashbook/internal/database"
	"cashbook/internal/models"

	"github.com/sirupsen/logrus"
)

// SaveAccount inserts a or updates the account with the same uid.
// FullName is derived from the parent chain and refreshed for the whole
// subtree when the name or parent changes.
func (tx *Tx) SaveAccount(a *models.Account) error {
	return tx.saveAccount(a, modeUpsert)
}

func (tx *Tx) saveAccount(a *models.Account, mode Mode) error {
	if err := tx.requireWrite(); err != nil {
		return err
	}
	if mode != ModeUpdate {
		assignUID(&a.UID)
	}
	if err := tx.check("account", a.UID, a); err != nil {
		return err
	}
	if !a.Type.Valid() {
		return &models.InvalidRecordError{Entity: "account", UID: a.UID, Reason: "unknown type " + string(a.Type)}
	}
	if _, err := tx.commodity(a.CommodityUID); err != nil {
		return err
	}
	if a.ParentUID != nil && *a.ParentUID == "" {
		a.ParentUID = nil
	}
	if a.DefaultTransferAccountUID != nil && *a.DefaultTransferAccountUID == "" {
		a.DefaultTransferAccountUID = nil
	}

	var cur models.Account
	found, err := tx.findByUID(&cur, a.UID)
	if err != nil {
		return err
	}
	if err := admit(mode, "account", a.UID, found); err != nil {
		return err
	}

	a.FullName = a.Name
	if a.ParentUID != nil {
		parent, err := tx.account(*a.ParentUID)
		if err != nil {
			return err
		}
		if err := tx.checkNoCycle(a.UID, parent); err != nil {
			return err
		}
		a.FullName = parent.FullName + models.FullNameSeparator + a.Name
	}
	if a.DefaultTransferAccountUID != nil {
		if *a.DefaultTransferAccountUID == a.UID {
			return &models.InvalidRecordError{Entity: "account", UID: a.UID, Reason: "default transfer account cannot be itself"}
		}
		if _, err := tx.account(*a.DefaultTransferAccountUID); err != nil {
			return err
		}
	}

	if !found {
		a.ID = 0
		return database.Classify("insert account", tx.db.Create(a).Error)
	}

	if cur.CommodityUID != a.CommodityUID {
		var n int64
		if err := tx.db.Model(&models.Split{}).Where("account_uid = ?", a.UID).Count(&n).Error; err != nil {
			return database.Classify("count splits", err)
		}
		if n > 0 {
			return &models.InvalidRecordError{Entity: "account", UID: a.UID, Reason: "commodity cannot change while splits reference the account"}
		}
	}
	a.ID = cur.ID
	a.CreatedAt = cur.CreatedAt
	if err := tx.db.Save(a).Error; err != nil {
		return database.Classify("update account", err)
	}
	if cur.FullName != a.FullName {
		return tx.refreshFullNames(a)
	}
	return nil
}

// checkNoCycle walks up from parent and fails if it reaches uid.
func (tx *Tx) checkNoCycle(uid string, parent *models.Account) error {
	seen := map[string]bool{}
	for p := parent; p != nil; {
		if p.UID == uid {
			return &models.InvalidRecordError{Entity: "account", UID: uid, Reason: "parent chain would form a cycle"}
		}
		if seen[p.UID] || p.ParentUID == nil {
			return nil
		}
		seen[p.UID] = true
		next, err := tx.account(*p.ParentUID)
		if err != nil {
			return err
		}
		p = next
	}
	return nil
}

func (tx *Tx) refreshFullNames(root *models.Account) error {
	queue := []*models.Account{root}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		children, err := tx.Children(parent.UID)
		if err != nil {
			return err
		}
		for i := range children {
			child := &children[i]
			child.FullName = parent.FullName + models.FullNameSeparator + child.Name
			err := tx.db.Model(&models.Account{}).Where("uid = ?", child.UID).
				Updates(map[string]any{"full_name": child.FullName, "modified_at": tx.now()}).Error
			if err != nil {
				return database.Classify("update full name", err)
			}
			queue = append(queue, child)
		}
	}
	return nil
}

// GetAccount loads one account.
func (tx *Tx) GetAccount(uid string) (*models.Account, error) {
	var a models.Account
	found, err := tx.findByUID(&a, uid)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &models.NotFoundError{Entity: "account", UID: uid}
	}
	return &a, nil
}

// account is GetAccount reporting a dangling reference.
func (tx *Tx) account(uid string) (*models.Account, error) {
	var a models.Account
	found, err := tx.findByUID(&a, uid)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &models.UnknownAccountError{AccountUID: uid}
	}
	return &a, nil
}

// AccountFilter narrows ListAccounts. Zero value lists everything.
type AccountFilter struct {
	ParentUID     *string // "" lists top-level accounts
	Type          models.AccountType
	IncludeHidden bool
	Favorites     bool
}

// ListAccounts returns matching accounts ordered by full name.
func (tx *Tx) ListAccounts(f AccountFilter) ([]models.Account, error) {
	q := tx.db.Model(&models.Account{})
	if f.ParentUID != nil {
		if *f.ParentUID == "" {
			q = q.Where("parent_uid IS NULL")
		} else {
			q = q.Where("parent_uid = ?", *f.ParentUID)
		}
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if !f.IncludeHidden {
		q = q.Where("hidden = ?", false)
	}
	if f.Favorites {
		q = q.Where("favorite = ?", true)
	}
	var list []models.Account
	if err := q.Order("full_name, uid").Find(&list).Error; err != nil {
		return nil, database.Classify("list accounts", err)
	}
	return list, nil
}

// Children returns the direct sub-accounts of uid.
func (tx *Tx) Children(uid string) ([]models.Account, error) {
	return tx.ListAccounts(AccountFilter{ParentUID: &uid, IncludeHidden: true})
}

// DescendantUIDs returns uid followed by every account below it.
func (tx *Tx) DescendantUIDs(uid string) ([]string, error) {
	var rows []struct {
		UID       string
		ParentUID *string
	}
	if err := tx.db.Model(&models.Account{}).Select("uid, parent_uid").Find(&rows).Error; err != nil {
		return nil, database.Classify("load account tree", err)
	}
	children := make(map[string][]string, len(rows))
	for _, r := range rows {
		if r.ParentUID != nil {
			children[*r.ParentUID] = append(children[*r.ParentUID], r.UID)
		}
	}
	out := []string{uid}
	seen := map[string]bool{uid: true}
	for i := 0; i < len(out); i++ {
		for _, c := range children[out[i]] {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out, nil
}

// AccountDeletion describes everything removed by DeleteAccount.
type AccountDeletion struct {
	AccountUID          string   `json:"account_uid"`
	DeletedSplits       int64    `json:"deleted_splits"`
	DeletedTransactions []string `json:"deleted_transactions"`
	DisabledActions     []string `json:"disabled_actions"`
}

// DeleteAccount removes an account and its splits. Any transaction left
// with fewer than two splits, or no longer balanced, is deleted as a
// whole. Budget amounts for the account are dropped and references to
// it as default transfer account are cleared. Scheduled actions whose
// template was deleted are disabled. Accounts with sub-accounts are
// rejected; move or delete the children first.
func (tx *Tx) DeleteAccount(uid string) (*AccountDeletion, error) {
	if err := tx.requireWrite(); err != nil {
		return nil, err
	}
	if _, err := tx.GetAccount(uid); err != nil {
		return nil, err
	}
	var children int64
	if err := tx.db.Model(&models.Account{}).Where("parent_uid = ?", uid).Count(&children).Error; err != nil {
		return nil, database.Classify("count children", err)
	}
	if children > 0 {
		return nil, &models.AccountHasChildrenError{AccountUID: uid, Children: int(children)}
	}

	var touched []string
	err := tx.db.Model(&models.Split{}).Where("account_uid = ?", uid).
		Distinct("transaction_uid").Pluck("transaction_uid", &touched).Error
	if err != nil {
		return nil, database.Classify("find affected transactions", err)
	}

	res := tx.db.Where("account_uid = ?", uid).Delete(&models.Split{})
	if res.Error != nil {
		return nil, database.Classify("delete splits", res.Error)
	}
	report := &AccountDeletion{AccountUID: uid, DeletedSplits: res.RowsAffected}

	sort.Strings(touched)
	for _, txUID := range touched {
		splits, err := tx.splitsOf(txUID)
		if err != nil {
			return nil, err
		}
		t := models.Transaction{Splits: splits}
		if len(splits) >= 2 && t.Imbalance().IsZero() {
			continue
		}
		disabled, err := tx.deleteTransaction(txUID)
		if err != nil {
			return nil, err
		}
		report.DeletedTransactions = append(report.DeletedTransactions, txUID)
		report.DisabledActions = append(report.DisabledActions, disabled...)
	}

	if err := tx.db.Where("account_uid = ?", uid).Delete(&models.BudgetAmount{}).Error; err != nil {
		return nil, database.Classify("delete budget amounts", err)
	}
	err = tx.db.Model(&models.Account{}).Where("default_transfer_account_uid = ?", uid).
		Updates(map[string]any{"default_transfer_account_uid": nil, "modified_at": tx.now()}).Error
	if err != nil {
		return nil, database.Classify("clear default transfer", err)
	}
	if err := tx.db.Where("uid = ?", uid).Delete(&models.Account{}).Error; err != nil {
		return nil, database.Classify("delete account", err)
	}

	tx.logger().WithFields(logrus.Fields{
		"account_uid":          uid,
		"deleted_splits":       report.DeletedSplits,
		"deleted_transactions": len(report.DeletedTransactions),
	}).Info("account deleted")
	return report, nil
}

// SaveAccount is the single-operation form of Tx.SaveAccount.
func (s *Store) SaveAccount(ctx context.Context, a *models.Account) error {
	return s.Update(ctx, func(tx *Tx) error { return tx.SaveAccount(a) })
}

// GetAccount is the single-operation form of Tx.GetAccount.
func (s *Store) GetAccount(ctx context.Context, uid string) (a *models.Account, err error) {
	err = s.View(ctx, func(tx *Tx) error {
		a, err = tx.GetAccount(uid)
		return err
	})
	return a, err
}

// ListAccounts is the single-operation form of Tx.ListAccounts.
func (s *Store) ListAccounts(ctx context.Context, f AccountFilter) (list []models.Account, err error) {
	err = s.View(ctx, func(tx *Tx) error {
		list, err = tx.ListAccounts(f)
		return err
	})
	return list, err
}

// DeleteAccount runs Tx.DeleteAccount as one atomic unit.
func (s *Store) DeleteAccount(ctx context.Context, uid string) (report *AccountDeletion, err error) {
	err = s.Update(ctx, func(tx *Tx) error {
		report, err = tx.DeleteAccount(uid)
		return err
	})
	return report, err
}
