package ledger

import (
	"context"
	"sort"
	"time"

	"cashbook/internal/amount"
	"cashbook/internal/database"
	"cashbook/internal/models"
)

// DefaultOpeningBalanceAccount names the equity accounts opening
// balances are booked against.
const DefaultOpeningBalanceAccount = "Opening Balances"

// OpeningBalanceAccount returns the top-level equity account named
// "<name> - <mnemonic>" for the commodity, creating it when missing.
func (tx *Tx) OpeningBalanceAccount(name, commodityUID string) (*models.Account, error) {
	if name == "" {
		name = DefaultOpeningBalanceAccount
	}
	comm, err := tx.commodity(commodityUID)
	if err != nil {
		return nil, err
	}
	full := name + " - " + comm.Mnemonic
	var a models.Account
	res := tx.db.Where("full_name = ? AND type = ? AND commodity_uid = ?", full, models.AccountEquity, commodityUID).
		Limit(1).Find(&a)
	if res.Error != nil {
		return nil, database.Classify("find opening balance account", res.Error)
	}
	if res.RowsAffected > 0 {
		return &a, nil
	}
	a = models.Account{Name: full, Type: models.AccountEquity, CommodityUID: commodityUID}
	if err := tx.saveAccount(&a, ModeInsert); err != nil {
		return nil, err
	}
	return &a, nil
}

// OpeningBalanceTransactions builds, for every account with a non-zero
// own balance at asOf, one transaction that carries that balance against
// the equity account of the same commodity. The transactions are not
// saved; they are meant to be re-added after a purge. Equity accounts
// that do not exist yet are created.
func (tx *Tx) OpeningBalanceTransactions(asOf time.Time, equityName string) ([]models.Transaction, error) {
	if err := tx.requireWrite(); err != nil {
		return nil, err
	}
	splits, err := tx.ListSplits(SplitFilter{To: &asOf})
	if err != nil {
		return nil, err
	}
	totals := map[string]amount.Amount{}
	for i := range splits {
		s := &splits[i]
		totals[s.AccountUID] = totals[s.AccountUID].Add(s.SignedQuantity())
	}
	uids := make([]string, 0, len(totals))
	for uid := range totals {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	equity := map[string]*models.Account{}
	var out []models.Transaction
	for _, uid := range uids {
		bal := totals[uid]
		if bal.IsZero() {
			continue
		}
		acct, err := tx.account(uid)
		if err != nil {
			return nil, err
		}
		eq, ok := equity[acct.CommodityUID]
		if !ok {
			if eq, err = tx.OpeningBalanceAccount(equityName, acct.CommodityUID); err != nil {
				return nil, err
			}
			equity[acct.CommodityUID] = eq
		}
		if eq.UID == acct.UID {
			continue
		}
		t := models.Transaction{
			UID:         models.NewUID(),
			Description: "Opening balance",
			Timestamp:   models.UTC(asOf),
			CurrencyUID: acct.CommodityUID,
			Splits: []models.Split{
				{UID: models.NewUID(), AccountUID: acct.UID, Type: models.Debit, Value: bal, Quantity: bal},
				{UID: models.NewUID(), AccountUID: eq.UID, Type: models.Credit, Value: bal, Quantity: bal},
			},
		}
		for i := range t.Splits {
			if err := t.Splits[i].Normalize(); err != nil {
				return nil, err
			}
		}
		out = append(out, t)
	}
	return out, nil
}

// OpeningBalanceTransactions runs Tx.OpeningBalanceTransactions in its
// own write unit, so the equity accounts it creates are committed.
func (s *Store) OpeningBalanceTransactions(ctx context.Context, asOf time.Time, equityName string) (list []models.Transaction, err error) {
	err = s.Update(ctx, func(tx *Tx) error {
		list, err = tx.OpeningBalanceTransactions(asOf, equityName)
		return err
	})
	return list, err
}
