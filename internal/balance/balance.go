// Package balance computes account balances from the ledger.
package balance

import (
	"context"
	"sort"
	"time"

	"cashbook/internal/amount"
	"cashbook/internal/ledger"

	"github.com/sirupsen/logrus"
)

// Query selects what BalanceOf sums. A zero AsOf means now; an empty
// TargetCommodityUID means the account's own commodity. From, when set,
// turns the balance into the activity of [From, AsOf].
type Query struct {
	AccountUID         string
	From               *time.Time
	AsOf               time.Time
	IncludeSubaccounts bool
	TargetCommodityUID string
}

// Result is a balance in one commodity. Subtotals holds the unconverted
// sums per native commodity, with the same display sign as Amount.
type Result struct {
	AccountUID   string                   `json:"account_uid"`
	CommodityUID string                   `json:"commodity_uid"`
	Amount       amount.Amount            `json:"amount"`
	AsOf         time.Time                `json:"as_of"`
	Subtotals    map[string]amount.Amount `json:"subtotals,omitempty"`
}

// Engine answers balance queries. It never writes.
type Engine struct {
	store *ledger.Store
	log   *logrus.Logger
	now   func() time.Time
}

func NewEngine(store *ledger.Store, log *logrus.Logger) *Engine {
	return &Engine{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// BalanceOf computes q against one read snapshot.
func (e *Engine) BalanceOf(ctx context.Context, q Query) (res *Result, err error) {
	if q.AsOf.IsZero() {
		q.AsOf = e.now()
	}
	err = e.store.View(ctx, func(tx *ledger.Tx) error {
		res, err = Compute(tx, q)
		return err
	})
	if err != nil {
		e.log.WithFields(logrus.Fields{
			"module":      "balance",
			"account_uid": q.AccountUID,
			"target":      q.TargetCommodityUID,
		}).WithError(err).Debug("balance query failed")
		return nil, err
	}
	return res, nil
}

// Compute runs a balance query inside an existing ledger transaction so
// several queries can share one snapshot. q.AsOf must be set.
func Compute(tx *ledger.Tx, q Query) (*Result, error) {
	acct, err := tx.GetAccount(q.AccountUID)
	if err != nil {
		return nil, err
	}
	uids := []string{acct.UID}
	if q.IncludeSubaccounts {
		if uids, err = tx.DescendantUIDs(acct.UID); err != nil {
			return nil, err
		}
	}
	commodityOf, err := accountCommodities(tx)
	if err != nil {
		return nil, err
	}

	asOf := q.AsOf
	splits, err := tx.ListSplits(ledger.SplitFilter{AccountUIDs: uids, From: q.From, To: &asOf})
	if err != nil {
		return nil, err
	}
	subtotals := map[string]amount.Amount{}
	for i := range splits {
		c := commodityOf[splits[i].AccountUID]
		subtotals[c] = subtotals[c].Add(splits[i].SignedQuantity())
	}

	target := q.TargetCommodityUID
	if target == "" {
		target = acct.CommodityUID
	}
	// deterministic order keeps error reporting stable
	keys := make([]string, 0, len(subtotals))
	for c := range subtotals {
		keys = append(keys, c)
	}
	sort.Strings(keys)

	total := amount.Zero()
	for _, c := range keys {
		sub := subtotals[c]
		if sub.IsZero() {
			continue
		}
		rate, err := tx.ConversionRate(c, target, asOf)
		if err != nil {
			return nil, err
		}
		total = total.Add(sub.Mul(rate))
	}

	if acct.Type.CreditNormal() {
		total = total.Neg()
		for c, v := range subtotals {
			subtotals[c] = v.Neg()
		}
	}
	return &Result{
		AccountUID:   acct.UID,
		CommodityUID: target,
		Amount:       total,
		AsOf:         asOf,
		Subtotals:    subtotals,
	}, nil
}

func accountCommodities(tx *ledger.Tx) (map[string]string, error) {
	accounts, err := tx.ListAccounts(ledger.AccountFilter{IncludeHidden: true})
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(accounts))
	for _, a := range accounts {
		out[a.UID] = a.CommodityUID
	}
	return out, nil
}
