// Package budget compares planned amounts with actual account activity.
package budget

import (
	"context"
	"fmt"
	"time"

	"cashbook/internal/amount"
	"cashbook/internal/balance"
	"cashbook/internal/ledger"
	"cashbook/internal/models"
	"cashbook/internal/recurrence"

	"github.com/sirupsen/logrus"
)

// Line is one account's plan and outcome for a period. Actual uses the
// account's display sign, so spending on an expense account is positive.
type Line struct {
	Budgeted amount.Amount `json:"budgeted"`
	Actual   amount.Amount `json:"actual"`
}

// Remaining is what is left of the budgeted amount.
func (l Line) Remaining() amount.Amount { return l.Budgeted.Sub(l.Actual) }

// Tracker reads budgets and balances; it never writes.
type Tracker struct {
	store *ledger.Store
	log   *logrus.Logger
}

func NewTracker(store *ledger.Store, log *logrus.Logger) *Tracker {
	return &Tracker{store: store, log: log}
}

// Period returns [start, end) of period n of the budget.
func Period(b *models.Budget, n int) (time.Time, time.Time, error) {
	if n < 0 || (b.NumPeriods > 0 && n >= b.NumPeriods) {
		return time.Time{}, time.Time{}, &models.InvalidRecordError{Entity: "budget", UID: b.UID,
			Reason: fmt.Sprintf("period %d is outside the budget", n)}
	}
	return recurrence.PeriodBounds(b.Recurrence, n)
}

// ActualVsBudget returns, for every account the budget plans
// in period n, the planned amount next to the activity of that account
// and its sub-accounts during the period.
func (t *Tracker) ActualVsBudget(ctx context.Context, budgetUID string, n int) (map[string]Line, error) {
	lines := map[string]Line{}
	err := t.store.View(ctx, func(tx *ledger.Tx) error {
		b, err := tx.GetBudget(budgetUID)
		if err != nil {
			return err
		}
		start, end, err := Period(b, n)
		if err != nil {
			return err
		}
		for _, ba := range b.Amounts {
			if !ba.AppliesTo(n) {
				continue
			}
			l := lines[ba.AccountUID]
			l.Budgeted = l.Budgeted.Add(ba.Amount)
			lines[ba.AccountUID] = l
		}
		for uid, l := range lines {
			res, err := balance.Compute(tx, balance.Query{
				AccountUID:         uid,
				From:               &start,
				AsOf:               end.Add(-time.Nanosecond),
				IncludeSubaccounts: true,
			})
			if err != nil {
				return err
			}
			l.Actual = res.Amount
			lines[uid] = l
		}
		return nil
	})
	if err != nil {
		t.log.WithFields(logrus.Fields{"module": "budget", "budget_uid": budgetUID, "period": n}).
			WithError(err).Warn("budget comparison failed")
		return nil, err
	}
	return lines, nil
}
