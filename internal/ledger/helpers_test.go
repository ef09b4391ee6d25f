package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cashbook/internal/amount"
	"cashbook/internal/config"
	"cashbook/internal/database"
	"cashbook/internal/logger"
	"cashbook/internal/models"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Init(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "ledger.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, database.Migrate(db))
	return NewStore(db, logger.Discard())
}

type fixture struct {
	store                  *Store
	usd, eur               *models.Commodity
	assets, checking, cash *models.Account
	expenses, food         *models.Account
	savingsEUR             *models.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{store: newTestStore(t)}

	f.usd = &models.Commodity{Mnemonic: "USD", Fullname: "US Dollar", SmallestFraction: 100}
	f.eur = &models.Commodity{Mnemonic: "EUR", Fullname: "Euro", SmallestFraction: 100}
	require.NoError(t, f.store.SaveCommodity(ctx, f.usd))
	require.NoError(t, f.store.SaveCommodity(ctx, f.eur))

	f.assets = f.account(t, "Assets", models.AccountAsset, f.usd, nil)
	f.checking = f.account(t, "Checking", models.AccountBank, f.usd, f.assets)
	f.cash = f.account(t, "Cash", models.AccountCash, f.usd, f.assets)
	f.expenses = f.account(t, "Expenses", models.AccountExpense, f.usd, nil)
	f.food = f.account(t, "Food", models.AccountExpense, f.usd, f.expenses)
	f.savingsEUR = f.account(t, "Savings EUR", models.AccountBank, f.eur, f.assets)
	return f
}

func (f *fixture) account(t *testing.T, name string, typ models.AccountType, c *models.Commodity, parent *models.Account) *models.Account {
	t.Helper()
	a := &models.Account{Name: name, Type: typ, CommodityUID: c.UID}
	if parent != nil {
		a.ParentUID = &parent.UID
	}
	require.NoError(t, f.store.SaveAccount(context.Background(), a))
	return a
}

// transfer builds a balanced two-split transaction moving amt from
// credit to debit.
func (f *fixture) transfer(debit, credit *models.Account, amt string, at time.Time) *models.Transaction {
	v := amount.MustParse(amt)
	return &models.Transaction{
		Description: "transfer",
		Timestamp:   at,
		CurrencyUID: f.usd.UID,
		Splits: []models.Split{
			{AccountUID: debit.UID, Type: models.Debit, Value: v, Memo: "in"},
			{AccountUID: credit.UID, Type: models.Credit, Value: v, Memo: "out"},
		},
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
