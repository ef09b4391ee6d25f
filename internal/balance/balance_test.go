package balance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cashbook/internal/amount"
	"cashbook/internal/config"
	"cashbook/internal/database"
	"cashbook/internal/ledger"
	"cashbook/internal/logger"
	"cashbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	store  *ledger.Store
	engine *Engine
	usd    *models.Commodity
	eur    *models.Commodity
}

func setup(t *testing.T) *env {
	t.Helper()
	db, err := database.Init(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "ledger.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, database.Migrate(db))

	store := ledger.NewStore(db, logger.Discard())
	e := &env{store: store, engine: NewEngine(store, logger.Discard())}
	e.usd = &models.Commodity{Mnemonic: "USD", SmallestFraction: 100}
	e.eur = &models.Commodity{Mnemonic: "EUR", SmallestFraction: 100}
	require.NoError(t, store.SaveCommodity(context.Background(), e.usd))
	require.NoError(t, store.SaveCommodity(context.Background(), e.eur))
	return e
}

func (e *env) account(t *testing.T, name string, typ models.AccountType, c *models.Commodity, parent *models.Account) *models.Account {
	t.Helper()
	a := &models.Account{Name: name, Type: typ, CommodityUID: c.UID}
	if parent != nil {
		a.ParentUID = &parent.UID
	}
	require.NoError(t, e.store.SaveAccount(context.Background(), a))
	return a
}

func (e *env) post(t *testing.T, at time.Time, debit, credit *models.Account, v string) {
	t.Helper()
	amt := amount.MustParse(v)
	txn := &models.Transaction{Timestamp: at, CurrencyUID: e.usd.UID, Splits: []models.Split{
		{AccountUID: debit.UID, Type: models.Debit, Value: amt},
		{AccountUID: credit.UID, Type: models.Credit, Value: amt},
	}}
	require.NoError(t, e.store.SaveTransaction(context.Background(), txn))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBalanceOf_ConvertsWithLatestPrice(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	a := e.account(t, "A", models.AccountBank, e.usd, nil)
	income := e.account(t, "Salary", models.AccountIncome, e.usd, nil)
	e.post(t, day(2024, 1, 10), a, income, "10.00")

	require.NoError(t, e.store.AddPrice(ctx, &models.Price{
		CommodityUID: e.usd.UID, CurrencyUID: e.eur.UID, Date: day(2024, 1, 5), Value: amount.MustParse("0.90"),
	}))

	res, err := e.engine.BalanceOf(ctx, Query{AccountUID: a.UID, TargetCommodityUID: e.eur.UID})
	require.NoError(t, err)
	assert.Equal(t, e.eur.UID, res.CommodityUID)
	assert.True(t, res.Amount.Equal(amount.MustParse("9.00")), res.Amount.String())

	// native commodity needs no price
	res, err = e.engine.BalanceOf(ctx, Query{AccountUID: a.UID})
	require.NoError(t, err)
	assert.True(t, res.Amount.Equal(amount.FromInt(10)))

	// income displays credit-positive
	res, err = e.engine.BalanceOf(ctx, Query{AccountUID: income.UID})
	require.NoError(t, err)
	assert.True(t, res.Amount.Equal(amount.FromInt(10)), res.Amount.String())
}

func TestBalanceOf_NoConversionRate(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	a := e.account(t, "A", models.AccountBank, e.usd, nil)
	b := e.account(t, "B", models.AccountBank, e.usd, nil)
	e.post(t, day(2024, 1, 10), a, b, "10")

	_, err := e.engine.BalanceOf(ctx, Query{AccountUID: a.UID, TargetCommodityUID: e.eur.UID})
	var nce *models.NoConversionRateError
	require.ErrorAs(t, err, &nce)
	assert.ErrorIs(t, err, models.ErrNoConversionRate)
	assert.Equal(t, e.usd.UID, nce.FromCommodityUID)

	// a price dated after asOf does not count
	require.NoError(t, e.store.AddPrice(ctx, &models.Price{
		CommodityUID: e.usd.UID, CurrencyUID: e.eur.UID, Date: day(2024, 6, 1), Value: amount.MustParse("0.9"),
	}))
	_, err = e.engine.BalanceOf(ctx, Query{AccountUID: a.UID, AsOf: day(2024, 3, 1), TargetCommodityUID: e.eur.UID})
	assert.ErrorIs(t, err, models.ErrNoConversionRate)

	// zero subtotals never need a rate
	empty := e.account(t, "Empty", models.AccountBank, e.usd, nil)
	res, err := e.engine.BalanceOf(ctx, Query{AccountUID: empty.UID, TargetCommodityUID: e.eur.UID})
	require.NoError(t, err)
	assert.True(t, res.Amount.IsZero())
}

func TestBalanceOf_Additivity(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	assets := e.account(t, "Assets", models.AccountAsset, e.usd, nil)
	bank := e.account(t, "Bank", models.AccountBank, e.usd, assets)
	savings := e.account(t, "Savings", models.AccountBank, e.usd, bank)
	cash := e.account(t, "Cash", models.AccountCash, e.usd, assets)
	equity := e.account(t, "Equity", models.AccountEquity, e.usd, nil)

	e.post(t, day(2024, 1, 1), assets, equity, "1.11")
	e.post(t, day(2024, 1, 2), bank, equity, "200")
	e.post(t, day(2024, 1, 3), savings, equity, "33.33")
	e.post(t, day(2024, 1, 4), cash, bank, "20")
	e.post(t, day(2024, 1, 5), equity, savings, "3.33")

	total := func(uid string, sub bool) amount.Amount {
		res, err := e.engine.BalanceOf(ctx, Query{AccountUID: uid, IncludeSubaccounts: sub})
		require.NoError(t, err)
		return res.Amount
	}

	parent := total(assets.UID, true)
	sum := total(assets.UID, false).Add(total(bank.UID, true)).Add(total(cash.UID, true))
	assert.True(t, parent.Equal(sum), "%s != %s", parent, sum)
	assert.True(t, parent.Equal(amount.MustParse("231.11")), parent.String())

	assert.True(t, total(bank.UID, true).Equal(amount.MustParse("210")))
	assert.True(t, total(bank.UID, false).Equal(amount.MustParse("180")))
	assert.True(t, total(equity.UID, false).Equal(amount.MustParse("231.11")))
}

func TestBalanceOf_AsOfAndFrom(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	a := e.account(t, "A", models.AccountBank, e.usd, nil)
	b := e.account(t, "B", models.AccountExpense, e.usd, nil)
	e.post(t, day(2024, 1, 1), a, b, "1")
	e.post(t, day(2024, 2, 1), a, b, "2")
	e.post(t, day(2024, 3, 1), a, b, "4")

	res, err := e.engine.BalanceOf(ctx, Query{AccountUID: a.UID, AsOf: day(2024, 2, 1)})
	require.NoError(t, err)
	assert.True(t, res.Amount.Equal(amount.FromInt(3)), "asOf is inclusive")

	from := day(2024, 1, 15)
	res, err = e.engine.BalanceOf(ctx, Query{AccountUID: a.UID, From: &from, AsOf: day(2024, 12, 31)})
	require.NoError(t, err)
	assert.True(t, res.Amount.Equal(amount.FromInt(6)))

	_, err = e.engine.BalanceOf(ctx, Query{AccountUID: "missing"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}
