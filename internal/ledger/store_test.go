package ledger

import (
	"context"
	"testing"
	"time"

	"cashbook/internal/amount"
	"cashbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveTransaction_BalancedThenUnbalanced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	txn := f.transfer(f.food, f.checking, "50.00", day(2024, 3, 1))
	require.NoError(t, f.store.SaveTransaction(ctx, txn))

	txn.Splits[0].Value = amount.MustParse("51.00")
	err := f.store.SaveTransaction(ctx, txn)
	var ue *models.UnbalancedTransactionError
	require.ErrorAs(t, err, &ue)
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.True(t, ue.Imbalance.Equal(amount.FromInt(1)), ue.Imbalance.String())

	stored, err := f.store.GetTransaction(ctx, txn.UID)
	require.NoError(t, err)
	require.Len(t, stored.Splits, 2)
	assert.True(t, stored.Splits[0].Value.Equal(amount.MustParse("50")))

	// both sides edited together stays balanced
	txn.Splits[1].Value = amount.MustParse("51.00")
	require.NoError(t, f.store.SaveTransaction(ctx, txn))
	stored, err = f.store.GetTransaction(ctx, txn.UID)
	require.NoError(t, err)
	for _, sp := range stored.Splits {
		assert.True(t, sp.Value.Equal(amount.MustParse("51")), sp.Value.String())
		assert.True(t, sp.Quantity.Equal(amount.MustParse("51")), sp.Quantity.String())
	}
}

func TestSaveTransaction_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	txn := &models.Transaction{
		Description: "groceries",
		Notes:       "weekly",
		Timestamp:   time.Date(2024, 3, 1, 18, 30, 0, 0, time.FixedZone("CET", 3600)),
		CurrencyUID: f.usd.UID,
		Splits: []models.Split{
			{AccountUID: f.food.UID, Type: models.Debit, Value: amount.MustParse("12.34"), Memo: "bread"},
			{AccountUID: f.food.UID, Type: models.Debit, Value: amount.MustParse("0.66"), Memo: "milk"},
			{AccountUID: f.cash.UID, Type: models.Credit, Value: amount.MustParse("13"), Memo: "paid"},
		},
	}
	require.NoError(t, f.store.SaveTransaction(ctx, txn))

	got, err := f.store.GetTransaction(ctx, txn.UID)
	require.NoError(t, err)
	assert.Equal(t, "groceries", got.Description)
	assert.True(t, got.Timestamp.Equal(txn.Timestamp))
	require.Len(t, got.Splits, 3)
	for i, want := range txn.Splits {
		assert.Equal(t, want.UID, got.Splits[i].UID)
		assert.Equal(t, want.AccountUID, got.Splits[i].AccountUID)
		assert.Equal(t, want.Memo, got.Splits[i].Memo)
		assert.Equal(t, want.Type, got.Splits[i].Type)
		assert.True(t, want.Value.Equal(got.Splits[i].Value), "split %d value", i)
		assert.True(t, want.Value.Equal(got.Splits[i].Quantity), "split %d quantity defaults to value", i)
	}
}

func TestSaveTransaction_NegativeValueFlipsType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txn := &models.Transaction{
		Timestamp:   day(2024, 1, 2),
		CurrencyUID: f.usd.UID,
		Splits: []models.Split{
			{AccountUID: f.food.UID, Type: models.Debit, Value: amount.MustParse("-20")},
			{AccountUID: f.checking.UID, Type: models.Debit, Value: amount.MustParse("20")},
		},
	}
	require.NoError(t, f.store.SaveTransaction(ctx, txn))
	got, err := f.store.GetTransaction(ctx, txn.UID)
	require.NoError(t, err)
	assert.Equal(t, models.Credit, got.Splits[0].Type)
	assert.True(t, got.Splits[0].Value.Equal(amount.FromInt(20)))
}

func TestSaveTransaction_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	unknown := f.transfer(f.food, f.checking, "5", day(2024, 1, 1))
	unknown.Splits[1].AccountUID = "missing"
	err := f.store.SaveTransaction(ctx, unknown)
	var uae *models.UnknownAccountError
	require.ErrorAs(t, err, &uae)
	assert.Equal(t, "missing", uae.AccountUID)

	badCurrency := f.transfer(f.food, f.checking, "5", day(2024, 1, 1))
	badCurrency.CurrencyUID = "XXX"
	var uce *models.UnknownCommodityError
	require.ErrorAs(t, f.store.SaveTransaction(ctx, badCurrency), &uce)

	tooFine := f.transfer(f.food, f.checking, "0.005", day(2024, 1, 1))
	var ire *models.InvalidRecordError
	require.ErrorAs(t, f.store.SaveTransaction(ctx, tooFine), &ire)

	noSplits := &models.Transaction{Timestamp: day(2024, 1, 1), CurrencyUID: f.usd.UID}
	assert.ErrorIs(t, f.store.SaveTransaction(ctx, noSplits), models.ErrValidation)

	// a EUR account in a USD transaction needs an explicit quantity
	cross := f.transfer(f.savingsEUR, f.checking, "10", day(2024, 1, 1))
	require.ErrorAs(t, f.store.SaveTransaction(ctx, cross), &ire)

	list, err := f.store.ListTransactions(ctx, TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	cross.Splits[0].Quantity = amount.MustParse("9")
	require.NoError(t, f.store.SaveTransaction(ctx, cross))
	got, err := f.store.GetTransaction(ctx, cross.UID)
	require.NoError(t, err)
	assert.True(t, got.Splits[0].Quantity.Equal(amount.FromInt(9)))
	assert.True(t, got.Splits[0].Value.Equal(amount.FromInt(10)))
}

func TestSaveTransaction_AmountTooLargeToStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	huge := f.transfer(f.food, f.checking, "100000000000000000000", day(2024, 1, 1))
	err := f.store.SaveTransaction(ctx, huge)
	var ire *models.InvalidRecordError
	require.ErrorAs(t, err, &ire)
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.NotErrorIs(t, err, models.ErrStorage)

	_, err = f.store.GetTransaction(ctx, huge.UID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSaveTransaction_SignMismatchRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	txn := f.transfer(f.savingsEUR, f.checking, "10", day(2024, 1, 1))
	txn.Splits[0].Value = amount.MustParse("-10")
	txn.Splits[0].Quantity = amount.MustParse("9")
	var ire *models.InvalidRecordError
	require.ErrorAs(t, f.store.SaveTransaction(ctx, txn), &ire)
	assert.Equal(t, "split", ire.Entity)
}

func TestMarkExported_OnlyNamedTransactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.transfer(f.food, f.checking, "1", day(2024, 1, 1))
	second := f.transfer(f.food, f.checking, "2", day(2024, 1, 2))
	require.NoError(t, f.store.SaveTransaction(ctx, first))
	require.NoError(t, f.store.SaveTransaction(ctx, second))

	var n int64
	require.NoError(t, f.store.Update(ctx, func(tx *Tx) (err error) {
		n, err = tx.MarkExported([]string{first.UID})
		return err
	}))
	assert.EqualValues(t, 1, n)

	got, err := f.store.GetTransaction(ctx, first.UID)
	require.NoError(t, err)
	assert.True(t, got.Exported)
	got, err = f.store.GetTransaction(ctx, second.UID)
	require.NoError(t, err)
	assert.False(t, got.Exported)
}

func TestSaveTransaction_ModeInsertRejectsExisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txn := f.transfer(f.food, f.checking, "5", day(2024, 1, 1))
	require.NoError(t, f.store.SaveTransaction(ctx, txn))

	_, err := f.store.BulkAddRecords(ctx, []any{txn}, ModeInsert)
	assert.ErrorIs(t, err, models.ErrValidation)

	ghost := f.transfer(f.food, f.checking, "5", day(2024, 1, 1))
	ghost.UID = "ghost"
	_, err = f.store.BulkAddRecords(ctx, []any{ghost}, ModeUpdate)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListSplits_Filters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveTransaction(ctx, f.transfer(f.food, f.checking, "1", day(2024, 1, 1))))
	require.NoError(t, f.store.SaveTransaction(ctx, f.transfer(f.food, f.cash, "2", day(2024, 2, 1))))
	tmpl := f.transfer(f.food, f.cash, "3", day(2024, 3, 1))
	tmpl.IsTemplate = true
	require.NoError(t, f.store.SaveTransaction(ctx, tmpl))

	from, to := day(2024, 1, 15), day(2024, 12, 31)
	splits, err := f.store.ListSplits(ctx, SplitFilter{AccountUIDs: []string{f.food.UID}, From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, splits, 1)
	assert.True(t, splits[0].Value.Equal(amount.FromInt(2)))

	isTemplate := true
	list, err := f.store.ListTransactions(ctx, TransactionFilter{Template: &isTemplate})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, tmpl.UID, list[0].UID)

	list, err = f.store.ListTransactions(ctx, TransactionFilter{AccountUID: f.checking.UID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Splits, 2)
}

func TestDeleteAccount_Cascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1 := f.transfer(f.food, f.checking, "10", day(2024, 1, 1))
	t2 := &models.Transaction{Timestamp: day(2024, 1, 2), CurrencyUID: f.usd.UID, Splits: []models.Split{
		{AccountUID: f.food.UID, Type: models.Debit, Value: amount.FromInt(10)},
		{AccountUID: f.checking.UID, Type: models.Credit, Value: amount.FromInt(5)},
		{AccountUID: f.cash.UID, Type: models.Credit, Value: amount.FromInt(5)},
	}}
	t3 := f.transfer(f.checking, f.cash, "5", day(2024, 1, 3))
	t4 := &models.Transaction{Timestamp: day(2024, 1, 4), CurrencyUID: f.usd.UID, Splits: []models.Split{
		{AccountUID: f.checking.UID, Type: models.Debit, Value: amount.FromInt(7)},
		{AccountUID: f.cash.UID, Type: models.Credit, Value: amount.FromInt(7)},
		{AccountUID: f.food.UID, Type: models.Debit, Value: amount.Zero()},
	}}
	tmpl := f.transfer(f.food, f.checking, "3", day(2024, 1, 1))
	tmpl.IsTemplate = true
	for _, txn := range []*models.Transaction{t1, t2, t3, t4, tmpl} {
		require.NoError(t, f.store.SaveTransaction(ctx, txn))
	}

	sa := &models.ScheduledAction{
		Type: models.ActionTransaction, ActionUID: tmpl.UID, StartTime: day(2024, 1, 1),
		Enabled: true, AutoCreate: true,
		Recurrence: &models.Recurrence{PeriodType: models.PeriodMonth, Multiplier: 1, PeriodStart: day(2024, 1, 1)},
	}
	require.NoError(t, f.store.SaveScheduledAction(ctx, sa))

	budget := &models.Budget{
		Name:       "food",
		Recurrence: &models.Recurrence{PeriodType: models.PeriodMonth, Multiplier: 1, PeriodStart: day(2024, 1, 1)},
		Amounts: []models.BudgetAmount{
			{AccountUID: f.food.UID, Amount: amount.FromInt(100), PeriodNum: models.AllPeriods},
			{AccountUID: f.cash.UID, Amount: amount.FromInt(50), PeriodNum: models.AllPeriods},
		},
	}
	require.NoError(t, f.store.SaveBudget(ctx, budget))

	f.checking.DefaultTransferAccountUID = &f.food.UID
	require.NoError(t, f.store.SaveAccount(ctx, f.checking))

	report, err := f.store.DeleteAccount(ctx, f.food.UID)
	require.NoError(t, err)
	assert.EqualValues(t, 4, report.DeletedSplits)
	assert.ElementsMatch(t, []string{t1.UID, t2.UID, tmpl.UID}, report.DeletedTransactions)
	assert.Equal(t, []string{sa.UID}, report.DisabledActions)

	for _, gone := range []string{t1.UID, t2.UID, tmpl.UID} {
		_, err := f.store.GetTransaction(ctx, gone)
		assert.ErrorIs(t, err, models.ErrNotFound)
	}
	kept, err := f.store.GetTransaction(ctx, t3.UID)
	require.NoError(t, err)
	assert.Len(t, kept.Splits, 2)
	kept, err = f.store.GetTransaction(ctx, t4.UID)
	require.NoError(t, err)
	assert.Len(t, kept.Splits, 2)
	assert.True(t, kept.Imbalance().IsZero())

	action, err := f.store.GetScheduledAction(ctx, sa.UID)
	require.NoError(t, err)
	assert.False(t, action.Enabled)

	b, err := f.store.GetBudget(ctx, budget.UID)
	require.NoError(t, err)
	require.Len(t, b.Amounts, 1)
	assert.Equal(t, f.cash.UID, b.Amounts[0].AccountUID)

	checking, err := f.store.GetAccount(ctx, f.checking.UID)
	require.NoError(t, err)
	assert.Nil(t, checking.DefaultTransferAccountUID)

	splits, err := f.store.ListSplits(ctx, SplitFilter{AccountUIDs: []string{f.food.UID}, IncludeTemplates: true})
	require.NoError(t, err)
	assert.Empty(t, splits)
}

func TestDeleteAccount_RejectsChildren(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.DeleteAccount(context.Background(), f.assets.UID)
	var hce *models.AccountHasChildrenError
	require.ErrorAs(t, err, &hce)
	assert.Equal(t, 3, hce.Children)
}

func TestSaveAccount_FullNamesAndCycles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assert.Equal(t, "Assets:Checking", f.checking.FullName)

	f.assets.Name = "Property"
	require.NoError(t, f.store.SaveAccount(ctx, f.assets))
	checking, err := f.store.GetAccount(ctx, f.checking.UID)
	require.NoError(t, err)
	assert.Equal(t, "Property:Checking", checking.FullName)

	f.assets.ParentUID = &f.checking.UID
	var ire *models.InvalidRecordError
	require.ErrorAs(t, f.store.SaveAccount(ctx, f.assets), &ire)

	bad := &models.Account{Name: "Bad", Type: "SAVINGS", CommodityUID: f.usd.UID}
	assert.ErrorIs(t, f.store.SaveAccount(ctx, bad), models.ErrValidation)
}

func TestCommodity_LockedOnceUsed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveTransaction(ctx, f.transfer(f.food, f.checking, "1", day(2024, 1, 1))))

	f.usd.SmallestFraction = 1000
	var cie *models.CommodityInUseError
	require.ErrorAs(t, f.store.SaveCommodity(ctx, f.usd), &cie)

	// unused commodities may still change
	f.eur.SmallestFraction = 1000
	require.NoError(t, f.store.SaveCommodity(ctx, f.eur))

	require.ErrorAs(t, f.store.DeleteCommodity(ctx, f.usd.UID), &cie)

	f.usd.SmallestFraction = 100
	f.usd.Mnemonic = "USX"
	err := f.store.SaveCommodity(ctx, f.usd)
	require.ErrorAs(t, err, &cie)
	assert.ErrorIs(t, err, models.ErrValidation)

	f.usd.Mnemonic = "USD"
	require.NoError(t, f.store.SaveCommodity(ctx, f.usd), "unchanged fields still save")

	dup := &models.Commodity{Mnemonic: "USD", SmallestFraction: 100}
	assert.ErrorIs(t, f.store.SaveCommodity(ctx, dup), models.ErrValidation)
}

func TestPrices_ReplaceAndInverse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.AddPrice(ctx, &models.Price{CommodityUID: f.usd.UID, CurrencyUID: f.eur.UID, Date: day(2024, 1, 1), Value: amount.MustParse("0.90")}))
	require.NoError(t, f.store.AddPrice(ctx, &models.Price{CommodityUID: f.usd.UID, CurrencyUID: f.eur.UID, Date: day(2024, 2, 1), Value: amount.MustParse("0.95")}))

	prices, err := f.store.ListPrices(ctx)
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.True(t, prices[0].Value.Equal(amount.MustParse("0.95")))

	now := day(2024, 6, 1)
	err = f.store.View(ctx, func(tx *Tx) error {
		rate, err := tx.ConversionRate(f.usd.UID, f.eur.UID, now)
		require.NoError(t, err)
		assert.True(t, rate.Equal(amount.MustParse("0.95")))

		inv, err := tx.ConversionRate(f.eur.UID, f.usd.UID, now)
		require.NoError(t, err)
		assert.True(t, inv.Equal(amount.New(20, 19)), inv.String())

		// the replaced January price is gone
		_, err = tx.ConversionRate(f.usd.UID, f.eur.UID, day(2024, 1, 15))
		assert.ErrorIs(t, err, models.ErrNoConversionRate)
		return nil
	})
	require.NoError(t, err)

	zero := &models.Price{CommodityUID: f.usd.UID, CurrencyUID: f.eur.UID, Date: day(2024, 1, 1)}
	assert.ErrorIs(t, f.store.AddPrice(ctx, zero), models.ErrValidation)
	self := &models.Price{CommodityUID: f.usd.UID, CurrencyUID: f.usd.UID, Date: day(2024, 1, 1), Value: amount.FromInt(1)}
	assert.ErrorIs(t, f.store.AddPrice(ctx, self), models.ErrValidation)
}

func TestView_IsReadOnly(t *testing.T) {
	f := newFixture(t)
	err := f.store.View(context.Background(), func(tx *Tx) error {
		return tx.SaveCommodity(&models.Commodity{Mnemonic: "GBP", SmallestFraction: 100})
	})
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestDeleteAllNonTemplateTransactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveTransaction(ctx, f.transfer(f.food, f.checking, "1", day(2024, 1, 1))))
	tmpl := f.transfer(f.food, f.checking, "2", day(2024, 1, 1))
	tmpl.IsTemplate = true
	require.NoError(t, f.store.SaveTransaction(ctx, tmpl))

	n, err := f.store.DeleteAllNonTemplateTransactions(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	list, err := f.store.ListTransactions(ctx, TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, tmpl.UID, list[0].UID)
	assert.Len(t, list[0].Splits, 2)
}

func TestScheduledAction_ValidationAndAdvance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	posted := f.transfer(f.food, f.checking, "2", day(2024, 1, 1))
	require.NoError(t, f.store.SaveTransaction(ctx, posted))
	monthly := func() *models.Recurrence {
		return &models.Recurrence{PeriodType: models.PeriodMonth, Multiplier: 1, PeriodStart: day(2024, 1, 15)}
	}

	noRule := &models.ScheduledAction{Type: models.ActionTransaction, ActionUID: posted.UID, StartTime: day(2024, 1, 15)}
	var ire *models.InvalidRecurrenceError
	require.ErrorAs(t, f.store.SaveScheduledAction(ctx, noRule), &ire)

	badRule := &models.ScheduledAction{Type: models.ActionBackup, StartTime: day(2024, 1, 15),
		Recurrence: &models.Recurrence{PeriodType: models.PeriodMonth, Multiplier: 0, PeriodStart: day(2024, 1, 15)}}
	require.ErrorAs(t, f.store.SaveScheduledAction(ctx, badRule), &ire)

	notTemplate := &models.ScheduledAction{Type: models.ActionTransaction, ActionUID: posted.UID, StartTime: day(2024, 1, 15), Recurrence: monthly()}
	assert.ErrorIs(t, f.store.SaveScheduledAction(ctx, notTemplate), models.ErrValidation)

	backup := &models.ScheduledAction{Type: models.ActionBackup, StartTime: day(2024, 1, 15), Enabled: true, Recurrence: monthly()}
	require.NoError(t, f.store.SaveScheduledAction(ctx, backup))
	require.NotEmpty(t, backup.RecurrenceUID)

	first := day(2024, 2, 15)
	err := f.store.Update(ctx, func(tx *Tx) error { return tx.AdvanceScheduledAction(backup.UID, nil, first, 1) })
	require.NoError(t, err)

	// a second writer that read the old last_run loses
	err = f.store.Update(ctx, func(tx *Tx) error { return tx.AdvanceScheduledAction(backup.UID, nil, first, 1) })
	assert.ErrorIs(t, err, ErrScheduleConflict)

	err = f.store.Update(ctx, func(tx *Tx) error { return tx.AdvanceScheduledAction(backup.UID, &first, day(2024, 3, 15), 1) })
	require.NoError(t, err)

	got, err := f.store.GetScheduledAction(ctx, backup.UID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ExecutionCount)
	require.NotNil(t, got.LastRun)
	assert.True(t, got.LastRun.Equal(day(2024, 3, 15)))
	require.NotNil(t, got.Recurrence)
	assert.Equal(t, models.PeriodMonth, got.Recurrence.PeriodType)

	require.NoError(t, f.store.DeleteScheduledAction(ctx, backup.UID))
	_, err = f.store.GetScheduledAction(ctx, backup.UID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
