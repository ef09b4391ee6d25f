package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cashbook/internal/amount"
	"cashbook/internal/balance"
	"cashbook/internal/config"
	"cashbook/internal/database"
	"cashbook/internal/ledger"
	"cashbook/internal/logger"
	"cashbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newStore(t *testing.T) *ledger.Store {
	t.Helper()
	db, err := database.Init(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "ledger.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, database.Migrate(db))
	return ledger.NewStore(db, logger.Discard())
}

type book struct {
	store                *ledger.Store
	usd                  *models.Commodity
	assets, bank, wallet *models.Account
	salary, food         *models.Account
	tmpl                 *models.Transaction
}

func newBook(t *testing.T) *book {
	t.Helper()
	ctx := context.Background()
	b := &book{store: newStore(t)}
	b.usd = &models.Commodity{Mnemonic: "USD", Fullname: "US Dollar", SmallestFraction: 100}
	require.NoError(t, b.store.SaveCommodity(ctx, b.usd))

	mk := func(name string, typ models.AccountType, parent *models.Account) *models.Account {
		a := &models.Account{Name: name, Type: typ, CommodityUID: b.usd.UID}
		if parent != nil {
			a.ParentUID = &parent.UID
		}
		require.NoError(t, b.store.SaveAccount(ctx, a))
		return a
	}
	b.assets = mk("Assets", models.AccountAsset, nil)
	b.bank = mk("Bank", models.AccountBank, b.assets)
	b.wallet = mk("Wallet", models.AccountCash, b.assets)
	b.salary = mk("Salary", models.AccountIncome, nil)
	b.food = mk("Food", models.AccountExpense, nil)

	b.post(t, day(2024, 1, 1), b.bank, b.salary, "2500", "January pay")
	b.post(t, day(2024, 1, 3), b.wallet, b.bank, "100", "ATM")
	b.post(t, day(2024, 1, 5), b.food, b.wallet, "12.35", "lunch, with \"friends\"")

	b.tmpl = &models.Transaction{Description: "groceries", Timestamp: day(2024, 1, 1), CurrencyUID: b.usd.UID, IsTemplate: true,
		Splits: []models.Split{
			{AccountUID: b.food.UID, Type: models.Debit, Value: amount.FromInt(40)},
			{AccountUID: b.bank.UID, Type: models.Credit, Value: amount.FromInt(40)},
		}}
	require.NoError(t, b.store.SaveTransaction(ctx, b.tmpl))
	return b
}

func (b *book) post(t *testing.T, at time.Time, debit, credit *models.Account, v, desc string) {
	t.Helper()
	amt := amount.MustParse(v)
	require.NoError(t, b.store.SaveTransaction(context.Background(), &models.Transaction{
		Description: desc, Timestamp: at, CurrencyUID: b.usd.UID,
		Splits: []models.Split{
			{AccountUID: debit.UID, Type: models.Debit, Value: amt, Memo: "d"},
			{AccountUID: credit.UID, Type: models.Credit, Value: amt},
		},
	}))
}

func (b *book) balance(t *testing.T, acct *models.Account) amount.Amount {
	t.Helper()
	res, err := balance.NewEngine(b.store, logger.Discard()).BalanceOf(context.Background(),
		balance.Query{AccountUID: acct.UID, AsOf: day(2030, 1, 1), IncludeSubaccounts: true})
	require.NoError(t, err)
	return res.Amount
}

type fakeBackups struct {
	calls int
}

func (f *fakeBackups) Create(_ context.Context, reason string) (*models.BackupRecord, error) {
	f.calls++
	return &models.BackupRecord{UID: "bk-1", Reason: reason}, nil
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{FormatCSVAccounts, FormatCSVTransactions, FormatXLSX, FormatYAML}, Formats())
	for _, f := range Formats() {
		exp, err := New(f)
		require.NoError(t, err, f)
		assert.NotEmpty(t, exp.MimeType())
		assert.NotEmpty(t, exp.Extension())
	}
	_, err := New("qif")
	assert.ErrorIs(t, err, models.ErrValidation)

	exp, err := New("YAML")
	require.NoError(t, err)
	assert.Equal(t, "yaml", exp.Extension())
}

func TestTransactionsCSV(t *testing.T) {
	b := newBook(t)
	snap, err := b.store.Snapshot(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, TransactionsCSV{}.GenerateExport(context.Background(), &buf, snap))
	require.True(t, bytes.HasPrefix(buf.Bytes(), utf8BOM))

	rows, err := csv.NewReader(bytes.NewReader(buf.Bytes()[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1+6, "header plus two splits per posted transaction; templates are skipped")
	assert.Equal(t, "Date", rows[0][0])

	lunch := rows[5]
	assert.Equal(t, "2024-01-05", lunch[0])
	assert.Equal(t, `lunch, with "friends"`, lunch[2])
	assert.Equal(t, "USD", lunch[4])
	assert.Equal(t, "Food", lunch[5])
	assert.Equal(t, "12.35", lunch[7])
	assert.Equal(t, "-12.35", rows[6][7])
	assert.Equal(t, "Assets:Wallet", rows[6][5])
}

func TestAccountsCSV(t *testing.T) {
	b := newBook(t)
	snap, err := b.store.Snapshot(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, AccountsCSV{}.GenerateExport(context.Background(), &buf, snap))
	rows, err := csv.NewReader(bytes.NewReader(buf.Bytes()[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1+5)

	seen := map[string]int{}
	for i, r := range rows[1:] {
		seen[r[1]] = i
	}
	assert.Less(t, seen["Assets"], seen["Assets:Bank"])
	assert.Equal(t, "Assets", rows[1+seen["Assets:Bank"]][10])
}

func TestXLSX(t *testing.T) {
	b := newBook(t)
	snap, err := b.store.Snapshot(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, XLSXExporter{}.GenerateExport(context.Background(), &buf, snap))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheetTransactions)
	require.NoError(t, err)
	require.Len(t, rows, 7)
	assert.Equal(t, "January pay", rows[1][1])
	assert.Equal(t, "2500", rows[1][6])

	accounts, err := f.GetRows(sheetAccounts)
	require.NoError(t, err)
	assert.Len(t, accounts, 6)
}

func TestYAMLRoundTrip(t *testing.T) {
	b := newBook(t)
	ctx := context.Background()
	snap, err := b.store.Snapshot(ctx)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, YAMLExporter{}.GenerateExport(ctx, &buf, snap))
	back, err := ReadSnapshot(&buf)
	require.NoError(t, err)
	assert.Len(t, back.Transactions, 4)
	assert.Len(t, back.Accounts, 5)

	other := newStore(t)
	n, err := other.Import(ctx, back, ledger.ModeInsert)
	require.NoError(t, err)
	assert.Equal(t, 1+5+4, n)

	got, err := other.GetTransaction(ctx, back.Posted()[2].UID)
	require.NoError(t, err)
	assert.True(t, got.Splits[0].Value.Equal(amount.MustParse("12.35")))

	_, err = ReadSnapshot(strings.NewReader("accounts: [unterminated"))
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = ReadSnapshot(strings.NewReader("bogus_field: 1\n"))
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestService_ExportMarksExported(t *testing.T) {
	b := newBook(t)
	ctx := context.Background()
	dir := t.TempDir()
	svc := NewService(b.store, nil, dir, "", logger.Discard())

	res, err := svc.Export(ctx, Params{Format: FormatCSVTransactions})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Transactions)
	assert.Equal(t, filepath.Join(dir, res.FileName), res.Path)
	info, err := os.Stat(res.Path)
	require.NoError(t, err)
	assert.Equal(t, res.Size, info.Size())

	list, err := b.store.ListTransactions(ctx, ledger.TransactionFilter{})
	require.NoError(t, err)
	for _, txn := range list {
		assert.Equal(t, !txn.IsTemplate, txn.Exported, txn.Description)
	}

	_, err = svc.Export(ctx, Params{Format: FormatCSVTransactions, DeleteAfterExport: true})
	assert.ErrorIs(t, err, models.ErrValidation, "purging needs a backup manager")
}

func TestService_DeleteAfterExportKeepsBalances(t *testing.T) {
	b := newBook(t)
	ctx := context.Background()
	before := map[string]amount.Amount{}
	for _, a := range []*models.Account{b.assets, b.bank, b.wallet, b.salary, b.food} {
		before[a.UID] = b.balance(t, a)
	}

	backups := &fakeBackups{}
	svc := NewService(b.store, backups, t.TempDir(), "Opening Balances", logger.Discard())
	res, err := svc.Export(ctx, Params{Format: FormatYAML, DeleteAfterExport: true})
	require.NoError(t, err)
	assert.Equal(t, 1, backups.calls)
	assert.Equal(t, "bk-1", res.BackupUID)
	assert.Equal(t, int64(3), res.Purged)
	// bank, wallet, salary and food carry a balance
	assert.Equal(t, 4, res.OpeningBalances)

	for _, a := range []*models.Account{b.assets, b.bank, b.wallet, b.salary, b.food} {
		assert.True(t, before[a.UID].Equal(b.balance(t, a)), a.Name)
	}

	isTemplate := true
	tmpls, err := b.store.ListTransactions(ctx, ledger.TransactionFilter{Template: &isTemplate})
	require.NoError(t, err)
	require.Len(t, tmpls, 1)
	assert.Equal(t, b.tmpl.UID, tmpls[0].UID)

	posted := false
	list, err := b.store.ListTransactions(ctx, ledger.TransactionFilter{Template: &posted})
	require.NoError(t, err)
	assert.Len(t, list, 4)
	for _, txn := range list {
		assert.Equal(t, "Opening balance", txn.Description)
		assert.True(t, txn.Imbalance().IsZero())
	}

	// the file holds the data as it was before the purge
	f, err := os.Open(res.Path)
	require.NoError(t, err)
	defer f.Close()
	snap, err := ReadSnapshot(f)
	require.NoError(t, err)
	assert.Len(t, snap.Posted(), 3)
}
