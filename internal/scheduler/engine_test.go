package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
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

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, note Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.notes = append(n.notes, note)
	return nil
}

type fakeBackups struct {
	calls int
	err   error
}

func (b *fakeBackups) RunScheduledBackup(_ context.Context, actionUID string) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	b.calls++
	return "backup-" + actionUID, nil
}

type env struct {
	store     *ledger.Store
	usd       *models.Commodity
	bank, exp *models.Account
}

func setup(t *testing.T) *env {
	t.Helper()
	db, err := database.Init(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "ledger.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, database.Migrate(db))

	ctx := context.Background()
	e := &env{store: ledger.NewStore(db, logger.Discard())}
	e.usd = &models.Commodity{Mnemonic: "USD", SmallestFraction: 100}
	require.NoError(t, e.store.SaveCommodity(ctx, e.usd))
	e.bank = &models.Account{Name: "Bank", Type: models.AccountBank, CommodityUID: e.usd.UID}
	e.exp = &models.Account{Name: "Rent", Type: models.AccountExpense, CommodityUID: e.usd.UID}
	require.NoError(t, e.store.SaveAccount(ctx, e.bank))
	require.NoError(t, e.store.SaveAccount(ctx, e.exp))
	return e
}

func (e *env) template(t *testing.T) *models.Transaction {
	t.Helper()
	amt := amount.MustParse("750")
	tmpl := &models.Transaction{
		Description: "rent", Timestamp: day(2024, 1, 15), CurrencyUID: e.usd.UID, IsTemplate: true,
		Splits: []models.Split{
			{AccountUID: e.exp.UID, Type: models.Debit, Value: amt},
			{AccountUID: e.bank.UID, Type: models.Credit, Value: amt},
		},
	}
	require.NoError(t, e.store.SaveTransaction(context.Background(), tmpl))
	return tmpl
}

func monthly(start time.Time) *models.Recurrence {
	return &models.Recurrence{PeriodType: models.PeriodMonth, Multiplier: 1, PeriodStart: start}
}

func (e *env) posted(t *testing.T, actionUID string) []models.Transaction {
	t.Helper()
	list, err := e.store.ListTransactions(context.Background(), ledger.TransactionFilter{})
	require.NoError(t, err)
	var out []models.Transaction
	for _, txn := range list {
		if txn.ScheduledActionUID != nil && *txn.ScheduledActionUID == actionUID && !txn.IsTemplate {
			out = append(out, txn)
		}
	}
	return out
}

func TestTick_CatchesUpMissedOccurrences(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	tmpl := e.template(t)
	last := day(2024, 1, 15)
	sa := &models.ScheduledAction{
		Type: models.ActionTransaction, ActionUID: tmpl.UID, StartTime: day(2024, 1, 15), LastRun: &last,
		ExecutionCount: 1, Enabled: true, AutoCreate: true, Recurrence: monthly(day(2024, 1, 15)),
	}
	require.NoError(t, e.store.SaveScheduledAction(ctx, sa))

	engine := NewEngine(e.store, logger.Discard(), nil, nil)
	report, err := engine.Tick(ctx, day(2024, 4, 20))
	require.NoError(t, err)
	assert.Len(t, report.Created, 3)
	assert.Empty(t, report.Failures)

	got := e.posted(t, sa.UID)
	require.Len(t, got, 3)
	var dates []time.Time
	for _, txn := range got {
		dates = append(dates, txn.Timestamp.UTC())
		assert.Equal(t, "rent", txn.Description)
		assert.True(t, txn.Imbalance().IsZero())
		assert.Len(t, txn.Splits, 2)
	}
	assert.ElementsMatch(t, []time.Time{day(2024, 2, 15), day(2024, 3, 15), day(2024, 4, 15)}, dates)

	after, err := e.store.GetScheduledAction(ctx, sa.UID)
	require.NoError(t, err)
	assert.Equal(t, 4, after.ExecutionCount)
	require.NotNil(t, after.LastRun)
	assert.True(t, after.LastRun.Equal(day(2024, 4, 15)))
	assert.Equal(t, StatePending, StateOf(after, day(2024, 4, 20)))

	// the template is untouched
	kept, err := e.store.GetTransaction(ctx, tmpl.UID)
	require.NoError(t, err)
	assert.True(t, kept.IsTemplate)

	report, err = engine.Tick(ctx, day(2024, 4, 20))
	require.NoError(t, err)
	assert.Empty(t, report.Created)
	assert.Len(t, e.posted(t, sa.UID), 3)
}

func TestTick_ExhaustedActionCreatesNothing(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	tmpl := e.template(t)
	last := day(2024, 3, 15)
	sa := &models.ScheduledAction{
		Type: models.ActionTransaction, ActionUID: tmpl.UID, StartTime: day(2024, 1, 15), LastRun: &last,
		TotalFrequency: 3, ExecutionCount: 3, Enabled: true, AutoCreate: true, Recurrence: monthly(day(2024, 1, 15)),
	}
	require.NoError(t, e.store.SaveScheduledAction(ctx, sa))
	assert.Equal(t, StateExhausted, StateOf(sa, day(2024, 12, 1)))

	report, err := NewEngine(e.store, logger.Discard(), nil, nil).Tick(ctx, day(2024, 12, 1))
	require.NoError(t, err)
	assert.Empty(t, report.Created)
	assert.Empty(t, e.posted(t, sa.UID))
}

func TestTick_StopsAtTotalFrequencyAndEndTime(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	tmpl := e.template(t)
	engine := NewEngine(e.store, logger.Discard(), nil, nil)

	limited := &models.ScheduledAction{
		Type: models.ActionTransaction, ActionUID: tmpl.UID, StartTime: day(2024, 1, 15),
		TotalFrequency: 2, Enabled: true, AutoCreate: true, Recurrence: monthly(day(2024, 1, 15)),
	}
	require.NoError(t, e.store.SaveScheduledAction(ctx, limited))

	end := day(2024, 2, 20)
	ended := &models.ScheduledAction{
		Type: models.ActionTransaction, ActionUID: tmpl.UID, StartTime: day(2024, 1, 15), EndTime: &end,
		Enabled: true, AutoCreate: true, Recurrence: monthly(day(2024, 1, 15)),
	}
	require.NoError(t, e.store.SaveScheduledAction(ctx, ended))

	// before the end both fire on Jan 15 and Feb 15
	_, err := engine.Tick(ctx, day(2024, 2, 16))
	require.NoError(t, err)
	assert.Len(t, e.posted(t, limited.UID), 2)
	assert.Len(t, e.posted(t, ended.UID), 2)

	_, err = engine.Tick(ctx, day(2024, 6, 1))
	require.NoError(t, err)
	assert.Len(t, e.posted(t, limited.UID), 2)
	assert.Len(t, e.posted(t, ended.UID), 2)

	a, err := e.store.GetScheduledAction(ctx, limited.UID)
	require.NoError(t, err)
	assert.Equal(t, StateExhausted, StateOf(a, day(2024, 6, 1)))
	a, err = e.store.GetScheduledAction(ctx, ended.UID)
	require.NoError(t, err)
	assert.Equal(t, StateExhausted, StateOf(a, day(2024, 6, 1)))
}

func TestTick_PastEndTimeCreatesNothing(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	tmpl := e.template(t)

	end := day(2024, 2, 20)
	sa := &models.ScheduledAction{
		Type: models.ActionTransaction, ActionUID: tmpl.UID, StartTime: day(2024, 1, 15), EndTime: &end,
		Enabled: true, AutoCreate: true, Recurrence: monthly(day(2024, 1, 15)),
	}
	require.NoError(t, e.store.SaveScheduledAction(ctx, sa))
	assert.Equal(t, StateDue, StateOf(sa, day(2024, 2, 20)))
	assert.Equal(t, StateExhausted, StateOf(sa, day(2024, 6, 1)))

	report, err := NewEngine(e.store, logger.Discard(), nil, nil).Tick(ctx, day(2024, 6, 1))
	require.NoError(t, err)
	assert.Empty(t, report.Created)
	assert.Empty(t, e.posted(t, sa.UID))
}

func TestStateOf(t *testing.T) {
	last := day(2024, 1, 15)
	a := &models.ScheduledAction{
		Type: models.ActionTransaction, StartTime: day(2024, 1, 15), LastRun: &last,
		Enabled: true, AutoCreate: true, Recurrence: monthly(day(2024, 1, 15)),
	}
	assert.Equal(t, StatePending, StateOf(a, day(2024, 2, 10)))
	assert.Equal(t, StateDue, StateOf(a, day(2024, 2, 15)))

	a.AdvanceCreation = 5
	assert.Equal(t, StateDue, StateOf(a, day(2024, 2, 10)))

	a.Enabled = false
	assert.Equal(t, StateDisabled, StateOf(a, day(2024, 2, 15)))

	a.Enabled = true
	a.Recurrence = nil
	assert.Equal(t, StateExhausted, StateOf(a, day(2024, 2, 15)))

	next, ok := NextRun(&models.ScheduledAction{StartTime: day(2024, 1, 15), Recurrence: monthly(day(2024, 1, 15))})
	require.True(t, ok)
	assert.True(t, next.Equal(day(2024, 1, 15)), "a fresh action first runs on its start")
}

func TestTick_NotifyOnly(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	tmpl := e.template(t)
	last := day(2024, 1, 15)
	sa := &models.ScheduledAction{
		Type: models.ActionTransaction, ActionUID: tmpl.UID, StartTime: day(2024, 1, 15), LastRun: &last,
		Enabled: true, AutoNotify: true, AdvanceNotify: 3, Recurrence: monthly(day(2024, 1, 15)),
	}
	require.NoError(t, e.store.SaveScheduledAction(ctx, sa))

	notes := &recordingNotifier{}
	report, err := NewEngine(e.store, logger.Discard(), notes, nil).Tick(ctx, day(2024, 2, 13))
	require.NoError(t, err)
	assert.Empty(t, report.Created)
	require.Len(t, notes.notes, 1)
	assert.Equal(t, NotifyUpcoming, notes.notes[0].Kind)
	assert.True(t, notes.notes[0].Occurrence.Equal(day(2024, 2, 15)))
	assert.Equal(t, "rent", notes.notes[0].Description)
	assert.Empty(t, e.posted(t, sa.UID))
}

func TestTick_NotifierFailureRollsBack(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	tmpl := e.template(t)
	sa := &models.ScheduledAction{
		Type: models.ActionTransaction, ActionUID: tmpl.UID, StartTime: day(2024, 1, 15),
		Enabled: true, AutoCreate: true, AutoNotify: true, Recurrence: monthly(day(2024, 1, 15)),
	}
	require.NoError(t, e.store.SaveScheduledAction(ctx, sa))

	notes := &recordingNotifier{err: errors.New("mailbox full")}
	engine := NewEngine(e.store, logger.Discard(), notes, nil)
	report, err := engine.Tick(ctx, day(2024, 1, 20))
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.Empty(t, report.Created)
	assert.Empty(t, e.posted(t, sa.UID))

	a, err := e.store.GetScheduledAction(ctx, sa.UID)
	require.NoError(t, err)
	assert.Nil(t, a.LastRun)
	assert.Equal(t, 0, a.ExecutionCount)

	notes.err = nil
	report, err = engine.Tick(ctx, day(2024, 1, 20))
	require.NoError(t, err)
	assert.Len(t, report.Created, 1)
	require.Len(t, notes.notes, 1)
	assert.Equal(t, NotifyCreated, notes.notes[0].Kind)
	assert.Equal(t, report.Created[0], notes.notes[0].TransactionUID)
}

func TestTick_BackupCollapsesOccurrences(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	sa := &models.ScheduledAction{
		Type: models.ActionBackup, StartTime: day(2024, 1, 1), Enabled: true,
		Recurrence: &models.Recurrence{PeriodType: models.PeriodWeek, Multiplier: 1, PeriodStart: day(2024, 1, 1)},
	}
	require.NoError(t, e.store.SaveScheduledAction(ctx, sa))

	// no runner configured: nothing advances
	report, err := NewEngine(e.store, logger.Discard(), nil, nil).Tick(ctx, day(2024, 1, 30))
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)

	runner := &fakeBackups{}
	engine := NewEngine(e.store, logger.Discard(), nil, runner)
	report, err = engine.Tick(ctx, day(2024, 1, 30))
	require.NoError(t, err)
	assert.Equal(t, 1, runner.calls)
	require.Len(t, report.Backups, 1)
	assert.Equal(t, 5, report.Backups[0].Occurrences)
	assert.Equal(t, "backup-"+sa.UID, report.Backups[0].Backup)

	a, err := e.store.GetScheduledAction(ctx, sa.UID)
	require.NoError(t, err)
	assert.Equal(t, 5, a.ExecutionCount)
	assert.True(t, a.LastRun.Equal(day(2024, 1, 29)))

	_, err = engine.Tick(ctx, day(2024, 1, 30))
	require.NoError(t, err)
	assert.Equal(t, 1, runner.calls)
}

func TestTick_ConcurrentTicksDoNotDuplicate(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	tmpl := e.template(t)
	sa := &models.ScheduledAction{
		Type: models.ActionTransaction, ActionUID: tmpl.UID, StartTime: day(2024, 1, 15),
		Enabled: true, AutoCreate: true, Recurrence: monthly(day(2024, 1, 15)),
	}
	require.NoError(t, e.store.SaveScheduledAction(ctx, sa))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = NewEngine(e.store, logger.Discard(), nil, nil).Tick(ctx, day(2024, 6, 20))
		}()
	}
	wg.Wait()

	assert.Len(t, e.posted(t, sa.UID), 6)
	a, err := e.store.GetScheduledAction(ctx, sa.UID)
	require.NoError(t, err)
	assert.Equal(t, 6, a.ExecutionCount)
}

func TestRun_StopsOnCancel(t *testing.T) {
	e := setup(t)
	engine := NewEngine(e.store, logger.Discard(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx, 10*time.Millisecond) }()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
