package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossMarginSim/config"
	"crossMarginSim/internal/domain"
	"crossMarginSim/internal/ledger"
	"crossMarginSim/internal/liquidation"
)

type mockLogger struct{}

func (mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockAccountRepo struct {
	mu     sync.Mutex
	stored *domain.MarginAccount
}

func (m *mockAccountRepo) Load(ctx context.Context) (*domain.MarginAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stored, nil
}

func (m *mockAccountRepo) Save(ctx context.Context, account *domain.MarginAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored = account
	return nil
}

type mockJournal struct {
	mu      sync.Mutex
	entries []*domain.Transaction
}

func (m *mockJournal) Append(ctx context.Context, tx *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, tx)
	return nil
}

func (m *mockJournal) FindRecent(ctx context.Context, limit int) ([]*domain.Transaction, error) {
	return nil, nil
}

func (m *mockJournal) Purge(ctx context.Context) error { return nil }

// mockPriceFeed serves a fixed snapshot and counts calls; an optional err
// makes every call fail.
type mockPriceFeed struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	err    error
	calls  int
}

func (m *mockPriceFeed) GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]decimal.Decimal, len(symbols))
	for _, sym := range symbols {
		if price, ok := m.prices[sym]; ok {
			out[sym] = price
		}
	}
	return out, nil
}

func (m *mockPriceFeed) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testConfig() *config.Config {
	return &config.Config{
		Symbols:       []string{"ETHUSDT"},
		SweepInterval: 10 * time.Millisecond,
	}
}

func newTestService(t *testing.T, feed *mockPriceFeed) (*Service, *ledger.Ledger) {
	t.Helper()
	logger := mockLogger{}
	lgr, err := ledger.New(context.Background(), ledger.Config{
		SeedBalance: dec("100000"),
		Logger:      logger,
		Accounts:    &mockAccountRepo{},
		Journal:     &mockJournal{},
	})
	require.NoError(t, err)
	sweeper := liquidation.New(lgr, liquidation.Config{Logger: logger})
	svc, err := NewService(testConfig(), logger, feed, lgr, sweeper)
	require.NoError(t, err)
	return svc, lgr
}

func TestNewService_Validation(t *testing.T) {
	logger := mockLogger{}
	feed := &mockPriceFeed{}
	lgr, err := ledger.New(context.Background(), ledger.Config{
		SeedBalance: dec("1000"),
		Logger:      logger,
		Accounts:    &mockAccountRepo{},
		Journal:     &mockJournal{},
	})
	require.NoError(t, err)
	sweeper := liquidation.New(lgr, liquidation.Config{Logger: logger})

	_, err = NewService(nil, logger, feed, lgr, sweeper)
	require.Error(t, err)

	cfg := testConfig()
	cfg.SweepInterval = 0
	_, err = NewService(cfg, logger, feed, lgr, sweeper)
	require.Error(t, err)

	cfg = testConfig()
	cfg.Symbols = nil
	_, err = NewService(cfg, logger, feed, lgr, sweeper)
	require.Error(t, err)
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	feed := &mockPriceFeed{prices: map[string]decimal.Decimal{"ETHUSDT": dec("3700")}}
	svc, _ := newTestService(t, feed)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	time.Sleep(60 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweep loop did not stop after context cancel")
	}
	assert.Greater(t, feed.callCount(), 0, "the loop should have swept at least once")
}

func TestStart_LiquidatesThroughTheLoop(t *testing.T) {
	// SHORT 3700 @ 125x liquidates at 3711.1; a 4100 snapshot is far past
	// both the price crossing and the loss threshold.
	feed := &mockPriceFeed{prices: map[string]decimal.Decimal{"ETHUSDT": dec("4100")}}
	svc, lgr := newTestService(t, feed)

	res, err := lgr.OpenOrModify(context.Background(), "ETHUSDT", domain.Short,
		dec("10"), dec("3700"), 125, dec("1000"))
	require.NoError(t, err)
	require.NoError(t, res.PersistErr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	require.Eventually(t, func() bool {
		return lgr.Position("ETHUSDT") == nil
	}, 2*time.Second, 5*time.Millisecond, "the sweep loop should liquidate the underwater position")

	cancel()
	require.NoError(t, <-done)

	summary := lgr.Summary(nil)
	assert.True(t, summary.TotalMarginUsed.IsZero())
	assert.True(t, summary.MarginBalance.Equal(dec("96000")), "100000 - 4000 realized loss, got %s", summary.MarginBalance)
}

func TestStart_FeedErrorsSkipTheTick(t *testing.T) {
	feed := &mockPriceFeed{err: errors.New("upstream down")}
	svc, lgr := newTestService(t, feed)

	res, err := lgr.OpenOrModify(context.Background(), "ETHUSDT", domain.Short,
		dec("10"), dec("3700"), 125, dec("1000"))
	require.NoError(t, err)
	require.NoError(t, res.PersistErr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	time.Sleep(60 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Greater(t, feed.callCount(), 1, "the loop keeps retrying across ticks")
	assert.NotNil(t, lgr.Position("ETHUSDT"), "no snapshot means no sweep decisions")
}
