package liquidation

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossMarginSim/internal/domain"
	"crossMarginSim/internal/ledger"
)

type mockLogger struct {
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

type mockAccountRepo struct {
	stored *domain.MarginAccount
}

func (m *mockAccountRepo) Load(ctx context.Context) (*domain.MarginAccount, error) {
	return m.stored, nil
}

func (m *mockAccountRepo) Save(ctx context.Context, account *domain.MarginAccount) error {
	m.stored = account
	return nil
}

type mockJournal struct {
	entries []*domain.Transaction
}

func (m *mockJournal) Append(ctx context.Context, tx *domain.Transaction) error {
	m.entries = append(m.entries, tx)
	return nil
}

func (m *mockJournal) FindRecent(ctx context.Context, limit int) ([]*domain.Transaction, error) {
	return nil, nil
}

func (m *mockJournal) Purge(ctx context.Context) error {
	m.entries = nil
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestSweeper(t *testing.T, seedBalance string, cfg Config) (*Sweeper, *ledger.Ledger, *mockJournal) {
	t.Helper()
	journal := &mockJournal{}
	l, err := ledger.New(context.Background(), ledger.Config{
		SeedBalance: dec(seedBalance),
		Logger:      &mockLogger{},
		Accounts:    &mockAccountRepo{},
		Journal:     journal,
	})
	require.NoError(t, err)
	if cfg.Logger == nil {
		cfg.Logger = &mockLogger{}
	}
	return New(l, cfg), l, journal
}

func mustOpen(t *testing.T, l *ledger.Ledger, symbol string, side domain.PositionSide, qty, price string, leverage int, margin string) {
	t.Helper()
	res, err := l.OpenOrModify(context.Background(), symbol, side, dec(qty), dec(price), leverage, dec(margin))
	require.NoError(t, err)
	require.NoError(t, res.PersistErr)
}

func TestSweep_LiquidatesUnderwaterShort(t *testing.T) {
	s, l, journal := newTestSweeper(t, "200000", Config{})
	mustOpen(t, l, "ETHUSDT", domain.Short, "10", "3700", 125, "1000")

	snapshot := map[string]decimal.Decimal{"ETHUSDT": dec("4100")}
	events, calls := s.Sweep(context.Background(), snapshot)

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "ETHUSDT", ev.Symbol)
	assert.Equal(t, domain.Short, ev.Side)
	assert.True(t, ev.LiquidationPrice.Equal(dec("3711.1")), "3700*(1+1/125-0.005), got %s", ev.LiquidationPrice)
	assert.True(t, ev.MarkPrice.Equal(dec("4100")))
	assert.True(t, ev.PnlPercent.Equal(dec("-400")), "a -4000 loss on 1000 margin")
	assert.True(t, ev.RealizedPnl.Equal(dec("-4000")))
	assert.Empty(t, calls)

	assert.Nil(t, l.Position("ETHUSDT"))
	assert.Equal(t, domain.TxLiquidation, journal.entries[len(journal.entries)-1].Type)

	// Sweeping the same snapshot again finds no position to act on.
	events, calls = s.Sweep(context.Background(), snapshot)
	assert.Empty(t, events)
	assert.Empty(t, calls)
}

func TestSweep_MarginCallTiers(t *testing.T) {
	s, l, _ := newTestSweeper(t, "1000", Config{})
	// Leverage 1 keeps the liquidation price far away so only the loss
	// percentage drives each outcome.
	mustOpen(t, l, "BTCUSDT", domain.Long, "1", "100", 1, "100")
	mustOpen(t, l, "ETHUSDT", domain.Long, "1", "100", 1, "100")
	mustOpen(t, l, "SOLUSDT", domain.Long, "1", "100", 1, "100")

	events, calls := s.Sweep(context.Background(), map[string]decimal.Decimal{
		"BTCUSDT": dec("45"), // -55%: margin call
		"ETHUSDT": dec("25"), // -75%: critical margin call
		"SOLUSDT": dec("15"), // -85%: liquidation
	})

	require.Len(t, events, 1)
	assert.Equal(t, "SOLUSDT", events[0].Symbol)
	assert.Nil(t, l.Position("SOLUSDT"))

	require.Len(t, calls, 2)
	assert.Equal(t, "BTCUSDT", calls[0].Symbol)
	assert.False(t, calls[0].Critical)
	assert.Equal(t, "ETHUSDT", calls[1].Symbol)
	assert.True(t, calls[1].Critical)

	// Margin calls leave the positions open.
	assert.NotNil(t, l.Position("BTCUSDT"))
	assert.NotNil(t, l.Position("ETHUSDT"))
}

func TestSweep_PriceCrossingAloneLiquidates(t *testing.T) {
	s, l, _ := newTestSweeper(t, "1000", Config{})
	// 100x leverage puts the liquidation price at 99.5; a small notional
	// keeps the loss percentage nowhere near the -80 threshold.
	mustOpen(t, l, "ETHUSDT", domain.Long, "1", "100", 100, "100")

	events, _ := s.Sweep(context.Background(), map[string]decimal.Decimal{"ETHUSDT": dec("99.4")})
	require.Len(t, events, 1)
	assert.True(t, events[0].PnlPercent.GreaterThan(dec("-80")),
		"the crossing fired before the loss threshold, got %s%%", events[0].PnlPercent)
	assert.Nil(t, l.Position("ETHUSDT"))
}

func TestSweep_SkipsUnpricedSymbols(t *testing.T) {
	s, l, _ := newTestSweeper(t, "1000", Config{})
	mustOpen(t, l, "ADAUSDT", domain.Long, "1", "100", 1, "100")

	events, calls := s.Sweep(context.Background(), map[string]decimal.Decimal{"BTCUSDT": dec("1")})
	assert.Empty(t, events)
	assert.Empty(t, calls)
	assert.NotNil(t, l.Position("ADAUSDT"))
}

func TestSweep_CustomThresholds(t *testing.T) {
	s, l, _ := newTestSweeper(t, "1000", Config{
		LiquidationThreshold: dec("-90"),
		MarginCallThreshold:  dec("-30"),
		CriticalThreshold:    dec("-60"),
	})
	mustOpen(t, l, "BTCUSDT", domain.Long, "1", "100", 1, "100")

	// -40% trips the tightened margin-call threshold but not the relaxed
	// liquidation threshold.
	events, calls := s.Sweep(context.Background(), map[string]decimal.Decimal{"BTCUSDT": dec("60")})
	assert.Empty(t, events)
	require.Len(t, calls, 1)
	assert.False(t, calls[0].Critical)

	// -85% liquidates under the defaults but not under -90.
	events, calls = s.Sweep(context.Background(), map[string]decimal.Decimal{"BTCUSDT": dec("15")})
	assert.Empty(t, events)
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Critical)
}

func TestSweep_MarksToMarketFirst(t *testing.T) {
	s, l, _ := newTestSweeper(t, "1000", Config{})
	mustOpen(t, l, "BTCUSDT", domain.Long, "2", "100", 1, "200")

	s.Sweep(context.Background(), map[string]decimal.Decimal{"BTCUSDT": dec("110")})
	summary := l.Summary(nil)
	assert.True(t, summary.TotalUnrealizedPnl.Equal(dec("20")),
		"the sweep refreshes the unrealized PnL cache, got %s", summary.TotalUnrealizedPnl)
}

func TestSummarize_Buckets(t *testing.T) {
	s, l, _ := newTestSweeper(t, "1000", Config{})
	mustOpen(t, l, "BTCUSDT", domain.Long, "1", "100", 1, "100")
	mustOpen(t, l, "ETHUSDT", domain.Long, "1", "100", 1, "100")
	mustOpen(t, l, "SOLUSDT", domain.Long, "1", "100", 1, "100")

	summary := s.Summarize(map[string]decimal.Decimal{
		"BTCUSDT": dec("30"), // -70%: high risk
		"ETHUSDT": dec("60"), // -40%: medium risk
		"SOLUSDT": dec("95"), // -5%: low risk
	})

	require.Len(t, summary.HighRisk, 1)
	assert.Equal(t, "BTCUSDT", summary.HighRisk[0].Symbol)
	require.Len(t, summary.MediumRisk, 1)
	assert.Equal(t, "ETHUSDT", summary.MediumRisk[0].Symbol)
	require.Len(t, summary.LowRisk, 1)
	assert.Equal(t, "SOLUSDT", summary.LowRisk[0].Symbol)
	assert.True(t, summary.TotalAtRisk.Equal(dec("70")),
		"the absolute high-risk loss, got %s", summary.TotalAtRisk)
}
