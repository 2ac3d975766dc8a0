package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"crossMarginSim/internal/domain"
	"crossMarginSim/internal/ports"
	"crossMarginSim/pkg/id"
)

// maintenanceMarginRates holds the per-symbol maintenance margin rate used
// for liquidation-price calculation. Values follow Binance's published
// first-tier rates; unknown symbols fall back to defaultMaintenanceRate.
var maintenanceMarginRates = map[string]decimal.Decimal{
	"BTCUSDT": decimal.RequireFromString("0.004"),
	"ETHUSDT": decimal.RequireFromString("0.005"),
	"SOLUSDT": decimal.RequireFromString("0.01"),
	"ADAUSDT": decimal.RequireFromString("0.01"),
	"DOTUSDT": decimal.RequireFromString("0.01"),
}

var defaultMaintenanceRate = decimal.RequireFromString("0.015")

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// MaintenanceMarginRate returns the maintenance margin rate for a symbol,
// falling back to a conservative default for unknown symbols.
func MaintenanceMarginRate(symbol string) decimal.Decimal {
	if rate, ok := maintenanceMarginRates[symbol]; ok {
		return rate
	}
	return defaultMaintenanceRate
}

// CalculatePnl returns the profit or loss of a position marked at
// currentPrice. Quantity is already leverage-scaled notional, so leverage
// must not be applied a second time here.
func CalculatePnl(p *domain.Position, currentPrice decimal.Decimal) decimal.Decimal {
	return pnlFor(p.Side, p.EntryPrice, currentPrice, p.Quantity)
}

func pnlFor(side domain.PositionSide, entry, current, quantity decimal.Decimal) decimal.Decimal {
	if side == domain.Long {
		return current.Sub(entry).Mul(quantity)
	}
	return entry.Sub(current).Mul(quantity)
}

// CalculateLiquidationPrice returns the price at which the position's
// losses are projected to consume its margin down to the maintenance
// threshold.
//
//	LONG:  entry * (1 - 1/leverage + maintenanceRate)
//	SHORT: entry * (1 + 1/leverage - maintenanceRate)
func CalculateLiquidationPrice(p *domain.Position) decimal.Decimal {
	invLeverage := one.Div(decimal.NewFromInt(int64(p.Leverage)))
	rate := MaintenanceMarginRate(p.Symbol)
	if p.Side == domain.Long {
		return p.EntryPrice.Mul(one.Sub(invLeverage).Add(rate))
	}
	return p.EntryPrice.Mul(one.Add(invLeverage).Sub(rate))
}

// PnlPercent expresses a PnL as a percentage of the margin backing it.
// Returns zero when marginUsed is not positive, mirroring the guard in the
// risk formulas.
func PnlPercent(pnl, marginUsed decimal.Decimal) decimal.Decimal {
	if !marginUsed.IsPositive() {
		return decimal.Zero
	}
	return pnl.Div(marginUsed).Mul(hundred)
}

// Config holds the dependencies and seed parameters for a Ledger.
type Config struct {
	// SeedBalance is the margin balance of a fresh account when no
	// persisted state exists yet.
	SeedBalance decimal.Decimal
	Logger      ports.Logger
	Accounts    ports.AccountRepository
	Journal     ports.TransactionRepository
}

// Ledger owns the margin account aggregate: the set of open positions and
// the transaction journal. All mutating operations run under a single
// mutex; reverse and add depend on read-then-write of quantity, entry
// price and margin that is not safe under concurrent access.
type Ledger struct {
	logger   ports.Logger
	accounts ports.AccountRepository
	journal  ports.TransactionRepository

	mu      sync.Mutex
	account *domain.MarginAccount
}

// New loads the persisted account state, seeding a fresh account when
// nothing has been saved yet.
func New(ctx context.Context, cfg Config) (*Ledger, error) {
	if cfg.Logger == nil || cfg.Accounts == nil || cfg.Journal == nil {
		return nil, fmt.Errorf("missing required dependencies for Ledger")
	}
	if cfg.SeedBalance.IsNegative() {
		return nil, fmt.Errorf("%w: seed balance cannot be negative", ports.ErrInvalidArgument)
	}

	account, err := cfg.Accounts.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load account state: %w", err)
	}
	if account == nil {
		account = domain.NewMarginAccount(cfg.SeedBalance)
		cfg.Logger.Info(ctx, "No persisted state found, seeding fresh margin account",
			map[string]interface{}{"seedBalance": cfg.SeedBalance.String()})
	} else {
		cfg.Logger.Info(ctx, "Loaded margin account state", map[string]interface{}{
			"marginBalance":   account.MarginBalance.String(),
			"totalMarginUsed": account.TotalMarginUsed.String(),
			"openPositions":   len(account.Positions),
		})
	}

	return &Ledger{
		logger:   cfg.Logger,
		accounts: cfg.Accounts,
		journal:  cfg.Journal,
		account:  account,
	}, nil
}

// Result reports the outcome of a mutating ledger operation.
type Result struct {
	// Message is a human-readable description of what was applied.
	Message string
	// Transactions holds the journal entries the operation appended, in
	// order.
	Transactions []*domain.Transaction
	// PersistErr reports a failed durable save. The in-memory mutation has
	// already succeeded when this is set; callers that want fail-hard
	// persistence semantics must check it.
	PersistErr error
}

func validateOrder(symbol string, side domain.PositionSide, quantity, price decimal.Decimal, leverage int, marginRequired decimal.Decimal) error {
	switch {
	case symbol == "":
		return fmt.Errorf("%w: symbol is empty", ports.ErrInvalidArgument)
	case !side.IsValid():
		return fmt.Errorf("%w: unknown side %q", ports.ErrInvalidArgument, side)
	case !quantity.IsPositive():
		return fmt.Errorf("%w: quantity %s", ports.ErrInvalidArgument, quantity)
	case !price.IsPositive():
		return fmt.Errorf("%w: price %s", ports.ErrInvalidArgument, price)
	case leverage < 1:
		return fmt.Errorf("%w: leverage %d", ports.ErrInvalidArgument, leverage)
	case !marginRequired.IsPositive():
		return fmt.Errorf("%w: margin %s", ports.ErrInvalidArgument, marginRequired)
	}
	return nil
}

// OpenOrModify opens a position for symbol, adds to an existing same-side
// position via weighted-average entry price, or hands an opposite-side
// request to the reverse algorithm. marginRequired is reserved against the
// balance through totalMarginUsed; the operation fails without mutating
// anything when available margin is insufficient.
func (l *Ledger) OpenOrModify(ctx context.Context, symbol string, side domain.PositionSide, quantity, price decimal.Decimal, leverage int, marginRequired decimal.Decimal) (*Result, error) {
	if err := validateOrder(symbol, side, quantity, price, leverage, marginRequired); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	available := l.account.AvailableMargin()
	if available.LessThan(marginRequired) {
		return nil, fmt.Errorf("%w (required: %s, available: %s)",
			ports.ErrInsufficientMargin, marginRequired.StringFixed(2), available.StringFixed(2))
	}

	existing := l.account.FindPosition(symbol)
	switch {
	case existing == nil:
		tx := l.openLocked(symbol, side, quantity, price, leverage, marginRequired)
		res := &Result{
			Message:      fmt.Sprintf("opened %s %s %s @ %s (%dx)", side, quantity, symbol, price, leverage),
			Transactions: []*domain.Transaction{tx},
		}
		res.PersistErr = l.persistLocked(ctx, res.Transactions)
		l.logger.Info(ctx, "Position opened", map[string]interface{}{
			"symbol": symbol, "side": side, "quantity": quantity.String(),
			"price": price.String(), "leverage": leverage,
		})
		return res, nil

	case existing.Side == side:
		tx := l.addLocked(existing, quantity, price, marginRequired)
		res := &Result{
			Message: fmt.Sprintf("added %s to %s %s, new entry %s",
				quantity, side, symbol, existing.EntryPrice),
			Transactions: []*domain.Transaction{tx},
		}
		res.PersistErr = l.persistLocked(ctx, res.Transactions)
		l.logger.Info(ctx, "Position increased", map[string]interface{}{
			"symbol": symbol, "addQuantity": quantity.String(),
			"newEntryPrice": existing.EntryPrice.String(),
		})
		return res, nil

	default:
		return l.reverseLocked(ctx, existing, side, quantity, price, leverage, marginRequired)
	}
}

// openLocked creates a new position and returns its OPEN journal entry.
// Caller holds l.mu and has already checked available margin.
func (l *Ledger) openLocked(symbol string, side domain.PositionSide, quantity, price decimal.Decimal, leverage int, marginRequired decimal.Decimal) *domain.Transaction {
	pos := &domain.Position{
		Symbol:        symbol,
		Side:          side,
		Quantity:      quantity,
		EntryPrice:    price,
		Leverage:      leverage,
		MarginUsed:    marginRequired,
		UnrealizedPnl: decimal.Zero,
		OpenedAt:      time.Now().UTC(),
	}
	l.account.Positions = append(l.account.Positions, pos)
	l.account.TotalMarginUsed = l.account.TotalMarginUsed.Add(marginRequired)

	return &domain.Transaction{
		ID:         id.New(),
		Type:       domain.TxOpen,
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		Price:      price,
		Leverage:   leverage,
		MarginUsed: marginRequired,
		Timestamp:  time.Now().UTC(),
	}
}

// addLocked merges an addition into an existing same-side position using a
// quantity-weighted average entry price. Caller holds l.mu.
func (l *Ledger) addLocked(existing *domain.Position, quantity, price, marginRequired decimal.Decimal) *domain.Transaction {
	newQuantity := existing.Quantity.Add(quantity)
	totalCost := existing.Quantity.Mul(existing.EntryPrice).Add(quantity.Mul(price))
	existing.EntryPrice = totalCost.Div(newQuantity)
	existing.Quantity = newQuantity
	existing.MarginUsed = existing.MarginUsed.Add(marginRequired)

	l.account.TotalMarginUsed = l.account.TotalMarginUsed.Add(marginRequired)

	return &domain.Transaction{
		ID:         id.New(),
		Type:       domain.TxAdd,
		Symbol:     existing.Symbol,
		Side:       existing.Side,
		Quantity:   quantity,
		Price:      price,
		EntryPrice: existing.EntryPrice,
		Leverage:   existing.Leverage,
		MarginUsed: marginRequired,
		Timestamp:  time.Now().UTC(),
	}
}

// reverseLocked handles an opposite-direction request against an existing
// position. Equal quantity flips the position, a smaller quantity reduces
// it in place, a larger quantity closes it and opens the excess on the new
// side. The whole operation is checked up front so state is never
// partially applied. Caller holds l.mu.
func (l *Ledger) reverseLocked(ctx context.Context, existing *domain.Position, newSide domain.PositionSide, quantity, price decimal.Decimal, leverage int, marginRequired decimal.Decimal) (*Result, error) {
	symbol := existing.Symbol

	switch existing.Quantity.Cmp(quantity) {
	case 0:
		// Full reversal: close at price, reopen the same quantity on the
		// other side.
		realized := CalculatePnl(existing, price)
		projected := projectedAvailable(l.account, existing.MarginUsed, realized)
		if projected.LessThan(marginRequired) {
			return nil, fmt.Errorf("%w for reversal (required: %s, available after close: %s)",
				ports.ErrInsufficientMargin, marginRequired.StringFixed(2), projected.StringFixed(2))
		}

		closeTx := l.closeLocked(existing, price, domain.TxClose, decimal.Zero)
		openTx := l.openLocked(symbol, newSide, quantity, price, leverage, marginRequired)
		res := &Result{
			Message: fmt.Sprintf("reversed %s: closed %s %s, opened %s %s @ %s",
				symbol, closeTx.Side, quantity, newSide, quantity, price),
			Transactions: []*domain.Transaction{closeTx, openTx},
		}
		res.PersistErr = l.persistLocked(ctx, res.Transactions)
		l.logger.Info(ctx, "Position reversed", map[string]interface{}{
			"symbol": symbol, "newSide": newSide, "quantity": quantity.String(),
			"realizedPnl": realized.String(),
		})
		return res, nil

	case 1:
		// Partial reduction: keep side and entry price, release the
		// proportional share of margin immediately and realize the PnL on
		// the closed quantity. No opposite position is opened.
		released := existing.MarginUsed.Mul(quantity).Div(existing.Quantity)
		realized := pnlFor(existing.Side, existing.EntryPrice, price, quantity)
		returned := returnedMargin(released, realized)

		existing.Quantity = existing.Quantity.Sub(quantity)
		existing.MarginUsed = existing.MarginUsed.Sub(released)
		l.account.MarginBalance = flooredBalance(l.account.MarginBalance.Add(realized))
		l.account.TotalMarginUsed = l.account.TotalMarginUsed.Sub(released)

		tx := &domain.Transaction{
			ID:             id.New(),
			Type:           domain.TxReverse,
			Symbol:         symbol,
			Side:           existing.Side,
			Quantity:       quantity,
			EntryPrice:     existing.EntryPrice,
			ClosePrice:     price,
			Leverage:       existing.Leverage,
			MarginReturned: returned,
			RealizedPnl:    realized,
			Timestamp:      time.Now().UTC(),
		}
		res := &Result{
			Message: fmt.Sprintf("partially closed %s: reduced by %s, %s remaining",
				symbol, quantity, existing.Quantity),
			Transactions: []*domain.Transaction{tx},
		}
		res.PersistErr = l.persistLocked(ctx, res.Transactions)
		l.logger.Info(ctx, "Position partially closed", map[string]interface{}{
			"symbol": symbol, "reducedBy": quantity.String(),
			"remaining": existing.Quantity.String(), "realizedPnl": realized.String(),
		})
		return res, nil

	default:
		// The request exceeds the open quantity: close fully, open only
		// the excess on the new side.
		excess := quantity.Sub(existing.Quantity)
		realized := CalculatePnl(existing, price)
		projected := projectedAvailable(l.account, existing.MarginUsed, realized)
		if projected.LessThan(marginRequired) {
			return nil, fmt.Errorf("%w for reversal (required: %s, available after close: %s)",
				ports.ErrInsufficientMargin, marginRequired.StringFixed(2), projected.StringFixed(2))
		}

		closeTx := l.closeLocked(existing, price, domain.TxClose, decimal.Zero)
		openTx := l.openLocked(symbol, newSide, excess, price, leverage, marginRequired)
		res := &Result{
			Message: fmt.Sprintf("reversed %s: closed %s %s, opened %s %s @ %s",
				symbol, closeTx.Side, closeTx.Quantity, newSide, excess, price),
			Transactions: []*domain.Transaction{closeTx, openTx},
		}
		res.PersistErr = l.persistLocked(ctx, res.Transactions)
		l.logger.Info(ctx, "Position reversed with excess", map[string]interface{}{
			"symbol": symbol, "newSide": newSide, "excessQuantity": excess.String(),
			"realizedPnl": realized.String(),
		})
		return res, nil
	}
}

// Close closes the full position for symbol at closePrice, releasing its
// margin reservation and settling the realized PnL into the balance. The
// net effect on available margin is marginUsed + realizedPnl.
func (l *Ledger) Close(ctx context.Context, symbol string, closePrice decimal.Decimal) (*Result, error) {
	if !closePrice.IsPositive() {
		return nil, fmt.Errorf("%w: close price %s", ports.ErrInvalidArgument, closePrice)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos := l.account.FindPosition(symbol)
	if pos == nil {
		return nil, fmt.Errorf("%w: %s", ports.ErrPositionNotFound, symbol)
	}

	tx := l.closeLocked(pos, closePrice, domain.TxClose, decimal.Zero)
	res := &Result{
		Message: fmt.Sprintf("closed %s, realized PnL %s, margin returned %s",
			symbol, tx.RealizedPnl.StringFixed(2), tx.MarginReturned.StringFixed(2)),
		Transactions: []*domain.Transaction{tx},
	}
	res.PersistErr = l.persistLocked(ctx, res.Transactions)
	l.logger.Info(ctx, "Position closed", map[string]interface{}{
		"symbol": symbol, "closePrice": closePrice.String(),
		"realizedPnl": tx.RealizedPnl.String(), "marginReturned": tx.MarginReturned.String(),
	})
	return res, nil
}

// Liquidate force-closes a position at the given mark price, journaling a
// LIQUIDATION entry that carries the triggering loss percentage. Called by
// the sweeper; liquidations are expected state transitions, not errors.
func (l *Ledger) Liquidate(ctx context.Context, symbol string, markPrice, pnlPercent decimal.Decimal) (*Result, error) {
	if !markPrice.IsPositive() {
		return nil, fmt.Errorf("%w: mark price %s", ports.ErrInvalidArgument, markPrice)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos := l.account.FindPosition(symbol)
	if pos == nil {
		return nil, fmt.Errorf("%w: %s", ports.ErrPositionNotFound, symbol)
	}

	tx := l.closeLocked(pos, markPrice, domain.TxLiquidation, pnlPercent)
	res := &Result{
		Message: fmt.Sprintf("liquidated %s %s at %s (loss %s%%)",
			tx.Side, symbol, markPrice, pnlPercent.StringFixed(1)),
		Transactions: []*domain.Transaction{tx},
	}
	res.PersistErr = l.persistLocked(ctx, res.Transactions)
	l.logger.Warn(ctx, "Position force-liquidated", map[string]interface{}{
		"symbol": symbol, "side": tx.Side, "markPrice": markPrice.String(),
		"pnlPercent": pnlPercent.StringFixed(1), "realizedPnl": tx.RealizedPnl.String(),
	})
	return res, nil
}

// returnedMargin is the amount a close hands back to available margin:
// the released margin plus realized PnL, floored at zero when the loss
// consumed the entire allocation. The journal keeps the unclamped
// realized PnL, so the shortfall stays visible.
func returnedMargin(margin, realizedPnl decimal.Decimal) decimal.Decimal {
	returned := margin.Add(realizedPnl)
	if returned.IsNegative() {
		return decimal.Zero
	}
	return returned
}

// flooredBalance clamps the margin balance at zero: a realized loss
// larger than the remaining equity zeroes the account, it never goes
// negative.
func flooredBalance(balance decimal.Decimal) decimal.Decimal {
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}

// projectedAvailable computes what the available margin would be after
// closing a position holding releasedMargin with the given realized PnL.
// Used to check a reversal atomically before mutating anything.
func projectedAvailable(account *domain.MarginAccount, releasedMargin, realizedPnl decimal.Decimal) decimal.Decimal {
	balance := flooredBalance(account.MarginBalance.Add(realizedPnl))
	used := account.TotalMarginUsed.Sub(releasedMargin)
	return balance.Sub(used)
}

// closeLocked removes the position and applies the balance and margin
// accounting shared by Close, Liquidate and the reverse branches: the
// margin reservation is released and the realized PnL settles into the
// balance. Caller holds l.mu.
func (l *Ledger) closeLocked(pos *domain.Position, closePrice decimal.Decimal, txType domain.TransactionType, pnlPercent decimal.Decimal) *domain.Transaction {
	realized := CalculatePnl(pos, closePrice)
	returned := returnedMargin(pos.MarginUsed, realized)

	l.account.MarginBalance = flooredBalance(l.account.MarginBalance.Add(realized))
	l.account.TotalMarginUsed = l.account.TotalMarginUsed.Sub(pos.MarginUsed)
	l.account.RemovePosition(pos.Symbol)

	return &domain.Transaction{
		ID:             id.New(),
		Type:           txType,
		Symbol:         pos.Symbol,
		Side:           pos.Side,
		Quantity:       pos.Quantity,
		EntryPrice:     pos.EntryPrice,
		ClosePrice:     closePrice,
		Leverage:       pos.Leverage,
		MarginUsed:     pos.MarginUsed,
		MarginReturned: returned,
		RealizedPnl:    realized,
		PnlPercent:     pnlPercent,
		Timestamp:      time.Now().UTC(),
	}
}

// persistLocked saves the account snapshot and appends the journal
// entries. A failure does not roll back the in-memory mutation; it is
// wrapped and handed back through Result.PersistErr. Caller holds l.mu.
func (l *Ledger) persistLocked(ctx context.Context, txs []*domain.Transaction) error {
	l.account.LastUpdated = time.Now().UTC()

	var errs []error
	if err := l.accounts.Save(ctx, l.account); err != nil {
		errs = append(errs, fmt.Errorf("account save: %w", err))
	}
	for _, tx := range txs {
		if err := l.journal.Append(ctx, tx); err != nil {
			errs = append(errs, fmt.Errorf("journal append %s: %w", tx.ID, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	err := fmt.Errorf("%w: %w", ports.ErrPersistenceFailed, errors.Join(errs...))
	l.logger.Warn(ctx, "State mutation applied but durable save failed",
		map[string]interface{}{"error": err.Error()})
	return err
}

// Save persists the current account snapshot outside of a mutation, e.g.
// at shutdown.
func (l *Ledger) Save(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.account.LastUpdated = time.Now().UTC()
	if err := l.accounts.Save(ctx, l.account); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrPersistenceFailed, err)
	}
	return nil
}

// Position returns a copy of the open position for symbol, or nil.
func (l *Ledger) Position(symbol string) *domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	if pos := l.account.FindPosition(symbol); pos != nil {
		return pos.Clone()
	}
	return nil
}

// Positions returns copies of all open positions.
func (l *Ledger) Positions() []*domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*domain.Position, 0, len(l.account.Positions))
	for _, p := range l.account.Positions {
		out = append(out, p.Clone())
	}
	return out
}

// MarkToMarket refreshes every position's cached unrealized PnL against
// the snapshot and returns the new account total. Symbols missing from
// the snapshot keep their previous cache.
func (l *Ledger) MarkToMarket(prices map[string]decimal.Decimal) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.markToMarketLocked(prices)
}

func (l *Ledger) markToMarketLocked(prices map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, pos := range l.account.Positions {
		if price, ok := prices[pos.Symbol]; ok && price.IsPositive() {
			pos.UnrealizedPnl = CalculatePnl(pos, price)
		}
		total = total.Add(pos.UnrealizedPnl)
	}
	l.account.TotalUnrealizedPnl = total
	return total
}

// AccountSummary is a read-only snapshot of the account.
type AccountSummary struct {
	MarginBalance      decimal.Decimal
	TotalMarginUsed    decimal.Decimal
	AvailableMargin    decimal.Decimal
	TotalUnrealizedPnl decimal.Decimal
	// TotalValue is the account equity: the balance (which includes
	// reserved margin) plus unrealized PnL.
	TotalValue    decimal.Decimal
	Positions     []domain.Position
	PositionCount int
	LastUpdated   time.Time
}

// Summary returns the account snapshot, marking positions to market first
// when a price snapshot is supplied.
func (l *Ledger) Summary(prices map[string]decimal.Decimal) *AccountSummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	if prices != nil {
		l.markToMarketLocked(prices)
	}

	positions := make([]domain.Position, 0, len(l.account.Positions))
	for _, p := range l.account.Positions {
		positions = append(positions, *p)
	}
	return &AccountSummary{
		MarginBalance:      l.account.MarginBalance,
		TotalMarginUsed:    l.account.TotalMarginUsed,
		AvailableMargin:    l.account.AvailableMargin(),
		TotalUnrealizedPnl: l.account.TotalUnrealizedPnl,
		TotalValue:         l.account.MarginBalance.Add(l.account.TotalUnrealizedPnl),
		Positions:          positions,
		PositionCount:      len(positions),
		LastUpdated:        l.account.LastUpdated,
	}
}

// PositionRisk describes how close one position is to liquidation.
type PositionRisk struct {
	Symbol                string
	Side                  domain.PositionSide
	EntryPrice            decimal.Decimal
	CurrentPrice          decimal.Decimal
	LiquidationPrice      decimal.Decimal
	UnrealizedPnl         decimal.Decimal
	PnlPercent            decimal.Decimal
	DistanceToLiquidation decimal.Decimal // percent of current price
	Leverage              int
	MarginUsed            decimal.Decimal
	Level                 domain.RiskLevel
}

// RiskInfo computes the per-position risk report for every open position
// with a snapshot price.
func (l *Ledger) RiskInfo(prices map[string]decimal.Decimal) []PositionRisk {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]PositionRisk, 0, len(l.account.Positions))
	for _, pos := range l.account.Positions {
		price, ok := prices[pos.Symbol]
		if !ok || !price.IsPositive() {
			continue
		}

		pnl := CalculatePnl(pos, price)
		pnlPct := PnlPercent(pnl, pos.MarginUsed)
		liqPrice := CalculateLiquidationPrice(pos)

		var distance decimal.Decimal
		if pos.Side == domain.Long {
			distance = price.Sub(liqPrice).Div(price).Mul(hundred)
		} else {
			distance = liqPrice.Sub(price).Div(price).Mul(hundred)
		}

		level := domain.ClassifyRisk(pnlPct)
		if crossed(pos.Side, price, liqPrice) {
			level = domain.RiskLiquidated
		}

		out = append(out, PositionRisk{
			Symbol:                pos.Symbol,
			Side:                  pos.Side,
			EntryPrice:            pos.EntryPrice,
			CurrentPrice:          price,
			LiquidationPrice:      liqPrice,
			UnrealizedPnl:         pnl,
			PnlPercent:            pnlPct,
			DistanceToLiquidation: distance,
			Leverage:              pos.Leverage,
			MarginUsed:            pos.MarginUsed,
			Level:                 level,
		})
	}
	return out
}

// crossed reports whether price has moved through the liquidation price in
// the adverse direction for the side.
func crossed(side domain.PositionSide, price, liquidationPrice decimal.Decimal) bool {
	if side == domain.Long {
		return price.LessThanOrEqual(liquidationPrice)
	}
	return price.GreaterThanOrEqual(liquidationPrice)
}

// Crossed is the exported form used by the sweeper.
func Crossed(side domain.PositionSide, price, liquidationPrice decimal.Decimal) bool {
	return crossed(side, price, liquidationPrice)
}

// Transactions returns up to limit journal entries, most recent first.
func (l *Ledger) Transactions(ctx context.Context, limit int) ([]*domain.Transaction, error) {
	txs, err := l.journal.FindRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	return txs, nil
}

// Reset discards all state and reseeds the account. The journal is purged;
// this is the only operation that ever removes journal entries.
func (l *Ledger) Reset(ctx context.Context, seedBalance decimal.Decimal) error {
	if seedBalance.IsNegative() {
		return fmt.Errorf("%w: seed balance cannot be negative", ports.ErrInvalidArgument)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.account = domain.NewMarginAccount(seedBalance)
	if err := l.accounts.Save(ctx, l.account); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrPersistenceFailed, err)
	}
	if err := l.journal.Purge(ctx); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrPersistenceFailed, err)
	}
	l.logger.Info(ctx, "Margin account reset", map[string]interface{}{
		"seedBalance": seedBalance.String(),
	})
	return nil
}
