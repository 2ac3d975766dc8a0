package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"crossMarginSim/internal/domain"
	"crossMarginSim/internal/ports"
)

// Repository implements ports.AccountRepository and
// ports.TransactionRepository on a single SQLite file. Decimal values are
// stored as TEXT so they round-trip exactly.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository opens (creating if needed) the database and initializes
// the schema.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/margin_sim.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency between the sweep loop and queries.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// The Go driver benefits from limiting connections; SQLite serializes
	// writes internally anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite database ready", map[string]interface{}{"path": dbPath})

	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS account (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		margin_balance TEXT NOT NULL,
		total_margin_used TEXT NOT NULL,
		total_unrealized_pnl TEXT NOT NULL,
		last_updated TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS positions (
		symbol TEXT PRIMARY KEY,
		side TEXT NOT NULL,
		quantity TEXT NOT NULL,
		entry_price TEXT NOT NULL,
		leverage INTEGER NOT NULL,
		margin_used TEXT NOT NULL,
		unrealized_pnl TEXT NOT NULL,
		opened_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity TEXT NOT NULL,
		price TEXT NOT NULL,
		entry_price TEXT NOT NULL,
		close_price TEXT NOT NULL,
		leverage INTEGER NOT NULL,
		margin_used TEXT NOT NULL,
		margin_returned TEXT NOT NULL,
		realized_pnl TEXT NOT NULL,
		pnl_percent TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_symbol ON transactions (symbol);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- AccountRepository Implementation ---

// Load retrieves the persisted account snapshot, or nil, nil when nothing
// has been saved yet.
func (r *Repository) Load(ctx context.Context) (*domain.MarginAccount, error) {
	const query = `SELECT margin_balance, total_margin_used, total_unrealized_pnl, last_updated FROM account WHERE id = 1`

	var balance, used, upnl string
	account := &domain.MarginAccount{}
	err := r.db.QueryRowContext(ctx, query).Scan(&balance, &used, &upnl, &account.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		r.logger.Debug(ctx, "No account snapshot found")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account snapshot: %w", err)
	}

	if account.MarginBalance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("corrupt margin_balance %q: %w", balance, err)
	}
	if account.TotalMarginUsed, err = decimal.NewFromString(used); err != nil {
		return nil, fmt.Errorf("corrupt total_margin_used %q: %w", used, err)
	}
	if account.TotalUnrealizedPnl, err = decimal.NewFromString(upnl); err != nil {
		return nil, fmt.Errorf("corrupt total_unrealized_pnl %q: %w", upnl, err)
	}

	positions, err := r.loadPositions(ctx)
	if err != nil {
		return nil, err
	}
	account.Positions = positions
	return account, nil
}

func (r *Repository) loadPositions(ctx context.Context) ([]*domain.Position, error) {
	const query = `
	SELECT symbol, side, quantity, entry_price, leverage, margin_used, unrealized_pnl, opened_at
	FROM positions ORDER BY opened_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, pos)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}

// Save replaces the stored account snapshot and open-position set in one
// transaction.
func (r *Repository) Save(ctx context.Context, account *domain.MarginAccount) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin save transaction: %w", err)
	}
	defer dbTx.Rollback()

	const upsert = `
	INSERT INTO account (id, margin_balance, total_margin_used, total_unrealized_pnl, last_updated)
	VALUES (1, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		margin_balance = excluded.margin_balance,
		total_margin_used = excluded.total_margin_used,
		total_unrealized_pnl = excluded.total_unrealized_pnl,
		last_updated = excluded.last_updated`

	if _, err = dbTx.ExecContext(ctx, upsert,
		account.MarginBalance.String(), account.TotalMarginUsed.String(),
		account.TotalUnrealizedPnl.String(), account.LastUpdated); err != nil {
		return fmt.Errorf("failed to upsert account snapshot: %w", err)
	}

	if _, err = dbTx.ExecContext(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("failed to clear positions: %w", err)
	}

	const insert = `
	INSERT INTO positions (symbol, side, quantity, entry_price, leverage, margin_used, unrealized_pnl, opened_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	for _, pos := range account.Positions {
		if _, err = dbTx.ExecContext(ctx, insert,
			pos.Symbol, string(pos.Side), pos.Quantity.String(), pos.EntryPrice.String(),
			pos.Leverage, pos.MarginUsed.String(), pos.UnrealizedPnl.String(), pos.OpenedAt); err != nil {
			return fmt.Errorf("failed to insert position %s: %w", pos.Symbol, err)
		}
	}

	if err = dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit save transaction: %w", err)
	}
	r.logger.Debug(ctx, "Account snapshot saved", map[string]interface{}{
		"positions": len(account.Positions),
	})
	return nil
}

// --- TransactionRepository Implementation ---

// Append records a journal entry. Entries are never updated or deleted
// afterwards (Purge excepted).
func (r *Repository) Append(ctx context.Context, tx *domain.Transaction) error {
	const query = `
	INSERT INTO transactions (id, type, symbol, side, quantity, price, entry_price, close_price,
	                          leverage, margin_used, margin_returned, realized_pnl, pnl_percent, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		tx.ID, string(tx.Type), tx.Symbol, string(tx.Side),
		tx.Quantity.String(), tx.Price.String(), tx.EntryPrice.String(), tx.ClosePrice.String(),
		tx.Leverage, tx.MarginUsed.String(), tx.MarginReturned.String(),
		tx.RealizedPnl.String(), tx.PnlPercent.String(), tx.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append transaction %s: %w", tx.ID, err)
	}
	r.logger.Debug(ctx, "Journal entry appended", map[string]interface{}{
		"id": tx.ID, "type": tx.Type, "symbol": tx.Symbol,
	})
	return nil
}

// FindRecent retrieves up to limit entries, most recent first. ULIDs sort
// by creation time, so ordering by id preserves append order.
func (r *Repository) FindRecent(ctx context.Context, limit int) ([]*domain.Transaction, error) {
	const query = `
	SELECT id, type, symbol, side, quantity, price, entry_price, close_price,
	       leverage, margin_used, margin_returned, realized_pnl, pnl_percent, created_at
	FROM transactions ORDER BY id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]*domain.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return txs, nil
}

// Purge deletes every journal entry. Only the explicit account reset calls
// this.
func (r *Repository) Purge(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM transactions`); err != nil {
		return fmt.Errorf("failed to purge transactions: %w", err)
	}
	return nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var side, quantity, entryPrice, marginUsed, unrealizedPnl string
	err := s.Scan(&p.Symbol, &side, &quantity, &entryPrice, &p.Leverage, &marginUsed, &unrealizedPnl, &p.OpenedAt)
	if err != nil {
		return nil, err
	}
	p.Side = domain.PositionSide(side)

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&p.Quantity, quantity},
		{&p.EntryPrice, entryPrice},
		{&p.MarginUsed, marginUsed},
		{&p.UnrealizedPnl, unrealizedPnl},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, fmt.Errorf("corrupt decimal %q: %w", f.src, err)
		}
	}
	return p, nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	tx := &domain.Transaction{}
	var txType, side string
	var quantity, price, entryPrice, closePrice, marginUsed, marginReturned, realizedPnl, pnlPercent string
	err := s.Scan(&tx.ID, &txType, &tx.Symbol, &side,
		&quantity, &price, &entryPrice, &closePrice,
		&tx.Leverage, &marginUsed, &marginReturned, &realizedPnl, &pnlPercent, &tx.Timestamp)
	if err != nil {
		return nil, err
	}
	tx.Type = domain.TransactionType(txType)
	tx.Side = domain.PositionSide(side)

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&tx.Quantity, quantity},
		{&tx.Price, price},
		{&tx.EntryPrice, entryPrice},
		{&tx.ClosePrice, closePrice},
		{&tx.MarginUsed, marginUsed},
		{&tx.MarginReturned, marginReturned},
		{&tx.RealizedPnl, realizedPnl},
		{&tx.PnlPercent, pnlPercent},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, fmt.Errorf("corrupt decimal %q: %w", f.src, err)
		}
	}
	return tx, nil
}
