package ports

import (
	"context"

	"crossMarginSim/internal/domain"
)

// AccountRepository is the persistence gateway for the margin account and
// its open positions. The ledger calls Save synchronously after every
// mutating operation.
type AccountRepository interface {
	// Load retrieves the persisted account state.
	// Returns nil, nil when no state has been saved yet.
	Load(ctx context.Context) (*domain.MarginAccount, error)
	// Save durably stores the full account state, replacing any previous
	// snapshot.
	Save(ctx context.Context, account *domain.MarginAccount) error
}

// TransactionRepository is the append-only journal of position lifecycle
// events.
type TransactionRepository interface {
	// Append records a new journal entry. Entries are never mutated after
	// append.
	Append(ctx context.Context, tx *domain.Transaction) error
	// FindRecent retrieves up to limit entries, most recent first.
	FindRecent(ctx context.Context, limit int) ([]*domain.Transaction, error)
	// Purge removes every journal entry. Used only by an explicit account
	// reset, never by normal operation.
	Purge(ctx context.Context) error
}
