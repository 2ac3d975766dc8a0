package ports

import "errors"

// Standard application-level errors.
// Adapters and the ledger wrap underlying failures with these standard
// errors so callers can branch with errors.Is.
var (
	// Ledger errors
	ErrInvalidArgument    = errors.New("invalid argument: quantity, price, leverage and margin must be positive")
	ErrInsufficientMargin = errors.New("insufficient available margin")
	ErrPositionNotFound   = errors.New("no open position for symbol")

	// Persistence errors
	ErrPersistenceFailed = errors.New("failed to persist state")
	ErrNotFound          = errors.New("resource not found")
	ErrQueryFailed       = errors.New("storage query failed")
	ErrUpdateFailed      = errors.New("storage update failed")

	// Price feed errors
	ErrFeedUnavailable      = errors.New("price feed is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the price feed")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("price feed authentication failed (check API keys)")

	// Configuration
	ErrConfigurationError = errors.New("invalid or missing configuration")
)
