package binanceclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"crossMarginSim/internal/ports"
)

const (
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Client implements the ports.PriceFeed interface using the go-binance
// futures API. Mark prices back the simulation; the simulator never places
// real orders.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
}

// Config holds configuration specific to the Binance price feed adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance price feed adapter. API keys are optional:
// mark prices are a public endpoint.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
	} else {
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance price feed configured",
		map[string]interface{}{"baseURL": client.BaseURL, "testnet": cfg.UseTestnet})

	return &Client{futuresClient: client, logger: cfg.Logger}, nil
}

// handleError translates common Binance API errors into standardized ports
// errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiCode"] = apiErr.Code
		switch apiErr.Code {
		case -1003:
			c.logger.Warn(ctx, "Binance rate limit exceeded", fields)
			return fmt.Errorf("%s: %w: %s", operation, ports.ErrRateLimited, apiErr.Message)
		case -2014, -2015, -1022:
			c.logger.Error(ctx, err, "Binance authentication failed", fields)
			return fmt.Errorf("%s: %w: %s", operation, ports.ErrAuthenticationFailed, apiErr.Message)
		default:
			c.logger.Error(ctx, err, "Binance API error", fields)
			return fmt.Errorf("%s: %w: %s", operation, ports.ErrFeedUnavailable, apiErr.Message)
		}
	}

	c.logger.Error(ctx, err, "Binance request failed", fields)
	return fmt.Errorf("%s: %w: %v", operation, ports.ErrConnectionFailed, err)
}

// GetPrices retrieves the latest mark price for each requested symbol in
// one premium-index call. Symbols Binance does not price are absent from
// the result.
func (c *Client) GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	const op = "GetPrices"

	indexes, err := c.futuresClient.NewPremiumIndexService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[s] = true
	}

	prices := make(map[string]decimal.Decimal, len(symbols))
	for _, idx := range indexes {
		if !wanted[idx.Symbol] {
			continue
		}
		price, err := decimal.NewFromString(idx.MarkPrice)
		if err != nil {
			c.logger.Warn(ctx, "Skipping unparsable mark price", map[string]interface{}{
				"symbol": idx.Symbol, "markPrice": idx.MarkPrice,
			})
			continue
		}
		prices[idx.Symbol] = price
	}

	if len(prices) == 0 && len(symbols) > 0 {
		err := fmt.Errorf("no prices returned for requested symbols")
		return nil, c.handleError(ctx, err, op)
	}
	return prices, nil
}

// Ping checks connectivity to the Binance API.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, "Ping")
	}
	return nil
}
