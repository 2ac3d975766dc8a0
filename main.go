package main

import (
	"context"
	"fmt"
	"log" // Standard log only for fatal errors before the logger is ready
	"os"

	"github.com/spf13/cobra"

	"crossMarginSim/config"
	"crossMarginSim/internal/adapters/binanceclient"
	"crossMarginSim/internal/adapters/logger"
	"crossMarginSim/internal/adapters/sqlite"
	"crossMarginSim/internal/app"
	"crossMarginSim/internal/domain"
	"crossMarginSim/internal/ledger"
	"crossMarginSim/internal/liquidation"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "crossmarginsim",
		Short: "Cross-margin leveraged trading simulator",
		Long:  "Simulates cross-margin leveraged positions against live Binance futures prices, with margin calls and forced liquidation.",
	}

	var historyLimit int
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent journal entries",
		RunE:  func(cmd *cobra.Command, args []string) error { return runHistory(historyLimit) },
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "maximum entries to print")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the liquidation sweep loop",
			RunE:  func(cmd *cobra.Command, args []string) error { return runSweepLoop() },
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Reset the account to its seed balance and purge the journal",
			RunE:  func(cmd *cobra.Command, args []string) error { return runReset() },
		},
		historyCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap wires config, logger, repository and ledger; every command
// needs this much.
func bootstrap() (*config.Config, *logger.ZapLogger, *sqlite.Repository, *ledger.Ledger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}

	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "Failed to initialize repository")
		return nil, nil, nil, nil, err
	}

	lgr, err := ledger.New(context.Background(), ledger.Config{
		SeedBalance: cfg.SeedBalance(),
		Logger:      appLogger,
		Accounts:    repo,
		Journal:     repo,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "Failed to initialize ledger")
		repo.Close()
		return nil, nil, nil, nil, err
	}

	return cfg, appLogger, repo, lgr, nil
}

func runSweepLoop() error {
	cfg, appLogger, repo, lgr, err := bootstrap()
	if err != nil {
		return err
	}
	defer repo.Close()
	defer appLogger.Sync()

	feed, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "Failed to initialize Binance price feed")
		return err
	}
	if err := feed.Ping(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Binance price feed unreachable")
		return err
	}

	sweeper := liquidation.New(lgr, liquidation.Config{
		LiquidationThreshold: cfg.LiquidationThreshold,
		MarginCallThreshold:  cfg.MarginCallThreshold,
		CriticalThreshold:    cfg.CriticalThreshold,
		Logger:               appLogger,
	})

	service, err := app.NewService(cfg, appLogger, feed, lgr, sweeper)
	if err != nil {
		appLogger.Error(context.Background(), err, "Failed to initialize sweep service")
		return err
	}

	return service.Start(context.Background())
}

func runReset() error {
	cfg, appLogger, repo, lgr, err := bootstrap()
	if err != nil {
		return err
	}
	defer repo.Close()
	defer appLogger.Sync()

	if err := lgr.Reset(context.Background(), cfg.SeedBalance()); err != nil {
		appLogger.Error(context.Background(), err, "Reset failed")
		return err
	}
	fmt.Printf("account reset to seed balance %s\n", cfg.SeedBalance().StringFixed(2))
	return nil
}

func runHistory(limit int) error {
	_, appLogger, repo, lgr, err := bootstrap()
	if err != nil {
		return err
	}
	defer repo.Close()
	defer appLogger.Sync()

	txs, err := lgr.Transactions(context.Background(), limit)
	if err != nil {
		appLogger.Error(context.Background(), err, "Journal query failed")
		return err
	}

	for _, tx := range txs {
		switch tx.Type {
		case domain.TxOpen, domain.TxAdd:
			fmt.Printf("%s  %-11s %s %s %s @ %s (%dx, margin %s)\n",
				tx.Timestamp.Format("2006-01-02 15:04:05"), tx.Type, tx.Symbol, tx.Side,
				tx.Quantity, tx.Price, tx.Leverage, tx.MarginUsed.StringFixed(2))
		default:
			fmt.Printf("%s  %-11s %s %s %s @ %s (pnl %s, returned %s)\n",
				tx.Timestamp.Format("2006-01-02 15:04:05"), tx.Type, tx.Symbol, tx.Side,
				tx.Quantity, tx.ClosePrice, tx.RealizedPnl.StringFixed(2), tx.MarginReturned.StringFixed(2))
		}
	}
	return nil
}
