package main

import (
	"context"
	"flag"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/lpkeeper/config"
	"github.com/alejandrodnm/lpkeeper/internal/adapters/chain"
	"github.com/alejandrodnm/lpkeeper/internal/adapters/notify"
	"github.com/alejandrodnm/lpkeeper/internal/adapters/storage"
	"github.com/alejandrodnm/lpkeeper/internal/application/keeper"
	"github.com/alejandrodnm/lpkeeper/internal/closeout"
	"github.com/alejandrodnm/lpkeeper/internal/domain"
	"github.com/alejandrodnm/lpkeeper/internal/ledger"
	"github.com/alejandrodnm/lpkeeper/internal/refresh"
	"github.com/alejandrodnm/lpkeeper/internal/univ3"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one keeper cycle and exit")
	dryRun := flag.Bool("dry-run", false, "use in-memory fixtures instead of real chain adapters")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full positions table (default: compact 1-line)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("lpkeeper starting",
		"config", *configPath,
		"interval", cfg.PollInterval(),
		"owner", cfg.Keeper.OwnerID,
		"dry_run", *dryRun,
		"once", *once,
	)

	dsn := cfg.Storage.DSN
	if *dryRun {
		dsn = ":memory:"
	}
	store, err := storage.NewSQLiteStore(dsn)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", dsn)
		os.Exit(1)
	}
	defer store.Close()

	// The chain fixture satisfies every chain-facing port. Real RPC adapters
	// plug in here; in dry-run the fixture is seeded with a demo position.
	fixture := chain.NewFixture()
	ownerID := cfg.Keeper.OwnerID
	if *dryRun {
		ownerID = seedFixture(fixture, store)
	}

	refresher := refresh.New(store, fixture, fixture).WithCooldown(cfg.RefreshCooldown())
	ledgerSvc := ledger.New(fixture, store, store)
	runner := closeout.NewRunner(store, store, fixture, fixture, fixture, fixture, closeout.Config{
		MaxAttempts:     cfg.Closeout.MaxAttempts,
		RetryBackoff:    time.Duration(cfg.Closeout.RetryBackoffSeconds) * time.Second,
		ExecTimeout:     time.Duration(cfg.Closeout.ExecTimeoutSeconds) * time.Second,
		FailedRetention: cfg.FailedRetention(),
	})
	notifier := notify.NewConsole(*table)

	k := keeper.New(refresher, ledgerSvc, runner, store, store, store, notifier, cfg.FailedRetention())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := k.Startup(ctx); err != nil {
		slog.Error("startup recovery failed", "err", err)
		os.Exit(1)
	}

	if err := run(ctx, k, ownerID, cfg.PollInterval(), *once); err != nil {
		slog.Error("keeper exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("lpkeeper stopped cleanly")
}

// run drives the poll loop until the context is cancelled.
func run(ctx context.Context, k *keeper.Keeper, ownerID string, interval time.Duration, once bool) error {
	if err := k.RunCycle(ctx, ownerID); err != nil {
		return err
	}
	if once {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := k.RunCycle(ctx, ownerID); err != nil {
				slog.Error("cycle failed", "err", err)
			}
		}
	}
}

// seedFixture loads a demo USDC/WETH position so dry-run produces output
// without any chain access. Returns the seeded owner id.
func seedFixture(f *chain.Fixture, store *storage.SQLiteStore) string {
	const (
		chainID = 1
		pool    = "0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640"
		owner   = "demo-owner"
	)

	usdc := domain.Erc20{ChainID: chainID, Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Dec: 6, Ticker: "USDC"}
	weth := domain.Erc20{ChainID: chainID, Address: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", Dec: 18, Ticker: "WETH"}

	cfg := domain.PositionConfig{
		PositionID:    "demo-eth-usdc",
		Protocol:      domain.ProtocolUniswapV3,
		ChainID:       chainID,
		PoolAddress:   pool,
		NFTTokenID:    big.NewInt(123456),
		Token0:        usdc,
		Token1:        weth,
		BaseIsToken0:  false, // WETH is the base, valuations in USDC
		FeeMillionths: 500,
		TickLower:     199120,
		TickUpper:     201120,
		OwnerID:       owner,
		CreatedAt:     time.Now().UTC(),
	}
	if err := store.SaveConfig(context.Background(), cfg); err != nil {
		slog.Error("seed position", "err", err)
		os.Exit(1)
	}

	tick := int32(200120)
	sqrtP, err := univ3.TickToSqrtPrice(tick)
	if err != nil {
		slog.Error("seed tick", "err", err)
		os.Exit(1)
	}
	f.SetPool(domain.PoolState{
		ChainID:          chainID,
		PoolAddress:      pool,
		SqrtPriceX96:     sqrtP,
		CurrentTick:      tick,
		Liquidity:        big.NewInt(2_000_000_000_000),
		FeeGrowthGlobal0: big.NewInt(0),
		FeeGrowthGlobal1: big.NewInt(0),
		ObservedAt:       time.Now().UTC(),
		BlockNumber:      19_000_000,
	})
	f.SetPositionState(domain.PositionState{
		PositionID:               cfg.PositionID,
		Liquidity:                big.NewInt(5_000_000_000),
		FeeGrowthInside0LastX128: big.NewInt(0),
		FeeGrowthInside1LastX128: big.NewInt(0),
		TokensOwed0:              big.NewInt(12_000_000), // 12 USDC
		TokensOwed1:              big.NewInt(0),
	})
	f.SetEvents(cfg.PositionID, nil)
	f.SetIntent(domain.StrategyIntent{
		OwnerID:           owner,
		AllowedCurrencies: []string{usdc.ID(), weth.ID()},
		AllowedEffects:    []string{"swap"},
		ExpiresAt:         time.Now().Add(24 * time.Hour),
	})

	slog.Info("dry-run fixture seeded", "position", cfg.PositionID, "tick", tick)
	return owner
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
