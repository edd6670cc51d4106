// Package bootstrap assembles the application from configuration: venue,
// lender, safety gates, engine, compounder, and keeper, plus the ambient
// logging and telemetry stack.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"leverager/internal/alert"
	"leverager/internal/config"
	"leverager/internal/core"
	"leverager/internal/engine"
	"leverager/internal/feed"
	"leverager/internal/infrastructure/health"
	"leverager/internal/infrastructure/metrics"
	"leverager/internal/keeper"
	"leverager/internal/lender"
	"leverager/internal/rewards"
	"leverager/internal/safety"
	"leverager/internal/swap"
	"leverager/internal/venue"
	"leverager/pkg/logging"
	"leverager/pkg/telemetry"

	"github.com/shopspring/decimal"
)

// App holds the assembled components and owns their lifecycle.
type App struct {
	Cfg        *config.Config
	Logger     core.ILogger
	Engine     *engine.Engine
	Keeper     *keeper.Keeper
	Compounder *rewards.Compounder
	Feed       core.IPriceFeed
	Alerts     *alert.Manager

	metricsServer *metrics.Server
	stopFeed      func()
	closeStore    func() error
	shutdownOtel  func(context.Context) error
}

// NewApp bootstraps every component from the given config file.
func NewApp(configPath string) (*App, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return newApp(cfg)
}

// NewAppFromConfig bootstraps from an already-validated configuration.
func NewAppFromConfig(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return newApp(cfg)
}

func newApp(cfg *config.Config) (*App, error) {
	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	logging.SetGlobalLogger(logger)

	shutdownOtel := func(context.Context) error { return nil }
	if tel, err := telemetry.Setup("leverager"); err != nil {
		logger.Warn("Telemetry setup failed, continuing without exporters", "error", err)
	} else {
		shutdownOtel = tel.Shutdown
	}

	app := &App{
		Cfg:          cfg,
		Logger:       logger,
		shutdownOtel: shutdownOtel,
		stopFeed:     func() {},
		closeStore:   func() error { return nil },
	}

	ven, err := venue.NewVenue(cfg.App.CurrentVenue, cfg)
	if err != nil {
		return nil, fmt.Errorf("venue: %w", err)
	}

	lenderName := cfg.Lender.Name
	if lenderName == "" {
		lenderName = "bridge"
	}
	bridgeLender := lender.NewSimulated(lenderName, cfg.Lender.PremiumBps)

	router := swap.NewFixedRateRouter(cfg.Position.SwapSlippageBps)

	priceFeed, stopFeed, err := feed.NewFeed(cfg)
	if err != nil {
		return nil, fmt.Errorf("price feed: %w", err)
	}
	app.Feed = priceFeed
	app.stopFeed = stopFeed

	var guard *safety.DepegGuard
	if cfg.Safety.DepegAsset != "" {
		guard = safety.NewDepegGuard(safety.DepegConfig{
			Asset:           cfg.Safety.DepegAsset,
			MaxAge:          time.Duration(cfg.Safety.DepegMaxAgeSeconds) * time.Second,
			MaxDeviationBps: cfg.Safety.DepegMaxDevBps,
		}, priceFeed, logger)
	}

	gate := safety.NewProfitabilityGate(safety.ProfitabilityConfig{
		BorrowRateCeiling: decimal.NewFromFloat(cfg.Safety.BorrowRateCeiling),
		MinNetSpread:      decimal.NewFromFloat(cfg.Safety.MinNetSpread),
	}, logger)

	store, closeStore, err := newStateStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}
	app.closeStore = closeStore

	eng, err := engine.New(ven, bridgeLender, router, gate, guard, store, logger, engine.Config{
		BaseAsset:         cfg.Position.BaseAsset,
		CollateralAsset:   cfg.Position.CollateralAsset,
		TargetLtvBps:      cfg.Position.TargetLtvBps,
		SafetyBufferBps:   cfg.Position.SafetyBufferBps,
		MinTargetLtvBps:   cfg.Position.MinTargetLtvBps,
		MaxTargetLtvBps:   cfg.Position.MaxTargetLtvBps,
		HealthFactorFloor: decimal.NewFromFloat(cfg.Position.HealthFactorFloor),
		SwapSlippageBps:   cfg.Position.SwapSlippageBps,
		GovernanceDelay:   time.Duration(cfg.Position.GovernanceDelaySeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	app.Engine = eng

	if cfg.Rewards.Enabled {
		app.Compounder = rewards.NewCompounder(rewards.Config{
			MinClaim:      decimal.NewFromFloat(cfg.Rewards.MinClaim),
			SlippageBps:   cfg.Rewards.SlippageBps,
			AllowedTokens: cfg.Rewards.AllowedTokens,
			BaseAsset:     cfg.Position.BaseAsset,
		}, rewards.NewSimulatedDistributor(), router, eng)
	}

	app.Alerts = newAlertManager(cfg, logger)

	if cfg.Keeper.Enabled {
		app.Keeper = keeper.New(keeper.Config{
			Interval:         time.Duration(cfg.Keeper.IntervalSeconds) * time.Second,
			CompoundInterval: time.Duration(cfg.Rewards.IntervalSeconds) * time.Second,
			MaxRetries:       cfg.Keeper.MaxRetries,
			PoolSize:         cfg.Keeper.WorkerPoolSize,
			PoolBuffer:       cfg.Keeper.WorkerPoolBuffer,
		}, eng, app.Compounder, app.Alerts)
	}

	if cfg.Telemetry.EnableMetrics {
		app.metricsServer = metrics.NewServer(cfg.Telemetry.MetricsPort, logger)
		app.metricsServer.SetHealth(newHealthManager(app, guard))
	}

	return app, nil
}

func newHealthManager(app *App, guard *safety.DepegGuard) *health.Manager {
	manager := health.NewManager(app.Logger)
	manager.Register("price_feed", func() error {
		_, err := app.Feed.Price(context.Background())
		return err
	})
	if guard != nil {
		manager.Register("depeg_guard", func() error {
			return guard.Check(context.Background())
		})
	}
	if app.Keeper != nil {
		manager.Register("keeper", func() error {
			status := app.Keeper.GetStatus()
			if status.LastError != "" {
				return fmt.Errorf("last maintenance pass: %s", status.LastError)
			}
			return nil
		})
	}
	return manager
}

// newAlertManager returns nil when no channel credentials are configured.
func newAlertManager(cfg *config.Config, logger core.ILogger) *alert.Manager {
	manager := alert.NewManager(logger)
	if url := cfg.Alerts.SlackWebhookURL.Reveal(); url != "" {
		manager.AddChannel(alert.NewSlackChannel(url))
	}
	if token := cfg.Alerts.TelegramBotToken.Reveal(); token != "" && cfg.Alerts.TelegramChatID != "" {
		manager.AddChannel(alert.NewTelegramChannel(token, cfg.Alerts.TelegramChatID))
	}
	if manager.ChannelCount() == 0 {
		return nil
	}
	return manager
}

func newStateStore(cfg *config.Config) (core.IStateStore, func() error, error) {
	if cfg.App.StatePath == "" {
		return engine.NewMemoryStore(), func() error { return nil }, nil
	}
	store, err := engine.NewSQLiteStore(cfg.App.StatePath)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// Start launches the background components.
func (a *App) Start(ctx context.Context) {
	if a.metricsServer != nil {
		a.metricsServer.Start()
	}
	if a.Keeper != nil {
		a.Keeper.Start(ctx)
	}
	a.Logger.Info("Application started",
		"venue", a.Engine.VenueName(),
		"base_asset", a.Cfg.Position.BaseAsset,
		"target_ltv_bps", a.Engine.TargetLtvBps())
}

// Shutdown stops the components in reverse start order. When unwind-on-exit
// is configured, the position is unwound before anything else goes down.
func (a *App) Shutdown(ctx context.Context) {
	if a.Cfg.System.UnwindOnExit && a.Engine.IsActive() && a.Engine.Principal().IsPositive() {
		if freed, err := a.Engine.WithdrawAll(ctx); err != nil {
			a.Logger.Error("Unwind on exit failed", "error", err)
			if a.Alerts != nil {
				a.Alerts.Alert(ctx, "Unwind on exit failed", err.Error(), alert.Critical, map[string]string{
					"venue": a.Engine.VenueName(),
				})
			}
		} else {
			a.Logger.Info("Position unwound on exit", "freed", freed.String())
		}
	}

	if a.Keeper != nil {
		a.Keeper.Stop()
	}
	a.stopFeed()
	if a.metricsServer != nil {
		if err := a.metricsServer.Stop(ctx); err != nil {
			a.Logger.Warn("Metrics server shutdown failed", "error", err)
		}
	}
	if err := a.closeStore(); err != nil {
		a.Logger.Warn("State store close failed", "error", err)
	}
	if err := a.shutdownOtel(ctx); err != nil {
		a.Logger.Warn("Telemetry shutdown failed", "error", err)
	}
	a.Logger.Info("Application shut down")
}
