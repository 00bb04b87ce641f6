// Command metaengine runs the Meta Engine: it aggregates the Top-10
// picks from PutsEngine and Moonshot, cross-analyzes and scores them,
// writes reports, sends notifications, and paper-trades the best
// candidates through Alpaca.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/signalyard/metaengine/internal/analysis"
	"github.com/signalyard/metaengine/internal/broker"
	"github.com/signalyard/metaengine/internal/config"
	"github.com/signalyard/metaengine/internal/dashboard"
	"github.com/signalyard/metaengine/internal/engines"
	"github.com/signalyard/metaengine/internal/marketdata"
	"github.com/signalyard/metaengine/internal/models"
	"github.com/signalyard/metaengine/internal/notify"
	"github.com/signalyard/metaengine/internal/pipeline"
	"github.com/signalyard/metaengine/internal/report"
	"github.com/signalyard/metaengine/internal/safeguards"
	"github.com/signalyard/metaengine/internal/scheduler"
	"github.com/signalyard/metaengine/internal/storage"
	"github.com/signalyard/metaengine/internal/trading"
)

func main() {
	var (
		configPath string
		force      bool
		check      bool
		schedule   bool
		scanOnly   bool
	)
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.BoolVar(&force, "force", false, "Run even on a non-trading day")
	flag.BoolVar(&check, "check", false, "Print per-section config status and exit")
	flag.BoolVar(&schedule, "schedule", false, "Run as a long-lived scheduler")
	flag.BoolVar(&scanOnly, "scan-only", false, "Skip notifications and trade execution")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if check {
		printStatus(cfg)
		return
	}

	logger := newLogger(cfg.Environment.LogLevel)

	if err := run(cfg, logger, force, schedule, scanOnly); err != nil {
		logger.WithError(err).Fatal("Meta engine failed")
	}
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

func printStatus(cfg *config.Config) {
	fmt.Println("Meta Engine configuration status:")
	for _, s := range cfg.Status() {
		state := "NOT CONFIGURED"
		if s.Configured {
			state = "ok"
		}
		if s.Detail != "" {
			fmt.Printf("  %-10s %-15s %s\n", s.Name, state, s.Detail)
		} else {
			fmt.Printf("  %-10s %s\n", s.Name, state)
		}
	}
}

func run(cfg *config.Config, logger *logrus.Logger, force, schedule, scanOnly bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.WithField("signal", sig.String()).Info("Shutdown signal received")
		cancel()
	}()

	store, err := storage.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("opening trade store: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.WithError(cerr).Warn("Closing trade store failed")
		}
	}()

	if n, err := store.CleanupOld(cfg.Storage.RetentionDays); err != nil {
		logger.WithError(err).Warn("Trade retention cleanup failed")
	} else if n > 0 {
		logger.WithField("removed", n).Info("Old settled trades cleaned up")
	}

	deps := buildDeps(cfg, store, logger)
	p := pipeline.New(*deps)

	if cfg.Dashboard.Enabled {
		srv := dashboard.NewServer(dashboard.Config{
			Addr:      cfg.Dashboard.Addr,
			AuthToken: cfg.Dashboard.AuthToken,
			Location:  cfg.Location(),
		}, store, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("Dashboard server failed")
			}
		}()
		defer func() {
			if err := srv.Shutdown(context.Background()); err != nil {
				logger.WithError(err).Warn("Dashboard shutdown failed")
			}
		}()
	}

	opts := pipeline.Options{Force: force, ScanOnly: scanOnly}

	if schedule {
		times := []string{cfg.Schedule.MorningRun, cfg.Schedule.AfternoonRun}
		sched, err := scheduler.New(cfg.Location(), times, func(ctx context.Context, session models.Session) error {
			runOpts := opts
			runOpts.Session = session
			_, err := p.Run(ctx, runOpts)
			return err
		}, logger)
		if err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	if _, err := p.Run(ctx, opts); err != nil {
		return err
	}
	return nil
}

// buildDeps wires the pipeline from config. Unconfigured integrations
// wire as nil and their steps are skipped.
func buildDeps(cfg *config.Config, store storage.TradeStore, logger *logrus.Logger) *pipeline.Deps {
	bars := marketdata.NewPolygonClient(cfg.Polygon.BaseURL, cfg.Polygon.APIKey, cfg.Polygon.RatePerSec, logger)

	puts := engines.NewPutsAdapter(cfg.Engines.PutsCacheDir, cfg.Engines.TopNPicks, logger)
	moonshot := engines.NewMoonshotAdapter(cfg.Engines.MoonshotCacheDir, cfg.Engines.TopNPicks, logger)

	writer, err := report.NewWriter(cfg.Storage.OutputDir)
	if err != nil {
		logger.WithError(err).Error("Report writer unavailable, reports disabled")
		writer = nil
	}

	deps := &pipeline.Deps{
		Puts:       puts,
		Moonshot:   moonshot,
		SmartMoney: engines.NewSmartMoneyScanner(cfg.Engines.PutsCacheDir, logger),
		Flow:       engines.NewFlowReader(cfg.Engines.PutsCacheDir, logger),
		Analyzer:   analysis.NewCrossAnalyzer(bars, logger),
		Writer:     writer,
		Store:      store,
		TopN:       cfg.Engines.TopNPicks,
		OutputDir:  cfg.Storage.OutputDir,
		Location:   cfg.Location(),
		Logger:     logger,
	}

	if cfg.SMTP.Host != "" && len(cfg.SMTP.To) > 0 {
		deps.Email = notify.NewEmailSender(cfg.SMTP, logger)
	}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != 0 {
		tg, err := notify.NewTelegramSender(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
		if err != nil {
			logger.WithError(err).Error("Telegram unavailable, channel disabled")
		} else {
			deps.Telegram = tg
		}
	}
	if cfg.X.APIKey != "" && cfg.X.AccessToken != "" {
		deps.X = notify.NewXPoster(cfg.X, logger)
	}

	var alpaca broker.Broker
	if cfg.Alpaca.APIKey != "" && cfg.Alpaca.APISecret != "" {
		alpaca = broker.NewBreakerBroker(broker.NewAlpacaClient(
			cfg.Alpaca.BaseURL, cfg.Alpaca.DataURL, cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, logger))
	}
	if cfg.Trading.Enabled && alpaca != nil {
		deps.Executor = trading.NewExecutor(alpaca, store, cfg.Trading, logger)
		deps.Manager = trading.NewManager(alpaca, store, cfg.Trading, logger)
	}

	deps.Preflight = safeguards.NewChecker(
		cfg.Storage.OutputDir, cfg.Storage.DBPath,
		[]*engines.Adapter{puts, moonshot},
		bars, alpaca, store, cfg.Engines.MaxCacheAge, logger)

	return deps
}
