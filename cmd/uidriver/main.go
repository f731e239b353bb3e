package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/probelab/uidriver/internal/chromedriver"
	"github.com/probelab/uidriver/internal/common/config"
	logutil "github.com/probelab/uidriver/internal/common/logger"
	"github.com/probelab/uidriver/internal/fakebrowser"
	"github.com/probelab/uidriver/internal/fixture"
	"github.com/probelab/uidriver/internal/metrics"
	"github.com/probelab/uidriver/internal/uiscript"
	"github.com/probelab/uidriver/pkg/browser"
	"github.com/probelab/uidriver/pkg/harness"
)

func main() {
	configPath := flag.String("c", "configs/uidriver.yaml", "Path to configuration file")
	configTest := flag.Bool("t", false, "Validate the configuration and exit")
	verbose := flag.Bool("v", false, "Force debug logging regardless of configuration")
	flag.Parse()

	initialLogger, err := logutil.NewDefaultLogger()
	if err != nil {
		panic(err)
	}

	initialLogger.Info("Loading configuration", zap.String("path", *configPath))
	cfg, err := config.Load(*configPath)
	if err != nil {
		initialLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	if *configTest {
		initialLogger.Info("Configuration is valid", zap.String("path", *configPath))
		return
	}

	dynamicLogger, err := logutil.NewLogger(cfg.Log)
	if err != nil {
		initialLogger.Fatal("Failed to create configured logger", zap.Error(err))
	}
	if *verbose {
		dynamicLogger.ForceDebug()
	}
	logger := dynamicLogger.Logger

	exitCode := run(cfg, dynamicLogger, logger)
	logger.Sync()
	os.Exit(exitCode)
}

func run(cfg *config.Config, dynamicLogger *logutil.DynamicLogger, logger *zap.Logger) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	collector := metrics.NewCollector("uidriver", logger)
	metricsServer, err := metrics.StartServer(
		cfg.Metrics.Enabled, cfg.Metrics.Listen, cfg.Metrics.Path, collector, logger)
	if err != nil {
		logger.Error("Failed to start metrics server", zap.Error(err))
		return 1
	}

	baseURL, driver, cleanup, err := buildTarget(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to prepare target", zap.Error(err))
		return 1
	}
	defer cleanup()

	h := harness.New(harness.Options{
		BaseURL:      baseURL,
		Driver:       driver,
		Logger:       logger,
		Observer:     collector,
		PollInterval: cfg.Flow.PollInterval.ToDuration(),
		WaitTimeout:  cfg.Flow.WaitTimeout.ToDuration(),
	})
	if fd, ok := driver.(*fakebrowser.Driver); ok {
		uiscript.Install(fd, h.Client, logger)
	}

	logger.Info("Harness ready",
		zap.String("base_url", baseURL),
		zap.Bool("fixture", cfg.Target.Fixture))

	summary := runSuites(ctx, h, collector, cfg.Scenarios, logger)

	dynamicLogger.EnsureInfoLevelForShutdown()
	logger.Info("Run complete",
		zap.Int("passed", summary.passed),
		zap.Int("failed", summary.failed),
		zap.Duration("elapsed", summary.elapsed))

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown error", zap.Error(err))
		}
		shutdownCancel()
	}

	if summary.failed > 0 {
		return 1
	}
	return 0
}

// buildTarget prepares the application under test and the browser driver:
// either the embedded fixture with the scripted fake browser, or an external
// deployment driven through a pooled Chrome instance.
func buildTarget(ctx context.Context, cfg *config.Config, logger *zap.Logger) (string, browser.Driver, func(), error) {
	if cfg.Target.Fixture {
		var cleanups []func()
		cleanup := func() {
			for i := len(cleanups) - 1; i >= 0; i-- {
				cleanups[i]()
			}
		}

		redisAddr := cfg.Target.FixtureRedis
		if redisAddr == "" {
			mini, err := miniredis.Run()
			if err != nil {
				return "", nil, func() {}, fmt.Errorf("starting embedded redis: %w", err)
			}
			cleanups = append(cleanups, mini.Close)
			redisAddr = mini.Addr()
		}

		store, err := fixture.NewStore(redisAddr, 0, logger)
		if err != nil {
			cleanup()
			return "", nil, func() {}, fmt.Errorf("connecting fixture store: %w", err)
		}

		server := fixture.NewServer(store, logger)
		if err := server.Start("127.0.0.1:0"); err != nil {
			cleanup()
			return "", nil, func() {}, fmt.Errorf("starting fixture server: %w", err)
		}
		cleanups = append(cleanups, func() {
			if err := server.Shutdown(); err != nil {
				logger.Error("Fixture server shutdown error", zap.Error(err))
			}
		})

		return server.BaseURL(), fakebrowser.New(logger), cleanup, nil
	}

	chromeCfg := chromeConfig(cfg.Chrome)
	pool, err := chromedriver.NewPool(chromeCfg, logger)
	if err != nil {
		return "", nil, func() {}, fmt.Errorf("starting chrome pool: %w", err)
	}

	driver, err := pool.Acquire(ctx)
	if err != nil {
		pool.Shutdown()
		return "", nil, func() {}, fmt.Errorf("acquiring chrome instance: %w", err)
	}

	cleanup := func() {
		pool.Release(driver)
		pool.Shutdown()
	}
	return cfg.Target.BaseURL, driver, cleanup, nil
}

func chromeConfig(c config.ChromeConfig) *chromedriver.Config {
	cfg := chromedriver.DefaultConfig()
	if c.PoolSize != "" {
		cfg.PoolSize = c.PoolSize
	}
	if c.NavigateTimeout > 0 {
		cfg.NavigateTimeout = c.NavigateTimeout.ToDuration()
	}
	if c.RestartAfterCount > 0 {
		cfg.RestartAfterCount = c.RestartAfterCount
	}
	if c.RestartAfterTime > 0 {
		cfg.RestartAfterTime = c.RestartAfterTime.ToDuration()
	}
	if c.Headless != nil {
		cfg.Headless = *c.Headless
	}
	return cfg
}
