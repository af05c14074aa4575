// Command shopreply runs the automation session scheduler daemon: per-account
// background sessions that fetch unanswered marketplace inquiries, draft
// replies and submit them, with durable crash recovery and an HTTP control
// API.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/basket/shopreply/internal/bus"
	"github.com/basket/shopreply/internal/config"
	"github.com/basket/shopreply/internal/draft"
	"github.com/basket/shopreply/internal/gateway"
	"github.com/basket/shopreply/internal/notify"
	otelPkg "github.com/basket/shopreply/internal/otel"
	"github.com/basket/shopreply/internal/persistence"
	"github.com/basket/shopreply/internal/pipeline"
	"github.com/basket/shopreply/internal/scheduler"
	"github.com/basket/shopreply/internal/telemetry"
	"github.com/basket/shopreply/internal/upstream"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.3-dev"

func main() {
	loadDotEnv(".env")

	home := flag.String("home", "", "data directory (default: ~/.shopreply, or SHOPREPLY_HOME)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("shopreply", Version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg config.Config
	var err error
	if *home != "" {
		cfg, err = config.LoadFrom(*home)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fatalStartup(nil, "E_CONFIG_LOAD", err)
	}

	logger, logSink, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fatalStartup(nil, "E_LOGGER_INIT", err)
	}
	defer logSink.Close()
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "config_loaded", "home", cfg.HomeDir, "version", Version)

	otelProvider, err := otelPkg.Init(ctx, cfg.Telemetry)
	if err != nil {
		fatalStartup(logger, "E_OTEL_INIT", err)
	}
	defer otelProvider.Shutdown(context.Background())

	metrics, err := otelPkg.NewMetrics(otelProvider.Meter)
	if err != nil {
		fatalStartup(logger, "E_METRICS_INIT", err)
	}

	store, err := persistence.Open(cfg.DBPath)
	if err != nil {
		fatalStartup(logger, "E_STORE_OPEN", err)
	}
	defer store.Close()
	logger.Info("startup phase", "phase", "schema_migrated", "db_path", cfg.DBPath)

	// Seed configured accounts so sessions can resolve credentials.
	for _, acct := range cfg.Accounts {
		if err := store.UpsertAccount(ctx, acct); err != nil {
			fatalStartup(logger, "E_ACCOUNT_SEED", err)
		}
	}
	if len(cfg.Accounts) > 0 {
		logger.Info("accounts seeded", "count", len(cfg.Accounts))
	}

	eventBus := bus.New()

	client := upstream.NewHTTPClient(cfg.Upstream.BaseURL, logger)
	client.SetTimeout(cfg.UpstreamTimeout())

	generator := draft.NewGenkitGenerator(ctx, cfg.LLM, logger)
	runner := pipeline.NewRunner(client, generator, logger)

	registry := scheduler.NewRegistry(scheduler.Config{
		Store:    store,
		Accounts: store,
		Runner:   runner,
		Bus:      eventBus,
		Logger:   logger,
		Lookback: cfg.Lookback(),
		Metrics:  metrics,
	})
	service := scheduler.NewService(registry, cfg.Scheduler.AutoRestart, logger)

	// Crash recovery: rebuild sessions from durable rows before serving.
	if err := service.Bootstrap(ctx); err != nil {
		fatalStartup(logger, "E_SESSION_RESTORE", err)
	}
	logger.Info("startup phase", "phase", "sessions_restored", "auto_restart", cfg.Scheduler.AutoRestart)

	if cfg.Telegram.Enabled {
		notifier := notify.NewTelegramNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID, logger)
		go func() {
			if err := notifier.Run(ctx, eventBus); err != nil {
				logger.Error("telegram notifier stopped", "error", err)
			}
		}()
	}

	watcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	} else {
		go func() {
			for range watcher.Events() {
				reloaded, err := config.LoadFrom(cfg.HomeDir)
				if err != nil {
					logger.Warn("config.yaml changed but did not reload", "error", err)
					continue
				}
				logSink.SetLevel(reloaded.LogLevel)
				logger.Info("config.yaml reloaded", "log_level", reloaded.LogLevel)
			}
		}()
	}

	gw := gateway.New(gateway.Config{
		Scheduler: service,
		History:   store,
		Logger:    logger,
		BindAddr:  cfg.BindAddr,
	})
	serveErr := make(chan error, 1)
	go func() { serveErr <- gw.ListenAndServe() }()

	select {
	case err := <-serveErr:
		if err != nil {
			fatalStartup(logger, "E_GATEWAY_SERVE", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Scheduler.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if err := gw.Shutdown(shutdownCtx); err != nil {
		logger.Warn("gateway shutdown incomplete", "error", err)
	}
	// Worker drain leaves running rows untouched so the next boot restarts
	// them.
	if err := service.Shutdown(shutdownCtx); err != nil {
		logger.Warn("worker drain incomplete", "error", err)
	}
	logger.Info("shutdown complete")
}

// fatalStartup emits a structured fatal line even before the logger exists.
func fatalStartup(logger *slog.Logger, reasonCode string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	if logger != nil {
		logger.Error("startup failure", "reason_code", reasonCode, "error", message)
	} else {
		fmt.Fprintf(
			os.Stderr,
			`{"time":"%s","level":"ERROR","msg":"startup failure","reason_code":%q,"error":%q}`+"\n",
			time.Now().UTC().Format(time.RFC3339Nano),
			reasonCode,
			message,
		)
	}
	os.Exit(1)
}

// loadDotEnv loads KEY=VALUE pairs from path into the environment without
// overriding values already set.
func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if key == "" || os.Getenv(key) != "" {
			continue
		}
		_ = os.Setenv(key, val)
	}
}
