// cmd/bot/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"signal-desk-bot/application/bootstrap"
	"signal-desk-bot/internal/infrastructure/config"
	"signal-desk-bot/pkg/logger"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	var (
		cfgPath     string
		logLevel    string
		showVersion bool
	)
	flag.StringVar(&cfgPath, "config", ".env", "Path to the .env file")
	flag.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("signal-desk bot %s (built %s)\n", version, buildTime)
		return
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger.InitGlobal(logger.Options{
		FilePath: cfg.Logging.File,
		Level:    cfg.Logging.Level,
		Debug:    cfg.Logging.DebugMode,
	})
	defer logger.GetLogger().Close()

	logger.Info("🚀 Signal desk bot v%s (built %s)", version, buildTime)
	if err := cfg.ValidateBot(); err != nil {
		logger.Fatal("❌ Configuration invalid: %v", err)
	}
	cfg.PrintSummary()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewAppBuilder().WithConfig(cfg).Build(ctx)
	if err != nil {
		logger.Fatal("❌ Failed to build application: %v", err)
	}

	logger.Info("🛑 Press Ctrl+C to stop")
	if err := app.Run(ctx); err != nil {
		logger.Error("❌ Application stopped with error: %v", err)
		os.Exit(1)
	}
}
