// cmd/userbot-login/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"signal-desk-bot/internal/core/domain/auth"
	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/infrastructure/config"
	"signal-desk-bot/internal/infrastructure/persistence/postgres/database"
	setting_repo "signal-desk-bot/internal/infrastructure/persistence/postgres/repository/setting"
	"signal-desk-bot/internal/userbot"
	"signal-desk-bot/internal/userbot/loginpage"
	"signal-desk-bot/pkg/logger"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", ".env", "Path to the .env file")
	flag.Parse()

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger.InitGlobal(logger.Options{
		FilePath: cfg.Logging.File,
		Level:    cfg.Logging.Level,
		Debug:    cfg.Logging.DebugMode,
	})
	defer logger.GetLogger().Close()

	if err := cfg.ValidateLogin(); err != nil {
		logger.Fatal("❌ Configuration invalid: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("❌ Login page stopped: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	db := database.NewDatabaseService(&cfg.Database)
	if err := db.Start(ctx); err != nil {
		return err
	}
	defer db.Stop()

	clock := calendar.SystemClock{}
	settings := setting_repo.NewSettingRepository(db.Store().DB)
	issuer := auth.NewLinkIssuer(cfg.Userbot.LoginSecret, cfg.Userbot.LoginTokenTTL, settings, clock)

	start := func(ctx context.Context) loginpage.Flow {
		return userbot.StartLogin(ctx, cfg.Userbot.APIID, cfg.Userbot.APIHash)
	}
	server := loginpage.NewServer(ctx, issuer, start, userbot.NewSessionStorage(settings, clock))
	defer server.Close()

	return server.Run(ctx, cfg.Userbot.LoginListenAddr)
}
