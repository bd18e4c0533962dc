// cmd/userbot/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"signal-desk-bot/application/scheduler"
	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/infrastructure/config"
	"signal-desk-bot/internal/infrastructure/persistence/postgres/database"
	dm_queue_repo "signal-desk-bot/internal/infrastructure/persistence/postgres/repository/dm_queue"
	peer_repo "signal-desk-bot/internal/infrastructure/persistence/postgres/repository/peer"
	setting_repo "signal-desk-bot/internal/infrastructure/persistence/postgres/repository/setting"
	"signal-desk-bot/internal/metrics"
	"signal-desk-bot/internal/userbot"
	"signal-desk-bot/pkg/logger"
)

// A flood wait can hold one drain for a long time.
const drainTimeout = time.Hour

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

	if err := cfg.ValidateUserbot(); err != nil {
		logger.Fatal("❌ Configuration invalid: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("❌ Userbot stopped: %v", err)
		os.Exit(1)
	}
	logger.Info("✅ Userbot stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	db := database.NewDatabaseService(&cfg.Database)
	if err := db.Start(ctx); err != nil {
		return err
	}
	defer db.Stop()
	store := db.Store()

	clock := calendar.SystemClock{}
	settings := setting_repo.NewSettingRepository(store.DB)
	peers := peer_repo.NewPeerRepository(store.DB)
	sessions := userbot.NewSessionStorage(settings, clock)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return metrics.Serve(ctx, cfg.MetricsAddr)
	})
	g.Go(func() error {
		if err := sessions.WaitForSession(ctx, cfg.Userbot.SessionPoll); err != nil {
			return err
		}
		client := userbot.NewClient(cfg.Userbot.APIID, cfg.Userbot.APIHash, sessions)
		return client.Run(ctx, func(ctx context.Context) error {
			logger.Info("🤖 [Userbot] Signed in, delivering queued messages")
			sender := userbot.NewSender(dm_queue_repo.NewDMQueueRepository(store.DB), peers, client, settings, clock)
			discovery := userbot.NewDiscovery(client, peers, clock, cfg.Telegram.VIPChatID, cfg.Telegram.FreeChatID)

			jobs := scheduler.New()
			jobs.Register(&scheduler.Job{
				Name:        "dm-drain",
				Description: "send pending queued DMs",
				Schedule:    scheduler.EveryNow(cfg.Userbot.DrainInterval),
				Timeout:     drainTimeout,
				Handler: func(ctx context.Context) error {
					res, err := sender.Drain(ctx)
					if res.Sent+res.Failed+res.Deferred > 0 {
						logger.Info("📨 [Userbot] Drain: %s", res)
					}
					return err
				},
			})
			jobs.Register(&scheduler.Job{
				Name:        "peer-discovery",
				Description: "cache access handles of chat members",
				Schedule:    scheduler.EveryNow(cfg.Userbot.DiscoveryInterval),
				Handler: func(ctx context.Context) error {
					n, err := discovery.Run(ctx)
					logger.Debug("🔎 [Userbot] Discovery saw %d members", n)
					return err
				},
			})
			jobs.Start(ctx)
			<-ctx.Done()
			jobs.Stop()
			return ctx.Err()
		})
	})
	return g.Wait()
}
