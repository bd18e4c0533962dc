// application/bootstrap/builder.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"signal-desk-bot/application/scheduler"
	"signal-desk-bot/internal/adapters/market"
	"signal-desk-bot/internal/core/domain/auth"
	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/core/domain/dmqueue"
	"signal-desk-bot/internal/core/domain/engagement"
	"signal-desk-bot/internal/core/domain/peerid"
	"signal-desk-bot/internal/core/domain/templates"
	"signal-desk-bot/internal/core/domain/tracker"
	"signal-desk-bot/internal/core/domain/trial"
	"signal-desk-bot/internal/delivery/telegram/app/bot"
	signal_command "signal-desk-bot/internal/delivery/telegram/app/bot/handlers/commands/signal"
	userbot_command "signal-desk-bot/internal/delivery/telegram/app/bot/handlers/commands/userbot"
	"signal-desk-bot/internal/delivery/telegram/app/bot/message_sender"
	"signal-desk-bot/internal/delivery/telegram/app/bot/middlewares"
	"signal-desk-bot/internal/delivery/telegram/app/http_client"
	"signal-desk-bot/internal/infrastructure/cache/memory"
	"signal-desk-bot/internal/infrastructure/cache/redis"
	"signal-desk-bot/internal/infrastructure/config"
	"signal-desk-bot/internal/infrastructure/config/trading"
	"signal-desk-bot/internal/infrastructure/persistence/postgres/database"
	dm_queue_repo "signal-desk-bot/internal/infrastructure/persistence/postgres/repository/dm_queue"
	peer_repo "signal-desk-bot/internal/infrastructure/persistence/postgres/repository/peer"
	setting_repo "signal-desk-bot/internal/infrastructure/persistence/postgres/repository/setting"
	"signal-desk-bot/pkg/logger"
)

// sharedCache is what the process keeps in redis, or in memory without it.
type sharedCache interface {
	market.PriceCache
	trial.JoinCache
	signal_command.DialogStore
}

// AppBuilder assembles the main service.
type AppBuilder struct {
	config *config.Config
	clock  calendar.Clock
}

func NewAppBuilder() *AppBuilder {
	return &AppBuilder{clock: calendar.SystemClock{}}
}

func (b *AppBuilder) WithConfig(cfg *config.Config) *AppBuilder {
	b.config = cfg
	return b
}

func (b *AppBuilder) WithClock(clock calendar.Clock) *AppBuilder {
	b.clock = clock
	return b
}

// Build connects the database and the cache and wires every component.
func (b *AppBuilder) Build(ctx context.Context) (*Application, error) {
	if b.config == nil {
		return nil, errors.New("AppBuilder.Build: config is required")
	}
	cfg := b.config
	clock := b.clock

	app := &Application{config: cfg, clock: clock}

	// 1. Storage
	app.database = database.NewDatabaseService(&cfg.Database)
	if err := app.database.Start(ctx); err != nil {
		return nil, fmt.Errorf("AppBuilder.Build: %w", err)
	}
	store := app.database.Store()

	var cache sharedCache = memory.NewCache()
	if cfg.Redis.Enabled {
		rs := redis.NewRedisService(&cfg.Redis)
		if err := rs.Start(ctx); err != nil {
			logger.Warn("⚠️ Redis unavailable, using in-process caches: %v", err)
		} else {
			app.redis = rs
			cache = rs.GetCache()
		}
	}

	// 2. Data files
	texts, err := templates.Load(cfg.TemplatesFile)
	if err != nil {
		app.closeStorage()
		return nil, fmt.Errorf("AppBuilder.Build: %w", err)
	}
	tradingCfg, err := trading.Load(cfg.TradingConfigDir)
	if err != nil {
		app.closeStorage()
		return nil, fmt.Errorf("AppBuilder.Build: %w", err)
	}

	// 3. Telegram
	client := http_client.NewTelegramClient(cfg.Telegram.APIBaseURL, cfg.Telegram.BotToken)
	sender := message_sender.NewMessageSender(client)
	app.notifier = message_sender.NewLogNotifier(sender, cfg.Telegram.LogChatID)
	chats := bot.NewChatGateway(sender)

	// 4. Domain
	oracles := market.NewOracleFactory(cfg)
	oracle := oracles.CreateOracle(cache)
	logger.Info("💱 Price providers with keys: %v", oracles.ConfiguredProviders())

	app.tracker = tracker.New(tracker.Config{
		CheckInterval:  cfg.Tracker.CheckInterval,
		TradePause:     cfg.Tracker.TradePause,
		RecoveryWindow: cfg.Tracker.RecoveryWindow,
	}, tradingCfg, tracker.NewSQLStore(store), oracle, chats, texts, app.notifier, clock)

	queueRepo := dm_queue_repo.NewDMQueueRepository(store.DB)
	settings := setting_repo.NewSettingRepository(store.DB)
	producer := dmqueue.NewProducer(queueRepo, texts, clock)

	app.trials = trial.NewEngine(trial.Config{
		VIPChatID:  cfg.Telegram.VIPChatID,
		FreeChatID: cfg.Telegram.FreeChatID,
	}, store, producer, bot.NewMembership(client), cache, app.notifier, clock)

	resolver := peerid.NewPeerTableResolver(peer_repo.NewPeerRepository(store.DB))
	app.peers = peerid.NewPipeline(store, producer, resolver, clock)
	app.engagement = engagement.NewService(store, producer, cfg.Telegram.FreeChatID, clock)
	app.trials.OnFreeJoin(app.peers.Enroll, app.engagement.RecordJoin)

	app.monitor = dmqueue.NewMonitor(queueRepo, settings, app.notifier, clock)

	var links userbot_command.Links
	if cfg.Userbot.LoginSecret != "" && cfg.Userbot.LoginBaseURL != "" {
		links = auth.NewLinkIssuer(cfg.Userbot.LoginSecret, cfg.Userbot.LoginTokenTTL, settings, clock)
	}

	// 5. Console and update loop
	app.scheduler = scheduler.New()
	signalChats := signal_command.Chats{VIP: cfg.Telegram.VIPChatID, Free: cfg.Telegram.FreeChatID}
	router := bot.InitRouter(bot.ConsoleServices{
		Tracker:      app.tracker,
		Dialogs:      cache,
		Poster:       chats,
		Chats:        signalChats,
		Oracle:       oracle,
		Database:     app.database,
		Jobs:         app.scheduler,
		Health:       app.monitor,
		Trials:       app.trials,
		TrialStat:    app.trials,
		Templates:    texts,
		Joins:        app.engagement,
		Peers:        app.peers,
		Links:        links,
		LoginBaseURL: cfg.Userbot.LoginBaseURL,
		Clock:        clock,
	})

	app.bot = bot.NewTelegramBot(bot.Dependencies{
		Sender:         sender,
		Router:         router,
		Auth:           middlewares.NewAuthMiddleware(cfg.Telegram.OwnerID),
		Trades:         app.tracker,
		Joins:          app.trials,
		Reactions:      app.engagement,
		Templates:      texts,
		Clock:          clock,
		VIPChatID:      cfg.Telegram.VIPChatID,
		FreeChatID:     cfg.Telegram.FreeChatID,
		RecoveryWindow: cfg.Tracker.RecoveryWindow,
	})
	polling := http_client.NewPollingClient(cfg.Telegram.APIBaseURL, cfg.Telegram.BotToken, cfg.Telegram.PollingTimeout)
	app.poller = bot.NewPoller(app.bot, polling, cfg.Telegram.PollingTimeout)

	app.registerJobs()
	logger.Info("✅ Application assembled")
	return app, nil
}
