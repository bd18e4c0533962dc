// application/bootstrap/app.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"signal-desk-bot/application/scheduler"
	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/core/domain/dmqueue"
	"signal-desk-bot/internal/core/domain/engagement"
	"signal-desk-bot/internal/core/domain/peerid"
	"signal-desk-bot/internal/core/domain/tracker"
	"signal-desk-bot/internal/core/domain/trial"
	"signal-desk-bot/internal/delivery/telegram/app/bot"
	"signal-desk-bot/internal/delivery/telegram/app/bot/message_sender"
	"signal-desk-bot/internal/infrastructure/cache/redis"
	"signal-desk-bot/internal/infrastructure/config"
	"signal-desk-bot/internal/infrastructure/persistence/postgres/database"
	"signal-desk-bot/internal/metrics"
	"signal-desk-bot/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

// Application is the assembled main service.
type Application struct {
	config *config.Config
	clock  calendar.Clock

	database *database.DatabaseService
	redis    *redis.RedisService

	tracker    *tracker.Tracker
	trials     *trial.Engine
	peers      *peerid.Pipeline
	engagement *engagement.Service
	monitor    *dmqueue.Monitor
	notifier   *message_sender.LogNotifier

	bot       *bot.TelegramBot
	poller    *bot.Poller
	scheduler *scheduler.Scheduler

	mu        sync.Mutex
	running   bool
	startTime time.Time
}

// Run recovers state, starts every loop and blocks until ctx is cancelled.
func (app *Application) Run(ctx context.Context) error {
	app.mu.Lock()
	if app.running {
		app.mu.Unlock()
		return errors.New("application already running")
	}
	app.running = true
	app.startTime = time.Now()
	app.mu.Unlock()

	logger.Info("🚀 Starting application...")
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.notifier.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return metrics.Serve(ctx, app.config.MetricsAddr)
	})

	if err := app.bot.SetMyCommands(ctx); err != nil {
		logger.Warn("⚠️ Command menu not installed: %v", err)
	}
	if err := app.recover(ctx); err != nil {
		app.shutdownWithTimeout(shutdownTimeout)
		return err
	}

	app.scheduler.Start(ctx)
	g.Go(func() error {
		return app.poller.Run(ctx)
	})

	logger.Info("✅ Application running, %d active trades", app.tracker.Count())
	app.notifier.Notify(fmt.Sprintf("🟢 Bot started: %d active trades", app.tracker.Count()))

	<-ctx.Done()
	logger.Info("🛑 Shutdown requested...")
	app.shutdownWithTimeout(shutdownTimeout)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// recover replays what happened while the service was down.
func (app *Application) recover(ctx context.Context) error {
	n, err := app.poller.Drain(ctx)
	if err != nil {
		logger.Warn("⚠️ Backlog drain stopped early after %d updates: %v", n, err)
	} else {
		logger.Info("📥 Backlog replayed: %d updates", n)
	}

	rep, err := app.tracker.Recover(ctx)
	if err != nil {
		return fmt.Errorf("Application.recover: trades: %w", err)
	}
	logger.Info("🔄 Trades recovered: %d restored, %d loaded, %d repaired", rep.Restored, rep.Loaded, rep.Repaired)

	trep, err := app.trials.RecoverOffline(ctx)
	if err != nil {
		return fmt.Errorf("Application.recover: trials: %w", err)
	}
	logger.Info("🔄 Trials caught up: %d recomputed, %d expired, %d warnings, %d follow-ups",
		trep.Recomputed, trep.Expired, trep.Warnings, trep.Followups)
	return nil
}

// shutdownWithTimeout stops the loops and closes storage, giving up after timeout.
func (app *Application) shutdownWithTimeout(timeout time.Duration) {
	logger.Info("⏳ Graceful shutdown (timeout %v)...", timeout)
	done := make(chan struct{})
	go func() {
		app.shutdown()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("✅ Graceful shutdown complete")
	case <-time.After(timeout):
		logger.Warn("⚠️ Graceful shutdown timed out")
	}
}

func (app *Application) shutdown() {
	app.mu.Lock()
	defer app.mu.Unlock()
	if !app.running {
		return
	}

	app.scheduler.Stop()
	app.closeStorage()

	app.running = false
	logger.Info("✅ Application stopped after %v", time.Since(app.startTime).Round(time.Second))
}

func (app *Application) closeStorage() {
	if app.redis != nil {
		if err := app.redis.Stop(); err != nil {
			logger.Warn("⚠️ Redis stop: %v", err)
		}
	}
	if app.database != nil {
		if err := app.database.Stop(); err != nil {
			logger.Warn("⚠️ Database stop: %v", err)
		}
	}
}

// IsRunning reports whether Run is in progress.
func (app *Application) IsRunning() bool {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.running
}
