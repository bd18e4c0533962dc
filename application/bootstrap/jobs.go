// application/bootstrap/jobs.go
package bootstrap

import (
	"context"
	"time"

	"signal-desk-bot/application/scheduler"
	"signal-desk-bot/internal/core/domain/trial"
	"signal-desk-bot/pkg/logger"
)

// Job cadences of the main service
const (
	ExpiryInterval     = 60 * time.Second
	FollowupInterval   = time.Hour
	PeerIDInterval     = 10 * time.Second
	EngagementInterval = time.Hour
	WatchdogInterval   = 15 * time.Minute
)

func (app *Application) registerJobs() {
	jobs := []*scheduler.Job{
		{
			Name:        "price-tick",
			Description: "check active trades against live prices",
			Schedule:    scheduler.Every(app.config.Tracker.CheckInterval),
			Handler:     app.tracker.Tick,
		},
		{
			Name:        "trial-expiry",
			Description: "end expired trials, Monday activation",
			Schedule:    scheduler.Every(ExpiryInterval),
			Handler: func(ctx context.Context) error {
				n, err := app.trials.ExpiryTick(ctx)
				if n > 0 {
					logger.Info("⌛ %d trials expired", n)
				}
				return err
			},
		},
		{
			Name:        "trial-warnings",
			Description: "24h and 3h expiry warnings",
			Schedule:    scheduler.Every(trial.WarningInterval),
			Handler: func(ctx context.Context) error {
				_, err := app.trials.WarningTick(ctx, false)
				return err
			},
		},
		{
			Name:        "followups",
			Description: "day 3/7/14 follow-ups after expiry",
			Schedule:    scheduler.Every(FollowupInterval),
			Handler: func(ctx context.Context) error {
				_, err := app.trials.FollowupTick(ctx)
				return err
			},
		},
		{
			Name:        "peer-id",
			Description: "probe free-chat joiners for userbot reachability",
			Schedule:    scheduler.Every(PeerIDInterval),
			Handler: func(ctx context.Context) error {
				res, err := app.peers.Tick(ctx)
				if res.Established > 0 || res.Abandoned > 0 {
					logger.Info("🔗 Peer-id: %d established, %d abandoned", res.Established, res.Abandoned)
				}
				return err
			},
		},
		{
			Name:        "engagement",
			Description: "discount offer for engaged free-chat members",
			Schedule:    scheduler.Every(EngagementInterval),
			Handler: func(ctx context.Context) error {
				_, err := app.engagement.OfferTick(ctx)
				return err
			},
		},
		{
			Name:        "userbot-watchdog",
			Description: "alert when queued DMs are not being delivered",
			Schedule:    scheduler.Every(WatchdogInterval),
			Handler:     app.monitor.Watch,
		},
	}
	for _, job := range jobs {
		app.scheduler.Register(job)
	}
}
