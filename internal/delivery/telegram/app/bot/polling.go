// internal/delivery/telegram/app/bot/polling.go
package bot

import (
	"context"
	"time"

	"signal-desk-bot/internal/delivery/telegram"
	"signal-desk-bot/pkg/logger"
)

// UpdateSource long-polls the Bot API.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout int, allowed []string) ([]telegram.Update, error)
}

const maxBackoff = 30 * time.Second

// Poller feeds updates to the bot in order.
type Poller struct {
	bot     *TelegramBot
	source  UpdateSource
	timeout int
	offset  int64
}

// NewPoller creates a poller; timeout is the long-poll timeout in seconds.
func NewPoller(bot *TelegramBot, source UpdateSource, timeout int) *Poller {
	return &Poller{bot: bot, source: source, timeout: timeout}
}

// Drain consumes the updates queued while the bot was down and returns their count.
func (p *Poller) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		updates, err := p.source.GetUpdates(ctx, p.offset, 0, telegram.AllowedUpdates)
		if err != nil {
			return total, err
		}
		if len(updates) == 0 {
			break
		}
		for i := range updates {
			p.process(ctx, &updates[i], true)
		}
		total += len(updates)
	}
	if total > 0 {
		logger.Info("📥 Drained %d backlog updates", total)
	}
	return total, nil
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	logger.Info("🔄 Polling Telegram updates (timeout %ds)", p.timeout)
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			logger.Info("🛑 Polling stopped")
			return nil
		}
		updates, err := p.source.GetUpdates(ctx, p.offset, p.timeout, telegram.AllowedUpdates)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Warn("❌ getUpdates failed, retrying in %s: %v", backoff, err)
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
		for i := range updates {
			p.process(ctx, &updates[i], false)
		}
	}
}

func (p *Poller) process(ctx context.Context, update *telegram.Update, backlog bool) {
	if update.UpdateID >= p.offset {
		p.offset = update.UpdateID + 1
	}
	logger.Debug("📩 Update %d (%s)", update.UpdateID, update.Kind())

	defer func() {
		if r := recover(); r != nil {
			logger.Error("💥 Update %d panicked: %v", update.UpdateID, r)
		}
	}()

	var err error
	if backlog {
		err = p.bot.HandleBacklog(ctx, update)
	} else {
		err = p.bot.HandleUpdate(ctx, update)
	}
	if err != nil {
		logger.Warn("⚠️ Update %d (%s): %v", update.UpdateID, update.Kind(), err)
	}
}
