// internal/delivery/telegram/app/bot/message_sender/rate_limiter.go
package message_sender

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Bot API flood limits: ~30 messages/s overall, ~20 messages/min per group.
const (
	globalPerSecond  = 25
	groupPerMinute   = 20
	privatePerSecond = 1
)

// RateLimiter paces sends globally and per chat.
type RateLimiter struct {
	global *rate.Limiter
	mu     sync.Mutex
	chats  map[int64]*rate.Limiter
}

// NewRateLimiter creates a limiter with the Bot API flood limits
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		global: rate.NewLimiter(globalPerSecond, globalPerSecond),
		chats:  make(map[int64]*rate.Limiter),
	}
}

// Wait blocks until a message to chatID may go out.
func (rl *RateLimiter) Wait(ctx context.Context, chatID int64) error {
	if err := rl.chat(chatID).Wait(ctx); err != nil {
		return err
	}
	return rl.global.Wait(ctx)
}

func (rl *RateLimiter) chat(chatID int64) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.chats[chatID]
	if !ok {
		if chatID < 0 {
			l = rate.NewLimiter(rate.Limit(float64(groupPerMinute)/60), 5)
		} else {
			l = rate.NewLimiter(privatePerSecond, 3)
		}
		rl.chats[chatID] = l
	}
	return l
}
