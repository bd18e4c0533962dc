// internal/delivery/telegram/app/bot/message_sender/notifier.go
package message_sender

import (
	"context"
	"time"

	"signal-desk-bot/pkg/logger"
)

const notifyTimeout = 15 * time.Second

// LogNotifier posts operator debug messages to the log chat.
// Failures are logged and never reach the caller.
type LogNotifier struct {
	sender *MessageSender
	chatID int64
	queue  chan string
}

// NewLogNotifier creates a notifier for chatID; zero disables it.
func NewLogNotifier(sender *MessageSender, chatID int64) *LogNotifier {
	return &LogNotifier{sender: sender, chatID: chatID, queue: make(chan string, 256)}
}

// Notify queues text for the log chat; when the buffer is full the message is dropped.
func (n *LogNotifier) Notify(text string) {
	if n == nil || n.chatID == 0 {
		return
	}
	select {
	case n.queue <- text:
	default:
		logger.Warn("⚠️ Log chat backlog full, dropped: %s", text)
	}
}

// Run delivers queued messages in order until ctx is done.
func (n *LogNotifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			n.flush()
			return
		case text := <-n.queue:
			n.deliver(ctx, text)
		}
	}
}

func (n *LogNotifier) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	for {
		select {
		case text := <-n.queue:
			n.deliver(ctx, text)
		default:
			return
		}
	}
}

func (n *LogNotifier) deliver(ctx context.Context, text string) {
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	if err := n.sender.SendText(ctx, n.chatID, text, nil); err != nil {
		logger.Warn("⚠️ Log chat delivery failed: %v", err)
	}
}
