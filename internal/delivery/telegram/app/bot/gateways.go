// internal/delivery/telegram/app/bot/gateways.go
package bot

import (
	"context"
	"errors"
	"fmt"

	"signal-desk-bot/internal/core/domain/tracker"
	"signal-desk-bot/internal/core/domain/trial"
	"signal-desk-bot/internal/delivery/telegram/app/bot/message_sender"
	"signal-desk-bot/internal/delivery/telegram/app/http_client"
	"signal-desk-bot/pkg/logger"
)

// ChatGateway gives the tracker access to the signal chats.
type ChatGateway struct {
	sender *message_sender.MessageSender
}

func NewChatGateway(sender *message_sender.MessageSender) *ChatGateway {
	return &ChatGateway{sender: sender}
}

// MessageExists probes the message with a no-op edit.
func (g *ChatGateway) MessageExists(ctx context.Context, chatID, messageID int64) (bool, error) {
	return g.sender.Client().MessageExists(ctx, chatID, messageID)
}

// Reply answers the source message. Any other rejection of the reply falls back
// to one plain send so the update still reaches the chat.
func (g *ChatGateway) Reply(ctx context.Context, chatID, messageID int64, text string) error {
	_, err := g.sender.Send(ctx, chatID, text, http_client.SendOptions{ReplyTo: messageID})
	if err == nil {
		return nil
	}
	if errors.Is(err, http_client.ErrMessageNotFound) {
		return fmt.Errorf("%w: %v", tracker.ErrMessageGone, err)
	}
	if ctx.Err() != nil {
		return err
	}
	logger.Warn("⚠️ Reply to %d in %d rejected, sending plain: %v", messageID, chatID, err)
	if _, plainErr := g.sender.Send(ctx, chatID, text, http_client.SendOptions{}); plainErr != nil {
		return fmt.Errorf("ChatGateway.Reply: %w", plainErr)
	}
	return nil
}

// Post sends a new message and returns its id.
func (g *ChatGateway) Post(ctx context.Context, chatID int64, text string) (int64, error) {
	msg, err := g.sender.Send(ctx, chatID, text, http_client.SendOptions{})
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// Membership performs the trial engine's chat administration.
type Membership struct {
	client *http_client.TelegramClient
}

func NewMembership(client *http_client.TelegramClient) *Membership {
	return &Membership{client: client}
}

func (m *Membership) ApproveJoin(ctx context.Context, chatID, userID int64) error {
	return m.client.ApproveChatJoinRequest(ctx, chatID, userID)
}

func (m *Membership) DeclineJoin(ctx context.Context, chatID, userID int64) error {
	return m.client.DeclineChatJoinRequest(ctx, chatID, userID)
}

// KickAndUnban removes the user while leaving the door open for a later rejoin.
func (m *Membership) KickAndUnban(ctx context.Context, chatID, userID int64) error {
	if err := m.client.BanChatMember(ctx, chatID, userID); err != nil {
		var apiErr *http_client.APIError
		if errors.As(err, &apiErr) && apiErr.NotParticipant() {
			return nil
		}
		return err
	}
	return m.client.UnbanChatMember(ctx, chatID, userID)
}

func (m *Membership) MemberStatus(ctx context.Context, chatID, userID int64) (trial.Presence, error) {
	member, err := m.client.GetChatMember(ctx, chatID, userID)
	if err != nil {
		var apiErr *http_client.APIError
		if errors.As(err, &apiErr) && apiErr.NotParticipant() {
			return trial.Absent, nil
		}
		return trial.Absent, err
	}
	if member.Present() {
		return trial.Present, nil
	}
	return trial.Absent, nil
}
