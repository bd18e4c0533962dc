// internal/delivery/telegram/app/bot/bot.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/core/domain/trades"
	"signal-desk-bot/internal/core/domain/trial"
	"signal-desk-bot/internal/delivery/telegram"
	"signal-desk-bot/internal/delivery/telegram/app/bot/constants"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers/router"
	"signal-desk-bot/internal/delivery/telegram/app/bot/message_sender"
	"signal-desk-bot/internal/delivery/telegram/app/bot/middlewares"
	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
	"signal-desk-bot/pkg/logger"
)

// MessageIngester registers operator-authored chat messages as trades.
type MessageIngester interface {
	IngestMessage(ctx context.Context, key trades.Key, text string) (*trades.Trade, error)
}

// JoinGate reacts to VIP and free-chat membership events.
type JoinGate interface {
	HandleJoinRequest(ctx context.Context, chatID, userID int64) (trial.JoinDecision, error)
	HandleJoin(ctx context.Context, chatID, userID int64) error
}

// ReactionRecorder logs free-chat reactions.
type ReactionRecorder interface {
	RecordReaction(ctx context.Context, r *models.Reaction) error
}

// PrivateReply is the answer to strangers.
type PrivateReply interface {
	PrivateBot() string
}

// Dependencies of TelegramBot
type Dependencies struct {
	Sender     *message_sender.MessageSender
	Router     *router.Router
	Auth       *middlewares.AuthMiddleware
	Trades     MessageIngester
	Joins      JoinGate
	Reactions  ReactionRecorder
	Templates  PrivateReply
	Clock      calendar.Clock
	VIPChatID  int64
	FreeChatID int64
	// RecoveryWindow bounds how old backlog signals may be
	RecoveryWindow time.Duration
}

// TelegramBot dispatches Bot API updates to the tracker, the trial engine and the console.
type TelegramBot struct {
	deps Dependencies
}

func NewTelegramBot(deps Dependencies) *TelegramBot {
	if deps.Clock == nil {
		deps.Clock = calendar.SystemClock{}
	}
	return &TelegramBot{deps: deps}
}

// SetMyCommands installs the console command menu.
func (b *TelegramBot) SetMyCommands(ctx context.Context) error {
	return b.deps.Sender.Client().SetMyCommands(ctx, constants.BotCommands)
}

// HandleUpdate processes one live update.
func (b *TelegramBot) HandleUpdate(ctx context.Context, update *telegram.Update) error {
	return b.dispatch(ctx, update, false)
}

// HandleBacklog processes an update received while the bot was down. Console
// interactions are dropped and signals older than the recovery window ignored.
func (b *TelegramBot) HandleBacklog(ctx context.Context, update *telegram.Update) error {
	return b.dispatch(ctx, update, true)
}

func (b *TelegramBot) dispatch(ctx context.Context, update *telegram.Update, backlog bool) error {
	switch {
	case update.ChannelPost != nil:
		return b.handleChatMessage(ctx, update.ChannelPost, backlog)
	case update.Message != nil && !update.Message.Chat.IsPrivate():
		return b.handleChatMessage(ctx, update.Message, backlog)
	case update.ChatJoinRequest != nil:
		return b.handleJoinRequest(ctx, update.ChatJoinRequest)
	case update.ChatMember != nil:
		return b.handleMemberUpdate(ctx, update.ChatMember)
	case update.MessageReaction != nil:
		return b.handleReaction(ctx, update.MessageReaction)
	}
	if backlog {
		logger.Debug("⏭️ Backlog %s update %d skipped", update.Kind(), update.UpdateID)
		return nil
	}
	return b.handleConsole(ctx, update)
}

func (b *TelegramBot) isSignalChat(chatID int64) bool {
	return chatID == b.deps.VIPChatID || chatID == b.deps.FreeChatID
}

// operatorAuthored accepts channel posts, anonymous admins posting as the chat
// and the owner's own messages.
func (b *TelegramBot) operatorAuthored(msg *telegram.Message) bool {
	if msg.SenderChat != nil && msg.SenderChat.ID == msg.Chat.ID {
		return true
	}
	if msg.From == nil {
		return msg.Chat.Type == "channel"
	}
	return b.deps.Auth.IsOwner(msg.From.ID)
}

func (b *TelegramBot) handleChatMessage(ctx context.Context, msg *telegram.Message, backlog bool) error {
	if !b.isSignalChat(msg.Chat.ID) || !b.operatorAuthored(msg) {
		return nil
	}
	if backlog && b.deps.RecoveryWindow > 0 {
		posted := time.Unix(msg.Date, 0)
		if b.deps.Clock.Now().Sub(posted) > b.deps.RecoveryWindow {
			logger.Debug("⏭️ Backlog message %d_%d older than %s", msg.Chat.ID, msg.MessageID, b.deps.RecoveryWindow)
			return nil
		}
	}
	key := trades.Key{ChatID: msg.Chat.ID, MessageID: msg.MessageID}
	tr, err := b.deps.Trades.IngestMessage(ctx, key, msg.Body())
	if err != nil {
		return fmt.Errorf("ingest %s: %w", key, err)
	}
	if tr != nil && backlog {
		logger.Info("♻️ Recovered signal %s from the backlog", key)
	}
	return nil
}

func (b *TelegramBot) handleJoinRequest(ctx context.Context, req *telegram.ChatJoinRequest) error {
	decision, err := b.deps.Joins.HandleJoinRequest(ctx, req.Chat.ID, req.From.ID)
	if err != nil {
		return fmt.Errorf("join request %d in %d: %w", req.From.ID, req.Chat.ID, err)
	}
	logger.Debug("🚪 Join request %d in %d: %s", req.From.ID, req.Chat.ID, decision)
	return nil
}

func (b *TelegramBot) handleMemberUpdate(ctx context.Context, upd *telegram.ChatMemberUpdated) error {
	if !b.isSignalChat(upd.Chat.ID) || !upd.Joined() || upd.NewChatMember.User.IsBot {
		return nil
	}
	userID := upd.NewChatMember.User.ID
	if err := b.deps.Joins.HandleJoin(ctx, upd.Chat.ID, userID); err != nil {
		return fmt.Errorf("join %d in %d: %w", userID, upd.Chat.ID, err)
	}
	return nil
}

func (b *TelegramBot) handleReaction(ctx context.Context, r *telegram.MessageReactionUpdated) error {
	if r.Chat.ID != b.deps.FreeChatID || r.User == nil || !r.Added() {
		return nil
	}
	return b.deps.Reactions.RecordReaction(ctx, &models.Reaction{
		UserID:       r.User.ID,
		ChatID:       r.Chat.ID,
		MessageID:    r.MessageID,
		Emoji:        r.Emoji(),
		ReactionTime: time.Unix(r.Date, 0),
	})
}

func (b *TelegramBot) handleConsole(ctx context.Context, update *telegram.Update) error {
	req, access := b.deps.Auth.ProcessUpdate(update)
	switch access {
	case middlewares.AccessIgnore:
		return nil
	case middlewares.AccessStranger:
		if req.CallbackID != "" {
			return b.deps.Sender.AnswerCallback(ctx, req.CallbackID, "")
		}
		return b.deps.Sender.SendText(ctx, update.Message.Chat.ID, b.deps.Templates.PrivateBot(), nil)
	}

	result, err := b.deps.Router.Handle(ctx, req.Command, req.Params)
	if req.CallbackID != "" {
		if aerr := b.deps.Sender.AnswerCallback(ctx, req.CallbackID, result.Toast); aerr != nil {
			logger.Debug("⚠️ answerCallbackQuery: %v", aerr)
		}
	}
	if err != nil {
		text := "❌ " + err.Error()
		if errors.Is(err, router.ErrNoHandler) {
			text = "🤷 Unknown command. Send /help for the list."
		}
		return b.deps.Sender.SendText(ctx, req.Params.ChatID, text, nil)
	}
	if result.Message == "" {
		return nil
	}
	if result.Edit && req.Params.MessageID != 0 {
		err := b.deps.Sender.Edit(ctx, req.Params.ChatID, req.Params.MessageID, result.Message, result.Keyboard)
		if err == nil {
			return nil
		}
		logger.Debug("⚠️ Edit failed, sending instead: %v", err)
	}
	return b.deps.Sender.SendText(ctx, req.Params.ChatID, result.Message, result.Keyboard)
}
