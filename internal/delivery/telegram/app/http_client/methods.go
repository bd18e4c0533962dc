// internal/delivery/telegram/app/http_client/methods.go
package http_client

import (
	"context"
	"errors"

	"signal-desk-bot/internal/delivery/telegram"
)

type sendMessageRequest struct {
	ChatID                int64                          `json:"chat_id"`
	Text                  string                         `json:"text"`
	ParseMode             string                         `json:"parse_mode,omitempty"`
	ReplyParameters       *telegram.ReplyParameters      `json:"reply_parameters,omitempty"`
	ReplyMarkup           *telegram.InlineKeyboardMarkup `json:"reply_markup,omitempty"`
	DisableWebPagePreview bool                           `json:"disable_web_page_preview,omitempty"`
}

// SendOptions are the optional parts of sendMessage.
type SendOptions struct {
	ReplyTo   int64
	Keyboard  *telegram.InlineKeyboardMarkup
	ParseMode string
}

// SendMessage posts text to chatID and returns the sent message.
func (c *TelegramClient) SendMessage(ctx context.Context, chatID int64, text string, opts SendOptions) (*telegram.Message, error) {
	req := sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             opts.ParseMode,
		ReplyMarkup:           opts.Keyboard,
		DisableWebPagePreview: true,
	}
	if opts.ReplyTo != 0 {
		req.ReplyParameters = &telegram.ReplyParameters{MessageID: opts.ReplyTo}
	}
	var msg telegram.Message
	if err := c.Call(ctx, "sendMessage", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

type editMessageRequest struct {
	ChatID      int64                          `json:"chat_id"`
	MessageID   int64                          `json:"message_id"`
	Text        string                         `json:"text,omitempty"`
	ParseMode   string                         `json:"parse_mode,omitempty"`
	ReplyMarkup *telegram.InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// EditMessageText replaces the text and keyboard of a message.
func (c *TelegramClient) EditMessageText(ctx context.Context, chatID, messageID int64, text string, keyboard *telegram.InlineKeyboardMarkup) error {
	err := c.Call(ctx, "editMessageText", editMessageRequest{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ReplyMarkup: keyboard,
	}, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.NotModified() {
		return nil
	}
	return err
}

// MessageExists probes a message with an empty editMessageReplyMarkup.
// It returns false only for a definitive "not found"; unknown answers are returned as errors.
func (c *TelegramClient) MessageExists(ctx context.Context, chatID, messageID int64) (bool, error) {
	err := c.Call(ctx, "editMessageReplyMarkup", editMessageRequest{ChatID: chatID, MessageID: messageID}, nil)
	if err == nil {
		return true, nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.MessageGone():
			return false, nil
		case apiErr.NotModified():
			return true, nil
		}
	}
	return true, err
}

type callbackAnswer struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
	ShowAlert       bool   `json:"show_alert,omitempty"`
}

// AnswerCallbackQuery stops the button spinner.
func (c *TelegramClient) AnswerCallbackQuery(ctx context.Context, id, text string) error {
	return c.Call(ctx, "answerCallbackQuery", callbackAnswer{CallbackQueryID: id, Text: text}, nil)
}

type chatUserRequest struct {
	ChatID         int64 `json:"chat_id"`
	UserID         int64 `json:"user_id"`
	OnlyIfBanned   bool  `json:"only_if_banned,omitempty"`
	RevokeMessages bool  `json:"revoke_messages,omitempty"`
}

// ApproveChatJoinRequest admits a pending join request.
func (c *TelegramClient) ApproveChatJoinRequest(ctx context.Context, chatID, userID int64) error {
	return c.Call(ctx, "approveChatJoinRequest", chatUserRequest{ChatID: chatID, UserID: userID}, nil)
}

// DeclineChatJoinRequest refuses a pending join request.
func (c *TelegramClient) DeclineChatJoinRequest(ctx context.Context, chatID, userID int64) error {
	return c.Call(ctx, "declineChatJoinRequest", chatUserRequest{ChatID: chatID, UserID: userID}, nil)
}

// BanChatMember removes a user from the chat.
func (c *TelegramClient) BanChatMember(ctx context.Context, chatID, userID int64) error {
	return c.Call(ctx, "banChatMember", chatUserRequest{ChatID: chatID, UserID: userID}, nil)
}

// UnbanChatMember lifts a ban so the user may request to join again.
func (c *TelegramClient) UnbanChatMember(ctx context.Context, chatID, userID int64) error {
	return c.Call(ctx, "unbanChatMember", chatUserRequest{ChatID: chatID, UserID: userID, OnlyIfBanned: true}, nil)
}

// GetChatMember returns the membership of userID in chatID.
func (c *TelegramClient) GetChatMember(ctx context.Context, chatID, userID int64) (*telegram.ChatMember, error) {
	var member telegram.ChatMember
	if err := c.Call(ctx, "getChatMember", chatUserRequest{ChatID: chatID, UserID: userID}, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

type setCommandsRequest struct {
	Commands []telegram.BotCommand `json:"commands"`
}

// SetMyCommands installs the command menu.
func (c *TelegramClient) SetMyCommands(ctx context.Context, commands []telegram.BotCommand) error {
	return c.Call(ctx, "setMyCommands", setCommandsRequest{Commands: commands}, nil)
}

// GetMe returns the bot account.
func (c *TelegramClient) GetMe(ctx context.Context) (*telegram.User, error) {
	var me telegram.User
	if err := c.Call(ctx, "getMe", struct{}{}, &me); err != nil {
		return nil, err
	}
	return &me, nil
}
