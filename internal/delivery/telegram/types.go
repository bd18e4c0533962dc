// internal/delivery/telegram/types.go
package telegram

import "encoding/json"

// Update kinds requested from getUpdates
const (
	UpdateMessage         = "message"
	UpdateChannelPost     = "channel_post"
	UpdateCallbackQuery   = "callback_query"
	UpdateChatJoinRequest = "chat_join_request"
	UpdateChatMember      = "chat_member"
	UpdateMessageReaction = "message_reaction"
)

// AllowedUpdates is the update set the bot subscribes to.
var AllowedUpdates = []string{
	UpdateMessage, UpdateChannelPost, UpdateCallbackQuery,
	UpdateChatJoinRequest, UpdateChatMember, UpdateMessageReaction,
}

// Chat member statuses
const (
	MemberCreator       = "creator"
	MemberAdministrator = "administrator"
	MemberMember        = "member"
	MemberRestricted    = "restricted"
	MemberLeft          = "left"
	MemberKicked        = "kicked"
)

// Response - envelope of every Bot API answer
type Response struct {
	OK          bool                `json:"ok"`
	Result      json.RawMessage     `json:"result,omitempty"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Description string              `json:"description,omitempty"`
	Parameters  *ResponseParameters `json:"parameters,omitempty"`
}

// ResponseParameters - extra error details
type ResponseParameters struct {
	MigrateToChatID int64 `json:"migrate_to_chat_id,omitempty"`
	RetryAfter      int   `json:"retry_after,omitempty"`
}

// Update - one incoming event
type Update struct {
	UpdateID        int64                   `json:"update_id"`
	Message         *Message                `json:"message,omitempty"`
	ChannelPost     *Message                `json:"channel_post,omitempty"`
	CallbackQuery   *CallbackQuery          `json:"callback_query,omitempty"`
	ChatJoinRequest *ChatJoinRequest        `json:"chat_join_request,omitempty"`
	ChatMember      *ChatMemberUpdated      `json:"chat_member,omitempty"`
	MessageReaction *MessageReactionUpdated `json:"message_reaction,omitempty"`
}

// Kind names the populated field of an update.
func (u *Update) Kind() string {
	switch {
	case u.Message != nil:
		return UpdateMessage
	case u.ChannelPost != nil:
		return UpdateChannelPost
	case u.CallbackQuery != nil:
		return UpdateCallbackQuery
	case u.ChatJoinRequest != nil:
		return UpdateChatJoinRequest
	case u.ChatMember != nil:
		return UpdateChatMember
	case u.MessageReaction != nil:
		return UpdateMessageReaction
	}
	return "unknown"
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// DisplayName returns @username or the first name.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return u.FirstName
}

type Chat struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title,omitempty"`
	Username string `json:"username,omitempty"`
}

// IsPrivate reports a one-to-one chat with the bot.
func (c Chat) IsPrivate() bool { return c.Type == "private" }

type Message struct {
	MessageID      int64    `json:"message_id"`
	From           *User    `json:"from,omitempty"`
	SenderChat     *Chat    `json:"sender_chat,omitempty"`
	Chat           Chat     `json:"chat"`
	Date           int64    `json:"date"`
	Text           string   `json:"text,omitempty"`
	Caption        string   `json:"caption,omitempty"`
	ReplyToMessage *Message `json:"reply_to_message,omitempty"`
	NewChatMembers []User   `json:"new_chat_members,omitempty"`
}

// Body returns the text or the caption.
func (m *Message) Body() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

type ChatJoinRequest struct {
	Chat       Chat  `json:"chat"`
	From       User  `json:"from"`
	UserChatID int64 `json:"user_chat_id"`
	Date       int64 `json:"date"`
}

type ChatMember struct {
	Status string `json:"status"`
	User   User   `json:"user"`
	// set for restricted members
	IsMember *bool `json:"is_member,omitempty"`
}

// Present reports whether the status counts as being in the chat.
func (m *ChatMember) Present() bool {
	switch m.Status {
	case MemberLeft, MemberKicked:
		return false
	case MemberRestricted:
		return m.IsMember == nil || *m.IsMember
	}
	return true
}

type ChatMemberUpdated struct {
	Chat          Chat       `json:"chat"`
	From          User       `json:"from"`
	Date          int64      `json:"date"`
	OldChatMember ChatMember `json:"old_chat_member"`
	NewChatMember ChatMember `json:"new_chat_member"`
}

// Joined reports an absent to present transition.
func (u *ChatMemberUpdated) Joined() bool {
	return !u.OldChatMember.Present() && u.NewChatMember.Present()
}

type ReactionType struct {
	Type          string `json:"type"`
	Emoji         string `json:"emoji,omitempty"`
	CustomEmojiID string `json:"custom_emoji_id,omitempty"`
}

type MessageReactionUpdated struct {
	Chat        Chat           `json:"chat"`
	MessageID   int64          `json:"message_id"`
	User        *User          `json:"user,omitempty"`
	ActorChat   *Chat          `json:"actor_chat,omitempty"`
	Date        int64          `json:"date"`
	OldReaction []ReactionType `json:"old_reaction"`
	NewReaction []ReactionType `json:"new_reaction"`
}

// Added reports a reaction set that grew.
func (r *MessageReactionUpdated) Added() bool {
	return len(r.NewReaction) > len(r.OldReaction)
}

// Emoji of the first new reaction, or the reaction type.
func (r *MessageReactionUpdated) Emoji() string {
	if len(r.NewReaction) == 0 {
		return ""
	}
	if r.NewReaction[0].Emoji != "" {
		return r.NewReaction[0].Emoji
	}
	return r.NewReaction[0].Type
}

// InlineKeyboardButton - inline keyboard button
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// InlineKeyboardMarkup - inline keyboard markup
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// BotCommand - entry of the command menu
type BotCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

type ReplyParameters struct {
	MessageID int64 `json:"message_id"`
	ChatID    int64 `json:"chat_id,omitempty"`
}
