// internal/userbot/client.go
package userbot

import (
	"context"
	"fmt"
	"sync"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/tg"

	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
	"signal-desk-bot/pkg/logger"
)

// Bot API supergroup ids are -100 followed by the channel id.
const channelIDOffset = 1000000000000

// ChannelID converts a Bot API chat id to an MTProto channel id.
func ChannelID(chatID int64) int64 {
	if chatID < -channelIDOffset {
		return -chatID - channelIDOffset
	}
	if chatID < 0 {
		return -chatID
	}
	return chatID
}

// Client is the MTProto user account. API calls are valid only inside Run.
type Client struct {
	client *telegram.Client
	api    *tg.Client
	sender *message.Sender

	mu       sync.Mutex
	channels map[int64]int64 // channel id -> access hash
}

func NewClient(appID int, appHash string, storage session.Storage) *Client {
	client := telegram.NewClient(appID, appHash, telegram.Options{
		SessionStorage: storage,
	})
	api := client.API()
	return &Client{
		client:   client,
		api:      api,
		sender:   message.NewSender(api),
		channels: make(map[int64]int64),
	}
}

// Run connects, checks the session is signed in and calls fn until it returns.
func (c *Client) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.client.Run(ctx, func(ctx context.Context) error {
		status, err := c.client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("Client.Run: auth status: %w", err)
		}
		if !status.Authorized {
			return ErrNotAuthorized
		}
		if status.User != nil {
			logger.Info("✅ [Userbot] Signed in as %s (id %d)", displayName(status.User), status.User.ID)
		}
		return fn(ctx)
	})
}

// SendText writes a direct message to a cached peer.
func (c *Client) SendText(ctx context.Context, peer *models.UserbotPeer, text string) error {
	_, err := c.sender.To(&tg.InputPeerUser{
		UserID:     peer.UserID,
		AccessHash: peer.AccessHash,
	}).Text(ctx, text)
	return classify(err)
}

// ChatMembers lists recent members of a supergroup the account has joined.
func (c *Client) ChatMembers(ctx context.Context, chatID int64, limit int) ([]*models.UserbotPeer, error) {
	channelID := ChannelID(chatID)
	hash, err := c.channelHash(ctx, channelID)
	if err != nil {
		return nil, err
	}

	res, err := c.api.ChannelsGetParticipants(ctx, &tg.ChannelsGetParticipantsRequest{
		Channel: &tg.InputChannel{ChannelID: channelID, AccessHash: hash},
		Filter:  &tg.ChannelParticipantsRecent{},
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("Client.ChatMembers %d: %w", chatID, classify(err))
	}
	participants, ok := res.(*tg.ChannelsChannelParticipants)
	if !ok {
		return nil, nil
	}

	peers := make([]*models.UserbotPeer, 0, len(participants.Users))
	for _, u := range participants.Users {
		user, ok := u.(*tg.User)
		if !ok || user.Bot || user.Deleted || user.Self {
			continue
		}
		peers = append(peers, &models.UserbotPeer{
			UserID:     user.ID,
			AccessHash: user.AccessHash,
			Username:   user.Username,
			FirstName:  user.FirstName,
		})
	}
	return peers, nil
}

// channelHash resolves a channel access hash from the account's dialogs.
func (c *Client) channelHash(ctx context.Context, channelID int64) (int64, error) {
	c.mu.Lock()
	hash, ok := c.channels[channelID]
	c.mu.Unlock()
	if ok {
		return hash, nil
	}

	res, err := c.api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      100,
	})
	if err != nil {
		return 0, fmt.Errorf("Client.channelHash: dialogs: %w", classify(err))
	}

	var chats []tg.ChatClass
	switch d := res.(type) {
	case *tg.MessagesDialogs:
		chats = d.Chats
	case *tg.MessagesDialogsSlice:
		chats = d.Chats
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, chat := range chats {
		if channel, ok := chat.(*tg.Channel); ok {
			c.channels[channel.ID] = channel.AccessHash
		}
	}
	hash, ok = c.channels[channelID]
	if !ok {
		return 0, fmt.Errorf("Client.channelHash: channel %d is not among the account's dialogs", channelID)
	}
	return hash, nil
}

func displayName(u *tg.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return u.FirstName
}
