// internal/userbot/discovery.go
package userbot

import (
	"context"
	"errors"
	"fmt"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
	"signal-desk-bot/pkg/logger"
)

// MembersPerChat bounds one channels.getParticipants page.
const MembersPerChat = 200

// MemberSource lists recent members of a chat.
type MemberSource interface {
	ChatMembers(ctx context.Context, chatID int64, limit int) ([]*models.UserbotPeer, error)
}

// PeerWriter stores access handles in userbot_peers.
type PeerWriter interface {
	UpsertPeer(ctx context.Context, p *models.UserbotPeer) error
}

// Discovery caches access handles for members of the community chats.
type Discovery struct {
	source MemberSource
	peers  PeerWriter
	chats  []int64
	clock  calendar.Clock
}

func NewDiscovery(source MemberSource, peers PeerWriter, clock calendar.Clock, chatIDs ...int64) *Discovery {
	chats := make([]int64, 0, len(chatIDs))
	for _, id := range chatIDs {
		if id != 0 {
			chats = append(chats, id)
		}
	}
	return &Discovery{source: source, peers: peers, chats: chats, clock: clock}
}

// Run refreshes userbot_peers from every chat and returns how many members it saw.
// A chat that cannot be read does not stop the others.
func (d *Discovery) Run(ctx context.Context) (int, error) {
	var errs []error
	seen := 0
	for _, chatID := range d.chats {
		members, err := d.source.ChatMembers(ctx, chatID, MembersPerChat)
		if err != nil {
			logger.Warn("⚠️ [Userbot] Members of %d unavailable: %v", chatID, err)
			errs = append(errs, err)
			continue
		}
		now := d.clock.Now()
		for _, m := range members {
			m.SeenAt = now
			if err := d.peers.UpsertPeer(ctx, m); err != nil {
				return seen, fmt.Errorf("Discovery.Run: %w", err)
			}
			seen++
		}
		logger.Debug("🔍 [Userbot] %d members cached from %d", len(members), chatID)
	}
	if seen > 0 {
		logger.Info("🔍 [Userbot] Discovery refreshed %d peers", seen)
	}
	return seen, errors.Join(errs...)
}
