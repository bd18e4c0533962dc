// internal/userbot/session.go
package userbot

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/gotd/td/session"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
	"signal-desk-bot/pkg/logger"
)

// SettingStore is the bot_settings access the userbot needs.
type SettingStore interface {
	Get(ctx context.Context, key string) (*models.BotSetting, error)
	Set(ctx context.Context, key, value string, at time.Time) error
}

// SessionStorage keeps the MTProto session in bot_settings, base64 encoded.
// It satisfies session.Storage.
type SessionStorage struct {
	settings SettingStore
	clock    calendar.Clock
}

var _ session.Storage = (*SessionStorage)(nil)

func NewSessionStorage(settings SettingStore, clock calendar.Clock) *SessionStorage {
	return &SessionStorage{settings: settings, clock: clock}
}

func (s *SessionStorage) LoadSession(ctx context.Context) ([]byte, error) {
	row, err := s.settings.Get(ctx, models.SettingUserbotSession)
	if err != nil {
		return nil, fmt.Errorf("SessionStorage.LoadSession: %w", err)
	}
	if row == nil || row.Value == "" {
		return nil, session.ErrNotFound
	}
	data, err := base64.StdEncoding.DecodeString(row.Value)
	if err != nil {
		return nil, fmt.Errorf("SessionStorage.LoadSession: corrupt session: %w", err)
	}
	return data, nil
}

func (s *SessionStorage) StoreSession(ctx context.Context, data []byte) error {
	value := base64.StdEncoding.EncodeToString(data)
	if err := s.settings.Set(ctx, models.SettingUserbotSession, value, s.clock.Now()); err != nil {
		return fmt.Errorf("SessionStorage.StoreSession: %w", err)
	}
	return nil
}

// Present reports whether a session has been stored.
func (s *SessionStorage) Present(ctx context.Context) (bool, error) {
	_, err := s.LoadSession(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, session.ErrNotFound):
		return false, nil
	}
	return false, err
}

// WaitForSession blocks until a session exists, checking every poll.
func (s *SessionStorage) WaitForSession(ctx context.Context, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	warned := false
	for {
		ok, err := s.Present(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !warned {
			logger.Warn("⏳ [Userbot] No session yet, send /userbot setup in the console; checking every %s", poll)
			warned = true
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
