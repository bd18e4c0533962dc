// internal/infrastructure/persistence/postgres/repository/setting/repository.go
package setting_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
)

// SettingRepository is the bot_settings key/value table.
type SettingRepository interface {
	Get(ctx context.Context, key string) (*models.BotSetting, error)
	Set(ctx context.Context, key, value string, at time.Time) error
	Delete(ctx context.Context, key string) error
}

type SettingRepositoryImpl struct {
	db sqlx.ExtContext
}

func NewSettingRepository(db *sqlx.DB) *SettingRepositoryImpl {
	return &SettingRepositoryImpl{db: db}
}

// Get returns the setting or nil when the key is unset.
func (r *SettingRepositoryImpl) Get(ctx context.Context, key string) (*models.BotSetting, error) {
	var s models.BotSetting
	query := r.db.Rebind(`SELECT setting_key, setting_value, updated_at FROM bot_settings WHERE setting_key = ?`)
	if err := sqlx.GetContext(ctx, r.db, &s, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("SettingRepository.Get %s: %w", key, err)
	}
	return &s, nil
}

func (r *SettingRepositoryImpl) Set(ctx context.Context, key, value string, at time.Time) error {
	query := r.db.Rebind(`INSERT INTO bot_settings (setting_key, setting_value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT (setting_key) DO UPDATE SET
		setting_value = excluded.setting_value,
		updated_at = excluded.updated_at`)
	if _, err := r.db.ExecContext(ctx, query, key, value, models.Stamp(at)); err != nil {
		return fmt.Errorf("SettingRepository.Set %s: %w", key, err)
	}
	return nil
}

func (r *SettingRepositoryImpl) Delete(ctx context.Context, key string) error {
	query := r.db.Rebind(`DELETE FROM bot_settings WHERE setting_key = ?`)
	if _, err := r.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("SettingRepository.Delete %s: %w", key, err)
	}
	return nil
}
