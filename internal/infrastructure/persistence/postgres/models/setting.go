// internal/infrastructure/persistence/postgres/models/setting.go
package models

import "time"

// Setting keys
const (
	SettingUserbotSession   = "userbot_session_string"
	SettingUserbotHeartbeat = "userbot_last_heartbeat"
	SettingUserbotLoginJTI  = "userbot_login_jti"
)

// BotSetting - key/value row of bot_settings
type BotSetting struct {
	Key       string    `db:"setting_key"`
	Value     string    `db:"setting_value"`
	UpdatedAt time.Time `db:"updated_at"`
}
