// internal/infrastructure/persistence/postgres/models/peer.go
package models

import (
	"database/sql"
	"time"
)

// PeerProbe - reachability check state of a free-chat joiner
type PeerProbe struct {
	UserID                 int64        `db:"user_id" json:"user_id"`
	JoinedAt               time.Time    `db:"joined_at" json:"joined_at"`
	PeerEstablished        bool         `db:"peer_established" json:"peer_established"`
	EstablishedAt          sql.NullTime `db:"established_at" json:"established_at"`
	CurrentDelayMinutes    int          `db:"current_delay_minutes" json:"current_delay_minutes"`
	CurrentIntervalMinutes int          `db:"current_interval_minutes" json:"current_interval_minutes"`
	NextCheckAt            sql.NullTime `db:"next_check_at" json:"next_check_at"`
	WelcomeDMSent          bool         `db:"welcome_dm_sent" json:"welcome_dm_sent"`
}

// Abandoned reports a probe that will not be checked again.
func (p *PeerProbe) Abandoned() bool {
	return !p.PeerEstablished && !p.NextCheckAt.Valid
}

// UserbotPeer - access handle the userbot cached for a user
type UserbotPeer struct {
	UserID     int64     `db:"user_id" json:"user_id"`
	AccessHash int64     `db:"access_hash" json:"-"`
	Username   string    `db:"username" json:"username"`
	FirstName  string    `db:"first_name" json:"first_name"`
	SeenAt     time.Time `db:"seen_at" json:"seen_at"`
}
