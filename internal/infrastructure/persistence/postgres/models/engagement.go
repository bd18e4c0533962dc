// internal/infrastructure/persistence/postgres/models/engagement.go
package models

import "time"

// FreeChatJoin - free-chat join used by the engagement offer
type FreeChatJoin struct {
	UserID       int64     `db:"user_id" json:"user_id"`
	JoinedAt     time.Time `db:"joined_at" json:"joined_at"`
	DiscountSent bool      `db:"discount_sent" json:"discount_sent"`
	OfferClosed  bool      `db:"offer_closed" json:"offer_closed"`
}

// Reaction - one emoji a user put on a chat message
type Reaction struct {
	UserID       int64     `db:"user_id" json:"user_id"`
	ChatID       int64     `db:"chat_id" json:"chat_id"`
	MessageID    int64     `db:"message_id" json:"message_id"`
	Emoji        string    `db:"emoji" json:"emoji"`
	ReactionTime time.Time `db:"reaction_time" json:"reaction_time"`
}
