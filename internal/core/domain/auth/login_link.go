// internal/core/domain/auth/login_link.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
	"signal-desk-bot/pkg/logger"
)

var (
	ErrInvalidToken = errors.New("invalid login token")
	ErrTokenUsed    = errors.New("login token already used or replaced")
)

const issuer = "signal-desk-bot"

// SettingStore keeps the id of the one live login token.
type SettingStore interface {
	Get(ctx context.Context, key string) (*models.BotSetting, error)
	Set(ctx context.Context, key, value string, at time.Time) error
	Delete(ctx context.Context, key string) error
}

// LoginClaims - payload of a userbot login link
type LoginClaims struct {
	jwt.RegisteredClaims
}

// OwnerID returns the subject as a Telegram user id.
func (c *LoginClaims) OwnerID() int64 {
	id, _ := strconv.ParseInt(c.Subject, 10, 64)
	return id
}

// LinkIssuer mints one-time links to the userbot login page.
// Minting a new link invalidates the previous one.
type LinkIssuer struct {
	secret   []byte
	ttl      time.Duration
	settings SettingStore
	clock    calendar.Clock
}

func NewLinkIssuer(secret string, ttl time.Duration, settings SettingStore, clock calendar.Clock) *LinkIssuer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &LinkIssuer{secret: []byte(secret), ttl: ttl, settings: settings, clock: clock}
}

// TTL of minted tokens
func (i *LinkIssuer) TTL() time.Duration { return i.ttl }

// Mint creates a token for ownerID and records its id as the live one.
func (i *LinkIssuer) Mint(ctx context.Context, ownerID int64) (string, error) {
	now := i.clock.Now()
	claims := LoginClaims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   strconv.FormatInt(ownerID, 10),
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("LinkIssuer.Mint: %w", err)
	}
	if err := i.settings.Set(ctx, models.SettingUserbotLoginJTI, claims.ID, now); err != nil {
		return "", fmt.Errorf("LinkIssuer.Mint: %w", err)
	}
	logger.Info("🔑 Userbot login link minted for %d, valid %s", ownerID, i.ttl)
	return signed, nil
}

// Link appends the token to the login page URL.
func (i *LinkIssuer) Link(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/login?token=" + url.QueryEscape(token)
}

// Verify checks the signature, expiry and that the token is still the live one.
func (i *LinkIssuer) Verify(ctx context.Context, token string) (*LoginClaims, error) {
	claims := &LoginClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	live, err := i.settings.Get(ctx, models.SettingUserbotLoginJTI)
	if err != nil {
		return nil, fmt.Errorf("LinkIssuer.Verify: %w", err)
	}
	if live == nil || live.Value != claims.ID {
		return nil, ErrTokenUsed
	}
	return claims, nil
}

// Consume retires the token once the login completed.
func (i *LinkIssuer) Consume(ctx context.Context, claims *LoginClaims) error {
	live, err := i.settings.Get(ctx, models.SettingUserbotLoginJTI)
	if err != nil {
		return fmt.Errorf("LinkIssuer.Consume: %w", err)
	}
	if live == nil || live.Value != claims.ID {
		return ErrTokenUsed
	}
	return i.settings.Delete(ctx, models.SettingUserbotLoginJTI)
}
