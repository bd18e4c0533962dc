// internal/userbot/errors.go
package userbot

import (
	"errors"
	"fmt"
	"time"

	"github.com/gotd/td/tgerr"
)

var (
	// ErrUndeliverable marks a recipient that will never accept the message.
	ErrUndeliverable = errors.New("recipient unreachable")
	// ErrNotAuthorized is returned when the stored session is not signed in.
	ErrNotAuthorized = errors.New("userbot session is not authorized")
)

// FloodWaitError asks the caller to wait before the next request.
type FloodWaitError struct {
	Wait time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait %s", e.Wait)
}

// RPC error types that make a recipient permanently unreachable.
var undeliverableTypes = []string{
	"USER_PRIVACY_RESTRICTED",
	"PEER_ID_INVALID",
	"USER_DEACTIVATED",
	"USER_DEACTIVATED_BAN",
	"INPUT_USER_DEACTIVATED",
	"USER_IS_BLOCKED",
	"YOU_BLOCKED_USER",
}

// classify maps MTProto errors onto the sender's outcomes.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return &FloodWaitError{Wait: wait}
	}
	if tgerr.Is(err, undeliverableTypes...) {
		return fmt.Errorf("%w: %v", ErrUndeliverable, err)
	}
	return err
}
