// internal/delivery/telegram/app/bot/handlers/commands/peer/handler.go
package peer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/core/domain/peerid"
	"signal-desk-bot/internal/delivery/telegram/app/bot/constants"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers/base"
)

// Pipeline reports the probe of one user.
type Pipeline interface {
	Status(ctx context.Context, userID int64) (*peerid.Status, error)
}

type peerHandler struct {
	*base.BaseHandler
	pipeline Pipeline
}

// NewHandler creates /peer USER
func NewHandler(p Pipeline) handlers.Handler {
	return &peerHandler{
		BaseHandler: &base.BaseHandler{Name: "peer_handler", Command: constants.CommandPeer, Type: handlers.TypeCommand},
		pipeline:    p,
	}
}

func (h *peerHandler) Execute(ctx context.Context, params handlers.HandlerParams) (handlers.HandlerResult, error) {
	userID, err := h.ParseUserID(params.Args)
	if err != nil {
		return base.Text("Usage: /peer USER"), nil
	}
	st, err := h.pipeline.Status(ctx, userID)
	if err != nil {
		return handlers.HandlerResult{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🔎 Peer-id of %d\n", userID)
	switch p := st.Probe; {
	case p == nil:
		b.WriteString("Probe: none (not a free-chat joiner)\n")
	case p.PeerEstablished:
		fmt.Fprintf(&b, "Probe: ✅ established %s\n", stamp(p.EstablishedAt.Time))
	case p.Abandoned():
		fmt.Fprintf(&b, "Probe: ❌ abandoned (joined %s)\n", stamp(p.JoinedAt))
	default:
		fmt.Fprintf(&b, "Probe: ⏳ waiting, every %dm within %dm, next %s\n",
			p.CurrentIntervalMinutes, p.CurrentDelayMinutes, stamp(p.NextCheckAt.Time))
	}
	if p := st.Probe; p != nil {
		fmt.Fprintf(&b, "Welcome DM queued: %s\n", h.GetBoolDisplay(p.WelcomeDMSent))
	}
	if st.Peer != nil {
		name := st.Peer.FirstName
		if st.Peer.Username != "" {
			name = "@" + st.Peer.Username
		}
		fmt.Fprintf(&b, "Userbot peer: ✅ %s, seen %s", name, stamp(st.Peer.SeenAt))
	} else {
		b.WriteString("Userbot peer: ❌ not discovered yet")
	}
	return base.Message(b.String()), nil
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return calendar.Local(t).Format("Mon 02 Jan 15:04")
}
