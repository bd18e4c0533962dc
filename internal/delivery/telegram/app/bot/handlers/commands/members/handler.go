// internal/delivery/telegram/app/bot/handlers/commands/members/handler.go
package members

import (
	"context"
	"fmt"
	"strings"

	"signal-desk-bot/internal/core/domain/engagement"
	"signal-desk-bot/internal/delivery/telegram/app/bot/buttons"
	"signal-desk-bot/internal/delivery/telegram/app/bot/constants"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers/base"
	peer_repo "signal-desk-bot/internal/infrastructure/persistence/postgres/repository/peer"
	"signal-desk-bot/pkg/logger"
)

// Joins summarizes free-chat joins of the week.
type Joins interface {
	WeekSummary(ctx context.Context) (*engagement.Summary, error)
}

// TrialCounts counts trial tables.
type TrialCounts interface {
	Counts(ctx context.Context) (members, history, followups int, err error)
}

// PeerCounts counts peer-id probes.
type PeerCounts interface {
	Counts(ctx context.Context) (peer_repo.ProbeCounts, error)
}

type membersHandler struct {
	*base.BaseHandler
	joins  Joins
	trials TrialCounts
	peers  PeerCounts
}

// NewHandler creates /members
func NewHandler(joins Joins, trials TrialCounts, peers PeerCounts) handlers.Handler {
	return &membersHandler{
		BaseHandler: &base.BaseHandler{Name: "members_handler", Command: constants.CommandMembers, Type: handlers.TypeCommand},
		joins:       joins, trials: trials, peers: peers,
	}
}

// NewCallbackHandler creates the menu button variant
func NewCallbackHandler(joins Joins, trials TrialCounts, peers PeerCounts) handlers.Handler {
	return &membersHandler{
		BaseHandler: &base.BaseHandler{Name: "members_callback", Command: constants.CallbackMembers, Type: handlers.TypeCallback},
		joins:       joins, trials: trials, peers: peers,
	}
}

var weekdays = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func (h *membersHandler) Execute(ctx context.Context, params handlers.HandlerParams) (handlers.HandlerResult, error) {
	sum, err := h.joins.WeekSummary(ctx)
	if err != nil {
		return handlers.HandlerResult{}, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "👥 Free-chat joins since %s: %d\n", sum.WeekStart.Format("Mon 02 Jan"), sum.Total)
	for i, n := range sum.PerDay {
		fmt.Fprintf(&b, "  %s: %d\n", weekdays[i], n)
	}

	if members, history, followups, err := h.trials.Counts(ctx); err != nil {
		logger.Warn("⚠️ Trial counts: %v", err)
	} else {
		fmt.Fprintf(&b, "\n⏳ Trials: %d running, %d ever granted, %d in follow-up\n", members, history, followups)
	}
	if pc, err := h.peers.Counts(ctx); err != nil {
		logger.Warn("⚠️ Peer counts: %v", err)
	} else {
		fmt.Fprintf(&b, "🔎 Peer-id: %d waiting, %d established, %d abandoned", pc.Waiting, pc.Established, pc.Abandoned)
	}

	return handlers.HandlerResult{
		Message:  strings.TrimRight(b.String(), "\n"),
		Keyboard: buttons.NewButtonBuilder().CreateRefreshKeyboard(constants.CallbackMembers),
		Edit:     params.Data != "",
	}, nil
}
