// internal/delivery/telegram/app/bot/handlers/commands/trials/handler.go
package trials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/core/domain/trial"
	"signal-desk-bot/internal/delivery/telegram/app/bot/buttons"
	"signal-desk-bot/internal/delivery/telegram/app/bot/constants"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers/base"
	"signal-desk-bot/internal/infrastructure/persistence/postgres/models"
)

// Trials is the operator surface of the trial engine.
type Trials interface {
	ListTrials(ctx context.Context) ([]*models.TrialMember, error)
	AdjustTrial(ctx context.Context, userID int64, delta time.Duration) (*models.TrialMember, error)
	ClearTrial(ctx context.Context, userID int64) error
}

type listHandler struct {
	*base.BaseHandler
	trials Trials
	clock  calendar.Clock
}

// NewHandler creates /trials
func NewHandler(t Trials, clock calendar.Clock) handlers.Handler {
	return &listHandler{
		BaseHandler: &base.BaseHandler{Name: "trials_handler", Command: constants.CommandTrials, Type: handlers.TypeCommand},
		trials:      t,
		clock:       clock,
	}
}

// NewCallbackHandler creates the menu button variant
func NewCallbackHandler(t Trials, clock calendar.Clock) handlers.Handler {
	return &listHandler{
		BaseHandler: &base.BaseHandler{Name: "trials_callback", Command: constants.CallbackTrials, Type: handlers.TypeCallback},
		trials:      t,
		clock:       clock,
	}
}

func (h *listHandler) Execute(ctx context.Context, params handlers.HandlerParams) (handlers.HandlerResult, error) {
	members, err := h.trials.ListTrials(ctx)
	if err != nil {
		return handlers.HandlerResult{}, err
	}
	return handlers.HandlerResult{
		Message:  Render(members, h.clock.Now()),
		Keyboard: buttons.NewButtonBuilder().CreateRefreshKeyboard(constants.CallbackTrials),
		Edit:     params.Data != "",
	}, nil
}

// Render lists running trials, soonest expiry first.
func Render(members []*models.TrialMember, now time.Time) string {
	if len(members) == 0 {
		return "⏳ No running trials."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "⏳ Running trials: %d\n\n", len(members))
	for _, m := range members {
		left := m.Remaining(now)
		fmt.Fprintf(&b, "%d: expires %s (%s left)", m.UserID, trial.FormatExpiry(m.ExpiryTime), formatLeft(left))
		if m.WeekendDelayed {
			b.WriteString(" 🗓 weekend")
		}
		var flags []string
		if m.Warning24hSent {
			flags = append(flags, "24h")
		}
		if m.Warning3hSent {
			flags = append(flags, "3h")
		}
		if len(flags) > 0 {
			fmt.Fprintf(&b, " ⚠️ %s", strings.Join(flags, "+"))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatLeft(d time.Duration) string {
	if d <= 0 {
		return "due"
	}
	d = d.Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h >= 24 {
		return fmt.Sprintf("%dd %dh", h/24, h%24)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}

type editHandler struct {
	*base.BaseHandler
	trials Trials
}

// NewEditHandler creates /trial_edit USER ±XhYm
func NewEditHandler(t Trials) handlers.Handler {
	return &editHandler{
		BaseHandler: &base.BaseHandler{Name: "trial_edit_handler", Command: constants.CommandTrialEdit, Type: handlers.TypeCommand},
		trials:      t,
	}
}

func (h *editHandler) Execute(ctx context.Context, params handlers.HandlerParams) (handlers.HandlerResult, error) {
	fields := strings.Fields(params.Args)
	if len(fields) != 2 {
		return base.Text("Usage: /trial_edit USER ±XhYm, e.g. /trial_edit 12345 +2h30m"), nil
	}
	userID, err := h.ParseUserID(fields[0])
	if err != nil {
		return base.Text("❌ %v", err), nil
	}
	delta, err := trial.ParseShift(fields[1])
	if err != nil {
		return base.Text("❌ %v", err), nil
	}
	m, err := h.trials.AdjustTrial(ctx, userID, delta)
	if errors.Is(err, trial.ErrNoTrial) {
		return base.Text("❌ %d has no running trial.", userID), nil
	}
	if err != nil {
		return handlers.HandlerResult{}, err
	}
	return base.Text("✅ Trial of %d now expires %s.", userID, trial.FormatExpiry(m.ExpiryTime)), nil
}

type clearHandler struct {
	*base.BaseHandler
	trials Trials
}

// NewClearHandler creates /trial_clear USER
func NewClearHandler(t Trials) handlers.Handler {
	return &clearHandler{
		BaseHandler: &base.BaseHandler{Name: "trial_clear_handler", Command: constants.CommandTrialClear, Type: handlers.TypeCommand},
		trials:      t,
	}
}

func (h *clearHandler) Execute(ctx context.Context, params handlers.HandlerParams) (handlers.HandlerResult, error) {
	userID, err := h.ParseUserID(params.Args)
	if err != nil {
		return base.Text("Usage: /trial_clear USER"), nil
	}
	if err := h.trials.ClearTrial(ctx, userID); err != nil {
		return handlers.HandlerResult{}, err
	}
	return base.Text("🧹 Trial state of %d cleared; they may trial again.", userID), nil
}
