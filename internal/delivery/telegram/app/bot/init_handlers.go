// internal/delivery/telegram/app/bot/init_handlers.go
package bot

import (
	"signal-desk-bot/internal/core/domain/calendar"
	"signal-desk-bot/internal/core/domain/tracker"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers"
	active_command "signal-desk-bot/internal/delivery/telegram/app/bot/handlers/commands/active"
	dbstatus_command "signal-desk-bot/internal/delivery/telegram/app/bot/handlers/commands/dbstatus"
	help_command "signal-desk-bot/internal/delivery/telegram/app/bot/handlers/commands/help"
	members_command "signal-desk-bot/internal/delivery/telegram/app/bot/handlers/commands/members"
	override_command "signal-desk-bot/internal/delivery/telegram/app/bot/handlers/commands/override"
	peer_command "signal-desk-bot/internal/delivery/telegram/app/bot/handlers/commands/peer"
	preview_command "signal-desk-bot/internal/delivery/telegram/app/bot/handlers/commands/preview"
	price_command "signal-desk-bot/internal/delivery/telegram/app/bot/handlers/commands/price"
	queue_command "signal-desk-bot/internal/delivery/telegram/app/bot/handlers/commands/queue"
	signal_command "signal-desk-bot/internal/delivery/telegram/app/bot/handlers/commands/signal"
	trials_command "signal-desk-bot/internal/delivery/telegram/app/bot/handlers/commands/trials"
	userbot_command "signal-desk-bot/internal/delivery/telegram/app/bot/handlers/commands/userbot"
	"signal-desk-bot/internal/delivery/telegram/app/bot/handlers/router"
	start_command "signal-desk-bot/internal/delivery/telegram/app/bot/handlers/start"
	"signal-desk-bot/pkg/logger"
)

// ConsoleServices are the domain services behind the console verbs.
type ConsoleServices struct {
	Tracker   *tracker.Tracker
	Dialogs   signal_command.DialogStore
	Poster    signal_command.Poster
	Chats     signal_command.Chats
	Oracle    price_command.Oracle
	Database  dbstatus_command.Database
	Jobs      dbstatus_command.Jobs
	Health    queue_command.Health
	Trials    trials_command.Trials
	TrialStat members_command.TrialCounts
	Templates preview_command.Templates
	Joins     members_command.Joins
	Peers     interface {
		members_command.PeerCounts
		peer_command.Pipeline
	}
	Links        userbot_command.Links
	LoginBaseURL string
	Clock        calendar.Clock
}

// InitRouter registers every console verb.
func InitRouter(s ConsoleServices) *router.Router {
	logger.Debug("🔧 Registering console handlers...")
	r := router.NewRouter()
	names := active_command.ChatNames{s.Chats.VIP: "VIP", s.Chats.Free: "Free"}

	all := []handlers.Handler{
		start_command.NewHandler(s.Tracker),
		start_command.NewMenuHandler(s.Tracker),
		help_command.NewHandler(),
		active_command.NewHandler(s.Tracker, names),
		active_command.NewCallbackHandler(s.Tracker, names),
		price_command.NewHandler(s.Oracle, s.Tracker),
		dbstatus_command.NewHandler(s.Database, s.Jobs),
		queue_command.NewHandler(s.Health, s.Clock),
		queue_command.NewCallbackHandler(s.Health, s.Clock),
		trials_command.NewHandler(s.Trials, s.Clock),
		trials_command.NewCallbackHandler(s.Trials, s.Clock),
		trials_command.NewEditHandler(s.Trials),
		trials_command.NewClearHandler(s.Trials),
		preview_command.NewHandler(s.Templates, s.Clock),
		preview_command.NewCallbackHandler(s.Templates, s.Clock),
		members_command.NewHandler(s.Joins, s.TrialStat, s.Peers),
		members_command.NewCallbackHandler(s.Joins, s.TrialStat, s.Peers),
		peer_command.NewHandler(s.Peers),
		userbot_command.NewHandler(s.Links, s.LoginBaseURL, s.Health, s.Clock),
	}
	all = append(all, signal_command.NewHandlers(s.Dialogs, s.Tracker, s.Poster, s.Chats)...)
	all = append(all, override_command.NewHandlers(s.Dialogs, s.Tracker)...)

	for _, h := range all {
		r.RegisterHandler(h)
	}
	logger.Info("✅ Console ready: %d commands", len(r.GetCommands()))
	return r
}
