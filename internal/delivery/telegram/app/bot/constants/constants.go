// internal/delivery/telegram/app/bot/constants/constants.go
package constants

import "signal-desk-bot/internal/delivery/telegram"

// Slash commands
const (
	CommandStart      = "start"
	CommandHelp       = "help"
	CommandSignal     = "signal"
	CommandActive     = "active"
	CommandOverride   = "override"
	CommandPrice      = "price"
	CommandDBStatus   = "dbstatus"
	CommandQueue      = "queue"
	CommandTrials     = "trials"
	CommandTrialEdit  = "trial_edit"
	CommandTrialClear = "trial_clear"
	CommandPreview    = "preview"
	CommandMembers    = "members"
	CommandPeer       = "peer"
	CommandUserbot    = "userbot"
)

// ButtonTexts are the console button labels
var ButtonTexts = struct {
	NewSignal string
	Active    string
	Override  string
	Queue     string
	Trials    string
	Members   string
	Preview   string
	Back      string
	Cancel    string
	Next      string
	Clear     string
	Refresh   string
}{
	NewSignal: "📝 New signal",
	Active:    "📈 Active trades",
	Override:  "✍️ Override",
	Queue:     "📬 DM queue",
	Trials:    "⏳ Trials",
	Members:   "👥 New members",
	Preview:   "🧾 Templates",
	Back:      "🔙 Back",
	Cancel:    "❌ Cancel",
	Next:      "➡️ Choose outcome",
	Clear:     "🔄 Clear selection",
	Refresh:   "🔄 Refresh",
}

// DestinationTexts label the posting targets
var DestinationTexts = map[string]string{
	DestVIP:    "💎 VIP",
	DestFree:   "🆓 Free",
	DestBoth:   "📣 Both",
	DestManual: "✋ Manual (both, no tracking)",
}

// BotCommands is the command menu installed with setMyCommands
var BotCommands = []telegram.BotCommand{
	{Command: CommandStart, Description: "Main menu"},
	{Command: CommandSignal, Description: "Post a new signal"},
	{Command: CommandActive, Description: "Active trades"},
	{Command: CommandOverride, Description: "Apply an outcome to trades"},
	{Command: CommandPrice, Description: "Price test: /price EURUSD"},
	{Command: CommandDBStatus, Description: "Database status"},
	{Command: CommandQueue, Description: "DM queue status"},
	{Command: CommandTrials, Description: "Running trials"},
	{Command: CommandTrialEdit, Description: "Shift a trial: /trial_edit USER +2h"},
	{Command: CommandTrialClear, Description: "Reset a trial: /trial_clear USER"},
	{Command: CommandPreview, Description: "Preview DM templates"},
	{Command: CommandMembers, Description: "New members this week"},
	{Command: CommandPeer, Description: "Peer-id status: /peer USER"},
	{Command: CommandUserbot, Description: "Userbot: setup | status"},
	{Command: CommandHelp, Description: "Command list"},
}

// HelpText lists every verb
const HelpText = `🤖 Signal desk

/signal - post a new signal
/active - active trades with position legend
/override - apply SL/TP/breakeven/end to up to 5 trades
/price PAIR - price test through the provider chain
/dbstatus - database and job status
/queue - DM queue and userbot heartbeat
/trials - running trials
/trial_edit USER ±XhYm - shift a trial expiry
/trial_clear USER - let a user trial again
/preview - preview DM templates
/members - new members this week
/peer USER - peer-id probe status
/userbot setup | status - userbot login link and health`
