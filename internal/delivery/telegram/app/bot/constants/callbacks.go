// internal/delivery/telegram/app/bot/constants/callbacks.go
package constants

// Callback keys. Parameters follow after ':'.
const (
	// ============== MAIN MENU ==============
	CallbackMenu = "menu"

	// ============== SIGNAL DIALOG ==============
	CallbackSignal       = "sig"        // sig:buy, sig:exec, sig:dest:vip ...
	CallbackSignalCancel = "sig:cancel" // ❌ Cancel

	// ============== OVERRIDE ==============
	CallbackOverride      = "ovr"       // ovr:t:<chat>:<msg>, ovr:o:<outcome>
	CallbackOverrideNext  = "ovr:next"  // ➡️ Choose outcome
	CallbackOverrideClear = "ovr:clear" // 🔄 Clear selection

	// ============== PREVIEW ==============
	CallbackPreview = "prev" // prev:<template key>

	// ============== LISTS ==============
	CallbackActive  = "active"
	CallbackQueue   = "queue"
	CallbackTrials  = "trials"
	CallbackMembers = "members"
)

// Signal dialog parameters
const (
	SignalBuy       = "buy"
	SignalSell      = "sell"
	SignalExecution = "exec"
	SignalLimit     = "limit"
	SignalDest      = "dest"
	SignalConfirm   = "post"

	DestVIP    = "vip"
	DestFree   = "free"
	DestBoth   = "both"
	DestManual = "manual"
)
