// internal/delivery/telegram/app/bot/buttons/builder.go
package buttons

import (
	"signal-desk-bot/internal/delivery/telegram"
	"signal-desk-bot/internal/delivery/telegram/app/bot/constants"
)

// ButtonBuilder builds console keyboards
type ButtonBuilder struct{}

func NewButtonBuilder() *ButtonBuilder {
	return &ButtonBuilder{}
}

// Button is a callback button
func Button(text, data string) telegram.InlineKeyboardButton {
	return telegram.InlineKeyboardButton{Text: text, CallbackData: data}
}

// Keyboard wraps rows
func Keyboard(rows ...[]telegram.InlineKeyboardButton) *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// Row is a convenience for one keyboard row
func Row(buttons ...telegram.InlineKeyboardButton) []telegram.InlineKeyboardButton {
	return buttons
}

// CreateMainMenuKeyboard is the /start menu
func (b *ButtonBuilder) CreateMainMenuKeyboard() *telegram.InlineKeyboardMarkup {
	return Keyboard(
		Row(Button(constants.ButtonTexts.NewSignal, constants.CallbackSignal+":new")),
		Row(
			Button(constants.ButtonTexts.Active, constants.CallbackActive),
			Button(constants.ButtonTexts.Override, constants.CallbackOverride+":start"),
		),
		Row(
			Button(constants.ButtonTexts.Queue, constants.CallbackQueue),
			Button(constants.ButtonTexts.Trials, constants.CallbackTrials),
		),
		Row(
			Button(constants.ButtonTexts.Members, constants.CallbackMembers),
			Button(constants.ButtonTexts.Preview, constants.CallbackPreview),
		),
	)
}

// CreateBackKeyboard returns to the main menu
func (b *ButtonBuilder) CreateBackKeyboard() *telegram.InlineKeyboardMarkup {
	return Keyboard(Row(Button(constants.ButtonTexts.Back, constants.CallbackMenu)))
}

// CreateRefreshKeyboard reruns a list
func (b *ButtonBuilder) CreateRefreshKeyboard(callback string) *telegram.InlineKeyboardMarkup {
	return Keyboard(Row(
		Button(constants.ButtonTexts.Refresh, callback),
		Button(constants.ButtonTexts.Back, constants.CallbackMenu),
	))
}

// CreateCancelKeyboard aborts the signal dialog
func (b *ButtonBuilder) CreateCancelKeyboard() *telegram.InlineKeyboardMarkup {
	return Keyboard(Row(Button(constants.ButtonTexts.Cancel, constants.CallbackSignalCancel)))
}
