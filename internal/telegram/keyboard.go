package telegram

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

const buttonsPerRow = 2

// replyKeyboard lays the choice labels out two per row, in the order the
// controller provided them.
func replyKeyboard(labels []string) tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton
	var row []tgbotapi.KeyboardButton
	for _, label := range labels {
		row = append(row, tgbotapi.NewKeyboardButton(label))
		if len(row) == buttonsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return tgbotapi.NewReplyKeyboard(rows...)
}
