package telegram

import (
	"encoding/json"

	"github.com/go-telegram/bot/models"

	appmodels "github.com/mixelka/codebox/pkg/models"
)

// Callback actions
const (
	CallbackCopyCode = "copy"
	CallbackMarkRead = "read"
)

// CallbackData is the payload of an inline button. Telegram caps it at 64 bytes.
type CallbackData struct {
	Action string `json:"a"`
	CodeID int64  `json:"id"`
}

// BuildCodesKeyboard creates one row per code: the code itself and, while
// unread, a mark-read button
func BuildCodesKeyboard(codes []*appmodels.VerificationCode) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(codes))

	for _, code := range codes {
		row := []models.InlineKeyboardButton{{
			Text:         code.Code,
			CallbackData: EncodeCallback(CallbackData{Action: CallbackCopyCode, CodeID: code.ID}),
		}}
		if !code.IsRead {
			row = append(row, models.InlineKeyboardButton{
				Text:         "Mark read",
				CallbackData: EncodeCallback(CallbackData{Action: CallbackMarkRead, CodeID: code.ID}),
			})
		}
		rows = append(rows, row)
	}

	return &models.InlineKeyboardMarkup{
		InlineKeyboard: rows,
	}
}

// EncodeCallback encodes callback data to string
func EncodeCallback(data CallbackData) string {
	b, _ := json.Marshal(data)
	return string(b)
}

// DecodeCallback decodes callback data from string
func DecodeCallback(data string) (CallbackData, error) {
	var cb CallbackData
	err := json.Unmarshal([]byte(data), &cb)
	return cb, err
}
