package keyboard

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/volunteerbot/core/conversation"
)

// Inline converts a conversation keyboard to inline markup. Button data is
// passed through untouched so payloads arrive exactly as they were built.
// An empty keyboard yields nil.
func Inline(kb conversation.Keyboard) *tele.ReplyMarkup {
	if len(kb) == 0 {
		return nil
	}
	inline := make([][]tele.InlineButton, 0, len(kb))
	for _, row := range kb {
		if len(row) == 0 {
			continue
		}
		r := make([]tele.InlineButton, 0, len(row))
		for _, btn := range row {
			r = append(r, tele.InlineButton{Text: btn.Text, Data: btn.Data})
		}
		inline = append(inline, r)
	}
	if len(inline) == 0 {
		return nil
	}
	return &tele.ReplyMarkup{InlineKeyboard: inline}
}

// Chunk splits buttons into rows with up to n buttons per row.
// If n <= 1, every button gets its own row.
func Chunk(buttons []conversation.Button, n int) conversation.Keyboard {
	if n <= 1 {
		out := make(conversation.Keyboard, 0, len(buttons))
		for _, b := range buttons {
			out = append(out, []conversation.Button{b})
		}
		return out
	}
	var rows conversation.Keyboard
	for i := 0; i < len(buttons); i += n {
		end := min(i+n, len(buttons))
		rows = append(rows, buttons[i:end])
	}
	return rows
}
