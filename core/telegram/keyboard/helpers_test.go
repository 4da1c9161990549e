package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/volunteerbot/core/conversation"
)

func TestInline(t *testing.T) {
	assert.Nil(t, Inline(nil))
	assert.Nil(t, Inline(conversation.Keyboard{{}}))

	kb := conversation.Keyboard{
		conversation.Row(
			conversation.Button{Text: "Accept", Data: "accept_claim=1"},
			conversation.Button{Text: "Reject", Data: "reject_claim=1"},
		),
	}
	markup := Inline(kb)
	require.NotNil(t, markup)
	require.Len(t, markup.InlineKeyboard, 1)
	require.Len(t, markup.InlineKeyboard[0], 2)
	assert.Equal(t, "accept_claim=1", markup.InlineKeyboard[0][0].Data)
	assert.Equal(t, "Reject", markup.InlineKeyboard[0][1].Text)
}

func TestChunk(t *testing.T) {
	buttons := []conversation.Button{{Text: "a"}, {Text: "b"}, {Text: "c"}}

	rows := Chunk(buttons, 2)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0], 2)
	assert.Len(t, rows[1], 1)

	assert.Len(t, Chunk(buttons, 0), 3)
}
