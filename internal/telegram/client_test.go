package telegram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitByBytes(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitByBytes("short", 10))

	parts := splitByBytes(strings.Repeat("a", 25), 10)
	assert.Equal(t, []string{strings.Repeat("a", 10), strings.Repeat("a", 10), "aaaaa"}, parts)

	// Two-byte runes never straddle a boundary.
	parts = splitByBytes(strings.Repeat("é", 5), 3)
	require.Len(t, parts, 5)
	for _, p := range parts {
		assert.Equal(t, "é", p)
	}
}

func TestTruncateByBytes(t *testing.T) {
	assert.Equal(t, "abc", truncateByBytes("abc", 0))
	assert.Equal(t, "ab", truncateByBytes("abcdef", 2))
	assert.Equal(t, "é", truncateByBytes("éé", 3))
}

func TestInlineKeyboard(t *testing.T) {
	_, ok := inlineKeyboard(nil)
	assert.False(t, ok)

	markup, ok := inlineKeyboard([][]Button{
		{{Text: "Generate Work Profiles", Data: "if:gen:WORK"}},
		{},
		{{Text: "Reset", Data: "if:reset"}},
	})
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 2)
	assert.Equal(t, "Reset", markup.InlineKeyboard[1][0].Text)
	require.NotNil(t, markup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "if:gen:WORK", *markup.InlineKeyboard[0][0].CallbackData)
}
