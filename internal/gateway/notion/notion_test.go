package notion

import (
	"strings"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageIDFromURL(t *testing.T) {
	id, err := PageIDFromURL("https://www.notion.so/Weekly-Report-0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	assert.Equal(t, "01234567-89ab-cdef-0123-456789abcdef", id)

	_, err = PageIDFromURL("https://www.notion.so/not-a-page")
	assert.Error(t, err)
}

func TestMarkdownToBlocks(t *testing.T) {
	md := strings.Join([]string{
		"# 週次レポート",
		"",
		"## 概要",
		"今週の進捗です。",
		"- 項目1",
		"- 項目2",
		"1. 手順",
		"---",
	}, "\n")

	blocks := MarkdownToBlocks(md)
	require.Len(t, blocks, 7)

	h1, ok := blocks[0].(*notionapi.Heading1Block)
	require.True(t, ok)
	assert.Equal(t, "週次レポート", h1.Heading1.RichText[0].Text.Content)

	_, ok = blocks[1].(*notionapi.Heading2Block)
	assert.True(t, ok)

	p, ok := blocks[2].(*notionapi.ParagraphBlock)
	require.True(t, ok)
	assert.Equal(t, "今週の進捗です。", p.Paragraph.RichText[0].Text.Content)

	_, ok = blocks[3].(*notionapi.BulletedListItemBlock)
	assert.True(t, ok)

	n, ok := blocks[5].(*notionapi.NumberedListItemBlock)
	require.True(t, ok)
	assert.Equal(t, "手順", n.NumberedListItem.RichText[0].Text.Content)

	_, ok = blocks[6].(*notionapi.DividerBlock)
	assert.True(t, ok)
}

func TestMarkdownToBlocksSplitsLongLines(t *testing.T) {
	long := strings.Repeat("あ", maxRichTextLen+10)
	blocks := MarkdownToBlocks(long)
	require.Len(t, blocks, 1)

	p, ok := blocks[0].(*notionapi.ParagraphBlock)
	require.True(t, ok)
	require.Len(t, p.Paragraph.RichText, 2)
	assert.Len(t, []rune(p.Paragraph.RichText[0].Text.Content), maxRichTextLen)
	assert.Len(t, []rune(p.Paragraph.RichText[1].Text.Content), 10)
}

func TestSplitByLength(t *testing.T) {
	assert.Equal(t, []string{""}, splitByLength("", 5))
	assert.Equal(t, []string{"abc"}, splitByLength("abc", 5))
	assert.Equal(t, []string{"abcde", "fg"}, splitByLength("abcdefg", 5))
}
