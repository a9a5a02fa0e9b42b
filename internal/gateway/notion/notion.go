// Package notion reads report templates from Notion pages and publishes
// drafted reports back as new pages. Markdown conversion covers the
// block types the templates actually use.
package notion

import (
	"context"
	"regexp"
	"strings"

	"github.com/jomei/notionapi"

	kerrors "github.com/harunnryd/kakari/internal/errors"
)

// Notion caps one rich-text content at 2000 characters.
const maxRichTextLen = 2000

type Client struct {
	api *notionapi.Client
}

func New(token string) *Client {
	return &Client{api: notionapi.NewClient(notionapi.Token(token))}
}

var pageIDPattern = regexp.MustCompile(`[0-9a-fA-F]{32}`)

// PageIDFromURL extracts the 32-hex page ID from a Notion URL and
// formats it with dashes.
func PageIDFromURL(url string) (string, error) {
	raw := pageIDPattern.FindString(url)
	if raw == "" {
		return "", kerrors.NotFound("no page ID in notion URL: " + url)
	}
	raw = strings.ToLower(raw)
	return strings.Join([]string{raw[0:8], raw[8:12], raw[12:16], raw[16:20], raw[20:32]}, "-"), nil
}

// FetchMarkdown downloads a page's blocks and renders them as markdown,
// used for report templates.
func (c *Client) FetchMarkdown(ctx context.Context, pageURL string) (string, error) {
	pageID, err := PageIDFromURL(pageURL)
	if err != nil {
		return "", err
	}

	var lines []string
	cursor := notionapi.Cursor("")
	for {
		resp, err := c.api.Block.GetChildren(ctx, notionapi.BlockID(pageID), &notionapi.Pagination{
			StartCursor: cursor,
			PageSize:    100,
		})
		if err != nil {
			return "", kerrors.Wrap(err, "fetch notion blocks")
		}
		for _, block := range resp.Results {
			lines = append(lines, blockToMarkdown(block)...)
		}
		if !resp.HasMore {
			break
		}
		cursor = notionapi.Cursor(resp.NextCursor)
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

// PublishMarkdown creates a new child page under parentPageURL with the
// markdown converted to blocks. Returns the new page's ID.
func (c *Client) PublishMarkdown(ctx context.Context, parentPageURL, title, markdown string) (string, error) {
	parentID, err := PageIDFromURL(parentPageURL)
	if err != nil {
		return "", err
	}

	page, err := c.api.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:   notionapi.ParentTypePageID,
			PageID: notionapi.PageID(parentID),
		},
		Properties: notionapi.Properties{
			"title": notionapi.TitleProperty{
				Title: []notionapi.RichText{{Text: &notionapi.Text{Content: title}}},
			},
		},
		Children: MarkdownToBlocks(markdown),
	})
	if err != nil {
		return "", kerrors.Wrap(err, "create notion page")
	}
	return string(page.ID), nil
}

// MarkdownToBlocks converts markdown lines into Notion blocks. Headings,
// bullets, numbered items, and dividers are structural; everything else
// becomes a paragraph. Over-long lines are split to fit the rich-text
// limit.
func MarkdownToBlocks(markdown string) []notionapi.Block {
	var blocks []notionapi.Block
	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			continue
		case trimmed == "---":
			blocks = append(blocks, &notionapi.DividerBlock{
				BasicBlock: basic(notionapi.BlockTypeDivider),
			})
		case strings.HasPrefix(trimmed, "### "):
			blocks = append(blocks, &notionapi.Heading3Block{
				BasicBlock: basic(notionapi.BlockTypeHeading3),
				Heading3:   notionapi.Heading{RichText: richText(strings.TrimPrefix(trimmed, "### "))},
			})
		case strings.HasPrefix(trimmed, "## "):
			blocks = append(blocks, &notionapi.Heading2Block{
				BasicBlock: basic(notionapi.BlockTypeHeading2),
				Heading2:   notionapi.Heading{RichText: richText(strings.TrimPrefix(trimmed, "## "))},
			})
		case strings.HasPrefix(trimmed, "# "):
			blocks = append(blocks, &notionapi.Heading1Block{
				BasicBlock: basic(notionapi.BlockTypeHeading1),
				Heading1:   notionapi.Heading{RichText: richText(strings.TrimPrefix(trimmed, "# "))},
			})
		case strings.HasPrefix(trimmed, "- "):
			blocks = append(blocks, &notionapi.BulletedListItemBlock{
				BasicBlock:       basic(notionapi.BlockTypeBulletedListItem),
				BulletedListItem: notionapi.ListItem{RichText: richText(strings.TrimPrefix(trimmed, "- "))},
			})
		case numberedItemPattern.MatchString(trimmed):
			blocks = append(blocks, &notionapi.NumberedListItemBlock{
				BasicBlock:       basic(notionapi.BlockTypeNumberedListItem),
				NumberedListItem: notionapi.ListItem{RichText: richText(numberedItemPattern.ReplaceAllString(trimmed, ""))},
			})
		default:
			blocks = append(blocks, &notionapi.ParagraphBlock{
				BasicBlock: basic(notionapi.BlockTypeParagraph),
				Paragraph:  notionapi.Paragraph{RichText: richText(trimmed)},
			})
		}
	}
	return blocks
}

var numberedItemPattern = regexp.MustCompile(`^\d+\.\s+`)

func basic(blockType notionapi.BlockType) notionapi.BasicBlock {
	return notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: blockType}
}

func richText(text string) []notionapi.RichText {
	var out []notionapi.RichText
	for _, chunk := range splitByLength(text, maxRichTextLen) {
		out = append(out, notionapi.RichText{Text: &notionapi.Text{Content: chunk}})
	}
	return out
}

func splitByLength(s string, limit int) []string {
	if s == "" {
		return []string{""}
	}
	var chunks []string
	runes := []rune(s)
	for len(runes) > limit {
		chunks = append(chunks, string(runes[:limit]))
		runes = runes[limit:]
	}
	return append(chunks, string(runes))
}

func blockToMarkdown(block notionapi.Block) []string {
	switch b := block.(type) {
	case *notionapi.ParagraphBlock:
		return []string{plain(b.Paragraph.RichText), ""}
	case *notionapi.Heading1Block:
		return []string{"# " + plain(b.Heading1.RichText), ""}
	case *notionapi.Heading2Block:
		return []string{"## " + plain(b.Heading2.RichText), ""}
	case *notionapi.Heading3Block:
		return []string{"### " + plain(b.Heading3.RichText), ""}
	case *notionapi.BulletedListItemBlock:
		return []string{"- " + plain(b.BulletedListItem.RichText)}
	case *notionapi.NumberedListItemBlock:
		return []string{"1. " + plain(b.NumberedListItem.RichText)}
	case *notionapi.QuoteBlock:
		return []string{"> " + plain(b.Quote.RichText), ""}
	case *notionapi.ToDoBlock:
		return []string{"- [ ] " + plain(b.ToDo.RichText)}
	case *notionapi.DividerBlock:
		return []string{"---", ""}
	case *notionapi.CodeBlock:
		return []string{"```" + string(b.Code.Language), plain(b.Code.RichText), "```", ""}
	}
	return nil
}

func plain(rts []notionapi.RichText) string {
	var sb strings.Builder
	for _, rt := range rts {
		sb.WriteString(rt.PlainText)
	}
	return sb.String()
}
