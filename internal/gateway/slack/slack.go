// Package slack hosts the messaging gateway: an outbound poster around
// the Slack web API and the inbound Events API endpoint.
package slack

import (
	"context"
	"log/slog"

	"github.com/slack-go/slack"

	kerrors "github.com/harunnryd/kakari/internal/errors"
)

// Inbound is one user message delivered by the Events API.
type Inbound struct {
	Channel  string
	UserID   string
	Text     string
	TS       string
	ThreadTS string
}

// ThreadKey returns the root timestamp identifying the thread: the
// parent's ts for replies, the message's own ts for thread roots.
func (m Inbound) ThreadKey() string {
	if m.ThreadTS != "" {
		return m.ThreadTS
	}
	return m.TS
}

// Poster sends messages into Slack threads.
type Poster struct {
	api *slack.Client
	log *slog.Logger
}

func NewPoster(botToken string, log *slog.Logger) *Poster {
	return &Poster{api: slack.New(botToken), log: log}
}

// Post sends text and optional Block Kit blocks to a channel, pinned to
// a thread when threadTS is non-empty.
func (p *Poster) Post(ctx context.Context, channel, text string, blocks []slack.Block, threadTS string) error {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if len(blocks) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(blocks...))
	}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}

	_, _, err := p.api.PostMessageContext(ctx, channel, opts...)
	if err != nil {
		p.log.Error("slack post failed", "channel", channel, "error", err)
		return kerrors.Wrap(err, "post slack message")
	}
	return nil
}

// Section builds one mrkdwn section block.
func Section(text string) slack.Block {
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
}

// Header builds a plain-text header block.
func Header(text string) slack.Block {
	return slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, text, true, false))
}

// Divider builds a divider block.
func Divider() slack.Block {
	return slack.NewDividerBlock()
}

// Context builds a context block with one mrkdwn element.
func Context(text string) slack.Block {
	return slack.NewContextBlock("", slack.NewTextBlockObject(slack.MarkdownType, text, false, false))
}
