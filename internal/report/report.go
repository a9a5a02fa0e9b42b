// Package report drafts periodic Markdown reports: spreadsheet CSV
// exports are fed to the oracle together with a Notion-hosted template,
// the draft is published back to Notion, and a short summary lands in
// Slack.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	slackapi "github.com/slack-go/slack"

	kerrors "github.com/harunnryd/kakari/internal/errors"
	"github.com/harunnryd/kakari/internal/oracle"
)

// csvChunkSize keeps each CSV part under the prompt-size comfort zone.
const csvChunkSize = 20000

// Notion is the pipeline's view of the Notion gateway.
type Notion interface {
	FetchMarkdown(ctx context.Context, pageURL string) (string, error)
	PublishMarkdown(ctx context.Context, parentPageURL, title, markdown string) (string, error)
}

// Messenger posts the finished-report notice.
type Messenger interface {
	Post(ctx context.Context, channel, text string, blocks []slackapi.Block, threadTS string) error
}

// Input names the data sources and destinations of one report run.
type Input struct {
	Title        string
	TemplateURL  string
	OutputURL    string
	SlackChannel string
	Mention      string
	CSVSources   map[string]string // label -> CSV content
}

type Pipeline struct {
	oracle oracle.Oracle
	notion Notion
	poster Messenger
	log    *slog.Logger
	now    func() time.Time
}

func New(o oracle.Oracle, n Notion, poster Messenger, log *slog.Logger) *Pipeline {
	return &Pipeline{oracle: o, notion: n, poster: poster, log: log, now: time.Now}
}

// Run drafts the report, publishes it under the output page, and posts
// the Slack notice with a model-written summary.
func (p *Pipeline) Run(ctx context.Context, in Input) (string, error) {
	template, err := p.notion.FetchMarkdown(ctx, in.TemplateURL)
	if err != nil {
		return "", kerrors.Wrap(err, "fetch report template")
	}

	draft, err := p.draft(ctx, template, in.CSVSources)
	if err != nil {
		return "", err
	}

	pageID, err := p.notion.PublishMarkdown(ctx, in.OutputURL, in.Title, draft)
	if err != nil {
		return "", kerrors.Wrap(err, "publish report")
	}

	summary, err := p.summarize(ctx, draft)
	if err != nil {
		p.log.Warn("report summary failed, posting without it", "error", err)
		summary = ""
	}

	if in.SlackChannel != "" {
		message := fmt.Sprintf("%s 本日のレポートです。\nhttps://www.notion.so/%s をご確認下さい。",
			in.Mention, strings.ReplaceAll(pageID, "-", ""))
		if summary != "" {
			message += "\n" + summary
		}
		message += "\n■テンプレURL\n" + in.TemplateURL
		if err := p.poster.Post(ctx, in.SlackChannel, message, nil, ""); err != nil {
			return draft, kerrors.Wrap(err, "post report notice")
		}
	}
	return draft, nil
}

func (p *Pipeline) draft(ctx context.Context, template string, sources map[string]string) (string, error) {
	var b strings.Builder
	b.WriteString("あなたは広告代理店で働くデータアナリストです。何よりもデータを正確に処理することを優先し、統計的に正しい推論を述べて下さい。\n\n")
	b.WriteString("いまから共有するサマリーデータを、提示するテンプレートに沿った形式でまとめてください。\n")
	b.WriteString("途中で質問することなく、テンプレートの指示に従ってマークダウン形式のテキストで出力してください。「```markdown」や #### 見出しは使わないで下さい。\n\n")
	b.WriteString("テンプレート内で使える変数:\n")
	for _, v := range templateVars(p.now()) {
		b.WriteString("- " + v + "\n")
	}
	b.WriteString("\n```\n" + strings.TrimSpace(template) + "\n```\n")

	for label, csv := range sources {
		chunks := ChunkCSV(csv, csvChunkSize)
		for i, chunk := range chunks {
			b.WriteString(fmt.Sprintf("\n%s（CSV、パート%d/%d）:\n", label, i+1, len(chunks)))
			b.WriteString(chunk + "\n")
		}
	}

	draft, err := p.oracle.Call(ctx, b.String(), false)
	if err != nil {
		return "", kerrors.Wrap(err, "draft report")
	}
	return strings.TrimSpace(draft), nil
}

func (p *Pipeline) summarize(ctx context.Context, draft string) (string, error) {
	prompt := fmt.Sprintf(`以下のレポートを、Slack投稿用に3行以内で要約してください。重要な数値の変化を優先してください。

%s
`, draft)
	summary, err := p.oracle.Call(ctx, prompt, false)
	if err != nil {
		return "", kerrors.Wrap(err, "summarize report")
	}
	return strings.TrimSpace(summary), nil
}

// templateVars renders the date placeholders a template may reference.
func templateVars(now time.Time) []string {
	biz := BusinessDaysInMonth(now)
	remaining := RemainingBusinessDays(now)
	used := 0.0
	if biz > 0 {
		used = float64(biz-remaining) / float64(biz)
	}
	return []string{
		fmt.Sprintf("{{today}}=%s", now.Format("2006-01-02")),
		fmt.Sprintf("{{usedBusinessDayProrated}}=%.3f", used),
		fmt.Sprintf("{{remainingBizDays}}=%d", remaining),
		fmt.Sprintf("{{bizDaysThisMonth}}=%d", biz),
		fmt.Sprintf("{{thisMonth}}=%s", monthStart(now, 0)),
		fmt.Sprintf("{{oneMonthAgo}}=%s", monthStart(now, -1)),
		fmt.Sprintf("{{twoMonthAgo}}=%s", monthStart(now, -2)),
	}
}

func monthStart(now time.Time, offset int) string {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).
		AddDate(0, offset, 0).Format("2006-01-02")
}

// BusinessDaysInMonth counts the weekdays of now's month.
func BusinessDaysInMonth(now time.Time) int {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	count := 0
	for d := first; d.Month() == now.Month(); d = d.AddDate(0, 0, 1) {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			count++
		}
	}
	return count
}

// RemainingBusinessDays counts the weekdays of now's month strictly
// after today.
func RemainingBusinessDays(now time.Time) int {
	count := 0
	for d := now.AddDate(0, 0, 1); d.Month() == now.Month(); d = d.AddDate(0, 0, 1) {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			count++
		}
	}
	return count
}

// ChunkCSV splits CSV text into rune-safe pieces of at most limit
// runes, so multibyte content never splits mid-character.
func ChunkCSV(csv string, limit int) []string {
	if limit <= 0 {
		limit = csvChunkSize
	}
	runes := []rune(csv)
	if len(runes) == 0 {
		return nil
	}
	var chunks []string
	for start := 0; start < len(runes); start += limit {
		end := start + limit
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
