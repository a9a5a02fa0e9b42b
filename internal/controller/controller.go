// Package controller orchestrates conversation threads: each inbound
// message is routed by the thread's sticky process type through intent
// classification, slot extraction, validation, and the confirmation
// gate, down to the committing gateway call.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	slackapi "github.com/slack-go/slack"

	"github.com/harunnryd/kakari/internal/config"
	"github.com/harunnryd/kakari/internal/confirm"
	"github.com/harunnryd/kakari/internal/extract"
	"github.com/harunnryd/kakari/internal/gateway/calendar"
	"github.com/harunnryd/kakari/internal/gateway/sheets"
	slackgw "github.com/harunnryd/kakari/internal/gateway/slack"
	"github.com/harunnryd/kakari/internal/intent"
	"github.com/harunnryd/kakari/internal/oracle"
	"github.com/harunnryd/kakari/internal/thread"
	"github.com/harunnryd/kakari/internal/validate"
)

// Messenger posts messages into Slack threads.
type Messenger interface {
	Post(ctx context.Context, channel, text string, blocks []slackapi.Block, threadTS string) error
}

// TaskSheets is the controller's view of the spreadsheet gateway.
type TaskSheets interface {
	SheetIDForChannel(ctx context.Context, channelID string) (string, error)
	ActiveProjects(ctx context.Context) ([]sheets.Project, error)
	PendingTasksForUser(ctx context.Context, sheetID, slackUserID string) ([]sheets.Task, error)
	CreateTask(ctx context.Context, sheetID string, record map[string]string) error
	FindOpenTask(ctx context.Context, sheetID, summary string) (bool, error)
	CompleteTask(ctx context.Context, sheetID, summary string) error
}

// CalendarGateway is the controller's view of the calendar gateway.
type CalendarGateway interface {
	BusyIntervals(ctx context.Context, calendars []string, from, to time.Time) ([]calendar.Interval, error)
	CreateEvent(ctx context.Context, ev calendar.Event) (id, url string, err error)
}

type Deps struct {
	Threads        *thread.Store
	Classifier     *intent.Classifier
	TaskExtractor  *extract.TaskExtractor
	EventExtractor *extract.EventExtractor
	Params         *extract.Params
	TaskValidator  *validate.TaskValidator
	EventValidator *validate.EventValidator
	Confirms       *confirm.Protocol
	Sheets         TaskSheets
	Calendar       CalendarGateway
	Poster         Messenger
	Oracle         oracle.Oracle
	Conversation   config.ConversationConfig
	Logger         *slog.Logger
	Now            func() time.Time
}

type Controller struct {
	threads  *thread.Store
	classify *intent.Classifier
	taskEx   *extract.TaskExtractor
	eventEx  *extract.EventExtractor
	params   *extract.Params
	taskVal  *validate.TaskValidator
	eventVal *validate.EventValidator
	confirms *confirm.Protocol
	sheets   TaskSheets
	calendar CalendarGateway
	poster   Messenger
	oracle   oracle.Oracle
	cfg      config.ConversationConfig
	log      *slog.Logger
	now      func() time.Time
}

func New(d Deps) *Controller {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Controller{
		threads:  d.Threads,
		classify: d.Classifier,
		taskEx:   d.TaskExtractor,
		eventEx:  d.EventExtractor,
		params:   d.Params,
		taskVal:  d.TaskValidator,
		eventVal: d.EventValidator,
		confirms: d.Confirms,
		sheets:   d.Sheets,
		calendar: d.Calendar,
		poster:   d.Poster,
		oracle:   d.Oracle,
		cfg:      d.Conversation,
		log:      d.Logger,
		now:      d.Now,
	}
}

// Handle routes one inbound message. A thread with a stored process
// type dispatches straight to its flow; an unclassified thread runs the
// intent classifier first, and below the confidence gate the user gets
// the intent menu instead of a flow.
func (c *Controller) Handle(ctx context.Context, msg slackgw.Inbound) {
	threadKey := msg.ThreadKey()

	if pt, ok := c.threads.ProcessType(threadKey); ok {
		c.dispatch(ctx, pt, msg)
		return
	}

	history := c.threads.Messages(threadKey)
	result := c.classify.Classify(ctx, msg.Text, history)
	if !c.classify.Decisive(result) {
		c.post(ctx, msg, "処理の種類を選択してください", menuBlocks())
		return
	}

	if err := c.threads.SetProcessType(threadKey, result.Type); err != nil {
		c.log.Error("persist process type", "thread", threadKey, "error", err)
		c.post(ctx, msg, "処理中にエラーが発生しました。もう一度お試しください。", nil)
		return
	}
	c.post(ctx, msg, fmt.Sprintf("このスレッドは「%s」として処理します。", result.Type.DisplayName()), nil)
	c.dispatch(ctx, result.Type, msg)
}

func (c *Controller) dispatch(ctx context.Context, pt thread.ProcessType, msg slackgw.Inbound) {
	switch pt {
	case thread.ProcessGetTasks:
		c.getTasks(ctx, msg)
	case thread.ProcessCompleteTask:
		c.completeTask(ctx, msg)
	case thread.ProcessCreateTask:
		c.createTask(ctx, msg)
	case thread.ProcessCommunication:
		c.communication(ctx, msg)
	case thread.ProcessGetCalendar:
		c.getCalendar(ctx, msg)
	case thread.ProcessCreateEvent:
		c.createEvent(ctx, msg)
	default:
		c.log.Warn("unknown process type in thread state", "type", string(pt))
	}
}

func (c *Controller) post(ctx context.Context, msg slackgw.Inbound, text string, blocks []slackapi.Block) {
	if err := c.poster.Post(ctx, msg.Channel, text, blocks, msg.ThreadKey()); err != nil {
		c.log.Error("post reply", "channel", msg.Channel, "error", err)
	}
}

func (c *Controller) logMessage(msg slackgw.Inbound) {
	if err := c.threads.LogMessage(msg.ThreadKey(), msg.TS, msg.UserID, msg.Text); err != nil {
		c.log.Error("log message", "thread", msg.ThreadKey(), "error", err)
	}
}

func menuBlocks() []slackapi.Block {
	return []slackapi.Block{
		slackgw.Divider(),
		slackgw.Section("このスレッドで行いたいことはなんですか？？"),
		slackgw.Section("*以下のいずれかの操作を実行できます：*"),
		slackgw.Section("📝 *持っているタスクの一覧の確認*\n`mytask` などと入力してください"),
		slackgw.Section("✏️ *タスクを完了に*\n`done タスク概要` などと入力してください"),
		slackgw.Section("✏️ *タスクの新規作成*\n`create タスク概要 期日` などと入力してください"),
		slackgw.Section("📅 *カレンダーの空き枠確認*\n`calendar メールアドレス1 メールアドレス2 ...` などと入力してください"),
		slackgw.Section("🗓️ *カレンダー予約の作成*\n`event 予定名 開始時間 時間 招待アドレス` などと入力してください"),
		slackgw.Section("💬 *通常の会話*\n`会話` などと入力してください"),
		slackgw.Section("または、具体的に何をしたいかをお知らせください。"),
		slackgw.Divider(),
	}
}

// validationBlocks itemizes a failed validation for the user.
func validationBlocks(title string, result validate.Result) []slackapi.Block {
	blocks := []slackapi.Block{slackgw.Section(title)}
	if len(result.Errors) > 0 {
		blocks = append(blocks, slackgw.Section(bulletList(result.Errors)))
	}
	if len(result.Suggestions) > 0 {
		blocks = append(blocks, slackgw.Section("*改善提案:*\n"+bulletList(result.Suggestions)))
	}
	return blocks
}

func bulletList(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += "\n"
		}
		out += "• " + item
	}
	return out
}
