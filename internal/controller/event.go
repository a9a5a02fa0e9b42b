package controller

import (
	"context"
	"fmt"
	"strings"
	"time"

	slackapi "github.com/slack-go/slack"

	"github.com/harunnryd/kakari/internal/confirm"
	"github.com/harunnryd/kakari/internal/extract"
	"github.com/harunnryd/kakari/internal/gateway/calendar"
	slackgw "github.com/harunnryd/kakari/internal/gateway/slack"
	"github.com/harunnryd/kakari/internal/thread"
)

// getCalendar reports free slots for the requested people and period,
// then hands the thread over to the event-creation flow so the user can
// book one of the slots in place.
func (c *Controller) getCalendar(ctx context.Context, msg slackgw.Inbound) {
	threadKey := msg.ThreadKey()
	c.logMessage(msg)

	query, err := c.params.CalendarParams(ctx, msg.Text, c.now())
	if err != nil {
		c.log.Error("extract calendar params", "thread", threadKey, "error", err)
		c.post(ctx, msg, "確認内容の読み取りに失敗しました。対象のメールアドレスや期間を教えてください。", nil)
		return
	}

	base := c.now()
	if query.StartDate != "" {
		if parsed, perr := time.ParseInLocation("2006-01-02", query.StartDate, time.Local); perr == nil {
			base = parsed
		}
	}

	busy, err := c.calendar.BusyIntervals(ctx, query.Emails, base, base.AddDate(0, 0, query.Days))
	if err != nil {
		c.log.Error("freebusy query", "thread", threadKey, "error", err)
		c.post(ctx, msg, "カレンダーの確認中にエラーが発生しました。", nil)
		return
	}

	availability, err := calendar.AnalyzeAvailability(busy, query.Days, query.StartTime, query.EndTime, base)
	if err != nil {
		c.log.Error("analyze availability", "thread", threadKey, "error", err)
		c.post(ctx, msg, "空き枠の計算中にエラーが発生しました。", nil)
		return
	}

	c.post(ctx, msg, "カレンダーの空き状況", availabilityBlocks(query, availability))

	if err := c.threads.SetProcessType(threadKey, thread.ProcessCreateEvent); err != nil {
		c.log.Error("switch to event creation", "thread", threadKey, "error", err)
		return
	}
	c.post(ctx, msg, "予約を作成する場合は内容を教えてください", []slackapi.Block{
		slackgw.Section("このスレッドで、空き枠への予約をそのまま作成できます。"),
		slackgw.Section("`予定名 開始日時 時間 招待アドレス` の形式で教えてください。"),
	})
}

func availabilityBlocks(query extract.CalendarQuery, days []calendar.DayAvailability) []slackapi.Block {
	blocks := []slackapi.Block{
		slackgw.Header("📅 カレンダーの空き状況"),
	}
	if len(query.Emails) > 0 {
		blocks = append(blocks, slackgw.Section("*対象:* "+strings.Join(query.Emails, ", ")))
	}
	period := fmt.Sprintf("*期間:* %d日間（%s〜%s）", query.Days, query.StartTime, query.EndTime)
	if query.StartDateDescription != "" {
		period += fmt.Sprintf("\n*開始日:* %s", query.StartDateDescription)
	}
	blocks = append(blocks, slackgw.Section(period), slackgw.Divider())

	for _, day := range days {
		if len(day.Slots) == 0 {
			blocks = append(blocks, slackgw.Section(fmt.Sprintf("*%s（%s）*\n空き枠はありません", day.Date, day.DayOfWeek)))
			continue
		}
		lines := make([]string, 0, len(day.Slots))
		for _, s := range day.Slots {
			lines = append(lines, fmt.Sprintf("• %s〜%s（%s）", s.Start, s.End, s.Duration))
		}
		blocks = append(blocks, slackgw.Section(fmt.Sprintf("*%s（%s）*\n%s", day.Date, day.DayOfWeek, strings.Join(lines, "\n"))))
	}
	return blocks
}

// createEvent accumulates event fields over the thread, validates them,
// and proposes the booking for confirmation.
func (c *Controller) createEvent(ctx context.Context, msg slackgw.Inbound) {
	threadKey := msg.ThreadKey()
	c.logMessage(msg)

	if c.confirms.HasPending(threadKey) {
		c.resolvePending(ctx, msg)
		return
	}

	existing, _ := c.threads.EventRecord(threadKey)
	record, err := c.eventEx.Extract(ctx, msg.Text, existing, c.threads.Messages(threadKey), c.now())
	if err != nil {
		c.log.Error("extract event fields", "thread", threadKey, "error", err)
		c.post(ctx, msg, "予約内容の読み取りに失敗しました。もう一度お願いします。", nil)
		return
	}
	if err := c.threads.SaveEventRecord(threadKey, record); err != nil {
		c.log.Error("save event record", "thread", threadKey, "error", err)
	}

	result, err := c.eventVal.Validate(ctx, record)
	if err != nil {
		c.log.Error("validate event record", "thread", threadKey, "error", err)
		c.post(ctx, msg, "予約内容の検証中にエラーが発生しました。", nil)
		return
	}
	if !result.IsValid {
		c.post(ctx, msg, "予約内容に問題があります",
			validationBlocks("❌ *予約内容に問題があります*", result))
		return
	}

	if err := c.confirms.Propose(threadKey, confirm.KindEvent, record); err != nil {
		c.log.Error("propose event confirmation", "thread", threadKey, "error", err)
		c.post(ctx, msg, "確認の準備中にエラーが発生しました。", nil)
		return
	}
	c.post(ctx, msg, "この内容でカレンダー予約を作成しますか？", eventSummaryBlocks(record))
}

func eventSummaryBlocks(record map[string]string) []slackapi.Block {
	duration := record[extract.EventFieldDuration]
	if duration == "" {
		duration = fmt.Sprintf("%d", calendar.DefaultEventDuration)
	}
	blocks := []slackapi.Block{
		slackgw.Header("🗓️ カレンダー予約の確認"),
		slackgw.Section("*予定名:* " + record[extract.EventFieldTitle]),
		slackgw.Section("*開始日時:* " + record[extract.EventFieldStart]),
		slackgw.Section(fmt.Sprintf("*時間:* %s分", duration)),
	}
	if guest := record[extract.EventFieldGuest]; guest != "" {
		blocks = append(blocks, slackgw.Section("*招待:* "+guest))
	}
	blocks = append(blocks,
		slackgw.Divider(),
		slackgw.Section("この内容でカレンダー予約を作成しますか？（はい / いいえ）"),
	)
	return blocks
}
