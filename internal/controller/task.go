package controller

import (
	"context"
	"fmt"
	"strconv"
	"time"

	slackapi "github.com/slack-go/slack"

	"github.com/harunnryd/kakari/internal/confirm"
	kerrors "github.com/harunnryd/kakari/internal/errors"
	"github.com/harunnryd/kakari/internal/extract"
	"github.com/harunnryd/kakari/internal/gateway/calendar"
	slackgw "github.com/harunnryd/kakari/internal/gateway/slack"
)

const recordSheetField = "SheetId"

// createTask accumulates task fields over the thread until the record
// validates, then proposes it for confirmation.
func (c *Controller) createTask(ctx context.Context, msg slackgw.Inbound) {
	threadKey := msg.ThreadKey()
	c.logMessage(msg)

	if c.confirms.HasPending(threadKey) {
		c.resolvePending(ctx, msg)
		return
	}

	sheetID, err := c.sheets.SheetIDForChannel(ctx, msg.Channel)
	if err != nil {
		c.log.Error("look up task sheet", "channel", msg.Channel, "error", err)
		c.post(ctx, msg, "タスクシートの確認中にエラーが発生しました。", nil)
		return
	}
	if sheetID == "" {
		c.post(ctx, msg, "このチャンネルに紐づくタスクシートが見つかりませんでした。", nil)
		return
	}

	existing, _ := c.threads.TaskRecord(threadKey)
	record, err := c.taskEx.Extract(ctx, msg.Text, existing, c.threads.Messages(threadKey), c.now())
	if err != nil {
		c.log.Error("extract task fields", "thread", threadKey, "error", err)
		c.post(ctx, msg, "タスク情報の読み取りに失敗しました。もう一度お願いします。", nil)
		return
	}
	record[recordSheetField] = sheetID
	if err := c.threads.SaveTaskRecord(threadKey, record); err != nil {
		c.log.Error("save task record", "thread", threadKey, "error", err)
	}

	result, err := c.taskVal.Validate(ctx, record)
	if err != nil {
		c.log.Error("validate task record", "thread", threadKey, "error", err)
		c.post(ctx, msg, "タスク情報の検証中にエラーが発生しました。", nil)
		return
	}
	if !result.IsValid {
		c.post(ctx, msg, "タスク情報に問題があります",
			validationBlocks("❌ *タスク情報に問題があります*", result))
		return
	}

	if err := c.confirms.Propose(threadKey, confirm.KindTask, record); err != nil {
		c.log.Error("propose task confirmation", "thread", threadKey, "error", err)
		c.post(ctx, msg, "確認の準備中にエラーが発生しました。", nil)
		return
	}
	c.post(ctx, msg, "この内容でタスクを作成しますか？", taskSummaryBlocks(record))
}

func taskSummaryBlocks(record map[string]string) []slackapi.Block {
	return []slackapi.Block{
		slackgw.Header("📝 タスク作成の確認"),
		slackgw.Section(fmt.Sprintf("*%s:* %s", extract.TaskFieldSummary, record[extract.TaskFieldSummary])),
		slackgw.Section(fmt.Sprintf("*%s:* %s", extract.TaskFieldDueDate, record[extract.TaskFieldDueDate])),
		slackgw.Section(fmt.Sprintf("*%s:* %s", extract.TaskFieldAssignee, record[extract.TaskFieldAssignee])),
		slackgw.Section(fmt.Sprintf("*%s:* %s", extract.TaskFieldStatus, record[extract.TaskFieldStatus])),
		slackgw.Divider(),
		slackgw.Section("この内容でタスクを作成しますか？（はい / いいえ）"),
	}
}

// completeTask resolves the referenced open task by its normalized
// summary and proposes marking it done.
func (c *Controller) completeTask(ctx context.Context, msg slackgw.Inbound) {
	threadKey := msg.ThreadKey()

	if c.confirms.HasPending(threadKey) {
		c.resolvePending(ctx, msg)
		return
	}

	sheetID, err := c.sheets.SheetIDForChannel(ctx, msg.Channel)
	if err != nil {
		c.log.Error("look up task sheet", "channel", msg.Channel, "error", err)
		c.post(ctx, msg, "タスクシートの確認中にエラーが発生しました。", nil)
		return
	}
	if sheetID == "" {
		c.post(ctx, msg, "このチャンネルに紐づくタスクシートが見つかりませんでした。", nil)
		return
	}

	summary, ok := c.params.TaskSummary(ctx, msg.Text)
	if !ok {
		c.post(ctx, msg, "完了にするタスクの概要を特定できませんでした。タスクの概要を教えてください。", nil)
		return
	}

	found, err := c.sheets.FindOpenTask(ctx, sheetID, summary)
	if err != nil {
		c.log.Error("find open task", "summary", summary, "error", err)
		c.post(ctx, msg, "タスクの検索中にエラーが発生しました。", nil)
		return
	}
	if !found {
		c.post(ctx, msg, fmt.Sprintf("未完了のタスク「%s」が見つかりませんでした。", summary), nil)
		return
	}

	payload := map[string]string{
		"targetSheetId": sheetID,
		"taskSummary":   summary,
	}
	if err := c.confirms.Propose(threadKey, confirm.KindTaskComplete, payload); err != nil {
		c.log.Error("propose completion confirmation", "thread", threadKey, "error", err)
		c.post(ctx, msg, "確認の準備中にエラーが発生しました。", nil)
		return
	}
	c.post(ctx, msg, fmt.Sprintf("タスク「%s」を完了にしますか？（はい / いいえ）", summary), nil)
}

// resolvePending settles the thread's pending confirmation against the
// user's reply. The process type resets only after a successful commit;
// a cancel or a failed commit leaves the thread in its current flow so
// the user can retry or rephrase.
func (c *Controller) resolvePending(ctx context.Context, msg slackgw.Inbound) {
	threadKey := msg.ThreadKey()
	conf, ok := c.confirms.Get(threadKey)
	if !ok {
		return
	}

	var committedMsg string
	outcome, err := c.confirms.Resolve(ctx, threadKey, msg.Text, func(payload map[string]string) error {
		m, cerr := c.commit(ctx, conf.Kind, payload)
		committedMsg = m
		return cerr
	})

	switch outcome {
	case confirm.OutcomeCommitted:
		if rerr := c.threads.ResetProcessType(threadKey); rerr != nil {
			c.log.Error("reset process type", "thread", threadKey, "error", rerr)
		}
		c.post(ctx, msg, committedMsg, successBlocks(committedMsg))
	case confirm.OutcomeCancelled:
		c.post(ctx, msg, cancelMessage(conf.Kind), nil)
	case confirm.OutcomeCommitFailed:
		c.log.Error("commit confirmed action", "thread", threadKey, "kind", conf.Kind, "error", err)
		c.post(ctx, msg, fmt.Sprintf("処理中にエラーが発生しました: %v", err), nil)
	case confirm.OutcomeAlreadyResolved:
		// Duplicate delivery of the reply; nothing to do.
	default:
		if err != nil {
			c.log.Error("resolve confirmation", "thread", threadKey, "error", err)
		}
	}
}

// commit executes the confirmed action for its kind and returns the
// user-facing success message.
func (c *Controller) commit(ctx context.Context, kind string, payload map[string]string) (string, error) {
	switch kind {
	case confirm.KindTask:
		sheetID := payload[recordSheetField]
		if sheetID == "" {
			return "", kerrors.Internal("confirmed task record has no sheet")
		}
		if err := c.sheets.CreateTask(ctx, sheetID, payload); err != nil {
			return "", err
		}
		return fmt.Sprintf("🎉 タスク「%s」を登録しました！", payload[extract.TaskFieldSummary]), nil

	case confirm.KindTaskComplete:
		if err := c.sheets.CompleteTask(ctx, payload["targetSheetId"], payload["taskSummary"]); err != nil {
			return "", err
		}
		return fmt.Sprintf("🎉 タスク「%s」を完了にしました！", payload["taskSummary"]), nil

	case confirm.KindEvent:
		ev, err := eventFromPayload(payload)
		if err != nil {
			return "", err
		}
		_, url, err := c.calendar.CreateEvent(ctx, ev)
		if err != nil {
			return "", err
		}
		m := fmt.Sprintf("🎉 カレンダー予約「%s」を作成しました！", ev.Title)
		if url != "" {
			m += "\n" + url
		}
		return m, nil
	}
	return "", kerrors.Internal("unknown confirmation kind " + kind)
}

func eventFromPayload(payload map[string]string) (calendar.Event, error) {
	start, err := parseEventStart(payload[extract.EventFieldStart])
	if err != nil {
		return calendar.Event{}, kerrors.Wrap(err, "parse event start")
	}
	duration := calendar.DefaultEventDuration
	if raw := payload[extract.EventFieldDuration]; raw != "" {
		if mins, err := strconv.Atoi(raw); err == nil && mins > 0 {
			duration = mins
		}
	}
	return calendar.Event{
		Title:      payload[extract.EventFieldTitle],
		Start:      start,
		Duration:   time.Duration(duration) * time.Minute,
		GuestEmail: payload[extract.EventFieldGuest],
	}, nil
}

func parseEventStart(raw string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02T15:04", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", raw)
}

func successBlocks(message string) []slackapi.Block {
	return []slackapi.Block{
		slackgw.Section(message),
		slackgw.Context("このスレッドでは引き続き別の操作を依頼できます。"),
	}
}

func cancelMessage(kind string) string {
	switch kind {
	case confirm.KindTask:
		return "タスクの作成をキャンセルしました。"
	case confirm.KindTaskComplete:
		return "タスクの完了をキャンセルしました。"
	case confirm.KindEvent:
		return "カレンダー予約の作成をキャンセルしました。"
	}
	return "操作をキャンセルしました。"
}
