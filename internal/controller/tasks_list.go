package controller

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	slackapi "github.com/slack-go/slack"

	"github.com/harunnryd/kakari/internal/gateway/sheets"
	slackgw "github.com/harunnryd/kakari/internal/gateway/slack"
)

// getTasks lists a user's open tasks across every active project sheet,
// paged into Slack messages.
func (c *Controller) getTasks(ctx context.Context, msg slackgw.Inbound) {
	threadKey := msg.ThreadKey()
	c.logMessage(msg)

	// logMessage already appended msg.Text, so the history is complete.
	history := c.threads.Messages(threadKey)
	parts := make([]string, 0, len(history))
	for _, m := range history {
		parts = append(parts, m.Text)
	}

	userID, ok := c.params.TargetUser(ctx, strings.Join(parts, "\n"))
	if !ok {
		c.post(ctx, msg, "どなたのタスク一覧を取得しますか？名前かメンションで教えてください。", nil)
		return
	}

	projects, err := c.sheets.ActiveProjects(ctx)
	if err != nil {
		c.log.Error("list active projects", "error", err)
		c.post(ctx, msg, "プロジェクト一覧の取得中にエラーが発生しました。", nil)
		return
	}
	if len(projects) == 0 {
		c.post(ctx, msg, "アクティブなプロジェクトのタスクシートが見つかりませんでした。", nil)
		return
	}

	projectNames := make(map[string]string, len(projects))
	var tasks []sheets.Task
	for _, p := range projects {
		projectNames[p.SheetID] = p.Name
		found, err := c.sheets.PendingTasksForUser(ctx, p.SheetID, userID)
		if err != nil {
			c.log.Warn("read project tasks", "project", p.Name, "error", err)
			continue
		}
		tasks = append(tasks, found...)
	}

	tasks = dedupeTasks(tasks)
	sortTasksByDue(tasks)

	if len(tasks) == 0 {
		c.post(ctx, msg, fmt.Sprintf("<@%s> さんの未完了タスクはありません。🎉", userID), nil)
		return
	}

	truncated := false
	if max := c.cfg.MaxListedTasks; max > 0 && len(tasks) > max {
		tasks = tasks[:max]
		truncated = true
	}

	perMessage := c.cfg.TasksPerMessage
	if perMessage <= 0 {
		perMessage = 10
	}
	pages := pageTasks(tasks, perMessage)

	c.post(ctx, msg, fmt.Sprintf("<@%s> さんの未完了タスク一覧（%d件）", userID, len(tasks)), []slackapi.Block{
		slackgw.Header(fmt.Sprintf("📝 未完了タスク一覧（%d件）", len(tasks))),
	})
	for i, page := range pages {
		blocks := taskPageBlocks(page, projectNames)
		blocks = append(blocks, slackgw.Context(fmt.Sprintf("*ページ %d/%d*", i+1, len(pages))))
		c.post(ctx, msg, fmt.Sprintf("タスク一覧 %d/%d", i+1, len(pages)), blocks)
	}
	if truncated {
		c.post(ctx, msg, fmt.Sprintf("タスクが多いため、先頭の%d件のみ表示しています。", len(tasks)), nil)
	}
}

func taskPageBlocks(tasks []sheets.Task, projectNames map[string]string) []slackapi.Block {
	blocks := make([]slackapi.Block, 0, len(tasks)+1)
	for _, t := range tasks {
		line := fmt.Sprintf("• *%s*", t.Summary)
		if t.DueDate != "" {
			line += fmt.Sprintf("\n    期日: %s", t.DueDate)
		}
		if name := projectNames[t.SheetID]; name != "" {
			line += fmt.Sprintf("\n    案件: %s", name)
		}
		blocks = append(blocks, slackgw.Section(line))
	}
	return blocks
}

// dedupeTasks removes rows identical across every column. Identical
// rows appear when a project is registered in the controller sheet more
// than once.
func dedupeTasks(tasks []sheets.Task) []sheets.Task {
	seen := make(map[sheets.Task]bool, len(tasks))
	out := tasks[:0]
	for _, t := range tasks {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// sortTasksByDue orders tasks by due date ascending; rows with an
// unparsable or empty due date sort last.
func sortTasksByDue(tasks []sheets.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return parseDueDate(tasks[i].DueDate).Before(parseDueDate(tasks[j].DueDate))
	})
}

var farFuture = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

func parseDueDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"2006/01/02", "2006-01-02", "2006/1/2"} {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t
		}
	}
	return farFuture
}

func pageTasks(tasks []sheets.Task, perMessage int) [][]sheets.Task {
	var pages [][]sheets.Task
	for start := 0; start < len(tasks); start += perMessage {
		end := start + perMessage
		if end > len(tasks) {
			end = len(tasks)
		}
		pages = append(pages, tasks[start:end])
	}
	return pages
}
