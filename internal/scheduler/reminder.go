package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	slackapi "github.com/slack-go/slack"

	"github.com/harunnryd/kakari/internal/gateway/sheets"
)

// summaryDisplayLimit caps how much of a task summary the digest shows.
const summaryDisplayLimit = 100

// ReminderSheets is the reminder job's view of the spreadsheet gateway.
type ReminderSheets interface {
	ActiveProjects(ctx context.Context) ([]sheets.Project, error)
	PendingTasks(ctx context.Context, sheetID string) ([]sheets.Task, error)
}

// Messenger posts digest messages to project channels.
type Messenger interface {
	Post(ctx context.Context, channel, text string, blocks []slackapi.Block, threadTS string) error
}

// Reminder posts each active project's open tasks to its channel,
// split into an overdue section and an in-progress section, grouped by
// assignee.
type Reminder struct {
	sheets ReminderSheets
	poster Messenger
	log    *slog.Logger
	now    func() time.Time
}

func NewReminder(sh ReminderSheets, poster Messenger, log *slog.Logger) *Reminder {
	return &Reminder{sheets: sh, poster: poster, log: log, now: time.Now}
}

func (r *Reminder) Name() string { return "task-reminder" }

func (r *Reminder) Run(ctx context.Context) {
	projects, err := r.sheets.ActiveProjects(ctx)
	if err != nil {
		r.log.Error("list active projects", "error", err)
		return
	}

	for _, p := range projects {
		tasks, err := r.sheets.PendingTasks(ctx, p.SheetID)
		if err != nil {
			r.log.Error("read project tasks", "project", p.Name, "error", err)
			continue
		}
		if len(tasks) == 0 {
			r.log.Info("no pending tasks", "project", p.Name)
			continue
		}

		urgent, future := splitByDue(tasks, r.now())
		message := buildReminderMessage(urgent, future, sheets.TasksSheetURL(p.SheetID))
		if message == "" {
			continue
		}
		if err := r.poster.Post(ctx, p.ChannelID, message, nil, ""); err != nil {
			r.log.Error("post reminder", "project", p.Name, "error", err)
			continue
		}
		r.log.Info("reminder posted", "project", p.Name, "urgent", len(urgent), "future", len(future))
	}
}

// reminderTask carries a task with its parsed due date. Rows whose due
// date cannot be parsed count as in-progress, far in the future.
type reminderTask struct {
	sheets.Task
	due        time.Time
	invalidDue bool
}

var unparsableDue = time.Date(2099, 12, 31, 0, 0, 0, 0, time.Local)

// splitByDue classifies tasks into due-today-or-past and future, each
// sorted by due date ascending.
func splitByDue(tasks []sheets.Task, now time.Time) (urgent, future []reminderTask) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	for _, t := range tasks {
		rt := reminderTask{Task: t}
		due, ok := parseSheetDate(t.DueDate)
		if !ok {
			rt.due = unparsableDue
			rt.invalidDue = true
		} else {
			rt.due = due
		}

		if !rt.invalidDue && !rt.due.After(today) {
			urgent = append(urgent, rt)
		} else {
			future = append(future, rt)
		}
	}

	byDue := func(list []reminderTask) func(i, j int) bool {
		return func(i, j int) bool { return list[i].due.Before(list[j].due) }
	}
	sort.SliceStable(urgent, byDue(urgent))
	sort.SliceStable(future, byDue(future))
	return urgent, future
}

func parseSheetDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"2006/01/02", "2006-01-02", "2006/1/2", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local), true
		}
	}
	return time.Time{}, false
}

// Assignee group keys. Slack-mentionable assignees come first in the
// digest; rows with a malformed Slack ID are flagged instead of
// producing a broken mention.
const (
	keySlack    = "slack:"
	keyInvalid  = "invalid:"
	keyAssignee = "assignee:"
	keyUnknown  = "unknown:未割り当て"
)

func assigneeKey(t reminderTask) string {
	if id := strings.TrimSpace(t.SlackID); id != "" {
		if strings.HasPrefix(id, "U") {
			return keySlack + id
		}
		return keyInvalid + id
	}
	if name := strings.TrimSpace(t.Assignee); name != "" {
		return keyAssignee + name
	}
	return keyUnknown
}

func groupByAssignee(tasks []reminderTask) map[string][]reminderTask {
	groups := make(map[string][]reminderTask)
	for _, t := range tasks {
		key := assigneeKey(t)
		groups[key] = append(groups[key], t)
	}
	return groups
}

func sortedGroupKeys(groups map[string][]reminderTask) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		iSlack := strings.HasPrefix(keys[i], keySlack)
		jSlack := strings.HasPrefix(keys[j], keySlack)
		if iSlack != jSlack {
			return iSlack
		}
		return keys[i] < keys[j]
	})
	return keys
}

func assigneeHeader(key string) string {
	switch {
	case strings.HasPrefix(key, keySlack):
		return "👤 <@" + strings.TrimPrefix(key, keySlack) + ">"
	case strings.HasPrefix(key, keyInvalid):
		return "👤 [無効ID: " + strings.TrimPrefix(key, keyInvalid) + "]"
	case strings.HasPrefix(key, keyAssignee):
		return "👤 " + strings.TrimPrefix(key, keyAssignee)
	default:
		return "👤 " + strings.TrimPrefix(key, "unknown:")
	}
}

func taskLine(t reminderTask) string {
	due := "期日不正"
	if !t.invalidDue {
		due = t.due.Format("2006/01/02")
	}
	return fmt.Sprintf("  • %s  期日: %s", truncateRunes(t.Summary, summaryDisplayLimit), due)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func appendGroupedSection(b *strings.Builder, tasks []reminderTask) {
	groups := groupByAssignee(tasks)
	for _, key := range sortedGroupKeys(groups) {
		b.WriteString(assigneeHeader(key) + "\n")
		for _, t := range groups[key] {
			b.WriteString(taskLine(t) + "\n")
		}
		b.WriteString("\n")
	}
}

// buildReminderMessage renders the two-section digest. Group order puts
// Slack-mentionable assignees first; within a group, tasks keep the
// caller's due-date order.
func buildReminderMessage(urgent, future []reminderTask, sheetURL string) string {
	var b strings.Builder

	if len(urgent) > 0 {
		b.WriteString("🚨 ■期日が本日中または過去のタスク\n")
		b.WriteString("下記、早急に対応して下さい\n\n")
		appendGroupedSection(&b, urgent)
	}
	if len(future) > 0 {
		b.WriteString("■案件の進行中タスクのリマインドです\n")
		appendGroupedSection(&b, future)
	}
	if b.Len() == 0 {
		return ""
	}
	if sheetURL != "" {
		b.WriteString(fmt.Sprintf("📋 <%s|タスクシートを開く>", sheetURL))
	}
	return strings.TrimSpace(b.String())
}
