package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/kakari/internal/gateway/sheets"
	"github.com/harunnryd/kakari/internal/logger"
)

func TestSplitByDueClassifiesAndSorts(t *testing.T) {
	now := time.Date(2026, 8, 31, 15, 0, 0, 0, time.Local)
	tasks := []sheets.Task{
		{Summary: "来週", DueDate: "2026/09/07"},
		{Summary: "今日", DueDate: "2026/08/31"},
		{Summary: "先週", DueDate: "2026-08-24"},
		{Summary: "壊れた期日", DueDate: "そのうち"},
		{Summary: "明日", DueDate: "2026/09/01"},
	}

	urgent, future := splitByDue(tasks, now)

	require.Len(t, urgent, 2)
	assert.Equal(t, "先週", urgent[0].Summary)
	assert.Equal(t, "今日", urgent[1].Summary)

	require.Len(t, future, 3)
	assert.Equal(t, "明日", future[0].Summary)
	assert.Equal(t, "来週", future[1].Summary)
	assert.Equal(t, "壊れた期日", future[2].Summary)
	assert.True(t, future[2].invalidDue)
}

func TestAssigneeKey(t *testing.T) {
	assert.Equal(t, "slack:U123", assigneeKey(reminderTask{Task: sheets.Task{SlackID: "U123"}}))
	assert.Equal(t, "invalid:bob", assigneeKey(reminderTask{Task: sheets.Task{SlackID: "bob"}}))
	assert.Equal(t, "assignee:山田太郎", assigneeKey(reminderTask{Task: sheets.Task{Assignee: "山田太郎"}}))
	assert.Equal(t, keyUnknown, assigneeKey(reminderTask{}))
}

func TestSortedGroupKeysPutsSlackFirst(t *testing.T) {
	groups := map[string][]reminderTask{
		"assignee:山田太郎": nil,
		"slack:U900":    nil,
		"slack:U100":    nil,
		keyUnknown:      nil,
	}
	keys := sortedGroupKeys(groups)
	assert.Equal(t, []string{"slack:U100", "slack:U900", "assignee:山田太郎", keyUnknown}, keys)
}

func TestBuildReminderMessage(t *testing.T) {
	due := time.Date(2026, 8, 30, 0, 0, 0, 0, time.Local)
	urgent := []reminderTask{
		{Task: sheets.Task{Summary: "請求書送付", SlackID: "U111"}, due: due},
	}
	future := []reminderTask{
		{Task: sheets.Task{Summary: "議事録整理", Assignee: "佐藤花子"}, due: due.AddDate(0, 0, 7)},
		{Task: sheets.Task{Summary: "期日なし"}, invalidDue: true, due: unparsableDue},
	}

	msg := buildReminderMessage(urgent, future, "https://example.com/sheet")

	assert.Contains(t, msg, "🚨 ■期日が本日中または過去のタスク")
	assert.Contains(t, msg, "👤 <@U111>")
	assert.Contains(t, msg, "請求書送付  期日: 2026/08/30")
	assert.Contains(t, msg, "■案件の進行中タスクのリマインドです")
	assert.Contains(t, msg, "👤 佐藤花子")
	assert.Contains(t, msg, "期日なし  期日: 期日不正")
	assert.Contains(t, msg, "<https://example.com/sheet|タスクシートを開く>")

	// Urgent section renders before the in-progress one.
	assert.Less(t, strings.Index(msg, "🚨"), strings.Index(msg, "進行中タスク"))
}

func TestBuildReminderMessageEmpty(t *testing.T) {
	assert.Empty(t, buildReminderMessage(nil, nil, "https://example.com/sheet"))
}

func TestTruncateRunes(t *testing.T) {
	long := strings.Repeat("あ", 120)
	assert.Equal(t, 100, len([]rune(truncateRunes(long, 100))))
	assert.Equal(t, "短い", truncateRunes("短い", 100))
}

type reminderSheetsStub struct {
	projects []sheets.Project
	tasks    map[string][]sheets.Task
}

func (s *reminderSheetsStub) ActiveProjects(context.Context) ([]sheets.Project, error) {
	return s.projects, nil
}

func (s *reminderSheetsStub) PendingTasks(_ context.Context, sheetID string) ([]sheets.Task, error) {
	return s.tasks[sheetID], nil
}

type messengerStub struct {
	posts map[string]string
}

func (m *messengerStub) Post(_ context.Context, channel, text string, _ []slackapi.Block, _ string) error {
	if m.posts == nil {
		m.posts = map[string]string{}
	}
	m.posts[channel] = text
	return nil
}

func TestReminderRunPostsPerProject(t *testing.T) {
	sh := &reminderSheetsStub{
		projects: []sheets.Project{
			{Name: "案件A", SheetID: "s1", ChannelID: "C1"},
			{Name: "案件B", SheetID: "s2", ChannelID: "C2"},
		},
		tasks: map[string][]sheets.Task{
			"s1": {{Summary: "督促", DueDate: "2026/08/01", SlackID: "U001"}},
		},
	}
	msgr := &messengerStub{}

	r := NewReminder(sh, msgr, logger.Discard())
	r.now = func() time.Time { return time.Date(2026, 8, 31, 9, 0, 0, 0, time.Local) }
	r.Run(context.Background())

	require.Contains(t, msgr.posts, "C1")
	assert.Contains(t, msgr.posts["C1"], "督促")
	assert.NotContains(t, msgr.posts, "C2", "projects without tasks stay silent")
}
