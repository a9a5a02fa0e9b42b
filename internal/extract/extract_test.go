package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	kerrors "github.com/harunnryd/kakari/internal/errors"
	"github.com/harunnryd/kakari/internal/oracle/oracletest"
	"github.com/harunnryd/kakari/internal/roster"
	"github.com/harunnryd/kakari/internal/thread"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRoster = roster.New([]roster.Member{
	{FullName: "萬代 貴昂", SlackUserID: "UNZ5061JM"},
	{FullName: "村上 幸平", SlackUserID: "U08L19046DR"},
})

var refDate = time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

func TestMergeLaw(t *testing.T) {
	existing := map[string]string{"概要": "old", "期日": "2025-06-01"}
	parsed := map[string]string{"概要": "new", "アサイン": "萬代 貴昂"}

	merged := Merge(existing, parsed)
	assert.Equal(t, map[string]string{
		"概要":   "new",
		"期日":   "2025-06-01",
		"アサイン": "萬代 貴昂",
	}, merged)

	// Inputs untouched.
	assert.Equal(t, "old", existing["概要"])
	assert.NotContains(t, parsed, "期日")
}

func TestMergeNilInputs(t *testing.T) {
	assert.Equal(t, map[string]string{"a": "1"}, Merge(nil, map[string]string{"a": "1"}))
	assert.Equal(t, map[string]string{"a": "1"}, Merge(map[string]string{"a": "1"}, nil))
}

func TestTaskExtractMergesOverExisting(t *testing.T) {
	fake := oracletest.New().Reply(`{"概要": "X", "期日": "2025-06-01", "アサイン": "田中", "ステータス": "未着手"}`)
	e := NewTaskExtractor(fake, testRoster)

	existing := map[string]string{"概要": "前回の概要", "SheetId": "sheet-1"}
	merged, err := e.Extract(context.Background(), "来月1日までにXをやる 田中", existing, nil, refDate)
	require.NoError(t, err)

	assert.Equal(t, "X", merged["概要"], "new extraction wins on collision")
	assert.Equal(t, "sheet-1", merged["SheetId"], "untouched keys survive")
	assert.Equal(t, "2025-06-01", merged["期日"])
}

func TestTaskExtractPromptCarriesRosterAndDate(t *testing.T) {
	fake := oracletest.New().Reply(`{"概要": "X"}`)
	e := NewTaskExtractor(fake, testRoster)

	_, err := e.Extract(context.Background(), "create X", nil, []thread.Message{{SpeakerID: "U01", Text: "こんにちは"}}, refDate)
	require.NoError(t, err)

	prompt := fake.Calls[0].Prompt
	assert.Contains(t, prompt, "萬代 貴昂")
	assert.Contains(t, prompt, "今日の日付は2025-05-10です")
	assert.Contains(t, prompt, "現在の曜日は土曜日です")
	assert.Contains(t, prompt, "ユーザーU01: こんにちは")
}

func TestTaskExtractSurfacesOracleError(t *testing.T) {
	fake := oracletest.New().Fail(errors.New("timeout"))
	e := NewTaskExtractor(fake, testRoster)

	_, err := e.Extract(context.Background(), "create X", nil, nil, refDate)
	assert.Error(t, err)
}

func TestTaskExtractSurfacesParseError(t *testing.T) {
	fake := oracletest.New().Reply("すみません、わかりませんでした")
	e := NewTaskExtractor(fake, testRoster)

	_, err := e.Extract(context.Background(), "create X", nil, nil, refDate)
	require.Error(t, err)
	assert.True(t, kerrors.IsCategory(err, kerrors.ErrInvalidModelOutput))
}

func TestEventExtractNumericDuration(t *testing.T) {
	fake := oracletest.New().Reply(`{"title": "MTG", "startDateTime": "2025-01-20 14:00", "duration": 60, "guestEmail": ""}`)
	e := NewEventExtractor(fake)

	merged, err := e.Extract(context.Background(), "event MTG 2025-01-20 14:00 60分", nil, nil, refDate)
	require.NoError(t, err)
	assert.Equal(t, "MTG", merged[EventFieldTitle])
	assert.Equal(t, "60", merged[EventFieldDuration])
}

func TestTargetUserUnwrapsMention(t *testing.T) {
	fake := oracletest.New().Reply(`{"slackUserId": "<@UNZ5061JM>", "found": true}`)
	p := NewParams(fake, testRoster)

	id, found := p.TargetUser(context.Background(), "萬代のタスク一覧を表示して")
	require.True(t, found)
	assert.Equal(t, "UNZ5061JM", id)
}

func TestTargetUserDegradesToNotFound(t *testing.T) {
	p := NewParams(oracletest.New().Fail(errors.New("down")), testRoster)
	_, found := p.TargetUser(context.Background(), "タスク一覧")
	assert.False(t, found)

	p = NewParams(oracletest.New().Reply(`{"slackUserId": null, "found": false}`), testRoster)
	_, found = p.TargetUser(context.Background(), "タスク一覧")
	assert.False(t, found)
}

func TestTaskSummaryExtraction(t *testing.T) {
	fake := oracletest.New().Reply(`{"taskSummary": "請求書送付", "found": true}`)
	p := NewParams(fake, testRoster)

	summary, found := p.TaskSummary(context.Background(), "done 請求書送付")
	require.True(t, found)
	assert.Equal(t, "請求書送付", summary)
}

func TestCalendarParamsDefaults(t *testing.T) {
	fake := oracletest.New().Reply(`{"found": true, "emails": [], "days": 0, "startTime": "", "endTime": "", "startDate": "", "startDateDescription": ""}`)
	p := NewParams(fake, testRoster)

	q, err := p.CalendarParams(context.Background(), "calendar", refDate)
	require.NoError(t, err)
	assert.Equal(t, 3, q.Days)
	assert.Equal(t, "09:00", q.StartTime)
	assert.Equal(t, "18:00", q.EndTime)
}

func TestCalendarParamsSurfacesError(t *testing.T) {
	p := NewParams(oracletest.New().Fail(errors.New("down")), testRoster)
	_, err := p.CalendarParams(context.Background(), "calendar", refDate)
	assert.Error(t, err)
}
