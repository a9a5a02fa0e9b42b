package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/kakari/internal/extract"
	"github.com/harunnryd/kakari/internal/gateway/sheets"
	"github.com/harunnryd/kakari/internal/logger"
)

// 2026-08-31 is a Monday.
var monday = time.Date(2026, 8, 31, 7, 0, 0, 0, time.Local)

func TestShouldRegisterWeekly(t *testing.T) {
	row := sheets.RoutineRow{Summary: "週報", Frequency: FrequencyWeekly, IssueDay: "月"}
	assert.True(t, shouldRegister(row, monday))

	row.IssueDay = "火"
	assert.False(t, shouldRegister(row, monday), "issue day must match")
}

func TestShouldRegisterMonthlyOnlyEarlyInMonth(t *testing.T) {
	row := sheets.RoutineRow{Summary: "月次報告", Frequency: FrequencyMonthly, IssueDay: "月"}

	assert.False(t, shouldRegister(row, monday), "the 31st is past the first week")

	firstMonday := time.Date(2026, 9, 7, 7, 0, 0, 0, time.Local)
	assert.True(t, shouldRegister(row, firstMonday))
}

func TestShouldRegisterBiweeklyPattern(t *testing.T) {
	row := sheets.RoutineRow{Summary: "隔週定例", Frequency: FrequencyBiweekly, IssueDay: "月"}

	pattern := weekPattern(monday)
	row.BiweeklyPattern = pattern
	assert.True(t, shouldRegister(row, monday))

	if pattern == "A" {
		row.BiweeklyPattern = "B"
	} else {
		row.BiweeklyPattern = "A"
	}
	assert.False(t, shouldRegister(row, monday))
}

func TestShouldRegisterSkipsRecentRegistration(t *testing.T) {
	row := sheets.RoutineRow{
		Summary:        "週報",
		Frequency:      FrequencyWeekly,
		IssueDay:       "月",
		LastRegistered: "2026-08-28",
	}
	assert.False(t, shouldRegister(row, monday), "registered three days ago")

	row.LastRegistered = "2026-08-24"
	assert.True(t, shouldRegister(row, monday), "a week ago is long enough")
}

func TestShouldRegisterUnknownFrequency(t *testing.T) {
	row := sheets.RoutineRow{Summary: "謎", Frequency: "毎時", IssueDay: "月"}
	assert.False(t, shouldRegister(row, monday))
}

func TestRoutineDueDate(t *testing.T) {
	due, ok := routineDueDate(FrequencyWeekly, monday)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 9, 7, 7, 0, 0, 0, time.Local), due)

	due, ok = routineDueDate(FrequencyMonthly, monday)
	require.True(t, ok)
	assert.Equal(t, time.Month(10), due.Month())

	due, ok = routineDueDate(FrequencyBiweekly, monday)
	require.True(t, ok)
	assert.Equal(t, monday, due)

	_, ok = routineDueDate("毎時", monday)
	assert.False(t, ok)
}

func TestWeekPatternAlternates(t *testing.T) {
	week1 := weekPattern(monday)
	week2 := weekPattern(monday.AddDate(0, 0, 7))
	week3 := weekPattern(monday.AddDate(0, 0, 14))

	assert.NotEqual(t, week1, week2)
	assert.Equal(t, week1, week3)
}

type routineSheetsStub struct {
	projects []sheets.Project
	rows     map[string][]sheets.RoutineRow
	readErr  map[string]error

	created []map[string]string
	marked  []string
}

func (s *routineSheetsStub) ActiveProjects(context.Context) ([]sheets.Project, error) {
	return s.projects, nil
}

func (s *routineSheetsStub) RoutineRows(_ context.Context, sheetID string) ([]sheets.RoutineRow, error) {
	if err := s.readErr[sheetID]; err != nil {
		return nil, err
	}
	return s.rows[sheetID], nil
}

func (s *routineSheetsStub) CreateTask(_ context.Context, _ string, record map[string]string) error {
	s.created = append(s.created, record)
	return nil
}

func (s *routineSheetsStub) MarkRoutineRegistered(_ context.Context, _, cellRef, _ string) error {
	s.marked = append(s.marked, cellRef)
	return nil
}

func TestRoutineRunRegistersMatchingRows(t *testing.T) {
	sh := &routineSheetsStub{
		projects: []sheets.Project{{Name: "案件A", SheetID: "s1", ChannelID: "C1"}},
		rows: map[string][]sheets.RoutineRow{
			"s1": {
				{Summary: "週報", Frequency: FrequencyWeekly, IssueDay: "月", Assignee: "山田太郎", LastRegisteredCell: "Routine!F2"},
				{Summary: "火曜の仕事", Frequency: FrequencyWeekly, IssueDay: "火"},
			},
		},
	}

	r := NewRoutine(sh, logger.Discard())
	r.now = func() time.Time { return monday }
	r.Run(context.Background())

	require.Len(t, sh.created, 1)
	assert.Equal(t, "週報", sh.created[0][extract.TaskFieldSummary])
	assert.Equal(t, "2026-09-07", sh.created[0][extract.TaskFieldDueDate])
	assert.Equal(t, "山田太郎", sh.created[0][extract.TaskFieldAssignee])
	assert.Equal(t, []string{"Routine!F2"}, sh.marked)
}

func TestRoutineRunContinuesAfterReadFailure(t *testing.T) {
	sh := &routineSheetsStub{
		projects: []sheets.Project{
			{Name: "案件A", SheetID: "s1", ChannelID: "C1"},
			{Name: "案件B", SheetID: "s2", ChannelID: "C2"},
		},
		readErr: map[string]error{"s1": errors.New("quota exceeded")},
		rows: map[string][]sheets.RoutineRow{
			"s2": {
				{Summary: "週報", Frequency: FrequencyWeekly, IssueDay: "月", Assignee: "佐藤花子"},
			},
		},
	}

	r := NewRoutine(sh, logger.Discard())
	r.now = func() time.Time { return monday }
	r.Run(context.Background())

	require.Len(t, sh.created, 1, "the healthy project still registers")
	assert.Equal(t, "週報", sh.created[0][extract.TaskFieldSummary])
}
