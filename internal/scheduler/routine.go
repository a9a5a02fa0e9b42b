package scheduler

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/kakari/internal/extract"
	"github.com/harunnryd/kakari/internal/gateway/sheets"
)

// Recurring frequencies a routine row may declare.
const (
	FrequencyWeekly   = "週次"
	FrequencyMonthly  = "月次"
	FrequencyBiweekly = "隔週"
)

// minRegistrationGapDays guards against double registration when the
// job runs more than once in a week (manual runs, schedule changes).
const minRegistrationGapDays = 5

// RoutineSheets is the routine job's view of the spreadsheet gateway.
type RoutineSheets interface {
	ActiveProjects(ctx context.Context) ([]sheets.Project, error)
	RoutineRows(ctx context.Context, sheetID string) ([]sheets.RoutineRow, error)
	CreateTask(ctx context.Context, sheetID string, record map[string]string) error
	MarkRoutineRegistered(ctx context.Context, sheetID, cellRef, date string) error
}

// Routine materializes recurring-task definitions into task rows on
// the day each definition names.
type Routine struct {
	sheets RoutineSheets
	log    *slog.Logger
	now    func() time.Time
}

func NewRoutine(sh RoutineSheets, log *slog.Logger) *Routine {
	return &Routine{sheets: sh, log: log, now: time.Now}
}

func (r *Routine) Name() string { return "routine-task-creator" }

func (r *Routine) Run(ctx context.Context) {
	projects, err := r.sheets.ActiveProjects(ctx)
	if err != nil {
		r.log.Error("list active projects", "error", err)
		return
	}

	today := r.now()
	for _, p := range projects {
		rows, err := r.sheets.RoutineRows(ctx, p.SheetID)
		if err != nil {
			r.log.Error("read routine sheet", "project", p.Name, "error", err)
			continue
		}

		for _, row := range rows {
			if !shouldRegister(row, today) {
				continue
			}
			due, ok := routineDueDate(row.Frequency, today)
			if !ok {
				continue
			}

			record := map[string]string{
				extract.TaskFieldSummary:  strings.TrimSpace(row.Summary),
				sheets.HeaderDetails:      strings.TrimSpace(row.Details),
				extract.TaskFieldDueDate:  due.Format("2006-01-02"),
				extract.TaskFieldAssignee: strings.TrimSpace(row.Assignee),
				extract.TaskFieldStatus:   "",
			}
			if err := r.sheets.CreateTask(ctx, p.SheetID, record); err != nil {
				r.log.Error("register routine task", "project", p.Name, "summary", row.Summary, "error", err)
				continue
			}
			if err := r.sheets.MarkRoutineRegistered(ctx, p.SheetID, row.LastRegisteredCell, today.Format("2006-01-02")); err != nil {
				r.log.Error("record registration date", "project", p.Name, "summary", row.Summary, "error", err)
			}
			r.log.Info("routine task registered", "project", p.Name, "summary", row.Summary, "due", record[extract.TaskFieldDueDate])
		}
	}
}

var kanjiWeekdays = [...]string{"日", "月", "火", "水", "木", "金", "土"}

func kanjiWeekday(t time.Time) string {
	return kanjiWeekdays[t.Weekday()]
}

// weekNumber is the 1-based week of the year, counting partial first
// weeks, so parity is stable across month boundaries.
func weekNumber(t time.Time) int {
	firstDay := time.Date(t.Year(), 1, 1, 0, 0, 0, 0, t.Location())
	pastDays := int(t.Sub(firstDay).Hours() / 24)
	return (pastDays+int(firstDay.Weekday())+1+6) / 7
}

// weekPattern alternates A (odd weeks) and B (even weeks) for biweekly
// rows.
func weekPattern(t time.Time) string {
	if weekNumber(t)%2 == 1 {
		return "A"
	}
	return "B"
}

// shouldRegister decides whether a routine row fires today: the issue
// day must match, monthly rows only fire in the first seven days of the
// month, biweekly rows only on their week parity, and anything
// registered within the last few days is skipped.
func shouldRegister(row sheets.RoutineRow, today time.Time) bool {
	if strings.TrimSpace(row.IssueDay) != kanjiWeekday(today) {
		return false
	}

	freq := strings.TrimSpace(row.Frequency)
	switch freq {
	case FrequencyWeekly:
	case FrequencyMonthly:
		if today.Day() > 7 {
			return false
		}
	case FrequencyBiweekly:
		if strings.TrimSpace(row.BiweeklyPattern) != weekPattern(today) {
			return false
		}
	default:
		return false
	}

	if last, ok := parseSheetDate(row.LastRegistered); ok {
		midnight := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
		if int(midnight.Sub(last).Hours()/24) < minRegistrationGapDays {
			return false
		}
	}
	return true
}

// routineDueDate computes the due date a materialized task gets: a week
// out for weekly rows, the same day next month for monthly rows, and
// the issue day itself for biweekly rows.
func routineDueDate(frequency string, today time.Time) (time.Time, bool) {
	switch strings.TrimSpace(frequency) {
	case FrequencyWeekly:
		return today.AddDate(0, 0, 7), true
	case FrequencyMonthly:
		return today.AddDate(0, 1, 0), true
	case FrequencyBiweekly:
		return today, true
	}
	return time.Time{}, false
}
