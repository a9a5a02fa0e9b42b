// Package sheets is the Google Sheets gateway: task rows, the project
// controller sheet, and the assignee roster all live in spreadsheets.
// Column positions are resolved from the header row at read time, so
// sheets may reorder or add columns freely.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/harunnryd/kakari/internal/config"
	kerrors "github.com/harunnryd/kakari/internal/errors"
	"github.com/harunnryd/kakari/internal/roster"
)

// Task sheet header names, matching the spreadsheet columns.
const (
	HeaderTaskType = "タスク種別"
	HeaderDueDate  = "期日"
	HeaderStatus   = "ステータス"
	HeaderSummary  = "概要"
	HeaderSlackID  = "SlackID"
	HeaderAssignee = "アサイン"
	HeaderEffort   = "想定工数"
	HeaderDetails  = "詳細"
)

const StatusCompleted = "完了"

const controllerStatusActive = "Active"

// Task is one row of a project's task sheet.
type Task struct {
	TaskType string
	DueDate  string
	Status   string
	Summary  string
	SlackID  string
	Assignee string
	Effort   string
	Details  string
	SheetID  string
}

// Project is one active row of the controller sheet.
type Project struct {
	Name      string
	SheetID   string
	ChannelID string
}

type Client struct {
	svc *sheets.Service
	cfg config.SheetsConfig
}

func New(ctx context.Context, cfg config.SheetsConfig) (*Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, option.WithScopes(sheets.SpreadsheetsScope))

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, kerrors.Wrap(err, "create sheets service")
	}
	return &Client{svc: svc, cfg: cfg}, nil
}

// ActiveProjects reads the controller sheet and returns the rows marked
// Active. Rows missing any of the three fields are skipped.
func (c *Client) ActiveProjects(ctx context.Context) ([]Project, error) {
	rows, err := c.readRange(ctx, c.cfg.ControllerSpreadsheet, c.cfg.ControllerSheet+"!A:D")
	if err != nil {
		return nil, kerrors.Wrap(err, "read controller sheet")
	}

	var projects []Project
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		name := cell(row, 0)
		sheetID := cell(row, 1)
		channelID := cell(row, 2)
		status := cell(row, 3)
		if status != controllerStatusActive || name == "" || sheetID == "" || channelID == "" {
			continue
		}
		projects = append(projects, Project{Name: name, SheetID: sheetID, ChannelID: channelID})
	}
	return projects, nil
}

// SheetIDForChannel resolves the active task spreadsheet bound to a
// Slack channel. Returns "" when the channel has no active project.
func (c *Client) SheetIDForChannel(ctx context.Context, channelID string) (string, error) {
	projects, err := c.ActiveProjects(ctx)
	if err != nil {
		return "", err
	}
	for _, p := range projects {
		if p.ChannelID == channelID {
			return p.SheetID, nil
		}
	}
	return "", nil
}

// Roster reads the member sheet of the controller spreadsheet. Column A
// is the full name, column B the Slack user ID.
func (c *Client) Roster(ctx context.Context) (*roster.Roster, error) {
	rows, err := c.readRange(ctx, c.cfg.ControllerSpreadsheet, c.cfg.RosterSheet+"!A:B")
	if err != nil {
		return nil, kerrors.Wrap(err, "read roster sheet")
	}

	var members []roster.Member
	for i, row := range rows {
		if i == 0 {
			continue
		}
		name := cell(row, 0)
		if name == "" {
			continue
		}
		members = append(members, roster.Member{FullName: name, SlackUserID: cell(row, 1)})
	}
	return roster.New(members), nil
}

// CreateTask appends a task row built from the record's Japanese field
// keys. Columns absent from the sheet header are dropped.
func (c *Client) CreateTask(ctx context.Context, spreadsheetID string, record map[string]string) error {
	header, err := c.header(ctx, spreadsheetID)
	if err != nil {
		return err
	}
	cols := columnIndexMap(header)
	if err := requireColumns(cols, HeaderSummary, HeaderDueDate, HeaderStatus, HeaderAssignee); err != nil {
		return err
	}

	row := make([]interface{}, len(header))
	for i := range row {
		row[i] = ""
	}
	for field, value := range record {
		if idx, ok := cols[field]; ok {
			row[idx] = value
		}
	}

	_, err = c.svc.Spreadsheets.Values.Append(spreadsheetID, c.cfg.TaskSheet+"!A:Z", &sheets.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return kerrors.Wrap(err, "append task row")
	}
	return nil
}

// PendingTasks returns every un-completed task row with a non-empty
// summary.
func (c *Client) PendingTasks(ctx context.Context, spreadsheetID string) ([]Task, error) {
	return c.pendingTasks(ctx, spreadsheetID, "")
}

// PendingTasksForUser filters pending tasks to one Slack user.
func (c *Client) PendingTasksForUser(ctx context.Context, spreadsheetID, slackUserID string) ([]Task, error) {
	return c.pendingTasks(ctx, spreadsheetID, slackUserID)
}

func (c *Client) pendingTasks(ctx context.Context, spreadsheetID, slackUserID string) ([]Task, error) {
	rows, err := c.readRange(ctx, spreadsheetID, c.cfg.TaskSheet+"!A:Z")
	if err != nil {
		return nil, kerrors.Wrap(err, "read task sheet")
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols := columnIndexMap(toStrings(rows[0]))
	if err := requireColumns(cols, HeaderSummary, HeaderDueDate, HeaderStatus); err != nil {
		return nil, err
	}

	var tasks []Task
	for _, row := range rows[1:] {
		t := taskFromRow(row, cols, spreadsheetID)
		if t.Summary == "" || t.Status == StatusCompleted {
			continue
		}
		if slackUserID != "" && t.SlackID != slackUserID {
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// FindOpenTask reports whether an un-completed task with the given
// summary exists. Matching uses NormalizeSummary on both sides.
func (c *Client) FindOpenTask(ctx context.Context, spreadsheetID, summary string) (bool, error) {
	_, _, found, err := c.locateOpenTask(ctx, spreadsheetID, summary)
	return found, err
}

// CompleteTask marks the first matching un-completed task row as 完了.
func (c *Client) CompleteTask(ctx context.Context, spreadsheetID, summary string) error {
	rowIndex, statusCol, found, err := c.locateOpenTask(ctx, spreadsheetID, summary)
	if err != nil {
		return err
	}
	if !found {
		return kerrors.NotFound(fmt.Sprintf("タスク「%s」が見つからないか、すでに完了しています。", summary))
	}

	// rowIndex and statusCol are zero-based; A1 notation is one-based.
	cellRef := fmt.Sprintf("%s!%s%d", c.cfg.TaskSheet, columnLetter(statusCol), rowIndex+1)
	_, err = c.svc.Spreadsheets.Values.Update(spreadsheetID, cellRef, &sheets.ValueRange{
		Values: [][]interface{}{{StatusCompleted}},
	}).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return kerrors.Wrap(err, "update task status")
	}
	return nil
}

func (c *Client) locateOpenTask(ctx context.Context, spreadsheetID, summary string) (rowIndex, statusCol int, found bool, err error) {
	rows, err := c.readRange(ctx, spreadsheetID, c.cfg.TaskSheet+"!A:Z")
	if err != nil {
		return 0, 0, false, kerrors.Wrap(err, "read task sheet")
	}
	if len(rows) == 0 {
		return 0, 0, false, nil
	}

	cols := columnIndexMap(toStrings(rows[0]))
	if err := requireColumns(cols, HeaderSummary, HeaderStatus); err != nil {
		return 0, 0, false, err
	}

	want := NormalizeSummary(summary)
	for i, row := range rows[1:] {
		got := NormalizeSummary(cell(row, cols[HeaderSummary]))
		status := cell(row, cols[HeaderStatus])
		if got == want && got != "" && status != StatusCompleted {
			return i + 1, cols[HeaderStatus], true, nil
		}
	}
	return 0, 0, false, nil
}

func (c *Client) header(ctx context.Context, spreadsheetID string) ([]string, error) {
	rows, err := c.readRange(ctx, spreadsheetID, c.cfg.TaskSheet+"!1:1")
	if err != nil {
		return nil, kerrors.Wrap(err, "read task sheet header")
	}
	if len(rows) == 0 {
		return nil, kerrors.NotFound("task sheet has no header row")
	}
	return toStrings(rows[0]), nil
}

func (c *Client) readRange(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// Routine sheet header names.
const (
	HeaderFrequency       = "登録頻度"
	HeaderIssueDay        = "発行曜日"
	HeaderLastRegistered  = "最終登録日"
	HeaderBiweeklyPattern = "隔週パターン"
)

// RoutineRow is one recurring-task definition from a project's routine
// sheet. LastRegisteredCell is the A1 reference of the row's 最終登録日
// cell; it is empty when the sheet has no such column, in which case
// the registration date cannot be recorded.
type RoutineRow struct {
	Summary            string
	Details            string
	Frequency          string
	IssueDay           string
	Assignee           string
	LastRegistered     string
	BiweeklyPattern    string
	LastRegisteredCell string
}

// RoutineRows reads the recurring-task definitions of a project sheet.
// A missing routine sheet is not an error; projects without recurring
// tasks simply have none. Any other read failure is returned so the
// caller can log it instead of quietly skipping the project.
func (c *Client) RoutineRows(ctx context.Context, spreadsheetID string) ([]RoutineRow, error) {
	rows, err := c.readRange(ctx, spreadsheetID, c.cfg.RoutineSheet+"!A:Z")
	if err != nil {
		if isMissingSheet(err) {
			return nil, nil
		}
		return nil, kerrors.Wrap(err, "read routine sheet")
	}
	if len(rows) <= 1 {
		return nil, nil
	}

	cols := columnIndexMap(toStrings(rows[0]))
	if err := requireColumns(cols, HeaderSummary, HeaderFrequency, HeaderIssueDay, HeaderAssignee); err != nil {
		return nil, err
	}

	get := func(row []interface{}, name string) string {
		idx, ok := cols[name]
		if !ok {
			return ""
		}
		return cell(row, idx)
	}

	out := make([]RoutineRow, 0, len(rows)-1)
	for i, row := range rows[1:] {
		r := RoutineRow{
			Summary:         get(row, HeaderSummary),
			Details:         get(row, HeaderDetails),
			Frequency:       get(row, HeaderFrequency),
			IssueDay:        get(row, HeaderIssueDay),
			Assignee:        get(row, HeaderAssignee),
			LastRegistered:  get(row, HeaderLastRegistered),
			BiweeklyPattern: get(row, HeaderBiweeklyPattern),
		}
		if idx, ok := cols[HeaderLastRegistered]; ok {
			r.LastRegisteredCell = fmt.Sprintf("%s!%s%d", c.cfg.RoutineSheet, columnLetter(idx), i+2)
		}
		if r.Summary == "" {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// isMissingSheet reports whether the API rejected a read because the
// requested sheet does not exist. An unknown sheet name in the range
// comes back as a 400 ("Unable to parse range"), a missing spreadsheet
// as a 404.
func isMissingSheet(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusBadRequest || apiErr.Code == http.StatusNotFound
}

// MarkRoutineRegistered records the registration date in the routine
// row's 最終登録日 cell.
func (c *Client) MarkRoutineRegistered(ctx context.Context, spreadsheetID, cellRef, date string) error {
	if cellRef == "" {
		return nil
	}
	_, err := c.svc.Spreadsheets.Values.Update(spreadsheetID, cellRef, &sheets.ValueRange{
		Values: [][]interface{}{{date}},
	}).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return kerrors.Wrap(err, "update routine registration date")
	}
	return nil
}

// TasksSheetURL links to a project's task sheet.
func TasksSheetURL(spreadsheetID string) string {
	return "https://docs.google.com/spreadsheets/d/" + spreadsheetID + "/edit"
}

// NormalizeSummary strips Japanese quote brackets and colons before an
// exact compare, so 「レポート作成」 matches レポート作成.
func NormalizeSummary(s string) string {
	s = strings.NewReplacer("「", "", "」", "", ":", "", "：", "").Replace(s)
	return strings.TrimSpace(s)
}

// columnIndexMap maps header names to zero-based column indexes.
func columnIndexMap(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h != "" {
			cols[h] = i
		}
	}
	return cols
}

func requireColumns(cols map[string]int, names ...string) error {
	var missing []string
	for _, n := range names {
		if _, ok := cols[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return kerrors.NotFound("必要な列が見つかりません: " + strings.Join(missing, ", "))
	}
	return nil
}

func taskFromRow(row []interface{}, cols map[string]int, sheetID string) Task {
	get := func(name string) string {
		idx, ok := cols[name]
		if !ok {
			return ""
		}
		return cell(row, idx)
	}
	return Task{
		TaskType: get(HeaderTaskType),
		DueDate:  get(HeaderDueDate),
		Status:   get(HeaderStatus),
		Summary:  get(HeaderSummary),
		SlackID:  get(HeaderSlackID),
		Assignee: get(HeaderAssignee),
		Effort:   get(HeaderEffort),
		Details:  get(HeaderDetails),
		SheetID:  sheetID,
	}
}

func toStrings(row []interface{}) []string {
	out := make([]string, len(row))
	for i := range row {
		out[i] = cell(row, i)
	}
	return out
}

func cell(row []interface{}, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", row[idx]))
}

// columnLetter converts a zero-based column index to A1 letters.
func columnLetter(idx int) string {
	letters := ""
	for idx >= 0 {
		letters = string(rune('A'+idx%26)) + letters
		idx = idx/26 - 1
	}
	return letters
}
