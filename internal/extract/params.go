package extract

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	kerrors "github.com/harunnryd/kakari/internal/errors"
	"github.com/harunnryd/kakari/internal/oracle"
	"github.com/harunnryd/kakari/internal/roster"
)

// Params bundles the single-shot extractors the read-only flows use.
type Params struct {
	oracle oracle.Oracle
	roster *roster.Roster
}

func NewParams(o oracle.Oracle, r *roster.Roster) *Params {
	return &Params{oracle: o, roster: r}
}

var mentionPattern = regexp.MustCompile(`<@(.*?)>`)

// TargetUser resolves which roster member's tasks the message asks
// about. Failures degrade to not-found: the flow re-prompts the user
// instead of failing.
func (p *Params) TargetUser(ctx context.Context, message string) (string, bool) {
	var pairs strings.Builder
	for _, m := range p.roster.Pairs() {
		fmt.Fprintf(&pairs, "%s\t%s\n", m.FullName, m.SlackUserID)
	}

	prompt := fmt.Sprintf(`以下のメッセージから、タスク一覧を取得したい人物のSlackユーザーIDを抽出してください。
SlackユーザーIDは通常"U"で始まり、その後に英数字が続く形式です（例: U0123ABCDE）。
メンション形式（例: <@U0123ABCDE>）で記述されている場合は、ID部分のみを抽出してください。
メッセージ内に複数のユーザーIDが含まれる場合は、最も妥当と思われるものを1つだけ抽出してください。

#人物名とSlackUserIDとの対応表
%s
#メッセージ
"""
%s
"""

抽出したSlackユーザーIDをJSON形式で返してください。見つからない場合は "found" を false にしてください。
{
  "slackUserId": "抽出されたSlackID" または null,
  "found": true または false
}
`, pairs.String(), message)

	reply, err := p.oracle.Call(ctx, prompt, true)
	if err != nil {
		slog.Warn("Target user extraction failed", "error", err)
		return "", false
	}

	var parsed struct {
		SlackUserID string `json:"slackUserId"`
		Found       bool   `json:"found"`
	}
	if err := oracle.ParseObject(reply, &parsed); err != nil {
		slog.Warn("Target user extraction reply unparsable", "error", err)
		return "", false
	}
	if !parsed.Found || parsed.SlackUserID == "" {
		return "", false
	}

	// The model sometimes echoes the mention wrapper back.
	if m := mentionPattern.FindStringSubmatch(parsed.SlackUserID); m != nil {
		parsed.SlackUserID = m[1]
	}
	return parsed.SlackUserID, true
}

// TaskSummary pulls the summary of the task the user wants completed.
func (p *Params) TaskSummary(ctx context.Context, message string) (string, bool) {
	prompt := fmt.Sprintf(`以下のメッセージから、完了させたいタスクの概要を抽出してください。
メッセージは「done」や「完了」「yes」などのコマンドを含む可能性がありますが、それらは除外してタスクの概要のみを抽出してください。

# メッセージ
%s

# 出力形式
{
  "taskSummary": "抽出されたタスク概要",
  "found": true/false
}
`, message)

	reply, err := p.oracle.Call(ctx, prompt, true)
	if err != nil {
		slog.Warn("Task summary extraction failed", "error", err)
		return "", false
	}

	var parsed struct {
		TaskSummary string `json:"taskSummary"`
		Found       bool   `json:"found"`
	}
	if err := oracle.ParseObject(reply, &parsed); err != nil {
		slog.Warn("Task summary extraction reply unparsable", "error", err)
		return "", false
	}
	if !parsed.Found || parsed.TaskSummary == "" {
		return "", false
	}
	return parsed.TaskSummary, true
}

// CalendarQuery is what the availability flow needs from a message.
type CalendarQuery struct {
	Emails               []string `json:"emails"`
	Days                 int      `json:"days"`
	StartTime            string   `json:"startTime"`
	EndTime              string   `json:"endTime"`
	StartDate            string   `json:"startDate"`
	StartDateDescription string   `json:"startDateDescription"`
}

// CalendarParams extracts the availability-query parameters, applying
// the documented defaults (3 days, 9:00-18:00) when unspecified.
func (p *Params) CalendarParams(ctx context.Context, message string, now time.Time) (CalendarQuery, error) {
	prompt := fmt.Sprintf(`以下のメッセージから、カレンダーの空き枠を確認するために必要な情報を抽出してください。

# 入力メッセージ
%s

# 抽出すべき情報
- メールアドレス（複数の場合も含む）
- 確認する日数（指定がない場合は3日）
- 時間範囲（指定がない場合は9:00-18:00）
- 開始日（「来週の火曜日」「明日」「1月20日」など、指定がない場合は今日から）

# 出力形式
以下のJSON形式で出力してください：
{
  "found": true/false,
  "emails": ["メールアドレス1", "メールアドレス2", ...],
  "days": 日数（数値）,
  "startTime": "開始時間（HH:MM形式）",
  "endTime": "終了時間（HH:MM形式）",
  "startDate": "開始日（YYYY-MM-DD形式、指定がない場合は空文字列）",
  "startDateDescription": "開始日の説明（「来週の火曜日」「明日」など、指定がない場合は空文字列）"
}

# 注意事項
- 日数や時間範囲が指定されていない場合は、デフォルト値を設定してください
- 開始日が相対的な表現の場合は、startDateDescriptionに記録し、startDateは可能であれば具体的な日付（YYYY-MM-DD形式）に変換してください
- 開始日が指定されていない場合は、startDateとstartDateDescriptionは空文字列にしてください
%s
`, message, dateContext(now))

	reply, err := p.oracle.Call(ctx, prompt, true)
	if err != nil {
		return CalendarQuery{}, kerrors.Wrap(err, "calendar query extraction")
	}

	var parsed CalendarQuery
	if err := oracle.ParseObject(reply, &parsed); err != nil {
		return CalendarQuery{}, kerrors.Wrap(err, "calendar query extraction")
	}

	if parsed.Days <= 0 {
		parsed.Days = 3
	}
	if parsed.StartTime == "" {
		parsed.StartTime = "09:00"
	}
	if parsed.EndTime == "" {
		parsed.EndTime = "18:00"
	}
	return parsed, nil
}
