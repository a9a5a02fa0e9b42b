// Package validate checks completed slot-filling records before they
// are proposed for confirmation. Validation rules live in the prompts,
// not in code: the oracle is the sole source of validity, keeping the
// rules centralized in natural language.
package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	kerrors "github.com/harunnryd/kakari/internal/errors"
	"github.com/harunnryd/kakari/internal/oracle"
	"github.com/harunnryd/kakari/internal/roster"
)

// Result is a structured verdict, not an error: invalid records are an
// expected conversational state.
type Result struct {
	IsValid     bool     `json:"isValid"`
	Errors      []string `json:"errors"`
	Suggestions []string `json:"suggestions"`
}

type TaskValidator struct {
	oracle oracle.Oracle
	roster *roster.Roster
}

func NewTaskValidator(o oracle.Oracle, r *roster.Roster) *TaskValidator {
	return &TaskValidator{oracle: o, roster: r}
}

// Validate checks a task record. An oracle failure propagates: a
// thrown validation must never silently mark a record valid.
func (v *TaskValidator) Validate(ctx context.Context, record map[string]string) (Result, error) {
	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return Result{}, kerrors.Wrap(err, "marshal task record")
	}

	prompt := fmt.Sprintf(`以下のタスク情報を検証してください。

# タスク情報
%s

アサイン（担当者）のフルネーム一覧
%s

# 検証項目
1. タスクの概要が明確か
2. 期日が適切な形式（YYYY-MM-DD）で指定されているか
3. アサインが上記の一覧から正しく選択されているか
4. ステータスが適切か

# 出力形式
以下のJSON形式で出力してください：
{
  "isValid": true/false,
  "errors": ["エラーメッセージ1", "エラーメッセージ2", ...],
  "suggestions": ["改善提案1", "改善提案2", ...]
}

# 注意事項
- エラーがある場合は、具体的な改善方法を提案してください
- 担当者は必ず上記の一覧から選択してください
- アサイン先は、必ず次の候補の中から、「表記揺れがないように」設定して下さい。
`, payload, strings.Join(v.roster.Names(), "\n"))

	return callValidation(ctx, v.oracle, prompt, "task validation")
}

type EventValidator struct {
	oracle oracle.Oracle
}

func NewEventValidator(o oracle.Oracle) *EventValidator {
	return &EventValidator{oracle: o}
}

// Validate checks a calendar-event record.
func (v *EventValidator) Validate(ctx context.Context, record map[string]string) (Result, error) {
	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return Result{}, kerrors.Wrap(err, "marshal event record")
	}

	prompt := fmt.Sprintf(`以下のカレンダーイベント情報を検証してください。

# イベント情報
%s

# 検証項目
1. イベントのタイトルが明確か
2. 開始日時が適切な形式（YYYY-MM-DD HH:MM）で指定されているか
3. 時間（duration）が適切な値（分単位）で指定されているか
4. 招待するメールアドレスが有効な形式か（指定されている場合）

# 出力形式
以下のJSON形式で出力してください：
{
  "isValid": true/false,
  "errors": ["エラーメッセージ1", "エラーメッセージ2", ...],
  "suggestions": ["改善提案1", "改善提案2", ...]
}

# 注意事項
- エラーがある場合は、具体的な改善方法を提案してください
- 開始日時は現在時刻より未来である必要があります
- 時間は15分以上240分以下の範囲で指定してください
`, payload)

	return callValidation(ctx, v.oracle, prompt, "event validation")
}

func callValidation(ctx context.Context, o oracle.Oracle, prompt, label string) (Result, error) {
	reply, err := o.Call(ctx, prompt, true)
	if err != nil {
		return Result{}, kerrors.Wrap(err, label)
	}

	var result Result
	if err := oracle.ParseObject(reply, &result); err != nil {
		return Result{}, kerrors.Wrap(err, label)
	}
	return result, nil
}
