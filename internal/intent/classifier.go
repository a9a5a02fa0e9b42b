// Package intent classifies what a conversation thread is trying to
// accomplish, using the oracle against a fixed six-way taxonomy.
package intent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harunnryd/kakari/internal/oracle"
	"github.com/harunnryd/kakari/internal/thread"
)

type Result struct {
	Type       thread.ProcessType
	Confidence float64
}

type Classifier struct {
	oracle    oracle.Oracle
	threshold float64
}

func NewClassifier(o oracle.Oracle, threshold float64) *Classifier {
	return &Classifier{oracle: o, threshold: threshold}
}

// Decisive reports whether the result clears the confidence gate.
// The gate is strict: exactly-threshold confidence is not decisive.
func (c *Classifier) Decisive(r Result) bool {
	return r.Confidence > c.threshold
}

// Classify determines the process type for the latest message. It
// never returns an error: any oracle or parse failure falls open to
// communication with zero confidence, which the controller treats as
// "ask the user".
func (c *Classifier) Classify(ctx context.Context, latestText string, history []thread.Message) Result {
	failOpen := Result{Type: thread.ProcessCommunication, Confidence: 0.0}

	reply, err := c.oracle.Call(ctx, buildPrompt(latestText, history), true)
	if err != nil {
		slog.Warn("Intent classification failed, falling back to communication", "error", err)
		return failOpen
	}

	var parsed struct {
		ProcessType string  `json:"processType"`
		Confidence  float64 `json:"confidence"`
	}
	if err := oracle.ParseObject(reply, &parsed); err != nil {
		slog.Warn("Intent classification reply unparsable", "error", err)
		return failOpen
	}

	pt := thread.ProcessType(parsed.ProcessType)
	if !pt.Valid() {
		slog.Warn("Intent classification returned unknown type", "type", parsed.ProcessType)
		return failOpen
	}
	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	}
	if parsed.Confidence > 1 {
		parsed.Confidence = 1
	}
	return Result{Type: pt, Confidence: parsed.Confidence}
}

func buildPrompt(latestText string, history []thread.Message) string {
	return fmt.Sprintf(`以下のメッセージと会話履歴から、ユーザーが実行したい処理の種類を判定してください。

# 入力メッセージ
%s

# 会話履歴
%s

# 判定対象の処理種類
- getTasks: タスク一覧の取得（例：mytask、タスク一覧を表示して）
- completeTask: タスクの完了（例：done、完了、タスクを完了に）
- createTask: タスクの作成（例：create、タスクを作成、新規タスク）
- getCalendar: カレンダーの空き枠確認（例：calendar、カレンダー、空き時間、予定）
- createEvent: カレンダー予約の作成（例：event、予約、予定を作成、ミーティング、会議）
- communication: 通常の会話（上記以外の会話）

# 出力形式
以下のJSON形式で出力してください：
{
  "processType": "判定された処理種類",
  "confidence": 0.0-1.0の確信度
}

# 注意事項
- 確信度は0.0から1.0の間で、1.0が最も確実
- 確信度が0.7未満の場合は、ユーザーに確認が必要
- カレンダー関連のメッセージは、メールアドレスや予定、空き時間などのキーワードを含む場合にgetCalendarとして判定
- 予約作成関連のメッセージは、予定名、時間、会議などのキーワードを含む場合にcreateEventとして判定
`, latestText, thread.RenderHistory(history))
}
