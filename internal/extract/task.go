package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	kerrors "github.com/harunnryd/kakari/internal/errors"
	"github.com/harunnryd/kakari/internal/oracle"
	"github.com/harunnryd/kakari/internal/roster"
	"github.com/harunnryd/kakari/internal/thread"
)

// Task record field names. The sheet columns are Japanese, so the
// record keys stay Japanese end to end.
const (
	TaskFieldSummary  = "概要"
	TaskFieldDueDate  = "期日"
	TaskFieldAssignee = "アサイン"
	TaskFieldStatus   = "ステータス"
)

type TaskExtractor struct {
	oracle oracle.Oracle
	roster *roster.Roster
}

func NewTaskExtractor(o oracle.Oracle, r *roster.Roster) *TaskExtractor {
	return &TaskExtractor{oracle: o, roster: r}
}

// Extract parses the latest message into task fields and merges them
// over the existing partial record. Oracle and parse failures are
// returned to the caller: a failed extraction must block the flow
// rather than proceed on stale data.
func (e *TaskExtractor) Extract(ctx context.Context, text string, existing map[string]string, history []thread.Message, now time.Time) (map[string]string, error) {
	reply, err := e.oracle.Call(ctx, e.buildPrompt(text, history, now), true)
	if err != nil {
		return nil, kerrors.Wrap(err, "task extraction")
	}

	parsed, err := oracle.ParseFields(reply)
	if err != nil {
		return nil, kerrors.Wrap(err, "task extraction")
	}
	return Merge(existing, parsed), nil
}

func (e *TaskExtractor) buildPrompt(text string, history []thread.Message, now time.Time) string {
	return fmt.Sprintf(`以下の会話履歴と最新のメッセージから、タスク情報を抽出してください。

# 会話履歴
%s

# 最新のメッセージ
%s

# 抽出すべき情報
- タスクの概要
- 期日（YYYY-MM-DD形式）
- 担当者（フルネーム）

# 出力形式
以下のJSON形式で出力してください：
{
  "概要": "タスクの概要",
  "期日": "期日（YYYY-MM-DD形式）",
  "アサイン": "担当者のフルネーム",
  "ステータス": "未着手"
}

# アサイン（担当者）のフルネーム一覧
%s

# 注意事項
- アサインが指定されていない場合は、メッセージから担当者を特定してください
- タスクの概要が不明確な場合は、質問を返してください
- 担当者は必ず上記の一覧から選択してください
%s
`, thread.RenderHistory(history), text, strings.Join(e.roster.Names(), "\n"), dateContext(now))
}
