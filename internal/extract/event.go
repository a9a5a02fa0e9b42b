package extract

import (
	"context"
	"fmt"
	"time"

	kerrors "github.com/harunnryd/kakari/internal/errors"
	"github.com/harunnryd/kakari/internal/oracle"
	"github.com/harunnryd/kakari/internal/thread"
)

// Event record field names.
const (
	EventFieldTitle    = "title"
	EventFieldStart    = "startDateTime"
	EventFieldDuration = "duration"
	EventFieldGuest    = "guestEmail"
)

// DefaultEventDuration is applied when no duration is mentioned.
const DefaultEventDuration = 30

type EventExtractor struct {
	oracle oracle.Oracle
}

func NewEventExtractor(o oracle.Oracle) *EventExtractor {
	return &EventExtractor{oracle: o}
}

// Extract parses the latest message into calendar-event fields and
// merges them over the existing partial record.
func (e *EventExtractor) Extract(ctx context.Context, text string, existing map[string]string, history []thread.Message, now time.Time) (map[string]string, error) {
	reply, err := e.oracle.Call(ctx, e.buildPrompt(text, history, now), true)
	if err != nil {
		return nil, kerrors.Wrap(err, "event extraction")
	}

	parsed, err := oracle.ParseFields(reply)
	if err != nil {
		return nil, kerrors.Wrap(err, "event extraction")
	}
	return Merge(existing, parsed), nil
}

func (e *EventExtractor) buildPrompt(text string, history []thread.Message, now time.Time) string {
	return fmt.Sprintf(`以下の会話履歴と最新のメッセージから、カレンダーイベント情報を抽出してください。

# 会話履歴
%s

# 最新のメッセージ
%s

# 抽出すべき情報
- イベントのタイトル（予定名）
- 開始日時（YYYY-MM-DD HH:MM形式）
- 時間（分単位、デフォルト30分）
- 招待するメールアドレス（任意）

# 出力形式
以下のJSON形式で出力してください：
{
  "title": "イベントのタイトル",
  "startDateTime": "開始日時（YYYY-MM-DD HH:MM形式）",
  "duration": 時間（分単位、数値）,
  "guestEmail": "招待するメールアドレス（任意）"
}

# 注意事項
- 開始日時が不明確な場合は、質問を返してください
- 時間が指定されていない場合は30分をデフォルトとしてください
- 1時間の指定がある場合は60分としてください
- 招待するメールアドレスが指定されていない場合は空文字列としてください
- 日付が指定されていない場合は今日の日付を使用してください
%s
`, thread.RenderHistory(history), text, dateContext(now))
}
