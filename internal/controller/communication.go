package controller

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"

	slackgw "github.com/harunnryd/kakari/internal/gateway/slack"
	"github.com/harunnryd/kakari/internal/oracle"
	"github.com/harunnryd/kakari/internal/thread"
)

// communication is the free-form conversation flow. The model answers
// with the thread history as context and may append one clarifying
// question. Threads are capped so a forgotten conversation does not
// accrete context forever.
func (c *Controller) communication(ctx context.Context, msg slackgw.Inbound) {
	threadKey := msg.ThreadKey()
	c.logMessage(msg)

	history := c.threads.Messages(threadKey)
	limit := c.cfg.HistoryLimit
	if limit <= 0 {
		limit = 30
	}
	if len(history) > limit {
		c.post(ctx, msg, "会話が長くなりすぎています", []slackapi.Block{
			slackgw.Section("⚠️ *会話が長くなりすぎています*"),
			slackgw.Section("このスレッドでの会話を終了します。続きは新しいスレッドでお願いします。"),
		})
		return
	}

	prompt := fmt.Sprintf(`あなたはSlack上で動く業務アシスタントです。以下の会話履歴を踏まえて、最新のメッセージに日本語で応答してください。

# 会話履歴
%s

# 最新のメッセージ
%s

# 出力形式
以下のJSON形式で出力してください：
{
  "response": "ユーザーへの応答",
  "shouldAskQuestion": true/false,
  "question": "確認したいことがある場合の質問（ない場合は空文字）"
}
`, thread.RenderHistory(history), msg.Text)

	reply, err := c.oracle.Call(ctx, prompt, true)
	if err != nil {
		c.log.Error("conversation oracle call", "thread", threadKey, "error", err)
		c.post(ctx, msg, "応答の生成中にエラーが発生しました。少し待ってからもう一度お願いします。", nil)
		return
	}

	var parsed struct {
		Response          string `json:"response"`
		ShouldAskQuestion bool   `json:"shouldAskQuestion"`
		Question          string `json:"question"`
	}
	if err := oracle.ParseObject(reply, &parsed); err != nil {
		c.log.Error("parse conversation reply", "thread", threadKey, "error", err)
		c.post(ctx, msg, "応答の生成中にエラーが発生しました。少し待ってからもう一度お願いします。", nil)
		return
	}

	text := parsed.Response
	if parsed.ShouldAskQuestion && parsed.Question != "" {
		text += fmt.Sprintf("\n\n*質問：* %s", parsed.Question)
	}

	botTS := fmt.Sprintf("%d.000000", c.now().Unix())
	if err := c.threads.LogMessage(threadKey, botTS, thread.BotSpeakerID, text); err != nil {
		c.log.Error("log bot reply", "thread", threadKey, "error", err)
	}
	c.post(ctx, msg, text, nil)
}
