package anthropic

import (
	"context"
	"fmt"
	"os"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type Provider struct {
	client anthropic.Client
	model  string
}

func New(apiKey, model string) *Provider {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &Provider{client: anthropic.NewClient(option.WithAPIKey(apiKey)), model: model}
}

func (p *Provider) Name() string {
	return "anthropic"
}

// Complete ignores jsonMode: the API has no JSON response mode, so the
// prompt's output-format instructions plus the caller's lenient JSON
// extraction carry that contract instead.
func (p *Provider) Complete(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}

	var out string
	for _, block := range msg.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			out += b.Text
		}
	}
	if out == "" {
		return "", fmt.Errorf("anthropic returned an empty reply")
	}
	return out, nil
}
