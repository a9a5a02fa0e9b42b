// Package oracle wraps the language-model completion service behind a
// single interface so classifiers, extractors, and validators can be
// tested against a scripted fake.
package oracle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/harunnryd/kakari/internal/config"
	kerrors "github.com/harunnryd/kakari/internal/errors"
	"github.com/harunnryd/kakari/internal/oracle/providers/anthropic"
	"github.com/harunnryd/kakari/internal/oracle/providers/gemini"
	"github.com/harunnryd/kakari/internal/oracle/providers/openai"
	"github.com/harunnryd/kakari/internal/rowstore"
)

// Oracle is the black-box prompt-in, text-out transformer. When
// jsonMode is true the provider is asked for a JSON response body;
// callers still run the reply through ExtractJSON because models wrap
// JSON in prose.
type Oracle interface {
	Call(ctx context.Context, prompt string, jsonMode bool) (string, error)
}

// Provider is implemented by the per-vendor packages.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string, jsonMode bool) (string, error)
}

const logCollection = "oracle_log"

// Client applies the request timeout and records every call in the row
// store, as the reference deployment logged prompts for operator review.
type Client struct {
	provider Provider
	timeout  time.Duration
	store    *rowstore.Store
}

func New(cfg config.OracleConfig, store *rowstore.Store) (*Client, error) {
	timeout, err := config.DurationOrDefault(cfg.RequestTimeout, config.DefaultOracleRequestTimeout)
	if err != nil {
		return nil, err
	}

	var provider Provider
	switch cfg.Provider {
	case "", "gemini":
		provider, err = gemini.New(cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, kerrors.Wrap(err, "init gemini provider")
		}
	case "openai":
		provider = openai.New(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case "anthropic":
		provider = anthropic.New(cfg.APIKey, cfg.Model)
	default:
		return nil, kerrors.Configuration("unknown oracle provider: " + cfg.Provider)
	}

	return &Client{provider: provider, timeout: timeout, store: store}, nil
}

func (c *Client) Call(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	reply, err := c.provider.Complete(ctx, prompt, jsonMode)
	elapsed := time.Since(started)

	if err != nil {
		c.log(prompt, "error: "+err.Error(), jsonMode, elapsed)
		slog.Warn("Oracle call failed", "provider", c.provider.Name(), "error", err, "elapsed", elapsed)
		if errors.Is(err, context.DeadlineExceeded) {
			return "", kerrors.WrapAs(kerrors.ErrTransient, err, "oracle call timed out")
		}
		return "", kerrors.WrapAs(kerrors.ErrOracle, err, "oracle call")
	}

	c.log(prompt, reply, jsonMode, elapsed)
	slog.Debug("Oracle call completed", "provider", c.provider.Name(), "elapsed", elapsed, "reply_len", len(reply))
	return reply, nil
}

func (c *Client) log(prompt, reply string, jsonMode bool, elapsed time.Duration) {
	if c.store == nil {
		return
	}
	mode := "text"
	if jsonMode {
		mode = "json"
	}
	if err := c.store.AppendLog(logCollection, rowstore.Record{
		"prompt":  prompt,
		"reply":   reply,
		"mode":    mode,
		"elapsed": elapsed.String(),
	}); err != nil {
		slog.Warn("Failed to log oracle call", "error", err)
	}
}
