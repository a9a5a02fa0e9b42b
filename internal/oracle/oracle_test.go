package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/harunnryd/kakari/internal/errors"
)

type stubProvider struct {
	reply string
	err   error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(_ context.Context, _ string, _ bool) (string, error) {
	return s.reply, s.err
}

func TestCallTagsProviderFailure(t *testing.T) {
	c := &Client{provider: &stubProvider{err: errors.New("upstream 500")}, timeout: time.Second}

	_, err := c.Call(context.Background(), "prompt", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, kerrors.ErrOracle))
	assert.Contains(t, err.Error(), "upstream 500")
}

func TestCallTagsTimeoutAsTransient(t *testing.T) {
	c := &Client{provider: &stubProvider{err: context.DeadlineExceeded}, timeout: time.Second}

	_, err := c.Call(context.Background(), "prompt", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, kerrors.ErrTransient))
	assert.False(t, errors.Is(err, kerrors.ErrOracle))
}

func TestCallReturnsReply(t *testing.T) {
	c := &Client{provider: &stubProvider{reply: "了解です"}, timeout: time.Second}

	reply, err := c.Call(context.Background(), "prompt", true)
	require.NoError(t, err)
	assert.Equal(t, "了解です", reply)
}
