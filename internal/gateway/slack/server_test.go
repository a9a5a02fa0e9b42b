package slack

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/slack-go/slack/slackevents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/harunnryd/kakari/internal/errors"
)

type fakeDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
	fail error
}

func (f *fakeDeduper) CheckAndMark(key string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return false, f.fail
	}
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[key] {
		return true, nil
	}
	f.seen[key] = true
	return false, nil
}

func testServer(handle Handler) *Server {
	return NewServer("secret", "UBOT", &fakeDeduper{}, handle, slog.Default())
}

func messageEvent(ev *slackevents.MessageEvent) slackevents.EventsAPIEvent {
	return slackevents.EventsAPIEvent{
		Type:       slackevents.CallbackEvent,
		InnerEvent: slackevents.EventsAPIInnerEvent{Data: ev},
	}
}

func TestInboundMessageFromUser(t *testing.T) {
	s := testServer(nil)

	msg, ok := s.inboundMessage(messageEvent(&slackevents.MessageEvent{
		Channel:         "C01",
		User:            "U01",
		Text:            "タスクを作成して",
		TimeStamp:       "200.2",
		ThreadTimeStamp: "100.1",
	}))
	require.True(t, ok)
	assert.Equal(t, Inbound{Channel: "C01", UserID: "U01", Text: "タスクを作成して", TS: "200.2", ThreadTS: "100.1"}, msg)
}

func TestInboundMessageFiltersBots(t *testing.T) {
	s := testServer(nil)

	_, ok := s.inboundMessage(messageEvent(&slackevents.MessageEvent{
		Channel: "C01", User: "U01", BotID: "B01", Text: "bot echo", TimeStamp: "1.1",
	}))
	assert.False(t, ok, "bot messages must be ignored")

	_, ok = s.inboundMessage(messageEvent(&slackevents.MessageEvent{
		Channel: "C01", User: "UBOT", Text: "self", TimeStamp: "1.1",
	}))
	assert.False(t, ok, "own messages must be ignored")

	_, ok = s.inboundMessage(messageEvent(&slackevents.MessageEvent{
		Channel: "C01", User: "U01", SubType: "message_changed", Text: "edited", TimeStamp: "1.1",
	}))
	assert.False(t, ok, "message subtypes must be ignored")
}

func TestHandleCallbackDeduplicates(t *testing.T) {
	var mu sync.Mutex
	handled := 0
	done := make(chan struct{}, 2)

	s := testServer(func(ctx context.Context, msg Inbound) {
		mu.Lock()
		handled++
		mu.Unlock()
		done <- struct{}{}
	})

	body := []byte(`{"event_id":"Ev123"}`)
	event := messageEvent(&slackevents.MessageEvent{
		Channel: "C01", User: "U01", Text: "hello", TimeStamp: "1.1",
	})

	s.handleCallback(body, event)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler not invoked")
	}

	// The retried delivery carries the same event_id and is dropped.
	s.handleCallback(body, event)
	select {
	case <-done:
		t.Fatal("duplicate delivery reached the handler")
	case <-time.After(100 * time.Millisecond):
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, handled)
}

func TestClaimDeliveryDetectsReplay(t *testing.T) {
	s := testServer(nil)

	require.NoError(t, s.claimDelivery("Ev123"))

	err := s.claimDelivery("Ev123")
	require.Error(t, err)
	assert.True(t, errors.Is(err, kerrors.ErrDuplicateEvent))

	assert.NoError(t, s.claimDelivery("Ev456"), "a fresh event id is not a replay")
}

func TestClaimDeliveryPropagatesStoreFailure(t *testing.T) {
	s := NewServer("secret", "UBOT", &fakeDeduper{fail: errors.New("disk full")}, nil, slog.Default())

	err := s.claimDelivery("Ev123")
	require.Error(t, err)
	assert.False(t, errors.Is(err, kerrors.ErrDuplicateEvent))
}
