package thread

import (
	"testing"

	"github.com/harunnryd/kakari/internal/rowstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	rows, err := rowstore.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { rows.Close() })
	return NewStore(rows)
}

func TestProcessTypeLifecycle(t *testing.T) {
	s := newTestStore(t)

	_, ok := s.ProcessType("t1")
	assert.False(t, ok)

	require.NoError(t, s.SetProcessType("t1", ProcessCreateTask))
	pt, ok := s.ProcessType("t1")
	require.True(t, ok)
	assert.Equal(t, ProcessCreateTask, pt)

	require.NoError(t, s.ResetProcessType("t1"))
	_, ok = s.ProcessType("t1")
	assert.False(t, ok, "reset thread should read as unclassified")
}

func TestSetProcessTypeRejectsUnknown(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.SetProcessType("t1", ProcessType("deleteEverything")))
}

func TestMessagesChronological(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.LogMessage("t1", "1717000000.000200", "U01", "second"))
	require.NoError(t, s.LogMessage("t1", "1717000000.000100", "U01", "first"))
	require.NoError(t, s.LogMessage("t2", "1717000000.000300", "U02", "elsewhere"))

	msgs := s.Messages("t1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[1].Text)
}

func TestMessagesOrderIgnoresTimestampWidth(t *testing.T) {
	s := newTestStore(t)

	// A shorter digit count must not sort a later message first.
	require.NoError(t, s.LogMessage("t1", "999.500000", "U01", "first"))
	require.NoError(t, s.LogMessage("t1", "1000.000000", "BOT", "second"))
	require.NoError(t, s.LogMessage("t1", "1000.25", "U01", "third"))

	msgs := s.Messages("t1")
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{msgs[0].Text, msgs[1].Text, msgs[2].Text})
}

func TestTsBefore(t *testing.T) {
	assert.True(t, tsBefore("999.5", "1000.0"))
	assert.False(t, tsBefore("1000.0", "999.5"))
	assert.False(t, tsBefore("1000.0", "1000.0"))
	// Unparsable values fall back to string order.
	assert.True(t, tsBefore("abc", "abd"))
}

func TestPartialRecordRoundTrip(t *testing.T) {
	s := newTestStore(t)

	_, ok := s.TaskRecord("t1")
	assert.False(t, ok)

	fields := map[string]string{"概要": "X", "期日": "2025-06-01"}
	require.NoError(t, s.SaveTaskRecord("t1", fields))

	got, ok := s.TaskRecord("t1")
	require.True(t, ok)
	assert.Equal(t, fields, got)

	// Task and event records are independent slots.
	_, ok = s.EventRecord("t1")
	assert.False(t, ok)
}

func TestRenderHistory(t *testing.T) {
	rendered := RenderHistory([]Message{
		{SpeakerID: "U01", Text: "タスクを作って"},
		{SpeakerID: BotSpeakerID, Text: "了解しました"},
	})
	assert.Equal(t, "ユーザーU01: タスクを作って\nシステム: 了解しました", rendered)
	assert.Empty(t, RenderHistory(nil))
}
