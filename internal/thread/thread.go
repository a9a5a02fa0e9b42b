// Package thread keeps per-thread conversation state: the classified
// process type, the append-only message log, and the partial records
// built up by slot filling. A thread is keyed by the root timestamp of
// its Slack thread. Nothing here is cached in memory; every webhook
// invocation re-reads state from the row store.
package thread

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	kerrors "github.com/harunnryd/kakari/internal/errors"
	"github.com/harunnryd/kakari/internal/rowstore"
)

type ProcessType string

const (
	ProcessGetTasks      ProcessType = "getTasks"
	ProcessCompleteTask  ProcessType = "completeTask"
	ProcessCreateTask    ProcessType = "createTask"
	ProcessCommunication ProcessType = "communication"
	ProcessGetCalendar   ProcessType = "getCalendar"
	ProcessCreateEvent   ProcessType = "createEvent"
)

func (p ProcessType) Valid() bool {
	switch p {
	case ProcessGetTasks, ProcessCompleteTask, ProcessCreateTask,
		ProcessCommunication, ProcessGetCalendar, ProcessCreateEvent:
		return true
	}
	return false
}

// DisplayName returns the user-facing Japanese name of the process.
func (p ProcessType) DisplayName() string {
	switch p {
	case ProcessGetTasks:
		return "タスク一覧の取得"
	case ProcessCompleteTask:
		return "タスクの完了"
	case ProcessCreateTask:
		return "タスクの作成"
	case ProcessCommunication:
		return "通常の会話"
	case ProcessGetCalendar:
		return "カレンダーの空き枠確認"
	case ProcessCreateEvent:
		return "カレンダー予約の作成"
	}
	return string(p)
}

// BotSpeakerID marks messages the assistant itself posted to a thread.
const BotSpeakerID = "BOT"

type Message struct {
	SpeakerID string
	Text      string
	Timestamp string
}

const (
	colProcess  = "thread_process"
	colMessages = "messages"
	colTaskJSON = "task_json"
	colEvent    = "event_json"
)

// Store is the thread-state facade over the row store.
type Store struct {
	rows *rowstore.Store
}

func NewStore(rows *rowstore.Store) *Store {
	return &Store{rows: rows}
}

// ProcessType returns the sticky process type of the thread, if set.
func (s *Store) ProcessType(threadID string) (ProcessType, bool) {
	rec, ok := s.rows.Get(colProcess, threadID)
	if !ok || rec["process_type"] == "" {
		return "", false
	}
	return ProcessType(rec["process_type"]), true
}

func (s *Store) SetProcessType(threadID string, pt ProcessType) error {
	if !pt.Valid() {
		return kerrors.Internal("invalid process type: " + string(pt))
	}
	return s.rows.Put(colProcess, threadID, rowstore.Record{"process_type": string(pt)})
}

// ResetProcessType logically resets the thread; the row stays so the
// message log keeps its context.
func (s *Store) ResetProcessType(threadID string) error {
	return s.rows.Put(colProcess, threadID, rowstore.Record{"process_type": ""})
}

// LogMessage appends one message to the thread history.
func (s *Store) LogMessage(threadID, timestamp, speakerID, text string) error {
	return s.rows.AppendLog(colMessages, rowstore.Record{
		"thread_id":  threadID,
		"ts":         timestamp,
		"speaker_id": speakerID,
		"text":       text,
	})
}

// Messages returns the thread history in chronological order.
func (s *Store) Messages(threadID string) []Message {
	entries := s.rows.QueryLog(colMessages, "thread_id", threadID)
	out := make([]Message, 0, len(entries))
	for _, e := range entries {
		out = append(out, Message{
			SpeakerID: e["speaker_id"],
			Text:      e["text"],
			Timestamp: e["ts"],
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return tsBefore(out[i].Timestamp, out[j].Timestamp) })
	return out
}

// tsBefore orders Slack "seconds.fraction" timestamps numerically.
// String comparison only works while both sides share the same digit
// count, which synthesized bot timestamps need not.
func tsBefore(a, b string) bool {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA != nil || errB != nil {
		return a < b
	}
	return fa < fb
}

// TaskRecord returns the partial task record of the thread, if any.
func (s *Store) TaskRecord(threadID string) (map[string]string, bool) {
	return s.record(colTaskJSON, threadID)
}

func (s *Store) SaveTaskRecord(threadID string, fields map[string]string) error {
	return s.saveRecord(colTaskJSON, threadID, fields)
}

// EventRecord returns the partial event record of the thread, if any.
func (s *Store) EventRecord(threadID string) (map[string]string, bool) {
	return s.record(colEvent, threadID)
}

func (s *Store) SaveEventRecord(threadID string, fields map[string]string) error {
	return s.saveRecord(colEvent, threadID, fields)
}

func (s *Store) record(collection, threadID string) (map[string]string, bool) {
	rec, ok := s.rows.Get(collection, threadID)
	if !ok || rec["json"] == "" {
		return nil, false
	}
	var fields map[string]string
	if err := json.Unmarshal([]byte(rec["json"]), &fields); err != nil {
		return nil, false
	}
	return fields, true
}

func (s *Store) saveRecord(collection, threadID string, fields map[string]string) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return kerrors.Wrap(err, "marshal partial record")
	}
	return s.rows.Put(collection, threadID, rowstore.Record{"json": string(data)})
}

// RenderHistory formats a thread history for embedding in prompts; the
// assistant's own messages are labeled システム.
func RenderHistory(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		speaker := "ユーザー" + m.SpeakerID
		if m.SpeakerID == BotSpeakerID {
			speaker = "システム"
		}
		lines = append(lines, speaker+": "+m.Text)
	}
	return strings.Join(lines, "\n")
}
