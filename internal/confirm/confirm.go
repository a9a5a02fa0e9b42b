// Package confirm implements the two-phase gate guarding every
// state-mutating action: propose a record, await an explicit yes/no,
// then commit or cancel. All state lives in the row store, keyed by
// thread, so the protocol survives process restarts.
package confirm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kerrors "github.com/harunnryd/kakari/internal/errors"
	"github.com/harunnryd/kakari/internal/oracle"
	"github.com/harunnryd/kakari/internal/rowstore"
)

const Collection = "confirmations"

// Confirmation statuses. A thread with no record (or an empty status)
// is in the implicit NONE state.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusError     = "error"
)

// Kinds of payload a confirmation can carry.
const (
	KindTask         = "task"
	KindTaskComplete = "task_complete"
	KindEvent        = "event"
)

type Outcome string

const (
	OutcomeCommitted       Outcome = "committed"
	OutcomeCancelled       Outcome = "cancelled"
	OutcomeCommitFailed    Outcome = "commit_failed"
	OutcomeAlreadyResolved Outcome = "already_resolved"
)

// Confirmation is the decoded view of one stored record.
type Confirmation struct {
	ThreadKey  string
	Kind       string
	Status     string
	Payload    map[string]string
	CreatedAt  string
	ResolvedAt string
	FailReason string
}

func terminal(status string) bool {
	switch status {
	case StatusCompleted, StatusCancelled, StatusError:
		return true
	}
	return false
}

type Protocol struct {
	store  *rowstore.Store
	oracle oracle.Oracle
}

func New(store *rowstore.Store, o oracle.Oracle) *Protocol {
	return &Protocol{store: store, oracle: o}
}

// Propose writes a new pending confirmation for the thread. The
// existing-pending check and the write are one atomic store update, so
// two racing proposals cannot both succeed.
func (p *Protocol) Propose(threadKey, kind string, payload map[string]string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return kerrors.Wrap(err, "marshal confirmation payload")
	}

	return p.store.Update(Collection, threadKey, func(existing rowstore.Record) (rowstore.Record, error) {
		if existing != nil && existing["status"] == StatusPending {
			return nil, kerrors.Conflict("a pending confirmation already exists for this thread")
		}
		return rowstore.Record{
			"status":     StatusPending,
			"kind":       kind,
			"payload":    string(data),
			"created_at": time.Now().UTC().Format(time.RFC3339),
		}, nil
	})
}

// Get returns the confirmation for the thread, if one was ever written.
func (p *Protocol) Get(threadKey string) (Confirmation, bool) {
	rec, ok := p.store.Get(Collection, threadKey)
	if !ok || rec["status"] == "" {
		return Confirmation{}, false
	}

	c := Confirmation{
		ThreadKey:  threadKey,
		Kind:       rec["kind"],
		Status:     rec["status"],
		CreatedAt:  rec["created_at"],
		ResolvedAt: rec["resolved_at"],
		FailReason: rec["error"],
	}
	if raw := rec["payload"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.Payload); err != nil {
			c.Payload = nil
		}
	}
	return c, true
}

// HasPending reports whether the thread is awaiting a yes/no reply.
func (p *Protocol) HasPending(threadKey string) bool {
	c, ok := p.Get(threadKey)
	return ok && c.Status == StatusPending
}

// Resolve classifies userReply as affirmative or negative and settles
// the pending confirmation. On affirmative it invokes commit with the
// stored payload; commit runs at most once regardless of duplicate
// deliveries, because the record is claimed before commit is called.
// A commit failure moves the record to the error status and keeps the
// payload for operator inspection; there is no automatic retry.
func (p *Protocol) Resolve(ctx context.Context, threadKey, userReply string, commit func(payload map[string]string) error) (Outcome, error) {
	current, ok := p.Get(threadKey)
	if !ok {
		return "", kerrors.NotFound("no confirmation for thread " + threadKey)
	}
	if terminal(current.Status) {
		return OutcomeAlreadyResolved, nil
	}

	if !p.IsPositive(ctx, userReply) {
		switch err := p.transition(threadKey, StatusCancelled, ""); {
		case err == nil:
			return OutcomeCancelled, nil
		case kerrors.IsCategory(err, kerrors.ErrConflict):
			return OutcomeAlreadyResolved, nil
		default:
			return "", err
		}
	}

	// Claim the record before committing so a second affirmative for
	// the same thread cannot trigger a second commit.
	switch err := p.transition(threadKey, StatusCompleted, ""); {
	case err == nil:
	case kerrors.IsCategory(err, kerrors.ErrConflict):
		return OutcomeAlreadyResolved, nil
	default:
		return "", err
	}

	if err := commit(current.Payload); err != nil {
		if terr := p.markFailed(threadKey, err); terr != nil {
			return OutcomeCommitFailed, terr
		}
		return OutcomeCommitFailed, fmt.Errorf("%s: %w", err.Error(), kerrors.ErrCommit)
	}
	return OutcomeCommitted, nil
}

// transition moves the record from pending to the given terminal
// status. It aborts with a conflict when the record is no longer
// pending, which callers treat as an already-resolved no-op.
func (p *Protocol) transition(threadKey, status, failReason string) error {
	return p.store.Update(Collection, threadKey, func(existing rowstore.Record) (rowstore.Record, error) {
		if existing == nil || existing["status"] != StatusPending {
			return nil, kerrors.Conflict("confirmation is not pending")
		}
		existing["status"] = status
		existing["resolved_at"] = time.Now().UTC().Format(time.RFC3339)
		if failReason != "" {
			existing["error"] = failReason
		}
		return existing, nil
	})
}

// markFailed rewrites an already-claimed record as errored.
func (p *Protocol) markFailed(threadKey string, cause error) error {
	return p.store.Update(Collection, threadKey, func(existing rowstore.Record) (rowstore.Record, error) {
		if existing == nil {
			return nil, kerrors.NotFound("confirmation vanished for thread " + threadKey)
		}
		existing["status"] = StatusError
		existing["resolved_at"] = time.Now().UTC().Format(time.RFC3339)
		existing["error"] = cause.Error()
		return existing, nil
	})
}

// IsPositive classifies a free-form reply as an affirmative. Anything
// the model cannot place, and any oracle failure, counts as negative:
// an unclear answer never blocks the conversation waiting for
// clarification, it cancels.
func (p *Protocol) IsPositive(ctx context.Context, text string) bool {
	prompt := fmt.Sprintf(`ユーザーの返答が肯定的（承認・同意）かどうかを判定してください。

# ユーザーの返答
%s

# 判定基準
- 「はい」「OK」「了解」「承知しました」「お願いします」など明確な肯定 → true
- 「いいえ」「キャンセル」「やめる」「違う」など明確な否定 → false
- どちらとも判断できない曖昧な返答 → false

# 出力形式
以下のJSON形式で出力してください：
{"isPositive": true/false}
`, text)

	reply, err := p.oracle.Call(ctx, prompt, true)
	if err != nil {
		return false
	}
	var verdict struct {
		IsPositive bool `json:"isPositive"`
	}
	if err := oracle.ParseObject(reply, &verdict); err != nil {
		return false
	}
	return verdict.IsPositive
}
