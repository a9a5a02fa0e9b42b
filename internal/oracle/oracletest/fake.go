// Package oracletest provides a scripted oracle for deterministic tests.
package oracletest

import (
	"context"
	"errors"
	"sync"
)

// Call records one observed oracle invocation.
type Call struct {
	Prompt   string
	JSONMode bool
}

// Fake replays queued replies in order. When the queue is exhausted it
// returns ErrExhausted so tests fail loudly instead of looping.
type Fake struct {
	mu      sync.Mutex
	replies []reply
	Calls   []Call
}

type reply struct {
	text string
	err  error
}

var ErrExhausted = errors.New("fake oracle: no scripted reply left")

func New() *Fake {
	return &Fake{}
}

// Reply queues a successful reply.
func (f *Fake) Reply(text string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, reply{text: text})
	return f
}

// Fail queues an error reply.
func (f *Fake) Fail(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, reply{err: err})
	return f
}

func (f *Fake) Call(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, Call{Prompt: prompt, JSONMode: jsonMode})
	if len(f.replies) == 0 {
		return "", ErrExhausted
	}
	next := f.replies[0]
	f.replies = f.replies[1:]
	return next.text, next.err
}

// CallCount returns how many calls the fake has served.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}
