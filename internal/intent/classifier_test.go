package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/harunnryd/kakari/internal/oracle/oracletest"
	"github.com/harunnryd/kakari/internal/thread"

	"github.com/stretchr/testify/assert"
)

func TestClassifyParsesOracleReply(t *testing.T) {
	fake := oracletest.New().Reply(`{"processType": "getTasks", "confidence": 0.95}`)
	c := NewClassifier(fake, 0.7)

	got := c.Classify(context.Background(), "mytaskを見せて", nil)
	assert.Equal(t, thread.ProcessGetTasks, got.Type)
	assert.InDelta(t, 0.95, got.Confidence, 1e-9)
	assert.True(t, c.Decisive(got))
	assert.True(t, fake.Calls[0].JSONMode)
}

func TestClassifyFailsOpenOnOracleError(t *testing.T) {
	fake := oracletest.New().Fail(errors.New("upstream down"))
	c := NewClassifier(fake, 0.7)

	got := c.Classify(context.Background(), "なにか", nil)
	assert.Equal(t, thread.ProcessCommunication, got.Type)
	assert.Zero(t, got.Confidence)
}

func TestClassifyFailsOpenOnGarbageReply(t *testing.T) {
	fake := oracletest.New().Reply("not json at all")
	c := NewClassifier(fake, 0.7)

	got := c.Classify(context.Background(), "なにか", nil)
	assert.Equal(t, thread.ProcessCommunication, got.Type)
	assert.Zero(t, got.Confidence)
}

func TestClassifyFailsOpenOnUnknownType(t *testing.T) {
	fake := oracletest.New().Reply(`{"processType": "launchRocket", "confidence": 0.99}`)
	c := NewClassifier(fake, 0.7)

	got := c.Classify(context.Background(), "発射", nil)
	assert.Equal(t, thread.ProcessCommunication, got.Type)
	assert.Zero(t, got.Confidence)
}

func TestConfidenceGateIsStrict(t *testing.T) {
	c := NewClassifier(oracletest.New(), 0.7)

	assert.False(t, c.Decisive(Result{Type: thread.ProcessGetTasks, Confidence: 0.70}))
	assert.True(t, c.Decisive(Result{Type: thread.ProcessGetTasks, Confidence: 0.71}))
}

func TestClassifyClampsConfidence(t *testing.T) {
	fake := oracletest.New().Reply(`{"processType": "createTask", "confidence": 1.7}`)
	c := NewClassifier(fake, 0.7)

	got := c.Classify(context.Background(), "create", nil)
	assert.Equal(t, 1.0, got.Confidence)
}

func TestClassifyEmbedsHistory(t *testing.T) {
	fake := oracletest.New().Reply(`{"processType": "createTask", "confidence": 0.9}`)
	c := NewClassifier(fake, 0.7)

	history := []thread.Message{{SpeakerID: "U01", Text: "タスクの件ですが"}}
	c.Classify(context.Background(), "続きをお願いします", history)
	assert.Contains(t, fake.Calls[0].Prompt, "ユーザーU01: タスクの件ですが")
}
