package validate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/harunnryd/kakari/internal/errors"
	"github.com/harunnryd/kakari/internal/oracle/oracletest"
	"github.com/harunnryd/kakari/internal/roster"
)

func testRoster(t *testing.T) *roster.Roster {
	t.Helper()
	return roster.New([]roster.Member{
		{FullName: "山田太郎", SlackUserID: "U001"},
		{FullName: "佐藤花子", SlackUserID: "U002"},
	})
}

func TestTaskValidatorValid(t *testing.T) {
	fake := oracletest.New()
	fake.Reply(`{"isValid": true, "errors": [], "suggestions": []}`)

	v := NewTaskValidator(fake, testRoster(t))
	result, err := v.Validate(context.Background(), map[string]string{
		"概要":    "週次レポート作成",
		"期日":    "2025-05-16",
		"アサイン":  "山田太郎",
		"ステータス": "未着手",
	})
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)
}

func TestTaskValidatorInvalidWithSuggestions(t *testing.T) {
	fake := oracletest.New()
	fake.Reply(`{"isValid": false, "errors": ["期日の形式が不正です"], "suggestions": ["YYYY-MM-DD形式で指定してください"]}`)

	v := NewTaskValidator(fake, testRoster(t))
	result, err := v.Validate(context.Background(), map[string]string{
		"概要": "週次レポート作成",
		"期日": "来週金曜",
	})
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, []string{"期日の形式が不正です"}, result.Errors)
	assert.Equal(t, []string{"YYYY-MM-DD形式で指定してください"}, result.Suggestions)
}

func TestTaskValidatorPromptIncludesRosterAndRecord(t *testing.T) {
	fake := oracletest.New()
	fake.Reply(`{"isValid": true, "errors": [], "suggestions": []}`)

	v := NewTaskValidator(fake, testRoster(t))
	_, err := v.Validate(context.Background(), map[string]string{"概要": "棚卸し"})
	require.NoError(t, err)

	require.Len(t, fake.Calls, 1)
	assert.True(t, fake.Calls[0].JSONMode)
	assert.Contains(t, fake.Calls[0].Prompt, "山田太郎")
	assert.Contains(t, fake.Calls[0].Prompt, "佐藤花子")
	assert.Contains(t, fake.Calls[0].Prompt, "棚卸し")
}

func TestTaskValidatorOracleErrorPropagates(t *testing.T) {
	fake := oracletest.New()
	fake.Fail(kerrors.Oracle("upstream down"))

	v := NewTaskValidator(fake, testRoster(t))
	_, err := v.Validate(context.Background(), map[string]string{"概要": "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, kerrors.ErrOracle))
}

func TestTaskValidatorGarbageReplyPropagates(t *testing.T) {
	fake := oracletest.New()
	fake.Reply("すみません、検証できませんでした。")

	v := NewTaskValidator(fake, testRoster(t))
	_, err := v.Validate(context.Background(), map[string]string{"概要": "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, kerrors.ErrInvalidModelOutput))
}

func TestEventValidatorValid(t *testing.T) {
	fake := oracletest.New()
	fake.Reply(`{"isValid": true, "errors": [], "suggestions": []}`)

	v := NewEventValidator(fake)
	result, err := v.Validate(context.Background(), map[string]string{
		"title":         "定例ミーティング",
		"startDateTime": "2025-05-12 10:00",
		"duration":      "30",
	})
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	require.Len(t, fake.Calls, 1)
	assert.Contains(t, fake.Calls[0].Prompt, "定例ミーティング")
}

func TestEventValidatorOracleErrorPropagates(t *testing.T) {
	fake := oracletest.New()
	fake.Fail(kerrors.Transient("timeout"))

	v := NewEventValidator(fake)
	_, err := v.Validate(context.Background(), map[string]string{"title": "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, kerrors.ErrTransient))
}
