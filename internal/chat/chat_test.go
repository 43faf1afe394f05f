package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

type stubLLM struct {
	got   Request
	reply string
	err   error
}

func (s *stubLLM) Complete(_ context.Context, req Request) (string, error) {
	s.got = req
	return s.reply, s.err
}

func TestReplySendsPromptAndRecentHistory(t *testing.T) {
	llm := &stubLLM{reply: "Drink water and rest."}
	svc := NewService(llm, nil)
	svc.now = func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) }

	var history []Message
	for i := 0; i < 14; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = "bot"
		}
		history = append(history, Message{Role: role, Content: fmt.Sprintf("turn %d", i)})
	}

	reply, err := svc.Reply(context.Background(), "  I have a headache  ", history)
	require.NoError(t, err)
	assert.Equal(t, "Drink water and rest.", reply.Message)
	assert.Equal(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), reply.Timestamp)

	assert.Equal(t, "I have a headache", llm.got.Message)
	assert.Equal(t, systemPrompt, llm.got.System)
	assert.InDelta(t, 0.7, llm.got.Temperature, 1e-6)
	assert.EqualValues(t, 500, llm.got.MaxTokens)

	require.Len(t, llm.got.History, 10)
	assert.Equal(t, "turn 4", llm.got.History[0].Content)
	assert.Equal(t, RoleUser, llm.got.History[0].Role)
	assert.Equal(t, RoleAssistant, llm.got.History[1].Role)
}

func TestReplyRejectsEmptyMessage(t *testing.T) {
	llm := &stubLLM{}
	_, err := NewService(llm, nil).Reply(context.Background(), "   ", nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestReplyNotConfigured(t *testing.T) {
	svc := NewService(nil, nil)
	assert.False(t, svc.Configured())

	_, err := svc.Reply(context.Background(), "hello", nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestReplyErrors(t *testing.T) {
	quota := &stubLLM{err: fmt.Errorf("%w: 429", ErrQuotaExceeded)}
	_, err := NewService(quota, nil).Reply(context.Background(), "hi", nil)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	down := &stubLLM{err: errors.New("connection reset")}
	_, err = NewService(down, nil).Reply(context.Background(), "hi", nil)
	assert.ErrorContains(t, err, "generate response")
	assert.NotErrorIs(t, err, ErrQuotaExceeded)
}

func TestIsQuotaError(t *testing.T) {
	assert.True(t, isQuotaError(fmt.Errorf("send: %w", &googleapi.Error{Code: http.StatusTooManyRequests})))
	assert.True(t, isQuotaError(errors.New("rpc error: code = ResourceExhausted desc = RESOURCE_EXHAUSTED")))
	assert.True(t, isQuotaError(errors.New("Quota exceeded for model")))
	assert.False(t, isQuotaError(&googleapi.Error{Code: http.StatusBadRequest, Message: "bad request"}))
}

func TestToContentsMapsRoles(t *testing.T) {
	contents := toContents([]Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "   "},
	})
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), " ", "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
