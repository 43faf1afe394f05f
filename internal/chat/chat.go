package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hackgods/telehealth-scheduling/pkg/logging"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	historyLimit = 10
	temperature  = 0.7
	maxTokens    = 500
)

var (
	ErrEmptyMessage  = errors.New("chat: message is required")
	ErrNotConfigured = errors.New("chat: AI service not configured")
	ErrQuotaExceeded = errors.New("chat: API quota exceeded")
)

const systemPrompt = `You are a helpful medical assistant for a doctor appointment platform.
You provide general health information, help users understand symptoms and when to seek care,
answer questions about appointments, procedures, treatments and conditions, and share wellness tips.

Guidelines:
- Remind users that your advice does not replace a professional medical diagnosis.
- For serious symptoms, always recommend consulting a healthcare provider.
- Be empathetic and supportive, and keep answers concise but informative.
- Provide accurate, evidence-based information.
- For questions about specific doctors or bookings, point users to the platform features.`

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one completion call to the model.
type Request struct {
	System      string
	History     []Message
	Message     string
	Temperature float32
	MaxTokens   int32
}

// LLMClient completes a chat turn.
type LLMClient interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type Reply struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Service relays messages to the assistant model. A nil client means the
// assistant is not configured and every call fails with ErrNotConfigured.
type Service struct {
	llm    LLMClient
	logger *logging.Logger
	now    func() time.Time
}

func NewService(llm LLMClient, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{llm: llm, logger: logger, now: time.Now}
}

func (s *Service) Configured() bool {
	return s != nil && s.llm != nil
}

// Reply answers message given the earlier turns. Only the last ten turns are
// sent; unknown roles are treated as assistant turns.
func (s *Service) Reply(ctx context.Context, message string, history []Message) (*Reply, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	turns := make([]Message, 0, len(history))
	for _, m := range history {
		role := RoleAssistant
		if m.Role == RoleUser {
			role = RoleUser
		}
		turns = append(turns, Message{Role: role, Content: m.Content})
	}

	text, err := s.llm.Complete(ctx, Request{
		System:      systemPrompt,
		History:     turns,
		Message:     message,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		s.logger.Error("chat completion failed", "error", err, "history_turns", len(turns))
		if errors.Is(err, ErrQuotaExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("chat: generate response: %w", err)
	}

	return &Reply{Message: text, Timestamp: s.now().UTC()}, nil
}
