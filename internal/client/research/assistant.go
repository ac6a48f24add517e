// Package research is the client side of the research chat. The
// conversation is kept in local storage and replayed with every question.
package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stockwatch/internal/client/api"
	"stockwatch/internal/domain/market"
	xerrors "stockwatch/internal/pkg/errors"
	"stockwatch/internal/pkg/storage"

	"go.uber.org/zap"
)

const (
	ChatPath = "/api/chat"

	// HistoryLimit caps the stored conversation.
	HistoryLimit = 50
)

// Poster is the subset of *api.Client the assistant needs.
type Poster interface {
	Post(ctx context.Context, path string, body, out any, opts ...api.RequestOption) error
}

type Assistant struct {
	transport Poster
	state     *storage.State
	logger    *zap.Logger
	now       func() time.Time
}

func NewAssistant(transport Poster, state *storage.State, logger *zap.Logger) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assistant{transport: transport, state: state, logger: logger, now: time.Now}
}

// Ask sends question with the stored history and returns the reply. The
// exchange is stored only when the reply arrives.
func (a *Assistant) Ask(ctx context.Context, question string) (market.ChatMessage, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return market.ChatMessage{}, fmt.Errorf("%w: empty question", xerrors.ErrInvalidInput)
	}

	history, err := a.state.ChatHistory(ctx)
	if err != nil {
		return market.ChatMessage{}, fmt.Errorf("load chat history: %w", err)
	}
	msgs := make([]market.ChatMessage, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, market.ChatMessage{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, market.ChatMessage{Role: "user", Content: question})

	var resp market.ChatResponse
	if err := a.transport.Post(ctx, ChatPath, market.ChatRequest{Messages: msgs}, &resp); err != nil {
		return market.ChatMessage{}, err
	}
	reply := resp.Message
	if strings.TrimSpace(reply.Content) == "" {
		return market.ChatMessage{}, errors.New("empty chat reply")
	}
	if reply.Role == "" {
		reply.Role = "assistant"
	}

	sentAt := a.now().UnixMilli()
	for _, m := range []storage.ChatMessage{
		{Role: "user", Content: question, SentAt: sentAt},
		{Role: reply.Role, Content: reply.Content, SentAt: sentAt},
	} {
		if err := a.state.AppendChat(ctx, m, HistoryLimit); err != nil {
			a.logger.Warn("failed to store chat message", zap.Error(err))
		}
	}
	if resp.Sample {
		a.logger.Debug("chat answered with sample data")
	}
	return reply, nil
}

func (a *Assistant) History(ctx context.Context) ([]storage.ChatMessage, error) {
	return a.state.ChatHistory(ctx)
}

func (a *Assistant) Clear(ctx context.Context) error {
	return a.state.ClearChat(ctx)
}
