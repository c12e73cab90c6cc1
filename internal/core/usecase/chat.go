package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/tanya-lalin/internal/core/domain"
	"github.com/kirillkom/tanya-lalin/internal/core/ports"
)

const (
	MaxChatMessageRunes    = 2000
	generatorHistoryWindow = 6
	generatorHistoryRunes  = 500
)

// ChatUseCase composes one conversational turn: session bookkeeping, retrieval and answer generation.
type ChatUseCase struct {
	sessions  ports.SessionStore
	retriever ports.Retriever
	generator ports.AnswerGenerator
	publisher ports.TurnPublisher
	logger    *slog.Logger
	limits    domain.SessionLimits
	now       func() time.Time
}

func NewChatUseCase(
	sessions ports.SessionStore,
	retriever ports.Retriever,
	generator ports.AnswerGenerator,
	publisher ports.TurnPublisher,
	logger *slog.Logger,
	limits domain.SessionLimits,
) *ChatUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	if limits.MaxContextMessages <= 0 {
		limits.MaxContextMessages = domain.DefaultSessionLimits().MaxContextMessages
	}
	return &ChatUseCase{
		sessions:  sessions,
		retriever: retriever,
		generator: generator,
		publisher: publisher,
		logger:    logger,
		limits:    limits,
		now:       time.Now,
	}
}

func (uc *ChatUseCase) Chat(ctx context.Context, req ports.ChatRequest) (*ports.ChatResult, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chat", errors.New("message is required"))
	}
	if utf8.RuneCountInString(message) > MaxChatMessageRunes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chat",
			fmt.Errorf("message exceeds %d characters", MaxChatMessageRunes))
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		id, err := uc.sessions.Create(ctx)
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		sessionID = id
	}

	history, err := uc.sessions.History(ctx, sessionID, uc.limits.MaxContextMessages)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	if _, err := uc.sessions.Append(ctx, sessionID, domain.Message{
		Role:      domain.RoleUser,
		Content:   message,
		Timestamp: uc.now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}

	retrieval, err := uc.retriever.Retrieve(ctx, message, history)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	var answer string
	if retrieval.Empty() {
		answer = domain.NoRelevantChunksAnswer
	} else {
		answer, err = uc.generator.GenerateAnswer(ctx, message, retrieval.Results, generatorHistory(history))
		if err != nil {
			return nil, fmt.Errorf("generate answer: %w", err)
		}
	}

	stored, err := uc.sessions.Append(ctx, sessionID, domain.Message{
		Role:            domain.RoleAssistant,
		Content:         answer,
		Timestamp:       uc.now().UTC(),
		RetrievedChunks: retrieval.Chunks(),
	})
	if err != nil {
		return nil, fmt.Errorf("append assistant message: %w", err)
	}

	uc.publishTurn(ctx, sessionID, stored, message, retrieval)

	results := retrieval.Results
	if strings.TrimSpace(answer) == domain.NotFoundAnswer {
		results = nil
	}
	if results == nil {
		results = []domain.FusedResult{}
	}

	return &ports.ChatResult{
		SessionID:       sessionID,
		Query:           message,
		Response:        answer,
		RetrievedChunks: results,
		Degraded:        retrieval.Degraded,
		Warning:         retrieval.Warning,
	}, nil
}

func (uc *ChatUseCase) History(ctx context.Context, sessionID string) (*domain.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chat history", errors.New("session id is required"))
	}
	return uc.sessions.Snapshot(ctx, sessionID)
}

func (uc *ChatUseCase) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return false, domain.WrapError(domain.ErrInvalidInput, "delete session", errors.New("session id is required"))
	}
	return uc.sessions.Delete(ctx, sessionID)
}

func (uc *ChatUseCase) publishTurn(ctx context.Context, sessionID string, stored domain.Message, query string, retrieval *domain.Retrieval) {
	if uc.publisher == nil {
		return
	}
	keys := make([]string, 0, len(retrieval.Results))
	for _, r := range retrieval.Results {
		keys = append(keys, r.Chunk.Key().String())
	}
	event := domain.TurnCompleted{
		SessionID: sessionID,
		MessageID: stored.ID,
		Query:     query,
		Response:  stored.Content,
		ChunkKeys: keys,
		Degraded:  retrieval.Degraded,
		CreatedAt: stored.Timestamp,
	}
	if err := uc.publisher.PublishTurnCompleted(ctx, event); err != nil {
		uc.logger.Warn("turn_publish_failed", "session_id", sessionID, "message_id", stored.ID, "error", err)
	}
}

// generatorHistory keeps the most recent messages with their content shortened for the prompt.
func generatorHistory(history []domain.Message) []domain.Message {
	if len(history) > generatorHistoryWindow {
		history = history[len(history)-generatorHistoryWindow:]
	}
	out := make([]domain.Message, 0, len(history))
	for _, msg := range history {
		msg.RetrievedChunks = nil
		if runes := []rune(msg.Content); len(runes) > generatorHistoryRunes {
			msg.Content = string(runes[:generatorHistoryRunes])
		}
		out = append(out, msg)
	}
	return out
}
