package ports

import (
	"context"

	"github.com/kirillkom/tanya-lalin/internal/core/domain"
)

// Retriever is the inbound contract of the retrieval orchestrator.
type Retriever interface {
	Retrieve(ctx context.Context, query string, history []domain.Message) (*domain.Retrieval, error)
}

type ChatRequest struct {
	SessionID string
	Message   string
}

type ChatResult struct {
	SessionID       string               `json:"session_id"`
	Query           string               `json:"query"`
	Response        string               `json:"response"`
	RetrievedChunks []domain.FusedResult `json:"retrieved_chunks"`
	Degraded        bool                 `json:"degraded"`
	Warning         string               `json:"warning,omitempty"`
}

// ChatService is the inbound contract for one conversational turn and session management.
type ChatService interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResult, error)
	History(ctx context.Context, sessionID string) (*domain.Session, error)
	DeleteSession(ctx context.Context, sessionID string) (bool, error)
}
