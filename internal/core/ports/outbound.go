package ports

import (
	"context"

	"github.com/kirillkom/tanya-lalin/internal/core/domain"
)

// Embedder turns query text into a vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex performs nearest-neighbour search and resolves point ids to chunks.
type VectorIndex interface {
	Search(ctx context.Context, vector []float32, topK int) ([]domain.ScoredPoint, error)
	Get(ctx context.Context, ids []string) (map[string]domain.Chunk, error)
}

// QueryExpander is the generative query expansion oracle.
type QueryExpander interface {
	Expand(ctx context.Context, req domain.ExpansionRequest) (domain.Expansion, error)
}

// AnswerGenerator composes the final user-facing answer.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, results []domain.FusedResult, history []domain.Message) (string, error)
}

// SessionStore owns conversation sessions.
type SessionStore interface {
	Create(ctx context.Context) (string, error)
	Append(ctx context.Context, id string, msg domain.Message) (domain.Message, error)
	History(ctx context.Context, id string, window int) ([]domain.Message, error)
	Snapshot(ctx context.Context, id string) (*domain.Session, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// TurnPublisher emits completed chat turns.
type TurnPublisher interface {
	PublishTurnCompleted(ctx context.Context, event domain.TurnCompleted) error
}

// TurnArchive persists completed chat turns.
type TurnArchive interface {
	SaveTurn(ctx context.Context, event domain.TurnCompleted) error
}

// RetrievalObserver receives retrieval events that are recovered internally but must stay observable.
type RetrievalObserver interface {
	VariantSearchFailed(origin domain.VariantOrigin, err error)
	OracleFailed(kind string)
	OracleFallback()
	RetrievalCompleted(variants, results int)
}

type NopRetrievalObserver struct{}

func (NopRetrievalObserver) VariantSearchFailed(domain.VariantOrigin, error) {}
func (NopRetrievalObserver) OracleFailed(string)                             {}
func (NopRetrievalObserver) OracleFallback()                                 {}
func (NopRetrievalObserver) RetrievalCompleted(int, int)                     {}
