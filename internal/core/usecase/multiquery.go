package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/tanya-lalin/internal/core/domain"
	"github.com/kirillkom/tanya-lalin/internal/core/ports"
)

// ExecutionResult holds the ranked lists of the variants that succeeded.
type ExecutionResult struct {
	Lists  []domain.RankedList
	Failed []domain.VariantOrigin
}

type MultiQueryExecutor struct {
	embedder      ports.Embedder
	index         ports.VectorIndex
	observer      ports.RetrievalObserver
	logger        *slog.Logger
	topK          int
	searchTimeout time.Duration
}

func NewMultiQueryExecutor(
	embedder ports.Embedder,
	index ports.VectorIndex,
	observer ports.RetrievalObserver,
	logger *slog.Logger,
	topK int,
	searchTimeout time.Duration,
) *MultiQueryExecutor {
	if observer == nil {
		observer = ports.NopRetrievalObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if topK <= 0 {
		topK = domain.DefaultRetrievalLimits().VectorSearchTopK
	}
	return &MultiQueryExecutor{
		embedder:      embedder,
		index:         index,
		observer:      observer,
		logger:        logger,
		topK:          topK,
		searchTimeout: searchTimeout,
	}
}

// Execute searches every variant concurrently. A failed variant is logged and skipped;
// only the failure of every variant is returned as ErrVectorIndex.
func (e *MultiQueryExecutor) Execute(ctx context.Context, variants []domain.QueryVariant) (ExecutionResult, error) {
	if len(variants) == 0 {
		return ExecutionResult{}, nil
	}

	lists := make([]*domain.RankedList, len(variants))
	errs := make([]error, len(variants))

	var g errgroup.Group
	g.SetLimit(len(variants))
	for i, variant := range variants {
		g.Go(func() error {
			list, err := e.searchVariant(ctx, variant)
			if err != nil {
				errs[i] = err
				return nil
			}
			lists[i] = &list
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			return ExecutionResult{}, err
		}
		return ExecutionResult{}, domain.WrapError(domain.ErrVectorIndex, "search variants",
			domain.WrapError(domain.ErrTemporary, "retrieval budget exhausted", err))
	}

	result := ExecutionResult{Lists: make([]domain.RankedList, 0, len(variants))}
	var failures []error
	for i, variant := range variants {
		if errs[i] != nil {
			failures = append(failures, fmt.Errorf("variant %s: %w", variant.Origin, errs[i]))
			result.Failed = append(result.Failed, variant.Origin)
			e.observer.VariantSearchFailed(variant.Origin, errs[i])
			e.logger.Warn("retrieval_variant_failed",
				"origin", string(variant.Origin),
				"weight", variant.Weight,
				"error", errs[i],
			)
			continue
		}
		result.Lists = append(result.Lists, *lists[i])
	}

	if len(result.Lists) == 0 {
		return result, domain.WrapError(domain.ErrVectorIndex, "search all variants", errors.Join(failures...))
	}
	return result, nil
}

func (e *MultiQueryExecutor) searchVariant(ctx context.Context, variant domain.QueryVariant) (domain.RankedList, error) {
	if e.searchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.searchTimeout)
		defer cancel()
	}

	vector, err := e.embedder.EmbedQuery(ctx, variant.Text)
	if err != nil {
		if domain.IsKind(err, domain.ErrEmbedding) {
			return domain.RankedList{}, err
		}
		return domain.RankedList{}, domain.WrapError(domain.ErrEmbedding, "embed variant", err)
	}

	points, err := e.index.Search(ctx, vector, e.topK)
	if err != nil {
		return domain.RankedList{}, fmt.Errorf("search vector index: %w", err)
	}

	list := domain.RankedList{Variant: variant}
	if len(points) == 0 {
		return list, nil
	}

	ids := make([]string, 0, len(points))
	for _, p := range points {
		ids = append(ids, p.ID)
	}
	chunks, err := e.index.Get(ctx, ids)
	if err != nil {
		return domain.RankedList{}, fmt.Errorf("resolve chunks: %w", err)
	}

	seen := make(map[domain.ChunkKey]struct{}, len(points))
	list.Entries = make([]domain.RankedChunk, 0, len(points))
	for _, p := range points {
		chunk, ok := chunks[p.ID]
		if !ok {
			continue
		}
		key := chunk.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		list.Entries = append(list.Entries, domain.RankedChunk{
			Chunk:    chunk,
			Rank:     len(list.Entries) + 1,
			RawScore: p.Score,
		})
	}
	return list, nil
}
