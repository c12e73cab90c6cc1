package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/kirillkom/tanya-lalin/internal/core/domain"
	"github.com/kirillkom/tanya-lalin/internal/core/ports"
)

// RetrievalUseCase rewrites a query into weighted variants, searches them concurrently
// and fuses the rankings.
type RetrievalUseCase struct {
	rewriter *QueryRewriter
	executor *MultiQueryExecutor
	observer ports.RetrievalObserver
	logger   *slog.Logger
	limits   domain.RetrievalLimits
}

func NewRetrievalUseCase(
	rewriter *QueryRewriter,
	executor *MultiQueryExecutor,
	observer ports.RetrievalObserver,
	logger *slog.Logger,
	limits domain.RetrievalLimits,
) *RetrievalUseCase {
	if observer == nil {
		observer = ports.NopRetrievalObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrievalUseCase{
		rewriter: rewriter,
		executor: executor,
		observer: observer,
		logger:   logger,
		limits:   limits.Normalize(),
	}
}

func (uc *RetrievalUseCase) Retrieve(ctx context.Context, query string, history []domain.Message) (*domain.Retrieval, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("query is empty"))
	}

	ctx, cancel := context.WithTimeout(ctx, uc.limits.Timeout)
	defer cancel()

	out := &domain.Retrieval{}

	rewrite, err := uc.rewriter.Rewrite(ctx, query, history)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		switch {
		case domain.IsKind(err, domain.ErrOracleContract):
			uc.observer.OracleFailed("contract")
			uc.logger.Error("oracle_contract_violation", "query", truncateForLog(query), "error", err)
			return nil, err
		case uc.limits.OracleFailurePolicy == domain.OracleFailurePolicyFallback:
			uc.observer.OracleFailed("unavailable")
			uc.observer.OracleFallback()
			uc.logger.Warn("oracle_unavailable_fallback", "query", truncateForLog(query), "error", err)
			rewrite = uc.rewriter.Baseline(query)
			out.Degraded = true
			out.Warning = domain.DegradedRetrievalWarning
		default:
			uc.observer.OracleFailed("unavailable")
			uc.logger.Error("oracle_unavailable", "query", truncateForLog(query), "error", err)
			return nil, err
		}
	}
	out.Variants = rewrite.Variants

	execution, err := uc.executor.Execute(ctx, rewrite.Variants)
	if err != nil {
		return nil, err
	}
	out.FailedVariants = len(execution.Failed)

	fused := fuseWeightedRRF(execution.Lists, uc.limits.RRFK)
	out.Results = filterFused(fused, uc.limits.MinFusedScore, uc.limits.FinalTopK)

	uc.observer.RetrievalCompleted(len(out.Variants), len(out.Results))
	uc.logger.Info("retrieval_completed",
		"query", truncateForLog(query),
		"strategy", rewrite.Strategy,
		"variants", len(out.Variants),
		"failed_variants", out.FailedVariants,
		"fused_candidates", len(fused),
		"results", len(out.Results),
		"degraded", out.Degraded,
	)
	return out, nil
}

func truncateForLog(s string) string {
	const limit = 80
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
