package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/tanya-lalin/internal/core/domain"
	"github.com/kirillkom/tanya-lalin/internal/core/ports"
)

// RewriteInput is what every rewrite strategy sees.
type RewriteInput struct {
	Query        string
	Normalized   string
	MatchedTerms []string
	History      []domain.Message
}

// RewriteStrategy attempts one way of producing a legal-phrased query.
// ok=false means "no result, try the next strategy"; a non-nil error stops the chain.
type RewriteStrategy interface {
	Name() string
	Rewrite(ctx context.Context, in RewriteInput) (exp domain.Expansion, ok bool, err error)
}

type RewriteResult struct {
	Variants     []domain.QueryVariant
	MatchedTerms []string
	Strategy     string
}

type QueryRewriter struct {
	terms      *TermResolver
	strategies []RewriteStrategy
	weights    domain.VariantWeights
}

func NewQueryRewriter(terms *TermResolver, weights domain.VariantWeights, strategies ...RewriteStrategy) *QueryRewriter {
	if terms == nil {
		terms = NewTermResolver(nil)
	}
	if weights == (domain.VariantWeights{}) {
		weights = domain.DefaultVariantWeights()
	}
	return &QueryRewriter{
		terms:      terms,
		strategies: strategies,
		weights:    weights,
	}
}

// Rewrite runs the strategy chain once and assembles the weighted variant set.
// The result always contains the original query.
func (rw *QueryRewriter) Rewrite(ctx context.Context, query string, history []domain.Message) (RewriteResult, error) {
	in := RewriteInput{
		Query:      strings.TrimSpace(query),
		Normalized: normalizeQuery(query),
		History:    history,
	}
	in.MatchedTerms = rw.terms.Resolve(in.Normalized)

	for _, strategy := range rw.strategies {
		exp, ok, err := strategy.Rewrite(ctx, in)
		if err != nil {
			return RewriteResult{MatchedTerms: in.MatchedTerms, Strategy: strategy.Name()}, err
		}
		if !ok {
			continue
		}
		return RewriteResult{
			Variants:     rw.assemble(in.Query, exp.LegalSearchQuery, exp.KeyLegalPhrases),
			MatchedTerms: in.MatchedTerms,
			Strategy:     strategy.Name(),
		}, nil
	}

	return rw.Baseline(query), nil
}

// Baseline is the variant set used without a legal rewrite: the original query plus
// up to three statically matched legal terms.
func (rw *QueryRewriter) Baseline(query string) RewriteResult {
	matched := rw.terms.Resolve(normalizeQuery(query))
	return RewriteResult{
		Variants:     rw.assemble(strings.TrimSpace(query), "", matched),
		MatchedTerms: matched,
		Strategy:     "baseline",
	}
}

func (rw *QueryRewriter) assemble(original, legal string, phrases []string) []domain.QueryVariant {
	candidates := make([]domain.QueryVariant, 0, 2+domain.MaxKeyLegalPhrases)
	candidates = append(candidates, domain.QueryVariant{Text: original, Weight: rw.weights.Original, Origin: domain.OriginOriginal})
	if strings.TrimSpace(legal) != "" {
		candidates = append(candidates, domain.QueryVariant{Text: strings.TrimSpace(legal), Weight: rw.weights.Legal, Origin: domain.OriginLegal})
	}
	added := 0
	for _, phrase := range phrases {
		if added == domain.MaxKeyLegalPhrases {
			break
		}
		phrase = strings.TrimSpace(phrase)
		if phrase == "" {
			continue
		}
		candidates = append(candidates, domain.QueryVariant{Text: phrase, Weight: rw.weights.Additional, Origin: domain.OriginAdditional})
		added++
	}
	return dedupeVariants(candidates)
}

// dedupeVariants keeps the first position of every normalized text and the maximum weight seen for it.
func dedupeVariants(variants []domain.QueryVariant) []domain.QueryVariant {
	index := make(map[string]int, len(variants))
	out := make([]domain.QueryVariant, 0, len(variants))
	for _, v := range variants {
		key := normalizeQuery(v.Text)
		if key == "" {
			continue
		}
		if i, ok := index[key]; ok {
			if v.Weight > out[i].Weight {
				out[i].Weight = v.Weight
				out[i].Origin = v.Origin
			}
			continue
		}
		index[key] = len(out)
		out = append(out, v)
	}
	return out
}

// PatternStrategy answers from the canned pattern table and never calls the oracle.
type PatternStrategy struct {
	matcher *PatternMatcher
}

func NewPatternStrategy(matcher *PatternMatcher) *PatternStrategy {
	if matcher == nil {
		matcher = NewPatternMatcher(nil)
	}
	return &PatternStrategy{matcher: matcher}
}

func (s *PatternStrategy) Name() string { return "pattern" }

func (s *PatternStrategy) Rewrite(_ context.Context, in RewriteInput) (domain.Expansion, bool, error) {
	canned, ok := s.matcher.Match(in.Normalized)
	if !ok {
		return domain.Expansion{}, false, nil
	}
	return domain.Expansion{
		LegalSearchQuery: canned,
		KeyLegalPhrases:  in.MatchedTerms,
	}, true, nil
}

// OracleStrategy delegates to the generative query expansion oracle under its own time budget.
type OracleStrategy struct {
	oracle  ports.QueryExpander
	timeout time.Duration
}

func NewOracleStrategy(oracle ports.QueryExpander, timeout time.Duration) *OracleStrategy {
	return &OracleStrategy{oracle: oracle, timeout: timeout}
}

func (s *OracleStrategy) Name() string { return "oracle" }

func (s *OracleStrategy) Rewrite(ctx context.Context, in RewriteInput) (domain.Expansion, bool, error) {
	if s.oracle == nil {
		return domain.Expansion{}, false, nil
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	exp, err := s.oracle.Expand(callCtx, domain.ExpansionRequest{
		Query:        in.Query,
		MatchedTerms: in.MatchedTerms,
		History:      in.History,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return domain.Expansion{}, false, ctx.Err()
		}
		if domain.IsKind(err, domain.ErrOracleContract) || domain.IsKind(err, domain.ErrOracleUnavailable) {
			return domain.Expansion{}, false, err
		}
		return domain.Expansion{}, false, domain.WrapError(domain.ErrOracleUnavailable, "expand query", err)
	}

	if err := validateExpansion(exp); err != nil {
		return domain.Expansion{}, false, err
	}
	return exp, true, nil
}

func validateExpansion(exp domain.Expansion) error {
	if strings.TrimSpace(exp.LegalSearchQuery) == "" {
		return domain.WrapError(domain.ErrOracleContract, "validate expansion", errors.New("legal_search_query is empty"))
	}
	phrases := 0
	for _, p := range exp.KeyLegalPhrases {
		if strings.TrimSpace(p) != "" {
			phrases++
		}
	}
	if phrases > domain.MaxKeyLegalPhrases {
		return domain.WrapError(domain.ErrOracleContract, "validate expansion",
			fmt.Errorf("key_legal_phrases has %d entries, at most %d allowed", phrases, domain.MaxKeyLegalPhrases))
	}
	return nil
}
