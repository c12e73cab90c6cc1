package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/tanya-lalin/internal/core/domain"
)

const expansionTemperature = 0.2

// QueryExpander asks the generative model for a statute-phrased search query.
type QueryExpander struct {
	client *Client
}

func NewQueryExpander(client *Client) *QueryExpander {
	return &QueryExpander{client: client}
}

func (x *QueryExpander) Expand(ctx context.Context, req domain.ExpansionRequest) (domain.Expansion, error) {
	var raw string
	err := x.client.execute(ctx, "ollama_expand", func(callCtx context.Context) error {
		out, genErr := x.client.generateJSON(callCtx, expansionSystemPrompt, buildExpansionPrompt(req), expansionTemperature)
		if genErr != nil {
			return genErr
		}
		raw = out
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return domain.Expansion{}, err
		}
		return domain.Expansion{}, domain.WrapError(domain.ErrOracleUnavailable, "expand query", err)
	}
	return parseExpansion(raw)
}

// parseExpansion enforces the oracle contract: a JSON object with a non-empty legal_search_query
// and at most three non-blank key_legal_phrases.
func parseExpansion(raw string) (domain.Expansion, error) {
	payload := extractJSONObject(stripCodeFence(raw))

	var decoded struct {
		LegalSearchQuery *string  `json:"legal_search_query"`
		KeyLegalPhrases  []string `json:"key_legal_phrases"`
	}
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return domain.Expansion{}, domain.WrapError(domain.ErrOracleContract, "parse expansion", err)
	}
	if decoded.LegalSearchQuery == nil || strings.TrimSpace(*decoded.LegalSearchQuery) == "" {
		return domain.Expansion{}, domain.WrapError(domain.ErrOracleContract, "parse expansion", errors.New("legal_search_query is missing"))
	}

	phrases := make([]string, 0, len(decoded.KeyLegalPhrases))
	for _, p := range decoded.KeyLegalPhrases {
		if p = strings.TrimSpace(p); p != "" {
			phrases = append(phrases, p)
		}
	}
	if len(phrases) > domain.MaxKeyLegalPhrases {
		return domain.Expansion{}, domain.WrapError(domain.ErrOracleContract, "parse expansion",
			fmt.Errorf("got %d key_legal_phrases, at most %d allowed", len(phrases), domain.MaxKeyLegalPhrases))
	}

	return domain.Expansion{
		LegalSearchQuery: strings.TrimSpace(*decoded.LegalSearchQuery),
		KeyLegalPhrases:  phrases,
	}, nil
}

func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
