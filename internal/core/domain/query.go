package domain

type VariantOrigin string

const (
	OriginOriginal   VariantOrigin = "original"
	OriginLegal      VariantOrigin = "legal"
	OriginAdditional VariantOrigin = "additional"
)

// QueryVariant is one reformulation of the user's query together with its fusion weight.
type QueryVariant struct {
	Text   string        `json:"text"`
	Weight float64       `json:"weight"`
	Origin VariantOrigin `json:"origin"`
}

type VariantWeights struct {
	Original   float64
	Legal      float64
	Additional float64
}

func DefaultVariantWeights() VariantWeights {
	return VariantWeights{Original: 1.0, Legal: 2.0, Additional: 0.8}
}

func (w VariantWeights) For(origin VariantOrigin) float64 {
	switch origin {
	case OriginLegal:
		return w.Legal
	case OriginAdditional:
		return w.Additional
	default:
		return w.Original
	}
}

// TermMapping maps an everyday phrase onto its statutory wording.
type TermMapping struct {
	Phrase     string   `json:"phrase" yaml:"phrase"`
	LegalTerms []string `json:"legal_terms" yaml:"legal_terms"`
}

// QueryPattern is a canned legal query for a known high-frequency question.
type QueryPattern struct {
	Trigger string `json:"trigger" yaml:"trigger"`
	Query   string `json:"query" yaml:"query"`
}

// ExpansionRequest is the input of the query expansion oracle.
type ExpansionRequest struct {
	Query        string
	MatchedTerms []string
	History      []Message
}

// Expansion is the oracle output: a legal-phrased query and at most three key phrases.
type Expansion struct {
	LegalSearchQuery string   `json:"legal_search_query"`
	KeyLegalPhrases  []string `json:"key_legal_phrases"`
}

const MaxKeyLegalPhrases = 3
