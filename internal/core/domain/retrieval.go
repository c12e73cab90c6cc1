package domain

// ScoredPoint is one raw vector-index hit.
type ScoredPoint struct {
	ID    string
	Score float64
}

type RankedChunk struct {
	Chunk    Chunk
	Rank     int
	RawScore float64
}

// RankedList is the vector-index ranking for one query variant; ranks are 1-based.
type RankedList struct {
	Variant QueryVariant
	Entries []RankedChunk
}

// FusedResult serializes as a flat chunk object plus fused_score.
type FusedResult struct {
	Chunk
	FusedScore  float64 `json:"fused_score"`
	BestRank    int     `json:"-"`
	VariantHits int     `json:"-"`
}

// Retrieval is the orchestrator output. An empty Results slice means nothing relevant was found.
type Retrieval struct {
	Variants       []QueryVariant `json:"variants"`
	Results        []FusedResult  `json:"results"`
	FailedVariants int            `json:"failed_variants"`
	Degraded       bool           `json:"degraded"`
	Warning        string         `json:"warning,omitempty"`
}

func (r *Retrieval) Empty() bool {
	return r == nil || len(r.Results) == 0
}

func (r *Retrieval) Chunks() []Chunk {
	if r == nil {
		return nil
	}
	out := make([]Chunk, 0, len(r.Results))
	for _, res := range r.Results {
		out = append(out, res.Chunk)
	}
	return out
}
