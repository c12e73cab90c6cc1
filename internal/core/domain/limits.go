package domain

import "time"

type OracleFailurePolicy string

const (
	OracleFailurePolicyFail     OracleFailurePolicy = "fail"
	OracleFailurePolicyFallback OracleFailurePolicy = "fallback"
)

func ParseOracleFailurePolicy(v string) OracleFailurePolicy {
	if OracleFailurePolicy(v) == OracleFailurePolicyFallback {
		return OracleFailurePolicyFallback
	}
	return OracleFailurePolicyFail
}

// RetrievalLimits carries every tunable of the retrieval pipeline.
type RetrievalLimits struct {
	VectorSearchTopK    int                 `json:"vector_search_top_k"`
	FinalTopK           int                 `json:"final_top_k"`
	MinFusedScore       float64             `json:"min_fused_score"`
	RRFK                int                 `json:"rrf_k"`
	Weights             VariantWeights      `json:"weights"`
	OracleFailurePolicy OracleFailurePolicy `json:"oracle_failure_policy"`
	Timeout             time.Duration       `json:"timeout"`
	OracleTimeout       time.Duration       `json:"oracle_timeout"`
	SearchTimeout       time.Duration       `json:"search_timeout"`
}

func DefaultRetrievalLimits() RetrievalLimits {
	return RetrievalLimits{
		VectorSearchTopK:    10,
		FinalTopK:           5,
		MinFusedScore:       0.01,
		RRFK:                60,
		Weights:             DefaultVariantWeights(),
		OracleFailurePolicy: OracleFailurePolicyFail,
		Timeout:             30 * time.Second,
		OracleTimeout:       15 * time.Second,
		SearchTimeout:       10 * time.Second,
	}
}

// Normalize replaces unset or invalid values with defaults. A zero MinFusedScore is kept.
func (l RetrievalLimits) Normalize() RetrievalLimits {
	def := DefaultRetrievalLimits()
	if l.VectorSearchTopK <= 0 {
		l.VectorSearchTopK = def.VectorSearchTopK
	}
	if l.FinalTopK <= 0 {
		l.FinalTopK = def.FinalTopK
	}
	if l.MinFusedScore < 0 {
		l.MinFusedScore = 0
	}
	if l.RRFK <= 0 {
		l.RRFK = def.RRFK
	}
	if l.Weights == (VariantWeights{}) {
		l.Weights = def.Weights
	}
	if l.OracleFailurePolicy == "" {
		l.OracleFailurePolicy = def.OracleFailurePolicy
	}
	if l.Timeout <= 0 {
		l.Timeout = def.Timeout
	}
	if l.OracleTimeout <= 0 {
		l.OracleTimeout = def.OracleTimeout
	}
	if l.SearchTimeout <= 0 {
		l.SearchTimeout = def.SearchTimeout
	}
	return l
}

type SessionLimits struct {
	TTL                time.Duration `json:"ttl"`
	MaxContextMessages int           `json:"max_context_messages"`
	SweepInterval      time.Duration `json:"sweep_interval"`
}

func DefaultSessionLimits() SessionLimits {
	return SessionLimits{
		TTL:                24 * time.Hour,
		MaxContextMessages: 10,
		SweepInterval:      10 * time.Minute,
	}
}
