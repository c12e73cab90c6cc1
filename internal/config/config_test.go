package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kirillkom/tanya-lalin/internal/core/domain"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	for _, key := range []string{
		"VECTOR_SEARCH_TOP_K", "FINAL_TOP_K", "MIN_SIMILARITY", "RRF_K",
		"WEIGHT_ORIGINAL", "WEIGHT_LEGAL", "WEIGHT_ADDITIONAL", "ORACLE_FAILURE_POLICY",
		"RETRIEVAL_TIMEOUT", "ORACLE_TIMEOUT", "SEARCH_TIMEOUT",
		"SESSION_TTL_HOURS", "MAX_CONTEXT_MESSAGES", "SESSION_SWEEP_INTERVAL", "CORS_ORIGINS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadIncludesRetrievalDefaults(t *testing.T) {
	isolateEnv(t)

	cfg := Load()
	limits := cfg.Retrieval()
	if limits.VectorSearchTopK != 10 || limits.FinalTopK != 5 {
		t.Fatalf("expected top-k defaults 10/5, got %d/%d", limits.VectorSearchTopK, limits.FinalTopK)
	}
	if limits.RRFK != 60 {
		t.Fatalf("expected default rrf k 60, got %d", limits.RRFK)
	}
	if limits.MinFusedScore != 0.01 {
		t.Fatalf("expected default fused threshold 0.01, got %f", limits.MinFusedScore)
	}
	if limits.Weights != domain.DefaultVariantWeights() {
		t.Fatalf("expected default weights, got %+v", limits.Weights)
	}
	if limits.OracleFailurePolicy != domain.OracleFailurePolicyFail {
		t.Fatalf("expected fail policy by default, got %q", limits.OracleFailurePolicy)
	}

	session := cfg.Session()
	if session.TTL != 24*time.Hour || session.MaxContextMessages != 10 {
		t.Fatalf("unexpected session defaults: %+v", session)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Fatalf("expected wildcard cors origin, got %v", cfg.CORSOrigins)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv("VECTOR_SEARCH_TOP_K", "20")
	t.Setenv("RRF_K", "75")
	t.Setenv("WEIGHT_LEGAL", "3.5")
	t.Setenv("ORACLE_FAILURE_POLICY", "Fallback")
	t.Setenv("ORACLE_TIMEOUT", "5")
	t.Setenv("SEARCH_TIMEOUT", "1500ms")
	t.Setenv("SESSION_TTL_HOURS", "2")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg := Load()
	limits := cfg.Retrieval()
	if limits.VectorSearchTopK != 20 || limits.RRFK != 75 {
		t.Fatalf("expected overrides, got top-k=%d rrf=%d", limits.VectorSearchTopK, limits.RRFK)
	}
	if limits.Weights.Legal != 3.5 {
		t.Fatalf("expected legal weight 3.5, got %f", limits.Weights.Legal)
	}
	if limits.OracleFailurePolicy != domain.OracleFailurePolicyFallback {
		t.Fatalf("expected fallback policy, got %q", limits.OracleFailurePolicy)
	}
	if limits.OracleTimeout != 5*time.Second || limits.SearchTimeout != 1500*time.Millisecond {
		t.Fatalf("unexpected timeouts: oracle=%s search=%s", limits.OracleTimeout, limits.SearchTimeout)
	}
	if cfg.Session().TTL != 2*time.Hour {
		t.Fatalf("expected ttl 2h, got %s", cfg.Session().TTL)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("expected two cors origins, got %v", cfg.CORSOrigins)
	}
}

func TestLoadFallsBackOnInvalidNumbers(t *testing.T) {
	isolateEnv(t)
	t.Setenv("FINAL_TOP_K", "lima")
	t.Setenv("MIN_SIMILARITY", "tinggi")

	limits := Load().Retrieval()
	if limits.FinalTopK != 5 || limits.MinFusedScore != 0.01 {
		t.Fatalf("expected defaults on invalid input, got top-k=%d min=%f", limits.FinalTopK, limits.MinFusedScore)
	}
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("QDRANT_COLLECTION_TEST_ONLY=legal_chunks_v2\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("ENV_FILE", path)
	t.Cleanup(func() { _ = os.Unsetenv("QDRANT_COLLECTION_TEST_ONLY") })

	Load()
	if got := os.Getenv("QDRANT_COLLECTION_TEST_ONLY"); got != "legal_chunks_v2" {
		t.Fatalf("expected value from .env file, got %q", got)
	}
}
