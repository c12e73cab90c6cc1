package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/tanya-lalin/internal/core/domain"
)

func newIndexFixture() (*embedderFake, *indexFake) {
	embedder := &embedderFake{vectors: map[string][]float32{
		"original": {1},
		"legal":    {2},
		"extra":    {3},
	}}
	index := &indexFake{
		rankings: map[float32][]string{
			1: {"p1", "p2", "missing", "p1-copy"},
			2: {"p2", "p3"},
			3: {"p3"},
		},
		chunks: map[string]domain.Chunk{
			"p1":      article("uu-22-2009", 106, domain.ChunkTypeBody),
			"p1-copy": article("uu-22-2009", 106, domain.ChunkTypeBody),
			"p2":      article("uu-22-2009", 287, domain.ChunkTypeBody),
			"p3":      article("uu-22-2009", 287, domain.ChunkTypeElucidation),
		},
	}
	return embedder, index
}

func testVariants() []domain.QueryVariant {
	return []domain.QueryVariant{
		{Text: "original", Weight: 1.0, Origin: domain.OriginOriginal},
		{Text: "legal", Weight: 2.0, Origin: domain.OriginLegal},
		{Text: "extra", Weight: 0.8, Origin: domain.OriginAdditional},
	}
}

func TestMultiQueryExecutorBuildsRankedListsPerVariant(t *testing.T) {
	embedder, index := newIndexFixture()
	exec := NewMultiQueryExecutor(embedder, index, nil, nil, 10, time.Second)

	res, err := exec.Execute(context.Background(), testVariants())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(res.Lists) != 3 || len(res.Failed) != 0 {
		t.Fatalf("expected 3 lists and no failures, got %d lists, failed=%v", len(res.Lists), res.Failed)
	}
	original := res.Lists[0]
	if original.Variant.Origin != domain.OriginOriginal {
		t.Fatalf("expected lists in variant order, got %s first", original.Variant.Origin)
	}
	// Unresolved ids and duplicate identity keys are skipped; ranks stay consecutive.
	if len(original.Entries) != 2 {
		t.Fatalf("expected 2 entries for original variant, got %d", len(original.Entries))
	}
	for i, e := range original.Entries {
		if e.Rank != i+1 {
			t.Fatalf("expected rank %d, got %d", i+1, e.Rank)
		}
	}
	for _, k := range index.topKs {
		if k != 10 {
			t.Fatalf("expected top-k 10 for every search, got %d", k)
		}
	}
}

func TestMultiQueryExecutorAbsorbsSingleVariantFailure(t *testing.T) {
	embedder, index := newIndexFixture()
	index.searchErr = map[float32]error{2: errors.New("qdrant: 500")}
	observer := &observerFake{}
	exec := NewMultiQueryExecutor(embedder, index, observer, nil, 10, time.Second)

	res, err := exec.Execute(context.Background(), testVariants())
	if err != nil {
		t.Fatalf("expected partial success, got %v", err)
	}
	if len(res.Lists) != 2 {
		t.Fatalf("expected 2 surviving lists, got %d", len(res.Lists))
	}
	if len(res.Failed) != 1 || res.Failed[0] != domain.OriginLegal {
		t.Fatalf("expected legal variant failure, got %v", res.Failed)
	}
	if len(observer.variantFails) != 1 || observer.variantFails[0] != domain.OriginLegal {
		t.Fatalf("expected observer to record legal failure, got %v", observer.variantFails)
	}
}

func TestMultiQueryExecutorEmbeddingFailureIsPerVariant(t *testing.T) {
	embedder, index := newIndexFixture()
	embedder.failFor = map[string]error{"extra": errors.New("quota exceeded")}
	exec := NewMultiQueryExecutor(embedder, index, nil, nil, 10, time.Second)

	res, err := exec.Execute(context.Background(), testVariants())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(res.Failed) != 1 || res.Failed[0] != domain.OriginAdditional {
		t.Fatalf("expected additional variant failure, got %v", res.Failed)
	}
}

func TestMultiQueryExecutorAllVariantsFailed(t *testing.T) {
	embedder, index := newIndexFixture()
	index.searchErr = map[float32]error{1: errBoom, 2: errBoom, 3: errBoom}
	exec := NewMultiQueryExecutor(embedder, index, nil, nil, 10, time.Second)

	_, err := exec.Execute(context.Background(), testVariants())
	if !domain.IsKind(err, domain.ErrVectorIndex) {
		t.Fatalf("expected ErrVectorIndex, got %v", err)
	}
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected underlying errors to be joined, got %v", err)
	}
}

func TestMultiQueryExecutorAbandonsOnCancellation(t *testing.T) {
	embedder, index := newIndexFixture()
	index.block = true
	exec := NewMultiQueryExecutor(embedder, index, nil, nil, 10, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := exec.Execute(ctx, testVariants())
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("executor did not return after cancellation")
	}
}

func TestMultiQueryExecutorSearchTimeoutIsVariantFailure(t *testing.T) {
	embedder, index := newIndexFixture()
	index.block = true
	exec := NewMultiQueryExecutor(embedder, index, nil, nil, 10, 20*time.Millisecond)

	_, err := exec.Execute(context.Background(), testVariants())
	if !domain.IsKind(err, domain.ErrVectorIndex) {
		t.Fatalf("expected timeouts on every variant to surface as ErrVectorIndex, got %v", err)
	}
}
