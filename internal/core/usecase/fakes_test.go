package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kirillkom/tanya-lalin/internal/core/domain"
)

// embedderFake encodes the variant text as a one-element "vector" index into the fake index.
type embedderFake struct {
	mu      sync.Mutex
	texts   []string
	failFor map[string]error
	vectors map[string][]float32
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if err, ok := f.failFor[text]; ok {
		return nil, err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0}, nil
}

// indexFake returns the ranking registered for the first vector component.
type indexFake struct {
	rankings  map[float32][]string
	chunks    map[string]domain.Chunk
	searchErr map[float32]error
	block     bool

	mu    sync.Mutex
	topKs []int
}

func (f *indexFake) Search(ctx context.Context, vector []float32, topK int) ([]domain.ScoredPoint, error) {
	f.mu.Lock()
	f.topKs = append(f.topKs, topK)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err, ok := f.searchErr[vector[0]]; ok {
		return nil, err
	}
	ids := f.rankings[vector[0]]
	out := make([]domain.ScoredPoint, 0, len(ids))
	for i, id := range ids {
		if i == topK {
			break
		}
		out = append(out, domain.ScoredPoint{ID: id, Score: 1 - float64(i)*0.05})
	}
	return out, nil
}

func (f *indexFake) Get(_ context.Context, ids []string) (map[string]domain.Chunk, error) {
	out := make(map[string]domain.Chunk, len(ids))
	for _, id := range ids {
		if c, ok := f.chunks[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

type expanderFake struct {
	mu    sync.Mutex
	calls int
	last  domain.ExpansionRequest
	exp   domain.Expansion
	err   error
	block bool
}

func (f *expanderFake) Expand(ctx context.Context, req domain.ExpansionRequest) (domain.Expansion, error) {
	f.mu.Lock()
	f.calls++
	f.last = req
	block := f.block
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return domain.Expansion{}, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Expansion{}, f.err
	}
	return f.exp, nil
}

type observerFake struct {
	mu             sync.Mutex
	variantFails   []domain.VariantOrigin
	oracleFailures []string
	fallbacks      int
	completed      int
}

func (o *observerFake) VariantSearchFailed(origin domain.VariantOrigin, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.variantFails = append(o.variantFails, origin)
}

func (o *observerFake) OracleFailed(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.oracleFailures = append(o.oracleFailures, kind)
}

func (o *observerFake) OracleFallback() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fallbacks++
}

func (o *observerFake) RetrievalCompleted(int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed++
}

func article(source string, n int, typ domain.ChunkType) domain.Chunk {
	return domain.Chunk{
		Source:        source,
		ArticleNumber: domain.IntPtr(n),
		ChunkType:     typ,
		Text:          fmt.Sprintf("Pasal %d", n),
	}
}

func rankedList(weight float64, chunks ...domain.Chunk) domain.RankedList {
	list := domain.RankedList{Variant: domain.QueryVariant{Text: "v", Weight: weight}}
	for i, c := range chunks {
		list.Entries = append(list.Entries, domain.RankedChunk{Chunk: c, Rank: i + 1})
	}
	return list
}

var errBoom = errors.New("boom")
