package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/tanya-lalin/internal/core/domain"
	"github.com/kirillkom/tanya-lalin/internal/infrastructure/resilience"
)

func TestSearchRequestsIDsWithoutPayload(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/legal/points/search" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode search body: %v", err)
		}
		_, _ = w.Write([]byte(`{"result":[
			{"id":"5f0c2b1e-8a53-4f53-9c58-6d6f7e0f1a01","score":0.91},
			{"id":42,"score":0.77}
		]}`))
	}))
	defer server.Close()

	points, err := New(server.URL, "legal").Search(context.Background(), []float32{0.1, 0.2}, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(points) != 2 || points[0].ID != "5f0c2b1e-8a53-4f53-9c58-6d6f7e0f1a01" || points[1].ID != "42" {
		t.Fatalf("unexpected points: %+v", points)
	}
	if body["with_payload"] != false || body["limit"] != float64(10) {
		t.Fatalf("unexpected search body: %#v", body)
	}
}

func TestGetDecodesLegalPayload(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/legal/points" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode get body: %v", err)
		}
		_, _ = w.Write([]byte(`{"result":[
			{"id":42,"payload":{"source":"uu-22-2009","article_number":287,"paragraph_number":2,"chunk_type":"body","text":"Setiap orang"}},
			{"id":"5f0c2b1e-8a53-4f53-9c58-6d6f7e0f1a01","payload":{"source":"uu-22-2009","article_number":"106","paragraph_number":null,"chunk_type":"elucidation","text":"Cukup jelas."}}
		]}`))
	}))
	defer server.Close()

	chunks, err := New(server.URL, "legal").Get(context.Background(), []string{"42", "5F0C2B1E-8A53-4F53-9C58-6D6F7E0F1A01", "7"})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 resolved chunks, got %d", len(chunks))
	}
	body287 := chunks["42"]
	if body287.Reference() != "Pasal 287 ayat (2)" || body287.ChunkType != domain.ChunkTypeBody {
		t.Fatalf("unexpected body chunk: %+v", body287)
	}
	eluc := chunks["5f0c2b1e-8a53-4f53-9c58-6d6f7e0f1a01"]
	if eluc.ParagraphNumber != nil || *eluc.ArticleNumber != 106 || eluc.ChunkType != domain.ChunkTypeElucidation {
		t.Fatalf("unexpected elucidation chunk: %+v", eluc)
	}

	ids, _ := body["ids"].([]any)
	if len(ids) != 3 || ids[0] != float64(42) || ids[1] != "5f0c2b1e-8a53-4f53-9c58-6d6f7e0f1a01" {
		t.Fatalf("unexpected ids in request: %#v", body["ids"])
	}
	if body["with_payload"] != true {
		t.Fatalf("expected payload to be requested")
	}
}

func TestGetRejectsMalformedID(t *testing.T) {
	_, err := New("http://127.0.0.1:0", "legal").Get(context.Background(), []string{"not-an-id"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSearchErrorIncludesBodyAndKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "collection legal not found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := New(server.URL, "legal").Search(context.Background(), []float32{1}, 5)
	if !domain.IsKind(err, domain.ErrVectorIndex) {
		t.Fatalf("expected ErrVectorIndex, got %v", err)
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("404 must not be temporary: %v", err)
	}
	if !strings.Contains(err.Error(), "collection legal not found") {
		t.Fatalf("expected body in error, got %v", err)
	}
}

func TestSearchRetriesOverload(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"result":[{"id":1,"score":0.5}]}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
	})
	points, err := New(server.URL, "legal", WithExecutor(exec)).Search(context.Background(), []float32{1}, 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(points) != 1 || calls.Load() != 2 {
		t.Fatalf("expected one retry, got %d calls and %d points", calls.Load(), len(points))
	}
}

func TestCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/legal/points/count" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"result":{"count":1234}}`))
	}))
	defer server.Close()

	n, err := New(server.URL, "legal").Count(context.Background())
	if err != nil || n != 1234 {
		t.Fatalf("Count() = %d, %v", n, err)
	}
}
