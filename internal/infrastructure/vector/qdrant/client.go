package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/tanya-lalin/internal/core/domain"
	"github.com/kirillkom/tanya-lalin/internal/infrastructure/resilience"
)

// Client reads the legal chunk collection over the Qdrant REST API.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) { c.executor = executor }
}

func New(baseURL, collection string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search returns the nearest point ids in descending similarity, without payloads.
func (c *Client) Search(ctx context.Context, vector []float32, topK int) ([]domain.ScoredPoint, error) {
	if len(vector) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "qdrant search", errors.New("empty query vector"))
	}
	if topK <= 0 {
		return nil, nil
	}

	var resp struct {
		Result []struct {
			ID    json.RawMessage `json:"id"`
			Score float64         `json:"score"`
		} `json:"result"`
	}
	err := c.execute(ctx, "qdrant_search", func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/points/search", map[string]any{
			"vector":       vector,
			"limit":        topK,
			"with_payload": false,
			"with_vector":  false,
		}, &resp, "search")
	})
	if err != nil {
		return nil, wrapIndexError("qdrant search", err)
	}

	out := make([]domain.ScoredPoint, 0, len(resp.Result))
	for _, r := range resp.Result {
		id, err := decodePointID(r.ID)
		if err != nil {
			return nil, domain.WrapError(domain.ErrVectorIndex, "qdrant search", err)
		}
		out = append(out, domain.ScoredPoint{ID: id, Score: r.Score})
	}
	return out, nil
}

// Get resolves point ids to chunks. Ids without a stored point are absent from the map.
func (c *Client) Get(ctx context.Context, ids []string) (map[string]domain.Chunk, error) {
	if len(ids) == 0 {
		return map[string]domain.Chunk{}, nil
	}
	pointIDs := make([]any, 0, len(ids))
	for _, id := range ids {
		pid, err := encodePointID(id)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "qdrant get", err)
		}
		pointIDs = append(pointIDs, pid)
	}

	var resp struct {
		Result []struct {
			ID      json.RawMessage `json:"id"`
			Payload map[string]any  `json:"payload"`
		} `json:"result"`
	}
	err := c.execute(ctx, "qdrant_get", func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/points", map[string]any{
			"ids":          pointIDs,
			"with_payload": true,
			"with_vector":  false,
		}, &resp, "get")
	})
	if err != nil {
		return nil, wrapIndexError("qdrant get", err)
	}

	out := make(map[string]domain.Chunk, len(resp.Result))
	for _, r := range resp.Result {
		id, err := decodePointID(r.ID)
		if err != nil {
			return nil, domain.WrapError(domain.ErrVectorIndex, "qdrant get", err)
		}
		out[id] = chunkFromPayload(r.Payload)
	}
	return out, nil
}

// Count returns the exact number of points in the collection.
func (c *Client) Count(ctx context.Context) (int64, error) {
	var resp struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
	}
	err := c.execute(ctx, "qdrant_count", func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/points/count", map[string]any{"exact": true}, &resp, "count")
	})
	if err != nil {
		return 0, wrapIndexError("qdrant count", err)
	}
	return resp.Result.Count, nil
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, operation, fn, classifyQdrantError)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	url := fmt.Sprintf("%s/collections/%s%s", c.baseURL, c.collection, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{Operation: operation, StatusCode: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func wrapIndexError(operation string, err error) error {
	if errors.Is(err, context.Canceled) || domain.IsKind(err, domain.ErrInvalidInput) {
		return err
	}
	if classifyQdrantError(err).Retryable {
		err = domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return domain.WrapError(domain.ErrVectorIndex, operation, err)
}

// decodePointID accepts both numeric and UUID point ids and renders them as strings.
func decodePointID(raw json.RawMessage) (string, error) {
	var n uint64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatUint(n, 10), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("unexpected point id %s", string(raw))
	}
	return s, nil
}

func encodePointID(id string) (any, error) {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return n, nil
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("point id %q is neither unsigned integer nor uuid", id)
	}
	return parsed.String(), nil
}

func chunkFromPayload(payload map[string]any) domain.Chunk {
	return domain.Chunk{
		Source:          getStringPayload(payload, "source"),
		ArticleNumber:   getIntPayload(payload, "article_number"),
		ParagraphNumber: getIntPayload(payload, "paragraph_number"),
		ChunkType:       domain.ParseChunkType(getStringPayload(payload, "chunk_type")),
		Text:            getStringPayload(payload, "text"),
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// getIntPayload tolerates numbers stored as JSON numbers or numeric strings.
func getIntPayload(payload map[string]any, key string) *int {
	switch v := payload[key].(type) {
	case float64:
		return domain.IntPtr(int(v))
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil
		}
		return domain.IntPtr(n)
	default:
		return nil
	}
}
