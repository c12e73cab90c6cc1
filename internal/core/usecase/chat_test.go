package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/kirillkom/tanya-lalin/internal/core/domain"
	"github.com/kirillkom/tanya-lalin/internal/core/ports"
)

type sessionStoreFake struct {
	mu       sync.Mutex
	sessions map[string][]domain.Message
	nextID   int
}

func newSessionStoreFake() *sessionStoreFake {
	return &sessionStoreFake{sessions: map[string][]domain.Message{}}
}

func (f *sessionStoreFake) Create(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := "s-" + strings.Repeat("x", f.nextID)
	f.sessions[id] = nil
	return id, nil
}

func (f *sessionStoreFake) Append(_ context.Context, id string, msg domain.Message) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs, ok := f.sessions[id]
	if !ok {
		return domain.Message{}, domain.WrapError(domain.ErrSessionNotFound, "append", errors.New(id))
	}
	msg.ID = int64(len(msgs) + 1)
	f.sessions[id] = append(msgs, msg)
	return msg, nil
}

func (f *sessionStoreFake) History(_ context.Context, id string, window int) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs, ok := f.sessions[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "history", errors.New(id))
	}
	if window > 0 && len(msgs) > window {
		msgs = msgs[len(msgs)-window:]
	}
	return append([]domain.Message(nil), msgs...), nil
}

func (f *sessionStoreFake) Snapshot(_ context.Context, id string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs, ok := f.sessions[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "snapshot", errors.New(id))
	}
	return &domain.Session{ID: id, Messages: append([]domain.Message(nil), msgs...)}, nil
}

func (f *sessionStoreFake) Delete(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sessions[id]
	delete(f.sessions, id)
	return ok, nil
}

type retrieverFake struct {
	result  *domain.Retrieval
	err     error
	history []domain.Message
}

func (f *retrieverFake) Retrieve(_ context.Context, _ string, history []domain.Message) (*domain.Retrieval, error) {
	f.history = history
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type generatorFake struct {
	calls   int
	answer  string
	err     error
	history []domain.Message
}

func (f *generatorFake) GenerateAnswer(_ context.Context, _ string, _ []domain.FusedResult, history []domain.Message) (string, error) {
	f.calls++
	f.history = history
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type publisherFake struct {
	events []domain.TurnCompleted
	err    error
}

func (f *publisherFake) PublishTurnCompleted(_ context.Context, event domain.TurnCompleted) error {
	f.events = append(f.events, event)
	return f.err
}

func sampleRetrieval() *domain.Retrieval {
	return &domain.Retrieval{
		Results: []domain.FusedResult{
			{Chunk: article("uu-22-2009", 287, domain.ChunkTypeBody), FusedScore: 0.05},
		},
	}
}

func TestChatUseCaseCreatesSessionAndStoresTurn(t *testing.T) {
	store := newSessionStoreFake()
	generator := &generatorFake{answer: "Menurut Pasal 287 ayat (2) ..."}
	publisher := &publisherFake{}
	uc := NewChatUseCase(store, &retrieverFake{result: sampleRetrieval()}, generator, publisher, nil, domain.DefaultSessionLimits())

	res, err := uc.Chat(context.Background(), ports.ChatRequest{Message: "  sanksi menerobos lampu merah?  "})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if res.SessionID == "" {
		t.Fatalf("expected a new session id")
	}
	if res.Query != "sanksi menerobos lampu merah?" {
		t.Fatalf("expected trimmed query, got %q", res.Query)
	}
	if len(res.RetrievedChunks) != 1 {
		t.Fatalf("expected 1 retrieved chunk, got %d", len(res.RetrievedChunks))
	}

	snap, err := uc.History(context.Background(), res.SessionID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(snap.Messages) != 2 || snap.Messages[0].Role != domain.RoleUser || snap.Messages[1].Role != domain.RoleAssistant {
		t.Fatalf("expected user then assistant message, got %+v", snap.Messages)
	}
	if len(snap.Messages[1].RetrievedChunks) != 1 {
		t.Fatalf("expected retrieved chunks on assistant message")
	}
	if len(publisher.events) != 1 || publisher.events[0].MessageID != 2 {
		t.Fatalf("expected one turn event for message 2, got %+v", publisher.events)
	}
	if publisher.events[0].ChunkKeys[0] != "uu-22-2009|000287|-|body" {
		t.Fatalf("unexpected chunk key %q", publisher.events[0].ChunkKeys[0])
	}
}

func TestChatUseCaseHistoryExcludesCurrentTurn(t *testing.T) {
	store := newSessionStoreFake()
	retriever := &retrieverFake{result: sampleRetrieval()}
	generator := &generatorFake{answer: "jawaban"}
	uc := NewChatUseCase(store, retriever, generator, nil, nil, domain.DefaultSessionLimits())

	first, err := uc.Chat(context.Background(), ports.ChatRequest{Message: "pertanyaan pertama"})
	if err != nil {
		t.Fatalf("first chat: %v", err)
	}
	if len(retriever.history) != 0 {
		t.Fatalf("expected empty history on first turn, got %d", len(retriever.history))
	}

	if _, err := uc.Chat(context.Background(), ports.ChatRequest{SessionID: first.SessionID, Message: "pertanyaan kedua"}); err != nil {
		t.Fatalf("second chat: %v", err)
	}
	if len(retriever.history) != 2 || retriever.history[0].Content != "pertanyaan pertama" {
		t.Fatalf("expected previous turn as history, got %+v", retriever.history)
	}
}

func TestChatUseCaseTruncatesGeneratorHistory(t *testing.T) {
	store := newSessionStoreFake()
	id, _ := store.Create(context.Background())
	for i := 0; i < 8; i++ {
		_, _ = store.Append(context.Background(), id, domain.Message{Role: domain.RoleUser, Content: strings.Repeat("a", 700)})
	}
	generator := &generatorFake{answer: "jawaban"}
	uc := NewChatUseCase(store, &retrieverFake{result: sampleRetrieval()}, generator, nil, nil, domain.DefaultSessionLimits())

	if _, err := uc.Chat(context.Background(), ports.ChatRequest{SessionID: id, Message: "lanjut"}); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if len(generator.history) != 6 {
		t.Fatalf("expected 6 history messages for generation, got %d", len(generator.history))
	}
	for _, m := range generator.history {
		if len([]rune(m.Content)) != 500 {
			t.Fatalf("expected content truncated to 500 runes, got %d", len([]rune(m.Content)))
		}
	}
}

func TestChatUseCaseNoRelevantChunksSkipsGenerator(t *testing.T) {
	generator := &generatorFake{answer: "should not be used"}
	uc := NewChatUseCase(newSessionStoreFake(), &retrieverFake{result: &domain.Retrieval{}}, generator, nil, nil, domain.DefaultSessionLimits())

	res, err := uc.Chat(context.Background(), ports.ChatRequest{Message: "cuaca hari ini"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if generator.calls != 0 {
		t.Fatalf("generator must not be called without context")
	}
	if res.Response != domain.NoRelevantChunksAnswer {
		t.Fatalf("expected fixed no-relevant-chunks answer, got %q", res.Response)
	}
	if res.RetrievedChunks == nil || len(res.RetrievedChunks) != 0 {
		t.Fatalf("expected empty, non-nil chunk list")
	}
}

func TestChatUseCaseNotFoundAnswerClearsChunks(t *testing.T) {
	generator := &generatorFake{answer: domain.NotFoundAnswer}
	uc := NewChatUseCase(newSessionStoreFake(), &retrieverFake{result: sampleRetrieval()}, generator, nil, nil, domain.DefaultSessionLimits())

	res, err := uc.Chat(context.Background(), ports.ChatRequest{Message: "pertanyaan"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if len(res.RetrievedChunks) != 0 {
		t.Fatalf("expected no chunks with not-found answer, got %d", len(res.RetrievedChunks))
	}
}

func TestChatUseCaseValidation(t *testing.T) {
	uc := NewChatUseCase(newSessionStoreFake(), &retrieverFake{result: sampleRetrieval()}, &generatorFake{}, nil, nil, domain.DefaultSessionLimits())

	for _, msg := range []string{"", "   ", strings.Repeat("é", MaxChatMessageRunes+1)} {
		if _, err := uc.Chat(context.Background(), ports.ChatRequest{Message: msg}); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("message of %d runes: expected ErrInvalidInput, got %v", len([]rune(msg)), err)
		}
	}
	if _, err := uc.Chat(context.Background(), ports.ChatRequest{Message: strings.Repeat("é", MaxChatMessageRunes)}); err != nil {
		t.Fatalf("expected %d runes to be accepted, got %v", MaxChatMessageRunes, err)
	}
}

func TestChatUseCaseUnknownSession(t *testing.T) {
	uc := NewChatUseCase(newSessionStoreFake(), &retrieverFake{result: sampleRetrieval()}, &generatorFake{}, nil, nil, domain.DefaultSessionLimits())

	_, err := uc.Chat(context.Background(), ports.ChatRequest{SessionID: "missing", Message: "halo"})
	if !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestChatUseCasePropagatesRetrievalAndGeneratorErrors(t *testing.T) {
	retrievalErr := domain.WrapError(domain.ErrOracleUnavailable, "expand", errBoom)
	uc := NewChatUseCase(newSessionStoreFake(), &retrieverFake{err: retrievalErr}, &generatorFake{}, nil, nil, domain.DefaultSessionLimits())
	if _, err := uc.Chat(context.Background(), ports.ChatRequest{Message: "halo"}); !domain.IsKind(err, domain.ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}

	genErr := domain.WrapError(domain.ErrTemporary, "generate", errBoom)
	uc = NewChatUseCase(newSessionStoreFake(), &retrieverFake{result: sampleRetrieval()}, &generatorFake{err: genErr}, nil, nil, domain.DefaultSessionLimits())
	if _, err := uc.Chat(context.Background(), ports.ChatRequest{Message: "halo"}); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}

func TestChatUseCasePublishFailureDoesNotFailTurn(t *testing.T) {
	publisher := &publisherFake{err: errBoom}
	uc := NewChatUseCase(newSessionStoreFake(), &retrieverFake{result: sampleRetrieval()}, &generatorFake{answer: "ok"}, publisher, nil, domain.DefaultSessionLimits())

	if _, err := uc.Chat(context.Background(), ports.ChatRequest{Message: "halo"}); err != nil {
		t.Fatalf("expected publish failure to be absorbed, got %v", err)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected publish attempt")
	}
}

func TestChatUseCaseDeleteSession(t *testing.T) {
	store := newSessionStoreFake()
	uc := NewChatUseCase(store, &retrieverFake{result: sampleRetrieval()}, &generatorFake{answer: "ok"}, nil, nil, domain.DefaultSessionLimits())
	id, _ := store.Create(context.Background())

	deleted, err := uc.DeleteSession(context.Background(), id)
	if err != nil || !deleted {
		t.Fatalf("expected deletion, got deleted=%v err=%v", deleted, err)
	}
	deleted, err = uc.DeleteSession(context.Background(), id)
	if err != nil || deleted {
		t.Fatalf("expected idempotent second delete, got deleted=%v err=%v", deleted, err)
	}
}
