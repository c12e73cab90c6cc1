package session

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/kirillkom/tanya-lalin/internal/core/domain"
)

const defaultShardCount = 32

// Observer receives session lifecycle events.
type Observer interface {
	SessionCreated()
	SessionExpired()
	SessionDeleted()
}

type nopObserver struct{}

func (nopObserver) SessionCreated() {}
func (nopObserver) SessionExpired() {}
func (nopObserver) SessionDeleted() {}

type Option func(*Store)

// WithClock replaces time.Now; tests use it to move across the TTL boundary.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func WithObserver(observer Observer) Option {
	return func(s *Store) { s.observer = observer }
}

func WithShards(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

type entry struct {
	mu           sync.Mutex
	id           string
	messages     []domain.Message
	nextID       int64
	createdAt    time.Time
	lastActivity time.Time
	deleted      bool
}

// Store keeps sessions in sharded go-cache containers. A per-entry mutex serializes
// mutations of one session; different sessions never share a lock beyond the shard map itself.
type Store struct {
	shards     []*cache.Cache
	shardCount int
	limits     domain.SessionLimits
	now        func() time.Time
	logger     *slog.Logger
	observer   Observer
}

func NewStore(limits domain.SessionLimits, opts ...Option) *Store {
	def := domain.DefaultSessionLimits()
	if limits.TTL <= 0 {
		limits.TTL = def.TTL
	}
	if limits.MaxContextMessages <= 0 {
		limits.MaxContextMessages = def.MaxContextMessages
	}
	if limits.SweepInterval <= 0 {
		limits.SweepInterval = def.SweepInterval
	}

	s := &Store{
		shardCount: defaultShardCount,
		limits:     limits,
		now:        time.Now,
		logger:     slog.Default(),
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}

	// Expiry is decided by the store's own clock; go-cache only holds the entries.
	s.shards = make([]*cache.Cache, s.shardCount)
	for i := range s.shards {
		s.shards[i] = cache.New(cache.NoExpiration, 0)
	}
	return s
}

func (s *Store) shard(id string) *cache.Cache {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

func (s *Store) Create(_ context.Context) (string, error) {
	now := s.now().UTC()
	id := uuid.NewString()
	e := &entry{id: id, createdAt: now, lastActivity: now, nextID: 1}
	if err := s.shard(id).Add(id, e, cache.NoExpiration); err != nil {
		return "", domain.WrapError(domain.ErrTemporary, "create session", err)
	}
	s.observer.SessionCreated()
	s.logger.Debug("session_created", "session_id", id)
	return id, nil
}

// lookup returns the entry locked, or ErrSessionNotFound when absent or expired.
func (s *Store) lookup(op, id string) (*entry, error) {
	raw, ok := s.shard(id).Get(id)
	if !ok {
		return nil, notFound(op, id)
	}
	e := raw.(*entry)
	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return nil, notFound(op, id)
	}
	if s.expired(e, s.now()) {
		e.deleted = true
		e.mu.Unlock()
		s.remove(id, e)
		s.observer.SessionExpired()
		s.logger.Info("session_expired", "session_id", id)
		return nil, notFound(op, id)
	}
	return e, nil
}

func (s *Store) expired(e *entry, now time.Time) bool {
	return now.Sub(e.lastActivity) >= s.limits.TTL
}

// remove deletes the shard slot only if it still holds e.
func (s *Store) remove(id string, e *entry) {
	sh := s.shard(id)
	if raw, ok := sh.Get(id); ok && raw.(*entry) == e {
		sh.Delete(id)
	}
}

func notFound(op, id string) error {
	return domain.WrapError(domain.ErrSessionNotFound, op, errors.New("session "+id))
}

// Append stores msg with the next message id and refreshes the session's activity time.
func (s *Store) Append(_ context.Context, id string, msg domain.Message) (domain.Message, error) {
	e, err := s.lookup("append message", id)
	if err != nil {
		return domain.Message{}, err
	}
	defer e.mu.Unlock()

	now := s.now().UTC()
	msg.ID = e.nextID
	e.nextID++
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	e.messages = append(e.messages, msg)
	e.lastActivity = now
	return msg, nil
}

// History returns up to window most recent messages, oldest first. A window <= 0 uses the
// configured context size. Reading does not extend the session.
func (s *Store) History(_ context.Context, id string, window int) ([]domain.Message, error) {
	e, err := s.lookup("read history", id)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	if window <= 0 {
		window = s.limits.MaxContextMessages
	}
	msgs := e.messages
	if len(msgs) > window {
		msgs = msgs[len(msgs)-window:]
	}
	return copyMessages(msgs), nil
}

func (s *Store) Snapshot(_ context.Context, id string) (*domain.Session, error) {
	e, err := s.lookup("read session", id)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	return &domain.Session{
		ID:           e.id,
		Messages:     copyMessages(e.messages),
		CreatedAt:    e.createdAt,
		LastActivity: e.lastActivity,
		TTL:          s.limits.TTL,
	}, nil
}

// Delete removes the session and reports whether a live session existed.
func (s *Store) Delete(_ context.Context, id string) (bool, error) {
	raw, ok := s.shard(id).Get(id)
	if !ok {
		return false, nil
	}
	e := raw.(*entry)
	e.mu.Lock()
	wasDeleted := e.deleted
	live := !wasDeleted && !s.expired(e, s.now())
	e.deleted = true
	e.mu.Unlock()
	s.remove(id, e)
	switch {
	case live:
		s.observer.SessionDeleted()
		s.logger.Info("session_deleted", "session_id", id)
	case !wasDeleted:
		s.observer.SessionExpired()
		s.logger.Info("session_expired", "session_id", id)
	}
	return live, nil
}

// Len counts stored entries, including expired ones not swept yet.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		n += sh.ItemCount()
	}
	return n
}

// Sweep removes every expired session and returns how many were removed.
// Only timestamps are inspected; each entry is locked on its own.
func (s *Store) Sweep() int {
	now := s.now()
	removed := 0
	for _, sh := range s.shards {
		for id, item := range sh.Items() {
			e := item.Object.(*entry)
			e.mu.Lock()
			stale := !e.deleted && s.expired(e, now)
			if stale {
				e.deleted = true
			}
			e.mu.Unlock()
			if stale {
				s.remove(id, e)
				s.observer.SessionExpired()
				removed++
			}
		}
	}
	return removed
}

// Run sweeps expired sessions every SweepInterval until ctx is done.
func (s *Store) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.limits.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Info("session_sweep", "removed", n, "remaining", s.Len())
			}
		}
	}
}

func copyMessages(in []domain.Message) []domain.Message {
	out := make([]domain.Message, len(in))
	copy(out, in)
	for i := range out {
		if len(out[i].RetrievedChunks) > 0 {
			out[i].RetrievedChunks = append([]domain.Chunk(nil), out[i].RetrievedChunks...)
		}
	}
	return out
}
