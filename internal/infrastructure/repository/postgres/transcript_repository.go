package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/tanya-lalin/internal/core/domain"
	"github.com/kirillkom/tanya-lalin/internal/infrastructure/resilience"
)

const schemaLockKey = int64(2026101801)

// TranscriptRepository archives completed chat turns. Sessions themselves stay in memory.
type TranscriptRepository struct {
	db       *sql.DB
	executor *resilience.Executor
}

type Option func(*TranscriptRepository)

// WithExecutor retries transient insert failures behind a circuit breaker.
func WithExecutor(executor *resilience.Executor) Option {
	return func(r *TranscriptRepository) {
		r.executor = executor
	}
}

func NewTranscriptRepository(db *sql.DB, opts ...Option) *TranscriptRepository {
	r := &TranscriptRepository{db: db}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *TranscriptRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across worker replicas.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS chat_turns (
	session_id TEXT NOT NULL,
	message_id BIGINT NOT NULL,
	query TEXT NOT NULL,
	response TEXT NOT NULL,
	chunk_keys JSONB NOT NULL DEFAULT '[]'::jsonb,
	degraded BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	archived_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_id, message_id)
);

CREATE INDEX IF NOT EXISTS idx_chat_turns_created_at ON chat_turns(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// SaveTurn inserts the turn once; redelivered events are ignored.
func (r *TranscriptRepository) SaveTurn(ctx context.Context, event domain.TurnCompleted) error {
	if event.SessionID == "" || event.MessageID <= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "save turn", errors.New("session_id and message_id are required"))
	}
	keys := event.ChunkKeys
	if keys == nil {
		keys = []string{}
	}
	keysJSON, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("marshal chunk keys: %w", err)
	}
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	insert := func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, `
INSERT INTO chat_turns (session_id, message_id, query, response, chunk_keys, degraded, created_at, archived_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (session_id, message_id) DO NOTHING
`, event.SessionID, event.MessageID, event.Query, event.Response, keysJSON, event.Degraded, createdAt, time.Now().UTC())
		if err != nil {
			return wrapInsertError(err)
		}
		return nil
	}

	if r.executor != nil {
		return r.executor.Execute(ctx, "postgres.save_turn", insert, resilience.DomainClassifier)
	}
	return insert(ctx)
}

// wrapInsertError marks connection-level failures as temporary so they are retried.
func wrapInsertError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return domain.WrapError(domain.ErrTemporary, "insert chat turn", err)
	}
	return fmt.Errorf("insert chat turn: %w", err)
}
