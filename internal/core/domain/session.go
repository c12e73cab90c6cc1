package domain

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID              int64     `json:"id"`
	Role            Role      `json:"role"`
	Content         string    `json:"content"`
	Timestamp       time.Time `json:"timestamp"`
	RetrievedChunks []Chunk   `json:"retrieved_chunks,omitempty"`
}

// Session is a read-only snapshot; the session store owns the live value.
type Session struct {
	ID           string        `json:"id"`
	Messages     []Message     `json:"messages"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActivity time.Time     `json:"last_activity"`
	TTL          time.Duration `json:"ttl"`
}

// TurnCompleted is emitted after the assistant message of a turn is stored.
type TurnCompleted struct {
	SessionID string    `json:"session_id"`
	MessageID int64     `json:"message_id"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	ChunkKeys []string  `json:"chunk_keys"`
	Degraded  bool      `json:"degraded"`
	CreatedAt time.Time `json:"created_at"`
}
