package models

import "time"

// Document processing states. Chat requests are accepted only for
// StatusReady documents; everything else belongs to the ingestion side.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Document struct {
	DocumentID string    `json:"document_id"`
	OwnerID    string    `json:"owner_id"`
	Name       string    `json:"name,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Turn is one persisted message in a document's conversation.
// Turns are immutable and append-only.
type Turn struct {
	TurnID     string    `json:"turn_id"`
	DocumentID string    `json:"document_id"`
	UserID     string    `json:"user_id"`
	Role       string    `json:"role"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// Passage is a retrieved excerpt of document text. Ephemeral, never persisted.
type Passage struct {
	Text  string  `json:"text"`
	Rank  int     `json:"rank"`
	Score float64 `json:"score"`
}

// TurnPage is one newest-first page of a document's conversation history.
// NextCursor is the created_at of the last turn on the page, empty when
// there is nothing older.
type TurnPage struct {
	Turns      []Turn `json:"turns"`
	NextCursor string `json:"next_cursor,omitempty"`
}
