package client

import (
	"context"
	"time"

	"docchat/internal/models"

	"github.com/google/uuid"
)

// PendingAssistantID is the sentinel id of the placeholder assistant turn
// while a response is streaming. Delta updates always target this single
// turn, so repeated updates can never duplicate it.
const PendingAssistantID = "assistant-pending"

// HistorySource fetches the authoritative first page of a conversation.
type HistorySource interface {
	ListTurnPage(ctx context.Context, documentID string, limit int) (models.TurnPage, error)
}

// ConversationCache is the client-side view of one conversation: a
// newest-first page of turns plus the input field text. It is created
// when a conversation view opens and dropped when the view closes, and
// is driven from a single goroutine per the send flow.
//
// Per exchange: BeginExchange applies the speculative user turn,
// ApplyDelta merges streamed text into the placeholder assistant turn,
// then either Reconcile (settlement) or Rollback (failure) runs.
type ConversationCache struct {
	documentID string
	source     HistorySource
	pageSize   int

	page    models.TurnPage
	input   string
	pending string

	snapshot *exchangeSnapshot
}

type exchangeSnapshot struct {
	turns    []models.Turn
	question string
}

func NewConversationCache(source HistorySource, documentID string, pageSize int) *ConversationCache {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &ConversationCache{documentID: documentID, source: source, pageSize: pageSize}
}

func (c *ConversationCache) DocumentID() string { return c.documentID }

// Turns returns the visible page, newest first.
func (c *ConversationCache) Turns() []models.Turn { return c.page.Turns }

func (c *ConversationCache) Input() string         { return c.input }
func (c *ConversationCache) SetInput(text string)  { c.input = text }

// Load fetches the initial page from the server.
func (c *ConversationCache) Load(ctx context.Context) error {
	page, err := c.source.ListTurnPage(ctx, c.documentID, c.pageSize)
	if err != nil {
		return err
	}
	c.page = page
	return nil
}

// BeginExchange snapshots the current state, prepends a speculative user
// turn with a client-generated id, and clears the input field.
func (c *ConversationCache) BeginExchange(question string) {
	c.snapshot = &exchangeSnapshot{
		turns:    cloneTurns(c.page.Turns),
		question: question,
	}
	c.page.Turns = append([]models.Turn{{
		TurnID:     uuid.NewString(),
		DocumentID: c.documentID,
		Role:       models.RoleUser,
		Text:       question,
		CreatedAt:  time.Now(),
	}}, c.page.Turns...)
	c.input = ""
	c.pending = ""
}

// ApplyDelta merges one decoded text delta. The first delta creates the
// placeholder assistant turn; later deltas replace its text with the
// running concatenation.
func (c *ConversationCache) ApplyDelta(text string) {
	c.pending += text
	for i := range c.page.Turns {
		if c.page.Turns[i].TurnID == PendingAssistantID {
			c.page.Turns[i].Text = c.pending
			return
		}
	}
	c.page.Turns = append([]models.Turn{{
		TurnID:     PendingAssistantID,
		DocumentID: c.documentID,
		Role:       models.RoleAssistant,
		Text:       c.pending,
		CreatedAt:  time.Now(),
	}}, c.page.Turns...)
}

// Rollback restores the page to its pre-exchange snapshot and puts the
// original question back in the input field.
func (c *ConversationCache) Rollback() {
	if c.snapshot == nil {
		return
	}
	c.page.Turns = c.snapshot.turns
	c.input = c.snapshot.question
	c.pending = ""
	c.snapshot = nil
}

// Reconcile replaces the cached page with server truth so synthetic ids
// give way to authoritative turns. It runs on success and on failure.
func (c *ConversationCache) Reconcile(ctx context.Context) error {
	page, err := c.source.ListTurnPage(ctx, c.documentID, c.pageSize)
	if err != nil {
		return err
	}
	c.page = page
	c.pending = ""
	c.snapshot = nil
	return nil
}

func cloneTurns(turns []models.Turn) []models.Turn {
	out := make([]models.Turn, len(turns))
	copy(out, turns)
	return out
}
