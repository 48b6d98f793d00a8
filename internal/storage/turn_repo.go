package storage

import (
	"context"
	"fmt"
	"time"

	"docchat/internal/models"

	"github.com/google/uuid"
)

// TurnRepo is the append-only turn log. Turns are keyed by
// (document_id, created_at) for ordered retrieval and are never
// updated or deleted here.
type TurnRepo struct {
	db *DB
}

func NewTurnRepo(db *DB) *TurnRepo {
	return &TurnRepo{db: db}
}

func (r *TurnRepo) CreateTurn(ctx context.Context, documentID, userID, role, text string) (models.Turn, error) {
	t := models.Turn{
		TurnID:     uuid.NewString(),
		DocumentID: documentID,
		UserID:     userID,
		Role:       role,
		Text:       text,
	}
	err := r.db.Pool.QueryRow(ctx, `
INSERT INTO turns (turn_id, document_id, user_id, role, text)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at`,
		t.TurnID, t.DocumentID, t.UserID, t.Role, t.Text,
	).Scan(&t.CreatedAt)
	if err != nil {
		return models.Turn{}, fmt.Errorf("create %s turn: %w", role, err)
	}
	return t, nil
}

// ListRecentTurns returns the most recent turns in chronological order
// (oldest of the window first).
func (r *TurnRepo) ListRecentTurns(ctx context.Context, documentID string, limit int) ([]models.Turn, error) {
	if limit <= 0 {
		limit = 6
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT turn_id, document_id, user_id, role, text, created_at
FROM turns
WHERE document_id=$1
ORDER BY created_at DESC
LIMIT $2`, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent turns: %w", err)
	}
	defer rows.Close()

	out := make([]models.Turn, 0, limit)
	for rows.Next() {
		var t models.Turn
		if err := rows.Scan(&t.TurnID, &t.DocumentID, &t.UserID, &t.Role, &t.Text, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	// Flip newest-first rows into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ListTurnPage returns one newest-first page, with keyset pagination on
// created_at. A nil cursor starts from the newest turn.
func (r *TurnRepo) ListTurnPage(ctx context.Context, documentID string, limit int, cursor *time.Time) (models.TurnPage, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT turn_id, document_id, user_id, role, text, created_at
FROM turns
WHERE document_id=$1 AND ($2::timestamptz IS NULL OR created_at < $2)
ORDER BY created_at DESC
LIMIT $3`, documentID, cursor, limit+1)
	if err != nil {
		return models.TurnPage{}, fmt.Errorf("list turn page: %w", err)
	}
	defer rows.Close()

	turns := make([]models.Turn, 0, limit+1)
	for rows.Next() {
		var t models.Turn
		if err := rows.Scan(&t.TurnID, &t.DocumentID, &t.UserID, &t.Role, &t.Text, &t.CreatedAt); err != nil {
			return models.TurnPage{}, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return models.TurnPage{}, fmt.Errorf("iterate turn page: %w", err)
	}

	page := models.TurnPage{Turns: turns}
	if len(turns) > limit {
		page.Turns = turns[:limit]
		page.NextCursor = page.Turns[limit-1].CreatedAt.Format(time.RFC3339Nano)
	}
	return page, nil
}
