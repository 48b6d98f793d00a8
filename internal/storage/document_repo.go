package storage

import (
	"context"
	"errors"
	"fmt"

	"docchat/internal/models"

	"github.com/jackc/pgx/v5"
)

// DocumentRepo reads document state written by the ingestion side.
// The chat core never creates, updates, or deletes documents.
type DocumentRepo struct {
	db *DB
}

func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// FindDocument returns the document only when it exists and is owned by
// ownerID; a missing or foreign document yields ErrNotFound either way,
// so callers cannot distinguish the two.
func (r *DocumentRepo) FindDocument(ctx context.Context, documentID, ownerID string) (models.Document, error) {
	var d models.Document
	err := r.db.Pool.QueryRow(ctx, `
SELECT document_id, owner_id, COALESCE(name,''), status, created_at, updated_at
FROM documents
WHERE document_id=$1 AND owner_id=$2`, documentID, ownerID).
		Scan(&d.DocumentID, &d.OwnerID, &d.Name, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Document{}, fmt.Errorf("find document %s: %w", documentID, ErrNotFound)
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("find document: %w", err)
	}
	return d, nil
}
