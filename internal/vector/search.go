package vector

import (
	"context"
	"fmt"
	"strings"

	"docchat/internal/models"

	"github.com/jackc/pgx/v5"
)

// Searcher runs pgvector similarity queries over a document's chunk
// namespace. The namespace is populated by the ingestion side before a
// document becomes ready; this is a pure read.
type Searcher struct {
	q Queryer
}

type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func NewSearcher(q Queryer) *Searcher {
	return &Searcher{q: q}
}

func (s *Searcher) SearchPassages(ctx context.Context, documentID string, queryVec []float32, topK int) ([]models.Passage, error) {
	if topK <= 0 {
		topK = 4
	}
	vecLiteral := ToLiteral(queryVec)

	query := `
SELECT c.text,
       1 - (c.embedding <=> $2::vector) AS score
FROM chunks c
WHERE c.document_id = $1
  AND c.embedding IS NOT NULL
ORDER BY c.embedding <=> $2::vector
LIMIT $3`

	rows, err := s.q.Query(ctx, query, documentID, vecLiteral, topK)
	if err != nil {
		return nil, fmt.Errorf("query vector search: %w", err)
	}
	defer rows.Close()

	passages := make([]models.Passage, 0, topK)
	for rows.Next() {
		var p models.Passage
		if err := rows.Scan(&p.Text, &p.Score); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		p.Rank = len(passages) + 1
		passages = append(passages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return passages, nil
}

func ToLiteral(v []float32) string {
	parts := make([]string, 0, len(v))
	for _, x := range v {
		parts = append(parts, fmt.Sprintf("%f", x))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
