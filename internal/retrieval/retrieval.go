// Package retrieval answers "which passages of this document are most
// similar to this question" by embedding the query and searching the
// document's vector namespace.
package retrieval

import (
	"context"
	"errors"
	"fmt"

	"docchat/internal/chat"
	"docchat/internal/models"
	"docchat/internal/providers"
	"docchat/internal/vector"
)

type Client struct {
	providers *providers.Manager
	searcher  *vector.Searcher
	embedDim  int
}

func NewClient(pm *providers.Manager, searcher *vector.Searcher, embedDim int) *Client {
	return &Client{providers: pm, searcher: searcher, embedDim: embedDim}
}

// Retrieve returns the top-k passages for the query, in similarity rank
// order. Embedding providers are tried in preference order; if none
// produces a vector, or the index itself is unreachable, the failure is
// surfaced as ErrRetrievalUnavailable and is not retried here.
func (c *Client) Retrieve(ctx context.Context, documentID, query string, k int) ([]models.Passage, error) {
	if k <= 0 {
		k = 4
	}

	var (
		vecs [][]float32
		err  error
	)
	for _, idx := range c.providers.PreferredEmbedOrder() {
		p, _ := c.providers.EmbedProviderByIndex(idx)
		vecs, _, err = p.Embed(ctx, providers.EmbedRequest{Inputs: []string{query}, Dimension: c.embedDim})
		if err == nil && len(vecs) > 0 {
			break
		}
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		if err == nil {
			err = errors.New("no embedding produced")
		}
		return nil, fmt.Errorf("%w: embed query: %v", chat.ErrRetrievalUnavailable, err)
	}

	passages, err := c.searcher.SearchPassages(ctx, documentID, vecs[0], k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrRetrievalUnavailable, err)
	}
	return passages, nil
}
