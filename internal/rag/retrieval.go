package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultCharacterLimit is the number of chunks fetched per character lookup.
const DefaultCharacterLimit = 5

var ErrEmptyQuery = errors.New("query cannot be empty")

// Retriever provides character-oriented retrieval over a Collection.
type Retriever struct {
	collection *Collection
	limit      int
}

// NewRetriever creates a new Retriever instance. A non-positive limit uses
// DefaultCharacterLimit.
func NewRetriever(collection *Collection, limit int) (*Retriever, error) {
	if collection == nil {
		return nil, fmt.Errorf("collection cannot be nil")
	}
	if limit <= 0 {
		limit = DefaultCharacterLimit
	}
	return &Retriever{collection: collection, limit: limit}, nil
}

// Limit returns the configured result limit.
func (r *Retriever) Limit() int { return r.limit }

// FindCharacter searches for chunks relevant to a character name. An empty
// slice with a nil error means the corpus holds nothing for the name; an
// error means the search itself failed.
func (r *Retriever) FindCharacter(ctx context.Context, name string) ([]Match, error) {
	return r.Search(ctx, name, r.limit)
}

// Search performs semantic search using a free-text query.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	matches, err := r.collection.Search(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("character search failed: %w", err)
	}
	return matches, nil
}
