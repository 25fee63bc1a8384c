package rag

import (
	"context"
	"errors"
	"fmt"
)

// Collection is the vector store as seen by the rest of lore: a backend paired
// with the embedder that writes and queries it. The embedder's spec is
// recorded on first write and checked on every later write and search.
type Collection struct {
	store    VectorStore
	embedder Embedder
}

// NewCollection pairs a store with an embedder.
func NewCollection(store VectorStore, embedder Embedder) (*Collection, error) {
	if store == nil {
		return nil, fmt.Errorf("vector store cannot be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	return &Collection{store: store, embedder: embedder}, nil
}

// Store returns the backing VectorStore.
func (c *Collection) Store() VectorStore { return c.store }

// Embedder returns the collection's embedder.
func (c *Collection) Embedder() Embedder { return c.embedder }

// Add embeds text and inserts it under id.
func (c *Collection) Add(ctx context.Context, text string, metadata ChunkMetadata, id string) error {
	return c.AddBatch(ctx, []string{text}, []ChunkMetadata{metadata}, []string{id})
}

// AddBatch embeds texts with a single embedder call and inserts them.
func (c *Collection) AddBatch(ctx context.Context, texts []string, metadata []ChunkMetadata, ids []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: %w", ErrStoreWrite, ErrEmptyRecords)
	}
	if len(texts) != len(metadata) || len(texts) != len(ids) {
		return fmt.Errorf("%w: %d texts, %d metadata, %d ids", ErrStoreWrite, len(texts), len(metadata), len(ids))
	}

	if err := c.checkSpec(ctx, true); err != nil {
		return err
	}

	vectors, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	records := make([]Record, len(texts))
	for i := range texts {
		if len(vectors[i]) != c.embedder.GetDimension() {
			return fmt.Errorf("%w: %w: expected %d, got %d", ErrStoreWrite, ErrInvalidDimension, c.embedder.GetDimension(), len(vectors[i]))
		}
		records[i] = Record{
			ID:        ids[i],
			Text:      texts[i],
			Metadata:  metadata[i],
			Embedding: vectors[i],
		}
	}

	if err := c.store.Insert(ctx, records); err != nil {
		if errors.Is(err, ErrStoreWrite) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
	return nil
}

// Search embeds queryText and returns up to limit matches, most similar first.
// An empty store yields an empty result and no error.
func (c *Collection) Search(ctx context.Context, queryText string, limit int) ([]Match, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	count, err := c.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	if count == 0 {
		return []Match{}, nil
	}

	if err := c.checkSpec(ctx, false); err != nil {
		return nil, err
	}

	vectors, err := c.embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding generated for query")
	}

	matches, err := c.store.Search(ctx, vectors[0], limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search for query: %w", err)
	}
	if matches == nil {
		matches = []Match{}
	}
	return matches, nil
}

// DeleteStory removes all records of a story.
func (c *Collection) DeleteStory(ctx context.Context, storyTitle string) (int, error) {
	n, err := c.store.DeleteStory(ctx, storyTitle)
	if err != nil {
		return 0, fmt.Errorf("%w: delete story %q: %w", ErrStoreWrite, storyTitle, err)
	}
	return n, nil
}

// Exists reports whether id is stored.
func (c *Collection) Exists(ctx context.Context, id string) (bool, error) {
	found, err := c.store.Exists(ctx, []string{id})
	if err != nil {
		return false, err
	}
	return found[id], nil
}

// Count returns the number of stored records.
func (c *Collection) Count(ctx context.Context) (int, error) {
	return c.store.Count(ctx)
}

// Spec returns the embedding spec recorded with the collection.
func (c *Collection) Spec(ctx context.Context) (EmbeddingSpec, error) {
	return c.store.Spec(ctx)
}

// Reset irreversibly deletes every record and the recorded spec.
func (c *Collection) Reset(ctx context.Context) error {
	if err := c.store.Reset(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreReset, err)
	}
	return nil
}

// Close closes the backend.
func (c *Collection) Close() error {
	return c.store.Close()
}

// checkSpec compares the recorded spec with the embedder's. When record is set
// and nothing is recorded yet, the embedder's spec is stored.
func (c *Collection) checkSpec(ctx context.Context, record bool) error {
	want := SpecOf(c.embedder)
	have, err := c.store.Spec(ctx)
	if err != nil {
		return fmt.Errorf("failed to read embedding spec: %w", err)
	}

	if have.IsZero() {
		if !record {
			return nil
		}
		if err := c.store.SetSpec(ctx, want); err != nil {
			return fmt.Errorf("%w: record embedding spec: %w", ErrStoreWrite, err)
		}
		return nil
	}

	if have != want {
		return fmt.Errorf("%w: collection written with %s, configured embedder is %s (reset the database or restore the embedder)", ErrEmbedderMismatch, have, want)
	}
	return nil
}
