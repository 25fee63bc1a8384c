package rag

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Common errors for vector store operations
var (
	ErrStoreWrite       = errors.New("store write failed")
	ErrStoreReset       = errors.New("store reset failed")
	ErrDuplicateID      = errors.New("record identifier already exists")
	ErrEmbedderMismatch = errors.New("embedder does not match collection")
	ErrInvalidDimension = errors.New("invalid vector dimension")
	ErrEmptyRecords     = errors.New("no records provided for insertion")
)

// ChunkMetadata is the payload stored alongside every chunk.
type ChunkMetadata struct {
	StoryTitle string `json:"story_title"`
	ChunkID    int    `json:"chunk_id"`
}

// RecordID builds the store-wide identifier for a chunk: {story_title}_{chunk_id}.
func RecordID(storyTitle string, chunkID int) string {
	return storyTitle + "_" + strconv.Itoa(chunkID)
}

// ParseRecordID splits an identifier built by RecordID. Titles may themselves
// contain underscores, so the split happens at the last one.
func ParseRecordID(id string) (ChunkMetadata, error) {
	i := strings.LastIndexByte(id, '_')
	if i <= 0 || i == len(id)-1 {
		return ChunkMetadata{}, fmt.Errorf("malformed record id %q", id)
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return ChunkMetadata{}, fmt.Errorf("malformed record id %q: %w", id, err)
	}
	return ChunkMetadata{StoryTitle: id[:i], ChunkID: n}, nil
}

// Record is a chunk ready for storage: text, metadata, embedding and identifier.
type Record struct {
	ID        string        `json:"id"`
	Text      string        `json:"text"`
	Metadata  ChunkMetadata `json:"metadata"`
	Embedding []float32     `json:"embedding"`
}

// Match is a search hit. Score is cosine similarity, higher is closer.
type Match struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
	Score    float32       `json:"score"`
}

// Texts returns the chunk texts of matches in order.
func Texts(matches []Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Text
	}
	return out
}

// EmbeddingSpec identifies the embedding function a collection was written with.
type EmbeddingSpec struct {
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}

func (s EmbeddingSpec) String() string {
	return fmt.Sprintf("%s/%d", s.Model, s.Dimension)
}

// IsZero reports whether no spec has been recorded.
func (s EmbeddingSpec) IsZero() bool {
	return s.Model == "" && s.Dimension == 0
}

// VectorStore defines the backend contract behind a Collection.
// Implementations hold a single named collection.
type VectorStore interface {
	// Insert stores records. It fails with ErrDuplicateID when any identifier
	// already exists.
	Insert(ctx context.Context, records []Record) error

	// Search returns the topK records closest to queryVector, most similar first.
	// An empty store yields an empty slice.
	Search(ctx context.Context, queryVector []float32, topK int) ([]Match, error)

	// Exists reports which of ids are present.
	Exists(ctx context.Context, ids []string) (map[string]bool, error)

	// DeleteStory removes every record of a story and returns how many were removed.
	DeleteStory(ctx context.Context, storyTitle string) (int, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Spec returns the recorded embedding spec, zero when none is recorded.
	Spec(ctx context.Context) (EmbeddingSpec, error)

	// SetSpec records the embedding spec for the collection.
	SetSpec(ctx context.Context, spec EmbeddingSpec) error

	// Reset irreversibly deletes all records and the recorded spec.
	Reset(ctx context.Context) error

	// Close releases resources and closes connections
	Close() error
}

// Describer is implemented by stores that can name their backend.
type Describer interface {
	Describe() string
}
