package rag

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process VectorStore using brute-force cosine similarity.
// Contents are lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	index   map[string]int
	spec    EmbeddingSpec
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: make(map[string]int)}
}

func (m *MemoryStore) Describe() string { return "memory" }

func (m *MemoryStore) Insert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return ErrEmptyRecords
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if _, ok := m.index[rec.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
		}
		if _, ok := seen[rec.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
		}
		seen[rec.ID] = struct{}{}
	}
	for _, rec := range records {
		m.index[rec.ID] = len(m.records)
		m.records = append(m.records, rec)
	}
	return nil
}

func (m *MemoryStore) Search(ctx context.Context, queryVector []float32, topK int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return RankByCosine(queryVector, m.records, topK), nil
}

func (m *MemoryStore) Exists(ctx context.Context, ids []string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		_, out[id] = m.index[id]
	}
	return out, nil
}

func (m *MemoryStore) DeleteStory(ctx context.Context, storyTitle string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.records[:0]
	removed := 0
	for _, rec := range m.records {
		if rec.Metadata.StoryTitle == storyTitle {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	m.records = kept
	m.index = make(map[string]int, len(kept))
	for i, rec := range kept {
		m.index[rec.ID] = i
	}
	return removed, nil
}

func (m *MemoryStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

func (m *MemoryStore) Spec(ctx context.Context) (EmbeddingSpec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.spec, nil
}

func (m *MemoryStore) SetSpec(ctx context.Context, spec EmbeddingSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spec = spec
	return nil
}

func (m *MemoryStore) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	m.index = make(map[string]int)
	m.spec = EmbeddingSpec{}
	return nil
}

func (m *MemoryStore) Close() error { return nil }
