package rag

import (
	"context"
	"os"
	"testing"
)

func TestNewOpenAIEmbedder_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := NewOpenAIEmbedder("", "", "text-embedding-3-small", 1536)
	if err != ErrMissingAPIKey {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestNewOpenAIEmbedder_InvalidDimension(t *testing.T) {
	_, err := NewOpenAIEmbedder("sk-test", "", "text-embedding-3-small", 0)
	if err != ErrInvalidDimension {
		t.Errorf("expected ErrInvalidDimension, got %v", err)
	}
}

func TestOpenAIEmbedder_GetModel(t *testing.T) {
	embedder, err := NewOpenAIEmbedder("sk-test", "", "text-embedding-3-large", 3072)
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}

	if embedder.GetModel() != "text-embedding-3-large" {
		t.Errorf("GetModel() = %q, want %q", embedder.GetModel(), "text-embedding-3-large")
	}

	if embedder.GetDimension() != 3072 {
		t.Errorf("GetDimension() = %d, want %d", embedder.GetDimension(), 3072)
	}
}

func TestOpenAIEmbedder_EmptyTexts(t *testing.T) {
	embedder, err := NewOpenAIEmbedder("sk-test", "", "text-embedding-3-small", 1536)
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}

	_, err = embedder.Embed(context.Background(), []string{})
	if err != ErrEmptyTexts {
		t.Errorf("expected ErrEmptyTexts, got %v", err)
	}
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	// Skip if no API key
	if os.Getenv("OPENAI_API_KEY") == "" {
		t.Skip("OPENAI_API_KEY not set")
	}

	embedder, err := NewOpenAIEmbedder("", "", "text-embedding-3-small", 1536)
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}

	texts := []string{"Alice followed the rabbit", "Bob stayed home"}
	vectors, err := embedder.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if len(vectors) != len(texts) {
		t.Errorf("expected %d vectors, got %d", len(texts), len(vectors))
	}

	for i, vec := range vectors {
		if len(vec) != 1536 {
			t.Errorf("vector[%d] dimension = %d, want 1536", i, len(vec))
		}
	}
}

func TestHashingEmbedder_Deterministic(t *testing.T) {
	embedder, err := NewHashingEmbedder("", 128)
	if err != nil {
		t.Fatal(err)
	}
	if embedder.GetModel() != "hashing-v1" {
		t.Errorf("GetModel() = %q, want hashing-v1", embedder.GetModel())
	}

	ctx := context.Background()
	a, err := embedder.Embed(ctx, []string{"Alice and the Queen"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := embedder.Embed(ctx, []string{"alice AND the queen!"})
	if err != nil {
		t.Fatal(err)
	}

	if len(a[0]) != 128 {
		t.Fatalf("dimension = %d, want 128", len(a[0]))
	}
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatalf("vectors differ at %d: case and punctuation should not matter", i)
		}
	}
}

func TestHashingEmbedder_SimilarityFollowsSharedWords(t *testing.T) {
	embedder, err := NewHashingEmbedder("", 256)
	if err != nil {
		t.Fatal(err)
	}

	vectors, err := embedder.Embed(context.Background(), []string{
		"Alice",
		"Alice walked through the garden with Bob.",
		"The storm battered the lighthouse all night.",
	})
	if err != nil {
		t.Fatal(err)
	}

	related := CosineSimilarity(vectors[0], vectors[1])
	unrelated := CosineSimilarity(vectors[0], vectors[2])
	if related <= unrelated {
		t.Errorf("expected related similarity %.3f > unrelated %.3f", related, unrelated)
	}
}

func TestHashingEmbedder_EmptyText(t *testing.T) {
	embedder, err := NewHashingEmbedder("", 16)
	if err != nil {
		t.Fatal(err)
	}
	vectors, err := embedder.Embed(context.Background(), []string{""})
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range vectors[0] {
		if v != 0 {
			t.Fatal("expected zero vector for empty text")
		}
	}
}
