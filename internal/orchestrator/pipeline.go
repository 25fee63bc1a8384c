// Package orchestrator wires configuration into the lore pipeline: story
// ingestion on the write path, character lookup on the read path.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/Yates-Labs/lore/internal/chunker"
	"github.com/Yates-Labs/lore/internal/config"
	"github.com/Yates-Labs/lore/internal/narrative"
	"github.com/Yates-Labs/lore/internal/rag"
	"github.com/Yates-Labs/lore/internal/rag/store"
	"github.com/Yates-Labs/lore/internal/source"
)

// ErrNoMatches means the store holds nothing relevant to the character name.
var ErrNoMatches = errors.New("character not found in any story")

// Pipeline owns the store handle, embedder and extractor built from one
// configuration. The read path is safe for concurrent use; ingestion and
// reset must not run concurrently with anything else.
type Pipeline struct {
	config     *config.Config
	collection *rag.Collection
	indexer    *rag.Indexer
	retriever  *rag.Retriever
	extractor  *narrative.Extractor
}

// NewPipeline opens the configured store and builds the embedder. The
// extraction model is built when the credential is present; without it
// character extraction fails with config.ErrMissingCredential.
func NewPipeline(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	embedder, err := NewEmbedder(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	vectorStore, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}

	collection, err := rag.NewCollection(vectorStore, embedder)
	if err != nil {
		vectorStore.Close()
		return nil, err
	}

	var llm narrative.LLM
	if cfg.APIKey != "" {
		llm, err = narrative.NewOpenAILLM(LLMConfig(cfg))
		if err != nil {
			vectorStore.Close()
			return nil, fmt.Errorf("failed to create LLM: %w", err)
		}
	}

	p, err := NewPipelineWith(collection, llm, cfg)
	if err != nil {
		vectorStore.Close()
		return nil, err
	}
	return p, nil
}

// NewPipelineWith assembles a pipeline from an existing collection and LLM.
// llm may be nil for pipelines that never extract.
func NewPipelineWith(collection *rag.Collection, llm narrative.LLM, cfg *config.Config) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	splitter, err := chunker.New(cfg.Chunker.Size, cfg.Chunker.Overlap)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunker: %w", err)
	}
	indexer, err := rag.NewIndexer(collection, splitter)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexer: %w", err)
	}
	retriever, err := rag.NewRetriever(collection, cfg.Search.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to create retriever: %w", err)
	}

	p := &Pipeline{
		config:     cfg,
		collection: collection,
		indexer:    indexer,
		retriever:  retriever,
	}
	if llm != nil {
		if p.extractor, err = narrative.NewExtractor(llm, cfg.Extract.MaxContext); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// NewEmbedder builds the embedder selected in cfg.
func NewEmbedder(cfg *config.Config) (rag.Embedder, error) {
	switch cfg.Embedder.Type {
	case config.EmbedderHashing:
		return rag.NewHashingEmbedder(cfg.Embedder.Model, cfg.Embedder.Dimension)
	case config.EmbedderOpenAI:
		if err := cfg.RequireCredential(); err != nil {
			return nil, err
		}
		return rag.NewOpenAIEmbedder(cfg.APIKey, cfg.LLM.BaseURL, cfg.Embedder.Model, cfg.Embedder.Dimension)
	default:
		return nil, fmt.Errorf("%w: unknown embedder %q", config.ErrInvalidConfig, cfg.Embedder.Type)
	}
}

// LLMConfig maps the llm section of cfg onto the provider configuration.
func LLMConfig(cfg *config.Config) narrative.LLMConfig {
	llmConfig := narrative.DefaultLLMConfig()
	llmConfig.Model = cfg.LLM.Model
	llmConfig.Temperature = cfg.LLM.Temperature
	llmConfig.MaxTokens = cfg.LLM.MaxTokens
	llmConfig.BaseURL = cfg.LLM.BaseURL
	llmConfig.APIKey = cfg.APIKey
	return llmConfig
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() *config.Config { return p.config }

// Close releases the store handle.
func (p *Pipeline) Close() error {
	return p.collection.Close()
}

// IngestOptions tunes one ComputeEmbeddings run.
type IngestOptions struct {
	// Reindex replaces stories that are already stored.
	Reindex bool

	// Extensions overrides the configured story extensions when non-empty.
	Extensions []string
}

// ComputeEmbeddings resolves storiesArg (a directory or git URL) and ingests
// every recognized story file in it.
func (p *Pipeline) ComputeEmbeddings(ctx context.Context, storiesArg string, opts IngestOptions) (*rag.IngestReport, error) {
	stories, err := source.Resolve(ctx, storiesArg)
	if err != nil {
		return nil, err
	}
	defer stories.Close()

	if stories.Revision != "" {
		log.Printf("[Pipeline] Ingesting %s at revision %s", stories.Origin, stories.Revision)
	}

	indexOpts := rag.DefaultIndexOptions()
	indexOpts.Extensions = p.config.Stories.Extensions
	if len(opts.Extensions) > 0 {
		indexOpts.Extensions = opts.Extensions
	}
	indexOpts.BatchSize = p.config.Embedder.BatchSize
	indexOpts.Reindex = opts.Reindex

	return p.indexer.IngestDirectory(ctx, stories.Dir, indexOpts)
}

// FindCharacter returns the passages most relevant to name. It fails with
// ErrNoMatches when the store holds nothing for the name.
func (p *Pipeline) FindCharacter(ctx context.Context, name string) ([]rag.Match, error) {
	matches, err := p.retriever.FindCharacter(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrNoMatches
	}
	return matches, nil
}

// CharacterResult is a successful character lookup.
type CharacterResult struct {
	Info       *narrative.CharacterInfo `json:"info"`
	StoryTitle string                   `json:"story_title"`
	Matches    []rag.Match              `json:"matches"`
}

// ExtractCharacter asks the model about name using matches. The story title
// comes from the most similar match.
func (p *Pipeline) ExtractCharacter(ctx context.Context, name string, matches []rag.Match) (*CharacterResult, error) {
	if len(matches) == 0 {
		return nil, ErrNoMatches
	}
	if p.extractor == nil {
		if err := p.config.RequireCredential(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: no extraction model configured", narrative.ErrInvalidConfig)
	}

	title := matches[0].Metadata.StoryTitle
	info, err := p.extractor.Extract(ctx, name, rag.Texts(matches), title)
	if err != nil {
		return nil, err
	}
	return &CharacterResult{Info: info, StoryTitle: title, Matches: matches}, nil
}

// GetCharacterInfo runs the full lookup: search, then extraction.
func (p *Pipeline) GetCharacterInfo(ctx context.Context, name string) (*CharacterResult, error) {
	log.Printf("[Pipeline] Stage 1: Searching top-%d passages for %q", p.retriever.Limit(), name)
	matches, err := p.FindCharacter(ctx, name)
	if err != nil {
		return nil, err
	}

	log.Printf("[Pipeline] Stage 2: Extracting %q from %d passages of %s", name, len(matches), matches[0].Metadata.StoryTitle)
	return p.ExtractCharacter(ctx, name, matches)
}

// Search returns up to limit passages for a free-text query. A non-positive
// limit uses the configured search limit.
func (p *Pipeline) Search(ctx context.Context, query string, limit int) ([]rag.Match, error) {
	if limit <= 0 {
		limit = p.retriever.Limit()
	}
	return p.retriever.Search(ctx, query, limit)
}

// Reset irreversibly deletes every stored record.
func (p *Pipeline) Reset(ctx context.Context) error {
	log.Printf("[Pipeline] Resetting collection %s", p.config.Store.Collection)
	return p.collection.Reset(ctx)
}

// Stats describes the store behind the pipeline.
type Stats struct {
	Backend    string            `json:"backend"`
	Collection string            `json:"collection"`
	Records    int               `json:"records"`
	Spec       rag.EmbeddingSpec `json:"embedding_spec"`
	Embedder   rag.EmbeddingSpec `json:"embedder"`
}

// Stats returns record count and embedding specs for the collection.
func (p *Pipeline) Stats(ctx context.Context) (*Stats, error) {
	count, err := p.collection.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	spec, err := p.collection.Spec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding spec: %w", err)
	}

	backend := p.config.Store.Backend
	if d, ok := p.collection.Store().(rag.Describer); ok {
		backend = d.Describe()
	}

	return &Stats{
		Backend:    backend,
		Collection: p.config.Store.Collection,
		Records:    count,
		Spec:       spec,
		Embedder:   rag.SpecOf(p.collection.Embedder()),
	}, nil
}
