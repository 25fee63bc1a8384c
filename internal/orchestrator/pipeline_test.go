package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Yates-Labs/lore/internal/config"
	"github.com/Yates-Labs/lore/internal/narrative"
	"github.com/Yates-Labs/lore/internal/rag"
)

const aliceStory = "Alice met Bob in the garden. Bob gave Alice a silver key and told her about the locked door."

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Embedder.Type = config.EmbedderHashing
	cfg.Embedder.Model = "hashing-v1"
	cfg.Embedder.Dimension = 256
	cfg.Store.Path = filepath.Join(t.TempDir(), "data", "lore.db")
	cfg.APIKey = ""
	return cfg
}

func newTestPipeline(t *testing.T, llm narrative.LLM) *Pipeline {
	t.Helper()
	embedder, err := rag.NewHashingEmbedder("", 256)
	if err != nil {
		t.Fatal(err)
	}
	coll, err := rag.NewCollection(rag.NewMemoryStore(), embedder)
	if err != nil {
		t.Fatal(err)
	}
	p, err := NewPipelineWith(coll, llm, testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func writeStories(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestPipeline_AliceScenario(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, &narrative.MockLLM{})
	dir := writeStories(t, map[string]string{"alice.txt": aliceStory})

	report, err := p.ComputeEmbeddings(ctx, dir, IngestOptions{})
	if err != nil {
		t.Fatalf("ComputeEmbeddings failed: %v", err)
	}
	if len(report.Results) != 1 || report.Results[0].Chunks != 1 || report.Results[0].Err != nil {
		t.Fatalf("unexpected report: %+v", report.Results)
	}

	result, err := p.GetCharacterInfo(ctx, "Alice")
	if err != nil {
		t.Fatalf("GetCharacterInfo failed: %v", err)
	}
	if result.StoryTitle != "alice" {
		t.Errorf("story title = %q, want alice", result.StoryTitle)
	}
	if result.Info.Name != "Alice" || result.Info.StoryTitle != "alice" {
		t.Errorf("unexpected info: %+v", result.Info)
	}

	_, err = p.GetCharacterInfo(ctx, "Nonexistent")
	if !errors.Is(err, narrative.ErrCharacterNotFound) {
		t.Errorf("expected ErrCharacterNotFound for an absent character, got %v", err)
	}
}

func TestPipeline_AliceScenarioRelations(t *testing.T) {
	ctx := context.Background()
	llm := narrative.NewMockLLM(`{"name": "Alice", "storyTitle": "alice", "summary": "Alice receives a silver key from Bob.",
		"relations": [{"name": "Bob", "relation": "friend"}], "characterType": "protagonist"}`)
	p := newTestPipeline(t, llm)
	dir := writeStories(t, map[string]string{"alice.txt": aliceStory})

	if _, err := p.ComputeEmbeddings(ctx, dir, IngestOptions{}); err != nil {
		t.Fatal(err)
	}

	result, err := p.GetCharacterInfo(ctx, "Alice")
	if err != nil {
		t.Fatalf("GetCharacterInfo failed: %v", err)
	}
	if len(result.Info.Relations) == 0 {
		t.Fatal("expected a non-empty relations list")
	}
	var bob *narrative.Relation
	for i := range result.Info.Relations {
		if result.Info.Relations[i].Name == "Bob" {
			bob = &result.Info.Relations[i]
		}
	}
	if bob == nil || bob.Relation != "friend" {
		t.Errorf("relations = %+v, want Bob as friend", result.Info.Relations)
	}
	if !strings.Contains(llm.LastPrompt, "Bob gave Alice a silver key") {
		t.Error("prompt does not carry the retrieved passage")
	}
}

func TestPipeline_EmptyStore(t *testing.T) {
	p := newTestPipeline(t, &narrative.MockLLM{})

	_, err := p.GetCharacterInfo(context.Background(), "Alice")
	if !errors.Is(err, ErrNoMatches) {
		t.Errorf("expected ErrNoMatches, got %v", err)
	}
}

func TestPipeline_ExtractionFailure(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, narrative.NewMockLLMWithError(errors.New("service unavailable")))
	dir := writeStories(t, map[string]string{"alice.txt": aliceStory})

	if _, err := p.ComputeEmbeddings(ctx, dir, IngestOptions{}); err != nil {
		t.Fatal(err)
	}

	_, err := p.GetCharacterInfo(ctx, "Alice")
	if !errors.Is(err, narrative.ErrExtractionFailed) {
		t.Errorf("expected ErrExtractionFailed, got %v", err)
	}
	if errors.Is(err, narrative.ErrCharacterNotFound) {
		t.Error("a failed model call must not look like not-found")
	}
}

func TestPipeline_ExtractWithoutLLM(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, nil)
	dir := writeStories(t, map[string]string{"alice.txt": aliceStory})

	if _, err := p.ComputeEmbeddings(ctx, dir, IngestOptions{}); err != nil {
		t.Fatal(err)
	}

	_, err := p.GetCharacterInfo(ctx, "Alice")
	if !errors.Is(err, config.ErrMissingCredential) {
		t.Errorf("expected ErrMissingCredential, got %v", err)
	}
}

func TestPipeline_ReindexAndReset(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, &narrative.MockLLM{})
	dir := writeStories(t, map[string]string{"alice.txt": aliceStory, "bob.txt": "Bob walked home alone."})

	if _, err := p.ComputeEmbeddings(ctx, dir, IngestOptions{}); err != nil {
		t.Fatal(err)
	}

	report, err := p.ComputeEmbeddings(ctx, dir, IngestOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Failed()) != 2 {
		t.Errorf("second run without reindex: %d failures, want 2", len(report.Failed()))
	}
	for _, r := range report.Failed() {
		if !errors.Is(r.Err, rag.ErrAlreadyIngested) {
			t.Errorf("%s: expected ErrAlreadyIngested, got %v", r.Path, r.Err)
		}
	}

	report, err = p.ComputeEmbeddings(ctx, dir, IngestOptions{Reindex: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Failed()) != 0 {
		t.Errorf("reindex failures: %+v", report.Failed())
	}

	stats, err := p.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Records != 2 {
		t.Errorf("records = %d, want 2", stats.Records)
	}
	if stats.Spec != stats.Embedder {
		t.Errorf("recorded spec %v differs from embedder %v", stats.Spec, stats.Embedder)
	}
	if stats.Backend != "memory" {
		t.Errorf("backend = %q", stats.Backend)
	}

	if err := p.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	matches, err := p.Search(ctx, "Alice", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("search after reset returned %d matches", len(matches))
	}
}

func TestPipeline_ExtensionOverride(t *testing.T) {
	ctx := context.Background()
	p := newTestPipeline(t, nil)
	dir := writeStories(t, map[string]string{"alice.txt": aliceStory, "bob.md": "Bob walked home alone."})

	report, err := p.ComputeEmbeddings(ctx, dir, IngestOptions{Extensions: []string{".md"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Results) != 1 || report.Results[0].StoryTitle != "bob" {
		t.Errorf("unexpected results: %+v", report.Results)
	}
}

func TestNewPipeline_SQLiteFromConfig(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	p, err := NewPipeline(ctx, cfg)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	dir := writeStories(t, map[string]string{"alice.txt": aliceStory})
	if _, err := p.ComputeEmbeddings(ctx, dir, IngestOptions{}); err != nil {
		t.Fatal(err)
	}
	p.Close()

	// A second pipeline over the same file sees the stored records.
	reopened, err := NewPipeline(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	matches, err := reopened.FindCharacter(ctx, "Alice")
	if err != nil {
		t.Fatalf("FindCharacter failed: %v", err)
	}
	if matches[0].Metadata.StoryTitle != "alice" {
		t.Errorf("story = %q", matches[0].Metadata.StoryTitle)
	}
}

func TestNewPipeline_OpenAIEmbedderNeedsCredential(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embedder.Type = config.EmbedderOpenAI

	_, err := NewPipeline(context.Background(), cfg)
	if !errors.Is(err, config.ErrMissingCredential) {
		t.Errorf("expected ErrMissingCredential, got %v", err)
	}
}

func TestNewPipeline_EmbedderSwitchDetected(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("LORE_CONFIG", "")
	t.Setenv("LORE_STORE_BACKEND", "")
	t.Setenv("LORE_COLLECTION", "")
	t.Setenv("LORE_STORE_PATH", filepath.Join(dir, "lore.db"))
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", "")

	t.Setenv("LORE_EMBEDDER", "hashing")
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	p, err := NewPipeline(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	stories := writeStories(t, map[string]string{"alice.txt": aliceStory})
	if _, err := p.ComputeEmbeddings(ctx, stories, IngestOptions{}); err != nil {
		t.Fatal(err)
	}
	stored, err := p.Stats(ctx)
	p.Close()
	if err != nil {
		t.Fatal(err)
	}
	if stored.Spec.Model != "hashing-v1" || stored.Spec.Dimension != 256 {
		t.Fatalf("stored spec = %v, want hashing-v1/256", stored.Spec)
	}

	// Reopening with the remote embedder must refuse to search before any
	// query is embedded.
	t.Setenv("LORE_EMBEDDER", "openai")
	cfg, err = config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	reopened, err := NewPipeline(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	_, err = reopened.FindCharacter(ctx, "Alice")
	if !errors.Is(err, rag.ErrEmbedderMismatch) {
		t.Errorf("expected ErrEmbedderMismatch, got %v", err)
	}
}

func TestLLMConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.Model = "gpt-4o"
	cfg.LLM.BaseURL = "http://localhost:11434/v1"
	cfg.APIKey = "sk-test"

	got := LLMConfig(cfg)
	if got.Model != "gpt-4o" || got.BaseURL != cfg.LLM.BaseURL || got.APIKey != "sk-test" {
		t.Errorf("unexpected LLM config: %+v", got)
	}
	if got.Temperature != 0.1 || !got.JSONMode {
		t.Errorf("expected low temperature with JSON mode, got %+v", got)
	}
}
