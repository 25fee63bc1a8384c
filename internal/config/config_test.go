package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LORE_CONFIG", "LORE_STORE_BACKEND", "LORE_STORE_PATH", "LORE_COLLECTION",
		"LORE_EMBEDDER", "MILVUS_ADDRESS", "POSTGRES_URL", "OPENAI_BASE_URL",
		"LORE_SEARCH_LIMIT", "OPENAI_API_KEY",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Store.Backend != BackendSQLite {
		t.Errorf("Backend = %q, want %q", cfg.Store.Backend, BackendSQLite)
	}
	if cfg.Store.Collection != "stories" {
		t.Errorf("Collection = %q, want stories", cfg.Store.Collection)
	}
	if cfg.Chunker.Size != 1000 || cfg.Chunker.Overlap != 200 {
		t.Errorf("Chunker = %+v, want 1000/200", cfg.Chunker)
	}
	if cfg.Search.Limit != 5 {
		t.Errorf("Search.Limit = %d, want 5", cfg.Search.Limit)
	}
	if cfg.Extract.MaxContext != 30000 {
		t.Errorf("Extract.MaxContext = %d, want 30000", cfg.Extract.MaxContext)
	}
	if cfg.LLM.Temperature != 0.1 {
		t.Errorf("LLM.Temperature = %v, want 0.1", cfg.LLM.Temperature)
	}
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for explicit missing config file")
	}
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "lore.yaml")
	yamlDoc := `
store:
  backend: milvus
  collection: tales
embedder:
  type: hashing
chunker:
  size: 500
  overlap: 50
stories:
  extensions: [txt, ".MD"]
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MILVUS_ADDRESS", "milvus:19530")
	t.Setenv("LORE_COLLECTION", "override")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Store.Backend != BackendMilvus {
		t.Errorf("Backend = %q, want milvus", cfg.Store.Backend)
	}
	if cfg.Store.Collection != "override" {
		t.Errorf("Collection = %q, want env override", cfg.Store.Collection)
	}
	if cfg.Store.Milvus.Address != "milvus:19530" {
		t.Errorf("Milvus.Address = %q", cfg.Store.Milvus.Address)
	}
	if cfg.Embedder.Model != "hashing-v1" || cfg.Embedder.Dimension != 256 {
		t.Errorf("hashing embedder defaults not applied: %+v", cfg.Embedder)
	}
	if cfg.Chunker.Size != 500 || cfg.Chunker.Overlap != 50 {
		t.Errorf("Chunker = %+v", cfg.Chunker)
	}
	want := []string{".txt", ".md"}
	for i, ext := range want {
		if cfg.Stories.Extensions[i] != ext {
			t.Errorf("Extensions[%d] = %q, want %q", i, cfg.Stories.Extensions[i], ext)
		}
	}
	if cfg.APIKey != "sk-test" {
		t.Errorf("APIKey not resolved from environment")
	}
}

func TestLoad_EmbedderDefaultsFollowType(t *testing.T) {
	tests := []struct {
		name      string
		env       string
		doc       string
		wantModel string
		wantDim   int
	}{
		{"default openai", "", "", "text-embedding-3-small", 1536},
		{"env hashing", "hashing", "", "hashing-v1", 256},
		{"file openai env hashing", "hashing", "embedder:\n  type: openai\n", "hashing-v1", 256},
		{"explicit model kept", "", "embedder:\n  type: hashing\n  model: my-hash\n  dimension: 64\n", "my-hash", 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			dir := t.TempDir()
			t.Chdir(dir)
			if tt.doc != "" {
				if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(tt.doc), 0o644); err != nil {
					t.Fatal(err)
				}
			}
			t.Setenv("LORE_EMBEDDER", tt.env)

			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Embedder.Model != tt.wantModel || cfg.Embedder.Dimension != tt.wantDim {
				t.Errorf("Embedder = %s/%d, want %s/%d", cfg.Embedder.Model, cfg.Embedder.Dimension, tt.wantModel, tt.wantDim)
			}
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown backend", "store:\n  backend: redis\n"},
		{"overlap too large", "chunker:\n  size: 100\n  overlap: 100\n"},
		{"unknown embedder", "embedder:\n  type: word2vec\n"},
		{"postgres without url", "store:\n  backend: postgres\n"},
		{"malformed yaml", "store: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			path := filepath.Join(t.TempDir(), "lore.yaml")
			if err := os.WriteFile(path, []byte(tt.doc), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestRequireCredential(t *testing.T) {
	cfg := Default()
	cfg.APIKey = ""

	err := cfg.RequireCredential()
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}

	cfg.APIKey = "sk-test"
	if err := cfg.RequireCredential(); err != nil {
		t.Errorf("unexpected error with credential set: %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "lore.yaml")

	cfg := Default()
	cfg.Store.Collection = "saved"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Store.Collection != "saved" {
		t.Errorf("Collection = %q, want saved", loaded.Store.Collection)
	}
}
