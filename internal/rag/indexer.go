package rag

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Yates-Labs/lore/internal/chunker"
	"github.com/google/uuid"
)

// Common errors for ingestion
var (
	ErrIngest              = errors.New("ingest failed")
	ErrUnsupportedEncoding = errors.New("unsupported encoding: story is not valid UTF-8")
	ErrAlreadyIngested     = errors.New("story already ingested")
)

// IndexOptions provides configuration for story ingestion
type IndexOptions struct {
	// Extensions lists the recognized story file extensions, lower case with
	// a leading dot. Empty means ".txt".
	Extensions []string

	// BatchSize determines how many chunks to embed at once
	BatchSize int

	// Reindex deletes a story's existing records before writing it again.
	// Without it, a story that is already stored fails with ErrAlreadyIngested.
	Reindex bool
}

// DefaultIndexOptions returns sensible defaults for indexing
func DefaultIndexOptions() IndexOptions {
	return IndexOptions{
		Extensions: []string{".txt"},
		BatchSize:  16,
	}
}

// FileResult is the outcome of ingesting one story file.
type FileResult struct {
	Path       string `json:"path"`
	StoryTitle string `json:"story_title"`
	Chunks     int    `json:"chunks"`
	Err        error  `json:"-"`
}

// IngestReport collects the per-file outcomes of one ingestion run.
type IngestReport struct {
	RunID   string       `json:"run_id"`
	Results []FileResult `json:"results"`
}

// Succeeded returns the results without an error.
func (r *IngestReport) Succeeded() []FileResult {
	var out []FileResult
	for _, res := range r.Results {
		if res.Err == nil {
			out = append(out, res)
		}
	}
	return out
}

// Failed returns the results with an error.
func (r *IngestReport) Failed() []FileResult {
	var out []FileResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// TotalChunks sums chunk counts over successful files.
func (r *IngestReport) TotalChunks() int {
	total := 0
	for _, res := range r.Succeeded() {
		total += res.Chunks
	}
	return total
}

// Indexer reads story files, chunks them and writes the chunks to a Collection.
type Indexer struct {
	collection *Collection
	splitter   *chunker.Splitter
}

// NewIndexer creates an Indexer.
func NewIndexer(collection *Collection, splitter *chunker.Splitter) (*Indexer, error) {
	if collection == nil {
		return nil, fmt.Errorf("collection cannot be nil")
	}
	if splitter == nil {
		splitter = chunker.Default()
	}
	return &Indexer{collection: collection, splitter: splitter}, nil
}

// StoryTitle derives a story title from its file name.
func StoryTitle(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// IngestDirectory ingests every recognized story file directly inside dir, in
// lexical order. A failing file is recorded in the report and does not stop
// the others; only an unreadable directory or a cancelled context aborts.
func (ix *Indexer) IngestDirectory(ctx context.Context, dir string, opts IndexOptions) (*IngestReport, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read stories directory: %w", err)
	}

	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultIndexOptions().Extensions
	}

	var paths []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if hasExtension(entry.Name(), exts) {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	report := &IngestReport{RunID: uuid.NewString()}
	log.Printf("[Indexer %s] Ingesting %d story files from %s", report.RunID, len(paths), dir)

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("ingestion cancelled: %w", err)
		}

		result := ix.IngestFile(ctx, path, opts)
		if result.Err != nil {
			log.Printf("[Indexer %s] %s failed: %v", report.RunID, path, result.Err)
		} else {
			log.Printf("[Indexer %s] %s: %d chunks", report.RunID, result.StoryTitle, result.Chunks)
		}
		report.Results = append(report.Results, result)
	}

	return report, nil
}

// IngestFile ingests a single story file. Errors are wrapped in ErrIngest.
func (ix *Indexer) IngestFile(ctx context.Context, path string, opts IndexOptions) FileResult {
	title := StoryTitle(path)
	result := FileResult{Path: path, StoryTitle: title}

	data, err := os.ReadFile(path)
	if err != nil {
		result.Err = fmt.Errorf("%w: %s: %w", ErrIngest, path, err)
		return result
	}
	if !utf8.Valid(data) {
		result.Err = fmt.Errorf("%w: %s: %w", ErrIngest, path, ErrUnsupportedEncoding)
		return result
	}

	n, err := ix.IngestText(ctx, title, string(data), opts)
	result.Chunks = n
	if err != nil {
		result.Err = fmt.Errorf("%w: %s: %w", ErrIngest, path, err)
	}
	return result
}

// IngestText chunks text and writes every chunk under title. It returns the
// number of chunks written.
func (ix *Indexer) IngestText(ctx context.Context, title, text string, opts IndexOptions) (int, error) {
	if title == "" {
		return 0, fmt.Errorf("story title cannot be empty")
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultIndexOptions().BatchSize
	}

	if opts.Reindex {
		removed, err := ix.collection.DeleteStory(ctx, title)
		if err != nil {
			return 0, err
		}
		if removed > 0 {
			log.Printf("[Indexer] Removed %d existing chunks of %q", removed, title)
		}
	} else {
		exists, err := ix.collection.Exists(ctx, RecordID(title, 0))
		if err != nil {
			return 0, fmt.Errorf("failed to check existing records: %w", err)
		}
		if exists {
			return 0, fmt.Errorf("%w: %q (use reindex to replace it)", ErrAlreadyIngested, title)
		}
	}

	var (
		texts    []string
		metadata []ChunkMetadata
		ids      []string
		written  int
	)

	flush := func() error {
		if len(texts) == 0 {
			return nil
		}
		if err := ix.collection.AddBatch(ctx, texts, metadata, ids); err != nil {
			return fmt.Errorf("failed to write batch starting at chunk %d: %w", written, err)
		}
		written += len(texts)
		texts, metadata, ids = texts[:0], metadata[:0], ids[:0]
		return nil
	}

	for i, chunk := range ix.splitter.Chunks(text) {
		texts = append(texts, chunk)
		metadata = append(metadata, ChunkMetadata{StoryTitle: title, ChunkID: i})
		ids = append(ids, RecordID(title, i))
		if len(texts) == batchSize {
			if err := flush(); err != nil {
				return 0, ix.rollback(title, written, err)
			}
		}
	}
	if err := flush(); err != nil {
		return 0, ix.rollback(title, written, err)
	}

	return written, nil
}

// rollback removes the chunks of a partially written story so a failed file
// leaves nothing behind. A failed cleanup is reported together with cause.
func (ix *Indexer) rollback(title string, written int, cause error) error {
	// The cleanup must run even when ctx is what cancelled the write.
	removed, err := ix.collection.DeleteStory(context.Background(), title)
	if err != nil {
		log.Printf("[Indexer] Failed to remove %d partial chunks of %q: %v", written, title, err)
		return errors.Join(cause, fmt.Errorf("rollback of %q failed: %w", title, err))
	}
	if removed > 0 {
		log.Printf("[Indexer] Removed %d partial chunks of %q", removed, title)
	}
	return cause
}

func hasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range exts {
		if ext == want {
			return true
		}
	}
	return false
}
