package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/Yates-Labs/lore/internal/rag"
	"github.com/mattn/go-sqlite3"
)

var collectionName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteStore implements rag.VectorStore on a single SQLite file. Similarity
// search is brute force over all stored vectors, which is adequate for a
// story corpus. One process should write to the file at a time.
type SQLiteStore struct {
	conn       *sql.DB
	path       string
	collection string
}

// NewSQLiteStore opens (creating if needed) the database at path and ensures
// the collection tables exist.
func NewSQLiteStore(ctx context.Context, path, collection string) (*SQLiteStore, error) {
	if !collectionName.MatchString(collection) {
		return nil, fmt.Errorf("invalid collection name %q", collection)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	s := &SQLiteStore{conn: conn, path: path, collection: collection}
	if err := s.setupTables(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to setup database tables: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Describe() string {
	return fmt.Sprintf("sqlite %s (collection %s)", s.path, s.collection)
}

func (s *SQLiteStore) chunksTable() string { return s.collection + "_chunks" }
func (s *SQLiteStore) metaTable() string   { return s.collection + "_meta" }

func (s *SQLiteStore) setupTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS ` + s.chunksTable() + ` (
			id TEXT PRIMARY KEY,
			story_title TEXT NOT NULL,
			chunk_id INTEGER NOT NULL,
			text TEXT NOT NULL,
			embedding BLOB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_` + s.collection + `_story ON ` + s.chunksTable() + `(story_title)`,
		`CREATE TABLE IF NOT EXISTS ` + s.metaTable() + ` (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := s.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s, error: %w", query, err)
		}
	}
	return nil
}

// Insert writes records in a single transaction.
func (s *SQLiteStore) Insert(ctx context.Context, records []rag.Record) error {
	if len(records) == 0 {
		return rag.ErrEmptyRecords
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+s.chunksTable()+` (id, story_title, chunk_id, text, embedding) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err := stmt.ExecContext(ctx, rec.ID, rec.Metadata.StoryTitle, rec.Metadata.ChunkID, rec.Text, encodeEmbedding(rec.Embedding))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", rag.ErrDuplicateID, rec.ID)
			}
			return fmt.Errorf("failed to insert chunk %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Search scores every stored vector against queryVector.
func (s *SQLiteStore) Search(ctx context.Context, queryVector []float32, topK int) ([]rag.Match, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT id, story_title, chunk_id, text, embedding FROM `+s.chunksTable()+` ORDER BY story_title, chunk_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var candidates []rag.Record
	for rows.Next() {
		var (
			rec  rag.Record
			blob []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Metadata.StoryTitle, &rec.Metadata.ChunkID, &rec.Text, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		vec, err := decodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", rec.ID, err)
		}
		if len(vec) != len(queryVector) {
			return nil, fmt.Errorf("%w: chunk %s has %d, query has %d", rag.ErrInvalidDimension, rec.ID, len(vec), len(queryVector))
		}
		rec.Embedding = vec
		candidates = append(candidates, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return rag.RankByCosine(queryVector, candidates, topK), nil
}

func (s *SQLiteStore) Exists(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	stmt, err := s.conn.PrepareContext(ctx, `SELECT 1 FROM `+s.chunksTable()+` WHERE id = ?`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		var one int
		err := stmt.QueryRowContext(ctx, id).Scan(&one)
		switch {
		case err == nil:
			out[id] = true
		case errors.Is(err, sql.ErrNoRows):
			out[id] = false
		default:
			return nil, fmt.Errorf("failed to query %s: %w", id, err)
		}
	}
	return out, nil
}

func (s *SQLiteStore) DeleteStory(ctx context.Context, storyTitle string) (int, error) {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM `+s.chunksTable()+` WHERE story_title = ?`, storyTitle)
	if err != nil {
		return 0, fmt.Errorf("failed to delete story: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+s.chunksTable()).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Spec(ctx context.Context) (rag.EmbeddingSpec, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT key, value FROM `+s.metaTable()+` WHERE key IN ('embedder_model', 'embedder_dimension')`)
	if err != nil {
		return rag.EmbeddingSpec{}, fmt.Errorf("failed to read meta: %w", err)
	}
	defer rows.Close()

	var spec rag.EmbeddingSpec
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return rag.EmbeddingSpec{}, err
		}
		switch key {
		case "embedder_model":
			spec.Model = value
		case "embedder_dimension":
			dim, err := strconv.Atoi(value)
			if err != nil {
				return rag.EmbeddingSpec{}, fmt.Errorf("corrupt embedder_dimension %q: %w", value, err)
			}
			spec.Dimension = dim
		}
	}
	return spec, rows.Err()
}

func (s *SQLiteStore) SetSpec(ctx context.Context, spec rag.EmbeddingSpec) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	upsert := `INSERT INTO ` + s.metaTable() + ` (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := tx.ExecContext(ctx, upsert, "embedder_model", spec.Model); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, upsert, "embedder_dimension", strconv.Itoa(spec.Dimension)); err != nil {
		return err
	}
	return tx.Commit()
}

// Reset drops and recreates the collection tables.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	for _, table := range []string{s.chunksTable(), s.metaTable()} {
		if _, err := s.conn.ExecContext(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}
	return s.setupTables(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// encodeEmbedding stores a vector as little-endian IEEE 754 float32 values.
func encodeEmbedding(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d (not multiple of 4)", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
