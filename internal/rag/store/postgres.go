package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/Yates-Labs/lore/internal/rag"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresStore implements rag.VectorStore on Postgres with the pgvector
// extension. The chunks table is created on the first SetSpec because the
// vector column is sized to the embedding dimension.
type PostgresStore struct {
	pool       *pgxpool.Pool
	collection string
}

func NewPostgresStore(ctx context.Context, connStr, collection string) (*PostgresStore, error) {
	if !collectionName.MatchString(collection) {
		return nil, fmt.Errorf("invalid collection name %q", collection)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	p := &PostgresStore{pool: pool, collection: collection}
	if err := p.createMetaTable(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to setup tables: %w", err)
	}
	return p, nil
}

func (p *PostgresStore) Describe() string {
	return fmt.Sprintf("postgres (collection %s)", p.collection)
}

func (p *PostgresStore) chunksTable() string { return p.collection + "_chunks" }
func (p *PostgresStore) metaTable() string   { return p.collection + "_meta" }

func (p *PostgresStore) createMetaTable(ctx context.Context) error {
	query := `
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS ` + p.metaTable() + ` (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) createChunksTable(ctx context.Context, dimension int) error {
	query := `
	CREATE TABLE IF NOT EXISTS ` + p.chunksTable() + ` (
		id TEXT PRIMARY KEY,
		story_title TEXT NOT NULL,
		chunk_id INT NOT NULL,
		content TEXT NOT NULL,
		embedding vector(` + strconv.Itoa(dimension) + `) NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_` + p.collection + `_story ON ` + p.chunksTable() + `(story_title);
	`
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) hasChunksTable(ctx context.Context) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", p.chunksTable()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check chunks table: %w", err)
	}
	return exists, nil
}

func (p *PostgresStore) Insert(ctx context.Context, records []rag.Record) error {
	if len(records) == 0 {
		return rag.ErrEmptyRecords
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO ` + p.chunksTable() + ` (id, story_title, chunk_id, content, embedding) VALUES ($1, $2, $3, $4, $5)`
	for _, rec := range records {
		_, err := tx.Exec(ctx, query, rec.ID, rec.Metadata.StoryTitle, rec.Metadata.ChunkID, rec.Text, pgvector.NewVector(rec.Embedding))
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return fmt.Errorf("%w: %s", rag.ErrDuplicateID, rec.ID)
			}
			return fmt.Errorf("failed to insert chunk %s: %w", rec.ID, err)
		}
	}
	return tx.Commit(ctx)
}

// Search orders by cosine distance; the score is 1 - distance.
func (p *PostgresStore) Search(ctx context.Context, queryVec []float32, limit int) ([]rag.Match, error) {
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	ok, err := p.hasChunksTable(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []rag.Match{}, nil
	}

	query := `
		SELECT id, story_title, chunk_id, content, 1 - (embedding <=> $1) AS score
		FROM ` + p.chunksTable() + `
		ORDER BY embedding <=> $1, story_title, chunk_id
		LIMIT $2
	`
	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(queryVec), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := []rag.Match{}
	for rows.Next() {
		var (
			m     rag.Match
			score float64
		)
		if err := rows.Scan(&m.ID, &m.Metadata.StoryTitle, &m.Metadata.ChunkID, &m.Text, &score); err != nil {
			return nil, err
		}
		m.Score = float32(score)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (p *PostgresStore) Exists(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = false
	}
	ok, err := p.hasChunksTable(ctx)
	if err != nil || !ok || len(ids) == 0 {
		return out, err
	}

	rows, err := p.pool.Query(ctx, `SELECT id FROM `+p.chunksTable()+` WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (p *PostgresStore) DeleteStory(ctx context.Context, storyTitle string) (int, error) {
	ok, err := p.hasChunksTable(ctx)
	if err != nil || !ok {
		return 0, err
	}
	tag, err := p.pool.Exec(ctx, `DELETE FROM `+p.chunksTable()+` WHERE story_title = $1`, storyTitle)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (p *PostgresStore) Count(ctx context.Context) (int, error) {
	ok, err := p.hasChunksTable(ctx)
	if err != nil || !ok {
		return 0, err
	}
	var n int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+p.chunksTable()).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *PostgresStore) Spec(ctx context.Context) (rag.EmbeddingSpec, error) {
	rows, err := p.pool.Query(ctx, `SELECT key, value FROM `+p.metaTable())
	if err != nil {
		return rag.EmbeddingSpec{}, err
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
			if spec.Dimension, err = strconv.Atoi(value); err != nil {
				return rag.EmbeddingSpec{}, fmt.Errorf("corrupt embedder_dimension %q: %w", value, err)
			}
		}
	}
	return spec, rows.Err()
}

// SetSpec records spec and creates the chunks table sized to its dimension.
func (p *PostgresStore) SetSpec(ctx context.Context, spec rag.EmbeddingSpec) error {
	if spec.Dimension <= 0 {
		return rag.ErrInvalidDimension
	}
	if err := p.createChunksTable(ctx, spec.Dimension); err != nil {
		return fmt.Errorf("failed to create chunks table: %w", err)
	}

	upsert := `INSERT INTO ` + p.metaTable() + ` (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`
	if _, err := p.pool.Exec(ctx, upsert, "embedder_model", spec.Model); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx, upsert, "embedder_dimension", strconv.Itoa(spec.Dimension))
	return err
}

// Reset drops both tables and recreates the meta table.
func (p *PostgresStore) Reset(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `DROP TABLE IF EXISTS `+p.chunksTable()+`, `+p.metaTable()); err != nil {
		return err
	}
	return p.createMetaTable(ctx)
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		log.Println("[Store] Postgres connection pool is closed")
	}
	return nil
}
