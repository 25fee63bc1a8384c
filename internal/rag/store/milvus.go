package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Yates-Labs/lore/internal/rag"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// Common errors for Milvus operations
var (
	ErrConnectionFailed = errors.New("failed to connect to Milvus")
	ErrInsertFailed     = errors.New("failed to insert records")
	ErrSearchFailed     = errors.New("failed to search vectors")
)

const specPrefix = "lore embedder="

// MilvusConfig holds configuration for Milvus connection and collection
type MilvusConfig struct {
	Address        string // Milvus server address (e.g., "localhost:19530")
	CollectionName string

	// HNSW index parameters
	M              int // HNSW M parameter (default: 16)
	EfConstruction int // HNSW efConstruction (default: 256)
	Ef             int // search-time ef (default: 64)
}

// DefaultMilvusConfig returns the local development defaults.
func DefaultMilvusConfig() MilvusConfig {
	return MilvusConfig{
		Address:        "localhost:19530",
		CollectionName: "stories",
		M:              16,
		EfConstruction: 256,
		Ef:             64,
	}
}

// MilvusStore implements rag.VectorStore using Milvus. The collection is
// created on the first SetSpec, sized to the recorded embedding dimension,
// and the embedding spec is kept in the collection description.
type MilvusStore struct {
	client client.Client
	config MilvusConfig
}

// NewMilvusStore connects to Milvus. An existing collection is loaded for search.
func NewMilvusStore(ctx context.Context, config MilvusConfig) (*MilvusStore, error) {
	if config.CollectionName == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if config.M <= 0 || config.EfConstruction <= 0 || config.Ef <= 0 {
		d := DefaultMilvusConfig()
		config.M, config.EfConstruction, config.Ef = d.M, d.EfConstruction, d.Ef
	}

	c, err := client.NewGrpcClient(ctx, config.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &MilvusStore{client: c, config: config}

	has, err := store.hasCollection(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	if has {
		if err := c.LoadCollection(ctx, config.CollectionName, false); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to load collection: %w", err)
		}
	}
	return store, nil
}

func (m *MilvusStore) Describe() string {
	return fmt.Sprintf("milvus %s (collection %s)", m.config.Address, m.config.CollectionName)
}

func (m *MilvusStore) hasCollection(ctx context.Context) (bool, error) {
	has, err := m.client.HasCollection(ctx, m.config.CollectionName)
	if err != nil {
		return false, fmt.Errorf("failed to check collection existence: %w", err)
	}
	return has, nil
}

// createCollection creates the collection schema, HNSW index and loads it.
func (m *MilvusStore) createCollection(ctx context.Context, spec rag.EmbeddingSpec) error {
	schema := &entity.Schema{
		CollectionName: m.config.CollectionName,
		Description:    specPrefix + spec.String(),
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{
					"max_length": "512",
				},
			},
			{
				Name:     "story_title",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "512",
				},
			},
			{
				Name:     "chunk_id",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "text",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(spec.Dimension),
				},
			},
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, m.config.M, m.config.EfConstruction)
	if err != nil {
		return fmt.Errorf("failed to create index config: %w", err)
	}
	if err := m.client.CreateIndex(ctx, m.config.CollectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := m.client.LoadCollection(ctx, m.config.CollectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

// Spec reads the embedding spec from the collection description.
func (m *MilvusStore) Spec(ctx context.Context) (rag.EmbeddingSpec, error) {
	has, err := m.hasCollection(ctx)
	if err != nil || !has {
		return rag.EmbeddingSpec{}, err
	}

	coll, err := m.client.DescribeCollection(ctx, m.config.CollectionName)
	if err != nil {
		return rag.EmbeddingSpec{}, fmt.Errorf("failed to describe collection: %w", err)
	}
	if coll.Schema == nil {
		return rag.EmbeddingSpec{}, nil
	}
	return parseSpec(coll.Schema.Description)
}

// SetSpec creates the collection for spec. An existing collection keeps the
// spec it was created with.
func (m *MilvusStore) SetSpec(ctx context.Context, spec rag.EmbeddingSpec) error {
	if spec.Dimension <= 0 {
		return rag.ErrInvalidDimension
	}
	has, err := m.hasCollection(ctx)
	if err != nil {
		return err
	}
	if has {
		current, err := m.Spec(ctx)
		if err != nil {
			return err
		}
		if current != spec {
			return fmt.Errorf("%w: collection holds %s", rag.ErrEmbedderMismatch, current)
		}
		return nil
	}
	return m.createCollection(ctx, spec)
}

// Insert adds records to Milvus. Milvus does not enforce primary key
// uniqueness, so existing identifiers are checked first.
func (m *MilvusStore) Insert(ctx context.Context, records []rag.Record) error {
	if len(records) == 0 {
		return rag.ErrEmptyRecords
	}

	spec, err := m.Spec(ctx)
	if err != nil {
		return err
	}
	if spec.IsZero() {
		return fmt.Errorf("%w: collection %s does not exist", ErrInsertFailed, m.config.CollectionName)
	}

	ids := make([]string, len(records))
	titles := make([]string, len(records))
	chunkIDs := make([]int64, len(records))
	texts := make([]string, len(records))
	embeddings := make([][]float32, len(records))

	for i, record := range records {
		if len(record.Embedding) != spec.Dimension {
			return fmt.Errorf("%w: expected %d, got %d", rag.ErrInvalidDimension, spec.Dimension, len(record.Embedding))
		}
		ids[i] = record.ID
		titles[i] = record.Metadata.StoryTitle
		chunkIDs[i] = int64(record.Metadata.ChunkID)
		texts[i] = record.Text
		embeddings[i] = record.Embedding
	}

	existing, err := m.Exists(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if existing[id] {
			return fmt.Errorf("%w: %s", rag.ErrDuplicateID, id)
		}
	}

	columns := []entity.Column{
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnVarChar("story_title", titles),
		entity.NewColumnInt64("chunk_id", chunkIDs),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnFloatVector("embedding", spec.Dimension, embeddings),
	}

	if _, err := m.client.Insert(ctx, m.config.CollectionName, "", columns...); err != nil {
		return fmt.Errorf("%w: %v", ErrInsertFailed, err)
	}

	// Flush so the records are visible to the next count and search
	if err := m.client.Flush(ctx, m.config.CollectionName, false); err != nil {
		return fmt.Errorf("failed to flush data: %w", err)
	}
	return nil
}

// Search performs top-K similarity search over the embedding field.
func (m *MilvusStore) Search(ctx context.Context, queryVector []float32, topK int) ([]rag.Match, error) {
	spec, err := m.Spec(ctx)
	if err != nil {
		return nil, err
	}
	if spec.IsZero() {
		return []rag.Match{}, nil
	}
	if len(queryVector) != spec.Dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", rag.ErrInvalidDimension, spec.Dimension, len(queryVector))
	}

	sp, err := entity.NewIndexHNSWSearchParam(m.config.Ef)
	if err != nil {
		return nil, fmt.Errorf("failed to create search params: %w", err)
	}

	results, err := m.client.Search(
		ctx,
		m.config.CollectionName,
		nil, // partition names
		"",
		[]string{"id", "story_title", "chunk_id", "text"},
		[]entity.Vector{entity.FloatVector(queryVector)},
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	if len(results) == 0 {
		return []rag.Match{}, nil
	}

	matches := make([]rag.Match, 0, results[0].ResultCount)
	for i := 0; i < results[0].ResultCount; i++ {
		match := rag.Match{Score: results[0].Scores[i]}

		for _, field := range results[0].Fields {
			switch field.Name() {
			case "id":
				match.ID = field.(*entity.ColumnVarChar).Data()[i]
			case "story_title":
				match.Metadata.StoryTitle = field.(*entity.ColumnVarChar).Data()[i]
			case "chunk_id":
				match.Metadata.ChunkID = int(field.(*entity.ColumnInt64).Data()[i])
			case "text":
				match.Text = field.(*entity.ColumnVarChar).Data()[i]
			}
		}
		matches = append(matches, match)
	}
	return matches, nil
}

// Exists checks which record identifiers are stored.
func (m *MilvusStore) Exists(ctx context.Context, ids []string) (map[string]bool, error) {
	existenceMap := make(map[string]bool, len(ids))
	for _, id := range ids {
		existenceMap[id] = false
	}
	if len(ids) == 0 {
		return existenceMap, nil
	}

	has, err := m.hasCollection(ctx)
	if err != nil || !has {
		return existenceMap, err
	}

	found, err := m.queryIDs(ctx, "id in "+quoteList(ids))
	if err != nil {
		return nil, err
	}
	for _, id := range found {
		existenceMap[id] = true
	}
	return existenceMap, nil
}

// DeleteStory removes every chunk of a story.
func (m *MilvusStore) DeleteStory(ctx context.Context, storyTitle string) (int, error) {
	has, err := m.hasCollection(ctx)
	if err != nil || !has {
		return 0, err
	}

	expr := "story_title == " + strconv.Quote(storyTitle)
	ids, err := m.queryIDs(ctx, expr)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := m.client.Delete(ctx, m.config.CollectionName, "", "id in "+quoteList(ids)); err != nil {
		return 0, fmt.Errorf("failed to delete records: %w", err)
	}
	if err := m.client.Flush(ctx, m.config.CollectionName, false); err != nil {
		return 0, fmt.Errorf("failed to flush data: %w", err)
	}
	return len(ids), nil
}

// Count returns the number of live records.
func (m *MilvusStore) Count(ctx context.Context) (int, error) {
	has, err := m.hasCollection(ctx)
	if err != nil || !has {
		return 0, err
	}

	results, err := m.client.Query(ctx, m.config.CollectionName, nil, "", []string{"count(*)"})
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	for _, column := range results {
		if col, ok := column.(*entity.ColumnInt64); ok && len(col.Data()) > 0 {
			return int(col.Data()[0]), nil
		}
	}
	return 0, nil
}

// Reset drops the collection. It is recreated on the next write.
func (m *MilvusStore) Reset(ctx context.Context) error {
	has, err := m.hasCollection(ctx)
	if err != nil || !has {
		return err
	}
	if err := m.client.DropCollection(ctx, m.config.CollectionName); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// Close releases resources and closes the Milvus connection
func (m *MilvusStore) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

func (m *MilvusStore) queryIDs(ctx context.Context, expr string) ([]string, error) {
	results, err := m.client.Query(ctx, m.config.CollectionName, nil, expr, []string{"id"})
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	var ids []string
	for _, column := range results {
		if column.Name() != "id" {
			continue
		}
		if varcharCol, ok := column.(*entity.ColumnVarChar); ok {
			ids = append(ids, varcharCol.Data()...)
		}
	}
	return ids, nil
}

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func parseSpec(description string) (rag.EmbeddingSpec, error) {
	if !strings.HasPrefix(description, specPrefix) {
		return rag.EmbeddingSpec{}, nil
	}
	value := strings.TrimPrefix(description, specPrefix)
	i := strings.LastIndexByte(value, '/')
	if i <= 0 {
		return rag.EmbeddingSpec{}, fmt.Errorf("malformed embedder description %q", description)
	}
	dim, err := strconv.Atoi(value[i+1:])
	if err != nil {
		return rag.EmbeddingSpec{}, fmt.Errorf("malformed embedder description %q: %w", description, err)
	}
	return rag.EmbeddingSpec{Model: value[:i], Dimension: dim}, nil
}
