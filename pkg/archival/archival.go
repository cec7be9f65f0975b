// Package archival implements the Archival Store: a per-conversation,
// per-user semantic memory that chunks, embeds, and indexes free-form
// text, queryable by embedding nearest-neighbour. Grounded on
// llm_os/memory/archival_storage.py for the chunk/id/idempotency
// semantics and on intelligencedev-manifold's
// internal/persistence/databases/qdrant_vector.go for the Go
// Qdrant-client idiom (collection-per-store, deterministic UUID point
// ids, payload-based metadata filtering).
package archival

import (
	"context"
	"crypto/md5" //nolint:gosec // content-addressed chunk id, not a security boundary
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// MaxChunkTokens is the maximum token count per chunk (spec.md §4.4).
const MaxChunkTokens = 8192

// TopK is the number of nearest neighbours fetched from the index
// before pagination (spec.md §4.4).
const TopK = 100

// Counter counts tokens in a string; the chunker uses it to keep each
// chunk under MaxChunkTokens.
type Counter interface {
	CountString(model, s string) (int, error)
}

// Embedder turns text into a vector. Archival always routes embedding
// through the Ollama-backed LLM host regardless of which backend serves
// chat.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Store is the per-conversation archival memory, backed by one Qdrant
// collection.
type Store struct {
	client     *qdrant.Client
	collection string
	model      string
	counter    Counter
	embedder   Embedder
	dimension  int
}

// Config bundles construction parameters.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	Collection string // typically the conversation id
	Dimension  int
	Model      string // tokenizer model id used for chunking
	Counter    Counter
	Embedder   Embedder
}

// New connects to Qdrant and ensures the conversation's collection
// exists, creating it with a cosine-distance vector config if absent.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("archival: collection name is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("archival: dimension must be > 0")
	}
	qcfg := &qdrant.Config{Host: cfg.Host, Port: cfg.Port}
	if cfg.APIKey != "" {
		qcfg.APIKey = cfg.APIKey
	}
	client, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, fmt.Errorf("archival: create qdrant client: %w", err)
	}
	s := &Store{
		client:     client,
		collection: cfg.Collection,
		model:      cfg.Model,
		counter:    cfg.Counter,
		embedder:   cfg.Embedder,
		dimension:  cfg.Dimension,
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("archival: check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

// Insert chunks content (max MaxChunkTokens tokens per chunk via the
// configured tokenizer), embeds, and upserts each chunk keyed by
// md5(chunk) so a duplicate re-insert of identical content is a no-op
// (spec.md §4.4 idempotency).
func (s *Store) Insert(ctx context.Context, userID int, content string) error {
	chunks, err := s.chunk(content)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	vectors, err := s.embedder.Embed(ctx, chunks)
	if err != nil {
		return fmt.Errorf("archival: embed chunks: %w", err)
	}
	timestamp := time.Now().UTC().Format("2006-01-02")
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, chunkText := range chunks {
		id := chunkID(chunkText)
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(id),
			Vectors: qdrant.NewVectorsDense(vectors[i]),
			Payload: qdrant.NewValueMap(map[string]any{
				"content":   chunkText,
				"user_id":   fmt.Sprintf("%d", userID),
				"timestamp": timestamp,
			}),
		})
	}
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("archival: upsert: %w", err)
	}
	return nil
}

// Record is one archival search hit.
type Record struct {
	Timestamp string
	Content   string
}

// Search returns up to TopK nearest neighbours of query filtered by
// userID, then pages the result. It returns (page, total returned by
// the index before paging), matching spec.md §4.4's contract.
func (s *Store) Search(ctx context.Context, query string, userID, count, offset int) ([]Record, int) {
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil || len(vectors) == 0 {
		return nil, 0
	}
	limit := uint64(TopK)
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("user_id", fmt.Sprintf("%d", userID))},
	}
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(vectors[0]),
		Limit:          &limit,
		Filter:         filter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, 0
	}
	all := make([]Record, 0, len(hits))
	for _, hit := range hits {
		rec := Record{}
		if hit.Payload != nil {
			if v, ok := hit.Payload["content"]; ok {
				rec.Content = v.GetStringValue()
			}
			if v, ok := hit.Payload["timestamp"]; ok {
				rec.Timestamp = v.GetStringValue()
			}
		}
		all = append(all, rec)
	}
	if offset >= len(all) {
		return nil, len(all)
	}
	end := offset + count
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all)
}

// chunk splits content into pieces no larger than MaxChunkTokens
// tokens by halving recursively: each split point is the first newline,
// period or space at or after the byte midpoint, or the midpoint itself
// if no such byte follows it.
func (s *Store) chunk(content string) ([]string, error) {
	if content == "" {
		return nil, nil
	}
	n, err := s.counter.CountString(s.model, content)
	if err != nil {
		return nil, fmt.Errorf("archival: count tokens for chunking: %w", err)
	}
	if n <= MaxChunkTokens {
		return []string{content}, nil
	}
	// Split at the byte midpoint as an approximation of
	// the token boundary, then recurse; this keeps the chunker
	// tokenizer-driven without re-tokenizing every candidate split.
	mid := len(content) / 2
	for mid < len(content) && !isBoundary(content[mid]) {
		mid++
	}
	if mid >= len(content) {
		mid = len(content) / 2
	}
	left, err := s.chunk(content[:mid])
	if err != nil {
		return nil, err
	}
	right, err := s.chunk(content[mid:])
	if err != nil {
		return nil, err
	}
	return append(left, right...), nil
}

func isBoundary(b byte) bool {
	return b == '\n' || b == '.' || b == ' '
}

func chunkID(chunk string) string {
	sum := md5.Sum([]byte(chunk)) //nolint:gosec
	hexDigest := hex.EncodeToString(sum[:])
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(hexDigest)).String()
}

// Count returns the number of points stored, for the prompt's "you have
// M stored memories" line.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{CollectionName: s.collection})
	if err != nil {
		return 0, fmt.Errorf("archival: count points: %w", err)
	}
	return int(n), nil
}

// Close releases the underlying Qdrant connection.
func (s *Store) Close() error {
	return s.client.Close()
}
