package functions

import (
	"context"
	"fmt"
	"math"
)

// Embedder is the minimal embedding contract the out-of-context search
// index needs, grounded on intelligencedev-manifold's
// internal/rag/embedder.Embedder (trimmed to the one method this index
// uses — the LLM host, not this package, owns liveness/model-name
// concerns).
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// chunk is one out-of-context function description, embedded once and
// kept for the life of the owning agent.
type chunk struct {
	name      string
	embedding []float32
}

// Index is a per-agent, ephemeral, in-process nearest-neighbour index
// over out-of-context function descriptions (spec.md §4.5: "indexed
// ephemerally per agent"). Unlike the Archival Store, this never touches
// disk or Qdrant — NewIndex builds it from OutOfContextDefinitions().
// pkg/runtime does not construct one when it builds an Agent.
type Index struct {
	embedder Embedder
	chunks   []chunk
}

// NewIndex embeds every out-of-context function's description and
// builds the index.
func NewIndex(ctx context.Context, embedder Embedder) (*Index, error) {
	defs := OutOfContextDefinitions()
	texts := make([]string, len(defs))
	for i, d := range defs {
		texts[i] = d.Name + ": " + d.Description
	}
	idx := &Index{embedder: embedder}
	if len(texts) == 0 {
		return idx, nil
	}
	vecs, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed out-of-context function descriptions: %w", err)
	}
	idx.chunks = make([]chunk, len(defs))
	for i, d := range defs {
		idx.chunks[i] = chunk{name: d.Name, embedding: vecs[i]}
	}
	return idx, nil
}

// Search returns out-of-context function definitions in embedding-
// similarity order, deduplicated by name, paginated.
func (idx *Index) Search(ctx context.Context, query string, count, offset int) ([]Definition, error) {
	if len(idx.chunks) == 0 {
		return nil, nil
	}
	vecs, err := idx.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	q := vecs[0]

	type scored struct {
		name  string
		score float32
	}
	ranked := make([]scored, len(idx.chunks))
	for i, c := range idx.chunks {
		ranked[i] = scored{name: c.name, score: cosineSimilarity(q, c.embedding)}
	}
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j].score > ranked[j-1].score; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}

	seen := make(map[string]bool, len(ranked))
	defsByName := make(map[string]Definition, len(ranked))
	for _, d := range OutOfContextDefinitions() {
		defsByName[d.Name] = d
	}

	out := make([]Definition, 0, count)
	skipped := 0
	for _, r := range ranked {
		if seen[r.name] {
			continue
		}
		seen[r.name] = true
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, defsByName[r.name])
		if len(out) >= count {
			break
		}
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
