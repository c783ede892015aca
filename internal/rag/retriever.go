package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"chatpdf/internal/model"
	"chatpdf/internal/pkg/vecmath"
)

const (
	DefaultTopK            = 5
	DefaultSimilarityFloor = 0.7
)

// RetrievedChunk is a stored chunk scored against a query.
type RetrievedChunk struct {
	ChunkID    string  `json:"chunk_id"`
	Text       string  `json:"chunk_text"`
	PageNumber *int    `json:"page_number"`
	ChunkIndex int     `json:"chunk_index"`
	Similarity float64 `json:"similarity"`
}

type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CandidateSearcher returns a document's chunks nearest to the query vector,
// ordered by ascending cosine distance.
type CandidateSearcher interface {
	NearestChunks(ctx context.Context, documentID string, query []float32, limit int) ([]model.ScoredChunk, error)
}

type Retriever struct {
	embedder QueryEmbedder
	searcher CandidateSearcher
	topK     int
	floor    float64
}

func NewRetriever(embedder QueryEmbedder, searcher CandidateSearcher, topK int, floor float64) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if floor < 0 || floor > 1 {
		floor = DefaultSimilarityFloor
	}
	return &Retriever{embedder: embedder, searcher: searcher, topK: topK, floor: floor}
}

// SearchOptions overrides the retriever defaults for one call. A zero TopK or
// nil Floor keeps the configured value.
type SearchOptions struct {
	TopK  int
	Floor *float64
}

// Search embeds query and returns at most top_k chunks of the document whose
// similarity clears the floor, most similar first. The floor is applied after
// the top_k cut.
func (r *Retriever) Search(ctx context.Context, documentID, query string, opts SearchOptions) ([]RetrievedChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query is empty")
	}
	topK := r.topK
	if opts.TopK > 0 {
		topK = opts.TopK
	}
	floor := r.floor
	if opts.Floor != nil {
		floor = *opts.Floor
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query failed: %w", err)
	}
	candidates, err := r.searcher.NearestChunks(ctx, documentID, vec, topK)
	if err != nil {
		return nil, err
	}
	return Rank(candidates, topK, floor), nil
}

// Rank orders candidates by ascending distance (stable on input order), keeps
// the first topK and then drops those below floor.
func Rank(candidates []model.ScoredChunk, topK int, floor float64) []RetrievedChunk {
	ordered := make([]model.ScoredChunk, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Distance < ordered[j].Distance })
	if topK >= 0 && len(ordered) > topK {
		ordered = ordered[:topK]
	}

	out := make([]RetrievedChunk, 0, len(ordered))
	for _, c := range ordered {
		similarity := vecmath.SimilarityFromDistance(c.Distance)
		if similarity < floor {
			continue
		}
		out = append(out, RetrievedChunk{
			ChunkID:    c.ID,
			Text:       c.ChunkText,
			PageNumber: c.PageNumber,
			ChunkIndex: c.ChunkIndex,
			Similarity: similarity,
		})
	}
	return out
}

// IDs returns the chunk ids in order.
func IDs(chunks []RetrievedChunk) []string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ChunkID
	}
	return ids
}
