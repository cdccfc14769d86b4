package vidmem

import (
	"math"
	"sort"
)

// CosineSimilarity computes the cosine similarity between two vectors
// Returns a value between -1 and 1, where 1 means identical direction.
// Mismatched lengths and zero magnitudes yield 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float32
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}

// Search ranks the chunks of index against query.
// Returns at most k results sorted by similarity score (highest first); equal
// scores keep index insertion order. Chunks without a stored vector score 0.
func Search(index *ChunkIndex, store *VectorStore, query []float32, k int, filter Predicate) []SearchResult {
	if k <= 0 {
		return nil
	}

	results := make([]SearchResult, 0, index.Len())

	// Compute similarity for all candidates
	for _, chunk := range index.InOrder() {
		if filter != nil && !filter(chunk.Metadata) {
			continue
		}

		var score float32
		if vec, ok := store.Get(chunk.ID); ok {
			score = CosineSimilarity(query, vec)
		}

		results = append(results, SearchResult{
			Chunk: chunk,
			Score: score,
		})
	}

	// Sort by score descending
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	// Return top-k results
	if k < len(results) {
		results = results[:k]
	}

	return results
}
