package rag

import (
	"sort"

	"github.com/viant/vec/search"
)

// CosineSimilarity returns the cosine similarity of a and b, or 0 when either
// vector has zero magnitude or the dimensions differ.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	if search.Float32s(a).Magnitude() == 0 || search.Float32s(b).Magnitude() == 0 {
		return 0
	}
	return 1 - search.Float32s(a).CosineDistance(b)
}

// RankByCosine scores candidates against query and returns the topK best,
// most similar first. Ties keep candidate order.
func RankByCosine(query []float32, candidates []Record, topK int) []Match {
	if len(candidates) == 0 || topK <= 0 {
		return []Match{}
	}

	qm := search.Float32s(query).Magnitude()
	matches := make([]Match, 0, len(candidates))
	for _, rec := range candidates {
		var score float32
		if qm != 0 && len(rec.Embedding) == len(query) {
			if search.Float32s(rec.Embedding).Magnitude() != 0 {
				score = 1 - search.Float32s(query).CosineDistance(rec.Embedding)
			}
		}
		matches = append(matches, Match{
			ID:       rec.ID,
			Text:     rec.Text,
			Metadata: rec.Metadata,
			Score:    score,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}
