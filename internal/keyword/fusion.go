package keyword

import "sort"

// FusedResult holds an entry id and its fused keyword/semantic scores.
type FusedResult struct {
	ID            uint64
	Score         float64
	KeywordScore  float64
	SemanticScore float64
}

// NormalizeScores scales scores into [0,1] by dividing by the maximum.
// Non-positive scores map to 0.
func NormalizeScores(results []Result) map[uint64]float64 {
	normalized := make(map[uint64]float64, len(results))
	var maxScore float64
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	for _, r := range results {
		if maxScore > 0 && r.Score > 0 {
			normalized[r.ID] = r.Score / maxScore
		} else {
			normalized[r.ID] = 0
		}
	}
	return normalized
}

// Fuse merges keyword and semantic score maps with weights. Results are
// ordered by fused score descending, ties by ascending id.
func Fuse(keywordScores, semanticScores map[uint64]float64, keywordWeight, semanticWeight float64) []*FusedResult {
	scoreMap := make(map[uint64]*FusedResult, len(keywordScores)+len(semanticScores))
	for id, score := range keywordScores {
		scoreMap[id] = &FusedResult{ID: id, KeywordScore: score}
	}
	for id, score := range semanticScores {
		if r, ok := scoreMap[id]; ok {
			r.SemanticScore = score
		} else {
			scoreMap[id] = &FusedResult{ID: id, SemanticScore: score}
		}
	}
	results := make([]*FusedResult, 0, len(scoreMap))
	for _, r := range scoreMap {
		r.Score = keywordWeight*r.KeywordScore + semanticWeight*r.SemanticScore
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	return results
}
