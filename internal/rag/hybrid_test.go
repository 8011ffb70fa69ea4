package rag

import (
	"context"
	"testing"

	"github.com/hyperjump/shiori/internal/embedding"
	"github.com/hyperjump/shiori/internal/models"
)

func TestPipeline_HybridQuery(t *testing.T) {
	p, _ := newTestPipeline(t, embedding.NewHashEmbedder(testDims), DefaultConfig())
	ctx := context.Background()
	_, err := p.AddDocuments(ctx, []*models.Document{
		{Source: "python", Text: pythonDoc},
		{Source: "javascript", Text: jsDoc},
		{Source: "tea", Text: "Green tea should steep for two minutes."},
	})
	if err != nil {
		t.Fatal(err)
	}
	results, err := p.HybridQuery(ctx, "Who created Python?", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	top := results[0]
	if top.Text != pythonDoc || top.Rank != 1 {
		t.Errorf("top hybrid result = %+v", top)
	}
	if top.KeywordScore != 1 {
		t.Errorf("best keyword match should normalize to 1, got %f", top.KeywordScore)
	}
	if top.Score < results[1].Score {
		t.Error("results not ordered by fused score")
	}
}

func TestPipeline_HybridWithoutKeywordIndex(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KeywordEnabled = false
	p, _ := newTestPipeline(t, embedding.NewHashEmbedder(testDims), cfg)
	ctx := context.Background()
	_, _ = p.AddDocuments(ctx, []*models.Document{{Text: pythonDoc}, {Text: jsDoc}})

	hybrid, err := p.HybridQuery(ctx, "Who created Python?", 2)
	if err != nil {
		t.Fatal(err)
	}
	semantic, _ := p.Query(ctx, "Who created Python?", 2)
	if len(hybrid) != len(semantic) || hybrid[0].ID != semantic[0].ID {
		t.Errorf("hybrid without keyword index should equal semantic query")
	}
	if p.Stats().Keyword {
		t.Error("stats should report keyword disabled")
	}
}

func keywordScoreBySource(results []*models.AttributedResult) map[string]float64 {
	scores := make(map[string]float64, len(results))
	for _, r := range results {
		scores[r.Source] = r.KeywordScore
	}
	return scores
}

func TestPipeline_HybridQueryFuzzy(t *testing.T) {
	docs := []*models.Document{
		{Source: "python", Text: pythonDoc},
		{Source: "javascript", Text: jsDoc},
	}
	ctx := context.Background()

	plain, _ := newTestPipeline(t, embedding.NewHashEmbedder(testDims), DefaultConfig())
	if _, err := plain.AddDocuments(ctx, docs); err != nil {
		t.Fatal(err)
	}
	results, err := plain.HybridQuery(ctx, "Rossun", 2)
	if err != nil {
		t.Fatal(err)
	}
	if s := keywordScoreBySource(results)["python"]; s != 0 {
		t.Errorf("misspelled term should not match without fuzzy, keyword score %f", s)
	}

	cfg := DefaultConfig()
	cfg.Fuzzy = true
	cfg.Fuzziness = 1
	fuzzy, _ := newTestPipeline(t, embedding.NewHashEmbedder(testDims), cfg)
	if _, err := fuzzy.AddDocuments(ctx, docs); err != nil {
		t.Fatal(err)
	}
	results, err = fuzzy.HybridQuery(ctx, "Rossun", 2)
	if err != nil {
		t.Fatal(err)
	}
	if s := keywordScoreBySource(results)["python"]; s != 1 {
		t.Errorf("fuzzy match should carry the best keyword score, got %f", s)
	}
}

func TestPipeline_HybridQuerySourceBoost(t *testing.T) {
	docs := []*models.Document{
		{Source: "python", Text: pythonDoc},
		{Source: "rossum", Text: "Green tea should steep for two minutes."},
	}
	ctx := context.Background()

	plain, _ := newTestPipeline(t, embedding.NewHashEmbedder(testDims), DefaultConfig())
	if _, err := plain.AddDocuments(ctx, docs); err != nil {
		t.Fatal(err)
	}
	results, err := plain.HybridQuery(ctx, "rossum", 2)
	if err != nil {
		t.Fatal(err)
	}
	if s := keywordScoreBySource(results)["rossum"]; s != 0 {
		t.Errorf("source name should not match without a boost, keyword score %f", s)
	}

	cfg := DefaultConfig()
	cfg.SourceBoost = 3
	boosted, _ := newTestPipeline(t, embedding.NewHashEmbedder(testDims), cfg)
	if _, err := boosted.AddDocuments(ctx, docs); err != nil {
		t.Fatal(err)
	}
	results, err = boosted.HybridQuery(ctx, "rossum", 2)
	if err != nil {
		t.Fatal(err)
	}
	if s := keywordScoreBySource(results)["rossum"]; s <= 0 {
		t.Errorf("boosted source match should score, got %f", s)
	}
}
