package keyword

import (
	"context"
	"testing"
)

func newIndexed(t *testing.T, docs ...Doc) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex()
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	if err := idx.Index(context.Background(), docs); err != nil {
		t.Fatalf("Index: %v", err)
	}
	return idx
}

func TestBleveIndex_SearchFindsText(t *testing.T) {
	idx := newIndexed(t,
		Doc{ID: 0, Source: "report.docx", Text: "This report mentions Omnisyan and other findings. The Bayes app is also referenced."},
		Doc{ID: 1, Source: "notes.txt", Text: "Nothing relevant here."},
	)
	ctx := context.Background()

	results, err := idx.Search(ctx, "Omnisyan", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != 0 {
		t.Fatalf("results = %+v", results)
	}

	// No stemming: "bayes" matches "Bayes".
	results, err = idx.Search(ctx, "bayes", 10, nil)
	if err != nil {
		t.Fatalf("Search bayes: %v", err)
	}
	if len(results) == 0 || results[0].ID != 0 {
		t.Errorf("expected chunk 0 for \"bayes\", got %+v", results)
	}
	if n, _ := idx.DocCount(); n != 2 {
		t.Errorf("DocCount = %d", n)
	}
}

func TestBleveIndex_SourceBoost(t *testing.T) {
	idx := newIndexed(t,
		Doc{ID: 0, Source: "misc.txt", Text: "a short note about python"},
		Doc{ID: 1, Source: "python guide.md", Text: "a short note about snakes"},
	)
	ctx := context.Background()
	plain, _ := idx.Search(ctx, "python", 10, nil)
	if len(plain) != 1 || plain[0].ID != 0 {
		t.Fatalf("without boost only text should match: %+v", plain)
	}
	boosted, err := idx.Search(ctx, "python", 10, &SearchOptions{SourceBoost: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(boosted) != 2 {
		t.Errorf("source clause should add a hit, got %+v", boosted)
	}
}

func TestBleveIndex_Fuzzy(t *testing.T) {
	idx := newIndexed(t, Doc{ID: 5, Text: "Guido van Rossum created Python"})
	ctx := context.Background()
	if res, _ := idx.Search(ctx, "Rosum", 10, nil); len(res) != 0 {
		t.Errorf("exact search should miss a typo, got %+v", res)
	}
	res, err := idx.Search(ctx, "Rosum", 10, &SearchOptions{FuzzyEnabled: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].ID != 5 {
		t.Errorf("fuzzy search = %+v", res)
	}
}

func TestBleveIndex_Rebuild(t *testing.T) {
	idx := newIndexed(t, Doc{ID: 0, Text: "onlyinold"})
	ctx := context.Background()
	if err := idx.Rebuild(ctx, []Doc{{ID: 3, Text: "onlyinnew"}}); err != nil {
		t.Fatal(err)
	}
	if res, _ := idx.Search(ctx, "onlyinold", 10, nil); len(res) != 0 {
		t.Errorf("old content survived rebuild: %+v", res)
	}
	res, _ := idx.Search(ctx, "onlyinnew", 10, nil)
	if len(res) != 1 || res[0].ID != 3 {
		t.Errorf("new content missing: %+v", res)
	}
}

func TestBleveIndex_EmptyQuery(t *testing.T) {
	idx := newIndexed(t, Doc{ID: 0, Text: "text"})
	res, err := idx.Search(context.Background(), "   ", 10, nil)
	if err != nil || len(res) != 0 {
		t.Errorf("empty query: %v, %v", res, err)
	}
}
