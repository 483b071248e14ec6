package index

import (
	"context"
	"errors"
	"testing"

	"github.com/Ding0127/qa-chatbot/internal/db"
	"github.com/Ding0127/qa-chatbot/internal/domain"
)

func TestSearch_BuildsQuery(t *testing.T) {
	repo, ms := newTestRepo(t)

	var captured *db.KNNQuery
	ms.searchKNNFn = func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
		captured = q
		return &db.SearchResult{}, nil
	}

	vec := domain.ZeroVector()
	_, err := repo.Search(context.Background(), vec, 3, map[string]string{
		domain.FieldAgeGroup: "Kindergarten",
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if captured.IndexName != "qachat:doc:idx" {
		t.Errorf("index name = %q", captured.IndexName)
	}
	if captured.K != 3 {
		t.Errorf("k = %d, want 3", captured.K)
	}
	if captured.TagFilters[domain.FieldAgeGroup] != "Kindergarten" {
		t.Errorf("age filter missing: %v", captured.TagFilters)
	}
}

func TestSearch_ParsesEntries(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.searchKNNFn = func(_ context.Context, _ *db.KNNQuery) (*db.SearchResult, error) {
		return &db.SearchResult{
			Total: 2,
			Entries: []db.SearchEntry{
				{
					Key:      "qachat:doc:1",
					Distance: 0.12,
					Fields: map[string]string{
						domain.FieldContent:  "Question: What is the sky?\nAnswer: The sky is the big blue space you see above you!",
						domain.FieldTopic:    "Science",
						domain.FieldQuestion: "What is the sky?",
						domain.FieldAgeGroup: "Kindergarten",
					},
				},
				{
					Key:      "qachat:doc:2",
					Distance: 0.48,
					Fields: map[string]string{
						domain.FieldContent:  "Question: What are stars?\nAnswer: Stars are twinkling lights in the night sky!",
						domain.FieldTopic:    "Science",
						domain.FieldQuestion: "What are stars?",
						domain.FieldAgeGroup: "Kindergarten",
					},
				},
			},
		}, nil
	}

	results, err := repo.Search(context.Background(), domain.ZeroVector(), 3, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	best := results[0]
	if best.Distance() != 0.12 {
		t.Errorf("best distance = %v", best.Distance())
	}
	if best.Document().Question() != "What is the sky?" {
		t.Errorf("best question = %q", best.Document().Question())
	}
	if best.Document().AgeGroup() != domain.Kindergarten {
		t.Errorf("best age group = %q", best.Document().AgeGroup())
	}
}

func TestSearch_EmptyResult(t *testing.T) {
	repo, _ := newTestRepo(t)

	results, err := repo.Search(context.Background(), domain.ZeroVector(), 3, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestAddBatch_DimensionMismatch(t *testing.T) {
	repo, _ := newTestRepo(t)

	err := repo.AddBatch(context.Background(), []IngestDoc{{
		ID:       "1",
		Document: domain.NewDocument("c", "Science", "q", domain.Kindergarten),
		Vector:   make([]float32, 512),
	}})
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestAddBatch_StoresFields(t *testing.T) {
	repo, ms := newTestRepo(t)

	var captured []db.HashSetItem
	ms.hSetMultiFn = func(_ context.Context, items []db.HashSetItem) error {
		captured = items
		return nil
	}

	err := repo.AddBatch(context.Background(), []IngestDoc{{
		ID:       "42",
		Document: domain.NewDocument("Question: q\nAnswer: a", "Health", "q", domain.PrimaryUpper),
		Vector:   domain.ZeroVector(),
	}})
	if err != nil {
		t.Fatalf("AddBatch: %v", err)
	}

	if len(captured) != 1 {
		t.Fatalf("stored %d items, want 1", len(captured))
	}
	item := captured[0]
	if item.Key != "qachat:doc:42" {
		t.Errorf("key = %q", item.Key)
	}
	if item.Fields[domain.FieldAgeGroup] != "Primary 4-6" {
		t.Errorf("age_group = %q", item.Fields[domain.FieldAgeGroup])
	}
	if len(item.Fields[domain.FieldVector]) != domain.VectorDim*4 {
		t.Errorf("vector blob is %d bytes, want %d", len(item.Fields[domain.FieldVector]), domain.VectorDim*4)
	}
}

func TestEnsureIndex(t *testing.T) {
	t.Run("creates when missing", func(t *testing.T) {
		repo, ms := newTestRepo(t)
		var created *db.IndexDefinition
		ms.createIndexFn = func(_ context.Context, def *db.IndexDefinition) error {
			created = def
			return nil
		}

		if err := repo.EnsureIndex(context.Background(), false); err != nil {
			t.Fatalf("EnsureIndex: %v", err)
		}
		if created == nil {
			t.Fatal("index was not created")
		}
		if created.Name != "qachat:doc:idx" {
			t.Errorf("index name = %q", created.Name)
		}
	})

	t.Run("no-op when present", func(t *testing.T) {
		repo, ms := newTestRepo(t)
		ms.indexExistsFn = func(context.Context, string) (bool, error) { return true, nil }
		ms.createIndexFn = func(context.Context, *db.IndexDefinition) error {
			t.Error("CreateIndex should not be called")
			return nil
		}

		if err := repo.EnsureIndex(context.Background(), false); err != nil {
			t.Fatalf("EnsureIndex: %v", err)
		}
	})

	t.Run("reset drops and recreates", func(t *testing.T) {
		repo, ms := newTestRepo(t)
		dropped := false
		ms.indexExistsFn = func(context.Context, string) (bool, error) { return true, nil }
		ms.dropIndexFn = func(context.Context, string) error {
			dropped = true
			return nil
		}

		if err := repo.EnsureIndex(context.Background(), true); err != nil {
			t.Fatalf("EnsureIndex: %v", err)
		}
		if !dropped {
			t.Error("expected the existing index to be dropped")
		}
	})
}
