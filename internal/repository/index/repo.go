// Package index is the vector index over the educational corpus. The
// ingestion command writes it; the answer pipeline reads it.
package index

import (
	"context"
	"fmt"

	"github.com/Ding0127/qa-chatbot/internal/db"
	"github.com/Ding0127/qa-chatbot/internal/domain"
)

// store is the consumer interface for index operations (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Repo is the vector index repository.
type Repo struct {
	store     store
	keyPrefix string
}

// New creates an index repository. keyPrefix defaults to domain.KeyPrefix.
func New(s store, keyPrefix string) *Repo {
	if keyPrefix == "" {
		keyPrefix = domain.KeyPrefix
	}
	return &Repo{store: s, keyPrefix: keyPrefix}
}

func (r *Repo) indexName() string { return r.keyPrefix + "doc:idx" }
func (r *Repo) docPrefix() string { return r.keyPrefix + "doc:" }

// Search runs a KNN query and returns hits ordered by ascending raw
// distance, capped at k. filters are optional exact-match metadata
// constraints; nil means unfiltered.
func (r *Repo) Search(
	ctx context.Context, vector []float32, k int, filters map[string]string,
) ([]domain.ScoredResult, error) {
	q := &db.KNNQuery{
		IndexName:  r.indexName(),
		Vector:     vector,
		K:          k,
		TagFilters: filters,
		ReturnFields: []string{
			domain.FieldContent, domain.FieldTopic,
			domain.FieldQuestion, domain.FieldAgeGroup,
		},
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search knn: %w", err)
	}
	if sr == nil || len(sr.Entries) == 0 {
		return nil, nil
	}

	results := make([]domain.ScoredResult, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		doc := domain.NewDocument(
			entry.Fields[domain.FieldContent],
			entry.Fields[domain.FieldTopic],
			entry.Fields[domain.FieldQuestion],
			// The index collaborator owns label validity; pass through
			// whatever it stored.
			domain.AgeGroup(entry.Fields[domain.FieldAgeGroup]),
		)
		results = append(results, domain.NewScoredResult(doc, entry.Distance))
	}
	return results, nil
}

// IngestDoc pairs a corpus document with its precomputed embedding.
type IngestDoc struct {
	ID       string
	Document domain.Document
	Vector   []float32
}

// AddBatch stores documents as hashes under the indexed prefix. Vectors
// must already be normalized to domain.VectorDim.
func (r *Repo) AddBatch(ctx context.Context, docs []IngestDoc) error {
	items := make([]db.HashSetItem, 0, len(docs))
	for _, d := range docs {
		if len(d.Vector) != domain.VectorDim {
			return fmt.Errorf("document %s has %d components: %w",
				d.ID, len(d.Vector), domain.ErrVectorDimMismatch)
		}
		items = append(items, db.HashSetItem{
			Key: r.docPrefix() + d.ID,
			Fields: map[string]string{
				domain.FieldContent:  d.Document.Content(),
				domain.FieldTopic:    d.Document.Topic(),
				domain.FieldQuestion: d.Document.Question(),
				domain.FieldAgeGroup: d.Document.AgeGroup().String(),
				domain.FieldVector:   db.VectorToBytes(d.Vector),
			},
		})
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("store documents: %w", err)
	}
	return nil
}

// EnsureIndex creates the FT index if missing. With reset, an existing
// index is dropped and recreated (indexed hashes survive the drop and
// are re-picked-up by the new index).
func (r *Repo) EnsureIndex(ctx context.Context, reset bool) error {
	exists, err := r.store.IndexExists(ctx, r.indexName())
	if err != nil {
		return fmt.Errorf("probe index: %w", err)
	}

	if exists {
		if !reset {
			return nil
		}
		if err := r.store.DropIndex(ctx, r.indexName()); err != nil {
			return fmt.Errorf("drop index: %w", err)
		}
	}

	def := &db.IndexDefinition{
		Name:     r.indexName(),
		Prefixes: []string{r.docPrefix()},
		Fields: []db.IndexField{
			{Name: domain.FieldTopic, Type: db.IndexFieldTag},
			{Name: domain.FieldQuestion, Type: db.IndexFieldTag},
			{Name: domain.FieldAgeGroup, Type: db.IndexFieldTag},
			{Name: domain.FieldContent, Type: db.IndexFieldText},
			{Name: domain.FieldVector, Type: db.IndexFieldVector, VectorDim: domain.VectorDim},
		},
	}
	if err := r.store.CreateIndex(ctx, def); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}
