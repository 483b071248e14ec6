package rag

import (
	"context"

	"github.com/Ding0127/qa-chatbot/internal/domain"
)

// mockEmbedder implements Embedder.
type mockEmbedder struct {
	embedOneFn func(ctx context.Context, text string) []float32
}

func (m *mockEmbedder) EmbedOne(ctx context.Context, text string) []float32 {
	if m.embedOneFn != nil {
		return m.embedOneFn(ctx, text)
	}
	v := domain.ZeroVector()
	v[0] = 1
	return v
}

// mockRetriever implements Retriever.
type mockRetriever struct {
	searchFn func(ctx context.Context, vector []float32, k int, filters map[string]string) ([]domain.ScoredResult, error)
}

func (m *mockRetriever) Search(
	ctx context.Context, vector []float32, k int, filters map[string]string,
) ([]domain.ScoredResult, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, vector, k, filters)
	}
	return nil, nil
}

// mockCompleter implements Completer and records the prompt it was
// given.
type mockCompleter struct {
	calls    int
	prompt   string
	streamFn func(ctx context.Context, prompt string, temperature float32) domain.AnswerStream
}

func (m *mockCompleter) Stream(
	ctx context.Context, prompt string, temperature float32,
) domain.AnswerStream {
	m.calls++
	m.prompt = prompt
	if m.streamFn != nil {
		return m.streamFn(ctx, prompt, temperature)
	}
	return domain.NewTextStream("partial", "partial answer")
}

// recordingTurns collects appended turns.
type recordingTurns struct {
	turns []domain.Turn
	users []string
}

func (r *recordingTurns) Append(userID string, turn domain.Turn) {
	r.users = append(r.users, userID)
	r.turns = append(r.turns, turn)
}

func scored(content string, ageGroup domain.AgeGroup, distance float64) domain.ScoredResult {
	doc := domain.NewDocument(content, "Science", "q", ageGroup)
	return domain.NewScoredResult(doc, distance)
}
