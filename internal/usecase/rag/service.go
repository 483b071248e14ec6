package rag

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Ding0127/qa-chatbot/internal/domain"
	"github.com/Ding0127/qa-chatbot/internal/metrics"
)

// FallbackAnswer is the fixed terminal message when nothing relevant is
// found in the corpus. A business outcome, not an error.
const FallbackAnswer = "This question is out of what we have taught in class. " +
	"You may ask questions related to what we have learnt."

// RetrievalPolicy selects how retrieved documents are narrowed down.
// Exactly one policy is active; they are never combined.
type RetrievalPolicy string

const (
	// PolicyThreshold runs an unfiltered top-k search and discards hits
	// whose similarity falls below the configured minimum.
	PolicyThreshold RetrievalPolicy = "threshold"
	// PolicyAgeFilter pre-filters the search to the caller's age group
	// and keeps every hit.
	PolicyAgeFilter RetrievalPolicy = "age_filter"
)

// Embedder turns the question into a query vector. Degradation to the
// zero vector is the embedding layer's concern.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) []float32
}

// Retriever runs the KNN search over the corpus index.
type Retriever interface {
	Search(ctx context.Context, vector []float32, k int, filters map[string]string) ([]domain.ScoredResult, error)
}

// Completer opens a generation stream for a composed prompt. It must
// not fail construction; transport failures surface inside the stream.
type Completer interface {
	Stream(ctx context.Context, prompt string, temperature float32) domain.AnswerStream
}

// Config tunes the orchestrator.
type Config struct {
	Policy RetrievalPolicy // default PolicyThreshold
	TopK   int             // default 3
	// MinSimilarity applies under PolicyThreshold only. Default 0.7.
	MinSimilarity float64
	Temperature   float32 // default 0.7
	// Similarity converts raw distances; default domain.InverseDistance.
	Similarity domain.SimilarityPolicy
	Logger     *zap.Logger
}

// Service is the RAG orchestrator.
type Service struct {
	embedder  Embedder
	retriever Retriever
	completer Completer
	turns     domain.TurnLogger

	policy        RetrievalPolicy
	topK          int
	minSimilarity float64
	temperature   float32
	similarity    domain.SimilarityPolicy
	logger        *zap.Logger
}

// New creates the orchestrator. turns may be nil when answers should
// not be recorded.
func New(e Embedder, r Retriever, c Completer, turns domain.TurnLogger, cfg Config) *Service {
	if cfg.Policy == "" {
		cfg.Policy = PolicyThreshold
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = 0.7
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.7
	}
	if cfg.Similarity == nil {
		cfg.Similarity = domain.InverseDistance{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		embedder:      e,
		retriever:     r,
		completer:     c,
		turns:         turns,
		policy:        cfg.Policy,
		topK:          cfg.TopK,
		minSimilarity: cfg.MinSimilarity,
		temperature:   cfg.Temperature,
		similarity:    cfg.Similarity,
		logger:        cfg.Logger,
	}
}

// Answer runs the full pipeline for one question and returns the answer
// stream. The stream always terminates with some text: the fixed
// fallback when nothing relevant is found, a diagnostic value on a
// transport failure mid-generation, or the full answer. The completed
// (question, answer) turn is recorded exactly once, only for non-empty,
// non-diagnostic answers; userID may be empty to skip recording.
func (s *Service) Answer(
	ctx context.Context, userID string, ageGroup domain.AgeGroup, query string,
) domain.AnswerStream {
	start := time.Now()

	vector := s.embedder.EmbedOne(ctx, query)
	if domain.IsZeroVector(vector) {
		s.logger.Warn("Answering with a degraded query vector",
			zap.String("age_group", ageGroup.String()))
	}

	var filters map[string]string
	if s.policy == PolicyAgeFilter {
		filters = map[string]string{domain.FieldAgeGroup: ageGroup.String()}
	}

	results, err := s.retriever.Search(ctx, vector, s.topK, filters)
	if err != nil {
		// Retrieval failure is answered like an empty corpus rather than
		// surfaced to the child asking the question.
		s.logger.Error("Retrieval failed", zap.Error(err))
		return s.fallback()
	}

	if s.policy == PolicyThreshold {
		results = s.aboveThreshold(results)
	}
	metrics.RetrievalHits.Observe(float64(len(results)))

	if len(results) == 0 {
		return s.fallback()
	}

	// The closest match is the whole context, as authored.
	prompt := ComposePrompt(ageGroup, results[0].Document().Content(), query)

	inner := s.completer.Stream(ctx, prompt, s.temperature)
	return newNotifyingStream(inner, func(final string) {
		metrics.GenerationDuration.Observe(time.Since(start).Seconds())
		s.recordOutcome(userID, query, final)
	})
}

func (s *Service) fallback() domain.AnswerStream {
	metrics.AnswersTotal.WithLabelValues(metrics.OutcomeFallback).Inc()
	return domain.NewTextStream(FallbackAnswer)
}

func (s *Service) aboveThreshold(results []domain.ScoredResult) []domain.ScoredResult {
	kept := results[:0]
	for _, r := range results {
		if s.similarity.Similarity(r.Distance()) >= s.minSimilarity {
			kept = append(kept, r)
		}
	}
	return kept
}

func (s *Service) recordOutcome(userID, query, final string) {
	if final == "" || final == domain.DiagnosticAnswer {
		metrics.AnswersTotal.WithLabelValues(metrics.OutcomeDiagnostic).Inc()
		return
	}
	metrics.AnswersTotal.WithLabelValues(metrics.OutcomeAnswered).Inc()

	if s.turns == nil || userID == "" {
		return
	}
	s.turns.Append(userID, domain.Turn{
		Question:   query,
		Answer:     final,
		AnsweredAt: time.Now().UTC(),
	})
}
