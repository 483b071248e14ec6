package metrics

import "github.com/prometheus/client_golang/prometheus"

// RAG pipeline Prometheus metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qachat",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "qachat",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"model"},
	)

	EmbeddingRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "qachat",
			Name:      "embedding_retries_total",
			Help:      "Total embedding retry attempts after a failed call",
		},
	)

	EmbeddingZeroVectorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "qachat",
			Name:      "embedding_zero_vectors_total",
			Help:      "Embeddings degraded to the zero vector after exhausted retries",
		},
	)

	RetrievalHits = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "qachat",
			Name:      "retrieval_hits",
			Help:      "Documents surviving retrieval per question",
			Buckets:   []float64{0, 1, 2, 3},
		},
	)

	AnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qachat",
			Name:      "answers_total",
			Help:      "Completed answer turns by outcome",
		},
		[]string{"outcome"}, // "answered" / "fallback" / "diagnostic"
	)

	GenerationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "qachat",
			Name:      "generation_duration_seconds",
			Help:      "Wall time of a full generation stream",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
	)
)

// Answer outcome label values.
const (
	OutcomeAnswered   = "answered"
	OutcomeFallback   = "fallback"
	OutcomeDiagnostic = "diagnostic"
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers RAG pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingRetriesTotal)
	prometheus.MustRegister(EmbeddingZeroVectorsTotal)
	prometheus.MustRegister(RetrievalHits)
	prometheus.MustRegister(AnswersTotal)
	prometheus.MustRegister(GenerationDuration)
	pipelineMetricsRegistered = true
}
