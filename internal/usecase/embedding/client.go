// Package embedding layers resilience on top of a raw embedding
// provider: bounded retries with exponential backoff, batch pacing,
// token budget enforcement, and degradation to the zero vector so the
// answer pipeline never stalls on provider failures.
package embedding

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Ding0127/qa-chatbot/internal/domain"
	"github.com/Ding0127/qa-chatbot/internal/metrics"
)

// Defaults applied by NewClient when the config leaves a knob zero.
const (
	DefaultAttempts   = 3
	DefaultRetryDelay = 2 * time.Second
	DefaultBatchSize  = 5
	DefaultBatchDelay = 500 * time.Millisecond
)

// BudgetChecker is the local interface for budget enforcement.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
}

// ClientConfig configures the resilient client.
type ClientConfig struct {
	// Attempts is the total number of tries per text, including the first.
	Attempts int
	// RetryDelay is the wait before the second attempt; it doubles on
	// each further retry.
	RetryDelay time.Duration
	// CallTimeout bounds a single provider call. Zero means the caller's
	// context is the only bound.
	CallTimeout time.Duration
	// BatchSize is the group size EmbedBatch reports progress in.
	BatchSize int
	// BatchDelay is the pause between consecutive texts in EmbedBatch.
	BatchDelay time.Duration
	// Budget is optional token budget enforcement.
	Budget BudgetChecker
	Logger *zap.Logger
}

// Client wraps a raw embedder with retries, pacing, and degradation.
// Every returned vector has exactly domain.VectorDim components.
type Client struct {
	inner       domain.Embedder
	attempts    int
	retryDelay  time.Duration
	callTimeout time.Duration
	batchSize   int
	batchDelay  time.Duration
	budget      BudgetChecker
	logger      *zap.Logger

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a resilient embedding client around inner.
func NewClient(inner domain.Embedder, cfg ClientConfig) *Client {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = DefaultBatchDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		inner:       inner,
		attempts:    cfg.Attempts,
		retryDelay:  cfg.RetryDelay,
		callTimeout: cfg.CallTimeout,
		batchSize:   cfg.BatchSize,
		batchDelay:  cfg.BatchDelay,
		budget:      cfg.Budget,
		logger:      cfg.Logger,
		sleep:       sleepCtx,
	}
}

// EmbedOne embeds a single text. Provider failures are retried with
// exponentially growing delays; once attempts are exhausted (or the
// budget rejects, or the context ends) the zero vector is returned so
// the caller always has a usable vector.
func (c *Client) EmbedOne(ctx context.Context, text string) []float32 {
	delay := c.retryDelay

	for attempt := 1; attempt <= c.attempts; attempt++ {
		if c.budget != nil {
			if err := c.budget.Check(ctx); err != nil {
				// Budget rejections are not transient; no point retrying.
				c.logger.Warn("Embedding blocked by token budget", zap.Error(err))
				break
			}
		}

		res, err := c.embed(ctx, text)
		if err == nil {
			if c.budget != nil {
				c.budget.Record(int64(res.TotalTokens))
			}
			return domain.NormalizeDim(res.Embedding)
		}

		c.logger.Warn("Embedding attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.attempts),
			zap.Error(err),
		)

		if attempt == c.attempts {
			break
		}
		metrics.EmbeddingRetriesTotal.Inc()
		if err := c.sleep(ctx, delay); err != nil {
			break
		}
		delay *= 2
	}

	metrics.EmbeddingZeroVectorsTotal.Inc()
	c.logger.Error("Embedding degraded to zero vector",
		zap.Int("text_len", len(text)))
	return domain.ZeroVector()
}

// EmbedBatch embeds texts preserving order and length: result[i] always
// corresponds to texts[i], degraded items included. A fixed pause
// separates consecutive items to stay under provider rate limits;
// progress is logged per group of BatchSize.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))

	for i, text := range texts {
		if i > 0 {
			if err := c.sleep(ctx, c.batchDelay); err != nil {
				// Context ended mid-batch: keep alignment, degrade the rest.
				for j := i; j < len(texts); j++ {
					metrics.EmbeddingZeroVectorsTotal.Inc()
					out[j] = domain.ZeroVector()
				}
				return out
			}
		}
		out[i] = c.EmbedOne(ctx, text)
		if (i+1)%c.batchSize == 0 || i == len(texts)-1 {
			c.logger.Debug("Embedded batch",
				zap.Int("done", i+1),
				zap.Int("total", len(texts)),
			)
		}
	}
	return out
}

func (c *Client) embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}
	return c.inner.Embed(ctx, text)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
