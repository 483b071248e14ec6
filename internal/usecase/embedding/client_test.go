package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Ding0127/qa-chatbot/internal/domain"
)

// mockEmbedder implements domain.Embedder for tests.
type mockEmbedder struct {
	calls   int
	embedFn func(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.embedFn != nil {
		return m.embedFn(ctx, text)
	}
	return domain.EmbeddingResult{Embedding: make([]float32, domain.VectorDim)}, nil
}

// fakeSleep records requested delays without waiting.
type fakeSleep struct {
	delays []time.Duration
	err    error
}

func (f *fakeSleep) sleep(_ context.Context, d time.Duration) error {
	f.delays = append(f.delays, d)
	return f.err
}

func newTestClient(inner domain.Embedder, cfg ClientConfig) (*Client, *fakeSleep) {
	cfg.Logger = zap.NewNop()
	c := NewClient(inner, cfg)
	fs := &fakeSleep{}
	c.sleep = fs.sleep
	return c, fs
}

func TestEmbedOne_PadsShortVector(t *testing.T) {
	me := &mockEmbedder{
		embedFn: func(context.Context, string) (domain.EmbeddingResult, error) {
			v := make([]float32, 512)
			for i := range v {
				v[i] = 1
			}
			return domain.EmbeddingResult{Embedding: v}, nil
		},
	}
	c, _ := newTestClient(me, ClientConfig{})

	got := c.EmbedOne(context.Background(), "hello")
	if len(got) != domain.VectorDim {
		t.Fatalf("len = %d, want %d", len(got), domain.VectorDim)
	}
	if got[511] != 1 || got[512] != 0 {
		t.Errorf("padding boundary wrong: got[511]=%v got[512]=%v", got[511], got[512])
	}
}

func TestEmbedOne_TruncatesLongVector(t *testing.T) {
	me := &mockEmbedder{
		embedFn: func(context.Context, string) (domain.EmbeddingResult, error) {
			v := make([]float32, 2048)
			for i := range v {
				v[i] = float32(i)
			}
			return domain.EmbeddingResult{Embedding: v}, nil
		},
	}
	c, _ := newTestClient(me, ClientConfig{})

	got := c.EmbedOne(context.Background(), "hello")
	if len(got) != domain.VectorDim {
		t.Fatalf("len = %d, want %d", len(got), domain.VectorDim)
	}
	if got[domain.VectorDim-1] != float32(domain.VectorDim-1) {
		t.Errorf("truncation dropped leading components")
	}
}

func TestEmbedOne_RetriesWithBackoff(t *testing.T) {
	me := &mockEmbedder{}
	me.embedFn = func(context.Context, string) (domain.EmbeddingResult, error) {
		if me.calls < 3 {
			return domain.EmbeddingResult{}, errors.New("transient")
		}
		v := make([]float32, domain.VectorDim)
		v[0] = 0.5
		return domain.EmbeddingResult{Embedding: v}, nil
	}
	c, fs := newTestClient(me, ClientConfig{
		Attempts:   3,
		RetryDelay: 2 * time.Second,
	})

	got := c.EmbedOne(context.Background(), "hello")
	if me.calls != 3 {
		t.Errorf("calls = %d, want 3", me.calls)
	}
	if got[0] != 0.5 {
		t.Errorf("did not return the successful result")
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(fs.delays) != len(want) {
		t.Fatalf("slept %d times, want %d", len(fs.delays), len(want))
	}
	for i := range want {
		if fs.delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, fs.delays[i], want[i])
		}
	}
}

func TestEmbedOne_ExhaustedDegradesToZero(t *testing.T) {
	me := &mockEmbedder{
		embedFn: func(context.Context, string) (domain.EmbeddingResult, error) {
			return domain.EmbeddingResult{}, errors.New("down")
		},
	}
	c, fs := newTestClient(me, ClientConfig{Attempts: 3, RetryDelay: time.Second})

	got := c.EmbedOne(context.Background(), "hello")
	if me.calls != 3 {
		t.Errorf("calls = %d, want exactly 3", me.calls)
	}
	if len(fs.delays) != 2 {
		t.Errorf("slept %d times, want 2 (no sleep after the last attempt)", len(fs.delays))
	}
	if !domain.IsZeroVector(got) {
		t.Error("expected the zero vector after exhausted retries")
	}
}

func TestEmbedOne_BudgetRejectSkipsProvider(t *testing.T) {
	me := &mockEmbedder{}
	c, _ := newTestClient(me, ClientConfig{
		Budget: rejectingBudget{},
	})

	got := c.EmbedOne(context.Background(), "hello")
	if me.calls != 0 {
		t.Errorf("provider called %d times despite budget rejection", me.calls)
	}
	if !domain.IsZeroVector(got) {
		t.Error("expected the zero vector when budget rejects")
	}
}

func TestEmbedOne_RecordsTokenUsage(t *testing.T) {
	me := &mockEmbedder{
		embedFn: func(context.Context, string) (domain.EmbeddingResult, error) {
			return domain.EmbeddingResult{
				Embedding:   make([]float32, domain.VectorDim),
				TotalTokens: 17,
			}, nil
		},
	}
	rb := &recordingBudget{}
	c, _ := newTestClient(me, ClientConfig{Budget: rb})

	c.EmbedOne(context.Background(), "hello")
	if rb.recorded != 17 {
		t.Errorf("recorded %d tokens, want 17", rb.recorded)
	}
}

func TestEmbedBatch_PreservesAlignment(t *testing.T) {
	me := &mockEmbedder{
		embedFn: func(_ context.Context, text string) (domain.EmbeddingResult, error) {
			if text == "bad" {
				return domain.EmbeddingResult{}, errors.New("down")
			}
			v := make([]float32, domain.VectorDim)
			v[0] = float32(len(text))
			return domain.EmbeddingResult{Embedding: v}, nil
		},
	}
	c, fs := newTestClient(me, ClientConfig{
		Attempts:   2,
		BatchSize:  3,
		BatchDelay: 500 * time.Millisecond,
		RetryDelay: time.Millisecond,
	})

	texts := []string{"a", "bb", "bad", "cccc", "ddddd", "e", "ff"}
	got := c.EmbedBatch(context.Background(), texts)

	if len(got) != len(texts) {
		t.Fatalf("len = %d, want %d", len(got), len(texts))
	}
	if !domain.IsZeroVector(got[2]) {
		t.Error("failed item did not degrade to zero vector")
	}
	if got[0][0] != 1 || got[6][0] != 2 {
		t.Error("successful items are misaligned")
	}

	// One pause between every pair of consecutive items, none before
	// the first.
	var pauses int
	for _, d := range fs.delays {
		if d == 500*time.Millisecond {
			pauses++
		}
	}
	if pauses != len(texts)-1 {
		t.Errorf("paused %d times between items, want %d", pauses, len(texts)-1)
	}
}

func TestEmbedBatch_PausesBetweenItems(t *testing.T) {
	me := &mockEmbedder{}
	c, fs := newTestClient(me, ClientConfig{
		BatchSize:  5,
		BatchDelay: 500 * time.Millisecond,
	})

	c.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})

	if me.calls != 5 {
		t.Fatalf("provider called %d times, want 5", me.calls)
	}
	if len(fs.delays) != 4 {
		t.Fatalf("slept %d times, want 4", len(fs.delays))
	}
	for i, d := range fs.delays {
		if d != 500*time.Millisecond {
			t.Errorf("sleep %d = %v, want 500ms", i, d)
		}
	}
}

func TestEmbedBatch_ContextEndedMidBatch(t *testing.T) {
	me := &mockEmbedder{
		embedFn: func(context.Context, string) (domain.EmbeddingResult, error) {
			v := make([]float32, domain.VectorDim)
			v[0] = 1
			return domain.EmbeddingResult{Embedding: v}, nil
		},
	}
	c, fs := newTestClient(me, ClientConfig{BatchSize: 2, BatchDelay: time.Second})
	fs.err = context.Canceled

	got := c.EmbedBatch(context.Background(), []string{"a", "b", "c", "d"})
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	// The first item completes before any pause; the rest degrade.
	if domain.IsZeroVector(got[0]) {
		t.Error("first item should have embedded normally")
	}
	for i := 1; i < 4; i++ {
		if !domain.IsZeroVector(got[i]) {
			t.Errorf("item %d after cancellation should be a zero vector", i)
		}
	}
	if me.calls != 1 {
		t.Errorf("provider called %d times, want 1", me.calls)
	}
}

// rejectingBudget always blocks.
type rejectingBudget struct{}

func (rejectingBudget) Check(context.Context) error { return domain.ErrEmbeddingQuotaExceeded }
func (rejectingBudget) Record(int64)                {}

// recordingBudget allows everything and sums recorded tokens.
type recordingBudget struct{ recorded int64 }

func (b *recordingBudget) Check(context.Context) error { return nil }
func (b *recordingBudget) Record(tokens int64)         { b.recorded += tokens }
