package budget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Ding0127/qa-chatbot/internal/db"
)

type mockStore struct {
	getFn    func(ctx context.Context, key string) ([]byte, error)
	incrByFn func(ctx context.Context, key string, val int64) error
	expireFn func(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) IncrBy(ctx context.Context, key string, val int64) error {
	if m.incrByFn != nil {
		return m.incrByFn(ctx, key, val)
	}
	return nil
}

func (m *mockStore) Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error {
	if m.expireFn != nil {
		return m.expireFn(ctx, key, ttl, nx)
	}
	return nil
}

func TestIncrBy_SetsTTLByPeriod(t *testing.T) {
	ms := &mockStore{}
	s := New(ms, 48*time.Hour, 62*24*time.Hour)

	var gotTTL time.Duration
	var gotNX bool
	ms.expireFn = func(_ context.Context, _ string, ttl time.Duration, nx bool) error {
		gotTTL = ttl
		gotNX = nx
		return nil
	}

	if err := s.IncrBy(context.Background(), "qachat:budget:openai:daily:2025-06-01", 10); err != nil {
		t.Fatalf("IncrBy: %v", err)
	}
	if gotTTL != 48*time.Hour {
		t.Errorf("daily ttl = %v", gotTTL)
	}
	if !gotNX {
		t.Error("expected EXPIRE NX")
	}

	if err := s.IncrBy(context.Background(), "qachat:budget:openai:monthly:2025-06", 10); err != nil {
		t.Fatalf("IncrBy: %v", err)
	}
	if gotTTL != 62*24*time.Hour {
		t.Errorf("monthly ttl = %v", gotTTL)
	}
}

func TestGet(t *testing.T) {
	ms := &mockStore{
		getFn: func(_ context.Context, _ string) ([]byte, error) {
			return []byte("1234"), nil
		},
	}
	s := New(ms, time.Hour, time.Hour)

	val, err := s.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != 1234 {
		t.Errorf("val = %d", val)
	}
}

func TestGet_MissingKeyIsZero(t *testing.T) {
	s := New(&mockStore{}, time.Hour, time.Hour)

	val, err := s.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != 0 {
		t.Errorf("val = %d, want 0", val)
	}
}

func TestGet_ParseError(t *testing.T) {
	ms := &mockStore{
		getFn: func(_ context.Context, _ string) ([]byte, error) {
			return []byte("not a number"), nil
		},
	}
	s := New(ms, time.Hour, time.Hour)

	if _, err := s.Get(context.Background(), "k"); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestIncrBy_PropagatesStoreError(t *testing.T) {
	boom := errors.New("boom")
	ms := &mockStore{
		incrByFn: func(context.Context, string, int64) error { return boom },
	}
	s := New(ms, time.Hour, time.Hour)

	if err := s.IncrBy(context.Background(), "k", 1); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}
