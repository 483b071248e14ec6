// Package convlog persists per-user conversation history as an
// append-only Redis list of JSON-encoded turns.
package convlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Ding0127/qa-chatbot/internal/domain"
)

// store is the consumer interface for log operations (ISP).
type store interface {
	RPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
}

// Repo is the conversation log repository.
type Repo struct {
	store     store
	keyPrefix string
	logger    *zap.Logger
}

// New creates a conversation log repository. keyPrefix defaults to
// domain.KeyPrefix.
func New(s store, keyPrefix string, logger *zap.Logger) *Repo {
	if keyPrefix == "" {
		keyPrefix = domain.KeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{store: s, keyPrefix: keyPrefix, logger: logger}
}

func (r *Repo) key(userID string) string { return r.keyPrefix + "log:" + userID }

// Append records one completed turn at the end of the user's history.
func (r *Repo) Append(ctx context.Context, userID string, turn domain.Turn) error {
	if turn.AnsweredAt.IsZero() {
		turn.AnsweredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encode turn: %w", err)
	}
	if err := r.store.RPush(ctx, r.key(userID), string(payload)); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// History returns the user's turns in chronological order. Entries that
// fail to decode are skipped with a warning rather than failing the
// whole read.
func (r *Repo) History(ctx context.Context, userID string) ([]domain.Turn, error) {
	raw, err := r.store.LRange(ctx, r.key(userID), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	turns := make([]domain.Turn, 0, len(raw))
	for i, entry := range raw {
		var turn domain.Turn
		if err := json.Unmarshal([]byte(entry), &turn); err != nil {
			r.logger.Warn("skipping undecodable log entry",
				zap.String("user_id", userID),
				zap.Int("position", i),
				zap.Error(err))
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}
