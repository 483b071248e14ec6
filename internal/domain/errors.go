package domain

import "errors"

var (
	// ErrUnknownAgeGroup signals an age group outside the supported tiers.
	ErrUnknownAgeGroup = errors.New("unknown age group")
	// ErrUserNotFound signals a user id missing from the roster.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrEmbeddingQuotaExceeded signals the token budget was spent.
	ErrEmbeddingQuotaExceeded = errors.New("embedding token budget exceeded")
	// ErrCompletionProviderError signals a completion provider failure.
	ErrCompletionProviderError = errors.New("completion provider error")
	// ErrVectorDimMismatch signals a vector dimension mismatch at ingestion.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
)
