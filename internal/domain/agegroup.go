package domain

import "fmt"

// AgeGroup classifies the audience of a question. It selects the prompt
// tone and, under the age_filter retrieval policy, restricts which
// documents participate in ranking.
type AgeGroup string

// The three supported audience tiers.
const (
	Kindergarten AgeGroup = "Kindergarten"
	PrimaryLower AgeGroup = "Primary 1-3"
	PrimaryUpper AgeGroup = "Primary 4-6"
)

// ParseAgeGroup validates a raw age group value.
func ParseAgeGroup(s string) (AgeGroup, error) {
	switch AgeGroup(s) {
	case Kindergarten, PrimaryLower, PrimaryUpper:
		return AgeGroup(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAgeGroup, s)
}

// String returns the canonical label.
func (g AgeGroup) String() string { return string(g) }
