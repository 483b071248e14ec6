// Package rag orchestrates the answer pipeline: embed the question,
// retrieve the closest corpus documents, compose an age-appropriate
// prompt, and stream the generated answer.
package rag

import (
	"strings"

	"github.com/Ding0127/qa-chatbot/internal/domain"
)

// promptTemplate instructs the model to match its answer to one of the
// three audience tiers. Slot order is fixed; only the three values vary.
const promptTemplate = `
Adjust your explanation based on these educational levels:
- Kindergarten: Use very simple words, short sentences
- Primary 1-3: Simple concepts with everyday analogies
- Primary 4-6: More detailed and fun examples but avoid complex jargon

User's age: {age_group}
Context: {context}
Question: {query}

Provide your best answer for this user's comprehension level:
`

// ComposePrompt renders the tiered answer prompt. Pure and
// deterministic: identical inputs produce byte-identical output.
func ComposePrompt(ageGroup domain.AgeGroup, context, query string) string {
	r := strings.NewReplacer(
		"{age_group}", ageGroup.String(),
		"{context}", context,
		"{query}", query,
	)
	return r.Replace(promptTemplate)
}
