// Package classify assigns an incoming question to one of the fixed
// curriculum topics via a short one-shot completion.
package classify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Topics the classifier can assign, in prompt order.
const (
	TopicHealth     = "health"
	TopicHistory    = "history"
	TopicLifeSkills = "life_skills"
	TopicScience    = "science"
	TopicTechnology = "technology"
)

// DefaultTopic is returned whenever the model's reply cannot be mapped
// to a known topic, or the provider call fails. Classification is
// best-effort; it must never block answering.
const DefaultTopic = TopicScience

var topics = []string{TopicHealth, TopicHistory, TopicLifeSkills, TopicScience, TopicTechnology}

const systemPrompt = "You are a helpful classification assistant."

const promptTemplate = `You are a classifier that categorizes educational questions into exactly one of these five categories:
- health: Questions about physical or mental health, wellness, medical topics, or the human body
- history: Questions about historical events, figures, civilizations, or time periods
- life_skills: Questions about practical skills, social interactions, personal development, or daily life
- science: Questions about scientific principles, natural phenomena, biology, chemistry, physics, or the universe
- technology: Questions about computers, internet, digital devices, programming, or technological innovations

The question is: %q

Respond with only one word - the category name.
`

// Completer is the one-shot completion collaborator.
type Completer interface {
	Complete(ctx context.Context, system, user string, temperature float32, maxTokens int) (string, error)
}

// Classifier maps questions to curriculum topics.
type Classifier struct {
	completer Completer
	logger    *zap.Logger
}

// New creates a classifier.
func New(c Completer, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{completer: c, logger: logger}
}

// Classify returns the best topic for the question, DefaultTopic when
// in doubt. It never returns an error.
func (c *Classifier) Classify(ctx context.Context, question string) string {
	reply, err := c.completer.Complete(ctx,
		systemPrompt,
		fmt.Sprintf(promptTemplate, question),
		0.3,
		10,
	)
	if err != nil {
		c.logger.Warn("Classification failed, using default topic", zap.Error(err))
		return DefaultTopic
	}

	label := strings.ToLower(strings.TrimSpace(reply))
	for _, t := range topics {
		if label == t {
			return t
		}
	}
	// Best effort: a chatty reply may still contain the topic word.
	for _, t := range topics {
		if strings.Contains(label, t) {
			return t
		}
	}

	c.logger.Warn("Unrecognized classification label", zap.String("label", label))
	return DefaultTopic
}
