package domain

// Metadata field names of an indexed answer document. The ingestion
// collaborator writes exactly these keys; retrieval filters on them.
const (
	FieldContent  = "content"
	FieldTopic    = "topic"
	FieldQuestion = "question"
	FieldAgeGroup = "age_group"
	FieldVector   = "vector"
)

// KeyPrefix namespaces all Redis keys owned by this service.
const KeyPrefix = "qachat:"

// Document is one pre-authored answer from the educational corpus.
// Immutable once indexed; the index owns the only copy.
type Document struct {
	content  string
	topic    string
	question string
	ageGroup AgeGroup
}

// NewDocument creates a corpus document.
func NewDocument(content, topic, question string, ageGroup AgeGroup) Document {
	return Document{content: content, topic: topic, question: question, ageGroup: ageGroup}
}

// Content returns the document body ("Question: ...\nAnswer: ..." text).
func (d Document) Content() string { return d.content }

// Topic returns the curriculum topic.
func (d Document) Topic() string { return d.topic }

// Question returns the original question this document answers.
func (d Document) Question() string { return d.question }

// AgeGroup returns the audience tier the answer was authored for.
func (d Document) AgeGroup() AgeGroup { return d.ageGroup }
