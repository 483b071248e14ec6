package domain

import "io"

// DiagnosticAnswer is the single value a stream yields when the
// completion transport fails mid-exchange. It is user-visible but never
// logged as a real answer.
const DiagnosticAnswer = "Error in the API request"

// AnswerStream is a pull-based sequence of cumulative answer text.
// Each Recv returns the full answer produced so far, so consecutive
// values grow by strict prefix and the last value before io.EOF is the
// complete answer. Recv keeps returning io.EOF once exhausted.
//
// Close releases the underlying connection and is safe to call at any
// point; a consumer abandoning the stream early must call it.
type AnswerStream interface {
	Recv() (string, error)
	Close() error
}

// TextStream yields a fixed list of values then io.EOF. It backs the
// fallback path and tests; Close is a no-op.
type TextStream struct {
	values []string
	pos    int
}

// NewTextStream creates a stream over pre-computed values.
func NewTextStream(values ...string) *TextStream {
	return &TextStream{values: values}
}

// Recv returns the next value or io.EOF.
func (s *TextStream) Recv() (string, error) {
	if s.pos >= len(s.values) {
		return "", io.EOF
	}
	v := s.values[s.pos]
	s.pos++
	return v, nil
}

// Close implements AnswerStream.
func (s *TextStream) Close() error { return nil }

// Drain consumes a stream to exhaustion and returns its last value.
func Drain(s AnswerStream) (string, error) {
	defer s.Close()
	var last string
	for {
		v, err := s.Recv()
		if err == io.EOF {
			return last, nil
		}
		if err != nil {
			return last, err
		}
		last = v
	}
}
