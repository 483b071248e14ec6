package rag

import (
	"io"

	"github.com/Ding0127/qa-chatbot/internal/domain"
)

// notifyingStream passes an inner stream through untouched and fires
// onDone exactly once with the final cumulative value when the inner
// stream reaches io.EOF. Abandoning the stream via Close never fires
// the callback: an unconsumed answer is not a completed answer.
type notifyingStream struct {
	inner  domain.AnswerStream
	onDone func(final string)
	last   string
	fired  bool
}

func newNotifyingStream(inner domain.AnswerStream, onDone func(final string)) *notifyingStream {
	return &notifyingStream{inner: inner, onDone: onDone}
}

// Recv implements domain.AnswerStream.
func (s *notifyingStream) Recv() (string, error) {
	v, err := s.inner.Recv()
	if err == io.EOF {
		if !s.fired {
			s.fired = true
			s.onDone(s.last)
		}
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	s.last = v
	return v, nil
}

// Close implements domain.AnswerStream.
func (s *notifyingStream) Close() error { return s.inner.Close() }
