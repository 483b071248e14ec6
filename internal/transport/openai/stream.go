package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Ding0127/qa-chatbot/internal/domain"
)

// dataPrefix and doneSentinel frame the provider's SSE event feed.
const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// StreamClient issues streaming chat completions and exposes them as a
// domain.AnswerStream of cumulative text.
//
// It parses the SSE feed by hand instead of going through go-openai's
// stream decoder: a malformed frame must be skipped without killing
// the rest of the stream, and the decoder treats it as fatal.
type StreamClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

// StreamConfig holds the streaming completion provider settings.
type StreamConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewStreamClient creates a streaming completion client.
func NewStreamClient(cfg *StreamConfig) *StreamClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &StreamClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     cfg.Logger,
	}
}

type streamRequest struct {
	Model       string          `json:"model"`
	Messages    []streamMessage `json:"messages"`
	Temperature float32         `json:"temperature"`
	Stream      bool            `json:"stream"`
}

type streamMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamFrame struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Stream starts a completion and returns the growing answer sequence.
// It never returns an error: any failure to even start the exchange
// degrades to a stream yielding the single diagnostic value, keeping
// the caller's contract uniform with mid-stream transport failures.
func (c *StreamClient) Stream(ctx context.Context, prompt string, temperature float32) domain.AnswerStream {
	body, err := json.Marshal(streamRequest{
		Model:       c.model,
		Messages:    []streamMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
		Stream:      true,
	})
	if err != nil {
		return c.failedStream("marshal request", err)
	}

	// The stream outlives this call; the derived cancel is released by
	// completionStream.Close.
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		cancel()
		return c.failedStream("create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return c.failedStream("completion request", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return c.failedStream("completion request",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)))
	}

	return &completionStream{
		resp:   resp,
		reader: bufio.NewReader(resp.Body),
		cancel: cancel,
		logger: c.logger,
	}
}

func (c *StreamClient) failedStream(op string, err error) domain.AnswerStream {
	if c.logger != nil {
		c.logger.Warn("Completion stream failed to start", zap.String("op", op), zap.Error(err))
	}
	return domain.NewTextStream(domain.DiagnosticAnswer)
}

// completionStream pulls SSE frames on demand. No reader goroutine: Recv
// blocks on the wire directly, so Close aborting the request promptly
// unblocks any in-flight Recv.
type completionStream struct {
	resp   *http.Response
	reader *bufio.Reader
	cancel context.CancelFunc
	answer strings.Builder
	done   bool
	closed bool
	logger *zap.Logger
}

// Recv returns the cumulative answer after the next increment. The
// [DONE] sentinel terminates with io.EOF; a transport failure yields
// domain.DiagnosticAnswer once and then io.EOF.
func (s *completionStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}

	for {
		line, err := s.reader.ReadString('\n')

		if delta, ok := s.parseFrame(line); ok {
			s.answer.WriteString(delta)
			return s.answer.String(), nil
		}
		if s.done {
			// parseFrame saw the end-of-stream sentinel.
			return "", io.EOF
		}

		if err != nil {
			s.done = true
			if errors.Is(err, io.EOF) {
				// Upstream closed without the sentinel; treat the
				// answer so far as complete.
				return "", io.EOF
			}
			if s.logger != nil {
				s.logger.Warn("Completion stream aborted", zap.Error(err))
			}
			return domain.DiagnosticAnswer, nil
		}
	}
}

// parseFrame decodes one SSE line. It returns the content delta when the
// frame carries one; malformed frames are skipped silently. Seeing the
// sentinel sets s.done.
func (s *completionStream) parseFrame(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false
	}

	payload := strings.TrimPrefix(line, dataPrefix)
	if payload == doneSentinel {
		s.done = true
		return "", false
	}

	var frame streamFrame
	if err := json.Unmarshal([]byte(payload), &frame); err != nil {
		return "", false
	}
	if len(frame.Choices) == 0 || frame.Choices[0].Delta.Content == "" {
		return "", false
	}
	return frame.Choices[0].Delta.Content, true
}

// Close aborts the underlying request. Safe to call at any time and
// more than once.
func (s *completionStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.done = true
	s.cancel()
	if err := s.resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}
	return nil
}
