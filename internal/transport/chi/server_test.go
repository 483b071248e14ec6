package chi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Ding0127/qa-chatbot/internal/domain"
	healthuc "github.com/Ding0127/qa-chatbot/internal/usecase/health"
	usageuc "github.com/Ding0127/qa-chatbot/internal/usecase/usage"
)

type mockAsk struct {
	answerFn func(ctx context.Context, userID string, ageGroup domain.AgeGroup, query string) domain.AnswerStream
}

func (m *mockAsk) Answer(
	ctx context.Context, userID string, ageGroup domain.AgeGroup, query string,
) domain.AnswerStream {
	if m.answerFn != nil {
		return m.answerFn(ctx, userID, ageGroup, query)
	}
	return domain.NewTextStream("The sky", "The sky is blue!")
}

type mockClassify struct{}

func (mockClassify) Classify(_ context.Context, _ string) string { return "science" }

type mockHistory struct {
	historyFn func(ctx context.Context, userID string) ([]domain.Turn, error)
}

func (m *mockHistory) History(ctx context.Context, userID string) ([]domain.Turn, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, userID)
	}
	return nil, nil
}

type okPinger struct{ err error }

func (p okPinger) Ping(context.Context) error { return p.err }

func testRoster() map[string]domain.AgeGroup {
	return map[string]domain.AgeGroup{
		"kid123": domain.Kindergarten,
		"p4_789": domain.PrimaryUpper,
	}
}

func newTestRouter(ask *mockAsk, history *mockHistory, dbErr error) chi.Router {
	s := NewServer(
		testRoster(),
		ask,
		mockClassify{},
		history,
		healthuc.New(okPinger{err: dbErr}, nil),
		usageuc.New(nil),
		zap.NewNop(),
	)
	r := chi.NewRouter()
	s.Register(r)
	return r
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLogin_Success(t *testing.T) {
	r := newTestRouter(&mockAsk{}, &mockHistory{}, nil)

	w := doJSON(t, r, http.MethodPost, "/login", map[string]string{"user_id": "kid123"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp loginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AgeGroup != "Kindergarten" {
		t.Errorf("age_group = %q", resp.AgeGroup)
	}
}

func TestLogin_UnknownUser(t *testing.T) {
	r := newTestRouter(&mockAsk{}, &mockHistory{}, nil)

	w := doJSON(t, r, http.MethodPost, "/login", map[string]string{"user_id": "stranger"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestLogin_MissingUserID(t *testing.T) {
	r := newTestRouter(&mockAsk{}, &mockHistory{}, nil)

	w := doJSON(t, r, http.MethodPost, "/login", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

// sseAnswers extracts the cumulative answer values from an SSE body.
func sseAnswers(t *testing.T, body string) (values []string, done bool) {
	t.Helper()
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			done = true
			continue
		}
		var frame struct {
			Answer string `json:"answer"`
		}
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			t.Fatalf("bad SSE frame %q: %v", payload, err)
		}
		values = append(values, frame.Answer)
	}
	return values, done
}

func TestAsk_StreamsCumulativeAnswer(t *testing.T) {
	var gotUser string
	var gotGroup domain.AgeGroup
	ask := &mockAsk{
		answerFn: func(_ context.Context, userID string, group domain.AgeGroup, _ string) domain.AnswerStream {
			gotUser = userID
			gotGroup = group
			return domain.NewTextStream("The sky", "The sky is blue!")
		},
	}
	r := newTestRouter(ask, &mockHistory{}, nil)

	w := doJSON(t, r, http.MethodPost, "/ask", map[string]string{
		"user_id": "kid123", "question": "What is the sky?",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	if gotUser != "kid123" || gotGroup != domain.Kindergarten {
		t.Errorf("pipeline got user=%q group=%q", gotUser, gotGroup)
	}

	values, done := sseAnswers(t, w.Body.String())
	if len(values) != 2 || values[0] != "The sky" || values[1] != "The sky is blue!" {
		t.Errorf("values = %v", values)
	}
	if !done {
		t.Error("missing [DONE] terminator")
	}
}

func TestAsk_SelfDeclaredAgeGroup(t *testing.T) {
	var gotGroup domain.AgeGroup
	ask := &mockAsk{
		answerFn: func(_ context.Context, _ string, group domain.AgeGroup, _ string) domain.AnswerStream {
			gotGroup = group
			return domain.NewTextStream("ok")
		},
	}
	r := newTestRouter(ask, &mockHistory{}, nil)

	w := doJSON(t, r, http.MethodPost, "/ask", map[string]string{
		"age_group": "Primary 1-3", "question": "q",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if gotGroup != domain.PrimaryLower {
		t.Errorf("group = %q", gotGroup)
	}
}

func TestAsk_UnknownUser(t *testing.T) {
	r := newTestRouter(&mockAsk{}, &mockHistory{}, nil)

	w := doJSON(t, r, http.MethodPost, "/ask", map[string]string{
		"user_id": "stranger", "question": "q",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestAsk_BadAgeGroup(t *testing.T) {
	r := newTestRouter(&mockAsk{}, &mockHistory{}, nil)

	w := doJSON(t, r, http.MethodPost, "/ask", map[string]string{
		"age_group": "Adult", "question": "q",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestAsk_MissingQuestion(t *testing.T) {
	r := newTestRouter(&mockAsk{}, &mockHistory{}, nil)

	w := doJSON(t, r, http.MethodPost, "/ask", map[string]string{"user_id": "kid123"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestClassify(t *testing.T) {
	r := newTestRouter(&mockAsk{}, &mockHistory{}, nil)

	w := doJSON(t, r, http.MethodPost, "/classify", map[string]string{"question": "Why is the sky blue?"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp classifyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Topic != "science" {
		t.Errorf("topic = %q", resp.Topic)
	}
}

func TestLogs(t *testing.T) {
	mh := &mockHistory{
		historyFn: func(_ context.Context, userID string) ([]domain.Turn, error) {
			if userID != "p4_789" {
				t.Errorf("userID = %q", userID)
			}
			return []domain.Turn{{Question: "q", Answer: "a"}}, nil
		},
	}
	r := newTestRouter(&mockAsk{}, mh, nil)

	w := doJSON(t, r, http.MethodGet, "/logs/p4_789", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp logsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Turns) != 1 || resp.Turns[0].Question != "q" {
		t.Errorf("turns = %+v", resp.Turns)
	}
}

func TestLogs_UnknownUser(t *testing.T) {
	r := newTestRouter(&mockAsk{}, &mockHistory{}, nil)

	w := doJSON(t, r, http.MethodGet, "/logs/stranger", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestLogs_ReadError(t *testing.T) {
	mh := &mockHistory{
		historyFn: func(context.Context, string) ([]domain.Turn, error) {
			return nil, errors.New("LRANGE: connection refused")
		},
	}
	r := newTestRouter(&mockAsk{}, mh, nil)

	w := doJSON(t, r, http.MethodGet, "/logs/kid123", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(&mockAsk{}, &mockHistory{}, nil)

	w := doJSON(t, r, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestHealthz_Degraded(t *testing.T) {
	r := newTestRouter(&mockAsk{}, &mockHistory{}, errors.New("conn refused"))

	w := doJSON(t, r, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestUsage(t *testing.T) {
	r := newTestRouter(&mockAsk{}, &mockHistory{}, nil)

	w := doJSON(t, r, http.MethodGet, "/usage?period=day", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var report usageuc.Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Period != usageuc.PeriodDay {
		t.Errorf("period = %q", report.Period)
	}
}
