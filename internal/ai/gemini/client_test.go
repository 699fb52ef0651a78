package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/overlab-kevin/clinical-trial-matcher/internal/ai"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

type fakeModels struct {
	mu    sync.Mutex
	calls []modelCall
	queue []fakeResponse
}

type modelCall struct {
	model    string
	contents []*genai.Content
}

type fakeResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

func (f *fakeModels) enqueue(resp *genai.GenerateContentResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, fakeResponse{resp: resp, err: err})
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, modelCall{model: model, contents: contents})

	if len(f.queue) == 0 {
		return nil, errors.New("unexpected call")
	}
	res := f.queue[0]
	f.queue = f.queue[1:]
	return res.resp, res.err
}

func textResponse(texts ...string) *genai.GenerateContentResponse {
	parts := make([]*genai.Part, 0, len(texts))
	for _, text := range texts {
		parts = append(parts, &genai.Part{Text: text})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: parts},
		}},
	}
}

func newTestGenerator(models modelCaller, retry ai.RetryPolicy) *Generator {
	return &Generator{
		models: models,
		model:  "gemini-pro",
		retry:  retry.Normalized(),
		logger: zap.NewNop(),
	}
}

func TestGeneratorRetriesOnRateLimit(t *testing.T) {
	originalSleep := sleep
	var slept []time.Duration
	sleep = func(d time.Duration) { slept = append(slept, d) }
	defer func() { sleep = originalSleep }()

	models := &fakeModels{}
	rateErr := genai.APIError{Code: http.StatusTooManyRequests, Status: "RESOURCE_EXHAUSTED"}
	models.enqueue(nil, rateErr)
	models.enqueue(nil, rateErr)
	models.enqueue(textResponse("retry ok"), nil)

	g := newTestGenerator(models, ai.RetryPolicy{MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: 60 * time.Second, Multiplier: 2})

	output, err := g.GenerateContent(context.Background(), "evaluate this")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if output != "retry ok" {
		t.Fatalf("unexpected output: %q", output)
	}

	if len(models.calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(models.calls))
	}

	expected := []time.Duration{time.Second, 2 * time.Second}
	if len(slept) != len(expected) {
		t.Fatalf("expected %d sleeps, got %d", len(expected), len(slept))
	}
	for i, d := range expected {
		if slept[i] != d {
			t.Fatalf("expected sleep %d to be %v, got %v", i, d, slept[i])
		}
	}
}

func TestGeneratorRetriesOnServiceError(t *testing.T) {
	originalSleep := sleep
	sleep = func(time.Duration) {}
	defer func() { sleep = originalSleep }()

	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"})
	models.enqueue(textResponse("recovered"), nil)

	g := newTestGenerator(models, ai.DefaultRetryPolicy)

	output, err := g.GenerateContent(context.Background(), "evaluate this")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if output != "recovered" {
		t.Fatalf("unexpected output: %q", output)
	}

	if len(models.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.calls))
	}

	call := models.calls[0]
	if call.model != "gemini-pro" {
		t.Fatalf("unexpected model: %q", call.model)
	}
	if len(call.contents) != 1 || len(call.contents[0].Parts) != 1 {
		t.Fatalf("unexpected contents shape: %+v", call.contents)
	}
	if got := call.contents[0].Parts[0].Text; got != "evaluate this" {
		t.Fatalf("unexpected prompt: %q", got)
	}
}

func TestGeneratorRetriesOnTransportError(t *testing.T) {
	originalSleep := sleep
	sleep = func(time.Duration) {}
	defer func() { sleep = originalSleep }()

	models := &fakeModels{}
	models.enqueue(nil, errors.New("connection reset"))
	models.enqueue(textResponse("recovered"), nil)

	g := newTestGenerator(models, ai.DefaultRetryPolicy)

	output, err := g.GenerateContent(context.Background(), "evaluate this")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if output != "recovered" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestGeneratorFailsFastOnRejectedRequest(t *testing.T) {
	originalSleep := sleep
	var sleeps int
	sleep = func(time.Duration) { sleeps++ }
	defer func() { sleep = originalSleep }()

	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"})

	g := newTestGenerator(models, ai.DefaultRetryPolicy)

	_, err := g.GenerateContent(context.Background(), "evaluate this")
	if err == nil {
		t.Fatal("expected error for rejected request")
	}

	if len(models.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(models.calls))
	}

	if sleeps != 0 {
		t.Fatalf("expected no backoff, got %d sleeps", sleeps)
	}
}

func TestGeneratorStopsAfterRetriesExhausted(t *testing.T) {
	originalSleep := sleep
	sleep = func(time.Duration) {}
	defer func() { sleep = originalSleep }()

	models := &fakeModels{}
	tempErr := genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}
	models.enqueue(nil, tempErr)
	models.enqueue(nil, tempErr)

	g := newTestGenerator(models, ai.RetryPolicy{MaxAttempts: 2, InitialDelay: time.Second, Multiplier: 2})

	_, err := g.GenerateContent(context.Background(), "evaluate this")
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}

	if !strings.Contains(err.Error(), "2 attempts") {
		t.Fatalf("expected attempt count in error, got %q", err)
	}

	if len(models.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.calls))
	}
}

func TestGeneratorReportsEmptyResponse(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(&genai.GenerateContentResponse{}, nil)

	g := newTestGenerator(models, ai.DefaultRetryPolicy)

	_, err := g.GenerateContent(context.Background(), "evaluate this")
	if !errors.Is(err, ai.ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestGeneratorJoinsResponseParts(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(textResponse("first", " ", "second"), nil)

	g := newTestGenerator(models, ai.DefaultRetryPolicy)

	output, err := g.GenerateContent(context.Background(), "evaluate this")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if output != "first\nsecond" {
		t.Fatalf("unexpected output: %q", output)
	}
}
