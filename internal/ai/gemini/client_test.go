package gemini

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/tzheng/jobpilot/internal/ai"
)

type fakeCallResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

type fakeModelCaller struct {
	mu    sync.Mutex
	calls int
	queue []fakeCallResponse
}

func (f *fakeModelCaller) enqueue(resp *genai.GenerateContentResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, fakeCallResponse{resp: resp, err: err})
}

func (f *fakeModelCaller) GenerateContent(_ context.Context, _ string, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.queue) == 0 {
		return nil, genai.APIError{Code: http.StatusInternalServerError, Message: "unexpected call"}
	}
	res := f.queue[0]
	f.queue = f.queue[1:]
	return res.resp, res.err
}

func (f *fakeModelCaller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func newTestGenerator(models modelCaller, maxRetries int) *Generator {
	return &Generator{
		models:     models,
		modelName:  "gemini-pro",
		maxRetries: maxRetries,
		baseDelay:  time.Nanosecond,
	}
}

func TestGeneratorRetriesOnTemporaryError(t *testing.T) {
	models := &fakeModelCaller{}
	models.enqueue(nil, genai.APIError{Code: http.StatusTooManyRequests, Status: "RESOURCE_EXHAUSTED"})
	models.enqueue(nil, genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"})
	models.enqueue(textResponse("retry ok"), nil)

	g := newTestGenerator(models, 3)

	output, err := g.GenerateContent(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if output != "retry ok" {
		t.Fatalf("unexpected output: %q", output)
	}
	if models.callCount() != 3 {
		t.Fatalf("expected 3 calls, got %d", models.callCount())
	}
}

func TestGeneratorStopsAfterRetriesExhausted(t *testing.T) {
	models := &fakeModelCaller{}
	for i := 0; i < 10; i++ {
		models.enqueue(nil, genai.APIError{Code: http.StatusTooManyRequests, Status: "RESOURCE_EXHAUSTED"})
	}

	g := newTestGenerator(models, 2)

	_, err := g.GenerateContent(context.Background(), "prompt")
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if kind := ai.KindOf(err); kind != ai.KindTransient {
		t.Fatalf("kind = %s, want transient", kind)
	}
	if models.callCount() != 3 {
		t.Fatalf("expected 3 calls (1 + 2 retries), got %d", models.callCount())
	}
}

func TestGeneratorDoesNotRetryClientErrors(t *testing.T) {
	models := &fakeModelCaller{}
	models.enqueue(nil, genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"})

	g := newTestGenerator(models, 3)

	_, err := g.GenerateContent(context.Background(), "prompt")
	if err == nil {
		t.Fatal("expected error")
	}
	if models.callCount() != 1 {
		t.Fatalf("expected single call, got %d", models.callCount())
	}
}

func TestGeneratorEmptyResponseFailsFast(t *testing.T) {
	models := &fakeModelCaller{}
	models.enqueue(&genai.GenerateContentResponse{}, nil)

	g := newTestGenerator(models, 3)

	_, err := g.GenerateContent(context.Background(), "prompt")
	if err == nil {
		t.Fatal("expected error for empty response")
	}
	if models.callCount() != 1 {
		t.Fatalf("expected single call, got %d", models.callCount())
	}
}

func TestGeneratorCancelledContextStopsBackoff(t *testing.T) {
	models := &fakeModelCaller{}
	models.enqueue(nil, genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := newTestGenerator(models, 3)
	g.baseDelay = time.Second

	_, err := g.GenerateContent(ctx, "prompt")
	if err == nil {
		t.Fatal("expected error")
	}
	if models.callCount() != 1 {
		t.Fatalf("expected single call, got %d", models.callCount())
	}
}

func TestGeneratorEmptyPrompt(t *testing.T) {
	g := newTestGenerator(&fakeModelCaller{}, 0)
	if _, err := g.GenerateContent(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}
