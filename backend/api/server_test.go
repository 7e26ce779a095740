package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/inkwell-ai/inkwell/backend/api"
	"github.com/inkwell-ai/inkwell/backend/chat"
	"github.com/inkwell-ai/inkwell/backend/composer"
	"github.com/inkwell-ai/inkwell/backend/embed"
	"github.com/inkwell-ai/inkwell/backend/event"
	"github.com/inkwell-ai/inkwell/backend/model"
	"github.com/inkwell-ai/inkwell/backend/tool"
)

// scriptedProvider streams its text and returns it as the assistant
// message.
type scriptedProvider struct {
	text string
	err  error
}

func (p *scriptedProvider) Invoke(ctx context.Context, modelName, systemPrompt string, messages []*model.Message, opts ...model.InvokeOption) (*model.Message, error) {
	if p.err != nil {
		return nil, p.err
	}

	options := model.DefaultInvokeOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.StreamCallback != nil {
		options.StreamCallback(ctx, p.text)
	}
	return model.NewAssistantMessage(
		[]model.ContentBlock{&model.TextBlock{Text: p.text}},
		model.Usage{InputTokens: 3, OutputTokens: 5},
	), nil
}

type identityEmbedder struct{}

func (identityEmbedder) Embed(ctx context.Context, chunks []string) ([][]float64, error) {
	out := make([][]float64, len(chunks))
	for i := range chunks {
		out[i] = []float64{1, 0}
	}
	return out, nil
}

func newTestServer(t *testing.T, provider model.Provider, withEmbed bool) *httptest.Server {
	t.Helper()

	bus := event.NewBus(nil)
	t.Cleanup(bus.Close)

	registry := model.NewRegistryWithBindings(map[model.ModelID]model.Binding{
		model.ModelOpenAI: {Provider: provider, ModelName: "fake-model"},
	})

	var embedService *embed.Service
	if withEmbed {
		store, err := embed.OpenStoreInMemory()
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { store.Close() })
		embedService = embed.NewService(identityEmbedder{}, store)
	}

	server := api.NewServer(":0", api.ServerOptions{
		Driver:   chat.NewDriver(registry, bus, tool.Deps{}, nil),
		Composer: composer.NewComposer(registry, nil),
		Embed:    embedService,
		Metrics:  prometheus.NewRegistry(),
	})

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestChatEndpoint_StreamsFrames(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &scriptedProvider{text: "Hello there"}, false)

	resp := postJSON(t, ts.URL+"/api/chat", map[string]any{
		"tool":     "none",
		"model":    "openai",
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Model"); got != "openai" {
		t.Errorf("X-Model = %q", got)
	}
	if got := resp.Header.Get("X-Tool"); got != "none" {
		t.Errorf("X-Tool = %q", got)
	}
	if got := resp.Header.Get("X-Request-Id"); got == "" {
		t.Error("X-Request-Id missing")
	}

	decoder := chat.NewDecoder(resp.Body)
	var text strings.Builder
	var sawFinish bool
	for {
		frame, err := decoder.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		switch {
		case frame.Text != nil:
			text.WriteString(*frame.Text)
		case frame.Finish != nil:
			sawFinish = true
			if frame.Finish.Usage.PromptTokens != 3 || frame.Finish.Usage.CompletionTokens != 5 {
				t.Errorf("usage = %+v", frame.Finish.Usage)
			}
		}
	}
	if text.String() != "Hello there" {
		t.Errorf("streamed text = %q", text.String())
	}
	if !sawFinish {
		t.Error("no finish frame")
	}
}

func TestChatEndpoint_InvalidModel(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &scriptedProvider{text: "x"}, false)

	resp := postJSON(t, ts.URL+"/api/chat", map[string]any{
		"tool":     "none",
		"model":    "gpt-5",
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if got := strings.TrimSpace(string(body)); got != "Invalid model" {
		t.Errorf("body = %q, want %q", got, "Invalid model")
	}
}

func TestChatEndpoint_MalformedBody(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &scriptedProvider{text: "x"}, false)

	resp, err := http.Post(ts.URL+"/api/chat", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload["error"] != "Invalid request body" {
		t.Errorf("error = %q", payload["error"])
	}
}

func TestChatEndpoint_ProviderFailureBeforeStream(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &scriptedProvider{
		err: &model.ProviderError{Provider: "openai", StatusCode: 503, Err: errors.New("overloaded")},
	}, false)

	resp := postJSON(t, ts.URL+"/api/chat", map[string]any{
		"tool":     "none",
		"model":    "openai",
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Error-Type"); got != "UPSTREAM_ERROR" {
		t.Errorf("X-Error-Type = %q", got)
	}
	if got := resp.Header.Get("X-Error-Id"); len(got) != 8 {
		t.Errorf("X-Error-Id = %q, want 8 characters", got)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload["errorType"] != "UPSTREAM_ERROR" {
		t.Errorf("payload = %v", payload)
	}
}

func TestComposerEndpoint(t *testing.T) {
	t.Parallel()

	generation := `{"message":"Done","updateEditorHTML":true,"editorHTML":"<p>v2</p>","nextPrompt":["a","b"]}`
	ts := newTestServer(t, &scriptedProvider{text: generation}, false)

	resp := postJSON(t, ts.URL+"/api/composer", map[string]any{
		"model":      "openai",
		"prompt":     "rewrite",
		"editorHTML": "<p>v1</p>",
	})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var result composer.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Message != "Done" || !result.UpdateEditorHTML || len(result.NextPrompt) != 2 {
		t.Errorf("result = %+v", result)
	}
}

func TestComposerEndpoint_InvalidModel(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &scriptedProvider{text: "{}"}, false)

	resp := postJSON(t, ts.URL+"/api/composer", map[string]any{
		"model":  "claude",
		"prompt": "rewrite",
	})

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload["error"] != "Invalid model" {
		t.Errorf("error = %q", payload["error"])
	}
}

func TestComposerEndpoint_SchemaFailure(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &scriptedProvider{text: "not json at all"}, false)

	resp := postJSON(t, ts.URL+"/api/composer", map[string]any{
		"model":  "openai",
		"prompt": "rewrite",
	})

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload["error"] != "Failed to generate content" {
		t.Errorf("error = %q", payload["error"])
	}
}

func TestEmbedEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &scriptedProvider{text: "x"}, true)

	resp := postJSON(t, ts.URL+"/api/embed", map[string]any{
		"text": "First fact. Second fact.",
	})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var payload struct {
		Embeddings []struct {
			Content   string    `json:"content"`
			Embedding []float64 `json:"embedding"`
		} `json:"embeddings"`
		Message string `json:"message"`
		Count   int    `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.Message != "success" || payload.Count != 2 {
		t.Errorf("payload = %+v", payload)
	}
	if len(payload.Embeddings) != 2 || payload.Embeddings[0].Content != "First fact" {
		t.Errorf("embeddings = %+v", payload.Embeddings)
	}
}

func TestLogClientErrorEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &scriptedProvider{text: "x"}, false)

	resp := postJSON(t, ts.URL+"/api/log-client-error", map[string]any{
		"errorType": "STREAM_PROCESSING_ERROR",
		"errorId":   "abcd1234",
		"message":   "stream died",
	})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var payload struct {
		Success bool   `json:"success"`
		Logged  bool   `json:"logged"`
		ErrorID string `json:"errorId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if !payload.Success || !payload.Logged || payload.ErrorID != "abcd1234" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestLogClientErrorEndpoint_MalformedBody(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &scriptedProvider{text: "x"}, false)

	resp, err := http.Post(ts.URL+"/api/log-client-error", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	var payload struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.Success || payload.Message != "Failed to log error" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestClientLogsEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &scriptedProvider{text: "x"}, false)

	resp := postJSON(t, ts.URL+"/api/logs/client", map[string]any{
		"level":    "warn",
		"category": "stream",
		"message":  "slow first chunk",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	missing := postJSON(t, ts.URL+"/api/logs/client", map[string]any{
		"message": "no level or category",
	})
	if missing.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", missing.StatusCode)
	}
	var payload map[string]string
	if err := json.NewDecoder(missing.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload["error"] != "Invalid log data" {
		t.Errorf("error = %q", payload["error"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &scriptedProvider{text: "x"}, false)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestMiddleware_PanicRecovery(t *testing.T) {
	t.Parallel()

	// The embed handler dereferences the unconfigured service; the
	// middleware must turn the panic into a JSON 500.
	ts := newTestServer(t, &scriptedProvider{text: "x"}, false)

	resp := postJSON(t, ts.URL+"/api/embed", map[string]any{"text": "Some text."})

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload["error"] != "Internal Server Error" {
		t.Errorf("error = %q", payload["error"])
	}
	if payload["requestId"] == "" {
		t.Error("requestId missing from recovery response")
	}
}

func TestMiddleware_PropagatesRequestID(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &scriptedProvider{text: "x"}, false)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/logs/client",
		strings.NewReader(`{"level":"info","category":"app"}`))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Request-Id", "caller-supplied-id")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Request-Id"); got != "caller-supplied-id" {
		t.Errorf("X-Request-Id = %q, want the caller id echoed", got)
	}
}
