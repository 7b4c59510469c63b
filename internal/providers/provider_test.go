package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haasonsaas/orchestrator-core/internal/core"
	"github.com/haasonsaas/orchestrator-core/internal/stream"
)

func TestRegistry_ForModel(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewOpenAIAdapter(OpenAIConfig{Models: []string{"gpt-4o"}}))
	reg.Register(NewAnthropicAdapter(AnthropicConfig{Models: []string{"claude-3-5-sonnet-latest"}}))

	if got := reg.ForModel("gpt-4o"); len(got) != 1 || got[0].ID() != "openai" {
		t.Fatalf("ForModel(gpt-4o) = %v", got)
	}
	if got := reg.ForModel("unknown-model"); len(got) != 0 {
		t.Fatalf("ForModel(unknown) = %v, want empty", got)
	}
	if ids := reg.IDs(); len(ids) != 2 {
		t.Fatalf("IDs() = %v, want 2 entries", ids)
	}
}

func TestOpenAIAdapter_Invoke_SendsExpectedRequest(t *testing.T) {
	var gotAuth string
	var gotBody openAIChatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotBody); err != nil {
			t.Errorf("unmarshal request body: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\ndata: [DONE]\n\n"))
	}))
	defer srv.Close()

	adapter := NewOpenAIAdapter(OpenAIConfig{BaseURL: srv.URL, Models: []string{"gpt-4o"}})
	req := core.Request{
		Model: "gpt-4o",
		Messages: []core.ChatMessage{
			{Role: core.RoleUser, Content: "hi"},
		},
	}

	body, dialect, err := adapter.Invoke(context.Background(), req, Secret{Value: "sk-test"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	defer body.Close()

	if dialect != stream.OpenAI {
		t.Errorf("dialect = %q, want openai", dialect)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody.Model != "gpt-4o" || !gotBody.Stream {
		t.Errorf("request body = %+v", gotBody)
	}
	if len(gotBody.Messages) != 1 || gotBody.Messages[0].Content != "hi" {
		t.Errorf("messages = %+v", gotBody.Messages)
	}
}

func TestOpenAIAdapter_Invoke_UnsupportedModel(t *testing.T) {
	adapter := NewOpenAIAdapter(OpenAIConfig{Models: []string{"gpt-4o"}})
	_, _, err := adapter.Invoke(context.Background(), core.Request{Model: "unknown"}, Secret{Value: "x"})
	if err == nil {
		t.Fatal("expected error for unsupported model")
	}
	var coreErr *core.Error
	if e, ok := err.(*core.Error); ok {
		coreErr = e
	}
	if coreErr == nil || coreErr.Kind != core.KindUnknownModel {
		t.Errorf("err = %v, want KindUnknownModel", err)
	}
}
