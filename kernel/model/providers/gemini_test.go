package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/halcyonworks/tempo/kernel/model"
)

func TestNewGemini_RequiresModel(t *testing.T) {
	if _, err := NewGemini(Config{}); err == nil {
		t.Fatalf("expected error for missing model name")
	}
}

func collect(t *testing.T, llm model.LLM, req *model.Request) []*model.Response {
	t.Helper()
	var out []*model.Response
	for res, err := range llm.Generate(context.Background(), req) {
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, res)
	}
	return out
}

func TestGemini_Generate(t *testing.T) {
	var captured geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/test-model:generateContent" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "secret" {
			t.Errorf("key = %q", r.URL.Query().Get("key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, `{
			"candidates": [{"content": {"role": "model", "parts": [
				{"text": "thinking it over", "thought": true},
				{"text": "Here is the plan."},
				{"functionCall": {"name": "add_task", "args": {"title": "run"}}, "thoughtSignature": "sig-1"}
			]}}],
			"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 7, "totalTokenCount": 19}
		}`)
	}))
	defer server.Close()

	llm, err := NewGemini(Config{Model: "test-model", BaseURL: server.URL, APIKey: "secret"})
	if err != nil {
		t.Fatal(err)
	}
	if llm.Name() != "test-model" {
		t.Fatalf("name = %q", llm.Name())
	}

	responses := collect(t, llm, &model.Request{
		Messages: []model.Message{
			{Role: model.RoleSystem, Text: "be brief"},
			{Role: model.RoleUser, Text: "plan my day"},
		},
		Tools: []model.ToolDefinition{{Name: "add_task", Description: "adds a task"}},
	})
	if len(responses) != 1 {
		t.Fatalf("responses = %d, want 1", len(responses))
	}
	res := responses[0]
	if !res.TurnComplete || res.Partial {
		t.Fatalf("flags = %+v", res)
	}
	if res.Message.Text != "Here is the plan." {
		t.Fatalf("text = %q", res.Message.Text)
	}
	if res.Message.Thought != "thinking it over" {
		t.Fatalf("thought = %q", res.Message.Thought)
	}
	if len(res.Message.ToolCalls) != 1 {
		t.Fatalf("tool calls = %+v", res.Message.ToolCalls)
	}
	call := res.Message.ToolCalls[0]
	if call.Name != "add_task" || call.Args["title"] != "run" || call.ThoughtSignature != "sig-1" {
		t.Fatalf("call = %+v", call)
	}
	want := model.Usage{PromptTokens: 12, CompletionTokens: 7, TotalTokens: 19}
	if res.Usage != want {
		t.Fatalf("usage = %+v", res.Usage)
	}

	if captured.SystemInstruction == nil || captured.SystemInstruction.Parts[0].Text != "be brief" {
		t.Fatalf("system instruction = %+v", captured.SystemInstruction)
	}
	if len(captured.Contents) != 1 || captured.Contents[0].Role != "user" {
		t.Fatalf("contents = %+v", captured.Contents)
	}
	if len(captured.Tools) != 1 || captured.Tools[0].FunctionDeclarations[0].Name != "add_task" {
		t.Fatalf("tools = %+v", captured.Tools)
	}
}

func TestGemini_GenerateStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/test-model:streamGenerateContent" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("alt") != "sse" {
			t.Errorf("alt = %q", r.URL.Query().Get("alt"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"candidates": [{"content": {"role": "model", "parts": [{"text": "Hel"}]}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"candidates": [{"content": {"role": "model", "parts": [{"text": "lo"}]}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"candidates": [{"content": {"role": "model", "parts": [{"functionCall": {"name": "save_memory", "args": {"content": "x"}}, "thoughtSignature": "s"}]}}], "usageMetadata": {"promptTokenCount": 5, "candidatesTokenCount": 2, "totalTokenCount": 7}}`+"\n\n")
	}))
	defer server.Close()

	llm, err := NewGemini(Config{Model: "test-model", BaseURL: server.URL, APIKey: "secret"})
	if err != nil {
		t.Fatal(err)
	}

	responses := collect(t, llm, &model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Text: "hi"}},
		Stream:   true,
	})
	if len(responses) != 3 {
		t.Fatalf("responses = %d, want 2 partials + final", len(responses))
	}
	if !responses[0].Partial || responses[0].Message.Text != "Hel" {
		t.Fatalf("first chunk = %+v", responses[0])
	}
	if !responses[1].Partial || responses[1].Message.Text != "lo" {
		t.Fatalf("second chunk = %+v", responses[1])
	}
	final := responses[2]
	if final.Partial || !final.TurnComplete {
		t.Fatalf("final flags = %+v", final)
	}
	if final.Message.Text != "Hello" {
		t.Fatalf("final text = %q", final.Message.Text)
	}
	if len(final.Message.ToolCalls) != 1 || final.Message.ToolCalls[0].Name != "save_memory" {
		t.Fatalf("final calls = %+v", final.Message.ToolCalls)
	}
	if final.Usage.TotalTokens != 7 {
		t.Fatalf("usage = %+v", final.Usage)
	}
}

func TestGemini_StreamConsumerStopsEarly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"candidates": [{"content": {"role": "model", "parts": [{"text": "first"}]}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"candidates": [{"content": {"role": "model", "parts": [{"text": "second"}]}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"candidates": [{"content": {"role": "model", "parts": [{"text": "third"}]}}]}`+"\n\n")
	}))
	defer server.Close()

	llm, err := NewGemini(Config{Model: "test-model", BaseURL: server.URL, APIKey: "secret"})
	if err != nil {
		t.Fatal(err)
	}

	// Leaving the range after the first chunk must end the sequence cleanly;
	// the superseded stream gets no final accumulated response.
	seen := 0
	for res, err := range llm.Generate(context.Background(), &model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Text: "hi"}},
		Stream:   true,
	}) {
		if err != nil {
			t.Fatal(err)
		}
		if res.Message.Text != "first" {
			t.Fatalf("chunk = %+v", res)
		}
		seen++
		break
	}
	if seen != 1 {
		t.Fatalf("chunks seen = %d, want 1", seen)
	}
}

func TestGemini_StreamContextCancelledMidway(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"candidates": [{"content": {"role": "model", "parts": [{"text": "partial"}]}}]}`+"\n\n")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	defer server.Close()
	defer close(release)

	llm, err := NewGemini(Config{Model: "test-model", BaseURL: server.URL, APIKey: "secret"})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var got error
	for res, err := range llm.Generate(ctx, &model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Text: "hi"}},
		Stream:   true,
	}) {
		if err != nil {
			got = err
			break
		}
		if res.Partial {
			cancel()
		}
	}
	if got == nil {
		t.Fatalf("expected an error after cancelling the stream context")
	}
	if !errors.Is(got, context.Canceled) && !strings.Contains(got.Error(), "context canceled") {
		t.Fatalf("err = %v, want context cancellation", got)
	}
}

func TestGemini_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, "rate limited")
	}))
	defer server.Close()

	llm, err := NewGemini(Config{Model: "test-model", BaseURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}

	var got error
	for _, err := range llm.Generate(context.Background(), &model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Text: "hi"}},
	}) {
		got = err
	}
	var apiErr *APIError
	if !errors.As(got, &apiErr) {
		t.Fatalf("err = %v, want APIError", got)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || apiErr.Body != "rate limited" {
		t.Fatalf("apiErr = %+v", apiErr)
	}
	if !apiErr.Transient() {
		t.Fatalf("429 must classify as transient")
	}
}

func TestToGeminiContents(t *testing.T) {
	system, contents := toGeminiContents([]model.Message{
		{Role: model.RoleSystem, Text: "base"},
		{Role: model.RoleSystem, Text: "mode"},
		{Role: model.RoleUser, Text: "look at this", Media: []model.Blob{{MIMEType: "image/png", Data: []byte("img")}}},
		{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{
			{Name: "signed", Args: map[string]any{"a": 1}, ThoughtSignature: "sig"},
			{Name: "unsigned", Args: map[string]any{"b": 2}},
		}},
		{Role: model.RoleTool, ToolResponses: []model.ToolResponse{
			{Name: "signed", Result: map[string]any{"result": "ok"}},
			{Name: "other", Result: map[string]any{"error": "no"}},
		}},
	})

	if system != "base\n\nmode" {
		t.Fatalf("system = %q", system)
	}
	if len(contents) != 3 {
		t.Fatalf("contents = %d, want 3", len(contents))
	}

	user := contents[0]
	if user.Role != "user" || len(user.Parts) != 2 {
		t.Fatalf("user content = %+v", user)
	}
	if user.Parts[0].InlineData == nil || user.Parts[0].InlineData.MIMEType != "image/png" {
		t.Fatalf("media part must come first: %+v", user.Parts[0])
	}
	if user.Parts[1].Text != "look at this" {
		t.Fatalf("text part = %+v", user.Parts[1])
	}

	assistant := contents[1]
	if assistant.Role != "model" || len(assistant.Parts) != 1 {
		t.Fatalf("unsigned call must be dropped: %+v", assistant)
	}
	if assistant.Parts[0].FunctionCall.Name != "signed" || assistant.Parts[0].ThoughtSignature != "sig" {
		t.Fatalf("call part = %+v", assistant.Parts[0])
	}

	toolTurn := contents[2]
	if toolTurn.Role != "user" || len(toolTurn.Parts) != 2 {
		t.Fatalf("tool results must batch into one content: %+v", toolTurn)
	}
	if toolTurn.Parts[0].FunctionResponse.Name != "signed" || toolTurn.Parts[1].FunctionResponse.Name != "other" {
		t.Fatalf("function responses = %+v", toolTurn.Parts)
	}
}

func TestDedupToolCalls(t *testing.T) {
	calls := []model.ToolCall{
		{Name: "add_task", Args: map[string]any{"title": "run"}},
		{Name: "add_task", Args: map[string]any{"title": "run"}, ThoughtSignature: "sig"},
		{Name: "add_task", Args: map[string]any{"title": "read"}},
	}
	out := dedupToolCalls(calls)
	if len(out) != 2 {
		t.Fatalf("deduped = %+v", out)
	}
	if out[0].ThoughtSignature != "sig" {
		t.Fatalf("signature must merge into the first occurrence: %+v", out[0])
	}
	if out[1].Args["title"] != "read" {
		t.Fatalf("distinct args must survive: %+v", out[1])
	}
	if dedupToolCalls(nil) != nil {
		t.Fatalf("nil input must stay nil")
	}
}
