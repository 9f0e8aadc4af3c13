package llm

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestProcess(t *testing.T) {
	var captured ProcessRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/llm/process" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatal(err)
		}
		json.NewEncoder(w).Encode(ProcessResponse{
			Response: "Ответ готов.",
			Tokens:   TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, time.Second)
	completion := c.Process("gemma3:27b", "составленный промпт", "вопрос", 0.4, 1500)

	if completion.Degraded {
		t.Fatalf("unexpected degradation: %s", completion.Raw)
	}
	if completion.Text != "Ответ готов." {
		t.Errorf("unexpected text: %q", completion.Text)
	}
	if completion.Usage.TotalTokens != 15 {
		t.Errorf("unexpected usage: %+v", completion.Usage)
	}

	if captured.ModelName != "gemma3:27b" || captured.Prompt != "составленный промпт" {
		t.Errorf("unexpected request payload: %+v", captured)
	}
	if captured.Context != "" {
		t.Errorf("context field must stay empty, the prompt already embeds it: %q", captured.Context)
	}
	if captured.Query != "вопрос" || captured.Parameters.SearchQuery != "вопрос" {
		t.Errorf("query must be carried twice: %+v", captured)
	}
	if captured.Parameters.Temperature != 0.4 || captured.Parameters.MaxTokens != 1500 {
		t.Errorf("unexpected sampling parameters: %+v", captured.Parameters)
	}
}

func TestProcessDefaults(t *testing.T) {
	var captured ProcessRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		json.NewEncoder(w).Encode(ProcessResponse{Response: "ok"})
	}))
	defer server.Close()

	c := NewClient(server.URL, time.Second)
	c.Process("m", "p", "q", 0, 0)

	if captured.Parameters.Temperature != 0.7 || captured.Parameters.MaxTokens != 2000 {
		t.Errorf("zero parameters must fall back to defaults: %+v", captured.Parameters)
	}
}

func TestProcessServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(server.URL, time.Second)
	completion := c.Process("m", "p", "q", 0, 0)

	if !completion.Degraded {
		t.Fatal("a non-200 response must degrade")
	}
	if completion.Text != GenerationErrorReply {
		t.Errorf("expected the generation apology, got %q", completion.Text)
	}
	if !strings.Contains(completion.Raw, "status 503") || !strings.Contains(completion.Raw, "model overloaded") {
		t.Errorf("raw must keep the failure body for diagnostics: %q", completion.Raw)
	}
}

func TestProcessTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	c := NewClient(server.URL, time.Second)
	completion := c.Process("m", "p", "q", 0, 0)

	if !completion.Degraded || completion.Text != ServiceDownReply {
		t.Errorf("a transport failure must yield the availability apology, got %+v", completion)
	}
}

func TestProcessEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ProcessResponse{Tokens: TokenUsage{TotalTokens: 3}})
	}))
	defer server.Close()

	c := NewClient(server.URL, time.Second)
	completion := c.Process("m", "p", "q", 0, 0)

	if completion.Degraded {
		t.Fatal("an empty response text is not a degradation")
	}
	if completion.Text != EmptyCompletionReply {
		t.Errorf("expected the empty-completion reply, got %q", completion.Text)
	}
	if completion.Usage.TotalTokens != 3 {
		t.Errorf("usage must survive an empty text: %+v", completion.Usage)
	}
}
