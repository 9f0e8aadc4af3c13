package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/getevo/evo/v2/lib/log"
	"github.com/getevo/evo/v2/lib/settings"

	"github.com/iesreza/assistant-backend/apps/models"
)

// Fixed user-facing replies for degraded completions. The UI shows these
// verbatim so they stay in the product language.
const (
	GenerationErrorReply = "Извините, произошла ошибка при генерации ответа. Попробуйте еще раз."
	ServiceDownReply     = "Извините, сервис временно недоступен. Попробуйте позже."
	EmptyCompletionReply = "Не удалось сгенерировать ответ"
)

// Client talks to the external inference service
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Parameters are the sampling parameters forwarded to the model
type Parameters struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	SearchQuery string  `json:"search_query"`
}

// ProcessRequest represents the request to the inference service
type ProcessRequest struct {
	ModelName  string     `json:"model_name"`
	Prompt     string     `json:"prompt"`
	Context    string     `json:"context"`
	Parameters Parameters `json:"parameters"`
	Query      string     `json:"query"`
}

// TokenUsage is the token accounting of one completion. The service may
// populate it partially, absent fields stay zero.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// ProcessResponse represents the response from the inference service
type ProcessResponse struct {
	Response string     `json:"response"`
	Tokens   TokenUsage `json:"tokens"`
}

// Completion is the outcome of one inference call. Failures are soft: a
// degraded completion carries a fixed apology as Text and keeps the raw
// failure body in Raw for diagnostics.
type Completion struct {
	Text     string
	Usage    TokenUsage
	Degraded bool
	Raw      string
}

var (
	client     *Client
	clientLock sync.RWMutex
)

// InitClient initializes the inference service client
// It first tries to read from database settings, then falls back to config file
func InitClient() {
	clientLock.Lock()
	defer clientLock.Unlock()

	// Try to get settings from database first
	baseURL := models.GetSettingValue("llm.url", "")
	if baseURL == "" {
		// Fall back to config file settings
		baseURL = settings.Get("LLM.URL", "http://localhost:8002").String()
	}
	timeout, err := settings.Get("LLM.TIMEOUT", "60s").Duration()
	if err != nil || timeout <= 0 {
		timeout = 60 * time.Second
	}

	client = &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	log.Info("LLM client initialized with endpoint: %s, timeout: %s", baseURL, timeout)
}

// GetClient returns the inference client instance
func GetClient() *Client {
	clientLock.RLock()
	defer clientLock.RUnlock()
	return client
}

// NewClient creates an inference client against a specific endpoint
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Process sends the composed prompt to the inference service. The call
// never fails hard: non-200 and transport errors resolve to a degraded
// completion whose Text is a fixed apology.
func (c *Client) Process(model string, prompt string, query string, temperature float64, maxTokens int) Completion {
	if temperature == 0 {
		temperature = 0.7
	}
	if maxTokens == 0 {
		maxTokens = 2000
	}

	req := ProcessRequest{
		ModelName: model,
		Prompt:    prompt,
		Context:   "",
		Parameters: Parameters{
			Temperature: temperature,
			MaxTokens:   maxTokens,
			SearchQuery: query,
		},
		Query: query,
	}

	body, err := json.Marshal(req)
	if err != nil {
		log.Error("Failed to marshal LLM request: %v", err)
		return Completion{Text: ServiceDownReply, Degraded: true, Raw: err.Error()}
	}

	httpReq, err := http.NewRequest("POST", c.baseURL+"/llm/process", bytes.NewReader(body))
	if err != nil {
		log.Error("Failed to create LLM request: %v", err)
		return Completion{Text: ServiceDownReply, Degraded: true, Raw: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Error("LLM request failed: %v", err)
		return Completion{Text: ServiceDownReply, Degraded: true, Raw: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("Failed to read LLM response: %v", err)
		return Completion{Text: ServiceDownReply, Degraded: true, Raw: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		log.Warning("LLM returned status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
		return Completion{
			Text:     GenerationErrorReply,
			Degraded: true,
			Raw:      fmt.Sprintf("status %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var result ProcessResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		log.Warning("Failed to unmarshal LLM response: %v", err)
		return Completion{
			Text:     GenerationErrorReply,
			Degraded: true,
			Raw:      string(respBody),
		}
	}

	text := result.Response
	if text == "" {
		text = EmptyCompletionReply
	}

	return Completion{
		Text:  text,
		Usage: result.Tokens,
		Raw:   string(respBody),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
