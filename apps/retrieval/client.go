package retrieval

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

// Client talks to the external retrieval service
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// SearchRequest represents the request to the retrieval service
type SearchRequest struct {
	ApplicationID   string  `json:"application_id"`
	Query           string  `json:"query"`
	Limit           int     `json:"limit"`
	UseReranker     bool    `json:"use_reranker"`
	RerankLimit     *int    `json:"rerank_limit"`
	UseSmartSearch  bool    `json:"use_smart_search"`
	VectorWeight    float64 `json:"vector_weight"`
	TextWeight      float64 `json:"text_weight"`
	HybridThreshold int     `json:"hybrid_threshold"`
}

// Metadata carries the provenance of a retrieved snippet
type Metadata struct {
	DocumentID string  `json:"document_id,omitempty"`
	PageNumber int     `json:"page_number,omitempty"`
	Section    string  `json:"section,omitempty"`
	Score      float64 `json:"score,omitempty"`
}

// Record is one ranked context snippet returned by the retrieval service
type Record struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// SearchResponse represents the response from the retrieval service
type SearchResponse struct {
	Results []Record `json:"results"`
}

// Result is the outcome of a search call. Failures are soft: a degraded
// result carries no records and a reason, never an error. An empty record
// list with Degraded=false means the search genuinely found nothing.
type Result struct {
	Records  []Record
	Degraded bool
	Reason   string
}

// Count returns the number of retrieved records
func (r Result) Count() int {
	return len(r.Records)
}

var (
	client     *Client
	clientLock sync.RWMutex
)

// InitClient initializes the retrieval service client
// It first tries to read from database settings, then falls back to config file
func InitClient() {
	clientLock.Lock()
	defer clientLock.Unlock()

	// Try to get settings from database first
	baseURL := models.GetSettingValue("retrieval.url", "")
	if baseURL == "" {
		// Fall back to config file settings
		baseURL = settings.Get("RETRIEVAL.URL", "http://localhost:8002").String()
	}
	timeout, err := settings.Get("RETRIEVAL.TIMEOUT", "10s").Duration()
	if err != nil || timeout <= 0 {
		timeout = 10 * time.Second
	}

	client = &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	log.Info("Retrieval client initialized with endpoint: %s, timeout: %s", baseURL, timeout)
}

// GetClient returns the retrieval client instance
func GetClient() *Client {
	clientLock.RLock()
	defer clientLock.RUnlock()
	return client
}

// NewClient creates a retrieval client against a specific endpoint
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Search issues one bounded-timeout search call against the retrieval
// service. Any transport error, non-200 status or malformed body degrades
// to an empty result with a reason, so callers never have to branch on an
// error path.
func (c *Client) Search(assistantID uint, query string, limit int, useReranker bool) Result {
	if limit <= 0 {
		limit = 10
	}

	req := SearchRequest{
		ApplicationID:   fmt.Sprintf("%d", assistantID),
		Query:           query,
		Limit:           limit,
		UseReranker:     useReranker,
		UseSmartSearch:  true,
		VectorWeight:    0.5,
		TextWeight:      0.5,
		HybridThreshold: 10,
	}
	if useReranker {
		rerankLimit := 20
		req.RerankLimit = &rerankLimit
	}

	body, err := json.Marshal(req)
	if err != nil {
		return degraded("failed to marshal search request: %v", err)
	}

	httpReq, err := http.NewRequest("POST", c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return degraded("failed to create search request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return degraded("search request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return degraded("failed to read search response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return degraded("search returned status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var result SearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return degraded("failed to unmarshal search response: %v", err)
	}

	log.Debug("Retrieval returned %d results for assistant %d", len(result.Results), assistantID)
	return Result{Records: result.Results}
}

func degraded(format string, args ...interface{}) Result {
	reason := fmt.Sprintf(format, args...)
	log.Warning("Retrieval degraded: %s", reason)
	return Result{Degraded: true, Reason: reason}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
