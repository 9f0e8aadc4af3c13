package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/iesreza/assistant-backend/apps/llm"
	"github.com/iesreza/assistant-backend/apps/models"
	"github.com/iesreza/assistant-backend/apps/retrieval"
	"gorm.io/datatypes"
)

type fakeStore struct {
	conversations map[uint]*models.Conversation
	messages      map[uint]*models.Message
	templates     map[uint]*models.PromptTemplate
	history       []models.Message
	nextMessageID uint

	created         []*models.Message
	statsUpdated    []uint
	assistantBumped []uint
	templateBumped  []uint
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: map[uint]*models.Conversation{},
		messages:      map[uint]*models.Message{},
		templates:     map[uint]*models.PromptTemplate{},
		nextMessageID: 100,
	}
}

func (s *fakeStore) Conversation(id uint) (*models.Conversation, error) {
	c, ok := s.conversations[id]
	if !ok {
		return nil, errNotFound
	}
	return c, nil
}

func (s *fakeStore) Message(id uint) (*models.Message, error) {
	m, ok := s.messages[id]
	if !ok {
		return nil, errNotFound
	}
	return m, nil
}

func (s *fakeStore) Template(id uint) (*models.PromptTemplate, error) {
	t, ok := s.templates[id]
	if !ok {
		return nil, errNotFound
	}
	return t, nil
}

func (s *fakeStore) RecentMessages(conversationID uint, n int) ([]models.Message, error) {
	return s.history, nil
}

func (s *fakeStore) CreateMessage(message *models.Message) error {
	s.nextMessageID++
	message.ID = s.nextMessageID
	message.CreatedAt = time.Now()
	s.created = append(s.created, message)
	s.messages[message.ID] = message
	return nil
}

func (s *fakeStore) UpdateConversationStats(conversationID uint) error {
	s.statsUpdated = append(s.statsUpdated, conversationID)
	return nil
}

func (s *fakeStore) IncrementAssistantMessages(assistantID uint) error {
	s.assistantBumped = append(s.assistantBumped, assistantID)
	return nil
}

func (s *fakeStore) IncrementTemplateUsage(templateID uint) error {
	s.templateBumped = append(s.templateBumped, templateID)
	return nil
}

func (s *fakeStore) ReplySince(conversationID uint, since time.Time) (*models.Message, error) {
	for _, m := range s.messages {
		if m.ConversationID == conversationID && m.Role == models.MessageRoleAssistant && !m.CreatedAt.Before(since) {
			return m, nil
		}
	}
	return nil, nil
}

var errNotFound = notFoundError("record not found")

type notFoundError string

func (e notFoundError) Error() string { return string(e) }

type fakeSearcher struct {
	result retrieval.Result
	calls  int
	query  string
}

func (s *fakeSearcher) Search(assistantID uint, query string, limit int, useReranker bool) retrieval.Result {
	s.calls++
	s.query = query
	return s.result
}

type fakeGenerator struct {
	completion llm.Completion
	prompt     string
	model      string
}

func (g *fakeGenerator) Process(model string, prompt string, query string, temperature float64, maxTokens int) llm.Completion {
	g.model = model
	g.prompt = prompt
	return g.completion
}

func seedConversation(store *fakeStore, assistant models.Assistant) (*models.Conversation, *models.Message) {
	conversation := &models.Conversation{
		ID:          1,
		AssistantID: assistant.ID,
		Status:      models.ConversationStatusActive,
		Assistant:   assistant,
	}
	store.conversations[1] = conversation

	message := &models.Message{
		ID:             10,
		ConversationID: 1,
		Role:           models.MessageRoleUser,
		Content:        "How do I reset my password?",
		CreatedAt:      time.Now().Add(-2 * time.Second),
	}
	store.messages[10] = message
	return conversation, message
}

func TestProcessWithoutSearch(t *testing.T) {
	store := newFakeStore()
	searcher := &fakeSearcher{}
	generator := &fakeGenerator{completion: llm.Completion{Text: "Use the reset link.", Usage: llm.TokenUsage{TotalTokens: 42}}}

	assistant := models.Assistant{ID: 5, Name: "Helpdesk", Kind: models.AssistantKindSupport, EnableSearch: false, Status: models.AssistantStatusIndexed}
	seedConversation(store, assistant)

	p := NewProcessor(store, searcher, generator, 5)
	result := p.Process(1, 10, 0)

	if result.Failed() {
		t.Fatalf("expected success, got %q", result.Message)
	}
	if searcher.calls != 0 {
		t.Errorf("retrieval must not be invoked when search is disabled, got %d calls", searcher.calls)
	}
	if result.SearchResultsCount != 0 {
		t.Errorf("expected search_results_count 0, got %d", result.SearchResultsCount)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected exactly one assistant message, got %d", len(store.created))
	}
	reply := store.created[0]
	if reply.Role != models.MessageRoleAssistant {
		t.Errorf("expected assistant role, got %s", reply.Role)
	}
	if reply.Content != "Use the reset link." {
		t.Errorf("unexpected reply content: %q", reply.Content)
	}
	if reply.TokensCount != 42 {
		t.Errorf("expected 42 tokens, got %d", reply.TokensCount)
	}
	if !strings.Contains(generator.prompt, NoContextPlaceholder) {
		t.Errorf("empty context must render the placeholder, prompt: %q", generator.prompt)
	}
}

func TestProcessWithSearchResults(t *testing.T) {
	store := newFakeStore()
	searcher := &fakeSearcher{result: retrieval.Result{Records: []retrieval.Record{
		{Text: "Passwords are reset in settings.", Metadata: retrieval.Metadata{DocumentID: "manual.pdf", PageNumber: 3}},
		{Text: "Contact support for locked accounts.", Metadata: retrieval.Metadata{DocumentID: "faq.pdf"}},
	}}}
	generator := &fakeGenerator{completion: llm.Completion{Text: "ok"}}

	assistant := models.Assistant{ID: 5, Kind: models.AssistantKindSupport, EnableSearch: true, Status: models.AssistantStatusIndexed, SearchLimit: 10}
	seedConversation(store, assistant)

	p := NewProcessor(store, searcher, generator, 5)
	result := p.Process(1, 10, 0)

	if result.Failed() {
		t.Fatalf("expected success, got %q", result.Message)
	}
	if searcher.calls != 1 {
		t.Fatalf("expected one retrieval call, got %d", searcher.calls)
	}
	if result.SearchResultsCount != 2 {
		t.Errorf("expected search_results_count 2, got %d", result.SearchResultsCount)
	}
	first := strings.Index(generator.prompt, "[Документ 1]")
	second := strings.Index(generator.prompt, "[Документ 2]")
	if first == -1 || second == -1 || second < first {
		t.Errorf("prompt must contain both document blocks in order, prompt: %q", generator.prompt)
	}
	if !strings.Contains(generator.prompt, "manual.pdf") {
		t.Errorf("prompt must carry the source identifier")
	}
}

func TestProcessDegradedRetrievalStillReplies(t *testing.T) {
	store := newFakeStore()
	searcher := &fakeSearcher{result: retrieval.Result{Degraded: true, Reason: "timeout"}}
	generator := &fakeGenerator{completion: llm.Completion{Text: "reply"}}

	assistant := models.Assistant{ID: 5, Kind: models.AssistantKindQA, EnableSearch: true, Status: models.AssistantStatusAnalyzed}
	seedConversation(store, assistant)

	p := NewProcessor(store, searcher, generator, 5)
	result := p.Process(1, 10, 0)

	if result.Failed() {
		t.Fatalf("degraded retrieval must not fail the pipeline, got %q", result.Message)
	}
	if result.SearchResultsCount != 0 {
		t.Errorf("expected zero results, got %d", result.SearchResultsCount)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected one reply, got %d", len(store.created))
	}
}

func TestProcessConversationNotFound(t *testing.T) {
	store := newFakeStore()
	p := NewProcessor(store, &fakeSearcher{}, &fakeGenerator{}, 5)

	result := p.Process(99, 10, 0)
	if !result.Failed() {
		t.Fatal("expected hard failure for missing conversation")
	}
	if len(store.created) != 0 {
		t.Errorf("no message must be created on failure")
	}
}

func TestProcessExplicitTemplate(t *testing.T) {
	store := newFakeStore()
	generator := &fakeGenerator{completion: llm.Completion{Text: "ok"}}

	assistant := models.Assistant{ID: 5, Kind: models.AssistantKindSupport, LLMModel: "base-model"}
	seedConversation(store, assistant)
	store.templates[7] = &models.PromptTemplate{
		ID:   7,
		Kind: models.AssistantKindSupport,
		Body: "Вопрос: {query}\nКонтекст: {context}",
		Tags: datatypes.JSON(`["llm:qwen2:72b"]`),
	}

	p := NewProcessor(store, &fakeSearcher{}, generator, 5)
	result := p.Process(1, 10, 7)

	if result.Failed() {
		t.Fatalf("expected success, got %q", result.Message)
	}
	if generator.model != "qwen2:72b" {
		t.Errorf("expected template llm tag to win, got %q", generator.model)
	}
	if len(store.templateBumped) != 1 || store.templateBumped[0] != 7 {
		t.Errorf("explicit template usage must be incremented exactly once, got %v", store.templateBumped)
	}
}

func TestProcessMissingTemplateFallsThrough(t *testing.T) {
	store := newFakeStore()
	generator := &fakeGenerator{completion: llm.Completion{Text: "ok"}}

	assistant := models.Assistant{ID: 5, Kind: models.AssistantKindSupport, LLMModel: "base-model"}
	seedConversation(store, assistant)

	p := NewProcessor(store, &fakeSearcher{}, generator, 5)
	result := p.Process(1, 10, 404)

	if result.Failed() {
		t.Fatalf("missing explicit template must fall through, got %q", result.Message)
	}
	if generator.model != "base-model" {
		t.Errorf("expected assistant model, got %q", generator.model)
	}
	if len(store.templateBumped) != 0 {
		t.Errorf("no usage increment for a missing template")
	}
}

func TestProcessBrokenTemplateIsHardError(t *testing.T) {
	store := newFakeStore()
	assistant := models.Assistant{ID: 5, Kind: models.AssistantKindSupport}
	seedConversation(store, assistant)
	store.templates[7] = &models.PromptTemplate{ID: 7, Body: "no placeholders at all"}

	p := NewProcessor(store, &fakeSearcher{}, &fakeGenerator{}, 5)
	result := p.Process(1, 10, 7)

	if !result.Failed() {
		t.Fatal("a template without placeholders must fail hard")
	}
	if len(store.created) != 0 {
		t.Errorf("no reply may be persisted on composition failure")
	}
}

func TestProcessAuditSnapshot(t *testing.T) {
	store := newFakeStore()
	records := make([]retrieval.Record, 7)
	for i := range records {
		records[i] = retrieval.Record{Text: "snippet"}
	}
	searcher := &fakeSearcher{result: retrieval.Result{Records: records}}
	generator := &fakeGenerator{completion: llm.Completion{Text: "ok", Usage: llm.TokenUsage{TotalTokens: 9}}}

	assistant := models.Assistant{ID: 5, Kind: models.AssistantKindSupport, EnableSearch: true, Status: models.AssistantStatusIndexed}
	seedConversation(store, assistant)

	p := NewProcessor(store, searcher, generator, 5)
	result := p.Process(1, 10, 0)

	if result.SearchResultsCount != 7 {
		t.Errorf("outcome reports the full result count, got %d", result.SearchResultsCount)
	}
	reply := store.created[0]
	if c := strings.Count(string(reply.SearchResults), `"text"`); c != 5 {
		t.Errorf("audit snapshot keeps only the top 5 records, found %d", c)
	}
	if reply.SearchQuery != "How do I reset my password?" {
		t.Errorf("unexpected search query snapshot: %q", reply.SearchQuery)
	}
	if result.ProcessingTime <= 0 {
		t.Errorf("processing time must be measured from the user message, got %f", result.ProcessingTime)
	}
}
