package tasks

import (
	"errors"
	"testing"
	"time"

	"github.com/iesreza/assistant-backend/apps/llm"
	"github.com/iesreza/assistant-backend/apps/models"
	"github.com/iesreza/assistant-backend/apps/pipeline"
	"github.com/iesreza/assistant-backend/apps/retrieval"
)

// stubStore is a minimal pipeline.Store backing a working processor
type stubStore struct {
	conversation *models.Conversation
	userMessage  *models.Message
	reply        *models.Message
	nextID       uint
}

func (s *stubStore) Conversation(id uint) (*models.Conversation, error) {
	if s.conversation == nil || s.conversation.ID != id {
		return nil, errors.New("record not found")
	}
	return s.conversation, nil
}

func (s *stubStore) Message(id uint) (*models.Message, error) {
	if s.userMessage != nil && s.userMessage.ID == id {
		return s.userMessage, nil
	}
	if s.reply != nil && s.reply.ID == id {
		return s.reply, nil
	}
	return nil, errors.New("record not found")
}

func (s *stubStore) Template(id uint) (*models.PromptTemplate, error) {
	return nil, errors.New("record not found")
}

func (s *stubStore) RecentMessages(conversationID uint, n int) ([]models.Message, error) {
	return nil, nil
}

func (s *stubStore) CreateMessage(message *models.Message) error {
	s.nextID++
	message.ID = 1000 + s.nextID
	message.CreatedAt = time.Now()
	s.reply = message
	return nil
}

func (s *stubStore) UpdateConversationStats(conversationID uint) error { return nil }
func (s *stubStore) IncrementAssistantMessages(assistantID uint) error { return nil }
func (s *stubStore) IncrementTemplateUsage(templateID uint) error      { return nil }

func (s *stubStore) ReplySince(conversationID uint, since time.Time) (*models.Message, error) {
	if s.reply != nil && s.reply.ConversationID == conversationID && !s.reply.CreatedAt.Before(since) {
		return s.reply, nil
	}
	return nil, nil
}

type stubSearcher struct{}

func (stubSearcher) Search(assistantID uint, query string, limit int, useReranker bool) retrieval.Result {
	return retrieval.Result{}
}

type stubGenerator struct{ text string }

func (g stubGenerator) Process(model string, prompt string, query string, temperature float64, maxTokens int) llm.Completion {
	return llm.Completion{Text: g.text, Usage: llm.TokenUsage{TotalTokens: 7}}
}

type stubQueue struct {
	jobs []Job
	err  error
}

func (q *stubQueue) Enqueue(job Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func newStubStore() *stubStore {
	return &stubStore{
		conversation: &models.Conversation{
			ID:          1,
			AssistantID: 5,
			Assistant:   models.Assistant{ID: 5, Kind: models.AssistantKindCustom},
		},
		userMessage: &models.Message{
			ID:             10,
			ConversationID: 1,
			Role:           models.MessageRoleUser,
			Content:        "вопрос",
			CreatedAt:      time.Now().Add(-time.Second),
		},
	}
}

func newTestRunner(store *stubStore, states StateStore, reply string) *Runner {
	return &Runner{
		Processor: pipeline.NewProcessor(store, stubSearcher{}, stubGenerator{text: reply}, 5),
		States:    states,
	}
}

func TestMemoryStateStore(t *testing.T) {
	store := NewMemoryStateStore()

	if _, ok := store.Load("missing"); ok {
		t.Error("unknown task must not load")
	}

	if err := store.Save(State{TaskID: "t1", Status: StatusProgress, Progress: 40}); err != nil {
		t.Fatal(err)
	}
	state, ok := store.Load("t1")
	if !ok || state.Progress != 40 {
		t.Fatalf("unexpected state: %+v", state)
	}
	if state.UpdatedAt.IsZero() {
		t.Error("save must stamp the state")
	}
}

func TestMemoryStateStoreClaims(t *testing.T) {
	store := NewMemoryStateStore()

	owner, claimed := store.ClaimMessage(10, "t1", time.Minute)
	if !claimed || owner != "t1" {
		t.Fatalf("first claim must succeed, got %q %v", owner, claimed)
	}

	owner, claimed = store.ClaimMessage(10, "t2", time.Minute)
	if claimed {
		t.Fatal("second claim within the TTL must fail")
	}
	if owner != "t1" {
		t.Errorf("failed claim must return the holder, got %q", owner)
	}

	// Expired claims are released
	store.claims[10] = claim{taskID: "t1", expires: time.Now().Add(-time.Second)}
	if _, claimed = store.ClaimMessage(10, "t3", time.Minute); !claimed {
		t.Error("an expired claim must be reclaimable")
	}
}

func TestSubmitSync(t *testing.T) {
	store := newStubStore()
	states := NewMemoryStateStore()
	queue := &stubQueue{}
	s := &Submission{Queue: queue, Runner: newTestRunner(store, states, "ответ"), States: states}

	outcome := s.Submit(1, 10, 0, false)

	if outcome.Async || outcome.Duplicate {
		t.Fatalf("sync submit must finish inline: %+v", outcome)
	}
	if outcome.Result == nil || outcome.Result.Failed() {
		t.Fatalf("unexpected result: %+v", outcome.Result)
	}
	if outcome.Result.Message != "ответ" {
		t.Errorf("unexpected reply: %q", outcome.Result.Message)
	}
	if len(queue.jobs) != 0 {
		t.Error("sync submit must not touch the queue")
	}

	state, ok := states.Load(outcome.TaskID)
	if !ok || state.Status != StatusSuccess || state.Progress != 100 {
		t.Errorf("finished task must be recorded as success: %+v", state)
	}
}

func TestSubmitAsync(t *testing.T) {
	store := newStubStore()
	states := NewMemoryStateStore()
	queue := &stubQueue{}
	s := &Submission{Queue: queue, Runner: newTestRunner(store, states, "ответ"), States: states}

	outcome := s.Submit(1, 10, 3, true)

	if !outcome.Async || outcome.Result != nil {
		t.Fatalf("async submit must return a task handle: %+v", outcome)
	}
	if len(queue.jobs) != 1 {
		t.Fatalf("expected one enqueued job, got %d", len(queue.jobs))
	}
	job := queue.jobs[0]
	if job.TaskID != outcome.TaskID || job.MessageID != 10 || job.TemplateID != 3 {
		t.Errorf("unexpected job: %+v", job)
	}

	state, ok := states.Load(outcome.TaskID)
	if !ok || state.Status != StatusPending {
		t.Errorf("pending state must be visible before the worker starts: %+v", state)
	}
}

func TestSubmitAsyncQueueFallback(t *testing.T) {
	store := newStubStore()
	states := NewMemoryStateStore()
	queue := &stubQueue{err: errors.New("broker down")}
	s := &Submission{Queue: queue, Runner: newTestRunner(store, states, "ответ"), States: states}

	outcome := s.Submit(1, 10, 0, true)

	if outcome.Async {
		t.Fatal("a failed enqueue must fall back to inline execution")
	}
	if outcome.Result == nil || outcome.Result.Message != "ответ" {
		t.Fatalf("inline fallback must return the finished result: %+v", outcome.Result)
	}
}

func TestSubmitDuplicate(t *testing.T) {
	store := newStubStore()
	states := NewMemoryStateStore()
	queue := &stubQueue{}
	s := &Submission{Queue: queue, Runner: newTestRunner(store, states, "ответ"), States: states}

	first := s.Submit(1, 10, 0, true)
	second := s.Submit(1, 10, 0, true)

	if !second.Duplicate {
		t.Fatal("resubmitting a claimed message must be flagged as duplicate")
	}
	if second.TaskID != first.TaskID {
		t.Errorf("duplicate must return the original task handle, got %q want %q", second.TaskID, first.TaskID)
	}
	if len(queue.jobs) != 1 {
		t.Errorf("duplicate must not enqueue again, got %d jobs", len(queue.jobs))
	}
}

func TestRunnerRecordsFailure(t *testing.T) {
	store := newStubStore()
	states := NewMemoryStateStore()
	runner := newTestRunner(store, states, "ответ")

	result := runner.Run(Job{TaskID: "t1", ConversationID: 99, MessageID: 10})

	if !result.Failed() {
		t.Fatal("missing conversation must fail")
	}
	state, ok := states.Load("t1")
	if !ok || state.Status != StatusError {
		t.Fatalf("failure must be recorded: %+v", state)
	}
	if state.Message == "" {
		t.Error("error state must carry the failure message")
	}
}

func TestPollerProgressAndError(t *testing.T) {
	states := NewMemoryStateStore()
	p := &Poller{States: states, Store: newStubStore()}

	states.Save(State{TaskID: "t1", Status: StatusProgress, Progress: 40, Message: "Генерация ответа..."})
	report := p.Status("t1", 10)
	if report.Status != StatusProgress || report.Progress != 40 || report.Message != "Генерация ответа..." {
		t.Errorf("progress must pass through: %+v", report)
	}

	states.Save(State{TaskID: "t2", Status: StatusError})
	report = p.Status("t2", 10)
	if report.Status != StatusError || report.Message != "Неизвестная ошибка" {
		t.Errorf("empty error must carry the generic message: %+v", report)
	}

	states.Save(State{TaskID: "t3", Status: "bogus"})
	report = p.Status("t3", 10)
	if report.Status != StatusUnknown || report.Message != "Неизвестный статус: bogus" {
		t.Errorf("unexpected unknown-status report: %+v", report)
	}
}

func TestPollerSuccessLoadsMissingPayload(t *testing.T) {
	states := NewMemoryStateStore()
	store := newStubStore()
	store.reply = &models.Message{ID: 1001, ConversationID: 1, Role: models.MessageRoleAssistant, Content: "сохранённый ответ", CreatedAt: time.Now()}
	p := &Poller{States: states, Store: store}

	states.Save(State{TaskID: "t1", Status: StatusSuccess, MessageID: 1001, TokensUsed: 7})
	report := p.Status("t1", 10)

	if report.Status != StatusSuccess {
		t.Fatalf("unexpected status: %+v", report)
	}
	if report.Message != "сохранённый ответ" {
		t.Errorf("payload must be loaded from the database: %q", report.Message)
	}
	if report.MessageID != 1001 || report.TokensUsed != 7 {
		t.Errorf("counters must survive: %+v", report)
	}
}

func TestPollerPendingFindsPersistedReply(t *testing.T) {
	states := NewMemoryStateStore()
	store := newStubStore()
	store.reply = &models.Message{ID: 1001, ConversationID: 1, Role: models.MessageRoleAssistant, Content: "готовый ответ", CreatedAt: time.Now()}
	p := &Poller{States: states, Store: store}

	states.Save(State{TaskID: "t1", Status: StatusPending})
	report := p.Status("t1", 10)

	if report.Status != StatusSuccess || report.Message != "готовый ответ" {
		t.Errorf("a persisted reply must resolve a pending task: %+v", report)
	}
}

func TestPollerPendingWithoutReplyStaysPending(t *testing.T) {
	states := NewMemoryStateStore()
	p := &Poller{States: states, Store: newStubStore()}

	states.Save(State{TaskID: "t1", Status: StatusPending})
	report := p.Status("t1", 10)

	if report.Status != StatusPending {
		t.Errorf("pending task without a reply stays pending, no re-run: %+v", report)
	}
}

func TestPollerLostTaskRerunsInline(t *testing.T) {
	states := NewMemoryStateStore()
	store := newStubStore()
	p := &Poller{
		States: states,
		Store:  store,
		Runner: newTestRunner(store, states, "восстановленный ответ"),
	}

	report := p.Status("ghost", 10)

	if report.Status != StatusSuccess {
		t.Fatalf("a lost task with a live message must be re-run: %+v", report)
	}
	if report.Message != "восстановленный ответ" {
		t.Errorf("unexpected reply: %q", report.Message)
	}
	if store.reply == nil {
		t.Error("the re-run must persist the reply")
	}
}

func TestPollerLostTaskPrefersPersistedReply(t *testing.T) {
	states := NewMemoryStateStore()
	store := newStubStore()
	store.reply = &models.Message{ID: 1001, ConversationID: 1, Role: models.MessageRoleAssistant, Content: "уже готово", CreatedAt: time.Now()}
	p := &Poller{States: states, Store: store}

	// Runner is nil: reaching the re-run branch would panic, the persisted
	// reply must short-circuit first.
	report := p.Status("ghost", 10)

	if report.Status != StatusSuccess || report.Message != "уже готово" {
		t.Errorf("persisted reply must win over a re-run: %+v", report)
	}
}

func TestPollerLostTaskWithoutMessage(t *testing.T) {
	states := NewMemoryStateStore()
	p := &Poller{States: states, Store: newStubStore()}

	report := p.Status("ghost", 0)

	if report.Status != StatusPending {
		t.Errorf("no message id means no fallback, report pending: %+v", report)
	}
}
