package pipeline

import (
	"encoding/json"
	"time"

	"github.com/getevo/evo/v2/lib/log"
	"github.com/iesreza/assistant-backend/apps/llm"
	"github.com/iesreza/assistant-backend/apps/models"
	"github.com/iesreza/assistant-backend/apps/retrieval"
	"gorm.io/datatypes"
)

// Outcome status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Searcher issues context lookups against the retrieval service
type Searcher interface {
	Search(assistantID uint, query string, limit int, useReranker bool) retrieval.Result
}

// Generator issues completions against the inference service
type Generator interface {
	Process(model string, prompt string, query string, temperature float64, maxTokens int) llm.Completion
}

// Result is the structured outcome of one pipeline run
type Result struct {
	Status             string  `json:"status"`
	Message            string  `json:"message"`
	MessageID          uint    `json:"message_id,omitempty"`
	SearchResultsCount int     `json:"search_results_count"`
	TokensUsed         int     `json:"tokens_used"`
	ProcessingTime     float64 `json:"processing_time"`
}

// Failed reports whether the run ended in a hard failure
func (r Result) Failed() bool {
	return r.Status != StatusSuccess
}

// Processor runs the message pipeline: retrieval, model resolution, prompt
// composition, inference and persistence of the reply. External service
// failures degrade, only missing records and broken templates fail hard.
type Processor struct {
	Store        Store
	Retrieval    Searcher
	LLM          Generator
	HistoryLimit int
}

// NewProcessor creates a processor over the given collaborators
func NewProcessor(store Store, searcher Searcher, generator Generator, historyLimit int) *Processor {
	if historyLimit <= 0 {
		historyLimit = 5
	}
	return &Processor{
		Store:        store,
		Retrieval:    searcher,
		LLM:          generator,
		HistoryLimit: historyLimit,
	}
}

// Process handles one already-persisted user message and produces the
// assistant reply. templateID is optional, zero means no explicit template.
// Re-invoking for the same user message creates an additional reply, the
// submission layer guards against duplicates.
func (p *Processor) Process(conversationID uint, messageID uint, templateID uint) Result {
	started := time.Now()

	conversation, err := p.Store.Conversation(conversationID)
	if err != nil || conversation == nil {
		return failure("Диалог или сообщение не найдены")
	}
	message, err := p.Store.Message(messageID)
	if err != nil || message == nil {
		return failure("Диалог или сообщение не найдены")
	}
	assistant := &conversation.Assistant
	if assistant.ID == 0 {
		return failure("Помощник не найден")
	}

	// Retrieval, only when the assistant's status and search toggle permit
	var searchResult retrieval.Result
	if assistant.SearchEligible() {
		searchResult = p.Retrieval.Search(assistant.ID, message.Content, assistant.SearchLimit, assistant.UseReranker)
	}

	// Explicit template lookup failures fall through to attached templates
	var explicit *models.PromptTemplate
	if templateID != 0 {
		explicit, err = p.Store.Template(templateID)
		if err != nil {
			log.Warning("Template %d not found, falling back: %v", templateID, err)
			explicit = nil
		}
	}

	model := ResolveModel(assistant, explicit)

	history, err := p.Store.RecentMessages(conversationID, p.HistoryLimit)
	if err != nil {
		log.Warning("Failed to load conversation history: %v", err)
		history = nil
	}

	templateBody := ResolveTemplateBody(assistant, explicit)
	searchContext := FormatSearchContext(searchResult.Records, maxContextResults)
	prompt, err := Compose(templateBody, message.Content, searchContext, FormatHistory(history), SystemPrompt(assistant))
	if err != nil {
		return failure("Ошибка формирования промпта: " + err.Error())
	}

	completion := p.LLM.Process(model, prompt, message.Content, assistant.Temperature, assistant.MaxTokens)

	processingTime := time.Since(started).Seconds()
	if !message.CreatedAt.IsZero() {
		processingTime = time.Since(message.CreatedAt).Seconds()
	}

	reply := models.Message{
		ConversationID: conversationID,
		Role:           models.MessageRoleAssistant,
		Content:        completion.Text,
		TokensCount:    completion.Usage.TotalTokens,
		ProcessingTime: processingTime,
		SearchQuery:    truncateRunes(message.Content, 500),
		SearchResults:  snapshotRecords(searchResult.Records),
		LLMRequest: marshalSnapshot(map[string]interface{}{
			"prompt":      truncateRunes(prompt, 1000),
			"model":       model,
			"temperature": assistant.Temperature,
			"max_tokens":  assistant.MaxTokens,
		}),
		LLMResponse: marshalSnapshot(map[string]interface{}{
			"tokens":   completion.Usage,
			"degraded": completion.Degraded,
			"raw":      truncateRunes(completion.Raw, 2000),
		}),
	}

	if err := p.Store.CreateMessage(&reply); err != nil {
		log.Error("Failed to persist assistant message: %v", err)
		return failure("Не удалось сохранить ответ")
	}

	if err := p.Store.UpdateConversationStats(conversationID); err != nil {
		log.Warning("Failed to update conversation statistics: %v", err)
	}
	if err := p.Store.IncrementAssistantMessages(assistant.ID); err != nil {
		log.Warning("Failed to update assistant counters: %v", err)
	}
	if explicit != nil {
		if err := p.Store.IncrementTemplateUsage(explicit.ID); err != nil {
			log.Warning("Failed to update template usage: %v", err)
		}
	}

	return Result{
		Status:             StatusSuccess,
		Message:            completion.Text,
		MessageID:          reply.ID,
		SearchResultsCount: len(searchResult.Records),
		TokensUsed:         completion.Usage.TotalTokens,
		ProcessingTime:     processingTime,
	}
}

func failure(message string) Result {
	return Result{Status: StatusError, Message: message}
}

// snapshotRecords keeps the top 5 retrieval records as an audit snapshot
func snapshotRecords(records []retrieval.Record) datatypes.JSON {
	if len(records) == 0 {
		return nil
	}
	if len(records) > 5 {
		records = records[:5]
	}
	return marshalSnapshot(records)
}

func marshalSnapshot(v interface{}) datatypes.JSON {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(data)
}
