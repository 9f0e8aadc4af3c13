package chat

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/getevo/evo/v2"
	"github.com/getevo/evo/v2/lib/db"
	"github.com/getevo/evo/v2/lib/log"
	"github.com/getevo/evo/v2/lib/settings"
	"github.com/getevo/pagination"
	"github.com/iesreza/assistant-backend/apps/auth"
	"github.com/iesreza/assistant-backend/apps/models"
	"github.com/iesreza/assistant-backend/apps/pipeline"
	"github.com/iesreza/assistant-backend/apps/tasks"
	"github.com/iesreza/assistant-backend/lib/response"
)

type Controller struct{}

// AssistantItem is an assistant listing entry with its effective model
type AssistantItem struct {
	models.Assistant
	ResolvedModel string `json:"resolved_model"`
}

// ListAssistants handles GET /api/chat/assistants
// Returns the assistants the caller may chat with, newest first, each with
// the inference model that would actually serve it. Anonymous callers see
// public assistants only.
func (c Controller) ListAssistants(request *evo.Request) interface{} {
	user := auth.OptionalUser(request)

	var assistants []models.Assistant
	query := db.Preload("Templates").Order("created_at DESC")
	if user != nil {
		query = query.Where("is_public = ? OR user_id = ?", true, user.UserID)
	} else {
		query = query.Where("is_public = ?", true)
	}
	if err := query.Find(&assistants).Error; err != nil {
		log.Error("Failed to list assistants: %v", err)
		return response.Error(response.ErrInternalError)
	}

	items := make([]AssistantItem, 0, len(assistants))
	for i := range assistants {
		items = append(items, AssistantItem{
			Assistant:     assistants[i],
			ResolvedModel: pipeline.ResolveModel(&assistants[i], nil),
		})
	}

	return response.OK(items)
}

// OpenConversationInput selects an assistant to chat with
type OpenConversationInput struct {
	AssistantID uint `json:"assistant_id" validate:"required"`
}

// OpenConversation handles POST /api/chat/conversations/open
// Returns the user's active conversation with the assistant, creating one
// lazily, along with recent messages and the selectable templates.
func (c Controller) OpenConversation(request *evo.Request) interface{} {
	user, err := auth.RequireUser(request)
	if err != nil {
		return err
	}

	var input OpenConversationInput
	if err := request.BodyParser(&input); err != nil {
		return response.Error(response.ErrInvalidInput)
	}
	if err := validate.Struct(input); err != nil {
		return response.Error(response.NewErrorWithDetails(response.ErrorCodeValidationError, "Validation failed", 400, err.Error()))
	}

	assistant, err := loadAccessibleAssistant(input.AssistantID, user)
	if err != nil {
		return err
	}

	conversation, err := activeConversation(assistant, user)
	if err != nil {
		return err
	}

	messages, err := conversation.RecentMessages(50)
	if err != nil {
		log.Warning("Failed to load conversation messages: %v", err)
	}

	return response.OK(map[string]interface{}{
		"conversation":   conversation,
		"assistant":      assistant,
		"messages":       messages,
		"templates":      assistantTemplates(assistant, user),
		"resolved_model": pipeline.ResolveModel(assistant, nil),
	})
}

// ListConversations handles GET /api/chat/conversations
func (c Controller) ListConversations(request *evo.Request) interface{} {
	user, err := auth.RequireUser(request)
	if err != nil {
		return err
	}

	var conversations []models.Conversation
	query := db.Preload("Assistant").
		Where("user_id = ? AND status != ?", user.UserID, models.ConversationStatusDeleted).
		Order("updated_at DESC")

	p, err := pagination.New(query, request, &conversations, pagination.Options{MaxSize: 100})
	if err != nil {
		return response.Error(response.ErrInternalError)
	}

	return response.OKWithMeta(conversations, &response.Meta{
		Page:       p.CurrentPage,
		Limit:      p.Size,
		Total:      int64(p.Records),
		TotalPages: p.Pages,
	})
}

// GetMessages handles GET /api/chat/conversations/:conversation_id/messages
// Returns the last N messages in ascending chronological order.
func (c Controller) GetMessages(request *evo.Request) interface{} {
	user, err := auth.RequireUser(request)
	if err != nil {
		return err
	}

	conversation, err := loadOwnedConversation(request.Param("conversation_id").Uint(), user)
	if err != nil {
		return err
	}

	limit := request.Query("limit").Int()
	if limit < 1 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	messages, err := conversation.RecentMessages(limit)
	if err != nil {
		log.Error("Failed to load messages: %v", err)
		return response.Error(response.ErrInternalError)
	}

	return response.OK(messages)
}

// SendMessageInput is the send-message request body
type SendMessageInput struct {
	ConversationID uint   `json:"conversation_id" validate:"required"`
	Message        string `json:"message" validate:"required,max=10000"`
	TemplateID     uint   `json:"template_id"`
	Sync           bool   `json:"sync"`
}

// SendMessage handles POST /api/chat/send
// Persists the user message and submits it to the pipeline. Async mode
// returns a task handle to poll, sync mode returns the finished reply.
func (c Controller) SendMessage(request *evo.Request) interface{} {
	user, err := auth.RequireUser(request)
	if err != nil {
		return err
	}

	var input SendMessageInput
	if err := request.BodyParser(&input); err != nil {
		return response.Error(response.ErrInvalidInput)
	}
	if err := validate.Struct(input); err != nil {
		return response.Error(response.NewErrorWithDetails(response.ErrorCodeValidationError, "Validation failed", 400, err.Error()))
	}

	conversation, err := loadOwnedConversation(input.ConversationID, user)
	if err != nil {
		return err
	}
	if conversation.Assistant.ID == 0 {
		return response.Error(response.ErrAssistantNotFound)
	}

	userMessage := models.Message{
		ConversationID: conversation.ID,
		Role:           models.MessageRoleUser,
		Content:        strings.TrimSpace(input.Message),
	}
	if userMessage.Content == "" {
		return response.Error(response.NewError(response.ErrorCodeMissingRequired, "Не указан диалог или сообщение", 400))
	}
	if err := db.Create(&userMessage).Error; err != nil {
		log.Error("Failed to save user message: %v", err)
		return response.Error(response.NewErrorWithDetails(response.ErrorCodeDatabaseError, "Failed to save message", 500, err.Error()))
	}
	userMessage.NotifyCreated()

	if err := conversation.UpdateStatistics(); err != nil {
		log.Warning("Failed to update conversation statistics: %v", err)
	}
	if err := conversation.Assistant.IncrementMessageCount(); err != nil {
		log.Warning("Failed to update assistant counters: %v", err)
	}

	async := settings.Get("CHAT.ASYNC", true).Bool() && !input.Sync

	submission := tasks.GetSubmission()
	if submission == nil {
		return response.Error(response.ErrInternalError)
	}
	outcome := submission.Submit(conversation.ID, userMessage.ID, input.TemplateID, async)

	if outcome.Async {
		return response.OK(map[string]interface{}{
			"status":     tasks.StatusPending,
			"task_id":    outcome.TaskID,
			"message_id": userMessage.ID,
			"message":    "Обрабатываю запрос...",
			"duplicate":  outcome.Duplicate,
		})
	}

	result := outcome.Result
	if result == nil || result.Failed() {
		message := "Ошибка при обработке сообщения"
		if result != nil {
			message = result.Message
		}
		return response.Error(response.NewError(response.ErrorCodeInternalError, message, 500))
	}

	return response.OK(map[string]interface{}{
		"status":               tasks.StatusSuccess,
		"message_id":           result.MessageID,
		"message":              result.Message,
		"search_results_count": result.SearchResultsCount,
		"tokens_used":          result.TokensUsed,
		"processing_time":      result.ProcessingTime,
	})
}

// TaskStatus handles GET /api/chat/tasks/:task_id
// The optional message_id query parameter enables the database fallbacks
// for lost tasks.
func (c Controller) TaskStatus(request *evo.Request) interface{} {
	if _, err := auth.RequireUser(request); err != nil {
		return err
	}

	taskID := request.Param("task_id").String()
	if taskID == "" {
		return response.Error(response.ErrInvalidInput)
	}
	messageID := uint(request.Query("message_id").Int())

	poller := tasks.GetPoller()
	if poller == nil {
		return response.Error(response.ErrInternalError)
	}

	return response.OK(poller.Status(taskID, messageID))
}

// RateMessageInput is the message rating request body
type RateMessageInput struct {
	Rating   int    `json:"rating" validate:"omitempty,min=1,max=5"`
	Feedback string `json:"feedback" validate:"max=2000"`
}

// RateMessage handles POST /api/chat/messages/:message_id/rate
// Sets the end-user rating/feedback on an assistant message and folds the
// rating into the assistant's rolling average.
func (c Controller) RateMessage(request *evo.Request) interface{} {
	user, err := auth.RequireUser(request)
	if err != nil {
		return err
	}

	var message models.Message
	if err := db.Preload("Conversation").Preload("Conversation.Assistant").
		Where("id = ?", request.Param("message_id").Uint()).
		First(&message).Error; err != nil {
		return response.Error(response.ErrMessageNotFound)
	}
	if message.Conversation.UserID != user.UserID {
		return response.Error(response.ErrAccessDenied)
	}

	var input RateMessageInput
	if err := request.BodyParser(&input); err != nil {
		return response.Error(response.ErrInvalidInput)
	}
	if err := validate.Struct(input); err != nil {
		return response.Error(response.NewErrorWithDetails(response.ErrorCodeValidationError, "Validation failed", 400, err.Error()))
	}

	updates := map[string]interface{}{}
	if input.Rating != 0 {
		updates["rating"] = input.Rating
	}
	if input.Feedback != "" {
		updates["feedback"] = input.Feedback
	}
	if len(updates) == 0 {
		return response.Error(response.NewError(response.ErrorCodeMissingRequired, "Nothing to update", 400))
	}

	if err := db.Model(&models.Message{}).Where("id = ?", message.ID).Updates(updates).Error; err != nil {
		log.Error("Failed to save rating: %v", err)
		return response.Error(response.ErrInternalError)
	}

	if input.Rating != 0 {
		if err := message.Conversation.Assistant.UpdateRating(input.Rating); err != nil {
			log.Warning("Failed to update assistant rating: %v", err)
		}
	}

	return response.OKWithMessage(nil, "Оценка сохранена")
}

// ClearConversation handles POST /api/chat/conversations/:conversation_id/clear
// Deletes every message of the conversation and resets its counters.
func (c Controller) ClearConversation(request *evo.Request) interface{} {
	user, err := auth.RequireUser(request)
	if err != nil {
		return err
	}

	conversation, err := loadOwnedConversation(request.Param("conversation_id").Uint(), user)
	if err != nil {
		return err
	}

	if err := conversation.Clear(); err != nil {
		log.Error("Failed to clear conversation %d: %v", conversation.ID, err)
		return response.Error(response.NewError(response.ErrorCodeDatabaseError, "Не удалось очистить историю", 500))
	}

	log.Info("Conversation %d cleared by user %s", conversation.ID, user.UserID)
	return response.OKWithMessage(nil, "История очищена")
}

// Diagnostics handles GET /api/chat/diagnostics
// Probes the retrieval and inference endpoints from the web process to
// tell broker problems apart from collaborator outages.
func (c Controller) Diagnostics(request *evo.Request) interface{} {
	user, err := auth.RequireUser(request)
	if err != nil {
		return err
	}
	if !user.HasPermission("chat.diagnostics") {
		return response.Error(response.ErrForbidden)
	}

	retrievalURL := settings.Get("RETRIEVAL.URL", "http://localhost:8002").String()
	llmURL := settings.Get("LLM.URL", "http://localhost:8002").String()

	info := map[string]interface{}{
		"retrieval_url": retrievalURL,
		"llm_url":       llmURL,
	}

	probe := &http.Client{Timeout: 5 * time.Second}

	if resp, err := probe.Get(llmURL + "/llm/models"); err != nil {
		info["llm_models_error"] = err.Error()
	} else {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		resp.Body.Close()
		info["llm_models_status"] = resp.StatusCode
		info["llm_models_preview"] = string(body)
	}

	if resp, err := probe.Post(retrievalURL+"/search", "application/json",
		strings.NewReader(`{"application_id":"0","query":"ping","limit":1}`)); err != nil {
		info["search_error"] = err.Error()
	} else {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		resp.Body.Close()
		info["search_status"] = resp.StatusCode
		info["search_preview"] = string(body)
	}

	return response.OK(info)
}
