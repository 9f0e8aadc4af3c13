package chat

import (
	"fmt"

	"github.com/getevo/evo/v2/lib/db"
	"github.com/getevo/evo/v2/lib/log"
	"github.com/go-playground/validator/v10"
	"github.com/iesreza/assistant-backend/apps/auth"
	"github.com/iesreza/assistant-backend/apps/models"
	"github.com/iesreza/assistant-backend/lib/response"
)

var validate = validator.New()

// loadAccessibleAssistant loads an assistant the user may chat with
func loadAccessibleAssistant(assistantID uint, user *auth.User) (*models.Assistant, error) {
	var assistant models.Assistant
	if err := db.Preload("Templates").Where("id = ?", assistantID).First(&assistant).Error; err != nil {
		return nil, response.ErrAssistantNotFound
	}
	if !assistant.CanUserAccess(user.UserID) {
		return nil, response.ErrAccessDenied
	}
	return &assistant, nil
}

// loadOwnedConversation loads a conversation and verifies the user owns it
func loadOwnedConversation(conversationID uint, user *auth.User) (*models.Conversation, error) {
	var conversation models.Conversation
	err := db.Preload("Assistant").Preload("Assistant.Templates").
		Where("id = ?", conversationID).First(&conversation).Error
	if err != nil {
		return nil, response.ErrConversationNotFound
	}
	if conversation.UserID != user.UserID {
		return nil, response.ErrAccessDenied
	}
	return &conversation, nil
}

// activeConversation returns the user's most recent active conversation
// with the assistant, creating one lazily when none exists.
func activeConversation(assistant *models.Assistant, user *auth.User) (*models.Conversation, error) {
	var conversation models.Conversation
	err := db.Where("assistant_id = ? AND user_id = ? AND status = ?",
		assistant.ID, user.UserID, models.ConversationStatusActive).
		Order("updated_at DESC").
		First(&conversation).Error
	if err == nil {
		return &conversation, nil
	}

	conversation = models.Conversation{
		AssistantID: assistant.ID,
		UserID:      user.UserID,
		Title:       fmt.Sprintf("Диалог с %s", assistant.Name),
		Status:      models.ConversationStatusActive,
	}
	if err := db.Create(&conversation).Error; err != nil {
		return nil, response.NewErrorWithDetails(response.ErrorCodeDatabaseError, "Failed to create conversation", 500, err.Error())
	}
	if err := assistant.IncrementConversationCount(); err != nil {
		log.Warning("Failed to update assistant conversation count: %v", err)
	}
	return &conversation, nil
}

// assistantTemplates returns the templates offered for an assistant: its
// attached templates, else the public ones plus the user's own.
func assistantTemplates(assistant *models.Assistant, user *auth.User) []models.PromptTemplate {
	if len(assistant.Templates) > 0 {
		return assistant.Templates
	}

	var templates []models.PromptTemplate
	err := db.Where("is_public = ? OR user_id = ?", true, user.UserID).
		Find(&templates).Error
	if err != nil {
		log.Error("Failed to load templates for assistant %d: %v", assistant.ID, err)
		return nil
	}
	return templates
}
