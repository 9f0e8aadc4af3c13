package pipeline

import (
	"errors"
	"time"

	"github.com/getevo/evo/v2/lib/db"
	"github.com/iesreza/assistant-backend/apps/models"
	"gorm.io/gorm"
)

// Store is the persistence contract the pipeline runs against. Production
// uses the shared database connection, tests plug in an in-memory fake.
type Store interface {
	Conversation(id uint) (*models.Conversation, error)
	Message(id uint) (*models.Message, error)
	Template(id uint) (*models.PromptTemplate, error)
	// RecentMessages returns the n most recent messages of a conversation
	// in ascending chronological order.
	RecentMessages(conversationID uint, n int) ([]models.Message, error)
	CreateMessage(message *models.Message) error
	UpdateConversationStats(conversationID uint) error
	IncrementAssistantMessages(assistantID uint) error
	IncrementTemplateUsage(templateID uint) error
	// ReplySince returns the latest assistant reply created at or after the
	// given time, or nil when none exists.
	ReplySince(conversationID uint, since time.Time) (*models.Message, error)
}

// DBStore is the production Store backed by the application database
type DBStore struct{}

func (DBStore) Conversation(id uint) (*models.Conversation, error) {
	var conversation models.Conversation
	err := db.Preload("Assistant").Preload("Assistant.Templates").
		Where("id = ?", id).First(&conversation).Error
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

func (DBStore) Message(id uint) (*models.Message, error) {
	var message models.Message
	if err := db.Where("id = ?", id).First(&message).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

func (DBStore) Template(id uint) (*models.PromptTemplate, error) {
	var template models.PromptTemplate
	if err := db.Where("id = ?", id).First(&template).Error; err != nil {
		return nil, err
	}
	return &template, nil
}

func (DBStore) RecentMessages(conversationID uint, n int) ([]models.Message, error) {
	conversation := models.Conversation{ID: conversationID}
	return conversation.RecentMessages(n)
}

func (DBStore) CreateMessage(message *models.Message) error {
	if err := db.Create(message).Error; err != nil {
		return err
	}
	// Broadcast only once the row is committed
	message.NotifyCreated()
	return nil
}

func (DBStore) UpdateConversationStats(conversationID uint) error {
	conversation := models.Conversation{ID: conversationID}
	return conversation.UpdateStatistics()
}

func (DBStore) IncrementAssistantMessages(assistantID uint) error {
	assistant := models.Assistant{ID: assistantID}
	return assistant.IncrementMessageCount()
}

func (DBStore) IncrementTemplateUsage(templateID uint) error {
	template := models.PromptTemplate{ID: templateID}
	return template.IncrementUsage()
}

func (DBStore) ReplySince(conversationID uint, since time.Time) (*models.Message, error) {
	reply, err := models.ReplySince(conversationID, since)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return reply, nil
}
