package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/getevo/evo/v2/lib/db"
	"github.com/getevo/evo/v2/lib/log"
	"github.com/getevo/restify"
	"github.com/google/uuid"
	"github.com/iesreza/assistant-backend/apps/nats"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Conversation status constants
const (
	ConversationStatusActive   = "active"
	ConversationStatusArchived = "archived"
	ConversationStatusDeleted  = "deleted"
)

// Message role constants
const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
	MessageRoleSystem    = "system"
)

type Conversation struct {
	ID            uint       `gorm:"column:id;primaryKey" json:"id"`
	AssistantID   uint       `gorm:"column:assistant_id;not null;index;fk:assistants" json:"assistant_id"`
	UserID        uuid.UUID  `gorm:"column:user_id;type:char(36);not null;index" json:"user_id"`
	Title         string     `gorm:"column:title;size:255" json:"title"`
	Status        string     `gorm:"column:status;size:50;not null;default:active;check:status IN ('active','archived','deleted')" json:"status"`
	MessageCount  int        `gorm:"column:message_count;default:0" json:"message_count"`
	TotalTokens   int        `gorm:"column:total_tokens;default:0" json:"total_tokens"`
	LastMessageAt *time.Time `gorm:"column:last_message_at" json:"last_message_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`

	// Relationships
	Assistant Assistant `gorm:"foreignKey:AssistantID;references:ID" json:"assistant,omitempty"`
	Messages  []Message `gorm:"foreignKey:ConversationID;references:ID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`

	restify.API
}

func (Conversation) TableName() string {
	return "conversations"
}

type Message struct {
	ID             uint    `gorm:"column:id;primaryKey" json:"id"`
	ConversationID uint    `gorm:"column:conversation_id;not null;index;fk:conversations" json:"conversation_id"`
	Role           string  `gorm:"column:role;size:20;not null;check:role IN ('user','assistant','system')" json:"role"`
	Content        string  `gorm:"column:content;type:text;not null" json:"content"`
	TokensCount    int     `gorm:"column:tokens_count;default:0" json:"tokens_count"`
	ProcessingTime float64 `gorm:"column:processing_time;default:0" json:"processing_time"`

	// Retrieval audit trail (top 5 results only)
	SearchQuery   string         `gorm:"column:search_query;size:500" json:"search_query,omitempty"`
	SearchResults datatypes.JSON `gorm:"column:search_results;type:json" json:"search_results,omitempty"`

	// Raw inference request/response snapshots for debugging
	LLMRequest  datatypes.JSON `gorm:"column:llm_request;type:json" json:"llm_request,omitempty"`
	LLMResponse datatypes.JSON `gorm:"column:llm_response;type:json" json:"llm_response,omitempty"`

	// End-user feedback, the only mutable fields after creation
	Rating   *int   `gorm:"column:rating" json:"rating,omitempty"`
	Feedback string `gorm:"column:feedback;type:text" json:"feedback,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`

	// Relationships
	Conversation Conversation `gorm:"foreignKey:ConversationID;references:ID" json:"conversation,omitempty"`

	restify.API
}

func (Message) TableName() string {
	return "messages"
}

// CreatedEvent builds the NATS subject and payload announcing this
// message to livechat subscribers
func (m *Message) CreatedEvent() (string, []byte) {
	subject := fmt.Sprintf("conversation.%d", m.ConversationID)
	data, _ := json.Marshal(map[string]interface{}{
		"event":   "message.created",
		"message": m,
	})
	return subject, data
}

// NotifyCreated broadcasts the message to NATS so livechat subscribers
// see it without polling. Callers invoke it only after the insert has
// committed, a gorm hook would publish rows a rollback later discards.
func (m *Message) NotifyCreated() {
	subject, data := m.CreatedEvent()
	if err := nats.Publish(subject, data); err != nil {
		log.Debug("Failed to publish message.created to NATS: %v", err)
	}
}

// RecentMessages returns the n most recent messages of the
// conversation in ascending chronological order.
func (c *Conversation) RecentMessages(n int) ([]Message, error) {
	if n <= 0 {
		n = 10
	}
	var messages []Message
	err := db.Where("conversation_id = ?", c.ID).
		Order("created_at DESC, id DESC").
		Limit(n).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	// Reverse to get chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// UpdateStatistics recomputes the conversation's aggregate counters
// from its message sequence.
func (c *Conversation) UpdateStatistics() error {
	var count int64
	if err := db.Model(&Message{}).Where("conversation_id = ?", c.ID).Count(&count).Error; err != nil {
		return err
	}

	var totalTokens int64
	if err := db.Model(&Message{}).Where("conversation_id = ?", c.ID).
		Select("COALESCE(SUM(tokens_count), 0)").Scan(&totalTokens).Error; err != nil {
		return err
	}

	updates := map[string]interface{}{
		"message_count": count,
		"total_tokens":  totalTokens,
	}

	var last Message
	err := db.Where("conversation_id = ?", c.ID).
		Order("created_at DESC, id DESC").
		First(&last).Error
	if err == nil {
		updates["last_message_at"] = last.CreatedAt
	}

	c.MessageCount = int(count)
	c.TotalTokens = int(totalTokens)
	return db.Model(&Conversation{}).Where("id = ?", c.ID).Updates(updates).Error
}

// Clear deletes every message of the conversation and resets its
// counters. Other conversations are untouched.
func (c *Conversation) Clear() error {
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", c.ID).Delete(&Message{}).Error; err != nil {
			return err
		}
		return tx.Model(&Conversation{}).Where("id = ?", c.ID).Updates(map[string]interface{}{
			"message_count":   0,
			"total_tokens":    0,
			"last_message_at": nil,
		}).Error
	})
	if err != nil {
		return err
	}
	c.MessageCount = 0
	c.TotalTokens = 0
	c.LastMessageAt = nil
	return nil
}

// ReplySince returns the latest assistant message of the conversation
// created at or after the given time, used by the status poller to
// recover results the task backend lost.
func ReplySince(conversationID uint, since time.Time) (*Message, error) {
	var reply Message
	err := db.Where("conversation_id = ?", conversationID).
		Where("role = ?", MessageRoleAssistant).
		Where("created_at >= ?", since).
		Order("created_at DESC, id DESC").
		First(&reply).Error
	if err != nil {
		return nil, err
	}
	return &reply, nil
}
