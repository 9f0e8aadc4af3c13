package models

import (
	"time"

	"github.com/getevo/evo/v2/lib/db"
	"github.com/getevo/restify"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Assistant status constants. Retrieval is only attempted when the
// assistant is indexed or analyzed and search is enabled.
const (
	AssistantStatusCreated   = "created"
	AssistantStatusIndexing  = "indexing"
	AssistantStatusIndexed   = "indexed"
	AssistantStatusAnalyzing = "analyzing"
	AssistantStatusAnalyzed  = "analyzed"
	AssistantStatusError     = "error"
)

// Assistant kind constants
const (
	AssistantKindSupport  = "support"
	AssistantKindQA       = "qa"
	AssistantKindAnalyzer = "analyzer"
	AssistantKindCustom   = "custom"
)

// DefaultModel is used when neither a template tag nor the assistant
// configuration names an inference model.
const DefaultModel = "gemma3:27b"

type Assistant struct {
	ID            uint       `gorm:"column:id;primaryKey" json:"id"`
	Name          string     `gorm:"column:name;size:255;not null" json:"name"`
	Description   string     `gorm:"column:description;type:text" json:"description"`
	UserID        *uuid.UUID `gorm:"column:user_id;type:char(36);index;fk:users" json:"user_id"`
	Status        string     `gorm:"column:status;size:50;not null;default:created;check:status IN ('created','indexing','indexed','analyzing','analyzed','error')" json:"status"`
	StatusMessage string     `gorm:"column:status_message;type:text" json:"status_message"`
	Kind          string     `gorm:"column:kind;size:50;not null;default:support;check:kind IN ('support','qa','analyzer','custom')" json:"kind"`
	SystemPrompt  string     `gorm:"column:system_prompt;type:text" json:"system_prompt"`
	LLMModel      string     `gorm:"column:llm_model;size:100" json:"llm_model"`
	Temperature   float64    `gorm:"column:temperature;default:0.7" json:"temperature"`
	MaxTokens     int        `gorm:"column:max_tokens;default:2000" json:"max_tokens"`

	// Capability flags
	IsPublic     bool `gorm:"column:is_public;default:0" json:"is_public"`
	EnableSearch bool `gorm:"column:enable_search;default:1" json:"enable_search"`
	SearchLimit  int  `gorm:"column:search_limit;default:10" json:"search_limit"`
	UseReranker  bool `gorm:"column:use_reranker;default:1" json:"use_reranker"`

	// Usage statistics
	TotalConversations int     `gorm:"column:total_conversations;default:0" json:"total_conversations"`
	TotalMessages      int     `gorm:"column:total_messages;default:0" json:"total_messages"`
	AverageRating      float64 `gorm:"column:average_rating;default:0" json:"average_rating"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`

	// Relationships
	Templates []PromptTemplate `gorm:"many2many:assistant_templates;foreignKey:ID;joinForeignKey:AssistantID;references:ID;joinReferences:TemplateID" json:"templates,omitempty"`

	restify.API
}

func (Assistant) TableName() string {
	return "assistants"
}

// SearchEligible reports whether the retrieval service may be queried
// for this assistant.
func (a *Assistant) SearchEligible() bool {
	if !a.EnableSearch {
		return false
	}
	return a.Status == AssistantStatusIndexed || a.Status == AssistantStatusAnalyzed
}

// CanUserAccess checks whether the given user may chat with this assistant
func (a *Assistant) CanUserAccess(userID uuid.UUID) bool {
	if a.IsPublic {
		return true
	}
	if userID == uuid.Nil {
		return false
	}
	return a.UserID != nil && *a.UserID == userID
}

// IncrementConversationCount bumps the conversation counter
func (a *Assistant) IncrementConversationCount() error {
	a.TotalConversations++
	return db.Model(&Assistant{}).Where("id = ?", a.ID).
		Update("total_conversations", gorm.Expr("total_conversations + 1")).Error
}

// IncrementMessageCount bumps the message counter
func (a *Assistant) IncrementMessageCount() error {
	a.TotalMessages++
	return db.Model(&Assistant{}).Where("id = ?", a.ID).
		Update("total_messages", gorm.Expr("total_messages + 1")).Error
}

// UpdateRating folds a new 1-5 rating into the rolling average
func (a *Assistant) UpdateRating(rating int) error {
	a.AverageRating = RollRating(a.AverageRating, rating)
	return db.Model(&Assistant{}).Where("id = ?", a.ID).
		Update("average_rating", a.AverageRating).Error
}

// RollRating computes the rolling average used for assistant and
// template ratings: the first rating is taken as-is, subsequent ones
// are folded in with a 0.9/0.1 split.
func RollRating(current float64, rating int) float64 {
	if current == 0 {
		return float64(rating)
	}
	return current*0.9 + float64(rating)*0.1
}
