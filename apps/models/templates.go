package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/getevo/evo/v2/lib/db"
	"github.com/getevo/restify"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ModelTagPrefix marks a template tag that overrides the inference
// model, e.g. "llm:qwen2:72b".
const ModelTagPrefix = "llm:"

// PromptTemplate is a reusable prompt body with {query}/{context}
// placeholders, optionally attached to assistants.
type PromptTemplate struct {
	ID             uint           `gorm:"column:id;primaryKey" json:"id"`
	Name           string         `gorm:"column:name;size:255;not null;uniqueIndex" json:"name"`
	Description    string         `gorm:"column:description;type:text" json:"description"`
	UserID         *uuid.UUID     `gorm:"column:user_id;type:char(36);index;fk:users" json:"user_id"`
	IsPublic       bool           `gorm:"column:is_public;default:0" json:"is_public"`
	Kind           string         `gorm:"column:kind;size:50;not null;default:support;check:kind IN ('support','qa','analyzer','custom')" json:"kind"`
	Body           string         `gorm:"column:body;type:text" json:"body"`
	ResponseFormat string         `gorm:"column:response_format;type:text" json:"response_format"`
	Tags           datatypes.JSON `gorm:"column:tags;type:json" json:"tags"`
	UsageCount     int            `gorm:"column:usage_count;default:0" json:"usage_count"`
	Rating         float64        `gorm:"column:rating;default:0" json:"rating"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`

	restify.API
}

func (PromptTemplate) TableName() string {
	return "prompt_templates"
}

// AssistantTemplate is the assistant/template join table
type AssistantTemplate struct {
	AssistantID uint `gorm:"column:assistant_id;primaryKey;fk:assistants" json:"assistant_id"`
	TemplateID  uint `gorm:"column:template_id;primaryKey;fk:prompt_templates" json:"template_id"`
}

func (AssistantTemplate) TableName() string {
	return "assistant_templates"
}

// TagList decodes the tags column. A malformed or empty tag list
// decodes to nil rather than an error.
func (t *PromptTemplate) TagList() []string {
	if len(t.Tags) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(t.Tags, &tags); err != nil {
		return nil
	}
	return tags
}

// ModelTag returns the model name from the first "llm:" tag, or ""
func (t *PromptTemplate) ModelTag() string {
	for _, tag := range t.TagList() {
		if strings.HasPrefix(tag, ModelTagPrefix) {
			return strings.TrimPrefix(tag, ModelTagPrefix)
		}
	}
	return ""
}

// PromptBody returns the stored body, or the built-in default for the
// template's kind when the body is empty.
func (t *PromptTemplate) PromptBody() string {
	if strings.TrimSpace(t.Body) != "" {
		return t.Body
	}
	return DefaultPromptBody(t.Kind)
}

// DefaultPromptBody returns the built-in prompt body for a kind.
// Unknown kinds map to the custom default.
func DefaultPromptBody(kind string) string {
	if body, ok := defaultPromptBodies[kind]; ok {
		return body
	}
	return defaultPromptBodies[AssistantKindCustom]
}

var defaultPromptBodies = map[string]string{
	AssistantKindSupport: `Ты - эксперт службы поддержки. На основе предоставленной информации помоги решить проблему клиента.

Запрос клиента: {query}

Информация из базы знаний:
{context}

Предоставь структурированный ответ с конкретными шагами решения.`,

	AssistantKindQA: `Ответь на вопрос на основе предоставленной информации.

Вопрос: {query}

Доступная информация:
{context}

Если информации недостаточно, скажи об этом честно.`,

	AssistantKindAnalyzer: `Проанализируй предоставленную информацию и ответь на запрос.

Запрос: {query}

Контекст:
{context}

Предоставь детальный анализ с выводами.`,

	AssistantKindCustom: `Ты - помощник. Ответь на вопрос пользователя.

Вопрос: {query}

Доступная информация:
{context}

Дай полезный и информативный ответ.`,
}

// IncrementUsage bumps the usage counter
func (t *PromptTemplate) IncrementUsage() error {
	t.UsageCount++
	return db.Model(&PromptTemplate{}).Where("id = ?", t.ID).
		Update("usage_count", gorm.Expr("usage_count + 1")).Error
}

// UpdateRating folds a new 1-5 rating into the rolling average
func (t *PromptTemplate) UpdateRating(rating int) error {
	t.Rating = RollRating(t.Rating, rating)
	return db.Model(&PromptTemplate{}).Where("id = ?", t.ID).
		Update("rating", t.Rating).Error
}
