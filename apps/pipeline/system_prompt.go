package pipeline

import (
	"bytes"

	"github.com/CloudyKit/jet/v6"
	"github.com/getevo/evo/v2/lib/log"
	"github.com/iesreza/assistant-backend/apps/models"
)

// Built-in system prompts per assistant kind. They are Jet templates so
// deployments can reference assistant fields in custom prompts too.
var defaultSystemPrompts = map[string]string{
	models.AssistantKindSupport: `Ты - эксперт службы поддержки{{if AssistantName != ""}} «{{AssistantName}}»{{end}}. Помогай пользователям решать их проблемы на основе базы знаний.
Будь вежливым, профессиональным и конкретным в своих ответах.
Если информации недостаточно, попроси уточнить детали.`,

	models.AssistantKindQA: `Ты - помощник для ответов на вопросы. Отвечай точно и по существу на основе предоставленной информации.
Если не знаешь ответ, честно скажи об этом.`,

	models.AssistantKindAnalyzer: `Ты - аналитический помощник. Анализируй документы и извлекай нужную информацию.
Структурируй ответы и выделяй ключевые моменты.`,

	models.AssistantKindCustom: `Ты - универсальный помощник. Помогай пользователям с их запросами.`,
}

// SystemPrompt returns the rendered system prompt of an assistant: its own
// configured prompt when set, otherwise the built-in default of its kind.
func SystemPrompt(assistant *models.Assistant) string {
	if assistant == nil {
		return ""
	}

	source := assistant.SystemPrompt
	if source == "" {
		var ok bool
		source, ok = defaultSystemPrompts[assistant.Kind]
		if !ok {
			source = defaultSystemPrompts[models.AssistantKindCustom]
		}
	}

	return renderSystemPrompt(source, assistant)
}

// renderSystemPrompt renders the prompt source as a Jet template. A
// template that fails to parse or render is returned verbatim, a broken
// prompt must not break the pipeline.
func renderSystemPrompt(source string, assistant *models.Assistant) string {
	loader := jet.NewInMemLoader()
	loader.Set("prompt", source)

	set := jet.NewSet(loader)
	tmpl, err := set.GetTemplate("prompt")
	if err != nil {
		log.Debug("System prompt template parse failed: %v", err)
		return source
	}

	vars := make(jet.VarMap)
	vars.Set("AssistantName", assistant.Name)
	vars.Set("AssistantKind", assistant.Kind)
	vars.Set("AssistantDescription", assistant.Description)
	vars.Set("Model", assistant.LLMModel)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars, nil); err != nil {
		log.Debug("System prompt template render failed: %v", err)
		return source
	}

	return buf.String()
}
