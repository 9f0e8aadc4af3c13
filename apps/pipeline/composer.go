package pipeline

import (
	"fmt"
	"strings"

	"github.com/iesreza/assistant-backend/apps/models"
	"github.com/iesreza/assistant-backend/apps/retrieval"
)

const (
	// NoContextPlaceholder replaces the {context} block when neither search
	// results nor history exist
	NoContextPlaceholder = "Информация не найдена в базе знаний."

	historyHeader = "История диалога:"

	maxContextResults = 5
	maxSnippetLength  = 500
)

// FormatSearchContext renders retrieval records as labeled document blocks.
// Only the first maxResults records are used, snippet text is truncated to
// 500 characters. An empty input yields an empty string.
func FormatSearchContext(records []retrieval.Record, maxResults int) string {
	if len(records) == 0 {
		return ""
	}
	if maxResults <= 0 {
		maxResults = maxContextResults
	}
	if len(records) > maxResults {
		records = records[:maxResults]
	}

	var parts []string
	for i, record := range records {
		var b strings.Builder
		fmt.Fprintf(&b, "[Документ %d]\n", i+1)
		if record.Metadata.DocumentID != "" {
			fmt.Fprintf(&b, "Источник: %s\n", record.Metadata.DocumentID)
		}
		if record.Metadata.PageNumber != 0 {
			fmt.Fprintf(&b, "Страница: %d\n", record.Metadata.PageNumber)
		}
		fmt.Fprintf(&b, "Текст: %s...", truncateRunes(record.Text, maxSnippetLength))
		parts = append(parts, b.String())
	}

	return strings.Join(parts, "\n\n")
}

// FormatHistory renders conversation history as "Role: content" lines.
// System messages are excluded, the input is expected in ascending
// chronological order.
func FormatHistory(messages []models.Message) string {
	var lines []string
	for _, message := range messages {
		switch message.Role {
		case models.MessageRoleUser:
			lines = append(lines, "User: "+message.Content)
		case models.MessageRoleAssistant:
			lines = append(lines, "Assistant: "+message.Content)
		}
	}
	return strings.Join(lines, "\n")
}

// Compose builds the final prompt from the template body, the user query,
// the formatted search context and history, and an optional system prompt.
// The template body must contain both {query} and {context} placeholders,
// a missing placeholder is a hard error.
func Compose(templateBody string, query string, searchContext string, history string, systemPrompt string) (string, error) {
	if !strings.Contains(templateBody, "{query}") {
		return "", fmt.Errorf("prompt template is missing the {query} placeholder")
	}
	if !strings.Contains(templateBody, "{context}") {
		return "", fmt.Errorf("prompt template is missing the {context} placeholder")
	}

	context := searchContext
	if history != "" {
		context = historyHeader + "\n" + history + "\n\n" + context
	}
	if context == "" {
		context = NoContextPlaceholder
	}

	// Single-pass substitution: placeholder-like text inside the user query
	// or the context must come through verbatim, never re-substituted
	prompt := strings.NewReplacer("{query}", query, "{context}", context).Replace(templateBody)

	if systemPrompt != "" {
		prompt = systemPrompt + "\n\n" + prompt
	}

	return prompt, nil
}

// ResolveTemplateBody picks the template body to compose with: the explicit
// per-call template, then the assistant's first attached template, then the
// built-in default for the assistant's kind.
func ResolveTemplateBody(assistant *models.Assistant, explicit *models.PromptTemplate) string {
	if explicit != nil && explicit.PromptBody() != "" {
		return explicit.PromptBody()
	}
	if assistant != nil {
		for i := range assistant.Templates {
			if body := assistant.Templates[i].PromptBody(); body != "" {
				return body
			}
		}
	}
	kind := models.AssistantKindCustom
	if assistant != nil && assistant.Kind != "" {
		kind = assistant.Kind
	}
	return models.DefaultPromptBody(kind)
}

// truncateRunes shortens s to at most n runes
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
