package pipeline

import (
	"github.com/iesreza/assistant-backend/apps/models"
)

// fallbackModel is the last-resort model. Overridden from the llm.model
// database setting when the app starts.
var fallbackModel = models.DefaultModel

// ResolveModel picks the inference model for a message. Priority, first
// match wins:
//  1. the explicitly selected template's llm: tag
//  2. when no template was selected, the first llm: tag found scanning the
//     assistant's attached templates in stored order
//  3. the assistant's configured model
//  4. the fallback model
//
// Resolution never fails, malformed tag lists simply fall through to the
// next tier.
func ResolveModel(assistant *models.Assistant, explicit *models.PromptTemplate) string {
	if explicit != nil {
		if tag := explicit.ModelTag(); tag != "" {
			return tag
		}
	} else if assistant != nil {
		for i := range assistant.Templates {
			if tag := assistant.Templates[i].ModelTag(); tag != "" {
				return tag
			}
		}
	}

	if assistant != nil && assistant.LLMModel != "" {
		return assistant.LLMModel
	}

	return fallbackModel
}
