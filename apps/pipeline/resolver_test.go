package pipeline

import (
	"strings"
	"testing"

	"github.com/iesreza/assistant-backend/apps/models"
	"gorm.io/datatypes"
)

func TestResolveModelExplicitTemplate(t *testing.T) {
	assistant := &models.Assistant{LLMModel: "assistant-model"}
	explicit := &models.PromptTemplate{Tags: datatypes.JSON(`["support","llm:qwen2:72b"]`)}

	if got := ResolveModel(assistant, explicit); got != "qwen2:72b" {
		t.Errorf("explicit template tag must win, got %q", got)
	}
}

func TestResolveModelExplicitWithoutTagSkipsAttached(t *testing.T) {
	assistant := &models.Assistant{
		LLMModel:  "assistant-model",
		Templates: []models.PromptTemplate{{Tags: datatypes.JSON(`["llm:attached-model"]`)}},
	}
	explicit := &models.PromptTemplate{Tags: datatypes.JSON(`["no-model-here"]`)}

	// An explicit selection without a tag falls to the assistant model,
	// not to other attached templates
	if got := ResolveModel(assistant, explicit); got != "assistant-model" {
		t.Errorf("attached templates must not be scanned after an explicit selection, got %q", got)
	}
}

func TestResolveModelAttachedTemplates(t *testing.T) {
	assistant := &models.Assistant{
		LLMModel: "assistant-model",
		Templates: []models.PromptTemplate{
			{Tags: datatypes.JSON(`["plain"]`)},
			{Tags: datatypes.JSON(`["llm:first-tagged"]`)},
			{Tags: datatypes.JSON(`["llm:second-tagged"]`)},
		},
	}

	if got := ResolveModel(assistant, nil); got != "first-tagged" {
		t.Errorf("first tagged attached template must win, got %q", got)
	}
}

func TestResolveModelAssistantFallback(t *testing.T) {
	assistant := &models.Assistant{LLMModel: "gemma2:9b"}
	if got := ResolveModel(assistant, nil); got != "gemma2:9b" {
		t.Errorf("assistant model expected, got %q", got)
	}
}

func TestResolveModelDefault(t *testing.T) {
	if got := ResolveModel(&models.Assistant{}, nil); got != models.DefaultModel {
		t.Errorf("default model expected, got %q", got)
	}
	if got := ResolveModel(nil, nil); got != models.DefaultModel {
		t.Errorf("nil assistant resolves to the default model, got %q", got)
	}
}

func TestResolveModelConfiguredFallback(t *testing.T) {
	// The last tier is tunable at runtime from the llm.model setting
	old := fallbackModel
	fallbackModel = "llama3:8b"
	defer func() { fallbackModel = old }()

	if got := ResolveModel(&models.Assistant{}, nil); got != "llama3:8b" {
		t.Errorf("configured fallback model expected, got %q", got)
	}
}

func TestResolveModelMalformedTags(t *testing.T) {
	assistant := &models.Assistant{
		LLMModel:  "assistant-model",
		Templates: []models.PromptTemplate{{Tags: datatypes.JSON(`{broken`)}},
	}
	if got := ResolveModel(assistant, nil); got != "assistant-model" {
		t.Errorf("malformed tags must fall through, got %q", got)
	}
}

func TestSystemPrompt(t *testing.T) {
	assistant := &models.Assistant{Name: "Поддержка", Kind: models.AssistantKindSupport}
	prompt := SystemPrompt(assistant)
	if !strings.Contains(prompt, "«Поддержка»") {
		t.Errorf("support prompt must interpolate the assistant name: %q", prompt)
	}

	anonymous := &models.Assistant{Kind: models.AssistantKindSupport}
	prompt = SystemPrompt(anonymous)
	if strings.Contains(prompt, "«") {
		t.Errorf("empty name must not render the quoted block: %q", prompt)
	}

	custom := &models.Assistant{Kind: models.AssistantKindQA, SystemPrompt: "Отвечай кратко."}
	if got := SystemPrompt(custom); got != "Отвечай кратко." {
		t.Errorf("configured prompt must be used as-is, got %q", got)
	}

	broken := &models.Assistant{Kind: models.AssistantKindQA, SystemPrompt: "{{if}} broken"}
	if got := SystemPrompt(broken); got != "{{if}} broken" {
		t.Errorf("a broken template is returned verbatim, got %q", got)
	}

	if SystemPrompt(nil) != "" {
		t.Error("nil assistant yields an empty system prompt")
	}
}
