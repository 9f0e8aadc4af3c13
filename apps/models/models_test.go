package models

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

func TestSearchEligible(t *testing.T) {
	cases := []struct {
		name      string
		assistant Assistant
		want      bool
	}{
		{"indexed with search", Assistant{EnableSearch: true, Status: AssistantStatusIndexed}, true},
		{"analyzed with search", Assistant{EnableSearch: true, Status: AssistantStatusAnalyzed}, true},
		{"search disabled", Assistant{EnableSearch: false, Status: AssistantStatusIndexed}, false},
		{"still indexing", Assistant{EnableSearch: true, Status: AssistantStatusIndexing}, false},
		{"just created", Assistant{EnableSearch: true, Status: AssistantStatusCreated}, false},
		{"errored", Assistant{EnableSearch: true, Status: AssistantStatusError}, false},
	}

	for _, c := range cases {
		if got := c.assistant.SearchEligible(); got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}

func TestCanUserAccess(t *testing.T) {
	owner := uuid.New()
	other := uuid.New()

	public := Assistant{IsPublic: true}
	if !public.CanUserAccess(other) || !public.CanUserAccess(uuid.Nil) {
		t.Error("public assistants are accessible to everyone")
	}

	private := Assistant{UserID: &owner}
	if !private.CanUserAccess(owner) {
		t.Error("the owner must have access")
	}
	if private.CanUserAccess(other) || private.CanUserAccess(uuid.Nil) {
		t.Error("private assistants are owner-only")
	}

	orphan := Assistant{}
	if orphan.CanUserAccess(other) {
		t.Error("a private assistant without an owner is inaccessible")
	}
}

func TestRollRating(t *testing.T) {
	if got := RollRating(0, 4); got != 4 {
		t.Errorf("first rating is taken as-is, got %f", got)
	}
	if got := RollRating(4, 5); math.Abs(got-4.1) > 1e-9 {
		t.Errorf("expected 4*0.9+5*0.1 = 4.1, got %f", got)
	}
}

func TestTagList(t *testing.T) {
	empty := PromptTemplate{}
	if empty.TagList() != nil {
		t.Error("no tags must yield nil")
	}

	broken := PromptTemplate{Tags: datatypes.JSON(`{not an array`)}
	if broken.TagList() != nil {
		t.Error("malformed tags must yield nil, not an error")
	}

	ok := PromptTemplate{Tags: datatypes.JSON(`["support","llm:gemma3:27b"]`)}
	tags := ok.TagList()
	if len(tags) != 2 || tags[0] != "support" {
		t.Errorf("unexpected tags: %v", tags)
	}
}

func TestModelTag(t *testing.T) {
	tagged := PromptTemplate{Tags: datatypes.JSON(`["support","llm:gemma3:27b","llm:other"]`)}
	if got := tagged.ModelTag(); got != "gemma3:27b" {
		t.Errorf("first llm tag wins, got %q", got)
	}

	plain := PromptTemplate{Tags: datatypes.JSON(`["support"]`)}
	if plain.ModelTag() != "" {
		t.Error("no llm tag means empty model")
	}
}

func TestPromptBody(t *testing.T) {
	custom := PromptTemplate{Kind: AssistantKindQA, Body: "свой текст {query} {context}"}
	if got := custom.PromptBody(); got != custom.Body {
		t.Errorf("stored body wins, got %q", got)
	}

	blank := PromptTemplate{Kind: AssistantKindQA, Body: "   "}
	if got := blank.PromptBody(); got != DefaultPromptBody(AssistantKindQA) {
		t.Errorf("blank body falls back to the kind default, got %q", got)
	}
}

func TestDefaultPromptBody(t *testing.T) {
	for _, kind := range []string{AssistantKindSupport, AssistantKindQA, AssistantKindAnalyzer, AssistantKindCustom} {
		body := DefaultPromptBody(kind)
		if !strings.Contains(body, "{query}") || !strings.Contains(body, "{context}") {
			t.Errorf("default body for %s must carry both placeholders", kind)
		}
	}
	if DefaultPromptBody("bogus") != DefaultPromptBody(AssistantKindCustom) {
		t.Error("unknown kinds map to the custom default")
	}
}

func TestMessageCreatedEvent(t *testing.T) {
	msg := Message{ID: 7, ConversationID: 42, Role: MessageRoleAssistant, Content: "Готово"}

	subject, data := msg.CreatedEvent()
	if subject != "conversation.42" {
		t.Errorf("subject must address the conversation channel, got %q", subject)
	}

	var payload struct {
		Event   string  `json:"event"`
		Message Message `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Event != "message.created" {
		t.Errorf("unexpected event name %q", payload.Event)
	}
	if payload.Message.ID != 7 || payload.Message.Content != "Готово" {
		t.Errorf("payload must carry the message, got %+v", payload.Message)
	}
}
