package chat

import (
	"github.com/getevo/evo/v2"
	"github.com/getevo/evo/v2/lib/log"
	"github.com/iesreza/assistant-backend/apps/redis"
)

// App represents the chat HTTP API module
type App struct{}

func (App) Register() error {
	return nil
}

func (App) Router() error {
	var controller Controller

	evo.Use("/api/chat", redis.EvoRateLimitMiddleware("chat"))

	evo.Get("/api/chat/assistants", controller.ListAssistants)
	evo.Post("/api/chat/conversations/open", controller.OpenConversation)
	evo.Get("/api/chat/conversations", controller.ListConversations)
	evo.Get("/api/chat/conversations/:conversation_id/messages", controller.GetMessages)
	evo.Post("/api/chat/conversations/:conversation_id/clear", controller.ClearConversation)
	evo.Post("/api/chat/send", controller.SendMessage)
	evo.Get("/api/chat/tasks/:task_id", controller.TaskStatus)
	evo.Post("/api/chat/messages/:message_id/rate", controller.RateMessage)
	evo.Get("/api/chat/diagnostics", controller.Diagnostics)

	return nil
}

func (App) WhenReady() error {
	log.Info("Chat app ready")
	return nil
}

func (App) Name() string {
	return "chat"
}
