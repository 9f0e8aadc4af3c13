package main

import (
	"github.com/getevo/evo/v2"
	"github.com/getevo/evo/v2/lib/application"
	"github.com/iesreza/assistant-backend/apps/auth"
	"github.com/iesreza/assistant-backend/apps/chat"
	"github.com/iesreza/assistant-backend/apps/jobs"
	"github.com/iesreza/assistant-backend/apps/livechat"
	"github.com/iesreza/assistant-backend/apps/llm"
	"github.com/iesreza/assistant-backend/apps/models"
	"github.com/iesreza/assistant-backend/apps/nats"
	"github.com/iesreza/assistant-backend/apps/pipeline"
	"github.com/iesreza/assistant-backend/apps/redis"
	"github.com/iesreza/assistant-backend/apps/retrieval"
	"github.com/iesreza/assistant-backend/apps/system"
	"github.com/iesreza/assistant-backend/apps/tasks"
)

func main() {
	evo.Setup()

	var apps = application.GetInstance()
	apps.Register(system.App{}, auth.App{}, models.App{}, nats.App{}, redis.App{}, retrieval.App{}, llm.App{}, pipeline.App{}, tasks.App{}, chat.App{}, livechat.App{}, jobs.App{})

	evo.Run()
}
