package livechat

import (
	"time"

	"github.com/getevo/evo/v2"
	"github.com/getevo/evo/v2/lib/log"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/iesreza/assistant-backend/apps/redis"
)

// App represents the livechat WebSocket module
type App struct{}

func (App) Register() error {
	return nil
}

func (App) Router() error {
	app := evo.GetFiber()

	app.Use("/ws", redis.RateLimitByIP(60, time.Minute))
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/conversations/:conversation_id/:token", websocket.New(HandleWebSocket))

	return nil
}

func (App) WhenReady() error {
	log.Info("Livechat app ready")
	return nil
}

func (App) Name() string {
	return "livechat"
}
