package auth

import (
	"github.com/getevo/evo/v2"
	"github.com/getevo/evo/v2/lib/db"
	"github.com/iesreza/assistant-backend/apps/redis"
)

type App struct {
}

func (a App) Register() error {
	db.UseModel(User{})

	// Set user interface for Evo framework
	evo.SetUserInterface(&User{})

	// Initialize JWT secret after settings are loaded
	InitializeJWTSecret()

	return nil
}

func (a App) Router() error {
	var controller Controller
	evo.Use("/api/auth", redis.EvoRateLimitMiddleware("auth"))
	evo.Post("/api/auth/login", controller.LoginHandler)
	evo.Post("/api/auth/register", controller.RegisterHandler)
	evo.Get("/api/auth/profile", controller.ProfileHandler)
	return nil
}

func (a App) WhenReady() error {
	return nil
}

func (a App) Name() string {
	return "auth"
}
