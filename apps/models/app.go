package models

import (
	"github.com/getevo/evo/v2/lib/args"
	"github.com/getevo/evo/v2/lib/db"
)

type App struct{}

func (a App) Register() error {
	// Register all chat models with GORM
	db.UseModel(Assistant{})
	db.UseModel(PromptTemplate{})
	db.UseModel(AssistantTemplate{})
	db.UseModel(Conversation{})
	db.UseModel(Message{})

	// Settings model
	db.UseModel(Setting{})

	return nil
}

func (a App) Router() error {
	return nil
}

func (a App) WhenReady() error {
	if args.Exists("--migration-do") {
		err := db.DoMigration()
		if err != nil {
			return err
		}
	}
	return nil
}

func (a App) Name() string {
	return "models"
}
