package retrieval

import (
	"github.com/getevo/evo/v2/lib/log"
)

// App represents the retrieval client module
type App struct{}

func (App) Register() error {
	InitClient()
	return nil
}

func (App) Router() error {
	return nil
}

func (App) WhenReady() error {
	log.Info("Retrieval app ready")
	return nil
}

func (App) Name() string {
	return "retrieval"
}
