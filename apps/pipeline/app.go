package pipeline

import (
	"sync"

	"github.com/getevo/evo/v2/lib/log"
	"github.com/getevo/evo/v2/lib/settings"
	"github.com/iesreza/assistant-backend/apps/llm"
	"github.com/iesreza/assistant-backend/apps/models"
	"github.com/iesreza/assistant-backend/apps/retrieval"
)

var (
	defaultProcessor *Processor
	defaultLock      sync.RWMutex
)

// Default returns the shared processor wired to the production store and
// service clients.
func Default() *Processor {
	defaultLock.RLock()
	defer defaultLock.RUnlock()
	return defaultProcessor
}

// App represents the message pipeline module
type App struct{}

func (App) Register() error {
	return nil
}

func (App) Router() error {
	return nil
}

func (App) WhenReady() error {
	historyLimit := int(settings.Get("CHAT.HISTORY_LIMIT", 5).Int64())

	// Database-managed default model wins over the compiled-in one
	if name := models.GetSettingValue("llm.model", ""); name != "" {
		fallbackModel = name
	}

	defaultLock.Lock()
	defaultProcessor = NewProcessor(DBStore{}, retrieval.GetClient(), llm.GetClient(), historyLimit)
	defaultLock.Unlock()

	log.Info("Pipeline app ready (history limit: %d)", historyLimit)
	return nil
}

func (App) Name() string {
	return "pipeline"
}
