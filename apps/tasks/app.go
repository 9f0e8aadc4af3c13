package tasks

import (
	"sync"

	"github.com/getevo/evo/v2/lib/log"
	"github.com/getevo/evo/v2/lib/settings"
	"github.com/iesreza/assistant-backend/apps/pipeline"
)

var (
	submission *Submission
	poller     *Poller
	lock       sync.RWMutex
)

// GetSubmission returns the shared submission service
func GetSubmission() *Submission {
	lock.RLock()
	defer lock.RUnlock()
	return submission
}

// GetPoller returns the shared status poller
func GetPoller() *Poller {
	lock.RLock()
	defer lock.RUnlock()
	return poller
}

// App represents the background task module
type App struct{}

func (App) Register() error {
	return nil
}

func (App) Router() error {
	return nil
}

// WhenReady wires the queue, worker and poller. Runs after the pipeline
// app so the shared processor exists.
func (App) WhenReady() error {
	claimTTL, err := settings.Get("CHAT.TASK_CLAIM_TTL", "10m").Duration()
	if err != nil || claimTTL <= 0 {
		claimTTL = DefaultClaimTTL
	}

	states := NewStateStore()
	runner := &Runner{
		Processor: pipeline.Default(),
		States:    states,
	}

	lock.Lock()
	submission = &Submission{
		Queue:    NATSQueue{},
		Runner:   runner,
		States:   states,
		ClaimTTL: claimTTL,
	}
	poller = &Poller{
		States: states,
		Store:  pipeline.DBStore{},
		Runner: runner,
	}
	lock.Unlock()

	if settings.Get("CHAT.WORKER_ENABLED", true).Bool() {
		if _, err := StartWorker(runner); err != nil {
			// Submissions still work, they degrade to inline execution
			log.Warning("Failed to start task worker: %v", err)
		} else {
			log.Info("Task worker subscribed to %s (group %s)", ProcessSubject, WorkerGroup)
		}
	}

	log.Info("Tasks app ready")
	return nil
}

func (App) Name() string {
	return "tasks"
}
