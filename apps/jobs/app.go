package jobs

import (
	"github.com/getevo/evo/v2/lib/db"
	"github.com/getevo/evo/v2/lib/log"
	"github.com/getevo/evo/v2/lib/settings"
)

var scheduler *Scheduler

// App represents the scheduled maintenance module
type App struct{}

func (App) Register() error {
	db.UseModel(JobExecution{})
	return nil
}

func (App) Router() error {
	return nil
}

func (App) WhenReady() error {
	if !settings.Get("JOBS.ENABLED", true).Bool() {
		log.Info("Jobs scheduler disabled")
		return nil
	}

	scheduler = NewScheduler(Definitions())
	if err := scheduler.Start(); err != nil {
		log.Error("Failed to start jobs scheduler: %v", err)
		return err
	}

	log.Info("Jobs app ready")
	return nil
}

func (App) Name() string {
	return "jobs"
}

// Shutdown stops the scheduler and waits for in-flight jobs
func (App) Shutdown() error {
	if scheduler != nil {
		scheduler.Stop()
	}
	return nil
}
