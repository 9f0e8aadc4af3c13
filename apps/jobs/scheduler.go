package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/getevo/evo/v2/lib/db"
	"github.com/getevo/evo/v2/lib/log"
	"github.com/iesreza/assistant-backend/apps/redis"
	"github.com/robfig/cron/v3"
)

// Definition is one schedulable maintenance job
type Definition struct {
	Name     string
	Schedule string // cron expression
	Handler  func() error
}

// Scheduler runs registered jobs on their cron schedules. A Redis lock
// per job keeps multi-instance deployments from running the same job
// concurrently.
type Scheduler struct {
	cron *cron.Cron
	defs []Definition
}

func NewScheduler(defs []Definition) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		defs: defs,
	}
}

// Start schedules every definition and starts the cron loop
func (s *Scheduler) Start() error {
	for _, def := range s.defs {
		def := def
		if _, err := s.cron.AddFunc(def.Schedule, func() {
			s.execute(def)
		}); err != nil {
			return fmt.Errorf("failed to schedule job %s: %w", def.Name, err)
		}
		log.Info("Scheduled job %s (%s)", def.Name, def.Schedule)
	}
	s.cron.Start()
	return nil
}

// Stop stops the cron loop and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) execute(def Definition) {
	if !acquireLock(def.Name, 10*time.Minute) {
		log.Debug("Job %s is running on another instance, skipping", def.Name)
		return
	}
	defer releaseLock(def.Name)

	execution := JobExecution{
		JobName: def.Name,
		Status:  ExecutionStatusRunning,
	}
	if err := db.Create(&execution).Error; err != nil {
		log.Warning("Failed to record job execution: %v", err)
	}

	started := time.Now()
	err := def.Handler()
	finished := time.Now()

	execution.FinishedAt = &finished
	execution.Duration = finished.Sub(started).Seconds()
	if err != nil {
		execution.Status = ExecutionStatusFailed
		execution.Error = err.Error()
		log.Error("Job %s failed after %.2fs: %v", def.Name, execution.Duration, err)
	} else {
		execution.Status = ExecutionStatusSuccess
		log.Info("Job %s finished in %.2fs", def.Name, execution.Duration)
	}

	if execution.ID != 0 {
		if err := db.Save(&execution).Error; err != nil {
			log.Warning("Failed to update job execution: %v", err)
		}
	}
}

// acquireLock takes the distributed job lock. Without Redis the lock is
// granted, single-instance deployments need no coordination.
func acquireLock(jobName string, ttl time.Duration) bool {
	if redis.Client == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ok, err := redis.Client.SetNX(ctx, "jobs:lock:"+jobName, time.Now().Unix(), ttl).Result()
	if err != nil {
		log.Warning("Failed to acquire lock for job %s: %v", jobName, err)
		return true
	}
	return ok
}

func releaseLock(jobName string) {
	if redis.Client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	redis.Client.Del(ctx, "jobs:lock:"+jobName)
}
