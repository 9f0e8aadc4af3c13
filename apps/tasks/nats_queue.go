package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/getevo/evo/v2/lib/log"
	"github.com/iesreza/assistant-backend/apps/nats"
	natsio "github.com/nats-io/nats.go"
)

const (
	// ProcessSubject carries chat processing jobs
	ProcessSubject = "chat.tasks.process"
	// WorkerGroup is the queue group name, each job is delivered to one
	// worker across all instances
	WorkerGroup = "chat-workers"
)

// NATSQueue distributes jobs over a NATS queue group
type NATSQueue struct{}

// Enqueue publishes a job for the worker pool. An error means the broker
// rejected or never received the job and the caller should run it inline.
func (NATSQueue) Enqueue(job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if !nats.IsConnected() {
		return fmt.Errorf("NATS not connected")
	}
	return nats.Publish(ProcessSubject, data)
}

// StartWorker subscribes the runner to the job subject. Jobs run in their
// own goroutine so a slow inference call does not stall delivery.
func StartWorker(runner *Runner) (*natsio.Subscription, error) {
	return nats.QueueSubscribe(ProcessSubject, WorkerGroup, func(msg *natsio.Msg) {
		var job Job
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			log.Error("Discarding malformed job: %v", err)
			return
		}
		go func() {
			log.Info("Processing task %s (conversation %d, message %d)", job.TaskID, job.ConversationID, job.MessageID)
			result := runner.Run(job)
			if result.Failed() {
				log.Warning("Task %s failed: %s", job.TaskID, result.Message)
			} else {
				log.Info("Task %s completed (message %d)", job.TaskID, result.MessageID)
			}
		}()
	})
}
