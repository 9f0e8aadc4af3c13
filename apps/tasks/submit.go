package tasks

import (
	"time"

	"github.com/getevo/evo/v2/lib/log"
	"github.com/google/uuid"
	"github.com/iesreza/assistant-backend/apps/pipeline"
)

// DefaultClaimTTL bounds how long a user message stays reserved against
// duplicate submission.
const DefaultClaimTTL = 10 * time.Minute

// Submission accepts user messages for processing, either inline or
// through the queue.
type Submission struct {
	Queue    Queue
	Runner   *Runner
	States   StateStore
	ClaimTTL time.Duration
}

// Outcome describes how a submission was handled. Async outcomes carry a
// task handle to poll, sync outcomes carry the finished pipeline result.
type Outcome struct {
	TaskID    string
	Async     bool
	Duplicate bool
	Result    *pipeline.Result
}

// Submit runs the pipeline for a persisted user message. In async mode the
// job goes through the queue and a task handle is returned immediately; a
// broker failure transparently degrades to inline execution. A message
// already claimed by a live task is not resubmitted, the existing task
// handle is returned instead.
func (s *Submission) Submit(conversationID uint, messageID uint, templateID uint, async bool) Outcome {
	taskID := uuid.NewString()

	ttl := s.ClaimTTL
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	existing, claimed := s.States.ClaimMessage(messageID, taskID, ttl)
	if !claimed {
		log.Info("Message %d already claimed by task %s", messageID, existing)
		return Outcome{TaskID: existing, Async: true, Duplicate: true}
	}

	job := Job{
		TaskID:         taskID,
		ConversationID: conversationID,
		MessageID:      messageID,
		TemplateID:     templateID,
	}

	if !async {
		result := s.Runner.Run(job)
		return Outcome{TaskID: taskID, Result: &result}
	}

	if err := s.States.Save(State{
		TaskID:         taskID,
		ConversationID: conversationID,
		UserMessageID:  messageID,
		Status:         StatusPending,
		Message:        "Задача ожидает выполнения...",
	}); err != nil {
		log.Warning("Failed to save pending state for task %s: %v", taskID, err)
	}

	if err := s.Queue.Enqueue(job); err != nil {
		log.Warning("Queue unavailable, processing message %d synchronously: %v", messageID, err)
		result := s.Runner.Run(job)
		return Outcome{TaskID: taskID, Result: &result}
	}

	log.Info("Task %s scheduled for message %d", taskID, messageID)
	return Outcome{TaskID: taskID, Async: true}
}
