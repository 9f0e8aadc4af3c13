package tasks

import (
	"time"
)

// Task status values as observed by polling clients
const (
	StatusPending  = "pending"
	StatusProgress = "progress"
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusUnknown  = "unknown"
)

// Job is one unit of background work: run the message pipeline for an
// already-persisted user message.
type Job struct {
	TaskID         string `json:"task_id"`
	ConversationID uint   `json:"conversation_id"`
	MessageID      uint   `json:"message_id"`
	TemplateID     uint   `json:"template_id,omitempty"`
}

// State is the live status of a submitted job as the worker reports it
type State struct {
	TaskID             string    `json:"task_id"`
	ConversationID     uint      `json:"conversation_id"`
	UserMessageID      uint      `json:"user_message_id"`
	Status             string    `json:"status"`
	Progress           int       `json:"progress"`
	Message            string    `json:"message"`
	MessageID          uint      `json:"message_id,omitempty"`
	SearchResultsCount int       `json:"search_results_count"`
	TokensUsed         int       `json:"tokens_used"`
	ProcessingTime     float64   `json:"processing_time"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Queue hands jobs to the worker pool. Enqueue failures are surfaced so
// the submitter can fall back to synchronous execution.
type Queue interface {
	Enqueue(job Job) error
}

// StateStore persists task states for the poller. A lost or expired state
// is not an error, the poller has database fallbacks.
type StateStore interface {
	Save(state State) error
	Load(taskID string) (*State, bool)
	// ClaimMessage reserves a user message for a task. When the message is
	// already claimed, the existing task identifier is returned and claimed
	// is false. The claim expires after ttl.
	ClaimMessage(messageID uint, taskID string, ttl time.Duration) (existing string, claimed bool)
}
