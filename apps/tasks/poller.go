package tasks

import (
	"fmt"

	"github.com/getevo/evo/v2/lib/log"
	"github.com/iesreza/assistant-backend/apps/models"
	"github.com/iesreza/assistant-backend/apps/pipeline"
)

// StatusReport is the client-facing view of a submitted task
type StatusReport struct {
	Status             string  `json:"status"`
	Message            string  `json:"message"`
	MessageID          uint    `json:"message_id,omitempty"`
	Progress           int     `json:"progress"`
	SearchResultsCount int     `json:"search_results_count,omitempty"`
	TokensUsed         int     `json:"tokens_used,omitempty"`
	ProcessingTime     float64 `json:"processing_time,omitempty"`
}

// Poller answers task status polls. The state store is the primary source,
// the database and a last-resort inline re-run cover a lost broker.
type Poller struct {
	States StateStore
	Store  pipeline.Store
	Runner *Runner
}

// Status reports the state of a task. messageID is the originating user
// message and is optional, zero disables the database fallbacks.
func (p *Poller) Status(taskID string, messageID uint) StatusReport {
	state, ok := p.States.Load(taskID)
	if !ok {
		// The task backend lost (or never saw) this task. A persisted reply
		// means a worker finished it anyway.
		if report, found := p.persistedReply(messageID); found {
			return report
		}
		// Neither a live task nor a persisted reply: re-run inline once so
		// the client does not hang on a dead task.
		if report, found := p.rerun(taskID, messageID); found {
			return report
		}
		return pendingReport()
	}

	switch state.Status {
	case StatusPending:
		if report, found := p.persistedReply(messageID); found {
			return report
		}
		return pendingReport()

	case StatusProgress:
		return StatusReport{
			Status:   StatusProgress,
			Progress: state.Progress,
			Message:  state.Message,
		}

	case StatusSuccess:
		message := state.Message
		replyID := state.MessageID
		if message == "" && replyID != 0 {
			// The worker reported success without retaining the payload,
			// load the reply from the database.
			if reply, err := p.Store.Message(replyID); err == nil && reply != nil && reply.Role == models.MessageRoleAssistant {
				message = reply.Content
			}
		}
		if message == "" {
			message = "Готово"
		}
		return StatusReport{
			Status:             StatusSuccess,
			Message:            message,
			MessageID:          replyID,
			SearchResultsCount: state.SearchResultsCount,
			TokensUsed:         state.TokensUsed,
			ProcessingTime:     state.ProcessingTime,
		}

	case StatusError:
		message := state.Message
		if message == "" {
			message = "Неизвестная ошибка"
		}
		return StatusReport{Status: StatusError, Message: message}

	default:
		return StatusReport{
			Status:  StatusUnknown,
			Message: fmt.Sprintf("Неизвестный статус: %s", state.Status),
		}
	}
}

// persistedReply looks for an assistant reply created at or after the user
// message, which means some worker already completed the job.
func (p *Poller) persistedReply(messageID uint) (StatusReport, bool) {
	if messageID == 0 {
		return StatusReport{}, false
	}

	userMessage, err := p.Store.Message(messageID)
	if err != nil || userMessage == nil {
		return StatusReport{}, false
	}

	reply, err := p.Store.ReplySince(userMessage.ConversationID, userMessage.CreatedAt)
	if err != nil || reply == nil {
		return StatusReport{}, false
	}

	log.Info("Poll for message %d answered from persisted reply %d", messageID, reply.ID)
	return StatusReport{
		Status:    StatusSuccess,
		Message:   reply.Content,
		MessageID: reply.ID,
	}, true
}

// rerun executes the pipeline inline as a last resort for a lost task
func (p *Poller) rerun(taskID string, messageID uint) (StatusReport, bool) {
	if messageID == 0 {
		return StatusReport{}, false
	}

	userMessage, err := p.Store.Message(messageID)
	if err != nil || userMessage == nil {
		return StatusReport{}, false
	}

	log.Warning("Task %s lost, re-running pipeline for message %d inline", taskID, messageID)
	result := p.Runner.Run(Job{
		TaskID:         taskID,
		ConversationID: userMessage.ConversationID,
		MessageID:      messageID,
	})
	if result.Failed() {
		log.Warning("Inline re-run for message %d failed: %s", messageID, result.Message)
		return StatusReport{}, false
	}

	return StatusReport{
		Status:             StatusSuccess,
		Message:            result.Message,
		MessageID:          result.MessageID,
		SearchResultsCount: result.SearchResultsCount,
		TokensUsed:         result.TokensUsed,
		ProcessingTime:     result.ProcessingTime,
	}, true
}

func pendingReport() StatusReport {
	return StatusReport{
		Status:   StatusPending,
		Progress: 0,
		Message:  "Задача ожидает выполнения...",
	}
}
