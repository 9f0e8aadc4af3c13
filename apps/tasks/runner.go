package tasks

import (
	"github.com/getevo/evo/v2/lib/log"
	"github.com/iesreza/assistant-backend/apps/pipeline"
)

// Runner executes jobs against the message pipeline and mirrors their
// lifecycle into the state store.
type Runner struct {
	Processor *pipeline.Processor
	States    StateStore
}

// Run executes one job to completion and returns the pipeline outcome
func (r *Runner) Run(job Job) pipeline.Result {
	r.save(State{
		TaskID:         job.TaskID,
		ConversationID: job.ConversationID,
		UserMessageID:  job.MessageID,
		Status:         StatusProgress,
		Progress:       5,
		Message:        "Старт...",
	})

	result := r.Processor.Process(job.ConversationID, job.MessageID, job.TemplateID)

	if result.Failed() {
		r.save(State{
			TaskID:         job.TaskID,
			ConversationID: job.ConversationID,
			UserMessageID:  job.MessageID,
			Status:         StatusError,
			Message:        result.Message,
		})
		return result
	}

	r.save(State{
		TaskID:             job.TaskID,
		ConversationID:     job.ConversationID,
		UserMessageID:      job.MessageID,
		Status:             StatusSuccess,
		Progress:           100,
		Message:            result.Message,
		MessageID:          result.MessageID,
		SearchResultsCount: result.SearchResultsCount,
		TokensUsed:         result.TokensUsed,
		ProcessingTime:     result.ProcessingTime,
	})
	return result
}

func (r *Runner) save(state State) {
	if err := r.States.Save(state); err != nil {
		log.Warning("Failed to save task state %s: %v", state.TaskID, err)
	}
}
