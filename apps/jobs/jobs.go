package jobs

import (
	"time"

	"github.com/getevo/evo/v2/lib/db"
	"github.com/getevo/evo/v2/lib/log"
	"github.com/getevo/evo/v2/lib/settings"
	"github.com/iesreza/assistant-backend/apps/models"
)

// Definitions returns the built-in maintenance jobs
func Definitions() []Definition {
	return []Definition{
		{
			Name:     "conversations.archive-stale",
			Schedule: "0 3 * * *",
			Handler:  archiveStaleConversations,
		},
		{
			Name:     "conversations.purge-deleted",
			Schedule: "30 3 * * *",
			Handler:  purgeDeletedConversations,
		},
		{
			Name:     "jobs.cleanup-executions",
			Schedule: "0 4 * * 0",
			Handler:  cleanupExecutions,
		},
	}
}

// archiveStaleConversations archives active conversations with no
// messages for CHAT.STALE_AFTER (default 30 days).
func archiveStaleConversations() error {
	staleAfter, err := settings.Get("CHAT.STALE_AFTER", "720h").Duration()
	if err != nil || staleAfter <= 0 {
		staleAfter = 30 * 24 * time.Hour
	}
	cutoff := time.Now().Add(-staleAfter)

	result := db.Model(&models.Conversation{}).
		Where("status = ?", models.ConversationStatusActive).
		Where("COALESCE(last_message_at, created_at) < ?", cutoff).
		Update("status", models.ConversationStatusArchived)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		log.Info("Archived %d stale conversations", result.RowsAffected)
	}
	return nil
}

// purgeDeletedConversations hard-deletes conversations marked deleted
// more than 30 days ago, messages first.
func purgeDeletedConversations() error {
	cutoff := time.Now().Add(-30 * 24 * time.Hour)

	var ids []uint
	err := db.Model(&models.Conversation{}).
		Where("status = ? AND updated_at < ?", models.ConversationStatusDeleted, cutoff).
		Pluck("id", &ids).Error
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	if err := db.Where("conversation_id IN (?)", ids).Delete(&models.Message{}).Error; err != nil {
		return err
	}
	if err := db.Where("id IN (?)", ids).Delete(&models.Conversation{}).Error; err != nil {
		return err
	}

	log.Info("Purged %d deleted conversations", len(ids))
	return nil
}

// cleanupExecutions trims job execution history older than 14 days
func cleanupExecutions() error {
	cutoff := time.Now().Add(-14 * 24 * time.Hour)
	return db.Where("started_at < ?", cutoff).Delete(&JobExecution{}).Error
}
