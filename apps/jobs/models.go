package jobs

import (
	"time"
)

// Execution status constants
const (
	ExecutionStatusRunning = "running"
	ExecutionStatusSuccess = "success"
	ExecutionStatusFailed  = "failed"
)

// JobExecution is the audit record of one scheduled job run
type JobExecution struct {
	ID         uint       `gorm:"column:id;primaryKey" json:"id"`
	JobName    string     `gorm:"column:job_name;size:255;not null;index" json:"job_name"`
	Status     string     `gorm:"column:status;size:50;not null;check:status IN ('running','success','failed')" json:"status"`
	Error      string     `gorm:"column:error;type:text" json:"error,omitempty"`
	StartedAt  time.Time  `gorm:"column:started_at;autoCreateTime" json:"started_at"`
	FinishedAt *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`
	Duration   float64    `gorm:"column:duration;default:0" json:"duration"`
}

func (JobExecution) TableName() string {
	return "job_executions"
}
