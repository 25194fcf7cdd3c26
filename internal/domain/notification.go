package domain

import "time"

// NotificationType identifies the event a notification reports.
type NotificationType string

const (
	NotificationProposalReceived    NotificationType = "proposal_received"
	NotificationProposalAccepted    NotificationType = "proposal_accepted"
	NotificationProposalRejected    NotificationType = "proposal_rejected"
	NotificationWorkSubmitted       NotificationType = "work_submitted"
	NotificationCompletionConfirmed NotificationType = "completion_confirmed"
	NotificationJobCompleted        NotificationType = "job_completed"
	NotificationJobCancelled        NotificationType = "job_cancelled"
	NotificationMessageReceived     NotificationType = "message_received"
)

// Notification is a persisted, per-user event record.
type Notification struct {
	ID                string           `gorm:"type:text;primaryKey" json:"id"`
	UserAddress       string           `gorm:"type:text;not null;index:idx_notifications_user" json:"user_address"`
	Type              NotificationType `gorm:"type:text;not null" json:"type"`
	Title             string           `gorm:"type:text" json:"title"`
	Message           string           `gorm:"type:text" json:"message"`
	RelatedJobID      string           `gorm:"type:text" json:"related_job_id,omitempty"`
	RelatedProposalID string           `gorm:"type:text" json:"related_proposal_id,omitempty"`
	IsRead            bool             `gorm:"default:false;index:idx_notifications_read" json:"is_read"`
	CreatedAt         time.Time        `json:"created_at"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string {
	return "notifications"
}

// NotificationCount holds the unread and total counters for a user.
type NotificationCount struct {
	UnreadCount int64 `json:"unread_count"`
	TotalCount  int64 `json:"total_count"`
}

// SavedJob marks a job bookmarked by a user.
type SavedJob struct {
	ID          string    `gorm:"type:text;primaryKey" json:"id"`
	UserAddress string    `gorm:"type:text;not null;uniqueIndex:idx_saved_jobs_user_job" json:"user_address"`
	JobID       string    `gorm:"type:text;not null;uniqueIndex:idx_saved_jobs_user_job" json:"job_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for SavedJob.
func (SavedJob) TableName() string {
	return "saved_jobs"
}
