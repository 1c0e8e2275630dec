package reviewqueue

import (
	"time"

	"github.com/QuestPassApp/QuestPass/internal/pkg/verification"
)

// TaskStatus defines the intake status of a review task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusOpen       TaskStatus = "open"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusRetrying   TaskStatus = "retrying"
	TaskStatusResolved   TaskStatus = "resolved"
)

// Review resolutions
const (
	ResolutionApproved = "approved"
	ResolutionRejected = "rejected"
)

// Task carries one manual-review claim through intake: enqueued by the manual
// verifier, archived and opened for reviewers by a worker, closed by a
// reviewer's resolution.
type Task struct {
	ID             string                  `json:"id"`
	Item           verification.ReviewItem `json:"item"`
	Status         TaskStatus              `json:"status"`
	ArchiveKey     string                  `json:"archive_key,omitempty"`
	Resolution     string                  `json:"resolution,omitempty"`
	ResolutionNote string                  `json:"resolution_note,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
	ProcessedAt    *time.Time              `json:"processed_at,omitempty"`
	OpenedAt       *time.Time              `json:"opened_at,omitempty"`
	ResolvedAt     *time.Time              `json:"resolved_at,omitempty"`
	ErrorMsg       string                  `json:"error_msg,omitempty"`
	RetryCount     int                     `json:"retry_count"`
	MaxRetries     int                     `json:"max_retries"`
}

// IsRetryable checks if intake of the task can be retried
func (t *Task) IsRetryable() bool {
	return t.Status == TaskStatusFailed && t.RetryCount < t.MaxRetries
}

// MarkAsProcessing updates the task status to processing
func (t *Task) MarkAsProcessing() {
	now := time.Now()
	t.Status = TaskStatusProcessing
	t.UpdatedAt = now
	t.ProcessedAt = &now
}

// MarkAsOpen updates the task status to open for review
func (t *Task) MarkAsOpen() {
	now := time.Now()
	t.Status = TaskStatusOpen
	t.UpdatedAt = now
	t.OpenedAt = &now
	t.ErrorMsg = ""
}

// MarkAsFailed updates the task status to failed
func (t *Task) MarkAsFailed(errorMsg string) {
	t.Status = TaskStatusFailed
	t.UpdatedAt = time.Now()
	t.ErrorMsg = errorMsg
	t.RetryCount++
}

// MarkAsRetrying updates the task status to retrying
func (t *Task) MarkAsRetrying() {
	t.Status = TaskStatusRetrying
	t.UpdatedAt = time.Now()
}

// MarkAsResolved records the reviewer's decision
func (t *Task) MarkAsResolved(resolution, note string) {
	now := time.Now()
	t.Status = TaskStatusResolved
	t.Resolution = resolution
	t.ResolutionNote = note
	t.UpdatedAt = now
	t.ResolvedAt = &now
	t.ErrorMsg = ""
}
