package domain

import "time"

// ImageKind distinguishes what a download task fetches.
type ImageKind string

const (
	ImageKindCover       ImageKind = "cover"
	ImageKindContributor ImageKind = "contributor"
)

// DownloadStatus tracks a task's lifecycle in the image download queue.
type DownloadStatus string

const (
	DownloadPending    DownloadStatus = "pending"
	DownloadInProgress DownloadStatus = "in_progress"
	DownloadCompleted  DownloadStatus = "completed"
	DownloadFailed     DownloadStatus = "failed"
)

// DownloadTask is a durable request to fetch one image for an entity.
// Keyed by (Kind, EntityID): re-enqueuing the same image refreshes the
// URL on the existing task instead of creating a duplicate.
type DownloadTask struct {
	EntityID      string         `json:"entity_id"`
	Kind          ImageKind      `json:"kind"`
	URL           string         `json:"url"`
	Status        DownloadStatus `json:"status"`
	Attempts      int            `json:"attempts"`
	LastAttemptAt *time.Time     `json:"last_attempt_at,omitempty"`
	Error         string         `json:"error,omitempty"`
	EnqueuedAt    time.Time      `json:"enqueued_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// Key returns the stable identity of the task.
func (t *DownloadTask) Key() string {
	return string(t.Kind) + ":" + t.EntityID
}

// MarkFailed records a failed attempt with the reason.
func (t *DownloadTask) MarkFailed(reason string) {
	now := time.Now()
	t.Status = DownloadFailed
	t.Attempts++
	t.LastAttemptAt = &now
	t.Error = reason
}

// MarkCompleted marks the task done.
func (t *DownloadTask) MarkCompleted() {
	now := time.Now()
	t.Status = DownloadCompleted
	t.CompletedAt = &now
	t.Error = ""
}
