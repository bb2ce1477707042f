package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusPartial    JobStatus = "partial"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further automatic progress is expected.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusPartial, JobStatusFailed:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the known job statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusPartial, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// ItemStatus enumerates per-output states.
type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusFailed     ItemStatus = "failed"
)

// GenerationJob is one server-tracked unit of generation work.
type GenerationJob struct {
	ID             int64      `json:"id"`
	Status         JobStatus  `json:"status"`
	TotalItems     int        `json:"totalItems"`
	CompletedItems int        `json:"completedItems"`
	CreatedAt      time.Time  `json:"createdAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	ErrorMessage   string     `json:"errorMessage,omitempty"`
}

// GenerationItem is one individual output (image or video) within a job.
type GenerationItem struct {
	ID           int64      `json:"id"`
	Status       ItemStatus `json:"status"`
	Label        string     `json:"label,omitempty"`
	ResultURL    string     `json:"resultUrl,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

// JobSnapshot is the authoritative server view of a job at one point in time.
// Pollers replace their state with it wholesale.
type JobSnapshot struct {
	Job             GenerationJob    `json:"job"`
	Items           []GenerationItem `json:"items"`
	ProgressPercent int              `json:"progressPercent"`
}

// CompletedItems returns the items that carry a usable result.
func (s JobSnapshot) CompletedItems() []GenerationItem {
	out := make([]GenerationItem, 0, len(s.Items))
	for _, item := range s.Items {
		if item.Status == ItemStatusCompleted {
			out = append(out, item)
		}
	}
	return out
}

// FailedItems returns the items the server reported as failed.
func (s JobSnapshot) FailedItems() []GenerationItem {
	var out []GenerationItem
	for _, item := range s.Items {
		if item.Status == ItemStatusFailed {
			out = append(out, item)
		}
	}
	return out
}

// AggregateStatus derives the job status implied by its items. A job is
// completed iff all items completed, failed iff all failed and partial iff
// every item is terminal with a mix of both.
func AggregateStatus(items []GenerationItem) JobStatus {
	if len(items) == 0 {
		return JobStatusPending
	}
	var completed, failed, started int
	for _, item := range items {
		switch item.Status {
		case ItemStatusCompleted:
			completed++
			started++
		case ItemStatusFailed:
			failed++
			started++
		case ItemStatusProcessing:
			started++
		}
	}
	switch {
	case completed == len(items):
		return JobStatusCompleted
	case failed == len(items):
		return JobStatusFailed
	case completed+failed == len(items):
		return JobStatusPartial
	case started > 0:
		return JobStatusProcessing
	default:
		return JobStatusPending
	}
}

// ProgressPercent computes completed/total as a percentage clamped to [0,100].
func ProgressPercent(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	return completed * 100 / total
}
