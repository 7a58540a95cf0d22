package domain

import "fmt"

// Progress holds per-state Item counts for one Task.
type Progress struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Add counts one Item in the given state.
func (p *Progress) Add(status ItemStatus) {
	p.Total++
	switch status {
	case ItemStatusPending:
		p.Pending++
	case ItemStatusProcessing:
		p.Processing++
	case ItemStatusCompleted:
		p.Completed++
	case ItemStatusFailed:
		p.Failed++
	}
}

// ProgressOf counts the given items.
func ProgressOf(items []*Item) Progress {
	var p Progress
	for _, item := range items {
		p.Add(item.Status)
	}
	return p
}

// Done reports whether nothing is left pending or processing.
func (p Progress) Done() bool {
	return p.Pending == 0 && p.Processing == 0
}

// DeriveTaskStatus computes a Task's status from its Items' progress.
// "completed" means nothing is left to do, not that every Item succeeded;
// a Task is "failed" only when every Item failed.
func DeriveTaskStatus(p Progress) TaskStatus {
	switch {
	case p.Total == 0:
		return TaskStatusPending
	case p.Pending == p.Total:
		return TaskStatusPending
	case !p.Done():
		return TaskStatusProcessing
	case p.Failed == p.Total:
		return TaskStatusFailed
	default:
		return TaskStatusCompleted
	}
}

// TaskErrorMessage summarises item failures for a terminal Task.
func TaskErrorMessage(p Progress) string {
	if !p.Done() || p.Failed == 0 {
		return ""
	}
	return fmt.Sprintf("%d of %d items failed", p.Failed, p.Total)
}
