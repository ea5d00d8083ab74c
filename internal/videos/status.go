// Package videos runs the video job lifecycle: creation against the credit
// ledger and project caps, cancellation, and the provider callbacks that
// move a job to a terminal state.
package videos

import "github.com/hugh/ia-marketing/internal/database/models"

// Providers may report a terminal state without ever sending processing.
var transitions = map[models.VideoStatus][]models.VideoStatus{
	models.VideoQueued:     {models.VideoProcessing, models.VideoCompleted, models.VideoFailed, models.VideoCanceled},
	models.VideoProcessing: {models.VideoCompleted, models.VideoFailed, models.VideoCanceled},
}

// CanTransition reports whether a job in from may move to to. Terminal
// states have no way out.
func CanTransition(from, to models.VideoStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// refunds reports whether reaching status returns the job's credits.
func refunds(status models.VideoStatus) bool {
	return status == models.VideoFailed || status == models.VideoCanceled
}
