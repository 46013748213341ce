package tui

import "mangatint/worker/batch"

// ChannelObserver forwards runner notifications into the UI channel.
type ChannelObserver struct {
	updates chan<- ProgressUpdate
}

func NewChannelObserver(updates chan<- ProgressUpdate) *ChannelObserver {
	return &ChannelObserver{updates: updates}
}

func (o *ChannelObserver) OnProgress(jobID string, current, total int, page string, etaSeconds float64) {
	o.updates <- ProgressUpdate{
		Current:    current,
		Total:      total,
		Page:       page,
		ETASeconds: etaSeconds,
	}
}

func (o *ChannelObserver) OnStateChange(jobID string, status batch.Status, message string) {
	o.updates <- ProgressUpdate{
		Status:  status,
		Message: message,
	}
}
