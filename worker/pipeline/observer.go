package pipeline

import (
	"go.uber.org/zap"

	"mangatint/worker/batch"
)

// Observer receives job lifecycle notifications. The runner calls
// observers inline between pages, so implementations must return quickly
// and never block on the job store.
type Observer interface {
	OnProgress(jobID string, current, total int, page string, etaSeconds float64)
	OnStateChange(jobID string, status batch.Status, message string)
}

// MultiObserver fans out to every registered observer in order.
type MultiObserver []Observer

func (m MultiObserver) OnProgress(jobID string, current, total int, page string, etaSeconds float64) {
	for _, o := range m {
		o.OnProgress(jobID, current, total, page, etaSeconds)
	}
}

func (m MultiObserver) OnStateChange(jobID string, status batch.Status, message string) {
	for _, o := range m {
		o.OnStateChange(jobID, status, message)
	}
}

// LogObserver mirrors job progress into the structured log.
type LogObserver struct {
	logger *zap.Logger
}

func NewLogObserver(logger *zap.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) OnProgress(jobID string, current, total int, page string, etaSeconds float64) {
	o.logger.Info("Job progress",
		zap.String("job_id", jobID),
		zap.Int("current", current),
		zap.Int("total", total),
		zap.String("page", page),
		zap.Float64("eta_seconds", etaSeconds),
	)
}

func (o *LogObserver) OnStateChange(jobID string, status batch.Status, message string) {
	o.logger.Info("Job state changed",
		zap.String("job_id", jobID),
		zap.String("status", string(status)),
		zap.String("message", message),
	)
}
