package kafka

import (
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"mangatint/worker/batch"
)

// Event is one progress or state change notification, keyed by job so
// consumers see each job's events in order.
type Event struct {
	JobID      string    `json:"job_id"`
	Type       string    `json:"type"`
	Status     string    `json:"status,omitempty"`
	Message    string    `json:"message,omitempty"`
	Current    int       `json:"current,omitempty"`
	Total      int       `json:"total,omitempty"`
	Page       string    `json:"page,omitempty"`
	ETASeconds float64   `json:"eta_seconds,omitempty"`
	At         time.Time `json:"at"`
}

const (
	EventProgress = "progress"
	EventState    = "state"
)

// EventPublisher mirrors runner notifications onto a Kafka topic. Publish
// failures are logged and dropped; events never block or fail a job.
type EventPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

func NewEventPublisher(brokers []string, topic string, logger *zap.Logger) (*EventPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return &EventPublisher{producer: p, topic: topic, logger: logger}, nil
}

func (p *EventPublisher) OnProgress(jobID string, current, total int, page string, etaSeconds float64) {
	p.publish(Event{
		JobID:      jobID,
		Type:       EventProgress,
		Current:    current,
		Total:      total,
		Page:       page,
		ETASeconds: etaSeconds,
		At:         time.Now().UTC(),
	})
}

func (p *EventPublisher) OnStateChange(jobID string, status batch.Status, message string) {
	p.publish(Event{
		JobID:   jobID,
		Type:    EventState,
		Status:  string(status),
		Message: message,
		At:      time.Now().UTC(),
	})
}

func (p *EventPublisher) publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("Failed to marshal event", zap.Error(err))
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.JobID),
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		p.logger.Warn("Failed to publish event",
			zap.String("job_id", ev.JobID),
			zap.String("type", ev.Type),
			zap.Error(err))
	}
}

func (p *EventPublisher) Close() error {
	return p.producer.Close()
}
