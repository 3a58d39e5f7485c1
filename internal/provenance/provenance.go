// Package provenance carries capture attempts from the API to the
// capture_log table through the work queue.
package provenance

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lectureattend/internal/metrics"
	"lectureattend/internal/model"
	"lectureattend/internal/queue"
)

// MessageType tags provenance messages on the shared queue.
const MessageType = "capture.provenance"

const publishTimeout = 500 * time.Millisecond

// Event describes one capture attempt by an authorized device.
type Event struct {
	DeviceID   string    `json:"device_id"`
	SubjectID  *string   `json:"subject_id,omitempty"`
	SessionID  *string   `json:"session_id,omitempty"`
	Outcome    string    `json:"outcome"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher enqueues events. Failures are logged and swallowed.
type Publisher struct {
	q      queue.Queue
	logger *zap.Logger
}

// NewPublisher returns a publisher on q. A nil q disables publishing.
func NewPublisher(q queue.Queue, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{q: q, logger: logger}
}

// Publish enqueues evt without letting queue trouble reach the caller.
func (p *Publisher) Publish(ctx context.Context, evt Event) {
	if p == nil || p.q == nil {
		return
	}
	body, err := json.Marshal(evt)
	if err != nil {
		p.logger.Error("encode provenance event", zap.Error(err))
		metrics.ProvenanceEvents.WithLabelValues("publish", "error").Inc()
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.q.Publish(ctx, queue.Message{Type: MessageType, Body: body}); err != nil {
		p.logger.Warn("queue publish failed", zap.String("device_id", evt.DeviceID), zap.Error(err))
		metrics.ProvenanceEvents.WithLabelValues("publish", "error").Inc()
		return
	}
	metrics.ProvenanceEvents.WithLabelValues("publish", "ok").Inc()
}

type repository interface {
	InsertCaptureLog(ctx context.Context, l model.CaptureLog) error
}

// Worker appends consumed events to the capture log.
type Worker struct {
	q      queue.Queue
	repo   repository
	logger *zap.Logger
}

// NewWorker creates a worker reading from q.
func NewWorker(q queue.Queue, repo repository, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{q: q, repo: repo, logger: logger}
}

// Run consumes until ctx ends or the queue closes.
func (w *Worker) Run(ctx context.Context) error {
	messages, err := w.q.Consume(ctx)
	if err != nil {
		return err
	}
	w.logger.Info("worker started, waiting for messages")
	for msg := range messages {
		if msg.Type != MessageType {
			continue
		}
		w.handle(ctx, msg)
	}
	w.logger.Info("worker stopped")
	return nil
}

func (w *Worker) handle(ctx context.Context, msg queue.Message) {
	var evt Event
	if err := json.Unmarshal(msg.Body, &evt); err != nil || evt.DeviceID == "" {
		w.logger.Warn("dropping malformed provenance event", zap.ByteString("body", msg.Body))
		metrics.ProvenanceEvents.WithLabelValues("consume", "malformed").Inc()
		return
	}
	entry := model.CaptureLog{
		ID:         uuid.NewString(),
		DeviceID:   evt.DeviceID,
		SubjectID:  evt.SubjectID,
		SessionID:  evt.SessionID,
		Outcome:    evt.Outcome,
		OccurredAt: evt.OccurredAt,
	}
	if err := w.repo.InsertCaptureLog(ctx, entry); err != nil {
		w.logger.Error("insert capture log failed", zap.String("device_id", evt.DeviceID), zap.Error(err))
		metrics.ProvenanceEvents.WithLabelValues("consume", "error").Inc()
		return
	}
	metrics.ProvenanceEvents.WithLabelValues("consume", "ok").Inc()
}
