// Package activity keeps the review trail: who logged in, uploaded, deleted
// or decided what. The dashboard publishes events; the activity service
// consumes them into Postgres and serves them back.
package activity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/casereview/pkg/common/logger"
	"github.com/synaptica-ai/casereview/pkg/common/models"
	"github.com/synaptica-ai/casereview/pkg/observability/metrics"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Filter narrows a listing. Limit is clamped by the service.
type Filter struct {
	DonorID string
	Type    string
	Limit   int
}

// Store persists events. *Repository is the production implementation.
type Store interface {
	Save(ctx context.Context, event models.ActivityEvent) error
	List(ctx context.Context, f Filter) ([]models.ActivityEvent, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Handle stores one consumed event.
func (s *Service) Handle(ctx context.Context, event models.ActivityEvent) error {
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.Type) == "" {
		logger.Log.WithField("event", event).Warn("Dropping activity event without id or type")
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := s.store.Save(ctx, event); err != nil {
		return err
	}
	metrics.ObserveActivityConsumed()
	return nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]models.ActivityEvent, error) {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultLimit
	case f.Limit > MaxLimit:
		f.Limit = MaxLimit
	}
	return s.store.List(ctx, f)
}

// EventPublisher is satisfied by *kafka.Producer.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event models.ActivityEvent) error
}

// Recorder is what the dashboard calls. Recording never fails the caller.
type Recorder interface {
	Record(ctx context.Context, event models.ActivityEvent)
}

type publishRecorder struct {
	publisher EventPublisher
	timeout   time.Duration
}

// NewRecorder publishes through p. A nil publisher only logs, which is how
// the dashboard runs without brokers.
func NewRecorder(p EventPublisher) Recorder {
	if p == nil {
		return logRecorder{}
	}
	return &publishRecorder{publisher: p, timeout: 5 * time.Second}
}

func (r *publishRecorder) Record(ctx context.Context, event models.ActivityEvent) {
	event = stamp(event)
	// the request may already be finishing; the event should still go out
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	err := r.publisher.PublishEvent(ctx, event)
	metrics.ObserveActivityPublish(err)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Log.WithError(err).WithField("event_type", event.Type).Warn("Activity event not published")
	}
}

type logRecorder struct{}

func (logRecorder) Record(_ context.Context, event models.ActivityEvent) {
	event = stamp(event)
	logger.Log.WithFields(map[string]interface{}{
		"event_id":    event.ID,
		"event_type":  event.Type,
		"actor":       event.Actor,
		"donor_id":    event.DonorID,
		"document_id": event.DocumentID,
	}).Info("Activity")
}

func stamp(event models.ActivityEvent) models.ActivityEvent {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return event
}
