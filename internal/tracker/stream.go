package tracker

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/mbolshakov/gotrial/internal/telemetry"
)

const (
	// queueSize is the buffer size for the event queue.
	queueSize = 1000
)

// Publisher is the subset of a NATS connection the tracker needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// StreamTracker publishes exposure events to a NATS subject through a
// buffered queue drained by a single worker goroutine. LogExposure never
// blocks the caller: when the queue is full the event is dropped with a
// warning and a metric.
type StreamTracker struct {
	pub     Publisher
	subject string
	queue   chan Event
	done    chan struct{}
	closed  int32 // atomic flag to prevent double-close
	log     zerolog.Logger
}

// Connect dials the NATS server for event publishing.
func Connect(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}

// NewStreamTracker creates a stream tracker and starts its worker.
func NewStreamTracker(pub Publisher, subject string, log zerolog.Logger) *StreamTracker {
	t := &StreamTracker{
		pub:     pub,
		subject: subject,
		queue:   make(chan Event, queueSize),
		done:    make(chan struct{}),
		log:     log.With().Str("component", "tracker").Logger(),
	}
	go t.worker()
	return t
}

// LogExposure queues an exposure event for publishing. Non-blocking;
// drops the event when the queue is full.
func (t *StreamTracker) LogExposure(event Event) {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case t.queue <- event:
	default:
		telemetry.TrackerDroppedEvents.Inc()
		t.log.Warn().
			Str("experiment", event.ExperimentID).
			Str("feature", event.Feature).
			Msg("event queue full, dropping exposure event")
	}
}

// Close drains the queue and stops the worker. Safe to call multiple times.
func (t *StreamTracker) Close() error {
	if !atomic.CompareAndSwapInt32(&t.closed, 0, 1) {
		return nil // Already closed
	}
	close(t.queue)
	<-t.done
	return nil
}

// worker publishes queued events until the queue is closed. Publish failures
// are logged and discarded.
func (t *StreamTracker) worker() {
	defer close(t.done)

	for event := range t.queue {
		payload, err := json.Marshal(event)
		if err != nil {
			t.log.Error().Err(err).Str("experiment", event.ExperimentID).Msg("failed to marshal exposure event")
			continue
		}
		if err := t.pub.Publish(t.subject, payload); err != nil {
			t.log.Warn().Err(err).
				Str("experiment", event.ExperimentID).
				Str("subject", t.subject).
				Msg("failed to publish exposure event")
		}
	}
}
