// Package worker moves progress writes off the request path: handlers
// publish them to JetStream and ProgressConsumer applies them to the
// viewer's progress store.
package worker

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	StreamName      = "WATCH"
	SubjectProgress = "watch.progress"
	ConsumerName    = "watch_progress"
)

var ErrAsyncPublishDisabled = errors.New("async publish is disabled")

// StreamConfig is the JetStream stream carrying watch events.
func StreamConfig() *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"watch.>"},
		Retention: nats.WorkQueuePolicy,
		MaxAge:    24 * time.Hour,
	}
}

// ProgressEvent is one progress write.
type ProgressEvent struct {
	EventID     string  `json:"event_id"`
	ProfileID   string  `json:"profile_id"`
	MovieID     string  `json:"movie_id"`
	CurrentTime float64 `json:"current_time"`
	Duration    float64 `json:"duration"`
	ClientTsMs  int64   `json:"client_ts_ms,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

type EventPublisher struct {
	js          nats.JetStreamContext
	asyncWrites bool
}

func NewEventPublisher(js nats.JetStreamContext, asyncWrites bool) *EventPublisher {
	return &EventPublisher{js: js, asyncWrites: asyncWrites}
}

func (p *EventPublisher) Enabled() bool {
	return p != nil && p.js != nil && p.asyncWrites
}

// PublishProgress stamps ev with an event id and publishes it.
func (p *EventPublisher) PublishProgress(ev ProgressEvent) (string, error) {
	if !p.Enabled() {
		return "", ErrAsyncPublishDisabled
	}
	ev.EventID = uuid.NewString()
	if ev.CreatedAt == "" {
		ev.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	if _, err := p.js.Publish(SubjectProgress, body); err != nil {
		return "", err
	}
	return ev.EventID, nil
}
