package service

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/touchlog/touchlog/internal/app/model"
)

// EventPublisher hands enriched events to NATS JetStream so the redirect
// response never waits on the database.
type EventPublisher struct {
	js nats.JetStreamContext
}

// NewEventPublisher creates a new telemetry event publisher.
func NewEventPublisher(js nats.JetStreamContext) *EventPublisher {
	return &EventPublisher{js: js}
}

// Publish enqueues one fully enriched event onto the stream.
func (p *EventPublisher) Publish(ev *model.TelemetryEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(model.EventStreamSubject, data)
	return err
}
