package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/touchlog/touchlog/internal/app/model"
	"go.uber.org/zap"
)

// EventConsumer drains redirect-path events from JetStream and writes
// them through the recorder. Direct-access events never pass through
// here; they are recorded in-process so the dedup check can run first.
type EventConsumer struct {
	js       nats.JetStreamContext
	logger   *zap.Logger
	recorder *EventRecorder
}

// NewEventConsumer creates a new telemetry event consumer.
func NewEventConsumer(js nats.JetStreamContext, logger *zap.Logger, recorder *EventRecorder) *EventConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventConsumer{js: js, logger: logger, recorder: recorder}
}

// Start ensures the stream and durable consumer exist, then begins
// consuming in the background.
func (c *EventConsumer) Start() error {
	_, err := c.js.StreamInfo(model.EventStreamName)
	if err != nil {
		_, err = c.js.AddStream(&nats.StreamConfig{
			Name:     model.EventStreamName,
			Subjects: []string{model.EventStreamSubject},
			MaxBytes: model.EventStreamMaxBytes,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	}

	_, err = c.js.ConsumerInfo(model.EventStreamName, model.EventConsumerName)
	if err != nil {
		_, err = c.js.AddConsumer(model.EventStreamName, &nats.ConsumerConfig{
			Durable:   model.EventConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
		})
		if err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(model.EventStreamSubject, model.EventConsumerName)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go c.consume(sub)
	return nil
}

func (c *EventConsumer) consume(sub *nats.Subscription) {
	ctx := context.Background()
	for {
		msgs, err := sub.Fetch(10, nats.MaxWait(5*time.Second))
		if err != nil && err != nats.ErrTimeout {
			c.logger.Error("failed to fetch messages", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			var ev model.TelemetryEvent
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				c.logger.Error("failed to unmarshal telemetry event", zap.Error(err))
				msg.Nak()
				continue
			}

			outcome, err := c.recorder.RecordRedirect(ctx, &ev)
			if err != nil {
				c.logger.Error("failed to record telemetry event",
					zap.String("id", ev.ID),
					zap.String("tag_id", ev.TagID),
					zap.String("kind", string(ev.Kind)),
					zap.Error(err))
				msg.Nak()
				continue
			}

			c.logger.Debug("telemetry event recorded",
				zap.String("id", ev.ID),
				zap.String("tag_id", ev.TagID),
				zap.String("kind", string(ev.Kind)),
				zap.Int("outcome", int(outcome)),
				zap.Time("occurred_at", ev.OccurredAt),
			)

			msg.Ack()
		}
	}
}
