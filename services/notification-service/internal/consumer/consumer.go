// Package consumer reads appointment events and hands them to the notifier.
package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tmachado/agendly/libs/kafkax"
	"github.com/tmachado/agendly/services/notification-service/internal/inbox"
	"github.com/tmachado/agendly/services/notification-service/internal/notifier"
)

const (
	topicAppointmentPending   = "booking.appointment.pending.v1"
	topicAppointmentConfirmed = "booking.appointment.confirmed.v1"
	topicAppointmentCancelled = "booking.appointment.cancelled.v1"
)

type Consumer struct {
	reader   *kafka.Reader
	logger   *slog.Logger
	inbox    *inbox.Repository
	notifier *notifier.Notifier
}

type Config struct {
	Brokers string
	GroupID string
}

// New subscribes to all three appointment topics with one group reader.
func New(logger *slog.Logger, inboxRepo *inbox.Repository, n *notifier.Notifier, cfg Config) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: kafkax.SplitBrokers(cfg.Brokers),
		GroupID: cfg.GroupID,
		GroupTopics: []string{
			topicAppointmentPending,
			topicAppointmentConfirmed,
			topicAppointmentCancelled,
		},
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader:   reader,
		logger:   logger,
		inbox:    inboxRepo,
		notifier: n,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
		ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)

		meta := kafkax.ExtractEventMeta(msg)

		ok, err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType)
		if err != nil {
			c.logger.Error("inbox record failed", "err", err)
			span.RecordError(err)
			span.End()
			continue
		}
		if !ok {
			c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			span.End()
			continue
		}

		if err := c.dispatch(ctxSpan, msg); err != nil {
			c.logger.Error("notification handler error", "err", err, "event_id", meta.EventID)
			span.RecordError(err)
		}
		span.End()
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg kafka.Message) error {
	var appt notifier.Appointment
	if err := json.Unmarshal(msg.Value, &appt); err != nil {
		c.logger.Error("invalid appointment payload", "err", err, "topic", msg.Topic)
		return nil // malformed payloads are not retryable
	}
	if appt.AppointmentID == "" || appt.ClientEmail == "" {
		c.logger.Warn("appointment event missing id or client email", "topic", msg.Topic)
		return nil
	}

	switch msg.Topic {
	case topicAppointmentPending:
		return c.notifier.HandlePending(ctx, appt)
	case topicAppointmentConfirmed:
		return c.notifier.HandleConfirmed(ctx, appt)
	case topicAppointmentCancelled:
		return c.notifier.HandleCancelled(ctx, appt)
	}
	return nil
}
