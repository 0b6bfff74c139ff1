// Package consumer reads tenant events from Kafka and keeps the booking
// service's entitlements projection current.
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
	"github.com/tmachado/agendly/libs/plan"
	"github.com/tmachado/agendly/services/booking-service/internal/inbox"
	"github.com/tmachado/agendly/services/booking-service/internal/storage"
)

type Handler func(ctx context.Context, msg kafka.Message) error

type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	inbox   *inbox.Repository
	handler Handler
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
}

func New(logger *slog.Logger, inboxRepo *inbox.Repository, cfg Config, handler Handler) *Consumer {
	brokers := kafkax.SplitBrokers(cfg.Brokers)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader:  reader,
		logger:  logger,
		inbox:   inboxRepo,
		handler: handler,
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

		if err := c.handler(ctxSpan, msg); err != nil {
			c.logger.Error("handler error", "err", err, "event_id", meta.EventID)
			span.RecordError(err)
			span.End()
			continue
		}
		span.End()
	}
}

type planChangedPayload struct {
	TenantSlug string `json:"tenant_slug"`
	Tier       string `json:"tier"`
}

// PlanChangedHandler projects tenant.plan.changed.v1 events into the
// tenant_entitlements table. Limits come from the plan table, never from the
// event, so a stale event cannot invent a quota.
func PlanChangedHandler(repo *storage.Repository, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var p planChangedPayload
		if err := json.Unmarshal(msg.Value, &p); err != nil {
			logger.Error("invalid plan changed payload", "err", err)
			return nil // malformed payloads are not retryable
		}
		if p.TenantSlug == "" {
			logger.Warn("plan changed event without tenant_slug")
			return nil
		}

		f := plan.ForTier(p.Tier)
		err := repo.UpsertTenantEntitlements(ctx, storage.TenantEntitlements{
			TenantSlug:             p.TenantSlug,
			Tier:                   p.Tier,
			MaxServices:            f.MaxServices,
			MaxMonthlyAppointments: f.MaxMonthlyAppointments,
		})
		if err != nil {
			return err
		}
		logger.Info("entitlements updated", "tenant", p.TenantSlug, "tier", p.Tier)
		return nil
	}
}
