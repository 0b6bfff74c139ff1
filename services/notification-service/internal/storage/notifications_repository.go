package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/tmachado/agendly/libs/db"
	"github.com/tmachado/agendly/services/notification-service/internal/outbox"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

type Notification struct {
	AppointmentID string
	TenantSlug    string
	Channel       string
	Recipient     string
	Status        string
	ErrorReason   string
}

// TenantInfo is the slice of the tenants table the notifier cares about.
type TenantInfo struct {
	Plan     string
	Timezone string
}

type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: outboxRepo}
}

// Insert records the delivery attempt and emits notification.sent/failed.v1
// in the same transaction.
func (r *Repository) Insert(ctx context.Context, n Notification) error {
	evt, err := outbox.DeliveryEvent(n.AppointmentID, n.TenantSlug, n.Channel, n.Recipient, n.ErrorReason)
	if err != nil {
		return err
	}
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO notifications (appointment_id, tenant_slug, channel, recipient, status, error_reason)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, n.AppointmentID, n.TenantSlug, n.Channel, n.Recipient, n.Status, n.ErrorReason); err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, evt)
	})
}

func (r *Repository) GetTenantInfo(ctx context.Context, slug string) (TenantInfo, error) {
	var info TenantInfo
	err := r.pool.QueryRow(ctx, `
		SELECT plan, timezone FROM tenants WHERE slug = $1
	`, slug).Scan(&info.Plan, &info.Timezone)
	if err == pgx.ErrNoRows {
		return TenantInfo{Plan: "basic", Timezone: "UTC"}, nil
	}
	return info, err
}
