// Package storage is the booking service's Postgres layer. Every mutation
// that changes an appointment's lifecycle also writes its event to the outbox
// inside the same transaction.
package storage

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tmachado/agendly/libs/db"
	"github.com/tmachado/agendly/services/booking-service/internal/model"
	"github.com/tmachado/agendly/services/booking-service/internal/outbox"
	"github.com/tmachado/agendly/services/booking-service/internal/reservation"
)

const appointmentColumns = `
	id, tenant_slug, staff_id,
	service_id, service_name, service_price, service_duration_minutes,
	client_name, client_email, client_phone, notes,
	start_time, end_time, status,
	COALESCE(confirmation_token, ''), confirmed_at,
	cancelled_at, cancellation_reason, cancelled_by,
	created_at, updated_at`

type Repository struct {
	pool       *db.Pool
	outbox     *outbox.Repository
	holdWindow time.Duration
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository, holdWindow time.Duration) *Repository {
	if holdWindow <= 0 {
		holdWindow = reservation.DefaultHoldWindow
	}
	return &Repository{pool: pool, outbox: outboxRepo, holdWindow: holdWindow}
}

// InsertPending writes a pending appointment if its interval is free.
//
// The per-resource advisory lock serializes writers for one (tenant, staff)
// pair, so the overlap check and the insert are atomic without table locks.
// The partial unique index on (tenant_slug, staff_id, start_time) remains the
// storage-level backstop; a duplicate-key error there maps to ErrSlotConflict
// like any other overlap.
func (r *Repository) InsertPending(ctx context.Context, appt model.Appointment) error {
	pendingCutoff := time.Now().UTC().Add(-r.holdWindow)

	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			SELECT pg_advisory_xact_lock(hashtextextended($1, 0))
		`, appt.TenantSlug+"/"+appt.StaffID); err != nil {
			return err
		}

		// Expired holds overlapping the requested interval are cancelled
		// here rather than by a sweeper.
		rows, err := tx.Query(ctx, `
			UPDATE appointments
			SET status = 'cancelled',
			    confirmation_token = NULL,
			    cancelled_at = now(),
			    cancelled_by = 'system',
			    cancellation_reason = 'confirmation window expired',
			    updated_at = now()
			WHERE tenant_slug = $1
			  AND staff_id = $2
			  AND status = 'pending'
			  AND created_at <= $3
			  AND start_time < $5
			  AND end_time > $4
			RETURNING `+appointmentColumns,
			appt.TenantSlug, appt.StaffID, pendingCutoff, appt.StartTime, appt.EndTime)
		if err != nil {
			return err
		}
		expired, err := collectAppointments(rows)
		if err != nil {
			return err
		}
		for _, e := range expired {
			evt, err := outbox.AppointmentEvent(outbox.EventAppointmentCancelled, e)
			if err != nil {
				return err
			}
			if err := r.outbox.Insert(ctx, tx, evt); err != nil {
				return err
			}
		}

		// Canonical half-open overlap: aStart < bEnd AND bStart < aEnd.
		var taken bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM appointments
				WHERE tenant_slug = $1
				  AND staff_id = $2
				  AND (status = 'confirmed' OR (status = 'pending' AND created_at > $3))
				  AND start_time < $5
				  AND $4 < end_time
			)
		`, appt.TenantSlug, appt.StaffID, pendingCutoff, appt.StartTime, appt.EndTime).Scan(&taken); err != nil {
			return err
		}
		if taken {
			return reservation.ErrSlotConflict
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO appointments (
				id, tenant_slug, staff_id,
				service_id, service_name, service_price, service_duration_minutes,
				client_name, client_email, client_phone, notes,
				start_time, end_time, status,
				confirmation_token, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 'pending', $14, $15, $15)
		`,
			appt.ID, appt.TenantSlug, appt.StaffID,
			appt.ServiceID, appt.ServiceName, appt.Price, appt.DurationMinutes,
			appt.ClientName, appt.ClientEmail, appt.ClientPhone, appt.Notes,
			appt.StartTime, appt.EndTime,
			appt.ConfirmationToken, appt.CreatedAt,
		); err != nil {
			return err
		}

		evt, err := outbox.AppointmentEvent(outbox.EventAppointmentPending, appt)
		if err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, evt)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return reservation.ErrSlotConflict
		}
		return err
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, tenantSlug, id string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_slug = $1 AND id = $2
	`, tenantSlug, id)
	appt, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, reservation.ErrNotFound
	}
	return appt, err
}

func (r *Repository) GetByToken(ctx context.Context, tenantSlug, token string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_slug = $1 AND confirmation_token = $2
	`, tenantSlug, token)
	appt, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, reservation.ErrTokenNotFound
	}
	return appt, err
}

// MarkConfirmed promotes a pending row. The status guard in the WHERE clause
// makes concurrent confirms of the same token race safely: one wins, the
// other sees zero rows.
func (r *Repository) MarkConfirmed(ctx context.Context, tenantSlug, id string, at time.Time) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE appointments
			SET status = 'confirmed', confirmed_at = $3, updated_at = $3
			WHERE tenant_slug = $1 AND id = $2 AND status = 'pending'
			RETURNING `+appointmentColumns,
			tenantSlug, id, at)
		appt, err := scanAppointment(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return reservation.ErrNotFound
		}
		if err != nil {
			return err
		}

		evt, err := outbox.AppointmentEvent(outbox.EventAppointmentConfirmed, appt)
		if err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, evt)
	})
}

func (r *Repository) MarkCancelled(ctx context.Context, tenantSlug, id string, at time.Time, actor, reason string) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE appointments
			SET status = 'cancelled',
			    confirmation_token = NULL,
			    cancelled_at = $3,
			    cancelled_by = $4,
			    cancellation_reason = $5,
			    updated_at = $3
			WHERE tenant_slug = $1 AND id = $2 AND status IN ('pending', 'confirmed')
			RETURNING `+appointmentColumns,
			tenantSlug, id, at, actor, reason)
		appt, err := scanAppointment(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return reservation.ErrNotFound
		}
		if err != nil {
			return err
		}

		evt, err := outbox.AppointmentEvent(outbox.EventAppointmentCancelled, appt)
		if err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, evt)
	})
}

func (r *Repository) MarkCompleted(ctx context.Context, tenantSlug, id string, at time.Time) error {
	return r.setFinalStatus(ctx, tenantSlug, id, model.StatusCompleted, at)
}

func (r *Repository) MarkNoShow(ctx context.Context, tenantSlug, id string, at time.Time) error {
	return r.setFinalStatus(ctx, tenantSlug, id, model.StatusNoShow, at)
}

func (r *Repository) setFinalStatus(ctx context.Context, tenantSlug, id, status string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status = $3, updated_at = $4
		WHERE tenant_slug = $1 AND id = $2 AND status = 'confirmed'
	`, tenantSlug, id, status, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return reservation.ErrNotFound
	}
	return nil
}

func (r *Repository) ListActiveBetween(ctx context.Context, tenantSlug, staffID string, from, to time.Time) ([]model.Appointment, error) {
	pendingCutoff := time.Now().UTC().Add(-r.holdWindow)
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_slug = $1
		  AND staff_id = $2
		  AND (status = 'confirmed' OR (status = 'pending' AND created_at > $3))
		  AND start_time < $5
		  AND $4 < end_time
		ORDER BY start_time
	`, tenantSlug, staffID, pendingCutoff, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// ListFilter narrows ListByTenant. Zero values mean no filtering.
type ListFilter struct {
	From    time.Time
	To      time.Time
	Status  string
	StaffID *string
	Limit   int
}

func (r *Repository) ListByTenant(ctx context.Context, tenantSlug string, f ListFilter) ([]model.Appointment, error) {
	q := `SELECT ` + appointmentColumns + ` FROM appointments WHERE tenant_slug = $1`
	args := []any{tenantSlug}

	if !f.From.IsZero() {
		args = append(args, f.From)
		q += ` AND end_time > $` + strconv.Itoa(len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		q += ` AND start_time < $` + strconv.Itoa(len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		q += ` AND status = $` + strconv.Itoa(len(args))
	}
	if f.StaffID != nil {
		args = append(args, *f.StaffID)
		q += ` AND staff_id = $` + strconv.Itoa(len(args))
	}
	q += ` ORDER BY start_time DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// CountBookedBetween counts appointments whose start falls in [from, to),
// cancellations excluded. Used for plan metering.
func (r *Repository) CountBookedBetween(ctx context.Context, tenantSlug string, from, to time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM appointments
		WHERE tenant_slug = $1
		  AND status <> 'cancelled'
		  AND start_time >= $2 AND start_time < $3
	`, tenantSlug, from, to).Scan(&n)
	return n, err
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(
		&a.ID, &a.TenantSlug, &a.StaffID,
		&a.ServiceID, &a.ServiceName, &a.Price, &a.DurationMinutes,
		&a.ClientName, &a.ClientEmail, &a.ClientPhone, &a.Notes,
		&a.StartTime, &a.EndTime, &a.Status,
		&a.ConfirmationToken, &a.ConfirmedAt,
		&a.CancelledAt, &a.CancelledReason, &a.CancelledBy,
		&a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var out []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, appt)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

