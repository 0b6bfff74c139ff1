package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/tmachado/agendly/libs/db"
	"github.com/tmachado/agendly/services/booking-service/internal/schedule"
)

// PG reads the tenant-service tables directly. The default wiring; the grpc
// provider replaces it when the services stop sharing a database.
type PG struct {
	pool *db.Pool
}

func NewPG(pool *db.Pool) *PG {
	return &PG{pool: pool}
}

func (c *PG) GetTenant(ctx context.Context, slug string) (Tenant, error) {
	var (
		t      Tenant
		status string
	)
	err := c.pool.QueryRow(ctx, `
		SELECT slug, name, timezone, plan, status
		FROM tenants
		WHERE slug = $1
	`, slug).Scan(&t.Slug, &t.Name, &t.Timezone, &t.Plan, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, ErrTenantNotFound
	}
	if err != nil {
		return Tenant{}, err
	}
	t.Active = status == "active" || status == "trial"

	rows, err := c.pool.Query(ctx, `
		SELECT weekday, is_open, open_minute, close_minute
		FROM tenant_working_hours
		WHERE tenant_slug = $1
	`, slug)
	if err != nil {
		return Tenant{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			weekday     int
			open        bool
			from, until int
		)
		if err := rows.Scan(&weekday, &open, &from, &until); err != nil {
			return Tenant{}, err
		}
		if weekday < 0 || weekday > 6 {
			continue
		}
		t.Hours[weekday] = schedule.DayHours{IsOpen: open, Open: from, Close: until}
	}
	if rows.Err() != nil {
		return Tenant{}, rows.Err()
	}
	return t, nil
}

func (c *PG) GetService(ctx context.Context, tenantSlug, serviceID string) (Service, error) {
	var s Service
	err := c.pool.QueryRow(ctx, `
		SELECT id, name, duration_minutes, price, active
		FROM services
		WHERE tenant_slug = $1 AND id = $2
	`, tenantSlug, serviceID).Scan(&s.ID, &s.Name, &s.DurationMinutes, &s.Price, &s.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Service{}, ErrServiceNotFound
	}
	return s, err
}

func (c *PG) GetStaff(ctx context.Context, tenantSlug, staffID string) (Staff, error) {
	var s Staff
	err := c.pool.QueryRow(ctx, `
		SELECT id, name, active
		FROM staff
		WHERE tenant_slug = $1 AND id = $2
	`, tenantSlug, staffID).Scan(&s.ID, &s.Name, &s.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Staff{}, ErrStaffNotFound
	}
	return s, err
}
