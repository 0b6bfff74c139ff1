package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// TenantEntitlements is the booking-side projection of a tenant's plan,
// kept current by tenant.plan.changed.v1 events.
type TenantEntitlements struct {
	TenantSlug             string
	Tier                   string
	MaxServices            int
	MaxMonthlyAppointments int
	UpdatedAt              time.Time
}

func (r *Repository) UpsertTenantEntitlements(ctx context.Context, ent TenantEntitlements) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tenant_entitlements (tenant_slug, tier, max_services, max_monthly_appointments)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_slug)
		DO UPDATE SET tier = EXCLUDED.tier,
		              max_services = EXCLUDED.max_services,
		              max_monthly_appointments = EXCLUDED.max_monthly_appointments,
		              updated_at = now()
	`, ent.TenantSlug, ent.Tier, ent.MaxServices, ent.MaxMonthlyAppointments)
	return err
}

// GetTenantEntitlements reports found=false when no event has projected the
// tenant yet; callers fall back to plan defaults.
func (r *Repository) GetTenantEntitlements(ctx context.Context, tenantSlug string) (TenantEntitlements, bool, error) {
	var ent TenantEntitlements
	err := r.pool.QueryRow(ctx, `
		SELECT tenant_slug, tier, max_services, max_monthly_appointments, updated_at
		FROM tenant_entitlements
		WHERE tenant_slug = $1
	`, tenantSlug).Scan(&ent.TenantSlug, &ent.Tier, &ent.MaxServices, &ent.MaxMonthlyAppointments, &ent.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return TenantEntitlements{}, false, nil
	}
	if err != nil {
		return TenantEntitlements{}, false, err
	}
	return ent, true, nil
}
