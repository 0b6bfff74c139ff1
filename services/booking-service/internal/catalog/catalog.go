// Package catalog gives the booking service read access to tenant-owned
// data: profiles, working hours, services and staff.
package catalog

import (
	"context"
	"errors"

	"github.com/tmachado/agendly/services/booking-service/internal/schedule"
)

var (
	ErrTenantNotFound  = errors.New("tenant not found")
	ErrServiceNotFound = errors.New("service not found")
	ErrStaffNotFound   = errors.New("staff not found")
)

type Tenant struct {
	Slug     string
	Name     string
	Timezone string
	Plan     string
	Active   bool
	Hours    schedule.WeekHours
}

type Service struct {
	ID              string
	Name            string
	DurationMinutes int
	Price           float64
	Active          bool
}

type Staff struct {
	ID     string
	Name   string
	Active bool
}

type Catalog interface {
	GetTenant(ctx context.Context, slug string) (Tenant, error)
	GetService(ctx context.Context, tenantSlug, serviceID string) (Service, error)
	GetStaff(ctx context.Context, tenantSlug, staffID string) (Staff, error)
}
