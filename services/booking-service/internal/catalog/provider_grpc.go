//go:build protogen

package catalog

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tmachado/agendly/libs/db"
	"github.com/tmachado/agendly/libs/grpcx"
	"github.com/tmachado/agendly/services/booking-service/internal/schedule"
	tenantv1 "github.com/tmachado/agendly/protos/gen/tenant/v1"
)

type grpcCatalog struct {
	client tenantv1.TenantServiceClient
}

// NewProvider returns the grpc-backed catalog when a tenant-service address
// is configured, falling back to direct table reads otherwise.
func NewProvider(logger *slog.Logger, pool *db.Pool, addr string) (Catalog, error) {
	if addr == "" {
		return NewPG(pool), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{Timeout: 5 * time.Second})
	if err != nil {
		logger.Warn("grpc catalog unavailable, reading tenant tables directly", "err", err)
		return NewPG(pool), nil
	}

	logger.Info("grpc catalog enabled", "addr", addr)
	return &grpcCatalog{client: tenantv1.NewTenantServiceClient(conn)}, nil
}

func (c *grpcCatalog) GetTenant(ctx context.Context, slug string) (Tenant, error) {
	resp, err := c.client.GetTenant(ctx, &tenantv1.GetTenantRequest{Slug: slug})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Tenant{}, ErrTenantNotFound
		}
		return Tenant{}, err
	}
	t := Tenant{
		Slug:     resp.GetSlug(),
		Name:     resp.GetName(),
		Timezone: resp.GetTimezone(),
		Plan:     resp.GetPlan(),
		Active:   resp.GetActive(),
	}
	for _, d := range resp.GetWorkingHours() {
		weekday := int(d.GetWeekday())
		if weekday < 0 || weekday > 6 {
			continue
		}
		t.Hours[weekday] = schedule.DayHours{
			IsOpen: d.GetIsOpen(),
			Open:   int(d.GetOpenMinute()),
			Close:  int(d.GetCloseMinute()),
		}
	}
	return t, nil
}

func (c *grpcCatalog) GetService(ctx context.Context, tenantSlug, serviceID string) (Service, error) {
	resp, err := c.client.GetService(ctx, &tenantv1.GetServiceRequest{TenantSlug: tenantSlug, ServiceId: serviceID})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Service{}, ErrServiceNotFound
		}
		return Service{}, err
	}
	return Service{
		ID:              resp.GetId(),
		Name:            resp.GetName(),
		DurationMinutes: int(resp.GetDurationMinutes()),
		Price:           resp.GetPrice(),
		Active:          resp.GetActive(),
	}, nil
}

func (c *grpcCatalog) GetStaff(ctx context.Context, tenantSlug, staffID string) (Staff, error) {
	resp, err := c.client.GetStaff(ctx, &tenantv1.GetStaffRequest{TenantSlug: tenantSlug, StaffId: staffID})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Staff{}, ErrStaffNotFound
		}
		return Staff{}, err
	}
	return Staff{
		ID:     resp.GetId(),
		Name:   resp.GetName(),
		Active: resp.GetActive(),
	}, nil
}
