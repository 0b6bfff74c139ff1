//go:build protogen

package grpcserver

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	tenantv1 "github.com/tmachado/agendly/protos/gen/tenant/v1"
	"github.com/tmachado/agendly/services/tenant-service/internal/storage"
)

type server struct {
	tenantv1.UnimplementedTenantServiceServer
	repo *storage.Repository
}

func Register(grpcServer *grpc.Server, repo *storage.Repository) {
	tenantv1.RegisterTenantServiceServer(grpcServer, &server{repo: repo})
}

// GetTenant serves the tenant's public identity plus its working hours so
// callers can compute availability without a second round trip.
func (s *server) GetTenant(ctx context.Context, req *tenantv1.GetTenantRequest) (*tenantv1.GetTenantResponse, error) {
	t, err := s.repo.GetTenant(ctx, req.GetSlug())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, status.Error(codes.NotFound, "tenant not found")
		}
		return nil, status.Error(codes.Internal, "tenant lookup failed")
	}

	resp := &tenantv1.GetTenantResponse{
		Slug:     t.Slug,
		Name:     t.Name,
		Timezone: t.Timezone,
		Plan:     t.Plan,
		Active:   t.Status == "active" || t.Status == "trial",
	}

	hours, err := s.repo.GetWorkingHours(ctx, t.Slug)
	if err != nil {
		return nil, status.Error(codes.Internal, "working hours lookup failed")
	}
	for _, d := range hours {
		resp.WorkingHours = append(resp.WorkingHours, &tenantv1.DayHours{
			Weekday:     int32(d.Weekday),
			IsOpen:      d.IsOpen,
			OpenMinute:  int32(d.OpenMinute),
			CloseMinute: int32(d.CloseMinute),
		})
	}
	return resp, nil
}

func (s *server) GetService(ctx context.Context, req *tenantv1.GetServiceRequest) (*tenantv1.GetServiceResponse, error) {
	svc, err := s.repo.GetService(ctx, req.GetTenantSlug(), req.GetServiceId())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, status.Error(codes.NotFound, "service not found")
		}
		return nil, status.Error(codes.Internal, "service lookup failed")
	}
	return &tenantv1.GetServiceResponse{
		Id:              svc.ID,
		Name:            svc.Name,
		DurationMinutes: int32(svc.DurationMinutes),
		Price:           svc.Price,
		Active:          svc.Active,
	}, nil
}

func (s *server) GetStaff(ctx context.Context, req *tenantv1.GetStaffRequest) (*tenantv1.GetStaffResponse, error) {
	member, err := s.repo.GetStaffMember(ctx, req.GetTenantSlug(), req.GetStaffId())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, status.Error(codes.NotFound, "staff not found")
		}
		return nil, status.Error(codes.Internal, "staff lookup failed")
	}
	return &tenantv1.GetStaffResponse{
		Id:     member.ID,
		Name:   member.Name,
		Active: member.Active,
	}, nil
}
