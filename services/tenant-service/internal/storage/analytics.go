package storage

import (
	"context"
	"time"
)

// DashboardStats summarizes a tenant's bookings over a period. Revenue only
// counts completed appointments at their snapshotted price.
type DashboardStats struct {
	Total     int     `json:"total"`
	Pending   int     `json:"pending"`
	Confirmed int     `json:"confirmed"`
	Cancelled int     `json:"cancelled"`
	Completed int     `json:"completed"`
	NoShow    int     `json:"no_show"`
	Revenue   float64 `json:"revenue"`
	Upcoming  int     `json:"upcoming"`
}

type ServiceStats struct {
	ServiceID   string  `json:"service_id"`
	ServiceName string  `json:"service_name"`
	Bookings    int     `json:"bookings"`
	Revenue     float64 `json:"revenue"`
}

func (r *Repository) DashboardStats(ctx context.Context, slug string, from, to time.Time) (DashboardStats, error) {
	var s DashboardStats
	err := r.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE status = 'pending'),
		       count(*) FILTER (WHERE status = 'confirmed'),
		       count(*) FILTER (WHERE status = 'cancelled'),
		       count(*) FILTER (WHERE status = 'completed'),
		       count(*) FILTER (WHERE status = 'no_show'),
		       COALESCE(sum(service_price) FILTER (WHERE status = 'completed'), 0)
		FROM appointments
		WHERE tenant_slug = $1 AND start_time >= $2 AND start_time < $3
	`, slug, from, to).Scan(&s.Total, &s.Pending, &s.Confirmed, &s.Cancelled, &s.Completed, &s.NoShow, &s.Revenue)
	if err != nil {
		return DashboardStats{}, err
	}

	err = r.pool.QueryRow(ctx, `
		SELECT count(*) FROM appointments
		WHERE tenant_slug = $1 AND status = 'confirmed' AND start_time >= now()
	`, slug).Scan(&s.Upcoming)
	return s, err
}

func (r *Repository) TopServices(ctx context.Context, slug string, from, to time.Time, limit int) ([]ServiceStats, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := r.pool.Query(ctx, `
		SELECT service_id, service_name,
		       count(*),
		       COALESCE(sum(service_price) FILTER (WHERE status = 'completed'), 0)
		FROM appointments
		WHERE tenant_slug = $1
		  AND status <> 'cancelled'
		  AND start_time >= $2 AND start_time < $3
		GROUP BY service_id, service_name
		ORDER BY count(*) DESC
		LIMIT $4
	`, slug, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ServiceStats
	for rows.Next() {
		var s ServiceStats
		if err := rows.Scan(&s.ServiceID, &s.ServiceName, &s.Bookings, &s.Revenue); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
