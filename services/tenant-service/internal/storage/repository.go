// Package storage persists tenant profiles, working hours and the service
// and staff catalogs.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tmachado/agendly/libs/db"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrSlugTaken = errors.New("slug already taken")
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Pool() *db.Pool { return r.pool }

type Tenant struct {
	Slug        string
	Name        string
	Email       string
	Phone       string
	Timezone    string
	Plan        string
	Status      string
	TrialEndsAt *time.Time
	CreatedAt   time.Time
}

type DayHours struct {
	Weekday     int
	IsOpen      bool
	OpenMinute  int
	CloseMinute int
}

// CreateTenant registers a tenant on a trial and seeds the default week:
// Monday to Friday, 09:00-18:00.
func (r *Repository) CreateTenant(ctx context.Context, t Tenant) error {
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO tenants (slug, name, email, phone, timezone, plan, status, trial_ends_at)
			VALUES ($1, $2, $3, $4, $5, $6, 'trial', $7)
		`, t.Slug, t.Name, t.Email, t.Phone, t.Timezone, t.Plan, t.TrialEndsAt); err != nil {
			return err
		}

		for wd := 0; wd <= 6; wd++ {
			open := wd >= 1 && wd <= 5
			openMin, closeMin := 540, 1080
			if !open {
				openMin, closeMin = 0, 0
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO tenant_working_hours (tenant_slug, weekday, is_open, open_minute, close_minute)
				VALUES ($1, $2, $3, $4, $5)
			`, t.Slug, wd, open, openMin, closeMin); err != nil {
				return err
			}
		}
		return nil
	})
	if isUniqueViolation(err) {
		return ErrSlugTaken
	}
	return err
}

func (r *Repository) GetTenant(ctx context.Context, slug string) (Tenant, error) {
	var t Tenant
	err := r.pool.QueryRow(ctx, `
		SELECT slug, name, email, phone, timezone, plan, status, trial_ends_at, created_at
		FROM tenants
		WHERE slug = $1
	`, slug).Scan(&t.Slug, &t.Name, &t.Email, &t.Phone, &t.Timezone, &t.Plan, &t.Status, &t.TrialEndsAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, ErrNotFound
	}
	return t, err
}

func (r *Repository) UpdateProfile(ctx context.Context, slug, name, email, phone, timezone string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tenants
		SET name = $2, email = $3, phone = $4, timezone = $5, updated_at = now()
		WHERE slug = $1
	`, slug, name, email, phone, timezone)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePlan changes the tenant's plan inside the caller's transaction so the
// plan-changed event commits atomically with it.
func (r *Repository) UpdatePlan(ctx context.Context, tx pgx.Tx, slug, newPlan, status string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE tenants
		SET plan = $2, status = $3, updated_at = now()
		WHERE slug = $1
	`, slug, newPlan, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) GetWorkingHours(ctx context.Context, slug string) ([]DayHours, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, is_open, open_minute, close_minute
		FROM tenant_working_hours
		WHERE tenant_slug = $1
		ORDER BY weekday
	`, slug)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DayHours
	for rows.Next() {
		var d DayHours
		if err := rows.Scan(&d.Weekday, &d.IsOpen, &d.OpenMinute, &d.CloseMinute); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Repository) PutWorkingHours(ctx context.Context, slug string, hours []DayHours) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		for _, d := range hours {
			if _, err := tx.Exec(ctx, `
				INSERT INTO tenant_working_hours (tenant_slug, weekday, is_open, open_minute, close_minute)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (tenant_slug, weekday) DO UPDATE
				SET is_open = EXCLUDED.is_open,
				    open_minute = EXCLUDED.open_minute,
				    close_minute = EXCLUDED.close_minute
			`, slug, d.Weekday, d.IsOpen, d.OpenMinute, d.CloseMinute); err != nil {
				return err
			}
		}
		return nil
	})
}

type Service struct {
	ID              string
	TenantSlug      string
	Name            string
	DurationMinutes int
	Price           float64
	Description     string
	Active          bool
	CreatedAt       time.Time
}

func (r *Repository) CreateService(ctx context.Context, s Service) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO services (id, tenant_slug, name, duration_minutes, price, description, active)
		VALUES ($1, $2, $3, $4, $5, $6, true)
	`, id, s.TenantSlug, s.Name, s.DurationMinutes, s.Price, s.Description)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListServices(ctx context.Context, slug string, activeOnly bool) ([]Service, error) {
	q := `
		SELECT id, tenant_slug, name, duration_minutes, price, description, active, created_at
		FROM services
		WHERE tenant_slug = $1`
	if activeOnly {
		q += ` AND active`
	}
	q += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, q, slug)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.TenantSlug, &s.Name, &s.DurationMinutes, &s.Price, &s.Description, &s.Active, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) GetService(ctx context.Context, slug, id string) (Service, error) {
	var s Service
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_slug, name, duration_minutes, price, description, active, created_at
		FROM services
		WHERE tenant_slug = $1 AND id = $2
	`, slug, id).Scan(&s.ID, &s.TenantSlug, &s.Name, &s.DurationMinutes, &s.Price, &s.Description, &s.Active, &s.CreatedAt)
	if err == pgx.ErrNoRows {
		return Service{}, ErrNotFound
	}
	return s, err
}

func (r *Repository) CountActiveServices(ctx context.Context, slug string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM services WHERE tenant_slug = $1 AND active
	`, slug).Scan(&n)
	return n, err
}

func (r *Repository) DeactivateService(ctx context.Context, slug, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE services SET active = false WHERE tenant_slug = $1 AND id = $2
	`, slug, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type Staff struct {
	ID         string
	TenantSlug string
	Name       string
	Active     bool
	CreatedAt  time.Time
}

func (r *Repository) CreateStaff(ctx context.Context, slug, name string) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO staff (id, tenant_slug, name, active)
		VALUES ($1, $2, $3, true)
	`, id, slug, name)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListStaff(ctx context.Context, slug string, activeOnly bool) ([]Staff, error) {
	q := `
		SELECT id, tenant_slug, name, active, created_at
		FROM staff
		WHERE tenant_slug = $1`
	if activeOnly {
		q += ` AND active`
	}
	q += ` ORDER BY created_at`

	rows, err := r.pool.Query(ctx, q, slug)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Staff
	for rows.Next() {
		var s Staff
		if err := rows.Scan(&s.ID, &s.TenantSlug, &s.Name, &s.Active, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) GetStaffMember(ctx context.Context, slug, id string) (Staff, error) {
	var s Staff
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_slug, name, active, created_at
		FROM staff
		WHERE tenant_slug = $1 AND id = $2
	`, slug, id).Scan(&s.ID, &s.TenantSlug, &s.Name, &s.Active, &s.CreatedAt)
	if err == pgx.ErrNoRows {
		return Staff{}, ErrNotFound
	}
	return s, err
}

func (r *Repository) CountActiveStaff(ctx context.Context, slug string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM staff WHERE tenant_slug = $1 AND active
	`, slug).Scan(&n)
	return n, err
}

func (r *Repository) DeactivateStaff(ctx context.Context, slug, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE staff SET active = false WHERE tenant_slug = $1 AND id = $2
	`, slug, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
