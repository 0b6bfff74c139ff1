package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tmachado/agendly/libs/db"
)

type User struct {
	ID           string
	TenantSlug   string
	Email        string
	Name         string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

type UserRepository struct {
	pool *db.Pool
}

func NewUserRepository(pool *db.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) CreateTx(ctx context.Context, tx pgx.Tx, user User) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO users (id, tenant_slug, email, name, password_hash, role)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, user.TenantSlug, user.Email, user.Name, user.PasswordHash, user.Role)
	return err
}

// GetByEmail looks a user up within a tenant; the same address may exist
// under different tenants.
func (r *UserRepository) GetByEmail(ctx context.Context, tenantSlug, email string) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_slug, email, name, password_hash, role, created_at
		FROM users
		WHERE tenant_slug = $1 AND email = $2
	`, tenantSlug, email).Scan(&user.ID, &user.TenantSlug, &user.Email, &user.Name, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_slug, email, name, password_hash, role, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &user.TenantSlug, &user.Email, &user.Name, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// CountByTenant backs the first-account rule: a tenant with no users yet
// gets an owner, everything after that needs an owner's token.
func (r *UserRepository) CountByTenant(ctx context.Context, tenantSlug string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM users WHERE tenant_slug = $1
	`, tenantSlug).Scan(&n)
	return n, err
}

func IsNotFound(err error) bool {
	return err == pgx.ErrNoRows
}
