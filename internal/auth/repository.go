package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kampus-akademi/backend/internal/apperr"
	"github.com/kampus-akademi/backend/internal/models"
)

const userColumns = `id, email, password_hash, full_name, COALESCE(phone,''), locale, role, created_at, updated_at`

// Repository handles user persistence. It is the identity provider for the checkout workflow.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail returns a user by email, case-insensitively.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

// LookupIDByEmail maps a buyer email to a registered account id. It returns "" when no account exists.
func (r *Repository) LookupIDByEmail(ctx context.Context, email string) (string, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT id FROM users WHERE lower(email) = lower($1)`, strings.TrimSpace(email)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", apperr.Persistence("lookup user by email", err)
	}
	return id.String(), nil
}

// CreateUserParams holds the fields of a new account.
type CreateUserParams struct {
	Email        string
	PasswordHash string
	FullName     string
	Phone        string
	Locale       string
	Role         models.Role
}

// Create inserts a new user.
func (r *Repository) Create(ctx context.Context, p CreateUserParams) (*models.User, error) {
	const q = `INSERT INTO users (email, password_hash, full_name, phone, locale, role)
		VALUES (lower($1), $2, $3, NULLIF($4,''), $5, $6)
		RETURNING ` + userColumns
	return r.getOne(ctx, q, p.Email, p.PasswordHash, p.FullName, p.Phone, p.Locale, string(p.Role))
}

func (r *Repository) getOne(ctx context.Context, q string, args ...interface{}) (*models.User, error) {
	var u models.User
	var role string
	err := r.pool.QueryRow(ctx, q, args...).Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.Phone, &u.Locale, &role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Persistence("query user", err)
	}
	u.Role = models.Role(role)
	return &u, nil
}
