package forms

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kampus-akademi/backend/internal/apperr"
	"github.com/kampus-akademi/backend/internal/models"
)

// Repository handles form_submissions persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a form submissions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a submission. The caller assigns the id so attachment keys can use it.
func (r *Repository) Create(ctx context.Context, s *models.FormSubmission) error {
	const q = `INSERT INTO form_submissions (id, kind, email, full_name, locale, fields, attachment_key)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
		RETURNING created_at`
	err := r.pool.QueryRow(ctx, q, s.ID, s.Kind, s.Email, s.FullName, s.Locale, string(s.Fields), s.AttachmentKey).
		Scan(&s.CreatedAt)
	if err != nil {
		return apperr.Persistence("insert form submission", err)
	}
	return nil
}

// List returns submissions of kind (all kinds when empty), newest first.
func (r *Repository) List(ctx context.Context, kind string, limit int) ([]*models.FormSubmission, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const q = `SELECT id, kind, email, full_name, locale, fields::text, attachment_key, created_at
		FROM form_submissions
		WHERE ($1 = '' OR kind = $1)
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, q, kind, limit)
	if err != nil {
		return nil, apperr.Persistence("list form submissions", err)
	}
	defer rows.Close()
	var list []*models.FormSubmission
	for rows.Next() {
		var s models.FormSubmission
		var fields string
		if err := rows.Scan(&s.ID, &s.Kind, &s.Email, &s.FullName, &s.Locale, &fields, &s.AttachmentKey, &s.CreatedAt); err != nil {
			return nil, apperr.Persistence("scan form submission", err)
		}
		s.Fields = []byte(fields)
		list = append(list, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("list form submissions", err)
	}
	return list, nil
}
