package emaillogs

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kampus-akademi/backend/internal/apperr"
	"github.com/kampus-akademi/backend/internal/models"
)

// Repository handles email_logs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an email logs repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	OrderID string
	Status  string
	Limit   int
}

const selectColumns = `SELECT id, order_id, submission_id, email_type, recipient_email, subject, status, sent_at, error_message, created_at FROM email_logs`

// Create inserts a pending log row and fills in its id and created_at.
func (r *Repository) Create(ctx context.Context, el *models.EmailLog) error {
	const q = `INSERT INTO email_logs (order_id, submission_id, email_type, recipient_email, subject, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	if el.Status == "" {
		el.Status = models.EmailLogStatusPending
	}
	err := r.pool.QueryRow(ctx, q, el.OrderID, el.SubmissionID, el.EmailType, el.RecipientEmail, el.Subject, el.Status).
		Scan(&el.ID, &el.CreatedAt)
	if err != nil {
		return apperr.Persistence("insert email log", err)
	}
	return nil
}

// MarkSent records a successful delivery.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE email_logs SET status = 'sent', sent_at = NOW(), error_message = NULL WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, id); err != nil {
		return apperr.Persistence("mark email sent", err)
	}
	return nil
}

// MarkFailed records a delivery that will not be retried.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	const q = `UPDATE email_logs SET status = 'failed', error_message = $2 WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, id, reason); err != nil {
		return apperr.Persistence("mark email failed", err)
	}
	return nil
}

// List returns email logs, newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]*models.EmailLog, error) {
	var (
		conds []string
		args  []interface{}
	)
	if f.OrderID != "" {
		args = append(args, f.OrderID)
		conds = append(conds, fmt.Sprintf("order_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	q := selectColumns
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, apperr.Persistence("list email logs", err)
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]*models.EmailLog, error) {
	defer rows.Close()
	var list []*models.EmailLog
	for rows.Next() {
		var el models.EmailLog
		var subject, errMsg *string
		if err := rows.Scan(&el.ID, &el.OrderID, &el.SubmissionID, &el.EmailType, &el.RecipientEmail, &subject, &el.Status, &el.SentAt, &errMsg, &el.CreatedAt); err != nil {
			return nil, apperr.Persistence("scan email log", err)
		}
		if subject != nil {
			el.Subject = *subject
		}
		if errMsg != nil {
			el.ErrorMessage = *errMsg
		}
		list = append(list, &el)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("list email logs", err)
	}
	return list, nil
}
