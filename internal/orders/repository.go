package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kampus-akademi/backend/internal/apperr"
	"github.com/kampus-akademi/backend/internal/models"
)

const orderColumns = `id, course_id, course_name, email, amount::text, status, payment_method, metadata,
	COALESCE(discount_code,''), discount_amount::text, enrolled, enrollment_id::text,
	COALESCE(client_ip,''), COALESCE(user_agent,''), created_at, updated_at`

// Repository handles order persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an orders repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts o. inserted is false when an order with the same id already exists.
func (r *Repository) Create(ctx context.Context, o *models.Order) (inserted bool, err error) {
	meta, err := json.Marshal(o.Metadata)
	if err != nil {
		return false, fmt.Errorf("marshal order metadata: %w", err)
	}
	const q = `INSERT INTO orders (id, course_id, course_name, email, amount, status, payment_method, metadata,
			discount_code, discount_amount, client_ip, user_agent)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8::jsonb, NULLIF($9,''), $10::numeric, NULLIF($11,''), NULLIF($12,''))
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at, updated_at`
	err = r.pool.QueryRow(ctx, q, o.ID, o.CourseID, o.CourseName, o.Email, o.Amount.String(), string(o.Status),
		o.PaymentMethod, string(meta), o.DiscountCode, o.DiscountAmount.String(), o.ClientIP, o.UserAgent).
		Scan(&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Persistence("insert order", err)
	}
	return true, nil
}

// Get returns an order by id.
func (r *Repository) Get(ctx context.Context, id string) (*models.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("order not found")
	}
	if err != nil {
		return nil, apperr.Persistence("get order", err)
	}
	return o, nil
}

// MarkCompleted moves a pending order to completed and merges patch into its metadata.
// It reports false when the order was not pending.
func (r *Repository) MarkCompleted(ctx context.Context, id string, patch models.OrderMetadata) (bool, error) {
	b, err := json.Marshal(patch)
	if err != nil {
		return false, fmt.Errorf("marshal metadata patch: %w", err)
	}
	const q = `UPDATE orders SET status = 'completed', metadata = metadata || $2::jsonb, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`
	tag, err := r.pool.Exec(ctx, q, id, string(b))
	if err != nil {
		return false, apperr.Persistence("complete order", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed moves a pending order to failed. A completed order is never flipped.
func (r *Repository) MarkFailed(ctx context.Context, id, reason string) (bool, error) {
	const q = `UPDATE orders SET status = 'failed',
			metadata = jsonb_set(metadata, '{failure_reason}', to_jsonb($2::text)), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`
	tag, err := r.pool.Exec(ctx, q, id, reason)
	if err != nil {
		return false, apperr.Persistence("fail order", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkEnrolled links the order to its enrollment.
func (r *Repository) MarkEnrolled(ctx context.Context, id string, enrollmentID uuid.UUID) error {
	const q = `UPDATE orders SET enrolled = TRUE, enrollment_id = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, id, enrollmentID); err != nil {
		return apperr.Persistence("mark order enrolled", err)
	}
	return nil
}

// ListUnenrolledWebhookOrders returns completed webhook orders for email that have no enrollment yet.
func (r *Repository) ListUnenrolledWebhookOrders(ctx context.Context, email string) ([]models.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders
		WHERE lower(email) = lower($1) AND status = 'completed' AND payment_method = $2 AND NOT enrolled
		ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q, email, models.PaymentMethodWebhook)
	if err != nil {
		return nil, apperr.Persistence("list unenrolled orders", err)
	}
	defer rows.Close()
	var list []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, apperr.Persistence("scan order", err)
		}
		list = append(list, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("list unenrolled orders", err)
	}
	return list, nil
}

// ListUnenrolledWebhookEmails returns up to limit distinct buyer emails, in order and after the
// cursor after, whose unenrolled webhook orders now belong to a registered account.
func (r *Repository) ListUnenrolledWebhookEmails(ctx context.Context, after string, limit int) ([]string, error) {
	const q = `SELECT DISTINCT lower(o.email) AS email FROM orders o
		WHERE o.status = 'completed' AND o.payment_method = $1 AND NOT o.enrolled
			AND lower(o.email) > $2
			AND EXISTS (SELECT 1 FROM users u WHERE lower(u.email) = lower(o.email))
		ORDER BY email
		LIMIT $3`
	rows, err := r.pool.Query(ctx, q, models.PaymentMethodWebhook, strings.ToLower(after), limit)
	if err != nil {
		return nil, apperr.Persistence("list unenrolled emails", err)
	}
	defer rows.Close()
	var emails []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, apperr.Persistence("scan email", err)
		}
		emails = append(emails, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("list unenrolled emails", err)
	}
	return emails, nil
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	var status string
	var enrollmentID *string
	err := row.Scan(&o.ID, &o.CourseID, &o.CourseName, &o.Email, &o.Amount, &status, &o.PaymentMethod, &o.Metadata,
		&o.DiscountCode, &o.DiscountAmount, &o.Enrolled, &enrollmentID,
		&o.ClientIP, &o.UserAgent, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = models.OrderStatus(status)
	o.EnrollmentID = enrollmentID
	return &o, nil
}
