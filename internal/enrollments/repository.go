package enrollments

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kampus-akademi/backend/internal/apperr"
	"github.com/kampus-akademi/backend/internal/models"
)

// Outcome tells how Ensure satisfied the request.
type Outcome string

const (
	OutcomeCreated       Outcome = "new"
	OutcomeReactivated   Outcome = "reactivated"
	OutcomeAlreadyActive Outcome = "existing"
)

const enrollmentColumns = `id, user_id, course_id, enrolled_at, progress_percentage, is_active, created_at, updated_at`

// Repository handles enrollment persistence.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRepository creates an enrollments repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

// Ensure returns the active enrollment for (userID, courseID), creating or reactivating it.
// The unique (user_id, course_id) constraint is the "already enrolled" signal; concurrent
// callers serialize on the existing row.
func (r *Repository) Ensure(ctx context.Context, userID, courseID string) (*models.Enrollment, Outcome, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, "", apperr.Persistence("begin enrollment tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const ins = `INSERT INTO enrollments (user_id, course_id) VALUES ($1, $2)
		ON CONFLICT (user_id, course_id) DO NOTHING
		RETURNING ` + enrollmentColumns
	e, err := scanEnrollment(tx.QueryRow(ctx, ins, userID, courseID))
	if err == nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, "", apperr.Persistence("commit enrollment", err)
		}
		return e, OutcomeCreated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, "", apperr.Persistence("insert enrollment", err)
	}

	const sel = `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_id = $1 AND course_id = $2 FOR UPDATE`
	e, err = scanEnrollment(tx.QueryRow(ctx, sel, userID, courseID))
	if err != nil {
		return nil, "", apperr.Persistence("lock enrollment", err)
	}
	outcome := resolveExisting(e, r.now())
	if outcome == OutcomeReactivated {
		const upd = `UPDATE enrollments SET is_active = TRUE, progress_percentage = 0, enrolled_at = $2, updated_at = $2 WHERE id = $1`
		if _, err := tx.Exec(ctx, upd, e.ID, e.EnrolledAt); err != nil {
			return nil, "", apperr.Persistence("reactivate enrollment", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, "", apperr.Persistence("commit enrollment", err)
	}
	return e, outcome, nil
}

// resolveExisting decides what to do with a row that already exists, mutating e when it must be reactivated.
func resolveExisting(e *models.Enrollment, now time.Time) Outcome {
	if e.IsActive {
		return OutcomeAlreadyActive
	}
	e.Reactivate(now)
	return OutcomeReactivated
}

// ListActiveByUser returns a user's active enrollments, newest first.
func (r *Repository) ListActiveByUser(ctx context.Context, userIDs ...string) ([]models.Enrollment, error) {
	q := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_id = ANY($1) AND is_active ORDER BY enrolled_at DESC`
	rows, err := r.pool.Query(ctx, q, userIDs)
	if err != nil {
		return nil, apperr.Persistence("list enrollments", err)
	}
	defer rows.Close()
	var list []models.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, apperr.Persistence("scan enrollment", err)
		}
		list = append(list, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("list enrollments", err)
	}
	return list, nil
}

// Deactivate soft-deletes an enrollment. The row is kept so a later purchase reactivates it.
func (r *Repository) Deactivate(ctx context.Context, userID, courseID string) error {
	const q = `UPDATE enrollments SET is_active = FALSE, updated_at = NOW() WHERE user_id = $1 AND course_id = $2`
	tag, err := r.pool.Exec(ctx, q, userID, courseID)
	if err != nil {
		return apperr.Persistence("deactivate enrollment", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("enrollment not found")
	}
	return nil
}

func scanEnrollment(row pgx.Row) (*models.Enrollment, error) {
	var e models.Enrollment
	if err := row.Scan(&e.ID, &e.UserID, &e.CourseID, &e.EnrolledAt, &e.ProgressPercentage, &e.IsActive, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}
