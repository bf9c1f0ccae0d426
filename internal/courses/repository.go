package courses

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kampus-akademi/backend/internal/apperr"
	"github.com/kampus-akademi/backend/internal/models"
)

const courseColumns = `id, slug, name, description, category, level, locale, price::text, currency, gateway_product_id, is_active, created_at, updated_at`

// Repository handles course catalog persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a course repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns a course by id, active or not.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Course, error) {
	return r.getOne(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id)
}

// GetActive returns a purchasable course. Inactive courses are reported as not found.
func (r *Repository) GetActive(ctx context.Context, id string) (*models.Course, error) {
	return r.getOne(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = $1 AND is_active`, id)
}

// GetByProductID maps the processor's product identifier to a course.
func (r *Repository) GetByProductID(ctx context.Context, productID string) (*models.Course, error) {
	return r.getOne(ctx, `SELECT `+courseColumns+` FROM courses WHERE gateway_product_id = $1`, productID)
}

// List returns active courses matching f.
func (r *Repository) List(ctx context.Context, f models.CourseFilter) ([]models.Course, error) {
	conds := []string{"is_active"}
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if f.Level != "" {
		add("level = $%d", f.Level)
	}
	if f.Locale != "" {
		add("locale = $%d", f.Locale)
	}
	if f.Query != "" {
		add(`(name ILIKE $%[1]d ESCAPE '\' OR description ILIKE $%[1]d ESCAPE '\')`, containsPattern(f.Query))
	}
	if f.FreeOnly {
		conds = append(conds, "price = 0")
	}
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	q := fmt.Sprintf(`SELECT %s FROM courses WHERE %s ORDER BY name LIMIT $%d OFFSET $%d`,
		courseColumns, strings.Join(conds, " AND "), len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, apperr.Persistence("list courses", err)
	}
	defer rows.Close()
	var list []models.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, apperr.Persistence("scan course", err)
		}
		list = append(list, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("list courses", err)
	}
	return list, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern is an ILIKE pattern matching q literally anywhere in the text.
func containsPattern(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}

// Upsert inserts or updates a course by id.
func (r *Repository) Upsert(ctx context.Context, c *models.Course) error {
	const q = `INSERT INTO courses (id, slug, name, description, category, level, locale, price, currency, gateway_product_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET slug = EXCLUDED.slug, name = EXCLUDED.name, description = EXCLUDED.description,
			category = EXCLUDED.category, level = EXCLUDED.level, locale = EXCLUDED.locale, price = EXCLUDED.price,
			currency = EXCLUDED.currency, gateway_product_id = EXCLUDED.gateway_product_id, is_active = EXCLUDED.is_active,
			updated_at = NOW()
		RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, c.ID, c.Slug, c.Name, c.Description, c.Category, c.Level, c.Locale,
		c.Price.String(), c.Currency, c.GatewayProductID, c.IsActive).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return apperr.Persistence("upsert course", err)
	}
	return nil
}

func (r *Repository) getOne(ctx context.Context, q string, args ...interface{}) (*models.Course, error) {
	c, err := scanCourse(r.pool.QueryRow(ctx, q, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("course not found")
	}
	if err != nil {
		return nil, apperr.Persistence("get course", err)
	}
	return c, nil
}

func scanCourse(row pgx.Row) (*models.Course, error) {
	var c models.Course
	err := row.Scan(&c.ID, &c.Slug, &c.Name, &c.Description, &c.Category, &c.Level, &c.Locale, &c.Price, &c.Currency,
		&c.GatewayProductID, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
