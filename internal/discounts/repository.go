package discounts

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kampus-akademi/backend/internal/apperr"
	"github.com/kampus-akademi/backend/internal/models"
)

const codeColumns = `code, owner_user_id, is_referral, discount_type, discount_value::text, usage_count, max_usage,
	has_balance_limit, remaining_balance::text, used_by, used_at, valid_from, valid_until, created_at, updated_at`

// Repository persists discount codes, redemptions and referral usages.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a discounts repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetCode returns a code, case-insensitively.
func (r *Repository) GetCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	return r.getOne(ctx, `SELECT `+codeColumns+` FROM discount_codes WHERE upper(code) = upper($1)`, code)
}

// GetReferralCodeByOwner returns the referral code owned by a user.
func (r *Repository) GetReferralCodeByOwner(ctx context.Context, ownerUserID string) (*models.DiscountCode, error) {
	return r.getOne(ctx, `SELECT `+codeColumns+` FROM discount_codes WHERE owner_user_id = $1 AND is_referral`, ownerUserID)
}

// CreateCode inserts d. created is false when the code already exists.
func (r *Repository) CreateCode(ctx context.Context, d *models.DiscountCode) (bool, error) {
	const q = `INSERT INTO discount_codes (code, owner_user_id, is_referral, discount_type, discount_value, max_usage,
			has_balance_limit, remaining_balance, valid_from, valid_until)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8::numeric, $9, $10)
		ON CONFLICT DO NOTHING
		RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, d.Code, d.OwnerUserID, d.IsReferral, d.DiscountType, d.DiscountValue.String(), d.MaxUsage,
		d.HasBalanceLimit, d.RemainingBalance.String(), d.ValidFrom, d.ValidUntil).Scan(&d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Persistence("insert discount code", err)
	}
	return true, nil
}

// MarkUsed records who last applied a code. Balance and usage are untouched.
func (r *Repository) MarkUsed(ctx context.Context, code, userID string, at time.Time) error {
	const q = `UPDATE discount_codes SET used_by = $2, used_at = $3, updated_at = NOW() WHERE upper(code) = upper($1)`
	if _, err := r.pool.Exec(ctx, q, code, userID, at); err != nil {
		return apperr.Persistence("mark discount used", err)
	}
	return nil
}

// Redeem consumes a code for an order once: usage is incremented and any balance decremented, floored at zero.
// applied is false when the order already redeemed this code.
func (r *Repository) Redeem(ctx context.Context, orderID, code string, amount decimal.Decimal) (applied bool, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, apperr.Persistence("begin redemption tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const ins = `INSERT INTO discount_redemptions (order_id, code, amount)
		SELECT $1, code, $3::numeric FROM discount_codes WHERE upper(code) = upper($2)
		ON CONFLICT (order_id, code) DO NOTHING`
	tag, err := tx.Exec(ctx, ins, orderID, code, amount.String())
	if err != nil {
		return false, apperr.Persistence("insert redemption", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	const upd = `UPDATE discount_codes SET
			usage_count = LEAST(usage_count + 1, max_usage),
			remaining_balance = CASE WHEN has_balance_limit THEN GREATEST(remaining_balance - $2::numeric, 0) ELSE remaining_balance END,
			updated_at = NOW()
		WHERE upper(code) = upper($1)`
	if _, err := tx.Exec(ctx, upd, code, amount.String()); err != nil {
		return false, apperr.Persistence("consume discount", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, apperr.Persistence("commit redemption", err)
	}
	return true, nil
}

// RecordReferralUsage stores u once per order and bumps the referral code's usage.
// It returns whether the row was new and the referrer's total successful referrals.
func (r *Repository) RecordReferralUsage(ctx context.Context, u *models.ReferralUsage) (inserted bool, referrals int, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, 0, apperr.Persistence("begin referral tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const ins = `INSERT INTO referral_usages (order_id, referral_code, referrer_user_id, referred_user_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id) DO NOTHING
		RETURNING created_at`
	err = tx.QueryRow(ctx, ins, u.OrderID, u.ReferralCode, u.ReferrerUserID, u.ReferredUserID).Scan(&u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, apperr.Persistence("insert referral usage", err)
	}
	const upd = `UPDATE discount_codes SET usage_count = LEAST(usage_count + 1, max_usage), updated_at = NOW() WHERE code = $1`
	if _, err := tx.Exec(ctx, upd, u.ReferralCode); err != nil {
		return false, 0, apperr.Persistence("increment referral usage", err)
	}
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM referral_usages WHERE referrer_user_id = $1`, u.ReferrerUserID).Scan(&referrals); err != nil {
		return false, 0, apperr.Persistence("count referrals", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, 0, apperr.Persistence("commit referral usage", err)
	}
	return true, referrals, nil
}

// SetRewardCode links an issued reward code to the referral usage that earned it.
func (r *Repository) SetRewardCode(ctx context.Context, orderID, rewardCode string) error {
	const q = `UPDATE referral_usages SET reward_code = $2 WHERE order_id = $1`
	if _, err := r.pool.Exec(ctx, q, orderID, rewardCode); err != nil {
		return apperr.Persistence("set reward code", err)
	}
	return nil
}

// ListReferralUsages returns the referrals credited to a user, newest first.
func (r *Repository) ListReferralUsages(ctx context.Context, referrerUserID string) ([]models.ReferralUsage, error) {
	const q = `SELECT order_id, referral_code, referrer_user_id, referred_user_id, reward_code, created_at
		FROM referral_usages WHERE referrer_user_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, referrerUserID)
	if err != nil {
		return nil, apperr.Persistence("list referral usages", err)
	}
	defer rows.Close()
	var list []models.ReferralUsage
	for rows.Next() {
		var u models.ReferralUsage
		if err := rows.Scan(&u.OrderID, &u.ReferralCode, &u.ReferrerUserID, &u.ReferredUserID, &u.RewardCode, &u.CreatedAt); err != nil {
			return nil, apperr.Persistence("scan referral usage", err)
		}
		list = append(list, u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("list referral usages", err)
	}
	return list, nil
}

func (r *Repository) getOne(ctx context.Context, q string, args ...interface{}) (*models.DiscountCode, error) {
	var d models.DiscountCode
	err := r.pool.QueryRow(ctx, q, args...).Scan(&d.Code, &d.OwnerUserID, &d.IsReferral, &d.DiscountType, &d.DiscountValue,
		&d.UsageCount, &d.MaxUsage, &d.HasBalanceLimit, &d.RemainingBalance, &d.UsedBy, &d.UsedAt,
		&d.ValidFrom, &d.ValidUntil, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("discount code not found")
	}
	if err != nil {
		return nil, apperr.Persistence("get discount code", err)
	}
	return &d, nil
}
