// Package discounts is the discount and referral ledger.
package discounts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jaevor/go-nanoid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kampus-akademi/backend/config"
	"github.com/kampus-akademi/backend/internal/apperr"
	"github.com/kampus-akademi/backend/internal/models"
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var hundred = decimal.NewFromInt(100)

// Store is the persistence the ledger needs.
type Store interface {
	GetCode(ctx context.Context, code string) (*models.DiscountCode, error)
	GetReferralCodeByOwner(ctx context.Context, ownerUserID string) (*models.DiscountCode, error)
	CreateCode(ctx context.Context, d *models.DiscountCode) (bool, error)
	MarkUsed(ctx context.Context, code, userID string, at time.Time) error
	Redeem(ctx context.Context, orderID, code string, amount decimal.Decimal) (bool, error)
	RecordReferralUsage(ctx context.Context, u *models.ReferralUsage) (bool, int, error)
	SetRewardCode(ctx context.Context, orderID, rewardCode string) error
	ListReferralUsages(ctx context.Context, referrerUserID string) ([]models.ReferralUsage, error)
}

// Ledger validates, redeems and issues discount and referral codes.
type Ledger struct {
	store        Store
	cfg          config.ReferralConfig
	rewardAmount decimal.Decimal
	newCode      func() string
	now          func() time.Time
	logger       *zap.Logger
}

// NewLedger creates a ledger.
func NewLedger(store Store, cfg config.ReferralConfig, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	reward, err := decimal.NewFromString(cfg.RewardAmount)
	if err != nil {
		return nil, fmt.Errorf("parse referral reward amount: %w", err)
	}
	gen, err := nanoid.CustomASCII(codeAlphabet, 8)
	if err != nil {
		return nil, fmt.Errorf("code generator: %w", err)
	}
	return &Ledger{store: store, cfg: cfg, rewardAmount: reward, newCode: gen, now: time.Now, logger: logger}, nil
}

// ValidateAndReserveDiscount checks that code can grant discountAmount on a course costing coursePrice
// and records who applied it. The balance is only consumed by Redeem after payment.
func (l *Ledger) ValidateAndReserveDiscount(ctx context.Context, code, userID string, discountAmount, coursePrice decimal.Decimal) error {
	d, err := l.store.GetCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return err
	}
	if d.IsReferral {
		return apperr.InvalidRequest("referral codes cannot be applied as discounts")
	}
	if err := l.checkUsable(d); err != nil {
		return err
	}
	if discountAmount.IsNegative() {
		return apperr.InvalidRequest("discount amount must not be negative")
	}
	if discountAmount.GreaterThan(coursePrice) {
		return apperr.InvalidRequest("discount exceeds course price")
	}
	if d.HasBalanceLimit && d.RemainingBalance.LessThan(discountAmount) {
		return apperr.InvalidRequest("insufficient discount balance")
	}
	if discountAmount.GreaterThan(grant(d, coursePrice)) {
		return apperr.InvalidRequest("discount exceeds what the code grants")
	}
	return l.store.MarkUsed(ctx, d.Code, userID, l.now())
}

// Quote returns the discount code grants on coursePrice.
func (l *Ledger) Quote(ctx context.Context, code string, coursePrice decimal.Decimal) (decimal.Decimal, *models.DiscountCode, error) {
	d, err := l.store.GetCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return decimal.Zero, nil, err
	}
	if err := l.checkUsable(d); err != nil {
		return decimal.Zero, nil, err
	}
	return grant(d, coursePrice), d, nil
}

// ValidateReferral checks a referral code for a buyer. Self-referral is rejected.
func (l *Ledger) ValidateReferral(ctx context.Context, code, userID string) (*models.DiscountCode, error) {
	d, err := l.store.GetCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	if !d.IsReferral || d.OwnerUserID == nil {
		return nil, apperr.InvalidRequest("not a referral code")
	}
	if err := l.checkUsable(d); err != nil {
		return nil, err
	}
	if *d.OwnerUserID == userID {
		return nil, apperr.InvalidRequest("cannot use your own referral code")
	}
	return d, nil
}

// Redeem consumes code for a paid order. Repeated calls for the same order are no-ops.
func (l *Ledger) Redeem(ctx context.Context, orderID, code string, amount decimal.Decimal) error {
	applied, err := l.store.Redeem(ctx, orderID, code, amount)
	if err != nil {
		return err
	}
	if !applied {
		l.logger.Debug("discount already redeemed", zap.String("order_id", orderID), zap.String("code", code))
	}
	return nil
}

// RecordReferralUsage credits the owner of code with one referral for orderID and issues a
// reward code every RewardEvery referrals. It returns nil usage when the order was already credited.
func (l *Ledger) RecordReferralUsage(ctx context.Context, orderID, code, referredUserID string) (*models.ReferralUsage, error) {
	d, err := l.ValidateReferral(ctx, code, referredUserID)
	if err != nil {
		return nil, err
	}
	u := &models.ReferralUsage{
		OrderID:        orderID,
		ReferralCode:   d.Code,
		ReferrerUserID: *d.OwnerUserID,
		ReferredUserID: referredUserID,
	}
	inserted, referrals, err := l.store.RecordReferralUsage(ctx, u)
	if err != nil || !inserted {
		return nil, err
	}
	if l.cfg.RewardEvery > 0 && referrals%l.cfg.RewardEvery == 0 {
		reward, err := l.issueReward(ctx, u.ReferrerUserID)
		if err != nil {
			return u, fmt.Errorf("issue referral reward: %w", err)
		}
		if err := l.store.SetRewardCode(ctx, orderID, reward.Code); err != nil {
			return u, err
		}
		u.RewardCode = &reward.Code
	}
	return u, nil
}

// IssueReferralCode returns ownerUserID's referral code, creating it on first call.
func (l *Ledger) IssueReferralCode(ctx context.Context, ownerUserID string) (*models.DiscountCode, error) {
	existing, err := l.store.GetReferralCodeByOwner(ctx, ownerUserID)
	if err == nil {
		return existing, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}
	owner := ownerUserID
	d := &models.DiscountCode{
		Code:          "REF-" + l.newCode(),
		OwnerUserID:   &owner,
		IsReferral:    true,
		DiscountType:  models.DiscountTypePercent,
		DiscountValue: decimal.NewFromInt(int64(l.cfg.RefereePercent)),
		MaxUsage:      l.cfg.MaxUsage,
		ValidFrom:     l.now(),
	}
	created, err := l.store.CreateCode(ctx, d)
	if err != nil {
		return nil, err
	}
	if !created {
		return l.store.GetReferralCodeByOwner(ctx, ownerUserID)
	}
	return d, nil
}

// ReferralSummary returns a user's referral code and the referrals credited to it.
func (l *Ledger) ReferralSummary(ctx context.Context, ownerUserID string) (*models.DiscountCode, []models.ReferralUsage, error) {
	d, err := l.store.GetReferralCodeByOwner(ctx, ownerUserID)
	if err != nil {
		return nil, nil, err
	}
	usages, err := l.store.ListReferralUsages(ctx, ownerUserID)
	if err != nil {
		return nil, nil, err
	}
	return d, usages, nil
}

func (l *Ledger) issueReward(ctx context.Context, ownerUserID string) (*models.DiscountCode, error) {
	now := l.now()
	until := now.AddDate(0, 0, l.cfg.RewardValidDays)
	owner := ownerUserID
	d := &models.DiscountCode{
		Code:             "RW-" + l.newCode(),
		OwnerUserID:      &owner,
		DiscountType:     models.DiscountTypeBalance,
		DiscountValue:    l.rewardAmount,
		MaxUsage:         l.cfg.MaxUsage,
		HasBalanceLimit:  true,
		RemainingBalance: l.rewardAmount,
		ValidFrom:        now,
		ValidUntil:       &until,
	}
	if _, err := l.store.CreateCode(ctx, d); err != nil {
		return nil, err
	}
	l.logger.Info("referral reward issued", zap.String("owner", ownerUserID), zap.String("code", d.Code))
	return d, nil
}

func (l *Ledger) checkUsable(d *models.DiscountCode) error {
	if !d.ActiveAt(l.now()) {
		return apperr.InvalidRequest("discount code is not active")
	}
	if !d.HasUsageLeft() {
		return apperr.InvalidRequest("discount code usage limit reached")
	}
	if d.HasBalanceLimit && !d.RemainingBalance.IsPositive() {
		return apperr.InvalidRequest("discount code balance exhausted")
	}
	return nil
}

// grant is the discount d gives on price, never more than price or the remaining balance.
func grant(d *models.DiscountCode, price decimal.Decimal) decimal.Decimal {
	var g decimal.Decimal
	switch d.DiscountType {
	case models.DiscountTypePercent:
		g = price.Mul(d.DiscountValue).Div(hundred).Round(2)
	case models.DiscountTypeBalance:
		g = d.RemainingBalance
	default:
		g = d.DiscountValue
	}
	if d.HasBalanceLimit && g.GreaterThan(d.RemainingBalance) {
		g = d.RemainingBalance
	}
	if g.GreaterThan(price) {
		g = price
	}
	if g.IsNegative() {
		return decimal.Zero
	}
	return g
}
