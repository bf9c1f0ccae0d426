package checkout

import (
	"context"

	"go.uber.org/zap"

	"github.com/kampus-akademi/backend/internal/enrollments"
	"github.com/kampus-akademi/backend/internal/events"
	"github.com/kampus-akademi/backend/internal/identity"
	"github.com/kampus-akademi/backend/internal/models"
)

// EnsureEnrollment grants buyer access to courseID. wasAlreadyActive is true when nothing changed.
func (s *Service) EnsureEnrollment(ctx context.Context, buyer identity.Identity, courseID string) (*models.Enrollment, bool, error) {
	e, outcome, err := s.Enrollments.Ensure(ctx, buyer.String(), courseID)
	if err != nil {
		s.Metrics.Enrollment("error")
		return nil, false, err
	}
	s.Metrics.Enrollment(string(outcome))
	return e, outcome == enrollments.OutcomeAlreadyActive, nil
}

// ApplyReferralSideEffects credits the referrer named on o once. Failures are logged, never returned.
func (s *Service) ApplyReferralSideEffects(ctx context.Context, o *models.Order, buyer identity.Identity) {
	code := o.Metadata.ReferralCode
	if code == "" {
		return
	}
	referred, err := s.accountID(ctx, buyer)
	if err != nil {
		s.logger.Warn("referral side effects failed", zap.String("order_id", o.ID), zap.String("code", code), zap.Error(err))
		return
	}
	u, err := s.Ledger.RecordReferralUsage(ctx, o.ID, code, referred)
	if err != nil {
		s.logger.Warn("referral side effects failed", zap.String("order_id", o.ID), zap.String("code", code), zap.Error(err))
		return
	}
	if u != nil {
		s.logger.Info("referral credited", zap.String("order_id", o.ID), zap.String("referrer", u.ReferrerUserID), zap.Bool("rewarded", u.RewardCode != nil))
	}
}

// fulfil runs the post-payment steps for a completed order. buyer is nil when the payer has no
// known identity yet; enrollment then waits for deferred sync. Only the enrollment result is returned.
// first is true when this call completed the order; notification and completion events fire only then.
func (s *Service) fulfil(ctx context.Context, o *models.Order, buyer *identity.Identity, source string, first bool) bool {
	log := s.logger.With(zap.String("order_id", o.ID), zap.String("source", source))

	if buyer != nil {
		if e, already, err := s.EnsureEnrollment(ctx, *buyer, o.CourseID); err != nil {
			log.Error("enrollment failed", zap.Error(err))
		} else {
			if !o.Enrolled || o.EnrollmentID == nil || *o.EnrollmentID != e.ID.String() {
				if err := s.Orders.MarkEnrolled(ctx, o.ID, e.ID); err != nil {
					log.Error("mark order enrolled failed", zap.Error(err))
				}
			}
			id := e.ID.String()
			o.Enrolled, o.EnrollmentID = true, &id
			if !already {
				s.publish(ctx, events.OrderEnrolled, o, source, "")
			}
		}
	}

	for _, d := range o.Metadata.Discounts {
		if err := s.Ledger.Redeem(ctx, o.ID, d.Code, d.Amount); err != nil {
			log.Warn("discount redemption failed", zap.String("code", d.Code), zap.Error(err))
		}
	}
	if buyer != nil {
		s.ApplyReferralSideEffects(ctx, o, *buyer)
	}

	if first {
		if err := s.Notifier.PurchaseConfirmed(ctx, o); err != nil {
			log.Warn("purchase confirmation not sent", zap.Error(err))
		}
		s.publish(ctx, events.OrderCompleted, o, source, "")
	}
	if err := s.Broadcaster.PublishOrderStatus(ctx, o.ID, string(models.OrderStatusCompleted), o.Enrolled); err != nil {
		log.Warn("broadcast order status failed", zap.Error(err))
	}
	return o.Enrolled
}

// fail records a pending order as failed with reason.
func (s *Service) fail(ctx context.Context, o *models.Order, reason, source string) {
	changed, err := s.Orders.MarkFailed(ctx, o.ID, reason)
	if err != nil {
		s.logger.Error("mark order failed", zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	if !changed {
		return
	}
	o.Status = models.OrderStatusFailed
	o.Metadata.FailureReason = reason
	s.Metrics.OrderFailed(reason)
	s.publish(ctx, events.OrderFailed, o, source, reason)
	if err := s.Broadcaster.PublishOrderStatus(ctx, o.ID, string(models.OrderStatusFailed), false); err != nil {
		s.logger.Warn("broadcast order status failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}
