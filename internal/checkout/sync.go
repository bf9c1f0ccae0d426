package checkout

import (
	"context"

	"go.uber.org/zap"

	"github.com/kampus-akademi/backend/internal/events"
	"github.com/kampus-akademi/backend/internal/identity"
)

// DeferredSync enrolls a now-registered buyer into every completed webhook order placed under
// their email before they had an account. It returns how many orders were linked.
func (s *Service) DeferredSync(ctx context.Context, userID, email string) (int, error) {
	orders, err := s.Orders.ListUnenrolledWebhookOrders(ctx, email)
	if err != nil {
		return 0, err
	}
	buyer := identity.Registered(userID)
	synced := 0
	for i := range orders {
		o := &orders[i]
		if s.syncOne(ctx, o.ID, o.CourseID, buyer) {
			synced++
		}
	}
	if synced > 0 {
		s.Metrics.DeferredSynced(synced)
		s.logger.Info("deferred sync linked orders", zap.String("user_id", userID), zap.Int("synced", synced))
	}
	return synced, nil
}

func (s *Service) syncOne(ctx context.Context, orderID, courseID string, buyer identity.Identity) bool {
	unlock := s.lock(ctx, orderID)
	defer unlock()

	o, err := s.Orders.Get(ctx, orderID)
	if err != nil || o.Enrolled {
		return false
	}
	e, _, err := s.EnsureEnrollment(ctx, buyer, courseID)
	if err != nil {
		s.logger.Error("deferred enrollment failed", zap.String("order_id", orderID), zap.Error(err))
		return false
	}
	if err := s.Orders.MarkEnrolled(ctx, orderID, e.ID); err != nil {
		s.logger.Error("mark order enrolled failed", zap.String("order_id", orderID), zap.Error(err))
		return false
	}
	id := e.ID.String()
	o.Enrolled, o.EnrollmentID = true, &id
	s.publish(ctx, events.OrderEnrolled, o, sourceSync, "")
	if err := s.Broadcaster.PublishOrderStatus(ctx, orderID, string(o.Status), true); err != nil {
		s.logger.Warn("broadcast order status failed", zap.String("order_id", orderID), zap.Error(err))
	}
	return true
}

// SweepDeferred runs DeferredSync for every buyer email that now maps to an account, paging
// through them limit at a time so unregistered buyers never block the ones behind them.
func (s *Service) SweepDeferred(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	total := 0
	after := ""
	for {
		emails, err := s.Orders.ListUnenrolledWebhookEmails(ctx, after, limit)
		if err != nil {
			return total, err
		}
		for _, email := range emails {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			total += s.sweepEmail(ctx, email)
		}
		if len(emails) < limit {
			return total, nil
		}
		after = emails[len(emails)-1]
	}
}

func (s *Service) sweepEmail(ctx context.Context, email string) int {
	userID, err := s.Identity.LookupIDByEmail(ctx, email)
	if err != nil {
		s.logger.Warn("identity lookup failed", zap.String("email", email), zap.Error(err))
		return 0
	}
	if userID == "" {
		return 0
	}
	n, err := s.DeferredSync(ctx, userID, email)
	if err != nil {
		s.logger.Warn("deferred sync failed", zap.String("user_id", userID), zap.Error(err))
		return 0
	}
	return n
}
