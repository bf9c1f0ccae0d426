package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kampus-akademi/backend/internal/apperr"
	"github.com/kampus-akademi/backend/internal/events"
	"github.com/kampus-akademi/backend/internal/identity"
	"github.com/kampus-akademi/backend/internal/models"
	"github.com/kampus-akademi/backend/internal/payment"
)

const webhookIDPrefix = "WH"

// WebhookResult acknowledges a webhook delivery.
type WebhookResult struct {
	OrderID   string             `json:"orderId"`
	CourseID  string             `json:"courseId"`
	Status    models.OrderStatus `json:"status"`
	Enrolled  bool               `json:"enrolled"`
	Duplicate bool               `json:"duplicate"`
}

// ReconcileWebhook records a processor-reported payment. Repeated deliveries never insert a second
// order; they only retry enrollment. Buyers without an account get the order recorded and are
// enrolled later by DeferredSync.
func (s *Service) ReconcileWebhook(ctx context.Context, ev payment.WebhookEvent) (*WebhookResult, error) {
	email := strings.ToLower(strings.TrimSpace(ev.Email))
	if email == "" {
		return nil, apperr.InvalidRequest("buyer email is required")
	}
	course, err := s.Courses.GetByProductID(ctx, ev.ProductID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("no course mapped to product " + ev.ProductID)
		}
		return nil, err
	}
	orderID := ev.OrderID
	if orderID == "" {
		orderID = fallbackOrderID(email, ev.ProductID, ev.Amount)
	}
	log := s.logger.With(zap.String("order_id", orderID), zap.String("course_id", course.ID))

	unlock := s.lock(ctx, orderID)
	defer unlock()

	existing, err := s.Orders.Get(ctx, orderID)
	switch {
	case err == nil:
		return s.redeliver(ctx, existing, log)
	case !apperr.Is(err, apperr.KindNotFound):
		return nil, err
	}

	userID, err := s.Identity.LookupIDByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	amount := course.Price
	if ev.Amount != "" {
		if a, err := decimal.NewFromString(ev.Amount); err == nil && !a.IsNegative() {
			amount = a.Round(2)
		}
	}
	o := &models.Order{
		ID:            orderID,
		CourseID:      course.ID,
		CourseName:    course.Name,
		Email:         email,
		Amount:        amount,
		Status:        models.OrderStatusCompleted,
		PaymentMethod: models.PaymentMethodWebhook,
		Metadata: models.OrderMetadata{
			UserID:    userID,
			Locale:    s.settings.DefaultLocale,
			BuyerName: ev.BuyerName,
		},
	}
	if userID != "" {
		o.Metadata.IdentityKind = string(identity.KindRegistered)
	}
	if !ev.Paid() {
		o.Status = models.OrderStatusFailed
		o.Metadata.FailureReason = "processor_status_" + strings.ToLower(ev.Status)
	}

	inserted, err := s.Orders.Create(ctx, o)
	if err != nil {
		return nil, err
	}
	if !inserted {
		existing, err := s.Orders.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return s.redeliver(ctx, existing, log)
	}
	s.Metrics.OrderCreated(sourceWebhook)

	if o.Status == models.OrderStatusFailed {
		s.Metrics.OrderFailed(o.Metadata.FailureReason)
		s.publish(ctx, events.OrderFailed, o, sourceWebhook, o.Metadata.FailureReason)
		log.Info("webhook reported unsuccessful payment", zap.String("status", ev.Status))
		return &WebhookResult{OrderID: o.ID, CourseID: o.CourseID, Status: o.Status}, nil
	}
	s.Metrics.OrderCompleted(sourceWebhook)

	var buyer *identity.Identity
	if userID != "" {
		b := identity.Registered(userID)
		buyer = &b
	} else {
		log.Info("webhook buyer has no account; enrollment deferred")
	}
	enrolled := s.fulfil(ctx, o, buyer, sourceWebhook, true)
	return &WebhookResult{OrderID: o.ID, CourseID: o.CourseID, Status: o.Status, Enrolled: enrolled}, nil
}

// redeliver handles a webhook for an order that already exists: enrollment is retried when the
// order is completed but not yet enrolled and the buyer can now be identified.
func (s *Service) redeliver(ctx context.Context, o *models.Order, log *zap.Logger) (*WebhookResult, error) {
	s.Metrics.WebhookDuplicate()
	res := &WebhookResult{OrderID: o.ID, CourseID: o.CourseID, Status: o.Status, Enrolled: o.Enrolled, Duplicate: true}
	if o.Status != models.OrderStatusCompleted || o.Enrolled {
		return res, nil
	}
	userID := ""
	if o.Metadata.IdentityKind == string(identity.KindRegistered) {
		userID = o.Metadata.UserID
	}
	if userID == "" {
		id, err := s.Identity.LookupIDByEmail(ctx, o.Email)
		if err != nil {
			return nil, err
		}
		userID = id
	}
	if userID == "" {
		log.Info("duplicate webhook; buyer still has no account")
		return res, nil
	}
	e, _, err := s.EnsureEnrollment(ctx, identity.Registered(userID), o.CourseID)
	if err != nil {
		log.Error("enrollment on redelivery failed", zap.Error(err))
		return res, nil
	}
	if err := s.Orders.MarkEnrolled(ctx, o.ID, e.ID); err != nil {
		log.Error("mark order enrolled failed", zap.Error(err))
		return res, nil
	}
	res.Enrolled = true
	return res, nil
}

// fallbackOrderID derives a stable id for payloads without one, so redelivery maps to the same order.
func fallbackOrderID(email, productID, amount string) string {
	sum := sha256.Sum256([]byte(email + "|" + productID + "|" + amount))
	return webhookIDPrefix + "-" + strings.ToUpper(hex.EncodeToString(sum[:])[:20])
}
