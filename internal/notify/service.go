// Package notify renders transactional emails, records them in the email log and queues them for delivery.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kampus-akademi/backend/internal/apperr"
	"github.com/kampus-akademi/backend/internal/models"
	"github.com/kampus-akademi/backend/pkg/queue"
)

// LogStore records outgoing emails.
type LogStore interface {
	Create(ctx context.Context, el *models.EmailLog) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// Enqueuer hands email jobs to the worker.
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// OrderGetter loads orders for resends.
type OrderGetter interface {
	Get(ctx context.Context, id string) (*models.Order, error)
}

// Settings for links and recipients.
type Settings struct {
	BaseURL       string
	DefaultLocale string
	AdminAddress  string // receives form submissions; empty skips them
}

// Service queues transactional email.
type Service struct {
	logs     LogStore
	queue    Enqueuer
	orders   OrderGetter
	settings Settings
	logger   *zap.Logger
}

// NewService creates a notification service.
func NewService(logs LogStore, q Enqueuer, orders OrderGetter, s Settings, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if s.DefaultLocale == "" {
		s.DefaultLocale = "tr"
	}
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	return &Service{logs: logs, queue: q, orders: orders, settings: s, logger: logger}
}

// PurchaseConfirmed queues the confirmation for a completed order.
func (s *Service) PurchaseConfirmed(ctx context.Context, o *models.Order) error {
	locale := o.Metadata.Locale
	if locale == "" {
		locale = s.settings.DefaultLocale
	}
	name := o.Metadata.BuyerName
	if name == "" {
		name = o.Email
	}
	subject, body, err := renderPurchase(locale, purchaseData{
		BuyerName:  name,
		CourseName: o.CourseName,
		OrderID:    o.ID,
		Amount:     o.Amount.StringFixed(2),
		CourseURL:  fmt.Sprintf("%s/%s/my-courses", s.settings.BaseURL, locale),
		Enrolled:   o.Enrolled,
	})
	if err != nil {
		return err
	}
	orderID := o.ID
	return s.send(ctx, &models.EmailLog{
		OrderID:        &orderID,
		EmailType:      models.EmailTypePurchaseConfirmation,
		RecipientEmail: o.Email,
		Subject:        subject,
	}, queue.EmailPayload{RecipientName: name, BodyHTML: body})
}

// ResendPurchaseConfirmation queues the confirmation again for a completed order.
func (s *Service) ResendPurchaseConfirmation(ctx context.Context, orderID string) error {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status != models.OrderStatusCompleted {
		return apperr.InvalidRequest("order is not completed")
	}
	return s.PurchaseConfirmed(ctx, o)
}

// FormReceived forwards a form submission to the admin address with the submitter as reply-to.
func (s *Service) FormReceived(ctx context.Context, sub *models.FormSubmission) error {
	if s.settings.AdminAddress == "" {
		s.logger.Debug("no admin address; form notification skipped", zap.String("submission_id", sub.ID.String()))
		return nil
	}
	d := formData{
		Kind:     sub.Kind,
		FullName: sub.FullName,
		Email:    sub.Email,
		Locale:   sub.Locale,
		Fields:   sortedFields(sub.Fields),
	}
	if sub.AttachmentKey != nil {
		d.Attachment = *sub.AttachmentKey
	}
	subject, body, err := renderForm(d)
	if err != nil {
		return err
	}
	id := sub.ID
	return s.send(ctx, &models.EmailLog{
		SubmissionID:   &id,
		EmailType:      models.EmailTypeFormReceived,
		RecipientEmail: s.settings.AdminAddress,
		Subject:        subject,
	}, queue.EmailPayload{ReplyTo: sub.Email, BodyHTML: body})
}

func (s *Service) send(ctx context.Context, el *models.EmailLog, p queue.EmailPayload) error {
	el.Status = models.EmailLogStatusPending
	if err := s.logs.Create(ctx, el); err != nil {
		return err
	}
	p.EmailLogID = el.ID
	p.EmailType = el.EmailType
	p.RecipientEmail = el.RecipientEmail
	p.Subject = el.Subject
	if err := s.queue.EnqueueEmail(ctx, p); err != nil {
		if mErr := s.logs.MarkFailed(ctx, el.ID, "enqueue: "+err.Error()); mErr != nil {
			s.logger.Warn("mark email failed", zap.String("email_log_id", el.ID.String()), zap.Error(mErr))
		}
		return fmt.Errorf("enqueue email: %w", err)
	}
	s.logger.Info("email queued", zap.String("email_log_id", el.ID.String()), zap.String("email_type", el.EmailType))
	return nil
}
