package checkout

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/kampus-akademi/backend/internal/apperr"
	"github.com/kampus-akademi/backend/internal/identity"
	"github.com/kampus-akademi/backend/internal/models"
)

// Failure codes carried to the payment-failed page.
const (
	FailInvalidState  = "invalid_state"
	FailCancelled     = "payment_cancelled"
	FailMissingCode   = "missing_code"
	FailOrderNotFound = "order_not_found"
	FailOrderFailed   = "order_failed"
	FailTokenExchange = "token_exchange_failed"
	FailInternal      = "internal_error"
)

// CallbackInput is what the processor sends back through the buyer's browser.
type CallbackInput struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// CallbackResult is where to send the buyer.
type CallbackResult struct {
	RedirectURL string
	OrderID     string
	Status      models.OrderStatus
	Enrolled    bool
	FailureCode string
}

// ReconcileCallback settles an order from the processor redirect. It always returns a redirect;
// failures are expressed as payment-failed pages carrying a short code.
func (s *Service) ReconcileCallback(ctx context.Context, in CallbackInput) *CallbackResult {
	st, err := s.State.Decode(in.State)
	if err != nil {
		s.logger.Warn("callback with invalid state", zap.Error(err))
		return s.failed(s.settings.DefaultLocale, FailInvalidState, "")
	}
	locale := s.locale(st.Locale)
	log := s.logger.With(zap.String("order_id", st.OrderID))

	unlock := s.lock(ctx, st.OrderID)
	defer unlock()

	o, err := s.Orders.Get(ctx, st.OrderID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			log.Warn("callback for unknown order")
			return s.failed(locale, FailOrderNotFound, st.OrderID)
		}
		log.Error("load order failed", zap.Error(err))
		return s.failed(locale, FailInternal, st.OrderID)
	}
	buyer := identity.FromStored(o.Metadata.IdentityKind, st.UserID)

	switch o.Status {
	case models.OrderStatusCompleted:
		log.Info("duplicate callback for completed order")
		enrolled := s.fulfil(ctx, o, &buyer, sourceCallback, false)
		return s.succeeded(locale, o, enrolled)
	case models.OrderStatusFailed:
		return s.failed(locale, FailOrderFailed, o.ID)
	}

	if in.Error != "" {
		log.Info("payment cancelled at processor", zap.String("error", in.Error), zap.String("description", in.ErrorDescription))
		s.fail(ctx, o, FailCancelled, sourceCallback)
		return s.failed(locale, FailCancelled, o.ID)
	}
	if strings.TrimSpace(in.Code) == "" {
		s.fail(ctx, o, FailMissingCode, sourceCallback)
		return s.failed(locale, FailMissingCode, o.ID)
	}

	tok, err := s.Gateway.Exchange(ctx, in.Code, in.State)
	if err != nil {
		log.Warn("token exchange failed", zap.Error(err))
		s.fail(ctx, o, FailTokenExchange, sourceCallback)
		return s.failed(locale, FailTokenExchange, o.ID)
	}

	patch := models.OrderMetadata{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken, TokenExpiresIn: tok.ExpiresIn}
	first, err := s.Orders.MarkCompleted(ctx, o.ID, patch)
	if err != nil {
		// The processor accepted the payment; enrollment still proceeds.
		log.Error("mark order completed failed", zap.Error(err))
	}
	o.Status = models.OrderStatusCompleted
	if first {
		s.Metrics.OrderCompleted(sourceCallback)
	}
	enrolled := s.fulfil(ctx, o, &buyer, sourceCallback, first)
	log.Info("callback reconciled", zap.Bool("enrolled", enrolled))
	return s.succeeded(locale, o, enrolled)
}

func (s *Service) succeeded(locale string, o *models.Order, enrolled bool) *CallbackResult {
	return &CallbackResult{
		RedirectURL: s.successURL(locale, o, enrolled),
		OrderID:     o.ID,
		Status:      models.OrderStatusCompleted,
		Enrolled:    enrolled,
	}
}

func (s *Service) failed(locale, code, orderID string) *CallbackResult {
	return &CallbackResult{
		RedirectURL: s.failureURL(locale, code, orderID),
		OrderID:     orderID,
		Status:      models.OrderStatusFailed,
		FailureCode: code,
	}
}
