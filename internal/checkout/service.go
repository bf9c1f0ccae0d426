// Package checkout reconciles orders with payments and turns confirmed payments into enrollments.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jaevor/go-nanoid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kampus-akademi/backend/internal/apperr"
	"github.com/kampus-akademi/backend/internal/events"
	"github.com/kampus-akademi/backend/internal/identity"
	"github.com/kampus-akademi/backend/internal/models"
	"github.com/kampus-akademi/backend/internal/payment"
)

// Order sources, used as metric labels and event sources.
const (
	sourceFree     = "free"
	sourceCallback = "gateway"
	sourceWebhook  = "webhook"
	sourceSync     = "sync"
)

// Deps are the collaborators of the workflow. Notifier, Events, Broadcaster, Locker and Metrics are optional.
type Deps struct {
	Orders      OrderStore
	Enrollments EnrollmentStore
	Ledger      Ledger
	Courses     CourseCatalog
	Identity    IdentityProvider
	Gateway     Gateway
	State       StateCodec
	Notifier    Notifier
	Events      Publisher
	Broadcaster Broadcaster
	Locker      Locker
	Metrics     Metrics
}

// Settings shape ids and redirects.
type Settings struct {
	BaseURL       string
	DefaultLocale string
	Locales       []string
	OrderIDPrefix string
}

// Service is the order reconciliation workflow.
type Service struct {
	Deps
	settings Settings
	now      func() time.Time
	randID   func() string
	logger   *zap.Logger
}

// NewService wires the workflow.
func NewService(d Deps, s Settings, logger *zap.Logger) (*Service, error) {
	if d.Orders == nil || d.Enrollments == nil || d.Ledger == nil || d.Courses == nil || d.Identity == nil || d.Gateway == nil || d.State == nil {
		return nil, errors.New("checkout: missing required dependency")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Broadcaster == nil {
		d.Broadcaster = nopBroadcaster{}
	}
	if d.Locker == nil {
		d.Locker = nopLocker{}
	}
	if d.Metrics == nil {
		d.Metrics = nopMetrics{}
	}
	if s.DefaultLocale == "" {
		s.DefaultLocale = "tr"
	}
	if s.OrderIDPrefix == "" {
		s.OrderIDPrefix = "ORD"
	}
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	gen, err := nanoid.CustomASCII("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789", 8)
	if err != nil {
		return nil, fmt.Errorf("order id generator: %w", err)
	}
	return &Service{Deps: d, settings: s, now: time.Now, randID: gen, logger: logger}, nil
}

// CreateOrderInput is a purchase intent.
type CreateOrderInput struct {
	CourseID      string
	Email         string
	Name          string
	Phone         string
	Amount        *decimal.Decimal // overrides the computed price; never below it
	DiscountCodes []string
	ReferralCode  string
	Locale        string
	UserID        string // identity claimed by the client
	AuthUserID    string // identity from a verified session
	ClientIP      string
	UserAgent     string
}

// CreateOrderResult tells the client where to go next.
type CreateOrderResult struct {
	OrderID     string             `json:"orderId"`
	RedirectURL string             `json:"redirectUrl"`
	Status      models.OrderStatus `json:"status"`
	Amount      decimal.Decimal    `json:"amount"`
	Enrolled    bool               `json:"enrolled"`
}

// CreateOrder records a pending order. Free orders complete and enroll immediately without
// touching the gateway; paid orders get an authorization redirect carrying a signed state blob.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	name := strings.TrimSpace(in.Name)
	if email == "" || !identity.LooksLikeEmail(email) {
		return nil, apperr.InvalidRequest("a valid email is required")
	}
	if name == "" {
		return nil, apperr.InvalidRequest("name is required")
	}
	if strings.TrimSpace(in.CourseID) == "" {
		return nil, apperr.InvalidRequest("courseId is required")
	}
	course, err := s.Courses.GetActive(ctx, in.CourseID)
	if err != nil {
		return nil, err
	}

	buyer := identity.Resolve(in.AuthUserID, in.UserID, email)
	locale := s.locale(in.Locale)

	applied, discount, err := s.priceDiscounts(ctx, in.DiscountCodes, course.Price)
	if err != nil {
		return nil, err
	}
	referral := strings.TrimSpace(in.ReferralCode)
	if referral != "" {
		referred, err := s.accountID(ctx, buyer)
		if err != nil {
			return nil, err
		}
		if _, err := s.Ledger.ValidateReferral(ctx, referral, referred); err != nil {
			return nil, err
		}
		grant, _, err := s.Ledger.Quote(ctx, referral, course.Price.Sub(discount))
		if err != nil {
			return nil, err
		}
		discount = discount.Add(grant)
	}
	amount := course.Price.Sub(discount)
	if in.Amount != nil {
		if in.Amount.LessThan(amount) {
			return nil, apperr.InvalidRequest("amount is below the discounted course price")
		}
		amount = *in.Amount
	}
	if amount.IsNegative() {
		return nil, apperr.InvalidRequest("amount must not be negative")
	}
	amount = amount.Round(2)

	o := &models.Order{
		ID:         s.newOrderID(s.settings.OrderIDPrefix),
		CourseID:   course.ID,
		CourseName: course.Name,
		Email:      email,
		Amount:     amount,
		Status:     models.OrderStatusPending,
		Metadata: models.OrderMetadata{
			UserID:       buyer.String(),
			IdentityKind: string(buyer.Kind),
			Locale:       locale,
			BuyerName:    name,
			Phone:        in.Phone,
			Discounts:    applied,
			ReferralCode: referral,
		},
		DiscountAmount: discount,
		ClientIP:       in.ClientIP,
		UserAgent:      in.UserAgent,
	}
	if len(applied) > 0 {
		codes := make([]string, len(applied))
		for i, a := range applied {
			codes[i] = a.Code
		}
		o.DiscountCode = strings.Join(codes, ",")
	}
	source := sourceCallback
	o.PaymentMethod = models.PaymentMethodGateway
	if o.IsFree() {
		source = sourceFree
		o.PaymentMethod = models.PaymentMethodFree
	}

	inserted, err := s.Orders.Create(ctx, o)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, apperr.Persistence("insert order", fmt.Errorf("order id %s already exists", o.ID))
	}
	s.Metrics.OrderCreated(source)
	s.publish(ctx, events.OrderCreated, o, source, "")
	log := s.logger.With(zap.String("order_id", o.ID), zap.String("course_id", o.CourseID))

	if o.IsFree() {
		if _, err := s.Orders.MarkCompleted(ctx, o.ID, models.OrderMetadata{}); err != nil {
			return nil, err
		}
		o.Status = models.OrderStatusCompleted
		s.Metrics.OrderCompleted(source)
		enrolled := s.fulfil(ctx, o, &buyer, source, true)
		log.Info("free order completed", zap.Bool("enrolled", enrolled))
		return &CreateOrderResult{
			OrderID:     o.ID,
			RedirectURL: s.successURL(locale, o, enrolled),
			Status:      o.Status,
			Amount:      o.Amount,
			Enrolled:    enrolled,
		}, nil
	}

	state, err := s.State.Encode(payment.OrderState{
		OrderID:    o.ID,
		CourseID:   o.CourseID,
		UserID:     buyer.String(),
		Email:      email,
		Locale:     locale,
		Amount:     o.Amount.StringFixed(2),
		CourseName: o.CourseName,
	})
	if err != nil {
		return nil, fmt.Errorf("encode callback state: %w", err)
	}
	log.Info("order created, awaiting payment", zap.String("amount", o.Amount.StringFixed(2)))
	return &CreateOrderResult{
		OrderID:     o.ID,
		RedirectURL: s.Gateway.AuthorizationURL(state),
		Status:      o.Status,
		Amount:      o.Amount,
	}, nil
}

// accountID is the account behind buyer. A guest whose email belongs to an account is that account,
// so referral ownership cannot be sidestepped by checking out without a token.
func (s *Service) accountID(ctx context.Context, buyer identity.Identity) (string, error) {
	if !buyer.IsGuest() {
		return buyer.String(), nil
	}
	id, err := s.Identity.LookupIDByEmail(ctx, buyer.String())
	if err != nil {
		return "", err
	}
	if id == "" {
		return buyer.String(), nil
	}
	return id, nil
}

// Lookup returns an order for link-based payment redirects.
func (s *Service) Lookup(ctx context.Context, orderID string) (*models.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, apperr.InvalidRequest("orderId is required")
	}
	return s.Orders.Get(ctx, orderID)
}

// priceDiscounts quotes each code against what is left of price.
func (s *Service) priceDiscounts(ctx context.Context, codes []string, price decimal.Decimal) ([]models.AppliedDiscount, decimal.Decimal, error) {
	var applied []models.AppliedDiscount
	total := decimal.Zero
	seen := map[string]bool{}
	for _, raw := range codes {
		code := strings.ToUpper(strings.TrimSpace(raw))
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		grant, d, err := s.Ledger.Quote(ctx, code, price.Sub(total))
		if err != nil {
			return nil, decimal.Zero, err
		}
		if d.IsReferral {
			return nil, decimal.Zero, apperr.InvalidRequest("referral codes go in referralCode")
		}
		if grant.IsZero() {
			continue
		}
		applied = append(applied, models.AppliedDiscount{Code: d.Code, Amount: grant})
		total = total.Add(grant)
	}
	return applied, total, nil
}

func (s *Service) newOrderID(prefix string) string {
	return prefix + "-" + strconv.FormatInt(s.now().UnixMilli(), 10) + "-" + s.randID()
}

func (s *Service) locale(l string) string {
	l = strings.ToLower(strings.TrimSpace(l))
	for _, supported := range s.settings.Locales {
		if l == supported {
			return l
		}
	}
	if len(s.settings.Locales) == 0 && l != "" {
		return l
	}
	return s.settings.DefaultLocale
}

func (s *Service) successURL(locale string, o *models.Order, enrolled bool) string {
	q := url.Values{}
	q.Set("orderId", o.ID)
	q.Set("courseId", o.CourseID)
	q.Set("name", o.CourseName)
	q.Set("enrolled", strconv.FormatBool(enrolled))
	return fmt.Sprintf("%s/%s/payment-success?%s", s.settings.BaseURL, locale, q.Encode())
}

func (s *Service) failureURL(locale, code, orderID string) string {
	q := url.Values{}
	q.Set("error", code)
	if orderID != "" {
		q.Set("orderId", orderID)
	}
	return fmt.Sprintf("%s/%s/payment-failed?%s", s.settings.BaseURL, locale, q.Encode())
}

func (s *Service) publish(ctx context.Context, typ string, o *models.Order, source, reason string) {
	ev := events.OrderEvent{
		Type:       typ,
		OrderID:    o.ID,
		CourseID:   o.CourseID,
		Email:      o.Email,
		Amount:     o.Amount.StringFixed(2),
		Source:     source,
		Enrolled:   o.Enrolled,
		Reason:     reason,
		OccurredAt: s.now().UTC(),
	}
	if err := s.Events.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish order event failed", zap.String("order_id", o.ID), zap.String("type", typ), zap.Error(err))
	}
}

// lock serializes work on one order. A lock failure is logged and work proceeds;
// the status guards and unique constraints keep the outcome correct.
func (s *Service) lock(ctx context.Context, orderID string) func() {
	unlock, err := s.Locker.Lock(ctx, "order:"+orderID)
	if err != nil {
		s.logger.Warn("order lock unavailable", zap.String("order_id", orderID), zap.Error(err))
		return func() {}
	}
	return unlock
}
