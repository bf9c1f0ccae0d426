package checkout

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kampus-akademi/backend/internal/enrollments"
	"github.com/kampus-akademi/backend/internal/events"
	"github.com/kampus-akademi/backend/internal/models"
	"github.com/kampus-akademi/backend/internal/payment"
)

// OrderStore persists orders.
type OrderStore interface {
	Create(ctx context.Context, o *models.Order) (bool, error)
	Get(ctx context.Context, id string) (*models.Order, error)
	MarkCompleted(ctx context.Context, id string, patch models.OrderMetadata) (bool, error)
	MarkFailed(ctx context.Context, id, reason string) (bool, error)
	MarkEnrolled(ctx context.Context, id string, enrollmentID uuid.UUID) error
	ListUnenrolledWebhookOrders(ctx context.Context, email string) ([]models.Order, error)
	ListUnenrolledWebhookEmails(ctx context.Context, after string, limit int) ([]string, error)
}

// EnrollmentStore creates or reactivates enrollments.
type EnrollmentStore interface {
	Ensure(ctx context.Context, userID, courseID string) (*models.Enrollment, enrollments.Outcome, error)
}

// Ledger prices and consumes discount and referral codes.
type Ledger interface {
	Quote(ctx context.Context, code string, coursePrice decimal.Decimal) (decimal.Decimal, *models.DiscountCode, error)
	ValidateReferral(ctx context.Context, code, userID string) (*models.DiscountCode, error)
	Redeem(ctx context.Context, orderID, code string, amount decimal.Decimal) error
	RecordReferralUsage(ctx context.Context, orderID, code, referredUserID string) (*models.ReferralUsage, error)
}

// CourseCatalog resolves purchasable courses.
type CourseCatalog interface {
	GetActive(ctx context.Context, id string) (*models.Course, error)
	GetByProductID(ctx context.Context, productID string) (*models.Course, error)
}

// IdentityProvider maps an email to a registered account id, or "" when none exists.
type IdentityProvider interface {
	LookupIDByEmail(ctx context.Context, email string) (string, error)
}

// Gateway is the payment processor adapter.
type Gateway interface {
	AuthorizationURL(state string) string
	Exchange(ctx context.Context, code, state string) (*payment.Token, error)
}

// StateCodec signs the order context carried through the processor.
type StateCodec interface {
	Encode(s payment.OrderState) (string, error)
	Decode(blob string) (*payment.OrderState, error)
}

// Notifier sends the purchase confirmation.
type Notifier interface {
	PurchaseConfirmed(ctx context.Context, o *models.Order) error
}

// Publisher emits order lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, ev events.OrderEvent) error
}

// Broadcaster pushes order status to live subscribers.
type Broadcaster interface {
	PublishOrderStatus(ctx context.Context, orderID, status string, enrolled bool) error
}

// Locker serializes reconciliation of one order across instances.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Metrics records checkout outcomes.
type Metrics interface {
	OrderCreated(path string)
	OrderCompleted(path string)
	OrderFailed(reason string)
	Enrollment(outcome string)
	WebhookDuplicate()
	DeferredSynced(n int)
}

type nopNotifier struct{}

func (nopNotifier) PurchaseConfirmed(context.Context, *models.Order) error { return nil }

type nopBroadcaster struct{}

func (nopBroadcaster) PublishOrderStatus(context.Context, string, string, bool) error { return nil }

type nopLocker struct{}

func (nopLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }

type nopMetrics struct{}

func (nopMetrics) OrderCreated(string)   {}
func (nopMetrics) OrderCompleted(string) {}
func (nopMetrics) OrderFailed(string)    {}
func (nopMetrics) Enrollment(string)     {}
func (nopMetrics) WebhookDuplicate()     {}
func (nopMetrics) DeferredSynced(int)    {}
