package checkout

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kampus-akademi/backend/internal/apperr"
	"github.com/kampus-akademi/backend/internal/models"
	"github.com/kampus-akademi/backend/internal/payment"
)

func TestCreateOrderFreeEnrollsWithoutGateway(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.CreateOrder(ctx, CreateOrderInput{CourseID: "FREE", Email: "Guest@Example.com", Name: "Guest", Locale: "en"})
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusCompleted, res.Status)
	assert.True(t, res.Enrolled)
	assert.Equal(t, 0, h.gateway.calls)

	u, err := url.Parse(res.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "/en/payment-success", u.Path)
	assert.Equal(t, "true", u.Query().Get("enrolled"))
	assert.Equal(t, res.OrderID, u.Query().Get("orderId"))

	o := h.orders.only(t)
	assert.Equal(t, models.PaymentMethodFree, o.PaymentMethod)
	assert.True(t, o.Enrolled)
	require.NotNil(t, h.enrollments.get("guest@example.com", "FREE"))
	assert.Equal(t, []string{res.OrderID}, h.notifier.sent)
}

func TestCreateOrderFullDiscountIsFree(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.CreateOrder(context.Background(), CreateOrderInput{CourseID: "C1", Email: "a@b.co", Name: "A", DiscountCodes: []string{"full"}})
	require.NoError(t, err)

	assert.True(t, res.Amount.IsZero())
	assert.Equal(t, models.OrderStatusCompleted, res.Status)
	assert.Equal(t, 0, h.gateway.calls)
	assert.True(t, h.ledger.redemptions[res.OrderID+"/FULL"].Equal(decimal.NewFromInt(200)))
}

func TestCreateOrderFreeReactivatesEnrollment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.enrollments.rows["u-1|FREE"] = &models.Enrollment{UserID: "u-1", CourseID: "FREE", ProgressPercentage: 80}

	res, err := h.svc.CreateOrder(ctx, CreateOrderInput{CourseID: "FREE", Email: "u1@example.com", Name: "U", AuthUserID: "u-1"})
	require.NoError(t, err)
	assert.True(t, res.Enrolled)

	e := h.enrollments.get("u-1", "FREE")
	assert.True(t, e.IsActive)
	assert.Equal(t, 0, e.ProgressPercentage)
	assert.Equal(t, 1, h.enrollments.count())
}

func TestCreateOrderPaidRedirectsToGateway(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.CreateOrder(context.Background(), CreateOrderInput{CourseID: "C1", Email: "buyer@example.com", Name: "Buyer", Locale: "de"})
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPending, res.Status)
	assert.Contains(t, res.RedirectURL, "https://pay.test/oauth/authorize")
	assert.Regexp(t, `^ORD-\d+-[A-Z0-9]{8}$`, res.OrderID)

	st, err := h.state.Decode(stateFrom(t, res.RedirectURL))
	require.NoError(t, err)
	assert.Equal(t, res.OrderID, st.OrderID)
	assert.Equal(t, "C1", st.CourseID)
	assert.Equal(t, "buyer@example.com", st.UserID)
	assert.Equal(t, "tr", st.Locale, "unsupported locale falls back to default")
	assert.Equal(t, "200.00", st.Amount)

	assert.Equal(t, 0, h.enrollments.count())
	assert.Empty(t, h.notifier.sent)
}

func TestCreateOrderRejects(t *testing.T) {
	cases := []struct {
		name  string
		in    CreateOrderInput
		kind  apperr.Kind
		setup func(h *harness)
	}{
		{"missing email", CreateOrderInput{CourseID: "C1", Name: "A"}, apperr.KindInvalidRequest, nil},
		{"bad email", CreateOrderInput{CourseID: "C1", Email: "nope", Name: "A"}, apperr.KindInvalidRequest, nil},
		{"missing name", CreateOrderInput{CourseID: "C1", Email: "a@b.co"}, apperr.KindInvalidRequest, nil},
		{"unknown course", CreateOrderInput{CourseID: "X", Email: "a@b.co", Name: "A"}, apperr.KindNotFound, nil},
		{"inactive course", CreateOrderInput{CourseID: "OLD", Email: "a@b.co", Name: "A"}, apperr.KindNotFound, nil},
		{"unknown code", CreateOrderInput{CourseID: "C1", Email: "a@b.co", Name: "A", DiscountCodes: []string{"NOPE"}}, apperr.KindNotFound, nil},
		{"referral as discount", CreateOrderInput{CourseID: "C1", Email: "a@b.co", Name: "A", DiscountCodes: []string{"REF-ALICE"}}, apperr.KindInvalidRequest, nil},
		{"self referral", CreateOrderInput{CourseID: "C1", Email: "a@b.co", Name: "A", AuthUserID: "alice", ReferralCode: "REF-ALICE"}, apperr.KindInvalidRequest, nil},
		{"amount below price", CreateOrderInput{CourseID: "C1", Email: "a@b.co", Name: "A", Amount: decPtr("150")}, apperr.KindInvalidRequest, nil},
		{"self referral as guest", CreateOrderInput{CourseID: "C1", Email: "Alice@Example.com", Name: "Alice", ReferralCode: "REF-ALICE"}, apperr.KindInvalidRequest,
			func(h *harness) { h.identity.register("alice@example.com", "alice") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			if tc.setup != nil {
				tc.setup(h)
			}
			_, err := h.svc.CreateOrder(context.Background(), tc.in)
			require.Error(t, err)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
			assert.Equal(t, 0, h.orders.count())
		})
	}
}

func TestPaidOrderEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.CreateOrder(ctx, CreateOrderInput{CourseID: "C1", Email: "bob@example.com", Name: "Bob", AuthUserID: "bob", ReferralCode: "REF-ALICE"})
	require.NoError(t, err)
	assert.Equal(t, "180", res.Amount.String())
	state := stateFrom(t, res.RedirectURL)

	cb := h.svc.ReconcileCallback(ctx, CallbackInput{Code: "auth-code", State: state})
	assert.Equal(t, models.OrderStatusCompleted, cb.Status)
	assert.True(t, cb.Enrolled)

	u, err := url.Parse(cb.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "kampus.test", u.Host)
	assert.Equal(t, "/tr/payment-success", u.Path)
	assert.Equal(t, "C1", u.Query().Get("courseId"))
	assert.Equal(t, "true", u.Query().Get("enrolled"))
	assert.Equal(t, "Python 101", u.Query().Get("name"))

	o := h.orders.only(t)
	assert.Equal(t, models.OrderStatusCompleted, o.Status)
	assert.True(t, o.Enrolled)
	assert.Equal(t, "at-auth-code", o.Metadata.AccessToken)
	assert.True(t, h.enrollments.get("bob", "C1").IsActive)
	assert.Equal(t, 1, h.ledger.referralCount("alice"))
	assert.Equal(t, 1, h.gateway.calls)
	assert.Len(t, h.notifier.sent, 1)

	again := h.svc.ReconcileCallback(ctx, CallbackInput{Code: "auth-code", State: state})
	assert.Equal(t, cb.RedirectURL, again.RedirectURL)
	assert.Equal(t, 1, h.gateway.calls, "duplicate callback does not exchange again")
	assert.Equal(t, 1, h.enrollments.count())
	assert.Equal(t, 1, h.ledger.referralCount("alice"))
	assert.Len(t, h.notifier.sent, 1)
}

func TestGuestReferralOwnerRegisteredBeforeCallback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.CreateOrder(ctx, CreateOrderInput{CourseID: "C1", Email: "alice@example.com", Name: "Alice", ReferralCode: "REF-ALICE"})
	require.NoError(t, err)
	h.identity.register("alice@example.com", "alice")

	cb := h.svc.ReconcileCallback(ctx, CallbackInput{Code: "auth-code", State: stateFrom(t, res.RedirectURL)})
	assert.Equal(t, models.OrderStatusCompleted, cb.Status)
	assert.Equal(t, 0, h.ledger.referralCount("alice"))
}

func TestCallbackInvalidState(t *testing.T) {
	h := newHarness(t)

	res := h.svc.ReconcileCallback(context.Background(), CallbackInput{Code: "c", State: "garbage"})

	assert.Equal(t, FailInvalidState, res.FailureCode)
	u, err := url.Parse(res.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "/tr/payment-failed", u.Path)
	assert.Equal(t, FailInvalidState, u.Query().Get("error"))
	assert.Equal(t, 0, h.gateway.calls)
}

func TestCallbackUnknownOrder(t *testing.T) {
	h := newHarness(t)
	blob, err := h.state.Encode(payment.OrderState{OrderID: "ORD-1-GHOST", CourseID: "C1", Locale: "en"})
	require.NoError(t, err)

	res := h.svc.ReconcileCallback(context.Background(), CallbackInput{Code: "c", State: blob})
	assert.Equal(t, FailOrderNotFound, res.FailureCode)
	assert.Contains(t, res.RedirectURL, "/en/payment-failed")
}

func TestCallbackTokenExchangeFailureMarksFailed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.gateway.exchange = func(string, string) (*payment.Token, error) {
		return nil, apperr.Gateway("invalid_grant", errors.New("401"))
	}
	res, err := h.svc.CreateOrder(ctx, CreateOrderInput{CourseID: "C1", Email: "bob@example.com", Name: "Bob"})
	require.NoError(t, err)
	state := stateFrom(t, res.RedirectURL)

	cb := h.svc.ReconcileCallback(ctx, CallbackInput{Code: "c", State: state})
	assert.Equal(t, FailTokenExchange, cb.FailureCode)
	u, err := url.Parse(cb.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, res.OrderID, u.Query().Get("orderId"))

	o := h.orders.only(t)
	assert.Equal(t, models.OrderStatusFailed, o.Status)
	assert.Equal(t, FailTokenExchange, o.Metadata.FailureReason)
	assert.Equal(t, 0, h.enrollments.count())

	// A failed order stays failed.
	h.gateway.exchange = nil
	again := h.svc.ReconcileCallback(ctx, CallbackInput{Code: "c", State: state})
	assert.Equal(t, FailOrderFailed, again.FailureCode)
	assert.Equal(t, models.OrderStatusFailed, h.orders.only(t).Status)
}

func TestCallbackCancelledAndMissingCode(t *testing.T) {
	cases := []struct {
		name string
		in   CallbackInput
		code string
	}{
		{"processor error", CallbackInput{Error: "access_denied"}, FailCancelled},
		{"no code", CallbackInput{}, FailMissingCode},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			res, err := h.svc.CreateOrder(context.Background(), CreateOrderInput{CourseID: "C1", Email: "a@b.co", Name: "A"})
			require.NoError(t, err)
			tc.in.State = stateFrom(t, res.RedirectURL)

			cb := h.svc.ReconcileCallback(context.Background(), tc.in)
			assert.Equal(t, tc.code, cb.FailureCode)
			assert.Equal(t, models.OrderStatusFailed, h.orders.only(t).Status)
			assert.Equal(t, 0, h.gateway.calls)
		})
	}
}

func TestCallbackEnrollmentFailureStillCompletes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.svc.CreateOrder(ctx, CreateOrderInput{CourseID: "C1", Email: "a@b.co", Name: "A"})
	require.NoError(t, err)
	h.enrollments.err = apperr.Persistence("ensure enrollment", errors.New("db down"))

	cb := h.svc.ReconcileCallback(ctx, CallbackInput{Code: "c", State: stateFrom(t, res.RedirectURL)})
	assert.Equal(t, models.OrderStatusCompleted, cb.Status)
	assert.False(t, cb.Enrolled)
	assert.Contains(t, cb.RedirectURL, "enrolled=false")
	assert.Equal(t, models.OrderStatusCompleted, h.orders.only(t).Status)
}

func TestNotifierFailureDoesNotBlockCompletion(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("smtp down")

	res, err := h.svc.CreateOrder(context.Background(), CreateOrderInput{CourseID: "FREE", Email: "a@b.co", Name: "A"})
	require.NoError(t, err)
	assert.True(t, res.Enrolled)
}

func webhookEvent() payment.WebhookEvent {
	return payment.WebhookEvent{OrderID: "GW-123", ProductID: "py101", Email: "Carol@Example.com", BuyerName: "Carol", Amount: "200.00", Status: "paid"}
}

func TestWebhookIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.identity.register("carol@example.com", "carol")

	first, err := h.svc.ReconcileWebhook(ctx, webhookEvent())
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.True(t, first.Enrolled)

	second, err := h.svc.ReconcileWebhook(ctx, webhookEvent())
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.True(t, second.Enrolled)

	assert.Equal(t, 1, h.orders.count())
	assert.Equal(t, 1, h.enrollments.count())
	assert.Len(t, h.notifier.sent, 1)
	assert.Equal(t, models.PaymentMethodWebhook, h.orders.only(t).PaymentMethod)
}

func TestWebhookWithoutOrderIDIsStable(t *testing.T) {
	h := newHarness(t)
	ev := webhookEvent()
	ev.OrderID = ""

	a, err := h.svc.ReconcileWebhook(context.Background(), ev)
	require.NoError(t, err)
	b, err := h.svc.ReconcileWebhook(context.Background(), ev)
	require.NoError(t, err)

	assert.Equal(t, a.OrderID, b.OrderID)
	assert.Regexp(t, `^WH-[0-9A-F]{20}$`, a.OrderID)
	assert.Equal(t, 1, h.orders.count())
}

func TestWebhookUnknownProduct(t *testing.T) {
	h := newHarness(t)
	ev := webhookEvent()
	ev.ProductID = "nothing"

	_, err := h.svc.ReconcileWebhook(context.Background(), ev)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, 0, h.orders.count())
}

func TestWebhookUnpaidStatusRecordsFailedOrder(t *testing.T) {
	h := newHarness(t)
	ev := webhookEvent()
	ev.Status = "Refunded"

	res, err := h.svc.ReconcileWebhook(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFailed, res.Status)
	assert.Equal(t, "processor_status_refunded", h.orders.only(t).Metadata.FailureReason)
	assert.Equal(t, 0, h.enrollments.count())
}

func TestWebhookUnknownBuyerDefersEnrollment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.ReconcileWebhook(ctx, webhookEvent())
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, res.Status)
	assert.False(t, res.Enrolled)
	assert.Equal(t, 0, h.enrollments.count())

	h.identity.register("carol@example.com", "carol")
	n, err := h.svc.DeferredSync(ctx, "carol", "carol@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, h.enrollments.get("carol", "C1").IsActive)
	assert.True(t, h.orders.only(t).Enrolled)

	n, err = h.svc.DeferredSync(ctx, "carol", "carol@example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWebhookRedeliveryEnrollsNewlyRegisteredBuyer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.ReconcileWebhook(ctx, webhookEvent())
	require.NoError(t, err)
	h.identity.register("carol@example.com", "carol")

	res, err := h.svc.ReconcileWebhook(ctx, webhookEvent())
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.True(t, res.Enrolled)
	assert.Equal(t, 1, h.enrollments.count())
}

func TestSweepDeferred(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ev := webhookEvent()
	_, err := h.svc.ReconcileWebhook(ctx, ev)
	require.NoError(t, err)
	ev.OrderID, ev.Email = "GW-456", "dave@example.com"
	_, err = h.svc.ReconcileWebhook(ctx, ev)
	require.NoError(t, err)

	h.identity.register("carol@example.com", "carol")

	n, err := h.svc.SweepDeferred(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotNil(t, h.enrollments.get("carol", "C1"))
	assert.Nil(t, h.enrollments.get("dave@example.com", "C1"))
}

func TestSweepDeferredPagesPastUnregisteredBuyers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ev := webhookEvent()
	ev.OrderID, ev.Email = "GW-1", "aaron@example.com"
	_, err := h.svc.ReconcileWebhook(ctx, ev)
	require.NoError(t, err)
	ev.OrderID, ev.Email = "GW-2", "carol@example.com"
	_, err = h.svc.ReconcileWebhook(ctx, ev)
	require.NoError(t, err)

	h.identity.register("carol@example.com", "carol")

	n, err := h.svc.SweepDeferred(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotNil(t, h.enrollments.get("carol", "C1"))
	assert.Nil(t, h.enrollments.get("aaron@example.com", "C1"))

	n, err = h.svc.SweepDeferred(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestNewServiceRequiresCoreDeps(t *testing.T) {
	_, err := NewService(Deps{}, Settings{}, nil)
	assert.Error(t, err)
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
