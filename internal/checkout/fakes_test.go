package checkout

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kampus-akademi/backend/internal/apperr"
	"github.com/kampus-akademi/backend/internal/enrollments"
	"github.com/kampus-akademi/backend/internal/models"
	"github.com/kampus-akademi/backend/internal/payment"
)

type fakeOrders struct {
	mu     sync.Mutex
	orders map[string]*models.Order
}

func newFakeOrders() *fakeOrders { return &fakeOrders{orders: map[string]*models.Order{}} }

func (f *fakeOrders) Create(_ context.Context, o *models.Order) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orders[o.ID]; ok {
		return false, nil
	}
	cp := *o
	f.orders[o.ID] = &cp
	return true, nil
}

func (f *fakeOrders) Get(_ context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, apperr.NotFound("order not found")
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) MarkCompleted(_ context.Context, id string, patch models.OrderMetadata) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[id]
	if o == nil || o.Status != models.OrderStatusPending {
		return false, nil
	}
	o.Status = models.OrderStatusCompleted
	if patch.AccessToken != "" {
		o.Metadata.AccessToken = patch.AccessToken
		o.Metadata.RefreshToken = patch.RefreshToken
		o.Metadata.TokenExpiresIn = patch.TokenExpiresIn
	}
	return true, nil
}

func (f *fakeOrders) MarkFailed(_ context.Context, id, reason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[id]
	if o == nil || o.Status != models.OrderStatusPending {
		return false, nil
	}
	o.Status = models.OrderStatusFailed
	o.Metadata.FailureReason = reason
	return true, nil
}

func (f *fakeOrders) MarkEnrolled(_ context.Context, id string, enrollmentID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := enrollmentID.String()
	f.orders[id].Enrolled = true
	f.orders[id].EnrollmentID = &s
	return nil
}

func (f *fakeOrders) ListUnenrolledWebhookOrders(_ context.Context, email string) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if strings.EqualFold(o.Email, email) && o.Status == models.OrderStatusCompleted && o.PaymentMethod == models.PaymentMethodWebhook && !o.Enrolled {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOrders) ListUnenrolledWebhookEmails(_ context.Context, after string, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, o := range f.orders {
		email := strings.ToLower(o.Email)
		if o.Status == models.OrderStatusCompleted && o.PaymentMethod == models.PaymentMethodWebhook && !o.Enrolled && email > after && !seen[email] {
			seen[email] = true
			out = append(out, email)
		}
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeOrders) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func (f *fakeOrders) only(t *testing.T) *models.Order {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.orders, 1)
	for _, o := range f.orders {
		cp := *o
		return &cp
	}
	return nil
}

type fakeEnrollments struct {
	mu   sync.Mutex
	rows map[string]*models.Enrollment
	err  error
}

func newFakeEnrollments() *fakeEnrollments {
	return &fakeEnrollments{rows: map[string]*models.Enrollment{}}
}

func (f *fakeEnrollments) Ensure(_ context.Context, userID, courseID string) (*models.Enrollment, enrollments.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, "", f.err
	}
	key := userID + "|" + courseID
	e, ok := f.rows[key]
	switch {
	case !ok:
		e = &models.Enrollment{ID: uuid.New(), UserID: userID, CourseID: courseID, IsActive: true, EnrolledAt: time.Now()}
		f.rows[key] = e
		cp := *e
		return &cp, enrollments.OutcomeCreated, nil
	case e.IsActive:
		cp := *e
		return &cp, enrollments.OutcomeAlreadyActive, nil
	default:
		e.Reactivate(time.Now())
		cp := *e
		return &cp, enrollments.OutcomeReactivated, nil
	}
}

func (f *fakeEnrollments) get(userID, courseID string) *models.Enrollment {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.rows[userID+"|"+courseID]
	if e == nil {
		return nil
	}
	cp := *e
	return &cp
}

func (f *fakeEnrollments) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeLedger struct {
	mu          sync.Mutex
	codes       map[string]*models.DiscountCode
	redemptions map[string]decimal.Decimal
	referrals   map[string]string // order id -> referrer
}

func newFakeLedger(codes ...*models.DiscountCode) *fakeLedger {
	l := &fakeLedger{codes: map[string]*models.DiscountCode{}, redemptions: map[string]decimal.Decimal{}, referrals: map[string]string{}}
	for _, c := range codes {
		l.codes[c.Code] = c
	}
	return l
}

func (l *fakeLedger) Quote(_ context.Context, code string, price decimal.Decimal) (decimal.Decimal, *models.DiscountCode, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.codes[strings.ToUpper(code)]
	if !ok {
		return decimal.Zero, nil, apperr.NotFound("discount code not found")
	}
	g := d.DiscountValue
	if d.DiscountType == models.DiscountTypePercent {
		g = price.Mul(d.DiscountValue).Div(decimal.NewFromInt(100))
	}
	return decimal.Min(g, price), d, nil
}

func (l *fakeLedger) ValidateReferral(_ context.Context, code, userID string) (*models.DiscountCode, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.codes[strings.ToUpper(code)]
	if !ok || !d.IsReferral {
		return nil, apperr.InvalidRequest("not a referral code")
	}
	if *d.OwnerUserID == userID {
		return nil, apperr.InvalidRequest("self referral")
	}
	return d, nil
}

func (l *fakeLedger) Redeem(_ context.Context, orderID, code string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.redemptions[orderID+"/"+code] = amount
	return nil
}

func (l *fakeLedger) RecordReferralUsage(_ context.Context, orderID, code, referred string) (*models.ReferralUsage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.referrals[orderID]; ok {
		return nil, nil
	}
	d := l.codes[code]
	l.referrals[orderID] = *d.OwnerUserID
	d.UsageCount++
	return &models.ReferralUsage{OrderID: orderID, ReferralCode: code, ReferrerUserID: *d.OwnerUserID, ReferredUserID: referred}, nil
}

func (l *fakeLedger) referralCount(referrer string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.referrals {
		if r == referrer {
			n++
		}
	}
	return n
}

type fakeCourses struct {
	byID map[string]*models.Course
}

func (f *fakeCourses) GetActive(_ context.Context, id string) (*models.Course, error) {
	c, ok := f.byID[id]
	if !ok || !c.IsActive {
		return nil, apperr.NotFound("course not found")
	}
	return c, nil
}

func (f *fakeCourses) GetByProductID(_ context.Context, productID string) (*models.Course, error) {
	for _, c := range f.byID {
		if c.GatewayProductID != nil && *c.GatewayProductID == productID {
			return c, nil
		}
	}
	return nil, apperr.NotFound("course not found")
}

type fakeIdentity struct {
	mu    sync.Mutex
	users map[string]string
}

func (f *fakeIdentity) LookupIDByEmail(_ context.Context, email string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[strings.ToLower(email)], nil
}

func (f *fakeIdentity) register(email, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[email] = id
}

type fakeGateway struct {
	mu       sync.Mutex
	calls    int
	exchange func(code, state string) (*payment.Token, error)
}

func (g *fakeGateway) AuthorizationURL(state string) string {
	return "https://pay.test/oauth/authorize?client_id=c&state=" + url.QueryEscape(state)
}

func (g *fakeGateway) Exchange(_ context.Context, code, state string) (*payment.Token, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.exchange != nil {
		return g.exchange(code, state)
	}
	return &payment.Token{AccessToken: "at-" + code, RefreshToken: "rt", ExpiresIn: 3600}, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (n *fakeNotifier) PurchaseConfirmed(_ context.Context, o *models.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, o.ID)
	return nil
}

type harness struct {
	svc         *Service
	orders      *fakeOrders
	enrollments *fakeEnrollments
	ledger      *fakeLedger
	identity    *fakeIdentity
	gateway     *fakeGateway
	notifier    *fakeNotifier
	state       *payment.StateCodec
}

func ptr(s string) *string { return &s }

func newHarness(t *testing.T) *harness {
	t.Helper()
	courses := &fakeCourses{byID: map[string]*models.Course{
		"C1":   {ID: "C1", Name: "Python 101", Price: decimal.NewFromInt(200), IsActive: true, GatewayProductID: ptr("py101")},
		"FREE": {ID: "FREE", Name: "Intro", Price: decimal.Zero, IsActive: true},
		"OLD":  {ID: "OLD", Name: "Retired", Price: decimal.NewFromInt(50), IsActive: false},
	}}
	h := &harness{
		orders:      newFakeOrders(),
		enrollments: newFakeEnrollments(),
		ledger: newFakeLedger(
			&models.DiscountCode{Code: "REF-ALICE", IsReferral: true, OwnerUserID: ptr("alice"), DiscountType: models.DiscountTypePercent, DiscountValue: decimal.NewFromInt(10), MaxUsage: 100},
			&models.DiscountCode{Code: "FULL", DiscountType: models.DiscountTypeFixed, DiscountValue: decimal.NewFromInt(500), MaxUsage: 10},
		),
		identity: &fakeIdentity{users: map[string]string{}},
		gateway:  &fakeGateway{},
		notifier: &fakeNotifier{},
		state:    payment.NewStateCodec("test-secret", time.Hour),
	}
	svc, err := NewService(Deps{
		Orders:      h.orders,
		Enrollments: h.enrollments,
		Ledger:      h.ledger,
		Courses:     courses,
		Identity:    h.identity,
		Gateway:     h.gateway,
		State:       h.state,
		Notifier:    h.notifier,
	}, Settings{BaseURL: "https://kampus.test/", DefaultLocale: "tr", Locales: []string{"tr", "en"}, OrderIDPrefix: "ORD"}, nil)
	require.NoError(t, err)
	h.svc = svc
	return h
}

// stateFrom extracts the state blob from an authorization redirect.
func stateFrom(t *testing.T, redirect string) string {
	t.Helper()
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	return u.Query().Get("state")
}
