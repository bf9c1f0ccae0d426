package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kampus-akademi/backend/internal/apperr"
	"github.com/kampus-akademi/backend/internal/models"
	"github.com/kampus-akademi/backend/pkg/queue"
)

type memLogs struct {
	created []*models.EmailLog
	failed  map[uuid.UUID]string
}

func (m *memLogs) Create(_ context.Context, el *models.EmailLog) error {
	el.ID = uuid.New()
	m.created = append(m.created, el)
	return nil
}

func (m *memLogs) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	if m.failed == nil {
		m.failed = map[uuid.UUID]string{}
	}
	m.failed[id] = reason
	return nil
}

type memQueue struct {
	jobs []queue.EmailPayload
	err  error
}

func (q *memQueue) EnqueueEmail(_ context.Context, p queue.EmailPayload) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, p)
	return nil
}

type memOrders map[string]*models.Order

func (m memOrders) Get(_ context.Context, id string) (*models.Order, error) {
	o, ok := m[id]
	if !ok {
		return nil, apperr.NotFound("order not found")
	}
	return o, nil
}

func testOrder() *models.Order {
	return &models.Order{
		ID:         "ORD-1",
		CourseName: "Python 101",
		Email:      "bob@example.com",
		Amount:     decimal.NewFromInt(180),
		Status:     models.OrderStatusCompleted,
		Enrolled:   true,
		Metadata:   models.OrderMetadata{Locale: "en", BuyerName: "Bob"},
	}
}

func TestPurchaseConfirmedQueuesLoggedEmail(t *testing.T) {
	logs, q := &memLogs{}, &memQueue{}
	svc := NewService(logs, q, memOrders{}, Settings{BaseURL: "https://kampus.test/"}, nil)

	require.NoError(t, svc.PurchaseConfirmed(context.Background(), testOrder()))

	require.Len(t, logs.created, 1)
	el := logs.created[0]
	assert.Equal(t, models.EmailTypePurchaseConfirmation, el.EmailType)
	assert.Equal(t, models.EmailLogStatusPending, el.Status)
	assert.Equal(t, "ORD-1", *el.OrderID)

	require.Len(t, q.jobs, 1)
	job := q.jobs[0]
	assert.Equal(t, el.ID, job.EmailLogID)
	assert.Equal(t, "Your order is confirmed: Python 101", job.Subject)
	assert.Contains(t, job.BodyHTML, "180.00")
	assert.Contains(t, job.BodyHTML, "https://kampus.test/en/my-courses")
}

func TestPurchaseConfirmedUnknownLocaleFallsBack(t *testing.T) {
	q := &memQueue{}
	svc := NewService(&memLogs{}, q, memOrders{}, Settings{}, nil)
	o := testOrder()
	o.Metadata.Locale = "fr"

	require.NoError(t, svc.PurchaseConfirmed(context.Background(), o))
	assert.Contains(t, q.jobs[0].Subject, "Siparişiniz onaylandı")
}

func TestEnqueueFailureMarksLogFailed(t *testing.T) {
	logs := &memLogs{}
	svc := NewService(logs, &memQueue{err: errors.New("redis down")}, memOrders{}, Settings{}, nil)

	err := svc.PurchaseConfirmed(context.Background(), testOrder())
	require.Error(t, err)
	assert.Contains(t, logs.failed[logs.created[0].ID], "redis down")
}

func TestResendRequiresCompletedOrder(t *testing.T) {
	pending := testOrder()
	pending.ID, pending.Status = "ORD-2", models.OrderStatusPending
	q := &memQueue{}
	svc := NewService(&memLogs{}, q, memOrders{"ORD-1": testOrder(), "ORD-2": pending}, Settings{}, nil)
	ctx := context.Background()

	require.NoError(t, svc.ResendPurchaseConfirmation(ctx, "ORD-1"))
	assert.Len(t, q.jobs, 1)

	assert.True(t, apperr.Is(svc.ResendPurchaseConfirmation(ctx, "ORD-2"), apperr.KindInvalidRequest))
	assert.True(t, apperr.Is(svc.ResendPurchaseConfirmation(ctx, "nope"), apperr.KindNotFound))
}

func TestFormReceived(t *testing.T) {
	q := &memQueue{}
	svc := NewService(&memLogs{}, q, memOrders{}, Settings{AdminAddress: "hr@kampus.test"}, nil)
	key := "forms/careers/x.pdf"
	sub := &models.FormSubmission{
		ID:            uuid.New(),
		Kind:          models.FormKindCareers,
		Email:         "ann@example.com",
		FullName:      "Ann",
		Fields:        json.RawMessage(`{"position":"Go developer","experience":5}`),
		AttachmentKey: &key,
	}

	require.NoError(t, svc.FormReceived(context.Background(), sub))
	require.Len(t, q.jobs, 1)
	job := q.jobs[0]
	assert.Equal(t, "hr@kampus.test", job.RecipientEmail)
	assert.Equal(t, "ann@example.com", job.ReplyTo)
	assert.Equal(t, "[careers] Ann", job.Subject)
	assert.Contains(t, job.BodyHTML, "Go developer")
	assert.Contains(t, job.BodyHTML, key)
}

func TestFormReceivedWithoutAdminIsSkipped(t *testing.T) {
	q := &memQueue{}
	svc := NewService(&memLogs{}, q, memOrders{}, Settings{}, nil)

	require.NoError(t, svc.FormReceived(context.Background(), &models.FormSubmission{ID: uuid.New(), Kind: models.FormKindContact}))
	assert.Empty(t, q.jobs)
}
