package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewQueue(rdb, nil)
}

func TestEnqueueDequeueEmail(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	logID := uuid.New()

	require.NoError(t, q.EnqueueEmail(ctx, EmailPayload{EmailLogID: logID, EmailType: "purchase_confirmation", RecipientEmail: "a@b.co", Subject: "Hi"}))

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, JobTypeEmail, job.Type)

	var p EmailPayload
	require.NoError(t, json.Unmarshal(job.Payload, &p))
	assert.Equal(t, logID, p.EmailLogID)
	assert.Equal(t, "a@b.co", p.RecipientEmail)
}

func TestRetryMovesToDLQAfterMaxRetries(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	job := &Job{ID: "j1", Type: JobTypeEmail, Payload: json.RawMessage(`{}`)}

	for i := 1; i < MaxRetries; i++ {
		dead, err := q.Retry(ctx, job)
		require.NoError(t, err)
		assert.False(t, dead)
	}
	n, err := q.Len(ctx, QueueEmails)
	require.NoError(t, err)
	assert.EqualValues(t, MaxRetries-1, n)

	dead, err := q.Retry(ctx, job)
	require.NoError(t, err)
	assert.True(t, dead)
	n, err = q.Len(ctx, QueueDLQ)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
