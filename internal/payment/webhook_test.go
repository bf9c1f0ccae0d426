package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kampus-akademi/backend/internal/apperr"
)

func TestParseWebhookJSON(t *testing.T) {
	ev, err := ParseWebhook("application/json", []byte(`{"sale_id":"S-1","product_id":"p42","email":"Buyer@X.com","price":199.9,"status":"paid"}`))
	require.NoError(t, err)
	assert.Equal(t, "S-1", ev.OrderID)
	assert.Equal(t, "p42", ev.ProductID)
	assert.Equal(t, "buyer@x.com", ev.Email)
	assert.Equal(t, "199.9", ev.Amount)
	assert.True(t, ev.Paid())
}

func TestParseWebhookFormWithProductURL(t *testing.T) {
	body := "email=a%40b.com&product_url=https%3A%2F%2Fpay.example.com%2Fl%2Fpython-101%2F&status=refunded"
	ev, err := ParseWebhook("application/x-www-form-urlencoded; charset=utf-8", []byte(body))
	require.NoError(t, err)
	assert.Equal(t, "python-101", ev.ProductID)
	assert.Equal(t, "", ev.OrderID)
	assert.False(t, ev.Paid())
}

func TestParseWebhookRejects(t *testing.T) {
	cases := map[string]string{
		"no email":   `{"product_id":"p"}`,
		"bad email":  `{"product_id":"p","email":"nope"}`,
		"no product": `{"email":"a@b.com"}`,
		"not json":   `{`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseWebhook("application/json", []byte(body))
			assert.True(t, apperr.Is(err, apperr.KindInvalidRequest))
		})
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"a":1}`)
	sig := SignWebhook("s3cret", body)

	assert.True(t, VerifyWebhookSignature("s3cret", body, sig))
	assert.True(t, VerifyWebhookSignature("s3cret", body, "sha256="+sig))
	assert.False(t, VerifyWebhookSignature("s3cret", []byte(`{"a":2}`), sig))
	assert.False(t, VerifyWebhookSignature("s3cret", body, "zz"))
	assert.True(t, VerifyWebhookSignature("", body, ""))
}
