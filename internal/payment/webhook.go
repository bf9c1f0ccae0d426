package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kampus-akademi/backend/internal/apperr"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Signature"

var validate = validator.New()

// WebhookEvent is a processor payment notification normalized from JSON or form payloads.
type WebhookEvent struct {
	OrderID   string
	ProductID string `validate:"required"`
	Email     string `validate:"required,email"`
	BuyerName string
	Amount    string
	Status    string
}

// Paid reports whether the processor reported a successful payment. An empty status counts as paid.
func (e WebhookEvent) Paid() bool {
	switch strings.ToLower(e.Status) {
	case "", "paid", "success", "succeeded", "completed":
		return true
	}
	return false
}

var fieldAliases = map[string][]string{
	"order_id":    {"order_id", "orderId", "sale_id", "saleId", "id"},
	"product_id":  {"product_id", "productId", "product_permalink"},
	"product_url": {"product_url", "productUrl", "url"},
	"email":       {"email", "buyer_email", "customer_email", "purchaser_email"},
	"name":        {"full_name", "name", "buyer_name", "customer_name"},
	"amount":      {"amount", "price", "total"},
	"status":      {"status", "payment_status"},
}

// ParseWebhook normalizes a webhook body. Missing email or product are InvalidRequest errors.
func ParseWebhook(contentType string, body []byte) (WebhookEvent, error) {
	fields, err := flatten(contentType, body)
	if err != nil {
		return WebhookEvent{}, apperr.InvalidRequest("malformed webhook payload")
	}
	pick := func(key string) string {
		for _, alias := range fieldAliases[key] {
			if v := strings.TrimSpace(fields[alias]); v != "" {
				return v
			}
		}
		return ""
	}
	ev := WebhookEvent{
		OrderID:   pick("order_id"),
		ProductID: pick("product_id"),
		Email:     strings.ToLower(pick("email")),
		BuyerName: pick("name"),
		Amount:    pick("amount"),
		Status:    pick("status"),
	}
	if ev.ProductID == "" {
		ev.ProductID = productFromURL(pick("product_url"))
	}
	if err := validate.Struct(ev); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && verrs[0].Field() == "Email" {
			return ev, apperr.InvalidRequest("buyer email is required")
		}
		return ev, apperr.InvalidRequest("product identifier is required")
	}
	return ev, nil
}

func flatten(contentType string, body []byte) (map[string]string, error) {
	out := map[string]string{}
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		vals, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, err
		}
		for k := range vals {
			out[k] = vals.Get(k)
		}
		return out, nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			out[k] = t
		case float64, bool, json.Number:
			out[k] = fmt.Sprint(t)
		}
	}
	return out, nil
}

// productFromURL returns the last path segment of a product URL, e.g. https://pay.example/l/abc -> abc.
func productFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	seg := path.Base(strings.TrimRight(u.Path, "/"))
	if seg == "." || seg == "/" {
		return ""
	}
	return seg
}

// VerifyWebhookSignature checks the hex HMAC-SHA256 of body. An empty secret disables the check.
func VerifyWebhookSignature(secret string, body []byte, signature string) bool {
	if secret == "" {
		return true
	}
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// SignWebhook returns the signature VerifyWebhookSignature expects.
func SignWebhook(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
