package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kampus-akademi/backend/config"
)

// ErrDisabled is returned by Send when no API key is configured.
var ErrDisabled = errors.New("email delivery disabled")

// Message is one transactional email.
type Message struct {
	To      string
	ToName  string
	ReplyTo string
	Subject string
	HTML    string
}

// BrevoClient sends email through the Brevo transactional API.
type BrevoClient struct {
	apiURL      string
	apiKey      string
	fromAddress string
	fromName    string
	http        *http.Client
}

// NewBrevoClient creates a client from email settings.
func NewBrevoClient(cfg config.EmailConfig) *BrevoClient {
	return &BrevoClient{
		apiURL:      cfg.APIURL,
		apiKey:      cfg.APIKey,
		fromAddress: cfg.FromAddress,
		fromName:    cfg.FromName,
		http:        &http.Client{Timeout: 15 * time.Second},
	}
}

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoRequest struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	ReplyTo     *brevoContact  `json:"replyTo,omitempty"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
}

// Send delivers m. Non-2xx answers are errors carrying the start of the response body.
func (b *BrevoClient) Send(ctx context.Context, m Message) error {
	if b.apiKey == "" {
		return ErrDisabled
	}
	req := brevoRequest{
		Sender:      brevoContact{Email: b.fromAddress, Name: b.fromName},
		To:          []brevoContact{{Email: m.To, Name: m.ToName}},
		Subject:     m.Subject,
		HTMLContent: m.HTML,
	}
	if m.ReplyTo != "" {
		req.ReplyTo = &brevoContact{Email: m.ReplyTo}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("api-key", b.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := b.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("brevo status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}
