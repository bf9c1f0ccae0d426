package models

import (
	"time"

	"github.com/google/uuid"
)

// Email types sent by the site.
const (
	EmailTypePurchaseConfirmation = "purchase_confirmation"
	EmailTypeFormReceived         = "form_received"
)

// EmailLogStatus for delivery.
const (
	EmailLogStatusPending = "pending"
	EmailLogStatusSent    = "sent"
	EmailLogStatusFailed  = "failed"
)

// EmailLog records transactional emails and their delivery state.
type EmailLog struct {
	ID             uuid.UUID  `json:"id"`
	OrderID        *string    `json:"order_id,omitempty"`
	SubmissionID   *uuid.UUID `json:"submission_id,omitempty"`
	EmailType      string     `json:"email_type"`
	RecipientEmail string     `json:"recipient_email"`
	Subject        string     `json:"subject,omitempty"`
	Status         string     `json:"status"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
