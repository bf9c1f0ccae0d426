package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Form kinds accepted by the public forms endpoint.
const (
	FormKindCareers    = "careers"
	FormKindClub       = "club"
	FormKindContact    = "contact"
	FormKindInstructor = "instructor"
)

// FormSubmission is a stored dynamic form (careers, club application, contact, instructor recruitment).
type FormSubmission struct {
	ID            uuid.UUID       `json:"id"`
	Kind          string          `json:"kind"`
	Email         string          `json:"email"`
	FullName      string          `json:"full_name"`
	Locale        string          `json:"locale"`
	Fields        json.RawMessage `json:"fields"`
	AttachmentKey *string         `json:"attachment_key,omitempty"`
	AttachmentURL string          `json:"attachment_url,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
