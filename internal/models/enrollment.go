package models

import (
	"time"

	"github.com/google/uuid"
)

// Enrollment grants a user access to a course. At most one row per (user, course).
type Enrollment struct {
	ID                 uuid.UUID `json:"id"`
	UserID             string    `json:"user_id"` // registered id or raw email for guests
	CourseID           string    `json:"course_id"`
	EnrolledAt         time.Time `json:"enrolled_at"`
	ProgressPercentage int       `json:"progress_percentage"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Reactivate turns a soft-deleted enrollment back on. Progress restarts from zero.
func (e *Enrollment) Reactivate(now time.Time) {
	e.IsActive = true
	e.ProgressPercentage = 0
	e.EnrolledAt = now
	e.UpdatedAt = now
}
