package models

import (
	"time"

	"github.com/google/uuid"
)

// Certificate is a proof-of-presence artifact derived from a verified
// check-in. At most one exists per (subject, session).
type Certificate struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	Number           string     `json:"certificate_number" db:"certificate_number"`
	VerificationCode string     `json:"verification_code" db:"verification_code"`
	SubjectID        uuid.UUID  `json:"subject_id" db:"subject_id"`
	SessionID        uuid.UUID  `json:"session_id" db:"session_id"`
	CheckInID        uuid.UUID  `json:"check_in_id" db:"check_in_id"`
	CheckInTime      time.Time  `json:"check_in_time" db:"check_in_time"`
	CheckOutTime     *time.Time `json:"check_out_time,omitempty" db:"check_out_time"`
	DurationMinutes  *int       `json:"duration_minutes,omitempty" db:"duration_minutes"`
	IssueDate        time.Time  `json:"issue_date" db:"issue_date"`
}
