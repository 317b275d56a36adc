package dto

import "github.com/google/uuid"

type CertificateResponse struct {
	ID               uuid.UUID `json:"id"`
	Number           string    `json:"certificate_number"`
	VerificationCode string    `json:"verification_code"`
	SubjectID        uuid.UUID `json:"subject_id"`
	SessionID        uuid.UUID `json:"session_id"`
	CheckInTime      string    `json:"check_in_time"`
	CheckOutTime     string    `json:"check_out_time,omitempty"`
	DurationMinutes  *int      `json:"duration_minutes,omitempty"`
	IssueDate        string    `json:"issue_date"`
}
