package dto

import "github.com/google/uuid"

type AnomalyResponse struct {
	ID         uuid.UUID  `json:"id"`
	SubjectID  uuid.UUID  `json:"subject_id"`
	SessionID  *uuid.UUID `json:"session_id,omitempty"`
	CheckInID  *uuid.UUID `json:"check_in_id,omitempty"`
	Type       string     `json:"type"`
	Severity   string     `json:"severity"`
	Details    string     `json:"details"`
	Timestamp  string     `json:"timestamp"`
	Resolved   bool       `json:"resolved"`
	ResolvedBy *uuid.UUID `json:"resolved_by,omitempty"`
	Resolution string     `json:"resolution,omitempty"`
}

type ResolveAnomalyRequest struct {
	ResolverID uuid.UUID `json:"resolver_id" binding:"required"`
	Resolution string    `json:"resolution" binding:"required"`
}
