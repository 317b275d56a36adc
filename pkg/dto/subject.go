package dto

import "github.com/google/uuid"

type CreateSubjectRequest struct {
	DisplayName   string     `json:"display_name" binding:"required"`
	FamilyGroupID *uuid.UUID `json:"family_group_id,omitempty"`
}

type SubjectResponse struct {
	ID            uuid.UUID  `json:"id"`
	DisplayName   string     `json:"display_name"`
	FamilyGroupID *uuid.UUID `json:"family_group_id,omitempty"`
	TemplateCount int        `json:"template_count"`
	CreatedAt     string     `json:"created_at"`
}

type GrantConsentRequest struct {
	Purpose string `json:"purpose" binding:"required"`
}

type ConsentResponse struct {
	ID          uuid.UUID `json:"id"`
	SubjectID   uuid.UUID `json:"subject_id"`
	Purpose     string    `json:"purpose"`
	Granted     bool      `json:"granted"`
	Version     string    `json:"version"`
	GrantedAt   string    `json:"granted_at"`
	WithdrawnAt string    `json:"withdrawn_at,omitempty"`
}

// EnrollTemplateRequest carries a raw descriptor. If the service runs with a
// descriptor extractor, enrollment can alternatively upload an image via
// multipart form.
type EnrollTemplateRequest struct {
	Vector  []float64 `json:"vector" binding:"required"`
	Quality float64   `json:"quality"`
	Label   string    `json:"label,omitempty"`
}

type TemplateResponse struct {
	ID        uuid.UUID `json:"id"`
	SubjectID uuid.UUID `json:"subject_id"`
	Quality   float64   `json:"quality"`
	IsPrimary bool      `json:"is_primary"`
	Label     string    `json:"label,omitempty"`
	CreatedAt string    `json:"created_at"`
}
