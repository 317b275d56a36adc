package models

import (
	"time"

	"github.com/google/uuid"
)

// Subject is a person enrollable for facial recognition. Subjects that share
// one account (family profiles) are linked through FamilyGroupID.
type Subject struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	FamilyGroupID *uuid.UUID `json:"family_group_id,omitempty" db:"family_group_id"`
	DisplayName   string     `json:"display_name" db:"display_name"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// DescriptorDim is the fixed length of a face descriptor vector.
const DescriptorDim = 128

// FaceTemplate is one enrolled descriptor belonging to a subject.
type FaceTemplate struct {
	ID        uuid.UUID `json:"id" db:"id"`
	SubjectID uuid.UUID `json:"subject_id" db:"subject_id"`
	Vector    []float64 `json:"-" db:"vector"`
	Quality   float64   `json:"quality" db:"quality"`
	IsPrimary bool      `json:"is_primary" db:"is_primary"`
	Label     string    `json:"label,omitempty" db:"label"`
	SourceKey string    `json:"-" db:"source_key"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
