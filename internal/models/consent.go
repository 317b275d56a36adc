package models

import (
	"time"

	"github.com/google/uuid"
)

// ConsentPurpose names a category of biometric data use.
type ConsentPurpose string

const (
	PurposeFacialRecognition ConsentPurpose = "FACIAL_RECOGNITION"
	PurposeDataProcessing    ConsentPurpose = "DATA_PROCESSING"
	PurposePresenceTracking  ConsentPurpose = "PRESENCE_TRACKING"
)

// KnownPurpose reports whether p is one of the recognized consent purposes.
func KnownPurpose(p ConsentPurpose) bool {
	switch p {
	case PurposeFacialRecognition, PurposeDataProcessing, PurposePresenceTracking:
		return true
	}
	return false
}

// ConsentRecord is one append-only ledger entry. Withdrawal is a new record
// with Granted=false; history is never mutated or deleted.
type ConsentRecord struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	SubjectID   uuid.UUID      `json:"subject_id" db:"subject_id"`
	Purpose     ConsentPurpose `json:"purpose" db:"purpose"`
	Granted     bool           `json:"granted" db:"granted"`
	Version     string         `json:"version" db:"version"`
	GrantedAt   time.Time      `json:"granted_at" db:"granted_at"`
	WithdrawnAt *time.Time     `json:"withdrawn_at,omitempty" db:"withdrawn_at"`
}
