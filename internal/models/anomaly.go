package models

import (
	"time"

	"github.com/google/uuid"
)

// AnomalyType classifies a detected suspicious pattern.
type AnomalyType string

const (
	AnomalyMultipleCheckIns AnomalyType = "MULTIPLE_CHECKINS"
	AnomalyRapidSuccession  AnomalyType = "RAPID_SUCCESSION"
	AnomalyLowConfidence    AnomalyType = "LOW_CONFIDENCE"
	AnomalyUnusualLocation  AnomalyType = "UNUSUAL_LOCATION"
	AnomalySpoofingAttempt  AnomalyType = "SPOOFING_ATTEMPT"
)

// Severity is the risk level of an anomaly. Severities are totally ordered:
// LOW < MEDIUM < HIGH < CRITICAL.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank maps a severity to its position in the total order. Unknown severities
// rank below LOW.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Anomaly is a detection result. Created by the detector; the only permitted
// mutation is resolution by a reviewer.
type Anomaly struct {
	ID         uuid.UUID   `json:"id" db:"id"`
	SubjectID  uuid.UUID   `json:"subject_id" db:"subject_id"`
	SessionID  *uuid.UUID  `json:"session_id,omitempty" db:"session_id"`
	CheckInID  *uuid.UUID  `json:"check_in_id,omitempty" db:"check_in_id"`
	Type       AnomalyType `json:"type" db:"anomaly_type"`
	Severity   Severity    `json:"severity" db:"severity"`
	Details    string      `json:"details" db:"details"`
	Timestamp  time.Time   `json:"timestamp" db:"timestamp"`
	Resolved   bool        `json:"resolved" db:"resolved"`
	ResolvedBy *uuid.UUID  `json:"resolved_by,omitempty" db:"resolved_by"`
	Resolution string      `json:"resolution,omitempty" db:"resolution"`
}
