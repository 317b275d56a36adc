package dto

import (
	"encoding/json"

	"github.com/google/uuid"
)

type CreateSessionRequest struct {
	Name      string `json:"name" binding:"required"`
	Type      string `json:"type"`
	StartTime string `json:"start_time" binding:"required"`
	EndTime   string `json:"end_time,omitempty"`
}

type SessionResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time,omitempty"`
}

// RecognizeRequest matches a probe descriptor without recording anything.
type RecognizeRequest struct {
	Vector []float64 `json:"vector" binding:"required"`
}

// CheckInRequest records presence. FACIAL check-ins supply the probe vector
// and the subject is resolved by the matcher; MANUAL and CODE check-ins name
// the subject directly.
type CheckInRequest struct {
	Method    string     `json:"method" binding:"required"`
	SubjectID *uuid.UUID `json:"subject_id,omitempty"`
	Vector    []float64  `json:"vector,omitempty"`
}

type CheckInResponse struct {
	ID         uuid.UUID         `json:"id"`
	SessionID  uuid.UUID         `json:"session_id"`
	SubjectID  uuid.UUID         `json:"subject_id"`
	Method     string            `json:"method"`
	Confidence float64           `json:"confidence,omitempty"`
	CheckIn    string            `json:"check_in_time"`
	CheckOut   string            `json:"check_out_time,omitempty"`
	Duration   *int              `json:"duration_minutes,omitempty"`
	Status     string            `json:"verification_status"`
	Anomalies  []AnomalyResponse `json:"anomalies,omitempty"`
}

type CheckInListResponse struct {
	CheckIns []CheckInResponse `json:"checkins"`
	Total    int               `json:"total"`
}

// WSEvent is a WebSocket message for real-time event delivery.
type WSEvent struct {
	Type      string          `json:"type"` // checkin, checkout, anomaly, certificate
	SessionID uuid.UUID       `json:"session_id"`
	Data      json.RawMessage `json:"data,omitempty"`
}
