package models

import (
	"time"

	"github.com/google/uuid"
)

// AttendanceSession is a scheduled gathering that subjects check in to.
type AttendanceSession struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Type      string     `json:"type" db:"session_type"`
	StartTime time.Time  `json:"start_time" db:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty" db:"end_time"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// CheckInMethod is how a check-in was performed.
type CheckInMethod string

const (
	MethodFacial CheckInMethod = "FACIAL"
	MethodManual CheckInMethod = "MANUAL"
	MethodCode   CheckInMethod = "CODE"
)

// KnownMethod reports whether m is a recognized check-in method.
func KnownMethod(m CheckInMethod) bool {
	switch m {
	case MethodFacial, MethodManual, MethodCode:
		return true
	}
	return false
}

// VerificationStatus is the trust level attached to a check-in event.
type VerificationStatus string

const (
	StatusVerified   VerificationStatus = "VERIFIED"
	StatusPending    VerificationStatus = "PENDING"
	StatusSuspicious VerificationStatus = "SUSPICIOUS"
)

// CheckInEvent is one presence record. Confidence is only meaningful for
// FACIAL check-ins.
type CheckInEvent struct {
	ID           uuid.UUID          `json:"id" db:"id"`
	SessionID    uuid.UUID          `json:"session_id" db:"session_id"`
	SubjectID    uuid.UUID          `json:"subject_id" db:"subject_id"`
	Method       CheckInMethod      `json:"method" db:"method"`
	Confidence   float64            `json:"confidence,omitempty" db:"confidence"`
	CheckInTime  time.Time          `json:"check_in_time" db:"check_in_time"`
	CheckOutTime *time.Time         `json:"check_out_time,omitempty" db:"check_out_time"`
	Status       VerificationStatus `json:"verification_status" db:"verification_status"`
}

// Open reports whether the event has not been checked out yet.
func (e CheckInEvent) Open() bool {
	return e.CheckOutTime == nil
}

// DurationMinutes returns the completed duration, or nil while still checked in.
func (e CheckInEvent) DurationMinutes() *int {
	if e.CheckOutTime == nil {
		return nil
	}
	m := int(e.CheckOutTime.Sub(e.CheckInTime).Minutes())
	return &m
}
