package anomaly

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attend/internal/models"
)

// Detector evaluates check-in events against a recent-history window. Detect
// is side-effect-free so it can run identically in the synchronous check-in
// path and in batch audits.
type Detector struct {
	RapidSuccessionWindow time.Duration
	LowConfidence         float64
	VeryLowConfidence     float64
}

func NewDetector(rapidWindow time.Duration, lowConfidence, veryLowConfidence float64) *Detector {
	return &Detector{
		RapidSuccessionWindow: rapidWindow,
		LowConfidence:         lowConfidence,
		VeryLowConfidence:     veryLowConfidence,
	}
}

// Detect inspects a new check-in against the subject's recent events and
// returns every anomaly that fires; rules are independent and more than one
// may apply. It never returns an error: an empty result means nothing
// suspicious. The caller persists the results.
func (d *Detector) Detect(event models.CheckInEvent, recent []models.CheckInEvent) []models.Anomaly {
	var out []models.Anomaly

	rapid := false
	crossSession := false
	sameSession := 0
	for _, prev := range recent {
		if prev.ID == event.ID || prev.SubjectID != event.SubjectID {
			continue
		}
		if prev.SessionID == event.SessionID {
			sameSession++
		}
		delta := event.CheckInTime.Sub(prev.CheckInTime)
		if delta >= 0 && delta <= d.RapidSuccessionWindow {
			rapid = true
			if prev.SessionID != event.SessionID {
				crossSession = true
			}
		}
	}

	if rapid {
		out = append(out, d.newAnomaly(event, models.AnomalyRapidSuccession, models.SeverityHigh,
			fmt.Sprintf("subject checked in again within %s", d.RapidSuccessionWindow)))
	}

	if crossSession {
		// One body cannot be present at two sessions inside the window.
		out = append(out, d.newAnomaly(event, models.AnomalySpoofingAttempt, models.SeverityCritical,
			"near-simultaneous check-ins at different sessions"))
	}

	if event.Method == models.MethodFacial && event.Confidence < d.LowConfidence {
		severity := models.SeverityMedium
		if event.Confidence < d.VeryLowConfidence {
			severity = models.SeverityHigh
		}
		out = append(out, d.newAnomaly(event, models.AnomalyLowConfidence, severity,
			fmt.Sprintf("facial match confidence %.2f below %.2f", event.Confidence, d.LowConfidence)))
	}

	if sameSession > 0 {
		out = append(out, d.newAnomaly(event, models.AnomalyMultipleCheckIns, models.SeverityMedium,
			fmt.Sprintf("%d prior check-in(s) for the same session", sameSession)))
	}

	return out
}

// MaxSeverity returns the highest-ranked severity among the anomalies, or ""
// when the slice is empty.
func MaxSeverity(anomalies []models.Anomaly) models.Severity {
	var max models.Severity
	for _, a := range anomalies {
		if a.Severity.Rank() > max.Rank() {
			max = a.Severity
		}
	}
	return max
}

func (d *Detector) newAnomaly(event models.CheckInEvent, typ models.AnomalyType, severity models.Severity, details string) models.Anomaly {
	sessionID := event.SessionID
	checkInID := event.ID
	return models.Anomaly{
		ID:        uuid.New(),
		SubjectID: event.SubjectID,
		SessionID: &sessionID,
		CheckInID: &checkInID,
		Type:      typ,
		Severity:  severity,
		Details:   details,
		Timestamp: event.CheckInTime,
	}
}
