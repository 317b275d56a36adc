package anomaly

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attend/internal/models"
)

func newDetector() *Detector {
	return NewDetector(30*time.Second, 0.7, 0.5)
}

func event(subjectID, sessionID uuid.UUID, method models.CheckInMethod, confidence float64, at time.Time) models.CheckInEvent {
	return models.CheckInEvent{
		ID:          uuid.New(),
		SessionID:   sessionID,
		SubjectID:   subjectID,
		Method:      method,
		Confidence:  confidence,
		CheckInTime: at,
		Status:      models.StatusVerified,
	}
}

func findType(anomalies []models.Anomaly, typ models.AnomalyType) *models.Anomaly {
	for i := range anomalies {
		if anomalies[i].Type == typ {
			return &anomalies[i]
		}
	}
	return nil
}

func TestDetectClean(t *testing.T) {
	d := newDetector()
	ev := event(uuid.New(), uuid.New(), models.MethodFacial, 0.95, time.Now())

	if got := d.Detect(ev, nil); len(got) != 0 {
		t.Fatalf("expected no anomalies, got %+v", got)
	}
}

func TestDetectRapidSuccession(t *testing.T) {
	d := newDetector()
	subject := uuid.New()
	session := uuid.New()
	now := time.Now()

	prev := event(subject, session, models.MethodManual, 0, now.Add(-10*time.Second))
	ev := event(subject, session, models.MethodManual, 0, now)

	got := d.Detect(ev, []models.CheckInEvent{prev})

	rapid := findType(got, models.AnomalyRapidSuccession)
	if rapid == nil {
		t.Fatalf("expected RAPID_SUCCESSION, got %+v", got)
	}
	if rapid.Severity != models.SeverityHigh {
		t.Fatalf("expected HIGH severity, got %s", rapid.Severity)
	}
	if findType(got, models.AnomalySpoofingAttempt) != nil {
		t.Fatalf("same-session rapid check-in is not a spoofing attempt")
	}
}

func TestDetectRapidSuccessionWindowEdge(t *testing.T) {
	d := newDetector()
	subject := uuid.New()
	session := uuid.New()
	now := time.Now()

	// Just outside the window: no rapid-succession finding.
	prev := event(subject, session, models.MethodManual, 0, now.Add(-31*time.Second))
	got := d.Detect(event(subject, session, models.MethodManual, 0, now), []models.CheckInEvent{prev})
	if findType(got, models.AnomalyRapidSuccession) != nil {
		t.Fatalf("31s apart should not fire rapid succession")
	}

	// Exactly at the window boundary: fires.
	prev = event(subject, session, models.MethodManual, 0, now.Add(-30*time.Second))
	got = d.Detect(event(subject, session, models.MethodManual, 0, now), []models.CheckInEvent{prev})
	if findType(got, models.AnomalyRapidSuccession) == nil {
		t.Fatalf("30s apart should fire rapid succession")
	}
}

func TestDetectCrossSessionSpoofing(t *testing.T) {
	d := newDetector()
	subject := uuid.New()
	now := time.Now()

	prev := event(subject, uuid.New(), models.MethodFacial, 0.9, now.Add(-5*time.Second))
	ev := event(subject, uuid.New(), models.MethodFacial, 0.9, now)

	got := d.Detect(ev, []models.CheckInEvent{prev})

	spoof := findType(got, models.AnomalySpoofingAttempt)
	if spoof == nil {
		t.Fatalf("expected SPOOFING_ATTEMPT for cross-session rapid check-ins, got %+v", got)
	}
	if spoof.Severity != models.SeverityCritical {
		t.Fatalf("expected CRITICAL severity, got %s", spoof.Severity)
	}
	if MaxSeverity(got) != models.SeverityCritical {
		t.Fatalf("expected CRITICAL max severity, got %s", MaxSeverity(got))
	}
}

func TestDetectLowConfidence(t *testing.T) {
	d := newDetector()
	subject := uuid.New()
	session := uuid.New()
	now := time.Now()

	cases := map[float64]models.Severity{
		0.65: models.SeverityMedium,
		0.4:  models.SeverityHigh,
	}
	for confidence, expected := range cases {
		got := d.Detect(event(subject, session, models.MethodFacial, confidence, now), nil)
		low := findType(got, models.AnomalyLowConfidence)
		if low == nil {
			t.Fatalf("confidence %v: expected LOW_CONFIDENCE, got %+v", confidence, got)
		}
		if low.Severity != expected {
			t.Fatalf("confidence %v: expected %s, got %s", confidence, expected, low.Severity)
		}
	}

	// Confidence only means something for facial check-ins.
	got := d.Detect(event(subject, session, models.MethodManual, 0, now), nil)
	if findType(got, models.AnomalyLowConfidence) != nil {
		t.Fatalf("manual check-in should not fire low confidence")
	}
}

func TestDetectMultipleCheckIns(t *testing.T) {
	d := newDetector()
	subject := uuid.New()
	session := uuid.New()
	now := time.Now()

	// A prior same-session check-in hours ago: multiple check-ins, not rapid.
	prev := event(subject, session, models.MethodManual, 0, now.Add(-2*time.Hour))
	got := d.Detect(event(subject, session, models.MethodManual, 0, now), []models.CheckInEvent{prev})

	multi := findType(got, models.AnomalyMultipleCheckIns)
	if multi == nil {
		t.Fatalf("expected MULTIPLE_CHECKINS, got %+v", got)
	}
	if multi.Severity != models.SeverityMedium {
		t.Fatalf("expected MEDIUM severity, got %s", multi.Severity)
	}
	if findType(got, models.AnomalyRapidSuccession) != nil {
		t.Fatalf("2h apart should not fire rapid succession")
	}
}

func TestDetectIgnoresOtherSubjects(t *testing.T) {
	d := newDetector()
	session := uuid.New()
	now := time.Now()

	prev := event(uuid.New(), session, models.MethodManual, 0, now.Add(-5*time.Second))
	got := d.Detect(event(uuid.New(), session, models.MethodManual, 0, now), []models.CheckInEvent{prev})
	if len(got) != 0 {
		t.Fatalf("another subject's history should not fire, got %+v", got)
	}
}

func TestDetectSkipsSelf(t *testing.T) {
	d := newDetector()
	ev := event(uuid.New(), uuid.New(), models.MethodManual, 0, time.Now())

	// The event under inspection may already be in the loaded history.
	got := d.Detect(ev, []models.CheckInEvent{ev})
	if len(got) != 0 {
		t.Fatalf("event must not trigger against itself, got %+v", got)
	}
}

func TestMaxSeverity(t *testing.T) {
	if got := MaxSeverity(nil); got != "" {
		t.Fatalf("empty slice should yield empty severity, got %q", got)
	}

	anomalies := []models.Anomaly{
		{Severity: models.SeverityMedium},
		{Severity: models.SeverityCritical},
		{Severity: models.SeverityLow},
	}
	if got := MaxSeverity(anomalies); got != models.SeverityCritical {
		t.Fatalf("expected CRITICAL, got %s", got)
	}
}
