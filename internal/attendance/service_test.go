package attendance_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attend/internal/anomaly"
	"github.com/your-org/attend/internal/attendance"
	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/storage"
)

func newService(t *testing.T) (*storage.MemoryStore, *anomaly.Service, *attendance.Service) {
	t.Helper()
	mem := storage.NewMemoryStore()
	detector := anomaly.NewDetector(30*time.Second, 0.7, 0.5)
	anomalies := anomaly.NewService(mem)
	svc := attendance.NewService(mem, detector, anomalies, 0.6, 24*time.Hour)
	return mem, anomalies, svc
}

func seedSubject(t *testing.T, mem *storage.MemoryStore) uuid.UUID {
	t.Helper()
	subject := &models.Subject{ID: uuid.New(), DisplayName: "Attendee"}
	if err := mem.CreateSubject(context.Background(), subject); err != nil {
		t.Fatalf("create subject: %v", err)
	}
	return subject.ID
}

func seedSession(t *testing.T, svc *attendance.Service) uuid.UUID {
	t.Helper()
	session, err := svc.CreateSession(context.Background(), "Morning Lecture", "lecture", time.Now().Add(-time.Hour), nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session.ID
}

func TestCheckInManualVerified(t *testing.T) {
	ctx := context.Background()
	mem, _, svc := newService(t)
	subjectID := seedSubject(t, mem)
	sessionID := seedSession(t, svc)

	ev, detected, err := svc.CheckIn(ctx, sessionID, subjectID, models.MethodManual, 0.99)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if ev.Status != models.StatusVerified {
		t.Fatalf("expected VERIFIED, got %s", ev.Status)
	}
	if ev.Confidence != 0 {
		t.Fatalf("non-facial check-in should carry no confidence, got %v", ev.Confidence)
	}
	if len(detected) != 0 {
		t.Fatalf("clean check-in should detect nothing, got %+v", detected)
	}
	if !ev.Open() {
		t.Fatalf("new check-in should be open")
	}
}

func TestCheckInFacialLowConfidencePending(t *testing.T) {
	ctx := context.Background()
	mem, _, svc := newService(t)
	subjectID := seedSubject(t, mem)
	sessionID := seedSession(t, svc)

	ev, detected, err := svc.CheckIn(ctx, sessionID, subjectID, models.MethodFacial, 0.55)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if ev.Status != models.StatusPending {
		t.Fatalf("confidence below threshold should be PENDING, got %s", ev.Status)
	}

	found := false
	for _, a := range detected {
		if a.Type == models.AnomalyLowConfidence {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a LOW_CONFIDENCE anomaly, got %+v", detected)
	}
}

func TestCheckInInvalidMethod(t *testing.T) {
	mem, _, svc := newService(t)
	subjectID := seedSubject(t, mem)
	sessionID := seedSession(t, svc)

	_, _, err := svc.CheckIn(context.Background(), sessionID, subjectID, "QR", 0)
	if !errors.Is(err, attendance.ErrInvalidMethod) {
		t.Fatalf("expected ErrInvalidMethod, got %v", err)
	}
}

func TestCheckInUnknownSessionAndSubject(t *testing.T) {
	ctx := context.Background()
	mem, _, svc := newService(t)
	subjectID := seedSubject(t, mem)
	sessionID := seedSession(t, svc)

	if _, _, err := svc.CheckIn(ctx, uuid.New(), subjectID, models.MethodManual, 0); !errors.Is(err, attendance.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, _, err := svc.CheckIn(ctx, sessionID, uuid.New(), models.MethodManual, 0); !errors.Is(err, attendance.ErrSubjectNotFound) {
		t.Fatalf("expected ErrSubjectNotFound, got %v", err)
	}
}

func TestDuplicateCheckInRejected(t *testing.T) {
	ctx := context.Background()
	mem, _, svc := newService(t)
	subjectID := seedSubject(t, mem)
	sessionID := seedSession(t, svc)

	if _, _, err := svc.CheckIn(ctx, sessionID, subjectID, models.MethodManual, 0); err != nil {
		t.Fatalf("first check-in: %v", err)
	}
	_, _, err := svc.CheckIn(ctx, sessionID, subjectID, models.MethodManual, 0)
	if !errors.Is(err, attendance.ErrAlreadyCheckedIn) {
		t.Fatalf("expected ErrAlreadyCheckedIn, got %v", err)
	}
}

func TestConcurrentCheckInsOneWinner(t *testing.T) {
	ctx := context.Background()
	mem, _, svc := newService(t)
	subjectID := seedSubject(t, mem)
	sessionID := seedSession(t, svc)

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.CheckIn(ctx, sessionID, subjectID, models.MethodManual, 0)
		}(i)
	}
	wg.Wait()

	wins, losses := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, attendance.ErrAlreadyCheckedIn):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || losses != racers-1 {
		t.Fatalf("expected exactly one winner, got %d wins / %d losses", wins, losses)
	}
}

func TestCheckOut(t *testing.T) {
	ctx := context.Background()
	mem, _, svc := newService(t)
	subjectID := seedSubject(t, mem)
	sessionID := seedSession(t, svc)

	ev, _, err := svc.CheckIn(ctx, sessionID, subjectID, models.MethodManual, 0)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}

	closed, err := svc.CheckOut(ctx, ev.ID)
	if err != nil {
		t.Fatalf("check out: %v", err)
	}
	if closed.CheckOutTime == nil {
		t.Fatalf("check-out time not stamped")
	}
	if closed.DurationMinutes() == nil {
		t.Fatalf("closed check-in should have a duration")
	}

	if _, err := svc.CheckOut(ctx, ev.ID); !errors.Is(err, attendance.ErrAlreadyCheckedOut) {
		t.Fatalf("expected ErrAlreadyCheckedOut, got %v", err)
	}
	if _, err := svc.CheckOut(ctx, uuid.New()); !errors.Is(err, attendance.ErrNotCheckedIn) {
		t.Fatalf("expected ErrNotCheckedIn, got %v", err)
	}
}

func TestReentryAfterCheckOut(t *testing.T) {
	ctx := context.Background()
	mem, _, svc := newService(t)
	subjectID := seedSubject(t, mem)
	sessionID := seedSession(t, svc)

	first, _, err := svc.CheckIn(ctx, sessionID, subjectID, models.MethodManual, 0)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if _, err := svc.CheckOut(ctx, first.ID); err != nil {
		t.Fatalf("check out: %v", err)
	}

	// Re-entry is allowed once the prior check-in is closed; the rapid
	// re-entry itself is flagged, not rejected.
	second, detected, err := svc.CheckIn(ctx, sessionID, subjectID, models.MethodManual, 0)
	if err != nil {
		t.Fatalf("re-entry: %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("re-entry should be a new event")
	}

	rapid := false
	for _, a := range detected {
		if a.Type == models.AnomalyRapidSuccession {
			rapid = true
		}
	}
	if !rapid {
		t.Fatalf("instant re-entry should fire RAPID_SUCCESSION, got %+v", detected)
	}
}

func TestCrossSessionRapidCheckInSuspicious(t *testing.T) {
	ctx := context.Background()
	mem, anomalies, svc := newService(t)
	subjectID := seedSubject(t, mem)
	sessionA := seedSession(t, svc)
	sessionB := seedSession(t, svc)

	if _, _, err := svc.CheckIn(ctx, sessionA, subjectID, models.MethodManual, 0); err != nil {
		t.Fatalf("check in A: %v", err)
	}

	ev, detected, err := svc.CheckIn(ctx, sessionB, subjectID, models.MethodManual, 0)
	if err != nil {
		t.Fatalf("check in B: %v", err)
	}
	if ev.Status != models.StatusSuspicious {
		t.Fatalf("critical finding should mark the event SUSPICIOUS, got %s", ev.Status)
	}
	if anomaly.MaxSeverity(detected) != models.SeverityCritical {
		t.Fatalf("expected a CRITICAL finding, got %+v", detected)
	}

	// The adjustment is persisted, not just reported.
	stored, err := svc.GetCheckIn(ctx, ev.ID)
	if err != nil {
		t.Fatalf("get check-in: %v", err)
	}
	if stored.Status != models.StatusSuspicious {
		t.Fatalf("persisted status should be SUSPICIOUS, got %s", stored.Status)
	}

	// And the findings are queryable for review.
	unresolved := false
	list, err := anomalies.List(ctx, anomaly.Filter{SubjectID: &subjectID, Resolved: &unresolved})
	if err != nil {
		t.Fatalf("list anomalies: %v", err)
	}
	if len(list) == 0 {
		t.Fatalf("expected recorded anomalies")
	}
}

// failingHistoryRepo simulates a partial storage outage on the detection path.
type failingHistoryRepo struct {
	*storage.MemoryStore
}

func (r *failingHistoryRepo) ListCheckInsBySubjectSince(ctx context.Context, subjectID uuid.UUID, since time.Time) ([]models.CheckInEvent, error) {
	return nil, errors.New("history unavailable")
}

func TestDetectionFailureDegradesToPending(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()
	detector := anomaly.NewDetector(30*time.Second, 0.7, 0.5)
	svc := attendance.NewService(&failingHistoryRepo{mem}, detector, anomaly.NewService(mem), 0.6, 24*time.Hour)

	subjectID := seedSubject(t, mem)
	sessionID := seedSession(t, svc)

	ev, detected, err := svc.CheckIn(ctx, sessionID, subjectID, models.MethodManual, 0)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if detected != nil {
		t.Fatalf("no findings expected when history is unavailable, got %+v", detected)
	}
	if ev.Status != models.StatusPending {
		t.Fatalf("detection failure must degrade to PENDING, got %s", ev.Status)
	}

	stored, err := svc.GetCheckIn(ctx, ev.ID)
	if err != nil {
		t.Fatalf("get check-in: %v", err)
	}
	if stored.Status != models.StatusPending {
		t.Fatalf("persisted status should be PENDING, got %s", stored.Status)
	}
}

func TestListBySession(t *testing.T) {
	ctx := context.Background()
	mem, _, svc := newService(t)
	sessionID := seedSession(t, svc)

	for i := 0; i < 3; i++ {
		subjectID := seedSubject(t, mem)
		if _, _, err := svc.CheckIn(ctx, sessionID, subjectID, models.MethodManual, 0); err != nil {
			t.Fatalf("check in %d: %v", i, err)
		}
	}

	events, err := svc.ListBySession(ctx, sessionID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
}
