package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attend/internal/anomaly"
	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/observability"
)

var (
	ErrAlreadyCheckedIn  = errors.New("subject already has an open check-in for this session")
	ErrNotCheckedIn      = errors.New("no open check-in found")
	ErrAlreadyCheckedOut = errors.New("check-in already closed")
	ErrCheckInNotFound   = errors.New("check-in not found")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSubjectNotFound   = errors.New("subject not found")
	ErrInvalidMethod     = errors.New("unrecognized check-in method")
)

type Repository interface {
	CreateSession(ctx context.Context, s *models.AttendanceSession) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.AttendanceSession, error)
	ListSessions(ctx context.Context) ([]models.AttendanceSession, error)
	GetSubject(ctx context.Context, id uuid.UUID) (*models.Subject, error)
	// InsertCheckIn enforces at most one open check-in per (session, subject)
	// inside one transactional boundary; a losing racer gets
	// ErrAlreadyCheckedIn.
	InsertCheckIn(ctx context.Context, ev *models.CheckInEvent) error
	GetCheckIn(ctx context.Context, id uuid.UUID) (*models.CheckInEvent, error)
	// CloseCheckIn stamps check_out_time. It returns ErrCheckInNotFound for an
	// unknown id and ErrAlreadyCheckedOut for a closed one.
	CloseCheckIn(ctx context.Context, id uuid.UUID, at time.Time) (*models.CheckInEvent, error)
	UpdateCheckInStatus(ctx context.Context, id uuid.UUID, status models.VerificationStatus) error
	ListCheckInsBySubjectSince(ctx context.Context, subjectID uuid.UUID, since time.Time) ([]models.CheckInEvent, error)
	ListCheckInsBySession(ctx context.Context, sessionID uuid.UUID) ([]models.CheckInEvent, error)
}

// Service is the check-in state machine: NONE -> CHECKED_IN -> CHECKED_OUT,
// with the verification status carried orthogonally. Every successful
// check-in runs the anomaly detector synchronously before returning.
type Service struct {
	repo            Repository
	detector        *anomaly.Detector
	anomalies       *anomaly.Service
	acceptThreshold float64
	historyWindow   time.Duration
}

func NewService(repo Repository, detector *anomaly.Detector, anomalies *anomaly.Service, acceptThreshold float64, historyWindow time.Duration) *Service {
	return &Service{
		repo:            repo,
		detector:        detector,
		anomalies:       anomalies,
		acceptThreshold: acceptThreshold,
		historyWindow:   historyWindow,
	}
}

// CreateSession records a new attendance session.
func (s *Service) CreateSession(ctx context.Context, name, sessionType string, start time.Time, end *time.Time) (*models.AttendanceSession, error) {
	session := &models.AttendanceSession{
		ID:        uuid.New(),
		Name:      name,
		Type:      sessionType,
		StartTime: start,
		EndTime:   end,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (*models.AttendanceSession, error) {
	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *Service) ListSessions(ctx context.Context) ([]models.AttendanceSession, error) {
	return s.repo.ListSessions(ctx)
}

// CheckIn records a presence event. A second check-in for the same
// (session, subject) while one is still open fails with ErrAlreadyCheckedIn.
// The anomaly detector runs before CheckIn returns: a CRITICAL finding marks
// the event SUSPICIOUS immediately, and any failure along the detection path
// degrades the event to PENDING, never VERIFIED.
func (s *Service) CheckIn(ctx context.Context, sessionID, subjectID uuid.UUID, method models.CheckInMethod, confidence float64) (*models.CheckInEvent, []models.Anomaly, error) {
	if !models.KnownMethod(method) {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, nil, ErrSessionNotFound
	}

	subject, err := s.repo.GetSubject(ctx, subjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("get subject: %w", err)
	}
	if subject == nil {
		return nil, nil, ErrSubjectNotFound
	}

	now := time.Now().UTC()
	status := models.StatusVerified
	if method == models.MethodFacial && confidence < s.acceptThreshold {
		status = models.StatusPending
	}
	if method != models.MethodFacial {
		confidence = 0
	}

	ev := &models.CheckInEvent{
		ID:          uuid.New(),
		SessionID:   sessionID,
		SubjectID:   subjectID,
		Method:      method,
		Confidence:  confidence,
		CheckInTime: now,
		Status:      status,
	}
	if err := s.repo.InsertCheckIn(ctx, ev); err != nil {
		return nil, nil, err
	}

	detected := s.runDetection(ctx, ev)

	observability.CheckIns.WithLabelValues(string(method), string(ev.Status)).Inc()
	return ev, detected, nil
}

// runDetection loads recent history, runs the detector and applies the
// escalation rule. It adjusts ev.Status in place and persists the adjustment.
func (s *Service) runDetection(ctx context.Context, ev *models.CheckInEvent) []models.Anomaly {
	recent, err := s.repo.ListCheckInsBySubjectSince(ctx, ev.SubjectID, ev.CheckInTime.Add(-s.historyWindow))
	if err != nil {
		// Unknown history: the detector must not run against a partial view,
		// and the event cannot be reported as trustworthy.
		slog.Error("load recent check-ins", "check_in", ev.ID, "error", err)
		s.degrade(ctx, ev)
		return nil
	}

	detected := s.detector.Detect(*ev, recent)
	if len(detected) == 0 {
		return nil
	}

	if err := s.anomalies.Record(ctx, detected); err != nil {
		slog.Error("persist anomalies", "check_in", ev.ID, "error", err)
		s.degrade(ctx, ev)
		return detected
	}

	for _, a := range detected {
		observability.Anomalies.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
	}

	if anomaly.MaxSeverity(detected) == models.SeverityCritical {
		if err := s.repo.UpdateCheckInStatus(ctx, ev.ID, models.StatusSuspicious); err != nil {
			slog.Error("mark check-in suspicious", "check_in", ev.ID, "error", err)
			s.degrade(ctx, ev)
			return detected
		}
		ev.Status = models.StatusSuspicious
	}

	return detected
}

// degrade drops a VERIFIED event to PENDING when the detection path could not
// complete.
func (s *Service) degrade(ctx context.Context, ev *models.CheckInEvent) {
	if ev.Status != models.StatusVerified {
		return
	}
	if err := s.repo.UpdateCheckInStatus(ctx, ev.ID, models.StatusPending); err != nil {
		slog.Error("degrade check-in to pending", "check_in", ev.ID, "error", err)
	}
	ev.Status = models.StatusPending
}

// CheckOut closes an open check-in.
func (s *Service) CheckOut(ctx context.Context, checkInID uuid.UUID) (*models.CheckInEvent, error) {
	ev, err := s.repo.CloseCheckIn(ctx, checkInID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, ErrCheckInNotFound) {
			return nil, ErrNotCheckedIn
		}
		return nil, err
	}
	observability.CheckOuts.Inc()
	return ev, nil
}

func (s *Service) GetCheckIn(ctx context.Context, id uuid.UUID) (*models.CheckInEvent, error) {
	ev, err := s.repo.GetCheckIn(ctx, id)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, ErrCheckInNotFound
	}
	return ev, nil
}

func (s *Service) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.CheckInEvent, error) {
	return s.repo.ListCheckInsBySession(ctx, sessionID)
}
