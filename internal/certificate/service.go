package certificate

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/observability"
)

var (
	ErrCheckInNotFound          = errors.New("check-in not found")
	ErrCheckInNotVerified       = errors.New("check-in is not verified")
	ErrCertificateAlreadyExists = errors.New("certificate already exists for this subject and session")
	ErrCertificateNotFound      = errors.New("certificate not found")
)

// codeAlphabet excludes visually confusable characters (0/O, 1/I/L) so
// verification codes survive verbal and handwritten sharing.
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

type Repository interface {
	GetCheckIn(ctx context.Context, id uuid.UUID) (*models.CheckInEvent, error)
	GetSubject(ctx context.Context, id uuid.UUID) (*models.Subject, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.AttendanceSession, error)
	// InsertCertificate enforces at most one certificate per
	// (subject, session); a duplicate gets ErrCertificateAlreadyExists.
	InsertCertificate(ctx context.Context, c *models.Certificate) error
	GetCertificateBySubjectSession(ctx context.Context, subjectID, sessionID uuid.UUID) (*models.Certificate, error)
	// FindCertificate looks up by certificate number or verification code,
	// returning nil when neither matches.
	FindCertificate(ctx context.Context, numberOrCode string) (*models.Certificate, error)
}

// VerificationResult is the public, minimal-disclosure view of a certificate.
// Its shape is constant whether the lookup key was malformed or simply
// unknown.
type VerificationResult struct {
	Valid             bool       `json:"valid"`
	CertificateNumber string     `json:"certificate_number,omitempty"`
	SubjectName       string     `json:"subject_name,omitempty"`
	SessionName       string     `json:"session_name,omitempty"`
	CheckInTime       *time.Time `json:"check_in_time,omitempty"`
	CheckOutTime      *time.Time `json:"check_out_time,omitempty"`
	DurationMinutes   *int       `json:"duration_minutes,omitempty"`
	IssueDate         *time.Time `json:"issue_date,omitempty"`
}

// ArtifactStore persists issued certificate documents as objects, keyed by
// certificate number.
type ArtifactStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// Service issues and publicly verifies attendance certificates.
type Service struct {
	repo      Repository
	artifacts ArtifactStore
}

// NewService builds the certificate service. artifacts may be nil; the
// service then keeps certificates in the database only.
func NewService(repo Repository, artifacts ArtifactStore) *Service {
	return &Service{repo: repo, artifacts: artifacts}
}

// Issue mints a certificate for a verified check-in. Issuing twice for the
// same (subject, session) returns the existing certificate together with
// ErrCertificateAlreadyExists, so idempotent callers can treat the second
// call as success-with-existing-result.
func (s *Service) Issue(ctx context.Context, checkInID uuid.UUID) (*models.Certificate, error) {
	ev, err := s.repo.GetCheckIn(ctx, checkInID)
	if err != nil {
		return nil, fmt.Errorf("get check-in: %w", err)
	}
	if ev == nil {
		return nil, ErrCheckInNotFound
	}
	if ev.Status != models.StatusVerified {
		return nil, ErrCheckInNotVerified
	}

	now := time.Now().UTC()
	cert := &models.Certificate{
		ID:               uuid.New(),
		Number:           newCertificateNumber(now),
		VerificationCode: randomCode(8),
		SubjectID:        ev.SubjectID,
		SessionID:        ev.SessionID,
		CheckInID:        ev.ID,
		CheckInTime:      ev.CheckInTime,
		CheckOutTime:     ev.CheckOutTime,
		DurationMinutes:  ev.DurationMinutes(),
		IssueDate:        now,
	}

	if err := s.repo.InsertCertificate(ctx, cert); err != nil {
		if errors.Is(err, ErrCertificateAlreadyExists) {
			existing, getErr := s.repo.GetCertificateBySubjectSession(ctx, ev.SubjectID, ev.SessionID)
			if getErr == nil && existing != nil {
				return existing, ErrCertificateAlreadyExists
			}
		}
		return nil, err
	}

	s.storeDocument(ctx, cert)

	observability.CertificatesIssued.Inc()
	return cert, nil
}

// storeDocument writes the issued certificate as a JSON object. The write is
// best-effort: the database row is the source of truth, so a failed upload
// only logs.
func (s *Service) storeDocument(ctx context.Context, cert *models.Certificate) {
	if s.artifacts == nil {
		return
	}
	doc, err := json.Marshal(cert)
	if err != nil {
		slog.Warn("marshal certificate document", "number", cert.Number, "error", err)
		return
	}
	key := "certificates/" + cert.Number + ".json"
	if err := s.artifacts.PutObject(ctx, key, doc, "application/json"); err != nil {
		slog.Warn("store certificate document", "number", cert.Number, "key", key, "error", err)
	}
}

// GetByNumber returns a certificate by its number.
func (s *Service) GetByNumber(ctx context.Context, number string) (*models.Certificate, error) {
	cert, err := s.repo.FindCertificate(ctx, number)
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return nil, ErrCertificateNotFound
	}
	return cert, nil
}

// Verify is the public, unauthenticated lookup by certificate number or
// verification code. An unknown key yields an invalid result, not an error;
// nothing about the raw descriptor or match confidence is ever disclosed.
func (s *Service) Verify(ctx context.Context, numberOrCode string) (VerificationResult, error) {
	cert, err := s.repo.FindCertificate(ctx, numberOrCode)
	if err != nil {
		observability.CertificateVerifications.WithLabelValues("error").Inc()
		return VerificationResult{}, fmt.Errorf("find certificate: %w", err)
	}
	if cert == nil {
		observability.CertificateVerifications.WithLabelValues("not_found").Inc()
		return VerificationResult{}, nil
	}

	subject, err := s.repo.GetSubject(ctx, cert.SubjectID)
	if err != nil {
		return VerificationResult{}, fmt.Errorf("get subject: %w", err)
	}
	session, err := s.repo.GetSession(ctx, cert.SessionID)
	if err != nil {
		return VerificationResult{}, fmt.Errorf("get session: %w", err)
	}

	result := VerificationResult{
		Valid:             true,
		CertificateNumber: cert.Number,
		CheckInTime:       &cert.CheckInTime,
		CheckOutTime:      cert.CheckOutTime,
		DurationMinutes:   cert.DurationMinutes,
		IssueDate:         &cert.IssueDate,
	}
	if subject != nil {
		result.SubjectName = subject.DisplayName
	}
	if session != nil {
		result.SessionName = session.Name
	}

	observability.CertificateVerifications.WithLabelValues("valid").Inc()
	return result, nil
}

// newCertificateNumber combines a timestamp component with a random component.
// A plain counter would leak issuance volume and be guessable.
func newCertificateNumber(now time.Time) string {
	return fmt.Sprintf("ATD-%s-%s", now.Format("20060102-150405"), randomCode(8))
}

// randomCode draws n characters from the unambiguous alphabet using
// crypto/rand.
func randomCode(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process has no entropy source at all.
		panic(fmt.Sprintf("read random bytes: %v", err))
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(out)
}
