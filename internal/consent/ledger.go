package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/observability"
)

var (
	ErrInvalidPurpose  = errors.New("unrecognized consent purpose")
	ErrNoActiveConsent = errors.New("no active consent to withdraw")
	ErrSubjectNotFound = errors.New("subject not found")
)

// Repository is the persistence surface of the ledger. Records are append
// only; WithdrawConsent must run the withdrawal write and the template cascade
// inside one transaction, so a recorded withdrawal with surviving templates
// can never be observed.
type Repository interface {
	GetSubject(ctx context.Context, id uuid.UUID) (*models.Subject, error)
	AppendConsent(ctx context.Context, rec *models.ConsentRecord) error
	// WithdrawConsent appends rec and stamps withdrawn_at on the prior active
	// grant. When cascadeTemplates is set it also deletes every template of
	// the subject in the same transaction and returns the deleted templates.
	WithdrawConsent(ctx context.Context, rec *models.ConsentRecord, cascadeTemplates bool) ([]models.FaceTemplate, error)
	// LatestConsent returns the most recent record for (subject, purpose), or
	// nil when none exists.
	LatestConsent(ctx context.Context, subjectID uuid.UUID, purpose models.ConsentPurpose) (*models.ConsentRecord, error)
	ListConsents(ctx context.Context, subjectID uuid.UUID) ([]models.ConsentRecord, error)
}

// Ledger records grant and withdrawal of biometric consent per subject and
// purpose, and answers validity checks against the current policy version.
type Ledger struct {
	repo          Repository
	policyVersion string
}

func NewLedger(repo Repository, policyVersion string) *Ledger {
	return &Ledger{repo: repo, policyVersion: policyVersion}
}

// PolicyVersion returns the policy version new grants are recorded against.
func (l *Ledger) PolicyVersion() string { return l.policyVersion }

// Grant appends a granted record for the current policy version.
func (l *Ledger) Grant(ctx context.Context, subjectID uuid.UUID, purpose models.ConsentPurpose) (*models.ConsentRecord, error) {
	if !models.KnownPurpose(purpose) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPurpose, purpose)
	}

	subject, err := l.repo.GetSubject(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("get subject: %w", err)
	}
	if subject == nil {
		return nil, ErrSubjectNotFound
	}

	rec := &models.ConsentRecord{
		ID:        uuid.New(),
		SubjectID: subjectID,
		Purpose:   purpose,
		Granted:   true,
		Version:   l.policyVersion,
		GrantedAt: time.Now().UTC(),
	}
	if err := l.repo.AppendConsent(ctx, rec); err != nil {
		return nil, fmt.Errorf("append consent: %w", err)
	}
	return rec, nil
}

// Withdraw appends a withdrawal record. Withdrawing FACIAL_RECOGNITION also
// deletes all of the subject's templates (right to erasure); the deleted
// templates are returned so the caller can remove retained artifacts.
func (l *Ledger) Withdraw(ctx context.Context, subjectID uuid.UUID, purpose models.ConsentPurpose) (*models.ConsentRecord, []models.FaceTemplate, error) {
	if !models.KnownPurpose(purpose) {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidPurpose, purpose)
	}

	latest, err := l.repo.LatestConsent(ctx, subjectID, purpose)
	if err != nil {
		return nil, nil, fmt.Errorf("latest consent: %w", err)
	}
	if latest == nil || !latest.Granted || latest.WithdrawnAt != nil {
		return nil, nil, ErrNoActiveConsent
	}

	now := time.Now().UTC()
	rec := &models.ConsentRecord{
		ID:          uuid.New(),
		SubjectID:   subjectID,
		Purpose:     purpose,
		Granted:     false,
		Version:     latest.Version,
		GrantedAt:   now,
		WithdrawnAt: &now,
	}

	cascade := purpose == models.PurposeFacialRecognition
	deleted, err := l.repo.WithdrawConsent(ctx, rec, cascade)
	if err != nil {
		return nil, nil, fmt.Errorf("withdraw consent: %w", err)
	}

	observability.ConsentWithdrawals.WithLabelValues(string(purpose)).Inc()
	return rec, deleted, nil
}

// IsValid reports whether the subject currently holds valid consent for the
// purpose. Only the latest record decides; it must be granted, not withdrawn,
// and recorded against the current policy version. Any ledger error fails
// closed.
func (l *Ledger) IsValid(ctx context.Context, subjectID uuid.UUID, purpose models.ConsentPurpose) (bool, error) {
	if !models.KnownPurpose(purpose) {
		return false, fmt.Errorf("%w: %q", ErrInvalidPurpose, purpose)
	}

	latest, err := l.repo.LatestConsent(ctx, subjectID, purpose)
	if err != nil {
		return false, fmt.Errorf("latest consent: %w", err)
	}
	if latest == nil {
		return false, nil
	}
	return latest.Granted && latest.WithdrawnAt == nil && latest.Version == l.policyVersion, nil
}

// List returns the subject's full consent history, newest first.
func (l *Ledger) List(ctx context.Context, subjectID uuid.UUID) ([]models.ConsentRecord, error) {
	return l.repo.ListConsents(ctx, subjectID)
}
