package biometric

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
	ErrConsentMissing        = errors.New("subject has no valid facial recognition consent")
	ErrEnrollmentCapExceeded = errors.New("subject already holds the maximum number of templates")
	ErrSubjectNotFound       = errors.New("subject not found")
	ErrTemplateNotFound      = errors.New("template not found")
)

// Repository is the persistence surface the descriptor store needs. The
// implementations keep the per-subject invariants (template cap, at most one
// primary, first template primary) inside one transactional boundary.
type Repository interface {
	GetSubject(ctx context.Context, id uuid.UUID) (*models.Subject, error)
	// InsertTemplate persists t. It returns ErrEnrollmentCapExceeded when the
	// subject already holds maxPerSubject templates, and marks t primary when
	// it is the subject's first template.
	InsertTemplate(ctx context.Context, t *models.FaceTemplate, maxPerSubject int) error
	// SetPrimaryTemplate atomically clears is_primary on the owning subject's
	// other templates before setting it on the target.
	SetPrimaryTemplate(ctx context.Context, templateID uuid.UUID) error
	// DeleteTemplate removes a template. Deleting an absent id is a no-op
	// success returning (nil, nil).
	DeleteTemplate(ctx context.Context, templateID uuid.UUID) (*models.FaceTemplate, error)
	// ListTemplatesBySubject returns templates ordered primary-first then
	// newest-first.
	ListTemplatesBySubject(ctx context.Context, subjectID uuid.UUID) ([]models.FaceTemplate, error)
	// SearchCandidates returns the templates nearest to the probe, up to
	// limit. It is a prefilter only; the matcher applies the canonical
	// distance policy over the returned pool.
	SearchCandidates(ctx context.Context, probe []float64, limit int) ([]models.FaceTemplate, error)
}

// ConsentChecker gates enrollment and matching. Any error from the underlying
// ledger is treated as "no consent".
type ConsentChecker interface {
	IsValid(ctx context.Context, subjectID uuid.UUID, purpose models.ConsentPurpose) (bool, error)
}

// Store owns enrolled biometric templates and runs consent-gated
// identification over them.
type Store struct {
	repo            Repository
	consent         ConsentChecker
	maxPerSubject   int
	acceptThreshold float64
	candidateLimit  int
}

func NewStore(repo Repository, consent ConsentChecker, maxPerSubject int, acceptThreshold float64, candidateLimit int) *Store {
	return &Store{
		repo:            repo,
		consent:         consent,
		maxPerSubject:   maxPerSubject,
		acceptThreshold: acceptThreshold,
		candidateLimit:  candidateLimit,
	}
}

// Enroll stores a new template for the subject. The first template becomes
// primary; later ones stay non-primary until promoted. sourceKey optionally
// references the retained source image in the artifact store.
func (s *Store) Enroll(ctx context.Context, subjectID uuid.UUID, vector []float64, quality float64, label, sourceKey string) (*models.FaceTemplate, error) {
	if err := ValidateVector(vector); err != nil {
		return nil, err
	}

	ok, err := s.consent.IsValid(ctx, subjectID, models.PurposeFacialRecognition)
	if err != nil || !ok {
		// Fail closed on ledger errors.
		return nil, ErrConsentMissing
	}

	subject, err := s.repo.GetSubject(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("get subject: %w", err)
	}
	if subject == nil {
		return nil, ErrSubjectNotFound
	}

	now := time.Now().UTC()
	tpl := &models.FaceTemplate{
		ID:        uuid.New(),
		SubjectID: subjectID,
		Vector:    vector,
		Quality:   quality,
		Label:     label,
		SourceKey: sourceKey,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.InsertTemplate(ctx, tpl, s.maxPerSubject); err != nil {
		return nil, err
	}

	observability.TemplatesEnrolled.Inc()
	return tpl, nil
}

// SetPrimary promotes the template to primary, demoting any sibling.
func (s *Store) SetPrimary(ctx context.Context, templateID uuid.UUID) error {
	return s.repo.SetPrimaryTemplate(ctx, templateID)
}

// Remove hard-deletes a template. Removing an absent id is a no-op success so
// withdrawal cascades stay simple. The removed template is returned when one
// existed, so callers can clean up retained artifacts.
func (s *Store) Remove(ctx context.Context, templateID uuid.UUID) (*models.FaceTemplate, error) {
	return s.repo.DeleteTemplate(ctx, templateID)
}

// ListBySubject returns the subject's templates, primary first then newest
// first.
func (s *Store) ListBySubject(ctx context.Context, subjectID uuid.UUID) ([]models.FaceTemplate, error) {
	return s.repo.ListTemplatesBySubject(ctx, subjectID)
}

// Identify matches a probe descriptor against all templates belonging to
// subjects with valid facial recognition consent. The vector index prefilters
// the pool; the canonical matcher decides.
func (s *Store) Identify(ctx context.Context, probe []float64) (MatchResult, error) {
	if err := ValidateVector(probe); err != nil {
		return MatchResult{}, err
	}

	start := time.Now()

	candidates, err := s.repo.SearchCandidates(ctx, probe, s.candidateLimit)
	if err != nil {
		return MatchResult{}, fmt.Errorf("search candidates: %w", err)
	}

	// Drop candidates whose owners lack valid consent. A ledger error
	// excludes the subject rather than letting the match proceed.
	consentBySubject := make(map[uuid.UUID]bool)
	eligible := candidates[:0]
	for _, cand := range candidates {
		allowed, seen := consentBySubject[cand.SubjectID]
		if !seen {
			ok, err := s.consent.IsValid(ctx, cand.SubjectID, models.PurposeFacialRecognition)
			allowed = err == nil && ok
			consentBySubject[cand.SubjectID] = allowed
		}
		if allowed {
			eligible = append(eligible, cand)
		}
	}

	result, err := Match(probe, eligible, s.acceptThreshold)
	if err != nil {
		return MatchResult{}, err
	}

	observability.MatchDuration.Observe(time.Since(start).Seconds())
	if result.Matched {
		observability.Matches.WithLabelValues("matched").Inc()
	} else {
		observability.Matches.WithLabelValues("no_match").Inc()
	}
	return result, nil
}
