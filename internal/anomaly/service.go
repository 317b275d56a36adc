package anomaly

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/your-org/attend/internal/models"
)

var (
	ErrAnomalyNotFound = errors.New("anomaly not found")
	ErrAlreadyResolved = errors.New("anomaly already resolved")
)

// Filter narrows anomaly listings.
type Filter struct {
	SubjectID *uuid.UUID
	SessionID *uuid.UUID
	Resolved  *bool
}

type Repository interface {
	InsertAnomaly(ctx context.Context, a *models.Anomaly) error
	GetAnomaly(ctx context.Context, id uuid.UUID) (*models.Anomaly, error)
	// ResolveAnomaly marks the anomaly resolved. Resolving twice returns
	// ErrAlreadyResolved; the check and the write share one transaction.
	ResolveAnomaly(ctx context.Context, id, resolverID uuid.UUID, resolution string) (*models.Anomaly, error)
	ListAnomalies(ctx context.Context, filter Filter) ([]models.Anomaly, error)
}

// Service persists detector output and handles reviewer resolution, the only
// mutation anomalies permit.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Record persists a batch of detected anomalies.
func (s *Service) Record(ctx context.Context, anomalies []models.Anomaly) error {
	for i := range anomalies {
		if err := s.repo.InsertAnomaly(ctx, &anomalies[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Anomaly, error) {
	a, err := s.repo.GetAnomaly(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrAnomalyNotFound
	}
	return a, nil
}

// Resolve marks an anomaly reviewed.
func (s *Service) Resolve(ctx context.Context, id, resolverID uuid.UUID, resolution string) (*models.Anomaly, error) {
	return s.repo.ResolveAnomaly(ctx, id, resolverID, resolution)
}

func (s *Service) List(ctx context.Context, filter Filter) ([]models.Anomaly, error) {
	return s.repo.ListAnomalies(ctx, filter)
}
