package biometric

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/your-org/attend/internal/models"
)

// ErrVectorShape is returned when a descriptor does not have exactly
// models.DescriptorDim components.
var ErrVectorShape = errors.New("descriptor vector has invalid shape")

// MatchResult is the outcome of matching a probe descriptor against a
// candidate pool. A NoMatch result is data, not an error.
type MatchResult struct {
	Matched    bool      `json:"matched"`
	SubjectID  uuid.UUID `json:"subject_id,omitempty"`
	TemplateID uuid.UUID `json:"template_id,omitempty"`
	Confidence float64   `json:"confidence"`
}

// ValidateVector checks the descriptor shape. Vectors of any other length are
// rejected, never truncated or padded.
func ValidateVector(v []float64) error {
	if len(v) != models.DescriptorDim {
		return fmt.Errorf("%w: got %d components, want %d", ErrVectorShape, len(v), models.DescriptorDim)
	}
	return nil
}

// EuclideanDistance computes the distance between two descriptors with a
// single left-to-right accumulation order, so results are identical across
// platforms.
func EuclideanDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Confidence converts a distance to a match confidence in [0, 1]. This is the
// one canonical mapping; callers must not invert or rescale it.
func Confidence(distance float64) float64 {
	return math.Max(0, 1-distance)
}

// Match finds the nearest candidate to the probe and applies the acceptance
// threshold. Ties on distance are broken by lowest template ID so matching is
// reproducible. Match is pure: it never mutates its inputs or any state.
//
// Candidates whose vectors are malformed are skipped; a malformed probe is an
// error.
func Match(probe []float64, candidates []models.FaceTemplate, acceptThreshold float64) (MatchResult, error) {
	if err := ValidateVector(probe); err != nil {
		return MatchResult{}, err
	}

	found := false
	var bestDist float64
	var best models.FaceTemplate

	for _, cand := range candidates {
		if len(cand.Vector) != models.DescriptorDim {
			continue
		}
		dist := EuclideanDistance(probe, cand.Vector)
		if !found || dist < bestDist ||
			(dist == bestDist && cand.ID.String() < best.ID.String()) {
			found = true
			bestDist = dist
			best = cand
		}
	}

	if !found {
		return MatchResult{}, nil
	}

	conf := Confidence(bestDist)
	if conf < acceptThreshold {
		return MatchResult{Confidence: conf}, nil
	}

	return MatchResult{
		Matched:    true,
		SubjectID:  best.SubjectID,
		TemplateID: best.ID,
		Confidence: conf,
	}, nil
}
