package biometric

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/your-org/attend/internal/models"
)

func vec(first float64) []float64 {
	v := make([]float64, models.DescriptorDim)
	v[0] = first
	return v
}

func tpl(subjectID uuid.UUID, first float64) models.FaceTemplate {
	return models.FaceTemplate{
		ID:        uuid.New(),
		SubjectID: subjectID,
		Vector:    vec(first),
	}
}

func TestValidateVector(t *testing.T) {
	cases := map[int]bool{
		0:                        false,
		64:                       false,
		models.DescriptorDim:     true,
		models.DescriptorDim + 1: false,
	}
	for size, ok := range cases {
		err := ValidateVector(make([]float64, size))
		if ok && err != nil {
			t.Fatalf("size %d: unexpected error %v", size, err)
		}
		if !ok && !errors.Is(err, ErrVectorShape) {
			t.Fatalf("size %d: expected ErrVectorShape, got %v", size, err)
		}
	}
}

func TestEuclideanDistance(t *testing.T) {
	a := vec(0)
	b := vec(0.3)
	if got := EuclideanDistance(a, b); got != 0.3 {
		t.Fatalf("expected distance 0.3, got %v", got)
	}
	if got := EuclideanDistance(a, a); got != 0 {
		t.Fatalf("expected zero distance, got %v", got)
	}
}

func TestConfidence(t *testing.T) {
	cases := map[float64]float64{
		0:   1,
		0.3: 0.7,
		1:   0,
		2.5: 0, // clamped, never negative
	}
	for dist, expected := range cases {
		if got := Confidence(dist); got != expected {
			t.Fatalf("distance %v: expected confidence %v, got %v", dist, expected, got)
		}
	}
}

func TestMatchIdentity(t *testing.T) {
	subject := uuid.New()
	cand := tpl(subject, 0.25)

	result, err := Match(cand.Vector, []models.FaceTemplate{cand}, 0.6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Matched {
		t.Fatalf("expected a match")
	}
	if result.SubjectID != subject || result.TemplateID != cand.ID {
		t.Fatalf("matched wrong template: %+v", result)
	}
	if result.Confidence != 1 {
		t.Fatalf("identical template should score confidence 1, got %v", result.Confidence)
	}
}

func TestMatchRejectsBelowThreshold(t *testing.T) {
	cand := tpl(uuid.New(), 0.5)

	result, err := Match(vec(0), []models.FaceTemplate{cand}, 0.6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Matched {
		t.Fatalf("confidence 0.5 should not pass threshold 0.6")
	}
	if result.Confidence != 0.5 {
		t.Fatalf("expected confidence 0.5, got %v", result.Confidence)
	}
}

func TestMatchPicksNearest(t *testing.T) {
	near := tpl(uuid.New(), 0.1)
	far := tpl(uuid.New(), 0.3)

	result, err := Match(vec(0), []models.FaceTemplate{far, near}, 0.6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Matched || result.TemplateID != near.ID {
		t.Fatalf("expected nearest template %s, got %+v", near.ID, result)
	}
}

func TestMatchTieBreakByTemplateID(t *testing.T) {
	a := tpl(uuid.New(), 0.1)
	b := tpl(uuid.New(), 0.1)
	want := a
	if b.ID.String() < a.ID.String() {
		want = b
	}

	// Run from both orderings; the winner must not depend on input order.
	for _, pool := range [][]models.FaceTemplate{{a, b}, {b, a}} {
		result, err := Match(vec(0), pool, 0.6)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.TemplateID != want.ID {
			t.Fatalf("tie should resolve to %s, got %s", want.ID, result.TemplateID)
		}
	}
}

func TestMatchSkipsMalformedCandidates(t *testing.T) {
	good := tpl(uuid.New(), 0.1)
	bad := models.FaceTemplate{ID: uuid.New(), SubjectID: uuid.New(), Vector: []float64{1, 2, 3}}

	result, err := Match(vec(0), []models.FaceTemplate{bad, good}, 0.6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Matched || result.TemplateID != good.ID {
		t.Fatalf("expected the well-formed template to win, got %+v", result)
	}
}

func TestMatchEmptyPool(t *testing.T) {
	result, err := Match(vec(0), nil, 0.6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Matched || result.Confidence != 0 {
		t.Fatalf("empty pool should yield a zero no-match, got %+v", result)
	}
}

func TestMatchMalformedProbe(t *testing.T) {
	if _, err := Match([]float64{1, 2}, nil, 0.6); !errors.Is(err, ErrVectorShape) {
		t.Fatalf("expected ErrVectorShape, got %v", err)
	}
}
