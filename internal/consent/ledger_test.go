package consent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/your-org/attend/internal/biometric"
	"github.com/your-org/attend/internal/consent"
	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/storage"
)

func testVec(first float64) []float64 {
	v := make([]float64, models.DescriptorDim)
	v[0] = first
	return v
}

func newLedger(t *testing.T) (*storage.MemoryStore, *consent.Ledger) {
	t.Helper()
	mem := storage.NewMemoryStore()
	return mem, consent.NewLedger(mem, "1.0")
}

func seedSubject(t *testing.T, mem *storage.MemoryStore) uuid.UUID {
	t.Helper()
	subject := &models.Subject{ID: uuid.New(), DisplayName: "Consenting Subject"}
	if err := mem.CreateSubject(context.Background(), subject); err != nil {
		t.Fatalf("create subject: %v", err)
	}
	return subject.ID
}

func TestGrantAndIsValid(t *testing.T) {
	ctx := context.Background()
	mem, ledger := newLedger(t)
	subjectID := seedSubject(t, mem)

	valid, err := ledger.IsValid(ctx, subjectID, models.PurposeFacialRecognition)
	if err != nil {
		t.Fatalf("is valid: %v", err)
	}
	if valid {
		t.Fatalf("no grant recorded yet, should be invalid")
	}

	rec, err := ledger.Grant(ctx, subjectID, models.PurposeFacialRecognition)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !rec.Granted || rec.Version != "1.0" {
		t.Fatalf("unexpected grant record: %+v", rec)
	}

	valid, err = ledger.IsValid(ctx, subjectID, models.PurposeFacialRecognition)
	if err != nil {
		t.Fatalf("is valid: %v", err)
	}
	if !valid {
		t.Fatalf("grant should be valid")
	}

	// Validity is per purpose.
	valid, err = ledger.IsValid(ctx, subjectID, models.PurposeDataProcessing)
	if err != nil {
		t.Fatalf("is valid: %v", err)
	}
	if valid {
		t.Fatalf("a facial recognition grant must not cover data processing")
	}
}

func TestGrantValidation(t *testing.T) {
	ctx := context.Background()
	mem, ledger := newLedger(t)
	subjectID := seedSubject(t, mem)

	if _, err := ledger.Grant(ctx, subjectID, "BROWSING_HISTORY"); !errors.Is(err, consent.ErrInvalidPurpose) {
		t.Fatalf("expected ErrInvalidPurpose, got %v", err)
	}
	if _, err := ledger.Grant(ctx, uuid.New(), models.PurposeFacialRecognition); !errors.Is(err, consent.ErrSubjectNotFound) {
		t.Fatalf("expected ErrSubjectNotFound, got %v", err)
	}
}

func TestWithdrawRequiresActiveGrant(t *testing.T) {
	ctx := context.Background()
	mem, ledger := newLedger(t)
	subjectID := seedSubject(t, mem)

	if _, _, err := ledger.Withdraw(ctx, subjectID, models.PurposeFacialRecognition); !errors.Is(err, consent.ErrNoActiveConsent) {
		t.Fatalf("expected ErrNoActiveConsent, got %v", err)
	}

	if _, err := ledger.Grant(ctx, subjectID, models.PurposeFacialRecognition); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, _, err := ledger.Withdraw(ctx, subjectID, models.PurposeFacialRecognition); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	// Withdrawing twice: the latest record is already a withdrawal.
	if _, _, err := ledger.Withdraw(ctx, subjectID, models.PurposeFacialRecognition); !errors.Is(err, consent.ErrNoActiveConsent) {
		t.Fatalf("expected ErrNoActiveConsent on repeat withdrawal, got %v", err)
	}
}

func TestWithdrawFacialRecognitionCascades(t *testing.T) {
	ctx := context.Background()
	mem, ledger := newLedger(t)
	subjectID := seedSubject(t, mem)

	if _, err := ledger.Grant(ctx, subjectID, models.PurposeFacialRecognition); err != nil {
		t.Fatalf("grant: %v", err)
	}

	store := biometric.NewStore(mem, ledger, 10, 0.6, 50)
	for i := 0; i < 3; i++ {
		if _, err := store.Enroll(ctx, subjectID, testVec(float64(i)*0.01), 0.9, "", ""); err != nil {
			t.Fatalf("enroll %d: %v", i, err)
		}
	}

	rec, deleted, err := ledger.Withdraw(ctx, subjectID, models.PurposeFacialRecognition)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if rec.Granted || rec.WithdrawnAt == nil {
		t.Fatalf("withdrawal record malformed: %+v", rec)
	}
	if len(deleted) != 3 {
		t.Fatalf("expected 3 templates deleted, got %d", len(deleted))
	}

	remaining, err := store.ListBySubject(ctx, subjectID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected no templates to survive withdrawal, got %d", len(remaining))
	}

	valid, err := ledger.IsValid(ctx, subjectID, models.PurposeFacialRecognition)
	if err != nil {
		t.Fatalf("is valid: %v", err)
	}
	if valid {
		t.Fatalf("withdrawn consent should be invalid")
	}
}

func TestWithdrawOtherPurposeDoesNotCascade(t *testing.T) {
	ctx := context.Background()
	mem, ledger := newLedger(t)
	subjectID := seedSubject(t, mem)

	if _, err := ledger.Grant(ctx, subjectID, models.PurposeFacialRecognition); err != nil {
		t.Fatalf("grant facial: %v", err)
	}
	if _, err := ledger.Grant(ctx, subjectID, models.PurposePresenceTracking); err != nil {
		t.Fatalf("grant presence: %v", err)
	}

	store := biometric.NewStore(mem, ledger, 10, 0.6, 50)
	if _, err := store.Enroll(ctx, subjectID, testVec(0.1), 0.9, "", ""); err != nil {
		t.Fatalf("enroll: %v", err)
	}

	_, deleted, err := ledger.Withdraw(ctx, subjectID, models.PurposePresenceTracking)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if len(deleted) != 0 {
		t.Fatalf("presence tracking withdrawal must not delete templates, got %d", len(deleted))
	}

	remaining, err := store.ListBySubject(ctx, subjectID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("template should survive, got %d", len(remaining))
	}
}

func TestPolicyVersionMismatch(t *testing.T) {
	ctx := context.Background()
	mem, ledger := newLedger(t)
	subjectID := seedSubject(t, mem)

	if _, err := ledger.Grant(ctx, subjectID, models.PurposeFacialRecognition); err != nil {
		t.Fatalf("grant: %v", err)
	}

	// The policy moves on; old grants stop being valid until re-granted.
	newer := consent.NewLedger(mem, "2.0")
	valid, err := newer.IsValid(ctx, subjectID, models.PurposeFacialRecognition)
	if err != nil {
		t.Fatalf("is valid: %v", err)
	}
	if valid {
		t.Fatalf("grant against policy 1.0 must not satisfy policy 2.0")
	}

	if _, err := newer.Grant(ctx, subjectID, models.PurposeFacialRecognition); err != nil {
		t.Fatalf("re-grant: %v", err)
	}
	valid, err = newer.IsValid(ctx, subjectID, models.PurposeFacialRecognition)
	if err != nil {
		t.Fatalf("is valid: %v", err)
	}
	if !valid {
		t.Fatalf("re-grant under 2.0 should be valid")
	}
}

func TestListHistoryPreserved(t *testing.T) {
	ctx := context.Background()
	mem, ledger := newLedger(t)
	subjectID := seedSubject(t, mem)

	if _, err := ledger.Grant(ctx, subjectID, models.PurposeFacialRecognition); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, _, err := ledger.Withdraw(ctx, subjectID, models.PurposeFacialRecognition); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if _, err := ledger.Grant(ctx, subjectID, models.PurposeFacialRecognition); err != nil {
		t.Fatalf("re-grant: %v", err)
	}

	history, err := ledger.List(ctx, subjectID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	// Grant, withdrawal, re-grant: the ledger keeps all three.
	if len(history) != 3 {
		t.Fatalf("expected 3 ledger records, got %d", len(history))
	}
}
