package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/attend/internal/api/handlers"
	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/storage"
	"github.com/your-org/attend/pkg/dto"
)

func newSubjectRouter(db handlers.SubjectStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := handlers.NewSubjectHandler(db, nil, nil, nil)
	r := gin.New()
	r.GET("/subjects", h.List)
	r.GET("/subjects/:id", h.Get)
	return r
}

func seedSubjectWithTemplates(t *testing.T, mem *storage.MemoryStore, templates int) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	subject := &models.Subject{ID: uuid.New(), DisplayName: "Grace Hopper", CreatedAt: time.Now().UTC()}
	if err := mem.CreateSubject(ctx, subject); err != nil {
		t.Fatalf("create subject: %v", err)
	}
	for i := 0; i < templates; i++ {
		tpl := &models.FaceTemplate{
			ID:        uuid.New(),
			SubjectID: subject.ID,
			Vector:    make([]float64, models.DescriptorDim),
		}
		if err := mem.InsertTemplate(ctx, tpl, 10); err != nil {
			t.Fatalf("insert template: %v", err)
		}
	}
	return subject.ID
}

func TestGetSubjectTemplateCount(t *testing.T) {
	mem := storage.NewMemoryStore()
	subjectID := seedSubjectWithTemplates(t, mem, 2)
	r := newSubjectRouter(mem)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/subjects/"+subjectID.String(), nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp dto.SubjectResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.TemplateCount != 2 {
		t.Fatalf("expected template_count 2, got %d", resp.TemplateCount)
	}
}

// failingTemplateStore serves subjects but fails every template listing.
type failingTemplateStore struct {
	*storage.MemoryStore
}

func (s *failingTemplateStore) ListTemplatesBySubject(ctx context.Context, subjectID uuid.UUID) ([]models.FaceTemplate, error) {
	return nil, errors.New("storage unavailable")
}

func TestSubjectTemplateListingFailure(t *testing.T) {
	mem := storage.NewMemoryStore()
	subjectID := seedSubjectWithTemplates(t, mem, 1)
	r := newSubjectRouter(&failingTemplateStore{MemoryStore: mem})

	// A template listing fault must surface as an error, not as a silently
	// wrong template_count.
	for _, path := range []string{"/subjects", "/subjects/" + subjectID.String()} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("%s: expected 500, got %d: %s", path, w.Code, w.Body.String())
		}
	}
}
