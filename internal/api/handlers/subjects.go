package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/attend/internal/biometric"
	"github.com/your-org/attend/internal/consent"
	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/storage"
	"github.com/your-org/attend/pkg/dto"
)

// SubjectStore is the storage surface the subject handler touches directly.
type SubjectStore interface {
	CreateSubject(ctx context.Context, subject *models.Subject) error
	GetSubject(ctx context.Context, id uuid.UUID) (*models.Subject, error)
	ListSubjects(ctx context.Context) ([]models.Subject, error)
	ListTemplatesBySubject(ctx context.Context, subjectID uuid.UUID) ([]models.FaceTemplate, error)
}

type SubjectHandler struct {
	db      SubjectStore
	minio   *storage.MinIOStore
	ledger  *consent.Ledger
	store   *biometric.Store
	// EmbedFn extracts a descriptor and quality score from image bytes.
	// Set this after the descriptor extractor is initialized; when nil,
	// enrollment only accepts raw vectors.
	EmbedFn func(imageData []byte) ([]float64, float64, error)
}

func NewSubjectHandler(db SubjectStore, minio *storage.MinIOStore, ledger *consent.Ledger, store *biometric.Store) *SubjectHandler {
	return &SubjectHandler{db: db, minio: minio, ledger: ledger, store: store}
}

func (h *SubjectHandler) Create(c *gin.Context) {
	var req dto.CreateSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	subject := &models.Subject{
		ID:            uuid.New(),
		FamilyGroupID: req.FamilyGroupID,
		DisplayName:   req.DisplayName,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := h.db.CreateSubject(c.Request.Context(), subject); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, dto.SubjectResponse{
		ID:            subject.ID,
		DisplayName:   subject.DisplayName,
		FamilyGroupID: subject.FamilyGroupID,
		TemplateCount: 0,
		CreatedAt:     subject.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

func (h *SubjectHandler) List(c *gin.Context) {
	subjects, err := h.db.ListSubjects(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.SubjectResponse, 0, len(subjects))
	for _, s := range subjects {
		templates, err := h.db.ListTemplatesBySubject(c.Request.Context(), s.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp = append(resp, dto.SubjectResponse{
			ID:            s.ID,
			DisplayName:   s.DisplayName,
			FamilyGroupID: s.FamilyGroupID,
			TemplateCount: len(templates),
			CreatedAt:     s.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}

	c.JSON(http.StatusOK, gin.H{"subjects": resp, "total": len(resp)})
}

func (h *SubjectHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subject id"})
		return
	}

	subject, err := h.db.GetSubject(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if subject == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "subject not found"})
		return
	}

	templates, err := h.db.ListTemplatesBySubject(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.SubjectResponse{
		ID:            subject.ID,
		DisplayName:   subject.DisplayName,
		FamilyGroupID: subject.FamilyGroupID,
		TemplateCount: len(templates),
		CreatedAt:     subject.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

func (h *SubjectHandler) GrantConsent(c *gin.Context) {
	subjectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subject id"})
		return
	}

	var req dto.GrantConsentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.ledger.Grant(c.Request.Context(), subjectID, models.ConsentPurpose(req.Purpose))
	if err != nil {
		switch {
		case errors.Is(err, consent.ErrInvalidPurpose):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, consent.ErrSubjectNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "subject not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, consentResponse(rec))
}

// WithdrawConsent appends a withdrawal record. Withdrawing FACIAL_RECOGNITION
// cascades: every template of the subject is deleted along with any retained
// source images.
func (h *SubjectHandler) WithdrawConsent(c *gin.Context) {
	subjectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subject id"})
		return
	}
	purpose := models.ConsentPurpose(strings.ToUpper(c.Param("purpose")))

	rec, deleted, err := h.ledger.Withdraw(c.Request.Context(), subjectID, purpose)
	if err != nil {
		switch {
		case errors.Is(err, consent.ErrInvalidPurpose):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, consent.ErrNoActiveConsent):
			c.JSON(http.StatusConflict, gin.H{"error": "no active consent to withdraw"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	// The templates are already gone; retained source images follow. A failed
	// object delete is logged and retried out of band, it cannot resurrect the
	// descriptors.
	for _, t := range deleted {
		if t.SourceKey == "" {
			continue
		}
		if err := h.minio.DeleteObject(c.Request.Context(), t.SourceKey); err != nil {
			slog.Error("delete enrollment artifact", "key", t.SourceKey, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"consent":           consentResponse(rec),
		"templates_deleted": len(deleted),
	})
}

func (h *SubjectHandler) ListConsents(c *gin.Context) {
	subjectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subject id"})
		return
	}

	records, err := h.ledger.List(c.Request.Context(), subjectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.ConsentResponse, 0, len(records))
	for i := range records {
		resp = append(resp, consentResponse(&records[i]))
	}

	c.JSON(http.StatusOK, gin.H{"consents": resp, "total": len(resp)})
}

// Enroll stores a new template. A JSON body carries a raw descriptor; a
// multipart body carries an image the extractor turns into one.
func (h *SubjectHandler) Enroll(c *gin.Context) {
	subjectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subject id"})
		return
	}

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		h.enrollFromImage(c, subjectID)
		return
	}

	var req dto.EnrollTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tpl, err := h.store.Enroll(c.Request.Context(), subjectID, req.Vector, req.Quality, req.Label, "")
	if err != nil {
		h.enrollError(c, err)
		return
	}

	c.JSON(http.StatusCreated, templateResponse(tpl))
}

func (h *SubjectHandler) enrollFromImage(c *gin.Context, subjectID uuid.UUID) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return
	}

	if h.EmbedFn == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "descriptor extractor not initialized"})
		return
	}

	vector, quality, err := h.EmbedFn(imageData)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "failed to extract face: " + err.Error()})
		return
	}

	sourceKey := "enrollments/" + subjectID.String() + "/" + uuid.New().String() + "_" + header.Filename
	if err := h.minio.PutObject(c.Request.Context(), sourceKey, imageData, header.Header.Get("Content-Type")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store image failed"})
		return
	}

	tpl, err := h.store.Enroll(c.Request.Context(), subjectID, vector, quality, c.PostForm("label"), sourceKey)
	if err != nil {
		// The template never existed, don't keep its source image around.
		if delErr := h.minio.DeleteObject(c.Request.Context(), sourceKey); delErr != nil {
			slog.Error("delete orphaned enrollment artifact", "key", sourceKey, "error", delErr)
		}
		h.enrollError(c, err)
		return
	}

	c.JSON(http.StatusCreated, templateResponse(tpl))
}

func (h *SubjectHandler) enrollError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, biometric.ErrVectorShape):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, biometric.ErrConsentMissing):
		c.JSON(http.StatusForbidden, gin.H{"error": "no valid facial recognition consent"})
	case errors.Is(err, biometric.ErrSubjectNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "subject not found"})
	case errors.Is(err, biometric.ErrEnrollmentCapExceeded):
		c.JSON(http.StatusConflict, gin.H{"error": "template limit reached for subject"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *SubjectHandler) ListTemplates(c *gin.Context) {
	subjectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subject id"})
		return
	}

	templates, err := h.store.ListBySubject(c.Request.Context(), subjectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.TemplateResponse, 0, len(templates))
	for i := range templates {
		resp = append(resp, templateResponse(&templates[i]))
	}

	c.JSON(http.StatusOK, gin.H{"templates": resp, "total": len(resp)})
}

func (h *SubjectHandler) SetPrimaryTemplate(c *gin.Context) {
	templateID, err := uuid.Parse(c.Param("templateId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid template id"})
		return
	}

	if err := h.store.SetPrimary(c.Request.Context(), templateID); err != nil {
		if errors.Is(err, biometric.ErrTemplateNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "primary"})
}

func (h *SubjectHandler) DeleteTemplate(c *gin.Context) {
	templateID, err := uuid.Parse(c.Param("templateId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid template id"})
		return
	}

	deleted, err := h.store.Remove(c.Request.Context(), templateID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if deleted != nil && deleted.SourceKey != "" {
		if err := h.minio.DeleteObject(c.Request.Context(), deleted.SourceKey); err != nil {
			slog.Error("delete enrollment artifact", "key", deleted.SourceKey, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func consentResponse(rec *models.ConsentRecord) dto.ConsentResponse {
	resp := dto.ConsentResponse{
		ID:        rec.ID,
		SubjectID: rec.SubjectID,
		Purpose:   string(rec.Purpose),
		Granted:   rec.Granted,
		Version:   rec.Version,
		GrantedAt: rec.GrantedAt.Format("2006-01-02T15:04:05Z"),
	}
	if rec.WithdrawnAt != nil {
		resp.WithdrawnAt = rec.WithdrawnAt.Format("2006-01-02T15:04:05Z")
	}
	return resp
}

func templateResponse(t *models.FaceTemplate) dto.TemplateResponse {
	return dto.TemplateResponse{
		ID:        t.ID,
		SubjectID: t.SubjectID,
		Quality:   t.Quality,
		IsPrimary: t.IsPrimary,
		Label:     t.Label,
		CreatedAt: t.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}
