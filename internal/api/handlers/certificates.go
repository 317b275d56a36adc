package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/attend/internal/certificate"
	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/queue"
	"github.com/your-org/attend/pkg/dto"
)

type CertificateHandler struct {
	certs    *certificate.Service
	producer *queue.Producer
}

func NewCertificateHandler(certs *certificate.Service, producer *queue.Producer) *CertificateHandler {
	return &CertificateHandler{certs: certs, producer: producer}
}

// Issue mints a certificate for a verified check-in. Issuing twice for the
// same (subject, session) returns the existing certificate with 200 instead
// of 201.
func (h *CertificateHandler) Issue(c *gin.Context) {
	checkInID, err := uuid.Parse(c.Param("checkinId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid check-in id"})
		return
	}

	cert, err := h.certs.Issue(c.Request.Context(), checkInID)
	if err != nil {
		switch {
		case errors.Is(err, certificate.ErrCertificateAlreadyExists) && cert != nil:
			c.JSON(http.StatusOK, certificateResponse(cert))
		case errors.Is(err, certificate.ErrCheckInNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "check-in not found"})
		case errors.Is(err, certificate.ErrCheckInNotVerified):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "check-in is not verified"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	if h.producer != nil {
		if err := h.producer.PublishEvent(c.Request.Context(), queue.KindCertificate, cert.SessionID.String(), certificateResponse(cert)); err != nil {
			slog.Error("publish certificate event", "certificate", cert.ID, "error", err)
		}
	}

	c.JSON(http.StatusCreated, certificateResponse(cert))
}

func (h *CertificateHandler) Get(c *gin.Context) {
	cert, err := h.certs.GetByNumber(c.Request.Context(), c.Param("number"))
	if err != nil {
		if errors.Is(err, certificate.ErrCertificateNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "certificate not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, certificateResponse(cert))
}

// Verify is the public, unauthenticated lookup by certificate number or
// verification code. The response shape is constant; an unknown key yields
// {"valid": false}, nothing more.
func (h *CertificateHandler) Verify(c *gin.Context) {
	result, err := h.certs.Verify(c.Request.Context(), c.Param("code"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification unavailable"})
		return
	}

	c.JSON(http.StatusOK, result)
}

func certificateResponse(cert *models.Certificate) dto.CertificateResponse {
	resp := dto.CertificateResponse{
		ID:               cert.ID,
		Number:           cert.Number,
		VerificationCode: cert.VerificationCode,
		SubjectID:        cert.SubjectID,
		SessionID:        cert.SessionID,
		CheckInTime:      cert.CheckInTime.Format("2006-01-02T15:04:05Z"),
		DurationMinutes:  cert.DurationMinutes,
		IssueDate:        cert.IssueDate.Format("2006-01-02T15:04:05Z"),
	}
	if cert.CheckOutTime != nil {
		resp.CheckOutTime = cert.CheckOutTime.Format("2006-01-02T15:04:05Z")
	}
	return resp
}
