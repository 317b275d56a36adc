package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/attend/internal/anomaly"
	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/pkg/dto"
)

type AnomalyHandler struct {
	anomalies *anomaly.Service
}

func NewAnomalyHandler(anomalies *anomaly.Service) *AnomalyHandler {
	return &AnomalyHandler{anomalies: anomalies}
}

func (h *AnomalyHandler) List(c *gin.Context) {
	var filter anomaly.Filter

	if v := c.Query("subject_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subject_id"})
			return
		}
		filter.SubjectID = &id
	}
	if v := c.Query("session_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session_id"})
			return
		}
		filter.SessionID = &id
	}
	if v := c.Query("resolved"); v != "" {
		resolved, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid resolved"})
			return
		}
		filter.Resolved = &resolved
	}

	anomalies, err := h.anomalies.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.AnomalyResponse, 0, len(anomalies))
	for i := range anomalies {
		resp = append(resp, anomalyResponse(&anomalies[i]))
	}

	c.JSON(http.StatusOK, gin.H{"anomalies": resp, "total": len(resp)})
}

func (h *AnomalyHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid anomaly id"})
		return
	}

	a, err := h.anomalies.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, anomaly.ErrAnomalyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "anomaly not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, anomalyResponse(a))
}

func (h *AnomalyHandler) Resolve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid anomaly id"})
		return
	}

	var req dto.ResolveAnomalyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a, err := h.anomalies.Resolve(c.Request.Context(), id, req.ResolverID, req.Resolution)
	if err != nil {
		switch {
		case errors.Is(err, anomaly.ErrAnomalyNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "anomaly not found"})
		case errors.Is(err, anomaly.ErrAlreadyResolved):
			c.JSON(http.StatusConflict, gin.H{"error": "anomaly already resolved"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, anomalyResponse(a))
}

func anomalyResponse(a *models.Anomaly) dto.AnomalyResponse {
	return dto.AnomalyResponse{
		ID:         a.ID,
		SubjectID:  a.SubjectID,
		SessionID:  a.SessionID,
		CheckInID:  a.CheckInID,
		Type:       string(a.Type),
		Severity:   string(a.Severity),
		Details:    a.Details,
		Timestamp:  a.Timestamp.Format("2006-01-02T15:04:05Z"),
		Resolved:   a.Resolved,
		ResolvedBy: a.ResolvedBy,
		Resolution: a.Resolution,
	}
}
