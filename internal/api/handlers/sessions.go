package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/attend/internal/attendance"
	"github.com/your-org/attend/internal/biometric"
	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/queue"
	"github.com/your-org/attend/pkg/dto"
)

type SessionHandler struct {
	attendance *attendance.Service
	store      *biometric.Store
	producer   *queue.Producer
}

func NewSessionHandler(att *attendance.Service, store *biometric.Store, producer *queue.Producer) *SessionHandler {
	return &SessionHandler{attendance: att, store: store, producer: producer}
}

func (h *SessionHandler) Create(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_time"})
		return
	}
	var end *time.Time
	if req.EndTime != "" {
		t, err := time.Parse(time.RFC3339, req.EndTime)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_time"})
			return
		}
		end = &t
	}

	session, err := h.attendance.CreateSession(c.Request.Context(), req.Name, req.Type, start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, sessionResponse(session))
}

func (h *SessionHandler) List(c *gin.Context) {
	sessions, err := h.attendance.ListSessions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.SessionResponse, 0, len(sessions))
	for i := range sessions {
		resp = append(resp, sessionResponse(&sessions[i]))
	}

	c.JSON(http.StatusOK, gin.H{"sessions": resp, "total": len(resp)})
}

func (h *SessionHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	session, err := h.attendance.GetSession(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, attendance.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, sessionResponse(session))
}

// Recognize matches a probe descriptor without recording anything.
func (h *SessionHandler) Recognize(c *gin.Context) {
	var req dto.RecognizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.store.Identify(c.Request.Context(), req.Vector)
	if err != nil {
		if errors.Is(err, biometric.ErrVectorShape) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if !result.Matched {
		c.JSON(http.StatusOK, gin.H{"matched": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"matched":    true,
		"subject_id": result.SubjectID,
		"confidence": result.Confidence,
	})
}

// CheckIn records a presence event. FACIAL check-ins resolve the subject
// through the matcher; MANUAL and CODE check-ins name the subject directly.
func (h *SessionHandler) CheckIn(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	var req dto.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	method := models.CheckInMethod(req.Method)
	var subjectID uuid.UUID
	var confidence float64

	if method == models.MethodFacial {
		if req.Vector == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "vector required for facial check-in"})
			return
		}
		result, err := h.store.Identify(c.Request.Context(), req.Vector)
		if err != nil {
			if errors.Is(err, biometric.ErrVectorShape) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !result.Matched {
			c.JSON(http.StatusNotFound, gin.H{"error": "no matching subject"})
			return
		}
		subjectID = result.SubjectID
		confidence = result.Confidence
	} else {
		if req.SubjectID == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "subject_id required"})
			return
		}
		subjectID = *req.SubjectID
	}

	ev, detected, err := h.attendance.CheckIn(c.Request.Context(), sessionID, subjectID, method, confidence)
	if err != nil {
		switch {
		case errors.Is(err, attendance.ErrInvalidMethod):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, attendance.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		case errors.Is(err, attendance.ErrSubjectNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "subject not found"})
		case errors.Is(err, attendance.ErrAlreadyCheckedIn):
			c.JSON(http.StatusConflict, gin.H{"error": "already checked in"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	resp := checkInResponse(ev, detected)
	h.publish(c, queue.KindCheckIn, ev.SessionID, resp)
	for i := range resp.Anomalies {
		h.publish(c, queue.KindAnomaly, ev.SessionID, resp.Anomalies[i])
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *SessionHandler) CheckOut(c *gin.Context) {
	checkInID, err := uuid.Parse(c.Param("checkinId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid check-in id"})
		return
	}

	ev, err := h.attendance.CheckOut(c.Request.Context(), checkInID)
	if err != nil {
		switch {
		case errors.Is(err, attendance.ErrNotCheckedIn):
			c.JSON(http.StatusNotFound, gin.H{"error": "no open check-in found"})
		case errors.Is(err, attendance.ErrAlreadyCheckedOut):
			c.JSON(http.StatusConflict, gin.H{"error": "already checked out"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	resp := checkInResponse(ev, nil)
	h.publish(c, queue.KindCheckOut, ev.SessionID, resp)

	c.JSON(http.StatusOK, resp)
}

func (h *SessionHandler) ListCheckIns(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	events, err := h.attendance.ListBySession(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.CheckInResponse, 0, len(events))
	for i := range events {
		resp = append(resp, checkInResponse(&events[i], nil))
	}

	c.JSON(http.StatusOK, dto.CheckInListResponse{CheckIns: resp, Total: len(resp)})
}

// publish fans an event out through the stream. Delivery is best effort: the
// check-in is already committed, consumers catch up from the stream.
func (h *SessionHandler) publish(c *gin.Context, kind string, sessionID uuid.UUID, data interface{}) {
	if h.producer == nil {
		return
	}
	if err := h.producer.PublishEvent(c.Request.Context(), kind, sessionID.String(), data); err != nil {
		slog.Error("publish event", "kind", kind, "session", sessionID, "error", err)
	}
}

func sessionResponse(s *models.AttendanceSession) dto.SessionResponse {
	resp := dto.SessionResponse{
		ID:        s.ID,
		Name:      s.Name,
		Type:      s.Type,
		StartTime: s.StartTime.Format("2006-01-02T15:04:05Z"),
	}
	if s.EndTime != nil {
		resp.EndTime = s.EndTime.Format("2006-01-02T15:04:05Z")
	}
	return resp
}

func checkInResponse(ev *models.CheckInEvent, detected []models.Anomaly) dto.CheckInResponse {
	resp := dto.CheckInResponse{
		ID:         ev.ID,
		SessionID:  ev.SessionID,
		SubjectID:  ev.SubjectID,
		Method:     string(ev.Method),
		Confidence: ev.Confidence,
		CheckIn:    ev.CheckInTime.Format("2006-01-02T15:04:05Z"),
		Duration:   ev.DurationMinutes(),
		Status:     string(ev.Status),
	}
	if ev.CheckOutTime != nil {
		resp.CheckOut = ev.CheckOutTime.Format("2006-01-02T15:04:05Z")
	}
	for i := range detected {
		resp.Anomalies = append(resp.Anomalies, anomalyResponse(&detected[i]))
	}
	return resp
}
