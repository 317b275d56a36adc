package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attend/internal/anomaly"
	"github.com/your-org/attend/internal/attendance"
	"github.com/your-org/attend/internal/biometric"
	"github.com/your-org/attend/internal/certificate"
	"github.com/your-org/attend/internal/models"
)

// MemoryStore is an in-process implementation of the repository contracts,
// used by tests and single-node development. A single mutex stands in for the
// transactional boundary Postgres provides, which is enough to keep the same
// read-check-write sequences atomic.
type MemoryStore struct {
	mu           sync.Mutex
	subjects     map[uuid.UUID]models.Subject
	templates    map[uuid.UUID]models.FaceTemplate
	consents     []models.ConsentRecord
	sessions     map[uuid.UUID]models.AttendanceSession
	checkIns     map[uuid.UUID]models.CheckInEvent
	anomalies    map[uuid.UUID]models.Anomaly
	certificates map[uuid.UUID]models.Certificate
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subjects:     make(map[uuid.UUID]models.Subject),
		templates:    make(map[uuid.UUID]models.FaceTemplate),
		sessions:     make(map[uuid.UUID]models.AttendanceSession),
		checkIns:     make(map[uuid.UUID]models.CheckInEvent),
		anomalies:    make(map[uuid.UUID]models.Anomaly),
		certificates: make(map[uuid.UUID]models.Certificate),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// --- Subjects ---

func (s *MemoryStore) CreateSubject(ctx context.Context, subject *models.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	subject.CreatedAt = now
	subject.UpdatedAt = now
	s.subjects[subject.ID] = *subject
	return nil
}

func (s *MemoryStore) GetSubject(ctx context.Context, id uuid.UUID) (*models.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subject, ok := s.subjects[id]
	if !ok {
		return nil, nil
	}
	return &subject, nil
}

func (s *MemoryStore) ListSubjects(ctx context.Context) ([]models.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Subject, 0, len(s.subjects))
	for _, subject := range s.subjects {
		out = append(out, subject)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// --- Face templates ---

func (s *MemoryStore) InsertTemplate(ctx context.Context, t *models.FaceTemplate, maxPerSubject int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subjects[t.SubjectID]; !ok {
		return biometric.ErrSubjectNotFound
	}

	count := 0
	for _, existing := range s.templates {
		if existing.SubjectID == t.SubjectID {
			count++
		}
	}
	if count >= maxPerSubject {
		return biometric.ErrEnrollmentCapExceeded
	}
	if count == 0 {
		t.IsPrimary = true
	}

	s.templates[t.ID] = cloneTemplate(*t)
	return nil
}

func (s *MemoryStore) SetPrimaryTemplate(ctx context.Context, templateID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.templates[templateID]
	if !ok {
		return biometric.ErrTemplateNotFound
	}

	now := time.Now().UTC()
	for id, t := range s.templates {
		if t.SubjectID == target.SubjectID && t.IsPrimary {
			t.IsPrimary = false
			t.UpdatedAt = now
			s.templates[id] = t
		}
	}
	target.IsPrimary = true
	target.UpdatedAt = now
	s.templates[templateID] = target
	return nil
}

func (s *MemoryStore) DeleteTemplate(ctx context.Context, templateID uuid.UUID) (*models.FaceTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.templates[templateID]
	if !ok {
		return nil, nil
	}
	delete(s.templates, templateID)
	t = cloneTemplate(t)
	return &t, nil
}

func (s *MemoryStore) ListTemplatesBySubject(ctx context.Context, subjectID uuid.UUID) ([]models.FaceTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.FaceTemplate
	for _, t := range s.templates {
		if t.SubjectID == subjectID {
			out = append(out, cloneTemplate(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsPrimary != out[j].IsPrimary {
			return out[i].IsPrimary
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) SearchCandidates(ctx context.Context, probe []float64, limit int) ([]models.FaceTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.FaceTemplate
	for _, t := range s.templates {
		out = append(out, cloneTemplate(t))
	}
	sort.Slice(out, func(i, j int) bool {
		return biometric.EuclideanDistance(probe, out[i].Vector) < biometric.EuclideanDistance(probe, out[j].Vector)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneTemplate(t models.FaceTemplate) models.FaceTemplate {
	vec := make([]float64, len(t.Vector))
	copy(vec, t.Vector)
	t.Vector = vec
	return t
}

// --- Consent ledger ---

func (s *MemoryStore) AppendConsent(ctx context.Context, rec *models.ConsentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consents = append(s.consents, *rec)
	return nil
}

func (s *MemoryStore) WithdrawConsent(ctx context.Context, rec *models.ConsentRecord, cascadeTemplates bool) ([]models.FaceTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.consents {
		prev := &s.consents[i]
		if prev.SubjectID == rec.SubjectID && prev.Purpose == rec.Purpose && prev.Granted && prev.WithdrawnAt == nil {
			prev.WithdrawnAt = rec.WithdrawnAt
		}
	}
	s.consents = append(s.consents, *rec)

	if !cascadeTemplates {
		return nil, nil
	}

	var deleted []models.FaceTemplate
	for id, t := range s.templates {
		if t.SubjectID == rec.SubjectID {
			deleted = append(deleted, cloneTemplate(t))
			delete(s.templates, id)
		}
	}
	return deleted, nil
}

func (s *MemoryStore) LatestConsent(ctx context.Context, subjectID uuid.UUID, purpose models.ConsentPurpose) (*models.ConsentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.consents) - 1; i >= 0; i-- {
		rec := s.consents[i]
		if rec.SubjectID == subjectID && rec.Purpose == purpose {
			return &rec, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListConsents(ctx context.Context, subjectID uuid.UUID) ([]models.ConsentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.ConsentRecord
	for i := len(s.consents) - 1; i >= 0; i-- {
		if s.consents[i].SubjectID == subjectID {
			out = append(out, s.consents[i])
		}
	}
	return out, nil
}

// --- Sessions ---

func (s *MemoryStore) CreateSession(ctx context.Context, session *models.AttendanceSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = *session
	return nil
}

func (s *MemoryStore) GetSession(ctx context.Context, id uuid.UUID) (*models.AttendanceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

func (s *MemoryStore) ListSessions(ctx context.Context) ([]models.AttendanceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AttendanceSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

// --- Check-ins ---

func (s *MemoryStore) InsertCheckIn(ctx context.Context, ev *models.CheckInEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.checkIns {
		if existing.SessionID == ev.SessionID && existing.SubjectID == ev.SubjectID && existing.CheckOutTime == nil {
			return attendance.ErrAlreadyCheckedIn
		}
	}
	s.checkIns[ev.ID] = *ev
	return nil
}

func (s *MemoryStore) GetCheckIn(ctx context.Context, id uuid.UUID) (*models.CheckInEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.checkIns[id]
	if !ok {
		return nil, nil
	}
	return &ev, nil
}

func (s *MemoryStore) CloseCheckIn(ctx context.Context, id uuid.UUID, at time.Time) (*models.CheckInEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.checkIns[id]
	if !ok {
		return nil, attendance.ErrCheckInNotFound
	}
	if ev.CheckOutTime != nil {
		return nil, attendance.ErrAlreadyCheckedOut
	}
	ev.CheckOutTime = &at
	s.checkIns[id] = ev
	return &ev, nil
}

func (s *MemoryStore) UpdateCheckInStatus(ctx context.Context, id uuid.UUID, status models.VerificationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.checkIns[id]
	if !ok {
		return attendance.ErrCheckInNotFound
	}
	ev.Status = status
	s.checkIns[id] = ev
	return nil
}

func (s *MemoryStore) ListCheckInsBySubjectSince(ctx context.Context, subjectID uuid.UUID, since time.Time) ([]models.CheckInEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.CheckInEvent
	for _, ev := range s.checkIns {
		if ev.SubjectID == subjectID && !ev.CheckInTime.Before(since) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckInTime.After(out[j].CheckInTime) })
	return out, nil
}

func (s *MemoryStore) ListCheckInsBySession(ctx context.Context, sessionID uuid.UUID) ([]models.CheckInEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.CheckInEvent
	for _, ev := range s.checkIns {
		if ev.SessionID == sessionID {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckInTime.After(out[j].CheckInTime) })
	return out, nil
}

// --- Anomalies ---

func (s *MemoryStore) InsertAnomaly(ctx context.Context, a *models.Anomaly) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anomalies[a.ID] = *a
	return nil
}

func (s *MemoryStore) GetAnomaly(ctx context.Context, id uuid.UUID) (*models.Anomaly, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.anomalies[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *MemoryStore) ResolveAnomaly(ctx context.Context, id, resolverID uuid.UUID, resolution string) (*models.Anomaly, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.anomalies[id]
	if !ok {
		return nil, anomaly.ErrAnomalyNotFound
	}
	if a.Resolved {
		return nil, anomaly.ErrAlreadyResolved
	}
	a.Resolved = true
	a.ResolvedBy = &resolverID
	a.Resolution = resolution
	s.anomalies[id] = a
	return &a, nil
}

func (s *MemoryStore) ListAnomalies(ctx context.Context, filter anomaly.Filter) ([]models.Anomaly, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Anomaly
	for _, a := range s.anomalies {
		if filter.SubjectID != nil && a.SubjectID != *filter.SubjectID {
			continue
		}
		if filter.SessionID != nil && (a.SessionID == nil || *a.SessionID != *filter.SessionID) {
			continue
		}
		if filter.Resolved != nil && a.Resolved != *filter.Resolved {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// --- Certificates ---

func (s *MemoryStore) InsertCertificate(ctx context.Context, c *models.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.certificates {
		if existing.SubjectID == c.SubjectID && existing.SessionID == c.SessionID {
			return certificate.ErrCertificateAlreadyExists
		}
	}
	s.certificates[c.ID] = *c
	return nil
}

func (s *MemoryStore) GetCertificateBySubjectSession(ctx context.Context, subjectID, sessionID uuid.UUID) (*models.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.certificates {
		if c.SubjectID == subjectID && c.SessionID == sessionID {
			return &c, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) FindCertificate(ctx context.Context, numberOrCode string) (*models.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.certificates {
		if c.Number == numberOrCode || c.VerificationCode == numberOrCode {
			return &c, nil
		}
	}
	return nil, nil
}
