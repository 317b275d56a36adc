package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/attend/internal/anomaly"
	"github.com/your-org/attend/internal/attendance"
	"github.com/your-org/attend/internal/biometric"
	"github.com/your-org/attend/internal/certificate"
	"github.com/your-org/attend/internal/config"
	"github.com/your-org/attend/internal/models"
)

// Constraint names the schema uses to enforce core invariants. Unique
// violations on these map to the matching domain errors.
const (
	constraintOpenCheckIn        = "uq_checkin_open"
	constraintCertificatePerPair = "uq_certificate_subject_session"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// withTx runs fn inside a transaction, committing on nil and rolling back on
// error.
func (s *PostgresStore) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

// --- Subjects ---

func (s *PostgresStore) CreateSubject(ctx context.Context, subject *models.Subject) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO subjects (id, family_group_id, display_name) VALUES ($1, $2, $3) RETURNING created_at, updated_at`,
		subject.ID, subject.FamilyGroupID, subject.DisplayName,
	).Scan(&subject.CreatedAt, &subject.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSubject(ctx context.Context, id uuid.UUID) (*models.Subject, error) {
	subject := &models.Subject{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, family_group_id, display_name, created_at, updated_at FROM subjects WHERE id = $1`, id,
	).Scan(&subject.ID, &subject.FamilyGroupID, &subject.DisplayName, &subject.CreatedAt, &subject.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get subject: %w", err)
	}
	return subject, nil
}

func (s *PostgresStore) ListSubjects(ctx context.Context) ([]models.Subject, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, family_group_id, display_name, created_at, updated_at FROM subjects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()

	var subjects []models.Subject
	for rows.Next() {
		var subject models.Subject
		if err := rows.Scan(&subject.ID, &subject.FamilyGroupID, &subject.DisplayName, &subject.CreatedAt, &subject.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		subjects = append(subjects, subject)
	}
	return subjects, nil
}

// --- Face templates ---

// embeddingFromVector projects the canonical float64 descriptor onto the
// float32 pgvector column used by the ANN index. The float8[] column stays
// authoritative for matching.
func embeddingFromVector(v []float64) pgvector.Vector {
	f32 := make([]float32, len(v))
	for i, x := range v {
		f32[i] = float32(x)
	}
	return pgvector.NewVector(f32)
}

func (s *PostgresStore) InsertTemplate(ctx context.Context, t *models.FaceTemplate, maxPerSubject int) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		// Lock the subject row so cap check and insert are atomic.
		var subjectID uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM subjects WHERE id = $1 FOR UPDATE`, t.SubjectID).Scan(&subjectID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return biometric.ErrSubjectNotFound
			}
			return fmt.Errorf("lock subject: %w", err)
		}

		var count int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM face_templates WHERE subject_id = $1`, t.SubjectID).Scan(&count); err != nil {
			return fmt.Errorf("count templates: %w", err)
		}
		if count >= maxPerSubject {
			return biometric.ErrEnrollmentCapExceeded
		}
		if count == 0 {
			t.IsPrimary = true
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO face_templates (id, subject_id, vector, embedding, quality, is_primary, label, source_key, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			t.ID, t.SubjectID, t.Vector, embeddingFromVector(t.Vector),
			t.Quality, t.IsPrimary, t.Label, t.SourceKey, t.CreatedAt, t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert template: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) SetPrimaryTemplate(ctx context.Context, templateID uuid.UUID) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var subjectID uuid.UUID
		err := tx.QueryRow(ctx,
			`SELECT subject_id FROM face_templates WHERE id = $1`, templateID).Scan(&subjectID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return biometric.ErrTemplateNotFound
			}
			return fmt.Errorf("get template: %w", err)
		}

		// Serialize concurrent promotions for the same subject.
		if _, err := tx.Exec(ctx, `SELECT id FROM subjects WHERE id = $1 FOR UPDATE`, subjectID); err != nil {
			return fmt.Errorf("lock subject: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE face_templates SET is_primary = FALSE, updated_at = NOW() WHERE subject_id = $1 AND is_primary`, subjectID); err != nil {
			return fmt.Errorf("clear primary: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE face_templates SET is_primary = TRUE, updated_at = NOW() WHERE id = $1`, templateID); err != nil {
			return fmt.Errorf("set primary: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) DeleteTemplate(ctx context.Context, templateID uuid.UUID) (*models.FaceTemplate, error) {
	t := &models.FaceTemplate{}
	err := s.pool.QueryRow(ctx,
		`DELETE FROM face_templates WHERE id = $1
		 RETURNING id, subject_id, vector, quality, is_primary, label, source_key, created_at, updated_at`,
		templateID,
	).Scan(&t.ID, &t.SubjectID, &t.Vector, &t.Quality, &t.IsPrimary, &t.Label, &t.SourceKey, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Deleting an absent template is a no-op success.
			return nil, nil
		}
		return nil, fmt.Errorf("delete template: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) ListTemplatesBySubject(ctx context.Context, subjectID uuid.UUID) ([]models.FaceTemplate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, subject_id, vector, quality, is_primary, label, source_key, created_at, updated_at
		 FROM face_templates WHERE subject_id = $1
		 ORDER BY is_primary DESC, created_at DESC`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	return scanTemplates(rows)
}

// SearchCandidates prefilters the candidate pool with the vector index. The
// canonical matcher over the float8[] data always makes the final decision.
func (s *PostgresStore) SearchCandidates(ctx context.Context, probe []float64, limit int) ([]models.FaceTemplate, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, subject_id, vector, quality, is_primary, label, source_key, created_at, updated_at
		 FROM face_templates
		 ORDER BY embedding <-> $1
		 LIMIT $2`, embeddingFromVector(probe), limit)
	if err != nil {
		return nil, fmt.Errorf("search candidates: %w", err)
	}
	defer rows.Close()

	return scanTemplates(rows)
}

func scanTemplates(rows pgx.Rows) ([]models.FaceTemplate, error) {
	var templates []models.FaceTemplate
	for rows.Next() {
		var t models.FaceTemplate
		if err := rows.Scan(&t.ID, &t.SubjectID, &t.Vector, &t.Quality, &t.IsPrimary, &t.Label, &t.SourceKey, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, nil
}

// --- Consent ledger ---

func (s *PostgresStore) AppendConsent(ctx context.Context, rec *models.ConsentRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO consent_records (id, subject_id, purpose, granted, version, granted_at, withdrawn_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.SubjectID, rec.Purpose, rec.Granted, rec.Version, rec.GrantedAt, rec.WithdrawnAt)
	if err != nil {
		return fmt.Errorf("append consent: %w", err)
	}
	return nil
}

// WithdrawConsent runs the withdrawal write and the template cascade in one
// transaction: a committed withdrawal always implies the templates are gone.
func (s *PostgresStore) WithdrawConsent(ctx context.Context, rec *models.ConsentRecord, cascadeTemplates bool) ([]models.FaceTemplate, error) {
	var deleted []models.FaceTemplate
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE consent_records SET withdrawn_at = $1
			 WHERE subject_id = $2 AND purpose = $3 AND granted AND withdrawn_at IS NULL`,
			rec.WithdrawnAt, rec.SubjectID, rec.Purpose); err != nil {
			return fmt.Errorf("stamp prior grants: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO consent_records (id, subject_id, purpose, granted, version, granted_at, withdrawn_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			rec.ID, rec.SubjectID, rec.Purpose, rec.Granted, rec.Version, rec.GrantedAt, rec.WithdrawnAt); err != nil {
			return fmt.Errorf("append withdrawal: %w", err)
		}

		if !cascadeTemplates {
			return nil
		}

		rows, err := tx.Query(ctx,
			`DELETE FROM face_templates WHERE subject_id = $1
			 RETURNING id, subject_id, vector, quality, is_primary, label, source_key, created_at, updated_at`,
			rec.SubjectID)
		if err != nil {
			return fmt.Errorf("cascade delete templates: %w", err)
		}
		defer rows.Close()

		deleted, err = scanTemplates(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (s *PostgresStore) LatestConsent(ctx context.Context, subjectID uuid.UUID, purpose models.ConsentPurpose) (*models.ConsentRecord, error) {
	rec := &models.ConsentRecord{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, subject_id, purpose, granted, version, granted_at, withdrawn_at
		 FROM consent_records WHERE subject_id = $1 AND purpose = $2
		 ORDER BY granted_at DESC LIMIT 1`, subjectID, purpose,
	).Scan(&rec.ID, &rec.SubjectID, &rec.Purpose, &rec.Granted, &rec.Version, &rec.GrantedAt, &rec.WithdrawnAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest consent: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListConsents(ctx context.Context, subjectID uuid.UUID) ([]models.ConsentRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, subject_id, purpose, granted, version, granted_at, withdrawn_at
		 FROM consent_records WHERE subject_id = $1 ORDER BY granted_at DESC`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	defer rows.Close()

	var records []models.ConsentRecord
	for rows.Next() {
		var rec models.ConsentRecord
		if err := rows.Scan(&rec.ID, &rec.SubjectID, &rec.Purpose, &rec.Granted, &rec.Version, &rec.GrantedAt, &rec.WithdrawnAt); err != nil {
			return nil, fmt.Errorf("scan consent: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// --- Sessions ---

func (s *PostgresStore) CreateSession(ctx context.Context, session *models.AttendanceSession) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO attendance_sessions (id, name, session_type, start_time, end_time, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		session.ID, session.Name, session.Type, session.StartTime, session.EndTime, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id uuid.UUID) (*models.AttendanceSession, error) {
	session := &models.AttendanceSession{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, session_type, start_time, end_time, created_at FROM attendance_sessions WHERE id = $1`, id,
	).Scan(&session.ID, &session.Name, &session.Type, &session.StartTime, &session.EndTime, &session.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context) ([]models.AttendanceSession, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, session_type, start_time, end_time, created_at FROM attendance_sessions ORDER BY start_time DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.AttendanceSession
	for rows.Next() {
		var session models.AttendanceSession
		if err := rows.Scan(&session.ID, &session.Name, &session.Type, &session.StartTime, &session.EndTime, &session.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// --- Check-ins ---

func (s *PostgresStore) InsertCheckIn(ctx context.Context, ev *models.CheckInEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO checkin_events (id, session_id, subject_id, method, confidence, check_in_time, check_out_time, verification_status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.ID, ev.SessionID, ev.SubjectID, ev.Method, ev.Confidence, ev.CheckInTime, ev.CheckOutTime, ev.Status)
	if err != nil {
		if isUniqueViolation(err, constraintOpenCheckIn) {
			return attendance.ErrAlreadyCheckedIn
		}
		return fmt.Errorf("insert check-in: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCheckIn(ctx context.Context, id uuid.UUID) (*models.CheckInEvent, error) {
	ev := &models.CheckInEvent{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, session_id, subject_id, method, confidence, check_in_time, check_out_time, verification_status
		 FROM checkin_events WHERE id = $1`, id,
	).Scan(&ev.ID, &ev.SessionID, &ev.SubjectID, &ev.Method, &ev.Confidence, &ev.CheckInTime, &ev.CheckOutTime, &ev.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get check-in: %w", err)
	}
	return ev, nil
}

func (s *PostgresStore) CloseCheckIn(ctx context.Context, id uuid.UUID, at time.Time) (*models.CheckInEvent, error) {
	ev := &models.CheckInEvent{}
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var checkOut *time.Time
		err := tx.QueryRow(ctx,
			`SELECT check_out_time FROM checkin_events WHERE id = $1 FOR UPDATE`, id).Scan(&checkOut)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return attendance.ErrCheckInNotFound
			}
			return fmt.Errorf("lock check-in: %w", err)
		}
		if checkOut != nil {
			return attendance.ErrAlreadyCheckedOut
		}

		return tx.QueryRow(ctx,
			`UPDATE checkin_events SET check_out_time = $1 WHERE id = $2
			 RETURNING id, session_id, subject_id, method, confidence, check_in_time, check_out_time, verification_status`,
			at, id,
		).Scan(&ev.ID, &ev.SessionID, &ev.SubjectID, &ev.Method, &ev.Confidence, &ev.CheckInTime, &ev.CheckOutTime, &ev.Status)
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (s *PostgresStore) UpdateCheckInStatus(ctx context.Context, id uuid.UUID, status models.VerificationStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE checkin_events SET verification_status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update check-in status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return attendance.ErrCheckInNotFound
	}
	return nil
}

func (s *PostgresStore) ListCheckInsBySubjectSince(ctx context.Context, subjectID uuid.UUID, since time.Time) ([]models.CheckInEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, subject_id, method, confidence, check_in_time, check_out_time, verification_status
		 FROM checkin_events WHERE subject_id = $1 AND check_in_time >= $2
		 ORDER BY check_in_time DESC`, subjectID, since)
	if err != nil {
		return nil, fmt.Errorf("list check-ins by subject: %w", err)
	}
	defer rows.Close()

	return scanCheckIns(rows)
}

func (s *PostgresStore) ListCheckInsBySession(ctx context.Context, sessionID uuid.UUID) ([]models.CheckInEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, subject_id, method, confidence, check_in_time, check_out_time, verification_status
		 FROM checkin_events WHERE session_id = $1
		 ORDER BY check_in_time DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list check-ins by session: %w", err)
	}
	defer rows.Close()

	return scanCheckIns(rows)
}

func scanCheckIns(rows pgx.Rows) ([]models.CheckInEvent, error) {
	var events []models.CheckInEvent
	for rows.Next() {
		var ev models.CheckInEvent
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.SubjectID, &ev.Method, &ev.Confidence, &ev.CheckInTime, &ev.CheckOutTime, &ev.Status); err != nil {
			return nil, fmt.Errorf("scan check-in: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// --- Anomalies ---

func (s *PostgresStore) InsertAnomaly(ctx context.Context, a *models.Anomaly) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO anomalies (id, subject_id, session_id, check_in_id, anomaly_type, severity, details, timestamp, resolved, resolved_by, resolution)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.SubjectID, a.SessionID, a.CheckInID, a.Type, a.Severity, a.Details, a.Timestamp, a.Resolved, a.ResolvedBy, a.Resolution)
	if err != nil {
		return fmt.Errorf("insert anomaly: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAnomaly(ctx context.Context, id uuid.UUID) (*models.Anomaly, error) {
	a := &models.Anomaly{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, subject_id, session_id, check_in_id, anomaly_type, severity, details, timestamp, resolved, resolved_by, resolution
		 FROM anomalies WHERE id = $1`, id,
	).Scan(&a.ID, &a.SubjectID, &a.SessionID, &a.CheckInID, &a.Type, &a.Severity, &a.Details, &a.Timestamp, &a.Resolved, &a.ResolvedBy, &a.Resolution)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get anomaly: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ResolveAnomaly(ctx context.Context, id, resolverID uuid.UUID, resolution string) (*models.Anomaly, error) {
	a := &models.Anomaly{}
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var resolved bool
		err := tx.QueryRow(ctx,
			`SELECT resolved FROM anomalies WHERE id = $1 FOR UPDATE`, id).Scan(&resolved)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return anomaly.ErrAnomalyNotFound
			}
			return fmt.Errorf("lock anomaly: %w", err)
		}
		if resolved {
			return anomaly.ErrAlreadyResolved
		}

		return tx.QueryRow(ctx,
			`UPDATE anomalies SET resolved = TRUE, resolved_by = $1, resolution = $2 WHERE id = $3
			 RETURNING id, subject_id, session_id, check_in_id, anomaly_type, severity, details, timestamp, resolved, resolved_by, resolution`,
			resolverID, resolution, id,
		).Scan(&a.ID, &a.SubjectID, &a.SessionID, &a.CheckInID, &a.Type, &a.Severity, &a.Details, &a.Timestamp, &a.Resolved, &a.ResolvedBy, &a.Resolution)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *PostgresStore) ListAnomalies(ctx context.Context, filter anomaly.Filter) ([]models.Anomaly, error) {
	where := "WHERE TRUE"
	args := []interface{}{}
	argIdx := 1

	if filter.SubjectID != nil {
		where += fmt.Sprintf(" AND subject_id = $%d", argIdx)
		args = append(args, *filter.SubjectID)
		argIdx++
	}
	if filter.SessionID != nil {
		where += fmt.Sprintf(" AND session_id = $%d", argIdx)
		args = append(args, *filter.SessionID)
		argIdx++
	}
	if filter.Resolved != nil {
		where += fmt.Sprintf(" AND resolved = $%d", argIdx)
		args = append(args, *filter.Resolved)
		argIdx++
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, subject_id, session_id, check_in_id, anomaly_type, severity, details, timestamp, resolved, resolved_by, resolution
		 FROM anomalies `+where+` ORDER BY timestamp DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list anomalies: %w", err)
	}
	defer rows.Close()

	var anomalies []models.Anomaly
	for rows.Next() {
		var a models.Anomaly
		if err := rows.Scan(&a.ID, &a.SubjectID, &a.SessionID, &a.CheckInID, &a.Type, &a.Severity, &a.Details, &a.Timestamp, &a.Resolved, &a.ResolvedBy, &a.Resolution); err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		anomalies = append(anomalies, a)
	}
	return anomalies, nil
}

// --- Certificates ---

func (s *PostgresStore) InsertCertificate(ctx context.Context, c *models.Certificate) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO certificates (id, certificate_number, verification_code, subject_id, session_id, check_in_id, check_in_time, check_out_time, duration_minutes, issue_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.Number, c.VerificationCode, c.SubjectID, c.SessionID, c.CheckInID,
		c.CheckInTime, c.CheckOutTime, c.DurationMinutes, c.IssueDate)
	if err != nil {
		if isUniqueViolation(err, constraintCertificatePerPair) {
			return certificate.ErrCertificateAlreadyExists
		}
		return fmt.Errorf("insert certificate: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCertificateBySubjectSession(ctx context.Context, subjectID, sessionID uuid.UUID) (*models.Certificate, error) {
	return s.queryCertificate(ctx,
		`SELECT id, certificate_number, verification_code, subject_id, session_id, check_in_id, check_in_time, check_out_time, duration_minutes, issue_date
		 FROM certificates WHERE subject_id = $1 AND session_id = $2`, subjectID, sessionID)
}

func (s *PostgresStore) FindCertificate(ctx context.Context, numberOrCode string) (*models.Certificate, error) {
	return s.queryCertificate(ctx,
		`SELECT id, certificate_number, verification_code, subject_id, session_id, check_in_id, check_in_time, check_out_time, duration_minutes, issue_date
		 FROM certificates WHERE certificate_number = $1 OR verification_code = $1`, numberOrCode)
}

func (s *PostgresStore) queryCertificate(ctx context.Context, query string, args ...interface{}) (*models.Certificate, error) {
	c := &models.Certificate{}
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&c.ID, &c.Number, &c.VerificationCode, &c.SubjectID, &c.SessionID, &c.CheckInID,
		&c.CheckInTime, &c.CheckOutTime, &c.DurationMinutes, &c.IssueDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get certificate: %w", err)
	}
	return c, nil
}
