package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"lectureattend/internal/model"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Postgres persists the attendance domain through pgx.
type Postgres struct {
	db *sqlx.DB
}

// NewDB opens a Postgres connection with sane pool defaults.
func NewDB(ctx context.Context, connString string) (*sqlx.DB, error) {
	db, err := sqlx.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewPostgres wraps an open connection.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates tables, constraints and indexes when missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Healthy pings the database.
func (p *Postgres) Healthy(ctx context.Context) bool {
	return p.db.PingContext(ctx) == nil
}

// Close closes the pool.
func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func violated(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// CreateSubject inserts a subject.
func (p *Postgres) CreateSubject(ctx context.Context, s model.Subject) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO subjects (id, username, role, template_digest, created_at)
		VALUES (:id, :username, :role, :template_digest, :created_at)
	`, s)
	if violated(err, constraintDigest) {
		return ErrDigestTaken
	}
	return err
}

func (p *Postgres) GetSubject(ctx context.Context, id string) (model.Subject, error) {
	var s model.Subject
	err := p.db.GetContext(ctx, &s, `
		SELECT id, username, role, template_digest, created_at FROM subjects WHERE id = $1
	`, id)
	return s, notFound(err)
}

// SetTemplateDigest writes the digest only when the column is still NULL.
func (p *Postgres) SetTemplateDigest(ctx context.Context, subjectID, digest string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE subjects SET template_digest = $2
		WHERE id = $1 AND template_digest IS NULL
	`, subjectID, digest)
	if err != nil {
		if violated(err, constraintDigest) {
			return ErrDigestTaken
		}
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 1 {
		return nil
	}

	var exists bool
	if err := p.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM subjects WHERE id = $1)`, subjectID); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrDigestAlreadySet
}

func (p *Postgres) ListEnrolledStudents(ctx context.Context) ([]model.Subject, error) {
	var out []model.Subject
	err := p.db.SelectContext(ctx, &out, `
		SELECT id, username, role, template_digest, created_at
		FROM subjects
		WHERE role = 'student' AND template_digest IS NOT NULL
		ORDER BY id
	`)
	return out, err
}

// CreateCourse inserts a course.
func (p *Postgres) CreateCourse(ctx context.Context, c model.Course) error {
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO courses (id, name, lecturer_id) VALUES (:id, :name, :lecturer_id)
	`, c)
	return err
}

func (p *Postgres) GetCourse(ctx context.Context, id string) (model.Course, error) {
	var c model.Course
	err := p.db.GetContext(ctx, &c, `SELECT id, name, lecturer_id FROM courses WHERE id = $1`, id)
	return c, notFound(err)
}

// AddStudentToCourse enrolls a student. The course's lecturer and subjects
// without the student role are refused. Adding twice is a no-op.
func (p *Postgres) AddStudentToCourse(ctx context.Context, courseID, studentID string) error {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO course_students (course_id, student_id)
		SELECT c.id, s.id FROM courses c JOIN subjects s ON s.id = $2
		WHERE c.id = $1 AND c.lecturer_id <> s.id AND s.role = 'student'
		ON CONFLICT (course_id, student_id) DO NOTHING
	`, courseID, studentID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	c, err := p.GetCourse(ctx, courseID)
	if err != nil {
		return err
	}
	s, err := p.GetSubject(ctx, studentID)
	if err != nil {
		return err
	}
	switch {
	case c.LecturerID == studentID:
		return ErrLecturerAsStudent
	case s.Role != model.RoleStudent:
		return ErrNotStudent
	}
	return nil
}

func (p *Postgres) IsEnrolled(ctx context.Context, courseID, subjectID string) (bool, error) {
	var ok bool
	err := p.db.GetContext(ctx, &ok, `
		SELECT EXISTS (SELECT 1 FROM course_students WHERE course_id = $1 AND student_id = $2)
	`, courseID, subjectID)
	return ok, err
}

// CreateSession inserts a session guarded by the one-active-per-course index.
func (p *Postgres) CreateSession(ctx context.Context, s model.ClassSession) error {
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO class_sessions (id, course_id, start_time, end_time, active)
		VALUES (:id, :course_id, :start_time, :end_time, :active)
	`, s)
	if violated(err, constraintActiveSession) {
		return ErrActiveSessionExists
	}
	return err
}

func (p *Postgres) GetSession(ctx context.Context, id string) (model.ClassSession, error) {
	var s model.ClassSession
	err := p.db.GetContext(ctx, &s, `
		SELECT id, course_id, start_time, end_time, active FROM class_sessions WHERE id = $1
	`, id)
	return s, notFound(err)
}

// EndSession transitions an active session to ended in a single conditional update.
func (p *Postgres) EndSession(ctx context.Context, id string, at time.Time) (model.ClassSession, error) {
	var s model.ClassSession
	err := p.db.GetContext(ctx, &s, `
		UPDATE class_sessions SET active = FALSE, end_time = $2
		WHERE id = $1 AND active
		RETURNING id, course_id, start_time, end_time, active
	`, id, at)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.ClassSession{}, err
	}
	if _, err := p.GetSession(ctx, id); err != nil {
		return model.ClassSession{}, err
	}
	return model.ClassSession{}, ErrSessionNotActive
}

func (p *Postgres) ActiveSession(ctx context.Context, courseID string) (model.ClassSession, error) {
	var s model.ClassSession
	err := p.db.GetContext(ctx, &s, `
		SELECT id, course_id, start_time, end_time, active
		FROM class_sessions WHERE course_id = $1 AND active
	`, courseID)
	return s, notFound(err)
}

func (p *Postgres) ListActiveSessions(ctx context.Context) ([]model.ClassSession, error) {
	var out []model.ClassSession
	err := p.db.SelectContext(ctx, &out, `
		SELECT id, course_id, start_time, end_time, active
		FROM class_sessions WHERE active ORDER BY start_time
	`)
	return out, err
}

// InsertRecord appends a ledger entry guarded by the (subject, session) unique key.
func (p *Postgres) InsertRecord(ctx context.Context, rec model.AttendanceRecord) error {
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO attendance_records (id, subject_id, session_id, status, recorded_at, device_id)
		VALUES (:id, :subject_id, :session_id, :status, :recorded_at, :device_id)
	`, rec)
	if violated(err, constraintRecordPair) {
		return ErrDuplicateRecord
	}
	return err
}

func (p *Postgres) GetRecord(ctx context.Context, id string) (model.AttendanceRecord, error) {
	var rec model.AttendanceRecord
	err := p.db.GetContext(ctx, &rec, `
		SELECT id, subject_id, session_id, status, recorded_at, device_id, amended_at
		FROM attendance_records WHERE id = $1
	`, id)
	return rec, notFound(err)
}

// UpdateRecordStatus rewrites only the status and amendment time.
func (p *Postgres) UpdateRecordStatus(ctx context.Context, id string, status model.Status, at time.Time) (model.AttendanceRecord, error) {
	var rec model.AttendanceRecord
	err := p.db.GetContext(ctx, &rec, `
		UPDATE attendance_records SET status = $2, amended_at = $3
		WHERE id = $1
		RETURNING id, subject_id, session_id, status, recorded_at, device_id, amended_at
	`, id, status, at)
	return rec, notFound(err)
}

func (p *Postgres) ListRecordsBySession(ctx context.Context, sessionID string) ([]model.AttendanceRecord, error) {
	var out []model.AttendanceRecord
	err := p.db.SelectContext(ctx, &out, `
		SELECT id, subject_id, session_id, status, recorded_at, device_id, amended_at
		FROM attendance_records WHERE session_id = $1 ORDER BY recorded_at
	`, sessionID)
	return out, err
}

// CreateDevice inserts a device; credential digests are unique.
func (p *Postgres) CreateDevice(ctx context.Context, d model.ScannerDevice) error {
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO scanner_devices (id, name, credential_digest, course_id, active, created_at)
		VALUES (:id, :name, :credential_digest, :course_id, :active, :created_at)
	`, d)
	if violated(err, constraintCredential) {
		return ErrCredentialTaken
	}
	return err
}

func (p *Postgres) GetDevice(ctx context.Context, id string) (model.ScannerDevice, error) {
	var d model.ScannerDevice
	err := p.db.GetContext(ctx, &d, `
		SELECT id, name, credential_digest, course_id, active, created_at
		FROM scanner_devices WHERE id = $1
	`, id)
	return d, notFound(err)
}

func (p *Postgres) DeviceByCredentialDigest(ctx context.Context, digest string) (model.ScannerDevice, error) {
	var d model.ScannerDevice
	err := p.db.GetContext(ctx, &d, `
		SELECT id, name, credential_digest, course_id, active, created_at
		FROM scanner_devices WHERE credential_digest = $1
	`, digest)
	return d, notFound(err)
}

func (p *Postgres) SetDeviceActive(ctx context.Context, id string, active bool) error {
	res, err := p.db.ExecContext(ctx, `UPDATE scanner_devices SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertCaptureLog appends a provenance entry.
func (p *Postgres) InsertCaptureLog(ctx context.Context, l model.CaptureLog) error {
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO capture_log (id, device_id, subject_id, session_id, outcome, occurred_at)
		VALUES (:id, :device_id, :subject_id, :session_id, :outcome, :occurred_at)
		ON CONFLICT (id) DO NOTHING
	`, l)
	return err
}
