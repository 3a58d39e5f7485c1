package store

import (
	"context"
	"fmt"
	"time"

	"lectureattend/internal/model"
)

// Store is implemented by Memory and Postgres.
type Store interface {
	Healthy(ctx context.Context) bool
	Close() error

	CreateSubject(ctx context.Context, s model.Subject) error
	GetSubject(ctx context.Context, id string) (model.Subject, error)
	SetTemplateDigest(ctx context.Context, subjectID, digest string) error
	ListEnrolledStudents(ctx context.Context) ([]model.Subject, error)

	CreateCourse(ctx context.Context, c model.Course) error
	GetCourse(ctx context.Context, id string) (model.Course, error)
	AddStudentToCourse(ctx context.Context, courseID, studentID string) error
	IsEnrolled(ctx context.Context, courseID, subjectID string) (bool, error)

	CreateSession(ctx context.Context, s model.ClassSession) error
	GetSession(ctx context.Context, id string) (model.ClassSession, error)
	EndSession(ctx context.Context, id string, at time.Time) (model.ClassSession, error)
	ActiveSession(ctx context.Context, courseID string) (model.ClassSession, error)
	ListActiveSessions(ctx context.Context) ([]model.ClassSession, error)

	InsertRecord(ctx context.Context, rec model.AttendanceRecord) error
	GetRecord(ctx context.Context, id string) (model.AttendanceRecord, error)
	UpdateRecordStatus(ctx context.Context, id string, status model.Status, at time.Time) (model.AttendanceRecord, error)
	ListRecordsBySession(ctx context.Context, sessionID string) ([]model.AttendanceRecord, error)

	CreateDevice(ctx context.Context, d model.ScannerDevice) error
	GetDevice(ctx context.Context, id string) (model.ScannerDevice, error)
	DeviceByCredentialDigest(ctx context.Context, digest string) (model.ScannerDevice, error)
	SetDeviceActive(ctx context.Context, id string, active bool) error

	InsertCaptureLog(ctx context.Context, l model.CaptureLog) error
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Postgres)(nil)
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Open returns the configured backend. Postgres is migrated on open.
func Open(ctx context.Context, backend, databaseURL string) (Store, error) {
	switch backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendPostgres, "":
		db, err := NewDB(ctx, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		p := NewPostgres(db)
		if err := p.Migrate(ctx); err != nil {
			_ = p.Close()
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
