package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lectureattend/internal/model"
)

var sessionColumns = []string{"id", "course_id", "start_time", "end_time", "active"}

func newPostgresMock(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgres(sqlx.NewDb(db, "pgx")), mock
}

func TestPostgresCreateSessionActiveConflict(t *testing.T) {
	p, mock := newPostgresMock(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO class_sessions (id, course_id, start_time, end_time, active)")).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: constraintActiveSession})

	err := p.CreateSession(context.Background(), model.ClassSession{ID: "s1", CourseID: "c1", StartTime: time.Now(), Active: true})
	assert.ErrorIs(t, err, ErrActiveSessionExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertRecordDuplicate(t *testing.T) {
	p, mock := newPostgresMock(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: constraintRecordPair})

	err := p.InsertRecord(context.Background(), model.AttendanceRecord{ID: "r1", SubjectID: "stu", SessionID: "s1", Status: model.StatusPresent, Timestamp: time.Now()})
	assert.ErrorIs(t, err, ErrDuplicateRecord)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertRecordOtherViolationPassesThrough(t *testing.T) {
	p, mock := newPostgresMock(t)

	pgErr := &pgconn.PgError{Code: "23503", ConstraintName: "attendance_records_session_id_fkey"}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance_records")).WillReturnError(pgErr)

	err := p.InsertRecord(context.Background(), model.AttendanceRecord{ID: "r1", SubjectID: "stu", SessionID: "s1", Status: model.StatusPresent})
	assert.ErrorIs(t, err, pgErr)
	assert.NotErrorIs(t, err, ErrDuplicateRecord)
}

func TestPostgresSetTemplateDigest(t *testing.T) {
	t.Run("written", func(t *testing.T) {
		p, mock := newPostgresMock(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE subjects SET template_digest = $2")).
			WithArgs("stu-1", "abc").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, p.SetTemplateDigest(context.Background(), "stu-1", "abc"))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already set", func(t *testing.T) {
		p, mock := newPostgresMock(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE subjects SET template_digest = $2")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM subjects WHERE id = $1)")).
			WithArgs("stu-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		assert.ErrorIs(t, p.SetTemplateDigest(context.Background(), "stu-1", "abc"), ErrDigestAlreadySet)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown subject", func(t *testing.T) {
		p, mock := newPostgresMock(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE subjects SET template_digest = $2")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		assert.ErrorIs(t, p.SetTemplateDigest(context.Background(), "ghost", "abc"), ErrNotFound)
	})

	t.Run("digest owned by someone else", func(t *testing.T) {
		p, mock := newPostgresMock(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE subjects SET template_digest = $2")).
			WillReturnError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: constraintDigest})

		assert.ErrorIs(t, p.SetTemplateDigest(context.Background(), "stu-2", "abc"), ErrDigestTaken)
	})
}

func TestPostgresEndSession(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	t.Run("active session ends", func(t *testing.T) {
		p, mock := newPostgresMock(t)
		end := now.Add(time.Hour)
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE class_sessions SET active = FALSE, end_time = $2")).
			WithArgs("s1", end).
			WillReturnRows(sqlmock.NewRows(sessionColumns).AddRow("s1", "c1", now, end, false))

		s, err := p.EndSession(context.Background(), "s1", end)
		require.NoError(t, err)
		assert.False(t, s.Active)
		require.NotNil(t, s.EndTime)
		assert.Equal(t, end, *s.EndTime)
	})

	t.Run("already ended", func(t *testing.T) {
		p, mock := newPostgresMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE class_sessions SET active = FALSE")).
			WillReturnRows(sqlmock.NewRows(sessionColumns))
		mock.ExpectQuery(regexp.QuoteMeta("FROM class_sessions WHERE id = $1")).
			WithArgs("s1").
			WillReturnRows(sqlmock.NewRows(sessionColumns).AddRow("s1", "c1", now, now, false))

		_, err := p.EndSession(context.Background(), "s1", now)
		assert.ErrorIs(t, err, ErrSessionNotActive)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		p, mock := newPostgresMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE class_sessions SET active = FALSE")).
			WillReturnRows(sqlmock.NewRows(sessionColumns))
		mock.ExpectQuery(regexp.QuoteMeta("FROM class_sessions WHERE id = $1")).
			WillReturnRows(sqlmock.NewRows(sessionColumns))

		_, err := p.EndSession(context.Background(), "nope", now)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestPostgresActiveSessionLookup(t *testing.T) {
	p, mock := newPostgresMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM class_sessions WHERE course_id = $1 AND active")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(sessionColumns).AddRow("s7", "c1", now, nil, true))
	mock.ExpectQuery(regexp.QuoteMeta("FROM class_sessions WHERE course_id = $1 AND active")).
		WithArgs("c2").
		WillReturnRows(sqlmock.NewRows(sessionColumns))

	s, err := p.ActiveSession(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "s7", s.ID)
	assert.Nil(t, s.EndTime)

	_, err = p.ActiveSession(context.Background(), "c2")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeviceByCredentialDigest(t *testing.T) {
	p, mock := newPostgresMock(t)
	course := "c1"

	mock.ExpectQuery(regexp.QuoteMeta("FROM scanner_devices WHERE credential_digest = $1")).
		WithArgs("digest").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "credential_digest", "course_id", "active", "created_at"}).
			AddRow("dev-1", "Lab A", "digest", course, true, time.Now()))

	d, err := p.DeviceByCredentialDigest(context.Background(), "digest")
	require.NoError(t, err)
	assert.Equal(t, "dev-1", d.ID)
	require.NotNil(t, d.CourseID)
	assert.Equal(t, course, *d.CourseID)
	assert.True(t, d.Active)
}

func TestPostgresSetDeviceActiveMissing(t *testing.T) {
	p, mock := newPostgresMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE scanner_devices SET active = $2 WHERE id = $1")).
		WithArgs("dev-9", false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, p.SetDeviceActive(context.Background(), "dev-9", false), ErrNotFound)
}

func TestPostgresAddStudentToCourse(t *testing.T) {
	subjectColumns := []string{"id", "username", "role", "template_digest", "created_at"}

	t.Run("inserted", func(t *testing.T) {
		p, mock := newPostgresMock(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO course_students")).
			WithArgs("c1", "stu-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, p.AddStudentToCourse(context.Background(), "c1", "stu-1"))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("foreign key violation is not found", func(t *testing.T) {
		p, mock := newPostgresMock(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO course_students")).
			WillReturnError(&pgconn.PgError{Code: foreignKeyViolation, ConstraintName: "course_students_student_id_fkey"})

		assert.ErrorIs(t, p.AddStudentToCourse(context.Background(), "c1", "ghost"), ErrNotFound)
	})

	t.Run("rows affected error surfaces", func(t *testing.T) {
		p, mock := newPostgresMock(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO course_students")).
			WillReturnResult(sqlmock.NewErrorResult(errors.New("driver lost count")))

		assert.EqualError(t, p.AddStudentToCourse(context.Background(), "c1", "stu-1"), "driver lost count")
	})

	t.Run("unknown student", func(t *testing.T) {
		p, mock := newPostgresMock(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO course_students")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE id = $1")).
			WithArgs("c1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "lecturer_id"}).AddRow("c1", "Optics", "lec-1"))
		mock.ExpectQuery(regexp.QuoteMeta("FROM subjects WHERE id = $1")).
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows(subjectColumns))

		assert.ErrorIs(t, p.AddStudentToCourse(context.Background(), "c1", "ghost"), ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-student refused", func(t *testing.T) {
		p, mock := newPostgresMock(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO course_students")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE id = $1")).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "lecturer_id"}).AddRow("c1", "Optics", "lec-1"))
		mock.ExpectQuery(regexp.QuoteMeta("FROM subjects WHERE id = $1")).
			WithArgs("adm-1").
			WillReturnRows(sqlmock.NewRows(subjectColumns).AddRow("adm-1", "root", "admin", nil, time.Now()))

		assert.ErrorIs(t, p.AddStudentToCourse(context.Background(), "c1", "adm-1"), ErrNotStudent)
	})

	t.Run("lecturer refused", func(t *testing.T) {
		p, mock := newPostgresMock(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO course_students")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE id = $1")).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "lecturer_id"}).AddRow("c1", "Optics", "lec-1"))
		mock.ExpectQuery(regexp.QuoteMeta("FROM subjects WHERE id = $1")).
			WillReturnRows(sqlmock.NewRows(subjectColumns).AddRow("lec-1", "lee", "lecturer", nil, time.Now()))

		assert.ErrorIs(t, p.AddStudentToCourse(context.Background(), "c1", "lec-1"), ErrLecturerAsStudent)
	})
}
