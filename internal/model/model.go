package model

import "time"

// Role classifies a subject.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleLecturer Role = "lecturer"
	RoleStudent  Role = "student"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleLecturer, RoleStudent:
		return true
	}
	return false
}

// Status is the outcome recorded for a subject in a session.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
	StatusExcused Status = "excused"
)

// Valid reports whether s is a known attendance status.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusExcused:
		return true
	}
	return false
}

// Subject is a person known to the system. TemplateDigest is only ever set for students.
type Subject struct {
	ID             string    `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	Role           Role      `db:"role" json:"role"`
	TemplateDigest *string   `db:"template_digest" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Enrolled reports whether the subject has a stored template digest.
func (s Subject) Enrolled() bool {
	return s.TemplateDigest != nil && *s.TemplateDigest != ""
}

// Course is owned by exactly one lecturer.
type Course struct {
	ID         string `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	LecturerID string `db:"lecturer_id" json:"lecturer_id"`
}

// ClassSession is one timed meeting of a course.
type ClassSession struct {
	ID        string     `db:"id" json:"id"`
	CourseID  string     `db:"course_id" json:"course_id"`
	StartTime time.Time  `db:"start_time" json:"start_time"`
	EndTime   *time.Time `db:"end_time" json:"end_time,omitempty"`
	Active    bool       `db:"active" json:"active"`
}

// AttendanceRecord is the single ledger entry for a (subject, session) pair.
type AttendanceRecord struct {
	ID        string     `db:"id" json:"id"`
	SubjectID string     `db:"subject_id" json:"subject_id"`
	SessionID string     `db:"session_id" json:"session_id"`
	Status    Status     `db:"status" json:"status"`
	Timestamp time.Time  `db:"recorded_at" json:"timestamp"`
	DeviceID  *string    `db:"device_id" json:"device_id,omitempty"`
	AmendedAt *time.Time `db:"amended_at" json:"amended_at,omitempty"`
}

// ScannerDevice is a provisioned capture device. Only the credential digest is stored.
type ScannerDevice struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	CredentialDigest string    `db:"credential_digest" json:"-"`
	CourseID         *string   `db:"course_id" json:"course_id,omitempty"`
	Active           bool      `db:"active" json:"active"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// CaptureLog is one provenance entry for a capture attempt.
type CaptureLog struct {
	ID         string    `db:"id" json:"id"`
	DeviceID   string    `db:"device_id" json:"device_id"`
	SubjectID  *string   `db:"subject_id" json:"subject_id,omitempty"`
	SessionID  *string   `db:"session_id" json:"session_id,omitempty"`
	Outcome    string    `db:"outcome" json:"outcome"`
	OccurredAt time.Time `db:"occurred_at" json:"occurred_at"`
}
