package store

import "errors"

// Constraint outcomes shared by the Postgres and in-memory stores. Each one
// corresponds to a database constraint, not an application-level pre-check.
var (
	ErrNotFound            = errors.New("record not found")
	ErrActiveSessionExists = errors.New("course already has an active session")
	ErrSessionNotActive    = errors.New("session is not active")
	ErrDuplicateRecord     = errors.New("attendance record exists for subject and session")
	ErrDigestAlreadySet    = errors.New("subject already has a template digest")
	ErrDigestTaken         = errors.New("template digest belongs to another subject")
	ErrCredentialTaken     = errors.New("device credential digest already provisioned")
	ErrLecturerAsStudent   = errors.New("course lecturer cannot be enrolled as a student")
	ErrNotStudent          = errors.New("only students can be enrolled in a course")
)
