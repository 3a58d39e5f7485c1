package store

// Constraint names referenced when translating unique violations.
const (
	constraintDigest        = "subjects_template_digest_key"
	constraintActiveSession = "class_sessions_one_active_per_course"
	constraintRecordPair    = "attendance_records_subject_session_key"
	constraintCredential    = "scanner_devices_credential_digest_key"
)

const schema = `
CREATE TABLE IF NOT EXISTS subjects (
	id              TEXT PRIMARY KEY,
	username        TEXT NOT NULL UNIQUE,
	role            TEXT NOT NULL CHECK (role IN ('admin', 'lecturer', 'student')),
	template_digest TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT subjects_template_digest_key UNIQUE (template_digest),
	CONSTRAINT subjects_digest_students_only CHECK (template_digest IS NULL OR role = 'student')
);

CREATE TABLE IF NOT EXISTS courses (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	lecturer_id TEXT NOT NULL REFERENCES subjects(id)
);

CREATE TABLE IF NOT EXISTS course_students (
	course_id  TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
	student_id TEXT NOT NULL REFERENCES subjects(id) ON DELETE CASCADE,
	PRIMARY KEY (course_id, student_id)
);

CREATE TABLE IF NOT EXISTS class_sessions (
	id         TEXT PRIMARY KEY,
	course_id  TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
	start_time TIMESTAMPTZ NOT NULL,
	end_time   TIMESTAMPTZ,
	active     BOOLEAN NOT NULL DEFAULT FALSE,
	CONSTRAINT class_sessions_active_open CHECK (active = (end_time IS NULL))
);

CREATE UNIQUE INDEX IF NOT EXISTS class_sessions_one_active_per_course
	ON class_sessions (course_id) WHERE active;

CREATE TABLE IF NOT EXISTS scanner_devices (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	credential_digest TEXT NOT NULL,
	course_id         TEXT REFERENCES courses(id) ON DELETE SET NULL,
	active            BOOLEAN NOT NULL DEFAULT TRUE,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT scanner_devices_credential_digest_key UNIQUE (credential_digest)
);

CREATE TABLE IF NOT EXISTS attendance_records (
	id          TEXT PRIMARY KEY,
	subject_id  TEXT NOT NULL REFERENCES subjects(id),
	session_id  TEXT NOT NULL REFERENCES class_sessions(id),
	status      TEXT NOT NULL CHECK (status IN ('present', 'absent', 'late', 'excused')),
	recorded_at TIMESTAMPTZ NOT NULL,
	device_id   TEXT REFERENCES scanner_devices(id) ON DELETE SET NULL,
	amended_at  TIMESTAMPTZ,
	CONSTRAINT attendance_records_subject_session_key UNIQUE (subject_id, session_id)
);

CREATE TABLE IF NOT EXISTS capture_log (
	id          TEXT PRIMARY KEY,
	device_id   TEXT NOT NULL,
	subject_id  TEXT,
	session_id  TEXT,
	outcome     TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS capture_log_device_time ON capture_log (device_id, occurred_at);
`
