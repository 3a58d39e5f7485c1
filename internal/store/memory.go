package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"lectureattend/internal/model"
)

type pairKey struct {
	subjectID string
	sessionID string
}

// Memory is an in-process store for development and tests. A single lock
// guards every map so conditional writes are atomic, mirroring the unique
// constraints of the Postgres schema.
type Memory struct {
	mu sync.RWMutex

	subjects       map[string]model.Subject
	digestOwner    map[string]string
	courses        map[string]model.Course
	roster         map[string]map[string]struct{}
	sessions       map[string]model.ClassSession
	activeByCourse map[string]string
	records        map[string]model.AttendanceRecord
	recordByPair   map[pairKey]string
	devices        map[string]model.ScannerDevice
	deviceByDigest map[string]string
	captureLogs    []model.CaptureLog
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		subjects:       make(map[string]model.Subject),
		digestOwner:    make(map[string]string),
		courses:        make(map[string]model.Course),
		roster:         make(map[string]map[string]struct{}),
		sessions:       make(map[string]model.ClassSession),
		activeByCourse: make(map[string]string),
		records:        make(map[string]model.AttendanceRecord),
		recordByPair:   make(map[pairKey]string),
		devices:        make(map[string]model.ScannerDevice),
		deviceByDigest: make(map[string]string),
	}
}

// Healthy always reports true for the in-memory store.
func (m *Memory) Healthy(context.Context) bool { return true }

// Close is a no-op.
func (m *Memory) Close() error { return nil }

// CreateSubject inserts a subject.
func (m *Memory) CreateSubject(_ context.Context, s model.Subject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.Enrolled() {
		if _, taken := m.digestOwner[*s.TemplateDigest]; taken {
			return ErrDigestTaken
		}
		m.digestOwner[*s.TemplateDigest] = s.ID
	}
	m.subjects[s.ID] = s
	return nil
}

func (m *Memory) GetSubject(_ context.Context, id string) (model.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subjects[id]
	if !ok {
		return model.Subject{}, ErrNotFound
	}
	return s, nil
}

// SetTemplateDigest sets the digest only when none is stored yet.
func (m *Memory) SetTemplateDigest(_ context.Context, subjectID, digest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subjects[subjectID]
	if !ok {
		return ErrNotFound
	}
	if s.Enrolled() {
		return ErrDigestAlreadySet
	}
	if _, taken := m.digestOwner[digest]; taken {
		return ErrDigestTaken
	}
	s.TemplateDigest = &digest
	m.subjects[subjectID] = s
	m.digestOwner[digest] = subjectID
	return nil
}

// ListEnrolledStudents returns students that have a stored digest.
func (m *Memory) ListEnrolledStudents(_ context.Context) ([]model.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Subject, 0, len(m.digestOwner))
	for _, s := range m.subjects {
		if s.Role == model.RoleStudent && s.Enrolled() {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateCourse inserts a course.
func (m *Memory) CreateCourse(_ context.Context, c model.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses[c.ID] = c
	m.roster[c.ID] = make(map[string]struct{})
	return nil
}

func (m *Memory) GetCourse(_ context.Context, id string) (model.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return model.Course{}, ErrNotFound
	}
	return c, nil
}

// AddStudentToCourse enrolls a student in a course. Adding twice is a no-op.
func (m *Memory) AddStudentToCourse(_ context.Context, courseID, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[courseID]
	if !ok {
		return ErrNotFound
	}
	s, ok := m.subjects[studentID]
	if !ok {
		return ErrNotFound
	}
	if c.LecturerID == studentID {
		return ErrLecturerAsStudent
	}
	if s.Role != model.RoleStudent {
		return ErrNotStudent
	}
	m.roster[courseID][studentID] = struct{}{}
	return nil
}

func (m *Memory) IsEnrolled(_ context.Context, courseID, subjectID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.roster[courseID][subjectID]
	return ok, nil
}

// CreateSession inserts a session. An active session is refused when its
// course already has one.
func (m *Memory) CreateSession(_ context.Context, s model.ClassSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Active {
		if _, exists := m.activeByCourse[s.CourseID]; exists {
			return ErrActiveSessionExists
		}
		m.activeByCourse[s.CourseID] = s.ID
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *Memory) GetSession(_ context.Context, id string) (model.ClassSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return model.ClassSession{}, ErrNotFound
	}
	return s, nil
}

// EndSession flips an active session to ended.
func (m *Memory) EndSession(_ context.Context, id string, at time.Time) (model.ClassSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return model.ClassSession{}, ErrNotFound
	}
	if !s.Active {
		return model.ClassSession{}, ErrSessionNotActive
	}
	s.Active = false
	s.EndTime = &at
	m.sessions[id] = s
	delete(m.activeByCourse, s.CourseID)
	return s, nil
}

func (m *Memory) ActiveSession(_ context.Context, courseID string) (model.ClassSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.activeByCourse[courseID]
	if !ok {
		return model.ClassSession{}, ErrNotFound
	}
	return m.sessions[id], nil
}

func (m *Memory) ListActiveSessions(_ context.Context) ([]model.ClassSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ClassSession, 0, len(m.activeByCourse))
	for _, id := range m.activeByCourse {
		out = append(out, m.sessions[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// InsertRecord appends a ledger entry unless one exists for the pair.
func (m *Memory) InsertRecord(_ context.Context, rec model.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey{subjectID: rec.SubjectID, sessionID: rec.SessionID}
	if _, exists := m.recordByPair[key]; exists {
		return ErrDuplicateRecord
	}
	m.recordByPair[key] = rec.ID
	m.records[rec.ID] = rec
	return nil
}

func (m *Memory) GetRecord(_ context.Context, id string) (model.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return model.AttendanceRecord{}, ErrNotFound
	}
	return rec, nil
}

// UpdateRecordStatus rewrites only the status and amendment time.
func (m *Memory) UpdateRecordStatus(_ context.Context, id string, status model.Status, at time.Time) (model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return model.AttendanceRecord{}, ErrNotFound
	}
	rec.Status = status
	rec.AmendedAt = &at
	m.records[id] = rec
	return rec, nil
}

func (m *Memory) ListRecordsBySession(_ context.Context, sessionID string) ([]model.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.AttendanceRecord
	for _, rec := range m.records {
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// CreateDevice inserts a device; credential digests are unique.
func (m *Memory) CreateDevice(_ context.Context, d model.ScannerDevice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.deviceByDigest[d.CredentialDigest]; taken {
		return ErrCredentialTaken
	}
	m.deviceByDigest[d.CredentialDigest] = d.ID
	m.devices[d.ID] = d
	return nil
}

func (m *Memory) GetDevice(_ context.Context, id string) (model.ScannerDevice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[id]
	if !ok {
		return model.ScannerDevice{}, ErrNotFound
	}
	return d, nil
}

func (m *Memory) DeviceByCredentialDigest(_ context.Context, digest string) (model.ScannerDevice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.deviceByDigest[digest]
	if !ok {
		return model.ScannerDevice{}, ErrNotFound
	}
	return m.devices[id], nil
}

func (m *Memory) SetDeviceActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return ErrNotFound
	}
	d.Active = active
	m.devices[id] = d
	return nil
}

func (m *Memory) InsertCaptureLog(_ context.Context, l model.CaptureLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captureLogs = append(m.captureLogs, l)
	return nil
}

// CaptureLogs returns a copy of the provenance log.
func (m *Memory) CaptureLogs() []model.CaptureLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.CaptureLog(nil), m.captureLogs...)
}
