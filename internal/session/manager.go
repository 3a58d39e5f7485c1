// Package session owns the lifecycle of class sessions: at most one active
// session per course, ended at most once, never reopened.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lectureattend/internal/apperrors"
	"lectureattend/internal/authz"
	"lectureattend/internal/metrics"
	"lectureattend/internal/model"
	"lectureattend/internal/store"
)

type repository interface {
	GetCourse(ctx context.Context, id string) (model.Course, error)
	GetSession(ctx context.Context, id string) (model.ClassSession, error)
	CreateSession(ctx context.Context, s model.ClassSession) error
	EndSession(ctx context.Context, id string, at time.Time) (model.ClassSession, error)
	ActiveSession(ctx context.Context, courseID string) (model.ClassSession, error)
	ListActiveSessions(ctx context.Context) ([]model.ClassSession, error)
}

// Manager starts and ends class sessions.
type Manager struct {
	repo   repository
	logger *zap.Logger
	now    func() time.Time
}

// NewManager creates a manager backed by repo.
func NewManager(repo repository, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{repo: repo, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Start opens a session for courseID. Only the course's lecturer may start
// it, and only when no other session of the course is active.
func (m *Manager) Start(ctx context.Context, courseID string, requester authz.Principal) (model.ClassSession, error) {
	course, err := m.course(ctx, courseID)
	if err != nil {
		return model.ClassSession{}, err
	}
	if !authz.Can(requester, authz.StartSession, authz.Resource{OwnerID: course.LecturerID}) {
		return model.ClassSession{}, apperrors.ErrForbidden
	}

	s := model.ClassSession{
		ID:        uuid.NewString(),
		CourseID:  course.ID,
		StartTime: m.now(),
		Active:    true,
	}
	if err := m.repo.CreateSession(ctx, s); err != nil {
		if errors.Is(err, store.ErrActiveSessionExists) {
			m.logger.Info("session start refused", zap.String("course_id", courseID), zap.String("kind", apperrors.ErrConflict.Code))
			return model.ClassSession{}, apperrors.ErrConflict
		}
		return model.ClassSession{}, fmt.Errorf("create session: %w", err)
	}
	metrics.SessionTransitions.WithLabelValues("start").Inc()
	m.logger.Info("session started", zap.String("session_id", s.ID), zap.String("course_id", s.CourseID))
	return s, nil
}

// End closes an active session. A session that already ended stays ended.
func (m *Manager) End(ctx context.Context, sessionID string, requester authz.Principal) (model.ClassSession, error) {
	s, err := m.repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.ClassSession{}, apperrors.Clone(apperrors.ErrNotFound, "session not found")
		}
		return model.ClassSession{}, fmt.Errorf("load session: %w", err)
	}
	course, err := m.course(ctx, s.CourseID)
	if err != nil {
		return model.ClassSession{}, err
	}
	if !authz.Can(requester, authz.EndSession, authz.Resource{OwnerID: course.LecturerID}) {
		return model.ClassSession{}, apperrors.ErrForbidden
	}

	ended, err := m.repo.EndSession(ctx, sessionID, m.now())
	switch {
	case err == nil:
	case errors.Is(err, store.ErrSessionNotActive):
		return model.ClassSession{}, apperrors.ErrAlreadyEnded
	case errors.Is(err, store.ErrNotFound):
		return model.ClassSession{}, apperrors.Clone(apperrors.ErrNotFound, "session not found")
	default:
		return model.ClassSession{}, fmt.Errorf("end session: %w", err)
	}
	metrics.SessionTransitions.WithLabelValues("end").Inc()
	m.logger.Info("session ended", zap.String("session_id", ended.ID), zap.String("course_id", ended.CourseID))
	return ended, nil
}

// Current returns the active session of courseID, if any.
func (m *Manager) Current(ctx context.Context, courseID string) (model.ClassSession, bool, error) {
	s, err := m.repo.ActiveSession(ctx, courseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.ClassSession{}, false, nil
		}
		return model.ClassSession{}, false, fmt.Errorf("active session: %w", err)
	}
	return s, true, nil
}

// ActiveSessions lists every active session across courses.
func (m *Manager) ActiveSessions(ctx context.Context) ([]model.ClassSession, error) {
	sessions, err := m.repo.ListActiveSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return sessions, nil
}

func (m *Manager) course(ctx context.Context, id string) (model.Course, error) {
	c, err := m.repo.GetCourse(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Course{}, apperrors.Clone(apperrors.ErrNotFound, "course not found")
		}
		return model.Course{}, fmt.Errorf("load course: %w", err)
	}
	return c, nil
}
