// Package ledger keeps exactly one attendance record per (subject, session).
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lectureattend/internal/apperrors"
	"lectureattend/internal/authz"
	"lectureattend/internal/model"
	"lectureattend/internal/store"
)

type repository interface {
	InsertRecord(ctx context.Context, rec model.AttendanceRecord) error
	GetRecord(ctx context.Context, id string) (model.AttendanceRecord, error)
	UpdateRecordStatus(ctx context.Context, id string, status model.Status, at time.Time) (model.AttendanceRecord, error)
}

// Ledger records and amends attendance.
type Ledger struct {
	repo   repository
	logger *zap.Logger
	now    func() time.Time
}

// New creates a ledger backed by repo.
func New(repo repository, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{repo: repo, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Record creates the record for (subjectID, sessionID). A second record for
// the same pair is refused with ErrDuplicateConflict and the first one is
// left untouched. deviceID is nil for records not created by a scanner.
func (l *Ledger) Record(ctx context.Context, subjectID, sessionID string, status model.Status, deviceID *string) (model.AttendanceRecord, error) {
	if !status.Valid() {
		return model.AttendanceRecord{}, apperrors.Clone(apperrors.ErrValidation, "unknown attendance status")
	}
	rec := model.AttendanceRecord{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		SessionID: sessionID,
		Status:    status,
		Timestamp: l.now(),
		DeviceID:  deviceID,
	}
	if err := l.repo.InsertRecord(ctx, rec); err != nil {
		if errors.Is(err, store.ErrDuplicateRecord) {
			return model.AttendanceRecord{}, apperrors.ErrDuplicateConflict
		}
		return model.AttendanceRecord{}, fmt.Errorf("insert record: %w", err)
	}
	l.logger.Debug("attendance recorded",
		zap.String("record_id", rec.ID),
		zap.String("subject_id", subjectID),
		zap.String("session_id", sessionID),
		zap.String("status", string(status)),
	)
	return rec, nil
}

// Amend overrides the status of an existing record. Only administrators may
// amend; identity, session and creation timestamp are preserved.
func (l *Ledger) Amend(ctx context.Context, recordID string, status model.Status, requester authz.Principal) (model.AttendanceRecord, error) {
	if !authz.Can(requester, authz.AmendRecord, authz.Resource{}) {
		return model.AttendanceRecord{}, apperrors.ErrForbidden
	}
	if !status.Valid() {
		return model.AttendanceRecord{}, apperrors.Clone(apperrors.ErrValidation, "unknown attendance status")
	}
	rec, err := l.repo.UpdateRecordStatus(ctx, recordID, status, l.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.AttendanceRecord{}, apperrors.Clone(apperrors.ErrNotFound, "record not found")
		}
		return model.AttendanceRecord{}, fmt.Errorf("amend record: %w", err)
	}
	l.logger.Info("attendance amended",
		zap.String("record_id", rec.ID),
		zap.String("status", string(status)),
		zap.String("by", requester.ID),
	)
	return rec, nil
}

// Get returns a record by id.
func (l *Ledger) Get(ctx context.Context, recordID string) (model.AttendanceRecord, error) {
	rec, err := l.repo.GetRecord(ctx, recordID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.AttendanceRecord{}, apperrors.Clone(apperrors.ErrNotFound, "record not found")
		}
		return model.AttendanceRecord{}, fmt.Errorf("load record: %w", err)
	}
	return rec, nil
}
