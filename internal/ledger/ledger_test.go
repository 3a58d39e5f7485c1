package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lectureattend/internal/apperrors"
	"lectureattend/internal/authz"
	"lectureattend/internal/model"
	"lectureattend/internal/store"
)

var admin = authz.Principal{ID: "adm-1", Role: model.RoleAdmin}

func TestRecordOncePerPair(t *testing.T) {
	l := New(store.NewMemory(), nil)
	ctx := context.Background()
	device := "dev-1"

	rec, err := l.Record(ctx, "stu-1", "s1", model.StatusPresent, &device)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPresent, rec.Status)
	require.NotNil(t, rec.DeviceID)

	_, err = l.Record(ctx, "stu-1", "s1", model.StatusLate, nil)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateConflict)

	kept, err := l.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPresent, kept.Status)

	_, err = l.Record(ctx, "stu-1", "s2", model.StatusPresent, nil)
	assert.NoError(t, err)
	_, err = l.Record(ctx, "stu-2", "s1", model.StatusPresent, nil)
	assert.NoError(t, err)
}

func TestRecordRejectsUnknownStatus(t *testing.T) {
	l := New(store.NewMemory(), nil)
	_, err := l.Record(context.Background(), "stu-1", "s1", model.Status("asleep"), nil)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestAmendPreservesIdentity(t *testing.T) {
	l := New(store.NewMemory(), nil)
	ctx := context.Background()
	created := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return created }

	rec, err := l.Record(ctx, "stu-1", "s1", model.StatusPresent, nil)
	require.NoError(t, err)

	l.now = func() time.Time { return created.Add(2 * time.Hour) }
	amended, err := l.Amend(ctx, rec.ID, model.StatusExcused, admin)
	require.NoError(t, err)

	assert.Equal(t, rec.ID, amended.ID)
	assert.Equal(t, rec.SubjectID, amended.SubjectID)
	assert.Equal(t, rec.SessionID, amended.SessionID)
	assert.Equal(t, created, amended.Timestamp)
	assert.Equal(t, model.StatusExcused, amended.Status)
	require.NotNil(t, amended.AmendedAt)
	assert.Equal(t, created.Add(2*time.Hour), *amended.AmendedAt)
}

func TestAmendRejections(t *testing.T) {
	l := New(store.NewMemory(), nil)
	ctx := context.Background()
	rec, err := l.Record(ctx, "stu-1", "s1", model.StatusPresent, nil)
	require.NoError(t, err)

	tests := []struct {
		name      string
		recordID  string
		status    model.Status
		requester authz.Principal
		want      error
	}{
		{"lecturer", rec.ID, model.StatusAbsent, authz.Principal{ID: "lec-1", Role: model.RoleLecturer}, apperrors.ErrForbidden},
		{"student", rec.ID, model.StatusAbsent, authz.Principal{ID: "stu-1", Role: model.RoleStudent}, apperrors.ErrForbidden},
		{"forbidden wins over bad status", rec.ID, model.Status("x"), authz.Principal{ID: "stu-1", Role: model.RoleStudent}, apperrors.ErrForbidden},
		{"bad status", rec.ID, model.Status("x"), admin, apperrors.ErrValidation},
		{"missing record", "r404", model.StatusAbsent, admin, apperrors.ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.Amend(ctx, tc.recordID, tc.status, tc.requester)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	still, err := l.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPresent, still.Status)
	assert.Nil(t, still.AmendedAt)
}
