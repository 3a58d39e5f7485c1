// Package vault keeps one-way digests of enrolled biometric templates. Raw
// templates are never stored, logged or returned.
package vault

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"lectureattend/internal/apperrors"
	"lectureattend/internal/authz"
	"lectureattend/internal/model"
	"lectureattend/internal/store"
)

// DigestOf returns the hex SHA-256 digest of raw.
func DigestOf(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Equal compares two digests in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Matches recomputes the digest of raw and compares it to digest.
func Matches(digest, raw string) bool {
	return Equal(digest, DigestOf(raw))
}

type repository interface {
	GetSubject(ctx context.Context, id string) (model.Subject, error)
	SetTemplateDigest(ctx context.Context, subjectID, digest string) error
}

// Vault enrolls templates for students.
type Vault struct {
	repo   repository
	logger *zap.Logger
}

// New creates a vault backed by repo.
func New(repo repository, logger *zap.Logger) *Vault {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Vault{repo: repo, logger: logger}
}

// Enroll stores the digest of rawTemplate for subjectID. Enrollment happens
// once; a second call returns ErrAlreadyEnrolled and leaves the digest as is.
func (v *Vault) Enroll(ctx context.Context, requester authz.Principal, subjectID, rawTemplate string) error {
	if strings.TrimSpace(rawTemplate) == "" {
		return apperrors.Clone(apperrors.ErrValidation, "template is required")
	}
	if !authz.Can(requester, authz.EnrollTemplate, authz.Resource{SubjectID: subjectID}) {
		return apperrors.ErrForbidden
	}

	subject, err := v.repo.GetSubject(ctx, subjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.Clone(apperrors.ErrNotFound, "subject not found")
		}
		return fmt.Errorf("load subject: %w", err)
	}
	if subject.Role != model.RoleStudent {
		return apperrors.Clone(apperrors.ErrForbidden, "only students enroll templates")
	}
	if subject.Enrolled() {
		return apperrors.ErrAlreadyEnrolled
	}

	err = v.repo.SetTemplateDigest(ctx, subjectID, DigestOf(rawTemplate))
	switch {
	case err == nil:
		v.logger.Info("template enrolled", zap.String("subject_id", subjectID))
		return nil
	case errors.Is(err, store.ErrDigestAlreadySet):
		return apperrors.ErrAlreadyEnrolled
	case errors.Is(err, store.ErrDigestTaken):
		v.logger.Warn("template digest collision on enrollment", zap.String("subject_id", subjectID))
		return apperrors.Clone(apperrors.ErrConflict, "template already enrolled for another subject")
	case errors.Is(err, store.ErrNotFound):
		return apperrors.Clone(apperrors.ErrNotFound, "subject not found")
	default:
		return fmt.Errorf("store template digest: %w", err)
	}
}
