// Package devices authenticates scanner devices by their provisioned
// credential. It never consults human login state.
package devices

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lectureattend/internal/apperrors"
	"lectureattend/internal/authz"
	"lectureattend/internal/model"
	"lectureattend/internal/store"
	"lectureattend/internal/vault"
)

const credentialPrefix = "sk-scan-"

// Identity is what a successful authorization carries into the ledger.
type Identity struct {
	DeviceID string
	Name     string
	CourseID *string
}

type repository interface {
	DeviceByCredentialDigest(ctx context.Context, digest string) (model.ScannerDevice, error)
	CreateDevice(ctx context.Context, d model.ScannerDevice) error
	GetDevice(ctx context.Context, id string) (model.ScannerDevice, error)
	SetDeviceActive(ctx context.Context, id string, active bool) error
	GetCourse(ctx context.Context, id string) (model.Course, error)
}

// Gate validates and provisions scanner devices.
type Gate struct {
	repo   repository
	logger *zap.Logger
	now    func() time.Time
}

// NewGate creates a gate backed by repo.
func NewGate(repo repository, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{repo: repo, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Authorize succeeds only for an existing, active device whose stored digest
// equals the digest of the presented credential.
func (g *Gate) Authorize(ctx context.Context, credential string) (Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Identity{}, apperrors.ErrUnauthorized
	}
	digest := vault.DigestOf(credential)
	d, err := g.repo.DeviceByCredentialDigest(ctx, digest)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Identity{}, apperrors.ErrUnauthorized
		}
		return Identity{}, fmt.Errorf("lookup device: %w", err)
	}
	if !vault.Equal(d.CredentialDigest, digest) || !d.Active {
		g.logger.Info("inactive device rejected", zap.String("device_id", d.ID))
		return Identity{}, apperrors.ErrUnauthorized
	}
	return Identity{DeviceID: d.ID, Name: d.Name, CourseID: d.CourseID}, nil
}

// Provision registers a new device and returns it together with its
// plaintext credential. The credential is not recoverable afterwards.
func (g *Gate) Provision(ctx context.Context, requester authz.Principal, name string, courseID *string) (model.ScannerDevice, string, error) {
	if !authz.Can(requester, authz.ManageDevices, authz.Resource{}) {
		return model.ScannerDevice{}, "", apperrors.ErrForbidden
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return model.ScannerDevice{}, "", apperrors.Clone(apperrors.ErrValidation, "device name is required")
	}
	if courseID != nil {
		if _, err := g.repo.GetCourse(ctx, *courseID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return model.ScannerDevice{}, "", apperrors.Clone(apperrors.ErrNotFound, "course not found")
			}
			return model.ScannerDevice{}, "", fmt.Errorf("load course: %w", err)
		}
	}

	credential, err := generateCredential()
	if err != nil {
		return model.ScannerDevice{}, "", err
	}
	d := model.ScannerDevice{
		ID:               uuid.NewString(),
		Name:             name,
		CredentialDigest: vault.DigestOf(credential),
		CourseID:         courseID,
		Active:           true,
		CreatedAt:        g.now(),
	}
	if err := g.repo.CreateDevice(ctx, d); err != nil {
		return model.ScannerDevice{}, "", fmt.Errorf("create device: %w", err)
	}
	g.logger.Info("device provisioned", zap.String("device_id", d.ID), zap.String("name", d.Name))
	return d, credential, nil
}

// Deactivate revokes a device. Its credential is rejected from then on.
func (g *Gate) Deactivate(ctx context.Context, requester authz.Principal, deviceID string) (model.ScannerDevice, error) {
	if !authz.Can(requester, authz.ManageDevices, authz.Resource{}) {
		return model.ScannerDevice{}, apperrors.ErrForbidden
	}
	if err := g.repo.SetDeviceActive(ctx, deviceID, false); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.ScannerDevice{}, apperrors.Clone(apperrors.ErrNotFound, "device not found")
		}
		return model.ScannerDevice{}, fmt.Errorf("deactivate device: %w", err)
	}
	g.logger.Info("device deactivated", zap.String("device_id", deviceID))
	return g.repo.GetDevice(ctx, deviceID)
}

func generateCredential() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate device credential: %w", err)
	}
	return credentialPrefix + hex.EncodeToString(b), nil
}
