package devices

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"lectureattend/internal/apperrors"
	"lectureattend/internal/authz"
	"lectureattend/internal/model"
	"lectureattend/internal/store"
)

type GateSuite struct {
	suite.Suite
	ctx   context.Context
	store *store.Memory
	gate  *Gate
	admin authz.Principal
}

func (s *GateSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewMemory()
	s.gate = NewGate(s.store, nil)
	s.admin = authz.Principal{ID: "adm-1", Role: model.RoleAdmin}
	s.Require().NoError(s.store.CreateSubject(s.ctx, model.Subject{ID: "lec-1", Username: "lec", Role: model.RoleLecturer}))
	s.Require().NoError(s.store.CreateCourse(s.ctx, model.Course{ID: "c1", Name: "Algebra", LecturerID: "lec-1"}))
}

func TestGateSuite(t *testing.T) {
	suite.Run(t, new(GateSuite))
}

func (s *GateSuite) TestProvisionedDeviceAuthorizes() {
	course := "c1"
	d, credential, err := s.gate.Provision(s.ctx, s.admin, "Room 12", &course)
	s.Require().NoError(err)
	s.True(strings.HasPrefix(credential, credentialPrefix))
	s.NotContains(d.CredentialDigest, credential)

	id, err := s.gate.Authorize(s.ctx, credential)
	s.Require().NoError(err)
	s.Equal(d.ID, id.DeviceID)
	s.Equal("Room 12", id.Name)
	s.Require().NotNil(id.CourseID)
	s.Equal("c1", *id.CourseID)
}

func (s *GateSuite) TestUnknownOrEmptyCredentialIsUnauthorized() {
	for _, cred := range []string{"", "   ", "sk-scan-deadbeef"} {
		_, err := s.gate.Authorize(s.ctx, cred)
		s.ErrorIs(err, apperrors.ErrUnauthorized, "credential %q", cred)
	}
}

func (s *GateSuite) TestDeactivatedDeviceIsUnauthorized() {
	d, credential, err := s.gate.Provision(s.ctx, s.admin, "Hall", nil)
	s.Require().NoError(err)

	revoked, err := s.gate.Deactivate(s.ctx, s.admin, d.ID)
	s.Require().NoError(err)
	s.False(revoked.Active)

	_, err = s.gate.Authorize(s.ctx, credential)
	s.ErrorIs(err, apperrors.ErrUnauthorized)
}

func (s *GateSuite) TestProvisioningRequiresAdmin() {
	lecturer := authz.Principal{ID: "lec-1", Role: model.RoleLecturer}
	_, _, err := s.gate.Provision(s.ctx, lecturer, "Rogue", nil)
	s.ErrorIs(err, apperrors.ErrForbidden)

	_, err = s.gate.Deactivate(s.ctx, lecturer, "any")
	s.ErrorIs(err, apperrors.ErrForbidden)
}

func (s *GateSuite) TestProvisionValidation() {
	_, _, err := s.gate.Provision(s.ctx, s.admin, " ", nil)
	s.ErrorIs(err, apperrors.ErrValidation)

	missing := "c404"
	_, _, err = s.gate.Provision(s.ctx, s.admin, "Lab", &missing)
	s.ErrorIs(err, apperrors.ErrNotFound)

	_, err = s.gate.Deactivate(s.ctx, s.admin, "dev-404")
	s.ErrorIs(err, apperrors.ErrNotFound)
}

func (s *GateSuite) TestCredentialsAreUnique() {
	_, c1, err := s.gate.Provision(s.ctx, s.admin, "A", nil)
	s.Require().NoError(err)
	_, c2, err := s.gate.Provision(s.ctx, s.admin, "B", nil)
	s.Require().NoError(err)
	s.NotEqual(c1, c2)
}
