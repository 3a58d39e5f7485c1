// Package handler exposes the capture, enrollment, session, ledger and
// device operations over HTTP.
package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"lectureattend/internal/apperrors"
	"lectureattend/internal/auth"
	"lectureattend/internal/authz"
	"lectureattend/internal/capture"
	"lectureattend/internal/model"
)

type captureService interface {
	Capture(ctx context.Context, credential, template string) (capture.Result, error)
}

type enrollmentService interface {
	Enroll(ctx context.Context, requester authz.Principal, subjectID, rawTemplate string) error
}

type sessionService interface {
	Start(ctx context.Context, courseID string, requester authz.Principal) (model.ClassSession, error)
	End(ctx context.Context, sessionID string, requester authz.Principal) (model.ClassSession, error)
}

type ledgerService interface {
	Amend(ctx context.Context, recordID string, status model.Status, requester authz.Principal) (model.AttendanceRecord, error)
}

type deviceService interface {
	Provision(ctx context.Context, requester authz.Principal, name string, courseID *string) (model.ScannerDevice, string, error)
	Deactivate(ctx context.Context, requester authz.Principal, deviceID string) (model.ScannerDevice, error)
}

// Handler serves every API route.
type Handler struct {
	captures captureService
	vault    enrollmentService
	sessions sessionService
	ledger   ledgerService
	devices  deviceService
	validate *validator.Validate
	logger   *zap.Logger
}

// Services groups the collaborators of a Handler.
type Services struct {
	Captures captureService
	Vault    enrollmentService
	Sessions sessionService
	Ledger   ledgerService
	Devices  deviceService
}

// New builds a handler. A nil validator gets a fresh one.
func New(s Services, validate *validator.Validate, logger *zap.Logger) *Handler {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	_ = validate.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return model.Status(strings.ToLower(fl.Field().String())).Valid()
	})
	return &Handler{
		captures: s.Captures,
		vault:    s.Vault,
		sessions: s.Sessions,
		ledger:   s.Ledger,
		devices:  s.Devices,
		validate: validate,
		logger:   logger,
	}
}

type templateRequest struct {
	Template string `json:"template" validate:"required"`
}

type amendRequest struct {
	Status string `json:"status" validate:"required,attendance_status"`
}

type provisionRequest struct {
	Name     string  `json:"name" validate:"required,max=120"`
	CourseID *string `json:"course_id" validate:"omitempty,min=1"`
}

type provisionResponse struct {
	Device     model.ScannerDevice `json:"device"`
	Credential string              `json:"credential"`
}

// Capture records a scanner reading. The device authenticates with its
// credential header only.
func (h *Handler) Capture(c *gin.Context) {
	var req templateRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.captures.Capture(c.Request.Context(), c.GetHeader(auth.DeviceKeyHeader), req.Template)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, res)
}

// EnrollTemplate stores the requesting student's template digest.
func (h *Handler) EnrollTemplate(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req templateRequest
	if !h.bind(c, &req) {
		return
	}
	subjectID := c.Param("id")
	if err := h.vault.Enroll(c.Request.Context(), p, subjectID, req.Template); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, gin.H{"subject_id": subjectID, "enrolled": true})
}

// StartSession opens a session for the course in the path.
func (h *Handler) StartSession(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	s, err := h.sessions.Start(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, s)
}

// EndSession closes the session in the path.
func (h *Handler) EndSession(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	s, err := h.sessions.End(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, s)
}

// AmendRecord overrides a record's status.
func (h *Handler) AmendRecord(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req amendRequest
	if !h.bind(c, &req) {
		return
	}
	rec, err := h.ledger.Amend(c.Request.Context(), c.Param("id"), model.Status(strings.ToLower(req.Status)), p)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, rec)
}

// ProvisionDevice registers a scanner and returns its credential once.
func (h *Handler) ProvisionDevice(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req provisionRequest
	if !h.bind(c, &req) {
		return
	}
	d, credential, err := h.devices.Provision(c.Request.Context(), p, req.Name, req.CourseID)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, provisionResponse{Device: d, Credential: credential})
}

// DeactivateDevice revokes a scanner.
func (h *Handler) DeactivateDevice(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	d, err := h.devices.Deactivate(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, d)
}

func (h *Handler) bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, apperrors.Clone(apperrors.ErrValidation, "invalid JSON body"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.logger.Debug("payload rejected", zap.Error(err))
		fail(c, apperrors.Clone(apperrors.ErrValidation, err.Error()))
		return false
	}
	return true
}

func principal(c *gin.Context) (authz.Principal, bool) {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		fail(c, apperrors.Clone(apperrors.ErrUnauthorized, "missing user token"))
		return authz.Principal{}, false
	}
	return p, true
}
