// Package capture turns one scanner reading into at most one attendance
// record: authorize the device, identify the subject, resolve the session,
// check enrollment, then record presence.
package capture

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"lectureattend/internal/apperrors"
	"lectureattend/internal/devices"
	"lectureattend/internal/metrics"
	"lectureattend/internal/model"
	"lectureattend/internal/provenance"
)

type authorizer interface {
	Authorize(ctx context.Context, credential string) (devices.Identity, error)
}

type identifier interface {
	Identify(ctx context.Context, template string, pool []model.Subject) (model.Subject, error)
}

type sessions interface {
	Current(ctx context.Context, courseID string) (model.ClassSession, bool, error)
	ActiveSessions(ctx context.Context) ([]model.ClassSession, error)
}

type recorder interface {
	Record(ctx context.Context, subjectID, sessionID string, status model.Status, deviceID *string) (model.AttendanceRecord, error)
}

type enrollment interface {
	ListEnrolledStudents(ctx context.Context) ([]model.Subject, error)
	IsEnrolled(ctx context.Context, courseID, subjectID string) (bool, error)
	GetCourse(ctx context.Context, id string) (model.Course, error)
}

type publisher interface {
	Publish(ctx context.Context, evt provenance.Event)
}

// Result is what a successful capture reports back to the scanner.
type Result struct {
	Record  model.AttendanceRecord `json:"record"`
	Subject model.Subject          `json:"subject"`
	Course  model.Course           `json:"course"`
}

// Orchestrator runs the capture pipeline.
type Orchestrator struct {
	gate     authorizer
	matcher  identifier
	sessions sessions
	ledger   recorder
	roster   enrollment
	events   publisher
	logger   *zap.Logger
	now      func() time.Time
}

// Deps groups the collaborators of an Orchestrator.
type Deps struct {
	Gate     authorizer
	Matcher  identifier
	Sessions sessions
	Ledger   recorder
	Roster   enrollment
	Events   publisher
	Logger   *zap.Logger
}

// New wires an orchestrator. Events may be nil.
func New(d Deps) *Orchestrator {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		gate:     d.Gate,
		matcher:  d.Matcher,
		sessions: d.Sessions,
		ledger:   d.Ledger,
		roster:   d.Roster,
		events:   d.Events,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Capture processes one reading from the device holding credential. Each
// abort returns a distinct error kind and leaves the ledger unchanged.
func (o *Orchestrator) Capture(ctx context.Context, credential, template string) (Result, error) {
	device, err := o.gate.Authorize(ctx, credential)
	if err != nil {
		o.observe(outcomeOf(err))
		o.logger.Info("capture rejected", zap.String("kind", outcomeOf(err)))
		return Result{}, err
	}

	res, subjectID, sessionID, err := o.capture(ctx, device, template)
	outcome := outcomeOf(err)
	o.observe(outcome)
	o.publish(ctx, device.DeviceID, subjectID, sessionID, outcome)

	if err != nil {
		if apperrors.FromError(err).Status >= 500 {
			o.logger.Error("capture failed", zap.String("device_id", device.DeviceID), zap.Error(err))
		} else {
			o.logger.Info("capture aborted",
				zap.String("device_id", device.DeviceID),
				zap.String("kind", outcomeOf(err)),
			)
		}
		return Result{}, err
	}
	o.logger.Info("attendance captured",
		zap.String("device_id", device.DeviceID),
		zap.String("subject_id", res.Subject.ID),
		zap.String("session_id", res.Record.SessionID),
	)
	return res, nil
}

func (o *Orchestrator) capture(ctx context.Context, device devices.Identity, template string) (Result, string, string, error) {
	pool, err := o.roster.ListEnrolledStudents(ctx)
	if err != nil {
		return Result{}, "", "", fmt.Errorf("list enrolled students: %w", err)
	}
	subject, err := o.matcher.Identify(ctx, template, pool)
	if err != nil {
		return Result{}, "", "", err
	}

	session, err := o.resolveSession(ctx, device, subject.ID)
	if err != nil {
		return Result{}, subject.ID, "", err
	}

	course, err := o.roster.GetCourse(ctx, session.CourseID)
	if err != nil {
		return Result{}, subject.ID, session.ID, fmt.Errorf("load course: %w", err)
	}

	// The ledger write commits the capture, so it must be the last step that can fail.
	rec, err := o.ledger.Record(ctx, subject.ID, session.ID, model.StatusPresent, &device.DeviceID)
	if err != nil {
		return Result{}, subject.ID, session.ID, err
	}
	return Result{Record: rec, Subject: subject, Course: course}, subject.ID, session.ID, nil
}

// resolveSession picks the session a capture applies to. A device bound to a
// course only ever marks that course. An unbound device looks at the active
// sessions of courses the subject is enrolled in and refuses to guess.
func (o *Orchestrator) resolveSession(ctx context.Context, device devices.Identity, subjectID string) (model.ClassSession, error) {
	if device.CourseID != nil {
		s, ok, err := o.sessions.Current(ctx, *device.CourseID)
		if err != nil {
			return model.ClassSession{}, err
		}
		if !ok {
			return model.ClassSession{}, apperrors.ErrNoActiveSession
		}
		enrolled, err := o.roster.IsEnrolled(ctx, s.CourseID, subjectID)
		if err != nil {
			return model.ClassSession{}, fmt.Errorf("check enrollment: %w", err)
		}
		if !enrolled {
			return model.ClassSession{}, apperrors.ErrNotEnrolled
		}
		return s, nil
	}

	active, err := o.sessions.ActiveSessions(ctx)
	if err != nil {
		return model.ClassSession{}, err
	}
	if len(active) == 0 {
		return model.ClassSession{}, apperrors.ErrNoActiveSession
	}
	var candidates []model.ClassSession
	for _, s := range active {
		enrolled, err := o.roster.IsEnrolled(ctx, s.CourseID, subjectID)
		if err != nil {
			return model.ClassSession{}, fmt.Errorf("check enrollment: %w", err)
		}
		if enrolled {
			candidates = append(candidates, s)
		}
	}
	switch len(candidates) {
	case 0:
		return model.ClassSession{}, apperrors.ErrNotEnrolled
	case 1:
		return candidates[0], nil
	default:
		return model.ClassSession{}, apperrors.ErrAmbiguousSession
	}
}

func (o *Orchestrator) publish(ctx context.Context, deviceID, subjectID, sessionID, outcome string) {
	if o.events == nil {
		return
	}
	evt := provenance.Event{DeviceID: deviceID, Outcome: outcome, OccurredAt: o.now()}
	if subjectID != "" {
		evt.SubjectID = &subjectID
	}
	if sessionID != "" {
		evt.SessionID = &sessionID
	}
	o.events.Publish(ctx, evt)
}

func (o *Orchestrator) observe(outcome string) {
	metrics.CaptureOutcomes.WithLabelValues(outcome).Inc()
}

// OutcomeCreated labels a capture that produced a record. Aborted captures
// are labelled with the lower-cased error code.
const OutcomeCreated = "created"

func outcomeOf(err error) string {
	if err == nil {
		return OutcomeCreated
	}
	return strings.ToLower(apperrors.FromError(err).Code)
}
