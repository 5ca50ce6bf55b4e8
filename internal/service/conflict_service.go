package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/traincal/scheduling-api/internal/models"
	appErrors "github.com/traincal/scheduling-api/pkg/errors"
)

type availabilityResolver interface {
	ResolveUncached(ctx context.Context, instructorID string, from, to time.Time) ([]models.DailyAvailability, error)
}

type bookedSessionReader interface {
	ListInstructorSessions(ctx context.Context, instructorID string, from, to time.Time, excludeCourseID string) ([]models.Session, error)
}

// ConflictService decides whether a proposed session set can be placed on an
// instructor without double-booking. Callers must hold the instructor lock
// around Check and the subsequent commit; the check itself is read-only.
type ConflictService struct {
	availability availabilityResolver
	sessions     bookedSessionReader
	logger       *zap.Logger
}

// NewConflictService instantiates ConflictService.
func NewConflictService(availability availabilityResolver, sessions bookedSessionReader, logger *zap.Logger) *ConflictService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictService{availability: availability, sessions: sessions, logger: logger}
}

// Check verifies both booking rules: every active proposed session must fall
// entirely inside one resolved open interval (partial overlap rejects, never
// truncates), and no active session of another live course of the same
// instructor may intersect it. excludeCourseID permits no-op reschedules of
// the course being edited.
func (s *ConflictService) Check(ctx context.Context, instructorID string, proposed []models.Session, excludeCourseID string) error {
	active := make([]models.Session, 0, len(proposed))
	for _, session := range proposed {
		if session.Active {
			active = append(active, session)
		}
	}
	if len(active) == 0 {
		return nil
	}

	from, to := dateSpan(active)

	resolved, err := s.availability.ResolveUncached(ctx, instructorID, from, to)
	if err != nil {
		return err
	}
	openByDate := make(map[string][]span, len(resolved))
	for _, day := range resolved {
		spans, err := rangesToSpans(day.Open)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "corrupt resolved availability")
		}
		openByDate[day.Date] = spans
	}

	var violations []models.AvailabilityViolation
	for i, session := range active {
		sp, err := parseSpan(session.StartTime, session.EndTime)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrStructural.Code, appErrors.ErrStructural.Status, "malformed proposed session time")
		}
		if !covers(openByDate[session.DateString], sp) {
			violations = append(violations, models.AvailabilityViolation{
				ProposedIdx: i,
				Date:        session.DateString,
				StartTime:   session.StartTime,
				EndTime:     session.EndTime,
			})
		}
	}
	if len(violations) > 0 {
		detail := &models.AvailabilityConflictError{Violations: violations}
		return appErrors.Wrap(detail, appErrors.ErrAvailabilityConflict.Code, appErrors.ErrAvailabilityConflict.Status, detail.Error())
	}

	booked, err := s.sessions.ListInstructorSessions(ctx, instructorID, from, to, excludeCourseID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booked sessions")
	}

	var conflicts []models.BookingConflict
	for i, session := range active {
		sp, err := parseSpan(session.StartTime, session.EndTime)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrStructural.Code, appErrors.ErrStructural.Status, "malformed proposed session time")
		}
		for _, other := range booked {
			if other.DateString != session.DateString {
				continue
			}
			otherSpan, err := parseSpan(other.StartTime, other.EndTime)
			if err != nil {
				s.logger.Warn("skipping booked session with malformed time", zap.String("session_id", other.ID))
				continue
			}
			if sp.start < otherSpan.end && otherSpan.start < sp.end {
				conflicts = append(conflicts, models.BookingConflict{
					CourseID:     other.CourseID,
					SessionID:    other.ID,
					Date:         other.DateString,
					StartTime:    other.StartTime,
					EndTime:      other.EndTime,
					ProposedIdx:  i,
					InstructorID: instructorID,
				})
			}
		}
	}
	if len(conflicts) > 0 {
		detail := &models.BookingConflictError{Conflicts: conflicts}
		return appErrors.Wrap(detail, appErrors.ErrBookingConflict.Code, appErrors.ErrBookingConflict.Status, detail.Error())
	}

	return nil
}

func dateSpan(sessions []models.Session) (time.Time, time.Time) {
	from := truncateToDay(sessions[0].Date)
	to := from
	for _, session := range sessions[1:] {
		d := truncateToDay(session.Date)
		if d.Before(from) {
			from = d
		}
		if d.After(to) {
			to = d
		}
	}
	return from, to
}
