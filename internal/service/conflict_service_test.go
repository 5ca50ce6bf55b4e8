package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traincal/scheduling-api/internal/models"
	appErrors "github.com/traincal/scheduling-api/pkg/errors"
)

type mockResolver struct {
	days []models.DailyAvailability
	err  error
}

func (m *mockResolver) ResolveUncached(ctx context.Context, instructorID string, from, to time.Time) ([]models.DailyAvailability, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.days, nil
}

type mockSessionReader struct {
	sessions  []models.Session
	lastQuery struct {
		instructorID string
		exclude      string
	}
}

func (m *mockSessionReader) ListInstructorSessions(ctx context.Context, instructorID string, from, to time.Time, excludeCourseID string) ([]models.Session, error) {
	m.lastQuery.instructorID = instructorID
	m.lastQuery.exclude = excludeCourseID
	var out []models.Session
	for _, s := range m.sessions {
		if s.CourseID == excludeCourseID && excludeCourseID != "" {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func proposedSession(date, start, end string) models.Session {
	d, _ := time.Parse(models.DateLayout, date)
	return models.Session{Date: d, DateString: date, StartTime: start, EndTime: end, Active: true}
}

func openDay(date string, ranges ...models.TimeRange) models.DailyAvailability {
	return models.DailyAvailability{Date: date, Open: ranges}
}

func TestConflictCheckPasses(t *testing.T) {
	resolver := &mockResolver{days: []models.DailyAvailability{
		openDay("2026-03-02", models.TimeRange{Start: "09:00", End: "17:00"}),
	}}
	reader := &mockSessionReader{}
	svc := NewConflictService(resolver, reader, nil)

	err := svc.Check(context.Background(), "ins-1",
		[]models.Session{proposedSession("2026-03-02", "10:00", "12:00")}, "")
	assert.NoError(t, err)
	assert.Equal(t, "ins-1", reader.lastQuery.instructorID)
}

func TestConflictCheckPartialOverlapRejects(t *testing.T) {
	resolver := &mockResolver{days: []models.DailyAvailability{
		openDay("2026-03-02", models.TimeRange{Start: "09:00", End: "12:00"}),
	}}
	svc := NewConflictService(resolver, &mockSessionReader{}, nil)

	// Session starts inside the open window but runs past its end. Partial
	// coverage rejects rather than truncating.
	err := svc.Check(context.Background(), "ins-1",
		[]models.Session{proposedSession("2026-03-02", "11:00", "13:00")}, "")
	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrAvailabilityConflict.Code))

	var detail *models.AvailabilityConflictError
	require.ErrorAs(t, err, &detail)
	require.Len(t, detail.Violations, 1)
	assert.Equal(t, "2026-03-02", detail.Violations[0].Date)
}

func TestConflictCheckClosedDayRejects(t *testing.T) {
	resolver := &mockResolver{days: []models.DailyAvailability{openDay("2026-03-02")}}
	svc := NewConflictService(resolver, &mockSessionReader{}, nil)

	err := svc.Check(context.Background(), "ins-1",
		[]models.Session{proposedSession("2026-03-02", "09:00", "10:00")}, "")
	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrAvailabilityConflict.Code))
}

func TestConflictCheckBookingOverlapRejects(t *testing.T) {
	resolver := &mockResolver{days: []models.DailyAvailability{
		openDay("2026-03-02", models.TimeRange{Start: "09:00", End: "17:00"}),
	}}
	reader := &mockSessionReader{sessions: []models.Session{
		{ID: "sess-1", CourseID: "course-9", DateString: "2026-03-02", StartTime: "10:00", EndTime: "12:00", Active: true},
	}}
	svc := NewConflictService(resolver, reader, nil)

	err := svc.Check(context.Background(), "ins-1",
		[]models.Session{proposedSession("2026-03-02", "11:00", "13:00")}, "")
	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrBookingConflict.Code))

	var detail *models.BookingConflictError
	require.ErrorAs(t, err, &detail)
	require.Len(t, detail.Conflicts, 1)
	assert.Equal(t, "course-9", detail.Conflicts[0].CourseID)
	assert.Equal(t, "sess-1", detail.Conflicts[0].SessionID)
}

func TestConflictCheckBackToBackBookingsAllowed(t *testing.T) {
	resolver := &mockResolver{days: []models.DailyAvailability{
		openDay("2026-03-02", models.TimeRange{Start: "09:00", End: "17:00"}),
	}}
	reader := &mockSessionReader{sessions: []models.Session{
		{ID: "sess-1", CourseID: "course-9", DateString: "2026-03-02", StartTime: "09:00", EndTime: "12:00", Active: true},
	}}
	svc := NewConflictService(resolver, reader, nil)

	err := svc.Check(context.Background(), "ins-1",
		[]models.Session{proposedSession("2026-03-02", "12:00", "14:00")}, "")
	assert.NoError(t, err)
}

func TestConflictCheckExcludesOwnCourse(t *testing.T) {
	resolver := &mockResolver{days: []models.DailyAvailability{
		openDay("2026-03-02", models.TimeRange{Start: "09:00", End: "17:00"}),
	}}
	reader := &mockSessionReader{sessions: []models.Session{
		{ID: "sess-1", CourseID: "course-1", DateString: "2026-03-02", StartTime: "10:00", EndTime: "12:00", Active: true},
	}}
	svc := NewConflictService(resolver, reader, nil)

	// Rescheduling course-1 onto its own current slot must not self-conflict.
	err := svc.Check(context.Background(), "ins-1",
		[]models.Session{proposedSession("2026-03-02", "10:00", "12:00")}, "course-1")
	assert.NoError(t, err)
	assert.Equal(t, "course-1", reader.lastQuery.exclude)
}

func TestConflictCheckIgnoresInactiveProposed(t *testing.T) {
	resolver := &mockResolver{days: []models.DailyAvailability{openDay("2026-03-02")}}
	svc := NewConflictService(resolver, &mockSessionReader{}, nil)

	inactive := proposedSession("2026-03-02", "09:00", "10:00")
	inactive.Active = false
	err := svc.Check(context.Background(), "ins-1", []models.Session{inactive}, "")
	assert.NoError(t, err)
}
