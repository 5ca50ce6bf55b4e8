package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traincal/scheduling-api/internal/models"
)

type mockAvailabilityRepo struct {
	slots      []models.RecurringAvailabilitySlot
	exceptions []models.AvailabilityException
	slotsErr   error
}

func (m *mockAvailabilityRepo) ListSlots(ctx context.Context, instructorID string) ([]models.RecurringAvailabilitySlot, error) {
	if m.slotsErr != nil {
		return nil, m.slotsErr
	}
	return m.slots, nil
}

func (m *mockAvailabilityRepo) ListExceptions(ctx context.Context, instructorID string, from, to time.Time) ([]models.AvailabilityException, error) {
	var inWindow []models.AvailabilityException
	for _, e := range m.exceptions {
		if e.Date.Before(from) || e.Date.After(to) {
			continue
		}
		inWindow = append(inWindow, e)
	}
	return inWindow, nil
}

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := time.Parse(models.DateLayout, value)
	require.NoError(t, err)
	return d
}

func TestResolveDefaultClosed(t *testing.T) {
	svc := NewAvailabilityService(&mockAvailabilityRepo{}, nil, 0, nil)

	days, err := svc.ResolveUncached(context.Background(), "ins-1",
		mustDate(t, "2026-03-02"), mustDate(t, "2026-03-04"))
	require.NoError(t, err)
	require.Len(t, days, 3)
	for _, day := range days {
		assert.Empty(t, day.Open)
	}
}

func TestResolveRecurringSlotAppliesOnWeekday(t *testing.T) {
	repo := &mockAvailabilityRepo{
		slots: []models.RecurringAvailabilitySlot{
			{ID: "s1", Weekday: 1, StartTime: "09:00", EndTime: "12:00", Active: true},
		},
	}
	svc := NewAvailabilityService(repo, nil, 0, nil)

	// Monday 2026-03-02 through Wednesday 2026-03-04.
	days, err := svc.ResolveUncached(context.Background(), "ins-1",
		mustDate(t, "2026-03-02"), mustDate(t, "2026-03-04"))
	require.NoError(t, err)
	require.Len(t, days, 3)

	require.Len(t, days[0].Open, 1)
	assert.Equal(t, models.TimeRange{Start: "09:00", End: "12:00"}, days[0].Open[0])
	assert.Empty(t, days[1].Open)
	assert.Empty(t, days[2].Open)
}

func TestResolveMergesOverlappingSlots(t *testing.T) {
	repo := &mockAvailabilityRepo{
		slots: []models.RecurringAvailabilitySlot{
			{ID: "s1", Weekday: 1, StartTime: "09:00", EndTime: "12:00", Active: true},
			{ID: "s2", Weekday: 1, StartTime: "11:00", EndTime: "14:00", Active: true},
			{ID: "s3", Weekday: 1, StartTime: "16:00", EndTime: "18:00", Active: true},
		},
	}
	svc := NewAvailabilityService(repo, nil, 0, nil)

	days, err := svc.ResolveUncached(context.Background(), "ins-1",
		mustDate(t, "2026-03-02"), mustDate(t, "2026-03-02"))
	require.NoError(t, err)
	require.Len(t, days[0].Open, 2)
	assert.Equal(t, models.TimeRange{Start: "09:00", End: "14:00"}, days[0].Open[0])
	assert.Equal(t, models.TimeRange{Start: "16:00", End: "18:00"}, days[0].Open[1])
}

func TestResolveHonoursValidityWindow(t *testing.T) {
	validFrom := mustDate(t, "2026-03-09")
	repo := &mockAvailabilityRepo{
		slots: []models.RecurringAvailabilitySlot{
			{ID: "s1", Weekday: 1, StartTime: "09:00", EndTime: "12:00", Active: true, ValidFrom: &validFrom},
		},
	}
	svc := NewAvailabilityService(repo, nil, 0, nil)

	days, err := svc.ResolveUncached(context.Background(), "ins-1",
		mustDate(t, "2026-03-02"), mustDate(t, "2026-03-09"))
	require.NoError(t, err)

	// First Monday precedes the validity window; the second falls inside it.
	assert.Empty(t, days[0].Open)
	require.Len(t, days[7].Open, 1)
}

func TestResolveIgnoresInactiveSlots(t *testing.T) {
	repo := &mockAvailabilityRepo{
		slots: []models.RecurringAvailabilitySlot{
			{ID: "s1", Weekday: 1, StartTime: "09:00", EndTime: "12:00", Active: false},
		},
	}
	svc := NewAvailabilityService(repo, nil, 0, nil)

	days, err := svc.ResolveUncached(context.Background(), "ins-1",
		mustDate(t, "2026-03-02"), mustDate(t, "2026-03-02"))
	require.NoError(t, err)
	assert.Empty(t, days[0].Open)
}

func TestResolveBlockedExceptionSplitsSlot(t *testing.T) {
	repo := &mockAvailabilityRepo{
		slots: []models.RecurringAvailabilitySlot{
			{ID: "s1", Weekday: 1, StartTime: "09:00", EndTime: "17:00", Active: true},
		},
		exceptions: []models.AvailabilityException{
			{ID: "e1", Date: mustDate(t, "2026-03-02"), StartTime: "12:00", EndTime: "13:00", Kind: models.ExceptionBlocked},
		},
	}
	svc := NewAvailabilityService(repo, nil, 0, nil)

	days, err := svc.ResolveUncached(context.Background(), "ins-1",
		mustDate(t, "2026-03-02"), mustDate(t, "2026-03-02"))
	require.NoError(t, err)
	require.Len(t, days[0].Open, 2)
	assert.Equal(t, models.TimeRange{Start: "09:00", End: "12:00"}, days[0].Open[0])
	assert.Equal(t, models.TimeRange{Start: "13:00", End: "17:00"}, days[0].Open[1])
}

func TestResolveExtraOpenAddsTime(t *testing.T) {
	repo := &mockAvailabilityRepo{
		slots: []models.RecurringAvailabilitySlot{
			{ID: "s1", Weekday: 1, StartTime: "09:00", EndTime: "12:00", Active: true},
		},
		exceptions: []models.AvailabilityException{
			{ID: "e1", Date: mustDate(t, "2026-03-02"), StartTime: "11:00", EndTime: "15:00", Kind: models.ExceptionExtraOpen},
		},
	}
	svc := NewAvailabilityService(repo, nil, 0, nil)

	days, err := svc.ResolveUncached(context.Background(), "ins-1",
		mustDate(t, "2026-03-02"), mustDate(t, "2026-03-02"))
	require.NoError(t, err)
	require.Len(t, days[0].Open, 1)
	assert.Equal(t, models.TimeRange{Start: "09:00", End: "15:00"}, days[0].Open[0])
}

func TestResolveBlockedBeatsExtraOpen(t *testing.T) {
	repo := &mockAvailabilityRepo{
		exceptions: []models.AvailabilityException{
			{ID: "e1", Date: mustDate(t, "2026-03-03"), StartTime: "09:00", EndTime: "17:00", Kind: models.ExceptionExtraOpen},
			{ID: "e2", Date: mustDate(t, "2026-03-03"), StartTime: "12:00", EndTime: "14:00", Kind: models.ExceptionBlocked},
		},
	}
	svc := NewAvailabilityService(repo, nil, 0, nil)

	days, err := svc.ResolveUncached(context.Background(), "ins-1",
		mustDate(t, "2026-03-03"), mustDate(t, "2026-03-03"))
	require.NoError(t, err)
	require.Len(t, days[0].Open, 2)
	assert.Equal(t, models.TimeRange{Start: "09:00", End: "12:00"}, days[0].Open[0])
	assert.Equal(t, models.TimeRange{Start: "14:00", End: "17:00"}, days[0].Open[1])
}

func TestResolveRejectsInvertedRange(t *testing.T) {
	svc := NewAvailabilityService(&mockAvailabilityRepo{}, nil, 0, nil)

	_, err := svc.ResolveUncached(context.Background(), "ins-1",
		mustDate(t, "2026-03-04"), mustDate(t, "2026-03-02"))
	require.Error(t, err)
}

func TestMergeSpansIdempotent(t *testing.T) {
	spans := []span{{start: 540, end: 720}, {start: 660, end: 840}, {start: 960, end: 1080}}
	once := mergeSpans(spans)
	twice := mergeSpans(once)
	assert.Equal(t, once, twice)
	require.Len(t, once, 2)
	assert.Equal(t, span{start: 540, end: 840}, once[0])
}

func TestMergeSpansCoalescesAdjacent(t *testing.T) {
	merged := mergeSpans([]span{{start: 540, end: 720}, {start: 720, end: 780}})
	require.Len(t, merged, 1)
	assert.Equal(t, span{start: 540, end: 780}, merged[0])
}

func TestCoversRequiresFullContainment(t *testing.T) {
	open := []span{{start: 540, end: 720}}
	assert.True(t, covers(open, span{start: 540, end: 720}))
	assert.True(t, covers(open, span{start: 600, end: 700}))
	assert.False(t, covers(open, span{start: 500, end: 600}))
	assert.False(t, covers(open, span{start: 700, end: 780}))
}

func TestSubtractSpanEdges(t *testing.T) {
	open := []span{{start: 540, end: 720}}

	assert.Equal(t, []span{{start: 540, end: 600}}, subtractSpan(open, span{start: 600, end: 720}))
	assert.Equal(t, []span{{start: 600, end: 720}}, subtractSpan(open, span{start: 540, end: 600}))
	assert.Empty(t, subtractSpan(open, span{start: 500, end: 800}))
	assert.Equal(t, open, subtractSpan(open, span{start: 720, end: 780}))
}
