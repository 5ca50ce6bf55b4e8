package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/traincal/scheduling-api/internal/models"
	"github.com/traincal/scheduling-api/internal/repository"
	appErrors "github.com/traincal/scheduling-api/pkg/errors"
)

type availabilityRepository interface {
	ListSlots(ctx context.Context, instructorID string) ([]models.RecurringAvailabilitySlot, error)
	ListExceptions(ctx context.Context, instructorID string, from, to time.Time) ([]models.AvailabilityException, error)
}

// span is a clock interval in minutes from midnight, end exclusive.
type span struct {
	start int
	end   int
}

// AvailabilityService resolves the effective open intervals of an instructor
// by merging recurring weekly slots with date-specific exceptions. Resolution
// is read-only; results are snapshots valid until the next availability edit.
type AvailabilityService struct {
	repo     availabilityRepository
	cache    *repository.CacheRepository
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewAvailabilityService instantiates AvailabilityService. cache may be nil.
func NewAvailabilityService(repo availabilityRepository, cache *repository.CacheRepository, cacheTTL time.Duration, logger *zap.Logger) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{repo: repo, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// Resolve returns the per-date open intervals for the instructor across the
// inclusive date range, serving from cache when possible.
func (s *AvailabilityService) Resolve(ctx context.Context, instructorID string, from, to time.Time) ([]models.DailyAvailability, error) {
	key := availabilityCacheKey(instructorID, from, to)
	if s.cache != nil {
		var cached []models.DailyAvailability
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	resolved, err := s.ResolveUncached(ctx, instructorID, from, to)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, resolved, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache resolved availability", zap.Error(err))
		}
	}
	return resolved, nil
}

// ResolveUncached computes availability directly from the stored pattern.
// The conflict detector uses this inside the locked check-and-commit so it
// never trusts a stale snapshot.
func (s *AvailabilityService) ResolveUncached(ctx context.Context, instructorID string, from, to time.Time) ([]models.DailyAvailability, error) {
	from = truncateToDay(from)
	to = truncateToDay(to)
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date range end precedes start")
	}

	slots, err := s.repo.ListSlots(ctx, instructorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recurring slots")
	}
	exceptions, err := s.repo.ListExceptions(ctx, instructorID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability exceptions")
	}

	exceptionsByDate := make(map[string][]models.AvailabilityException)
	for _, e := range exceptions {
		key := e.Date.Format(models.DateLayout)
		exceptionsByDate[key] = append(exceptionsByDate[key], e)
	}

	var result []models.DailyAvailability
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dateKey := d.Format(models.DateLayout)
		open, err := resolveDay(d, slots, exceptionsByDate[dateKey])
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "corrupt availability data")
		}
		result = append(result, models.DailyAvailability{Date: dateKey, Open: spansToRanges(open)})
	}
	return result, nil
}

// resolveDay applies the default-closed policy for a single date: recurring
// slots open time, EXTRA_OPEN exceptions add, BLOCKED exceptions subtract,
// and the outcome is merged into a minimal sorted list.
func resolveDay(date time.Time, slots []models.RecurringAvailabilitySlot, exceptions []models.AvailabilityException) ([]span, error) {
	var open []span

	weekday := int(date.Weekday())
	for _, slot := range slots {
		if !slot.Active || slot.Weekday != weekday {
			continue
		}
		if slot.ValidFrom != nil && date.Before(truncateToDay(*slot.ValidFrom)) {
			continue
		}
		if slot.ValidTo != nil && date.After(truncateToDay(*slot.ValidTo)) {
			continue
		}
		sp, err := parseSpan(slot.StartTime, slot.EndTime)
		if err != nil {
			return nil, fmt.Errorf("recurring slot %s: %w", slot.ID, err)
		}
		open = append(open, sp)
	}

	var blocked []span
	for _, e := range exceptions {
		sp, err := parseSpan(e.StartTime, e.EndTime)
		if err != nil {
			return nil, fmt.Errorf("availability exception %s: %w", e.ID, err)
		}
		switch e.Kind {
		case models.ExceptionExtraOpen:
			open = append(open, sp)
		case models.ExceptionBlocked:
			blocked = append(blocked, sp)
		default:
			return nil, fmt.Errorf("availability exception %s: unknown kind %q", e.ID, e.Kind)
		}
	}

	merged := mergeSpans(open)
	for _, b := range blocked {
		merged = subtractSpan(merged, b)
	}
	return merged, nil
}

// mergeSpans sorts spans and coalesces overlapping or adjacent ones.
// Merging is idempotent: merging an already merged list is a no-op.
func mergeSpans(spans []span) []span {
	if len(spans) == 0 {
		return nil
	}
	sorted := make([]span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].start == sorted[j].start {
			return sorted[i].end < sorted[j].end
		}
		return sorted[i].start < sorted[j].start
	})

	merged := []span{sorted[0]}
	for _, sp := range sorted[1:] {
		last := &merged[len(merged)-1]
		if sp.start <= last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		merged = append(merged, sp)
	}
	return merged
}

// subtractSpan removes the blocked interval from each open span, splitting
// spans that fully contain it.
func subtractSpan(open []span, blocked span) []span {
	var result []span
	for _, sp := range open {
		if blocked.end <= sp.start || blocked.start >= sp.end {
			result = append(result, sp)
			continue
		}
		if blocked.start > sp.start {
			result = append(result, span{start: sp.start, end: blocked.start})
		}
		if blocked.end < sp.end {
			result = append(result, span{start: blocked.end, end: sp.end})
		}
	}
	return result
}

// covers reports whether candidate lies entirely within one of the spans.
func covers(spans []span, candidate span) bool {
	for _, sp := range spans {
		if candidate.start >= sp.start && candidate.end <= sp.end {
			return true
		}
	}
	return false
}

func parseSpan(start, end string) (span, error) {
	s, err := parseMinute(start)
	if err != nil {
		return span{}, err
	}
	e, err := parseMinute(end)
	if err != nil {
		return span{}, err
	}
	if s >= e {
		return span{}, fmt.Errorf("start %s is not before end %s", start, end)
	}
	return span{start: s, end: e}, nil
}

// parseMinute converts a strict 24-hour HH:MM value into minutes from
// midnight.
func parseMinute(value string) (int, error) {
	t, err := time.Parse(models.TimeLayout, value)
	if err != nil {
		return 0, fmt.Errorf("malformed time %q: %w", value, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func minuteToClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

func spansToRanges(spans []span) []models.TimeRange {
	ranges := make([]models.TimeRange, 0, len(spans))
	for _, sp := range spans {
		ranges = append(ranges, models.TimeRange{Start: minuteToClock(sp.start), End: minuteToClock(sp.end)})
	}
	return ranges
}

func rangesToSpans(ranges []models.TimeRange) ([]span, error) {
	spans := make([]span, 0, len(ranges))
	for _, r := range ranges {
		sp, err := parseSpan(r.Start, r.End)
		if err != nil {
			return nil, err
		}
		spans = append(spans, sp)
	}
	return spans, nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func availabilityCacheKey(instructorID string, from, to time.Time) string {
	return fmt.Sprintf("availability:%s:%s:%s", instructorID, from.Format(models.DateLayout), to.Format(models.DateLayout))
}

// AvailabilityCachePattern matches every cached window of one instructor,
// used for invalidation after slot or exception edits.
func AvailabilityCachePattern(instructorID string) string {
	return fmt.Sprintf("availability:%s:*", instructorID)
}
