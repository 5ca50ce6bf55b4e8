package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/traincal/scheduling-api/internal/models"
	appErrors "github.com/traincal/scheduling-api/pkg/errors"
	"github.com/traincal/scheduling-api/pkg/lock"
)

type courseRepository interface {
	FindByID(ctx context.Context, id string) (*models.ScheduledCourse, error)
	FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error)
	ListSessions(ctx context.Context, courseID string) ([]models.Session, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.ScheduledCourse, int, error)
	CreateWithSessions(ctx context.Context, course *models.ScheduledCourse, sessions []models.Session) error
	UpdateState(ctx context.Context, id string, from, to models.CourseState) error
	Cancel(ctx context.Context, id, reason string, from models.CourseState) error
	Reschedule(ctx context.Context, original *models.ScheduledCourse, successor *models.ScheduledCourse, successorSessions []models.Session, record *models.RescheduleRecord) error
}

type rescheduleReader interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.RescheduleRecord, error)
}

type instructorReader interface {
	FindByID(ctx context.Context, id string) (*models.Instructor, error)
}

type catalogReader interface {
	FindCourseByID(ctx context.Context, id string) (*models.CatalogCourse, error)
	FindLocationByID(ctx context.Context, id string) (*models.Location, error)
}

type conflictChecker interface {
	Check(ctx context.Context, instructorID string, proposed []models.Session, excludeCourseID string) error
}

type schedulePricer interface {
	Price(sessions []models.Session, modality models.Modality, basePrice decimal.Decimal, override *decimal.Decimal) decimal.Decimal
}

// CreateCourseRequest describes payload for scheduling a new course.
type CreateCourseRequest struct {
	CatalogCourseID string          `json:"catalog_course_id" validate:"required"`
	InstructorID    string          `json:"instructor_id" validate:"required"`
	Modality        models.Modality `json:"modality" validate:"required,oneof=ON_SITE ONLINE"`
	LocationID      string          `json:"location_id"`
	MinParticipants int             `json:"min_participants" validate:"gte=0"`
	Confirm         bool            `json:"confirm"`
	PriceOverride   *string         `json:"price_override,omitempty"`
	Schedule        SchedulePayload `json:"schedule"`
}

// CancelCourseRequest carries the mandatory cancellation reason.
type CancelCourseRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// RescheduleCourseRequest replaces a course's session set, optionally moving
// it to a different instructor.
type RescheduleCourseRequest struct {
	Schedule        SchedulePayload `json:"schedule"`
	Reason          string          `json:"reason" validate:"required"`
	NewInstructorID *string         `json:"new_instructor_id,omitempty"`
}

// RescheduleResult reports both sides of a completed reschedule.
type RescheduleResult struct {
	Original  models.ScheduledCourse `json:"original"`
	Successor models.CourseDetail    `json:"successor"`
}

// CourseService is the scheduling state machine. It orchestrates validation,
// availability resolution, conflict detection and pricing, and owns every
// lifecycle transition of a scheduled course. State never changes as a side
// effect of a field write; each transition is an explicit operation here.
type CourseService struct {
	courses     courseRepository
	reschedules rescheduleReader
	instructors instructorReader
	catalog     catalogReader
	schedule    *ScheduleValidator
	conflicts   conflictChecker
	pricing     schedulePricer
	locker      lock.Locker
	metrics     *MetricsService

	virtualLocation string
	validator       *validator.Validate
	logger          *zap.Logger
}

// CourseServiceConfig bundles collaborators for NewCourseService.
type CourseServiceConfig struct {
	Courses         courseRepository
	Reschedules     rescheduleReader
	Instructors     instructorReader
	Catalog         catalogReader
	Schedule        *ScheduleValidator
	Conflicts       conflictChecker
	Pricing         schedulePricer
	Locker          lock.Locker
	Metrics         *MetricsService
	VirtualLocation string
	Validator       *validator.Validate
	Logger          *zap.Logger
}

// NewCourseService instantiates CourseService.
func NewCourseService(cfg CourseServiceConfig) *CourseService {
	if cfg.Validator == nil {
		cfg.Validator = validator.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Schedule == nil {
		cfg.Schedule = NewScheduleValidator()
	}
	if cfg.VirtualLocation == "" {
		cfg.VirtualLocation = "virtual-classroom"
	}
	return &CourseService{
		courses:         cfg.Courses,
		reschedules:     cfg.Reschedules,
		instructors:     cfg.Instructors,
		catalog:         cfg.Catalog,
		schedule:        cfg.Schedule,
		conflicts:       cfg.Conflicts,
		pricing:         cfg.Pricing,
		locker:          cfg.Locker,
		metrics:         cfg.Metrics,
		virtualLocation: cfg.VirtualLocation,
		validator:       cfg.Validator,
		logger:          cfg.Logger,
	}
}

// Create validates and books a new scheduled course. Structural and logical
// problems are rejected before the instructor lock is taken; conflicts are
// checked inside it so no two requests can claim the same slot.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.CourseDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	sessions, err := s.expandAndValidate(req.Schedule)
	if err != nil {
		return nil, err
	}

	override, err := parseOverride(req.PriceOverride)
	if err != nil {
		return nil, err
	}

	instructor, err := s.loadActiveInstructor(ctx, req.InstructorID)
	if err != nil {
		return nil, err
	}

	catalogCourse, err := s.loadCatalogCourse(ctx, req.CatalogCourseID)
	if err != nil {
		return nil, err
	}

	locationID, err := s.resolveLocation(ctx, req.Modality, req.LocationID)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, instructor.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.checkConflicts(ctx, instructor.ID, sessions, ""); err != nil {
		return nil, err
	}

	price := s.pricing.Price(sessions, req.Modality, catalogCourse.BasePrice, override)

	state := models.CourseStateDraft
	if req.Confirm && req.MinParticipants == 0 {
		state = models.CourseStateConfirmed
	}

	course := models.ScheduledCourse{
		CatalogCourseID: catalogCourse.ID,
		InstructorID:    &instructor.ID,
		Modality:        req.Modality,
		LocationID:      locationID,
		MinParticipants: req.MinParticipants,
		Price:           price,
		PriceOverride:   override,
		State:           state,
	}

	if err := s.courses.CreateWithSessions(ctx, &course, sessions); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	s.metrics.RecordBookingCommitted()
	s.logger.Info("course scheduled",
		zap.String("course_id", course.ID),
		zap.String("instructor_id", instructor.ID),
		zap.String("state", string(state)),
		zap.Int("sessions", len(sessions)))

	return &models.CourseDetail{ScheduledCourse: course, Sessions: sessions}, nil
}

// Confirm flips a draft course to CONFIRMED, re-running conflict detection
// because other bookings may have landed since creation.
func (s *CourseService) Confirm(ctx context.Context, id string) (*models.CourseDetail, error) {
	course, err := s.loadCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	if course.State != models.CourseStateDraft {
		return nil, appErrors.Clone(appErrors.ErrStateError, "only draft courses can be confirmed")
	}
	if course.InstructorID == nil {
		return nil, appErrors.Clone(appErrors.ErrStateError, "course has no instructor assigned")
	}

	sessions, err := s.courses.ListSessions(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course sessions")
	}

	release, err := s.acquire(ctx, *course.InstructorID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.checkConflicts(ctx, *course.InstructorID, sessions, id); err != nil {
		return nil, err
	}

	if err := s.courses.UpdateState(ctx, id, models.CourseStateDraft, models.CourseStateConfirmed); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrConcurrentModification, "course state changed while confirming")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to confirm course")
	}

	course.State = models.CourseStateConfirmed
	s.logger.Info("course confirmed", zap.String("course_id", id))
	return &models.CourseDetail{ScheduledCourse: *course, Sessions: sessions}, nil
}

// Cancel terminates a draft or confirmed course. Repeating the call with the
// same reason is a no-op; a different reason is a state error.
func (s *CourseService) Cancel(ctx context.Context, id string, req CancelCourseRequest) (*models.CourseDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "cancellation reason is required")
	}

	course, err := s.loadCourse(ctx, id)
	if err != nil {
		return nil, err
	}

	switch course.State {
	case models.CourseStateCancelled:
		if course.CancelReason != nil && *course.CancelReason == req.Reason {
			return s.Get(ctx, id)
		}
		return nil, appErrors.Clone(appErrors.ErrStateError, "course already cancelled with a different reason")
	case models.CourseStateSuperseded:
		return nil, appErrors.Clone(appErrors.ErrStateError, "superseded courses cannot be cancelled")
	}

	if err := s.courses.Cancel(ctx, id, req.Reason, course.State); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrConcurrentModification, "course state changed while cancelling")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel course")
	}

	s.logger.Info("course cancelled", zap.String("course_id", id), zap.String("reason", req.Reason))
	return s.Get(ctx, id)
}

// Reschedule replaces a course's sessions by creating a successor course and
// marking the original SUPERSEDED, all inside one transaction. The original
// is never mutated in place and its history record survives forever. An
// optional new instructor makes the conflict check run against that
// instructor instead.
func (s *CourseService) Reschedule(ctx context.Context, id string, req RescheduleCourseRequest, actorID string) (*RescheduleResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reschedule payload")
	}

	newSessions, err := s.expandAndValidate(req.Schedule)
	if err != nil {
		return nil, err
	}

	original, err := s.loadCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	if original.State != models.CourseStateDraft && original.State != models.CourseStateConfirmed {
		return nil, appErrors.Clone(appErrors.ErrStateError, "only draft or confirmed courses can be rescheduled")
	}

	targetID := ""
	if req.NewInstructorID != nil {
		targetID = *req.NewInstructorID
	} else if original.InstructorID != nil {
		targetID = *original.InstructorID
	}
	if targetID == "" {
		return nil, appErrors.Clone(appErrors.ErrStateError, "course has no instructor to reschedule against")
	}

	target, err := s.loadActiveInstructor(ctx, targetID)
	if err != nil {
		return nil, err
	}

	catalogCourse, err := s.loadCatalogCourse(ctx, original.CatalogCourseID)
	if err != nil {
		return nil, err
	}

	// Lock every touched instructor in stable order so two reassigning
	// reschedules cannot deadlock each other.
	lockKeys := []string{target.ID}
	if original.InstructorID != nil && *original.InstructorID != target.ID {
		lockKeys = append(lockKeys, *original.InstructorID)
	}
	sort.Strings(lockKeys)
	for _, key := range lockKeys {
		release, err := s.acquire(ctx, key)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	if err := s.checkConflicts(ctx, target.ID, newSessions, id); err != nil {
		return nil, err
	}

	previousSessions, err := s.courses.ListSessions(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course sessions")
	}

	price := s.pricing.Price(newSessions, original.Modality, catalogCourse.BasePrice, original.PriceOverride)

	successor := models.ScheduledCourse{
		CatalogCourseID: original.CatalogCourseID,
		InstructorID:    &target.ID,
		Modality:        original.Modality,
		LocationID:      original.LocationID,
		MinParticipants: original.MinParticipants,
		Price:           price,
		PriceOverride:   original.PriceOverride,
		State:           original.State,
	}

	record, err := buildRescheduleRecord(original.ID, previousSessions, newSessions, req.Reason, actorID)
	if err != nil {
		return nil, err
	}

	if err := s.courses.Reschedule(ctx, original, &successor, newSessions, record); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrConcurrentModification, "course state changed while rescheduling")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reschedule course")
	}

	s.metrics.RecordBookingCommitted()
	s.logger.Info("course rescheduled",
		zap.String("course_id", id),
		zap.String("successor_id", successor.ID),
		zap.String("instructor_id", target.ID),
		zap.String("actor_id", actorID))

	original.State = models.CourseStateSuperseded
	original.SuccessorID = &successor.ID
	return &RescheduleResult{
		Original:  *original,
		Successor: models.CourseDetail{ScheduledCourse: successor, Sessions: newSessions},
	}, nil
}

// Get loads a course with sessions and full reschedule history.
func (s *CourseService) Get(ctx context.Context, id string) (*models.CourseDetail, error) {
	detail, err := s.courses.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	history, err := s.reschedules.ListByCourse(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reschedule history")
	}
	detail.History = history
	return detail, nil
}

// List returns courses with pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.ScheduledCourse, *models.Pagination, error) {
	courses, total, err := s.courses.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *CourseService) expandAndValidate(payload SchedulePayload) ([]models.Session, error) {
	inputs, err := s.schedule.Expand(payload)
	if err != nil {
		return nil, err
	}
	if err := s.schedule.Validate(inputs); err != nil {
		return nil, err
	}
	return toSessions(inputs)
}

func (s *CourseService) acquire(ctx context.Context, instructorID string) (func(), error) {
	start := time.Now()
	release, err := s.locker.Acquire(ctx, instructorID)
	s.metrics.ObserveLockWait(time.Since(start))
	if err != nil {
		s.metrics.RecordLockContention()
		return nil, err
	}
	return release, nil
}

func (s *CourseService) checkConflicts(ctx context.Context, instructorID string, sessions []models.Session, excludeCourseID string) error {
	if err := s.conflicts.Check(ctx, instructorID, sessions, excludeCourseID); err != nil {
		if appErr := appErrors.FromError(err); appErr != nil {
			s.metrics.RecordSchedulingConflict(appErr.Code)
		}
		return err
	}
	return nil
}

func (s *CourseService) loadCourse(ctx context.Context, id string) (*models.ScheduledCourse, error) {
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

func (s *CourseService) loadActiveInstructor(ctx context.Context, id string) (*models.Instructor, error) {
	instructor, err := s.instructors.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "instructor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
	}
	if !instructor.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "instructor is inactive")
	}
	return instructor, nil
}

func (s *CourseService) loadCatalogCourse(ctx context.Context, id string) (*models.CatalogCourse, error) {
	catalogCourse, err := s.catalog.FindCourseByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "catalog course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load catalog course")
	}
	if !catalogCourse.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "catalog course is inactive")
	}
	return catalogCourse, nil
}

// resolveLocation enforces the location rule: ONLINE deliveries use the
// reserved virtual location, everything else needs a real venue.
func (s *CourseService) resolveLocation(ctx context.Context, modality models.Modality, locationID string) (string, error) {
	if modality == models.ModalityOnline {
		return s.virtualLocation, nil
	}
	if locationID == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "location is required for on-site courses")
	}
	location, err := s.catalog.FindLocationByID(ctx, locationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", appErrors.Clone(appErrors.ErrNotFound, "location not found")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load location")
	}
	return location.ID, nil
}

func parseOverride(raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrStructural, "malformed price override")
	}
	if d.Sign() < 0 {
		return nil, appErrors.Clone(appErrors.ErrLogical, "price override must not be negative")
	}
	return &d, nil
}

func buildRescheduleRecord(courseID string, previous, next []models.Session, reason, actorID string) (*models.RescheduleRecord, error) {
	for i := range previous {
		previous[i].NormalizeWire()
	}
	for i := range next {
		next[i].NormalizeWire()
	}

	prevJSON, err := json.Marshal(previous)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot previous sessions")
	}
	nextJSON, err := json.Marshal(next)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot new sessions")
	}

	return &models.RescheduleRecord{
		CourseID:         courseID,
		PreviousSessions: prevJSON,
		NewSessions:      nextJSON,
		Reason:           reason,
		ActorID:          actorID,
	}, nil
}
