package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/traincal/scheduling-api/internal/models"
	appErrors "github.com/traincal/scheduling-api/pkg/errors"
)

type instructorRepository interface {
	List(ctx context.Context, filter models.InstructorFilter) ([]models.Instructor, int, error)
	FindByID(ctx context.Context, id string) (*models.Instructor, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, instructor *models.Instructor) error
	Update(ctx context.Context, instructor *models.Instructor) error
	Deactivate(ctx context.Context, id string) error
}

type availabilityWriter interface {
	ListSlots(ctx context.Context, instructorID string) ([]models.RecurringAvailabilitySlot, error)
	ReplaceSlots(ctx context.Context, instructorID string, slots []models.RecurringAvailabilitySlot) error
	ListExceptions(ctx context.Context, instructorID string, from, to time.Time) ([]models.AvailabilityException, error)
	ReplaceExceptions(ctx context.Context, instructorID string, exceptions []models.AvailabilityException) error
}

type availabilityInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CreateInstructorRequest is the payload for registering an instructor.
type CreateInstructorRequest struct {
	Email      string  `json:"email" validate:"required,email"`
	FullName   string  `json:"full_name" validate:"required"`
	Phone      *string `json:"phone,omitempty"`
	HourlyRate string  `json:"hourly_rate" validate:"required"`
}

// UpdateInstructorRequest carries partial updates; nil fields are untouched.
type UpdateInstructorRequest struct {
	Email      *string `json:"email,omitempty" validate:"omitempty,email"`
	FullName   *string `json:"full_name,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	HourlyRate *string `json:"hourly_rate,omitempty"`
	Active     *bool   `json:"active,omitempty"`
}

// SlotInput defines one recurring weekly window.
type SlotInput struct {
	Weekday   int     `json:"weekday" validate:"gte=0,lte=6"`
	StartTime string  `json:"start_time" validate:"required"`
	EndTime   string  `json:"end_time" validate:"required"`
	ValidFrom *string `json:"valid_from,omitempty"`
	ValidTo   *string `json:"valid_to,omitempty"`
	Active    *bool   `json:"active,omitempty"`
}

// ReplaceSlotsRequest swaps an instructor's full recurring pattern.
type ReplaceSlotsRequest struct {
	Slots []SlotInput `json:"slots" validate:"dive"`
}

// ExceptionInput defines one date-specific override.
type ExceptionInput struct {
	Date      string               `json:"date" validate:"required"`
	StartTime string               `json:"start_time" validate:"required"`
	EndTime   string               `json:"end_time" validate:"required"`
	Kind      models.ExceptionKind `json:"kind" validate:"required,oneof=BLOCKED EXTRA_OPEN"`
}

// ReplaceExceptionsRequest swaps an instructor's exception list.
type ReplaceExceptionsRequest struct {
	Exceptions []ExceptionInput `json:"exceptions" validate:"dive"`
}

// InstructorService manages instructors and their availability definitions.
// Every availability edit invalidates the cached calendars so the next
// conflict check sees the new pattern.
type InstructorService struct {
	repo         instructorRepository
	availability availabilityWriter
	cache        availabilityInvalidator
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewInstructorService constructs an InstructorService.
func NewInstructorService(repo instructorRepository, availability availabilityWriter, cache availabilityInvalidator, validate *validator.Validate, logger *zap.Logger) *InstructorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstructorService{repo: repo, availability: availability, cache: cache, validator: validate, logger: logger}
}

// List returns instructors matching the filter with pagination metadata.
func (s *InstructorService) List(ctx context.Context, filter models.InstructorFilter) ([]models.Instructor, *models.Pagination, error) {
	instructors, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list instructors")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return instructors, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads one instructor by ID.
func (s *InstructorService) Get(ctx context.Context, id string) (*models.Instructor, error) {
	instructor, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "instructor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
	}
	return instructor, nil
}

// Create registers a new instructor.
func (s *InstructorService) Create(ctx context.Context, req CreateInstructorRequest) (*models.Instructor, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid instructor payload")
	}

	rate, err := decimal.NewFromString(req.HourlyRate)
	if err != nil || rate.Sign() < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "hourly rate must be a non-negative decimal")
	}

	exists, err := s.repo.ExistsByEmail(ctx, req.Email, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check instructor email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already in use")
	}

	instructor := models.Instructor{
		Email:      req.Email,
		FullName:   req.FullName,
		Phone:      req.Phone,
		HourlyRate: rate,
		Active:     true,
	}
	if err := s.repo.Create(ctx, &instructor); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create instructor")
	}

	s.logger.Info("instructor created", zap.String("instructor_id", instructor.ID))
	return &instructor, nil
}

// Update applies a partial update to an instructor.
func (s *InstructorService) Update(ctx context.Context, id string, req UpdateInstructorRequest) (*models.Instructor, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid instructor payload")
	}

	instructor, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Email != nil && *req.Email != instructor.Email {
		exists, err := s.repo.ExistsByEmail(ctx, *req.Email, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check instructor email")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already in use")
		}
		instructor.Email = *req.Email
	}
	if req.FullName != nil {
		instructor.FullName = *req.FullName
	}
	if req.Phone != nil {
		instructor.Phone = req.Phone
	}
	if req.HourlyRate != nil {
		rate, err := decimal.NewFromString(*req.HourlyRate)
		if err != nil || rate.Sign() < 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "hourly rate must be a non-negative decimal")
		}
		instructor.HourlyRate = rate
	}
	if req.Active != nil {
		instructor.Active = *req.Active
	}

	if err := s.repo.Update(ctx, instructor); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update instructor")
	}

	s.logger.Info("instructor updated", zap.String("instructor_id", id))
	return instructor, nil
}

// Deactivate retires an instructor. Existing bookings are left untouched;
// new bookings against the instructor are rejected at create time.
func (s *InstructorService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate instructor")
	}
	s.logger.Info("instructor deactivated", zap.String("instructor_id", id))
	return nil
}

// ListSlots returns the recurring pattern for an instructor.
func (s *InstructorService) ListSlots(ctx context.Context, id string) ([]models.RecurringAvailabilitySlot, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	slots, err := s.availability.ListSlots(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list availability slots")
	}
	return slots, nil
}

// ReplaceSlots swaps the instructor's whole recurring pattern and drops any
// cached calendars derived from the old one.
func (s *InstructorService) ReplaceSlots(ctx context.Context, id string, req ReplaceSlotsRequest) ([]models.RecurringAvailabilitySlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slots payload")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	slots := make([]models.RecurringAvailabilitySlot, 0, len(req.Slots))
	for _, in := range req.Slots {
		slot, err := buildSlot(id, in)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}

	if err := s.availability.ReplaceSlots(ctx, id, slots); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace availability slots")
	}

	s.invalidateCalendars(ctx, id)
	s.logger.Info("availability slots replaced", zap.String("instructor_id", id), zap.Int("count", len(slots)))
	return slots, nil
}

// ListExceptions returns date overrides inside the window.
func (s *InstructorService) ListExceptions(ctx context.Context, id string, from, to time.Time) ([]models.AvailabilityException, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	exceptions, err := s.availability.ListExceptions(ctx, id, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list availability exceptions")
	}
	return exceptions, nil
}

// ReplaceExceptions swaps the instructor's exception list and drops cached calendars.
func (s *InstructorService) ReplaceExceptions(ctx context.Context, id string, req ReplaceExceptionsRequest) ([]models.AvailabilityException, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exceptions payload")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	exceptions := make([]models.AvailabilityException, 0, len(req.Exceptions))
	for _, in := range req.Exceptions {
		exception, err := buildException(id, in)
		if err != nil {
			return nil, err
		}
		exceptions = append(exceptions, exception)
	}

	if err := s.availability.ReplaceExceptions(ctx, id, exceptions); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace availability exceptions")
	}

	s.invalidateCalendars(ctx, id)
	s.logger.Info("availability exceptions replaced", zap.String("instructor_id", id), zap.Int("count", len(exceptions)))
	return exceptions, nil
}

func (s *InstructorService) invalidateCalendars(ctx context.Context, instructorID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, AvailabilityCachePattern(instructorID)); err != nil {
		s.logger.Warn("failed to invalidate availability cache",
			zap.String("instructor_id", instructorID), zap.Error(err))
	}
}

func buildSlot(instructorID string, in SlotInput) (models.RecurringAvailabilitySlot, error) {
	if err := validateClockWindow(in.StartTime, in.EndTime); err != nil {
		return models.RecurringAvailabilitySlot{}, err
	}
	slot := models.RecurringAvailabilitySlot{
		InstructorID: instructorID,
		Weekday:      in.Weekday,
		StartTime:    in.StartTime,
		EndTime:      in.EndTime,
		Active:       in.Active == nil || *in.Active,
	}
	if in.ValidFrom != nil {
		from, err := time.Parse(models.DateLayout, *in.ValidFrom)
		if err != nil {
			return models.RecurringAvailabilitySlot{}, appErrors.Clone(appErrors.ErrValidation, "malformed valid_from date")
		}
		slot.ValidFrom = &from
	}
	if in.ValidTo != nil {
		to, err := time.Parse(models.DateLayout, *in.ValidTo)
		if err != nil {
			return models.RecurringAvailabilitySlot{}, appErrors.Clone(appErrors.ErrValidation, "malformed valid_to date")
		}
		slot.ValidTo = &to
	}
	if slot.ValidFrom != nil && slot.ValidTo != nil && slot.ValidTo.Before(*slot.ValidFrom) {
		return models.RecurringAvailabilitySlot{}, appErrors.Clone(appErrors.ErrValidation, "valid_to precedes valid_from")
	}
	return slot, nil
}

func buildException(instructorID string, in ExceptionInput) (models.AvailabilityException, error) {
	date, err := time.Parse(models.DateLayout, in.Date)
	if err != nil {
		return models.AvailabilityException{}, appErrors.Clone(appErrors.ErrValidation, "malformed exception date")
	}
	if err := validateClockWindow(in.StartTime, in.EndTime); err != nil {
		return models.AvailabilityException{}, err
	}
	return models.AvailabilityException{
		InstructorID: instructorID,
		Date:         date,
		StartTime:    in.StartTime,
		EndTime:      in.EndTime,
		Kind:         in.Kind,
	}, nil
}

func validateClockWindow(start, end string) error {
	startMin, err := parseMinute(start)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "malformed start time")
	}
	endMin, err := parseMinute(end)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "malformed end time")
	}
	if startMin >= endMin {
		return appErrors.Clone(appErrors.ErrValidation, "start time must precede end time")
	}
	return nil
}
