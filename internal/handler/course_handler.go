package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/traincal/scheduling-api/internal/models"
	"github.com/traincal/scheduling-api/internal/service"
	appErrors "github.com/traincal/scheduling-api/pkg/errors"
	"github.com/traincal/scheduling-api/pkg/response"
)

// CourseHandler wires the scheduling state machine to HTTP routes.
type CourseHandler struct {
	courses *service.CourseService
}

// NewCourseHandler constructs a new CourseHandler.
func NewCourseHandler(courses *service.CourseService) *CourseHandler {
	return &CourseHandler{courses: courses}
}

// Create godoc
// @Summary Schedule a course
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body service.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	var req service.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}
	detail, err := h.courses.Create(c.Request.Context(), req)
	if err != nil {
		respondSchedulingError(c, err)
		return
	}
	response.Created(c, detail)
}

// Get godoc
// @Summary Get course detail with sessions and reschedule history
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	detail, err := h.courses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// List godoc
// @Summary List scheduled courses
// @Tags Courses
// @Produce json
// @Param instructor_id query string false "Filter by instructor"
// @Param state query string false "Filter by lifecycle state"
// @Param from query string false "Sessions on or after date (YYYY-MM-DD)"
// @Param to query string false "Sessions on or before date (YYYY-MM-DD)"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	filter := models.CourseFilter{
		InstructorID: c.Query("instructor_id"),
		State:        c.Query("state"),
		SortBy:       c.Query("sort"),
		SortOrder:    c.Query("order"),
	}
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(models.DateLayout, from)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "malformed from date"))
			return
		}
		filter.DateFrom = &t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(models.DateLayout, to)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "malformed to date"))
			return
		}
		filter.DateTo = &t
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	courses, pagination, err := h.courses.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, pagination)
}

// Confirm godoc
// @Summary Confirm a draft course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id}/confirm [post]
func (h *CourseHandler) Confirm(c *gin.Context) {
	detail, err := h.courses.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondSchedulingError(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Cancel godoc
// @Summary Cancel a course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.CancelCourseRequest true "Cancellation payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id}/cancel [post]
func (h *CourseHandler) Cancel(c *gin.Context) {
	var req service.CancelCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cancellation payload"))
		return
	}
	detail, err := h.courses.Cancel(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Reschedule godoc
// @Summary Reschedule a course onto a new session set
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.RescheduleCourseRequest true "Reschedule payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id}/reschedule [post]
func (h *CourseHandler) Reschedule(c *gin.Context) {
	var req service.RescheduleCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reschedule payload"))
		return
	}
	actorID := ""
	if claims := claimsFromContext(c); claims != nil {
		actorID = claims.UserID
	}
	result, err := h.courses.Reschedule(c.Request.Context(), c.Param("id"), req, actorID)
	if err != nil {
		respondSchedulingError(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// respondSchedulingError surfaces structured conflict and validation detail
// alongside the error envelope.
func respondSchedulingError(c *gin.Context, err error) {
	var validation *models.ScheduleValidationError
	if errors.As(err, &validation) {
		response.ErrorWithDetails(c, err, validation.Errors)
		return
	}
	var availability *models.AvailabilityConflictError
	if errors.As(err, &availability) {
		response.ErrorWithDetails(c, err, availability.Violations)
		return
	}
	var booking *models.BookingConflictError
	if errors.As(err, &booking) {
		response.ErrorWithDetails(c, err, booking.Conflicts)
		return
	}
	response.Error(c, err)
}
