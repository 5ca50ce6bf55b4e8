package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/traincal/scheduling-api/internal/models"
	"github.com/traincal/scheduling-api/internal/service"
	appErrors "github.com/traincal/scheduling-api/pkg/errors"
	"github.com/traincal/scheduling-api/pkg/response"
)

// AvailabilityHandler exposes resolved calendars and the underlying
// availability definitions for an instructor.
type AvailabilityHandler struct {
	availability *service.AvailabilityService
	instructors  *service.InstructorService
}

// NewAvailabilityHandler constructs a new AvailabilityHandler.
func NewAvailabilityHandler(availability *service.AvailabilityService, instructors *service.InstructorService) *AvailabilityHandler {
	return &AvailabilityHandler{availability: availability, instructors: instructors}
}

// Resolve godoc
// @Summary Resolve an instructor's effective availability for a date window
// @Tags Availability
// @Produce json
// @Param id path string true "Instructor ID"
// @Param from query string true "Window start (YYYY-MM-DD)"
// @Param to query string true "Window end (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /instructors/{id}/availability [get]
func (h *AvailabilityHandler) Resolve(c *gin.Context) {
	from, to, err := parseWindow(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if _, err := h.instructors.Get(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	days, err := h.availability.Resolve(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, days, nil)
}

// ListSlots godoc
// @Summary List an instructor's recurring availability slots
// @Tags Availability
// @Produce json
// @Param id path string true "Instructor ID"
// @Success 200 {object} response.Envelope
// @Router /instructors/{id}/slots [get]
func (h *AvailabilityHandler) ListSlots(c *gin.Context) {
	slots, err := h.instructors.ListSlots(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// ReplaceSlots godoc
// @Summary Replace an instructor's recurring availability pattern
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path string true "Instructor ID"
// @Param payload body service.ReplaceSlotsRequest true "Slots payload"
// @Success 200 {object} response.Envelope
// @Router /instructors/{id}/slots [put]
func (h *AvailabilityHandler) ReplaceSlots(c *gin.Context) {
	var req service.ReplaceSlotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid slots payload"))
		return
	}
	slots, err := h.instructors.ReplaceSlots(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// ListExceptions godoc
// @Summary List an instructor's availability exceptions in a date window
// @Tags Availability
// @Produce json
// @Param id path string true "Instructor ID"
// @Param from query string true "Window start (YYYY-MM-DD)"
// @Param to query string true "Window end (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /instructors/{id}/exceptions [get]
func (h *AvailabilityHandler) ListExceptions(c *gin.Context) {
	from, to, err := parseWindow(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	exceptions, err := h.instructors.ListExceptions(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exceptions, nil)
}

// ReplaceExceptions godoc
// @Summary Replace an instructor's availability exceptions
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path string true "Instructor ID"
// @Param payload body service.ReplaceExceptionsRequest true "Exceptions payload"
// @Success 200 {object} response.Envelope
// @Router /instructors/{id}/exceptions [put]
func (h *AvailabilityHandler) ReplaceExceptions(c *gin.Context) {
	var req service.ReplaceExceptionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid exceptions payload"))
		return
	}
	exceptions, err := h.instructors.ReplaceExceptions(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exceptions, nil)
}

func parseWindow(c *gin.Context) (time.Time, time.Time, error) {
	from, err := time.Parse(models.DateLayout, c.Query("from"))
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "malformed or missing from date")
	}
	to, err := time.Parse(models.DateLayout, c.Query("to"))
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "malformed or missing to date")
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "to date precedes from date")
	}
	return from, to, nil
}
