package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CourseState represents lifecycle phases for a scheduled course.
type CourseState string

const (
	CourseStateDraft      CourseState = "DRAFT"
	CourseStateConfirmed  CourseState = "CONFIRMED"
	CourseStateCancelled  CourseState = "CANCELLED"
	CourseStateSuperseded CourseState = "SUPERSEDED"
)

// Terminal reports whether no further transitions are allowed.
func (s CourseState) Terminal() bool {
	return s == CourseStateCancelled || s == CourseStateSuperseded
}

// Modality is the delivery mode of a course occurrence.
type Modality string

const (
	ModalityOnSite Modality = "ON_SITE"
	ModalityOnline Modality = "ONLINE"
)

// ScheduledCourse is the aggregate root for one delivery of a catalog course.
type ScheduledCourse struct {
	ID              string           `db:"id" json:"id"`
	CatalogCourseID string           `db:"catalog_course_id" json:"catalog_course_id"`
	InstructorID    *string          `db:"instructor_id" json:"instructor_id,omitempty"`
	Modality        Modality         `db:"modality" json:"modality"`
	LocationID      string           `db:"location_id" json:"location_id"`
	MinParticipants int              `db:"min_participants" json:"min_participants"`
	Price           decimal.Decimal  `db:"price" json:"price"`
	PriceOverride   *decimal.Decimal `db:"price_override" json:"price_override,omitempty"`
	State           CourseState      `db:"state" json:"state"`
	CancelReason    *string          `db:"cancel_reason" json:"cancel_reason,omitempty"`
	SuccessorID     *string          `db:"successor_id" json:"successor_id,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}

// Session is one concrete date/time block belonging to a scheduled course.
type Session struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Date      time.Time `db:"session_date" json:"-"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
	Active    bool      `db:"active" json:"active"`
	Label     string    `db:"label" json:"label"`
	Position  int       `db:"position" json:"-"`

	// DateString carries the date on the wire in DateLayout form.
	DateString string `db:"-" json:"date"`
}

// NormalizeWire fills the wire date string from the stored date.
func (s *Session) NormalizeWire() {
	if s.DateString == "" && !s.Date.IsZero() {
		s.DateString = s.Date.Format(DateLayout)
	}
}

// CourseDetail bundles a course with its sessions and reschedule history.
type CourseDetail struct {
	ScheduledCourse
	Sessions []Session          `json:"sessions"`
	History  []RescheduleRecord `json:"history,omitempty"`
}

// CourseFilter describes query params for listing courses.
type CourseFilter struct {
	InstructorID string
	State        string
	DateFrom     *time.Time
	DateTo       *time.Time
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// SessionFieldError is a field-level validation failure attributable to one
// session index.
type SessionFieldError struct {
	Index   int    `json:"index"`
	Field   string `json:"field,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ScheduleValidationError aggregates per-session validation failures.
type ScheduleValidationError struct {
	Errors []SessionFieldError `json:"errors"`
}

// Error implements the error interface.
func (e *ScheduleValidationError) Error() string {
	if e == nil || len(e.Errors) == 0 {
		return "invalid session set"
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fmt.Sprintf("session %d: %s", fe.Index, fe.Message))
	}
	return strings.Join(parts, "; ")
}

// BookingConflict names an existing course session that collides with a
// proposed one.
type BookingConflict struct {
	CourseID     string `json:"course_id"`
	SessionID    string `json:"session_id,omitempty"`
	Date         string `json:"date"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	ProposedIdx  int    `json:"proposed_index"`
	InstructorID string `json:"instructor_id"`
}

// BookingConflictError is returned when proposed sessions collide with
// another course of the same instructor.
type BookingConflictError struct {
	Conflicts []BookingConflict `json:"conflicts"`
}

// Error implements the error interface.
func (e *BookingConflictError) Error() string {
	if e == nil || len(e.Conflicts) == 0 {
		return "booking conflict"
	}
	return fmt.Sprintf("booking conflict with course %s on %s", e.Conflicts[0].CourseID, e.Conflicts[0].Date)
}

// AvailabilityViolation names a proposed session falling outside resolved
// open time.
type AvailabilityViolation struct {
	ProposedIdx int    `json:"proposed_index"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

// AvailabilityConflictError is returned when proposed sessions are not fully
// covered by the instructor's resolved availability.
type AvailabilityConflictError struct {
	Violations []AvailabilityViolation `json:"violations"`
}

// Error implements the error interface.
func (e *AvailabilityConflictError) Error() string {
	if e == nil || len(e.Violations) == 0 {
		return "availability conflict"
	}
	v := e.Violations[0]
	return fmt.Sprintf("session %d on %s %s-%s is outside instructor availability", v.ProposedIdx, v.Date, v.StartTime, v.EndTime)
}
