package models

import "time"

// Wire formats for calendar dates and clock times (24-hour).
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// RecurringAvailabilitySlot is a standing weekly open window for an
// instructor. Weekday follows time.Weekday numbering (0 = Sunday).
type RecurringAvailabilitySlot struct {
	ID           string     `db:"id" json:"id"`
	InstructorID string     `db:"instructor_id" json:"instructor_id"`
	Weekday      int        `db:"weekday" json:"weekday"`
	StartTime    string     `db:"start_time" json:"start_time"`
	EndTime      string     `db:"end_time" json:"end_time"`
	ValidFrom    *time.Time `db:"valid_from" json:"valid_from,omitempty"`
	ValidTo      *time.Time `db:"valid_to" json:"valid_to,omitempty"`
	Active       bool       `db:"active" json:"active"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// ExceptionKind discriminates date-specific availability overrides.
type ExceptionKind string

const (
	ExceptionBlocked   ExceptionKind = "BLOCKED"
	ExceptionExtraOpen ExceptionKind = "EXTRA_OPEN"
)

// AvailabilityException overrides the recurring pattern for one date only.
type AvailabilityException struct {
	ID           string        `db:"id" json:"id"`
	InstructorID string        `db:"instructor_id" json:"instructor_id"`
	Date         time.Time     `db:"exception_date" json:"date"`
	StartTime    string        `db:"start_time" json:"start_time"`
	EndTime      string        `db:"end_time" json:"end_time"`
	Kind         ExceptionKind `db:"kind" json:"kind"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
}

// TimeRange is one open interval within a day, bounds in TimeLayout format.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// DailyAvailability lists the resolved open intervals for a single date,
// sorted and non-overlapping.
type DailyAvailability struct {
	Date string      `json:"date"`
	Open []TimeRange `json:"open"`
}
