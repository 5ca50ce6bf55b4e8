package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Instructor represents a trainer whose time is booked against courses.
// HourlyRate is compensation data and must only appear in privileged views.
type Instructor struct {
	ID         string          `db:"id" json:"id"`
	Email      string          `db:"email" json:"email"`
	FullName   string          `db:"full_name" json:"full_name"`
	Phone      *string         `db:"phone" json:"phone,omitempty"`
	HourlyRate decimal.Decimal `db:"hourly_rate" json:"hourly_rate"`
	Active     bool            `db:"active" json:"active"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// InstructorView is the unprivileged projection without compensation data.
type InstructorView struct {
	ID       string  `json:"id"`
	Email    string  `json:"email"`
	FullName string  `json:"full_name"`
	Phone    *string `json:"phone,omitempty"`
	Active   bool    `json:"active"`
}

// View strips privileged fields from an instructor.
func (i Instructor) View() InstructorView {
	return InstructorView{
		ID:       i.ID,
		Email:    i.Email,
		FullName: i.FullName,
		Phone:    i.Phone,
		Active:   i.Active,
	}
}

// InstructorFilter captures filtering criteria for listing instructors.
type InstructorFilter struct {
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
