package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/traincal/scheduling-api/internal/models"
)

// AvailabilityRepository persists recurring slots and date exceptions.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository creates a new availability repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// ListSlots returns all recurring slots for an instructor ordered by weekday
// and start time.
func (r *AvailabilityRepository) ListSlots(ctx context.Context, instructorID string) ([]models.RecurringAvailabilitySlot, error) {
	const query = `SELECT id, instructor_id, weekday, start_time, end_time, valid_from, valid_to, active, created_at, updated_at FROM recurring_availability_slots WHERE instructor_id = $1 ORDER BY weekday ASC, start_time ASC`
	var slots []models.RecurringAvailabilitySlot
	if err := r.db.SelectContext(ctx, &slots, query, instructorID); err != nil {
		return nil, fmt.Errorf("list availability slots: %w", err)
	}
	return slots, nil
}

// ReplaceSlots swaps the full recurring slot set for an instructor in one
// transaction.
func (r *AvailabilityRepository) ReplaceSlots(ctx context.Context, instructorID string, slots []models.RecurringAvailabilitySlot) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace slots: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM recurring_availability_slots WHERE instructor_id = $1`, instructorID); err != nil {
		return fmt.Errorf("clear availability slots: %w", err)
	}

	now := time.Now().UTC()
	for i := range slots {
		slot := slots[i]
		slot.InstructorID = instructorID
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		if slot.CreatedAt.IsZero() {
			slot.CreatedAt = now
		}
		slot.UpdatedAt = now

		if _, err = sqlx.NamedExecContext(ctx, tx, `INSERT INTO recurring_availability_slots (id, instructor_id, weekday, start_time, end_time, valid_from, valid_to, active, created_at, updated_at) VALUES (:id, :instructor_id, :weekday, :start_time, :end_time, :valid_from, :valid_to, :active, :created_at, :updated_at)`, &slot); err != nil {
			return fmt.Errorf("insert availability slot: %w", err)
		}
		slots[i] = slot
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace slots: %w", err)
	}
	return nil
}

// ListExceptions returns the exceptions for an instructor within a date span.
func (r *AvailabilityRepository) ListExceptions(ctx context.Context, instructorID string, from, to time.Time) ([]models.AvailabilityException, error) {
	const query = `SELECT id, instructor_id, exception_date, start_time, end_time, kind, created_at FROM availability_exceptions WHERE instructor_id = $1 AND exception_date BETWEEN $2 AND $3 ORDER BY exception_date ASC, start_time ASC`
	var exceptions []models.AvailabilityException
	if err := r.db.SelectContext(ctx, &exceptions, query, instructorID, from, to); err != nil {
		return nil, fmt.Errorf("list availability exceptions: %w", err)
	}
	return exceptions, nil
}

// ReplaceExceptions swaps the full exception set for an instructor.
func (r *AvailabilityRepository) ReplaceExceptions(ctx context.Context, instructorID string, exceptions []models.AvailabilityException) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace exceptions: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM availability_exceptions WHERE instructor_id = $1`, instructorID); err != nil {
		return fmt.Errorf("clear availability exceptions: %w", err)
	}

	now := time.Now().UTC()
	for i := range exceptions {
		exception := exceptions[i]
		exception.InstructorID = instructorID
		if exception.ID == "" {
			exception.ID = uuid.NewString()
		}
		if exception.CreatedAt.IsZero() {
			exception.CreatedAt = now
		}

		if _, err = sqlx.NamedExecContext(ctx, tx, `INSERT INTO availability_exceptions (id, instructor_id, exception_date, start_time, end_time, kind, created_at) VALUES (:id, :instructor_id, :exception_date, :start_time, :end_time, :kind, :created_at)`, &exception); err != nil {
			return fmt.Errorf("insert availability exception: %w", err)
		}
		exceptions[i] = exception
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace exceptions: %w", err)
	}
	return nil
}
