package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/traincal/scheduling-api/internal/models"
)

// RescheduleRepository reads the append-only reschedule history. Records are
// written only inside the course reschedule transaction; there is no update
// or delete path.
type RescheduleRepository struct {
	db *sqlx.DB
}

// NewRescheduleRepository creates a new reschedule repository.
func NewRescheduleRepository(db *sqlx.DB) *RescheduleRepository {
	return &RescheduleRepository{db: db}
}

// ListByCourse returns the history records of one course, oldest first.
func (r *RescheduleRepository) ListByCourse(ctx context.Context, courseID string) ([]models.RescheduleRecord, error) {
	const query = `SELECT id, course_id, successor_id, previous_sessions, new_sessions, reason, actor_id, created_at FROM reschedule_records WHERE course_id = $1 ORDER BY created_at ASC`
	var records []models.RescheduleRecord
	if err := r.db.SelectContext(ctx, &records, query, courseID); err != nil {
		return nil, fmt.Errorf("list reschedule records: %w", err)
	}
	return records, nil
}

// insertRescheduleRecord appends a record using the caller's transaction so
// history and the course transition commit as one unit.
func insertRescheduleRecord(ctx context.Context, tx *sqlx.Tx, record *models.RescheduleRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO reschedule_records (id, course_id, successor_id, previous_sessions, new_sessions, reason, actor_id, created_at) VALUES (:id, :course_id, :successor_id, :previous_sessions, :new_sessions, :reason, :actor_id, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, tx, query, record); err != nil {
		return fmt.Errorf("insert reschedule record: %w", err)
	}
	return nil
}
