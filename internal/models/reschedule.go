package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// RescheduleRecord is an immutable snapshot of one reschedule event.
// Records are append-only; they are never edited or removed.
type RescheduleRecord struct {
	ID               string         `db:"id" json:"id"`
	CourseID         string         `db:"course_id" json:"course_id"`
	SuccessorID      string         `db:"successor_id" json:"successor_id"`
	PreviousSessions types.JSONText `db:"previous_sessions" json:"previous_sessions"`
	NewSessions      types.JSONText `db:"new_sessions" json:"new_sessions"`
	Reason           string         `db:"reason" json:"reason"`
	ActorID          string         `db:"actor_id" json:"actor_id"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
}
