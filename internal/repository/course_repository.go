package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/traincal/scheduling-api/internal/models"
)

// liveStates excludes terminal courses from conflict detection; cancelled and
// superseded deliveries never hold instructor time.
const liveStatesPredicate = "state NOT IN ('CANCELLED', 'SUPERSEDED')"

const courseColumns = "id, catalog_course_id, instructor_id, modality, location_id, min_participants, price, price_override, state, cancel_reason, successor_id, created_at, updated_at"

const sessionColumns = "id, course_id, session_date, start_time, end_time, active, label, position"

// CourseRepository provides persistence for scheduled courses and their
// sessions.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository creates a new course repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID loads a course by id.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.ScheduledCourse, error) {
	query := fmt.Sprintf("SELECT %s FROM scheduled_courses WHERE id = $1", courseColumns)
	var course models.ScheduledCourse
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindDetailByID loads a course together with its sessions and history.
func (r *CourseRepository) FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	course, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	sessions, err := r.ListSessions(ctx, id)
	if err != nil {
		return nil, err
	}

	return &models.CourseDetail{ScheduledCourse: *course, Sessions: sessions}, nil
}

// ListSessions returns the ordered session list of one course.
func (r *CourseRepository) ListSessions(ctx context.Context, courseID string) ([]models.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM course_sessions WHERE course_id = $1 ORDER BY position ASC", sessionColumns)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, courseID); err != nil {
		return nil, fmt.Errorf("list course sessions: %w", err)
	}
	for i := range sessions {
		sessions[i].NormalizeWire()
	}
	return sessions, nil
}

// List returns courses with optional filtering and pagination.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.ScheduledCourse, int, error) {
	base := "FROM scheduled_courses WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.InstructorID != "" {
		conditions = append(conditions, fmt.Sprintf("instructor_id = $%d", len(args)+1))
		args = append(args, filter.InstructorID)
	}
	if filter.State != "" {
		conditions = append(conditions, fmt.Sprintf("state = $%d", len(args)+1))
		args = append(args, filter.State)
	}
	if filter.DateFrom != nil && filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("id IN (SELECT course_id FROM course_sessions WHERE session_date BETWEEN $%d AND $%d)", len(args)+1, len(args)+2))
		args = append(args, *filter.DateFrom, *filter.DateTo)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"created_at": true,
		"state":      true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", courseColumns, base, sortBy, order, size, offset)
	var courses []models.ScheduledCourse
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}

	return courses, total, nil
}

// ListInstructorSessions returns the active sessions of an instructor's live
// courses within a date span, optionally excluding the course being edited.
func (r *CourseRepository) ListInstructorSessions(ctx context.Context, instructorID string, from, to time.Time, excludeCourseID string) ([]models.Session, error) {
	query := fmt.Sprintf(`SELECT s.id, s.course_id, s.session_date, s.start_time, s.end_time, s.active, s.label, s.position FROM course_sessions s JOIN scheduled_courses c ON c.id = s.course_id WHERE c.instructor_id = $1 AND c.%s AND s.active = TRUE AND s.session_date BETWEEN $2 AND $3`, liveStatesPredicate)
	args := []interface{}{instructorID, from, to}
	if excludeCourseID != "" {
		query += " AND c.id <> $4"
		args = append(args, excludeCourseID)
	}
	query += " ORDER BY s.session_date ASC, s.start_time ASC"

	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list instructor sessions: %w", err)
	}
	for i := range sessions {
		sessions[i].NormalizeWire()
	}
	return sessions, nil
}

// CreateWithSessions inserts a course and its session list in one transaction.
func (r *CourseRepository) CreateWithSessions(ctx context.Context, course *models.ScheduledCourse, sessions []models.Session) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create course: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = r.insertCourse(ctx, tx, course); err != nil {
		return err
	}
	if err = r.insertSessions(ctx, tx, course.ID, sessions); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create course: %w", err)
	}
	return nil
}

// UpdateState flips a course's state when its current state still matches the
// expected one. Returns sql.ErrNoRows when the guard fails, so callers can
// distinguish a lost race from success.
func (r *CourseRepository) UpdateState(ctx context.Context, id string, from, to models.CourseState) error {
	res, err := r.db.ExecContext(ctx, `UPDATE scheduled_courses SET state = $3, updated_at = $4 WHERE id = $1 AND state = $2`, id, from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update course state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update course state: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Cancel marks a course cancelled with its reason, guarded on current state.
func (r *CourseRepository) Cancel(ctx context.Context, id, reason string, from models.CourseState) error {
	res, err := r.db.ExecContext(ctx, `UPDATE scheduled_courses SET state = 'CANCELLED', cancel_reason = $3, updated_at = $4 WHERE id = $1 AND state = $2`, id, from, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("cancel course: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel course: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Reschedule atomically persists a reschedule: the successor course with its
// sessions, the history record against the original, and the original's
// transition to SUPERSEDED. Any failure rolls the whole unit back.
func (r *CourseRepository) Reschedule(ctx context.Context, original *models.ScheduledCourse, successor *models.ScheduledCourse, successorSessions []models.Session, record *models.RescheduleRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reschedule: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = r.insertCourse(ctx, tx, successor); err != nil {
		return err
	}
	if err = r.insertSessions(ctx, tx, successor.ID, successorSessions); err != nil {
		return err
	}

	record.SuccessorID = successor.ID
	if err = insertRescheduleRecord(ctx, tx, record); err != nil {
		return err
	}

	var res sql.Result
	res, err = tx.ExecContext(ctx, `UPDATE scheduled_courses SET state = 'SUPERSEDED', successor_id = $3, updated_at = $4 WHERE id = $1 AND state = $2`, original.ID, original.State, successor.ID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("supersede course: %w", err)
	}
	var affected int64
	affected, err = res.RowsAffected()
	if err != nil {
		return fmt.Errorf("supersede course: %w", err)
	}
	if affected == 0 {
		err = sql.ErrNoRows
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit reschedule: %w", err)
	}
	return nil
}

func (r *CourseRepository) insertCourse(ctx context.Context, tx *sqlx.Tx, course *models.ScheduledCourse) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now

	const query = `INSERT INTO scheduled_courses (id, catalog_course_id, instructor_id, modality, location_id, min_participants, price, price_override, state, cancel_reason, successor_id, created_at, updated_at) VALUES (:id, :catalog_course_id, :instructor_id, :modality, :location_id, :min_participants, :price, :price_override, :state, :cancel_reason, :successor_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, tx, query, course); err != nil {
		return fmt.Errorf("insert course: %w", err)
	}
	return nil
}

func (r *CourseRepository) insertSessions(ctx context.Context, tx *sqlx.Tx, courseID string, sessions []models.Session) error {
	for i := range sessions {
		session := sessions[i]
		session.CourseID = courseID
		session.Position = i
		if session.ID == "" {
			session.ID = uuid.NewString()
		}

		if _, err := sqlx.NamedExecContext(ctx, tx, `INSERT INTO course_sessions (id, course_id, session_date, start_time, end_time, active, label, position) VALUES (:id, :course_id, :session_date, :start_time, :end_time, :active, :label, :position)`, &session); err != nil {
			return fmt.Errorf("insert course session: %w", err)
		}
		sessions[i] = session
	}
	return nil
}
