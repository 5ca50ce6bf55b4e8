package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/traincal/scheduling-api/internal/middleware"
	"github.com/traincal/scheduling-api/internal/models"
	"github.com/traincal/scheduling-api/internal/service"
	"github.com/traincal/scheduling-api/pkg/lock"
)

const defaultCoursePayload = `{
	"catalog_course_id": "cat-1",
	"instructor_id": "ins-1",
	"modality": "ON_SITE",
	"location_id": "loc-1",
	"schedule": {"mode": "CUSTOM", "sessions": [{"date": "2026-03-02", "start_time": "09:00", "end_time": "12:00"}]}
}`

func TestSchedulingRoutesIntegration(t *testing.T) {
	router := buildSchedulingRouter()

	var courseID string

	t.Run("create course unauthorized", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/courses", bytes.NewBufferString(defaultCoursePayload))
		req.Header.Set("Content-Type", "application/json")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("create course as seller", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/courses", bytes.NewBufferString(defaultCoursePayload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleSeller))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusCreated, resp.Code)
		require.Contains(t, resp.Body.String(), `"state":"DRAFT"`)

		var body struct {
			Data struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		decodeBody(t, resp, &body)
		courseID = body.Data.ID
		require.NotEmpty(t, courseID)
	})

	t.Run("create course bad schedule mode", func(t *testing.T) {
		payload := `{"catalog_course_id":"cat-1","instructor_id":"ins-1","modality":"ONLINE","schedule":{"mode":"WEEKLY"}}`
		req, _ := http.NewRequest(http.MethodPost, "/courses", bytes.NewBufferString(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleSeller))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusBadRequest, resp.Code)
		require.Contains(t, resp.Body.String(), `"STRUCTURAL"`)
	})

	t.Run("get course detail", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/courses/"+courseID, nil)
		req.Header.Set("X-Test-Role", string(models.RoleSeller))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"sessions"`)
	})

	t.Run("confirm course", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/courses/"+courseID+"/confirm", nil)
		req.Header.Set("X-Test-Role", string(models.RoleSeller))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"state":"CONFIRMED"`)
	})

	t.Run("cancel without reason", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/courses/"+courseID+"/cancel", bytes.NewBufferString(`{}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleSeller))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("reschedule course", func(t *testing.T) {
		payload := `{"reason":"venue change","schedule":{"mode":"CUSTOM","sessions":[{"date":"2026-03-09","start_time":"09:00","end_time":"12:00"}]}}`
		req, _ := http.NewRequest(http.MethodPost, "/courses/"+courseID+"/reschedule", bytes.NewBufferString(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"SUPERSEDED"`)
	})
}

func TestInstructorRoutesIntegration(t *testing.T) {
	router := buildSchedulingRouter()

	t.Run("seller sees redacted instructor", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/instructors/ins-1", nil)
		req.Header.Set("X-Test-Role", string(models.RoleSeller))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.NotContains(t, resp.Body.String(), `"hourly_rate"`)
	})

	t.Run("admin sees compensation", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/instructors/ins-1", nil)
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"hourly_rate"`)
	})

	t.Run("seller cannot create instructor", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/instructors", bytes.NewBufferString(`{"email":"n@x.test","full_name":"New","hourly_rate":"75"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleSeller))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("admin replaces slots", func(t *testing.T) {
		payload := `{"slots":[{"weekday":1,"start_time":"09:00","end_time":"17:00"}]}`
		req, _ := http.NewRequest(http.MethodPut, "/instructors/ins-1/slots", bytes.NewBufferString(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
	})

	t.Run("resolve availability window", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/instructors/ins-1/availability?from=2026-03-02&to=2026-03-06", nil)
		req.Header.Set("X-Test-Role", string(models.RoleSeller))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"2026-03-02"`)
	})

	t.Run("resolve availability inverted window", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/instructors/ins-1/availability?from=2026-03-06&to=2026-03-02", nil)
		req.Header.Set("X-Test-Role", string(models.RoleSeller))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusBadRequest, resp.Code)
	})
}

func buildSchedulingRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set(middleware.ContextUserKey, &models.JWTClaims{
				UserID: "test-user",
				Role:   models.UserRole(role),
			})
		}
		c.Next()
	})

	instructorStore := newInstructorStoreStub()
	availabilityStore := &availabilityStoreStub{}
	courseStore := newCourseStoreStub()

	courseService := service.NewCourseService(service.CourseServiceConfig{
		Courses:     courseStore,
		Reschedules: courseStore,
		Instructors: instructorStore,
		Catalog: &catalogStoreStub{
			courses:   map[string]*models.CatalogCourse{"cat-1": {ID: "cat-1", Title: "Forklift Safety", BasePrice: decimal.NewFromInt(500), Active: true}},
			locations: map[string]*models.Location{"loc-1": {ID: "loc-1", Name: "Depot", Active: true}},
		},
		Conflicts: allowAllConflicts{},
		Pricing:   flatPricer{},
		Locker:    lock.NewMemoryLocker(lock.Options{}),
	})
	instructorService := service.NewInstructorService(instructorStore, availabilityStore, nil, nil, nil)
	availabilityService := service.NewAvailabilityService(availabilityStore, nil, time.Minute, nil)

	courseHandler := NewCourseHandler(courseService)
	instructorHandler := NewInstructorHandler(instructorService)
	availabilityHandler := NewAvailabilityHandler(availabilityService, instructorService)

	anyRole := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleSeller)
	adminOnly := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)

	courses := router.Group("/courses")
	courses.GET("/:id", anyRole, courseHandler.Get)
	courses.POST("", anyRole, courseHandler.Create)
	courses.POST("/:id/confirm", anyRole, courseHandler.Confirm)
	courses.POST("/:id/cancel", anyRole, courseHandler.Cancel)
	courses.POST("/:id/reschedule", anyRole, courseHandler.Reschedule)

	instructors := router.Group("/instructors")
	instructors.GET("/:id", anyRole, instructorHandler.Get)
	instructors.POST("", adminOnly, instructorHandler.Create)
	instructors.GET("/:id/availability", anyRole, availabilityHandler.Resolve)
	instructors.PUT("/:id/slots", adminOnly, availabilityHandler.ReplaceSlots)

	return router
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), out))
}

type courseStoreStub struct {
	mu       sync.Mutex
	courses  map[string]*models.ScheduledCourse
	sessions map[string][]models.Session
	records  []*models.RescheduleRecord
	seq      int
}

func newCourseStoreStub() *courseStoreStub {
	return &courseStoreStub{courses: make(map[string]*models.ScheduledCourse), sessions: make(map[string][]models.Session)}
}

func (s *courseStoreStub) FindByID(ctx context.Context, id string) (*models.ScheduledCourse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	course, ok := s.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *course
	return &cp, nil
}

func (s *courseStoreStub) FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	course, ok := s.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *course
	return &models.CourseDetail{ScheduledCourse: cp, Sessions: append([]models.Session(nil), s.sessions[id]...)}, nil
}

func (s *courseStoreStub) ListSessions(ctx context.Context, courseID string) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Session(nil), s.sessions[courseID]...), nil
}

func (s *courseStoreStub) List(ctx context.Context, filter models.CourseFilter) ([]models.ScheduledCourse, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ScheduledCourse
	for _, c := range s.courses {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (s *courseStoreStub) CreateWithSessions(ctx context.Context, course *models.ScheduledCourse, sessions []models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	course.ID = fmt.Sprintf("course-%d", s.seq)
	cp := *course
	s.courses[course.ID] = &cp
	s.sessions[course.ID] = append([]models.Session(nil), sessions...)
	return nil
}

func (s *courseStoreStub) UpdateState(ctx context.Context, id string, from, to models.CourseState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	course, ok := s.courses[id]
	if !ok || course.State != from {
		return sql.ErrNoRows
	}
	course.State = to
	return nil
}

func (s *courseStoreStub) Cancel(ctx context.Context, id, reason string, from models.CourseState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	course, ok := s.courses[id]
	if !ok || course.State != from {
		return sql.ErrNoRows
	}
	course.State = models.CourseStateCancelled
	course.CancelReason = &reason
	return nil
}

func (s *courseStoreStub) Reschedule(ctx context.Context, original *models.ScheduledCourse, successor *models.ScheduledCourse, successorSessions []models.Session, record *models.RescheduleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.courses[original.ID]
	if !ok || stored.State != original.State {
		return sql.ErrNoRows
	}
	s.seq++
	successor.ID = fmt.Sprintf("course-%d", s.seq)
	cp := *successor
	s.courses[successor.ID] = &cp
	s.sessions[successor.ID] = append([]models.Session(nil), successorSessions...)
	record.SuccessorID = successor.ID
	s.records = append(s.records, record)
	stored.State = models.CourseStateSuperseded
	stored.SuccessorID = &successor.ID
	return nil
}

func (s *courseStoreStub) ListByCourse(ctx context.Context, courseID string) ([]models.RescheduleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RescheduleRecord
	for _, r := range s.records {
		if r.CourseID == courseID {
			out = append(out, *r)
		}
	}
	return out, nil
}

type instructorStoreStub struct {
	mu    sync.Mutex
	items map[string]*models.Instructor
}

func newInstructorStoreStub() *instructorStoreStub {
	return &instructorStoreStub{items: map[string]*models.Instructor{
		"ins-1": {ID: "ins-1", Email: "one@x.test", FullName: "Instructor One", HourlyRate: decimal.NewFromInt(80), Active: true},
	}}
}

func (s *instructorStoreStub) List(ctx context.Context, filter models.InstructorFilter) ([]models.Instructor, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Instructor
	for _, i := range s.items {
		out = append(out, *i)
	}
	return out, len(out), nil
}

func (s *instructorStoreStub) FindByID(ctx context.Context, id string) (*models.Instructor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	instructor, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *instructor
	return &cp, nil
}

func (s *instructorStoreStub) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.items {
		if i.Email == email && i.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (s *instructorStoreStub) Create(ctx context.Context, instructor *models.Instructor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if instructor.ID == "" {
		instructor.ID = fmt.Sprintf("ins-%d", len(s.items)+1)
	}
	cp := *instructor
	s.items[instructor.ID] = &cp
	return nil
}

func (s *instructorStoreStub) Update(ctx context.Context, instructor *models.Instructor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *instructor
	s.items[instructor.ID] = &cp
	return nil
}

func (s *instructorStoreStub) Deactivate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if instructor, ok := s.items[id]; ok {
		instructor.Active = false
	}
	return nil
}

type availabilityStoreStub struct {
	mu         sync.Mutex
	slots      []models.RecurringAvailabilitySlot
	exceptions []models.AvailabilityException
}

func (s *availabilityStoreStub) ListSlots(ctx context.Context, instructorID string) ([]models.RecurringAvailabilitySlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.RecurringAvailabilitySlot(nil), s.slots...), nil
}

func (s *availabilityStoreStub) ReplaceSlots(ctx context.Context, instructorID string, slots []models.RecurringAvailabilitySlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots = append([]models.RecurringAvailabilitySlot(nil), slots...)
	return nil
}

func (s *availabilityStoreStub) ListExceptions(ctx context.Context, instructorID string, from, to time.Time) ([]models.AvailabilityException, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AvailabilityException(nil), s.exceptions...), nil
}

func (s *availabilityStoreStub) ReplaceExceptions(ctx context.Context, instructorID string, exceptions []models.AvailabilityException) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exceptions = append([]models.AvailabilityException(nil), exceptions...)
	return nil
}

type catalogStoreStub struct {
	courses   map[string]*models.CatalogCourse
	locations map[string]*models.Location
}

func (s *catalogStoreStub) FindCourseByID(ctx context.Context, id string) (*models.CatalogCourse, error) {
	course, ok := s.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *course
	return &cp, nil
}

func (s *catalogStoreStub) FindLocationByID(ctx context.Context, id string) (*models.Location, error) {
	location, ok := s.locations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *location
	return &cp, nil
}

type allowAllConflicts struct{}

func (allowAllConflicts) Check(ctx context.Context, instructorID string, proposed []models.Session, excludeCourseID string) error {
	return nil
}

type flatPricer struct{}

func (flatPricer) Price(sessions []models.Session, modality models.Modality, basePrice decimal.Decimal, override *decimal.Decimal) decimal.Decimal {
	if override != nil {
		return override.Round(2)
	}
	return basePrice.Round(2)
}
