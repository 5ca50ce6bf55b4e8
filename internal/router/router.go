package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/traincal/scheduling-api/internal/handler"
	"github.com/traincal/scheduling-api/internal/middleware"
	"github.com/traincal/scheduling-api/internal/models"
	"github.com/traincal/scheduling-api/internal/service"
	"github.com/traincal/scheduling-api/pkg/config"
	"github.com/traincal/scheduling-api/pkg/jobs"
	"github.com/traincal/scheduling-api/pkg/logger"
	corsmiddleware "github.com/traincal/scheduling-api/pkg/middleware/cors"
	reqidmiddleware "github.com/traincal/scheduling-api/pkg/middleware/requestid"
)

// Dependencies bundles everything the HTTP surface needs.
type Dependencies struct {
	Config        *config.Config
	Logger        *zap.Logger
	Auth          *service.AuthService
	Metrics       *service.MetricsService
	AuditQueue    *jobs.Queue
	Courses       *handler.CourseHandler
	Instructors   *handler.InstructorHandler
	Availability  *handler.AvailabilityHandler
	Observability *handler.MetricsHandler
}

// New builds the gin engine with all routes and middleware attached.
func New(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(deps.Config.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))

	r.GET("/health", deps.Observability.Health)
	r.GET("/ready", deps.Observability.Ready)
	r.GET("/metrics", deps.Observability.Prometheus)

	if deps.Config.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	anyRole := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleSeller)
	adminOnly := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)

	api := r.Group(deps.Config.APIPrefix)
	api.Use(middleware.JWT(deps.Auth))

	courses := api.Group("/courses")
	courses.GET("", anyRole, deps.Courses.List)
	courses.GET("/:id", anyRole, deps.Courses.Get)
	courses.POST("", anyRole,
		middleware.Audit(deps.AuditQueue, models.AuditActionCourseCreate, "courses"), deps.Courses.Create)
	courses.POST("/:id/confirm", anyRole,
		middleware.Audit(deps.AuditQueue, models.AuditActionCourseConfirm, "courses"), deps.Courses.Confirm)
	courses.POST("/:id/cancel", anyRole,
		middleware.Audit(deps.AuditQueue, models.AuditActionCourseCancel, "courses"), deps.Courses.Cancel)
	courses.POST("/:id/reschedule", anyRole,
		middleware.Audit(deps.AuditQueue, models.AuditActionCourseReschedule, "courses"), deps.Courses.Reschedule)

	instructors := api.Group("/instructors")
	instructors.GET("", anyRole, deps.Instructors.List)
	instructors.GET("/:id", anyRole, deps.Instructors.Get)
	instructors.POST("", adminOnly, deps.Instructors.Create)
	instructors.PUT("/:id", adminOnly, deps.Instructors.Update)
	instructors.DELETE("/:id", adminOnly, deps.Instructors.Delete)

	instructors.GET("/:id/availability", anyRole, deps.Availability.Resolve)
	instructors.GET("/:id/slots", anyRole, deps.Availability.ListSlots)
	instructors.PUT("/:id/slots", adminOnly,
		middleware.Audit(deps.AuditQueue, models.AuditActionAvailabilityEdit, "availability"), deps.Availability.ReplaceSlots)
	instructors.GET("/:id/exceptions", anyRole, deps.Availability.ListExceptions)
	instructors.PUT("/:id/exceptions", adminOnly,
		middleware.Audit(deps.AuditQueue, models.AuditActionAvailabilityEdit, "availability"), deps.Availability.ReplaceExceptions)

	return r
}
