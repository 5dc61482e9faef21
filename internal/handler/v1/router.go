package v1

import (
	"net/http"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/config"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/directory"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/service"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/auth"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/metrics"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type RouterDeps struct {
	Appointments *service.AppointmentService
	Availability *service.AvailabilityService
	Profiles     *service.ProfileService
	Auth         *service.AuthService

	JWT       *auth.JWTManager
	Directory directory.Directory

	// GlobalLimiter applies to every API request, AuthLimiter additionally
	// to the credential endpoints. Either may be nil.
	GlobalLimiter ratelimit.Limiter
	AuthLimiter   ratelimit.Limiter
	FailOpen      bool

	CORS     config.CORSConfig
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer
	Log      *zap.Logger
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Recovery(d.Log), AccessLog(d.Log), Metrics(d.Metrics), CORS(d.CORS))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.MetricsHandler(d.Gatherer)))
	}

	api := r.Group("/api/v1")
	if d.GlobalLimiter != nil {
		api.Use(RateLimit(d.GlobalLimiter, "global", d.FailOpen, d.Metrics, d.Log))
	}

	authH := NewAuthHandler(d.Auth, d.Log)
	authn := Authenticate(d.JWT, d.Directory, d.Log)

	credentials := api.Group("/auth")
	if d.AuthLimiter != nil {
		credentials.Use(RateLimit(d.AuthLimiter, "auth", d.FailOpen, d.Metrics, d.Log))
	}
	credentials.POST("/login", authH.Login)
	credentials.POST("/refresh", authH.Refresh)
	credentials.POST("/password", authn, authH.ChangePassword)

	schedH := NewScheduleHandler(d.Availability, d.Log)
	api.GET("/doctors/:id/workplaces/:workplaceId/slots", schedH.Slots)

	protected := api.Group("", authn)

	profH := NewProfileHandler(d.Profiles, d.Log)
	apptH := NewAppointmentHandler(d.Appointments, d.Log)

	doctors := protected.Group("/doctors")
	doctors.GET("/:id", profH.GetDoctor)
	doctors.PATCH("/:id", profH.UpdateDoctor)

	patients := protected.Group("/patients")
	patients.GET("/:id", profH.GetPatient)
	patients.PATCH("/:id", profH.UpdatePatient)

	appts := protected.Group("/appointments")
	appts.POST("", apptH.Create)
	appts.GET("", apptH.List)
	appts.GET("/:id", apptH.Get)
	appts.PATCH("/:id", apptH.Update)
	appts.POST("/:id/transition", apptH.Transition)
	appts.POST("/:id/cancel", apptH.Cancel)

	return r
}
