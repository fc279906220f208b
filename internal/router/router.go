package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/testschool/assessment-backend/internal/config"
	"github.com/testschool/assessment-backend/internal/handler"
	"github.com/testschool/assessment-backend/internal/middleware"
	"github.com/testschool/assessment-backend/internal/model"
	"github.com/testschool/assessment-backend/internal/response"
	"github.com/testschool/assessment-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth        *handler.AuthHandler
	Assessment  *handler.AssessmentHandler
	Certificate *handler.CertificateHandler
	Question    *handler.QuestionHandler
	AdminUser   *handler.AdminUserHandler
	Results     *handler.ResultsHandler
	Dashboard   *handler.DashboardHandler
	Monitor     *handler.MonitorHandler
	System      *handler.SystemHandler
	WS          *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	assessmentService *service.AssessmentService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// CORS: restrict to the configured list when set, otherwise allow all
	// so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// Auth group: public, rate limited.
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/register", handlers.Auth.Register)
		auth.POST("/verify-email", handlers.Auth.VerifyEmail)
		auth.POST("/login", handlers.Auth.Login)
		auth.POST("/forgot-password", handlers.Auth.ForgotPassword)
		auth.POST("/reset-password", handlers.Auth.ResetPassword)

		// Authenticated profile routes.
		auth.GET("/me", middleware.RequireUserJWT(authService), handlers.Auth.Me)
		auth.POST("/logout", middleware.RequireUserJWT(authService), handlers.Auth.Logout)
	}

	// Assessment group: JWT + single device session.
	assessment := router.Group("/api/v1/assessment")
	assessment.Use(
		middleware.RequireUserJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		assessment.GET("/eligibility", handlers.Assessment.GetEligibility)
		assessment.POST("/start", handlers.Assessment.StartTest)
		assessment.GET("/active", handlers.Assessment.GetActive)
		assessment.GET("/history", handlers.Assessment.GetHistory)

		attempts := assessment.Group("/tests/:testId")
		attempts.Use(middleware.RequireAttemptOwnership(assessmentService))
		{
			attempts.GET("/current-question", handlers.Assessment.GetCurrentQuestion)
			attempts.POST("/submit-answer", handlers.Assessment.SubmitAnswer)
			attempts.POST("/complete", handlers.Assessment.CompleteTest)
			attempts.POST("/abandon", handlers.Assessment.AbandonTest)
			attempts.GET("/results", handlers.Assessment.GetResults)
		}
	}

	// Certificates group.
	certificates := router.Group("/api/v1/certificates")
	certificates.Use(middleware.RequireUserJWT(authService))
	{
		certificates.GET("", handlers.Certificate.ListMine)
		certificates.GET("/:certId", handlers.Certificate.Get)
		certificates.GET("/:certId/download", middleware.CacheControl(86400), handlers.Certificate.Download)
	}

	// WebSocket group: token via query string.
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireUserWSAuth(authService))
	{
		ws.GET("/assessment/:testId/stream", handlers.WS.AssessmentStream)
	}

	// Admin group: staff JWT + role checks.
	adminAPI := router.Group("/admin/v1")
	adminAPI.Use(middleware.RequireStaffJWT(authService))
	{
		// Account management: admins only.
		adminAPI.GET("/users", middleware.RequireRole(model.RoleAdmin), handlers.AdminUser.ListUsers)
		adminAPI.GET("/users/:id", middleware.RequireRole(model.RoleAdmin), handlers.AdminUser.GetUser)
		adminAPI.PATCH("/users/:id/role", middleware.RequireRole(model.RoleAdmin), handlers.AdminUser.UpdateUserRole)
		adminAPI.DELETE("/users/:id", middleware.RequireRole(model.RoleAdmin), handlers.AdminUser.DeleteUser)

		// Question bank and competencies: admins only.
		adminAPI.GET("/competencies", middleware.RequireRole(model.RoleAdmin), handlers.Question.ListCompetencies)
		adminAPI.POST("/competencies", middleware.RequireRole(model.RoleAdmin), handlers.Question.CreateCompetency)
		adminAPI.DELETE("/competencies/:id", middleware.RequireRole(model.RoleAdmin), handlers.Question.DeleteCompetency)
		adminAPI.GET("/questions", middleware.RequireRole(model.RoleAdmin), handlers.Question.ListQuestions)
		adminAPI.POST("/questions", middleware.RequireRole(model.RoleAdmin), handlers.Question.CreateQuestion)
		adminAPI.PATCH("/questions/:id", middleware.RequireRole(model.RoleAdmin), handlers.Question.UpdateQuestion)
		adminAPI.DELETE("/questions/:id", middleware.RequireRole(model.RoleAdmin), handlers.Question.DeleteQuestion)

		// Results and exports: any staff role.
		adminAPI.GET("/results", middleware.RequireRole(model.RoleAdmin, model.RoleSupervisor), handlers.Results.ListResults)
		adminAPI.GET("/results/export", middleware.RequireRole(model.RoleAdmin, model.RoleSupervisor), handlers.Results.ExportResults)

		// Dashboard: any staff role.
		adminAPI.GET("/dashboard", middleware.RequireRole(model.RoleAdmin, model.RoleSupervisor), handlers.Dashboard.GetDashboard)

		// Live monitoring: any staff role.
		adminAPI.GET("/monitor/snapshot", middleware.RequireRole(model.RoleAdmin, model.RoleSupervisor), handlers.Monitor.GetLiveSnapshot)
		adminAPI.GET("/monitor/stream", middleware.RequireRole(model.RoleAdmin, model.RoleSupervisor), handlers.Monitor.MonitorSSE)
		adminAPI.GET("/monitor/tests/:testId/violations", middleware.RequireRole(model.RoleAdmin, model.RoleSupervisor), handlers.Monitor.ListViolations)

		// System metrics
		adminAPI.GET("/system/metrics", middleware.RequireRole(model.RoleAdmin), handlers.System.SystemMetricsSSE)
	}

	return router
}
