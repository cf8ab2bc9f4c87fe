package routes

import (
	"testflow_backend/catalog"
	"testflow_backend/handlers"
	"testflow_backend/middleware"
	"testflow_backend/report"
	"testflow_backend/session"
	"testflow_backend/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Dependencies are the services the HTTP layer calls into.
type Dependencies struct {
	Store         store.Store
	Catalog       *catalog.Catalog
	Questionnaire *catalog.Questionnaire
	Recorder      *session.Recorder
	Machine       *session.Machine
	Reports       *report.Service
	JWTSecret     []byte
	Logger        *zap.Logger
}

// SetupRoutes configures all the routes for the application
func SetupRoutes(r *gin.Engine, deps Dependencies) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(deps.Store)
	authHandler := handlers.NewAuthHandler(deps.Store, deps.Store, deps.JWTSecret, logger)
	instructionHandler := handlers.NewInstructionHandler(deps.Catalog, deps.Recorder, logger)
	questionnaireHandler := handlers.NewQuestionnaireHandler(deps.Questionnaire, deps.Recorder, logger)
	reportHandler := handlers.NewReportHandler(deps.Reports, logger)
	sessionHandler := handlers.NewSessionHandler(deps.Machine, logger)

	// Public routes
	r.GET("/health", healthHandler.HealthCheck)
	r.POST("/auth/login", authHandler.Login)

	r.GET("/instructions", instructionHandler.GetInstructions)
	r.POST("/instructions/:id/response", instructionHandler.SubmitResponse)

	r.GET("/questionnaires", questionnaireHandler.GetQuestionnaire)
	r.POST("/questionnaire/submit", questionnaireHandler.SubmitAnswers)

	r.POST("/report/generate", reportHandler.GenerateReport)
	r.GET("/report/:testRunId", reportHandler.ResendReport)

	r.POST("/session/start", sessionHandler.Start)
	r.POST("/session/respond", sessionHandler.Respond)
	r.POST("/session/questionnaire", sessionHandler.SubmitQuestionnaire)

	// Protected routes
	protected := r.Group("/")
	protected.Use(middleware.AuthMiddleware(deps.JWTSecret, logger))
	{
		// Admin account routes
		protected.POST("/auth/change-credentials", authHandler.ChangeCredentials)
		protected.GET("/auth/settings", authHandler.GetSettings)
		protected.PUT("/auth/settings", authHandler.UpdateSettings)

		// Instruction routes
		protected.POST("/instructions", instructionHandler.CreateInstruction)
		protected.PUT("/instructions/:id", instructionHandler.UpdateInstruction)
		protected.DELETE("/instructions/:id", instructionHandler.DeleteInstruction)
		protected.POST("/instructions/reorder", instructionHandler.ReorderInstructions)

		// Questionnaire routes
		protected.POST("/questionnaire", questionnaireHandler.ReplaceQuestionnaire)
		protected.DELETE("/questionnaire/:id", questionnaireHandler.DeleteQuestion)

		// Report routes
		protected.GET("/report/:testRunId/download", reportHandler.DownloadReport)
	}
}
