package routes

import (
	"webrecorder/backend/internal/api/handlers"
	"webrecorder/backend/internal/api/middleware"
	"webrecorder/backend/internal/config"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(cfg *config.Config) *gin.Engine {
	router := gin.Default()

	// Global middleware
	router.Use(middleware.CORSMiddleware())
	router.Use(gin.Recovery())

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Public routes (no auth required)
		auth := v1.Group("/auth")
		{
			auth.POST("/login", handlers.Login)
			auth.POST("/register", handlers.Register)
		}

		// Health check
		v1.GET("/health", handlers.HealthCheck)

		// WebSocket endpoint (no auth middleware for WebSocket)
		v1.GET("/ws/recording", handlers.RecordingWebSocket)

		// Protected routes (auth required)
		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			// User management
			users := protected.Group("/users")
			{
				users.GET("/profile", handlers.GetProfile)
				users.PUT("/profile", handlers.UpdateProfile)
				users.GET("", handlers.GetUsers)
				users.PUT("/:id/password", handlers.AdminChangePassword) // Admin only
			}

			// Live recording sessions
			recording := protected.Group("/recording")
			{
				recording.POST("/start", handlers.StartRecording)
				recording.POST("/stop", handlers.StopRecording)
				recording.POST("/pause", handlers.PauseRecording)
				recording.POST("/resume", handlers.ResumeRecording)
				recording.GET("/status", handlers.GetRecordingStatus)
				recording.GET("/events", handlers.GetRecordingEvents)
				recording.GET("/export", handlers.ExportRecording)
				recording.POST("/save", handlers.SaveRecording)
				recording.POST("/find-element", handlers.FindElement)
			}

			// Saved recordings
			recordings := protected.Group("/recordings")
			{
				recordings.GET("", handlers.GetRecordings)
				recordings.GET("/:id", handlers.GetRecording)
				recordings.GET("/:id/xml", handlers.DownloadRecordingXML)
				recordings.DELETE("/:id", handlers.DeleteRecording)
			}
		}
	}

	return router
}
