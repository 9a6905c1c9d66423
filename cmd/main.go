package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"webrecorder/backend/internal/api/routes"
	"webrecorder/backend/internal/config"
	"webrecorder/backend/internal/recorder"
	"webrecorder/backend/internal/services"
	"webrecorder/backend/pkg/auth"
	"webrecorder/backend/pkg/database"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize JWT
	auth.InitJWT(cfg.JWT.Secret)

	// Initialize database
	if err := database.InitDatabase(cfg); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}

	// Configure the recording engine
	recorder.Manager.Configure(cfg.Recorder, cfg.Chrome)

	// Initialize janitor service
	if err := services.InitJanitor(cfg.Recorder); err != nil {
		log.Fatal("Failed to initialize janitor:", err)
	}

	// Set Gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize router
	router := routes.SetupRoutes(cfg)

	// Setup graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("Shutting down server...")

		// Stop janitor
		if services.GlobalJanitor != nil {
			services.GlobalJanitor.Stop()
		}

		// Stop any recording sessions still driving a browser
		for _, id := range recorder.Manager.Sessions() {
			recorder.Manager.StopRecording(id)
		}

		log.Println("Server shutdown complete")
		os.Exit(0)
	}()

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)

	if err := router.Run(addr); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
