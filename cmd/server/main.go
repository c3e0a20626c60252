package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"code-collab/internal/api"
	"code-collab/internal/config"
	"code-collab/internal/db"
	"code-collab/internal/repository"
	"code-collab/internal/room"
	"code-collab/internal/services"
	"code-collab/internal/services/collaboration"
	"code-collab/internal/telemetry"

	"golang.org/x/time/rate"
)

func main() {
	log.Println("🚀 Starting collaboration server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Initialize Jaeger tracing first so all operations are traced
	jaegerShutdown, err := telemetry.InitJaeger("code-collab", cfg.JaegerEndpoint)
	if err != nil {
		log.Printf("⚠️  Failed to initialize Jaeger: %v (continuing without tracing)", err)
		jaegerShutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			log.Printf("⚠️  Failed to shutdown Jaeger: %v", err)
		}
	}()

	// Initialize GORM database
	database, err := db.NewGorm(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Initialize repositories
	roomRepo := repository.NewRoomRepository(database.DB)
	changeRepo := repository.NewChangeLogRepository(database.DB)
	activityRepo := repository.NewActivityRepository(database.DB)

	// Initialize the archive worker pool (async activity + snapshot writes)
	archiver := services.NewArchiver(activityRepo, roomRepo, cfg.ArchiveWorkers, cfg.ArchiveQueueSize)
	archiver.Start()

	// Initialize the room manager
	manager := room.NewManager(room.Config{
		MaxParticipants: cfg.RoomMaxParticipants,
		GracePeriod:     cfg.RoomGracePeriod,
		TypingIdle:      cfg.TypingIdleTimeout,
		PresenceTimeout: cfg.PresenceTimeout,
		SweepInterval:   cfg.PresenceSweepInterval,
		CursorRate:      rate.Limit(cfg.CursorEventsPerSec),
		KeepOps:         cfg.ChangelogKeepOps,
		KeepAge:         cfg.ChangelogKeepAge,
		BackendTimeout:  cfg.BackendTimeout,
	}, roomRepo, changeRepo, archiver)
	manager.Start()

	// Initialize WebSocket handler
	wsHandler := collaboration.NewWebSocketHandler(manager)

	// Initialize handlers with dependency injection
	handler := api.NewHandler(manager, activityRepo, wsHandler)

	// Setup routes
	router := api.SetupRoutes(handler)

	// Configure HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in a goroutine so we can watch for signals
	go func() {
		log.Printf("🌐 Server listening on http://%s", addr)
		log.Printf("📚 API Endpoints:")
		log.Printf("   POST   /api/rooms                    - Create room")
		log.Printf("   GET    /api/rooms/:id                - Room snapshot")
		log.Printf("   GET    /api/rooms/:id/activity       - Recent activity feed")
		log.Printf("   GET    /api/rooms/:id/changes?since= - Catch-up replay")
		log.Printf("   WS     /ws/room/:id                  - Live collaboration")
		log.Println()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("\n🛑 Shutting down server...")

	// Give the server 30 seconds to finish existing requests
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	// Close all room subscriptions, then drain the archive queue
	manager.Shutdown()
	archiver.Shutdown()

	log.Println("✓ Server shutdown complete")
}
