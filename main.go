package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"racehub/internal/config"
	"racehub/internal/engine"
	"racehub/internal/handler"
	"racehub/internal/middleware"
	"racehub/internal/repository"
	"racehub/internal/service"
	"racehub/pkg/database"
	"racehub/pkg/logger"
	"racehub/pkg/redis"
)

// Resources holds all resources that need cleanup
type Resources struct {
	db          *database.PostgresDB
	redisClient *redis.Client
	gameService service.GameService
	server      *http.Server
	log         *logger.Logger
	mu          sync.Mutex
	closed      bool
}

// Cleanup gracefully closes all resources
func (r *Resources) Cleanup(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errors []error

	r.log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server first to stop accepting new requests
	if r.server != nil {
		r.log.Info("Shutting down HTTP server...")
		if err := r.server.Shutdown(ctx); err != nil {
			r.log.WithError(err).Error("Failed to shutdown HTTP server")
			errors = append(errors, fmt.Errorf("HTTP server shutdown: %w", err))
		} else {
			r.log.Info("HTTP server shutdown complete")
		}
	}

	// Stop the snapshot loop and persist a final snapshot
	if r.gameService != nil {
		r.log.Info("Stopping game service...")
		r.gameService.StopSnapshots()
		if err := r.gameService.SaveState(ctx); err != nil {
			r.log.WithError(err).Error("Failed to save final game snapshot")
			errors = append(errors, fmt.Errorf("final snapshot: %w", err))
		} else {
			r.log.Info("Final game snapshot saved")
		}
	}

	// Close Redis connection with health check
	if r.redisClient != nil {
		r.log.Info("Closing Redis connection...")

		healthCtx, healthCancel := context.WithTimeout(ctx, 2*time.Second)
		if err := r.redisClient.Health(healthCtx); err != nil {
			r.log.WithError(err).Warn("Redis health check failed before closing")
		}
		healthCancel()

		if err := r.redisClient.Close(); err != nil {
			r.log.WithError(err).Error("Failed to close Redis connection")
			errors = append(errors, fmt.Errorf("Redis close: %w", err))
		} else {
			r.log.Info("Redis connection closed successfully")
		}
	}

	// Close database connection pool
	if r.db != nil {
		r.log.Info("Closing database connection pool...")
		r.db.Close()
		r.log.Info("Database connection pool closed successfully")
	}

	if len(errors) > 0 {
		r.log.WithField("error_count", len(errors)).Error("Cleanup completed with errors")
		return fmt.Errorf("cleanup completed with %d errors: %v", len(errors), errors)
	}

	r.log.Info("Graceful shutdown completed successfully")
	return nil
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(map[string]interface{}{
		"port":        cfg.Port,
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
		"challenges":  cfg.ChallengesFile,
	}).Info("Starting racehub server")

	// Load and validate the challenge definitions
	challenges, err := config.LoadChallenges(cfg.ChallengesFile)
	if err != nil {
		log.WithError(err).Fatal("Failed to load challenges")
	}
	if err := config.ValidateChallenges(challenges); err != nil {
		log.WithError(err).Fatal("Invalid challenge definitions")
	}
	log.WithField("count", len(challenges)).Info("Challenges loaded")

	ctx := context.Background()

	// Initialize database connection (optional: single-node runs can skip
	// persistence entirely)
	var db *database.PostgresDB
	var snapshots repository.SnapshotRepository
	if cfg.DatabaseURL != "" {
		db, err = database.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to database")
		}
		snapshots = repository.NewPostgresSnapshotRepository(db)
	} else {
		log.Warn("DATABASE_URL not set, snapshots disabled")
	}

	// Initialize Redis connection (optional: caching and cross-replica
	// dedupe degrade gracefully without it)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL, cfg.Environment, log.Logger)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to Redis")
		}
	} else {
		log.Warn("REDIS_URL not set, caching disabled")
	}

	// Build the engine and game service
	eng := engine.New(engine.Config{
		Challenges:              challenges,
		GlobalPhotoVerification: cfg.GlobalPhotoVerification,
		MaxTeamSize:             cfg.MaxTeamSize,
	})
	gameService := service.NewGameService(eng, snapshots, redisClient, nil, log)

	// Restore the latest snapshot, if any
	if err := gameService.LoadState(ctx); err != nil {
		log.WithError(err).Fatal("Failed to restore game state")
	}
	gameService.StartSnapshots(time.Duration(cfg.SnapshotInterval) * time.Second)

	// Setup router
	router := setupRouter(cfg, log, gameService, redisClient)

	// Create HTTP server
	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB max header size
	}

	// Create resources manager for cleanup
	resources := &Resources{
		db:          db,
		redisClient: redisClient,
		gameService: gameService,
		server:      server,
		log:         log,
	}

	// Setup graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := resources.Cleanup(cleanupCtx); err != nil {
			log.WithError(err).Error("Cleanup completed with errors")
		}
	}()

	// Start server in a goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Server starting on port " + cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Server error occurred")
			serverErrChan <- err
		}
	}()

	// Wait for interrupt signal or server error
	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-serverErrChan:
		log.WithError(err).Error("Server failed, initiating shutdown")
	}

	log.Info("Initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := resources.Cleanup(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown completed with errors")
		os.Exit(1)
	}

	log.Info("Application shutdown complete")
}

// setupRouter configures and returns the HTTP router
func setupRouter(cfg *config.Config, log *logger.Logger, gameService service.GameService, redisClient *redis.Client) *chi.Mux {
	r := chi.NewRouter()

	// Setup CORS middleware
	corsConfig := &middleware.CORSConfig{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding", "X-CSRF-Token", "Authorization"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           86400,
	}

	// Setup middlewares
	r.Use(middleware.CORS(corsConfig, log))
	r.Use(middleware.RequestID(log))
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Compress(5))
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// Create handlers
	healthHandler := handler.NewHealthHandler(redisClient, log)
	gameHandler := handler.NewGameHandler(gameService, log)
	adminHandler := handler.NewAdminHandler(gameService, log)

	// Health check (no auth required)
	r.Get("/health", healthHandler.Check)

	r.Route("/api/v1", func(r chi.Router) {
		// Everything under /api/v1 requires a valid token
		r.Use(middleware.Auth(cfg.JWTSecret, log))

		// Team management
		r.Post("/teams", gameHandler.CreateTeam)
		r.Get("/teams", gameHandler.ListTeams)
		r.Get("/teams/me", gameHandler.MyTeam)
		r.Delete("/teams/me", gameHandler.LeaveTeam)
		r.Post("/teams/{teamID}/join", gameHandler.JoinTeam)

		// Race play
		r.Post("/submissions", gameHandler.Submit)
		r.Post("/hints", gameHandler.RequestHint)
		r.Post("/location", gameHandler.VerifyLocation)
		r.Get("/challenge", gameHandler.CurrentChallenge)
		r.Post("/challenge/unlock-check", gameHandler.CheckUnlock)
		r.Get("/leaderboard", gameHandler.Leaderboard)
		r.Get("/tournaments/{challengeID}", gameHandler.TournamentStatus)

		// Organizer endpoints
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(cfg.IsAdmin, log))

			r.Post("/game/start", adminHandler.StartGame)
			r.Post("/game/end", adminHandler.EndGame)
			r.Post("/game/reset", adminHandler.ResetGame)
			r.Post("/game/save", adminHandler.SaveState)

			r.Delete("/teams/{teamID}", adminHandler.RemoveTeam)
			r.Delete("/teams/{teamID}/members/{userID}", adminHandler.RemoveMember)
			r.Post("/teams/{teamID}/pass", adminHandler.PassTeam)

			r.Post("/photos/review", adminHandler.ReviewPhoto)

			r.Post("/tournaments/{challengeID}/start", adminHandler.StartTournament)
			r.Post("/tournaments/{challengeID}/reset", adminHandler.ResetTournament)
			r.Post("/tournaments/{challengeID}/winner", adminHandler.ReportWinner)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"kind":"not_found","message":"endpoint not found"}}`))
	})

	log.Info("Router configured successfully")
	return r
}
