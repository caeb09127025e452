package main

import (
	"context"
	"encoding/hex"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zentra/quartzite/config"
	"github.com/zentra/quartzite/internal/discord"
	"github.com/zentra/quartzite/internal/middleware"
	"github.com/zentra/quartzite/internal/services/archive"
	"github.com/zentra/quartzite/internal/services/auth"
	"github.com/zentra/quartzite/internal/services/ingest"
	"github.com/zentra/quartzite/internal/services/stats"
	"github.com/zentra/quartzite/pkg/database"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Connect to PostgreSQL
	db, err := database.NewPostgresPool(cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer db.Close()
	log.Info().Msg("Connected to PostgreSQL")

	if err := database.Migrate(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Connect to Redis
	redisClient, err := database.NewRedisClient(cfg.Redis.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	// Decode encryption key
	encKey, err := hex.DecodeString(cfg.Encryption.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to decode encryption key (must be hex)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional emoji image archive
	var archiver ingest.Archiver
	if cfg.Archive.Enabled {
		archiveService, err := archive.NewService(
			cfg.Archive.Endpoint, cfg.Archive.AccessKey, cfg.Archive.SecretKey,
			cfg.Archive.Bucket, cfg.Archive.UseSSL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to MinIO")
		}
		go archiveService.Run(ctx)
		archiver = archiveService
		log.Info().Msg("Emoji archive enabled")
	}

	// Ingestion pipeline
	state := discord.NewState()
	store := ingest.NewSQLStore(db)
	reconciler := ingest.NewReconciler(store)
	router := ingest.NewRouter(state, store, reconciler, archiver)

	// Gateway connection
	client := discord.NewClient(cfg.Discord.Token)
	rest := discord.NewRest(cfg.Discord.Token)
	supervisor := discord.NewSupervisor(client, rest, router.Handle)

	gatewayErr := make(chan error, 1)
	go func() {
		gatewayErr <- supervisor.Run(ctx)
	}()

	// Dashboard services
	authService := auth.NewService(redisClient, rest,
		cfg.Discord.ClientID, cfg.Discord.ClientSecret, cfg.Discord.RedirectURL,
		cfg.Discord.AllowedGuilds, cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.SessionTTL, encKey)
	statsService := stats.NewService(db)

	authHandler := auth.NewHandler(authService)
	statsHandler := stats.NewHandler(statsService)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestIDMiddleware)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.LoggingMiddleware)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RedirectSlashes)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Origin"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check reports the gateway connection state
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","gateway":"` + supervisor.State().String() + `"}`))
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(60 * time.Second))

		// Public routes
		r.Mount("/auth", authHandler.Routes())

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
			r.Use(middleware.RateLimitMiddleware(redisClient, cfg.Server.RateLimitRPS))

			r.Mount("/guilds", statsHandler.Routes())
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:    "0.0.0.0:" + cfg.Server.Port,
		Handler: r,
	}

	// Start server
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Starting dashboard API")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Graceful shutdown on signal or fatal gateway error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var exitCode int
	select {
	case <-quit:
		log.Info().Msg("Shutting down...")
	case err := <-gatewayErr:
		if err != nil {
			log.Error().Err(err).Msg("Gateway connection failed")
			exitCode = 1
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
