package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"

	"github.com/openscrim/tournament-engine/config"
	"github.com/openscrim/tournament-engine/db"
	"github.com/openscrim/tournament-engine/handlers"
	"github.com/openscrim/tournament-engine/realtime"
	"github.com/openscrim/tournament-engine/repositories"
	api "github.com/openscrim/tournament-engine/routes"
	"github.com/openscrim/tournament-engine/services"
	"github.com/openscrim/tournament-engine/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	// Snapshot archiving is optional; without R2 credentials completed
	// brackets simply stay in Postgres.
	var archiver services.SnapshotArchiver
	if cfg.R2Configured() {
		uploader, err := storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		archiver = services.NewSnapshotArchiver(uploader, logger)
		logger.Info("bracket snapshot archiving enabled")
	} else {
		logger.Info("bracket snapshot archiving disabled")
	}

	wsHub := realtime.NewHub(logger)
	go wsHub.Run()
	logger.Info("websocket hub started")

	txRunner := repositories.NewTxRunner(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository()
	matchRepo := repositories.NewPostgresMatchRepository()
	teamDirectory := repositories.NewPostgresTeamDirectory()

	advancementService := services.NewAdvancementService(txRunner, tournamentRepo, matchRepo, wsHub, archiver, logger)
	bracketService := services.NewBracketService(txRunner, tournamentRepo, matchRepo, wsHub, logger)
	swissService := services.NewSwissService(txRunner, tournamentRepo, matchRepo, wsHub, bracketService, advancementService, logger)
	advancementService.SetSwissHook(swissService)
	matchService := services.NewMatchService(txRunner, tournamentRepo, matchRepo, wsHub, advancementService, logger)
	tournamentService := services.NewTournamentService(txRunner, tournamentRepo, matchRepo, teamDirectory, logger)
	adminAuthService := services.NewAdminAuthService(cfg.AdminKeyHash, cfg.AdminAPISecret, logger)
	logger.Info("services initialized")

	tournamentHandler := handlers.NewTournamentHandler(tournamentService, bracketService, swissService)
	matchHandler := handlers.NewMatchHandler(matchService)
	authHandler := handlers.NewAuthHandler(adminAuthService)
	wsHandler := handlers.NewWebSocketHandler(wsHub, logger)
	healthHandler := handlers.NewHealthHandler(db.NewPingChecker(dbConn))

	router := chi.NewRouter()
	api.SetupRoutes(router, tournamentHandler, matchHandler, authHandler, wsHandler, healthHandler, cfg.AdminAPISecret)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
	logger.Info("application exited")
}
