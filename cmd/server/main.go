package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mattcarabine/wedding-website/internal/chunkstore"
	"github.com/mattcarabine/wedding-website/internal/common"
	"github.com/mattcarabine/wedding-website/internal/guestbook"
	"github.com/mattcarabine/wedding-website/internal/media"
	"github.com/mattcarabine/wedding-website/internal/uploadserver"
	"github.com/mattcarabine/wedding-website/pkg/config"
)

func main() {
	cfg := config.LoadFromEnv()

	setupLogging(cfg.Logging)

	log.Info().Msg("starting wedding website server")

	db, err := common.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	cache, err := common.NewCache(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer cache.Close()

	store, err := chunkstore.NewFactory(&cfg.Storage).CreateStore()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize chunk storage")
	}

	backend := media.NewPhotoAPIBackend(&cfg.PhotoAPI, cache)
	mediaService := media.NewService(db.DB, cache, backend)
	uploadService := uploadserver.NewService(store, mediaService, cfg.Upload.MaxFileSize)
	cleaner := uploadserver.NewCleanupCoordinator(store, cfg.Upload.OrphanAge)
	guestbookService := guestbook.NewService(db.DB)

	// Background orphan sweep for uploads abandoned mid-flight
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go cleaner.RunPeriodic(sweepCtx, cfg.Upload.OrphanSweepInterval)

	router := setupRouter(uploadService, cleaner, mediaService, guestbookService)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	} else {
		log.Info().Msg("server shutdown complete")
	}
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func setupRouter(uploads *uploadserver.Service, cleaner *uploadserver.CleanupCoordinator, mediaService *media.Service, guestbookService *guestbook.Service) *gin.Engine {
	if zerolog.GlobalLevel() == zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "wedding-website",
			"time":    time.Now().UTC(),
		})
	})

	api := router.Group("/api/v1")
	{
		setupUploadRoutes(api, uploads, cleaner)
		setupMediaRoutes(api, mediaService)
		setupGuestbookRoutes(api, guestbookService)
	}

	return router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
