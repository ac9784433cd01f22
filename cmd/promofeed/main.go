package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/offerwire/promofeed/internal/ai"
	"github.com/offerwire/promofeed/internal/api"
	"github.com/offerwire/promofeed/internal/archive"
	"github.com/offerwire/promofeed/internal/cache"
	"github.com/offerwire/promofeed/internal/config"
	"github.com/offerwire/promofeed/internal/logger"
	"github.com/offerwire/promofeed/internal/middleware"
	"github.com/offerwire/promofeed/internal/pipeline"
	"github.com/offerwire/promofeed/internal/review"
	"github.com/offerwire/promofeed/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init(logger.Config{Level: "info"})
		logger.Get().Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Init(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.Env == "development",
	})
	log := logger.Get()

	ctx := context.Background()

	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}
	st := store.WithRetry(pg)
	defer st.Close()

	var seenCache cache.Cache
	redisCache, err := cache.NewRedisCache(cfg.RedisURL, cfg.RedisPrefix)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, using in-memory cache")
		seenCache = cache.NewMockCache()
	} else {
		seenCache = redisCache
	}
	defer seenCache.Close()

	aiClient := ai.NewClient(cfg.AIApiKey, cfg.AIModel, cfg.AITimeout)

	importer := pipeline.NewImporter(st, seenCache, cfg.CacheTTL)
	processor := pipeline.NewProcessor(st, aiClient, cfg.MaxConcurrency)

	var archiver review.Archiver
	if cfg.R2Endpoint != "" {
		s3Archiver, err := archive.New(ctx, cfg.R2Endpoint, cfg.R2AccessKey, cfg.R2SecretKey, cfg.R2Bucket)
		if err != nil {
			log.Warn().Err(err).Msg("Archiver unavailable, approvals will not be snapshotted")
		} else {
			archiver = s3Archiver
		}
	}
	reviewSvc := review.NewService(st, archiver)

	app := fiber.New(fiber.Config{
		AppName:      "promofeed",
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout,
	})
	app.Use(recover.New())
	app.Use(middleware.RequestLogger())

	handlers := api.NewHandlers(st, importer, processor, reviewSvc)
	api.SetupRoutes(app, handlers, cfg)

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("Starting server")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	log.Info().Msg("Server stopped")
}
