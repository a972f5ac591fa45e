package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/noctis-health/pacs-core/internal/cache"
	"github.com/noctis-health/pacs-core/internal/config"
	"github.com/noctis-health/pacs-core/internal/database"
	"github.com/noctis-health/pacs-core/internal/dicomnet"
	"github.com/noctis-health/pacs-core/internal/dicomscp"
	"github.com/noctis-health/pacs-core/internal/imagedelivery"
	"github.com/noctis-health/pacs-core/internal/metadataindex"
	"github.com/noctis-health/pacs-core/internal/middleware"
	"github.com/noctis-health/pacs-core/internal/objectstore"
	"github.com/noctis-health/pacs-core/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log.Info().Msg("starting Noctis PACS core")

	if err := database.Connect(database.Config{
		URL:      cfg.Index.URL,
		MaxConns: cfg.Index.MaxConns,
		LogLevel: cfg.Index.LogLevel,
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to metadata index database")
	}
	defer database.Close()

	index := metadataindex.New(database.DB)

	store, err := objectstore.New(cfg.Store.Root, cfg.Store.VerifyDigestOnRead, logger.Get())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize object store")
	}

	l1, err := cache.NewMemoryCache(cfg.IDS.Cache.L1Bytes)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize L1 cache")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.IDS.Cache.L2URL,
		Password: cfg.IDS.Cache.L2Password,
		DB:       cfg.IDS.Cache.L2DB,
	})
	defer redisClient.Close()

	l2, err := cache.NewRedisCache(cfg.IDS.Cache.L2URL, cfg.IDS.Cache.L2Password, cfg.IDS.Cache.L2DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to L2 cache")
	}

	scpService := dicomscp.NewService(store, index, logger.Get())
	scpServer := dicomnet.NewServer(dicomnet.ServerConfig{
		AETitle:                cfg.SCP.AETitle,
		MaxAssociations:        cfg.SCP.MaxAssociations,
		MaxPDULength:           cfg.SCP.MaxPDULength,
		AllowedCallingAETitles: cfg.SCP.AllowedCallingAETitles,
		AssociationTimeout:     cfg.SCP.AssociationTimeout,
	}, scpService, logger.Get())

	idsService := imagedelivery.NewService(index, store, l1, l2, imagedelivery.CacheTTLs{
		Image:     time.Duration(cfg.IDS.Cache.ImageTTLSeconds) * time.Second,
		Metadata:  time.Duration(cfg.IDS.Cache.MetadataTTLSeconds) * time.Second,
		Thumbnail: time.Duration(cfg.IDS.Cache.ThumbnailTTLSeconds) * time.Second,
	}, logger.Get())
	idsHandler := imagedelivery.NewHandler(idsService)
	rateLimiter := imagedelivery.NewRateLimiter(redisClient, cfg.IDS.RateLimit.Requests, time.Duration(cfg.IDS.RateLimit.WindowSeconds)*time.Second)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type", "X-Cache", "X-Image-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		sqlDB, err := database.DB.DB()
		if err != nil || sqlDB.Ping() != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Mount("/", imagedelivery.Router(idsHandler, rateLimiter, cfg.IDS.BasePath))

	httpServer := &http.Server{
		Addr:         cfg.IDS.Bind,
		Handler:      r,
		ReadTimeout:  cfg.IDS.ReadTimeout,
		WriteTimeout: cfg.IDS.WriteTimeout,
	}

	scpCtx, cancelSCP := context.WithCancel(context.Background())
	go func() {
		addr := fmt.Sprintf(":%d", cfg.SCP.Port)
		log.Info().Str("addr", addr).Str("ae_title", cfg.SCP.AETitle).Msg("DICOM SCP starting")
		if err := scpServer.ListenAndServe(scpCtx, addr); err != nil && scpCtx.Err() == nil {
			log.Error().Err(err).Msg("DICOM SCP stopped unexpectedly")
		}
	}()

	go func() {
		log.Info().Str("addr", httpServer.Addr).Str("base_path", cfg.IDS.BasePath).Msg("Image Delivery Service starting")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Image Delivery Service failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	cancelSCP()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Image Delivery Service forced to shutdown")
	}

	log.Info().Msg("shutdown complete")
}
