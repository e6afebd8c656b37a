package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/civicrewards/rewards-api/internal/config"
	"github.com/civicrewards/rewards-api/internal/domain/benefit"
	"github.com/civicrewards/rewards-api/internal/domain/mission"
	"github.com/civicrewards/rewards-api/internal/domain/user"
	"github.com/civicrewards/rewards-api/internal/domain/wallet"
	"github.com/civicrewards/rewards-api/internal/middleware"
	"github.com/civicrewards/rewards-api/internal/pkg/cache"
	"github.com/civicrewards/rewards-api/internal/pkg/clock"
	"github.com/civicrewards/rewards-api/internal/pkg/database"
	"github.com/civicrewards/rewards-api/internal/pkg/jwt"
	"github.com/civicrewards/rewards-api/internal/pkg/logger"
	pkgresponse "github.com/civicrewards/rewards-api/internal/pkg/response"
	"github.com/civicrewards/rewards-api/internal/pkg/storage"
)

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting Rewards API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	if cfg.AutoMigrate {
		if err := database.Migrate(db.DB); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
		log.Info().Msg("Migrations applied")
	}

	var store cache.Cache
	if cfg.RedisURL != "" {
		redis, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer database.CloseRedis(redis)
		store = cache.NewRedisCache(redis)
	} else {
		log.Warn().Msg("REDIS_URL is empty, using in-process cache")
		store = cache.NewMemoryCache(clock.NewRealClock())
	}
	invalidator := cache.NewInvalidator(store)

	// Evidence uploads are optional; without R2 settings submissions accept
	// any evidence URL and the upload endpoint answers 503.
	var evidence storage.EvidenceStore
	r2Cfg := storage.R2Config{
		AccountID:       cfg.R2AccountID,
		AccessKeyID:     cfg.R2AccessKeyID,
		AccessKeySecret: cfg.R2AccessKeySecret,
		BucketName:      cfg.R2BucketName,
		PublicURL:       cfg.R2PublicURL,
	}
	if r2Cfg.Enabled() {
		r2, err := storage.NewR2Storage(context.Background(), r2Cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create R2 storage")
		}
		evidence = r2
	} else {
		log.Warn().Msg("R2 is not configured, evidence uploads are disabled")
	}

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)
	clk := clock.NewRealClock()

	// ---------- Repositories ----------
	walletRepo := wallet.NewRepository(db)
	userRepo := user.NewRepository(db, walletRepo)
	benefitRepo := benefit.NewRepository(db)
	missionRepo := mission.NewRepository(db)

	// ---------- Services ----------
	walletService := wallet.NewService(walletRepo, invalidator, cfg.WalletCacheTTL)
	benefitService := benefit.NewService(db, benefitRepo, walletService, userRepo, invalidator, clk, benefit.Config{
		RedemptionTTL: cfg.RedemptionTTL,
		CatalogTTL:    cfg.CatalogCacheTTL,
	})
	missionService := mission.NewService(db, missionRepo, walletService, evidence, invalidator, clk, mission.Config{
		Cooldown:  mission.CooldownPolicy{ElectionPeriodDays: cfg.ElectionPeriodDays},
		ListTTL:   cfg.MissionCacheTTL,
		UploadTTL: cfg.EvidenceUploadTTL,
	})

	r := newRouter(cfg, jwtService, handlers{
		wallet:  wallet.NewHandler(walletService),
		benefit: benefit.NewHandler(benefitService),
		mission: mission.NewHandler(missionService),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

type handlers struct {
	wallet  *wallet.Handler
	benefit *benefit.Handler
	mission *mission.Handler
}

func newRouter(cfg *config.Config, jwtService *jwt.Service, h handlers) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.Auth(jwtService))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireCitizen())
			r.Mount("/wallet", h.wallet.Routes())
			r.Mount("/benefits", h.benefit.Routes())
			r.Mount("/redemptions", h.benefit.RedemptionRoutes())
			r.Mount("/missions", h.mission.Routes())
			r.Mount("/submissions", h.mission.SubmissionRoutes())
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireMerchant())
			r.Mount("/merchant/redemptions", h.benefit.MerchantRoutes())
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin())
			r.Mount("/admin/submissions", h.mission.AdminRoutes())
			r.Mount("/admin/wallets", h.wallet.AdminRoutes())
		})
	})

	return r
}
