package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bkvaiude/kiro-quickpick-sub001/internal/config"
	"github.com/bkvaiude/kiro-quickpick-sub001/internal/database"
	"github.com/bkvaiude/kiro-quickpick-sub001/internal/handler"
	"github.com/bkvaiude/kiro-quickpick-sub001/internal/jobs"
	"github.com/bkvaiude/kiro-quickpick-sub001/internal/middleware"
	"github.com/bkvaiude/kiro-quickpick-sub001/internal/redis"
	"github.com/bkvaiude/kiro-quickpick-sub001/internal/repository"
	"github.com/bkvaiude/kiro-quickpick-sub001/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("K_SERVICE") != "" || os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	accountRepo := repository.NewCreditAccountRepository(db.DB)
	txnRepo := repository.NewCreditTransactionRepository(db.DB)
	credentialRepo := repository.NewCredentialRepository(db.DB)
	statsRepo := repository.NewStatsRepository(db.DB)

	ledger := service.NewCreditLedger(accountRepo, cfg.MaxRegisteredCredits)
	guestCredits := service.NewGuestQuotaTracker("guest_credit", cfg.MaxGuestCredits)
	guestActions := service.NewGuestQuotaTracker("guest_action", cfg.MaxGuestActions)
	statusComputer := service.NewStatusComputer(cfg.ResetInterval())
	creditService := service.NewCreditService(ledger, guestCredits, guestActions, statusComputer)
	ipRateLimiter := service.NewRateLimiter(redisClient.Client)

	identityMiddleware := middleware.NewIdentityMiddleware(credentialRepo)
	adminMiddleware := middleware.NewAdminMiddleware(cfg.AdminToken)
	consumeRateLimit := middleware.NewIPRateLimitMiddleware(ipRateLimiter, 120, 1*time.Minute, "consume")
	guestActionRateLimit := middleware.NewIPRateLimitMiddleware(ipRateLimiter, 60, 1*time.Minute, "guest_action")
	adminRateLimit := middleware.NewIPRateLimitMiddleware(ipRateLimiter, 30, 1*time.Minute, "admin")
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)

	creditsHandler := handler.NewCreditsHandler(creditService)
	adminHandler := handler.NewAdminHandler(
		creditService, accountRepo, txnRepo,
		credentialRepo, statsRepo,
		guestCredits, guestActions,
	)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(identityMiddleware.Handler)
		r.With(consumeRateLimit.Handler).Post("/credits/consume", creditsHandler.Consume)
		r.Get("/credits", creditsHandler.Status)
		r.With(guestActionRateLimit.Handler).Post("/guest/actions", creditsHandler.GuestAction)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(adminRateLimit.Handler)
		r.Use(adminMiddleware.Handler)
		r.Post("/credits/reset", adminHandler.Reset)
		r.Post("/credits/allocate", adminHandler.Allocate)
		r.Get("/credits/overview", adminHandler.Overview)
		r.Get("/credits/accounts", adminHandler.ListAccounts)
		r.Get("/credits/accounts/{identityId}", adminHandler.GetAccount)
		r.Get("/credits/accounts/{identityId}/transactions", adminHandler.AccountTransactions)
		r.Post("/identities/{identityId}/credentials", adminHandler.MintCredential)
		r.Get("/guests/{guestId}", adminHandler.GuestDetail)
		r.Delete("/guests/{guestId}", adminHandler.GuestReset)
	})

	scheduler := jobs.NewScheduler()
	scheduler.Register(jobs.NewDailyCreditResetTask(
		ledger, cfg.CreditResetHourUTC, cfg.CreditResetMinuteUTC, cfg.ResetInterval(),
	))
	scheduler.Register(jobs.NewLedgerSnapshotTask(statsRepo, 0, 5))
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
