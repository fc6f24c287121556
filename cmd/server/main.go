package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"ridez/internal/app"
	"ridez/internal/auth"
	"ridez/internal/config"
	"ridez/internal/handler"
	internalRedis "ridez/internal/redis"
	"ridez/internal/repository/postgres"
	"ridez/internal/service"
)

func main() {
	cfg := config.Load()
	log := app.NewLogger(cfg.Log)

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.Auth.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// New Relic goes first so the database and redis clients get instrumented.
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		var err error
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.WithError(err).Warn("failed to initialize New Relic")
		} else {
			log.WithField("app", cfg.NewRelic.AppName).Info("New Relic enabled")
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()
	log.Info("connected to PostgreSQL")

	if cfg.Database.AutoMigrate {
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			log.WithError(err).Fatal("failed to apply schema")
		}
		log.Info("schema applied")
	}

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info("connected to Redis")

	server := wireServer(db, redisClient, nrApp, cfg, log)

	go func() {
		log.WithField("port", cfg.Server.Port).Info("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	if nrApp != nil {
		nrApp.Shutdown(cfg.Server.ShutdownTimeout)
	}

	log.Info("server exited")
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(db *sqlx.DB, redisClient *redis.Client, nrApp *newrelic.Application, cfg *config.Config, log *logrus.Logger) *http.Server {
	cacheStore := internalRedis.NewCacheStore(redisClient, cfg.Rides.CacheTTL)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTTTL, cfg.Auth.Issuer)

	userRepo := postgres.NewUserRepository(db)
	rideRepo := postgres.NewRideRepository(db)
	eventRepo := postgres.NewRideEventRepository(db)
	txManager := postgres.NewTxManager(db)

	rideService := service.NewRideService(rideRepo, eventRepo, userRepo, txManager, service.RideServiceConfig{
		Cache:        cacheStore,
		Logger:       log.WithField("component", "rides"),
		EventsWindow: cfg.Rides.EventsWindow,
	})
	userService := service.NewUserService(userRepo, cacheStore, log.WithField("component", "users"))
	authService := service.NewAuthService(userRepo, tokens)

	router := app.NewRouter(app.RouterDeps{
		RideHandler:    handler.NewRideHandler(rideService, log.WithField("component", "rides")),
		UserHandler:    handler.NewUserHandler(userService),
		AuthHandler:    handler.NewAuthHandler(authService),
		Tokens:         tokens,
		RedisClient:    redisClient,
		NewRelicApp:    nrApp,
		Logger:         log,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
