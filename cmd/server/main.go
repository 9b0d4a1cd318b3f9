package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medtrack/internal/auth"
	"medtrack/internal/config"
	"medtrack/internal/database"
	"medtrack/internal/handlers"
	"medtrack/internal/logging"
	"medtrack/internal/reminder"
	"medtrack/internal/services"
	"medtrack/internal/store"
	"medtrack/internal/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database.DSN(), cfg.Environment, logger.Named("database"), database.DefaultOptions)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			logger.Warn("Failed to close database", zap.Error(err))
		}
	}()

	if err := database.Migrate(ctx, db, logger.Named("migrate")); err != nil {
		return err
	}

	var sender services.Sender
	if cfg.Email.SendGridAPIKey != "" {
		sender = services.NewEmailService(cfg.Email.SendGridAPIKey, cfg.Email.FromEmail, cfg.Email.FromName)
	} else {
		logger.Warn("SENDGRID_API_KEY not set, reminder emails will only be logged")
		sender = services.NewLogSender(logger.Named("email"))
	}
	dispatcher := services.NewDispatcher(sender, services.DispatcherConfig{
		QueueSize:  cfg.Notify.QueueSize,
		Workers:    cfg.Notify.Workers,
		Timeout:    cfg.Notify.Timeout,
		RatePerSec: cfg.Notify.RatePerSec,
	}, logger.Named("notify"))
	defer dispatcher.Close()

	coord := reminder.NewCoordinator(
		store.NewGormCourseStore(db),
		reminder.NewRegistry(logger.Named("registry")),
		dispatcher,
		reminder.DriverConfig{
			PollInterval:  cfg.Reminder.PollInterval,
			FrequencyUnit: cfg.Reminder.FrequencyUnit,
			WriteTimeout:  cfg.Reminder.WriteTimeout,
		},
		logger.Named("reminder"),
	)
	// drivers stop before the dispatcher and the database close
	defer coord.Shutdown()

	if cfg.Reminder.RearmOnStartup {
		n, err := coord.Rearm(ctx)
		if err != nil {
			logger.Error("Failed to re-arm reminders on startup", zap.Error(err))
		} else {
			logger.Info("Startup re-arm complete", zap.Int("started", n))
		}
	}

	if cfg.Reminder.RearmSchedule != "" {
		sweeper, err := reminder.NewSweeper(coord, cfg.Reminder.RearmSchedule, cfg.Reminder.RearmTimeout, logger.Named("sweep"))
		if err != nil {
			return err
		}
		sweeper.Start()
		defer sweeper.Stop()
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(cfg, coord, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server starting", zap.String("addr", server.Addr), zap.String("env", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newRouter(cfg *config.Config, coord *reminder.Coordinator, logger *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), utils.RequestLogger(logger.Named("http")))

	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.Warn("Invalid trusted proxies", zap.Error(err))
	}

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORSOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowHeaders("Authorization")
	router.Use(cors.New(corsConfig))

	// Basic routes
	router.GET("/", handlers.HomeHandler)
	router.GET("/health", handlers.HealthHandler)

	// Protected routes (auth required)
	protected := router.Group("")
	protected.Use(auth.AuthMiddleware(cfg.Auth.JWTSecret))
	handlers.NewCourseHandler(coord, logger.Named("http")).RegisterRoutes(protected)

	return router
}
