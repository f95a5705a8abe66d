package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apptly/apptly/internal/config"
	"github.com/apptly/apptly/internal/handlers"
	"github.com/apptly/apptly/internal/middleware"
	"github.com/apptly/apptly/internal/otp"
	"github.com/apptly/apptly/internal/repository"
	"github.com/apptly/apptly/internal/service"
	"github.com/apptly/apptly/internal/sms"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	if err := godotenv.Load(); err != nil {
		logger.Info(".env file not found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	pool, err := initDatabase(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Endpoint,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Initialize repositories
	clientRepo := repository.NewClientRepository(pool, logger)
	appointmentRepo := repository.NewAppointmentRepository(pool, logger)
	employeeRepo := repository.NewEmployeeRepository(pool, logger)

	// Initialize services
	sessionService, err := service.NewSessionService(&cfg.JWT, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize session service")
	}

	smsClient := sms.NewClient(&cfg.SMS, logger)
	engine := otp.NewEngine(clientRepo, smsClient, &cfg.OTP, logger)

	authHandlers := handlers.NewAuthHandlers(engine, sessionService, logger)
	appointmentHandlers := handlers.NewAppointmentHandlers(
		appointmentRepo,
		clientRepo,
		employeeRepo,
		sessionService,
		logger,
	)

	authMiddleware := middleware.NewAuthMiddleware(sessionService, logger)
	rateLimiter := middleware.NewRateLimiter(redisClient, &cfg.RateLimit, logger)
	router := setupRouter(authHandlers, appointmentHandlers, authMiddleware, rateLimiter, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func initDatabase(cfg *config.Config, logger *logrus.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	poolCfg.MaxConns = cfg.Database.MaxConns

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database pool initialized")
	return pool, nil
}

func setupRouter(
	authHandlers *handlers.AuthHandlers,
	appointmentHandlers *handlers.AppointmentHandlers,
	authMiddleware *middleware.AuthMiddleware,
	rateLimiter *middleware.RateLimiter,
	logger *logrus.Logger,
) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.CORSMiddleware)
	router.Use(middleware.LoggingMiddleware(logger))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "OPTIONS")

	// OTP authentication, rate limited per remote address on top of the
	// engine's own counters.
	router.Handle("/requestClientAuth",
		rateLimiter.Limit(http.HandlerFunc(authHandlers.RequestClientAuth))).Methods("POST", "OPTIONS")
	router.Handle("/clientAuth",
		rateLimiter.Limit(http.HandlerFunc(authHandlers.ClientAuth))).Methods("POST", "OPTIONS")

	// Mutations carry the token in the body; the handlers validate it.
	router.HandleFunc("/changeAppointment", appointmentHandlers.ChangeAppointment).Methods("PUT", "OPTIONS")
	router.HandleFunc("/makeAppointment", appointmentHandlers.MakeAppointment).Methods("POST", "OPTIONS")

	// Staff-facing endpoints, fronted by network controls rather than
	// session auth.
	router.HandleFunc("/clientRepresentative", appointmentHandlers.GetClientRepresentative).Methods("GET", "OPTIONS")
	router.HandleFunc("/allAppointmentsInMonthAndYear", appointmentHandlers.GetAppointmentsInMonth).Methods("GET", "OPTIONS")
	router.HandleFunc("/appointmentsCount", appointmentHandlers.GetAppointmentsCount).Methods("GET", "OPTIONS")
	router.HandleFunc("/appointmentsInDate", appointmentHandlers.GetAppointmentsInDate).Methods("GET", "OPTIONS")
	router.HandleFunc("/unassignedAppointmentsInDate", appointmentHandlers.GetUnassignedAppointmentsInDate).Methods("GET", "OPTIONS")
	router.HandleFunc("/allEmployees", appointmentHandlers.GetAllEmployees).Methods("GET", "OPTIONS")
	router.HandleFunc("/changeClientAppointment", appointmentHandlers.ChangeClientAppointment).Methods("PUT", "OPTIONS")
	router.HandleFunc("/assignExecutiveEmployee", appointmentHandlers.AssignExecutiveEmployee).Methods("PUT", "OPTIONS")

	// Client-facing endpoints carrying the session token as a query param.
	sessioned := router.PathPrefix("/").Subrouter()
	sessioned.Use(authMiddleware.RequireSession)
	sessioned.HandleFunc("/repName", appointmentHandlers.GetRepName).Methods("GET", "OPTIONS")
	sessioned.HandleFunc("/lastAppointment", appointmentHandlers.GetLastAppointment).Methods("GET", "OPTIONS")
	sessioned.HandleFunc("/nextAppointment", appointmentHandlers.GetNextAppointment).Methods("GET", "OPTIONS")

	return router
}
