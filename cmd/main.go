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
	"github.com/pokopiemy/match-system/config"
	"github.com/pokopiemy/match-system/db"
	"github.com/pokopiemy/match-system/handlers"
	"github.com/pokopiemy/match-system/live"
	"github.com/pokopiemy/match-system/middleware"
	"github.com/pokopiemy/match-system/repositories"
	api "github.com/pokopiemy/match-system/routes"
	"github.com/pokopiemy/match-system/services"
)

const reconcileInterval = 30 * time.Second // How often the status sweep runs

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	// Подключение к базе данных
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

	// Инициализация WebSocket Hub
	hub := live.NewHub(logger)
	go hub.Run()
	logger.Info("websocket hub started")

	// Инициализация репозиториев
	userRepo := repositories.NewPostgresUserRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	registrationRepo := repositories.NewPostgresRegistrationRepository(dbConn)
	transactor := repositories.NewSQLTransactor(dbConn)

	// Инициализация сервисов
	emailService := services.NewEmailService(cfg)
	notifier := services.NewEmailNotifier(emailService, userRepo, logger)
	authService := services.NewAuthService(userRepo)
	userService := services.NewUserService(userRepo)
	matchService := services.NewMatchService(matchRepo, registrationRepo, userRepo, transactor, notifier, hub, logger)
	registrationService := services.NewRegistrationService(registrationRepo, matchRepo, hub, logger)
	logger.Info("services initialized")

	// Фоновый свип статусов: переводит просроченные матчи в finished и
	// порождает следующие матчи цикличных серий. Свип также выполняется
	// перед чтениями, тикер лишь ограничивает дрейф между запросами.
	go func() {
		ticker := time.NewTicker(reconcileInterval)
		defer ticker.Stop()
		logger.Info("status reconciliation scheduler started", slog.Duration("interval", reconcileInterval))

		if err := matchService.ReconcileStatuses(context.Background()); err != nil {
			logger.Error("scheduler: initial reconciliation failed", slog.Any("error", err))
		}
		for range ticker.C {
			if err := matchService.ReconcileStatuses(context.Background()); err != nil {
				logger.Error("scheduler: reconciliation failed", slog.Any("error", err))
			}
		}
	}()

	// Инициализация обработчиков HTTP
	authHandler := handlers.NewAuthHandler(authService, userService, cfg.JWTSecretKey)
	matchHandler := handlers.NewMatchHandler(matchService, userService, logger)
	registrationHandler := handlers.NewRegistrationHandler(registrationService)
	userHandler := handlers.NewUserHandler(userService)
	webSocketHandler := handlers.NewWebSocketHandler(hub, logger)
	authenticator := middleware.NewAuthenticator(cfg.JWTSecretKey)

	// Настройка маршрутизатора
	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		authenticator,
		cfg.CORSAllowedOrigins,
		authHandler,
		matchHandler,
		registrationHandler,
		userHandler,
		webSocketHandler,
	)
	logger.Info("routes configured")

	// Настройка и запуск HTTP-сервера
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

	// Ожидание сигнала завершения
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
}
