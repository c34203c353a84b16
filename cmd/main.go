package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deckstorm/tcg-arena/brackets"
	"github.com/deckstorm/tcg-arena/config"
	"github.com/deckstorm/tcg-arena/db"
	"github.com/deckstorm/tcg-arena/handlers"
	"github.com/deckstorm/tcg-arena/repositories"
	api "github.com/deckstorm/tcg-arena/routes"
	"github.com/deckstorm/tcg-arena/services"
	"github.com/deckstorm/tcg-arena/storage"
	_ "github.com/lib/pq"
)

const tokenTTL = 24 * time.Hour

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

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

	// Инициализация загрузчика файлов (Cloudflare R2)
	uploader, err := storage.NewCloudflareR2Uploader(storage.CloudflareR2Config{
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
	logger.Info("Cloudflare R2 uploader initialized")

	// Инициализация WebSocket Hub
	wsHub := brackets.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub started")

	// Инициализация репозиториев
	txManager := repositories.NewTxManager(dbConn)
	userRepo := repositories.NewPostgresUserRepository(dbConn)
	playerRepo := repositories.NewPostgresPlayerRepository(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	registrationRepo := repositories.NewPostgresRegistrationRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	rankingRepo := repositories.NewPostgresRankingRepository(dbConn)
	statisticRepo := repositories.NewPostgresStatisticRepository(dbConn)

	// Инициализация сервисов
	clock := services.Clock(time.Now)
	locker := services.NewTournamentLocker()
	seeder := brackets.NewSeeder(rand.New(rand.NewSource(time.Now().UnixNano())))

	authService := services.NewAuthService(txManager, userRepo, playerRepo, cfg.JWTSecretKey, tokenTTL, clock)
	playerService := services.NewPlayerService(playerRepo, uploader, clock, logger)
	tournamentService := services.NewTournamentService(txManager, tournamentRepo, uploader, clock, logger)
	registrationService := services.NewRegistrationService(txManager, tournamentRepo, registrationRepo, playerRepo, clock, logger)
	rankingService := services.NewRankingService(tournamentRepo, matchRepo, registrationRepo, rankingRepo)
	stateService := services.NewTournamentStateService(txManager, tournamentRepo, matchRepo, registrationRepo, clock)
	bracketService := services.NewBracketService(tournamentRepo, registrationRepo, matchRepo, rankingRepo, seeder, clock, logger)

	matchService := services.NewMatchService(
		txManager,
		tournamentRepo,
		matchRepo,
		registrationRepo,
		playerRepo,
		statisticRepo,
		rankingService,
		wsHub,
		locker,
		clock,
		logger,
	)
	orchestrationService := services.NewOrchestrationService(
		txManager,
		tournamentRepo,
		matchRepo,
		registrationRepo,
		bracketService,
		rankingService,
		stateService,
		wsHub,
		locker,
		clock,
		logger,
	)
	// Завершённые матчи на выбывание двигают сетку через оркестратор.
	matchService.SetRoundAdvancer(orchestrationService)
	logger.Info("services initialized")

	// Инициализация обработчиков HTTP
	router := api.InitRoutes(api.Handlers{
		Auth:         handlers.NewAuthHandler(authService),
		Tournament:   handlers.NewTournamentHandler(tournamentService, stateService, orchestrationService),
		Match:        handlers.NewMatchHandler(matchService),
		Registration: handlers.NewRegistrationHandler(registrationService),
		Ranking:      handlers.NewRankingHandler(rankingService),
		Bracket:      handlers.NewBracketHandler(bracketService, tournamentService),
		Player:       handlers.NewPlayerHandler(playerService),
		WebSocket:    handlers.NewWebSocketHandler(wsHub, tournamentService, logger),
	}, authService)
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
	}
	logger.Info("application exited")
}
