// Точка входа megalinks — сервиса закладок на ссылки MEGA с анализом содержимого.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// собирает сервисный слой, запускает фоновые задачи (очередь повторного анализа,
// периодическое обновление, topologymetrics) и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/megalinks/megalinks/internal/api/handlers"
	"github.com/megalinks/megalinks/internal/api/middleware"
	"github.com/megalinks/megalinks/internal/config"
	"github.com/megalinks/megalinks/internal/database"
	"github.com/megalinks/megalinks/internal/megaclient"
	"github.com/megalinks/megalinks/internal/repository"
	"github.com/megalinks/megalinks/internal/server"
	"github.com/megalinks/megalinks/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("megalinks запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("ML_DEPHEALTH_GROUP") == "" {
		logger.Warn("ML_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Repositories
	linkRepo := repository.NewLinkRepository(pool)
	userRepo := repository.NewUserRepository(pool)

	// 6. MEGA API клиент и анализатор
	megaClient := megaclient.New(cfg.MegaAPIURL, cfg.MegaTimeout, logger)
	analyzer := service.NewAnalyzer(megaClient, logger)
	logger.Info("MEGA клиент создан",
		slog.String("api_url", cfg.MegaAPIURL),
		slog.String("timeout", cfg.MegaTimeout.String()),
	)

	// 7. Сервисы анализа. Pacer общий: refresh-all, очередь и планировщик
	// не должны в сумме превышать темп запросов к MEGA.
	pacer := service.NewRatePacer(cfg.RefreshPacing)
	refreshSvc := service.NewRefreshService(linkRepo, analyzer, pacer, logger)
	queue := service.NewReanalysisQueue(refreshSvc, pacer, cfg.ReanalyzeQueueSize, logger)

	// 8. Сессии и аутентификация
	sessions := service.NewSessionStore(cfg.SessionMax, cfg.SessionTTL)
	authSvc := service.NewAuthService(userRepo, sessions, logger)

	// 9. Ссылки
	linkSvc := service.NewLinkService(linkRepo, refreshSvc, queue, logger)

	// 10. Фоновые задачи
	queue.Start(ctx)
	defer queue.Stop()

	if cfg.RefreshInterval > 0 {
		scheduler := service.NewRefreshScheduler(linkRepo, refreshSvc, cfg.RefreshInterval, logger)
		scheduler.Start(ctx)
		defer scheduler.Stop()
	} else {
		logger.Info("Периодическое обновление анализа отключено (ML_REFRESH_INTERVAL=0)")
	}

	// 10.1 topologymetrics — мониторинг зависимостей (PostgreSQL + MEGA API)
	var deps handlers.DependencyReporter
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthParams{
		ServiceID:     "megalinks",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PostgresURL:   cfg.DatabaseURL(),
		MegaBaseURL:   megaClient.BaseURL(),
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
	} else {
		defer dephealthSvc.Stop()
		deps = dephealthSvc
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 11. Handlers
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), deps)
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		linkSvc,
		authSvc,
		analyzer,
		cfg.SessionSecureCookie,
		logger,
	)

	// 12. HTTP-сервер
	srv := server.New(cfg, logger, apiHandler, authSvc,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)

	// 13. Запуск сервера (блокирующий вызов с graceful shutdown)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		cancel()
		os.Exit(1)
	}

	logger.Info("megalinks остановлен")
}
