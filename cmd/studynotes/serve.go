package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/bigkaa/studynotes/internal/api/handlers"
	"github.com/bigkaa/studynotes/internal/api/middleware"
	"github.com/bigkaa/studynotes/internal/config"
	"github.com/bigkaa/studynotes/internal/database"
	"github.com/bigkaa/studynotes/internal/githost"
	"github.com/bigkaa/studynotes/internal/iam"
	"github.com/bigkaa/studynotes/internal/repository"
	"github.com/bigkaa/studynotes/internal/server"
	"github.com/bigkaa/studynotes/internal/service"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP API",
		Long:  "Применяет миграции, подключается к зависимостям и запускает HTTP-сервер с graceful shutdown.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("загрузка конфигурации: %w", err)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("studynotes запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// Предупреждения о дефолтных значениях topologymetrics
	if os.Getenv("SN_DEPHEALTH_GROUP") == "" {
		logger.Warn("SN_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		return fmt.Errorf("миграции БД: %w", err)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("подключение к PostgreSQL: %w", err)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. IAM: источник членства и кэш снимка
	fetcher, err := iam.NewPolicyFetcher(iam.FetcherConfig{
		ProjectID:   cfg.IAMProjectID,
		ClientEmail: cfg.IAMClientEmail,
		PrivateKey:  cfg.IAMPrivateKey,
		TokenURL:    cfg.IAMTokenURL,
		Endpoint:    cfg.IAMEndpoint,
	}, logger)
	if err != nil {
		return fmt.Errorf("создание IAM fetcher: %w", err)
	}
	members := iam.New(fetcher, cfg.IAMCacheTTL, logger)
	logger.Info("IAM кэш создан",
		slog.String("project", cfg.IAMProjectID),
		slog.Duration("ttl", cfg.IAMCacheTTL),
	)

	// 6. Клиент хранилища файлов (GitHub Contents API)
	files := githost.New(githost.Config{
		Token:  cfg.GitHubToken,
		Owner:  cfg.GitHubOwner,
		Repo:   cfg.GitHubRepo,
		Branch: cfg.GitHubBranch,
		APIURL: cfg.GitHubAPIURL,
		RawURL: cfg.GitHubRawURL,
	}, nil, logger)

	// 7. Repositories
	profileRepo := repository.NewProfileRepository(pool)
	noteRepo := repository.NewNoteRepository(pool)

	// 8. Services
	roleSvc := service.NewRoleService(members, profileRepo, logger)
	noteSvc := service.NewNoteService(
		noteRepo, files,
		service.NewNoteCache(cfg.NoteCacheSize, cfg.NoteCacheTTL),
		logger,
	)

	// 9. Readiness checkers (PostgreSQL + JWKS)
	pgChecker := database.NewReadinessChecker(pool)
	jwksChecker := middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, 5*time.Second)
	healthHandler := handlers.NewHealthHandler(pgChecker, jwksChecker)

	// 10. API handler
	apiHandler := handlers.NewAPIHandler(healthHandler, noteSvc, roleSvc, cfg.MaxUploadBytes, logger)

	// 11. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		cfg.JWTIssuer,
		cfg.FirebaseProjectID,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		return fmt.Errorf("создание JWT middleware: %w", err)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 12. topologymetrics — мониторинг зависимостей (PostgreSQL, JWKS, GitHub)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"studynotes",
		cfg.DephealthGroup,
		service.DephealthTargets{
			DB:          pgDB,
			PostgresURL: cfg.DatabaseURL(),
			JWKSURL:     cfg.JWTJWKSURL,
			GitHubAPI:   files.APIURL(),
		},
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("Ошибка создания topologymetrics, мониторинг зависимостей отключён",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if err := dephealthSvc.Start(ctx); err != nil {
			logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		} else {
			defer dephealthSvc.Stop()
		}
	}

	// 13. HTTP-сервер (блокирует до SIGINT/SIGTERM)
	srv := server.New(cfg, logger, apiHandler, jwtAuth, roleSvc)
	if err := srv.Run(ctx); err != nil {
		return err
	}

	logger.Info("studynotes остановлен")
	return nil
}
