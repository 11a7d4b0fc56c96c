// dephealth.go — мониторинг зависимостей через topologymetrics SDK.
//
// Зависимости:
//   - PostgreSQL — SQL checker через существующий pgxpool (connection pool mode, critical)
//   - Firebase JWKS — HTTP checker к endpoint ключей подписи токенов (critical)
//   - GitHub API — HTTP checker к REST API хранилища файлов (non-critical:
//     без него не работает только загрузка)
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker для JWKS и GitHub
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"     // PostgreSQL checker (pool mode)
)

// DephealthService — периодическая проверка внешних зависимостей.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// DephealthTargets — адреса проверяемых зависимостей.
type DephealthTargets struct {
	// DB — *sql.DB поверх pgxpool (stdlib.OpenDBFromPool): проверка идёт через тот же пул.
	DB *sql.DB
	// PostgresURL — только для лейблов метрик.
	PostgresURL string
	JWKSURL     string
	GitHubAPI   string
}

// NewDephealthService создаёт мониторинг зависимостей.
// serviceID — имя вершины графа ("studynotes"), group — SN_DEPHEALTH_GROUP.
// extra — дополнительные опции SDK (в тестах: dephealth.WithRegisterer).
func NewDephealthService(
	serviceID string,
	group string,
	targets DephealthTargets,
	checkInterval time.Duration,
	logger *slog.Logger,
	extra ...dephealth.Option,
) (*DephealthService, error) {
	opts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(targets.DB)),
			dephealth.FromURL(targets.PostgresURL),
			dephealth.CheckInterval(checkInterval),
			dephealth.Critical(true),
		),
		// Google отдаёт JWKS только по пути ключей, /health там нет
		dephealth.HTTP("firebase-jwks",
			dephealth.FromURL(targets.JWKSURL),
			dephealth.WithHTTPHealthPath(healthPath(targets.JWKSURL, "/health")),
			dephealth.CheckInterval(checkInterval),
			dephealth.Critical(true),
		),
		dephealth.HTTP("github-api",
			dephealth.FromURL(targets.GitHubAPI),
			dephealth.WithHTTPHealthPath(healthPath(targets.GitHubAPI, "/")),
			dephealth.CheckInterval(checkInterval),
			dephealth.Critical(false),
		),
	}

	dh, err := dephealth.New(serviceID, group, append(opts, extra...)...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// healthPath возвращает path из rawURL или fallback, если path пуст.
func healthPath(rawURL, fallback string) string {
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Path != "" {
		return parsed.Path
	}
	return fallback
}

// Start запускает проверки в фоне.
func (ds *DephealthService) Start(ctx context.Context) error {
	if err := ds.dh.Start(ctx); err != nil {
		return err
	}
	ds.logger.Info("Мониторинг зависимостей запущен",
		slog.Int("dependencies", 3),
	)
	return nil
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health — последнее состояние проверок по ключу "<имя>:<host>:<port>".
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
