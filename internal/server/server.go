// Пакет server — HTTP-сервер сервиса конспектов с graceful shutdown.
// Без TLS — TLS termination выполняется на ingress.
package server

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
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/bigkaa/studynotes/internal/api/handlers"
	"github.com/bigkaa/studynotes/internal/api/middleware"
	"github.com/bigkaa/studynotes/internal/config"
	"github.com/bigkaa/studynotes/internal/domain/rbac"
)

// Server — HTTP-сервер сервиса конспектов.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
// jwtAuth проверяет ID-токены, resolver вычисляет эффективную роль
// для маршрутов администратора.
func New(
	cfg *config.Config,
	logger *slog.Logger,
	handler *handlers.APIHandler,
	jwtAuth *middleware.JWTAuth,
	resolver middleware.RoleResolver,
) *Server {
	router := newRouter(cfg, logger, handler, jwtAuth, resolver)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Handler возвращает корневой HTTP handler сервера.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// newRouter собирает маршруты.
//
// Публичные: каталог конспектов, health, metrics.
// Аутентифицированные: загрузка (с лимитом частоты), удаление, профиль.
// Администраторские: список пользователей и смена ролей. Роль вычисляется
// после проверки токена и до вызова handler.
func newRouter(
	cfg *config.Config,
	logger *slog.Logger,
	h *handlers.APIHandler,
	jwtAuth *middleware.JWTAuth,
	resolver middleware.RoleResolver,
) chi.Router {
	r := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.MetricsMiddleware())
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health и metrics проверяются Kubernetes напрямую
	r.Get("/health/live", h.HealthLive)
	r.Get("/health/ready", h.HealthReady)
	r.Get("/metrics", h.GetMetrics)

	r.Route("/api", func(r chi.Router) {
		r.Get("/notes", h.ListNotes)
		r.Get("/notes/{id}", h.GetNote)

		r.Group(func(r chi.Router) {
			r.Use(jwtAuth.Middleware())

			r.With(middleware.RateLimit(cfg.UploadRateLimit)).Post("/upload", h.UploadNote)
			r.Delete("/notes/{id}", h.DeleteNote)
			r.Delete("/delete/{id}", h.DeleteNote)
			r.Post("/users/sync", h.SyncProfile)
			r.Get("/users/me", h.CurrentUser)

			r.Group(func(r chi.Router) {
				// owner выше admin и сохраняет доступ, даже не состоя в IAM
				r.Use(middleware.RequireRole(resolver, logger, rbac.RoleAdmin, rbac.RoleOwner))

				r.Get("/users", h.ListUsers)
				r.Patch("/users", h.UpdateUserRole)
			})
		})
	})

	return r
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM)
// или отмены ctx. Затем выполняется graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст сервера отменён")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
