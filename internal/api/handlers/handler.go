// handler.go — основной обработчик HTTP API сервиса конспектов.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/studynotes/internal/api/errors"
	"github.com/bigkaa/studynotes/internal/domain/model"
	"github.com/bigkaa/studynotes/internal/domain/rbac"
	"github.com/bigkaa/studynotes/internal/service"
)

// NoteOperations — операции над конспектами (service.NoteService).
type NoteOperations interface {
	ListNotes(ctx context.Context, filter model.NoteFilter) ([]*model.Note, error)
	GetNote(ctx context.Context, id string) (*model.Note, error)
	DeleteNote(ctx context.Context, id, callerID string) (*model.Note, error)
	CreateNote(ctx context.Context, principal model.Principal, in model.NoteInput) (*model.Note, error)
}

// UserOperations — операции над профилями и ролями (service.RoleService).
type UserOperations interface {
	ListUsers(ctx context.Context) ([]*model.UserProfile, error)
	UpdateRole(ctx context.Context, targetID string, role rbac.AssignableRole) (*model.UserProfile, error)
	SyncProfile(ctx context.Context, principal model.Principal) (*model.UserProfile, error)
	CurrentUser(ctx context.Context, principal model.Principal) (*model.UserProfile, error)
}

// APIHandler — основной обработчик API.
type APIHandler struct {
	health         *HealthHandler
	notes          NoteOperations
	users          UserOperations
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
// maxUploadBytes — ограничение размера multipart-тела загрузки.
func NewAPIHandler(
	health *HealthHandler,
	notes NoteOperations,
	users UserOperations,
	maxUploadBytes int64,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:         health,
		notes:          notes,
		users:          users,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError отображает ошибку сервисного слоя в HTTP-ответ.
// Неизвестные ошибки логируются и отдаются как 500 с сообщением fallback.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var (
		vErr  *service.ValidationError
		fErr  *service.ForbiddenError
		upErr *service.UploadError
	)

	switch {
	case errors.As(err, &vErr):
		apierrors.FieldValidationError(w, vErr.Field, vErr.Message)
	case errors.As(err, &upErr):
		h.logger.Warn("Хранилище файлов отклонило загрузку",
			slog.String("request_id", requestID(r)),
			slog.String("detail", upErr.Detail),
		)
		// ответ хранилища может содержать служебные данные, клиенту только общий текст
		apierrors.UploadFailed(w, "Хранилище файлов отклонило загрузку")
	case errors.As(err, &fErr):
		apierrors.Forbidden(w, fErr.Reason)
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, "Операция запрещена")
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Ресурс не найден")
	default:
		h.logger.Error(fallback,
			slog.String("request_id", requestID(r)),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, fallback)
	}
}
