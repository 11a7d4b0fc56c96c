// users.go — обработчики /api/users endpoints.
// Список пользователей и смена ролей (admin), синхронизация и просмотр своего профиля.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/studynotes/internal/api/errors"
	"github.com/bigkaa/studynotes/internal/api/middleware"
	"github.com/bigkaa/studynotes/internal/domain/rbac"
)

// updateRoleRequest — тело PATCH /api/users.
type updateRoleRequest struct {
	UID  string `json:"uid"`
	Role string `json:"role"`
}

// ListUsers — GET /api/users.
// Возвращает профили с эффективными ролями.
// Доступ: admin или owner (проверяется RequireRole).
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения списка пользователей")
		return
	}

	items := make([]userDTO, len(users))
	for i, u := range users {
		items[i] = mapUser(u)
	}

	writeJSON(w, http.StatusOK, map[string]any{"users": items})
}

// UpdateUserRole — PATCH /api/users.
// Тело {uid, role}; role — строго "admin" или "user".
// Доступ: admin или owner (проверяется RequireRole).
func (h *APIHandler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	uid := strings.TrimSpace(req.UID)
	if uid == "" {
		apierrors.FieldValidationError(w, "uid", "Идентификатор пользователя обязателен")
		return
	}

	role, err := rbac.ParseAssignableRole(req.Role)
	if err != nil {
		apierrors.FieldValidationError(w, "role", err.Error())
		return
	}

	updated, err := h.users.UpdateRole(r.Context(), uid, role)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка обновления роли")
		return
	}

	caller, _ := middleware.PrincipalFromContext(r.Context())
	h.logger.Info("Роль изменена через API",
		slog.String("target_id", uid),
		slog.String("role", role.Role().String()),
		slog.String("caller_id", caller.SubjectID),
		slog.String("request_id", requestID(r)),
	)
	writeJSON(w, http.StatusOK, map[string]any{"user": mapUser(updated)})
}

// SyncProfile — POST /api/users/sync.
// Создаёт профиль при первом входе или обновляет name/email.
// Доступ: любой аутентифицированный пользователь.
func (h *APIHandler) SyncProfile(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	profile, err := h.users.SyncProfile(r.Context(), principal)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка синхронизации профиля")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"profile": mapUser(profile)})
}

// CurrentUser — GET /api/users/me.
// Профиль вызывающего с эффективной ролью.
func (h *APIHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	user, err := h.users.CurrentUser(r.Context(), principal)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения профиля")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": mapUser(user)})
}
