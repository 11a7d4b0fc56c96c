// notes.go — обработчики /api/notes endpoints.
// Публичный просмотр каталога и удаление собственного конспекта.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/studynotes/internal/api/errors"
	"github.com/bigkaa/studynotes/internal/api/middleware"
	"github.com/bigkaa/studynotes/internal/domain/model"
	"github.com/bigkaa/studynotes/internal/service"
)

// listNotesParams — query-параметры GET /api/notes.
type listNotesParams struct {
	Grade      *string
	Subject    *string
	UploaderID *string
	Q          *string
}

// ListNotes — GET /api/notes?grade=&subject=&uploaderId=&q=.
// Доступ: публичный.
func (h *APIHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	var params listNotesParams
	query := r.URL.Query()

	bindings := []struct {
		name string
		dest **string
	}{
		{"grade", &params.Grade},
		{"subject", &params.Subject},
		{"uploaderId", &params.UploaderID},
		{"q", &params.Q},
	}
	for _, b := range bindings {
		if err := runtime.BindQueryParameter("form", true, false, b.name, query, b.dest); err != nil {
			apierrors.FieldValidationError(w, b.name, "Некорректный параметр: "+err.Error())
			return
		}
	}

	filter := model.NoteFilter{
		Grade:      trimmed(params.Grade),
		Subject:    trimmed(params.Subject),
		UploaderID: trimmed(params.UploaderID),
		SearchTerm: trimmed(params.Q),
	}

	notes, err := h.notes.ListNotes(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка получения списка конспектов")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"notes": mapNotes(notes)})
}

// GetNote — GET /api/notes/{id}.
// Доступ: публичный.
func (h *APIHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteIDParam(w, r)
	if !ok {
		return
	}

	note, err := h.notes.GetNote(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Конспект не найден")
			return
		}
		h.writeServiceError(w, r, err, "Ошибка получения конспекта")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"note": mapNote(note)})
}

// DeleteNote — DELETE /api/notes/{id} (и /api/delete/{id}).
// Удаляет метаданные конспекта. Файл в хранилище остаётся.
// Доступ: только загрузивший. Чужой или несуществующий конспект — 400.
func (h *APIHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	id, ok := noteIDParam(w, r)
	if !ok {
		return
	}

	note, err := h.notes.DeleteNote(r.Context(), id, principal.SubjectID)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrNotFound):
		apierrors.WriteError(w, http.StatusBadRequest, apierrors.CodeNotFound, "Конспект не найден")
		return
	case errors.Is(err, service.ErrForbidden):
		h.logger.Info("Попытка удалить чужой конспект",
			slog.String("note_id", id),
			slog.String("subject_id", principal.SubjectID),
			slog.String("request_id", requestID(r)),
		)
		apierrors.WriteError(w, http.StatusBadRequest, apierrors.CodeForbidden, "Удалить конспект может только загрузивший его пользователь")
		return
	default:
		h.writeServiceError(w, r, err, "Ошибка удаления конспекта")
		return
	}

	h.logger.Info("Конспект удалён",
		slog.String("note_id", note.ID),
		slog.String("subject_id", principal.SubjectID),
	)
	writeJSON(w, http.StatusOK, map[string]any{"note": mapNote(note)})
}

// noteIDParam извлекает {id} из пути. При ошибке пишет ответ 400.
func noteIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil || strings.TrimSpace(id) == "" {
		apierrors.FieldValidationError(w, "id", "Некорректный идентификатор конспекта")
		return "", false
	}
	return id, true
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
