// upload.go — обработчик POST /api/upload.
// Multipart form: title, description, grade, subject, file (все обязательны).
package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	apierrors "github.com/bigkaa/studynotes/internal/api/errors"
	"github.com/bigkaa/studynotes/internal/api/middleware"
	"github.com/bigkaa/studynotes/internal/domain/model"
)

// multipartMemory — объём multipart-тела, удерживаемый в памяти.
const multipartMemory = 8 << 20

// UploadNote — POST /api/upload.
// Валидирует поля, коммитит файл в хранилище и сохраняет метаданные.
// 201 с созданным конспектом, 400 при ошибке валидации или отказе хранилища.
// Доступ: любой аутентифицированный пользователь.
func (h *APIHandler) UploadNote(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apierrors.FieldValidationError(w, "file", fmt.Sprintf("Размер запроса превышает %d байт", tooLarge.Limit))
			return
		}
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.FieldValidationError(w, "file", "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		apierrors.FieldValidationError(w, "file", fmt.Sprintf("Ошибка чтения файла: %s", err.Error()))
		return
	}

	in := model.NoteInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Grade:       r.FormValue("grade"),
		Subject:     r.FormValue("subject"),
		FileName:    header.Filename,
		Content:     content,
	}

	note, err := h.notes.CreateNote(r.Context(), principal, in)
	if err != nil {
		h.writeServiceError(w, r, err, "Ошибка загрузки конспекта")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"note": mapNote(note)})
}
