// dto.go — JSON-представления ответов API и их маппинг из доменных моделей.
package handlers

import (
	"net/http"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/bigkaa/studynotes/internal/api/middleware"
	"github.com/bigkaa/studynotes/internal/domain/model"
)

// noteDTO — конспект в ответах API.
type noteDTO struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Grade        string    `json:"grade"`
	Subject      string    `json:"subject"`
	FilePath     string    `json:"filePath"`
	FileURL      string    `json:"fileUrl"`
	UploaderID   string    `json:"uploaderId"`
	UploaderName string    `json:"uploaderName"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// userDTO — профиль пользователя в ответах API.
// role — эффективная роль, storedRole — записанная в профиле.
type userDTO struct {
	UID        string               `json:"uid"`
	Name       string               `json:"name"`
	Email      *openapi_types.Email `json:"email,omitempty"`
	Role       string               `json:"role"`
	StoredRole string               `json:"storedRole,omitempty"`
	CreatedAt  *time.Time           `json:"createdAt,omitempty"`
}

func mapNote(n *model.Note) noteDTO {
	return noteDTO{
		ID:           n.ID,
		Title:        n.Title,
		Description:  n.Description,
		Grade:        n.Grade,
		Subject:      n.Subject,
		FilePath:     n.FilePath,
		FileURL:      n.FileURL,
		UploaderID:   n.UploaderID,
		UploaderName: n.UploaderName,
		UploadedAt:   n.UploadedAt,
	}
}

func mapNotes(notes []*model.Note) []noteDTO {
	items := make([]noteDTO, len(notes))
	for i, n := range notes {
		items[i] = mapNote(n)
	}
	return items
}

func mapUser(u *model.UserProfile) userDTO {
	result := userDTO{
		UID:        u.SubjectID,
		Name:       u.Name,
		Role:       u.Role.String(),
		StoredRole: u.StoredRole.String(),
	}

	if u.Email != "" {
		email := openapi_types.Email(u.Email)
		result.Email = &email
	}

	// Синтезированный профиль (ещё не синхронизирован) не имеет даты создания
	if !u.CreatedAt.IsZero() {
		createdAt := u.CreatedAt
		result.CreatedAt = &createdAt
	}

	return result
}

func requestID(r *http.Request) string {
	return middleware.RequestIDFromContext(r.Context())
}
