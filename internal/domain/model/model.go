// Пакет model — доменные модели сервиса конспектов.
package model

import (
	"time"

	"github.com/bigkaa/studynotes/internal/domain/rbac"
)

// Principal — аутентифицированный субъект запроса.
// Формируется из проверенного ID-токена, не сохраняется.
type Principal struct {
	// SubjectID — стабильный идентификатор субъекта (sub).
	SubjectID string
	// Email — может быть пустым.
	Email string
	// DisplayName — имя из токена (claim name).
	DisplayName string
}

// UserProfile — профиль пользователя (таблица user_profiles).
type UserProfile struct {
	SubjectID string
	Name      string
	Email     string
	// StoredRole — роль, записанная в профиле.
	StoredRole rbac.Role
	// Role — эффективная роль (с учётом IAM). Не хранится.
	Role      rbac.Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Note — метаданные конспекта (таблица notes).
type Note struct {
	ID           string
	Title        string
	Description  string
	Grade        string
	Subject      string
	FilePath     string
	FileURL      string
	UploaderID   string
	UploaderName string
	UploadedAt   time.Time
}

// NoteFilter — параметры выборки списка конспектов.
type NoteFilter struct {
	Grade      string
	Subject    string
	UploaderID string
	// SearchTerm — подстрока для поиска по title и description.
	SearchTerm string
}

// HasEqualityFilters сообщает, задан ли хотя бы один фильтр на равенство.
func (f NoteFilter) HasEqualityFilters() bool {
	return f.Grade != "" || f.Subject != "" || f.UploaderID != ""
}

// NoteInput — поля новой загрузки до валидации.
type NoteInput struct {
	Title       string
	Description string
	Grade       string
	Subject     string
	FileName    string
	Content     []byte
}
