// upload.go — загрузка конспекта: валидация, коммит файла, запись метаданных.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bigkaa/studynotes/internal/domain/model"
	"github.com/bigkaa/studynotes/internal/githost"
)

// Ограничения полей загрузки (в символах).
const (
	TitleMinLen       = 3
	TitleMaxLen       = 120
	DescriptionMinLen = 10
	DescriptionMaxLen = 500
)

// defaultUploaderName — имя загрузившего, если в токене нет ни имени, ни email.
const defaultUploaderName = "Contributor"

// ValidateNoteInput проверяет поля загрузки и возвращает нормализованную копию
// (строки без пробелов по краям). Первая найденная ошибка — *ValidationError.
func ValidateNoteInput(in model.NoteInput) (model.NoteInput, error) {
	out := in
	out.Title = strings.TrimSpace(in.Title)
	out.Description = strings.TrimSpace(in.Description)
	out.Grade = strings.TrimSpace(in.Grade)
	out.Subject = strings.TrimSpace(in.Subject)
	out.FileName = strings.TrimSpace(in.FileName)

	if n := utf8.RuneCountInString(out.Title); n < TitleMinLen || n > TitleMaxLen {
		return in, &ValidationError{
			Field:   "title",
			Message: fmt.Sprintf("длина должна быть от %d до %d символов", TitleMinLen, TitleMaxLen),
		}
	}
	if n := utf8.RuneCountInString(out.Description); n < DescriptionMinLen || n > DescriptionMaxLen {
		return in, &ValidationError{
			Field:   "description",
			Message: fmt.Sprintf("длина должна быть от %d до %d символов", DescriptionMinLen, DescriptionMaxLen),
		}
	}
	if out.Grade == "" {
		return in, &ValidationError{Field: "grade", Message: "обязательное поле"}
	}
	if out.Subject == "" {
		return in, &ValidationError{Field: "subject", Message: "обязательное поле"}
	}
	if out.FileName == "" || len(out.Content) == 0 {
		return in, &ValidationError{Field: "file", Message: "файл обязателен"}
	}
	return out, nil
}

// CreateNote загружает конспект от имени principal.
//
// Порядок: валидация (до любых сетевых вызовов), коммит файла в хранилище,
// запись метаданных. Шаги не транзакционны: если запись метаданных не удалась
// после успешного коммита, файл остаётся в хранилище без ссылок.
func (s *NoteService) CreateNote(ctx context.Context, principal model.Principal, in model.NoteInput) (*model.Note, error) {
	in, err := ValidateNoteInput(in)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	path := githost.BuildPath(in.Grade, in.Subject, in.FileName, now)
	message := "feat(notes): add " + in.Title

	if err := s.files.CommitFile(ctx, path, in.Content, message); err != nil {
		s.logger.Error("Ошибка коммита файла",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		var hostErr *githost.UploadError
		if errors.As(err, &hostErr) {
			return nil, &UploadError{Detail: hostErr.Body, Err: err}
		}
		return nil, &UploadError{Detail: err.Error(), Err: err}
	}

	note := &model.Note{
		ID:           uuid.NewString(),
		Title:        in.Title,
		Description:  in.Description,
		Grade:        in.Grade,
		Subject:      in.Subject,
		FilePath:     path,
		FileURL:      s.files.RawURL(path),
		UploaderID:   principal.SubjectID,
		UploaderName: uploaderName(principal),
		UploadedAt:   now,
	}

	if err := s.notes.Create(ctx, note); err != nil {
		s.logger.Warn("Метаданные не сохранены, файл в хранилище остался без ссылок",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("сохранение метаданных конспекта: %w", err)
	}

	s.logger.Info("Конспект загружен",
		slog.String("note_id", note.ID),
		slog.String("uploader_id", note.UploaderID),
		slog.String("path", path),
		slog.Int("size", len(in.Content)),
	)
	return note, nil
}

// uploaderName: имя из токена, затем email, затем defaultUploaderName.
func uploaderName(p model.Principal) string {
	if name := strings.TrimSpace(p.DisplayName); name != "" {
		return name
	}
	if email := strings.TrimSpace(p.Email); email != "" {
		return email
	}
	return defaultUploaderName
}
