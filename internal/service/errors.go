// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrForbidden — операция запрещена для вызывающего.
	ErrForbidden = errors.New("операция запрещена")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrUpload — хранилище файлов отклонило загрузку.
	ErrUpload = errors.New("ошибка загрузки файла")
)

// ValidationError — ошибка валидации конкретного поля.
// errors.Is(err, ErrValidation) == true.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is позволяет сравнивать с ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ForbiddenError — нарушение правила назначения ролей.
// errors.Is(err, ErrForbidden) == true.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return e.Reason
}

// Is позволяет сравнивать с ErrForbidden.
func (e *ForbiddenError) Is(target error) bool {
	return target == ErrForbidden
}

// UploadError — отказ хранилища при коммите файла.
// Detail содержит ответ хранилища. errors.Is(err, ErrUpload) == true.
type UploadError struct {
	Detail string
	Err    error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("не удалось загрузить файл: %s", e.Detail)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Is позволяет сравнивать с ErrUpload.
func (e *UploadError) Is(target error) bool {
	return target == ErrUpload
}
