// Пакет errors — ответы об ошибках HTTP API.
//
// Тело всегда одного вида:
//
//	{"error": {"code": "NOT_FOUND", "message": "Конспект не найден"}}
//
// Для ошибок валидации добавляется "field".
package errors

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок, на которые опирается клиент.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeUploadFailed    = "UPLOAD_FAILED"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInternalError   = "INTERNAL_ERROR"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// WriteError — произвольная пара статус/код. Нужна там, где статус
// расходится с кодом (DELETE отвечает 400 с кодом FORBIDDEN).
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	write(w, statusCode, errorDetail{Code: code, Message: message})
}

func write(w http.ResponseWriter, statusCode int, detail errorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{Error: detail})
}

// FieldValidationError — 400, field указывает на поле запроса.
func FieldValidationError(w http.ResponseWriter, field, message string) {
	write(w, http.StatusBadRequest, errorDetail{Code: CodeValidationError, Message: message, Field: field})
}

func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// UploadFailed — GitHub отклонил коммит файла.
func UploadFailed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeUploadFailed, message)
}

func RateLimited(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, CodeRateLimited, message)
}

// InternalError — 500. Детали причины в ответ не попадают, только в лог.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
