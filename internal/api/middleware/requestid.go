// requestid.go — идентификатор запроса (UUID v7) в заголовке X-Request-ID и контексте.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// HeaderRequestID — заголовок с идентификатором запроса.
const HeaderRequestID = "X-Request-ID"

// ContextKeyRequestID — ключ идентификатора запроса в контексте.
const ContextKeyRequestID contextKey = "request_id"

// maxRequestIDLen ограничивает длину идентификатора, пришедшего от клиента.
const maxRequestIDLen = 128

// RequestID назначает запросу идентификатор UUID v7.
// Идентификатор клиента из X-Request-ID используется, если он не длиннее maxRequestIDLen.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.Must(uuid.NewV7()).String()
		}
		w.Header().Set(HeaderRequestID, id)
		ctx := context.WithValue(r.Context(), ContextKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext возвращает идентификатор запроса или пустую строку.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ContextKeyRequestID).(string)
	return id
}
