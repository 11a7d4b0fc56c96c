// ratelimit.go — ограничение частоты загрузок по IP (скользящее окно httprate).
package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	apierrors "github.com/bigkaa/studynotes/internal/api/errors"
)

// RateLimit ограничивает запросы с одного IP до requestsPerMinute в минуту.
// Превышение — 429 в стандартном формате ошибки.
// IP берётся из RemoteAddr, поэтому middleware ставится после chi RealIP.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			apierrors.RateLimited(w, "Слишком много загрузок, повторите позже")
		}),
	)
}
