// auth.go — JWT middleware для аутентификации и авторизации.
// Проверяет Firebase ID-токены (RS256) по JWKS Google, извлекает sub, email и name.
// Роль не берётся из токена: RequireRole вычисляет её через RoleResolver
// уже после проверки подписи.
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/studynotes/internal/api/errors"
	"github.com/bigkaa/studynotes/internal/domain/model"
	"github.com/bigkaa/studynotes/internal/domain/rbac"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyClaims — проверенные claims в контексте запроса.
	ContextKeyClaims contextKey = "jwt_claims"
	// ContextKeyRole — эффективная роль, вычисленная RequireRole.
	ContextKeyRole contextKey = "effective_role"
)

// AuthClaims — claims проверенного ID-токена.
type AuthClaims struct {
	// Subject — sub (Firebase UID).
	Subject string
	// Email — email из токена, может быть пустым.
	Email string
	// EmailVerified — claim email_verified.
	EmailVerified bool
	// Name — отображаемое имя (claim name).
	Name string
}

// Principal возвращает субъект запроса.
func (c *AuthClaims) Principal() model.Principal {
	return model.Principal{
		SubjectID:   c.Subject,
		Email:       c.Email,
		DisplayName: c.Name,
	}
}

// firebaseClaims — raw claims Firebase ID-токена для парсинга.
type firebaseClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// RoleResolver вычисляет эффективную роль субъекта.
// Реализуется service.RoleService.
type RoleResolver interface {
	ResolveRole(ctx context.Context, subjectID, email string) (rbac.Role, error)
}

// JWTAuth — middleware для JWT-аутентификации через JWKS.
type JWTAuth struct {
	jwks      keyfunc.Keyfunc
	logger    *slog.Logger
	issuer    string
	audience  string
	jwtLeeway time.Duration
}

// NewJWTAuth создаёт JWT middleware с JWKS.
// jwksURL — URL к JWKS endpoint (securetoken Google).
// issuer — ожидаемый iss (https://securetoken.google.com/<project>).
// audience — ожидаемый aud (идентификатор проекта Firebase).
// jwksRefreshInterval — интервал обновления ключей (SN_JWKS_REFRESH_INTERVAL).
// jwtLeeway — допустимое отклонение времени (SN_JWT_LEEWAY).
func NewJWTAuth(
	jwksURL string,
	issuer string,
	audience string,
	jwksRefreshInterval time.Duration,
	jwtLeeway time.Duration,
	logger *slog.Logger,
) (*JWTAuth, error) {
	// NoErrorReturnFirstHTTPReq — стартуем даже если JWKS ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: 10 * time.Second},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           jwksRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return &JWTAuth{
		jwks:      k,
		logger:    logger.With(slog.String("component", "jwt_auth")),
		issuer:    issuer,
		audience:  audience,
		jwtLeeway: jwtLeeway,
	}, nil
}

// NewJWTAuthWithKeyfunc создаёт JWT middleware с предоставленной keyfunc.
// Используется в тестах для подстановки mock JWKS.
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, issuer, audience string, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		jwks:     kf,
		logger:   logger.With(slog.String("component", "jwt_auth")),
		issuer:   issuer,
		audience: audience,
	}
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
// Извлекает Bearer token, валидирует подпись (RS256), iss, aud, exp
// и помещает AuthClaims в контекст.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			rawClaims := &firebaseClaims{}
			parserOpts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"RS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithIssuedAt(),
				jwt.WithLeeway(j.jwtLeeway),
			}
			if j.issuer != "" {
				parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
			}
			if j.audience != "" {
				parserOpts = append(parserOpts, jwt.WithAudience(j.audience))
			}

			token, err := jwt.ParseWithClaims(tokenString, rawClaims, j.jwks.KeyfuncCtx(r.Context()), parserOpts...)
			if err != nil {
				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}
			if !token.Valid {
				apierrors.Unauthorized(w, "Невалидный токен")
				return
			}

			subject, err := rawClaims.GetSubject()
			if err != nil || subject == "" {
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			}

			claims := &AuthClaims{
				Subject:       subject,
				Email:         strings.TrimSpace(rawClaims.Email),
				EmailVerified: rawClaims.EmailVerified,
				Name:          strings.TrimSpace(rawClaims.Name),
			}
			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole возвращает middleware, требующий одну из указанных эффективных ролей.
// Роль вычисляется resolver на каждый запрос. Ошибка вычисления — отказ (403).
// Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequireRole(resolver RoleResolver, logger *slog.Logger, roles ...rbac.Role) func(http.Handler) http.Handler {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.String()
	}
	required := strings.Join(names, " или ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
				return
			}

			role, err := resolver.ResolveRole(r.Context(), claims.Subject, claims.Email)
			if err != nil {
				logger.Error("Ошибка определения роли, доступ запрещён",
					slog.String("subject_id", claims.Subject),
					slog.String("request_id", RequestIDFromContext(r.Context())),
					slog.String("error", err.Error()),
				)
				apierrors.Forbidden(w, "Не удалось подтвердить права доступа")
				return
			}

			if !slices.Contains(roles, role) {
				apierrors.Forbidden(w, fmt.Sprintf("Недостаточно прав: требуется роль %s", required))
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyRole, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// --- Context helpers ---

// ClaimsFromContext извлекает AuthClaims из контекста запроса.
// Возвращает nil, если claims не найдены.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*AuthClaims)
	return claims
}

// PrincipalFromContext возвращает субъект запроса.
// ok == false, если запрос не прошёл аутентификацию.
func PrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		return model.Principal{}, false
	}
	return claims.Principal(), true
}

// RoleFromContext возвращает роль, вычисленную RequireRole, или пустую строку.
func RoleFromContext(ctx context.Context) rbac.Role {
	role, _ := ctx.Value(ContextKeyRole).(rbac.Role)
	return role
}

// --- ReadinessChecker для JWKS ---

// JWKSReadinessChecker — проверка доступности JWKS endpoint.
type JWKSReadinessChecker struct {
	jwksURL string
	client  *http.Client
}

// NewJWKSReadinessChecker создаёт checker доступности JWKS.
func NewJWKSReadinessChecker(jwksURL string, timeout time.Duration) *JWKSReadinessChecker {
	return &JWKSReadinessChecker{
		jwksURL: jwksURL,
		client:  &http.Client{Timeout: timeout},
	}
}

const statusFail = "fail"

// CheckReady проверяет, что JWKS отвечает 200 и содержит ключи.
func (k *JWKSReadinessChecker) CheckReady() (status, message string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, k.jwksURL, http.NoBody)
	if err != nil {
		return statusFail, "ошибка создания запроса: " + err.Error()
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return statusFail, fmt.Sprintf("JWKS недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusFail, fmt.Sprintf("JWKS вернул статус %d", resp.StatusCode)
	}

	var jwksResp struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwksResp); err != nil {
		return "degraded", fmt.Sprintf("JWKS: невалидный JSON: %v", err)
	}
	if len(jwksResp.Keys) == 0 {
		return "degraded", "JWKS: нет ключей"
	}

	return "ok", fmt.Sprintf("JWKS доступен, ключей: %d", len(jwksResp.Keys))
}
