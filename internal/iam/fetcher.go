// fetcher.go — получение списка членов IAM-политики проекта Google Cloud.
// Токен доступа получается обменом подписанного JWT assertion сервисного
// аккаунта (golang.org/x/oauth2/jwt), затем вызывается
// Cloud Resource Manager v1 projects.getIamPolicy.
package iam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/cloudresourcemanager/v1"
	"google.golang.org/api/option"
)

// userMemberPrefix — префикс участников-людей в биндингах IAM.
// serviceAccount:, group:, domain: и прочие игнорируются.
const userMemberPrefix = "user:"

// FetcherConfig — параметры доступа к IAM-политике.
type FetcherConfig struct {
	// ProjectID — проект, политика которого читается.
	ProjectID string
	// ClientEmail — email сервисного аккаунта.
	ClientEmail string
	// PrivateKey — PEM приватного ключа сервисного аккаунта.
	PrivateKey string
	// TokenURL — endpoint обмена assertion на access token.
	TokenURL string
	// Endpoint — переопределение base URL Cloud Resource Manager (опционально).
	Endpoint string
	// HTTPClient — транспорт для обоих вызовов (nil — клиент с таймаутом 30s).
	HTTPClient *http.Client
}

// PolicyFetcher читает IAM-политику и возвращает email участников-людей.
type PolicyFetcher struct {
	projectID   string
	endpoint    string
	tokenSource oauth2.TokenSource
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewPolicyFetcher создаёт PolicyFetcher.
// Токен кэшируется источником oauth2 и обновляется при истечении.
func NewPolicyFetcher(cfg FetcherConfig, logger *slog.Logger) (*PolicyFetcher, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("не задан проект IAM")
	}
	if cfg.ClientEmail == "" || cfg.PrivateKey == "" {
		return nil, errors.New("не заданы учётные данные сервисного аккаунта IAM")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	jwtCfg := &jwt.Config{
		Email:      cfg.ClientEmail,
		PrivateKey: []byte(cfg.PrivateKey),
		Scopes:     []string{cloudresourcemanager.CloudPlatformScope},
		TokenURL:   cfg.TokenURL,
	}

	// Запрос токена идёт через тот же HTTP-клиент
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)

	return &PolicyFetcher{
		projectID:   cfg.ProjectID,
		endpoint:    cfg.Endpoint,
		tokenSource: jwtCfg.TokenSource(tokenCtx),
		httpClient:  httpClient,
		logger:      logger.With(slog.String("component", "iam_fetcher")),
	}, nil
}

// FetchMembers возвращает множество email (в нижнем регистре) участников
// политики с типом user.
func (f *PolicyFetcher) FetchMembers(ctx context.Context) (map[string]struct{}, error) {
	client := &http.Client{
		Timeout: f.httpClient.Timeout,
		Transport: &oauth2.Transport{
			Source: f.tokenSource,
			Base:   baseTransport(f.httpClient),
		},
	}

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if f.endpoint != "" {
		opts = append(opts, option.WithEndpoint(f.endpoint))
	}

	svc, err := cloudresourcemanager.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("создание клиента Cloud Resource Manager: %w", err)
	}

	policy, err := svc.Projects.GetIamPolicy(f.projectID, &cloudresourcemanager.GetIamPolicyRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("получение IAM-политики проекта %s: %w", f.projectID, err)
	}

	members := UserMembers(policy)
	f.logger.Debug("IAM-политика получена",
		slog.String("project", f.projectID),
		slog.Int("bindings", len(policy.Bindings)),
		slog.Int("members", len(members)),
	)
	return members, nil
}

// UserMembers извлекает участников user: из всех биндингов политики.
func UserMembers(policy *cloudresourcemanager.Policy) map[string]struct{} {
	members := make(map[string]struct{})
	if policy == nil {
		return members
	}
	for _, binding := range policy.Bindings {
		if binding == nil {
			continue
		}
		for _, m := range binding.Members {
			if !strings.HasPrefix(m, userMemberPrefix) {
				continue
			}
			email := NormalizeEmail(strings.TrimPrefix(m, userMemberPrefix))
			if email != "" {
				members[email] = struct{}{}
			}
		}
	}
	return members
}

// NormalizeEmail приводит email к ключу сравнения.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func baseTransport(c *http.Client) http.RoundTripper {
	if c.Transport != nil {
		return c.Transport
	}
	return http.DefaultTransport
}
