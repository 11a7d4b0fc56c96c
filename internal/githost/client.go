// Пакет githost — клиент GitHub Contents API, используемый как хранилище
// файлов конспектов. Файл коммитится в заданную ветку, публичная ссылка
// строится на raw.githubusercontent.com.
package githost

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// maxErrorBody ограничивает тело ответа об ошибке, сохраняемое в UploadError.
const maxErrorBody = 4096

// Config — параметры репозитория-хранилища.
type Config struct {
	Token  string
	Owner  string
	Repo   string
	Branch string
	// APIURL — base URL REST API (https://api.github.com).
	APIURL string
	// RawURL — base URL raw-контента (https://raw.githubusercontent.com).
	RawURL string
}

// UploadError — хранилище отклонило коммит.
// Body содержит тело ответа GitHub (усечённое).
type UploadError struct {
	StatusCode int
	Body       string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("GitHub вернул статус %d: %s", e.StatusCode, e.Body)
}

// Client — клиент GitHub Contents API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент. base — HTTP-клиент для транспорта (nil — таймаут 60s);
// токен добавляется через oauth2.
func New(cfg Config, base *http.Client, logger *slog.Logger) *Client {
	if base == nil {
		base = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	cfg.RawURL = strings.TrimRight(cfg.RawURL, "/")

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
	httpClient.Timeout = base.Timeout

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "github_client")),
	}
}

// commitRequest — тело PUT /repos/{owner}/{repo}/contents/{path}.
type commitRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
}

// CommitFile создаёт файл path в ветке с содержимым content.
// Не-2xx ответ возвращается как *UploadError. Повторов нет.
func (c *Client) CommitFile(ctx context.Context, path string, content []byte, message string) error {
	body, err := json.Marshal(commitRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
		Branch:  c.cfg.Branch,
	})
	if err != nil {
		return fmt.Errorf("кодирование запроса коммита: %w", err)
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		c.cfg.APIURL, url.PathEscape(c.cfg.Owner), url.PathEscape(c.cfg.Repo), escapePath(path))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("создание запроса коммита: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("запрос к GitHub: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &UploadError{StatusCode: resp.StatusCode, Body: string(errBody)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Info("Файл закоммичен в GitHub",
		slog.String("path", path),
		slog.String("branch", c.cfg.Branch),
		slog.Int("size", len(content)),
	)
	return nil
}

// RawURL возвращает публичную ссылку на файл в ветке.
func (c *Client) RawURL(path string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s",
		c.cfg.RawURL, url.PathEscape(c.cfg.Owner), url.PathEscape(c.cfg.Repo),
		url.PathEscape(c.cfg.Branch), escapePath(path))
}

// APIURL возвращает base URL REST API (для health-проверок).
func (c *Client) APIURL() string {
	return c.cfg.APIURL
}

// escapePath экранирует каждый сегмент пути, сохраняя "/".
func escapePath(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
