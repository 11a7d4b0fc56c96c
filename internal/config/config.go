// Пакет config — загрузка и валидация конфигурации сервиса конспектов
// из переменных окружения (префикс SN_).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Значения по умолчанию для внешних сервисов Google и GitHub.
const (
	defaultJWKSURL     = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
	defaultIssuerBase  = "https://securetoken.google.com/"
	defaultIAMTokenURL = "https://oauth2.googleapis.com/token"
	defaultGitHubAPI   = "https://api.github.com"
	defaultGitHubRaw   = "https://raw.githubusercontent.com"
)

// Config содержит все параметры конфигурации сервиса.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Разрешённые CORS origins
	CORSOrigins []string
	// Лимит загрузок в минуту с одного IP
	UploadRateLimit int
	// Максимальный размер multipart-запроса загрузки
	MaxUploadBytes int64

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Identity (Firebase ID tokens) ---

	// Идентификатор проекта Firebase (audience токенов)
	FirebaseProjectID string
	// Issuer JWT (авто-вычисляется из FirebaseProjectID)
	JWTIssuer string
	// URL JWKS endpoint
	JWTJWKSURL string
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// --- IAM ---

	// Проект, политика IAM которого определяет администраторов
	IAMProjectID string
	// Email сервисного аккаунта для чтения политики
	IAMClientEmail string
	// Приватный ключ сервисного аккаунта (PEM)
	IAMPrivateKey string
	// Token endpoint для обмена подписанного assertion
	IAMTokenURL string
	// Переопределение base URL Cloud Resource Manager (опционально)
	IAMEndpoint string
	// Время жизни снимка членства IAM
	IAMCacheTTL time.Duration

	// --- GitHub (хранилище файлов) ---

	GitHubToken  string
	GitHubOwner  string
	GitHubRepo   string
	GitHubBranch string
	GitHubAPIURL string
	GitHubRawURL string

	// --- Кэш и мониторинг ---

	// Максимальное количество записей в кэше метаданных конспектов
	NoteCacheSize int
	// TTL записи кэша метаданных
	NoteCacheTTL time.Duration
	// Группа topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// SN_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("SN_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("SN_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("SN_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	if err := cfg.loadLogging(); err != nil {
		return nil, err
	}

	cfg.CORSOrigins = parseCSV(getEnvDefault("SN_CORS_ORIGINS", "*"))

	// SN_UPLOAD_RATE_LIMIT — загрузок в минуту с одного IP (по умолчанию 20)
	cfg.UploadRateLimit, err = getEnvInt("SN_UPLOAD_RATE_LIMIT", 20)
	if err != nil {
		return nil, fmt.Errorf("SN_UPLOAD_RATE_LIMIT: %w", err)
	}
	if cfg.UploadRateLimit < 1 {
		return nil, fmt.Errorf("SN_UPLOAD_RATE_LIMIT: значение %d должно быть положительным", cfg.UploadRateLimit)
	}

	// SN_MAX_UPLOAD_BYTES — максимальный размер загрузки (по умолчанию 25 MiB)
	maxUpload, err := getEnvInt("SN_MAX_UPLOAD_BYTES", 25<<20)
	if err != nil {
		return nil, fmt.Errorf("SN_MAX_UPLOAD_BYTES: %w", err)
	}
	if maxUpload < 1 {
		return nil, fmt.Errorf("SN_MAX_UPLOAD_BYTES: значение %d должно быть положительным", maxUpload)
	}
	cfg.MaxUploadBytes = int64(maxUpload)

	// --- PostgreSQL ---

	if err := cfg.loadDatabase(); err != nil {
		return nil, err
	}

	// --- Identity ---

	cfg.FirebaseProjectID, err = getEnvRequired("SN_FIREBASE_PROJECT_ID")
	if err != nil {
		return nil, err
	}

	// SN_JWT_ISSUER — авто-вычисляется из SN_FIREBASE_PROJECT_ID, если не задан
	cfg.JWTIssuer = getEnvDefault("SN_JWT_ISSUER", defaultIssuerBase+cfg.FirebaseProjectID)
	cfg.JWTJWKSURL = getEnvDefault("SN_JWT_JWKS_URL", defaultJWKSURL)

	cfg.JWKSRefreshInterval, err = getEnvDuration("SN_JWKS_REFRESH_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("SN_JWKS_REFRESH_INTERVAL: %w", err)
	}

	cfg.JWTLeeway, err = getEnvDuration("SN_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SN_JWT_LEEWAY: %w", err)
	}

	// --- IAM ---

	if err := cfg.loadIAM(); err != nil {
		return nil, err
	}

	// --- GitHub ---

	cfg.GitHubToken, err = getEnvRequired("SN_GITHUB_TOKEN")
	if err != nil {
		return nil, err
	}
	cfg.GitHubOwner, err = getEnvRequired("SN_GITHUB_OWNER")
	if err != nil {
		return nil, err
	}
	cfg.GitHubRepo, err = getEnvRequired("SN_GITHUB_REPO")
	if err != nil {
		return nil, err
	}
	cfg.GitHubBranch = getEnvDefault("SN_GITHUB_BRANCH", "main")
	cfg.GitHubAPIURL = strings.TrimRight(getEnvDefault("SN_GITHUB_API_URL", defaultGitHubAPI), "/")
	cfg.GitHubRawURL = strings.TrimRight(getEnvDefault("SN_GITHUB_RAW_URL", defaultGitHubRaw), "/")

	// --- Кэш и мониторинг ---

	cfg.NoteCacheSize, err = getEnvInt("SN_NOTE_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("SN_NOTE_CACHE_SIZE: %w", err)
	}
	if cfg.NoteCacheSize < 1 {
		return nil, fmt.Errorf("SN_NOTE_CACHE_SIZE: значение %d должно быть положительным", cfg.NoteCacheSize)
	}

	cfg.NoteCacheTTL, err = getEnvDuration("SN_NOTE_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SN_NOTE_CACHE_TTL: %w", err)
	}

	cfg.DephealthGroup = getEnvDefault("SN_DEPHEALTH_GROUP", "studynotes")

	cfg.DephealthCheckInterval, err = getEnvDuration("SN_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SN_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("SN_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SN_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// LoadDatabase загружает только параметры логирования и PostgreSQL.
// Используется командой migrate, которой не нужны остальные секции.
func LoadDatabase() (*Config, error) {
	cfg := &Config{}
	if err := cfg.loadLogging(); err != nil {
		return nil, err
	}
	if err := cfg.loadDatabase(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadIAMOnly загружает только параметры логирования и IAM.
// Используется диагностической командой iam-members.
func LoadIAMOnly() (*Config, error) {
	cfg := &Config{}
	if err := cfg.loadLogging(); err != nil {
		return nil, err
	}
	if err := cfg.loadIAM(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadLogging() error {
	var err error
	c.LogLevel, err = parseLogLevel(getEnvDefault("SN_LOG_LEVEL", "info"))
	if err != nil {
		return fmt.Errorf("SN_LOG_LEVEL: %w", err)
	}
	c.LogFormat = getEnvDefault("SN_LOG_FORMAT", "json")
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("SN_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", c.LogFormat)
	}
	return nil
}

func (c *Config) loadDatabase() error {
	var err error

	c.DBHost, err = getEnvRequired("SN_DB_HOST")
	if err != nil {
		return err
	}

	c.DBPort, err = getEnvInt("SN_DB_PORT", 5432)
	if err != nil {
		return fmt.Errorf("SN_DB_PORT: %w", err)
	}

	c.DBName, err = getEnvRequired("SN_DB_NAME")
	if err != nil {
		return err
	}

	c.DBUser, err = getEnvRequired("SN_DB_USER")
	if err != nil {
		return err
	}

	c.DBPassword, err = getEnvRequired("SN_DB_PASSWORD")
	if err != nil {
		return err
	}

	c.DBSSLMode = getEnvDefault("SN_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[c.DBSSLMode] {
		return fmt.Errorf("SN_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", c.DBSSLMode)
	}
	return nil
}

// loadIAM заполняет секцию IAM.
func (c *Config) loadIAM() error {
	var err error

	// SN_IAM_PROJECT_ID — по умолчанию совпадает с проектом Firebase
	c.IAMProjectID = getEnvDefault("SN_IAM_PROJECT_ID", getEnvDefault("SN_FIREBASE_PROJECT_ID", ""))
	if c.IAMProjectID == "" {
		return fmt.Errorf("SN_IAM_PROJECT_ID: обязательная переменная окружения не задана")
	}

	c.IAMClientEmail, err = getEnvRequired("SN_IAM_CLIENT_EMAIL")
	if err != nil {
		return err
	}

	key, err := getEnvRequired("SN_IAM_PRIVATE_KEY")
	if err != nil {
		return err
	}
	// Ключ часто передаётся одной строкой с экранированными переводами строк
	c.IAMPrivateKey = strings.ReplaceAll(key, `\n`, "\n")

	c.IAMTokenURL = getEnvDefault("SN_IAM_TOKEN_URL", defaultIAMTokenURL)
	c.IAMEndpoint = getEnvDefault("SN_IAM_ENDPOINT", "")

	c.IAMCacheTTL, err = getEnvDuration("SN_IAM_CACHE_TTL", 60*time.Second)
	if err != nil {
		return fmt.Errorf("SN_IAM_CACHE_TTL: %w", err)
	}
	if c.IAMCacheTTL <= 0 {
		return fmt.Errorf("SN_IAM_CACHE_TTL: длительность должна быть положительной")
	}
	return nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", c.DBUser, c.DBHost, c.DBPort, c.DBName)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
