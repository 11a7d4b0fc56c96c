// health.go — пробы Kubernetes и экспорт метрик.
package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/studynotes/internal/config"
)

const serviceName = "studynotes"

// Статусы проверок готовности.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// ReadinessChecker — зависимость, от которой зависит готовность сервиса.
type ReadinessChecker interface {
	// CheckReady: "ok", "degraded" или "fail" и пояснение.
	CheckReady() (status string, message string)
}

type namedCheck struct {
	name    string
	checker ReadinessChecker
}

// HealthHandler отдаёт /health/live, /health/ready и /metrics.
type HealthHandler struct {
	checks  []namedCheck
	metrics http.Handler
}

// NewHealthHandler: nil-checker считается непройденной проверкой.
func NewHealthHandler(pgChecker, jwksChecker ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		checks: []namedCheck{
			{name: "postgresql", checker: pgChecker},
			{name: "jwks", checker: jwksChecker},
		},
		metrics: promhttp.Handler(),
	}
}

type checkResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type probeMeta struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

type healthReadyResponse struct {
	probeMeta
	Checks map[string]checkResult `json:"checks"`
}

func newProbeMeta(status string) probeMeta {
	return probeMeta{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	}
}

// HealthLive всегда 200, пока процесс отвечает.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newProbeMeta(statusOK))
}

// HealthReady опрашивает зависимости. 503 только при статусе fail.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	results := make(map[string]checkResult, len(h.checks))
	overall := statusOK
	for _, c := range h.checks {
		res := runCheck(c.checker)
		results[c.name] = res
		overall = worse(overall, res.Status)
	}

	code := http.StatusOK
	if overall == statusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, healthReadyResponse{probeMeta: newProbeMeta(overall), Checks: results})
}

// GetMetrics — метрики Prometheus из default registry.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}

func runCheck(c ReadinessChecker) checkResult {
	if c == nil {
		return checkResult{Status: statusFail, Message: "не инициализирован"}
	}
	status, msg := c.CheckReady()
	return checkResult{Status: status, Message: msg}
}

// worse выбирает более тяжёлый из двух статусов: fail > degraded > ok.
// Неизвестный статус считается fail.
func worse(a, b string) string {
	rank := func(s string) int {
		switch s {
		case statusOK:
			return 0
		case statusDegraded:
			return 1
		default:
			return 2
		}
	}
	return [...]string{statusOK, statusDegraded, statusFail}[max(rank(a), rank(b))]
}
