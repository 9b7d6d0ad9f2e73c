// health.go — обработчики health endpoints Media Gate.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe: реестр PostgreSQL и объектное хранилище
// /metrics — Prometheus метрики
//
// Зависимости имеют разный вес. Без PostgreSQL сервис не может проверить
// ни одно разрешение — это fail. Без объектного хранилища выдача подписанных
// CDN URL и списки продолжают работать, отказывают только загрузка, регистрация
// и удаление — это degraded.
package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/goartstore/media-gate/internal/config"
)

// serviceName — имя сервиса в ответах health endpoints.
const serviceName = "media-gate"

// readinessTimeout ограничивает одну проверку готовности.
const readinessTimeout = 3 * time.Second

// ReadinessChecker — проверка готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady(ctx context.Context) (status, message string)
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	registry    ReadinessChecker
	objectStore ReadinessChecker
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// registry == nil — readiness вернёт fail; objectStore == nil — проверка не выполняется.
func NewHealthHandler(registry, objectStore ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		registry:    registry,
		objectStore: objectStore,
		promHandler: promhttp.Handler(),
	}
}

type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

type readinessChecks struct {
	PostgreSQL  healthCheckResult  `json:"postgresql"`
	ObjectStore *healthCheckResult `json:"object_store,omitempty"`
}

type healthReadyResponse struct {
	Status    string          `json:"status"`
	Timestamp string          `json:"timestamp"`
	Version   string          `json:"version"`
	Service   string          `json:"service"`
	Checks    readinessChecks `json:"checks"`
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	})
}

// HealthReady — readiness probe. Зависимости проверяются параллельно.
// Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	var (
		wg       sync.WaitGroup
		registry healthCheckResult
		store    *healthCheckResult
	)
	wg.Go(func() {
		registry = runCheck(ctx, h.registry)
	})
	if h.objectStore != nil {
		wg.Go(func() {
			res := runCheck(ctx, h.objectStore)
			store = &res
		})
	}
	wg.Wait()

	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
		Checks:    readinessChecks{PostgreSQL: registry, ObjectStore: store},
	}

	statuses := []string{registry.Status}
	if store != nil {
		statuses = append(statuses, optional(store.Status))
	}
	resp.Status = overallStatus(statuses...)

	status := http.StatusOK
	if resp.Status == statusFail {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

func runCheck(ctx context.Context, c ReadinessChecker) healthCheckResult {
	if c == nil {
		return healthCheckResult{Status: statusFail, Message: "не инициализирован"}
	}
	status, msg := c.CheckReady(ctx)
	return healthCheckResult{Status: status, Message: msg}
}

// Статусы health check.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// optional понижает fail необязательной зависимости до degraded.
func optional(status string) string {
	if status == statusFail {
		return statusDegraded
	}
	return status
}

// overallStatus: fail, если хотя бы одна зависимость fail; degraded, если есть degraded; иначе ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == statusFail {
			return statusFail
		}
		if s == statusDegraded {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return statusDegraded
	}
	return statusOK
}
