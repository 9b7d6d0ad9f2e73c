// handler.go — основной обработчик HTTP API Media Gate.
// Объединяет health и обработчики медиа, переводит ошибки сервисного слоя в HTTP-ответы.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/media-gate/internal/api/errors"
	"github.com/bigkaa/goartstore/media-gate/internal/domain/model"
	"github.com/bigkaa/goartstore/media-gate/internal/permission"
	"github.com/bigkaa/goartstore/media-gate/internal/service"
)

// Сообщения ответов с фиксированным текстом.
const (
	msgAccessDenied  = "Access Denied"
	msgMediaNotFound = "Media not found"
	msgInternalError = "Internal server error"
	msgConflict      = "The resource already exists"
	msgInvalidInput  = "Invalid request parameters"
)

// errorMessages — тексты ответов 404/409/400 для конкретной операции.
// Пустые поля заменяются общими сообщениями.
type errorMessages struct {
	notFound   string
	conflict   string
	validation string
}

// AccessProvider выдаёт подписанные URL на медиа.
type AccessProvider interface {
	SignedURL(ctx context.Context, principal model.Principal, mediaID int64) (model.SignedURL, error)
}

// MediaManager — операции реестра медиа и разрешений.
type MediaManager interface {
	UploadURL(ctx context.Context, principal model.Principal, name string) (string, error)
	Register(ctx context.Context, principal model.Principal, name string) (*model.Media, error)
	ListOwned(ctx context.Context, principal model.Principal, page, pageSize int) (*model.MediaPage, error)
	ListPermitted(ctx context.Context, principal model.Principal, page, pageSize int) (*model.MediaPage, error)
	Delete(ctx context.Context, principal model.Principal, mediaID int64, name string) error
	Grant(ctx context.Context, principal model.Principal, mediaID int64, username string, kind model.PermissionKind) error
	Revoke(ctx context.Context, principal model.Principal, mediaID int64, username string) error
}

// APIHandler — основной обработчик API Media Gate.
type APIHandler struct {
	health *HealthHandler
	access AccessProvider
	media  MediaManager
	logger *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	access AccessProvider,
	media MediaManager,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health: health,
		access: access,
		media:  media,
		logger: logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError переводит ошибку сервисного слоя в HTTP-ответ.
// Тело ответа всегда содержит фиксированный текст из msgs, подробности пишутся в лог.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, msgs errorMessages) {
	switch {
	case errors.Is(err, permission.ErrAccessDenied):
		apierrors.Forbidden(w, msgAccessDenied)
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, orDefault(msgs.notFound, msgMediaNotFound))
	case errors.Is(err, service.ErrConflict):
		h.logRejected(r, err)
		apierrors.Conflict(w, orDefault(msgs.conflict, msgConflict))
	case errors.Is(err, service.ErrValidation):
		h.logRejected(r, err)
		apierrors.ValidationError(w, orDefault(msgs.validation, msgInvalidInput))
	default:
		h.logger.Error("Ошибка обработки запроса",
			slog.String("request_id", r.Header.Get("X-Request-ID")),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, msgInternalError)
	}
}

// logRejected пишет причину отклонённого запроса (400/409).
func (h *APIHandler) logRejected(r *http.Request, err error) {
	h.logger.Info("Запрос отклонён",
		slog.String("request_id", r.Header.Get("X-Request-ID")),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
}

func orDefault(msg, def string) string {
	if msg == "" {
		return def
	}
	return msg
}
