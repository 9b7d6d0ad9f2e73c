// Пакет permission — решение о доступе к медиа по реестру разрешений.
// Отсутствие записи и нераспознанный тип разрешения неразличимы для вызывающего:
// оба случая дают ErrAccessDenied.
package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/media-gate/internal/domain/model"
	"github.com/bigkaa/goartstore/media-gate/internal/repository"
)

// ErrAccessDenied — у субъекта нет распознанного разрешения на медиа.
var ErrAccessDenied = errors.New("доступ запрещён")

// accessDecisions — счётчик решений о доступе (allowed / denied).
var accessDecisions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mg_access_decisions_total",
		Help: "Количество решений о доступе к медиа",
	},
	[]string{"decision"},
)

// Registry — источник записей о разрешениях.
// GetPermission возвращает repository.ErrNotFound, если записи нет.
type Registry interface {
	GetPermission(ctx context.Context, mediaID int64, username string) (*model.PermissionGrant, error)
}

// Gate — проверка доступа субъекта к медиа.
type Gate struct {
	registry Registry
	logger   *slog.Logger
}

// NewGate создаёт Gate поверх реестра разрешений.
func NewGate(registry Registry, logger *slog.Logger) *Gate {
	return &Gate{
		registry: registry,
		logger:   logger.With(slog.String("component", "permission_gate")),
	}
}

// Authorize возвращает тип разрешения principal на медиа mediaID.
// Ошибки хранилища возвращаются обёрнутыми и не превращаются в отказ.
func (g *Gate) Authorize(ctx context.Context, principal model.Principal, mediaID int64) (model.PermissionKind, error) {
	grant, err := g.registry.GetPermission(ctx, mediaID, principal.Username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", g.deny(principal, mediaID, "no_grant")
		}
		return "", fmt.Errorf("проверка разрешения на медиа %d: %w", mediaID, err)
	}

	if !grant.Kind.IsRecognized() {
		g.logger.Warn("Нераспознанный тип разрешения в реестре",
			slog.Int64("media_id", mediaID),
			slog.String("username", principal.Username),
			slog.String("permission_type", string(grant.Kind)),
		)
		return "", g.deny(principal, mediaID, "unrecognized_kind")
	}

	accessDecisions.WithLabelValues("allowed").Inc()
	return grant.Kind, nil
}

// RequireKind проверяет, что у principal есть разрешение одного из типов kinds.
// Любое иное разрешение даёт ErrAccessDenied.
func (g *Gate) RequireKind(ctx context.Context, principal model.Principal, mediaID int64, kinds ...model.PermissionKind) error {
	kind, err := g.Authorize(ctx, principal, mediaID)
	if err != nil {
		return err
	}
	for _, k := range kinds {
		if kind == k {
			return nil
		}
	}
	return g.deny(principal, mediaID, "insufficient_kind")
}

func (g *Gate) deny(principal model.Principal, mediaID int64, reason string) error {
	accessDecisions.WithLabelValues("denied").Inc()
	g.logger.Debug("Доступ к медиа запрещён",
		slog.Int64("media_id", mediaID),
		slog.String("username", principal.Username),
		slog.String("reason", reason),
	)
	return ErrAccessDenied
}
