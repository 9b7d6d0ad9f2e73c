// access.go — выдача подписанных CDN URL на медиа.
// Конвейер: разрешение → запись медиа → ключевой материал → подпись.
// Любой сбой завершает запрос; повторов нет.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/media-gate/internal/domain/model"
	"github.com/bigkaa/goartstore/media-gate/internal/permission"
	"github.com/bigkaa/goartstore/media-gate/internal/repository"
	"github.com/bigkaa/goartstore/media-gate/internal/signer"
)

// Prometheus-метрики выдачи подписанных URL.
var (
	signedURLsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mg_signed_urls_total",
		Help: "Количество запросов подписанного URL (по результату).",
	}, []string{"result"})

	signingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mg_signing_duration_seconds",
		Help:    "Длительность выдачи подписанного URL (включая получение секретов).",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})
)

// AccessGate — проверка разрешений субъекта на медиа.
type AccessGate interface {
	Authorize(ctx context.Context, principal model.Principal, mediaID int64) (model.PermissionKind, error)
	RequireKind(ctx context.Context, principal model.Principal, mediaID int64, kinds ...model.PermissionKind) error
}

// KeyResolver — источник ключевого материала подписи.
type KeyResolver interface {
	SigningKey(ctx context.Context, privateKeyName, keyPairIDName string) (model.SigningKeyMaterial, error)
}

// SignFunc — подпись URL ресурса до момента expiresAt.
type SignFunc func(resourceURL string, key model.SigningKeyMaterial, expiresAt time.Time) (model.SignedURL, error)

// AccessConfig — параметры выдачи подписанных URL.
type AccessConfig struct {
	CDNDomain            string
	OutputPrefix         string
	PrivateKeySecretName string
	KeyPairIDSecretName  string
	SignedURLTTL         time.Duration
}

// AccessService — оркестратор выдачи подписанных URL.
type AccessService struct {
	gate   AccessGate
	media  *mediaReader
	keys   KeyResolver
	sign   SignFunc
	cfg    AccessConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewAccessService создаёт оркестратор. Подпись выполняется signer.Sign.
// Запись медиа читается из реестра на каждый запрос, без кэша.
func NewAccessService(
	gate AccessGate,
	mediaRepo repository.MediaRepository,
	keys KeyResolver,
	cfg AccessConfig,
	logger *slog.Logger,
) *AccessService {
	return &AccessService{
		gate:   gate,
		media:  &mediaReader{repo: mediaRepo},
		keys:   keys,
		sign:   signer.Sign,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With(slog.String("component", "access_service")),
	}
}

// SignedURL выдаёт подписанный URL на медиа mediaID для principal.
//
// Ошибки:
//   - permission.ErrAccessDenied — нет распознанного разрешения;
//   - ErrNotFound — разрешение есть, записи медиа нет;
//   - secrets.ErrSecretUnavailable — ключевой материал недоступен;
//   - signer.ErrSigningFailure — подпись не удалась;
//   - ErrStorageFault — сбой реестра.
func (s *AccessService) SignedURL(ctx context.Context, principal model.Principal, mediaID int64) (model.SignedURL, error) {
	start := time.Now()
	defer func() { signingDuration.Observe(time.Since(start).Seconds()) }()

	if _, err := s.gate.Authorize(ctx, principal, mediaID); err != nil {
		if errors.Is(err, permission.ErrAccessDenied) {
			signedURLsTotal.WithLabelValues("denied").Inc()
			return model.SignedURL{}, err
		}
		signedURLsTotal.WithLabelValues("storage_error").Inc()
		return model.SignedURL{}, fmt.Errorf("%w: %w", ErrStorageFault, err)
	}

	media, err := s.media.get(ctx, mediaID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			signedURLsTotal.WithLabelValues("not_found").Inc()
		} else {
			signedURLsTotal.WithLabelValues("storage_error").Inc()
		}
		return model.SignedURL{}, err
	}

	key, err := s.keys.SigningKey(ctx, s.cfg.PrivateKeySecretName, s.cfg.KeyPairIDSecretName)
	if err != nil {
		signedURLsTotal.WithLabelValues("secret_error").Inc()
		s.logger.Error("Ключевой материал подписи недоступен",
			slog.Int64("media_id", mediaID),
			slog.String("error", err.Error()),
		)
		return model.SignedURL{}, err
	}

	// Время истечения фиксируется один раз: оно же подписывается и возвращается.
	expiresAt := s.now().Add(s.cfg.SignedURLTTL)
	resourceURL := signer.CanonicalURL(s.cfg.CDNDomain, s.cfg.OutputPrefix, media.OwnerUsername, media.Name)

	signed, err := s.sign(resourceURL, key, expiresAt)
	if err != nil {
		signedURLsTotal.WithLabelValues("signing_error").Inc()
		s.logger.Error("Ошибка подписи URL",
			slog.Int64("media_id", mediaID),
			slog.Any("key", key),
			slog.String("error", err.Error()),
		)
		if !errors.Is(err, signer.ErrSigningFailure) {
			err = fmt.Errorf("%w: %w", signer.ErrSigningFailure, err)
		}
		return model.SignedURL{}, err
	}

	signedURLsTotal.WithLabelValues("issued").Inc()
	s.logger.Debug("Подписанный URL выдан",
		slog.Int64("media_id", mediaID),
		slog.String("username", principal.Username),
		slog.Time("expires_at", signed.ExpiresAt),
	)
	return signed, nil
}

// mediaReader — чтение записей медиа; cache может быть nil.
type mediaReader struct {
	repo  repository.MediaRepository
	cache *MediaCache
}

func (r *mediaReader) get(ctx context.Context, id int64) (*model.Media, error) {
	if r.cache != nil {
		if m, ok := r.cache.Get(id); ok {
			return m, nil
		}
	}
	m, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, fmt.Sprintf("медиа %d", id))
	}
	if r.cache != nil {
		r.cache.Set(m)
	}
	return m, nil
}

func (r *mediaReader) invalidate(id int64) {
	if r.cache != nil {
		r.cache.Delete(id)
	}
}
