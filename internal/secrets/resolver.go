// Пакет secrets — получение ключевого материала подписи из хранилища секретов.
// Секреты читаются заново при каждом вызове: ротация ключа вступает в силу сразу.
// Повторные попытки здесь не выполняются.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/goartstore/media-gate/internal/domain/model"
)

// ErrSecretUnavailable — секрет отсутствует, хранилище недоступно или вернуло некорректные данные.
var ErrSecretUnavailable = errors.New("секрет недоступен")

// Store — хранилище секретов. Возвращает строковое значение секрета по имени.
type Store interface {
	GetSecretString(ctx context.Context, name string) (string, error)
}

// secretPayload — формат значения секрета: {"key": "..."}.
type secretPayload struct {
	Key string `json:"key"`
}

// Resolver — разрешает именованные секреты в ключевой материал.
type Resolver struct {
	store  Store
	logger *slog.Logger
}

// NewResolver создаёт Resolver поверх хранилища секретов.
func NewResolver(store Store, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger.With(slog.String("component", "secret_resolver")),
	}
}

// Resolve возвращает значение поля key секрета name.
// Любой сбой возвращается как ErrSecretUnavailable; значение секрета в ошибку не попадает.
func (r *Resolver) Resolve(ctx context.Context, name string) (string, error) {
	raw, err := r.store.GetSecretString(ctx, name)
	if err != nil {
		r.logger.Warn("Ошибка получения секрета",
			slog.String("secret_name", name),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("%w: %s: %w", ErrSecretUnavailable, name, err)
	}

	var payload secretPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		r.logger.Warn("Некорректный формат секрета", slog.String("secret_name", name))
		return "", fmt.Errorf("%w: %s: некорректный JSON", ErrSecretUnavailable, name)
	}
	if payload.Key == "" {
		r.logger.Warn("В секрете отсутствует поле key", slog.String("secret_name", name))
		return "", fmt.Errorf("%w: %s: пустое поле key", ErrSecretUnavailable, name)
	}

	return payload.Key, nil
}

// SigningKey получает приватный ключ CDN и идентификатор пары ключей.
func (r *Resolver) SigningKey(ctx context.Context, privateKeyName, keyPairIDName string) (model.SigningKeyMaterial, error) {
	privateKey, err := r.Resolve(ctx, privateKeyName)
	if err != nil {
		return model.SigningKeyMaterial{}, err
	}
	keyPairID, err := r.Resolve(ctx, keyPairIDName)
	if err != nil {
		return model.SigningKeyMaterial{}, err
	}
	return model.SigningKeyMaterial{
		PrivateKeyPEM: privateKey,
		PublicKeyID:   keyPairID,
	}, nil
}
