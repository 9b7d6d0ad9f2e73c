// auth.go — аутентификация запросов по сессионному токену.
// Токен декодируется один раз, Principal передаётся обработчику по значению.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/media-gate/internal/api/errors"
	"github.com/bigkaa/goartstore/media-gate/internal/domain/model"
	"github.com/bigkaa/goartstore/media-gate/internal/token"
)

// Сообщения 401, различающие причину отказа.
const (
	msgMissingHeader   = "Authorization header missing"
	msgMalformedHeader = "Invalid authentication scheme"
	msgInvalidToken    = "Invalid JWT token"
	msgExpiredToken    = "Expired JWT token"
)

// PrincipalHandlerFunc — обработчик защищённого маршрута.
type PrincipalHandlerFunc func(w http.ResponseWriter, r *http.Request, p model.Principal)

// TokenDecoder декодирует значение заголовка Authorization.
type TokenDecoder interface {
	Decode(header string) (model.Principal, error)
}

// Authenticator проверяет сессионный токен запроса.
type Authenticator struct {
	decoder TokenDecoder
	logger  *slog.Logger
}

// NewAuthenticator создаёт Authenticator поверх token.Codec (или другого TokenDecoder).
func NewAuthenticator(decoder TokenDecoder, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		decoder: decoder,
		logger:  logger.With(slog.String("component", "auth")),
	}
}

// Require оборачивает обработчик: без валидного токена отвечает 401,
// иначе вызывает next с извлечённым Principal.
func (a *Authenticator) Require(next PrincipalHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.decoder.Decode(r.Header.Get("Authorization"))
		if err != nil {
			a.logger.Debug("Запрос отклонён при аутентификации",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			apierrors.Unauthorized(w, unauthorizedMessage(err))
			return
		}
		next(w, r, principal)
	}
}

// unauthorizedMessage выбирает сообщение 401 по виду ошибки.
func unauthorizedMessage(err error) string {
	switch {
	case errors.Is(err, token.ErrMissingAuthHeader):
		return msgMissingHeader
	case errors.Is(err, token.ErrMalformedAuthHeader):
		return msgMalformedHeader
	case errors.Is(err, token.ErrExpiredToken):
		return msgExpiredToken
	default:
		return msgInvalidToken
	}
}
