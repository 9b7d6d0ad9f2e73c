// validation.go — проверка запросов по OpenAPI контракту (kin-openapi).
// Проверяются path/query параметры и тело запроса; безопасность проверяет Authenticator.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"

	apierrors "github.com/bigkaa/goartstore/media-gate/internal/api/errors"
	"github.com/bigkaa/goartstore/media-gate/internal/domain/model"
)

// RequestValidator проверяет запросы по OpenAPI документу.
type RequestValidator struct {
	router routers.Router
	logger *slog.Logger
}

// NewRequestValidator загружает и валидирует OpenAPI документ spec.
func NewRequestValidator(spec []byte, logger *slog.Logger) (*RequestValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(spec)
	if err != nil {
		return nil, fmt.Errorf("загрузка OpenAPI документа: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("валидация OpenAPI документа: %w", err)
	}

	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("построение маршрутов OpenAPI: %w", err)
	}

	return &RequestValidator{
		router: router,
		logger: logger.With(slog.String("component", "request_validator")),
	}, nil
}

// Validate проверяет запрос. Запросы вне контракта пропускаются:
// на них отвечает роутер (404/405).
func (v *RequestValidator) Validate(r *http.Request) error {
	route, pathParams, err := v.router.FindRoute(r)
	if err != nil {
		return nil
	}

	return openapi3filter.ValidateRequest(r.Context(), &openapi3filter.RequestValidationInput{
		Request:    r,
		PathParams: pathParams,
		Route:      route,
		Options: &openapi3filter.Options{
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
	})
}

// Wrap проверяет запрос аутентифицированного субъекта перед вызовом next.
// Используется внутри Authenticator.Require: 401 имеет приоритет над 400.
func (v *RequestValidator) Wrap(next PrincipalHandlerFunc) PrincipalHandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, p model.Principal) {
		if err := v.Validate(r); err != nil {
			v.logger.Debug("Запрос не прошёл валидацию",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			apierrors.ValidationError(w, validationMessage(err))
			return
		}
		next(w, r, p)
	}
}

// validationMessage формирует сообщение 400 без деталей схемы.
func validationMessage(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.Parameter != nil:
			return fmt.Sprintf("Invalid %s parameter %q", reqErr.Parameter.In, reqErr.Parameter.Name)
		case reqErr.RequestBody != nil:
			return "Invalid request body"
		}
	}
	return "Invalid request"
}
