// Пакет server — HTTP-сервер Media Gate с graceful shutdown.
// Без TLS — TLS termination выполняется на ingress/CDN.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/media-gate/internal/api/handlers"
	"github.com/bigkaa/goartstore/media-gate/internal/api/middleware"
	"github.com/bigkaa/goartstore/media-gate/internal/config"
)

// Server — HTTP-сервер Media Gate.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// Routes — зависимости маршрутизатора.
type Routes struct {
	Handler   *handlers.APIHandler
	Auth      *middleware.Authenticator
	Validator *middleware.RequestValidator
	Limiter   *middleware.RateLimiter
}

// NewRouter собирает маршруты. middlewares применяются ко всем запросам
// в порядке переданного среза. /health и /metrics доступны без токена и без лимита;
// маршруты /media проходят лимит, аутентификацию и проверку по OpenAPI.
func NewRouter(rt Routes, middlewares ...func(http.Handler) http.Handler) chi.Router {
	router := chi.NewRouter()
	for _, mw := range middlewares {
		router.Use(mw)
	}

	h := rt.Handler
	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)

	protect := func(fn middleware.PrincipalHandlerFunc) http.HandlerFunc {
		if rt.Validator != nil {
			fn = rt.Validator.Wrap(fn)
		}
		return rt.Auth.Require(fn)
	}

	router.Route("/media", func(r chi.Router) {
		if rt.Limiter != nil {
			r.Use(rt.Limiter.Middleware())
		}
		r.Get("/upload-url/{mediaName}", protect(h.GetUploadURL))
		r.Get("/register_media/{mediaName}", protect(h.RegisterMedia))
		r.Get("/access/{mediaId}", protect(h.GetMediaAccess))
		r.Get("/all_media", protect(h.ListPermittedMedia))
		r.Get("/user_media", protect(h.ListOwnedMedia))
		r.Delete("/{mediaId}/{mediaName}", protect(h.DeleteMedia))
		r.Put("/{mediaId}/permissions/{username}", protect(h.GrantPermission))
		r.Delete("/{mediaId}/permissions/{username}", protect(h.RevokePermission))
	})

	return router
}

// New создаёт HTTP-сервер с готовым обработчиком.
func New(cfg *config.Config, logger *slog.Logger, handler http.Handler) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

// RunContext запускает сервер до отмены ctx или ошибки прослушивания.
func (s *Server) RunContext(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Получен сигнал завершения")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
