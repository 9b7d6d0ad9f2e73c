// main.go — точка входа Media Gate.
// Инициализация: config → logger → migrations → PostgreSQL → AWS (S3, Secrets Manager)
// → сервисы → topologymetrics → HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/goartstore/media-gate/api"
	"github.com/bigkaa/goartstore/media-gate/internal/api/handlers"
	"github.com/bigkaa/goartstore/media-gate/internal/api/middleware"
	"github.com/bigkaa/goartstore/media-gate/internal/config"
	"github.com/bigkaa/goartstore/media-gate/internal/database"
	"github.com/bigkaa/goartstore/media-gate/internal/objectstore"
	"github.com/bigkaa/goartstore/media-gate/internal/permission"
	"github.com/bigkaa/goartstore/media-gate/internal/repository"
	"github.com/bigkaa/goartstore/media-gate/internal/secrets"
	"github.com/bigkaa/goartstore/media-gate/internal/server"
	"github.com/bigkaa/goartstore/media-gate/internal/service"
	"github.com/bigkaa/goartstore/media-gate/internal/token"
)

func main() {
	// 1. Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Media Gate запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("MG_DEPHEALTH_GROUP") == "" {
		logger.Warn("MG_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Миграции БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. AWS: S3 и Secrets Manager
	awsCfg, err := objectstore.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("Ошибка конфигурации AWS SDK", slog.String("error", err.Error()))
		os.Exit(1)
	}
	store := objectstore.NewS3Store(awsCfg, cfg)
	keyResolver := secrets.NewResolver(secrets.NewAWSStore(awsCfg), logger)
	logger.Info("AWS клиенты созданы",
		slog.String("region", cfg.S3Region),
		slog.String("bucket", cfg.S3Bucket),
		slog.String("cdn_domain", cfg.CDNDomain),
	)

	// 6. Сессионные токены
	codec, err := token.NewCodec(cfg.JWTSecret, cfg.AccessTokenTTL)
	if err != nil {
		logger.Error("Ошибка инициализации кодека токенов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 7. Репозитории
	mediaRepo := repository.NewMediaRepository(pool)
	permRepo := repository.NewPermissionRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	// 8. Сервисы
	mediaCache := service.NewMediaCache(cfg.MediaCacheSize, cfg.MediaCacheTTL)
	gate := permission.NewGate(permRepo, logger)

	accessSvc := service.NewAccessService(gate, mediaRepo, keyResolver,
		service.AccessConfig{
			CDNDomain:            cfg.CDNDomain,
			OutputPrefix:         cfg.OutputPrefix,
			PrivateKeySecretName: cfg.CDNPrivateKeySecretName,
			KeyPairIDSecretName:  cfg.CDNKeyPairIDSecretName,
			SignedURLTTL:         cfg.SignedURLTTL,
		}, logger)

	mediaSvc := service.NewMediaService(mediaRepo, permRepo, txRunner, mediaCache, store, gate,
		service.MediaConfig{
			UploadsPrefix: cfg.UploadsPrefix,
			OutputPrefix:  cfg.OutputPrefix,
			UploadURLTTL:  cfg.UploadURLTTL,
		}, logger)

	// 9. topologymetrics — мониторинг зависимостей (PostgreSQL + S3-совместимое хранилище)
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:             "media-gate",
		Group:                 cfg.DephealthGroup,
		PGConnURL:             cfg.DatabaseURL(),
		ObjectStoreURL:        cfg.S3Endpoint,
		ObjectStoreHealthPath: cfg.S3HealthPath,
		CheckInterval:         cfg.DephealthCheckInterval,
		IsEntry:               cfg.DephealthIsEntry,
	}, pgDB, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 10. HTTP: обработчики и middleware
	validator, err := middleware.NewRequestValidator(api.Spec, logger)
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI контракта", slog.String("error", err.Error()))
		os.Exit(1)
	}

	apiHandler := handlers.NewAPIHandler(
		handlers.NewHealthHandler(database.NewReadinessChecker(pool), store),
		accessSvc,
		mediaSvc,
		logger,
	)

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.RateLimitCacheSize, logger,
		middleware.WithTrustedProxies(cfg.TrustedProxies))

	router := server.NewRouter(server.Routes{
		Handler:   apiHandler,
		Auth:      middleware.NewAuthenticator(codec, logger),
		Validator: validator,
		Limiter:   limiter,
	},
		middleware.RequestID(),
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)

	// 11. Запуск HTTP-сервера
	srv := server.New(cfg, logger, router)
	runErr := srv.Run()

	// 12. Остановка фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
	logger.Info("Media Gate остановлен")
}
