// Пакет config — загрузка и валидация конфигурации Media Gate
// из переменных окружения (и опционального dotenv-файла).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// minJWTSecretLen — минимальная длина общего секрета HS256 (байт).
const minJWTSecretLen = 32

// Config содержит все параметры конфигурации Media Gate.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// Таймаут graceful shutdown
	ShutdownTimeout time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
	// DBMaxConns — максимальный размер пула подключений.
	DBMaxConns int32

	// --- Сессионные токены ---

	// JWTSecret — общий секрет HS256 для подписи и проверки токенов.
	JWTSecret string
	// AccessTokenTTL — время жизни токена по умолчанию при выпуске.
	AccessTokenTTL time.Duration

	// --- Объектное хранилище (S3) ---

	// S3Endpoint — S3-совместимый endpoint (MinIO и т.п.), пусто — AWS.
	S3Bucket         string
	S3Region         string
	S3Endpoint       string
	S3ForcePathStyle bool
	S3AccessKey      string
	S3SecretKey      string
	// S3HealthPath — health endpoint S3-совместимого хранилища для topologymetrics.
	S3HealthPath     string

	// UploadURLTTL — срок действия presigned PUT URL.
	UploadURLTTL time.Duration
	// UploadsPrefix — префикс ключей исходных загрузок.
	UploadsPrefix string
	// OutputPrefix — префикс ключей, отдаваемых через CDN.
	OutputPrefix string

	// --- CDN ---

	// CDNDomain — домен CDN для подписанных URL (без схемы).
	CDNDomain string
	// CDNPrivateKeySecretName — имя секрета с приватным ключом (PEM).
	CDNPrivateKeySecretName string
	// CDNKeyPairIDSecretName — имя секрета с идентификатором публичного ключа.
	CDNKeyPairIDSecretName string
	// SignedURLTTL — срок действия подписанного URL.
	SignedURLTTL time.Duration

	// --- Rate limiting ---

	RateLimitRPS       float64
	RateLimitBurst     int
	RateLimitCacheSize int
	// TrustedProxies — адреса прокси, которым разрешено передавать X-Forwarded-For.
	// Пустой список: клиент определяется только по адресу соединения.
	TrustedProxies []netip.Prefix

	// --- Кэш метаданных медиа ---

	MediaCacheSize int
	MediaCacheTTL  time.Duration

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration
	DephealthIsEntry       bool
}

// Load загружает конфигурацию из переменных окружения.
// Перед чтением переменных подгружается dotenv-файл MG_ENV_FILE (по умолчанию app.env),
// если он существует. Уже заданные переменные окружения не перезаписываются.
func Load() (*Config, error) {
	if err := loadEnvFile(getEnvDefault("MG_ENV_FILE", "app.env")); err != nil {
		return nil, fmt.Errorf("MG_ENV_FILE: %w", err)
	}

	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("MG_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("MG_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("MG_PORT: значение %d вне диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("MG_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("MG_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("MG_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("MG_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	if cfg.HTTPReadTimeout, err = getEnvDuration("MG_HTTP_READ_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("MG_HTTP_READ_TIMEOUT: %w", err)
	}
	if cfg.HTTPWriteTimeout, err = getEnvDuration("MG_HTTP_WRITE_TIMEOUT", 60*time.Second); err != nil {
		return nil, fmt.Errorf("MG_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPIdleTimeout, err = getEnvDuration("MG_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("MG_HTTP_IDLE_TIMEOUT: %w", err)
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("MG_SHUTDOWN_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("MG_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("MG_DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.DBPort, err = getEnvInt("MG_DB_PORT", 5432); err != nil {
		return nil, fmt.Errorf("MG_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("MG_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("MG_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("MG_DB_PASSWORD"); err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("MG_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("MG_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}
	maxConns, err := getEnvInt("MG_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("MG_DB_MAX_CONNS: %w", err)
	}
	if maxConns < 1 || maxConns > 1000 {
		return nil, fmt.Errorf("MG_DB_MAX_CONNS: значение должно быть от 1 до 1000, получено %d", maxConns)
	}
	cfg.DBMaxConns = int32(maxConns)

	// --- Сессионные токены ---

	tokens, err := loadTokenSettings()
	if err != nil {
		return nil, err
	}
	cfg.JWTSecret, cfg.AccessTokenTTL = tokens.Secret, tokens.TTL

	// --- S3 ---

	if cfg.S3Bucket, err = getEnvRequired("MG_S3_BUCKET"); err != nil {
		return nil, err
	}
	cfg.S3Region = getEnvDefault("MG_S3_REGION", "us-east-1")
	cfg.S3Endpoint = os.Getenv("MG_S3_ENDPOINT")
	if cfg.S3ForcePathStyle, err = getEnvBool("MG_S3_FORCE_PATH_STYLE", false); err != nil {
		return nil, fmt.Errorf("MG_S3_FORCE_PATH_STYLE: %w", err)
	}
	cfg.S3AccessKey = os.Getenv("MG_S3_ACCESS_KEY")
	cfg.S3SecretKey = os.Getenv("MG_S3_SECRET_KEY")
	if (cfg.S3AccessKey == "") != (cfg.S3SecretKey == "") {
		return nil, errors.New("MG_S3_ACCESS_KEY и MG_S3_SECRET_KEY задаются только вместе")
	}
	cfg.S3HealthPath = getEnvDefault("MG_S3_HEALTH_PATH", "/minio/health/live")
	if cfg.UploadURLTTL, err = getEnvDurationPositive("MG_UPLOAD_URL_TTL", time.Hour); err != nil {
		return nil, fmt.Errorf("MG_UPLOAD_URL_TTL: %w", err)
	}
	cfg.UploadsPrefix = strings.Trim(getEnvDefault("MG_UPLOADS_PREFIX", "uploads"), "/")
	cfg.OutputPrefix = strings.Trim(getEnvDefault("MG_OUTPUT_PREFIX", "output"), "/")

	// --- CDN ---

	if cfg.CDNDomain, err = getEnvRequired("MG_CDN_DOMAIN"); err != nil {
		return nil, err
	}
	if strings.Contains(cfg.CDNDomain, "://") {
		return nil, fmt.Errorf("MG_CDN_DOMAIN: ожидается домен без схемы, получено %q", cfg.CDNDomain)
	}
	if cfg.CDNPrivateKeySecretName, err = getEnvRequired("MG_CDN_PRIVATE_KEY_SECRET_NAME"); err != nil {
		return nil, err
	}
	if cfg.CDNKeyPairIDSecretName, err = getEnvRequired("MG_CDN_KEY_PAIR_ID_SECRET_NAME"); err != nil {
		return nil, err
	}
	if cfg.SignedURLTTL, err = getEnvDurationPositive("MG_SIGNED_URL_TTL", time.Hour); err != nil {
		return nil, fmt.Errorf("MG_SIGNED_URL_TTL: %w", err)
	}

	// --- Rate limiting ---

	if cfg.RateLimitRPS, err = getEnvFloat("MG_RATE_LIMIT_RPS", 20); err != nil {
		return nil, fmt.Errorf("MG_RATE_LIMIT_RPS: %w", err)
	}
	if cfg.RateLimitBurst, err = getEnvInt("MG_RATE_LIMIT_BURST", 40); err != nil {
		return nil, fmt.Errorf("MG_RATE_LIMIT_BURST: %w", err)
	}
	if cfg.RateLimitCacheSize, err = getEnvInt("MG_RATE_LIMIT_CACHE_SIZE", 10000); err != nil {
		return nil, fmt.Errorf("MG_RATE_LIMIT_CACHE_SIZE: %w", err)
	}
	if cfg.RateLimitCacheSize < 1 {
		return nil, errors.New("MG_RATE_LIMIT_CACHE_SIZE: значение должно быть > 0")
	}
	if cfg.TrustedProxies, err = parseTrustedProxies(os.Getenv("MG_TRUSTED_PROXIES")); err != nil {
		return nil, fmt.Errorf("MG_TRUSTED_PROXIES: %w", err)
	}

	// --- Кэш метаданных медиа ---

	if cfg.MediaCacheSize, err = getEnvInt("MG_MEDIA_CACHE_SIZE", 10000); err != nil {
		return nil, fmt.Errorf("MG_MEDIA_CACHE_SIZE: %w", err)
	}
	if cfg.MediaCacheSize < 1 {
		return nil, errors.New("MG_MEDIA_CACHE_SIZE: значение должно быть > 0")
	}
	if cfg.MediaCacheTTL, err = getEnvDurationPositive("MG_MEDIA_CACHE_TTL", time.Minute); err != nil {
		return nil, fmt.Errorf("MG_MEDIA_CACHE_TTL: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("MG_DEPHEALTH_GROUP", "media-gate")
	if cfg.DephealthCheckInterval, err = getEnvDurationPositive("MG_DEPHEALTH_CHECK_INTERVAL", 15*time.Second); err != nil {
		return nil, fmt.Errorf("MG_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	if cfg.DephealthIsEntry, err = getEnvBool("DEPHEALTH_ISENTRY", false); err != nil {
		return nil, fmt.Errorf("DEPHEALTH_ISENTRY: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает DSN для pgxpool.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// TokenSettings — параметры сессионных токенов.
type TokenSettings struct {
	Secret string
	TTL    time.Duration
}

// LoadTokenSettings загружает только MG_JWT_SECRET и MG_ACCESS_TOKEN_TTL
// (с учётом MG_ENV_FILE). Используется утилитой выпуска токенов.
func LoadTokenSettings() (TokenSettings, error) {
	if err := loadEnvFile(getEnvDefault("MG_ENV_FILE", "app.env")); err != nil {
		return TokenSettings{}, fmt.Errorf("MG_ENV_FILE: %w", err)
	}
	return loadTokenSettings()
}

func loadTokenSettings() (TokenSettings, error) {
	secret, err := getEnvRequired("MG_JWT_SECRET")
	if err != nil {
		return TokenSettings{}, err
	}
	if len(secret) < minJWTSecretLen {
		return TokenSettings{}, fmt.Errorf("MG_JWT_SECRET: длина секрета должна быть не менее %d байт", minJWTSecretLen)
	}
	ttl, err := getEnvDurationPositive("MG_ACCESS_TOKEN_TTL", 15*time.Minute)
	if err != nil {
		return TokenSettings{}, fmt.Errorf("MG_ACCESS_TOKEN_TTL: %w", err)
	}
	return TokenSettings{Secret: secret, TTL: ttl}, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// loadEnvFile подгружает dotenv-файл. Отсутствие файла — не ошибка.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("ожидается положительное число: %q", val)
	}
	return f, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvDurationPositive — как getEnvDuration, но значение должно быть > 0.
func getEnvDurationPositive(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// parseTrustedProxies разбирает список через запятую: CIDR (10.0.0.0/8) или отдельные адреса.
func parseTrustedProxies(val string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for item := range strings.SplitSeq(val, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if strings.Contains(item, "/") {
			p, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, fmt.Errorf("некорректная подсеть: %q", item)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, fmt.Errorf("некорректный адрес: %q", item)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
