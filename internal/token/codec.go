// Пакет token — выпуск и проверка сессионных токенов Media Gate.
// Токен — JWT HS256 с claims {id, username, role, exp}, подписанный общим секретом.
// Пакет не выполняет I/O: результат зависит только от заголовка, секрета и текущего времени.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/media-gate/internal/domain/model"
)

// Ошибки аутентификации.
var (
	// ErrMissingAuthHeader — заголовок Authorization отсутствует.
	ErrMissingAuthHeader = errors.New("отсутствует заголовок Authorization")
	// ErrMalformedAuthHeader — заголовок не в формате "Bearer <token>".
	ErrMalformedAuthHeader = errors.New("неверный формат Authorization: ожидается Bearer <token>")
	// ErrInvalidToken — подпись или структура токена некорректны.
	ErrInvalidToken = errors.New("невалидный токен")
	// ErrExpiredToken — срок действия токена истёк.
	ErrExpiredToken = errors.New("срок действия токена истёк")
)

// signingAlg — единственный допустимый алгоритм подписи.
const signingAlg = "HS256"

// sessionClaims — claims сессионного токена.
// Имена полей совместимы с токенами, выпускаемыми внешним login flow.
type sessionClaims struct {
	ID       string `json:"id" validate:"required,uuid"`
	Username string `json:"username" validate:"required"`
	Role     string `json:"role" validate:"required"`
	jwt.RegisteredClaims
}

// Codec — кодек сессионных токенов.
type Codec struct {
	secret     []byte
	defaultTTL time.Duration
	now        func() time.Time
	validate   *validator.Validate
}

// Option — опция конструктора Codec.
type Option func(*Codec)

// WithClock подменяет источник текущего времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec создаёт кодек с общим секретом и TTL по умолчанию для Issue.
func NewCodec(secret string, defaultTTL time.Duration, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("секрет подписи токенов не задан")
	}
	if defaultTTL <= 0 {
		return nil, fmt.Errorf("TTL по умолчанию должен быть > 0, получено %s", defaultTTL)
	}

	c := &Codec{
		secret:     []byte(secret),
		defaultTTL: defaultTTL,
		now:        time.Now,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue выпускает токен для пользователя. При ttl <= 0 используется TTL по умолчанию.
// Возвращает подписанный токен и Principal, совпадающий с результатом Decode этого токена.
func (c *Codec) Issue(username, role string, ttl time.Duration) (string, model.Principal, error) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	now := c.now()
	// NumericDate хранит секунды — усекаем заранее, чтобы Principal совпал с декодированным.
	expiresAt := now.Add(ttl).Truncate(time.Second).UTC()
	id := uuid.New()

	claims := &sessionClaims{
		ID:       id.String(),
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if err := c.validate.Struct(claims); err != nil {
		return "", model.Principal{}, fmt.Errorf("некорректные claims токена: %w", err)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", model.Principal{}, fmt.Errorf("подпись токена: %w", err)
	}

	return signed, model.Principal{
		ID:        id,
		Username:  username,
		Role:      role,
		ExpiresAt: expiresAt,
	}, nil
}

// Decode извлекает Principal из значения заголовка Authorization.
// Ошибки: ErrMissingAuthHeader, ErrMalformedAuthHeader, ErrInvalidToken, ErrExpiredToken.
func (c *Codec) Decode(header string) (model.Principal, error) {
	tokenString, err := bearerToken(header)
	if err != nil {
		return model.Principal{}, err
	}
	return c.Verify(tokenString)
}

// Verify проверяет подпись и срок действия токена и возвращает Principal.
func (c *Codec) Verify(tokenString string) (model.Principal, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, c.keyFunc,
		jwt.WithValidMethods([]string{signingAlg}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.Principal{}, fmt.Errorf("%w: %w", ErrExpiredToken, err)
		}
		return model.Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if err := c.validate.Struct(claims); err != nil {
		return model.Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	id, err := uuid.Parse(claims.ID)
	if err != nil {
		return model.Principal{}, fmt.Errorf("%w: id: %w", ErrInvalidToken, err)
	}

	return model.Principal{
		ID:        id,
		Username:  claims.Username,
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}

// keyFunc возвращает общий секрет. Алгоритм уже ограничен WithValidMethods.
func (c *Codec) keyFunc(_ *jwt.Token) (any, error) {
	return c.secret, nil
}

// bearerToken извлекает токен из заголовка вида "Bearer <token>" (схема без учёта регистра).
func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", ErrMissingAuthHeader
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrMalformedAuthHeader
	}
	return parts[1], nil
}
