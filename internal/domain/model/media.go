// Пакет model — доменные модели Media Gate.
package model

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Principal — аутентифицированный субъект, извлечённый из проверенного сессионного токена.
// Передаётся по значению и не изменяется после декодирования.
type Principal struct {
	ID        uuid.UUID
	Username  string
	Role      string
	ExpiresAt time.Time
}

// Media — запись медиа-реестра (таблица media).
// Принадлежит ровно одному пользователю (OwnerUsername).
type Media struct {
	// ID — присваивается при регистрации
	ID int64 `json:"id"`
	// OwnerUsername — владелец медиа
	OwnerUsername string `json:"media_owner"`
	// Name — имя медиа (последний сегмент ключа объекта)
	Name string `json:"media_name"`
	// SizeInMB — размер исходного объекта в мегабайтах
	SizeInMB float64 `json:"size_in_mb"`
	// CreatedAt — время регистрации
	CreatedAt time.Time `json:"created_at"`
}

// PermissionKind — тип разрешения на медиа.
type PermissionKind string

// Известные типы разрешений. Любое другое значение в реестре считается нераспознанным.
const (
	PermissionRead  PermissionKind = "read"
	PermissionWrite PermissionKind = "write"
)

// IsRecognized сообщает, входит ли тип в закрытый набор известных разрешений.
func (k PermissionKind) IsRecognized() bool {
	switch k {
	case PermissionRead, PermissionWrite:
		return true
	default:
		return false
	}
}

// PermissionGrant — запись реестра разрешений (media_permissions).
// Не более одной записи на пару (MediaID, Username).
type PermissionGrant struct {
	MediaID  int64
	Username string
	Kind     PermissionKind
}

// SigningKeyMaterial — ключевой материал CDN, получаемый из хранилища секретов на каждый запрос.
// Никогда не кэшируется и не логируется.
type SigningKeyMaterial struct {
	PrivateKeyPEM string
	PublicKeyID   string
}

// LogValue скрывает приватный ключ при логировании через slog.
func (k SigningKeyMaterial) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("public_key_id", k.PublicKeyID),
		slog.String("private_key", "[REDACTED]"),
	)
}

// SignedURL — подписанный CDN URL с ограниченным сроком действия.
type SignedURL struct {
	URL       string
	ExpiresAt time.Time
}

// MediaPage — страница списка медиа.
type MediaPage struct {
	Page     int
	PageSize int
	Total    int
	Items    []*Media
}
