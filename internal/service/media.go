// media.go — операции медиа-реестра: загрузка, регистрация, списки,
// удаление и управление разрешениями.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/bigkaa/goartstore/media-gate/internal/domain/model"
	"github.com/bigkaa/goartstore/media-gate/internal/objectstore"
	"github.com/bigkaa/goartstore/media-gate/internal/permission"
	"github.com/bigkaa/goartstore/media-gate/internal/repository"
)

// Параметры пагинации.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	maxMediaNameLen = 1024
)

// ObjectStore — объектное хранилище исходных загрузок и опубликованных файлов.
type ObjectStore interface {
	HeadObject(ctx context.Context, key string) (objectstore.ObjectInfo, error)
	PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error)
	DeleteObject(ctx context.Context, key string) error
}

// Transactor — выполнение операций над реестрами в одной транзакции.
type Transactor interface {
	InRegistryTx(ctx context.Context, fn func(rtx repository.RegistryTx) error) error
}

// MediaConfig — параметры MediaService.
type MediaConfig struct {
	UploadsPrefix string
	OutputPrefix  string
	UploadURLTTL  time.Duration
}

// MediaService — бизнес-логика медиа-реестра.
type MediaService struct {
	mediaRepo repository.MediaRepository
	permRepo  repository.PermissionRepository
	tx        Transactor
	media     *mediaReader
	store     ObjectStore
	gate      AccessGate
	cfg       MediaConfig
	logger    *slog.Logger
}

// NewMediaService создаёт сервис медиа-реестра.
func NewMediaService(
	mediaRepo repository.MediaRepository,
	permRepo repository.PermissionRepository,
	tx Transactor,
	cache *MediaCache,
	store ObjectStore,
	gate AccessGate,
	cfg MediaConfig,
	logger *slog.Logger,
) *MediaService {
	return &MediaService{
		mediaRepo: mediaRepo,
		permRepo:  permRepo,
		tx:        tx,
		media:     &mediaReader{repo: mediaRepo, cache: cache},
		store:     store,
		gate:      gate,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "media_service")),
	}
}

// UploadURL возвращает presigned PUT URL для загрузки медиа name в uploads/<user>/<name>.
func (s *MediaService) UploadURL(ctx context.Context, principal model.Principal, name string) (string, error) {
	if err := ValidateMediaName(name); err != nil {
		return "", err
	}

	key := objectKey(s.cfg.UploadsPrefix, principal.Username, name)
	url, err := s.store.PresignPut(ctx, key, s.cfg.UploadURLTTL)
	if err != nil {
		return "", fmt.Errorf("%w: presigned URL для %s: %w", ErrStorageFault, key, err)
	}

	s.logger.Debug("Выдан URL загрузки",
		slog.String("username", principal.Username),
		slog.String("key", key),
	)
	return url, nil
}

// Register регистрирует загруженный объект uploads/<user>/<name> как медиа.
// Владелец получает разрешение write в той же транзакции.
//
// Ошибки: ErrValidation (имя), ErrConflict (уже зарегистрировано),
// ErrNotFound (объект не загружен), ErrStorageFault.
func (s *MediaService) Register(ctx context.Context, principal model.Principal, name string) (*model.Media, error) {
	if err := ValidateMediaName(name); err != nil {
		return nil, err
	}

	_, err := s.mediaRepo.GetByOwnerAndName(ctx, principal.Username, name)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: медиа %q уже зарегистрировано", ErrConflict, name)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, mapRepoError(err, "проверка дубликата")
	}

	key := objectKey(s.cfg.UploadsPrefix, principal.Username, name)
	info, err := s.store.HeadObject(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: проверка объекта %s: %w", ErrStorageFault, key, err)
	}
	if !info.Exists {
		return nil, fmt.Errorf("%w: объект %s не загружен", ErrNotFound, key)
	}

	media := &model.Media{
		OwnerUsername: principal.Username,
		Name:          name,
		SizeInMB:      bytesToMB(info.SizeBytes),
	}
	err = s.tx.InRegistryTx(ctx, func(rtx repository.RegistryTx) error {
		if err := rtx.Media.Create(ctx, media); err != nil {
			return err
		}
		return rtx.Permissions.Upsert(ctx, &model.PermissionGrant{
			MediaID:  media.ID,
			Username: principal.Username,
			Kind:     model.PermissionWrite,
		})
	})
	if err != nil {
		return nil, mapRepoError(err, "регистрация медиа")
	}

	s.logger.Info("Медиа зарегистрировано",
		slog.Int64("media_id", media.ID),
		slog.String("owner", media.OwnerUsername),
		slog.String("name", media.Name),
		slog.Float64("size_in_mb", media.SizeInMB),
	)
	return media, nil
}

// ListOwned возвращает страницу медиа, которыми владеет principal.
func (s *MediaService) ListOwned(ctx context.Context, principal model.Principal, page, pageSize int) (*model.MediaPage, error) {
	page, pageSize = NormalizePage(page, pageSize)
	items, total, err := s.mediaRepo.ListOwned(ctx, principal.Username, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, mapRepoError(err, "список медиа владельца")
	}
	return &model.MediaPage{Page: page, PageSize: pageSize, Total: total, Items: items}, nil
}

// ListPermitted возвращает страницу медиа, на которые у principal есть запись в реестре разрешений.
func (s *MediaService) ListPermitted(ctx context.Context, principal model.Principal, page, pageSize int) (*model.MediaPage, error) {
	page, pageSize = NormalizePage(page, pageSize)
	items, total, err := s.mediaRepo.ListPermitted(ctx, principal.Username, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, mapRepoError(err, "список доступных медиа")
	}
	return &model.MediaPage{Page: page, PageSize: pageSize, Total: total, Items: items}, nil
}

// Delete удаляет медиа mediaID с именем name. Доступно только владельцу.
// Разрешения и запись удаляются в одной транзакции, затем — объекты
// output/<owner>/<name> и uploads/<owner>/<name>. Сбой удаления объектов
// логируется и не отменяет удаление записи.
func (s *MediaService) Delete(ctx context.Context, principal model.Principal, mediaID int64, name string) error {
	if _, err := s.gate.Authorize(ctx, principal, mediaID); err != nil {
		return s.gateError(err)
	}

	media, err := s.media.get(ctx, mediaID)
	if err != nil {
		return err
	}
	if media.OwnerUsername != principal.Username {
		return permission.ErrAccessDenied
	}
	if media.Name != name {
		return fmt.Errorf("%w: медиа %d с именем %q", ErrNotFound, mediaID, name)
	}

	var revoked int64
	err = s.tx.InRegistryTx(ctx, func(rtx repository.RegistryTx) error {
		n, err := rtx.Permissions.DeleteForMedia(ctx, mediaID)
		if err != nil {
			return err
		}
		revoked = n
		return rtx.Media.Delete(ctx, mediaID)
	})
	s.media.invalidate(mediaID)
	if err != nil {
		return mapRepoError(err, "удаление медиа")
	}

	for _, prefix := range []string{s.cfg.OutputPrefix, s.cfg.UploadsPrefix} {
		key := objectKey(prefix, media.OwnerUsername, media.Name)
		if err := s.store.DeleteObject(ctx, key); err != nil {
			s.logger.Warn("Не удалось удалить объект медиа",
				slog.Int64("media_id", mediaID),
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("Медиа удалено",
		slog.Int64("media_id", mediaID),
		slog.String("owner", media.OwnerUsername),
		slog.Int64("revoked_permissions", revoked),
	)
	return nil
}

// Grant выдаёт пользователю username разрешение kind на медиа.
// Требует у principal разрешения write. Разрешение владельца не изменяется.
func (s *MediaService) Grant(ctx context.Context, principal model.Principal, mediaID int64, username string, kind model.PermissionKind) error {
	if !kind.IsRecognized() {
		return fmt.Errorf("%w: неизвестный тип разрешения %q", ErrValidation, kind)
	}
	media, err := s.authorizeManage(ctx, principal, mediaID, username)
	if err != nil {
		return err
	}

	if err := s.permRepo.Upsert(ctx, &model.PermissionGrant{MediaID: media.ID, Username: username, Kind: kind}); err != nil {
		return mapRepoError(err, "выдача разрешения")
	}

	s.logger.Info("Разрешение выдано",
		slog.Int64("media_id", mediaID),
		slog.String("username", username),
		slog.String("permission_type", string(kind)),
		slog.String("granted_by", principal.Username),
	)
	return nil
}

// Revoke отзывает разрешение пользователя username на медиа.
// Требует у principal разрешения write. Разрешение владельца не отзывается.
func (s *MediaService) Revoke(ctx context.Context, principal model.Principal, mediaID int64, username string) error {
	if _, err := s.authorizeManage(ctx, principal, mediaID, username); err != nil {
		return err
	}

	if err := s.permRepo.Delete(ctx, mediaID, username); err != nil {
		return mapRepoError(err, "отзыв разрешения")
	}

	s.logger.Info("Разрешение отозвано",
		slog.Int64("media_id", mediaID),
		slog.String("username", username),
		slog.String("revoked_by", principal.Username),
	)
	return nil
}

// authorizeManage проверяет право principal управлять разрешениями медиа
// и запрещает изменять разрешение владельца.
func (s *MediaService) authorizeManage(ctx context.Context, principal model.Principal, mediaID int64, username string) (*model.Media, error) {
	if strings.TrimSpace(username) == "" {
		return nil, fmt.Errorf("%w: пустое имя пользователя", ErrValidation)
	}
	if err := s.gate.RequireKind(ctx, principal, mediaID, model.PermissionWrite); err != nil {
		return nil, s.gateError(err)
	}

	media, err := s.media.get(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	if media.OwnerUsername == username {
		return nil, fmt.Errorf("%w: разрешение владельца не изменяется", ErrValidation)
	}
	return media, nil
}

func (s *MediaService) gateError(err error) error {
	if errors.Is(err, permission.ErrAccessDenied) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorageFault, err)
}

// ValidateMediaName проверяет имя медиа: непустое, без '/', без управляющих символов.
func ValidateMediaName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: пустое имя медиа", ErrValidation)
	case len(name) > maxMediaNameLen:
		return fmt.Errorf("%w: имя медиа длиннее %d байт", ErrValidation, maxMediaNameLen)
	case name == "." || name == "..":
		return fmt.Errorf("%w: недопустимое имя медиа %q", ErrValidation, name)
	case strings.ContainsRune(name, '/'):
		return fmt.Errorf("%w: имя медиа не может содержать '/'", ErrValidation)
	case strings.IndexFunc(name, unicode.IsControl) >= 0:
		return fmt.Errorf("%w: имя медиа содержит управляющие символы", ErrValidation)
	}
	return nil
}

// NormalizePage приводит параметры пагинации к допустимым значениям.
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

func objectKey(prefix, username, name string) string {
	return prefix + "/" + username + "/" + name
}

// bytesToMB переводит байты в мегабайты с округлением до двух знаков.
func bytesToMB(n int64) float64 {
	return math.Round(float64(n)/(1024*1024)*100) / 100
}
