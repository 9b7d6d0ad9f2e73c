package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/media-gate/internal/domain/model"
)

// PermissionRepository — интерфейс доступа к реестру разрешений (media_permissions).
type PermissionRepository interface {
	// GetPermission возвращает запись для пары (медиа, пользователь) или ErrNotFound.
	GetPermission(ctx context.Context, mediaID int64, username string) (*model.PermissionGrant, error)
	// Upsert создаёт или заменяет запись для пары (медиа, пользователь).
	Upsert(ctx context.Context, g *model.PermissionGrant) error
	// Delete удаляет запись для пары (медиа, пользователь).
	Delete(ctx context.Context, mediaID int64, username string) error
	// DeleteForMedia удаляет все записи медиа и возвращает их количество.
	DeleteForMedia(ctx context.Context, mediaID int64) (int64, error)
}

type permissionRepo struct {
	db DBTX
}

// NewPermissionRepository создаёт репозиторий разрешений.
func NewPermissionRepository(db DBTX) PermissionRepository {
	return &permissionRepo{db: db}
}

func (r *permissionRepo) GetPermission(ctx context.Context, mediaID int64, username string) (*model.PermissionGrant, error) {
	g := &model.PermissionGrant{}
	var kind string
	err := r.db.QueryRow(ctx, `
		SELECT media_id, username, permission_type
		FROM media_permissions
		WHERE media_id = $1 AND username = $2`, mediaID, username,
	).Scan(&g.MediaID, &g.Username, &kind)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения разрешения: %w", err)
	}
	g.Kind = model.PermissionKind(kind)
	return g, nil
}

func (r *permissionRepo) Upsert(ctx context.Context, g *model.PermissionGrant) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO media_permissions (media_id, username, permission_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (media_id, username) DO UPDATE
		SET permission_type = EXCLUDED.permission_type`,
		g.MediaID, g.Username, string(g.Kind),
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения разрешения: %w", err)
	}
	return nil
}

func (r *permissionRepo) Delete(ctx context.Context, mediaID int64, username string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM media_permissions WHERE media_id = $1 AND username = $2`, mediaID, username)
	if err != nil {
		return fmt.Errorf("ошибка удаления разрешения: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *permissionRepo) DeleteForMedia(ctx context.Context, mediaID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM media_permissions WHERE media_id = $1`, mediaID)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления разрешений медиа: %w", err)
	}
	return tag.RowsAffected(), nil
}
