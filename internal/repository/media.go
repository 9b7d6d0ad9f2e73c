package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/media-gate/internal/domain/model"
)

// MediaRepository — интерфейс доступа к таблице media.
type MediaRepository interface {
	// Create регистрирует медиа; заполняет ID и CreatedAt.
	// Дубликат (владелец, имя) — ErrConflict.
	Create(ctx context.Context, m *model.Media) error
	// GetByID возвращает медиа по идентификатору.
	GetByID(ctx context.Context, id int64) (*model.Media, error)
	// GetByOwnerAndName возвращает медиа владельца по имени.
	GetByOwnerAndName(ctx context.Context, owner, name string) (*model.Media, error)
	// Delete удаляет медиа.
	Delete(ctx context.Context, id int64) error
	// ListOwned возвращает медиа владельца и их общее количество.
	ListOwned(ctx context.Context, owner string, limit, offset int) ([]*model.Media, int, error)
	// ListPermitted возвращает медиа, на которые у пользователя есть запись в реестре разрешений.
	ListPermitted(ctx context.Context, username string, limit, offset int) ([]*model.Media, int, error)
}

type mediaRepo struct {
	db DBTX
}

// NewMediaRepository создаёт репозиторий медиа.
func NewMediaRepository(db DBTX) MediaRepository {
	return &mediaRepo{db: db}
}

const mediaColumns = `m.id, m.owner_username, m.name, m.size_in_mb, m.created_at`

func scanMedia(row pgx.Row) (*model.Media, error) {
	m := &model.Media{}
	err := row.Scan(&m.ID, &m.OwnerUsername, &m.Name, &m.SizeInMB, &m.CreatedAt)
	return m, err
}

func (r *mediaRepo) Create(ctx context.Context, m *model.Media) error {
	query := `
		INSERT INTO media (owner_username, name, size_in_mb)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query, m.OwnerUsername, m.Name, m.SizeInMB).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: медиа %q уже зарегистрировано", ErrConflict, m.Name)
		}
		return fmt.Errorf("ошибка регистрации медиа: %w", err)
	}
	return nil
}

func (r *mediaRepo) GetByID(ctx context.Context, id int64) (*model.Media, error) {
	query := fmt.Sprintf(`SELECT %s FROM media m WHERE m.id = $1`, mediaColumns)
	m, err := scanMedia(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения медиа: %w", err)
	}
	return m, nil
}

func (r *mediaRepo) GetByOwnerAndName(ctx context.Context, owner, name string) (*model.Media, error) {
	query := fmt.Sprintf(`SELECT %s FROM media m WHERE m.owner_username = $1 AND m.name = $2`, mediaColumns)
	m, err := scanMedia(r.db.QueryRow(ctx, query, owner, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения медиа по имени: %w", err)
	}
	return m, nil
}

func (r *mediaRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM media WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления медиа: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mediaRepo) ListOwned(ctx context.Context, owner string, limit, offset int) ([]*model.Media, int, error) {
	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM media WHERE owner_username = $1`, owner,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта медиа владельца: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM media m
		WHERE m.owner_username = $1
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $2 OFFSET $3`, mediaColumns)

	items, err := r.list(ctx, query, owner, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *mediaRepo) ListPermitted(ctx context.Context, username string, limit, offset int) ([]*model.Media, int, error) {
	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM media_permissions WHERE username = $1`, username,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта доступных медиа: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM media m
		JOIN media_permissions p ON p.media_id = m.id
		WHERE p.username = $1
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $2 OFFSET $3`, mediaColumns)

	items, err := r.list(ctx, query, username, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *mediaRepo) list(ctx context.Context, query string, args ...any) ([]*model.Media, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка медиа: %w", err)
	}
	defer rows.Close()

	result := make([]*model.Media, 0)
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования медиа: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}
