package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/goartstore/media-gate/internal/config"
	"github.com/bigkaa/goartstore/media-gate/internal/database"
	"github.com/bigkaa/goartstore/media-gate/internal/domain/model"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unique_violation", &pgconn.PgError{Code: "23505"}, true},
		{"обёрнутая", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"foreign_key_violation", &pgconn.PgError{Code: "23503"}, false},
		{"не PgError", errors.New("23505"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		if got := isUniqueViolation(tt.err); got != tt.want {
			t.Errorf("%s: isUniqueViolation = %v, ожидалось %v", tt.name, got, tt.want)
		}
	}
}

// setupTestDB запускает PostgreSQL контейнер и применяет миграции.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("mediagate_test"),
		postgres.WithUsername("mediagate"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("MG_DB_HOST", host)
	t.Setenv("MG_DB_PORT", port.Port())
	t.Setenv("MG_DB_NAME", "mediagate_test")
	t.Setenv("MG_DB_USER", "mediagate")
	t.Setenv("MG_DB_PASSWORD", "test-password")
	t.Setenv("MG_DB_SSL_MODE", "disable")
	t.Setenv("MG_JWT_SECRET", "integration-secret-0123456789-abcdef")
	t.Setenv("MG_S3_BUCKET", "media")
	t.Setenv("MG_CDN_DOMAIN", "cdn.example.com")
	t.Setenv("MG_CDN_PRIVATE_KEY_SECRET_NAME", "cdn/private-key")
	t.Setenv("MG_CDN_KEY_PAIR_ID_SECRET_NAME", "cdn/key-pair-id")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// --- Тесты MediaRepository ---

func TestMediaCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewMediaRepository(pool)

	m := &model.Media{OwnerUsername: "alice", Name: "clip.mp4", SizeInMB: 12.5}
	if err := repo.Create(ctx, m); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if m.ID == 0 || m.CreatedAt.IsZero() {
		t.Errorf("ID/CreatedAt не установлены: %+v", m)
	}

	// Дубликат (владелец, имя)
	dup := &model.Media{OwnerUsername: "alice", Name: "clip.mp4"}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Errorf("Create(дубликат) = %v, ожидалась ErrConflict", err)
	}
	// То же имя у другого владельца допустимо
	if err := repo.Create(ctx, &model.Media{OwnerUsername: "bob", Name: "clip.mp4"}); err != nil {
		t.Errorf("Create(другой владелец) = %v", err)
	}

	got, err := repo.GetByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.OwnerUsername != "alice" || got.Name != "clip.mp4" || got.SizeInMB != 12.5 {
		t.Errorf("GetByID() = %+v", got)
	}

	byName, err := repo.GetByOwnerAndName(ctx, "alice", "clip.mp4")
	if err != nil {
		t.Fatalf("GetByOwnerAndName() ошибка: %v", err)
	}
	if byName.ID != m.ID {
		t.Errorf("GetByOwnerAndName().ID = %d, ожидался %d", byName.ID, m.ID)
	}

	if err := repo.Delete(ctx, m.ID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if _, err := repo.GetByID(ctx, m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(удалённое) = %v, ожидалась ErrNotFound", err)
	}
	if err := repo.Delete(ctx, m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(удалённое) = %v, ожидалась ErrNotFound", err)
	}
}

func TestMediaListings(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	media := NewMediaRepository(pool)
	perms := NewPermissionRepository(pool)

	var ids []int64
	for i := range 5 {
		m := &model.Media{OwnerUsername: "alice", Name: fmt.Sprintf("clip-%d.mp4", i)}
		if err := media.Create(ctx, m); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, m.ID)
	}

	items, total, err := media.ListOwned(ctx, "alice", 2, 0)
	if err != nil {
		t.Fatalf("ListOwned() ошибка: %v", err)
	}
	if total != 5 || len(items) != 2 {
		t.Errorf("ListOwned() total=%d len=%d, ожидалось 5 и 2", total, len(items))
	}

	items, _, err = media.ListOwned(ctx, "alice", 2, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Errorf("последняя страница len=%d, ожидался 1", len(items))
	}

	items, total, err = media.ListOwned(ctx, "nobody", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 || items == nil || len(items) != 0 {
		t.Errorf("пустой список: total=%d items=%v", total, items)
	}

	// bob получает разрешения на два медиа
	for _, id := range ids[:2] {
		if err := perms.Upsert(ctx, &model.PermissionGrant{MediaID: id, Username: "bob", Kind: model.PermissionRead}); err != nil {
			t.Fatal(err)
		}
	}
	items, total, err = media.ListPermitted(ctx, "bob", 10, 0)
	if err != nil {
		t.Fatalf("ListPermitted() ошибка: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Errorf("ListPermitted() total=%d len=%d, ожидалось 2 и 2", total, len(items))
	}
}

// --- Тесты PermissionRepository ---

func TestPermissionCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	media := NewMediaRepository(pool)
	perms := NewPermissionRepository(pool)

	m := &model.Media{OwnerUsername: "alice", Name: "clip.mp4"}
	if err := media.Create(ctx, m); err != nil {
		t.Fatal(err)
	}

	if _, err := perms.GetPermission(ctx, m.ID, "bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPermission(нет записи) = %v, ожидалась ErrNotFound", err)
	}

	if err := perms.Upsert(ctx, &model.PermissionGrant{MediaID: m.ID, Username: "bob", Kind: model.PermissionRead}); err != nil {
		t.Fatalf("Upsert() ошибка: %v", err)
	}
	// Повторный Upsert заменяет тип, а не добавляет запись
	if err := perms.Upsert(ctx, &model.PermissionGrant{MediaID: m.ID, Username: "bob", Kind: model.PermissionWrite}); err != nil {
		t.Fatalf("Upsert(замена) ошибка: %v", err)
	}

	g, err := perms.GetPermission(ctx, m.ID, "bob")
	if err != nil {
		t.Fatalf("GetPermission() ошибка: %v", err)
	}
	if g.Kind != model.PermissionWrite {
		t.Errorf("Kind = %q, ожидался write", g.Kind)
	}

	// Нераспознанный тип хранится как есть — решение принимает Permission Gate
	if _, err := pool.Exec(ctx,
		`INSERT INTO media_permissions (media_id, username, permission_type) VALUES ($1, 'carol', 'admin')`, m.ID,
	); err != nil {
		t.Fatal(err)
	}
	g, err = perms.GetPermission(ctx, m.ID, "carol")
	if err != nil {
		t.Fatal(err)
	}
	if g.Kind.IsRecognized() {
		t.Errorf("Kind = %q не должен считаться распознанным", g.Kind)
	}

	if err := perms.Delete(ctx, m.ID, "bob"); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if err := perms.Delete(ctx, m.ID, "bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(повтор) = %v, ожидалась ErrNotFound", err)
	}

	n, err := perms.DeleteForMedia(ctx, m.ID)
	if err != nil {
		t.Fatalf("DeleteForMedia() ошибка: %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteForMedia() = %d, ожидалось 1", n)
	}
}

func TestTxRunner_Rollback(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	runner := NewTxRunner(pool)
	errAbort := errors.New("abort")

	err := runner.RunInTx(ctx, func(tx pgx.Tx) error {
		m := &model.Media{OwnerUsername: "alice", Name: "rolled-back.mp4"}
		if err := NewMediaRepository(tx).Create(ctx, m); err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("RunInTx() = %v, ожидалась errAbort", err)
	}

	if _, err := NewMediaRepository(pool).GetByOwnerAndName(ctx, "alice", "rolled-back.mp4"); !errors.Is(err, ErrNotFound) {
		t.Errorf("после отката запись не должна существовать: %v", err)
	}
}

func TestTxRunner_InRegistryTx(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	var mediaID int64
	err := NewTxRunner(pool).InRegistryTx(ctx, func(rtx RegistryTx) error {
		m := &model.Media{OwnerUsername: "alice", Name: "clip.mp4"}
		if err := rtx.Media.Create(ctx, m); err != nil {
			return err
		}
		mediaID = m.ID
		return rtx.Permissions.Upsert(ctx, &model.PermissionGrant{
			MediaID: m.ID, Username: "alice", Kind: model.PermissionWrite,
		})
	})
	if err != nil {
		t.Fatalf("InRegistryTx() ошибка: %v", err)
	}

	g, err := NewPermissionRepository(pool).GetPermission(ctx, mediaID, "alice")
	if err != nil {
		t.Fatalf("GetPermission() ошибка: %v", err)
	}
	if g.Kind != model.PermissionWrite {
		t.Errorf("Kind = %q, ожидался write", g.Kind)
	}
}
