package permission

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/bigkaa/goartstore/media-gate/internal/domain/model"
	"github.com/bigkaa/goartstore/media-gate/internal/repository"
)

// mockRegistry — мок Registry с функцией-полем.
type mockRegistry struct {
	getFn func(ctx context.Context, mediaID int64, username string) (*model.PermissionGrant, error)
}

func (m *mockRegistry) GetPermission(ctx context.Context, mediaID int64, username string) (*model.PermissionGrant, error) {
	return m.getFn(ctx, mediaID, username)
}

func grantOf(kind model.PermissionKind) *mockRegistry {
	return &mockRegistry{getFn: func(_ context.Context, mediaID int64, username string) (*model.PermissionGrant, error) {
		return &model.PermissionGrant{MediaID: mediaID, Username: username, Kind: kind}, nil
	}}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

var alice = model.Principal{Username: "alice", Role: "user"}

func TestAuthorize_Granted(t *testing.T) {
	for _, kind := range []model.PermissionKind{model.PermissionRead, model.PermissionWrite} {
		g := NewGate(grantOf(kind), testLogger())
		got, err := g.Authorize(context.Background(), alice, 7)
		if err != nil {
			t.Fatalf("Authorize(%s): %v", kind, err)
		}
		if got != kind {
			t.Errorf("Authorize = %q, ожидался %q", got, kind)
		}
	}
}

// TestAuthorize_DenialsIndistinguishable — нет записи и неизвестный тип дают одну и ту же ошибку.
func TestAuthorize_DenialsIndistinguishable(t *testing.T) {
	noGrant := &mockRegistry{getFn: func(context.Context, int64, string) (*model.PermissionGrant, error) {
		return nil, repository.ErrNotFound
	}}

	_, errNoGrant := NewGate(noGrant, testLogger()).Authorize(context.Background(), alice, 7)
	_, errUnknown := NewGate(grantOf("admin"), testLogger()).Authorize(context.Background(), alice, 7)
	_, errEmpty := NewGate(grantOf(""), testLogger()).Authorize(context.Background(), alice, 7)

	for name, err := range map[string]error{"нет записи": errNoGrant, "admin": errUnknown, "пустой": errEmpty} {
		if !errors.Is(err, ErrAccessDenied) {
			t.Errorf("%s: ошибка = %v, ожидалась ErrAccessDenied", name, err)
		}
	}
	if errNoGrant.Error() != errUnknown.Error() {
		t.Errorf("тексты отказов различаются: %q vs %q", errNoGrant, errUnknown)
	}
}

// TestAuthorize_StorageFault — сбой хранилища не превращается в отказ.
func TestAuthorize_StorageFault(t *testing.T) {
	cause := errors.New("connection refused")
	g := NewGate(&mockRegistry{getFn: func(context.Context, int64, string) (*model.PermissionGrant, error) {
		return nil, cause
	}}, testLogger())

	_, err := g.Authorize(context.Background(), alice, 7)
	if errors.Is(err, ErrAccessDenied) {
		t.Fatal("сбой хранилища не должен давать ErrAccessDenied")
	}
	if !errors.Is(err, cause) {
		t.Errorf("ошибка = %v, ожидалась обёртка над исходной", err)
	}
}

func TestAuthorize_UsesPrincipalUsername(t *testing.T) {
	var gotUser string
	var gotMedia int64
	g := NewGate(&mockRegistry{getFn: func(_ context.Context, mediaID int64, username string) (*model.PermissionGrant, error) {
		gotUser, gotMedia = username, mediaID
		return nil, repository.ErrNotFound
	}}, testLogger())

	_, _ = g.Authorize(context.Background(), model.Principal{Username: "bob"}, 42)
	if gotUser != "bob" || gotMedia != 42 {
		t.Errorf("запрос к реестру: username=%q media=%d", gotUser, gotMedia)
	}
}

func TestRequireKind(t *testing.T) {
	tests := []struct {
		name    string
		grant   model.PermissionKind
		require []model.PermissionKind
		wantErr bool
	}{
		{"write требует write", model.PermissionWrite, []model.PermissionKind{model.PermissionWrite}, false},
		{"read не даёт write", model.PermissionRead, []model.PermissionKind{model.PermissionWrite}, true},
		{"read или write", model.PermissionRead, []model.PermissionKind{model.PermissionRead, model.PermissionWrite}, false},
		{"неизвестный тип", "owner", []model.PermissionKind{model.PermissionWrite}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewGate(grantOf(tt.grant), testLogger()).RequireKind(context.Background(), alice, 1, tt.require...)
			if tt.wantErr && !errors.Is(err, ErrAccessDenied) {
				t.Errorf("ошибка = %v, ожидалась ErrAccessDenied", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("неожиданная ошибка: %v", err)
			}
		})
	}
}
