package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apierrors "github.com/bigkaa/goartstore/media-gate/internal/api/errors"
	"github.com/bigkaa/goartstore/media-gate/internal/domain/model"
	"github.com/bigkaa/goartstore/media-gate/internal/token"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func newTestCodec(t *testing.T, now func() time.Time) *token.Codec {
	t.Helper()
	codec, err := token.NewCodec(testSecret, 15*time.Minute, token.WithClock(now))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return codec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apierrors.ErrorBody {
	t.Helper()
	var body apierrors.ErrorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("декодирование тела ошибки: %v", err)
	}
	return body
}

func TestRequire_ValidToken(t *testing.T) {
	codec := newTestCodec(t, time.Now)
	tok, issued, err := codec.Issue("alice", "user", 0)
	if err != nil {
		t.Fatal(err)
	}

	var got model.Principal
	calls := 0
	h := NewAuthenticator(codec, testLogger()).Require(func(w http.ResponseWriter, _ *http.Request, p model.Principal) {
		calls++
		got = p
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/media/user_media", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("статус = %d", rec.Code)
	}
	if calls != 1 {
		t.Errorf("обработчик вызван %d раз", calls)
	}
	if got.Username != "alice" || got.ID != issued.ID {
		t.Errorf("Principal = %+v, ожидался %+v", got, issued)
	}
}

func TestRequire_Rejections(t *testing.T) {
	issuedAt := time.Now().Add(-time.Hour)
	issuer := newTestCodec(t, func() time.Time { return issuedAt })
	expired, _, err := issuer.Issue("alice", "user", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	codec := newTestCodec(t, time.Now)
	valid, _, err := codec.Issue("alice", "user", 0)
	if err != nil {
		t.Fatal(err)
	}
	otherCodec, err := token.NewCodec("ffffffffffffffffffffffffffffffff", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	foreign, _, err := otherCodec.Issue("alice", "user", 0)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		header  string
		message string
	}{
		{"нет заголовка", "", msgMissingHeader},
		{"не Bearer", "Basic " + valid, msgMalformedHeader},
		{"без токена", "Bearer", msgMalformedHeader},
		{"мусор", "Bearer not-a-jwt", msgInvalidToken},
		{"чужой секрет", "Bearer " + foreign, msgInvalidToken},
		{"истёк", "Bearer " + expired, msgExpiredToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := NewAuthenticator(codec, testLogger()).Require(func(http.ResponseWriter, *http.Request, model.Principal) {
				called = true
			})

			req := httptest.NewRequest(http.MethodGet, "/media/access/42", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if called {
				t.Fatal("обработчик вызван без валидного токена")
			}
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("статус = %d, ожидался 401", rec.Code)
			}
			body := decodeError(t, rec)
			if body.Error.Code != apierrors.CodeUnauthorized || body.Error.Message != tt.message {
				t.Errorf("тело = %+v, ожидалось сообщение %q", body, tt.message)
			}
		})
	}
}
