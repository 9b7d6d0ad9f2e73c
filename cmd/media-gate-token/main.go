// main.go — утилита выпуска сессионных токенов Media Gate.
// Подписывает токен тем же секретом (MG_JWT_SECRET), которым его проверяет сервис.
//
//	media-gate-token -username alice [-role user] [-ttl 1h] [-json]
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/bigkaa/goartstore/media-gate/internal/config"
	"github.com/bigkaa/goartstore/media-gate/internal/token"
)

// issued — вывод в режиме -json.
type issued struct {
	Token     string    `json:"access_token"`
	TokenType string    `json:"token_type"`
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

func main() {
	log.SetFlags(0)
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("media-gate-token", flag.ContinueOnError)
	var (
		username = fs.String("username", "", "Имя пользователя (claim username)")
		role     = fs.String("role", "user", "Роль (claim role)")
		ttl      = fs.Duration("ttl", 0, "Время жизни токена; 0 — MG_ACCESS_TOKEN_TTL")
		asJSON   = fs.Bool("json", false, "Вывести токен и его claims в JSON")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return errors.New("usage: media-gate-token -username <name> [-role user] [-ttl 1h] [-json]")
	}
	if *ttl < 0 {
		return fmt.Errorf("-ttl: отрицательное значение %s", *ttl)
	}

	settings, err := config.LoadTokenSettings()
	if err != nil {
		return err
	}
	codec, err := token.NewCodec(settings.Secret, settings.TTL)
	if err != nil {
		return err
	}

	tok, principal, err := codec.Issue(*username, *role, *ttl)
	if err != nil {
		return fmt.Errorf("выпуск токена: %w", err)
	}

	if !*asJSON {
		_, err = fmt.Fprintln(out, tok)
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(issued{
		Token:     tok,
		TokenType: "Bearer",
		ID:        principal.ID.String(),
		Username:  principal.Username,
		Role:      principal.Role,
		ExpiresAt: principal.ExpiresAt,
	})
}
