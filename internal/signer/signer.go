// Пакет signer — подпись URL для CDN (CloudFront canned policy).
// Подпись: RSA PKCS#1 v1.5 над SHA-1 канонической политики, как требует CDN.
// Время истечения передаётся вызывающей стороной — пакет не обращается к часам.
package signer

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/cloudfront/sign"

	"github.com/bigkaa/goartstore/media-gate/internal/domain/model"
)

// ErrSigningFailure — ключ некорректен или криптопримитив отклонил вход.
var ErrSigningFailure = errors.New("ошибка подписи URL")

// Sign подписывает resourceURL до момента expiresAt ключом key.
// Результат детерминирован для одинаковых (resourceURL, key, expiresAt).
func Sign(resourceURL string, key model.SigningKeyMaterial, expiresAt time.Time) (model.SignedURL, error) {
	if key.PublicKeyID == "" {
		return model.SignedURL{}, fmt.Errorf("%w: пустой идентификатор ключа", ErrSigningFailure)
	}
	if err := validateResourceURL(resourceURL); err != nil {
		return model.SignedURL{}, fmt.Errorf("%w: %w", ErrSigningFailure, err)
	}

	privKey, err := parsePrivateKey(key.PrivateKeyPEM)
	if err != nil {
		return model.SignedURL{}, fmt.Errorf("%w: %w", ErrSigningFailure, err)
	}

	signed, err := sign.NewURLSigner(key.PublicKeyID, privKey).Sign(resourceURL, expiresAt)
	if err != nil {
		return model.SignedURL{}, fmt.Errorf("%w: %w", ErrSigningFailure, err)
	}

	return model.SignedURL{
		URL:       signed,
		ExpiresAt: expiresAt.Truncate(time.Second).UTC(),
	}, nil
}

// CanonicalURL строит URL ресурса в CDN: https://<domain>/<prefix>/<owner>/<name>.
// Имя кодируется как компонент query (пробел → '+'), в том же виде, в каком
// конвейер конвертации публикует ключи.
func CanonicalURL(cdnDomain, outputPrefix, owner, name string) string {
	return fmt.Sprintf("https://%s/%s/%s/%s",
		cdnDomain,
		strings.Trim(outputPrefix, "/"),
		url.PathEscape(owner),
		url.QueryEscape(name),
	)
}

func validateResourceURL(raw string) error {
	if raw == "" {
		return errors.New("пустой URL ресурса")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("некорректный URL ресурса: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("недопустимая схема URL %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("в URL ресурса отсутствует хост")
	}
	return nil
}

// parsePrivateKey разбирает RSA-ключ в PEM (PKCS#1, с fallback на PKCS#8).
func parsePrivateKey(pemData string) (*rsa.PrivateKey, error) {
	if strings.TrimSpace(pemData) == "" {
		return nil, errors.New("пустой приватный ключ")
	}

	if key, err := sign.LoadPEMPrivKey(strings.NewReader(pemData)); err == nil {
		return key, nil
	}

	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("приватный ключ не в формате PEM")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("разбор приватного ключа: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("ожидается RSA-ключ, получен %T", parsed)
	}
	return rsaKey, nil
}
