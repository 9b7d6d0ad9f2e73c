// Пакет objectstore — доступ к объектному хранилищу (S3 или S3-совместимое).
// Используется три операции: проверка объекта, presigned PUT и удаление;
// HeadBucket служит проверкой готовности.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/bigkaa/goartstore/media-gate/internal/config"
)

// ObjectInfo — результат проверки объекта.
type ObjectInfo struct {
	Exists    bool
	SizeBytes int64
}

// s3API — подмножество клиента S3, используемое S3Store.
type s3API interface {
	HeadBucket(ctx context.Context, params *awss3.HeadBucketInput, optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, params *awss3.HeadObjectInput, optFns ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
}

// presignAPI — подмножество s3.PresignClient.
type presignAPI interface {
	PresignPutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store — объектное хранилище поверх aws-sdk-go-v2.
type S3Store struct {
	api       s3API
	presigner presignAPI
	bucket    string
}

// LoadAWSConfig загружает конфигурацию AWS SDK: регион из конфигурации,
// статические ключи, если заданы, иначе стандартная цепочка провайдеров.
// Результат используется и для S3, и для Secrets Manager.
func LoadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("ошибка загрузки конфигурации AWS: %w", err)
	}
	return awsCfg, nil
}

// NewS3Store создаёт хранилище для бакета cfg.S3Bucket.
// Для S3-совместимых хранилищ (MinIO) задаётся endpoint и path-style адресация.
func NewS3Store(awsCfg aws.Config, cfg *config.Config) *S3Store {
	var s3Opts []func(*awss3.Options)
	if cfg.S3Endpoint != "" {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		})
	} else if cfg.S3ForcePathStyle {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.UsePathStyle = true
		})
	}

	client := awss3.NewFromConfig(awsCfg, s3Opts...)
	return &S3Store{
		api:       client,
		presigner: awss3.NewPresignClient(client),
		bucket:    cfg.S3Bucket,
	}
}

// HeadObject проверяет наличие объекта key и возвращает его размер.
// Отсутствие объекта — не ошибка: Exists=false.
func (s *S3Store) HeadObject(ctx context.Context, key string) (ObjectInfo, error) {
	out, err := s.api.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return ObjectInfo{Exists: false}, nil
		}
		return ObjectInfo{}, fmt.Errorf("s3 HeadObject %q: %w", key, err)
	}
	return ObjectInfo{Exists: true, SizeBytes: aws.ToInt64(out.ContentLength)}, nil
}

// PresignPut возвращает presigned URL для загрузки объекта key методом PUT.
func (s *S3Store) PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presigner.PresignPutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, awss3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("s3 PresignPutObject %q: %w", key, err)
	}
	return req.URL, nil
}

// DeleteObject удаляет объект key. Удаление отсутствующего объекта не ошибка.
func (s *S3Store) DeleteObject(ctx context.Context, key string) error {
	_, err := s.api.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("s3 DeleteObject %q: %w", key, err)
	}
	return nil
}

// CheckReady проверяет доступность бакета для /health/ready.
// Отказ в HeadBucket (403) не мешает presigned PUT и удалению при узкой политике
// доступа, поэтому это degraded, а не fail.
func (s *S3Store) CheckReady(ctx context.Context) (status, message string) {
	_, err := s.api.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	switch {
	case err == nil:
		return "ok", fmt.Sprintf("бакет %s доступен", s.bucket)
	case isNotFound(err):
		return "fail", fmt.Sprintf("бакет %s не найден", s.bucket)
	case isAccessDenied(err):
		return "degraded", fmt.Sprintf("нет прав HeadBucket на бакет %s", s.bucket)
	default:
		return "fail", fmt.Sprintf("объектное хранилище недоступно: %v", err)
	}
}

func isAccessDenied(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "AccessDenied" {
		return true
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusForbidden
}

// isNotFound распознаёт ответ S3 «объект не найден»: типизированные ошибки,
// коды API и HTTP 404 (HeadObject возвращает ответ без тела).
func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	return false
}
