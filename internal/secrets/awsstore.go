package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// secretsManagerAPI — подмножество клиента AWS Secrets Manager, используемое AWSStore.
type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSStore — Store поверх AWS Secrets Manager.
type AWSStore struct {
	api secretsManagerAPI
}

// NewAWSStore создаёт хранилище секретов из конфигурации AWS SDK.
func NewAWSStore(awsCfg aws.Config) *AWSStore {
	return &AWSStore{api: secretsmanager.NewFromConfig(awsCfg)}
}

// GetSecretString возвращает SecretString секрета name.
// Бинарные секреты (SecretBinary) не поддерживаются.
func (s *AWSStore) GetSecretString(ctx context.Context, name string) (string, error) {
	out, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("секрет %q не найден", name)
		}
		return "", fmt.Errorf("secretsmanager GetSecretValue: %w", err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("секрет %q не содержит SecretString", name)
	}
	return *out.SecretString, nil
}

var _ Store = (*AWSStore)(nil)
