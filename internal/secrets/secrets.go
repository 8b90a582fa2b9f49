package secrets

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/goccy/go-json"
)

// Credentials is the JSON shape of an RDS-style database secret.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Resolver interface {
	Resolve(ctx context.Context, secretID string) (Credentials, error)
}

// API is the subset of the Secrets Manager client used here.
type API interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type SecretsManager struct {
	client API
}

func NewSecretsManager(client API) *SecretsManager {
	return &SecretsManager{client: client}
}

func NewFromConfig(cfg aws.Config) *SecretsManager {
	return NewSecretsManager(secretsmanager.NewFromConfig(cfg))
}

func (s *SecretsManager) Resolve(ctx context.Context, secretID string) (Credentials, error) {
	slog.Info("Retrieving database credentials", "secret", secretID)

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to get secret value: %w", err)
	}
	if out.SecretString == nil {
		return Credentials{}, fmt.Errorf("secret %s has no string value", secretID)
	}

	return Parse([]byte(*out.SecretString))
}

func Parse(data []byte) (Credentials, error) {
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("failed to parse secret: %w", err)
	}
	if creds.Username == "" {
		return Credentials{}, fmt.Errorf("secret is missing username")
	}
	if creds.Password == "" {
		return Credentials{}, fmt.Errorf("secret is missing password")
	}
	return creds, nil
}
