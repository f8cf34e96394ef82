package secrets

import (
	"context"
	"sync"

	"chat-risk-analysis/backend/pkg/config"
	"chat-risk-analysis/backend/pkg/logger"
)

// Manager provides access to secrets from various sources
type Manager interface {
	// GetSecret retrieves a secret by key
	GetSecret(ctx context.Context, key string) (string, error)

	// GetSecretWithDefault retrieves a secret with a default value if not found
	GetSecretWithDefault(ctx context.Context, key, defaultValue string) string
}

var (
	defaultManager Manager
	managerOnce    sync.Once
)

// Init initializes the default secrets manager
func Init(log *logger.Logger) error {
	var err error
	managerOnce.Do(func() {
		manager, initErr := NewVaultManager(log)
		if initErr != nil {
			err = initErr
			return
		}
		defaultManager = manager
	})
	return err
}

// GetSecret retrieves a secret from the default manager
func GetSecret(ctx context.Context, key string) (string, error) {
	if defaultManager == nil {
		return "", ErrManagerNotInitialized
	}
	return defaultManager.GetSecret(ctx, key)
}

// GetSecretWithDefault retrieves a secret with a default value if not found
func GetSecretWithDefault(ctx context.Context, key, defaultValue string) string {
	if defaultManager == nil {
		return defaultValue
	}
	return defaultManager.GetSecretWithDefault(ctx, key, defaultValue)
}

// Default returns the manager installed by Init or SetManager, or nil.
func Default() Manager {
	return defaultManager
}

// SetManager replaces the default secrets manager (primarily used for testing)
func SetManager(manager Manager) {
	defaultManager = manager
}

// Secret keys looked up when resolving credentials.
const (
	KeyDatabasePassword = "db_password"
	KeyDatabaseDSN      = "database_dsn"
	KeyInferenceAPIKey  = "inference_api_key"
	KeyEmbeddingAPIKey  = "openai_api_key"
	KeyRedisPassword    = "redis_password"
)

// ApplyToConfig overwrites the credential fields of cfg with values held by m.
// Fields whose secret is missing keep the value read from the environment.
func ApplyToConfig(ctx context.Context, m Manager, cfg *config.Config) {
	if m == nil || cfg == nil {
		return
	}
	cfg.Database.DSN = m.GetSecretWithDefault(ctx, KeyDatabaseDSN, cfg.Database.DSN)
	cfg.Database.Password = m.GetSecretWithDefault(ctx, KeyDatabasePassword, cfg.Database.Password)
	cfg.Inference.APIKey = m.GetSecretWithDefault(ctx, KeyInferenceAPIKey, cfg.Inference.APIKey)
	cfg.Embedding.APIKey = m.GetSecretWithDefault(ctx, KeyEmbeddingAPIKey, cfg.Embedding.APIKey)
	cfg.Redis.Password = m.GetSecretWithDefault(ctx, KeyRedisPassword, cfg.Redis.Password)
}

// Common errors
var (
	ErrManagerNotInitialized = NewError("secrets manager not initialized")
)

// Error represents a secrets management error
type Error string

// Error implements the error interface
func (e Error) Error() string {
	return string(e)
}

// NewError creates a new Error
func NewError(text string) Error {
	return Error(text)
}
