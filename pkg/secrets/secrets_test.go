package secrets

import (
	"context"
	"testing"

	"chat-risk-analysis/backend/pkg/config"
	"chat-risk-analysis/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnvManager(t *testing.T) *VaultManager {
	t.Helper()
	t.Setenv("VAULT_ENABLED", "false")
	m, err := NewVaultManager(logger.Discard())
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "DB_PASSWORD", EnvKey("db-password"))
	assert.Equal(t, "INFERENCE_API_KEY", EnvKey("inference.api_key"))
}

func TestVaultManagerFallsBackToEnvironment(t *testing.T) {
	m := newEnvManager(t)
	t.Setenv("INFERENCE_API_KEY", "rp-secret")

	value, err := m.GetSecret(context.Background(), KeyInferenceAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "rp-secret", value)

	_, err = m.GetSecret(context.Background(), "definitely_not_set_anywhere")
	assert.ErrorIs(t, err, ErrSecretNotFound)
	assert.Equal(t, "fallback", m.GetSecretWithDefault(context.Background(), "definitely_not_set_anywhere", "fallback"))
}

func TestVaultEnabledRequiresAddress(t *testing.T) {
	t.Setenv("VAULT_ENABLED", "true")
	t.Setenv("VAULT_ADDR", "")
	_, err := NewVaultManager(logger.Discard())
	assert.ErrorIs(t, err, ErrNoVaultAddress)
}

func TestApplyToConfig(t *testing.T) {
	m := newEnvManager(t)
	t.Setenv("DB_PASSWORD", "from-secrets")
	t.Setenv("REDIS_PASSWORD", "")

	cfg := &config.Config{}
	cfg.Database.Password = "from-env"
	cfg.Redis.Password = "keep-me"

	ApplyToConfig(context.Background(), m, cfg)

	assert.Equal(t, "from-secrets", cfg.Database.Password)
	assert.Equal(t, "keep-me", cfg.Redis.Password)
}

func TestPackageLevelAccessorsWithoutManager(t *testing.T) {
	SetManager(nil)
	_, err := GetSecret(context.Background(), "x")
	assert.ErrorIs(t, err, ErrManagerNotInitialized)
	assert.Equal(t, "d", GetSecretWithDefault(context.Background(), "x", "d"))
}
