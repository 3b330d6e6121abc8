package config_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-push-gateway/pushgateway/config"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUpdateConfigWithEnvOverrides(t *testing.T) {
	logger := newTestLogger()

	baseConfig := func() *config.Config {
		return &config.Config{
			ProjectID:          "base-project",
			ListenAddr:         ":8080",
			SubscriptionID:     "base-sub",
			NumPipelineWorkers: 2,
			Vapid: config.VapidConfig{
				PublicKey:  "base-pub",
				PrivateKey: "base-priv",
			},
		}
	}

	t.Run("Success - All overrides applied", func(t *testing.T) {
		cfg := baseConfig()

		t.Setenv("PROJECT_ID", "env-project")
		t.Setenv("PORT", "9090")
		t.Setenv("SUBSCRIPTION_ID", "env-sub")
		t.Setenv("NUM_PIPELINE_WORKERS", "8")
		t.Setenv("STORE_RECEIPTS", "true")
		t.Setenv("VAPID_PUBLIC_KEY", "env-pub")
		t.Setenv("VAPID_PRIVATE_KEY", "env-priv")
		t.Setenv("VAPID_SUB_EMAIL", "env@test.com")
		t.Setenv("APNS_KEY_ID", "ABC123DEFG")
		t.Setenv("APNS_TEAM_ID", "TEAM123456")
		t.Setenv("APNS_BUNDLE_ID", "com.example.app")
		t.Setenv("APNS_KEY_PATH", "/secrets/AuthKey.p8")
		t.Setenv("APNS_PRODUCTION", "true")
		t.Setenv("FCM_SERVICE_ACCOUNT_FILE", "/secrets/sa.json")
		t.Setenv("REDIS_ADDR", "redis:6379")
		t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example.com, ,https://b.example.com")

		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)

		assert.Equal(t, "env-project", finalCfg.ProjectID)
		assert.Equal(t, ":9090", finalCfg.ListenAddr)
		assert.Equal(t, "env-sub", finalCfg.SubscriptionID)
		assert.Equal(t, 8, finalCfg.NumPipelineWorkers)
		assert.True(t, finalCfg.StoreReceipts)

		assert.Equal(t, "env-pub", finalCfg.Vapid.PublicKey)
		assert.Equal(t, "env-priv", finalCfg.Vapid.PrivateKey)
		assert.Equal(t, "env@test.com", finalCfg.Vapid.SubscriberEmail)

		assert.True(t, finalCfg.Apns.Enabled())
		assert.True(t, finalCfg.Apns.Production)
		assert.Equal(t, "com.example.app", finalCfg.Apns.BundleID)
		assert.True(t, finalCfg.Fcm.Enabled())

		assert.True(t, finalCfg.Redis.Enabled)
		assert.Equal(t, "redis:6379", finalCfg.Redis.Addr)
		assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, finalCfg.CorsConfig.AllowedOrigins)
		require.NotNil(t, finalCfg.PubsubConsumerConfig)
	})

	t.Run("Success - Defaults preserved", func(t *testing.T) {
		cfg := baseConfig()
		cfg.ListenAddr = ""
		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)

		assert.Equal(t, "base-project", finalCfg.ProjectID)
		assert.Equal(t, "base-pub", finalCfg.Vapid.PublicKey)
		assert.Equal(t, ":8080", finalCfg.ListenAddr)
		assert.Equal(t, "http://localhost:3000", finalCfg.IdentityURL)
		assert.False(t, finalCfg.Apns.Enabled())
		assert.False(t, finalCfg.Fcm.Enabled())
	})

	t.Run("Validation Failure - Missing ProjectID", func(t *testing.T) {
		t.Setenv("PROJECT_ID", "")
		cfg := &config.Config{SubscriptionID: "sub"}
		_, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		assert.Error(t, err)
	})

	t.Run("Validation Failure - Incomplete APNs key", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Apns = config.ApnsConfig{KeyPath: "/secrets/AuthKey.p8"}
		_, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		assert.Error(t, err)
	})
}
