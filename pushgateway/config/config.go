package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type VapidConfig struct {
	PublicKey       string
	PrivateKey      string
	SubscriberEmail string
}

// ApnsConfig enables the Apple dispatcher when KeyPath is set.
type ApnsConfig struct {
	KeyID      string
	TeamID     string
	BundleID   string
	KeyPath    string
	Production bool
}

func (c ApnsConfig) Enabled() bool { return c.KeyPath != "" }

// FcmConfig enables the Firebase dispatcher when ServiceAccountFile is set.
type FcmConfig struct {
	ServiceAccountFile string
}

func (c FcmConfig) Enabled() bool { return c.ServiceAccountFile != "" }

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID              string
	ListenAddr             string
	IdentityURL            string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int
	StoreReceipts          bool

	CorsConfig middleware.CorsConfig
	Redis      RedisConfig
	Vapid      VapidConfig
	Apns       ApnsConfig
	Fcm        FcmConfig

	TopicID              string
	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	override := func(key string, apply func(string)) {
		if val := os.Getenv(key); val != "" {
			logger.Debug("Overriding config value", "key", key, "source", "env")
			apply(val)
		}
	}

	override("PROJECT_ID", func(v string) { cfg.ProjectID = v })
	override("PORT", func(v string) { cfg.ListenAddr = ":" + v })
	override("IDENTITY_SERVICE_URL", func(v string) { cfg.IdentityURL = v })
	override("SUBSCRIPTION_ID", func(v string) {
		cfg.SubscriptionID = v
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(v)
	})
	override("SUBSCRIPTION_DLQ_TOPIC_ID", func(v string) { cfg.SubscriptionDLQTopicID = v })
	override("NUM_PIPELINE_WORKERS", func(v string) {
		if workers, err := strconv.Atoi(v); err == nil && workers > 0 {
			cfg.NumPipelineWorkers = workers
		}
	})
	override("STORE_RECEIPTS", func(v string) {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.StoreReceipts = enabled
		}
	})

	// Redis
	override("REDIS_ADDR", func(v string) {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	})
	override("REDIS_PASSWORD", func(v string) { cfg.Redis.Password = v })
	override("REDIS_DB", func(v string) {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	})
	override("REDIS_ENABLED", func(v string) {
		enabled, _ := strconv.ParseBool(v)
		cfg.Redis.Enabled = enabled
	})

	// VAPID
	override("VAPID_PUBLIC_KEY", func(v string) { cfg.Vapid.PublicKey = v })
	override("VAPID_PRIVATE_KEY", func(v string) { cfg.Vapid.PrivateKey = v })
	override("VAPID_SUB_EMAIL", func(v string) { cfg.Vapid.SubscriberEmail = v })

	// APNs
	override("APNS_KEY_ID", func(v string) { cfg.Apns.KeyID = v })
	override("APNS_TEAM_ID", func(v string) { cfg.Apns.TeamID = v })
	override("APNS_BUNDLE_ID", func(v string) { cfg.Apns.BundleID = v })
	override("APNS_KEY_PATH", func(v string) { cfg.Apns.KeyPath = v })
	override("APNS_PRODUCTION", func(v string) {
		if production, err := strconv.ParseBool(v); err == nil {
			cfg.Apns.Production = production
		}
	})

	// FCM
	override("FCM_SERVICE_ACCOUNT_FILE", func(v string) { cfg.Fcm.ServiceAccountFile = v })

	override("CORS_ALLOWED_ORIGINS", func(v string) {
		var cleanOrigins []string
		for _, o := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	})

	// Final Validation
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}
	if cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("subscription_id is required (set via YAML or SUBSCRIPTION_ID env var)")
	}
	if cfg.Apns.Enabled() && (cfg.Apns.KeyID == "" || cfg.Apns.TeamID == "" || cfg.Apns.BundleID == "") {
		return nil, fmt.Errorf("apns key_id, team_id and bundle_id are required when key_path is set")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.IdentityURL == "" {
		cfg.IdentityURL = "http://localhost:3000"
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}

	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully",
		"apns", cfg.Apns.Enabled(),
		"fcm", cfg.Fcm.Enabled(),
		"redis", cfg.Redis.Enabled,
	)
	return cfg, nil
}
