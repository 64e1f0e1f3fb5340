package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/kazz187/asmith/pkg/storage"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

type MatrixEnv struct {
	Homeserver  string        `envconfig:"HOMESERVER"`
	UserID      string        `envconfig:"USER_ID"`
	DeviceName  string        `envconfig:"DEVICE_NAME" default:"asmith"`
	SyncTimeout time.Duration `envconfig:"SYNC_TIMEOUT" default:"30s"`
	MaxRetries  int           `envconfig:"MAX_RETRIES" default:"3"`
	RetryDelay  time.Duration `envconfig:"RETRY_DELAY" default:"5s"`
}

// CredentialEnv is read without the namespace so the usual MATRIX_* names work.
type CredentialEnv struct {
	Password    string `envconfig:"MATRIX_PASSWORD"`
	AccessToken string `envconfig:"MATRIX_ACCESS_TOKEN"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"DATA_DIR" default:"./data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"asmith/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
	// Redis settings (used when Type == "redis")
	RedisURL    string `envconfig:"REDIS_URL"`
	RedisPrefix string `envconfig:"REDIS_PREFIX" default:"asmith"`
}

type ServerEnv struct {
	StatusAddr     string   `envconfig:"STATUS_ADDR"`
	AllowedOrigins []string `envconfig:"STATUS_ALLOWED_ORIGINS"`
}

type RelayEnv struct {
	AMQPURL  string `envconfig:"RELAY_AMQP_URL"`
	Exchange string `envconfig:"RELAY_EXCHANGE" default:"asmith.events"`
}

type Env struct {
	BaseEnv
	MatrixEnv
	StorageEnv
	ServerEnv
	RelayEnv
	Credentials CredentialEnv `ignored:"true"`
}

const namespace = "ASMITH"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if err := envconfig.Process("", &env.Credentials); err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (e *Env) Validate() error {
	var errs []error
	if e.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("%s_MAX_RETRIES must be at least 1, got %d", namespace, e.MaxRetries))
	}
	if e.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("%s_RETRY_DELAY must not be negative", namespace))
	}
	switch e.StorageEnv.Type {
	case storage.TypeLocal:
		if e.BaseDir == "" {
			errs = append(errs, fmt.Errorf("%s_DATA_DIR is required for local storage", namespace))
		}
	case storage.TypeS3:
		if e.S3Bucket == "" {
			errs = append(errs, fmt.Errorf("%s_S3_BUCKET is required for s3 storage", namespace))
		}
	case storage.TypeRedis:
		if e.RedisURL == "" {
			errs = append(errs, fmt.Errorf("%s_REDIS_URL is required for redis storage", namespace))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage type %q", e.StorageEnv.Type))
	}
	return errors.Join(errs...)
}

// ValidateMatrix checks what the bot needs before connecting. A persisted
// session can stand in for the password, so only the homeserver and some
// identity are required here.
func (e *Env) ValidateMatrix() error {
	if e.Homeserver == "" {
		return fmt.Errorf("%s_HOMESERVER is required", namespace)
	}
	if e.Credentials.AccessToken == "" && e.UserID == "" {
		return fmt.Errorf("%s_USER_ID or MATRIX_ACCESS_TOKEN is required", namespace)
	}
	return nil
}
