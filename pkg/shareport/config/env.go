package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// envConfig is the flat environment mapping read by cleanenv.
//
// Database:
//
//	DATABASE_URL - "memory" (default) or a postgres:// connection string
//
// Storage:
//
//	STORAGE_BACKEND - "memory" (default), "fs", or "s3"
//	FS_BASE_DIR     - base directory for fs storage
//	AWS_*           - credentials and bucket for s3 storage
//
// Everything else has a working default.
type envConfig struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`

	DatabaseURL string `env:"DATABASE_URL" env-default:""`

	StorageBackend string `env:"STORAGE_BACKEND" env-default:"memory"`
	FSBaseDir      string `env:"FS_BASE_DIR" env-default:"./data/uploads"`

	S3Region          string `env:"AWS_S3_REGION" env-default:"us-east-1"`
	S3Bucket          string `env:"AWS_S3_BUCKET" env-default:""`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID" env-default:""`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" env-default:""`
	S3Endpoint        string `env:"AWS_S3_ENDPOINT" env-default:""`
	S3UsePathStyle    bool   `env:"AWS_S3_USE_PATH_STYLE" env-default:"false"`
	S3CreateBucket    bool   `env:"AWS_S3_CREATE_BUCKET" env-default:"false"`

	SMTPHost     string `env:"SMTP_HOST" env-default:""`
	SMTPPort     int    `env:"SMTP_PORT" env-default:"587"`
	SMTPUsername string `env:"SMTP_USERNAME" env-default:""`
	SMTPPassword string `env:"SMTP_PASSWORD" env-default:""`
	SMTPFrom     string `env:"SMTP_FROM" env-default:""`
	SMTPFromName string `env:"SMTP_FROM_NAME" env-default:""`
	SMTPAdminTo  string `env:"SMTP_ADMIN_TO" env-default:""`

	AdminSecret string `env:"ADMIN_JWT_SECRET" env-default:""`
	BaseURL     string `env:"PUBLIC_BASE_URL" env-default:""`

	DownloadsPerMinute int           `env:"DOWNLOADS_PER_MINUTE" env-default:"5"`
	PresignPutTTL      time.Duration `env:"PRESIGN_PUT_TTL" env-default:"15m"`
	PresignGetTTL      time.Duration `env:"PRESIGN_GET_TTL" env-default:"1h"`
	SweepInterval      time.Duration `env:"SWEEP_INTERVAL" env-default:"1h"`
	OrphanGrace        time.Duration `env:"ORPHAN_GRACE" env-default:"24h"`
}

// WithEnv applies environment variable overrides
func WithEnv() Option {
	return func(c *ServerConfig) error {
		var e envConfig
		if err := cleanenv.ReadEnv(&e); err != nil {
			return fmt.Errorf("read environment: %w", err)
		}

		c.Port = e.Port
		c.Environment = e.Environment

		switch {
		case e.DatabaseURL == "" || e.DatabaseURL == "memory":
			c.DatabaseType = "memory"
			c.DatabaseURL = ""
		case strings.HasPrefix(e.DatabaseURL, "postgres://"),
			strings.HasPrefix(e.DatabaseURL, "postgresql://"):
			c.DatabaseType = "postgres"
			c.DatabaseURL = e.DatabaseURL
		default:
			return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgres://...')", e.DatabaseURL)
		}

		c.StorageBackend = e.StorageBackend
		c.FSBaseDir = e.FSBaseDir
		c.S3 = S3Settings{
			Region:          e.S3Region,
			Bucket:          e.S3Bucket,
			AccessKeyID:     e.S3AccessKeyID,
			SecretAccessKey: e.S3SecretAccessKey,
			Endpoint:        e.S3Endpoint,
			UsePathStyle:    e.S3UsePathStyle,
			CreateBucket:    e.S3CreateBucket,
		}

		c.SMTP = SMTPSettings{
			Host:     e.SMTPHost,
			Port:     e.SMTPPort,
			Username: e.SMTPUsername,
			Password: e.SMTPPassword,
			From:     e.SMTPFrom,
			FromName: e.SMTPFromName,
			AdminTo:  e.SMTPAdminTo,
		}

		c.AdminSecret = e.AdminSecret
		c.BaseURL = e.BaseURL
		c.DownloadsPerMinute = e.DownloadsPerMinute
		c.PresignPutTTL = e.PresignPutTTL
		c.PresignGetTTL = e.PresignGetTTL
		c.SweepInterval = e.SweepInterval
		c.OrphanGrace = e.OrphanGrace

		return nil
	}
}
