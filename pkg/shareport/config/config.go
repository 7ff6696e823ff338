// Package config builds a running delivery service from declarative
// settings. Defaults give a fully in-memory stack suitable for tests and
// local development; environment overrides select postgres and S3 for
// production.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shareport/shareport/pkg/shareport"
	"github.com/shareport/shareport/pkg/shareport/notify"
	repomemory "github.com/shareport/shareport/pkg/shareport/repo/memory"
	repopg "github.com/shareport/shareport/pkg/shareport/repo/postgres"
	fsstorage "github.com/shareport/shareport/pkg/shareport/storage/fs"
	memorystorage "github.com/shareport/shareport/pkg/shareport/storage/memory"
	s3storage "github.com/shareport/shareport/pkg/shareport/storage/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top
// of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:               "8080",
		Environment:        "development",
		DatabaseType:       "memory",
		StorageBackend:     "memory",
		FSBaseDir:          "./data/uploads",
		DownloadsPerMinute: 5,
		PresignPutTTL:      15 * time.Minute,
		PresignGetTTL:      time.Hour,
		SweepInterval:      time.Hour,
		OrphanGrace:        24 * time.Hour,
	}
}

// ServerConfig represents server configuration for the delivery service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"

	// Storage configuration
	StorageBackend string // "memory", "fs", "s3"
	FSBaseDir      string
	S3             S3Settings

	// Outbound email; the notifier stays a no-op when Host is empty
	SMTP SMTPSettings

	// Admin token verification secret
	AdminSecret string

	// Public base URL used in gallery links
	BaseURL string

	// Download throttling and presign lifetimes
	DownloadsPerMinute int
	PresignPutTTL      time.Duration
	PresignGetTTL      time.Duration

	// Lifecycle sweep cadence
	SweepInterval time.Duration
	OrphanGrace   time.Duration
}

// S3Settings holds the S3-compatible blob store configuration
type S3Settings struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	UsePathStyle    bool
	CreateBucket    bool
}

// SMTPSettings holds the outbound email configuration
type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	AdminTo  string
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}
	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	switch c.StorageBackend {
	case "memory":
	case "fs":
		if c.FSBaseDir == "" {
			return errors.New("fs base directory is required for fs storage")
		}
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("s3 bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s", c.StorageBackend)
	}

	if c.DownloadsPerMinute < 0 {
		return errors.New("downloads per minute cannot be negative")
	}

	if c.Environment == "production" && c.AdminSecret == "" {
		return errors.New("admin secret is required in production")
	}

	return nil
}

// BuildService creates a Service instance from the server configuration
func (c *ServerConfig) BuildService(logger *slog.Logger) (shareport.Service, error) {
	repo, err := c.BuildRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}

	store, err := c.BuildStorageBackend()
	if err != nil {
		return nil, fmt.Errorf("failed to build storage backend: %w", err)
	}

	options := []shareport.Option{
		shareport.WithRepository(repo),
		shareport.WithBlobStore(store),
		shareport.WithLogger(logger),
		shareport.WithPresignPutTTL(c.PresignPutTTL),
		shareport.WithPresignGetTTL(c.PresignGetTTL),
	}

	notifier, err := c.BuildNotifier()
	if err != nil {
		return nil, fmt.Errorf("failed to build notifier: %w", err)
	}
	if notifier != nil {
		options = append(options, shareport.WithNotifier(notifier))
	}

	return shareport.New(options...)
}

// BuildRepository creates a MetadataRepository based on the configuration
func (c *ServerConfig) BuildRepository() (shareport.MetadataRepository, error) {
	switch c.DatabaseType {
	case "memory":
		return repomemory.New(), nil
	case "postgres":
		pool, err := pgxpool.New(context.Background(), c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// BuildStorageBackend creates a BlobStore based on the configuration
func (c *ServerConfig) BuildStorageBackend() (shareport.BlobStore, error) {
	switch c.StorageBackend {
	case "memory":
		return memorystorage.New(), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{BaseDir: c.FSBaseDir})
	case "s3":
		return s3storage.New(s3storage.Config{
			Region:                 c.S3.Region,
			Bucket:                 c.S3.Bucket,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle,
			CreateBucketIfNotExist: c.S3.CreateBucket,
		})
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", c.StorageBackend)
	}
}

// BuildNotifier creates the email notifier, or nil when SMTP is not
// configured.
func (c *ServerConfig) BuildNotifier() (shareport.Notifier, error) {
	if c.SMTP.Host == "" {
		return nil, nil
	}
	return notify.New(notify.Config{
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.SMTP.From,
		FromName: c.SMTP.FromName,
		AdminTo:  c.SMTP.AdminTo,
		BaseURL:  c.BaseURL,
	})
}

// PingPostgres verifies connectivity to Postgres before the server starts
// taking traffic.
func PingPostgres(databaseURL string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
