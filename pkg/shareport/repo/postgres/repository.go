package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shareport/shareport/pkg/shareport"
)

// DBTX is an interface that allows us to use either a database connection
// or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements shareport.MetadataRepository using PostgreSQL.
// One row per slug; files and ratings are JSONB documents.
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with a connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

var _ shareport.MetadataRepository = (*Repository)(nil)

// Schema is the table definition this repository expects.
const Schema = `
CREATE TABLE IF NOT EXISTS uploads (
    slug              TEXT PRIMARY KEY,
    title             TEXT NOT NULL DEFAULT '',
    created_at        TIMESTAMPTZ NOT NULL,
    expires_at        TIMESTAMPTZ NOT NULL,
    files             JSONB NOT NULL,
    downloads         BIGINT NOT NULL DEFAULT 0,
    preview_image_key TEXT NOT NULL DEFAULT '',
    client_email      TEXT NOT NULL DEFAULT '',
    custom_message    TEXT NOT NULL DEFAULT '',
    ratings           JSONB NOT NULL DEFAULT '{}'::jsonb,
    ratings_enabled   BOOLEAN NOT NULL DEFAULT FALSE,
    CHECK (expires_at > created_at)
);
CREATE INDEX IF NOT EXISTS uploads_created_at_idx ON uploads (created_at DESC);
`

func (r *Repository) Get(ctx context.Context, slug string) (*shareport.UploadMetadata, error) {
	query := `
        SELECT slug, title, created_at, expires_at, files, downloads,
               preview_image_key, client_email, custom_message, ratings, ratings_enabled
        FROM uploads WHERE slug = $1`

	var meta shareport.UploadMetadata
	var filesJSON, ratingsJSON []byte
	err := r.db.QueryRow(ctx, query, slug).Scan(
		&meta.Slug, &meta.Title, &meta.CreatedAt, &meta.ExpiresAt,
		&filesJSON, &meta.Downloads, &meta.PreviewImageKey,
		&meta.ClientEmail, &meta.CustomMessage, &ratingsJSON, &meta.RatingsEnabled)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shareport.ErrUploadNotFound
		}
		return nil, fmt.Errorf("get upload %s: %w", slug, err)
	}

	if err := json.Unmarshal(filesJSON, &meta.Files); err != nil {
		return nil, fmt.Errorf("decode files for %s: %w", slug, err)
	}
	if len(ratingsJSON) > 0 {
		if err := json.Unmarshal(ratingsJSON, &meta.Ratings); err != nil {
			return nil, fmt.Errorf("decode ratings for %s: %w", slug, err)
		}
	}
	if len(meta.Ratings) == 0 {
		meta.Ratings = nil
	}

	return &meta, nil
}

func (r *Repository) Save(ctx context.Context, meta *shareport.UploadMetadata) error {
	filesJSON, err := json.Marshal(meta.Files)
	if err != nil {
		return fmt.Errorf("encode files for %s: %w", meta.Slug, err)
	}
	ratings := meta.Ratings
	if ratings == nil {
		ratings = map[string]bool{}
	}
	ratingsJSON, err := json.Marshal(ratings)
	if err != nil {
		return fmt.Errorf("encode ratings for %s: %w", meta.Slug, err)
	}

	query := `
        INSERT INTO uploads (
            slug, title, created_at, expires_at, files, downloads,
            preview_image_key, client_email, custom_message, ratings, ratings_enabled
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (slug) DO UPDATE SET
            title = EXCLUDED.title,
            expires_at = EXCLUDED.expires_at,
            files = EXCLUDED.files,
            preview_image_key = EXCLUDED.preview_image_key,
            client_email = EXCLUDED.client_email,
            custom_message = EXCLUDED.custom_message,
            ratings = EXCLUDED.ratings,
            ratings_enabled = EXCLUDED.ratings_enabled`

	_, err = r.db.Exec(ctx, query,
		meta.Slug, meta.Title, meta.CreatedAt, meta.ExpiresAt, filesJSON,
		meta.Downloads, meta.PreviewImageKey, meta.ClientEmail,
		meta.CustomMessage, ratingsJSON, meta.RatingsEnabled)
	if err != nil {
		return handlePostgresError("save upload", err)
	}

	return nil
}

func (r *Repository) Delete(ctx context.Context, slug string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM uploads WHERE slug = $1`, slug)
	if err != nil {
		return handlePostgresError("delete upload", err)
	}
	if tag.RowsAffected() == 0 {
		return shareport.ErrUploadNotFound
	}
	return nil
}

func (r *Repository) List(ctx context.Context) ([]*shareport.UploadMetadata, error) {
	query := `
        SELECT slug, title, created_at, expires_at, files, downloads,
               preview_image_key, client_email, custom_message, ratings, ratings_enabled
        FROM uploads ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, handlePostgresError("list uploads", err)
	}
	defer rows.Close()

	var result []*shareport.UploadMetadata
	for rows.Next() {
		var meta shareport.UploadMetadata
		var filesJSON, ratingsJSON []byte
		if err := rows.Scan(
			&meta.Slug, &meta.Title, &meta.CreatedAt, &meta.ExpiresAt,
			&filesJSON, &meta.Downloads, &meta.PreviewImageKey,
			&meta.ClientEmail, &meta.CustomMessage, &ratingsJSON, &meta.RatingsEnabled); err != nil {
			return nil, fmt.Errorf("scan upload row: %w", err)
		}
		if err := json.Unmarshal(filesJSON, &meta.Files); err != nil {
			return nil, fmt.Errorf("decode files for %s: %w", meta.Slug, err)
		}
		if len(ratingsJSON) > 0 {
			if err := json.Unmarshal(ratingsJSON, &meta.Ratings); err != nil {
				return nil, fmt.Errorf("decode ratings for %s: %w", meta.Slug, err)
			}
		}
		if len(meta.Ratings) == 0 {
			meta.Ratings = nil
		}
		result = append(result, &meta)
	}

	return result, rows.Err()
}

// IncrementDownloads uses a store-native atomic update rather than
// read-modify-write, so concurrent downloads never lose counts.
func (r *Repository) IncrementDownloads(ctx context.Context, slug string) (int64, error) {
	var downloads int64
	err := r.db.QueryRow(ctx,
		`UPDATE uploads SET downloads = downloads + 1 WHERE slug = $1 RETURNING downloads`,
		slug).Scan(&downloads)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shareport.ErrUploadNotFound
		}
		return 0, handlePostgresError("increment downloads", err)
	}
	return downloads, nil
}

// handlePostgresError maps common postgres error codes to readable errors
func handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("upload already exists")
		case "23514": // check_violation
			return fmt.Errorf("invalid upload record: %s", pgErr.ConstraintName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}
