package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/thumbsmith/thumbsmith/internal/domain"
)

const requestSchemaSQL = `
CREATE TABLE IF NOT EXISTS thumbnail_requests (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	script TEXT NOT NULL,
	aspect_ratio TEXT NOT NULL,
	count INTEGER NOT NULL,
	image_path TEXT NOT NULL,
	webhook_url TEXT NOT NULL DEFAULT '',
	variations JSONB NOT NULL DEFAULT '[]',
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

type PostgresRequestStore struct {
	db *sql.DB
}

func NewPostgresRequestStore(ctx context.Context, dsn string) (*PostgresRequestStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresRequestStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresRequestStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, requestSchemaSQL); err != nil {
		return fmt.Errorf("ensure requests schema: %w", err)
	}
	return nil
}

func (s *PostgresRequestStore) Close() error {
	return s.db.Close()
}

func (s *PostgresRequestStore) Create(ctx context.Context, req domain.Request) error {
	variationsJSON, err := json.Marshal(req.Variations)
	if err != nil {
		return fmt.Errorf("marshal variations: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO thumbnail_requests
		 (id, status, script, aspect_ratio, count, image_path, webhook_url, variations, error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		req.ID,
		req.Status,
		req.Script,
		string(req.AspectRatio),
		req.Count,
		req.ImagePath,
		req.WebhookURL,
		variationsJSON,
		req.Error,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}

	return nil
}

func (s *PostgresRequestStore) Get(ctx context.Context, id string) (domain.Request, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, status, script, aspect_ratio, count, image_path, webhook_url, variations, error, created_at, updated_at
		 FROM thumbnail_requests
		 WHERE id = $1`,
		id,
	)

	var (
		req            domain.Request
		aspectRatio    string
		variationsJSON []byte
	)
	if err := row.Scan(
		&req.ID,
		&req.Status,
		&req.Script,
		&aspectRatio,
		&req.Count,
		&req.ImagePath,
		&req.WebhookURL,
		&variationsJSON,
		&req.Error,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.Request{}, false, nil
		}
		return domain.Request{}, false, fmt.Errorf("query request: %w", err)
	}

	req.AspectRatio = domain.AspectRatio(aspectRatio)
	if err := json.Unmarshal(variationsJSON, &req.Variations); err != nil {
		return domain.Request{}, false, fmt.Errorf("unmarshal variations: %w", err)
	}

	return req, true, nil
}

func (s *PostgresRequestStore) UpdateStatus(ctx context.Context, id, status string) (domain.Request, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE thumbnail_requests
		 SET status = $1, updated_at = $2
		 WHERE id = $3`,
		status,
		now,
		id,
	)
	if err != nil {
		return domain.Request{}, fmt.Errorf("update request status: %w", err)
	}

	return s.mustGet(ctx, id)
}

func (s *PostgresRequestStore) SetResult(ctx context.Context, id, status string, variations []domain.Variation, errMsg string) (domain.Request, error) {
	variationsJSON, err := json.Marshal(variations)
	if err != nil {
		return domain.Request{}, fmt.Errorf("marshal variations: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE thumbnail_requests
		 SET status = $1, variations = $2, error = $3, updated_at = $4
		 WHERE id = $5`,
		status,
		variationsJSON,
		errMsg,
		now,
		id,
	)
	if err != nil {
		return domain.Request{}, fmt.Errorf("update request result: %w", err)
	}

	return s.mustGet(ctx, id)
}

func (s *PostgresRequestStore) mustGet(ctx context.Context, id string) (domain.Request, error) {
	req, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.Request{}, err
	}
	if !ok {
		return domain.Request{}, ErrRequestNotFound
	}
	return req, nil
}
