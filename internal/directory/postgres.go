package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
)

const schema = `
CREATE TABLE IF NOT EXISTS identities (
	face_id    TEXT PRIMARY KEY,
	first_name TEXT NOT NULL,
	last_name  TEXT NOT NULL,
	source_key TEXT UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type PostgresDirectory struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

var _ Directory = (*PostgresDirectory)(nil)

func NewPostgresDirectory(ctx context.Context, cfg config.DatabaseConfig, timeout time.Duration) (*PostgresDirectory, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDirectory{pool: pool, timeout: timeout}, nil
}

// Migrate creates the identities table.
func (d *PostgresDirectory) Migrate(ctx context.Context) error {
	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate identities: %w", err)
	}
	return nil
}

func (d *PostgresDirectory) Close() {
	d.pool.Close()
}

func (d *PostgresDirectory) Ping(ctx context.Context) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	if err := d.pool.Ping(ctx); err != nil {
		return backendErr("ping", err)
	}
	return nil
}

func (d *PostgresDirectory) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.timeout)
}

func (d *PostgresDirectory) Lookup(ctx context.Context, faceID string) (*models.Identity, error) {
	return d.get(ctx, "lookup", `WHERE face_id = $1`, faceID)
}

func (d *PostgresDirectory) LookupSource(ctx context.Context, sourceKey string) (*models.Identity, error) {
	return d.get(ctx, "lookup source", `WHERE source_key = $1`, sourceKey)
}

func (d *PostgresDirectory) get(ctx context.Context, op, where string, arg string) (*models.Identity, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	defer observeSince("postgres", op, time.Now())

	id := &models.Identity{}
	var sourceKey *string
	err := d.pool.QueryRow(ctx,
		`SELECT face_id, first_name, last_name, source_key, created_at FROM identities `+where, arg,
	).Scan(&id.FaceID, &id.FirstName, &id.LastName, &sourceKey, &id.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, backendErr(op, err)
	}
	if sourceKey != nil {
		id.SourceKey = *sourceKey
	}
	return id, nil
}

func (d *PostgresDirectory) Register(ctx context.Context, identity models.Identity) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	defer observeSince("postgres", "register", time.Now())

	var sourceKey *string
	if identity.SourceKey != "" {
		sourceKey = &identity.SourceKey
	}

	var createdAt time.Time
	err := d.pool.QueryRow(ctx,
		`INSERT INTO identities (face_id, first_name, last_name, source_key)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT DO NOTHING
		 RETURNING created_at`,
		identity.FaceID, identity.FirstName, identity.LastName, sourceKey,
	).Scan(&createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAlreadyExists
		}
		return backendErr("register", err)
	}
	return nil
}

func observeSince(backend, op string, start time.Time) {
	observability.BackendDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}
