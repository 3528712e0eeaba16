package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/pimsync/internal/pgsql"
)

// PostgresBackend stores entries in a (folder, name, body, updated_at) table.
type PostgresBackend struct {
	pool  pgsql.Pool
	table string
}

// NewPostgresBackend creates a backend over table. Call EnsureSchema before first use.
func NewPostgresBackend(pool pgsql.Pool, table string) *PostgresBackend {
	return &PostgresBackend{pool: pool, table: pgsql.SanitizeIdentifier(table)}
}

// EnsureSchema creates the entry table when missing.
func (b *PostgresBackend) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	folder TEXT NOT NULL,
	name TEXT NOT NULL,
	body TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (folder, name)
)`, b.table)
	if _, err := b.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create cache table: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Read(ctx context.Context, folder, name string) ([]byte, error) {
	query := fmt.Sprintf("SELECT body FROM %s WHERE folder = $1 AND name = $2", b.table)
	var body string
	if err := b.pool.QueryRow(ctx, query, folder, name).Scan(&body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s/%s: %w", folder, name, err)
	}
	return []byte(body), nil
}

func (b *PostgresBackend) Write(ctx context.Context, folder, name string, body []byte) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (folder, name, body, updated_at) VALUES ($1, $2, $3, now())
			ON CONFLICT (folder, name) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
		b.table,
	)
	if _, err := b.pool.Exec(ctx, query, folder, name, string(body)); err != nil {
		return fmt.Errorf("write %s/%s: %w", folder, name, err)
	}
	return nil
}

func (b *PostgresBackend) Rename(ctx context.Context, folder, from, to string) error {
	if err := b.Delete(ctx, folder, to); err != nil {
		return err
	}
	query := fmt.Sprintf("UPDATE %s SET name = $3, updated_at = now() WHERE folder = $1 AND name = $2", b.table)
	tag, err := b.pool.Exec(ctx, query, folder, from, to)
	if err != nil {
		return fmt.Errorf("rename %s/%s: %w", folder, from, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (b *PostgresBackend) Delete(ctx context.Context, folder, name string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE folder = $1 AND name = $2", b.table)
	if _, err := b.pool.Exec(ctx, query, folder, name); err != nil {
		return fmt.Errorf("delete %s/%s: %w", folder, name, err)
	}
	return nil
}

func (b *PostgresBackend) DeletePrefix(ctx context.Context, folder string) error {
	var err error
	if folder == "" {
		_, err = b.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s", b.table))
	} else {
		query := fmt.Sprintf(`DELETE FROM %s WHERE folder = $1 OR folder LIKE $2 ESCAPE '\'`, b.table)
		_, err = b.pool.Exec(ctx, query, folder, pgsql.EscapeLike(folder)+"/%")
	}
	if err != nil {
		return fmt.Errorf("delete folder %s: %w", folder, err)
	}
	return nil
}

func (b *PostgresBackend) List(ctx context.Context, folder string) ([]string, error) {
	query := fmt.Sprintf("SELECT name FROM %s WHERE folder = $1 ORDER BY name", b.table)
	rows, err := b.pool.Query(ctx, query, folder)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", folder, err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", folder, err)
	}
	return names, nil
}

// Ping checks the pool
func (b *PostgresBackend) Ping(ctx context.Context) error {
	return pgsql.HealthCheck(ctx, b.pool, 0)
}
