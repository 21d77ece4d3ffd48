// Package postgres provides a PostgreSQL-backed implementation of
// store.Store, backed by a single objects table. Useful when a deployment
// already runs Postgres and wants the object tree in the same place as the
// rest of its data.
package postgres

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gillohner/pubky-tools/internal/errs"
	"github.com/gillohner/pubky-tools/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQL SQLSTATE error codes (store-relevant only)
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrConnectionFailure = "08006"
	pgErrInsufficientPriv  = "42501"
	pgErrUndefinedTable    = "42P01"
)

// Driver is a PostgreSQL implementation of store.Store backed by pgxpool.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL using the provided Config and returns a
// Driver. It ensures the objects table exists and pings before returning.
func New(ctx context.Context, cfg *store.Config) (*Driver, error) {
	if cfg.DSN == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "postgres DSN is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid DSN", err)
	}
	if cfg.RequestTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.RequestTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindNetworkFailure, "failed to create connection pool", err)
	}

	d := &Driver{pool: pool}

	if err := d.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := d.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return d, nil
}

// EnsureSchema creates the objects table when it does not exist yet.
func (d *Driver) EnsureSchema(ctx context.Context) error {
	const q = `
		CREATE TABLE IF NOT EXISTS objects (
			key         text PRIMARY KEY,
			value       bytea NOT NULL,
			modified_at timestamptz NOT NULL DEFAULT now()
		)`

	if _, err := d.pool.Exec(ctx, q); err != nil {
		return mapError(err, "failed to ensure schema")
	}
	return nil
}

// --- store.Store implementation ---

// Ping verifies the database is reachable.
func (d *Driver) Ping(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close drains the connection pool.
func (d *Driver) Close() error {
	d.pool.Close()
	return nil
}

// Get returns the bytes stored at key.
func (d *Driver) Get(ctx context.Context, key string) ([]byte, error) {
	const q = `SELECT value FROM objects WHERE key = $1`

	var value []byte
	if err := d.pool.QueryRow(ctx, q, key).Scan(&value); err != nil {
		return nil, mapError(err, "failed to get object")
	}
	return value, nil
}

// Put stores value at key, overwriting any previous object.
func (d *Driver) Put(ctx context.Context, key string, value []byte) error {
	const q = `
		INSERT INTO objects (key, value, modified_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value, modified_at = now()`

	if _, err := d.pool.Exec(ctx, q, key, value); err != nil {
		return mapError(err, "failed to put object")
	}
	return nil
}

// Delete removes the object at key.
func (d *Driver) Delete(ctx context.Context, key string) error {
	const q = `DELETE FROM objects WHERE key = $1`

	tag, err := d.pool.Exec(ctx, q, key)
	if err != nil {
		return mapError(err, "failed to delete object")
	}
	if tag.RowsAffected() == 0 {
		return errs.Newf(errs.ErrKindNotFound, "no object at %s", key)
	}
	return nil
}

// likeEscaper neutralizes LIKE metacharacters so a prefix matches
// literally. Keys routinely contain '_', which LIKE would otherwise
// treat as a single-character wildcard.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// List returns the full keys stored under prefix in key order.
func (d *Driver) List(ctx context.Context, prefix string, opts store.ListOptions) ([]string, error) {
	q := `SELECT key FROM objects WHERE key LIKE $1 || '%'`
	args := []any{likeEscaper.Replace(prefix)}

	if opts.Cursor != "" {
		if opts.Reverse {
			q += ` AND key < $2`
		} else {
			q += ` AND key > $2`
		}
		args = append(args, opts.Cursor)
	}

	if opts.Reverse {
		q += ` ORDER BY key DESC`
	} else {
		q += ` ORDER BY key ASC`
	}

	if opts.Limit > 0 {
		q += ` LIMIT ` + strconv.Itoa(opts.Limit)
	}

	rows, err := d.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, mapError(err, "failed to list objects")
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, mapError(err, "failed to scan key")
		}
		result = append(result, key)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating keys")
	}
	return result, nil
}

// --- internals ---

// mapError converts a pgx error into a typed error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrConnectionFailure:
			return errs.Wrap(errs.ErrKindNetworkFailure, msg, err)
		case pgErrInsufficientPriv:
			return errs.Wrap(errs.ErrKindUnauthorized, msg, err)
		case pgErrUndefinedTable:
			return errs.Wrap(errs.ErrKindValidation, msg, err)
		}
	}

	return errs.Wrap(errs.ErrKindNetworkFailure, msg, err)
}
