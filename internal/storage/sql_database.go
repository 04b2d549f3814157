package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Registered sql.DB drivers. Callers pick which one backs a SQLDatabase
	// via the driverName they pass to Open; importing both here for their
	// side-effecting driver registration is how database/sql's interface
	// plugs into a concrete driver in the teacher's own cockroach.go.
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// SQLPoolConfig configures the pool backing a SQLDatabase — grounded on the
// teacher's CockroachConfig/DefaultCockroachConfig.
type SQLPoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultSQLPoolConfig mirrors the teacher's production pool defaults.
func DefaultSQLPoolConfig() SQLPoolConfig {
	return SQLPoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// SQLDatabase is a Database backed by database/sql, usable with either the
// "postgres" driver (lib/pq) for a shared deployment or "sqlite"
// (modernc.org/sqlite) for a single-process one. Schema:
//
//	CREATE TABLE dexto_records (
//	    namespace  TEXT NOT NULL,
//	    key        TEXT NOT NULL,
//	    value      BYTEA NOT NULL,   -- BLOB under sqlite
//	    updated_at TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (namespace, key)
//	);
type SQLDatabase struct {
	db         *sql.DB
	driverName string
}

// OpenSQLDatabase opens driverName ("postgres" or "sqlite") against dsn,
// applies pool settings, and pings to fail fast on a bad DSN — the same
// open-then-ping sequence as the teacher's NewCockroachStoresFromDSN.
func OpenSQLDatabase(driverName, dsn string, config SQLPoolConfig) (*SQLDatabase, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	timeout := config.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLDatabase{db: db, driverName: driverName}, nil
}

func (d *SQLDatabase) placeholder(n int) string {
	if d.driverName == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (d *SQLDatabase) Put(ctx context.Context, namespace, key string, value []byte) error {
	query := fmt.Sprintf(
		`INSERT INTO dexto_records (namespace, key, value, updated_at) VALUES (%s,%s,%s,%s)
		 ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		d.placeholder(1), d.placeholder(2), d.placeholder(3), d.placeholder(4))
	_, err := d.db.ExecContext(ctx, query, namespace, key, value, time.Now())
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (d *SQLDatabase) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	query := fmt.Sprintf(`SELECT value FROM dexto_records WHERE namespace = %s AND key = %s`,
		d.placeholder(1), d.placeholder(2))
	row := d.db.QueryRowContext(ctx, query, namespace, key)
	var value []byte
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w", namespace, key, err)
	}
	return value, nil
}

func (d *SQLDatabase) Delete(ctx context.Context, namespace, key string) error {
	query := fmt.Sprintf(`DELETE FROM dexto_records WHERE namespace = %s AND key = %s`,
		d.placeholder(1), d.placeholder(2))
	res, err := d.db.ExecContext(ctx, query, namespace, key)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", namespace, key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *SQLDatabase) List(ctx context.Context, namespace string, limit, offset int) ([]Record, error) {
	query := fmt.Sprintf(`SELECT namespace, key, value, updated_at FROM dexto_records
	                       WHERE namespace = %s ORDER BY key`, d.placeholder(1))
	args := []any{namespace}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %s OFFSET %s", d.placeholder(2), d.placeholder(3))
		args = append(args, limit, offset)
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", namespace, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Namespace, &rec.Key, &rec.Value, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", namespace, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// WithTransaction runs fn against a SQLDatabase bound to a real
// database/sql transaction, committing only if fn returns nil.
func (d *SQLDatabase) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Database) error) error {
	sqlTx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	txDB := &sqlTxDatabase{tx: sqlTx, driverName: d.driverName}
	if err := fn(ctx, txDB); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (d *SQLDatabase) Close() error { return d.db.Close() }

// sqlTxDatabase implements Database over a single in-flight *sql.Tx so
// WithTransaction's fn can use the same Put/Get/Delete/List calls as
// outside a transaction.
type sqlTxDatabase struct {
	tx         *sql.Tx
	driverName string
}

func (d *sqlTxDatabase) placeholder(n int) string {
	if d.driverName == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (d *sqlTxDatabase) Put(ctx context.Context, namespace, key string, value []byte) error {
	query := fmt.Sprintf(
		`INSERT INTO dexto_records (namespace, key, value, updated_at) VALUES (%s,%s,%s,%s)
		 ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		d.placeholder(1), d.placeholder(2), d.placeholder(3), d.placeholder(4))
	_, err := d.tx.ExecContext(ctx, query, namespace, key, value, time.Now())
	return err
}

func (d *sqlTxDatabase) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	query := fmt.Sprintf(`SELECT value FROM dexto_records WHERE namespace = %s AND key = %s`,
		d.placeholder(1), d.placeholder(2))
	row := d.tx.QueryRowContext(ctx, query, namespace, key)
	var value []byte
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

func (d *sqlTxDatabase) Delete(ctx context.Context, namespace, key string) error {
	query := fmt.Sprintf(`DELETE FROM dexto_records WHERE namespace = %s AND key = %s`,
		d.placeholder(1), d.placeholder(2))
	res, err := d.tx.ExecContext(ctx, query, namespace, key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *sqlTxDatabase) List(ctx context.Context, namespace string, limit, offset int) ([]Record, error) {
	query := fmt.Sprintf(`SELECT namespace, key, value, updated_at FROM dexto_records
	                       WHERE namespace = %s ORDER BY key`, d.placeholder(1))
	rows, err := d.tx.QueryContext(ctx, query, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Namespace, &rec.Key, &rec.Value, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return paginate(records, limit, offset), rows.Err()
}

func (d *sqlTxDatabase) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Database) error) error {
	return fn(ctx, d)
}

func (d *sqlTxDatabase) Close() error { return nil }
