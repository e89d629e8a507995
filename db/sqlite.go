package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteDocuments keeps documents as rows of a single table.
type SQLiteDocuments struct {
	db *sql.DB
}

func OpenSQLite(dataSourceName string) (*SQLiteDocuments, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, err
	}
	// one connection, so ":memory:" databases are shared and writes never
	// hit SQLITE_BUSY
	db.SetMaxOpenConns(1)

	createTables := `
	CREATE TABLE IF NOT EXISTS documents (
		key TEXT PRIMARY KEY,
		body BLOB NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.Exec(createTables); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	return &SQLiteDocuments{db: db}, nil
}

func (d *SQLiteDocuments) Read(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := d.db.QueryRowContext(ctx, "SELECT body FROM documents WHERE key = ?", key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return body, nil
}

func (d *SQLiteDocuments) Write(ctx context.Context, key string, data []byte) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO documents (key, body, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		key, data)
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (d *SQLiteDocuments) Close() error {
	return d.db.Close()
}
