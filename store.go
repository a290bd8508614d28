package main

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the sqlite file backing the document store. Each logical
// namespace holds one JSON document plus an integer schema version.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		namespace  TEXT PRIMARY KEY,
		version    INTEGER NOT NULL,
		body       TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}

	return db, nil
}

// SaveDocument upserts the whole document for a namespace in one statement.
func SaveDocument(db *sql.DB, namespace string, version int, body []byte) error {
	_, err := db.Exec(
		`INSERT INTO documents (namespace, version, body, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(namespace) DO UPDATE SET
		   version = excluded.version,
		   body = excluded.body,
		   updated_at = CURRENT_TIMESTAMP`,
		namespace, version, string(body),
	)
	if err != nil {
		return fmt.Errorf("save document %s: %w", namespace, err)
	}
	return nil
}

// LoadDocument returns the stored body and version for a namespace.
// ok is false when the namespace has never been saved.
func LoadDocument(db *sql.DB, namespace string) ([]byte, int, bool, error) {
	var body string
	var version int
	err := db.QueryRow(
		`SELECT body, version FROM documents WHERE namespace = ?`, namespace,
	).Scan(&body, &version)
	if err == sql.ErrNoRows {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("load document %s: %w", namespace, err)
	}
	return []byte(body), version, true, nil
}

// DeleteDocument removes a namespace. Missing rows are a no-op.
func DeleteDocument(db *sql.DB, namespace string) error {
	_, err := db.Exec(`DELETE FROM documents WHERE namespace = ?`, namespace)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", namespace, err)
	}
	return nil
}
