package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "embed"
)

//go:embed migrations/001_initial_schema.sql
var initialSchema string

// schemaRevision is one numbered step in the database schema history.
// Revisions are applied in order inside a transaction and recorded in the
// schema_version table, so Migrate is idempotent.
type schemaRevision struct {
	version int
	name    string
	script  string
}

var schemaRevisions = []schemaRevision{
	{version: 1, name: "initial_schema", script: initialSchema},
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var applied int
	if err := db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&applied); err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}

	for _, rev := range schemaRevisions {
		if rev.version <= applied {
			continue
		}
		if err := applyRevision(ctx, db, rev); err != nil {
			return err
		}
	}
	return nil
}

func applyRevision(ctx context.Context, db *sql.DB, rev schemaRevision) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin revision %d: %w", rev.version, err)
	}
	defer tx.Rollback()

	for _, stmt := range sqlStatements(rev.script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("revision %d (%s): %w", rev.version, rev.name, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, name) VALUES (?, ?)`, rev.version, rev.name); err != nil {
		return fmt.Errorf("record revision %d: %w", rev.version, err)
	}
	return tx.Commit()
}

// sqlStatements splits an embedded script into executable statements:
// line comments are stripped first, then the script is cut on semicolons.
func sqlStatements(script string) []string {
	var code []string
	for _, line := range strings.Split(script, "\n") {
		if trimmed := strings.TrimSpace(line); strings.HasPrefix(trimmed, "--") {
			continue
		}
		code = append(code, line)
	}

	var stmts []string
	for _, chunk := range strings.Split(strings.Join(code, "\n"), ";") {
		if stmt := strings.TrimSpace(chunk); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}
