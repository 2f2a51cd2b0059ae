// Package schema creates the tables the repositories expect. Every statement is idempotent.
package schema

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jmoiron/sqlx"
)

//go:embed schema.sql
var DDL string

// Apply runs the DDL in a single transaction.
func Apply(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, DDL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return tx.Commit()
}
