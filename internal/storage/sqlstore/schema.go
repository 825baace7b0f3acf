package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ApplySchema executes each ";"-separated statement of schema in order.
// Statements must be idempotent (CREATE ... IF NOT EXISTS).
func ApplySchema(ctx context.Context, db *sql.DB, schema string) error {
	if db == nil {
		return fmt.Errorf("sql db is required")
	}
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
