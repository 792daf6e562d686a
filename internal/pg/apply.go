package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// ApplyDDL runs the statements of ddl ordered by key. Statements are expected
// to be idempotent; duplicate_object (42710) errors are skipped.
func ApplyDDL(ctx context.Context, db *sql.DB, ddl map[string]string, log zerolog.Logger) error {
	for _, k := range SortedKeys(ddl) {
		sqlText := strings.TrimSpace(ddl[k])
		if sqlText == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, sqlText); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "42710" {
				log.Info().Str("key", k).Str("reason", strings.TrimSpace(pgErr.Message)).Msg("ddl skipped, already exists")
				continue
			}
			return fmt.Errorf("ddl %s: %w", k, err)
		}
		log.Debug().Str("key", k).Msg("ddl applied")
	}
	return nil
}

// SortedKeys returns the statement keys of ddl in apply order.
func SortedKeys(ddl map[string]string) []string {
	keys := make([]string, 0, len(ddl))
	for k := range ddl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ExecFile runs a script of statements, used by the seed command.
func ExecFile(ctx context.Context, db *sql.DB, name, script string) error {
	if strings.TrimSpace(script) == "" {
		return nil
	}
	if _, err := db.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("seed %s: %w", name, err)
	}
	return nil
}
