// Package migrations embeds the schema files and applies them in order.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

//go:embed *.up.sql
var files embed.FS

// Files returns the names of the up migrations in apply order.
func Files() ([]string, error) {
	names, err := fs.Glob(files, "*.up.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Apply runs every up migration. Each file is idempotent, so Apply is safe to repeat.
func Apply(ctx context.Context, db *sqlx.DB, logger *slog.Logger) error {
	names, err := Files()
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}

	for _, name := range names {
		data, err := files.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}

		if _, err := db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}

		logger.Info("applied migration", "name", strings.TrimSuffix(name, ".up.sql"))
	}

	return nil
}
