package sqlite

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const (
	migrationTable = "schema_migrations"
	upMarker       = "-- +migrate Up"
	downMarker     = "-- +migrate Down"
)

// applyMigrations runs every embedded migration at most once, each in its own transaction.
func applyMigrations(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		var n int
		if err := db.NewSelect().
			TableExpr(migrationTable).
			ColumnExpr("count(*)").
			Where("name = ?", name).
			Scan(ctx, &n); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if n > 0 {
			continue
		}
		content, err := fs.ReadFile(migrationFS, "migrations/"+name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		up := upSection(string(content))
		err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if strings.TrimSpace(up) != "" {
				if _, err := tx.ExecContext(ctx, up); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO "+migrationTable+" (name, applied_at) VALUES (?, ?)",
				name, time.Now().UTC().UnixMilli())
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

func upSection(content string) string {
	i := strings.Index(content, upMarker)
	if i == -1 {
		return content
	}
	content = content[i+len(upMarker):]
	if j := strings.Index(content, downMarker); j != -1 {
		content = content[:j]
	}
	return content
}
