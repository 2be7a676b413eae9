package store

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// Migrate applies the scripts the database has not seen yet, in order, and
// returns the resulting schema version.
//
// PRAGMA user_version records how many scripts have run. Each script runs
// in its own transaction together with the version bump.
func (s *Store) Migrate(ctx context.Context, scripts []string) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	if version > len(scripts) {
		return version, fmt.Errorf("database version %d is newer than the %d known migrations", version, len(scripts))
	}

	for ; version < len(scripts); version++ {
		if err := s.migrateTo(ctx, version+1, scripts[version]); err != nil {
			return version, err
		}
	}
	return version, nil
}

func (s *Store) migrateTo(ctx context.Context, version int, script string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate to v%d: begin: %w", version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("migrate to v%d: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("migrate to v%d: set user_version: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate to v%d: commit: %w", version, err)
	}
	return nil
}

// LoadMigrations reads every *.sql file of dir in fsys, sorted by name.
func LoadMigrations(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	scripts := make([]string, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		scripts = append(scripts, string(data))
	}
	return scripts, nil
}
