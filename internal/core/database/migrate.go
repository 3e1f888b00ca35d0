package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

//go:embed scripts/*.sql
var migrationFS embed.FS

// SchemaState is what the botwise_meta table says about the database.
type SchemaState struct {
	Exists  bool
	Version int
}

type migration struct {
	version int
	name    string
	sql     string
}

// loadMigrations reads NNNN_name.sql files from dir. Versions must start at 1
// and have no gaps.
func loadMigrations(fsys fs.FS, dir string) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var out []migration
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		prefix, name, ok := strings.Cut(strings.TrimSuffix(e.Name(), ".sql"), "_")
		v, err := strconv.Atoi(prefix)
		if !ok || err != nil || v <= 0 {
			return nil, fmt.Errorf("migration %q: name must look like 0001_name.sql", e.Name())
		}
		body, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		out = append(out, migration{version: v, name: name, sql: string(body)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	for i, m := range out {
		if m.version != i+1 {
			return nil, fmt.Errorf("migration %04d_%s: expected version %d", m.version, m.name, i+1)
		}
	}
	return out, nil
}

func pending(all []migration, current int) []migration {
	for i, m := range all {
		if m.version > current {
			return all[i:]
		}
	}
	return nil
}

func readSchemaState(ctx context.Context, db *sql.DB) (SchemaState, error) {
	var st SchemaState
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
		  SELECT 1 FROM information_schema.tables
		  WHERE table_name = 'botwise_meta'
		)`).Scan(&st.Exists)
	if err != nil {
		return st, fmt.Errorf("meta table check failed: %w", err)
	}
	if !st.Exists {
		return st, nil
	}
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(max(version), 0) FROM botwise_meta`).Scan(&st.Version); err != nil {
		return st, fmt.Errorf("meta version check failed: %w", err)
	}
	return st, nil
}

// Migrate applies every embedded migration newer than the recorded version,
// one transaction each, and returns the resulting state.
func Migrate(ctx context.Context, db *sql.DB, log *zap.Logger) (SchemaState, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	all, err := loadMigrations(migrationFS, "scripts")
	if err != nil {
		return SchemaState{}, err
	}

	st, err := readSchemaState(ctx, db)
	if err != nil {
		return st, err
	}
	log.Info("schema state", zap.Bool("meta_exists", st.Exists), zap.Int("version", st.Version), zap.Int("latest", len(all)))
	if st.Version > len(all) {
		return st, fmt.Errorf("database schema version %d is newer than this build (%d)", st.Version, len(all))
	}

	if !st.Exists {
		if _, err := db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS botwise_meta (
			    version     INT PRIMARY KEY,
			    applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
			)`); err != nil {
			return st, fmt.Errorf("create meta table: %w", err)
		}
		st.Exists = true
	}

	for _, m := range pending(all, st.Version) {
		if err := apply(ctx, db, m); err != nil {
			return st, err
		}
		st.Version = m.version
		log.Info("migration applied", zap.Int("version", m.version), zap.String("name", m.name))
	}
	return st, nil
}

func apply(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec migration %04d_%s: %w", m.version, m.name, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO botwise_meta (version) VALUES ($1) ON CONFLICT (version) DO NOTHING`, m.version); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %d: %w", m.version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.version, err)
	}
	return nil
}
