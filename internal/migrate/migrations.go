package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// ErrSchemaTooNew means the workspace was migrated by a newer sl binary.
var ErrSchemaTooNew = errors.New("database schema is newer than this binary")

// Migration is one embedded schema step, versioned by its NNN_ filename prefix.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
}

// State compares the workspace schema with the embedded migrations.
type State struct {
	Current int `json:"current"`
	Latest  int `json:"latest"`
	Applied int `json:"applied"`
}

func loadMigrations() ([]Migration, error) {
	files, err := fs.ReadDir(migrationsFS, "sql")
	if err != nil {
		return nil, err
	}
	var migrations []Migration
	seen := map[int]string{}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		var v int
		if _, err := fmt.Sscanf(f.Name(), "%d_", &v); err != nil {
			return nil, fmt.Errorf("invalid migration filename %s: %w", f.Name(), err)
		}
		if prev, dup := seen[v]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", prev, f.Name(), v)
		}
		seen[v] = f.Name()
		data, err := migrationsFS.ReadFile("sql/" + f.Name())
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, Migration{Version: v, Name: f.Name(), UpSQL: string(data)})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

func latest(migrations []Migration) int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}

// Migrate applies embedded migrations in order.
func Migrate(db *sql.DB) error {
	_, err := Apply(context.Background(), db)
	return err
}

// Apply brings the schema up to date in one transaction and reports what it
// did. A schema newer than the embedded migrations is left untouched.
func Apply(ctx context.Context, db *sql.DB) (State, error) {
	migrations, err := loadMigrations()
	if err != nil {
		return State{}, err
	}
	st := State{Latest: latest(migrations)}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return st, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL);`); err != nil {
		return st, fmt.Errorf("create schema_version: %w", err)
	}
	err = tx.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&st.Current)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return st, fmt.Errorf("init schema_version: %w", err)
		}
	} else if err != nil {
		return st, fmt.Errorf("read schema_version: %w", err)
	}
	if st.Current > st.Latest {
		return st, fmt.Errorf("%w: version %d, binary knows %d", ErrSchemaTooNew, st.Current, st.Latest)
	}

	for _, m := range migrations {
		if m.Version <= st.Current {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			return st, fmt.Errorf("migration %s: %w", m.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE schema_version SET version=?`, m.Version); err != nil {
			return st, fmt.Errorf("update schema_version: %w", err)
		}
		st.Current = m.Version
		st.Applied++
	}
	if err := tx.Commit(); err != nil {
		return st, err
	}
	return st, nil
}
