package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLite is a Registry backed by a SQLite table (modernc.org/sqlite, CGO-free).
type SQLite struct {
	path string
	db   *sql.DB
}

// OpenSQLite opens or creates the database at path. ":memory:" is accepted.
func OpenSQLite(path string) (*SQLite, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("registry: empty sqlite path")
	}
	if p != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			return nil, fmt.Errorf("create registry dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if p == ":memory:" {
		// each pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	// busy timeout helps when status and start race on the file
	_, _ = db.Exec("PRAGMA busy_timeout=3000;")
	r := &SQLite{path: p, db: db}
	if err := r.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLite) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS registry(
		name TEXT PRIMARY KEY,
		pid INTEGER NOT NULL
	);`)
	return err
}

func (r *SQLite) Location() string { return "sqlite://" + r.path }

// Save replaces all rows in one transaction.
func (r *SQLite) Save(ctx context.Context, s Snapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM registry;`); err != nil {
		return err
	}
	for _, name := range s.Names() {
		if _, err := tx.ExecContext(ctx, `INSERT INTO registry(name, pid) VALUES(?, ?);`, name, s[name]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *SQLite) Load(ctx context.Context) (Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, pid FROM registry;`)
	if err != nil {
		return Snapshot{}, err
	}
	defer func() { _ = rows.Close() }()
	s := Snapshot{}
	for rows.Next() {
		var name string
		var pid int
		if err := rows.Scan(&name, &pid); err != nil {
			return Snapshot{}, err
		}
		s[name] = pid
	}
	return s, rows.Err()
}

func (r *SQLite) Remove(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM registry;`)
	return err
}

func (r *SQLite) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
