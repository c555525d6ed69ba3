package preset

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - empty database
// 1 - defaults seeded
const currentSchemaVersion = 1

// SQLiteStore keeps a collection in a SQLite database, one row per item.
type SQLiteStore struct {
	db   *sql.DB
	path string
	opts options
}

// OpenSQLite creates or opens the database at path, applying pragmas, the
// schema and migrations. Opening is idempotent.
//
// The database is configured with:
//   - WAL mode for concurrent readers
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open preset database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect preset database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, path: path, opts: buildOptions(opts)}
	s.opts.write.Retryable = isBusy

	if err := s.applyPragmas(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.applySchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) applyPragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLiteStore) applySchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < 1 {
		if err := s.migrateToV1(ctx); err != nil {
			return err
		}
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV1 seeds the default presets into an empty table.
func (s *SQLiteStore) migrateToV1(ctx context.Context) error {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM formulas").Scan(&n); err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	if n > 0 {
		return nil
	}
	if err := s.replace(ctx, Defaults(s.opts.ids, s.opts.clock)); err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, expr, created_at
		FROM formulas
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load presets: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Formula.Expr, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("load presets: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load presets: %w", err)
	}
	return items, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, name, expr string) (Item, error) {
	it, err := newItem(name, expr, s.opts.ids, s.opts.clock)
	if err != nil {
		return Item{}, err
	}
	err = s.exec(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO formulas (id, name, expr, created_at)
			VALUES (?, ?, ?, ?)
		`, it.ID, it.Name, it.Formula.Expr, it.CreatedAt)
		return err
	})
	if err != nil {
		return Item{}, err
	}
	return it, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	var affected int64
	err := s.exec(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM formulas WHERE id = ?", id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("delete %q: %w", id, ErrNotFound)
	}
	return nil
}

// Export implements Store.
func (s *SQLiteStore) Export(ctx context.Context) ([]byte, error) {
	items, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return encodeFile(items)
}

// Import implements Store. The merged collection replaces the table in one
// transaction.
func (s *SQLiteStore) Import(ctx context.Context, data []byte) ([]Item, error) {
	f, err := decodeFile(data)
	if err != nil {
		return nil, fmt.Errorf("import presets: %w", err)
	}
	current, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	merged := merge(current, f.Items, s.opts.ids, s.opts.clock)
	if err := s.exec(ctx, func(ctx context.Context) error { return s.replace(ctx, merged) }); err != nil {
		return nil, err
	}
	return merged, nil
}

// replace swaps the whole table for items.
func (s *SQLiteStore) replace(ctx context.Context, items []Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM formulas"); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO formulas (id, name, expr, created_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, it := range items {
		if _, err := stmt.ExecContext(ctx, it.ID, it.Name, it.Formula.Expr, it.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// exec runs a write under the write policy. Only busy and locked errors are
// retried; anything else fails at once.
func (s *SQLiteStore) exec(ctx context.Context, op func(ctx context.Context) error) error {
	if err := s.opts.write.Do(ctx, op); err != nil {
		return &WriteError{Path: s.path, Err: err}
	}
	return nil
}

// isBusy reports whether err is SQLITE_BUSY or SQLITE_LOCKED.
func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

var _ Store = (*SQLiteStore)(nil)
